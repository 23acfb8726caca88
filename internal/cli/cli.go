// Package cli parses command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/vk/flowgrid/internal/app"
)

// ExitError is an error carrying a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ExitError) Error() string { return e.Message }

// Parse processes command-line arguments. It returns a populated
// Config, a boolean indicating a clean early exit (help requested), or
// an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("flowgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
flowgrid - a declarative state-expansion pipeline engine.

Usage:
  flowgrid [options] [GRID_PATH]

Arguments:
  GRID_PATH
    Path to a single .hcl pipeline file or a directory of .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	gridFlag := flagSet.String("grid", "", "Path to the pipeline file or directory.")
	workersFlag := flagSet.Int("workers", 4, "Concurrency bound for the pool and group backends.")
	backendFlag := flagSet.String("backend", "pool", "Worker backend: serial, pool, group, or remote.")
	remoteFlag := flagSet.String("remote-url", "", "Worker service URL for the remote backend.")
	serveFlag := flagSet.String("serve", "", "Serve worker invocations on this address instead of running a pipeline.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Logging level: 'debug', 'info', 'warn', or 'error'.")
	timeoutFlag := flagSet.Duration("timeout", 0, "Abort the run after this duration. 0 disables the deadline.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	gridPath := *gridFlag
	if gridPath == "" && flagSet.NArg() > 0 {
		gridPath = flagSet.Arg(0)
	}
	if gridPath == "" && *serveFlag == "" {
		flagSet.Usage()
		return nil, false, &ExitError{Code: 2, Message: "no pipeline path given"}
	}

	return &app.Config{
		GridPath:  gridPath,
		Workers:   *workersFlag,
		Backend:   *backendFlag,
		RemoteURL: *remoteFlag,
		ServeAddr: *serveFlag,
		LogFormat: *logFormatFlag,
		LogLevel:  *logLevelFlag,
		Timeout:   time.Duration(*timeoutFlag),
	}, false, nil
}
