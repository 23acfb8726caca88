// Package command provides a runner that shells out to an external
// executable, one process per state. The engine stays agnostic of what
// the command does; it only maps inputs in and captures output.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the command runner.
func (m *Module) Register(r *registry.Registry) error {
	return r.Register("command", engine.NewFunc(runCommand, "stdout", "status"))
}

// runCommand executes `path` with `args` in `dir` (all cty-typed
// arguments) and returns captured stdout and the exit status.
func runCommand(ctx context.Context, args map[string]cty.Value) ([]cty.Value, error) {
	pathVal, ok := args["path"]
	if !ok || pathVal.Type() != cty.String {
		return nil, fmt.Errorf("runner command: argument \"path\" must be a string")
	}

	var argv []string
	if list, ok := args["args"]; ok {
		if !list.CanIterateElements() {
			return nil, fmt.Errorf("runner command: argument \"args\" must be a list of strings")
		}
		for it := list.ElementIterator(); it.Next(); {
			_, v := it.Element()
			if v.Type() != cty.String {
				return nil, fmt.Errorf("runner command: argument %v is not a string", v)
			}
			argv = append(argv, v.AsString())
		}
	}

	cmd := exec.CommandContext(ctx, pathVal.AsString(), argv...)
	if dir, ok := args["dir"]; ok && dir.Type() == cty.String {
		cmd.Dir = dir.AsString()
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := ctxlog.FromContext(ctx).With("runner", "command", "path", pathVal.AsString())
	logger.Debug("Executing command.", "args", argv)

	err := cmd.Run()
	status := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("runner command: %w", err)
		}
		status = exitErr.ExitCode()
		logger.Warn("Command exited non-zero.", "status", status, "stderr", stderr.String())
	}

	return []cty.Value{
		cty.StringVal(stdout.String()),
		cty.NumberIntVal(int64(status)),
	}, nil
}
