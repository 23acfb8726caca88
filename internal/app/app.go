// Package app encapsulates a flowgrid application instance: its
// configuration, logger, runner registry, and loaded pipeline model.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/modules/arith"
	"github.com/vk/flowgrid/modules/command"
)

// Config holds everything an App instance needs to run.
type Config struct {
	GridPath  string
	Workers   int
	Backend   string
	RemoteURL string
	ServeAddr string
	LogFormat string
	LogLevel  string
	Timeout   time.Duration
}

// App bundles the application's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	model    *config.Model
	cfg      *Config
}

// coreModules are registered when the caller passes none.
var coreModules = []registry.Module{
	&arith.Module{},
	&command.Module{},
}

// New constructs a fully initialized App: logger, registry populated
// from the modules, and (unless the app only serves remote invocations)
// the pipeline model loaded and validated.
func New(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		if err := mod.Register(reg); err != nil {
			return nil, fmt.Errorf("registering modules: %w", err)
		}
	}
	logger.Debug("All runner modules registered.", "count", len(modules), "runners", reg.Names())

	a := &App{outW: outW, logger: logger, registry: reg, cfg: cfg}
	if cfg.ServeAddr != "" {
		return a, nil
	}

	model, err := config.Load(ctx, cfg.GridPath)
	if err != nil {
		return nil, fmt.Errorf("loading pipeline configuration: %w", err)
	}
	if err := reg.Validate(model); err != nil {
		return nil, err
	}
	logger.Debug("Pipeline configuration loaded and validated.")
	a.model = model
	return a, nil
}

// Registry returns the application's registry, primarily for testing.
func (a *App) Registry() *registry.Registry { return a.registry }
