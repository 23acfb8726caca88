package app

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/bytedance/sonic"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/flowgrid/internal/build"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/submit"
	"github.com/vk/flowgrid/internal/worker"
)

// Run executes the loaded pipeline (or serves remote invocations when
// configured with a serve address) and writes the aggregated workflow
// result as JSON.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	if a.cfg.ServeAddr != "" {
		return a.serve(ctx)
	}

	wf, err := build.Build(ctx, a.model, a.registry)
	if err != nil {
		return fmt.Errorf("building workflow: %w", err)
	}

	kind, err := worker.ParseKind(a.cfg.Backend)
	if err != nil {
		return err
	}
	opts := worker.Options{Workers: a.cfg.Workers}
	if kind == worker.Remote {
		if a.cfg.RemoteURL == "" {
			return fmt.Errorf("remote backend selected but no worker service URL configured")
		}
		opts.Client = worker.NewHTTPClient(a.cfg.RemoteURL, nil)
	}
	w, err := worker.New(kind, opts)
	if err != nil {
		return err
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	a.logger.Info("Starting pipeline execution.", "backend", kind.String(), "workers", a.cfg.Workers)
	sub := submit.New(w)
	if err := sub.Run(ctx, wf); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("Pipeline execution finished.")

	result, err := wf.Result()
	if err != nil {
		return err
	}
	return a.renderResult(result)
}

// serve exposes the app's registry as a remote worker service.
func (a *App) serve(ctx context.Context) error {
	a.logger.Info("Serving worker invocations.", "addr", a.cfg.ServeAddr, "runners", a.registry.Names())
	server := &http.Server{
		Addr:        a.cfg.ServeAddr,
		Handler:     worker.Handler(a.registry.Lookup),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	return server.ListenAndServe()
}

// renderResult writes the workflow result map as indented JSON: per
// alias, a list of {state, value} entries with cty values rendered
// through their JSON encoding.
func (a *App) renderResult(result *orderedmap.OrderedMap[string, []engine.Result]) error {
	rendered := make(map[string][]map[string]any, result.Len())
	for pair := result.Oldest(); pair != nil; pair = pair.Next() {
		entries := make([]map[string]any, 0, len(pair.Value))
		for _, r := range pair.Value {
			entry := map[string]any{}
			if r.State != nil {
				st := make(map[string]any, len(r.State))
				for name, v := range r.State {
					raw, err := ctyjson.Marshal(v, v.Type())
					if err != nil {
						return fmt.Errorf("rendering state %q: %w", name, err)
					}
					st[name] = sonicRaw(raw)
				}
				entry["state"] = st
			}
			raw, err := ctyjson.Marshal(r.Value, r.Value.Type())
			if err != nil {
				return fmt.Errorf("rendering result for %q: %w", pair.Key, err)
			}
			entry["value"] = sonicRaw(raw)
			entries = append(entries, entry)
		}
		rendered[pair.Key] = entries
	}

	out, err := sonic.MarshalIndent(rendered, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.outW, string(out))
	return err
}

// sonicRaw re-parses a JSON fragment so sonic renders it inline rather
// than as an escaped string.
func sonicRaw(raw []byte) any {
	var v any
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
