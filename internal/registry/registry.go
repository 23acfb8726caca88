// Package registry holds the named runners available to one
// application instance. There is no global registry: each App owns its
// own, populated from the modules it was constructed with.
package registry

import (
	"fmt"

	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/engine"
)

// Module is the interface a runner package implements to contribute its
// runners to a registry.
type Module interface {
	Register(r *Registry) error
}

// Registry maps runner names to implementations.
type Registry struct {
	runners map[string]engine.Runner
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{runners: make(map[string]engine.Runner)}
}

// Register adds a named runner. Duplicate names are an error.
func (r *Registry) Register(name string, runner engine.Runner) error {
	if _, dup := r.runners[name]; dup {
		return fmt.Errorf("runner %q registered twice", name)
	}
	r.runners[name] = runner
	r.order = append(r.order, name)
	return nil
}

// Lookup resolves a runner by name. Its signature matches what the
// remote worker handler expects.
func (r *Registry) Lookup(name string) (engine.Runner, bool) {
	runner, ok := r.runners[name]
	return runner, ok
}

// Names returns the registered runner names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Validate checks that every runner a model references is registered.
// This is a startup integrity check: a mismatch between config and code
// should fail before any state space is built.
func (r *Registry) Validate(model *config.Model) error {
	for _, n := range model.Nodes {
		if _, ok := r.runners[n.Runner]; !ok {
			return fmt.Errorf("node %q references unregistered runner %q", n.Name, n.Runner)
		}
		if n.Join != nil {
			if _, ok := r.runners[n.Join.Runner]; !ok {
				return fmt.Errorf("node %q references unregistered join runner %q", n.Name, n.Join.Runner)
			}
		}
	}
	return nil
}
