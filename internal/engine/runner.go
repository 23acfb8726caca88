// Package engine holds the execution model of a pipeline: runners,
// nodes expanded over their state spaces, per-state tasks, and
// workflows composing nodes with typed connections.
package engine

import (
	"context"
	"errors"

	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrAmbiguousOutputAlias reports a workflow output projection that
	// uses the same alias twice.
	ErrAmbiguousOutputAlias = errors.New("ambiguous output alias")

	// ErrOutputArityMismatch reports a runner returning a different
	// number of values than it declares output names for.
	ErrOutputArityMismatch = errors.New("output arity mismatch")

	// ErrMissingUpstreamInput reports a connection or projection
	// referencing an input or output no producer supplies.
	ErrMissingUpstreamInput = errors.New("missing upstream input")
)

// Runner is the capability interface every node computation implements:
// a declared list of output names and a call producing one value per
// declared output from resolved named arguments.
type Runner interface {
	Outputs() []string
	Run(ctx context.Context, args map[string]cty.Value) ([]cty.Value, error)
}

// FuncBody is the signature a plain Go function must have to act as a
// runner body.
type FuncBody func(ctx context.Context, args map[string]cty.Value) ([]cty.Value, error)

// Func adapts a plain function into a Runner with declared outputs.
type Func struct {
	outputs []string
	fn      FuncBody
}

// NewFunc wraps fn as a Runner producing the named outputs.
func NewFunc(fn FuncBody, outputs ...string) *Func {
	return &Func{outputs: outputs, fn: fn}
}

// Outputs returns the declared output names.
func (f *Func) Outputs() []string { return f.outputs }

// Run invokes the wrapped function.
func (f *Func) Run(ctx context.Context, args map[string]cty.Value) ([]cty.Value, error) {
	return f.fn(ctx, args)
}

// Result is one per-state outcome: the resolved state values the task
// ran under and the value it produced for one output.
type Result struct {
	State map[string]cty.Value
	Value cty.Value
}
