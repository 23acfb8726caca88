// Package arith provides the numeric runners used by the examples and
// the integration tests: element-wise arithmetic over mapped states and
// a summing join reduction.
package arith

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the arithmetic runners.
func (m *Module) Register(r *registry.Registry) error {
	runners := map[string]engine.Runner{
		"const": engine.NewFunc(runConst, "out"),
		"add":   engine.NewFunc(runAdd, "out"),
		"mul":   engine.NewFunc(runMul, "out"),
		"shift": engine.NewFunc(runShift, "out"),
		"sum":   engine.NewFunc(runSum, "out"),
	}
	for name, runner := range runners {
		if err := r.Register(name, runner); err != nil {
			return err
		}
	}
	return nil
}

// runConst passes its single input through unchanged.
func runConst(ctx context.Context, args map[string]cty.Value) ([]cty.Value, error) {
	v, err := arg(args, "value")
	if err != nil {
		return nil, err
	}
	return []cty.Value{v}, nil
}

// runAdd returns a + b.
func runAdd(ctx context.Context, args map[string]cty.Value) ([]cty.Value, error) {
	a, err := number(args, "a")
	if err != nil {
		return nil, err
	}
	b, err := number(args, "b")
	if err != nil {
		return nil, err
	}
	return []cty.Value{a.Add(b)}, nil
}

// runMul returns a * b.
func runMul(ctx context.Context, args map[string]cty.Value) ([]cty.Value, error) {
	a, err := number(args, "a")
	if err != nil {
		return nil, err
	}
	b, err := number(args, "b")
	if err != nil {
		return nil, err
	}
	return []cty.Value{a.Multiply(b)}, nil
}

// runShift returns a + by, where by defaults to 2 when absent.
func runShift(ctx context.Context, args map[string]cty.Value) ([]cty.Value, error) {
	a, err := number(args, "a")
	if err != nil {
		return nil, err
	}
	by := cty.NumberIntVal(2)
	if v, ok := args["by"]; ok {
		by = v
	}
	return []cty.Value{a.Add(by)}, nil
}

// runSum reduces a list of numbers to their sum. It is the usual join
// runner: "vals" receives the full ordered per-state result list.
func runSum(ctx context.Context, args map[string]cty.Value) ([]cty.Value, error) {
	vals, err := arg(args, "vals")
	if err != nil {
		return nil, err
	}
	if !vals.CanIterateElements() {
		return nil, fmt.Errorf("runner sum: argument \"vals\" is not a collection")
	}
	total := cty.Zero
	for it := vals.ElementIterator(); it.Next(); {
		_, v := it.Element()
		if v.Type() != cty.Number {
			return nil, fmt.Errorf("runner sum: element %v is not a number", v)
		}
		total = total.Add(v)
	}
	return []cty.Value{total}, nil
}

func arg(args map[string]cty.Value, name string) (cty.Value, error) {
	v, ok := args[name]
	if !ok {
		return cty.NilVal, fmt.Errorf("missing argument %q", name)
	}
	return v, nil
}

func number(args map[string]cty.Value, name string) (cty.Value, error) {
	v, err := arg(args, name)
	if err != nil {
		return cty.NilVal, err
	}
	if v.Type() != cty.Number {
		return cty.NilVal, fmt.Errorf("argument %q is %s, want number", name, v.Type().FriendlyName())
	}
	return v, nil
}
