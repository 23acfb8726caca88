// Package state computes the multi-dimensional state space of a node:
// which axes of the combined space each input occupies, the overall
// shape, and the concrete input values bound at any one multi-index.
package state

import (
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrShapeMismatch reports two inputs combined element-wise whose
	// containers disagree on shape, or an axis shared between inputs
	// with inconsistent sizes.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInternalMapper reports an inconsistent RPN stream reaching the
	// state-space builder; the parser should have rejected it earlier.
	ErrInternalMapper = errors.New("inconsistent mapper evaluation")
)

// Array is an n-dimensional, rectangular container of cty values. A
// scalar is the zero-dimensional case. Arrays are immutable once built.
type Array struct {
	shape []int
	elems []cty.Value
	whole cty.Value
}

// Scalar wraps a single value as a zero-dimensional array.
func Scalar(v cty.Value) Array {
	return Array{elems: []cty.Value{v}, whole: v}
}

// FromCty derives an array from a cty value. Nested tuples/lists become
// axes for as long as the nesting stays rectangular; any non-collection
// value (or the level at which nesting turns ragged) becomes an element.
func FromCty(v cty.Value) Array {
	shape := rectShape(v)
	a := Array{shape: shape, whole: v, elems: make([]cty.Value, 0, sizeOf(shape))}
	var flatten func(v cty.Value, depth int)
	flatten = func(v cty.Value, depth int) {
		if depth == len(shape) {
			a.elems = append(a.elems, v)
			return
		}
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			flatten(ev, depth+1)
		}
	}
	flatten(v, 0)
	return a
}

// FromValues builds an array of the given shape from row-major elements.
func FromValues(shape []int, elems []cty.Value) (Array, error) {
	if len(elems) != sizeOf(shape) {
		return Array{}, fmt.Errorf("array of shape %v needs %d elements, got %d",
			shape, sizeOf(shape), len(elems))
	}
	a := Array{shape: append([]int(nil), shape...), elems: append([]cty.Value(nil), elems...)}
	a.whole = a.nest(0, 0, sizeOf(shape))
	return a, nil
}

// nest rebuilds the whole-container view as nested tuples.
func (a Array) nest(axis, lo, hi int) cty.Value {
	if axis == len(a.shape) {
		return a.elems[lo]
	}
	n := a.shape[axis]
	if n == 0 {
		return cty.EmptyTupleVal
	}
	stride := (hi - lo) / n
	vals := make([]cty.Value, n)
	for i := 0; i < n; i++ {
		vals[i] = a.nest(axis+1, lo+i*stride, lo+(i+1)*stride)
	}
	return cty.TupleVal(vals)
}

// rectShape walks nested tuple/list values while every level stays
// rectangular, returning the axis sizes.
func rectShape(v cty.Value) []int {
	if v.IsNull() || !v.IsKnown() {
		return nil
	}
	t := v.Type()
	if !t.IsTupleType() && !t.IsListType() {
		return nil
	}
	n := v.LengthInt()
	if n == 0 {
		return []int{0}
	}
	var child []int
	first := true
	for it := v.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		s := rectShape(ev)
		if first {
			child = s
			first = false
			continue
		}
		if !equalShapes(child, s) {
			// Ragged below this level: keep elements whole.
			child = nil
			break
		}
	}
	return append([]int{n}, child...)
}

// Shape returns the axis sizes; a scalar has an empty shape.
func (a Array) Shape() []int { return a.shape }

// NDim returns the number of axes.
func (a Array) NDim() int { return len(a.shape) }

// Size returns the total element count (1 for a scalar).
func (a Array) Size() int { return sizeOf(a.shape) }

// At returns the element at the given multi-index.
func (a Array) At(idx []int) cty.Value {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("state: index %v into array of shape %v", idx, a.shape))
	}
	flat := 0
	for i, x := range idx {
		flat = flat*a.shape[i] + x
	}
	return a.elems[flat]
}

// Value returns the whole container as one cty value, used when an
// input is passed through untouched by the mapper.
func (a Array) Value() cty.Value { return a.whole }

func sizeOf(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func equalShapes(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
