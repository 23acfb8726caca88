package state

import (
	"fmt"
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/mapper"
)

// Inputs is a node's named input containers. Insertion order decides the
// axis numbering of inputs the mapper never references, so an ordered
// map keeps the assignment deterministic.
type Inputs = orderedmap.OrderedMap[string, Array]

// NewInputs returns an empty input container.
func NewInputs() *Inputs {
	return orderedmap.New[string, Array]()
}

// Space is the resolved state space of one node: the axis assignment for
// every input, the combined shape, and a pure per-index value resolver.
// A Space is built once, after all of the node's inputs are known, and
// is immutable afterwards.
type Space struct {
	inputs  *Inputs
	axisFor map[string][]int // inputs the mapper touches
	shape   []int
}

// Build evaluates the RPN mapper sequence against the inputs and
// assigns axes.
//
// The evaluation is a fold over the token stream carrying an explicit
// stack. Axis identity is tracked through abstract slots: pushing an
// input allocates one slot per input axis, the zip combinator unifies
// the two operands' slots pairwise, and the outer combinator
// concatenates the left operand's slots before the right's. When the
// fold finishes the surviving slot order of the single remaining stack
// entry numbers the axes left to right in declaration order; inputs the
// mapper never mentions get fresh trailing axes. This makes the axis
// numbering canonical regardless of how the combinators nest.
func Build(inputs *Inputs, rpn []mapper.Token) (*Space, error) {
	f := &fold{
		inputs:   inputs,
		slotFor:  make(map[string][]int),
		slotSize: []int{},
		parent:   []int{},
	}
	for _, tok := range rpn {
		var err error
		switch tok.Op {
		case mapper.OpName:
			err = f.push(tok.Name)
		case mapper.OpZip:
			err = f.zip()
		case mapper.OpOuter:
			err = f.outer()
		default:
			err = fmt.Errorf("%w: unknown token %v", ErrInternalMapper, tok)
		}
		if err != nil {
			return nil, err
		}
	}

	var final []int
	switch len(f.stack) {
	case 0:
		if len(rpn) != 0 {
			return nil, fmt.Errorf("%w: evaluation consumed every operand", ErrInternalMapper)
		}
	case 1:
		final = f.stack[0].slots
	default:
		return nil, fmt.Errorf("%w: %d values left on the stack", ErrInternalMapper, len(f.stack))
	}

	return f.finish(final)
}

// entry is one value on the fold's evaluation stack: either a single
// pushed input or an already-combined sub-space. Either way it carries
// the slots and shape of the axes it spans.
type entry struct {
	slots []int
	shape []int
}

type fold struct {
	inputs   *Inputs
	stack    []entry
	slotFor  map[string][]int // per input, in input-axis order
	slotSize []int            // per slot, the axis length
	parent   []int            // union-find over slots
}

func (f *fold) push(name string) error {
	arr, ok := f.inputs.Get(name)
	if !ok {
		return fmt.Errorf("%w: mapper references input %q which is not present",
			mapper.ErrUnknownReference, name)
	}
	if slots, ok := f.slotFor[name]; ok {
		// The same input may appear more than once in a mapper; it keeps
		// the axes it was already assigned.
		f.stack = append(f.stack, entry{slots: slots, shape: arr.Shape()})
		return nil
	}
	slots := make([]int, arr.NDim())
	for i, size := range arr.Shape() {
		slots[i] = f.newSlot(size)
	}
	f.slotFor[name] = slots
	f.stack = append(f.stack, entry{slots: slots, shape: arr.Shape()})
	return nil
}

func (f *fold) pop2(op string) (left, right entry, err error) {
	if len(f.stack) < 2 {
		return entry{}, entry{}, fmt.Errorf("%w: %s combinator with %d operand(s)",
			ErrInternalMapper, op, len(f.stack))
	}
	right = f.stack[len(f.stack)-1]
	left = f.stack[len(f.stack)-2]
	f.stack = f.stack[:len(f.stack)-2]
	return left, right, nil
}

func (f *fold) zip() error {
	l, r, err := f.pop2("zip")
	if err != nil {
		return err
	}
	if !equalShapes(l.shape, r.shape) {
		return fmt.Errorf("%w: arrays combined element-wise must have the same shape, got %v and %v",
			ErrShapeMismatch, l.shape, r.shape)
	}
	for i := range l.slots {
		if err := f.union(l.slots[i], r.slots[i]); err != nil {
			return err
		}
	}
	f.stack = append(f.stack, entry{slots: l.slots, shape: l.shape})
	return nil
}

func (f *fold) outer() error {
	l, r, err := f.pop2("outer")
	if err != nil {
		return err
	}
	slots := make([]int, 0, len(l.slots)+len(r.slots))
	slots = append(slots, l.slots...)
	slots = append(slots, r.slots...)
	shape := make([]int, 0, len(l.shape)+len(r.shape))
	shape = append(shape, l.shape...)
	shape = append(shape, r.shape...)
	f.stack = append(f.stack, entry{slots: slots, shape: shape})
	return nil
}

func (f *fold) newSlot(size int) int {
	id := len(f.parent)
	f.parent = append(f.parent, id)
	f.slotSize = append(f.slotSize, size)
	return id
}

func (f *fold) find(s int) int {
	for f.parent[s] != s {
		f.parent[s] = f.parent[f.parent[s]]
		s = f.parent[s]
	}
	return s
}

func (f *fold) union(a, b int) error {
	ra, rb := f.find(a), f.find(b)
	if ra == rb {
		return nil
	}
	if f.slotSize[ra] != f.slotSize[rb] {
		return fmt.Errorf("%w: shared axis has lengths %d and %d",
			ErrShapeMismatch, f.slotSize[ra], f.slotSize[rb])
	}
	f.parent[rb] = ra
	return nil
}

// finish numbers the surviving slots of the final stack entry, appends
// trailing axes for inputs the mapper never touched, and inverts the
// assignment into the combined shape.
func (f *fold) finish(final []int) (*Space, error) {
	axisOf := make(map[int]int)
	var shape []int
	for _, s := range final {
		root := f.find(s)
		if _, seen := axisOf[root]; seen {
			// Two unified slot runs surfacing in one outer operand would
			// alias an axis with itself.
			return nil, fmt.Errorf("%w: axis combined with itself", ErrShapeMismatch)
		}
		axisOf[root] = len(shape)
		shape = append(shape, f.slotSize[root])
	}

	axisFor := make(map[string][]int, len(f.slotFor))
	for name, slots := range f.slotFor {
		axes := make([]int, len(slots))
		for i, s := range slots {
			axes[i] = axisOf[f.find(s)]
		}
		axisFor[name] = axes
	}

	// Inputs never referenced by the mapper keep independent axes
	// appended at the end, in input declaration order.
	for pair := f.inputs.Oldest(); pair != nil; pair = pair.Next() {
		if _, touched := axisFor[pair.Key]; touched {
			continue
		}
		arr := pair.Value
		if arr.NDim() == 0 {
			// A scalar pass-through occupies no axis.
			continue
		}
		axes := make([]int, arr.NDim())
		for i, size := range arr.Shape() {
			axes[i] = len(shape)
			shape = append(shape, size)
		}
		axisFor[pair.Key] = axes
	}

	return &Space{inputs: f.inputs, axisFor: axisFor, shape: shape}, nil
}

// NDim returns the dimensionality of the combined state space.
func (s *Space) NDim() int { return len(s.shape) }

// Shape returns one size per axis of the combined space.
func (s *Space) Shape() []int { return s.shape }

// Size returns the total number of states, i.e. the product of the shape.
func (s *Space) Size() int { return sizeOf(s.shape) }

// Axes returns the axis list assigned to the named input, if the input
// participates in the state space.
func (s *Space) Axes(input string) ([]int, bool) {
	axes, ok := s.axisFor[input]
	return axes, ok
}

// Elements lazily enumerates every multi-index of the space in row-major
// order without materializing the product. The yielded slice is reused;
// callers that retain an index must copy it.
func (s *Space) Elements() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		if s.Size() == 0 {
			return
		}
		idx := make([]int, len(s.shape))
		for {
			if !yield(idx) {
				return
			}
			axis := len(s.shape) - 1
			for ; axis >= 0; axis-- {
				idx[axis]++
				if idx[axis] < s.shape[axis] {
					break
				}
				idx[axis] = 0
			}
			if axis < 0 {
				return
			}
		}
	}
}

// IndexAt unranks a row-major position into a multi-index.
func (s *Space) IndexAt(rank int) []int {
	idx := make([]int, len(s.shape))
	for axis := len(s.shape) - 1; axis >= 0; axis-- {
		idx[axis] = rank % s.shape[axis]
		rank /= s.shape[axis]
	}
	return idx
}

// Rank is the inverse of IndexAt.
func (s *Space) Rank(idx []int) int {
	rank := 0
	for axis, x := range idx {
		rank = rank*s.shape[axis] + x
	}
	return rank
}

// Values resolves the concrete input bindings for one multi-index. Each
// input with assigned axes is indexed at its slice of the multi-index;
// inputs untouched by the mapper pass through whole. Values is a pure
// function of the index.
func (s *Space) Values(idx []int) map[string]cty.Value {
	out := make(map[string]cty.Value, s.inputs.Len())
	for pair := s.inputs.Oldest(); pair != nil; pair = pair.Next() {
		name, arr := pair.Key, pair.Value
		axes, ok := s.axisFor[name]
		if !ok {
			out[name] = arr.Value()
			continue
		}
		sub := make([]int, len(axes))
		for i, axis := range axes {
			sub[i] = idx[axis]
		}
		out[name] = arr.At(sub)
	}
	return out
}
