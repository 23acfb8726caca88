package engine

import (
	"fmt"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/mapper"
	"github.com/vk/flowgrid/internal/state"
)

// Node owns a runner, a mapper, and namespaced input containers, and
// produces one task per point of its state space. Results are collected
// per output name in completion order; an index-keyed view exists for
// downstream per-state lookups.
type Node struct {
	name       string
	runner     Runner
	runnerName string
	spec       mapper.Spec
	inputs     *state.Inputs
	space      *state.Space
	workingDir string

	joinRunner     Runner
	joinRunnerName string
	joinInput      string
	joinFrom       string

	incoming []*Connection

	mu        sync.Mutex
	completed int
	results   map[string][]Result
	byRank    map[string]map[int]cty.Value
	joined    map[string]Result
	joinDone  bool
}

// Option configures a Node at construction.
type Option func(*Node)

// WithRunnerName records the registry name of the node's runner, which
// the remote worker backend needs to dispatch the invocation by name.
func WithRunnerName(name string) Option {
	return func(n *Node) { n.runnerName = name }
}

// WithWorkingDir sets the scratch directory handed to interface-level
// runners. The engine itself never touches it.
func WithWorkingDir(dir string) Option {
	return func(n *Node) { n.workingDir = dir }
}

// NewNode constructs a node around a runner.
func NewNode(name string, runner Runner, opts ...Option) *Node {
	n := &Node{
		name:    name,
		runner:  runner,
		inputs:  state.NewInputs(),
		results: make(map[string][]Result),
		byRank:  make(map[string]map[int]cty.Value),
		joined:  make(map[string]Result),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the node's unique name, used for namespacing its inputs.
func (n *Node) Name() string { return n.name }

// Runner returns the node's computation.
func (n *Node) Runner() Runner { return n.runner }

// RunnerName returns the registry name of the runner, if recorded.
func (n *Node) RunnerName() string { return n.runnerName }

// WorkingDir returns the scratch directory configured for the node.
func (n *Node) WorkingDir() string { return n.workingDir }

// Mapper returns the node's (namespaced) mapper spec, nil if none.
func (n *Node) Mapper() mapper.Spec { return n.spec }

// Map sets the node's mapper and merges extra inputs. The spec's plain
// leaves are qualified with the node's name, and any previously built
// state space is invalidated.
func (n *Node) Map(spec mapper.Spec, inputs map[string]cty.Value) error {
	if spec != nil {
		if err := mapper.Validate(spec); err != nil {
			return fmt.Errorf("node %q: %w", n.name, err)
		}
		spec = mapper.Rename(spec, n.name)
	}
	n.spec = spec
	for name, v := range inputs {
		n.SetInput(name, v)
	}
	n.space = nil
	return nil
}

// SetInput stores a named input value under the node's namespace
// ("node.input") and invalidates any previously built state space.
func (n *Node) SetInput(name string, v cty.Value) {
	n.inputs.Set(n.name+"."+name, state.FromCty(v))
	n.space = nil
}

// InjectInput stores an already-qualified input container, used by a
// workflow to make an upstream node's inputs visible to an inherited
// mapper.
func (n *Node) InjectInput(qualified string, arr state.Array) {
	n.inputs.Set(qualified, arr)
	n.space = nil
}

// Input looks up a qualified input container.
func (n *Node) Input(qualified string) (state.Array, bool) {
	return n.inputs.Get(qualified)
}

// Join marks the node as a reduction: once every per-state task has
// finished, runner is invoked exactly once with the full ordered list
// of the node's fromOutput results bound to the argument named input.
// runnerName may be empty if the join will never be dispatched remotely.
func (n *Node) Join(runner Runner, runnerName, input, fromOutput string) {
	n.joinRunner = runner
	n.joinRunnerName = runnerName
	n.joinInput = input
	n.joinFrom = fromOutput
}

// IsJoin reports whether the node carries a join reduction.
func (n *Node) IsJoin() bool { return n.joinRunner != nil }

// PrepareState builds the node's state space from its current inputs
// and mapper. It is idempotent: a space survives until Map or SetInput
// invalidates it. The foreign table resolves "_other" mapper references.
func (n *Node) PrepareState(foreign map[string]mapper.Spec) error {
	if n.space != nil {
		return nil
	}
	rpn, err := mapper.ToRPN(n.spec, foreign)
	if err != nil {
		return fmt.Errorf("node %q: %w", n.name, err)
	}
	space, err := state.Build(n.inputs, rpn)
	if err != nil {
		return fmt.Errorf("node %q: %w", n.name, err)
	}
	n.space = space
	return nil
}

// Space returns the node's state space, nil before PrepareState.
func (n *Node) Space() *state.Space { return n.space }

// Ready reports whether every input required at the given multi-index
// is concretely available, i.e. every incoming connection can resolve
// its upstream per-state result.
func (n *Node) Ready(idx []int) bool {
	for _, c := range n.incoming {
		if !c.readyAt(idx) {
			return false
		}
	}
	return true
}

// record stores one per-state completion.
func (n *Node) record(rank int, stateVals map[string]cty.Value, outputs []cty.Value) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, out := range n.runner.Outputs() {
		n.results[out] = append(n.results[out], Result{State: stateVals, Value: outputs[i]})
		m := n.byRank[out]
		if m == nil {
			m = make(map[int]cty.Value)
			n.byRank[out] = m
		}
		m[rank] = outputs[i]
	}
	n.completed++
}

// recordJoin stores the single join reduction result.
func (n *Node) recordJoin(outputs []cty.Value) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, out := range n.joinRunner.Outputs() {
		n.joined[out] = Result{Value: outputs[i]}
	}
	n.joinDone = true
}

// Done reports whether every per-state task of the node has finished.
func (n *Node) Done() bool {
	if n.space == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.completed == n.space.Size()
}

// JoinDone reports whether the join reduction has run. It is vacuously
// true for non-join nodes.
func (n *Node) JoinDone() bool {
	if !n.IsJoin() {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.joinDone
}

// Finished reports whether the node, including any join reduction, is
// complete.
func (n *Node) Finished() bool { return n.Done() && n.JoinDone() }

// Results returns the per-state results recorded for one output, in
// completion order. Callers needing index order must sort by state.
func (n *Node) Results(output string) []Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Result(nil), n.results[output]...)
}

// ResultAt returns the value one state produced for an output.
func (n *Node) ResultAt(output string, rank int) (cty.Value, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.byRank[output][rank]
	return v, ok
}

// JoinResult returns the join reduction's value for one output.
func (n *Node) JoinResult(output string) (Result, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.joined[output]
	return r, ok
}

// joinOutput reports whether the named output belongs to the node's
// join runner rather than its per-state runner.
func (n *Node) joinOutput(output string) bool {
	if !n.IsJoin() {
		return false
	}
	for _, out := range n.joinRunner.Outputs() {
		if out == output {
			return true
		}
	}
	return false
}

// collect returns the per-state values of one output ordered by state
// rank, and whether they are all present.
func (n *Node) collect(output string) ([]cty.Value, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	size := n.space.Size()
	vals := make([]cty.Value, 0, size)
	for rank := 0; rank < size; rank++ {
		v, ok := n.byRank[output][rank]
		if !ok {
			return nil, false
		}
		vals = append(vals, v)
	}
	return vals, true
}
