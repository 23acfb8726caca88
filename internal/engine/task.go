package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Task is one concrete invocation of a node's runner for one
// multi-index of its state space, or the node's single join reduction.
// Tasks are safe to run concurrently with other tasks of the same node:
// each writes to a logically distinct result slot, and the node
// serializes the bookkeeping internally.
type Task struct {
	node  *Node
	index []int
	rank  int
	join  bool
}

// Task returns the per-state task for one multi-index.
func (n *Node) Task(idx []int) *Task {
	return &Task{
		node:  n,
		index: append([]int(nil), idx...),
		rank:  n.space.Rank(idx),
	}
}

// Tasks returns every per-state task of the node in state-rank order.
// The node's state space must be prepared.
func (n *Node) Tasks() []*Task {
	tasks := make([]*Task, 0, n.space.Size())
	for idx := range n.space.Elements() {
		tasks = append(tasks, n.Task(idx))
	}
	return tasks
}

// JoinTask returns the node's single reduction task.
func (n *Node) JoinTask() *Task {
	return &Task{node: n, join: true}
}

// Node returns the owning node.
func (t *Task) Node() *Node { return t.node }

// Index returns the task's multi-index (nil for a join task).
func (t *Task) Index() []int { return t.index }

// IsJoin reports whether this is a join reduction task.
func (t *Task) IsJoin() bool { return t.join }

// ID identifies the task for logs: "node[1,0]" or "node.join".
func (t *Task) ID() string {
	if t.join {
		return t.node.name + ".join"
	}
	parts := make([]string, len(t.index))
	for i, x := range t.index {
		parts[i] = fmt.Sprint(x)
	}
	return t.node.name + "[" + strings.Join(parts, ",") + "]"
}

// Ready reports whether the task can run now: a per-state task needs
// every upstream per-state result its connections reference, a join
// task needs every per-state task of its own node finished.
func (t *Task) Ready() bool {
	if t.join {
		return t.node.Done()
	}
	return t.node.Ready(t.index)
}

// runner returns the computation this task invokes.
func (t *Task) runner() Runner {
	if t.join {
		return t.node.joinRunner
	}
	return t.node.runner
}

// resolve computes the runner arguments and the state values the result
// will be keyed under. Arguments carry the node's short input names;
// connected inputs are bound to the upstream result for the projected
// state. Foreign state carriers appear in the state values only.
func (t *Task) resolve() (args, stateVals map[string]cty.Value, err error) {
	n := t.node
	if t.join {
		vals, ok := n.collect(n.joinFrom)
		if !ok {
			return nil, nil, fmt.Errorf("%w: join of %q before all states of %q finished",
				ErrMissingUpstreamInput, n.joinFrom, n.name)
		}
		joined := cty.EmptyTupleVal
		if len(vals) > 0 {
			joined = cty.TupleVal(vals)
		}
		return map[string]cty.Value{n.joinInput: joined}, nil, nil
	}

	stateVals = n.space.Values(t.index)
	args = make(map[string]cty.Value, len(stateVals))
	prefix := n.name + "."
	for qualified, v := range stateVals {
		if short, ok := strings.CutPrefix(qualified, prefix); ok {
			args[short] = v
		}
	}
	for _, c := range n.incoming {
		v, ok := c.valueAt(t.index)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q has no result yet for state %v of %q",
				ErrMissingUpstreamInput, c.src.name, t.index, n.name)
		}
		args[c.dstInput] = v
	}
	return args, stateVals, nil
}

// Run resolves the task's arguments, invokes the runner, and records
// the per-state (or join) results on the node.
func (t *Task) Run(ctx context.Context) error {
	args, stateVals, err := t.resolve()
	if err != nil {
		return err
	}
	outputs, err := t.runner().Run(ctx, args)
	if err != nil {
		return err
	}
	return t.complete(stateVals, outputs)
}

// Invocation resolves the task into a named-runner call for remote
// dispatch. It fails if the runner was registered without a name.
func (t *Task) Invocation() (runnerName string, args map[string]cty.Value, err error) {
	if t.join {
		runnerName = t.node.joinRunnerName
	} else {
		runnerName = t.node.runnerName
	}
	if runnerName == "" {
		return "", nil, fmt.Errorf("task %s: runner has no registry name, cannot dispatch remotely", t.ID())
	}
	args, _, err = t.resolve()
	return runnerName, args, err
}

// Complete records outputs produced elsewhere (a remote worker) for
// this task, enforcing the declared output arity.
func (t *Task) Complete(outputs []cty.Value) error {
	var stateVals map[string]cty.Value
	if !t.join {
		_, sv, err := t.resolve()
		if err != nil {
			return err
		}
		stateVals = sv
	}
	return t.complete(stateVals, outputs)
}

func (t *Task) complete(stateVals map[string]cty.Value, outputs []cty.Value) error {
	declared := t.runner().Outputs()
	if len(outputs) != len(declared) {
		return fmt.Errorf("%w: task %s declared %d output(s) %v but produced %d value(s)",
			ErrOutputArityMismatch, t.ID(), len(declared), declared, len(outputs))
	}
	if t.join {
		t.node.recordJoin(outputs)
		return nil
	}
	t.node.record(t.rank, stateVals, outputs)
	return nil
}
