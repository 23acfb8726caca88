package engine

import (
	"context"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/dag"
	"github.com/vk/flowgrid/internal/mapper"
)

// OutputRef projects one node output into the workflow's own result
// set under an alias.
type OutputRef struct {
	Node   string
	Output string
	Alias  string
}

// Workflow is a DAG of nodes with typed connections. Workflow-level
// inputs act as a virtual, always-ready source; named node outputs are
// projected into the workflow's aggregated result.
type Workflow struct {
	name          string
	workingDir    string
	nodes         *orderedmap.OrderedMap[string, *Node]
	conns         []*Connection
	wfInputs      *orderedmap.OrderedMap[string, cty.Value]
	defaultMapper mapper.Spec
	outputs       []OutputRef
	lastAdded     *Node

	sorted   []*Node
	prepared bool
}

// WorkflowOption configures a Workflow at construction.
type WorkflowOption func(*Workflow)

// WithWorkflowDir sets the base scratch directory for the workflow's
// nodes.
func WithWorkflowDir(dir string) WorkflowOption {
	return func(w *Workflow) { w.workingDir = dir }
}

// WithDefaultMapper sets a workflow-level mapper applied (renamed per
// node) to any node that reaches preparation without a mapper of its
// own.
func WithDefaultMapper(spec mapper.Spec) WorkflowOption {
	return func(w *Workflow) { w.defaultMapper = spec }
}

// WithOutputs declares the workflow's output projection up front.
func WithOutputs(refs ...OutputRef) WorkflowOption {
	return func(w *Workflow) { w.outputs = append(w.outputs, refs...) }
}

// NewWorkflow constructs an empty workflow.
func NewWorkflow(name string, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		name:     name,
		nodes:    orderedmap.New[string, *Node](),
		wfInputs: orderedmap.New[string, cty.Value](),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the workflow's name.
func (w *Workflow) Name() string { return w.name }

// WorkingDir returns the workflow's base scratch directory.
func (w *Workflow) WorkingDir() string { return w.workingDir }

// Add registers a node. Node names must be unique within the workflow.
func (w *Workflow) Add(n *Node) error {
	if _, dup := w.nodes.Get(n.name); dup {
		return fmt.Errorf("workflow %q already has a node named %q", w.name, n.name)
	}
	if n.workingDir == "" && w.workingDir != "" {
		n.workingDir = w.workingDir
	}
	w.nodes.Set(n.name, n)
	w.lastAdded = n
	w.prepared = false
	return nil
}

// AddFunc wraps a plain function as a node and registers it.
func (w *Workflow) AddFunc(name string, fn FuncBody, outputs ...string) (*Node, error) {
	n := NewNode(name, NewFunc(fn, outputs...))
	if err := w.Add(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddWorkflow flattens a nested workflow into this one: its nodes,
// connections, and output projections merge directly, and its declared
// inputs become inputs of the enclosing workflow. Name collisions are
// errors.
func (w *Workflow) AddWorkflow(sub *Workflow) error {
	for pair := sub.nodes.Oldest(); pair != nil; pair = pair.Next() {
		if err := w.Add(pair.Value); err != nil {
			return fmt.Errorf("flattening workflow %q: %w", sub.name, err)
		}
	}
	w.conns = append(w.conns, sub.conns...)
	w.outputs = append(w.outputs, sub.outputs...)
	for pair := sub.wfInputs.Oldest(); pair != nil; pair = pair.Next() {
		if _, dup := w.wfInputs.Get(pair.Key); dup {
			return fmt.Errorf("flattening workflow %q: duplicate workflow input %q", sub.name, pair.Key)
		}
		w.wfInputs.Set(pair.Key, pair.Value)
	}
	return nil
}

// Node looks up a node by name.
func (w *Workflow) Node(name string) (*Node, bool) {
	return w.nodes.Get(name)
}

// Nodes returns the workflow's nodes, in dependency order once the
// workflow is prepared and in insertion order before that.
func (w *Workflow) Nodes() []*Node {
	if w.prepared {
		return append([]*Node(nil), w.sorted...)
	}
	out := make([]*Node, 0, w.nodes.Len())
	for pair := w.nodes.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Connections returns the workflow's recorded edges.
func (w *Workflow) Connections() []*Connection {
	return append([]*Connection(nil), w.conns...)
}

// SetInput declares a workflow-level input value.
func (w *Workflow) SetInput(name string, v cty.Value) {
	w.wfInputs.Set(name, v)
}

// Connect records a directed edge: dstInput of node dstName is fed, per
// state, from srcOutput of node srcName. The dependency becomes a
// per-task readiness constraint at submission time.
func (w *Workflow) Connect(srcName, srcOutput, dstName, dstInput string) error {
	src, ok := w.nodes.Get(srcName)
	if !ok {
		return fmt.Errorf("workflow %q: connect: unknown source node %q", w.name, srcName)
	}
	dst, ok := w.nodes.Get(dstName)
	if !ok {
		return fmt.Errorf("workflow %q: connect: unknown destination node %q", w.name, dstName)
	}
	if src == dst {
		return fmt.Errorf("workflow %q: connect: node %q cannot feed itself", w.name, srcName)
	}
	c := &Connection{src: src, srcOutput: srcOutput, dst: dst, dstInput: dstInput}
	w.conns = append(w.conns, c)
	dst.incoming = append(dst.incoming, c)
	w.prepared = false
	return nil
}

// ConnectWfInput feeds a declared workflow input into a node. The
// workflow's inputs are an always-ready source, so the value is bound
// into the node's own input container directly.
func (w *Workflow) ConnectWfInput(wfInput, dstName, dstInput string) error {
	v, ok := w.wfInputs.Get(wfInput)
	if !ok {
		return fmt.Errorf("%w: workflow %q has no input %q", ErrMissingUpstreamInput, w.name, wfInput)
	}
	dst, ok := w.nodes.Get(dstName)
	if !ok {
		return fmt.Errorf("workflow %q: unknown destination node %q", w.name, dstName)
	}
	dst.SetInput(dstInput, v)
	w.prepared = false
	return nil
}

// MapNode forwards to Node.Map for a named node.
func (w *Workflow) MapNode(nodeName string, spec mapper.Spec, inputs map[string]cty.Value) error {
	n, ok := w.nodes.Get(nodeName)
	if !ok {
		return fmt.Errorf("workflow %q: unknown node %q", w.name, nodeName)
	}
	w.prepared = false
	return n.Map(spec, inputs)
}

// MapLast forwards to Node.Map for the most recently added node.
func (w *Workflow) MapLast(spec mapper.Spec, inputs map[string]cty.Value) error {
	if w.lastAdded == nil {
		return fmt.Errorf("workflow %q: no node added yet", w.name)
	}
	w.prepared = false
	return w.lastAdded.Map(spec, inputs)
}

// AddOutput projects a node output into the workflow result set,
// optionally under an alias (default: the output's own name).
func (w *Workflow) AddOutput(node, output string, alias ...string) {
	ref := OutputRef{Node: node, Output: output, Alias: output}
	if len(alias) > 0 {
		ref.Alias = alias[0]
	}
	w.outputs = append(w.outputs, ref)
}

// Prepare resolves the whole graph for submission: it orders nodes by
// dependency, propagates upstream input containers to inherited
// mappers, builds every node's state space, and computes the per-
// connection axis projections. Structural errors surface here,
// synchronously, before any task runs. Prepare is idempotent.
func (w *Workflow) Prepare(ctx context.Context) error {
	if w.prepared {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("workflow", w.name)

	graph := dag.New()
	for pair := w.nodes.Oldest(); pair != nil; pair = pair.Next() {
		graph.AddNode(pair.Key)
	}
	for _, c := range w.conns {
		if err := graph.AddEdge(c.src.name, c.dst.name); err != nil {
			return fmt.Errorf("workflow %q: %w", w.name, err)
		}
	}

	// Apply the workflow-level default mapper and record mapper-driven
	// (stateless) dependencies before sorting.
	foreign := make(map[string]mapper.Spec, w.nodes.Len())
	for pair := w.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if n.spec == nil && w.defaultMapper != nil {
			if err := n.Map(w.defaultMapper, nil); err != nil {
				return err
			}
		}
		foreign[n.name] = n.spec
		for _, upstream := range w.mapperSources(n) {
			if upstream == n.name {
				continue
			}
			if err := graph.AddEdge(upstream, n.name); err != nil {
				return fmt.Errorf("workflow %q: mapper of node %q: %w", w.name, n.name, err)
			}
		}
	}

	order, err := graph.TopoSort()
	if err != nil {
		return fmt.Errorf("workflow %q: %w", w.name, err)
	}
	w.sorted = make([]*Node, len(order))
	for i, name := range order {
		n, _ := w.nodes.Get(name)
		w.sorted[i] = n
	}

	// Propagate input containers along inherited mappers and build each
	// state space, producers first.
	for _, n := range w.sorted {
		if err := w.injectCarriers(n); err != nil {
			return err
		}
		if err := n.PrepareState(foreign); err != nil {
			return err
		}
		logger.Debug("State space prepared.",
			"node", n.name, "ndim", n.space.NDim(), "shape", n.space.Shape(), "states", n.space.Size())
	}

	for _, c := range w.conns {
		if err := w.resolveConnection(c); err != nil {
			return err
		}
	}

	w.prepared = true
	return nil
}

// mapperSources lists the other nodes a node's mapper references,
// either via foreign inheritance ("_other") or via a qualified leaf
// ("other.input").
func (w *Workflow) mapperSources(n *Node) []string {
	var srcs []string
	seen := make(map[string]bool)
	for _, leaf := range mapper.Inputs(n.spec) {
		name := leaf
		if other, ok := mapper.Name(leaf).Foreign(); ok {
			name = other
		} else if prefix, _, ok := strings.Cut(leaf, "."); ok {
			name = prefix
		} else {
			continue
		}
		if name == n.name || seen[name] {
			continue
		}
		if _, known := w.nodes.Get(name); known {
			seen[name] = true
			srcs = append(srcs, name)
		}
	}
	return srcs
}

// injectCarriers copies the input containers an inherited mapper
// references from their owning nodes into n, so n's state space can be
// built over them.
func (w *Workflow) injectCarriers(n *Node) error {
	for _, leaf := range mapper.Inputs(n.spec) {
		if other, ok := mapper.Name(leaf).Foreign(); ok {
			src, known := w.nodes.Get(other)
			if !known {
				return fmt.Errorf("node %q: %w: no node %q in workflow %q",
					n.name, mapper.ErrUnknownReference, other, w.name)
			}
			for pair := src.inputs.Oldest(); pair != nil; pair = pair.Next() {
				n.InjectInput(pair.Key, pair.Value)
			}
			continue
		}
		prefix, _, qualified := strings.Cut(leaf, ".")
		if !qualified || prefix == n.name {
			continue
		}
		src, known := w.nodes.Get(prefix)
		if !known {
			continue // not a node reference; Build reports it if unresolved
		}
		arr, ok := src.inputs.Get(leaf)
		if !ok {
			return fmt.Errorf("node %q: %w: node %q has no input %q",
				n.name, ErrMissingUpstreamInput, prefix, leaf)
		}
		n.InjectInput(leaf, arr)
	}
	return nil
}

// resolveConnection validates the referenced output and computes the
// axis projection from the upstream state space onto the downstream one.
func (w *Workflow) resolveConnection(c *Connection) error {
	if c.src.joinOutput(c.srcOutput) {
		c.fromJoin = true
		return nil
	}
	if !outputDeclared(c.src.runner, c.srcOutput) {
		return fmt.Errorf("%w: node %q declares no output %q (wanted by %q)",
			ErrMissingUpstreamInput, c.src.name, c.srcOutput, c.dst.name)
	}

	covered := make([]bool, c.src.space.NDim())
	c.pairs = c.pairs[:0]
	for pair := c.src.inputs.Oldest(); pair != nil; pair = pair.Next() {
		srcAxes, ok := c.src.space.Axes(pair.Key)
		if !ok {
			continue
		}
		dstAxes, ok := c.dst.space.Axes(pair.Key)
		if !ok {
			continue
		}
		for i := range srcAxes {
			c.pairs = append(c.pairs, [2]int{srcAxes[i], dstAxes[i]})
			covered[srcAxes[i]] = true
		}
	}
	for axis, ok := range covered {
		if !ok {
			return fmt.Errorf("%w: node %q consumes %q.%s one state at a time but its mapper "+
				"does not inherit axis %d of %q's state space; include \"_%s\" in the mapper or join the node",
				ErrMissingUpstreamInput, c.dst.name, c.src.name, c.srcOutput, axis, c.src.name, c.src.name)
		}
	}
	return nil
}

func outputDeclared(r Runner, output string) bool {
	for _, out := range r.Outputs() {
		if out == output {
			return true
		}
	}
	return false
}

// Finished reports whether every node, including join reductions, is
// complete.
func (w *Workflow) Finished() bool {
	for pair := w.nodes.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.Finished() {
			return false
		}
	}
	return true
}

// Result aggregates the declared output projections into the
// workflow's named result map. A per-state output contributes its full
// result list; a join output contributes a single-element list. Two
// projections sharing one alias are an ambiguous merge and fail without
// producing a partial result.
func (w *Workflow) Result() (*orderedmap.OrderedMap[string, []Result], error) {
	out := orderedmap.New[string, []Result]()
	for _, ref := range w.outputs {
		n, ok := w.nodes.Get(ref.Node)
		if !ok {
			return nil, fmt.Errorf("workflow %q: output projection names unknown node %q", w.name, ref.Node)
		}
		if _, dup := out.Get(ref.Alias); dup {
			return nil, fmt.Errorf("%w: alias %q used by more than one workflow output",
				ErrAmbiguousOutputAlias, ref.Alias)
		}
		if n.joinOutput(ref.Output) {
			r, ok := n.JoinResult(ref.Output)
			if !ok {
				return nil, fmt.Errorf("workflow %q: join result of %q.%s not available",
					w.name, ref.Node, ref.Output)
			}
			out.Set(ref.Alias, []Result{r})
			continue
		}
		if !outputDeclared(n.runner, ref.Output) {
			return nil, fmt.Errorf("%w: node %q declares no output %q",
				ErrMissingUpstreamInput, ref.Node, ref.Output)
		}
		out.Set(ref.Alias, n.Results(ref.Output))
	}
	return out, nil
}
