// Package config loads declarative pipeline definitions from HCL files
// into a format-agnostic model the builder turns into a workflow.
package config

import "github.com/zclconf/go-cty/cty"

// Model is the unified representation of one pipeline definition.
type Model struct {
	Workflow    *Workflow
	Nodes       []*Node
	Connections []*Connection
}

// Workflow represents the `workflow` block: workflow-level inputs, the
// optional default mapper, and the output projection.
type Workflow struct {
	Name       string
	WorkingDir string
	Mapper     string
	Inputs     []*Input
	Outputs    []*Output
}

// Input is a named literal value, with optional wiring targets
// ("node.input") for workflow-level inputs.
type Input struct {
	Name  string
	Value cty.Value
	To    []string
}

// Node represents a `node` block: which runner it invokes, its mapper
// expression, its literal inputs, and an optional join reduction.
type Node struct {
	Name       string
	Runner     string
	Mapper     string
	WorkingDir string
	Inputs     []*Input
	Join       *Join
}

// Join marks a node as a reduction: once all its states finish, Runner
// is invoked once with the ordered list of From results bound to Input.
type Join struct {
	Runner string
	Input  string
	From   string
}

// Output projects a node output ("Value") into the workflow result set
// under alias As (default: the output name).
type Output struct {
	Node  string
	Value string
	As    string
}

// Connection wires an upstream output to a downstream input, both in
// "node.name" form.
type Connection struct {
	From string
	To   string
}
