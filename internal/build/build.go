// Package build turns a loaded pipeline model into an executable
// workflow, resolving runner names against a registry.
package build

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/mapper"
	"github.com/vk/flowgrid/internal/registry"
)

// Build constructs an engine.Workflow from the model. The result is not
// yet prepared; the submitter prepares it before the first task runs.
func Build(ctx context.Context, model *config.Model, reg *registry.Registry) (*engine.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	if err := reg.Validate(model); err != nil {
		return nil, err
	}

	wfName := "pipeline"
	var wfOpts []engine.WorkflowOption
	if model.Workflow != nil {
		wfName = model.Workflow.Name
		if model.Workflow.WorkingDir != "" {
			wfOpts = append(wfOpts, engine.WithWorkflowDir(model.Workflow.WorkingDir))
		}
		if model.Workflow.Mapper != "" {
			spec, err := mapper.Parse(model.Workflow.Mapper)
			if err != nil {
				return nil, fmt.Errorf("workflow %q: %w", wfName, err)
			}
			wfOpts = append(wfOpts, engine.WithDefaultMapper(spec))
		}
	}
	wf := engine.NewWorkflow(wfName, wfOpts...)

	for _, nc := range model.Nodes {
		runner, _ := reg.Lookup(nc.Runner)
		opts := []engine.Option{engine.WithRunnerName(nc.Runner)}
		if nc.WorkingDir != "" {
			opts = append(opts, engine.WithWorkingDir(nc.WorkingDir))
		}
		n := engine.NewNode(nc.Name, runner, opts...)

		if nc.Mapper != "" {
			spec, err := mapper.Parse(nc.Mapper)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", nc.Name, err)
			}
			if err := n.Map(spec, nil); err != nil {
				return nil, err
			}
		}
		for _, in := range nc.Inputs {
			n.SetInput(in.Name, in.Value)
		}
		if nc.Join != nil {
			joinRunner, _ := reg.Lookup(nc.Join.Runner)
			n.Join(joinRunner, nc.Join.Runner, nc.Join.Input, nc.Join.From)
		}
		if err := wf.Add(n); err != nil {
			return nil, err
		}
		logger.Debug("Node added.", "node", nc.Name, "runner", nc.Runner, "mapper", nc.Mapper)
	}

	if model.Workflow != nil {
		for _, in := range model.Workflow.Inputs {
			wf.SetInput(in.Name, in.Value)
			for _, target := range in.To {
				node, input, err := splitRef(target)
				if err != nil {
					return nil, fmt.Errorf("workflow input %q: %w", in.Name, err)
				}
				if err := wf.ConnectWfInput(in.Name, node, input); err != nil {
					return nil, err
				}
			}
		}
		for _, out := range model.Workflow.Outputs {
			wf.AddOutput(out.Node, out.Value, out.As)
		}
	}

	for _, c := range model.Connections {
		srcNode, srcOutput, err := splitRef(c.From)
		if err != nil {
			return nil, fmt.Errorf("connect from %q: %w", c.From, err)
		}
		dstNode, dstInput, err := splitRef(c.To)
		if err != nil {
			return nil, fmt.Errorf("connect to %q: %w", c.To, err)
		}
		if err := wf.Connect(srcNode, srcOutput, dstNode, dstInput); err != nil {
			return nil, err
		}
	}

	return wf, nil
}

// splitRef splits "node.name" references used by connect blocks and
// input wiring targets.
func splitRef(ref string) (node, name string, err error) {
	node, name, ok := strings.Cut(ref, ".")
	if !ok || node == "" || name == "" {
		return "", "", fmt.Errorf("reference %q is not of the form \"node.name\"", ref)
	}
	return node, name, nil
}
