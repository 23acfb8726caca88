package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/flowgrid/internal/ctxlog"
)

// hclFile mirrors the top-level HCL grammar for gohcl decoding.
type hclFile struct {
	Workflow *hclWorkflow  `hcl:"workflow,block"`
	Nodes    []*hclNode    `hcl:"node,block"`
	Connects []*hclConnect `hcl:"connect,block"`
}

type hclWorkflow struct {
	Name       string       `hcl:"name,label"`
	WorkingDir *string      `hcl:"workingdir,optional"`
	Mapper     *string      `hcl:"mapper,optional"`
	Inputs     []*hclInput  `hcl:"input,block"`
	Outputs    []*hclOutput `hcl:"output,block"`
}

type hclNode struct {
	Name       string      `hcl:"name,label"`
	Runner     string      `hcl:"runner"`
	Mapper     *string     `hcl:"mapper,optional"`
	WorkingDir *string     `hcl:"workingdir,optional"`
	Inputs     []*hclInput `hcl:"input,block"`
	Join       *hclJoin    `hcl:"join,block"`
}

type hclInput struct {
	Name  string         `hcl:"name,label"`
	Value hcl.Expression `hcl:"value"`
	To    []string       `hcl:"to,optional"`
}

type hclJoin struct {
	Runner string `hcl:"runner"`
	Input  string `hcl:"input"`
	From   string `hcl:"from"`
}

type hclOutput struct {
	Node  string  `hcl:"node"`
	Value string  `hcl:"value"`
	As    *string `hcl:"as,optional"`
}

type hclConnect struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// Load reads every .hcl file among the given paths (a path may be a
// single file or a directory) and merges them into one Model. Input
// values must be literal expressions; they are evaluated with no
// variable scope.
func Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}

	parser := hclparse.NewParser()
	model := &Model{}
	for _, path := range files {
		logger.Debug("Parsing pipeline file.", "path", path)
		f, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", path, diags)
		}
		var raw hclFile
		if diags := gohcl.DecodeBody(f.Body, nil, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", path, diags)
		}
		if err := merge(model, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return model, nil
}

func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.hcl"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

func merge(model *Model, raw *hclFile) error {
	if raw.Workflow != nil {
		if model.Workflow != nil {
			return fmt.Errorf("more than one workflow block defined")
		}
		wf := &Workflow{Name: raw.Workflow.Name}
		if raw.Workflow.WorkingDir != nil {
			wf.WorkingDir = *raw.Workflow.WorkingDir
		}
		if raw.Workflow.Mapper != nil {
			wf.Mapper = *raw.Workflow.Mapper
		}
		for _, in := range raw.Workflow.Inputs {
			converted, err := literal(in)
			if err != nil {
				return err
			}
			wf.Inputs = append(wf.Inputs, converted)
		}
		for _, out := range raw.Workflow.Outputs {
			o := &Output{Node: out.Node, Value: out.Value, As: out.Value}
			if out.As != nil {
				o.As = *out.As
			}
			wf.Outputs = append(wf.Outputs, o)
		}
		model.Workflow = wf
	}

	for _, n := range raw.Nodes {
		node := &Node{Name: n.Name, Runner: n.Runner}
		if n.Mapper != nil {
			node.Mapper = *n.Mapper
		}
		if n.WorkingDir != nil {
			node.WorkingDir = *n.WorkingDir
		}
		for _, in := range n.Inputs {
			converted, err := literal(in)
			if err != nil {
				return fmt.Errorf("node %q: %w", n.Name, err)
			}
			node.Inputs = append(node.Inputs, converted)
		}
		if n.Join != nil {
			node.Join = &Join{Runner: n.Join.Runner, Input: n.Join.Input, From: n.Join.From}
		}
		model.Nodes = append(model.Nodes, node)
	}

	for _, c := range raw.Connects {
		model.Connections = append(model.Connections, &Connection{From: c.From, To: c.To})
	}
	return nil
}

// literal evaluates an input value expression with an empty scope.
func literal(in *hclInput) (*Input, error) {
	v, diags := in.Value.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("input %q: %w", in.Name, diags)
	}
	return &Input{Name: in.Name, Value: v, To: in.To}, nil
}
