// Package mapper implements the declarative mapping expressions that
// describe how a node's inputs combine into a multi-dimensional space of
// task instances.
//
// A mapper is a small expression tree with three constructors: a Name
// leaf referencing an input, the zip combinator "(l,r)" pairing two
// equally-shaped inputs element-wise, and the outer combinator "[l,r]"
// taking the Cartesian product of two inputs' index spaces. A leaf of
// the form "_other" substitutes the mapper declared by another node, so
// a downstream node can inherit an upstream node's state space.
package mapper

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed reports a mapper that is not built from the
	// name/zip/outer grammar.
	ErrMalformed = errors.New("malformed mapper")

	// ErrUnknownReference reports a foreign-node reference that does not
	// resolve to a known node's mapper.
	ErrUnknownReference = errors.New("unknown mapper reference")
)

// Spec is a node in a mapper expression tree.
type Spec interface {
	fmt.Stringer
	isSpec()
}

// Name is a leaf referencing a single input, or a foreign node when it
// starts with "_".
type Name string

// Zip combines two equally-shaped operands element-wise along shared axes.
type Zip struct {
	L, R Spec
}

// Outer combines two operands' axes independently, producing the
// Cartesian product of their index spaces.
type Outer struct {
	L, R Spec
}

func (Name) isSpec()  {}
func (Zip) isSpec()   {}
func (Outer) isSpec() {}

func (n Name) String() string { return string(n) }

func (z Zip) String() string {
	return "(" + specString(z.L) + "," + specString(z.R) + ")"
}

func (o Outer) String() string {
	return "[" + specString(o.L) + "," + specString(o.R) + "]"
}

func specString(s Spec) string {
	if s == nil {
		return "<nil>"
	}
	return s.String()
}

// Foreign reports whether the leaf references another node's mapper, and
// if so the node's name.
func (n Name) Foreign() (string, bool) {
	if strings.HasPrefix(string(n), "_") {
		return strings.TrimPrefix(string(n), "_"), true
	}
	return "", false
}

// Validate walks the spec and rejects anything outside the
// name/zip/outer grammar: nil operands, empty names, or a Name that is
// neither qualified nor a plain identifier.
func Validate(s Spec) error {
	switch v := s.(type) {
	case nil:
		return fmt.Errorf("%w: nil spec", ErrMalformed)
	case Name:
		if v == "" || v == "_" {
			return fmt.Errorf("%w: empty name", ErrMalformed)
		}
		return nil
	case Zip:
		if v.L == nil || v.R == nil {
			return fmt.Errorf("%w: zip combinator needs two operands", ErrMalformed)
		}
		if err := Validate(v.L); err != nil {
			return err
		}
		return Validate(v.R)
	case Outer:
		if v.L == nil || v.R == nil {
			return fmt.Errorf("%w: outer combinator needs two operands", ErrMalformed)
		}
		if err := Validate(v.L); err != nil {
			return err
		}
		return Validate(v.R)
	default:
		return fmt.Errorf("%w: unexpected spec type %T", ErrMalformed, s)
	}
}

// Rename qualifies every plain leaf with the owning node's name,
// producing "node.leaf". Leaves that already contain a dot or reference
// a foreign node ("_other") are left untouched. This is how a node's own
// mapper gets namespaced once it joins a workflow.
func Rename(s Spec, node string) Spec {
	switch v := s.(type) {
	case Name:
		if strings.Contains(string(v), ".") || strings.HasPrefix(string(v), "_") {
			return v
		}
		return Name(node + "." + string(v))
	case Zip:
		return Zip{L: Rename(v.L, node), R: Rename(v.R, node)}
	case Outer:
		return Outer{L: Rename(v.L, node), R: Rename(v.R, node)}
	default:
		return s
	}
}

// Inputs returns the leaf names of the spec in declaration order.
// Foreign references are returned as-is ("_other").
func Inputs(s Spec) []string {
	var out []string
	var walk func(Spec)
	walk = func(s Spec) {
		switch v := s.(type) {
		case Name:
			out = append(out, string(v))
		case Zip:
			walk(v.L)
			walk(v.R)
		case Outer:
			walk(v.L)
			walk(v.R)
		}
	}
	walk(s)
	return out
}
