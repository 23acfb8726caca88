package mapper

import "fmt"

// Op identifies the kind of an RPN token.
type Op uint8

const (
	// OpName pushes an input reference onto the evaluation stack.
	OpName Op = iota
	// OpZip combines the two topmost stack entries element-wise.
	OpZip
	// OpOuter combines the two topmost stack entries as a Cartesian product.
	OpOuter
)

// Token is one element of a reverse-polish mapper sequence.
type Token struct {
	Op   Op
	Name string // set for OpName only
}

func (t Token) String() string {
	switch t.Op {
	case OpZip:
		return "."
	case OpOuter:
		return "*"
	default:
		return t.Name
	}
}

// ToRPN linearizes the spec into postfix order: operands depth-first,
// left then right, operator after both. Foreign references ("_other")
// are substituted with the referenced node's own (already namespaced)
// mapper from the foreign table before emission; recursive references
// are rejected. A nil spec yields an empty sequence.
func ToRPN(s Spec, foreign map[string]Spec) ([]Token, error) {
	if s == nil {
		return nil, nil
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	var tokens []Token
	expanding := make(map[string]bool)

	var emit func(Spec) error
	emit = func(s Spec) error {
		switch v := s.(type) {
		case Name:
			node, ok := v.Foreign()
			if !ok {
				tokens = append(tokens, Token{Op: OpName, Name: string(v)})
				return nil
			}
			sub, ok := foreign[node]
			if !ok || sub == nil {
				return fmt.Errorf("%w: no mapper known for node %q", ErrUnknownReference, node)
			}
			if expanding[node] {
				return fmt.Errorf("%w: mapper of node %q references itself", ErrMalformed, node)
			}
			expanding[node] = true
			defer delete(expanding, node)
			// A foreign node's mapper is stored namespaced, so every leaf
			// already reads "node.input". Qualify any that do not, to cover
			// nodes whose mappers were built outside a workflow.
			return emit(Rename(sub, node))
		case Zip:
			if err := emit(v.L); err != nil {
				return err
			}
			if err := emit(v.R); err != nil {
				return err
			}
			tokens = append(tokens, Token{Op: OpZip})
			return nil
		case Outer:
			if err := emit(v.L); err != nil {
				return err
			}
			if err := emit(v.R); err != nil {
				return err
			}
			tokens = append(tokens, Token{Op: OpOuter})
			return nil
		default:
			return fmt.Errorf("%w: unexpected spec type %T", ErrMalformed, s)
		}
	}
	if err := emit(s); err != nil {
		return nil, err
	}
	return tokens, nil
}
