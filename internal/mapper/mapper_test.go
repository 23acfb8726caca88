package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("single name", func(t *testing.T) {
		spec, err := Parse("a")
		require.NoError(t, err)
		assert.Equal(t, Name("a"), spec)
	})

	t.Run("qualified and foreign names", func(t *testing.T) {
		spec, err := Parse("(na.a, _nb)")
		require.NoError(t, err)
		assert.Equal(t, Zip{L: Name("na.a"), R: Name("_nb")}, spec)
	})

	t.Run("nested combinators", func(t *testing.T) {
		spec, err := Parse("[a,(b,c)]")
		require.NoError(t, err)
		assert.Equal(t, Outer{L: Name("a"), R: Zip{L: Name("b"), R: Name("c")}}, spec)
	})

	t.Run("empty input yields no mapper", func(t *testing.T) {
		spec, err := Parse("   ")
		require.NoError(t, err)
		assert.Nil(t, spec)
	})

	t.Run("malformed inputs", func(t *testing.T) {
		for _, text := range []string{"(a,b", "[a,b)", "(a)", "a b", "(,b)", "_", "(a,b),c"} {
			_, err := Parse(text)
			assert.ErrorIs(t, err, ErrMalformed, "input %q", text)
		}
	})
}

func TestSpecString(t *testing.T) {
	spec := Outer{L: Zip{L: Name("a"), R: Name("b")}, R: Name("c")}
	assert.Equal(t, "[(a,b),c]", spec.String())
}

func TestRename(t *testing.T) {
	spec := MustParse("[(a, nb.x), _nc]")
	renamed := Rename(spec, "na")
	assert.Equal(t, MustParse("[(na.a, nb.x), _nc]"), renamed)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(MustParse("[a,(b,c)]")))
	assert.ErrorIs(t, Validate(Zip{L: Name("a")}), ErrMalformed)
	assert.ErrorIs(t, Validate(Outer{L: Name(""), R: Name("b")}), ErrMalformed)
	assert.ErrorIs(t, Validate(nil), ErrMalformed)
}

func TestToRPN(t *testing.T) {
	t.Run("postfix order", func(t *testing.T) {
		rpn, err := ToRPN(MustParse("[(a,b),c]"), nil)
		require.NoError(t, err)
		require.Len(t, rpn, 5)
		assert.Equal(t, "a", rpn[0].Name)
		assert.Equal(t, "b", rpn[1].Name)
		assert.Equal(t, OpZip, rpn[2].Op)
		assert.Equal(t, "c", rpn[3].Name)
		assert.Equal(t, OpOuter, rpn[4].Op)
	})

	t.Run("nil spec yields empty sequence", func(t *testing.T) {
		rpn, err := ToRPN(nil, nil)
		require.NoError(t, err)
		assert.Empty(t, rpn)
	})

	t.Run("foreign reference substitutes the namespaced mapper", func(t *testing.T) {
		foreign := map[string]Spec{
			"na": MustParse("(na.a, na.c)"),
		}
		rpn, err := ToRPN(MustParse("(_na, nb.b)"), foreign)
		require.NoError(t, err)
		var names []string
		ops := 0
		for _, tok := range rpn {
			if tok.Op == OpName {
				names = append(names, tok.Name)
			} else {
				ops++
			}
		}
		assert.Equal(t, []string{"na.a", "na.c", "nb.b"}, names)
		assert.Equal(t, 2, ops)
	})

	t.Run("foreign mapper with plain leaves is qualified on the way in", func(t *testing.T) {
		foreign := map[string]Spec{"na": MustParse("a")}
		rpn, err := ToRPN(MustParse("(_na, nb.b)"), foreign)
		require.NoError(t, err)
		assert.Equal(t, "na.a", rpn[0].Name)
	})

	t.Run("unknown foreign node", func(t *testing.T) {
		_, err := ToRPN(MustParse("(_ghost, b)"), nil)
		assert.ErrorIs(t, err, ErrUnknownReference)
	})

	t.Run("recursive foreign reference", func(t *testing.T) {
		foreign := map[string]Spec{"na": Name("_na")}
		_, err := ToRPN(Name("_na"), foreign)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

// A valid RPN sequence leaves exactly one value on an evaluation stack,
// i.e. it has one more operand than operators.
func TestRPNBalanced(t *testing.T) {
	for _, text := range []string{
		"a",
		"(a,b)",
		"[a,b]",
		"[(a,b),c]",
		"(a,[b,c])",
		"[[a,b],[c,d]]",
		"((a,b),(c,d))",
	} {
		rpn, err := ToRPN(MustParse(text), nil)
		require.NoError(t, err, "spec %q", text)
		operands, operators := 0, 0
		for _, tok := range rpn {
			if tok.Op == OpName {
				operands++
			} else {
				operators++
			}
		}
		assert.Equal(t, 1, operands-operators, "spec %q", text)
	}
}

func TestInputs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "_nc"}, Inputs(MustParse("[(a,b),_nc]")))
	assert.Nil(t, Inputs(nil))
}
