package arith

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/registry"
)

func invoke(t *testing.T, name string, args map[string]cty.Value) (cty.Value, error) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, (&Module{}).Register(reg))
	runner, ok := reg.Lookup(name)
	require.True(t, ok, "runner %q not registered", name)
	outputs, err := runner.Run(context.Background(), args)
	if err != nil {
		return cty.NilVal, err
	}
	require.Len(t, outputs, len(runner.(*engine.Func).Outputs()))
	return outputs[0], nil
}

func TestRegister(t *testing.T) {
	reg := registry.New()
	require.NoError(t, (&Module{}).Register(reg))
	assert.ElementsMatch(t, []string{"const", "add", "mul", "shift", "sum"}, reg.Names())
	assert.Error(t, (&Module{}).Register(reg), "re-registration must collide")
}

func TestConst(t *testing.T) {
	v, err := invoke(t, "const", map[string]cty.Value{"value": cty.StringVal("x")})
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.StringVal("x")))

	_, err = invoke(t, "const", nil)
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	v, err := invoke(t, "add", map[string]cty.Value{
		"a": cty.NumberIntVal(3),
		"b": cty.NumberIntVal(2),
	})
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(5)))

	_, err = invoke(t, "add", map[string]cty.Value{
		"a": cty.StringVal("3"),
		"b": cty.NumberIntVal(2),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want number")
}

func TestMul(t *testing.T) {
	v, err := invoke(t, "mul", map[string]cty.Value{
		"a": cty.NumberIntVal(3),
		"b": cty.NumberIntVal(4),
	})
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(12)))
}

func TestShift(t *testing.T) {
	t.Run("default offset", func(t *testing.T) {
		v, err := invoke(t, "shift", map[string]cty.Value{"a": cty.NumberIntVal(3)})
		require.NoError(t, err)
		assert.True(t, v.RawEquals(cty.NumberIntVal(5)))
	})
	t.Run("explicit offset", func(t *testing.T) {
		v, err := invoke(t, "shift", map[string]cty.Value{
			"a":  cty.NumberIntVal(3),
			"by": cty.NumberIntVal(10),
		})
		require.NoError(t, err)
		assert.True(t, v.RawEquals(cty.NumberIntVal(13)))
	})
}

func TestSum(t *testing.T) {
	v, err := invoke(t, "sum", map[string]cty.Value{
		"vals": cty.TupleVal([]cty.Value{
			cty.NumberIntVal(1), cty.NumberIntVal(2), cty.NumberIntVal(3),
		}),
	})
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(6)))

	t.Run("empty collection", func(t *testing.T) {
		v, err := invoke(t, "sum", map[string]cty.Value{"vals": cty.EmptyTupleVal})
		require.NoError(t, err)
		assert.True(t, v.RawEquals(cty.Zero))
	})
	t.Run("not a collection", func(t *testing.T) {
		_, err := invoke(t, "sum", map[string]cty.Value{"vals": cty.NumberIntVal(1)})
		assert.Error(t, err)
	})
	t.Run("non-number element", func(t *testing.T) {
		_, err := invoke(t, "sum", map[string]cty.Value{
			"vals": cty.TupleVal([]cty.Value{cty.StringVal("x")}),
		})
		assert.Error(t, err)
	})
}
