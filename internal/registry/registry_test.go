package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/engine"
)

func noop() engine.Runner {
	return engine.NewFunc(func(_ context.Context, _ map[string]cty.Value) ([]cty.Value, error) {
		return []cty.Value{cty.True}, nil
	}, "out")
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("a", noop()))
	require.NoError(t, r.Register("b", noop()))

	got, ok := r.Lookup("a")
	assert.True(t, ok)
	assert.NotNil(t, got)

	_, ok = r.Lookup("ghost")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("a", noop()))
	assert.Error(t, r.Register("a", noop()))
}

func TestValidate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("shift", noop()))
	require.NoError(t, r.Register("sum", noop()))

	t.Run("all runners known", func(t *testing.T) {
		model := &config.Model{Nodes: []*config.Node{
			{Name: "n", Runner: "shift", Join: &config.Join{Runner: "sum"}},
		}}
		assert.NoError(t, r.Validate(model))
	})

	t.Run("unknown node runner", func(t *testing.T) {
		model := &config.Model{Nodes: []*config.Node{{Name: "n", Runner: "ghost"}}}
		err := r.Validate(model)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("unknown join runner", func(t *testing.T) {
		model := &config.Model{Nodes: []*config.Node{
			{Name: "n", Runner: "shift", Join: &config.Join{Runner: "ghost"}},
		}}
		assert.Error(t, r.Validate(model))
	})
}
