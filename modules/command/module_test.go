package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/registry"
)

func run(t *testing.T, args map[string]cty.Value) ([]cty.Value, error) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, (&Module{}).Register(reg))
	runner, ok := reg.Lookup("command")
	require.True(t, ok)
	return runner.Run(context.Background(), args)
}

func TestRunCommand(t *testing.T) {
	outputs, err := run(t, map[string]cty.Value{
		"path": cty.StringVal("echo"),
		"args": cty.TupleVal([]cty.Value{cty.StringVal("hello")}),
	})
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "hello\n", outputs[0].AsString())
	assert.True(t, outputs[1].RawEquals(cty.NumberIntVal(0)))
}

func TestRunCommandNonZeroExit(t *testing.T) {
	outputs, err := run(t, map[string]cty.Value{
		"path": cty.StringVal("sh"),
		"args": cty.TupleVal([]cty.Value{cty.StringVal("-c"), cty.StringVal("exit 3")}),
	})
	require.NoError(t, err, "a non-zero exit is a result, not an error")
	assert.True(t, outputs[1].RawEquals(cty.NumberIntVal(3)))
}

func TestRunCommandWorkingDir(t *testing.T) {
	dir := t.TempDir()
	outputs, err := run(t, map[string]cty.Value{
		"path": cty.StringVal("pwd"),
		"dir":  cty.StringVal(dir),
	})
	require.NoError(t, err)
	assert.Contains(t, outputs[0].AsString(), dir)
}

func TestRunCommandBadArgs(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := run(t, nil)
		assert.Error(t, err)
	})
	t.Run("non-string args", func(t *testing.T) {
		_, err := run(t, map[string]cty.Value{
			"path": cty.StringVal("echo"),
			"args": cty.TupleVal([]cty.Value{cty.NumberIntVal(1)}),
		})
		assert.Error(t, err)
	})
	t.Run("missing binary", func(t *testing.T) {
		_, err := run(t, map[string]cty.Value{
			"path": cty.StringVal("definitely-not-a-binary-xyz"),
		})
		assert.Error(t, err)
	})
}
