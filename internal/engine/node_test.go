package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/mapper"
)

func nums(xs ...int) cty.Value {
	vals := make([]cty.Value, len(xs))
	for i, x := range xs {
		vals[i] = cty.NumberIntVal(int64(x))
	}
	return cty.TupleVal(vals)
}

func addRunner() engine.Runner {
	return engine.NewFunc(func(_ context.Context, args map[string]cty.Value) ([]cty.Value, error) {
		return []cty.Value{args["a"].Add(args["b"])}, nil
	}, "out")
}

func shiftRunner() engine.Runner {
	return engine.NewFunc(func(_ context.Context, args map[string]cty.Value) ([]cty.Value, error) {
		return []cty.Value{args["a"].Add(cty.NumberIntVal(2))}, nil
	}, "out")
}

func sumRunner() engine.Runner {
	return engine.NewFunc(func(_ context.Context, args map[string]cty.Value) ([]cty.Value, error) {
		total := cty.Zero
		for it := args["vals"].ElementIterator(); it.Next(); {
			_, v := it.Element()
			total = total.Add(v)
		}
		return []cty.Value{total}, nil
	}, "total")
}

// runAll executes a node's tasks in state-rank order.
func runAll(t *testing.T, n *engine.Node) {
	t.Helper()
	for _, task := range n.Tasks() {
		require.True(t, task.Ready())
		require.NoError(t, task.Run(context.Background()))
	}
}

func resultInts(t *testing.T, results []engine.Result) []int {
	t.Helper()
	out := make([]int, len(results))
	for i, r := range results {
		bf := r.Value.AsBigFloat()
		x, _ := bf.Int64()
		out[i] = int(x)
	}
	return out
}

func TestNodeZipExpansion(t *testing.T) {
	n := engine.NewNode("n", addRunner())
	require.NoError(t, n.Map(mapper.MustParse("(a,b)"), map[string]cty.Value{
		"a": nums(3, 5),
		"b": nums(2, 1),
	}))
	require.NoError(t, n.PrepareState(nil))
	require.Equal(t, 2, n.Space().Size())

	runAll(t, n)
	assert.True(t, n.Finished())

	results := n.Results("out")
	require.Len(t, results, 2)
	assert.Equal(t, []int{5, 6}, resultInts(t, results))
	assert.True(t, results[0].State["n.a"].RawEquals(cty.NumberIntVal(3)))
	assert.True(t, results[0].State["n.b"].RawEquals(cty.NumberIntVal(2)))
}

func TestNodeOuterExpansion(t *testing.T) {
	n := engine.NewNode("n", addRunner())
	require.NoError(t, n.Map(mapper.MustParse("[a,b]"), map[string]cty.Value{
		"a": nums(3, 5),
		"b": nums(2, 1),
	}))
	require.NoError(t, n.PrepareState(nil))
	require.Equal(t, 4, n.Space().Size())

	runAll(t, n)
	results := n.Results("out")
	require.Len(t, results, 4)
	// Row-major over axes (a, b): (3,2) (3,1) (5,2) (5,1).
	assert.Equal(t, []int{5, 4, 7, 6}, resultInts(t, results))
}

func TestNodeScalarInput(t *testing.T) {
	t.Run("mapped", func(t *testing.T) {
		n := engine.NewNode("n", shiftRunner())
		require.NoError(t, n.Map(mapper.MustParse("a"), map[string]cty.Value{
			"a": cty.NumberIntVal(3),
		}))
		require.NoError(t, n.PrepareState(nil))
		require.Equal(t, 1, n.Space().Size())

		runAll(t, n)
		results := n.Results("out")
		require.Len(t, results, 1)
		assert.Equal(t, []int{5}, resultInts(t, results))
	})

	t.Run("no mapper at all", func(t *testing.T) {
		n := engine.NewNode("n", shiftRunner())
		n.SetInput("a", cty.NumberIntVal(3))
		require.NoError(t, n.PrepareState(nil))
		require.Equal(t, 1, n.Space().Size())

		runAll(t, n)
		results := n.Results("out")
		require.Len(t, results, 1)
		assert.Equal(t, []int{5}, resultInts(t, results))
		assert.True(t, results[0].State["n.a"].RawEquals(cty.NumberIntVal(3)))
	})
}

func TestNodeJoinReduction(t *testing.T) {
	n := engine.NewNode("n", shiftRunner())
	require.NoError(t, n.Map(mapper.MustParse("a"), map[string]cty.Value{
		"a": nums(1, 2, 3),
	}))
	n.Join(sumRunner(), "", "vals", "out")
	require.NoError(t, n.PrepareState(nil))

	join := n.JoinTask()
	assert.False(t, join.Ready(), "join must wait for every per-state task")

	runAll(t, n)
	require.True(t, join.Ready())
	require.NoError(t, join.Run(context.Background()))

	r, ok := n.JoinResult("total")
	require.True(t, ok)
	// (1+2) + (2+2) + (3+2)
	assert.True(t, r.Value.RawEquals(cty.NumberIntVal(12)))
	assert.True(t, n.Finished())
}

func TestTaskOutputArityMismatch(t *testing.T) {
	bad := engine.NewFunc(func(_ context.Context, _ map[string]cty.Value) ([]cty.Value, error) {
		return []cty.Value{cty.True}, nil
	}, "x", "y")
	n := engine.NewNode("n", bad)
	require.NoError(t, n.Map(mapper.MustParse("a"), map[string]cty.Value{"a": nums(1)}))
	require.NoError(t, n.PrepareState(nil))

	err := n.Tasks()[0].Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrOutputArityMismatch)
}

func TestTaskID(t *testing.T) {
	n := engine.NewNode("n", addRunner())
	require.NoError(t, n.Map(mapper.MustParse("[a,b]"), map[string]cty.Value{
		"a": nums(1, 2),
		"b": nums(1, 2),
	}))
	n.Join(sumRunner(), "", "vals", "out")
	require.NoError(t, n.PrepareState(nil))

	tasks := n.Tasks()
	assert.Equal(t, "n[0,0]", tasks[0].ID())
	assert.Equal(t, "n[1,1]", tasks[3].ID())
	assert.Equal(t, "n.join", n.JoinTask().ID())
}

func TestTaskInvocationNeedsRunnerName(t *testing.T) {
	n := engine.NewNode("n", shiftRunner())
	require.NoError(t, n.Map(mapper.MustParse("a"), map[string]cty.Value{"a": nums(1)}))
	require.NoError(t, n.PrepareState(nil))
	_, _, err := n.Tasks()[0].Invocation()
	require.Error(t, err)

	named := engine.NewNode("m", shiftRunner(), engine.WithRunnerName("shift"))
	require.NoError(t, named.Map(mapper.MustParse("a"), map[string]cty.Value{"a": nums(7)}))
	require.NoError(t, named.PrepareState(nil))
	name, args, err := named.Tasks()[0].Invocation()
	require.NoError(t, err)
	assert.Equal(t, "shift", name)
	assert.True(t, args["a"].RawEquals(cty.NumberIntVal(7)))
}

func TestTaskComplete(t *testing.T) {
	n := engine.NewNode("n", shiftRunner())
	require.NoError(t, n.Map(mapper.MustParse("a"), map[string]cty.Value{"a": nums(4)}))
	require.NoError(t, n.PrepareState(nil))

	task := n.Tasks()[0]
	require.NoError(t, task.Complete([]cty.Value{cty.NumberIntVal(6)}))
	v, ok := n.ResultAt("out", 0)
	require.True(t, ok)
	assert.True(t, v.RawEquals(cty.NumberIntVal(6)))
}
