package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func nums(xs ...int) cty.Value {
	vals := make([]cty.Value, len(xs))
	for i, x := range xs {
		vals[i] = cty.NumberIntVal(int64(x))
	}
	return cty.TupleVal(vals)
}

func TestFromCty(t *testing.T) {
	t.Run("flat tuple", func(t *testing.T) {
		a := FromCty(nums(3, 5))
		assert.Equal(t, []int{2}, a.Shape())
		assert.Equal(t, 2, a.Size())
		assert.True(t, a.At([]int{1}).RawEquals(cty.NumberIntVal(5)))
	})

	t.Run("nested rectangular tuple", func(t *testing.T) {
		a := FromCty(cty.TupleVal([]cty.Value{nums(1, 2, 3), nums(4, 5, 6)}))
		assert.Equal(t, []int{2, 3}, a.Shape())
		assert.True(t, a.At([]int{1, 0}).RawEquals(cty.NumberIntVal(4)))
	})

	t.Run("ragged nesting stops the shape", func(t *testing.T) {
		a := FromCty(cty.TupleVal([]cty.Value{nums(1, 2), nums(3)}))
		assert.Equal(t, []int{2}, a.Shape())
		assert.True(t, a.At([]int{1}).RawEquals(nums(3)))
	})

	t.Run("list type", func(t *testing.T) {
		a := FromCty(cty.ListVal([]cty.Value{cty.StringVal("x"), cty.StringVal("y")}))
		assert.Equal(t, []int{2}, a.Shape())
		assert.True(t, a.At([]int{0}).RawEquals(cty.StringVal("x")))
	})

	t.Run("non-collection is a scalar", func(t *testing.T) {
		a := FromCty(cty.NumberIntVal(3))
		assert.Equal(t, 0, a.NDim())
		assert.Equal(t, 1, a.Size())
		assert.True(t, a.At(nil).RawEquals(cty.NumberIntVal(3)))
	})

	t.Run("empty tuple", func(t *testing.T) {
		a := FromCty(cty.EmptyTupleVal)
		assert.Equal(t, []int{0}, a.Shape())
		assert.Equal(t, 0, a.Size())
	})
}

func TestScalar(t *testing.T) {
	a := Scalar(cty.StringVal("v"))
	assert.Equal(t, 0, a.NDim())
	assert.True(t, a.Value().RawEquals(cty.StringVal("v")))
}

func TestFromValues(t *testing.T) {
	t.Run("rebuilds the whole container", func(t *testing.T) {
		a, err := FromValues([]int{2, 2}, []cty.Value{
			cty.NumberIntVal(1), cty.NumberIntVal(2),
			cty.NumberIntVal(3), cty.NumberIntVal(4),
		})
		require.NoError(t, err)
		want := cty.TupleVal([]cty.Value{nums(1, 2), nums(3, 4)})
		assert.True(t, a.Value().RawEquals(want))
		assert.True(t, a.At([]int{1, 0}).RawEquals(cty.NumberIntVal(3)))
	})

	t.Run("element count must match the shape", func(t *testing.T) {
		_, err := FromValues([]int{3}, []cty.Value{cty.NumberIntVal(1)})
		require.Error(t, err)
	})
}
