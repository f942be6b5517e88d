package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendMatchesVecSemantics(t *testing.T) {
	c := Empty[int]().Append(1).Append(2).Append(3)
	assert.Equal(t, []int{1, 2, 3}, c.AsVec())
}

func TestConcatMatchesVecSemantics(t *testing.T) {
	a := Empty[int]().Append(1).Append(2)
	b := Empty[int]().Append(3).Append(4)
	assert.Equal(t, []int{1, 2, 3, 4}, a.Concat(b).AsVec())
}

func TestConcatWithEmptyIsIdentity(t *testing.T) {
	a := Empty[int]().Append(1).Append(2)
	assert.Equal(t, a.AsVec(), a.Concat(Empty[int]()).AsVec())
	assert.Equal(t, a.AsVec(), Empty[int]().Concat(a).AsVec())
}

func TestPrepend(t *testing.T) {
	c := Empty[int]().Prepend(1).Prepend(2)
	assert.Equal(t, []int{2, 1}, c.AsVec())
}

func TestTransform(t *testing.T) {
	c := FromSlice([]int{1, 2, 3}).Transform(func(a int) int { return a * 2 })
	assert.Equal(t, []int{2, 4, 6}, c.AsVec())
}

func TestTransformFlatten(t *testing.T) {
	c := FromSlice([]int{1, 2}).TransformFlatten(func(a int) Chunk[int] {
		return FromSlice([]int{a, a * 10})
	})
	assert.Equal(t, []int{1, 10, 2, 20}, c.AsVec())
}

func TestMaterializeRoundTrips(t *testing.T) {
	c := Empty[int]().Append(1).Append(2).Append(3)
	m := c.Materialize()
	assert.Equal(t, c.AsVec(), m.AsVec())
}

func TestIsNull(t *testing.T) {
	assert.True(t, Empty[int]().IsNull())
	assert.False(t, New(1).IsNull())
	assert.True(t, FromSlice[int](nil).IsNull())
}
