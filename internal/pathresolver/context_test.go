package pathresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawValueNavigatesArgsValueHeaders(t *testing.T) {
	ctx := New()
	ctx.Args = map[string]Value{"id": float64(42)}
	ctx.Value = map[string]Value{"user": map[string]Value{"name": "alice"}}
	ctx.Headers["Authorization"] = "Bearer xyz"

	v, ok := ctx.RawValue([]string{"args", "id"})
	assert.True(t, ok)
	assert.Equal(t, float64(42), v)

	s, ok := ctx.PathString([]string{"args", "id"})
	assert.True(t, ok)
	assert.Equal(t, "42", s)

	v, ok = ctx.RawValue([]string{"value", "user", "name"})
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	s, ok = ctx.PathString([]string{"headers", "Authorization"})
	assert.True(t, ok)
	assert.Equal(t, "Bearer xyz", s)
}

func TestMissingSegmentYieldsNone(t *testing.T) {
	ctx := New()
	ctx.Value = map[string]Value{"user": map[string]Value{}}

	_, ok := ctx.RawValue([]string{"value", "user", "missing"})
	assert.False(t, ok)

	_, ok = ctx.RawValue([]string{"unknown_root", "x"})
	assert.False(t, ok)
}

func TestIntegerSegmentIndexesSequences(t *testing.T) {
	ctx := New()
	ctx.Value = []Value{"a", "b", "c"}

	v, ok := ctx.RawValue([]string{"value", "1"})
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = ctx.RawValue([]string{"value", "5"})
	assert.False(t, ok)
}

func TestStringOfPrimitiveVsObject(t *testing.T) {
	assert.Equal(t, "42", StringOf(float64(42)))
	assert.Equal(t, "true", StringOf(true))
	assert.Equal(t, "", StringOf(nil))
	assert.JSONEq(t, `{"a":1}`, StringOf(map[string]Value{"a": float64(1)}))
}
