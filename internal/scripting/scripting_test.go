package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallReturnsJSONValue(t *testing.T) {
	eng, err := New(`function double(input) { return { value: input.n * 2 }; }`)
	require.NoError(t, err)

	out, err := eng.Call("double", map[string]any{"n": 21})
	require.NoError(t, err)

	obj, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), obj["value"])
}

func TestCallUndefinedFunction(t *testing.T) {
	eng, err := New(`function defined() { return 1; }`)
	require.NoError(t, err)

	_, err = eng.Call("missing", nil)
	assert.Error(t, err)
}

func TestNewRejectsBadSource(t *testing.T) {
	_, err := New(`this is not valid javascript {{{`)
	assert.Error(t, err)
}
