package mustache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string]string

func (m mapResolver) PathString(segments []string) (string, bool) {
	key := ""
	for i, s := range segments {
		if i > 0 {
			key += "."
		}
		key += s
	}
	v, ok := m[key]
	return v, ok
}

func TestRenderExpressionlessIsIdentity(t *testing.T) {
	cases := []string{"", "plain text", "no braces here at all", "50% off"}
	for _, s := range cases {
		tmpl := Parse(s)
		require.True(t, tmpl.IsConst())
		assert.Equal(t, s, tmpl.Render(mapResolver{}))
	}
}

func TestRenderExpression(t *testing.T) {
	tmpl := Parse("http://upstream/users/{{args.id}}")
	assert.False(t, tmpl.IsConst())
	got := tmpl.Render(mapResolver{"args.id": "42"})
	assert.Equal(t, "http://upstream/users/42", got)
}

func TestRenderUnresolvedYieldsEmptyString(t *testing.T) {
	tmpl := Parse("hello {{value.name}}!")
	got := tmpl.Render(mapResolver{})
	assert.Equal(t, "hello !", got)
}

func TestRenderTrimsWhitespaceInsideExpression(t *testing.T) {
	tmpl := Parse("{{  args.id  }}")
	got := tmpl.Render(mapResolver{"args.id": "7"})
	assert.Equal(t, "7", got)
}

func TestEscapedBraceIsLiteral(t *testing.T) {
	tmpl := Parse(`\{{not an expr}}`)
	assert.True(t, tmpl.IsConst())
	assert.Equal(t, "{{not an expr}}", tmpl.Render(mapResolver{}))
}

func TestUnterminatedExpressionIsLiteral(t *testing.T) {
	tmpl := Parse("broken {{args.id")
	assert.Equal(t, "broken {{args.id", tmpl.Render(mapResolver{}))
}

func TestLeadingDotResolvesLikeBarePath(t *testing.T) {
	tmpl := Parse("http://upstream/users/{{.args.id}}")
	got := tmpl.Render(mapResolver{"args.id": "42"})
	assert.Equal(t, "http://upstream/users/42", got)
}

func TestMultipleExpressions(t *testing.T) {
	tmpl := Parse("{{a.b}}-{{c.d}}")
	got := tmpl.Render(mapResolver{"a.b": "1", "c.d": "2"})
	assert.Equal(t, "1-2", got)
}
