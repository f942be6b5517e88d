package httptemplate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

func TestSimpleHTTPProxyScenario(t *testing.T) {
	ctx := pathresolver.New()
	ctx.Args = map[string]pathresolver.Value{"id": float64(42)}

	tpl := Template{
		RootURL: mustache.Parse("http://upstream/users/{{args.id}}"),
		Method:  "GET",
	}
	rendered, err := Render(tpl, ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://upstream/users/42", rendered.URL)
}

func TestSkipEmptyOmitsQueryParam(t *testing.T) {
	ctx := pathresolver.New()
	tpl := Template{
		RootURL: mustache.Parse("http://up/search"),
		Query: []QueryParam{
			{Key: "q", Value: mustache.Parse("{{args.missing}}"), SkipEmpty: true},
		},
	}
	rendered, err := Render(tpl, ctx, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, rendered.URL, "q=")
}

func TestContentTypeSetForJSONBody(t *testing.T) {
	ctx := pathresolver.New()
	tpl := Template{
		RootURL: mustache.Parse("http://up/items"),
		Method:  "POST",
		Body:    mustache.Parse(`{"name":"x"}`),
	}
	rendered, err := Render(tpl, ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json", rendered.Headers["Content-Type"])
	assert.Equal(t, `{"name":"x"}`, rendered.Body)
}

func TestFormURLEncodedBody(t *testing.T) {
	ctx := pathresolver.New()
	tpl := Template{
		RootURL:  mustache.Parse("http://up/form"),
		Method:   "POST",
		Body:     mustache.Parse(`{"a":"1","b":"2"}`),
		Encoding: FormURLEncoded,
	}
	rendered, err := Render(tpl, ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", rendered.Headers["Content-Type"])
	assert.Equal(t, "a=1&b=2", rendered.Body)
}

func TestAllowedHeadersInheritFromIncoming(t *testing.T) {
	ctx := pathresolver.New()
	tpl := Template{RootURL: mustache.Parse("http://up/x")}
	incoming := map[string]string{"authorization": "Bearer abc"}
	rendered, err := Render(tpl, ctx, incoming, []string{"Authorization"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", rendered.Headers["Authorization"])
}

func TestFingerprintIsStableForIdenticalRequests(t *testing.T) {
	r1 := Rendered{Method: "GET", URL: "http://up/a", Headers: map[string]string{"X": "1"}}
	r2 := Rendered{Method: "GET", URL: "http://up/a", Headers: map[string]string{"X": "1"}}
	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
}

func TestFingerprintDiffersOnHeaderValue(t *testing.T) {
	r1 := Rendered{Method: "GET", URL: "http://up/a", Headers: map[string]string{"Authorization": "Bearer a"}}
	r2 := Rendered{Method: "GET", URL: "http://up/a", Headers: map[string]string{"Authorization": "Bearer b"}}
	assert.NotEqual(t, Fingerprint(r1), Fingerprint(r2))
}
