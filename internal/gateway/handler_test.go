package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlforge/gqlforge/internal/auth"
	"github.com/gqlforge/gqlforge/internal/blueprint"
	"github.com/gqlforge/gqlforge/internal/cache"
	"github.com/gqlforge/gqlforge/internal/config"
	"github.com/gqlforge/gqlforge/internal/runtime"
)

// testAuth satisfies Auth with in-memory key material, standing in for
// the runtime's file/URL-loaded link material.
type testAuth struct {
	sets    []*auth.JWKSet
	entries []auth.HtpasswdEntry
	headers []string
}

func (a *testAuth) JWKSets() []*auth.JWKSet               { return a.sets }
func (a *testAuth) HtpasswdEntries() []auth.HtpasswdEntry { return a.entries }
func (a *testAuth) AllowedHeaders() []string              { return a.headers }

func buildHandler(t *testing.T, sdl string, a Auth) (*Handler, *runtime.Runtime) {
	t.Helper()
	mod, err := config.Parse("test.graphql", sdl)
	require.NoError(t, err)
	bp, err := blueprint.Compile(mod)
	require.NoError(t, err)
	rt, err := runtime.New(context.Background(), bp)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	if a == nil {
		a = rt
	}
	return New(bp, rt, a, cache.NewGroup(), cache.NewTTLCache(64), rt.Schema()), rt
}

func TestHandlerProxiesHTTPField(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"alice"}`)
	}))
	defer upstream.Close()

	sdl := fmt.Sprintf(`
schema { query: Query }
type Query {
  user(id: Int!): User @http(url: "%s/users/{{.args.id}}")
}
type User { name: String! }
`, upstream.URL)

	h, _ := buildHandler(t, sdl, nil)

	body := `{"query": "{ user(id: 42) { name } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"user":{"name":"alice"}}}`, rec.Body.String())
	assert.Equal(t, "/users/42", gotPath)
}

func TestHandlerServesSSESubscription(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"temperature\":25.0,\"humidity\":60.0}\n\n")
	}))
	defer upstream.Close()

	sdl := fmt.Sprintf(`
schema { query: Query subscription: Subscription }
type Query { ok: Boolean @expr(body: true) }
type Subscription {
  sensorData: SensorData @http(url: "%s/sse")
}
type SensorData { temperature: Float humidity: Float }
`, upstream.URL)

	h, _ := buildHandler(t, sdl, nil)

	body := `{"query": "subscription { sensorData { temperature humidity } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	out := rec.Body.String()
	assert.True(t, strings.HasPrefix(out, "data: "), "expected an SSE data frame, got %q", out)
	assert.Contains(t, out, `"sensorData"`)
	assert.Contains(t, out, `"temperature":25`)
	assert.Contains(t, out, `"humidity":60`)
}

func TestHandlerRefusesProtectedFieldForWrongRole(t *testing.T) {
	sdl := `
schema { query: Query }
type Query {
  secret: String @protected(by: "claims.role == 'admin'")
}
`
	secret := []byte("test-secret")
	a := &testAuth{sets: []*auth.JWKSet{auth.NewJWKSet(map[string]any{"k1": secret})}}
	h, _ := buildHandler(t, sdl, a)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "user"})
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	body := `{"query": "{ secret }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.JSONEq(t, `{"data":{"secret":null},"errors":[{"message":"Forbidden","path":["secret"]}]}`, rec.Body.String())
}

func TestHandlerRejectsMissingQuery(t *testing.T) {
	h, _ := buildHandler(t, `schema { query: Query } type Query { ok: Boolean @expr(body: true) }`, nil)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerServesPlaygroundForHTMLAccept(t *testing.T) {
	h, _ := buildHandler(t, `schema { query: Query } type Query { ok: Boolean @expr(body: true) }`, nil)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "graphiql")
}
