// Package gateway wires a compiled Blueprint and its Runtime into an
// HTTP surface: the GraphQL-over-HTTP endpoint (query, mutation, and
// SSE-streamed subscription), the GraphiQL UI, and a health check.
package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/gqlforge/gqlforge/internal/auth"
	"github.com/gqlforge/gqlforge/internal/blueprint"
	"github.com/gqlforge/gqlforge/internal/cache"
	"github.com/gqlforge/gqlforge/internal/dbschema"
	"github.com/gqlforge/gqlforge/internal/evaluator"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
	"github.com/gqlforge/gqlforge/internal/platform/logging"
)

var log = logging.New("gateway")

// Executor is the evaluator.Executor internal/runtime.Runtime
// implements; kept as an interface here so Handler can be built in
// tests against a fake. It does not include evaluator.StreamExecutor:
// OpenSubscription checks for streaming support at subscription time.
type Executor interface {
	evaluator.Executor
}

// Auth exposes the verification material a Handler needs for its
// request-level pre-check. Auth happens once per request, ahead of
// field evaluation, not per @protected field.
type Auth interface {
	JWKSets() []*auth.JWKSet
	HtpasswdEntries() []auth.HtpasswdEntry
	AllowedHeaders() []string
}

// Handler serves the GraphQL endpoint for one compiled Blueprint.
type Handler struct {
	BP     *blueprint.Blueprint
	Exec   Executor
	Auth   Auth
	Group  *cache.Group
	TTL    cache.Store
	Schema *dbschema.Schema
}

// New builds a gateway Handler.
func New(bp *blueprint.Blueprint, exec Executor, a Auth, group *cache.Group, ttl cache.Store, schema *dbschema.Schema) *Handler {
	return &Handler{BP: bp, Exec: exec, Auth: a, Group: group, TTL: ttl, Schema: schema}
}

// ServeHTTP dispatches a GraphiQL page, a streamed subscription
// response, or a plain GraphQL-over-HTTP response.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r) {
		PlaygroundHandler("/graphql").ServeHTTP(w, r)
		return
	}

	req, err := decodeRequest(r)
	if err != nil {
		log.Warn().Err(err).Str("method", r.Method).Msg("failed to decode graphql request")
		writeJSON(w, http.StatusBadRequest, &evaluator.Response{
			Errors: []evaluator.GraphQLError{{Message: "invalid request: " + err.Error()}},
		})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, &evaluator.Response{
			Errors: []evaluator.GraphQLError{{Message: "missing query"}},
		})
		return
	}

	pctx := h.buildPathContext(r)

	if wantsEventStream(r) || looksLikeSubscription(req.Query) {
		h.serveSubscription(w, r, req, pctx)
		return
	}

	newCtx := func(op evaluator.OperationKind) *evaluator.EvalContext {
		return evaluator.NewEvalContext(r.Context(), pctx, op, h.Exec, h.Group, h.TTL, h.Schema, h.Auth.AllowedHeaders())
	}
	resp := evaluator.ExecuteRequest(r.Context(), h.BP, newCtx, req)
	if len(resp.Errors) > 0 {
		log.Warn().Int("errors", len(resp.Errors)).Str("first", resp.Errors[0].Message).Msg("request completed with field errors")
	}
	writeJSON(w, http.StatusOK, resp)
}

// buildPathContext runs the request-level Basic/JWT pre-check and
// assembles the pathresolver.Context every field's IR renders against.
func (h *Handler) buildPathContext(r *http.Request) *pathresolver.Context {
	pctx := pathresolver.New()

	allowed := h.Auth.AllowedHeaders()
	for _, name := range allowed {
		if v := r.Header.Get(name); v != "" {
			pctx.Headers[name] = v
		}
	}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			pctx.Env[kv[:i]] = kv[i+1:]
		}
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		outcome := auth.Or(auth.VerifyJWT(authHeader, h.Auth.JWKSets()), auth.VerifyBasic(authHeader, h.Auth.HtpasswdEntries()))
		if outcome.Ok() {
			pctx.Authenticated = true
			pctx.Claims = outcome.Claims
		}
	}
	return pctx
}

// looksLikeSubscription is a cheap pre-check so a `subscription { ... }`
// request streams even when the client forgot an Accept header;
// serveSubscription re-parses and verifies this properly before
// opening any upstream connection.
func looksLikeSubscription(query string) bool {
	return strings.Contains(strings.TrimSpace(strings.ToLower(firstToken(query))), "subscription")
}

func firstToken(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r == ' ' || r == '\n' || r == '\t' || r == '{' || r == '(' {
			return s[:i]
		}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, resp *evaluator.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthHandler is a trivial liveness probe.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

