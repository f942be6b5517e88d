package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gqlforge/gqlforge/internal/evaluator"
)

// decodeRequest reads an incoming GraphQL-over-HTTP request: a JSON
// envelope on POST, or query/operationName/variables query-string
// parameters on GET.
func decodeRequest(r *http.Request) (evaluator.Request, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req := evaluator.Request{
			Query:         q.Get("query"),
			OperationName: q.Get("operationName"),
		}
		if raw := q.Get("variables"); raw != "" {
			var vars map[string]any
			if err := json.Unmarshal([]byte(raw), &vars); err != nil {
				return evaluator.Request{}, err
			}
			req.Variables = vars
		}
		return req, nil
	}

	var body struct {
		Query         string         `json:"query"`
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return evaluator.Request{}, err
	}
	return evaluator.Request{Query: body.Query, OperationName: body.OperationName, Variables: body.Variables}, nil
}

// wantsHTML reports whether r's Accept header prefers an HTML
// response over JSON, used to decide whether a bare GET serves the
// GraphiQL UI instead of executing a query.
func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return r.Method == http.MethodGet && r.URL.Query().Get("query") == "" && strings.Contains(accept, "text/html")
}

// wantsEventStream reports whether r is asking for an SSE response —
// the content-type negotiation that drives a subscription over the
// single GraphQL endpoint.
func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
