package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gqlforge/gqlforge/internal/codec/sse"
	"github.com/gqlforge/gqlforge/internal/evaluator"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

// serveSubscription drives one subscription field from request to
// upstream stream to downstream SSE frames. It sets the SSE headers,
// opens the upstream stream, and relays events until the upstream
// closes or the client disconnects.
func (h *Handler) serveSubscription(w http.ResponseWriter, r *http.Request, req evaluator.Request, pctx *pathresolver.Context) {
	field, err := evaluator.PrepareSubscription(h.BP, req)
	if err != nil {
		log.Warn().Err(err).Msg("rejected subscription request")
		writeJSON(w, http.StatusBadRequest, errResponse(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errResponse(fmt.Errorf("streaming unsupported by this response writer")))
		return
	}

	ec := evaluator.NewEvalContext(r.Context(), pctx, evaluator.Subscription, h.Exec, nil, nil, h.Schema, h.Auth.AllowedHeaders())
	stream, err := evaluator.OpenSubscription(r.Context(), field.Node, ec.WithField(field.Args, nil))
	if err != nil {
		log.Error().Err(err).Str("field", field.Name).Msg("failed to open upstream subscription stream")
		writeJSON(w, http.StatusOK, errResponse(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-stream:
			if !open {
				return
			}
			if event.Err != nil {
				log.Error().Err(event.Err).Str("field", field.Name).Msg("upstream subscription stream failed")
				return
			}
			if event.DecodeErr != nil {
				log.Warn().Err(event.DecodeErr).Str("field", field.Name).Msg("dropped malformed subscription event")
				writeEvent(w, flusher, errResponse(event.DecodeErr))
				continue
			}
			writeEvent(w, flusher, &evaluator.Response{Data: map[string]any{field.Name: event.Value}})
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, resp *evaluator.Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = sse.Write(w, string(raw))
	flusher.Flush()
}

func errResponse(err error) *evaluator.Response {
	return &evaluator.Response{Errors: []evaluator.GraphQLError{{Message: fmt.Sprintf("%s", err.Error())}}}
}
