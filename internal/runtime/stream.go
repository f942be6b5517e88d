package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jhump/protoreflect/desc"

	"github.com/gqlforge/gqlforge/internal/codec/grpcframe"
	"github.com/gqlforge/gqlforge/internal/codec/sse"
	"github.com/gqlforge/gqlforge/internal/evaluator"
	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/graphqltemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/grpctemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/httptemplate"
)

// OpenHTTPStream opens r as a long-lived `Accept: text/event-stream`
// HTTP request and decodes each SSE event's `data:` payload as JSON.
// The returned channel is closed when ctx is cancelled, the upstream
// closes its body, or a read error occurs.
func (rt *Runtime) OpenHTTPStream(ctx context.Context, r httptemplate.Rendered) (<-chan evaluator.StreamEvent, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, nil)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, "building stream request", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := rt.httpClient.Do(req)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, fmt.Sprintf("opening stream %s %s", r.Method, r.URL), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &plerrors.Error{
			Kind:    plerrors.UpstreamHTTP,
			Message: fmt.Sprintf("%s %s returned %d", r.Method, r.URL, resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	out := make(chan evaluator.StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		dec := sse.NewDecoder()
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				for _, payload := range dec.Decode(buf[:n]) {
					var v any
					if jsonErr := json.Unmarshal([]byte(payload), &v); jsonErr != nil {
						out <- evaluator.StreamEvent{DecodeErr: jsonErr}
						continue
					}
					out <- evaluator.StreamEvent{Value: v}
				}
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					out <- evaluator.StreamEvent{Err: readErr}
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	return out, nil
}

// OpenGraphQLStream opens a subscription against an upstream GraphQL
// server over its SSE transport and unwraps each event's `data`
// envelope the same way DoGraphQL does for a single response.
func (rt *Runtime) OpenGraphQLStream(ctx context.Context, r graphqltemplate.Rendered) (<-chan evaluator.StreamEvent, error) {
	payload, err := json.Marshal(map[string]any{"query": r.Query, "variables": r.Variables})
	if err != nil {
		return nil, plerrors.Wrap(plerrors.TemplateUnresolved, "encoding graphql subscription request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, "building graphql subscription request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := rt.httpClient.Do(req)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, fmt.Sprintf("opening graphql subscription %s", r.URL), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &plerrors.Error{
			Kind:    plerrors.UpstreamHTTP,
			Message: fmt.Sprintf("graphql subscription %s returned %d", r.URL, resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	out := make(chan evaluator.StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		dec := sse.NewDecoder()
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				for _, payload := range dec.Decode(buf[:n]) {
					var envelope struct {
						Data   any `json:"data"`
						Errors []struct {
							Message string `json:"message"`
						} `json:"errors"`
					}
					if jsonErr := json.Unmarshal([]byte(payload), &envelope); jsonErr != nil {
						out <- evaluator.StreamEvent{DecodeErr: jsonErr}
						continue
					}
					if len(envelope.Errors) > 0 {
						out <- evaluator.StreamEvent{DecodeErr: fmt.Errorf("%s", envelope.Errors[0].Message)}
						continue
					}
					out <- evaluator.StreamEvent{Value: envelope.Data}
				}
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					out <- evaluator.StreamEvent{Err: readErr}
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	return out, nil
}

// OpenGrpcStream opens a server-streaming gRPC call and decodes each
// framed message off the response body as it arrives.
func (rt *Runtime) OpenGrpcStream(ctx context.Context, tpl grpctemplate.Template, descriptors *desc.FileDescriptor, r grpctemplate.Rendered) (<-chan evaluator.StreamEvent, error) {
	if r.Address == "" {
		return nil, plerrors.New(plerrors.ConfigInvalid, "grpc: @grpc(address) is required to dial an upstream")
	}
	url := "http://" + r.Address + r.FullMethod

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(r.Frame))
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, "building grpc stream request", err)
	}
	req.Header.Set("Content-Type", "application/grpc")
	req.Header.Set("TE", "trailers")

	resp, err := rt.grpcClient.Do(req)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, fmt.Sprintf("opening stream %s", r.FullMethod), err)
	}

	out := make(chan evaluator.StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		dec := grpcframe.NewDecoder()
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				msgs, decErr := grpctemplate.DecodeStream(tpl, descriptors, dec, buf[:n])
				if decErr != nil {
					out <- evaluator.StreamEvent{DecodeErr: decErr}
				} else {
					for _, msg := range msgs {
						raw, marshalErr := msg.MarshalJSON()
						if marshalErr != nil {
							out <- evaluator.StreamEvent{DecodeErr: marshalErr}
							continue
						}
						v, jsonErr := decodeJSON(raw)
						if jsonErr != nil {
							out <- evaluator.StreamEvent{DecodeErr: jsonErr}
							continue
						}
						out <- evaluator.StreamEvent{Value: v}
					}
				}
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					out <- evaluator.StreamEvent{Err: readErr}
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	return out, nil
}
