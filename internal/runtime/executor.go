package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gqlforge/gqlforge/internal/ir"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
	"github.com/gqlforge/gqlforge/internal/platform/logging"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/graphqltemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/grpctemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/httptemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/s3template"
	"github.com/gqlforge/gqlforge/internal/sqlsynth"
)

var log = logging.New("runtime")

// DoHTTP issues rendered as an outbound HTTP request and decodes the
// response body as JSON. A non-2xx status surfaces as an UpstreamHTTP
// error carrying the upstream status code.
func (rt *Runtime) DoHTTP(ctx context.Context, r httptemplate.Rendered) (pathresolver.Value, error) {
	var bodyReader io.Reader
	if r.Body != "" {
		bodyReader = strings.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bodyReader)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, "building request", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := rt.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", r.Method).Str("url", r.URL).Msg("upstream http call failed")
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, fmt.Sprintf("calling %s %s", r.Method, r.URL), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("url", r.URL).Msg("failed to read upstream response body")
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, "reading response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("method", r.Method).Str("url", r.URL).Msg("upstream returned non-2xx status")
		return nil, &plerrors.Error{
			Kind:    plerrors.UpstreamHTTP,
			Message: fmt.Sprintf("%s %s returned %d", r.Method, r.URL, resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}
	return decodeJSON(raw)
}

// DoGraphQL posts rendered as a standard GraphQL-over-HTTP request and
// unwraps its `data` (or surfaces its `errors`).
func (rt *Runtime) DoGraphQL(ctx context.Context, r graphqltemplate.Rendered) (pathresolver.Value, error) {
	payload, err := json.Marshal(map[string]any{"query": r.Query, "variables": r.Variables})
	if err != nil {
		return nil, plerrors.Wrap(plerrors.TemplateUnresolved, "encoding graphql request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, "building graphql request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rt.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", r.URL).Msg("upstream graphql call failed")
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, fmt.Sprintf("calling upstream graphql %s", r.URL), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("url", r.URL).Msg("failed to read upstream graphql response")
		return nil, plerrors.Wrap(plerrors.UpstreamHTTP, "reading graphql response", err)
	}

	var envelope struct {
		Data   pathresolver.Value `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Error().Err(err).Str("url", r.URL).Msg("malformed upstream graphql response")
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, "decoding graphql response", err)
	}
	if len(envelope.Errors) > 0 {
		log.Warn().Str("url", r.URL).Str("error", envelope.Errors[0].Message).Msg("upstream graphql returned errors")
		return nil, plerrors.New(plerrors.UpstreamProtocol, envelope.Errors[0].Message)
	}
	return envelope.Data, nil
}

// DoGrpcUnary relays r over HTTP/2 to the gRPC wire protocol
// (`content-type: application/grpc`, length-prefixed frames) and
// decodes a single response message. Status is read from the
// `grpc-status`/`grpc-message` trailers, the same way a generated
// client would, using google.golang.org/grpc's codes/status
// vocabulary without its RPC machinery.
func (rt *Runtime) DoGrpcUnary(ctx context.Context, tpl grpctemplate.Template, descriptors *desc.FileDescriptor, r grpctemplate.Rendered) (pathresolver.Value, error) {
	if r.Address == "" {
		return nil, plerrors.New(plerrors.ConfigInvalid, "grpc: @grpc(address) is required to dial an upstream")
	}
	url := "http://" + r.Address + r.FullMethod

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(r.Frame))
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, "building grpc request", err)
	}
	req.Header.Set("Content-Type", "application/grpc")
	req.Header.Set("TE", "trailers")

	resp, err := rt.grpcClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", r.FullMethod).Str("address", r.Address).Msg("grpc call failed")
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, fmt.Sprintf("calling %s", r.FullMethod), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("method", r.FullMethod).Msg("failed to read grpc response")
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, "reading grpc response", err)
	}

	if st := grpcStatusOf(resp.Trailer); st.Code() != codes.OK {
		log.Warn().Str("method", r.FullMethod).Str("code", st.Code().String()).Str("message", st.Message()).Msg("grpc returned non-OK status")
		return nil, plerrors.New(plerrors.UpstreamProtocol, fmt.Sprintf("grpc %s: %s", st.Code(), st.Message()))
	}

	msg, err := grpctemplate.DecodeUnary(tpl, descriptors, body)
	if err != nil {
		log.Error().Err(err).Str("method", r.FullMethod).Msg("failed to decode grpc response message")
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, "decoding grpc response", err)
	}
	raw, err := msg.MarshalJSON()
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, "marshaling grpc response", err)
	}
	return decodeJSON(raw)
}

func grpcStatusOf(trailer http.Header) *status.Status {
	codeStr := trailer.Get("grpc-status")
	if codeStr == "" {
		return status.New(codes.OK, "")
	}
	var code int
	fmt.Sscanf(codeStr, "%d", &code)
	return status.New(codes.Code(code), trailer.Get("grpc-message"))
}

// DoPostgres executes q against the named connection pool (or the
// single configured one when db is "") and shapes the result rows into
// a []map[string]any for SelectOne vs. Select.
func (rt *Runtime) DoPostgres(ctx context.Context, db string, q sqlsynth.RenderedQuery) (pathresolver.Value, error) {
	pool, err := rt.resolvePool(db)
	if err != nil {
		return nil, err
	}

	args := make([]any, len(q.Params))
	for i, p := range q.Params {
		args[i] = p
	}

	rows, err := pool.Query(ctx, q.SQL, args...)
	if err != nil {
		log.Error().Err(err).Str("db", db).Msg("postgres query failed")
		return nil, plerrors.Wrap(plerrors.SQLError, "executing query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	colNames := make([]string, len(fields))
	for i, f := range fields {
		colNames[i] = string(f.Name)
	}

	var results []pathresolver.Value
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, plerrors.Wrap(plerrors.SQLError, "reading row", err)
		}
		raw := rows.RawValues()
		row := make(map[string]pathresolver.Value, len(vals))
		for i, v := range vals {
			row[colNames[i]] = columnValue(fields[i].DataTypeOID, fields[i].Format, raw[i], v)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		log.Error().Err(err).Str("db", db).Msg("postgres row iteration failed")
		return nil, plerrors.Wrap(plerrors.SQLError, "iterating rows", err)
	}

	if singleRow(q.SQL) {
		if len(results) == 0 {
			return nil, nil
		}
		return results[0], nil
	}
	return results, nil
}

// singleRow reports whether q.SQL is shaped as a single-row result:
// SelectOne's trailing "LIMIT 1", or any Insert/Update/Delete. For the
// latter DoPostgres keeps only the first returned row; sqlsynth
// requires Update/Delete to carry a filter but does not check that it
// matches a single row. RenderedQuery carries no operation tag of its
// own, so the statement's leading keyword is the only signal available
// here.
func singleRow(sql string) bool {
	if strings.HasSuffix(strings.TrimSpace(sql), "LIMIT 1") {
		return true
	}
	upper := strings.ToUpper(strings.TrimSpace(sql))
	return strings.HasPrefix(upper, "INSERT") || strings.HasPrefix(upper, "UPDATE") || strings.HasPrefix(upper, "DELETE")
}

// DoS3 dispatches r against the S3 client selected by its LinkID.
func (rt *Runtime) DoS3(ctx context.Context, r s3template.Rendered) (pathresolver.Value, error) {
	client, err := rt.s3ClientFor(r.LinkID)
	if err != nil {
		return nil, err
	}
	result, err := client.Do(ctx, r)
	if err != nil {
		log.Error().Err(err).Str("bucket", r.Bucket).Str("key", r.Key).Msg("s3 operation failed")
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, "s3 operation failed", err)
	}
	return result, nil
}

// DoJs invokes the shared script engine's named function.
func (rt *Runtime) DoJs(ctx context.Context, call *ir.JsCall, input pathresolver.Value) (pathresolver.Value, error) {
	if rt.scriptEngine == nil {
		return nil, plerrors.New(plerrors.ConfigInvalid, "js: no @link(type: Script) configured")
	}
	out, err := rt.scriptEngine.Call(call.FunctionName, input)
	if err != nil {
		log.Error().Err(err).Str("function", call.FunctionName).Msg("script call failed")
		return nil, err
	}
	return out, nil
}

func decodeJSON(raw []byte) (pathresolver.Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var v pathresolver.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, "decoding json response", err)
	}
	return v, nil
}

