package evaluator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlforge/gqlforge/internal/cache"
	"github.com/gqlforge/gqlforge/internal/ir"
	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/graphqltemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/grpctemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/httptemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/s3template"
	"github.com/gqlforge/gqlforge/internal/sqlsynth"
)

// countingExecutor counts HTTP calls so dedupe behavior is observable.
// DoHTTP optionally blocks on release so concurrent calls can be made
// to genuinely overlap, which is what single-flight dedupe requires.
type countingExecutor struct {
	httpCalls int32
	value     pathresolver.Value
	release   chan struct{}
}

func (e *countingExecutor) DoHTTP(ctx context.Context, r httptemplate.Rendered) (pathresolver.Value, error) {
	atomic.AddInt32(&e.httpCalls, 1)
	if e.release != nil {
		<-e.release
	}
	return e.value, nil
}
func (e *countingExecutor) DoGraphQL(ctx context.Context, r graphqltemplate.Rendered) (pathresolver.Value, error) {
	return e.value, nil
}
func (e *countingExecutor) DoGrpcUnary(ctx context.Context, tpl grpctemplate.Template, descriptors *desc.FileDescriptor, r grpctemplate.Rendered) (pathresolver.Value, error) {
	return e.value, nil
}
func (e *countingExecutor) DoPostgres(ctx context.Context, db string, q sqlsynth.RenderedQuery) (pathresolver.Value, error) {
	return e.value, nil
}
func (e *countingExecutor) DoS3(ctx context.Context, r s3template.Rendered) (pathresolver.Value, error) {
	return e.value, nil
}
func (e *countingExecutor) DoJs(ctx context.Context, call *ir.JsCall, input pathresolver.Value) (pathresolver.Value, error) {
	return e.value, nil
}

func newEvalContext(exec Executor, op OperationKind) *EvalContext {
	pctx := pathresolver.New()
	return NewEvalContext(context.Background(), pctx, op, exec, cache.NewGroup(), cache.NewTTLCache(64), nil, nil)
}

func TestEvaluateDynamic(t *testing.T) {
	ec := newEvalContext(&countingExecutor{}, Query)
	v, err := Evaluate(context.Background(), ir.Dynamic("hello"), ec)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestEvaluatePathNullableMissing(t *testing.T) {
	ec := newEvalContext(&countingExecutor{}, Query)
	node := ir.Path(ir.Dynamic(map[string]pathresolver.Value{"a": "x"}), []string{"missing"}, true)
	v, err := Evaluate(context.Background(), node, ec)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEvaluatePathNonNullableMissingErrors(t *testing.T) {
	ec := newEvalContext(&countingExecutor{}, Query)
	node := ir.Path(ir.Dynamic(map[string]pathresolver.Value{"a": "x"}), []string{"missing"}, false)
	_, err := Evaluate(context.Background(), node, ec)
	assert.Error(t, err)
}

func TestEvaluateIfBranches(t *testing.T) {
	ec := newEvalContext(&countingExecutor{}, Query)
	node := ir.If(ir.Dynamic(true), ir.Dynamic("then"), ir.Dynamic("else"))
	v, err := Evaluate(context.Background(), node, ec)
	require.NoError(t, err)
	assert.Equal(t, "then", v)

	node2 := ir.If(ir.Dynamic(false), ir.Dynamic("then"), ir.Dynamic("else"))
	v2, err := Evaluate(context.Background(), node2, ec)
	require.NoError(t, err)
	assert.Equal(t, "else", v2)
}

func TestEvaluateConcurrentAssemblesAllFields(t *testing.T) {
	ec := newEvalContext(&countingExecutor{}, Query)
	node := ir.Concurrent([]string{"a", "b"}, map[string]*ir.IR{
		"a": ir.Dynamic(1),
		"b": ir.Dynamic(2),
	})
	v, err := Evaluate(context.Background(), node, ec)
	require.NoError(t, err)
	obj := v.(map[string]pathresolver.Value)
	assert.Equal(t, 1, obj["a"])
	assert.Equal(t, 2, obj["b"])
}

func TestEvaluateProtectForbidden(t *testing.T) {
	ec := newEvalContext(&countingExecutor{}, Query)
	ec.PathCtx.Claims = map[string]pathresolver.Value{"role": "user"}
	node := ir.Protect("claims.role == 'admin'", ir.Dynamic("secret"))
	_, err := Evaluate(context.Background(), node, ec)
	require.Error(t, err)
}

func TestEvaluateProtectAllowed(t *testing.T) {
	ec := newEvalContext(&countingExecutor{}, Query)
	ec.PathCtx.Claims = map[string]pathresolver.Value{"role": "admin"}
	node := ir.Protect("claims.role == 'admin'", ir.Dynamic("secret"))
	v, err := Evaluate(context.Background(), node, ec)
	require.NoError(t, err)
	assert.Equal(t, "secret", v)
}

func TestEvaluateIODedupesWithinRequest(t *testing.T) {
	exec := &countingExecutor{
		value:   map[string]pathresolver.Value{"name": "alice"},
		release: make(chan struct{}),
	}
	ec := newEvalContext(exec, Query)

	httpOp := &ir.IOOp{
		Kind: ir.IOHTTP,
		HTTP: &httptemplate.Template{
			RootURL: mustache.Parse("http://upstream/users/1"),
			Method:  "GET",
		},
		Dedupe: true,
	}
	node := ir.IO(httpOp)

	// Evaluate the same IO node twice "concurrently": a Concurrent IR
	// node with two children sharing the identical field — two
	// selections of the same @http field with identical args must
	// issue exactly one upstream call.
	parent := ir.Concurrent([]string{"a", "b"}, map[string]*ir.IR{"a": node, "b": node})

	done := make(chan struct{})
	var result pathresolver.Value
	var err error
	go func() {
		result, err = Evaluate(context.Background(), parent, ec)
		close(done)
	}()

	// Give both children a chance to start and register in the
	// single-flight group before releasing the blocked call.
	time.Sleep(20 * time.Millisecond)
	close(exec.release)
	<-done

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int32(1), exec.httpCalls)
}

func TestEvaluateIOMutationBypassesDedupe(t *testing.T) {
	exec := &countingExecutor{value: "ok"}
	ec := newEvalContext(exec, Mutation)

	httpOp := &ir.IOOp{
		Kind: ir.IOHTTP,
		HTTP: &httptemplate.Template{
			RootURL: mustache.Parse("http://upstream/users/1"),
			Method:  "POST",
		},
		Dedupe: true,
	}
	node := ir.IO(httpOp)

	_, err := Evaluate(context.Background(), node, ec)
	require.NoError(t, err)
	_, err = Evaluate(context.Background(), node, ec)
	require.NoError(t, err)
	assert.Equal(t, int32(2), exec.httpCalls)
}
