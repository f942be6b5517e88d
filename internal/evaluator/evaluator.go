// Package evaluator implements the per-field IR walker that drives
// concurrency, dispatches I/O, and assembles GraphQL responses.
// Suspension only happens at IO(_) leaves; every other IR form is
// synchronous and infallible in isolation, which keeps the IR itself
// trivially testable as plain data.
package evaluator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/gqlforge/gqlforge/internal/auth"
	"github.com/gqlforge/gqlforge/internal/cache"
	"github.com/gqlforge/gqlforge/internal/dataloader"
	"github.com/gqlforge/gqlforge/internal/dbschema"
	"github.com/gqlforge/gqlforge/internal/fingerprint"
	"github.com/gqlforge/gqlforge/internal/ir"
	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/graphqltemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/grpctemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/httptemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/s3template"
	"github.com/gqlforge/gqlforge/internal/sqlsynth"
)

// OperationKind distinguishes the GraphQL operation kind in flight —
// the dedupe/cache envelope only ever wraps Query operations;
// mutations skip it entirely.
type OperationKind int

const (
	Query OperationKind = iota
	Mutation
	Subscription
)

// Executor performs the actual upstream I/O an IOOp describes. The
// evaluator never talks to a socket, a SQL connection, or a script
// runtime directly — it renders a template, derives a fingerprint, and
// hands the rendered request to an Executor, which is supplied by
// internal/runtime at process start and shared read-only across
// requests.
type Executor interface {
	DoHTTP(ctx context.Context, r httptemplate.Rendered) (pathresolver.Value, error)
	DoGraphQL(ctx context.Context, r graphqltemplate.Rendered) (pathresolver.Value, error)
	DoGrpcUnary(ctx context.Context, tpl grpctemplate.Template, descriptors *desc.FileDescriptor, r grpctemplate.Rendered) (pathresolver.Value, error)
	DoPostgres(ctx context.Context, db string, q sqlsynth.RenderedQuery) (pathresolver.Value, error)
	DoS3(ctx context.Context, r s3template.Rendered) (pathresolver.Value, error)
	DoJs(ctx context.Context, call *ir.JsCall, input pathresolver.Value) (pathresolver.Value, error)
}

// EvalContext is the per-request evaluator state: the path-resolution
// context, the operation kind, the shared caches/executor, and a
// lazily-built registry of per-batch-group DataLoaders scoped to this
// one request only.
type EvalContext struct {
	PathCtx        *pathresolver.Context
	Operation      OperationKind
	AllowedHeaders []string
	Exec           Executor
	Group          *cache.Group
	TTL            cache.Store
	Schema         *dbschema.Schema

	// RootCtx is the request's root context, used for upstream calls
	// dispatched asynchronously from a DataLoader batch window (which
	// may fire after the triggering goroutine's own call stack has
	// already unwound).
	RootCtx context.Context

	// Loaders is a pointer so WithField can cheaply clone an
	// EvalContext per query field (fresh Args/Value) while every clone
	// still shares the one per-request DataLoader registry — the batch
	// window spans the whole operation, not one field.
	Loaders *loaderRegistry
}

type loaderRegistry struct {
	mu      sync.Mutex
	loaders map[string]*loaderEntry
}

type loaderEntry struct {
	loader  *dataloader.Loader[fingerprint.ID, pathresolver.Value]
	pending sync.Map // fingerprint.ID -> renderedRequest
}

type renderedRequest struct {
	kind     ir.IOKind
	http     httptemplate.Rendered
	graphql  graphqltemplate.Rendered
	postgres sqlsynth.RenderedQuery
	s3       s3template.Rendered
}

// NewEvalContext builds a fresh per-request evaluator context. group
// and ttl may be nil (disables dedupe/caching entirely, e.g. for
// mutations the caller can simply pass nil).
func NewEvalContext(ctx context.Context, pathCtx *pathresolver.Context, op OperationKind, exec Executor, group *cache.Group, ttl cache.Store, schema *dbschema.Schema, allowedHeaders []string) *EvalContext {
	return &EvalContext{
		PathCtx:        pathCtx,
		Operation:      op,
		AllowedHeaders: allowedHeaders,
		Exec:           exec,
		Group:          group,
		TTL:            ttl,
		Schema:         schema,
		RootCtx:        ctx,
		Loaders:        &loaderRegistry{loaders: map[string]*loaderEntry{}},
	}
}

// WithField returns a shallow copy of ec scoped to one query field:
// fresh Args/Value in its PathCtx (the field's own arguments and its
// parent's resolved value), while still sharing the request-wide
// dedupe Group, TTL cache, Executor, Schema, and DataLoader registry.
// Used by the document executor (document.go) to recurse through a
// query's selection tree without any field's evaluation seeing
// another field's arguments.
func (ec *EvalContext) WithField(args, value pathresolver.Value) *EvalContext {
	clone := *ec
	pctx := *ec.PathCtx
	pctx.Args = args
	pctx.Value = value
	clone.PathCtx = &pctx
	return &clone
}

// Evaluate walks node against ec, returning its resolved value. This
// is the sole recursive entry point; every IR.Kind is handled by one
// case.
func Evaluate(ctx context.Context, node *ir.IR, ec *EvalContext) (pathresolver.Value, error) {
	if node == nil {
		return nil, nil
	}
	switch node.Kind {
	case ir.KindIO:
		return ec.evalIO(ctx, node.IO)

	case ir.KindMap:
		v, err := Evaluate(ctx, node.MapOf, ec)
		if err != nil {
			return nil, err
		}
		return node.MapFn(v)

	case ir.KindPath:
		v, err := Evaluate(ctx, node.PathOf, ec)
		if err != nil {
			return nil, err
		}
		result, ok := pathresolver.Navigate(v, node.PathSegments)
		if !ok {
			if node.PathNullable {
				return nil, nil
			}
			return nil, plerrors.New(plerrors.PathNotFound, "path not found: "+strings.Join(node.PathSegments, "."))
		}
		return result, nil

	case ir.KindIf:
		condVal, err := Evaluate(ctx, node.IfCond, ec)
		if err != nil {
			return nil, err
		}
		b, ok := coerceBool(condVal)
		if !ok {
			return nil, plerrors.New(plerrors.TemplateUnresolved, "If condition did not resolve to a boolean")
		}
		if b {
			return Evaluate(ctx, node.IfThen, ec)
		}
		return Evaluate(ctx, node.IfElse, ec)

	case ir.KindConcurrent:
		return ec.evalConcurrent(ctx, node)

	case ir.KindDynamic:
		if node.DynamicTemplate != nil {
			return node.DynamicTemplate.Render(ec.PathCtx), nil
		}
		return node.DynamicValue, nil

	case ir.KindProtect:
		if node.ProtectExpr == "" {
			if !ec.PathCtx.Authenticated {
				return nil, plerrors.New(plerrors.AuthForbidden, "Forbidden")
			}
		} else {
			ok, err := auth.Eval(node.ProtectExpr, ec.PathCtx)
			if err != nil {
				return nil, plerrors.Wrap(plerrors.AuthForbidden, "evaluating access expression", err)
			}
			if !ok {
				return nil, plerrors.New(plerrors.AuthForbidden, "Forbidden")
			}
		}
		return Evaluate(ctx, node.ProtectOf, ec)

	case ir.KindContextPath:
		v, ok := ec.PathCtx.RawValue(node.ContextPathSegments)
		if !ok {
			return nil, nil
		}
		return v, nil

	case ir.KindCache:
		return ec.evalCache(ctx, node)

	default:
		return nil, fmt.Errorf("evaluator: unknown IR kind %v", node.Kind)
	}
}

// evalConcurrent dispatches every child onto the shared executor and
// joins them. Siblings have no inter-ordering guarantee; the caller is
// responsible for reassembling the response in query field order from
// ConcurrentFields.
func (ec *EvalContext) evalConcurrent(ctx context.Context, node *ir.IR) (pathresolver.Value, error) {
	results := make(map[string]pathresolver.Value, len(node.ConcurrentFields))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range node.ConcurrentFields {
		name := name
		child := node.ConcurrentOf[name]
		g.Go(func() error {
			v, err := Evaluate(gctx, child, ec)
			if err != nil {
				return err
			}
			mu.Lock()
			results[name] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// evalCache wraps node.CacheOf with the process-wide TTL cache tier,
// keyed by a fingerprint of the node's identity plus the request's
// dynamic inputs (arguments and parent value) — the IR subtree itself
// is static per-field configuration, so only those two vary per
// request.
func (ec *EvalContext) evalCache(ctx context.Context, node *ir.IR) (pathresolver.Value, error) {
	if ec.TTL == nil || node.CacheTTL <= 0 {
		return Evaluate(ctx, node.CacheOf, ec)
	}
	id := cacheKeyFor(node, ec.PathCtx)
	if v, ok := ec.TTL.Get(id); ok {
		return v, nil
	}
	v, err := Evaluate(ctx, node.CacheOf, ec)
	if err != nil {
		return nil, err
	}
	ec.TTL.Set(id, v, node.CacheTTL)
	return v, nil
}

func cacheKeyFor(node *ir.IR, pctx *pathresolver.Context) fingerprint.ID {
	return fingerprint.NewBuilder().
		Add(fmt.Sprintf("%p", node)).
		Add(pathresolver.StringOf(pctx.Args)).
		Add(pathresolver.StringOf(pctx.Value)).
		Sum()
}

// coerceBool accepts the handful of shapes an `If` condition's Mustache
// render or upstream JSON value can plausibly take (native bool, or a
// string like "true"/"1" coming back from a templated field) using
// spf13/cast's lenient interface{}->bool coercion rather than hand
// rolling the same string/bool matrix again (internal/pathresolver
// and internal/auth/access.go already cover strict, type-aware
// comparison; this is deliberately the permissive counterpart for a
// branch condition).
func coerceBool(v pathresolver.Value) (bool, bool) {
	switch v.(type) {
	case bool, string:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}
