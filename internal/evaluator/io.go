package evaluator

import (
	"context"
	"fmt"

	"github.com/gqlforge/gqlforge/internal/cache"
	"github.com/gqlforge/gqlforge/internal/dataloader"
	"github.com/gqlforge/gqlforge/internal/fingerprint"
	"github.com/gqlforge/gqlforge/internal/ir"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/graphqltemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/grpctemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/httptemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/pgtemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/s3template"
	"github.com/gqlforge/gqlforge/internal/sqlsynth"
)

// evalIO renders op's request template against the current context
// and dispatches it, routing through the DataLoader when op.Batch is
// configured, or through the dedupe/cache envelope when op.Dedupe is
// set on a Query operation, or directly otherwise.
func (ec *EvalContext) evalIO(ctx context.Context, op *ir.IOOp) (pathresolver.Value, error) {
	switch op.Kind {
	case ir.IOHTTP:
		rendered, err := httptemplate.Render(*op.HTTP, ec.PathCtx, ec.PathCtx.Headers, ec.AllowedHeaders)
		if err != nil {
			return nil, err
		}
		id := httptemplate.Fingerprint(rendered)
		call := func() (pathresolver.Value, error) { return ec.Exec.DoHTTP(ctx, rendered) }
		if op.Batch != nil {
			return ec.loadBatched(op.Batch, id, renderedRequest{kind: ir.IOHTTP, http: rendered})
		}
		return ec.dispatch(op, id, call)

	case ir.IOGraphQL:
		rendered, err := graphqltemplate.Render(*op.GraphQL, ec.PathCtx)
		if err != nil {
			return nil, err
		}
		id := graphqltemplate.Fingerprint(rendered)
		call := func() (pathresolver.Value, error) { return ec.Exec.DoGraphQL(ctx, rendered) }
		if op.Batch != nil {
			return ec.loadBatched(op.Batch, id, renderedRequest{kind: ir.IOGraphQL, graphql: rendered})
		}
		return ec.dispatch(op, id, call)

	case ir.IOGrpc:
		rendered, err := grpctemplate.Render(*op.Grpc, ec.PathCtx, op.GrpcDescriptors)
		if err != nil {
			return nil, err
		}
		tpl := *op.Grpc
		call := func() (pathresolver.Value, error) { return ec.Exec.DoGrpcUnary(ctx, tpl, op.GrpcDescriptors, rendered) }
		return ec.dispatch(op, grpctemplate.Fingerprint(rendered), call)

	case ir.IOPostgres:
		plain := pgtemplate.Render(*op.Postgres, ec.PathCtx)
		rq, err := sqlsynth.Compile(plain, ec.Schema)
		if err != nil {
			return nil, err
		}
		id := fingerprint.SQL(rq.SQL, rq.Params)
		call := func() (pathresolver.Value, error) { return ec.Exec.DoPostgres(ctx, plain.DB, *rq) }
		if op.Batch != nil {
			return ec.loadBatched(op.Batch, id, renderedRequest{kind: ir.IOPostgres, postgres: *rq})
		}
		return ec.dispatch(op, id, call)

	case ir.IOS3:
		rendered := s3template.Render(*op.S3, ec.PathCtx)
		id := s3template.Fingerprint(rendered)
		call := func() (pathresolver.Value, error) { return ec.Exec.DoS3(ctx, rendered) }
		return ec.dispatch(op, id, call)

	case ir.IOJs:
		var input pathresolver.Value = ec.PathCtx.Value
		if op.Js.Input != nil {
			input = op.Js.Input.Render(ec.PathCtx)
		}
		return ec.Exec.DoJs(ctx, op.Js, input)

	case ir.IOHTTPStream, ir.IOGraphQLStream, ir.IOGrpcStream:
		return nil, fmt.Errorf("evaluator: streaming IO kind %v must be driven by the subscription handler, not Evaluate", op.Kind)

	default:
		return nil, fmt.Errorf("evaluator: unknown IO kind %v", op.Kind)
	}
}

// dispatch applies the dedupe/cache envelope around call when
// op.Dedupe is set and the current operation is a Query; otherwise it
// calls straight through. Mutations never flow through the envelope.
func (ec *EvalContext) dispatch(op *ir.IOOp, id fingerprint.ID, call func() (pathresolver.Value, error)) (pathresolver.Value, error) {
	if !op.Dedupe || ec.Operation != Query || ec.Group == nil {
		return call()
	}
	v, err := cache.Envelope(ec.Group, ec.TTL, id, 0, func() (any, error) { return call() })
	if err != nil {
		return nil, err
	}
	return v.(pathresolver.Value), nil
}

// loadBatched routes a rendered request through the DataLoader
// instance for its batch group, creating the loader (and its batch
// function) lazily on first use within this request.
func (ec *EvalContext) loadBatched(spec *ir.BatchSpec, id fingerprint.ID, req renderedRequest) (pathresolver.Value, error) {
	entry := ec.loaderFor(spec)
	entry.pending.Store(id, req)
	return entry.loader.Load(id)
}

func (ec *EvalContext) loaderFor(spec *ir.BatchSpec) *loaderEntry {
	ec.Loaders.mu.Lock()
	defer ec.Loaders.mu.Unlock()

	if e, ok := ec.Loaders.loaders[spec.GroupKey]; ok {
		return e
	}
	entry := &loaderEntry{}
	entry.loader = dataloader.New[fingerprint.ID, pathresolver.Value](
		func(keys []fingerprint.ID) (map[fingerprint.ID]pathresolver.Value, error) {
			return ec.batchDispatch(entry, keys)
		},
		spec.Delay,
		spec.MaxSize,
	)
	ec.Loaders.loaders[spec.GroupKey] = entry
	return entry
}

// batchDispatch resolves every key in a fired batch window by issuing
// one upstream call per distinct rendered request, one after another.
// The Executor receives each request on its own, so requests are not
// merged into a single upstream call. If any call fails, the whole
// batch fails with the first error.
func (ec *EvalContext) batchDispatch(entry *loaderEntry, keys []fingerprint.ID) (map[fingerprint.ID]pathresolver.Value, error) {
	out := make(map[fingerprint.ID]pathresolver.Value, len(keys))
	var firstErr error
	for _, k := range keys {
		raw, ok := entry.pending.LoadAndDelete(k)
		if !ok {
			continue
		}
		req := raw.(renderedRequest)
		v, err := ec.dispatchRendered(req)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out[k] = v
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (ec *EvalContext) dispatchRendered(req renderedRequest) (pathresolver.Value, error) {
	ctx := ec.RootCtx
	if ctx == nil {
		ctx = context.Background()
	}
	switch req.kind {
	case ir.IOHTTP:
		return ec.Exec.DoHTTP(ctx, req.http)
	case ir.IOGraphQL:
		return ec.Exec.DoGraphQL(ctx, req.graphql)
	case ir.IOPostgres:
		return ec.Exec.DoPostgres(ctx, "", req.postgres)
	default:
		return nil, fmt.Errorf("evaluator: batching unsupported for IO kind %v", req.kind)
	}
}
