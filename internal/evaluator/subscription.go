// subscription.go is the field-side half of subscription handling:
// given a subscription field's compiled IR (always rooted at
// IO(HttpStream), IO(GraphqlStream), or IO(GrpcStream), possibly
// wrapped in @protected), it opens the upstream stream and yields one
// StreamEvent per upstream event. The transport-facing half — writing
// `data: {...}\n\n` frames to an SSE response and closing on client
// disconnect — lives in internal/gateway, which is the only caller of
// OpenSubscription.
package evaluator

import (
	"context"
	"fmt"

	"github.com/jhump/protoreflect/desc"

	"github.com/gqlforge/gqlforge/internal/auth"
	"github.com/gqlforge/gqlforge/internal/ir"
	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/graphqltemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/grpctemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/httptemplate"
)

// StreamEvent is one decoded upstream event, or a terminal error. Err
// set means the stream has ended; a malformed individual payload is
// instead reported as Value == nil, DecodeErr != nil so the caller can
// emit a single `{"errors":[...]}` frame and keep listening — the
// stream only ends when the transport itself fails.
type StreamEvent struct {
	Value     pathresolver.Value
	DecodeErr error
	Err       error
}

// StreamExecutor is implemented by an Executor that can also open a
// long-lived upstream stream. internal/runtime.Runtime implements
// this; a test double that only implements Executor is simply
// ineligible to serve Subscription fields.
type StreamExecutor interface {
	OpenHTTPStream(ctx context.Context, r httptemplate.Rendered) (<-chan StreamEvent, error)
	OpenGraphQLStream(ctx context.Context, r graphqltemplate.Rendered) (<-chan StreamEvent, error)
	OpenGrpcStream(ctx context.Context, tpl grpctemplate.Template, descriptors *desc.FileDescriptor, r grpctemplate.Rendered) (<-chan StreamEvent, error)
}

// OpenSubscription resolves node down to its IO(_Stream) leaf —
// enforcing any @protected guard along the way exactly as Evaluate
// would — and opens the corresponding upstream stream.
func OpenSubscription(ctx context.Context, node *ir.IR, ec *EvalContext) (<-chan StreamEvent, error) {
	op, err := resolveStreamOp(ctx, node, ec)
	if err != nil {
		return nil, err
	}

	se, ok := ec.Exec.(StreamExecutor)
	if !ok {
		return nil, plerrors.New(plerrors.ConfigInvalid, "evaluator: configured executor cannot serve streaming subscriptions")
	}

	switch op.Kind {
	case ir.IOHTTPStream:
		rendered, err := httptemplate.Render(*op.HTTP, ec.PathCtx, ec.PathCtx.Headers, ec.AllowedHeaders)
		if err != nil {
			return nil, err
		}
		return se.OpenHTTPStream(ctx, rendered)

	case ir.IOGraphQLStream:
		rendered, err := graphqltemplate.Render(*op.GraphQL, ec.PathCtx)
		if err != nil {
			return nil, err
		}
		return se.OpenGraphQLStream(ctx, rendered)

	case ir.IOGrpcStream:
		rendered, err := grpctemplate.Render(*op.Grpc, ec.PathCtx, op.GrpcDescriptors)
		if err != nil {
			return nil, err
		}
		return se.OpenGrpcStream(ctx, *op.Grpc, op.GrpcDescriptors, rendered)

	default:
		return nil, fmt.Errorf("evaluator: field IR resolves to non-streaming IO kind %v; not a valid subscription", op.Kind)
	}
}

// resolveStreamOp peels the guard nodes a subscription field's IR may
// be wrapped in (@protected, @cache — the latter is meaningless for a
// stream and is simply unwrapped) until it reaches the IO leaf. None
// of these wrapper kinds suspend, so evaluating them ahead of opening
// the stream is exactly as synchronous as Evaluate's own handling of
// them.
func resolveStreamOp(ctx context.Context, node *ir.IR, ec *EvalContext) (*ir.IOOp, error) {
	switch node.Kind {
	case ir.KindIO:
		return node.IO, nil

	case ir.KindCache:
		return resolveStreamOp(ctx, node.CacheOf, ec)

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
		return resolveStreamOp(ctx, node.ProtectOf, ec)

	default:
		return nil, fmt.Errorf("evaluator: subscription field IR rooted at %v, not an IO stream", node.Kind)
	}
}
