// Package ir implements the tagged-variant intermediate representation
// describing how a single GraphQL field resolves to a value. Built as
// tagged structs with pointer fields — the same idiom as
// internal/chunk — rather than an interface-per-variant hierarchy,
// since the Blueprint compiler (internal/blueprint) builds these trees
// once and the evaluator (internal/evaluator) only ever switches on
// Kind.
package ir

import (
	"time"

	"github.com/jhump/protoreflect/desc"

	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/graphqltemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/grpctemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/httptemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/pgtemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/s3template"
)

// Kind discriminates an IR node's variant.
type Kind int

const (
	KindIO Kind = iota
	KindMap
	KindPath
	KindIf
	KindConcurrent
	KindDynamic
	KindProtect
	KindContextPath
	KindCache
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindMap:
		return "Map"
	case KindPath:
		return "Path"
	case KindIf:
		return "If"
	case KindConcurrent:
		return "Concurrent"
	case KindDynamic:
		return "Dynamic"
	case KindProtect:
		return "Protect"
	case KindContextPath:
		return "ContextPath"
	case KindCache:
		return "Cache"
	default:
		return "Unknown"
	}
}

// MapFunc is a pure transformation applied to an evaluated IR's
// result.
type MapFunc func(any) (any, error)

// IR is one field's resolution pipeline. The zero value is invalid;
// use the constructors below.
type IR struct {
	Kind Kind

	// KindIO
	IO *IOOp

	// KindMap
	MapOf *IR
	MapFn MapFunc

	// KindPath
	PathOf       *IR
	PathSegments []string
	// PathNullable marks the enclosing GraphQL field nullable, so a
	// missing segment yields null rather than a PathNotFound error.
	PathNullable bool

	// KindIf
	IfCond *IR
	IfThen *IR
	IfElse *IR

	// KindConcurrent — children keyed by output field name.
	// ConcurrentFields lists the children to evaluate; the evaluator
	// returns their results as a map keyed by field name, which keeps
	// no field order.
	ConcurrentFields []string
	ConcurrentOf     map[string]*IR

	// KindDynamic — a literal value, or (if Template is set) a
	// Mustache-rendered constant (the @expr resolver).
	DynamicValue    any
	DynamicTemplate *mustache.Template

	// KindProtect
	ProtectExpr string // access-expression source, parsed by internal/auth
	ProtectOf   *IR

	// KindContextPath
	ContextPathSegments []string

	// KindCache
	CacheOf  *IR
	CacheTTL time.Duration
}

// IO builds a KindIO node.
func IO(op *IOOp) *IR { return &IR{Kind: KindIO, IO: op} }

// Map builds a KindMap node.
func Map(of *IR, f MapFunc) *IR { return &IR{Kind: KindMap, MapOf: of, MapFn: f} }

// Path builds a KindPath node.
func Path(of *IR, segments []string, nullable bool) *IR {
	return &IR{Kind: KindPath, PathOf: of, PathSegments: segments, PathNullable: nullable}
}

// If builds a KindIf node.
func If(cond, then, els *IR) *IR {
	return &IR{Kind: KindIf, IfCond: cond, IfThen: then, IfElse: els}
}

// Concurrent builds a KindConcurrent node. fields names the children
// to evaluate; the evaluated result is a map, so it carries no field
// order.
func Concurrent(fields []string, of map[string]*IR) *IR {
	return &IR{Kind: KindConcurrent, ConcurrentFields: fields, ConcurrentOf: of}
}

// Dynamic builds a KindDynamic node around a literal value.
func Dynamic(value any) *IR { return &IR{Kind: KindDynamic, DynamicValue: value} }

// DynamicTemplate builds a KindDynamic node that renders tpl against
// the evaluation context to produce its value (the `@expr` extension).
func DynamicTemplate(tpl *mustache.Template) *IR {
	return &IR{Kind: KindDynamic, DynamicTemplate: tpl}
}

// Protect builds a KindProtect node.
func Protect(expr string, of *IR) *IR { return &IR{Kind: KindProtect, ProtectExpr: expr, ProtectOf: of} }

// ContextPath builds a KindContextPath node.
func ContextPath(segments []string) *IR { return &IR{Kind: KindContextPath, ContextPathSegments: segments} }

// Cache builds a KindCache node.
func Cache(of *IR, ttl time.Duration) *IR { return &IR{Kind: KindCache, CacheOf: of, CacheTTL: ttl} }

// IOKind discriminates the upstream protocol an IOOp dispatches to.
type IOKind int

const (
	IOHTTP IOKind = iota
	IOGraphQL
	IOGrpc
	IOGrpcStream
	IOGraphQLStream
	IOHTTPStream
	IOPostgres
	IOS3
	IOJs
)

// BatchSpec configures DataLoader coalescing for an IOOp.
type BatchSpec struct {
	// GroupKey identifies which Loader instance this field's calls
	// join; fields with the same GroupKey within one request share a
	// batch window (each request builds its own loaders).
	GroupKey string
	Delay    time.Duration
	MaxSize  int
}

// IOOp is the tagged variant of external I/O an IR.IO node performs.
type IOOp struct {
	Kind IOKind

	HTTP     *httptemplate.Template
	GraphQL  *graphqltemplate.Template
	Grpc     *grpctemplate.Template
	// GrpcDescriptors is the loaded `@link(type: Protobuf)` descriptor
	// set the gRPC template's Service/Method resolve against. Carried
	// on the IOOp (rather than looked up by name at evaluation time)
	// because the Blueprint compiler already has the link resolved
	// when it builds this node.
	GrpcDescriptors *desc.FileDescriptor
	Postgres        *pgtemplate.Template
	S3              *s3template.Template
	Js              *JsCall

	// Dedupe enables the cache/dedupe envelope for this node;
	// mutations always bypass it regardless of this flag.
	Dedupe bool
	// Batch, if non-nil, routes this IOOp through a DataLoader
	// instead of evaluating inline.
	Batch *BatchSpec
}

// JsCall is the `@js(name)` script resolver's IR payload: the script
// function name to invoke plus the input value template (defaults to
// the parent value when nil).
type JsCall struct {
	FunctionName string
	Input        *mustache.Template
}
