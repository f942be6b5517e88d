// Package blueprint implements the compiler: it walks a parsed
// internal/config Module's schema and field directives and produces,
// for every exposed field, a compiled internal/ir tree ready for the
// evaluator. Resolvers are looked up by type+field name at request
// time from a data-driven map built once at process start, since
// GqlForge's schema is not known until the SDL configuration is
// parsed.
package blueprint

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/gqlforge/gqlforge/internal/config"
	"github.com/gqlforge/gqlforge/internal/ir"
	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/graphqltemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/grpctemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/httptemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/pgtemplate"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/s3template"
	"github.com/gqlforge/gqlforge/internal/sqlsynth"
)

// FieldKey identifies one compiled field by its enclosing type name.
type FieldKey struct {
	Type  string
	Field string
}

// Blueprint is the compiled, ready-to-serve configuration: one IR tree
// per exposed field, the post-@omit public schema, and the resolved
// server/upstream/link settings the runtime needs to stand up
// connections.
type Blueprint struct {
	Config *config.Module

	// Fields holds one compiled IR per non-omitted field. Fields
	// backed by no directive default to a ContextPath-based
	// pass-through resolver (navigate the parent value by field name).
	Fields map[FieldKey]*ir.IR

	// Omitted records every field dropped from the public schema by
	// @omit, so PrintSDL can exclude it.
	Omitted map[FieldKey]bool

	// ProtobufDescriptors, keyed by the owning @link's id (or "" when
	// only one Protobuf link is configured), loaded eagerly at compile
	// time so IOOp.GrpcDescriptors never needs a runtime lookup.
	ProtobufDescriptors map[string]*desc.FileDescriptor
}

// Compile builds a Blueprint from mod. It is the sole entry point; the
// runtime (internal/runtime) calls this once at process start.
func Compile(mod *config.Module) (*Blueprint, error) {
	bp := &Blueprint{
		Config:              mod,
		Fields:              map[FieldKey]*ir.IR{},
		Omitted:             map[FieldKey]bool{},
		ProtobufDescriptors: map[string]*desc.FileDescriptor{},
	}

	for _, link := range mod.LinksByType(config.LinkProtobuf) {
		fd, err := loadProtobufDescriptor(link)
		if err != nil {
			return nil, fmt.Errorf("blueprint: loading protobuf descriptor for link %q: %w", link.ID, err)
		}
		bp.ProtobufDescriptors[link.ID] = fd
	}

	names := make([]string, 0, len(mod.Schema.Types))
	for name := range mod.Schema.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := mod.Schema.Types[name]
		if def.Kind != ast.Object && def.Kind != ast.InputObject {
			continue
		}
		if strings.HasPrefix(name, "__") {
			continue
		}
		isSubscription := mod.Schema.Subscription != nil && name == mod.Schema.Subscription.Name
		for _, field := range def.Fields {
			key := FieldKey{Type: name, Field: field.Name}
			if field.Directives.ForName("omit") != nil {
				bp.Omitted[key] = true
				continue
			}
			node, err := bp.compileField(field, isSubscription)
			if err != nil {
				return nil, fmt.Errorf("blueprint: compiling %s.%s: %w", name, field.Name, err)
			}
			bp.Fields[key] = node
		}
	}

	return bp, nil
}

// compileField builds the IR for one field: the resolver named by its
// I/O directive (or a default parent-value pass-through), wrapped by
// @cache and then @protected, innermost to outermost — I/O first,
// guards around it. isSubscription marks a field declared on the
// schema's root Subscription type, whose I/O directives compile to the
// streaming IOKind variants instead of the unary ones.
func (bp *Blueprint) compileField(field *ast.FieldDefinition, isSubscription bool) (*ir.IR, error) {
	node, err := bp.compileResolver(field, isSubscription)
	if err != nil {
		return nil, err
	}

	if dir := field.Directives.ForName("cache"); dir != nil {
		maxAge, _ := config.ArgInt(dir, "maxAge")
		node = ir.Cache(node, time.Duration(maxAge)*time.Second)
	}

	if dir := field.Directives.ForName("protected"); dir != nil {
		expr := config.ArgStringOr(dir, "by", "")
		node = ir.Protect(expr, node)
	}

	return node, nil
}

// compileResolver picks the one I/O directive present on field (at
// most one is meaningful; the first match wins) and compiles its
// request template, or falls back to navigating the parent value by
// field name when none is present.
func (bp *Blueprint) compileResolver(field *ast.FieldDefinition, isSubscription bool) (*ir.IR, error) {
	nullable := !field.Type.NonNull

	if dir := field.Directives.ForName("expr"); dir != nil {
		return compileExpr(dir), nil
	}
	if dir := field.Directives.ForName("http"); dir != nil {
		return compileHTTP(dir, bp.Config, isSubscription)
	}
	if dir := field.Directives.ForName("graphQL"); dir != nil {
		return compileGraphQL(dir, isSubscription)
	}
	if dir := field.Directives.ForName("grpc"); dir != nil {
		return bp.compileGrpc(dir, isSubscription)
	}
	if dir := field.Directives.ForName("postgres"); dir != nil {
		return compilePostgres(dir, bp.Config)
	}
	if dir := field.Directives.ForName("s3"); dir != nil {
		return compileS3(dir), nil
	}
	if dir := field.Directives.ForName("js"); dir != nil {
		return compileJs(dir), nil
	}

	return ir.Path(ir.ContextPath([]string{"value"}), []string{field.Name}, nullable), nil
}

func compileExpr(dir *ast.Directive) *ir.IR {
	v, _ := config.ArgJSON(dir, "body")
	if s, ok := v.(string); ok {
		return ir.DynamicTemplate(mustache.Parse(s))
	}
	return ir.Dynamic(v)
}

func compileHTTP(dir *ast.Directive, mod *config.Module, isSubscription bool) (*ir.IR, error) {
	tpl := httptemplate.Template{
		RootURL: mustache.Parse(config.ArgStringOr(dir, "url", "")),
		Method:  strings.ToUpper(config.ArgStringOr(dir, "method", "GET")),
	}
	for _, kv := range config.ArgKeyValuePairs(dir, "query") {
		tpl.Query = append(tpl.Query, httptemplate.QueryParam{
			Key:       kv.Key,
			Value:     mustache.Parse(kv.Value),
			SkipEmpty: kv.SkipEmpty,
		})
	}
	for _, kv := range config.ArgKeyValuePairs(dir, "headers") {
		tpl.Headers = append(tpl.Headers, httptemplate.Header{Name: kv.Key, Value: mustache.Parse(kv.Value)})
	}
	if body, ok := config.ArgString(dir, "body"); ok {
		tpl.Body = mustache.Parse(body)
	}

	kind := ir.IOHTTP
	if isSubscription {
		kind = ir.IOHTTPStream
	}
	op := &ir.IOOp{Kind: kind, HTTP: &tpl}
	if isSubscription {
		// Streamed fields bypass dedupe/caching entirely: there is no
		// single response to dedupe or cache against.
		return ir.IO(op), nil
	}
	op.Dedupe = config.ArgBoolOr(dir, "dedupe", true)
	if batchKey, ok := config.ArgString(dir, "batchKey"); ok {
		op.Batch = batchSpecFor(batchKey, mod)
	}
	return ir.IO(op), nil
}

func compileGraphQL(dir *ast.Directive, isSubscription bool) (*ir.IR, error) {
	tpl := graphqltemplate.Template{
		Field:     config.ArgStringOr(dir, "name", ""),
		Selection: config.ArgStringOr(dir, "selection", "{ __typename }"),
		URL:       config.ArgStringOr(dir, "url", ""),
	}
	for _, kv := range config.ArgKeyValuePairs(dir, "args") {
		tpl.Args = append(tpl.Args, graphqltemplate.Argument{Name: kv.Key, Value: mustache.Parse(kv.Value)})
	}
	if config.ArgBoolOr(dir, "batch", false) {
		tpl.Batch = graphqltemplate.DataLoaderBatch
	}

	if isSubscription {
		return ir.IO(&ir.IOOp{Kind: ir.IOGraphQLStream, GraphQL: &tpl}), nil
	}

	op := &ir.IOOp{Kind: ir.IOGraphQL, GraphQL: &tpl, Dedupe: true}
	if tpl.Batch == graphqltemplate.DataLoaderBatch {
		op.Batch = &ir.BatchSpec{GroupKey: "graphql:" + tpl.Field, Delay: 10 * time.Millisecond, MaxSize: 100}
	}
	return ir.IO(op), nil
}

func (bp *Blueprint) compileGrpc(dir *ast.Directive, isSubscription bool) (*ir.IR, error) {
	method := config.ArgStringOr(dir, "method", "")
	service, methodName, err := splitGrpcMethod(method)
	if err != nil {
		return nil, err
	}
	tpl := grpctemplate.Template{Service: service, Method: methodName, Address: config.ArgStringOr(dir, "address", "")}
	if body, ok := config.ArgString(dir, "body"); ok {
		tpl.Input = mustache.Parse(body)
	}
	if isSubscription {
		tpl.Stream = grpctemplate.ServerStreaming
	}

	fd, err := bp.descriptorFor(config.ArgStringOr(dir, "link", ""))
	if err != nil {
		return nil, err
	}

	if isSubscription {
		return ir.IO(&ir.IOOp{Kind: ir.IOGrpcStream, Grpc: &tpl, GrpcDescriptors: fd}), nil
	}

	op := &ir.IOOp{Kind: ir.IOGrpc, Grpc: &tpl, GrpcDescriptors: fd, Dedupe: true}
	if batchKey, ok := config.ArgString(dir, "batchKey"); ok {
		op.Batch = batchSpecFor(batchKey, bp.Config)
	}
	return ir.IO(op), nil
}

func (bp *Blueprint) descriptorFor(linkID string) (*desc.FileDescriptor, error) {
	if linkID != "" {
		fd, ok := bp.ProtobufDescriptors[linkID]
		if !ok {
			return nil, fmt.Errorf("blueprint: no @link(type: Protobuf, id: %q) configured", linkID)
		}
		return fd, nil
	}
	if len(bp.ProtobufDescriptors) == 1 {
		for _, fd := range bp.ProtobufDescriptors {
			return fd, nil
		}
	}
	return nil, fmt.Errorf("blueprint: @grpc field requires a unique @link(type: Protobuf); %d configured", len(bp.ProtobufDescriptors))
}

// splitGrpcMethod parses a full gRPC method path ("/pkg.Service/Method"
// or "pkg.Service/Method") into its service and bare method name.
func splitGrpcMethod(method string) (service, name string, err error) {
	trimmed := strings.TrimPrefix(method, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "", "", fmt.Errorf("blueprint: @grpc method %q must be \"package.Service/Method\"", method)
	}
	return trimmed[:idx], trimmed[idx+1:], nil
}

func compilePostgres(dir *ast.Directive, mod *config.Module) (*ir.IR, error) {
	opName := config.ArgStringOr(dir, "operation", "Select")
	op, err := parseSQLOperation(opName)
	if err != nil {
		return nil, err
	}

	tpl := pgtemplate.Template{
		DB:        config.ArgStringOr(dir, "db", ""),
		Table:     config.ArgStringOr(dir, "table", ""),
		Operation: op,
	}
	if v, ok := config.ArgString(dir, "filter"); ok {
		tpl.Filter = mustache.Parse(v)
	}
	if v, ok := config.ArgString(dir, "input"); ok {
		tpl.Input = mustache.Parse(v)
	}
	if v, ok := config.ArgString(dir, "limit"); ok {
		tpl.Limit = mustache.Parse(v)
	}
	if v, ok := config.ArgString(dir, "offset"); ok {
		tpl.Offset = mustache.Parse(v)
	}
	if v, ok := config.ArgString(dir, "orderBy"); ok {
		tpl.OrderBy = mustache.Parse(v)
	}

	if len(mod.LinksByType(config.LinkPostgres)) > 1 && tpl.DB == "" {
		return nil, fmt.Errorf("blueprint: @postgres(table: %q) must set db when multiple Postgres links are configured", tpl.Table)
	}

	ioOp := &ir.IOOp{Kind: ir.IOPostgres, Postgres: &tpl, Dedupe: true}
	if batchKey, ok := config.ArgString(dir, "batchKey"); ok {
		ioOp.Batch = batchSpecFor(batchKey, mod)
	}
	return ir.IO(ioOp), nil
}

func parseSQLOperation(name string) (sqlsynth.Operation, error) {
	switch strings.ToLower(name) {
	case "select":
		return sqlsynth.Select, nil
	case "selectone":
		return sqlsynth.SelectOne, nil
	case "insert":
		return sqlsynth.Insert, nil
	case "update":
		return sqlsynth.Update, nil
	case "delete":
		return sqlsynth.Delete, nil
	default:
		return 0, fmt.Errorf("blueprint: unknown @postgres operation %q", name)
	}
}

func compileS3(dir *ast.Directive) *ir.IR {
	tpl := s3template.Template{
		Operation:   parseS3Operation(config.ArgStringOr(dir, "operation", "GetPresignedUrl")),
		ContentType: config.ArgStringOr(dir, "contentType", ""),
		LinkID:      config.ArgStringOr(dir, "linkId", ""),
	}
	if v, ok := config.ArgString(dir, "bucket"); ok {
		tpl.Bucket = mustache.Parse(v)
	}
	if v, ok := config.ArgString(dir, "key"); ok {
		tpl.Key = mustache.Parse(v)
	}
	if v, ok := config.ArgString(dir, "prefix"); ok {
		tpl.Prefix = mustache.Parse(v)
	}
	if secs, ok := config.ArgInt(dir, "expiration"); ok {
		tpl.Expiration = time.Duration(secs) * time.Second
	} else {
		tpl.Expiration = 15 * time.Minute
	}

	op := &ir.IOOp{Kind: ir.IOS3, S3: &tpl, Dedupe: true}
	return ir.IO(op)
}

func parseS3Operation(name string) s3template.Operation {
	switch strings.ToLower(name) {
	case "putpresignedurl":
		return s3template.PutPresignedURL
	case "list":
		return s3template.List
	case "delete":
		return s3template.Delete
	default:
		return s3template.GetPresignedURL
	}
}

func compileJs(dir *ast.Directive) *ir.IR {
	call := &ir.JsCall{FunctionName: config.ArgStringOr(dir, "name", "")}
	op := &ir.IOOp{Kind: ir.IOJs, Js: call}
	return ir.IO(op)
}

// batchSpecFor builds a BatchSpec for a field's batchKey, sized from
// the module's upstream batch config (falling back to sane defaults
// when unset).
func batchSpecFor(groupKey string, mod *config.Module) *ir.BatchSpec {
	delay := mod.Upstream.BatchDelay
	if delay <= 0 {
		delay = 10 * time.Millisecond
	}
	maxSize := mod.Upstream.BatchMaxSize
	if maxSize <= 0 {
		maxSize = 100
	}
	return &ir.BatchSpec{GroupKey: groupKey, Delay: delay, MaxSize: maxSize}
}

// loadProtobufDescriptor parses the .proto source named by link.Src.
func loadProtobufDescriptor(link config.Link) (*desc.FileDescriptor, error) {
	dir := filepath.Dir(link.Src)
	base := filepath.Base(link.Src)
	parser := protoparse.Parser{ImportPaths: []string{dir}}
	fds, err := parser.ParseFiles(base)
	if err != nil {
		return nil, err
	}
	if len(fds) == 0 {
		return nil, fmt.Errorf("blueprint: %s produced no file descriptors", link.Src)
	}
	return fds[0], nil
}

// PrintSDL reconstructs the public (post-@omit) SDL from the compiled
// schema, used by the GraphiQL UI and by tests asserting on compiled
// shape.
func (bp *Blueprint) PrintSDL() string {
	var sb strings.Builder
	f := formatter.NewFormatter(&sb)

	doc := &ast.SchemaDocument{}
	names := make([]string, 0, len(bp.Config.Schema.Types))
	for name := range bp.Config.Schema.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := bp.Config.Schema.Types[name]
		if strings.HasPrefix(name, "__") {
			continue
		}
		if def.Position != nil && def.Position.Src != nil && def.Position.Src.BuiltIn {
			continue
		}
		clone := *def
		clone.Fields = nil
		for _, field := range def.Fields {
			if bp.Omitted[FieldKey{Type: name, Field: field.Name}] {
				continue
			}
			clone.Fields = append(clone.Fields, field)
		}
		doc.Definitions = append(doc.Definitions, &clone)
	}

	f.FormatSchemaDocument(doc)
	return sb.String()
}

// fieldCount is a small introspection helper used by tests to assert
// on how many fields a compiled type publicly exposes.
func (bp *Blueprint) fieldCount(typeName string) int {
	def := bp.Config.Schema.Types[typeName]
	if def == nil {
		return 0
	}
	n := 0
	for _, f := range def.Fields {
		if !bp.Omitted[FieldKey{Type: typeName, Field: f.Name}] {
			n++
		}
	}
	return n
}
