// document.go is the request-level half of the evaluator: given a
// compiled Blueprint and an incoming GraphQL operation, it walks the
// query's selection tree, recursing into each selected field's own
// compiled IR (internal/blueprint.Blueprint.Fields) and reassembling
// the response object. Each object is a Go map keyed by response name,
// so the encoded JSON lists its keys in sorted order, not in query
// field order. Evaluate (evaluator.go)
// resolves one field's own IR in isolation; ExecuteRequest is what
// recurses across the whole query, turning a field's resolved parent
// object into the next field's evaluation-context value. The walk is
// driven directly off gqlparser/v2's *ast.QueryDocument — the same AST
// library internal/config's schema-side parsing relies on.
package evaluator

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/gqlforge/gqlforge/internal/blueprint"
	"github.com/gqlforge/gqlforge/internal/ir"
	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

// Request is a parsed incoming GraphQL-over-HTTP operation.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
}

// GraphQLError is one entry of the response's top-level "errors"
// array, carrying the response path of the field that failed.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Response is the GraphQL-over-HTTP response envelope.
type Response struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// ContextFactory builds the shared per-request EvalContext once the
// operation kind is known (the dedupe envelope only applies to
// Query), capturing whatever the caller needs closed over (Executor,
// Schema, dedupe Group, TTL cache, request headers/claims).
type ContextFactory func(op OperationKind) *EvalContext

// ExecuteRequest parses req.Query against bp's schema, resolves the
// requested (or sole) operation, and walks it to completion. It never
// returns a Go error: every failure, including a request that fails to
// parse or names an unknown operation, is reported as a GraphQL-level
// error in the returned Response.
func ExecuteRequest(ctx context.Context, bp *blueprint.Blueprint, newCtx ContextFactory, req Request) *Response {
	doc, gqlErrs := gqlparser.LoadQuery(bp.Config.Schema, req.Query)
	if len(gqlErrs) > 0 {
		errs := make([]GraphQLError, len(gqlErrs))
		for i, e := range gqlErrs {
			errs[i] = GraphQLError{Message: e.Message}
		}
		return &Response{Errors: errs}
	}

	op, err := selectOperation(doc, req.OperationName)
	if err != nil {
		return &Response{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	vars, err := bindVariables(op.VariableDefinitions, req.Variables)
	if err != nil {
		return &Response{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	kind := operationKindOf(op.Operation)
	ec := newCtx(kind)
	typeName := rootTypeName(bp.Config.Schema, op.Operation)

	data, errs, bubble := execSelectionSet(ctx, ec, bp, typeName, nil, op.SelectionSet, vars, nil, kind == Mutation)
	if bubble {
		data = nil
	}
	return &Response{Data: data, Errors: errs}
}

// SubscriptionField is the single root field a subscription operation
// selects (the GraphQL specification requires exactly one), resolved
// down to its compiled IR and bound arguments, ready for
// OpenSubscription.
type SubscriptionField struct {
	Name string
	Node *ir.IR
	Args map[string]any
}

// PrepareSubscription parses req.Query, validates it names a
// Subscription operation with exactly one root selection (GraphQL's
// own subscription rule), and resolves that field's compiled IR and
// bound arguments. internal/gateway calls this once per subscription
// request, then drives the returned field through OpenSubscription
// and an SSE writer — ExecuteRequest's own execSelectionSet never
// touches streaming IO (evalIO rejects it outright).
func PrepareSubscription(bp *blueprint.Blueprint, req Request) (*SubscriptionField, error) {
	doc, gqlErrs := gqlparser.LoadQuery(bp.Config.Schema, req.Query)
	if len(gqlErrs) > 0 {
		return nil, fmt.Errorf("%s", gqlErrs[0].Message)
	}
	op, err := selectOperation(doc, req.OperationName)
	if err != nil {
		return nil, err
	}
	if op.Operation != ast.Subscription {
		return nil, fmt.Errorf("evaluator: not a subscription operation")
	}
	fields := flattenSelection(op.SelectionSet, rootTypeName(bp.Config.Schema, op.Operation))
	if len(fields) != 1 {
		return nil, fmt.Errorf("evaluator: a subscription operation must select exactly one field, got %d", len(fields))
	}
	f := fields[0]

	vars, err := bindVariables(op.VariableDefinitions, req.Variables)
	if err != nil {
		return nil, err
	}
	args, err := resolveArguments(f.Arguments, vars)
	if err != nil {
		return nil, err
	}

	typeName := rootTypeName(bp.Config.Schema, op.Operation)
	key := blueprint.FieldKey{Type: typeName, Field: f.Name}
	node, ok := bp.Fields[key]
	if !ok || bp.Omitted[key] {
		return nil, fmt.Errorf("evaluator: no subscription field %q", f.Name)
	}

	return &SubscriptionField{Name: aliasOf(f), Node: node, Args: args}, nil
}

func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name != "" {
		op := doc.Operations.ForName(name)
		if op == nil {
			return nil, fmt.Errorf("evaluator: no operation named %q in request", name)
		}
		return op, nil
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0], nil
	}
	return nil, fmt.Errorf("evaluator: request defines %d operations; operationName is required", len(doc.Operations))
}

func operationKindOf(op ast.Operation) OperationKind {
	switch op {
	case ast.Mutation:
		return Mutation
	case ast.Subscription:
		return Subscription
	default:
		return Query
	}
}

func rootTypeName(schema *ast.Schema, op ast.Operation) string {
	switch op {
	case ast.Mutation:
		if schema.Mutation != nil {
			return schema.Mutation.Name
		}
		return "Mutation"
	case ast.Subscription:
		if schema.Subscription != nil {
			return schema.Subscription.Name
		}
		return "Subscription"
	default:
		if schema.Query != nil {
			return schema.Query.Name
		}
		return "Query"
	}
}

// bindVariables merges the request's supplied variables with each
// declared variable's default value, so resolveValue never needs to
// special-case an unset-but-defaulted variable.
func bindVariables(defs ast.VariableDefinitionList, provided map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(defs)+len(provided))
	for k, v := range provided {
		out[k] = v
	}
	for _, d := range defs {
		if _, ok := out[d.Variable]; ok {
			continue
		}
		if d.DefaultValue != nil {
			v, err := resolveValue(d.DefaultValue, nil)
			if err != nil {
				return nil, fmt.Errorf("evaluator: default value for $%s: %w", d.Variable, err)
			}
			out[d.Variable] = v
		}
	}
	return out, nil
}

// execSelectionSet evaluates every field selected (after flattening
// fragments) against typeName/parent, returning the assembled object
// (a map, so query field order is not kept), every GraphQLError produced anywhere in the
// subtree, and whether a non-nullable child failure must bubble past
// this whole selection set to the nearest nullable ancestor.
//
// sequential forces in-order, one-at-a-time evaluation — used only for
// a Mutation operation's root fields, per the GraphQL specification's
// requirement that top-level mutation fields execute serially; every
// other selection set (Query/Subscription roots, and any nested object
// selection) evaluates its fields concurrently.
func execSelectionSet(
	ctx context.Context,
	ec *EvalContext,
	bp *blueprint.Blueprint,
	typeName string,
	parent pathresolver.Value,
	sel ast.SelectionSet,
	vars map[string]any,
	path []any,
	sequential bool,
) (map[string]any, []GraphQLError, bool) {
	fields := flattenSelection(sel, typeName)
	if len(fields) == 0 {
		return map[string]any{}, nil, false
	}

	type outcome struct {
		alias  string
		value  any
		errs   []GraphQLError
		bubble bool
	}
	outcomes := make([]outcome, len(fields))

	run := func(i int) {
		f := fields[i]
		v, errs, bubble := execField(ctx, ec, bp, typeName, parent, f, vars, path)
		outcomes[i] = outcome{alias: aliasOf(f), value: v, errs: errs, bubble: bubble}
	}

	if sequential || len(fields) == 1 {
		for i := range fields {
			run(i)
		}
	} else {
		var wg sync.WaitGroup
		wg.Add(len(fields))
		for i := range fields {
			i := i
			go func() {
				defer wg.Done()
				run(i)
			}()
		}
		wg.Wait()
	}

	out := make(map[string]any, len(fields))
	var allErrs []GraphQLError
	bubbled := false
	for _, o := range outcomes {
		allErrs = append(allErrs, o.errs...)
		if o.bubble {
			bubbled = true
			continue
		}
		out[o.alias] = o.value
	}
	if bubbled {
		return nil, allErrs, true
	}
	return out, allErrs, false
}

// execField resolves one selected field: it binds arguments, evaluates
// the field's compiled IR against a per-field clone of ec (so sibling
// fields never see each other's args), then — if the query selects
// subfields — recurses into the resolved value as the new parent.
// Returns the field's value, any errors produced, and whether a
// non-null failure must bubble to the caller.
func execField(
	ctx context.Context,
	ec *EvalContext,
	bp *blueprint.Blueprint,
	typeName string,
	parent pathresolver.Value,
	f *ast.Field,
	vars map[string]any,
	path []any,
) (any, []GraphQLError, bool) {
	alias := aliasOf(f)
	fieldPath := appendPath(path, alias)

	if f.Name == "__typename" {
		return typeName, nil, false
	}

	nonNull := f.Definition != nil && f.Definition.Type.NonNull

	key := blueprint.FieldKey{Type: typeName, Field: f.Name}
	node, ok := bp.Fields[key]
	if !ok || bp.Omitted[key] {
		return nil, nil, false
	}

	args, err := resolveArguments(f.Arguments, vars)
	if err != nil {
		return nil, []GraphQLError{{Message: err.Error(), Path: fieldPath}}, nonNull
	}

	fieldEc := ec.WithField(args, parent)
	value, err := Evaluate(ctx, node, fieldEc)
	if err != nil {
		return nil, []GraphQLError{errToGraphQLError(err, fieldPath)}, nonNull
	}

	if len(f.SelectionSet) == 0 || value == nil {
		return value, nil, false
	}

	childType := namedTypeOf(f.Definition.Type)

	if arr, isList := value.([]any); isList {
		out := make([]any, len(arr))
		var errs []GraphQLError
		for i, elem := range arr {
			v, ferrs, bubble := execSelectionSet(ctx, ec, bp, childType, elem, f.SelectionSet, vars, appendPath(fieldPath, i), false)
			errs = append(errs, ferrs...)
			if bubble {
				out[i] = nil
				continue
			}
			out[i] = v
		}
		return out, errs, false
	}

	obj, errs, bubble := execSelectionSet(ctx, ec, bp, childType, value, f.SelectionSet, vars, fieldPath, false)
	if bubble {
		return nil, errs, nonNull
	}
	return obj, errs, false
}

func appendPath(path []any, seg any) []any {
	out := make([]any, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

func aliasOf(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// namedTypeOf strips list/non-null wrappers down to the bare type
// name a nested selection set resolves against.
func namedTypeOf(t *ast.Type) string {
	for t.NamedType == "" && t.Elem != nil {
		t = t.Elem
	}
	return t.NamedType
}

// flattenSelection expands inline fragments and named fragment
// spreads into a flat field list. Type conditions are honored when
// present but not exhaustively validated against interface/union
// membership — the configuration surface has no polymorphic types, so
// a literal name match (or no condition at all) is sufficient.
func flattenSelection(sel ast.SelectionSet, typeName string) []*ast.Field {
	var out []*ast.Field
	for _, s := range sel {
		switch v := s.(type) {
		case *ast.Field:
			out = append(out, v)
		case *ast.InlineFragment:
			if v.TypeCondition == "" || v.TypeCondition == typeName {
				out = append(out, flattenSelection(v.SelectionSet, typeName)...)
			}
		case *ast.FragmentSpread:
			if v.Definition == nil {
				continue
			}
			if v.Definition.TypeCondition == "" || v.Definition.TypeCondition == typeName {
				out = append(out, flattenSelection(v.Definition.SelectionSet, typeName)...)
			}
		}
	}
	return out
}

func resolveArguments(args ast.ArgumentList, vars map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		v, err := resolveValue(a.Value, vars)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a.Name, err)
		}
		out[a.Name] = v
	}
	return out, nil
}

// resolveValue turns a query-side AST value (literal or variable
// reference) into a plain Go value of the kind pathresolver.Value and
// encoding/json both expect. This is the query-argument analog of
// internal/config.ArgValue, which only ever sees static configuration
// literals and rejects ast.Variable outright.
func resolveValue(v *ast.Value, vars map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if v.Kind == ast.Variable {
		return vars[v.Raw], nil
	}
	switch v.Kind {
	case ast.NullValue:
		return nil, nil
	case ast.IntValue:
		n, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int literal %q: %w", v.Raw, err)
		}
		return float64(n), nil
	case ast.FloatValue:
		f, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float literal %q: %w", v.Raw, err)
		}
		return f, nil
	case ast.BooleanValue:
		return v.Raw == "true", nil
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw, nil
	case ast.ListValue:
		out := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			cv, err := resolveValue(c.Value, vars)
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	case ast.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			cv, err := resolveValue(c.Value, vars)
			if err != nil {
				return nil, err
			}
			out[c.Name] = cv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported argument value kind %v", v.Kind)
	}
}

func errToGraphQLError(err error, path []any) GraphQLError {
	if pe, ok := err.(*plerrors.Error); ok {
		return GraphQLError{Message: pe.Message, Path: path}
	}
	return GraphQLError{Message: err.Error(), Path: path}
}
