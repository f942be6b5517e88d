// Package graphqltemplate implements the upstream GraphQL request
// template: render argument templates against an evaluation context
// and assemble a standard GraphQL-over-HTTP request body. Operation
// documents are built with gqlparser's AST printer so the rendered
// query text is always syntactically valid.
package graphqltemplate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/gqlforge/gqlforge/internal/fingerprint"
	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

// OperationType is the upstream operation's GraphQL root kind.
type OperationType int

const (
	Query OperationType = iota
	Mutation
)

// BatchMode selects how same-shaped selections route to the upstream.
type BatchMode int

const (
	NoBatch BatchMode = iota
	// DataLoaderBatch routes the field through the evaluator's
	// DataLoader. Each distinct rendered request in a batch window is
	// still sent upstream as its own request; requests are not merged
	// into one operation with aliased selections.
	DataLoaderBatch
)

// Argument is one templated argument to the upstream field.
type Argument struct {
	Name  string
	Value *mustache.Template
}

// Template is a field's upstream GraphQL request template.
type Template struct {
	Operation OperationType
	Field     string
	Args      []Argument
	Selection string // raw selection set text, e.g. "{ id name }"
	Batch     BatchMode
	// URL is the upstream GraphQL server's endpoint, from @graphQL's
	// own `url` argument — upstream GraphQL servers have no `@link`
	// extension of their own, so the field directive carries it
	// directly.
	URL string
}

// Rendered is the concrete outbound GraphQL-over-HTTP request body.
type Rendered struct {
	URL       string
	Query     string
	Variables map[string]any
}

// Render renders tpl's argument templates against ctx and builds a
// single-field operation document via the gqlparser AST printer.
func Render(tpl Template, ctx *pathresolver.Context) (Rendered, error) {
	opType := ast.Query
	if tpl.Operation == Mutation {
		opType = ast.Mutation
	}

	vars := make(map[string]any, len(tpl.Args))
	varDefs := make(ast.VariableDefinitionList, 0, len(tpl.Args))
	callArgs := make(ast.ArgumentList, 0, len(tpl.Args))
	for _, a := range tpl.Args {
		rendered := a.Value.Render(ctx)
		var v any
		if err := json.Unmarshal([]byte(rendered), &v); err != nil {
			v = rendered
		}
		vars[a.Name] = v
		varDefs = append(varDefs, &ast.VariableDefinition{
			Variable: a.Name,
			Type:     ast.NamedType("JSON", nil),
		})
		callArgs = append(callArgs, &ast.Argument{
			Name:  a.Name,
			Value: &ast.Value{Kind: ast.Variable, Raw: a.Name},
		})
	}

	selSet, err := parseSelectionSet(tpl.Selection)
	if err != nil {
		return Rendered{}, fmt.Errorf("graphqltemplate: parsing selection for field %q: %w", tpl.Field, err)
	}

	doc := &ast.QueryDocument{
		Operations: ast.OperationList{
			{
				Operation:           opType,
				VariableDefinitions: varDefs,
				SelectionSet: ast.SelectionSet{
					&ast.Field{
						Name:         tpl.Field,
						Alias:        tpl.Field,
						Arguments:    callArgs,
						SelectionSet: selSet,
					},
				},
			},
		},
	}

	var buf strings.Builder
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)

	return Rendered{URL: tpl.URL, Query: buf.String(), Variables: vars}, nil
}

// parseSelectionSet parses a raw selection-set literal ("{ id name }")
// by wrapping it in a throwaway query operation, returning the nested
// selections.
func parseSelectionSet(selection string) (ast.SelectionSet, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return nil, nil
	}
	doc, err := parser.ParseQuery(&ast.Source{Name: "selection", Input: "query " + selection})
	if err != nil {
		return nil, err
	}
	if len(doc.Operations) != 1 {
		return nil, fmt.Errorf("selection %q did not parse to a single operation", selection)
	}
	return doc.Operations[0].SelectionSet, nil
}

// Fingerprint computes the dedupe/cache key from the rendered call:
// the query text plus its variables.
func Fingerprint(r Rendered) fingerprint.ID {
	varsJSON, _ := json.Marshal(r.Variables)
	return fingerprint.Bytes(r.Query, string(varsJSON))
}
