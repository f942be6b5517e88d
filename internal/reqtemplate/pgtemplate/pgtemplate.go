// Package pgtemplate renders a field's PostgreSQL request template
// against an evaluation context into sqlsynth.Template, the input the
// SQL synthesizer compiles.
package pgtemplate

import (
	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
	"github.com/gqlforge/gqlforge/internal/sqlsynth"
)

// Template is a field's Postgres request template: unrendered Mustache
// pieces plus the static operation/table/columns shape.
type Template struct {
	DB        string // link id; only meaningful when >1 Postgres link configured
	Table     string
	Operation sqlsynth.Operation
	Filter    *mustache.Template
	Input     *mustache.Template
	Limit     *mustache.Template
	Offset    *mustache.Template
	OrderBy   *mustache.Template
	Columns   []string
}

// Render renders every Mustache piece of tpl against ctx, producing
// the plain-string sqlsynth.Template ready for compilation.
func Render(tpl Template, ctx *pathresolver.Context) sqlsynth.Template {
	out := sqlsynth.Template{
		DB:        tpl.DB,
		Table:     tpl.Table,
		Operation: tpl.Operation,
		Columns:   tpl.Columns,
	}
	if tpl.Filter != nil {
		out.Filter = tpl.Filter.Render(ctx)
	}
	if tpl.Input != nil {
		out.Input = tpl.Input.Render(ctx)
	}
	if tpl.Limit != nil {
		out.Limit = tpl.Limit.Render(ctx)
	}
	if tpl.Offset != nil {
		out.Offset = tpl.Offset.Render(ctx)
	}
	if tpl.OrderBy != nil {
		out.OrderBy = tpl.OrderBy.Render(ctx)
	}
	return out
}
