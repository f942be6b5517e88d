// Package sqlsynth compiles a PostgreSQL request template plus
// evaluation context into a parameterized RenderedQuery. Every
// identifier is double-quoted; every literal value is a parameter,
// never spliced into the SQL text.
package sqlsynth

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gqlforge/gqlforge/internal/dbschema"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
)

// Operation is the CRUD shape a Postgres field compiles to.
type Operation int

const (
	Select Operation = iota
	SelectOne
	Insert
	Update
	Delete
)

// Template is a field's Postgres request template, already rendered
// down to plain strings/JSON (Mustache rendering happens one layer up,
// in internal/reqtemplate/pgtemplate).
type Template struct {
	// DB is the `@postgres(db: …)` link id selecting which connection
	// pool executes the compiled query; only meaningful when more than
	// one Postgres link is configured. Compilation itself ignores it —
	// the evaluator reads it off the rendered template and passes it to
	// the executor alongside the compiled query.
	DB        string
	Table     string
	Operation Operation
	// Filter, if present, is a rendered JSON object literal: {"col": val, ...}.
	Filter string
	// Input, for Insert/Update, is a rendered JSON object literal.
	Input string
	Limit   string
	Offset  string
	OrderBy string
	Columns []string
}

// RenderedQuery is the synthesizer's output: parameterized SQL text
// plus positional parameter values in `$1, $2, …` order.
type RenderedQuery struct {
	SQL    string
	Params []string
}

// Compile renders tpl against schema (nil schema skips
// unknown-column checking) into a RenderedQuery.
func Compile(tpl Template, schema *dbschema.Schema) (*RenderedQuery, error) {
	switch tpl.Operation {
	case Select, SelectOne:
		return compileSelect(tpl, schema)
	case Insert:
		return compileInsert(tpl, schema)
	case Update:
		return compileUpdate(tpl, schema)
	case Delete:
		return compileDelete(tpl, schema)
	default:
		return nil, plerrors.New(plerrors.ConfigInvalid, "sqlsynth: unknown operation")
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func compileSelect(tpl Template, schema *dbschema.Schema) (*RenderedQuery, error) {
	cols, err := selectColumns(tpl, schema)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	var params []string

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(tpl.Table))

	whereSQL, whereParams, err := renderFilter(tpl.Filter, schema, tpl.Table, &params)
	if err != nil {
		return nil, err
	}
	params = whereParams
	if whereSQL != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(whereSQL)
	}

	if orderSQL := sanitizeOrderBy(tpl.OrderBy, schema, tpl.Table); orderSQL != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderSQL)
	}

	if tpl.Operation == SelectOne {
		sb.WriteString(" LIMIT 1")
	} else if tpl.Limit != "" {
		params = append(params, tpl.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(params))
	}
	if tpl.Operation != SelectOne && tpl.Offset != "" {
		params = append(params, tpl.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(params))
	}

	return &RenderedQuery{SQL: sb.String(), Params: params}, nil
}

func selectColumns(tpl Template, schema *dbschema.Schema) ([]string, error) {
	names := tpl.Columns
	if len(names) == 0 && schema != nil {
		names = schema.ColumnNames(tpl.Table)
	}
	if len(names) == 0 {
		return nil, plerrors.New(plerrors.UnknownColumn, "sqlsynth: no columns known for table "+tpl.Table)
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out, nil
}

func compileInsert(tpl Template, schema *dbschema.Schema) (*RenderedQuery, error) {
	obj, err := parseJSONObject(tpl.Input)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.ConfigInvalid, "sqlsynth: invalid insert input", err)
	}
	cols := sortedKeys(obj)
	if err := checkKnownColumns(schema, tpl.Table, cols); err != nil {
		return nil, err
	}

	var sb strings.Builder
	var params []string
	quotedCols := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quotedCols[i] = quoteIdent(c)
		params = append(params, pathresolver.StringOf(obj[c]))
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	returning, err := selectColumns(tpl, schema)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteIdent(tpl.Table), strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "), strings.Join(returning, ", "))

	return &RenderedQuery{SQL: sb.String(), Params: params}, nil
}

func compileUpdate(tpl Template, schema *dbschema.Schema) (*RenderedQuery, error) {
	if strings.TrimSpace(tpl.Filter) == "" {
		return nil, plerrors.New(plerrors.ConfigInvalid, "sqlsynth: UPDATE requires a mandatory filter")
	}
	obj, err := parseJSONObject(tpl.Input)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.ConfigInvalid, "sqlsynth: invalid update input", err)
	}
	cols := sortedKeys(obj)
	if err := checkKnownColumns(schema, tpl.Table, cols); err != nil {
		return nil, err
	}

	var params []string
	setClauses := make([]string, len(cols))
	for i, c := range cols {
		params = append(params, pathresolver.StringOf(obj[c]))
		setClauses[i] = fmt.Sprintf("%s = $%d", quoteIdent(c), i+1)
	}

	whereSQL, whereParams, err := renderFilter(tpl.Filter, schema, tpl.Table, &params)
	if err != nil {
		return nil, err
	}
	if whereSQL == "" {
		return nil, plerrors.New(plerrors.ConfigInvalid, "sqlsynth: UPDATE requires a mandatory filter")
	}
	params = whereParams

	returning, err := selectColumns(tpl, schema)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		quoteIdent(tpl.Table), strings.Join(setClauses, ", "), whereSQL, strings.Join(returning, ", "))
	return &RenderedQuery{SQL: sql, Params: params}, nil
}

func compileDelete(tpl Template, schema *dbschema.Schema) (*RenderedQuery, error) {
	if strings.TrimSpace(tpl.Filter) == "" {
		return nil, plerrors.New(plerrors.ConfigInvalid, "sqlsynth: DELETE requires a mandatory filter")
	}
	var params []string
	whereSQL, whereParams, err := renderFilter(tpl.Filter, schema, tpl.Table, &params)
	if err != nil {
		return nil, err
	}
	if whereSQL == "" {
		return nil, plerrors.New(plerrors.ConfigInvalid, "sqlsynth: DELETE requires a mandatory filter")
	}
	params = whereParams

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(tpl.Table), whereSQL)
	return &RenderedQuery{SQL: sql, Params: params}, nil
}

// renderFilter parses a filter's rendered JSON object into a
// parameterized AND-joined WHERE clause. An empty/absent filter
// yields ("", params, nil); an empty object yields ("TRUE", params, nil).
func renderFilter(filter string, schema *dbschema.Schema, table string, params *[]string) (string, []string, error) {
	out := *params
	if strings.TrimSpace(filter) == "" {
		return "", out, nil
	}
	obj, err := parseJSONObject(filter)
	if err != nil {
		return "", out, plerrors.Wrap(plerrors.ConfigInvalid, "sqlsynth: invalid filter", err)
	}
	if len(obj) == 0 {
		return "TRUE", out, nil
	}
	cols := sortedKeys(obj)
	if err := checkKnownColumns(schema, table, cols); err != nil {
		return "", out, err
	}
	clauses := make([]string, len(cols))
	for i, c := range cols {
		out = append(out, pathresolver.StringOf(obj[c]))
		clauses[i] = fmt.Sprintf("%s = $%d", quoteIdent(c), len(out))
	}
	return strings.Join(clauses, " AND "), out, nil
}

func checkKnownColumns(schema *dbschema.Schema, table string, cols []string) error {
	if schema == nil {
		return nil
	}
	for _, c := range cols {
		if !schema.HasColumn(table, c) {
			return plerrors.New(plerrors.UnknownColumn, fmt.Sprintf("sqlsynth: unknown column %q on table %q", c, table))
		}
	}
	return nil
}

func parseJSONObject(raw string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var orderByTokenRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sanitizeOrderBy validates a comma-separated "col [ASC|DESC]" list
// against known column names, dropping anything that doesn't match —
// this is the injection boundary for a user-supplied orderBy argument.
func sanitizeOrderBy(orderBy string, schema *dbschema.Schema, table string) string {
	if strings.TrimSpace(orderBy) == "" {
		return ""
	}
	var clauses []string
	for _, part := range strings.Split(orderBy, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 || len(fields) > 2 {
			continue
		}
		col := fields[0]
		if !orderByTokenRe.MatchString(col) {
			continue
		}
		if schema != nil && !schema.HasColumn(table, col) {
			continue
		}
		dir := ""
		if len(fields) == 2 {
			switch strings.ToUpper(fields[1]) {
			case "ASC":
				dir = " ASC"
			case "DESC":
				dir = " DESC"
			default:
				continue
			}
		}
		clauses = append(clauses, quoteIdent(col)+dir)
	}
	return strings.Join(clauses, ", ")
}
