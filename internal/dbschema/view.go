package dbschema

import (
	"regexp"
	"strings"
)

var (
	fromClauseRe  = regexp.MustCompile(`(?is)FROM\s+(.*?)(?:\s+WHERE\s|\s+GROUP\s+BY\s|\s+ORDER\s+BY\s|\s+LIMIT\s|$)`)
	fromTableRe   = regexp.MustCompile(`(?i)("?[\w.]+"?)\s*(?:AS\s+)?(\w+)?`)
	aliasedItemRe = regexp.MustCompile(`(?is)^(.*)\s+AS\s+(\w+)$`)
)

// applyCreateView infers the view's projected columns from its
// defining SELECT: explicit/qualified column references, aliased
// expressions, bare and qualified wildcards, and non-reducible
// expressions (dropped).
func (s *Schema) applyCreateView(name, selectBody string) error {
	fromTables := parseFromClause(selectBody, s)

	selectList := extractSelectList(selectBody)
	var cols []Column
	for _, item := range splitTopLevel(selectList) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		cols = append(cols, inferProjectionColumns(item, fromTables)...)
	}

	s.Tables[strings.ToLower(name)] = &Table{
		Name:    name,
		Columns: cols,
		IsView:  true,
	}
	return nil
}

type fromTable struct {
	alias string
	table *Table
}

func parseFromClause(selectBody string, s *Schema) []fromTable {
	m := fromClauseRe.FindStringSubmatch(selectBody)
	if m == nil {
		return nil
	}
	var out []fromTable
	for _, part := range strings.Split(m[1], ",") {
		// Strip JOIN keywords and ON clauses crudely: take the first
		// "table [AS] alias" token group per join segment.
		for _, seg := range regexp.MustCompile(`(?i)\bJOIN\b`).Split(part, -1) {
			seg = strings.TrimSpace(regexp.MustCompile(`(?is)\bON\b.*$`).ReplaceAllString(seg, ""))
			seg = strings.TrimSpace(regexp.MustCompile(`(?i)^(INNER|LEFT|RIGHT|FULL|OUTER|CROSS)\s+`).ReplaceAllString(seg, ""))
			if seg == "" {
				continue
			}
			tm := fromTableRe.FindStringSubmatch(seg)
			if tm == nil {
				continue
			}
			tableName := unquote(tm[1])
			alias := tm[2]
			if alias == "" {
				alias = tableName
			}
			t, ok := s.Tables[strings.ToLower(tableName)]
			if !ok {
				continue
			}
			out = append(out, fromTable{alias: alias, table: t})
		}
	}
	return out
}

func extractSelectList(selectBody string) string {
	upper := strings.ToUpper(selectBody)
	if !strings.HasPrefix(upper, "SELECT") {
		return ""
	}
	fromIdx := fromClauseRe.FindStringIndex(selectBody)
	end := len(selectBody)
	if fromIdx != nil {
		// locate the literal "FROM" keyword position, not the whole match tail
		if idx := strings.Index(upper, "FROM"); idx >= 0 {
			end = idx
		}
	}
	return selectBody[len("SELECT"):end]
}

func inferProjectionColumns(item string, fromTables []fromTable) []Column {
	// Qualified wildcard: t.*
	if strings.HasSuffix(item, ".*") {
		alias := strings.TrimSuffix(item, ".*")
		for _, ft := range fromTables {
			if strings.EqualFold(ft.alias, alias) {
				return ft.table.Columns
			}
		}
		return nil
	}
	// Bare wildcard: expand every FROM table's columns.
	if item == "*" {
		var cols []Column
		for _, ft := range fromTables {
			cols = append(cols, ft.table.Columns...)
		}
		return cols
	}
	// Aliased expression: "expr AS alias".
	if m := aliasedItemRe.FindStringSubmatch(item); m != nil {
		expr := strings.TrimSpace(m[1])
		alias := m[2]
		if col, ok := resolveBareColumn(expr, fromTables); ok {
			col.Name = alias
			return []Column{col}
		}
		return []Column{{Name: alias, PgType: "text", IsNullable: true}}
	}
	// Explicit (possibly qualified) column reference.
	if col, ok := resolveBareColumn(item, fromTables); ok {
		return []Column{col}
	}
	// Non-reducible expression with no alias: skipped.
	return nil
}

func resolveBareColumn(expr string, fromTables []fromTable) (Column, bool) {
	if !isSimpleColumnRef(expr) {
		return Column{}, false
	}
	if dot := strings.Index(expr, "."); dot >= 0 {
		qualifier := expr[:dot]
		colName := expr[dot+1:]
		for _, ft := range fromTables {
			if strings.EqualFold(ft.alias, qualifier) {
				for _, c := range ft.table.Columns {
					if strings.EqualFold(c.Name, colName) {
						return c, true
					}
				}
			}
		}
		return Column{}, false
	}
	for _, ft := range fromTables {
		for _, c := range ft.table.Columns {
			if strings.EqualFold(c.Name, expr) {
				return c, true
			}
		}
	}
	return Column{}, false
}

var simpleRefRe = regexp.MustCompile(`^[\w."]+$`)

func isSimpleColumnRef(expr string) bool {
	return simpleRefRe.MatchString(expr) && !strings.ContainsAny(expr, "()+-*/")
}
