package dbschema

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	createTableRe = regexp.MustCompile(`(?is)^CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?("?[\w.]+"?)\s*\((.*)\)\s*$`)
	alterAddRe    = regexp.MustCompile(`(?is)^ALTER\s+TABLE\s+(?:IF\s+EXISTS\s+)?("?[\w.]+"?)\s+ADD\s+(?:COLUMN\s+)?(?:IF\s+NOT\s+EXISTS\s+)?(\w+)\s+(.+)$`)
	alterDropRe   = regexp.MustCompile(`(?is)^ALTER\s+TABLE\s+(?:IF\s+EXISTS\s+)?("?[\w.]+"?)\s+DROP\s+(?:COLUMN\s+)?(?:IF\s+EXISTS\s+)?(\w+)\s*$`)
	createViewRe  = regexp.MustCompile(`(?is)^CREATE\s+(?:OR\s+REPLACE\s+)?(MATERIALIZED\s+)?VIEW\s+("?[\w.]+"?)\s+AS\s+(.*)$`)
)

// Apply parses one migration text (a sequence of `;`-terminated
// statements) and folds it into s, mutating s in place. Unrecognized
// statements (anything other than CREATE TABLE, ALTER TABLE ADD/DROP
// COLUMN, CREATE [OR REPLACE] [MATERIALIZED] VIEW) are ignored.
func (s *Schema) Apply(ddl string) error {
	for _, stmt := range splitStatements(ddl) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := s.applyStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) applyStatement(stmt string) error {
	switch {
	case createTableRe.MatchString(stmt):
		m := createTableRe.FindStringSubmatch(stmt)
		return s.applyCreateTable(unquote(m[1]), m[2])
	case alterAddRe.MatchString(stmt):
		m := alterAddRe.FindStringSubmatch(stmt)
		return s.applyAlterAdd(unquote(m[1]), m[2], m[3])
	case alterDropRe.MatchString(stmt):
		m := alterDropRe.FindStringSubmatch(stmt)
		return s.applyAlterDrop(unquote(m[1]), m[2])
	case createViewRe.MatchString(stmt):
		m := createViewRe.FindStringSubmatch(stmt)
		return s.applyCreateView(unquote(m[2]), m[3])
	}
	return nil
}

func (s *Schema) applyCreateTable(name, body string) error {
	t := &Table{Name: name}
	for _, item := range splitTopLevel(body) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		upper := strings.ToUpper(item)
		switch {
		case strings.HasPrefix(upper, "PRIMARY KEY"):
			t.PrimaryKey = append(t.PrimaryKey, parseColumnList(item)...)
		case strings.HasPrefix(upper, "UNIQUE"):
			t.UniqueConstraints = append(t.UniqueConstraints, parseColumnList(item))
		case strings.HasPrefix(upper, "FOREIGN KEY") || strings.HasPrefix(upper, "CONSTRAINT"):
			if fk, ok := parseForeignKey(item); ok {
				t.ForeignKeys = append(t.ForeignKeys, fk)
			}
		case strings.HasPrefix(upper, "CHECK"):
			// check constraints carry no schema information we track.
		default:
			col, pk := parseColumnDef(item)
			t.Columns = append(t.Columns, col)
			if pk {
				t.PrimaryKey = append(t.PrimaryKey, col.Name)
			}
		}
	}
	markPrimaryKeyNonNullable(t)
	s.Tables[strings.ToLower(name)] = t
	return nil
}

func (s *Schema) applyAlterAdd(table, colName, rest string) error {
	t, ok := s.Tables[strings.ToLower(table)]
	if !ok {
		return fmt.Errorf("dbschema: ALTER TABLE on unknown table %q", table)
	}
	col, pk := parseColumnDef(colName + " " + rest)
	t.Columns = append(t.Columns, col)
	if pk {
		t.PrimaryKey = append(t.PrimaryKey, col.Name)
		markPrimaryKeyNonNullable(t)
	}
	return nil
}

func (s *Schema) applyAlterDrop(table, colName string) error {
	t, ok := s.Tables[strings.ToLower(table)]
	if !ok {
		return fmt.Errorf("dbschema: ALTER TABLE on unknown table %q", table)
	}
	out := t.Columns[:0]
	for _, c := range t.Columns {
		if !strings.EqualFold(c.Name, colName) {
			out = append(out, c)
		}
	}
	t.Columns = out
	return nil
}

func markPrimaryKeyNonNullable(t *Table) {
	pk := map[string]bool{}
	for _, c := range t.PrimaryKey {
		pk[strings.ToLower(c)] = true
	}
	for i := range t.Columns {
		if pk[strings.ToLower(t.Columns[i].Name)] {
			t.Columns[i].IsNullable = false
		}
	}
}

var serialTypes = map[string]string{
	"serial": "integer", "smallserial": "smallint", "bigserial": "bigint",
}

// parseColumnDef parses one inline column definition:
// "name type [NOT NULL] [PRIMARY KEY] [UNIQUE] [DEFAULT expr]
// [GENERATED ...]". Returns the column and whether it declared PRIMARY
// KEY inline.
func parseColumnDef(item string) (Column, bool) {
	fields := strings.Fields(item)
	if len(fields) < 2 {
		return Column{Name: item, PgType: "text", IsNullable: true}, false
	}
	name := fields[0]
	pgType := fields[1]
	rest := strings.ToUpper(strings.Join(fields[2:], " "))

	col := Column{Name: name, PgType: pgType, IsNullable: true}

	if canonical, ok := serialTypes[strings.ToLower(pgType)]; ok {
		col.PgType = canonical
		col.IsNullable = false
		col.HasDefault = true
	}
	if strings.Contains(rest, "NOT NULL") {
		col.IsNullable = false
	}
	if strings.Contains(rest, "DEFAULT") {
		col.HasDefault = true
	}
	if strings.Contains(rest, "GENERATED") {
		col.IsGenerated = true
		col.HasDefault = true
	}
	pk := strings.Contains(rest, "PRIMARY KEY")
	if pk {
		col.IsNullable = false
	}
	return col, pk
}

func parseColumnList(item string) []string {
	start := strings.Index(item, "(")
	end := strings.LastIndex(item, ")")
	if start == -1 || end == -1 || end <= start {
		return nil
	}
	inner := item[start+1 : end]
	var out []string
	for _, c := range strings.Split(inner, ",") {
		out = append(out, unquote(strings.TrimSpace(c)))
	}
	return out
}

var fkReferencesRe = regexp.MustCompile(`(?is)REFERENCES\s+("?[\w.]+"?)\s*\(([^)]*)\)`)

func parseForeignKey(item string) (ForeignKey, bool) {
	refs := fkReferencesRe.FindStringSubmatch(item)
	if refs == nil {
		return ForeignKey{}, false
	}
	// the local column list precedes REFERENCES
	cols := parseColumnList(item[:fkReferencesRe.FindStringIndex(item)[0]])
	if cols == nil {
		// CONSTRAINT name FOREIGN KEY (cols) REFERENCES ...
		if idx := strings.Index(strings.ToUpper(item), "FOREIGN KEY"); idx >= 0 {
			cols = parseColumnList(item[idx:])
		}
	}
	refTable := unquote(refs[1])
	schema := "public"
	if parts := strings.SplitN(refTable, ".", 2); len(parts) == 2 {
		schema, refTable = parts[0], parts[1]
	}
	var refCols []string
	for _, c := range strings.Split(refs[2], ",") {
		refCols = append(refCols, unquote(strings.TrimSpace(c)))
	}
	return ForeignKey{
		Columns:           cols,
		ReferencedSchema:  schema,
		ReferencedTable:   refTable,
		ReferencedColumns: refCols,
	}, true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, `"`)
}

// splitStatements splits ddl on top-level semicolons, ignoring any
// that occur inside parentheses.
func splitStatements(ddl string) []string {
	var out []string
	depth := 0
	start := 0
	for i, c := range ddl {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ';':
			if depth == 0 {
				out = append(out, ddl[start:i])
				start = i + 1
			}
		}
	}
	if start < len(ddl) {
		out = append(out, ddl[start:])
	}
	return out
}

// splitTopLevel splits a column/constraint list on commas, ignoring
// any that occur inside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
