// Package dbschema implements a DDL parser that accumulates table and
// view definitions across a sequence of migration texts, the
// PostgreSQL-type-to-GraphQL-scalar mapping, and an SDL generator for
// the inferred schema.
package dbschema

import "strings"

// Column describes one table or view column.
type Column struct {
	Name        string
	PgType      string
	IsNullable  bool
	HasDefault  bool
	IsGenerated bool
}

// ForeignKey captures a (possibly composite) FK constraint.
type ForeignKey struct {
	Columns            []string
	ReferencedSchema   string
	ReferencedTable    string
	ReferencedColumns  []string
}

// Table is a parsed table or view definition.
type Table struct {
	Name             string
	Columns          []Column
	PrimaryKey       []string
	ForeignKeys      []ForeignKey
	UniqueConstraints [][]string
	IsView           bool
}

// Schema is the full set of tables/views accumulated from DDL.
type Schema struct {
	Tables map[string]*Table
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{Tables: map[string]*Table{}}
}

// Column looks up a column by (table, name), honoring case-insensitive
// identifiers the way unquoted PostgreSQL identifiers behave.
func (s *Schema) Column(table, name string) (Column, bool) {
	t, ok := s.Tables[strings.ToLower(table)]
	if !ok {
		return Column{}, false
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether table has a column named name.
func (s *Schema) HasColumn(table, name string) bool {
	_, ok := s.Column(table, name)
	return ok
}

// ColumnNames returns every column name for table, in declaration
// order.
func (s *Schema) ColumnNames(table string) []string {
	t, ok := s.Tables[strings.ToLower(table)]
	if !ok {
		return nil
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// GraphQLScalar maps a PostgreSQL type name to its GraphQL scalar.
// Unknown types default to String.
func GraphQLScalar(pgType string) string {
	switch strings.ToLower(pgType) {
	case "smallint", "integer", "int", "int4", "int2":
		return "Int"
	case "bigint", "int8", "bigserial":
		return "String"
	case "real", "double precision", "numeric", "decimal", "float4", "float8":
		return "Float"
	case "boolean", "bool":
		return "Boolean"
	case "uuid":
		return "ID"
	case "json", "jsonb":
		return "JSON"
	case "date", "timestamp", "timestamptz", "timestamp with time zone", "timestamp without time zone":
		return "DateTime"
	default:
		if strings.HasSuffix(pgType, "[]") {
			return "JSON"
		}
		return "String"
	}
}
