package dbschema

import (
	"fmt"
	"sort"
	"strings"
)

// GenerateTypeDefs renders a GraphQL SDL fragment — one object type per
// table/view, fields named after columns and typed via GraphQLScalar —
// so a compiled Blueprint can expose the inferred database shape
// directly.
func GenerateTypeDefs(s *Schema) string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		t := s.Tables[name]
		fmt.Fprintf(&sb, "type %s {\n", exportName(t.Name))
		for _, c := range t.Columns {
			scalar := GraphQLScalar(c.PgType)
			suffix := "!"
			if c.IsNullable {
				suffix = ""
			}
			fmt.Fprintf(&sb, "  %s: %s%s\n", c.Name, scalar, suffix)
		}
		sb.WriteString("}\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func exportName(table string) string {
	parts := strings.FieldsFunc(table, func(r rune) bool { return r == '_' || r == '.' })
	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(p[1:])
	}
	return sb.String()
}
