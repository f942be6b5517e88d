// Package mustache implements the gateway's brace-delimited templating
// language: literal text interspersed with `{{a.b.c}}` path
// expressions, rendered against anything that can resolve a dotted
// segment list to a string.
package mustache

import "strings"

// Resolver resolves a dotted segment list to a string, as the
// evaluation context does for request bodies/URLs/headers.
type Resolver interface {
	PathString(segments []string) (string, bool)
}

// segment is one piece of a parsed template.
type segment struct {
	literal string   // set when expr == nil
	expr    []string // path segments, set for {{...}} expressions
}

// Template is a parsed Mustache template: literal segments
// interspersed with expression segments.
type Template struct {
	segments []segment
	raw      string
}

// Parse parses a raw template string. Parsing never fails: malformed
// or unterminated `{{` is treated as literal text, matching the
// forgiving rendering contract (unresolved expressions render as the
// empty string rather than erroring).
func Parse(raw string) *Template {
	t := &Template{raw: raw}
	var lit strings.Builder

	i := 0
	for i < len(raw) {
		// escaped literal brace: \{{ -> {{
		if raw[i] == '\\' && i+2 < len(raw) && raw[i+1] == '{' && raw[i+2] == '{' {
			lit.WriteString("{{")
			i += 3
			continue
		}

		if i+1 < len(raw) && raw[i] == '{' && raw[i+1] == '{' {
			end := strings.Index(raw[i+2:], "}}")
			if end == -1 {
				// unterminated: treat the rest as literal.
				lit.WriteString(raw[i:])
				break
			}
			exprRaw := raw[i+2 : i+2+end]
			if lit.Len() > 0 {
				t.segments = append(t.segments, segment{literal: lit.String()})
				lit.Reset()
			}
			t.segments = append(t.segments, segment{expr: splitPath(exprRaw)})
			i = i + 2 + end + 2
			continue
		}

		lit.WriteByte(raw[i])
		i++
	}
	if lit.Len() > 0 {
		t.segments = append(t.segments, segment{literal: lit.String()})
	}
	return t
}

// splitPath trims whitespace around the whole expression and splits it
// on '.', trimming each segment too. Empty segments are dropped, so
// the leading-dot form `{{.args.id}}` resolves the same as
// `{{args.id}}`.
func splitPath(expr string) []string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	parts := strings.Split(expr, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Render renders the template against a resolver. Unresolved
// expressions render as the empty string.
func (t *Template) Render(r Resolver) string {
	if len(t.segments) == 0 {
		return ""
	}
	var out strings.Builder
	for _, seg := range t.segments {
		if seg.expr == nil {
			out.WriteString(seg.literal)
			continue
		}
		if v, ok := r.PathString(seg.expr); ok {
			out.WriteString(v)
		}
	}
	return out.String()
}

// IsConst reports whether the template contains no expression
// segments — enabling callers to skip rendering entirely for fixed
// URLs/headers.
func (t *Template) IsConst() bool {
	for _, seg := range t.segments {
		if seg.expr != nil {
			return false
		}
	}
	return true
}

// Raw returns the original template text.
func (t *Template) Raw() string { return t.raw }

// String implements fmt.Stringer, returning the template's literal
// source for debugging/logging purposes.
func (t *Template) String() string { return t.raw }
