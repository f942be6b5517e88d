package pathresolver

import "strings"

// Context is the per-field evaluation context every resolver renders
// templates and access expressions against: current field arguments,
// the parent resolved value, request headers, process environment,
// server-level variables, and auth claims. It is scoped to a single
// resolver invocation and never shared across requests.
type Context struct {
	Args    Value
	Value   Value
	Headers map[string]string
	Env     map[string]string
	Vars    map[string]string
	Claims  Value
	// Authenticated records whether the request passed Basic/JWT
	// verification. A bare `@protected` with no access expression
	// checks only this flag.
	Authenticated bool
}

// New builds an empty Context with headers/env/vars ready to populate.
func New() *Context {
	return &Context{
		Headers: map[string]string{},
		Env:     map[string]string{},
		Vars:    map[string]string{},
	}
}

// PathString resolves a dotted segment list to a stringified value, or
// (_, false) if the path is unresolvable. Implements mustache.Resolver.
func (c *Context) PathString(segments []string) (string, bool) {
	v, ok := c.RawValue(segments)
	if !ok {
		return "", false
	}
	return StringOf(v), true
}

// RawValue resolves a dotted segment list to a typed value.
//
// The first segment selects the root: args, value, headers, env,
// vars, claims. Everything after that navigates into the selected
// root via Navigate.
func (c *Context) RawValue(segments []string) (Value, bool) {
	if len(segments) == 0 {
		return nil, false
	}
	root, rest := segments[0], segments[1:]

	switch root {
	case "args":
		return Navigate(c.Args, rest)
	case "value":
		return Navigate(c.Value, rest)
	case "claims":
		return Navigate(c.Claims, rest)
	case "headers":
		return stringMapLookup(c.Headers, rest)
	case "env":
		return stringMapLookup(c.Env, rest)
	case "vars":
		return stringMapLookup(c.Vars, rest)
	default:
		return nil, false
	}
}

func stringMapLookup(m map[string]string, rest []string) (Value, bool) {
	if len(rest) != 1 {
		return nil, false
	}
	v, ok := m[rest[0]]
	if !ok {
		return nil, false
	}
	return v, true
}

// ParsePath splits a dotted path string ("claims.role") into segments,
// used by the access-expression parser, which embeds raw paths in its
// grammar rather than pre-split segment lists.
func ParsePath(s string) []string {
	return strings.Split(s, ".")
}
