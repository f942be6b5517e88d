package config

import (
	"fmt"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
)

// ArgValue converts a gqlparser AST value literal into a plain Go
// value (string/float64/bool/nil/[]any/map[string]any), the shape
// pathresolver.Value and encoding/json both expect. Variable
// references are rejected — the configuration SDL's directive
// arguments are always static literals, never operation variables.
func ArgValue(v *ast.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.Kind {
	case ast.NullValue:
		return nil, nil
	case ast.IntValue:
		n, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid int literal %q: %w", v.Raw, err)
		}
		return float64(n), nil
	case ast.FloatValue:
		f, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid float literal %q: %w", v.Raw, err)
		}
		return f, nil
	case ast.BooleanValue:
		return v.Raw == "true", nil
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw, nil
	case ast.ListValue:
		out := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			cv, err := ArgValue(c.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	case ast.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			cv, err := ArgValue(c.Value)
			if err != nil {
				return nil, err
			}
			out[c.Name] = cv
		}
		return out, nil
	case ast.Variable:
		return nil, fmt.Errorf("config: directive arguments must be literals, got variable $%s", v.Raw)
	default:
		return nil, fmt.Errorf("config: unsupported value kind %v", v.Kind)
	}
}

// ArgString reads a string-typed directive argument.
func ArgString(dir *ast.Directive, name string) (string, bool) {
	if dir == nil {
		return "", false
	}
	a := dir.Arguments.ForName(name)
	if a == nil || a.Value == nil {
		return "", false
	}
	return a.Value.Raw, true
}

// ArgStringOr reads a string argument, falling back to def.
func ArgStringOr(dir *ast.Directive, name, def string) string {
	if v, ok := ArgString(dir, name); ok {
		return v
	}
	return def
}

// ArgBool reads a boolean-typed directive argument.
func ArgBool(dir *ast.Directive, name string) (bool, bool) {
	if dir == nil {
		return false, false
	}
	a := dir.Arguments.ForName(name)
	if a == nil || a.Value == nil {
		return false, false
	}
	return a.Value.Raw == "true", true
}

func ArgBoolOr(dir *ast.Directive, name string, def bool) bool {
	if v, ok := ArgBool(dir, name); ok {
		return v
	}
	return def
}

// ArgInt reads an int-typed directive argument.
func ArgInt(dir *ast.Directive, name string) (int, bool) {
	if dir == nil {
		return 0, false
	}
	a := dir.Arguments.ForName(name)
	if a == nil || a.Value == nil {
		return 0, false
	}
	n, err := strconv.Atoi(a.Value.Raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func ArgIntOr(dir *ast.Directive, name string, def int) int {
	if v, ok := ArgInt(dir, name); ok {
		return v
	}
	return def
}

// ArgJSON reads a JSON-typed directive argument (`@expr(body: JSON)`)
// into a plain Go value.
func ArgJSON(dir *ast.Directive, name string) (any, bool) {
	if dir == nil {
		return nil, false
	}
	a := dir.Arguments.ForName(name)
	if a == nil || a.Value == nil {
		return nil, false
	}
	v, err := ArgValue(a.Value)
	if err != nil {
		return nil, false
	}
	return v, true
}

// ArgStringList reads a list-of-strings directive argument, e.g.
// `@upstream(allowedHeaders: ["Authorization", "X-Tenant"])`.
func ArgStringList(dir *ast.Directive, name string) []string {
	if dir == nil {
		return nil
	}
	a := dir.Arguments.ForName(name)
	if a == nil || a.Value == nil || a.Value.Kind != ast.ListValue {
		return nil
	}
	out := make([]string, 0, len(a.Value.Children))
	for _, c := range a.Value.Children {
		out = append(out, c.Value.Raw)
	}
	return out
}

// ArgKeyValuePairs reads a list of `{key: "...", value: "..."}` object
// literals, the shape @http's `query`/`headers` arguments use.
func ArgKeyValuePairs(dir *ast.Directive, name string) []KeyValue {
	if dir == nil {
		return nil
	}
	a := dir.Arguments.ForName(name)
	if a == nil || a.Value == nil || a.Value.Kind != ast.ListValue {
		return nil
	}
	out := make([]KeyValue, 0, len(a.Value.Children))
	for _, c := range a.Value.Children {
		if c.Value.Kind != ast.ObjectValue {
			continue
		}
		kv := KeyValue{}
		for _, f := range c.Value.Children {
			switch f.Name {
			case "key", "name":
				kv.Key = f.Value.Raw
			case "value":
				kv.Value = f.Value.Raw
			case "skipEmpty":
				kv.SkipEmpty = f.Value.Raw == "true"
			}
		}
		out = append(out, kv)
	}
	return out
}

// KeyValue is one templated key/value pair, used for @http's query and
// header argument lists.
type KeyValue struct {
	Key       string
	Value     string
	SkipEmpty bool
}
