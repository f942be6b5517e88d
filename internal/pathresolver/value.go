// Package pathresolver implements the uniform string/raw-value path
// navigation over GraphQL values, JSON, headers, and the request
// environment that every templated field and access expression is
// resolved against.
package pathresolver

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a typed GraphQL/JSON value: nil, bool, float64, string,
// []Value, or map[string]Value. It mirrors the shape produced by
// encoding/json.Unmarshal into interface{}.
type Value = interface{}

// Navigate walks v by the given path segments, returning (value, true)
// on a full resolution or (nil, false) if any segment is missing.
// Integer segments index into sequences; all other segments look up
// object keys.
func Navigate(v Value, segments []string) (Value, bool) {
	cur := v
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]Value:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []Value:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// StringOf renders a primitive to its lexical form, and a composite
// (object/array) to its JSON serialization.
func StringOf(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
