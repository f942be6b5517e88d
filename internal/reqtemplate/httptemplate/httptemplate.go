// Package httptemplate implements the HTTP request template: render a
// Mustache-templated URL, query, headers, and body into a concrete
// outbound HTTP request description.
package httptemplate

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/gqlforge/gqlforge/internal/fingerprint"
	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

// Encoding selects how Body is rendered for non-GET requests.
type Encoding int

const (
	ApplicationJSON Encoding = iota
	FormURLEncoded
)

// QueryParam is one query-string entry; with SkipEmpty set, a
// templated param is omitted entirely when its rendered value is
// empty. ValuePath, if set, is resolved as a raw
// (possibly list-typed) value so a sequence fans out into repeated
// `k=v1&k=v2` pairs; otherwise Value is rendered as plain text.
type QueryParam struct {
	Key       string
	Value     *mustache.Template
	ValuePath []string
	SkipEmpty bool
}

// Header is one request header template.
type Header struct {
	Name  string
	Value *mustache.Template
}

// Template is a field's HTTP request template.
type Template struct {
	RootURL  *mustache.Template
	Method   string
	Query    []QueryParam
	Headers  []Header
	Body     *mustache.Template
	Encoding Encoding
}

// Rendered is the concrete outbound request produced by rendering a
// Template against a context.
type Rendered struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// Render renders tpl against ctx, inheriting allowedHeaders from the
// incoming request where configured (per-template headers override).
func Render(tpl Template, ctx *pathresolver.Context, incoming map[string]string, allowedHeaders []string) (Rendered, error) {
	method := tpl.Method
	if method == "" {
		method = "GET"
	}

	u, err := url.Parse(tpl.RootURL.Render(ctx))
	if err != nil {
		return Rendered{}, err
	}
	q := u.Query()
	// Drop any existing query pairs with an empty value.
	for k := range q {
		vals := q[k]
		var kept []string
		for _, v := range vals {
			if v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			q.Del(k)
		} else {
			q[k] = kept
		}
	}
	for _, qp := range tpl.Query {
		values := resolveQueryValues(qp, ctx)
		if len(values) == 0 && qp.SkipEmpty {
			continue
		}
		for _, v := range values {
			if v == "" && qp.SkipEmpty {
				continue
			}
			q.Add(qp.Key, v)
		}
	}
	u.RawQuery = q.Encode()

	headers := map[string]string{}
	for _, name := range allowedHeaders {
		v, ok := incoming[name]
		if !ok {
			v, ok = incoming[strings.ToLower(name)]
		}
		if ok {
			headers[name] = v
		}
	}
	for _, h := range tpl.Headers {
		headers[h.Name] = h.Value.Render(ctx)
	}

	var body string
	if tpl.Body != nil {
		rendered := tpl.Body.Render(ctx)
		switch tpl.Encoding {
		case FormURLEncoded:
			body, err = jsonToForm(rendered)
			if err != nil {
				return Rendered{}, err
			}
			if method != "GET" {
				headers["Content-Type"] = "application/x-www-form-urlencoded"
			}
		default:
			body = rendered
			if method != "GET" {
				headers["Content-Type"] = "application/json"
			}
		}
	}

	return Rendered{URL: u.String(), Method: method, Headers: headers, Body: body}, nil
}

// resolveQueryValues flattens a list-typed raw value into repeated
// query pairs; any other shape renders as a single value.
func resolveQueryValues(qp QueryParam, ctx *pathresolver.Context) []string {
	if len(qp.ValuePath) > 0 {
		if raw, ok := ctx.RawValue(qp.ValuePath); ok {
			if list, ok := raw.([]pathresolver.Value); ok {
				out := make([]string, len(list))
				for i, v := range list {
					out[i] = pathresolver.StringOf(v)
				}
				return out
			}
			return []string{pathresolver.StringOf(raw)}
		}
		return nil
	}
	return []string{qp.Value.Render(ctx)}
}

func jsonToForm(rendered string) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(rendered), &obj); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	form := url.Values{}
	for _, k := range keys {
		form.Set(k, pathresolver.StringOf(obj[k]))
	}
	return form.Encode(), nil
}

// Fingerprint computes the dedupe/cache key from the rendered request:
// method + URL + headers + body.
func Fingerprint(r Rendered) fingerprint.ID {
	return fingerprint.HTTP(r.Method, r.URL, r.Headers, r.Body)
}
