// Package errors defines the gateway's error-kind taxonomy.
//
// Every error a resolver can raise is classified into one of these
// kinds so the evaluator (internal/evaluator) and the HTTP layer
// (internal/gateway) know its disposition: fail startup, surface as a
// field error with an HTTP status, or terminate a stream.
package errors

import "fmt"

// Kind classifies an error for propagation/disposition purposes.
type Kind string

const (
	ConfigInvalid       Kind = "CONFIG_INVALID"
	TemplateUnresolved  Kind = "TEMPLATE_UNRESOLVED"
	UpstreamHTTP        Kind = "UPSTREAM_HTTP"
	UpstreamProtocol    Kind = "UPSTREAM_PROTOCOL"
	SQLError            Kind = "SQL_ERROR"
	UnknownColumn       Kind = "UNKNOWN_COLUMN"
	AuthUnauthenticated Kind = "AUTH_UNAUTHENTICATED"
	AuthForbidden       Kind = "AUTH_FORBIDDEN"
	Timeout             Kind = "TIMEOUT"
	Cancelled           Kind = "CANCELLED"
	PathNotFound        Kind = "PATH_NOT_FOUND"
)

// Error is a kinded error carrying an optional GraphQL response path
// and, for UpstreamHTTP, the upstream status code.
type Error struct {
	Kind       Kind
	Message    string
	Path       []string
	Status     int // only meaningful for UpstreamHTTP
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Underlying }

// New builds a kinded error with no path. The evaluator does not fill
// Path in; it reports a failing field's response path on the GraphQL
// error entry instead.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a kinded error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Underlying: cause}
}

// WithPath returns a copy of the error with the given response path
// prepended (field closest to the error comes first).
func (e *Error) WithPath(segment string) *Error {
	cp := *e
	cp.Path = append([]string{segment}, e.Path...)
	return &cp
}

// HTTPStatus maps an error kind to the top-level HTTP status the
// gateway's HTTP transport should use.
func HTTPStatus(kind Kind) int {
	switch kind {
	case AuthUnauthenticated:
		return 401
	case AuthForbidden:
		return 403
	case Timeout:
		return 504
	case ConfigInvalid:
		return 500
	default:
		return 200 // partial-failure: errors travel in the GraphQL errors array
	}
}
