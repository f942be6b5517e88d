// Package grpctemplate implements the gRPC request template: render a
// JSON input message against an evaluation context, then marshal it to
// protobuf wire bytes via a runtime-loaded descriptor, ready for
// length-prefix framing (internal/codec/grpcframe).
package grpctemplate

import (
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"

	"github.com/gqlforge/gqlforge/internal/codec/grpcframe"
	"github.com/gqlforge/gqlforge/internal/fingerprint"
	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

// StreamMode distinguishes unary calls from server-streaming ones.
type StreamMode int

const (
	Unary StreamMode = iota
	ServerStreaming
)

// Template is a field's gRPC request template: the fully-qualified method,
// the upstream address, and a Mustache-templated JSON body that renders
// down to the request message's fields. The descriptor set that resolves
// the input and output message types is passed separately to Render and
// the Decode functions.
type Template struct {
	Service string // fully-qualified service name, e.g. "weather.WeatherService"
	Method  string // bare method name, e.g. "GetForecast"
	// Address is the upstream gRPC server's "host:port", from @grpc's
	// own `address` argument — like upstream GraphQL servers, a gRPC
	// method has no dedicated `@link` of its own, so the field
	// directive carries the dial target directly.
	Address string
	Input   *mustache.Template
	Stream  StreamMode
}

// Rendered is a concrete outbound gRPC call: the full method path and
// the framed request payload ready to write to the wire.
type Rendered struct {
	Address    string
	FullMethod string
	Frame      []byte
}

// Render renders tpl.Input against ctx, looks up the request message
// type from descriptors, populates it from the rendered JSON, and
// frames the resulting protobuf bytes.
func Render(tpl Template, ctx *pathresolver.Context, descriptors *desc.FileDescriptor) (Rendered, error) {
	svc := descriptors.FindService(tpl.Service)
	if svc == nil {
		return Rendered{}, fmt.Errorf("grpctemplate: service %q not found in descriptor set", tpl.Service)
	}
	methodDesc := svc.FindMethodByName(tpl.Method)
	if methodDesc == nil {
		return Rendered{}, fmt.Errorf("grpctemplate: method %q not found on service %q", tpl.Method, tpl.Service)
	}

	var rendered string
	if tpl.Input != nil {
		rendered = tpl.Input.Render(ctx)
	} else {
		rendered = "{}"
	}

	msg := dynamic.NewMessage(methodDesc.GetInputType())
	if err := msg.UnmarshalJSON([]byte(rendered)); err != nil {
		return Rendered{}, fmt.Errorf("grpctemplate: rendering %s input: %w", tpl.Method, err)
	}
	wire, err := msg.Marshal()
	if err != nil {
		return Rendered{}, fmt.Errorf("grpctemplate: marshaling %s input: %w", tpl.Method, err)
	}

	return Rendered{
		Address:    tpl.Address,
		FullMethod: "/" + tpl.Service + "/" + tpl.Method,
		Frame:      grpcframe.Encode(wire),
	}, nil
}

// DecodeUnary unframes and parses a single response message using the
// method's output type.
func DecodeUnary(tpl Template, descriptors *desc.FileDescriptor, frame []byte) (*dynamic.Message, error) {
	svc := descriptors.FindService(tpl.Service)
	if svc == nil {
		return nil, fmt.Errorf("grpctemplate: service %q not found in descriptor set", tpl.Service)
	}
	methodDesc := svc.FindMethodByName(tpl.Method)
	if methodDesc == nil {
		return nil, fmt.Errorf("grpctemplate: method %q not found on service %q", tpl.Method, tpl.Service)
	}
	dec := grpcframe.NewDecoder()
	payloads := dec.Decode(frame)
	if len(payloads) == 0 {
		return nil, fmt.Errorf("grpctemplate: incomplete frame for %s", tpl.Method)
	}
	out := dynamic.NewMessage(methodDesc.GetOutputType())
	if err := out.Unmarshal(payloads[0]); err != nil {
		return nil, fmt.Errorf("grpctemplate: unmarshaling %s response: %w", tpl.Method, err)
	}
	return out, nil
}

// DecodeStream unframes a server-streaming response chunk into every
// complete message it contains, in arrival order.
func DecodeStream(tpl Template, descriptors *desc.FileDescriptor, dec *grpcframe.Decoder, chunk []byte) ([]*dynamic.Message, error) {
	svc := descriptors.FindService(tpl.Service)
	if svc == nil {
		return nil, fmt.Errorf("grpctemplate: service %q not found in descriptor set", tpl.Service)
	}
	methodDesc := svc.FindMethodByName(tpl.Method)
	if methodDesc == nil {
		return nil, fmt.Errorf("grpctemplate: method %q not found on service %q", tpl.Method, tpl.Service)
	}
	payloads := dec.Decode(chunk)
	out := make([]*dynamic.Message, 0, len(payloads))
	for _, p := range payloads {
		msg := dynamic.NewMessage(methodDesc.GetOutputType())
		if err := msg.Unmarshal(p); err != nil {
			return nil, fmt.Errorf("grpctemplate: unmarshaling %s stream message: %w", tpl.Method, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Fingerprint computes the dedupe/cache key from the rendered call:
// full method path plus the framed request bytes.
func Fingerprint(r Rendered) fingerprint.ID {
	return fingerprint.Bytes(r.FullMethod, string(r.Frame))
}
