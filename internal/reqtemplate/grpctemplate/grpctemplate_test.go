package grpctemplate

import (
	"testing"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

const weatherProto = `
syntax = "proto3";
package weather;

message ForecastRequest {
  string city = 1;
}

message ForecastResponse {
  double temperature = 1;
}

service WeatherService {
  rpc GetForecast(ForecastRequest) returns (ForecastResponse);
  rpc WatchForecast(ForecastRequest) returns (stream ForecastResponse);
}
`

func parseWeatherDescriptor(t *testing.T) *desc.FileDescriptor {
	t.Helper()
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{"weather.proto": weatherProto}),
	}
	fds, err := parser.ParseFiles("weather.proto")
	require.NoError(t, err)
	require.Len(t, fds, 1)
	return fds[0]
}

func TestRenderUnaryMarshalsInputAndFramesRequest(t *testing.T) {
	fd := parseWeatherDescriptor(t)

	ctx := pathresolver.New()
	ctx.Args = map[string]pathresolver.Value{"city": "Berlin"}

	tpl := Template{
		Service: "weather.WeatherService",
		Method:  "GetForecast",
		Input:   mustache.Parse(`{"city": "{{args.city}}"}`),
	}

	rendered, err := Render(tpl, ctx, fd)
	require.NoError(t, err)
	assert.Equal(t, "/weather.WeatherService/GetForecast", rendered.FullMethod)
	assert.True(t, len(rendered.Frame) > 5)
}

func TestRenderUnknownMethodFails(t *testing.T) {
	fd := parseWeatherDescriptor(t)
	ctx := pathresolver.New()
	tpl := Template{Service: "weather.WeatherService", Method: "DoesNotExist"}
	_, err := Render(tpl, ctx, fd)
	assert.Error(t, err)
}

func TestFingerprintStableForIdenticalCalls(t *testing.T) {
	fd := parseWeatherDescriptor(t)
	ctx := pathresolver.New()
	ctx.Args = map[string]pathresolver.Value{"city": "Paris"}
	tpl := Template{
		Service: "weather.WeatherService",
		Method:  "GetForecast",
		Input:   mustache.Parse(`{"city": "{{args.city}}"}`),
	}
	r1, err := Render(tpl, ctx, fd)
	require.NoError(t, err)
	r2, err := Render(tpl, ctx, fd)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
}
