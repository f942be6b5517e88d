// Package scripting implements the `@js`/`@link(type: Script)`
// extension: a single shared JavaScript runtime, loaded once from the
// link's source file, whose top-level functions become IO.Js targets.
//
// goja.Runtime is not goroutine-safe, so Engine serializes calls
// behind a mutex.
package scripting

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
)

// Engine wraps one goja.Runtime loaded with a script source. All
// exported top-level functions are callable by name via Call.
type Engine struct {
	mu  sync.Mutex
	vm  *goja.Runtime
}

// New compiles and runs source (the `@link(type: Script, src: …)`
// file contents) in a fresh runtime, registering its top-level
// function declarations.
func New(source string) (*Engine, error) {
	vm := goja.New()
	if _, err := vm.RunString(source); err != nil {
		return nil, plerrors.Wrap(plerrors.ConfigInvalid, "scripting: loading script source", err)
	}
	return &Engine{vm: vm}, nil
}

// Call invokes the named top-level function with a single JSON-decoded
// input argument, returning its JSON-re-encodable result.
//
// A script function is expected to be pure with respect to the
// gateway's request lifecycle: it receives the rendered input value
// and returns a plain value, mirroring how `IO.Js` is documented as a
// leaf alongside Http/Grpc/Postgres/S3 rather than as control flow.
func (e *Engine) Call(name string, input any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fnVal := e.vm.Get(name)
	if fnVal == nil || goja.IsUndefined(fnVal) {
		return nil, plerrors.New(plerrors.UpstreamProtocol, fmt.Sprintf("scripting: function %q not defined", name))
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, plerrors.New(plerrors.UpstreamProtocol, fmt.Sprintf("scripting: %q is not a function", name))
	}

	result, err := fn(goja.Undefined(), e.vm.ToValue(input))
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, fmt.Sprintf("scripting: calling %q", name), err)
	}

	exported := result.Export()
	// Round-trip through JSON so the result matches the plain
	// map[string]any/[]any/primitive shape the rest of the engine
	// (pathresolver.Value) expects, rather than goja's own object
	// wrapper types.
	raw, err := json.Marshal(exported)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, fmt.Sprintf("scripting: encoding %q result", name), err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, plerrors.Wrap(plerrors.UpstreamProtocol, fmt.Sprintf("scripting: decoding %q result", name), err)
	}
	return out, nil
}
