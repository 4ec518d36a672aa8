package runtime

import (
	"context"
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
	"github.com/wippyai/modgraph/script"
	"github.com/wippyai/modgraph/wasmmod"
)

// defaultBinding is the local name of a synthetic default export.
const defaultBinding = "*default*"

// Compiler turns a loaded unit into an Unlinked record.
type Compiler interface {
	Compile(ctx context.Context, unit *Unit) (*record.Record, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, unit *Unit) (*record.Record, error)

// Compile calls f.
func (f CompilerFunc) Compile(ctx context.Context, unit *Unit) (*record.Record, error) {
	return f(ctx, unit)
}

func (rt *Runtime) compileScript(_ context.Context, u *Unit) (*record.Record, error) {
	return script.Compile(u.Name, u.Data, script.Options{
		Queue:    rt.queue,
		Importer: rt,
		Trace:    rt.trace,
	})
}

func (rt *Runtime) compileWasm(ctx context.Context, u *Unit) (*record.Record, error) {
	if rt.wasm == nil {
		rt.wasm = wasmmod.NewLoader(ctx, wasmmod.Config{MemoryLimitPages: rt.options.MemoryLimitPages})
	}
	return rt.wasm.Compile(ctx, u.Name, u.Data, u.WIT)
}

func compileJSON(_ context.Context, u *Unit) (*record.Record, error) {
	var v any
	if err := json.Unmarshal(u.Data, &v); err != nil {
		return nil, parseError(u, "json module", err)
	}
	return syntheticDefault(u.Name, v)
}

func compileYAML(_ context.Context, u *Unit) (*record.Record, error) {
	var v any
	if err := yaml.Unmarshal(u.Data, &v); err != nil {
		return nil, parseError(u, "yaml module", err)
	}
	return syntheticDefault(u.Name, v)
}

func parseError(u *Unit, what string, err error) error {
	e := errors.ParseFailed(what, err)
	e.Module = u.Name
	return e
}

// syntheticDefault builds a record whose only export is a default export
// holding v. The value becomes visible when the record is evaluated.
func syntheticDefault(specifier string, v any) (*record.Record, error) {
	return record.NewBuilder(specifier).
		Declare(defaultBinding, record.DeclConst).
		ExportLocal(defaultBinding, "default").
		Body(record.BodyFunc(func(_ context.Context, env *record.Environment) (*promise.Promise, error) {
			return nil, env.Initialize(defaultBinding, v)
		})).
		Build()
}
