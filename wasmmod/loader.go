package wasmmod

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
)

// Config holds configuration for the wasm runtime.
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// Loader compiles wasm binaries into module records on a shared wazero
// runtime.
type Loader struct {
	runtime wazero.Runtime
}

// NewLoader creates a loader with its own wazero runtime.
func NewLoader(ctx context.Context, cfg Config) *Loader {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Loader{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}
}

// Close releases the runtime and every instance created by records it
// compiled.
func (l *Loader) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// Compile validates wasmBytes and returns an Unlinked record exporting the
// binary's functions and memories. witText optionally types exported
// functions.
func (l *Loader) Compile(ctx context.Context, specifier string, wasmBytes []byte, witText string) (*record.Record, error) {
	sigs, err := parseSignatures(witText)
	if err != nil {
		return nil, withModule(err, specifier)
	}

	compiled, err := l.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Module(specifier).
			Detail("compile wasm module").
			Cause(err).
			Build()
	}

	if n := len(compiled.ImportedFunctions()) + len(compiled.ImportedMemories()); n > 0 {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
			Module(specifier).
			Detail("wasm module has %d imports; imports are not supported", n).
			Build()
	}

	funcs := compiled.ExportedFunctions()
	mems := compiled.ExportedMemories()

	for name, sig := range sigs {
		def, ok := funcs[name]
		if !ok {
			_ = compiled.Close(ctx)
			return nil, errors.NotFound(errors.PhaseParse, "wasm export", name)
		}
		if err := sig.check(def); err != nil {
			_ = compiled.Close(ctx)
			return nil, withModule(err, specifier)
		}
	}

	names := make([]string, 0, len(funcs)+len(mems))
	for name := range funcs {
		names = append(names, name)
	}
	for name := range mems {
		names = append(names, name)
	}
	sort.Strings(names)

	b := record.NewBuilder(specifier)
	for _, name := range names {
		b.Declare(name, record.DeclConst)
		b.ExportLocal(name, name)
	}
	b.Body(&instantiate{
		runtime:   l.runtime,
		compiled:  compiled,
		specifier: specifier,
		funcs:     funcs,
		mems:      mems,
		sigs:      sigs,
	})
	return b.Build()
}

// instantiate is the body of a wasm record: it instantiates the module and
// initializes the export bindings.
type instantiate struct {
	runtime   wazero.Runtime
	compiled  wazero.CompiledModule
	funcs     map[string]api.FunctionDefinition
	mems      map[string]api.MemoryDefinition
	sigs      map[string]*signature
	specifier string
}

func (b *instantiate) Execute(ctx context.Context, env *record.Environment) (*promise.Promise, error) {
	mod, err := b.runtime.InstantiateModule(ctx, b.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.New(errors.PhaseEvaluate, errors.KindEvaluation).
			Module(b.specifier).
			Detail("instantiate wasm module").
			Cause(err).
			Build()
	}

	for name, def := range b.funcs {
		fn := &Func{
			Name:   name,
			fn:     mod.ExportedFunction(name),
			params: def.ParamTypes(),
			sig:    b.sigs[name],
		}
		if err := env.Initialize(name, fn); err != nil {
			return nil, err
		}
	}
	for name := range b.mems {
		if err := env.Initialize(name, &Memory{Name: name, mem: mod.ExportedMemory(name)}); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func withModule(err error, specifier string) error {
	if e, ok := err.(*errors.Error); ok && e.Module == "" {
		e.Module = specifier
	}
	return err
}

func (s *signature) check(def api.FunctionDefinition) error {
	if len(s.params) != len(def.ParamTypes()) || len(s.results) != len(def.ResultTypes()) {
		return errors.InvalidData(errors.PhaseParse, "",
			fmt.Sprintf("WIT signature of %s does not match its wasm type", def.ExportNames()))
	}
	for i, t := range s.params {
		if coreType(t) != def.ParamTypes()[i] {
			return errors.InvalidData(errors.PhaseParse, "",
				fmt.Sprintf("WIT parameter %d of %s does not match its wasm type", i, def.ExportNames()))
		}
	}
	for i, t := range s.results {
		if coreType(t) != def.ResultTypes()[i] {
			return errors.InvalidData(errors.PhaseParse, "",
				fmt.Sprintf("WIT result %d of %s does not match its wasm type", i, def.ExportNames()))
		}
	}
	return nil
}
