// Package runtime provides the high-level API for loading and running
// module graphs.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt := runtime.New(runtime.DefaultOptions())
//	defer rt.Close(ctx)
//
//	rt.AddSource(runtime.NewMemorySource(map[string][]byte{
//	    "main": []byte("imports:\n  - from: ./dep\n    names: [x]\nbody:\n  - log: \"x is {x}\"\n"),
//	    "dep":  []byte("exports: [x]\ndeclare:\n  let: [x]\nbody:\n  - init: {x: 1}\n"),
//	}))
//
//	p, err := rt.Import(ctx, "main")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt.Drain(ctx)
//	fmt.Println(p.State())
//
// # Module Types
//
// The "type" import assertion selects the compiler; without one the type
// is inferred from the name:
//
//	script  YAML script modules (package script), the default
//	json    JSON documents exposed as the default export
//	yaml    YAML documents exposed as the default export
//	wasm    WebAssembly binaries (package wasmmod), inferred from ".wasm"
//
// Further types are added with RegisterCompiler.
//
// # Resolution
//
// Specifiers starting with "./" or "../" are resolved against the
// importing module's specifier; all others are used as is. Each resolved
// specifier is compiled once, so every importer shares one record.
//
// # Jobs
//
// Promise reactions, top-level await continuations and dynamic imports run
// as jobs on the runtime's queue. Nothing progresses until Drain is called.
// Trace callbacks and compilers run with the runtime lock held and must not
// call back into the Runtime, except DynamicImport.
package runtime
