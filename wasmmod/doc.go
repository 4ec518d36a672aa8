// Package wasmmod turns WebAssembly binaries into module records.
//
// A wasm module record exports every function and memory the binary
// exports, as const bindings. The module is compiled when the record is
// built and instantiated when the record is evaluated, so a start function
// runs in evaluation order with the rest of the graph.
//
//	loader := wasmmod.NewLoader(ctx, wasmmod.Config{})
//	defer loader.Close(ctx)
//
//	rec, err := loader.Compile(ctx, "./math.wasm", wasmBytes, `add: func(a: u32, b: u32) -> u32;`)
//
// Exported functions are modgraph.Callable. Arguments and results are
// converted by the core wasm signature, or by the WIT signature when one is
// given for the function.
//
// Modules that import anything are rejected: wasm imports are not linked
// against the module graph.
package wasmmod
