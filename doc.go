// Package modgraph provides a Go implementation of the ECMAScript module graph
// machinery: Cyclic Module Records, linking and evaluation (ECMA-262 §16.2.1).
//
// The library links and evaluates graphs of module records produced by a host
// compiler, including cyclic graphs and graphs using top-level await. Parsing
// and executing module bodies stay with the host: a record carries an opaque
// Body that runs against the record's environment.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	modgraph/            Root package with the shared value sentinels
//	├── record/          Module records, requests, entries, environments, namespaces
//	├── linker/          Instantiate: DFS linking with SCC detection, export resolution
//	├── evaluator/       Evaluate: ordered sync/async evaluation, cycle-wide errors
//	├── promise/         Promise capabilities and the job (microtask) queue
//	├── runtime/         High-level API: registry, resolve/compile hooks, dynamic import
//	├── script/          YAML module source format used as the reference compile hook
//	├── wasmmod/         WebAssembly module records backed by wazero
//	├── resource/        Ref-counted table for host-defined script privates
//	├── errors/          Structured error types for debugging
//	└── cmd/modgraph/    CLI and interactive graph inspector
//
// # Quick Start
//
// Load and evaluate a graph held in memory:
//
//	rt := runtime.New(runtime.DefaultOptions())
//	rt.AddSource(runtime.NewMemorySource(map[string][]byte{
//	    "main": mainSrc,
//	    "dep":  depSrc,
//	}))
//
//	p, err := rt.Import(ctx, "main")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt.Drain(ctx)
//	fmt.Println(p.State())
//
// # Thread Safety
//
// Runtime serialises access to its graph and is safe for concurrent use.
// Linker, Evaluator and records are NOT thread-safe: a module graph is only
// ever touched by one logical thread of control at a time.
package modgraph
