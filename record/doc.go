// Package record defines module records and their binding tables.
//
// A Record is one compiled module: its import and export entries, the
// deduplicated list of modules it requests, its top-level body and the
// mutable linking/evaluation state driven by the linker and evaluator
// packages.
//
// # Bindings
//
// Each linked record owns an Environment holding its top-level slots.
// Imported names are indirect: they are stored as a Binding naming the
// record and local name that actually define the value, and reads follow
// the binding at access time so updates are observed live.
//
// A Namespace is the read-only, non-extensible view of a record's exports
// handed to `import * as ns` and dynamic import:
//
//	ns.Get("x")          // live value of the export
//	ns.Set("x", 1)       // always fails with errors.KindReadOnly
//	ns.OwnKeys()         // sorted export names
//
// # Building
//
// Records are assembled with a Builder, which deduplicates requested
// modules and normalizes export entries:
//
//	b := record.NewBuilder("./app.js")
//	b.Import("./util.js", "helper", "helper")
//	b.ExportLocal("main", "main")
//	b.Declare("main", record.DeclLet)
//	r, err := b.Build()
//
// Records are not safe for concurrent use; the runtime serializes access.
package record
