// Package errors provides structured error types for the module graph.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the module specifier, the binding or export name, the value
// thrown by a module body and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindUnresolvedExport).
//		Module("./app").
//		Name("config").
//		Detail("no export named config in ./settings").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Uninitialized("./app", "counter")
//	err := errors.Resolution("./app", "./missing", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// Errors stored as a module's evaluation error are returned unchanged to every
// later importer.
package errors
