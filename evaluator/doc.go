// Package evaluator runs the bodies of linked module graphs.
//
// Evaluate walks the graph depth first, running each record's body after
// its dependencies, and returns the promise of the cycle root's top-level
// capability. Records that use top-level await, or depend on one that
// does, become EvaluatingAsync; they resume from promise reactions when
// the host drains the job queue, in the order they became async.
//
// Errors are sticky: a failed record keeps its first error, every member
// of its strongly connected component gets the same error, and later
// evaluations return it without running any body again.
//
// # Interruption
//
// Cancelling the context passed to Evaluate makes the next body that
// starts fail with an errors.KindTerminated error. Terminate rejects every
// record still waiting on asynchronous work, so nothing stays pending.
//
// # Thread Safety
//
// Evaluator is NOT safe for concurrent use. The owning runtime serializes
// Evaluate calls and queue draining.
package evaluator
