// Package promise provides the promise capabilities and job queue used to
// drive asynchronous module evaluation.
//
// Promises are go-eventloop ChainedPromises and jobs are microtasks of the
// loop owned by a Queue. A Promise settles exactly once and mirrors its
// state so the evaluator can inspect it synchronously. Reactions registered
// with Then or Handle never run synchronously, and nothing runs until the
// host calls Drain, mirroring the ECMAScript microtask checkpoint.
//
//	q := promise.NewQueue()
//	defer q.Close(ctx)
//	capability := promise.NewCapability(q)
//	capability.Promise.Handle(
//	    func(v any) { fmt.Println("fulfilled", v) },
//	    func(err error) { fmt.Println("rejected", err) },
//	)
//	capability.Resolve(42)
//	q.Drain(ctx) // prints "fulfilled 42"
package promise
