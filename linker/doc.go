// Package linker links module graphs.
//
// Instantiate walks every record reachable from a root through its
// requested modules, resolving each request with a ResolveHook, creating
// environments and binding imports to the records that define them.
// Strongly connected components are found with Tarjan's algorithm over
// the DFS indexes kept on each record, and a component becomes Linked as
// a unit once its root is reached.
//
// # Main Types
//
//   - Linker: drives Instantiate, ResolveExport and GetNamespace
//   - ResolveHook: host hook mapping (referrer, request) to a record
//   - Resolver: registry-backed ResolveHook with a fallback hook
//
// # Failure
//
// A failed Instantiate aborts the whole call. Records that were still
// Linking are returned to Unlinked and may be linked again later; records
// that completed their component in an earlier or the same call stay
// Linked.
//
// # Thread Safety
//
// Linker is safe for concurrent use; calls are serialized.
//
// # Example
//
//	l := linker.New(resolver, linker.DefaultOptions())
//	if err := l.Instantiate(ctx, root); err != nil {
//	    return err
//	}
//	ns, _ := l.GetNamespace(root)
package linker
