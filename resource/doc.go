// Package resource provides reference-counted handles for host data
// attached to module records.
//
// Module records carry an opaque host value (the script private): source
// URL, base directory, loader data. The runtime stores those values in a
// Table and keeps only the Handle on the record. Operations that outlive
// the call that started them, such as dynamic imports, retain the
// referrer's handle and release it when they settle, so the value stays
// valid until the last user is done.
//
// # Handle Table
//
// The Table maps integer handles to Go values:
//
//	table := resource.NewTable()
//
//	// Insert a value with a reference count of one
//	handle := table.Insert(resource.KindScript, private)
//
//	// Retain for an in-flight operation, release when done
//	table.Retain(handle)
//	defer table.Release(handle)
//
//	// Retrieve value by handle
//	value, ok := table.Get(handle)
//
// When the count reaches zero the entry is removed and, if the value
// implements Dropper, its Drop method runs.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	table.Subscribe(resource.ObserverFunc(func(event resource.Event) {
//	    if event.Type == resource.EventDropped {
//	        log.Printf("private %d dropped", event.Handle)
//	    }
//	}))
//
// # Memory Management
//
// Entries are not garbage collected. Every Insert and Retain must be paired
// with a Release, or the table must be closed with Close.
package resource
