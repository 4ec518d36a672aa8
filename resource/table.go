package resource

import (
	"sync"
)

// Table is a reference-counted handle table with lifecycle observers.
type Table struct {
	backend   *LocalBackend
	observers map[uint64]Observer
	obsMu     sync.RWMutex
	nextObs   uint64
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new table with a LocalBackend.
func NewTable() *Table {
	return &Table{
		backend:   NewLocalBackend(),
		observers: make(map[uint64]Observer),
	}
}

// Insert adds a value with a reference count of one and returns its
// handle. A closed table returns 0.
func (t *Table) Insert(kind Kind, value any) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(kind, value)
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:     EventCreated,
		Handle:   handle,
		Kind:     kind,
		Value:    value,
		RefCount: 1,
	})

	return handle
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it has the expected kind.
func (t *Table) GetTyped(handle Handle, kind Kind) (any, bool) {
	actual, ok := t.backend.Kind(handle)
	if !ok || actual != kind {
		return nil, false
	}
	return t.backend.Get(handle)
}

// RefCount returns the number of outstanding references, 0 for an
// invalid handle.
func (t *Table) RefCount(handle Handle) uint32 {
	return t.backend.RefCount(handle)
}

// Retain adds a reference to handle.
func (t *Table) Retain(handle Handle) bool {
	refs, ok := t.backend.Retain(handle)
	if !ok {
		return false
	}
	kind, _ := t.backend.Kind(handle)
	value, _ := t.backend.Get(handle)
	t.notify(Event{
		Type:     EventRetained,
		Handle:   handle,
		Kind:     kind,
		Value:    value,
		RefCount: refs,
	})
	return true
}

// Release drops a reference to handle. It reports whether the entry was
// removed. The second result is false for an invalid handle.
func (t *Table) Release(handle Handle) (dropped bool, ok bool) {
	kind, _ := t.backend.Kind(handle)
	value, refs, dropped, ok := t.backend.Release(handle)
	if !ok {
		return false, false
	}

	t.notify(Event{
		Type:     EventReleased,
		Handle:   handle,
		Kind:     kind,
		Value:    value,
		RefCount: refs,
	})

	if dropped {
		t.drop(handle, kind, value)
	}
	return dropped, true
}

// Remove drops handle regardless of its reference count.
func (t *Table) Remove(handle Handle) (any, bool) {
	kind, ok := t.backend.Kind(handle)
	if !ok {
		return nil, false
	}
	for {
		value, _, dropped, ok := t.backend.Release(handle)
		if !ok {
			return nil, false
		}
		if dropped {
			t.drop(handle, kind, value)
			return value, true
		}
	}
}

func (t *Table) drop(handle Handle, kind Kind, value any) {
	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (t *Table) Subscribe(o Observer) (unsubscribe func()) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = o
	return func() {
		t.obsMu.Lock()
		defer t.obsMu.Unlock()
		delete(t.observers, id)
	}
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Clear drops all entries.
func (t *Table) Clear() {
	// Collect handles first to avoid holding the backend lock during Remove
	var handles []Handle
	t.backend.Each(func(h Handle, _ Kind, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close releases all entries and stops accepting inserts.
func (t *Table) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

// Backend returns the underlying storage.
func (t *Table) Backend() Backend {
	return t.backend
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
