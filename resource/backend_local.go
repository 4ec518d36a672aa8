package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed   = errors.New("resource backend closed")
	ErrOverflow = errors.New("resource reference count overflow")
)

// LocalBackend is an in-memory backend with reference counting.
// Implements Backend.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value    any
	kind     Kind
	refCount uint32
	valid    bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(kind Kind, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry{
		kind:     kind,
		value:    value,
		refCount: 1,
		valid:    true,
	}

	if len(b.freeList) > 0 {
		handle := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[handle-1] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

// lookup returns the live entry for handle. Callers hold b.mu.
func (b *LocalBackend) lookup(handle Handle) *entry {
	if handle == 0 {
		return nil
	}
	idx := handle - 1
	if int(idx) >= len(b.entries) {
		return nil
	}
	e := &b.entries[idx]
	if !e.valid {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Kind returns the kind for a handle.
func (b *LocalBackend) Kind(handle Handle) (Kind, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.kind, true
}

// RefCount returns the reference count for a handle.
func (b *LocalBackend) RefCount(handle Handle) uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0
	}
	return e.refCount
}

// Retain increments the reference count for a handle.
func (b *LocalBackend) Retain(handle Handle) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil || e.refCount == ^uint32(0) {
		return 0, false
	}
	e.refCount++
	return e.refCount, true
}

// Release decrements the reference count and removes the entry at zero.
func (b *LocalBackend) Release(handle Handle) (any, uint32, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, 0, false, false
	}

	e.refCount--
	if e.refCount > 0 {
		return e.value, e.refCount, false, true
	}

	value := e.value
	e.valid = false
	e.value = nil
	b.freeList = append(b.freeList, handle)
	return value, 0, true, true
}

// Close releases all entries regardless of their reference counts.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for i := range b.entries {
		if b.entries[i].valid {
			if d, ok := b.entries[i].value.(Dropper); ok {
				d.Drop()
			}
			b.entries[i].valid = false
			b.entries[i].value = nil
		}
	}

	b.entries = nil
	b.freeList = nil
	return nil
}

// Len returns the number of live entries.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all live entries.
func (b *LocalBackend) Each(fn func(Handle, Kind, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(i+1), e.kind, e.value) {
				break
			}
		}
	}
}
