package resource

// Handle is an opaque reference to an entry in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind tags the type of value behind a handle.
type Kind uint32

const (
	// KindScript marks a module record's host private.
	KindScript Kind = iota + 1
	// KindImport marks the state of an in-flight dynamic import.
	KindImport
)

// EventType identifies a lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRetained
	EventReleased
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventRetained:
		return "retained"
	case EventReleased:
		return "released"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event represents a lifecycle event.
type Event struct {
	Value    any
	Handle   Handle
	Kind     Kind
	RefCount uint32
	Type     EventType
}

// Observer receives notifications about lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnResourceEvent calls f.
func (f ObserverFunc) OnResourceEvent(e Event) {
	f(e)
}

// Backend provides the underlying storage mechanism.
type Backend interface {
	// Create stores a value with a reference count of one.
	Create(kind Kind, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Retain increments the reference count.
	Retain(handle Handle) (uint32, bool)

	// Release decrements the reference count. When it reaches zero the
	// entry is removed and returned with dropped set.
	Release(handle Handle) (value any, refs uint32, dropped bool, ok bool)

	// Close releases every entry.
	Close() error
}

// Dropper is optionally implemented by values that need cleanup when
// their last reference is released.
type Dropper interface {
	Drop()
}
