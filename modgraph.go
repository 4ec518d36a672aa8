package modgraph

import "context"

// Value is any value a module binding can hold.
type Value = any

type undefinedType struct{}

func (undefinedType) String() string { return "undefined" }

type uninitializedType struct{}

func (uninitializedType) String() string { return "<uninitialized>" }

// Undefined is the value of a declared but unassigned var binding.
var Undefined Value = undefinedType{}

// Uninitialized marks a lexical binding in its temporal dead zone.
// Reading a slot holding it is an error, never a value.
var Uninitialized Value = uninitializedType{}

// IsUninitialized reports whether v is the temporal-dead-zone sentinel.
func IsUninitialized(v Value) bool {
	_, ok := v.(uninitializedType)
	return ok
}

// IsUndefined reports whether v is Undefined or a nil interface.
func IsUndefined(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(undefinedType)
	return ok
}

// Callable is a binding value that can be invoked, such as a hoisted
// function declaration or an exported WebAssembly function.
type Callable interface {
	Call(ctx context.Context, args ...Value) (Value, error)
}
