package record

import (
	"context"

	"github.com/wippyai/modgraph"
	"github.com/wippyai/modgraph/promise"
)

// Body is a record's compiled top-level code.
//
// A synchronous body returns (nil, nil) on completion or a non-nil error
// when it throws. A body with top-level await may return a pending promise
// instead; the record then completes when the promise settles.
type Body interface {
	Execute(ctx context.Context, env *Environment) (*promise.Promise, error)
}

// BodyFunc adapts a function to Body.
type BodyFunc func(ctx context.Context, env *Environment) (*promise.Promise, error)

// Execute calls f.
func (f BodyFunc) Execute(ctx context.Context, env *Environment) (*promise.Promise, error) {
	return f(ctx, env)
}

// FunctionDecl is a hoisted top-level function declaration. New creates
// the closure over the record's environment when the record is linked.
type FunctionDecl struct {
	New  func(env *Environment) modgraph.Value
	Name string
}

// Declaration is a non-function top-level binding.
type Declaration struct {
	Name     string
	Kind     DeclKind
	Location Location
}
