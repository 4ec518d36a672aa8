package script

import (
	"context"

	"github.com/wippyai/modgraph"
	"github.com/wippyai/modgraph/record"
)

// Function is a hoisted function declared by a script. It closes over the
// module environment, so it can be called before the module body runs.
type Function struct {
	env    *record.Environment
	source FunctionSource
	Name   string
}

// Call returns the binding named by Returns, or the literal value.
func (f *Function) Call(_ context.Context, _ ...modgraph.Value) (modgraph.Value, error) {
	if f.source.Returns != "" {
		return f.env.Get(f.source.Returns)
	}
	return f.source.Value, nil
}

func (f *Function) String() string {
	return "function " + f.Name
}
