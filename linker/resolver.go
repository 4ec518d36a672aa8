package linker

import (
	"context"
	"fmt"
	"sync"

	"github.com/wippyai/modgraph/record"
)

// ResolveHook maps a request made by referrer to a module record.
// It must return the same record for the same (referrer, request) pair
// within one linking pass.
type ResolveHook interface {
	Resolve(ctx context.Context, referrer *record.Record, req *record.ModuleRequest) (*record.Record, error)
}

// ResolveFunc adapts a function to ResolveHook.
type ResolveFunc func(ctx context.Context, referrer *record.Record, req *record.ModuleRequest) (*record.Record, error)

// Resolve calls f.
func (f ResolveFunc) Resolve(ctx context.Context, referrer *record.Record, req *record.ModuleRequest) (*record.Record, error) {
	return f(ctx, referrer, req)
}

// Resolver is a ResolveHook backed by a registry of records.
//
// Resolution priority:
//  1. Record registered under the request specifier
//  2. Fallback hook (if set); its result is registered
//  3. Error
//
// Resolver is thread-safe.
type Resolver struct {
	fallback ResolveHook
	modules  map[string]*record.Record
	order    []string
	mu       sync.RWMutex
}

// NewResolver creates a resolver. fallback may be nil.
func NewResolver(fallback ResolveHook) *Resolver {
	return &Resolver{
		fallback: fallback,
		modules:  make(map[string]*record.Record),
	}
}

// RegisterModule makes a record available under name.
// RegisterModule should be called before linking graphs that import it.
func (r *Resolver) RegisterModule(name string, m *record.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[name]; !ok {
		r.order = append(r.order, name)
	}
	r.modules[name] = m
}

// GetModule returns the record registered under name, or nil.
func (r *Resolver) GetModule(name string) *record.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[name]
}

// Modules returns every registered record in registration order.
func (r *Resolver) Modules() []*record.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*record.Record, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

// Resolve implements ResolveHook.
func (r *Resolver) Resolve(ctx context.Context, referrer *record.Record, req *record.ModuleRequest) (*record.Record, error) {
	if m := r.GetModule(req.Specifier); m != nil {
		return m, nil
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("module %q is not registered", req.Specifier)
	}

	m, err := r.fallback.Resolve(ctx, referrer, req)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("module %q resolved to nothing", req.Specifier)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent resolution may have registered the name first; keep it
	// so every referrer sees one record.
	if existing, ok := r.modules[req.Specifier]; ok {
		return existing, nil
	}
	r.modules[req.Specifier] = m
	r.order = append(r.order, req.Specifier)
	return m, nil
}
