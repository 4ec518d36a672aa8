package linker

import (
	"github.com/wippyai/modgraph/linker/internal/graph"
	"github.com/wippyai/modgraph/record"
)

// Components returns the strongly connected components reachable from root
// over requests resolved so far, dependencies first. Each component ends
// with the record that closes it, matching the order Instantiate links them.
func (l *Linker) Components(root *record.Record) [][]*record.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return graph.Build([]*record.Record{root}, Dependencies).Components()
}

// Cycles returns the components of root's graph that contain a cycle.
func (l *Linker) Cycles(root *record.Record) [][]*record.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return graph.Build([]*record.Record{root}, Dependencies).Cycles()
}

// Dependencies returns the records m's requests resolved to, in request
// order. Unresolved requests are skipped.
func Dependencies(m *record.Record) []*record.Record {
	deps := make([]*record.Record, 0, len(m.RequestedModules))
	for _, rm := range m.RequestedModules {
		if dep, ok := m.LoadedModule(rm.Request.Specifier); ok {
			deps = append(deps, dep)
		}
	}
	return deps
}
