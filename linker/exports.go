package linker

import (
	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/record"
)

type resolution uint8

const (
	resolutionNone resolution = iota
	resolutionFound
	resolutionAmbiguous
)

type resolveKey struct {
	module *record.Record
	name   string
}

// ResolveExport resolves an export name of m to the record and local name
// that define it, following indirect and star re-exports. It fails with
// errors.KindUnresolvedExport when nothing provides the name (including
// re-export cycles) and errors.KindAmbiguousExport when star exports
// disagree.
func (l *Linker) ResolveExport(m *record.Record, name string) (record.Binding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, res, err := l.resolveExport(m, name, nil)
	if err != nil {
		return record.Binding{}, err
	}
	switch res {
	case resolutionAmbiguous:
		return record.Binding{}, errors.AmbiguousExport(m.Specifier, name)
	case resolutionNone:
		return record.Binding{}, errors.UnresolvedExport(m.Specifier, name, m.Specifier)
	}
	return b, nil
}

func (l *Linker) resolveExport(m *record.Record, name string, resolveSet []resolveKey) (record.Binding, resolution, error) {
	for _, k := range resolveSet {
		if k.module == m && k.name == name {
			// Circular import request.
			return record.Binding{}, resolutionNone, nil
		}
	}
	resolveSet = append(resolveSet, resolveKey{module: m, name: name})

	for _, e := range m.LocalExportEntries {
		if e.ExportName == name {
			return record.Binding{Module: m, Name: e.LocalName}, resolutionFound, nil
		}
	}

	for _, e := range m.IndirectExportEntries {
		if e.ExportName != name {
			continue
		}
		imported, err := m.ImportedModule(e.Request)
		if err != nil {
			return record.Binding{}, resolutionNone, err
		}
		if e.IsNamespaceReexport() {
			return record.Binding{Module: imported, Name: record.NamespaceBindingName}, resolutionFound, nil
		}
		return l.resolveExport(imported, e.ImportName, resolveSet)
	}

	if name == "default" {
		// Star exports never provide a default export.
		return record.Binding{}, resolutionNone, nil
	}

	var star record.Binding
	found := false
	for _, e := range m.StarExportEntries {
		imported, err := m.ImportedModule(e.Request)
		if err != nil {
			return record.Binding{}, resolutionNone, err
		}
		b, res, err := l.resolveExport(imported, name, resolveSet)
		if err != nil {
			return record.Binding{}, resolutionNone, err
		}
		switch res {
		case resolutionAmbiguous:
			return record.Binding{}, resolutionAmbiguous, nil
		case resolutionFound:
			if !found {
				star, found = b, true
				continue
			}
			if b.Module != star.Module || b.Name != star.Name {
				return record.Binding{}, resolutionAmbiguous, nil
			}
		}
	}
	if !found {
		return record.Binding{}, resolutionNone, nil
	}
	return star, resolutionFound, nil
}

// GetExportedNames returns every name m exports, directly or through star
// exports, in discovery order. Names ambiguous across star exports are
// included; "default" is never taken from a star export.
func (l *Linker) GetExportedNames(m *record.Record) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exportedNames(m, nil)
}

func (l *Linker) exportedNames(m *record.Record, starSet map[*record.Record]bool) ([]string, error) {
	if starSet == nil {
		starSet = make(map[*record.Record]bool)
	}
	if starSet[m] {
		// Star export cycle.
		return nil, nil
	}
	starSet[m] = true

	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, e := range m.LocalExportEntries {
		add(e.ExportName)
	}
	for _, e := range m.IndirectExportEntries {
		add(e.ExportName)
	}
	for _, e := range m.StarExportEntries {
		imported, err := m.ImportedModule(e.Request)
		if err != nil {
			return nil, err
		}
		starNames, err := l.exportedNames(imported, starSet)
		if err != nil {
			return nil, err
		}
		for _, n := range starNames {
			if n != "default" {
				add(n)
			}
		}
	}
	return names, nil
}

// GetNamespace returns m's namespace, creating it on first call. The
// namespace exposes every export name that resolves unambiguously.
func (l *Linker) GetNamespace(m *record.Record) (*record.Namespace, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.namespace(m)
}

func (l *Linker) namespace(m *record.Record) (*record.Namespace, error) {
	if ns := m.Namespace(); ns != nil {
		return ns, nil
	}
	if m.Status() == record.StatusUnlinked {
		return nil, errors.InvalidState(errors.PhaseNamespace, m.Specifier, "namespace requested for unlinked module")
	}

	names, err := l.exportedNames(m, nil)
	if err != nil {
		return nil, err
	}

	var exports []string
	bindings := make(map[string]record.Binding, len(names))
	for _, name := range names {
		b, res, err := l.resolveExport(m, name, nil)
		if err != nil {
			return nil, err
		}
		if res == resolutionFound {
			exports = append(exports, name)
			bindings[name] = b
		}
	}

	// Installed before binding so self-referencing namespaces terminate.
	ns := record.NewNamespace(m, exports)
	m.SetNamespace(ns)

	for _, name := range exports {
		b := bindings[name]
		if b.IsNamespace() {
			if _, err := l.namespace(b.Module); err != nil {
				return nil, err
			}
		}
		ns.AddBinding(name, b.Module, b.Name)
	}
	return ns, nil
}
