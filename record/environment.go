package record

import (
	"sort"

	"github.com/wippyai/modgraph"
	"github.com/wippyai/modgraph/errors"
)

// NamespaceBindingName is the synthetic environment slot holding a
// record's own namespace. It is the target of `export * as ns` bindings
// and never appears in enumerations.
const NamespaceBindingName = "*namespace*"

// DeclKind is the kind of a top-level declaration.
type DeclKind uint8

const (
	DeclVar DeclKind = iota
	DeclLet
	DeclConst
	DeclClass
	DeclFunction
	// DeclImport marks immutable import-created slots (namespace imports).
	DeclImport
)

func (k DeclKind) String() string {
	switch k {
	case DeclVar:
		return "var"
	case DeclLet:
		return "let"
	case DeclConst:
		return "const"
	case DeclClass:
		return "class"
	case DeclFunction:
		return "function"
	case DeclImport:
		return "import"
	default:
		return "unknown"
	}
}

// lexical declarations start in the temporal dead zone.
func (k DeclKind) lexical() bool {
	return k == DeclLet || k == DeclConst || k == DeclClass || k == DeclImport
}

func (k DeclKind) mutable() bool {
	return k == DeclVar || k == DeclLet || k == DeclClass || k == DeclFunction
}

type slot struct {
	value modgraph.Value
	name  string
	kind  DeclKind
}

// Environment holds a record's top-level bindings.
// Local names map to slots; imported names map to indirect bindings that
// are followed on every access.
type Environment struct {
	module  *Record
	index   map[string]int
	imports map[string]Binding
	slots   []slot
}

// NewEnvironment creates an empty environment for module.
func NewEnvironment(module *Record) *Environment {
	e := &Environment{
		module:  module,
		index:   make(map[string]int),
		imports: make(map[string]Binding),
	}
	e.slots = append(e.slots, slot{name: NamespaceBindingName, kind: DeclImport, value: modgraph.Uninitialized})
	e.index[NamespaceBindingName] = 0
	return e
}

// Module returns the record owning the environment.
func (e *Environment) Module() *Record {
	return e.module
}

// Declare creates a slot. var and function slots start Undefined, lexical
// slots start Uninitialized. Redeclaring a name with the same kind returns
// the existing slot.
func (e *Environment) Declare(name string, kind DeclKind) (int, error) {
	if i, ok := e.index[name]; ok {
		if e.slots[i].kind == kind {
			return i, nil
		}
		return -1, errors.New(errors.PhaseLink, errors.KindDuplicate).
			Module(e.module.Specifier).
			Name(name).
			Detail("redeclaration of %s %q as %s", e.slots[i].kind, name, kind).
			Build()
	}
	if _, ok := e.imports[name]; ok {
		return -1, errors.New(errors.PhaseLink, errors.KindDuplicate).
			Module(e.module.Specifier).
			Name(name).
			Detail("%q is already bound by an import", name).
			Build()
	}

	s := slot{name: name, kind: kind, value: modgraph.Undefined}
	if kind.lexical() {
		s.value = modgraph.Uninitialized
	}
	e.slots = append(e.slots, s)
	e.index[name] = len(e.slots) - 1
	return len(e.slots) - 1, nil
}

// CreateImportBinding binds localName indirectly to targetName in target.
func (e *Environment) CreateImportBinding(localName string, target *Record, targetName string) error {
	if _, ok := e.index[localName]; ok {
		return errors.New(errors.PhaseLink, errors.KindDuplicate).
			Module(e.module.Specifier).
			Name(localName).
			Detail("import %q collides with a local declaration", localName).
			Build()
	}
	if _, ok := e.imports[localName]; ok {
		return errors.New(errors.PhaseLink, errors.KindDuplicate).
			Module(e.module.Specifier).
			Name(localName).
			Detail("duplicate import %q", localName).
			Build()
	}
	e.imports[localName] = Binding{Module: target, Name: targetName}
	return nil
}

// ResetImports drops every import binding and import-created slot value.
// Used when a failed instantiation is retried.
func (e *Environment) ResetImports() {
	clear(e.imports)
	for i := range e.slots {
		if e.slots[i].kind == DeclImport && e.slots[i].name != NamespaceBindingName {
			e.slots[i].value = modgraph.Uninitialized
		}
	}
}

// Lookup resolves name to the environment and slot that hold its value,
// following import bindings. It reports false for unknown names.
func (e *Environment) Lookup(name string) (*Environment, int, bool) {
	env := e
	// Import bindings always target a local binding after linking; the
	// bound keeps a malformed graph from looping.
	for hops := 0; hops < 64; hops++ {
		if i, ok := env.index[name]; ok {
			return env, i, true
		}
		b, ok := env.imports[name]
		if !ok || b.Module == nil || b.Module.Environment() == nil {
			return nil, -1, false
		}
		env, name = b.Module.Environment(), b.Name
	}
	return nil, -1, false
}

// Slot returns the raw value of slot i.
func (e *Environment) Slot(i int) modgraph.Value {
	return e.slots[i].value
}

// Get reads name. Reading a binding in its temporal dead zone fails with
// errors.KindUninitialized; an unknown name fails with errors.KindNotFound.
func (e *Environment) Get(name string) (modgraph.Value, error) {
	env, i, ok := e.Lookup(name)
	if !ok {
		return nil, errors.New(errors.PhaseNamespace, errors.KindNotFound).
			Module(e.module.Specifier).
			Name(name).
			Detail("%q is not defined", name).
			Build()
	}
	v := env.slots[i].value
	if modgraph.IsUninitialized(v) {
		return nil, errors.Uninitialized(env.module.Specifier, env.slots[i].name)
	}
	return v, nil
}

// Set assigns an initialized mutable local binding.
func (e *Environment) Set(name string, v modgraph.Value) error {
	i, ok := e.index[name]
	if !ok {
		if _, imported := e.imports[name]; imported {
			return errors.ReadOnly(e.module.Specifier, name)
		}
		return errors.New(errors.PhaseNamespace, errors.KindNotFound).
			Module(e.module.Specifier).
			Name(name).
			Detail("%q is not defined", name).
			Build()
	}
	s := &e.slots[i]
	if modgraph.IsUninitialized(s.value) {
		return errors.Uninitialized(e.module.Specifier, name)
	}
	if !s.kind.mutable() {
		return errors.ReadOnly(e.module.Specifier, name)
	}
	s.value = v
	return nil
}

// Initialize sets the first value of a local binding, ending its temporal
// dead zone. Initializing an already initialized const or import fails.
func (e *Environment) Initialize(name string, v modgraph.Value) error {
	i, ok := e.index[name]
	if !ok {
		return errors.New(errors.PhaseNamespace, errors.KindNotFound).
			Module(e.module.Specifier).
			Name(name).
			Detail("%q is not declared", name).
			Build()
	}
	s := &e.slots[i]
	if !s.kind.mutable() && !modgraph.IsUninitialized(s.value) {
		return errors.ReadOnly(e.module.Specifier, name)
	}
	s.value = v
	return nil
}

// IsInitialized reports whether a local binding has left its dead zone.
func (e *Environment) IsInitialized(name string) bool {
	i, ok := e.index[name]
	return ok && !modgraph.IsUninitialized(e.slots[i].value)
}

// Has reports whether name is bound locally or by an import.
func (e *Environment) Has(name string) bool {
	_, _, ok := e.Lookup(name)
	return ok
}

// Kind returns the declaration kind of a local binding.
func (e *Environment) Kind(name string) (DeclKind, bool) {
	i, ok := e.index[name]
	if !ok {
		return 0, false
	}
	return e.slots[i].kind, true
}

// Names returns the sorted local and imported names, excluding the
// synthetic namespace slot.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.index)+len(e.imports))
	for name := range e.index {
		if name != NamespaceBindingName {
			names = append(names, name)
		}
	}
	for name := range e.imports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Import returns the import binding for localName, if any.
func (e *Environment) Import(localName string) (Binding, bool) {
	b, ok := e.imports[localName]
	return b, ok
}

func (e *Environment) initNamespace(ns *Namespace) {
	e.slots[0].value = ns
}
