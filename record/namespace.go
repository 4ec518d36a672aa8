package record

import (
	"sort"

	"github.com/wippyai/modgraph"
	"github.com/wippyai/modgraph/errors"
)

// ToStringTag is the value of a namespace's @@toStringTag property.
const ToStringTag = "Module"

// Namespace is the module namespace exotic object of a record: a
// read-only, non-extensible view whose properties are the record's
// exports, each reading the live value of its binding.
type Namespace struct {
	module   *Record
	bindings *BindingMap
	exports  []string
}

// NewNamespace creates a namespace for module exposing exports.
// Bindings are added afterwards with AddBinding.
func NewNamespace(module *Record, exports []string) *Namespace {
	sorted := append([]string(nil), exports...)
	sort.Strings(sorted)
	return &Namespace{
		module:   module,
		bindings: NewBindingMap(),
		exports:  sorted,
	}
}

// Module returns the record the namespace belongs to.
func (ns *Namespace) Module() *Record {
	return ns.module
}

// AddBinding records that exportedName reads targetName in target.
// It panics if exportedName is already bound.
func (ns *Namespace) AddBinding(exportedName string, target *Record, targetName string) {
	ns.bindings.Add(exportedName, target, targetName)
}

// Lookup returns the binding for an exported name. The synthetic
// namespace name is never visible through a namespace.
func (ns *Namespace) Lookup(name string) (Binding, bool) {
	if name == NamespaceBindingName {
		return Binding{}, false
	}
	return ns.bindings.Lookup(name)
}

// Has reports whether name is an export.
func (ns *Namespace) Has(name string) bool {
	i := sort.SearchStrings(ns.exports, name)
	return i < len(ns.exports) && ns.exports[i] == name
}

// OwnKeys returns the export names in sorted order.
func (ns *Namespace) OwnKeys() []string {
	return append([]string(nil), ns.exports...)
}

// Get reads the live value of an export. Names that are not exported read
// as Undefined. An export still in its temporal dead zone fails with
// errors.KindUninitialized.
func (ns *Namespace) Get(name string) (modgraph.Value, error) {
	if !ns.Has(name) {
		return modgraph.Undefined, nil
	}
	b, ok := ns.bindings.Lookup(name)
	if !ok {
		return nil, errors.InvalidState(errors.PhaseNamespace, ns.module.Specifier,
			"export "+name+" has no binding")
	}
	env, i, ok := b.Resolve()
	if !ok {
		return nil, errors.NotFound(errors.PhaseNamespace, "binding", b.String())
	}
	v := env.Slot(i)
	if modgraph.IsUninitialized(v) {
		return nil, errors.Uninitialized(ns.module.Specifier, name)
	}
	return v, nil
}

// Set always fails: namespaces are read-only.
func (ns *Namespace) Set(name string, _ modgraph.Value) error {
	return errors.ReadOnly(ns.module.Specifier, name)
}

// DefineProperty always fails: namespace properties are non-configurable.
func (ns *Namespace) DefineProperty(name string, _ modgraph.Value) error {
	return errors.ReadOnly(ns.module.Specifier, name)
}

// Delete always fails: namespace properties cannot be removed.
func (ns *Namespace) Delete(name string) error {
	return errors.ReadOnly(ns.module.Specifier, name)
}

// GetPrototype returns nil; namespaces have no prototype.
func (ns *Namespace) GetPrototype() any {
	return nil
}

// SetPrototype succeeds only when proto is nil.
func (ns *Namespace) SetPrototype(proto any) error {
	if proto == nil {
		return nil
	}
	return errors.ReadOnly(ns.module.Specifier, "[[Prototype]]")
}

// IsExtensible always reports false.
func (ns *Namespace) IsExtensible() bool {
	return false
}

// PreventExtensions is a no-op that always succeeds.
func (ns *Namespace) PreventExtensions() bool {
	return true
}

// ToStringTag returns "Module".
func (ns *Namespace) ToStringTag() string {
	return ToStringTag
}

// Snapshot reads every export into a map. Exports in their temporal dead
// zone are reported in the returned error map instead.
func (ns *Namespace) Snapshot() (map[string]modgraph.Value, map[string]error) {
	values := make(map[string]modgraph.Value, len(ns.exports))
	var errs map[string]error
	for _, name := range ns.exports {
		v, err := ns.Get(name)
		if err != nil {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[name] = err
			continue
		}
		values[name] = v
	}
	return values, errs
}
