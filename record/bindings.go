package record

import (
	"fmt"
	"sort"
)

// Binding names the record and local name that define a value.
type Binding struct {
	Module *Record
	Name   string
}

// IsNamespace reports whether the binding targets a whole namespace.
func (b Binding) IsNamespace() bool {
	return b.Name == NamespaceBindingName
}

// Resolve returns the environment and slot holding the bound value.
func (b Binding) Resolve() (*Environment, int, bool) {
	if b.Module == nil || b.Module.Environment() == nil {
		return nil, -1, false
	}
	return b.Module.Environment().Lookup(b.Name)
}

func (b Binding) String() string {
	if b.Module == nil {
		return b.Name
	}
	return b.Module.Specifier + "#" + b.Name
}

// BindingMap maps exported names to the bindings that define them.
type BindingMap struct {
	m map[string]Binding
}

// NewBindingMap creates an empty map.
func NewBindingMap() *BindingMap {
	return &BindingMap{m: make(map[string]Binding)}
}

// Add records that name resolves to targetName in target. Adding the same
// name twice is a programming error and panics.
func (bm *BindingMap) Add(name string, target *Record, targetName string) {
	if _, ok := bm.m[name]; ok {
		panic(fmt.Sprintf("record: binding %q added twice", name))
	}
	bm.m[name] = Binding{Module: target, Name: targetName}
}

// Lookup returns the binding for name.
func (bm *BindingMap) Lookup(name string) (Binding, bool) {
	b, ok := bm.m[name]
	return b, ok
}

// LookupSlot resolves name to the environment and slot holding its value.
func (bm *BindingMap) LookupSlot(name string) (*Environment, int, bool) {
	b, ok := bm.m[name]
	if !ok {
		return nil, -1, false
	}
	return b.Resolve()
}

// Len returns the number of bindings.
func (bm *BindingMap) Len() int {
	return len(bm.m)
}

// Names returns the bound names in sorted order, excluding the synthetic
// namespace name.
func (bm *BindingMap) Names() []string {
	names := make([]string, 0, len(bm.m))
	for name := range bm.m {
		if name != NamespaceBindingName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
