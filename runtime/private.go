package runtime

import (
	"github.com/wippyai/modgraph/record"
	"github.com/wippyai/modgraph/resource"
)

// Private is the host data attached to every record the runtime creates.
// Records hold a handle to it in the runtime's resource table.
type Private struct {
	Specifier string
	URL       string
	Type      string
}

func (rt *Runtime) attach(r *record.Record, p *Private) {
	r.Private = rt.privates.Insert(resource.KindScript, p)
}

func handleOf(r *record.Record) (resource.Handle, bool) {
	if r == nil {
		return 0, false
	}
	h, ok := r.Private.(resource.Handle)
	return h, ok && h != 0
}

// PrivateOf returns the host data of a record created by the runtime.
func (rt *Runtime) PrivateOf(r *record.Record) (*Private, bool) {
	h, ok := handleOf(r)
	if !ok {
		return nil, false
	}
	v, ok := rt.privates.GetTyped(h, resource.KindScript)
	if !ok {
		return nil, false
	}
	return v.(*Private), true
}

// PrivateRefs returns the number of live references to a record's host
// data. Each in-flight dynamic import started by the record holds one.
func (rt *Runtime) PrivateRefs(r *record.Record) uint32 {
	h, ok := handleOf(r)
	if !ok {
		return 0
	}
	return rt.privates.RefCount(h)
}

func (rt *Runtime) retainPrivate(r *record.Record) (resource.Handle, bool) {
	h, ok := handleOf(r)
	if !ok || !rt.privates.Retain(h) {
		return 0, false
	}
	return h, true
}

// ImportMeta returns the import.meta object of r, creating it on first
// use.
func (rt *Runtime) ImportMeta(r *record.Record) map[string]any {
	return r.ImportMeta(func(r *record.Record, meta map[string]any) {
		if p, ok := rt.PrivateOf(r); ok {
			meta["url"] = p.URL
			meta["type"] = p.Type
		}
		if rt.options.ImportMeta != nil {
			rt.options.ImportMeta(r, meta)
		}
	})
}
