package record

import (
	"github.com/wippyai/modgraph"
	"github.com/wippyai/modgraph/errors"
)

// Builder assembles a Record from parsed import/export syntax.
type Builder struct {
	body          Body
	requests      map[string]*ModuleRequest
	specifier     string
	requested     []RequestedModule
	imports       []ImportEntry
	exports       []ExportEntry
	decls         []Declaration
	functions     []FunctionDecl
	errs          []error
	at            Location
	topLevelAwait bool
}

// NewBuilder starts a record for specifier.
func NewBuilder(specifier string) *Builder {
	return &Builder{
		specifier: specifier,
		requests:  make(map[string]*ModuleRequest),
	}
}

// At sets the source location attached to subsequent entries.
func (b *Builder) At(line, column uint32) *Builder {
	b.at = Location{Line: line, Column: column}
	return b
}

// request returns the request for specifier, appending it to the
// requested module list the first time it is seen. Later clauses naming
// the same specifier share the first request and its assertions.
func (b *Builder) request(specifier string, assertions []Assertion) *ModuleRequest {
	if req, ok := b.requests[specifier]; ok {
		return req
	}
	req := NewModuleRequest(specifier, assertions...)
	b.requests[specifier] = req
	b.requested = append(b.requested, RequestedModule{Request: req, Location: b.at})
	return req
}

// Import adds `import { importName as localName } from specifier`.
func (b *Builder) Import(specifier, importName, localName string, assertions ...Assertion) *Builder {
	if importName == "" {
		b.errs = append(b.errs, errors.Unsupported(errors.PhaseParse, "empty import name in "+b.specifier))
		return b
	}
	req := b.request(specifier, assertions)
	b.imports = append(b.imports, ImportEntry{Request: req, ImportName: importName, LocalName: localName, Location: b.at})
	return b
}

// ImportNamespace adds `import * as localName from specifier`.
func (b *Builder) ImportNamespace(specifier, localName string, assertions ...Assertion) *Builder {
	req := b.request(specifier, assertions)
	b.imports = append(b.imports, ImportEntry{Request: req, LocalName: localName, Location: b.at})
	return b
}

// ImportModule adds a side-effect import, `import specifier`.
func (b *Builder) ImportModule(specifier string, assertions ...Assertion) *Builder {
	b.request(specifier, assertions)
	return b
}

// ExportLocal adds `export { localName as exportName }`.
func (b *Builder) ExportLocal(localName, exportName string) *Builder {
	b.exports = append(b.exports, ExportEntry{ExportName: exportName, LocalName: localName, Location: b.at})
	return b
}

// ExportFrom adds `export { importName as exportName } from specifier`.
func (b *Builder) ExportFrom(specifier, importName, exportName string, assertions ...Assertion) *Builder {
	if importName == "" {
		b.errs = append(b.errs, errors.Unsupported(errors.PhaseParse, "empty re-export name in "+b.specifier))
		return b
	}
	req := b.request(specifier, assertions)
	b.exports = append(b.exports, ExportEntry{Request: req, ExportName: exportName, ImportName: importName, Location: b.at})
	return b
}

// ExportNamespaceFrom adds `export * as exportName from specifier`.
func (b *Builder) ExportNamespaceFrom(specifier, exportName string, assertions ...Assertion) *Builder {
	req := b.request(specifier, assertions)
	b.exports = append(b.exports, ExportEntry{Request: req, ExportName: exportName, Location: b.at})
	return b
}

// ExportStar adds `export * from specifier`.
func (b *Builder) ExportStar(specifier string, assertions ...Assertion) *Builder {
	req := b.request(specifier, assertions)
	b.exports = append(b.exports, ExportEntry{Request: req, Location: b.at})
	return b
}

// Declare adds a top-level var, let, const or class binding.
func (b *Builder) Declare(name string, kind DeclKind) *Builder {
	if kind == DeclFunction || kind == DeclImport {
		b.errs = append(b.errs, errors.Unsupported(errors.PhaseParse, kind.String()+" declarations are added with Function or Import"))
		return b
	}
	b.decls = append(b.decls, Declaration{Name: name, Kind: kind, Location: b.at})
	return b
}

// Function adds a hoisted function declaration.
func (b *Builder) Function(name string, create func(env *Environment) modgraph.Value) *Builder {
	b.functions = append(b.functions, FunctionDecl{Name: name, New: create})
	return b
}

// TopLevelAwait marks the module body as using top-level await.
func (b *Builder) TopLevelAwait() *Builder {
	b.topLevelAwait = true
	return b
}

// Body sets the compiled top-level code.
func (b *Builder) Body(body Body) *Builder {
	b.body = body
	return b
}

// Build validates the collected entries and returns an Unlinked record.
//
// Local exports of imported names become indirect exports, except for
// namespace imports which stay local. Duplicate export names and
// conflicting declarations are rejected.
func (b *Builder) Build() (*Record, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	importsByLocal := make(map[string]ImportEntry, len(b.imports))
	for _, ie := range b.imports {
		if _, dup := importsByLocal[ie.LocalName]; dup {
			return nil, errors.New(errors.PhaseParse, errors.KindDuplicate).
				Module(b.specifier).
				Name(ie.LocalName).
				Detail("duplicate import binding %q", ie.LocalName).
				Build()
		}
		importsByLocal[ie.LocalName] = ie
	}

	declared := make(map[string]bool, len(b.decls)+len(b.functions))
	for _, d := range b.decls {
		if err := b.checkDeclaration(d.Name, declared, importsByLocal); err != nil {
			return nil, err
		}
	}
	for _, fn := range b.functions {
		if err := b.checkDeclaration(fn.Name, declared, importsByLocal); err != nil {
			return nil, err
		}
	}

	r := &Record{
		Specifier:        b.specifier,
		Body:             b.body,
		HasTopLevelAwait: b.topLevelAwait,
		RequestedModules: b.requested,
		ImportEntries:    b.imports,
		Declarations:     b.decls,
		functions:        b.functions,
	}

	exported := make(map[string]bool, len(b.exports))
	for _, ee := range b.exports {
		if ee.ExportName != "" {
			if exported[ee.ExportName] {
				return nil, errors.New(errors.PhaseParse, errors.KindDuplicate).
					Module(b.specifier).
					Name(ee.ExportName).
					Detail("duplicate export %q", ee.ExportName).
					Build()
			}
			exported[ee.ExportName] = true
		}

		switch {
		case ee.IsLocal():
			ie, imported := importsByLocal[ee.LocalName]
			if !imported || ie.IsNamespace() {
				r.LocalExportEntries = append(r.LocalExportEntries, ee)
				continue
			}
			r.IndirectExportEntries = append(r.IndirectExportEntries, ExportEntry{
				Request:    ie.Request,
				ExportName: ee.ExportName,
				ImportName: ie.ImportName,
				Location:   ee.Location,
			})
		case ee.IsStar():
			r.StarExportEntries = append(r.StarExportEntries, ee)
		default:
			r.IndirectExportEntries = append(r.IndirectExportEntries, ee)
		}
	}

	return r, nil
}

func (b *Builder) checkDeclaration(name string, declared map[string]bool, imports map[string]ImportEntry) error {
	if name == NamespaceBindingName {
		return errors.InvalidData(errors.PhaseParse, b.specifier, "reserved binding name "+name)
	}
	if declared[name] {
		return errors.New(errors.PhaseParse, errors.KindDuplicate).
			Module(b.specifier).
			Name(name).
			Detail("duplicate declaration %q", name).
			Build()
	}
	if _, ok := imports[name]; ok {
		return errors.New(errors.PhaseParse, errors.KindDuplicate).
			Module(b.specifier).
			Name(name).
			Detail("%q is already bound by an import", name).
			Build()
	}
	declared[name] = true
	return nil
}
