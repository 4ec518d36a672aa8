package record

// ImportEntry is one imported binding.
// An empty ImportName denotes a namespace import (`import * as ns`).
type ImportEntry struct {
	Request    *ModuleRequest
	ImportName string
	LocalName  string
	Location   Location
}

// IsNamespace reports whether the entry imports the whole namespace.
func (e ImportEntry) IsNamespace() bool {
	return e.ImportName == ""
}

// ExportEntry is one exported binding. It has three disjoint shapes:
//
//	local:    LocalName set, Request nil
//	indirect: Request set with ImportName and/or ExportName;
//	          an empty ImportName with ExportName set is `export * as ns`
//	star:     Request set, ExportName and ImportName empty
type ExportEntry struct {
	Request    *ModuleRequest
	ExportName string
	ImportName string
	LocalName  string
	Location   Location
}

// IsLocal reports whether the entry exports a binding of this module.
func (e ExportEntry) IsLocal() bool {
	return e.Request == nil
}

// IsStar reports whether the entry is `export * from`.
func (e ExportEntry) IsStar() bool {
	return e.Request != nil && e.ExportName == "" && e.ImportName == ""
}

// IsNamespaceReexport reports whether the entry is `export * as name from`.
func (e ExportEntry) IsNamespaceReexport() bool {
	return e.Request != nil && e.ExportName != "" && e.ImportName == ""
}
