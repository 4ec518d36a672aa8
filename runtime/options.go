package runtime

import (
	"slices"

	"github.com/wippyai/modgraph/record"
)

// Module types selected by the "type" import assertion.
const (
	TypeScript = "script"
	TypeJSON   = "json"
	TypeYAML   = "yaml"
	TypeWasm   = "wasm"
)

// Options configures a Runtime.
type Options struct {
	// ImportMeta populates import.meta objects after the built-in "url"
	// and "type" properties are set.
	ImportMeta func(r *record.Record, meta map[string]any)

	// Trace receives log lines emitted by script modules. Without it they
	// go to the runtime logger.
	Trace func(specifier, message string)

	// BaseDir, when set, adds a directory source for module files.
	BaseDir string

	// SupportedAssertions lists the import assertion keys the host
	// understands. Dynamic imports drop every other key.
	SupportedAssertions []string

	// MaxDepth bounds the linking recursion depth.
	MaxDepth int

	// MemoryLimitPages caps the linear memory of wasm modules.
	MemoryLimitPages uint32
}

// DefaultOptions returns the default runtime configuration.
func DefaultOptions() Options {
	return Options{
		SupportedAssertions: []string{"type"},
		MaxDepth:            10000,
	}
}

func (o Options) supports(key string) bool {
	return slices.Contains(o.SupportedAssertions, key)
}
