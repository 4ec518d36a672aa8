package runtime

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/wippyai/modgraph/errors"
)

// Unit is module source text as loaded from a Source.
type Unit struct {
	// Name is the resolved specifier.
	Name string

	// Type is the module type. Empty means it is inferred from the name.
	Type string

	// URL is exposed as import.meta.url.
	URL string

	// WIT optionally types the exports of a wasm module.
	WIT string

	Data []byte
}

// Source loads module source by resolved specifier.
// A missing module is reported with an errors.KindNotFound error.
type Source interface {
	Load(ctx context.Context, name string) (*Unit, error)
}

// MemorySource serves modules held in memory.
type MemorySource struct {
	units map[string]*Unit
	mu    sync.RWMutex
}

// NewMemorySource creates a source from name/content pairs. Module types
// are inferred from the names.
func NewMemorySource(modules map[string][]byte) *MemorySource {
	s := &MemorySource{units: make(map[string]*Unit, len(modules))}
	for name, data := range modules {
		s.Add(&Unit{Name: name, Data: data})
	}
	return s
}

// Add stores or replaces a unit.
func (s *MemorySource) Add(u *Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.URL == "" {
		u.URL = "memory:" + u.Name
	}
	s.units[u.Name] = u
}

// Load returns a copy of the unit named name.
func (s *MemorySource) Load(_ context.Context, name string) (*Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "module", name)
	}
	cp := *u
	return &cp, nil
}

// DirSource serves module files from a file system.
type DirSource struct {
	fsys fs.FS
	root string
}

// NewDirSource serves files below dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{fsys: os.DirFS(dir), root: dir}
}

// NewFSSource serves files from fsys.
func NewFSSource(fsys fs.FS) *DirSource {
	return &DirSource{fsys: fsys}
}

// Load reads name from the file system. A sibling file with the ".wit"
// extension supplies the WIT signatures of a wasm module.
func (s *DirSource) Load(_ context.Context, name string) (*Unit, error) {
	clean := strings.TrimPrefix(path.Clean(name), "/")
	if !fs.ValidPath(clean) {
		return nil, errors.NotFound(errors.PhaseLoad, "module", name)
	}
	data, err := fs.ReadFile(s.fsys, clean)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseLoad, "module", name)
		}
		return nil, errors.Load("read "+name, err)
	}

	u := &Unit{Name: name, Data: data, URL: "file://" + path.Join(s.root, clean)}
	if typeOf(name) == TypeWasm {
		witPath := strings.TrimSuffix(clean, path.Ext(clean)) + ".wit"
		if wit, err := fs.ReadFile(s.fsys, witPath); err == nil {
			u.WIT = string(wit)
		}
	}
	return u, nil
}

// typeOf infers a module type from a file name.
func typeOf(name string) string {
	switch path.Ext(name) {
	case ".json":
		return TypeJSON
	case ".wasm":
		return TypeWasm
	default:
		return TypeScript
	}
}
