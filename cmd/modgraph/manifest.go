package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/modgraph/runtime"
)

// manifest describes a module graph for the CLI.
//
//	entry: main
//	modules:
//	  main:
//	    source: |
//	      imports:
//	        - from: ./config.json
//	          names: ["default as cfg"]
//	          with: {type: json}
//	  config.json:
//	    source: '{"debug": true}'
//	  math.wasm:
//	    file: build/math.wasm
//	    wit: "add: func(a: s32, b: s32) -> s32;"
type manifest struct {
	Modules map[string]manifestModule `yaml:"modules"`
	Entry   string                    `yaml:"entry"`
	dir     string
}

type manifestModule struct {
	Type   string `yaml:"type"`
	Source string `yaml:"source"`
	File   string `yaml:"file"`
	WIT    string `yaml:"wit"`
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Modules) == 0 {
		return nil, fmt.Errorf("manifest %s declares no modules", path)
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// source builds an in-memory source holding every module of the manifest.
// Modules given by file are read relative to the manifest.
func (m *manifest) source() (*runtime.MemorySource, error) {
	src := runtime.NewMemorySource(nil)
	for _, name := range m.names() {
		mod := m.Modules[name]
		unit := &runtime.Unit{Name: name, Type: mod.Type, WIT: mod.WIT, Data: []byte(mod.Source)}
		if mod.File != "" {
			path := mod.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(m.dir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", name, err)
			}
			unit.Data = data
			unit.URL = "file://" + filepath.ToSlash(path)
		}
		src.Add(unit)
	}
	return src, nil
}

func (m *manifest) names() []string {
	names := make([]string, 0, len(m.Modules))
	for name := range m.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
