package script

import (
	"context"
	"sort"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
)

// Importer starts a dynamic import on behalf of a running module.
type Importer interface {
	DynamicImport(ctx context.Context, referrer *record.Record, specifier string, assertions []record.Assertion) *promise.Promise
}

// Options configures compilation.
type Options struct {
	// Queue schedules await continuations. Required for async modules.
	Queue *promise.Queue

	// Importer serves import steps. Without one they fail.
	Importer Importer

	// Trace receives log step output.
	Trace func(specifier, message string)
}

// Compile parses src and builds an Unlinked record named specifier.
func Compile(specifier string, src []byte, opts Options) (*record.Record, error) {
	s, err := Parse(src)
	if err != nil {
		if e, ok := err.(*errors.Error); ok && e.Module == "" {
			e.Module = specifier
		}
		return nil, err
	}
	return s.Build(specifier, opts)
}

// Build turns a decoded source into a record.
func (s *Source) Build(specifier string, opts Options) (*record.Record, error) {
	if s.Async && opts.Queue == nil {
		return nil, errors.InvalidData(errors.PhaseParse, specifier, "async module needs a job queue")
	}

	b := record.NewBuilder(specifier)

	for _, c := range s.Imports {
		b.At(uint32(c.line), uint32(c.column))
		with := assertions(c.With)
		if c.Namespace != "" {
			b.ImportNamespace(c.From, c.Namespace, with...)
		}
		for _, n := range c.Names {
			imported, local, err := splitAlias(n)
			if err != nil {
				return nil, errors.ParseFailed("import from "+c.From, err)
			}
			b.Import(c.From, imported, local, with...)
		}
		if c.Namespace == "" && len(c.Names) == 0 {
			b.ImportModule(c.From, with...)
		}
	}

	for _, c := range s.Exports {
		b.At(uint32(c.line), uint32(c.column))
		with := assertions(c.With)
		switch {
		case c.From == "":
			if c.Local == "" {
				return nil, errors.InvalidData(errors.PhaseParse, specifier, "export clause without a binding")
			}
			as := c.As
			if as == "" {
				as = c.Local
			}
			b.ExportLocal(c.Local, as)
		case c.Star:
			b.ExportStar(c.From, with...)
		case c.Namespace != "":
			b.ExportNamespaceFrom(c.From, c.Namespace, with...)
		default:
			if len(c.Names) == 0 {
				return nil, errors.InvalidData(errors.PhaseParse, specifier, "export from "+c.From+" names nothing")
			}
			for _, n := range c.Names {
				imported, exported, err := splitAlias(n)
				if err != nil {
					return nil, errors.ParseFailed("export from "+c.From, err)
				}
				b.ExportFrom(c.From, imported, exported, with...)
			}
		}
	}

	b.At(0, 0)
	for _, group := range []struct {
		names []string
		kind  record.DeclKind
	}{
		{s.Declare.Var, record.DeclVar},
		{s.Declare.Let, record.DeclLet},
		{s.Declare.Const, record.DeclConst},
		{s.Declare.Class, record.DeclClass},
	} {
		for _, name := range group.names {
			b.Declare(name, group.kind)
		}
	}

	names := make([]string, 0, len(s.Declare.Function))
	for name := range s.Declare.Function {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		src := s.Declare.Function[name]
		b.Function(name, func(env *record.Environment) any {
			return &Function{Name: name, source: src, env: env}
		})
	}

	if s.Async {
		b.TopLevelAwait()
	}
	b.Body(&body{
		specifier: specifier,
		steps:     s.Body,
		async:     s.Async,
		opts:      opts,
	})

	return b.Build()
}
