package linker

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/record"
)

// Options configures linker behavior.
type Options struct {
	// MaxDepth bounds the DFS depth of one Instantiate call. 0 means no limit.
	MaxDepth int
	// StrictStarExports fails linking when a name reachable only through
	// star exports is ambiguous, instead of leaving it out of the namespace.
	StrictStarExports bool
}

// DefaultOptions returns default linker configuration.
func DefaultOptions() Options {
	return Options{
		MaxDepth:          10000,
		StrictStarExports: true,
	}
}

// Linker instantiates module graphs. Thread-safe.
type Linker struct {
	hook    ResolveHook
	options Options
	mu      sync.Mutex
}

// New creates a Linker resolving requests through hook.
func New(hook ResolveHook, opts Options) *Linker {
	return &Linker{
		hook:    hook,
		options: opts,
	}
}

// NewWithDefaults creates a Linker with default options.
func NewWithDefaults(hook ResolveHook) *Linker {
	return New(hook, DefaultOptions())
}

// Options returns the configuration.
func (l *Linker) Options() Options {
	return l.options
}

// Hook returns the resolve hook.
func (l *Linker) Hook() ResolveHook {
	return l.hook
}

// linkState is the per-call traversal state.
type linkState struct {
	stack []*record.Record
	index uint32
	depth int
}

// Instantiate links root and every record reachable from it. All requests
// are resolved before any record enters Linking.
//
// Records already Linking or beyond are left untouched, so calling
// Instantiate again on a linked root is a no-op. On failure every record
// still Linking is reset to Unlinked and its DFS indexes are cleared.
func (l *Linker) Instantiate(ctx context.Context, root *record.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if root.Status() >= record.StatusLinking {
		if root.Status() == record.StatusLinking {
			return errors.InvalidState(errors.PhaseLink, root.Specifier, "module is already being linked")
		}
		return nil
	}

	st := &linkState{}
	err := l.load(ctx, root, make(map[*record.Record]bool), 0)
	if err == nil {
		err = l.innerLink(ctx, root, st)
	}
	if err != nil {
		for _, m := range st.stack {
			m.SetStatus(record.StatusUnlinked)
			m.ClearDFS()
		}
		if le, ok := err.(*LinkError); ok {
			le.Root = root.Specifier
		}
		Logger().Debug("link failed",
			zap.String("root", root.Specifier),
			zap.Int("reset", len(st.stack)),
			zap.Error(err))
		return err
	}
	return nil
}

// load resolves every request reachable from m through unlinked records
// before the DFS starts. Export resolution follows re-exports into
// modules the DFS has not entered yet, so they must already be cached on
// their referrers.
func (l *Linker) load(ctx context.Context, m *record.Record, seen map[*record.Record]bool, depth int) error {
	if m.Status() >= record.StatusLinking || seen[m] {
		return nil
	}
	seen[m] = true
	if err := ctx.Err(); err != nil {
		return linkError(StageResolve, m.Specifier,
			errors.Wrap(errors.PhaseLink, errors.KindTerminated, err, "linking interrupted"))
	}
	if l.options.MaxDepth > 0 && depth >= l.options.MaxDepth {
		return linkError(StageLimit, m.Specifier, errors.AllocationFailed(errors.PhaseLink, "module graph depth limit"))
	}
	for _, rm := range m.RequestedModules {
		child, err := l.resolve(ctx, m, rm.Request)
		if err != nil {
			return linkError(StageResolve, m.Specifier, err)
		}
		if err := l.load(ctx, child, seen, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (l *Linker) innerLink(ctx context.Context, m *record.Record, st *linkState) error {
	if m.Status() >= record.StatusLinking {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return linkError(StageResolve, m.Specifier,
			errors.Wrap(errors.PhaseLink, errors.KindTerminated, err, "linking interrupted"))
	}
	if l.options.MaxDepth > 0 && st.depth >= l.options.MaxDepth {
		return linkError(StageLimit, m.Specifier, errors.AllocationFailed(errors.PhaseLink, "module graph depth limit"))
	}
	if st.index == math.MaxUint32 {
		return linkError(StageLimit, m.Specifier, errors.AllocationFailed(errors.PhaseLink, "dfs index space"))
	}

	m.SetStatus(record.StatusLinking)
	m.SetDFSIndex(st.index)
	st.index++
	st.stack = append(st.stack, m)

	Logger().Debug("linking module",
		zap.String("module", m.Specifier),
		zap.Uint32("dfs_index", st.index-1))

	if err := createEnvironment(m); err != nil {
		return linkError(StageInitialize, m.Specifier, err)
	}

	st.depth++
	for _, rm := range m.RequestedModules {
		child, err := l.resolve(ctx, m, rm.Request)
		if err != nil {
			return linkError(StageResolve, m.Specifier, err)
		}
		if err := l.innerLink(ctx, child, st); err != nil {
			return err
		}
		if child.Status() == record.StatusLinking {
			// Child is on the stack: same component.
			anc, _ := child.DFSAncestorIndex()
			m.LowerDFSAncestorIndex(anc)
		}
	}
	st.depth--

	if err := l.initializeEnvironment(m); err != nil {
		return linkError(StageInitialize, m.Specifier, err)
	}

	if !m.IsSCCRoot() {
		return nil
	}

	// Members stay on the stack until hoisting succeeds, so a failure
	// resets them along with the rest of the attempt.
	base := len(st.stack) - 1
	for st.stack[base] != m {
		base--
	}
	component := make([]*record.Record, 0, len(st.stack)-base)
	for i := len(st.stack) - 1; i >= base; i-- {
		component = append(component, st.stack[i])
	}
	for _, member := range component {
		if err := member.InstantiateFunctionDeclarations(); err != nil {
			return linkError(StageHoist, member.Specifier, err)
		}
	}
	st.stack = st.stack[:base]
	for _, member := range component {
		member.SetStatus(record.StatusLinked)
		member.ClearDFS()
	}

	if ce := Logger().Check(zap.DebugLevel, "component linked"); ce != nil {
		names := make([]string, len(component))
		for i, member := range component {
			names[i] = member.Specifier
		}
		ce.Write(zap.String("root", m.Specifier), zap.Strings("modules", names))
	}
	return nil
}

// resolve returns the record for req, consulting the referrer's cache
// before the hook.
func (l *Linker) resolve(ctx context.Context, referrer *record.Record, req *record.ModuleRequest) (*record.Record, error) {
	if m, ok := referrer.LoadedModule(req.Specifier); ok {
		return m, nil
	}
	if l.hook == nil {
		return nil, errors.Resolution(referrer.Specifier, req.Specifier,
			errors.Unsupported(errors.PhaseResolve, "no resolve hook"))
	}
	m, err := l.hook.Resolve(ctx, referrer, req)
	if err != nil {
		return nil, errors.Resolution(referrer.Specifier, req.Specifier, err)
	}
	if m == nil {
		return nil, errors.Resolution(referrer.Specifier, req.Specifier,
			errors.NotFound(errors.PhaseResolve, "module", req.Specifier))
	}
	referrer.SetLoadedModule(req.Specifier, m)
	return m, nil
}

// createEnvironment creates (or, on relink, reuses) the environment and
// declares the record's own top-level bindings.
func createEnvironment(m *record.Record) error {
	env := m.Environment()
	if env != nil {
		env.ResetImports()
	} else {
		env = record.NewEnvironment(m)
	}
	for _, d := range m.Declarations {
		if _, err := env.Declare(d.Name, d.Kind); err != nil {
			return err
		}
	}
	for _, fn := range m.FunctionDeclarations() {
		if _, err := env.Declare(fn.Name, record.DeclFunction); err != nil {
			return err
		}
	}
	if m.Environment() == nil {
		m.SetEnvironment(env)
	}
	return nil
}

// initializeEnvironment checks the record's exports and binds its imports.
func (l *Linker) initializeEnvironment(m *record.Record) error {
	var unresolved []string

	for _, ee := range m.IndirectExportEntries {
		_, res, err := l.resolveExport(m, ee.ExportName, nil)
		if err != nil {
			return err
		}
		switch res {
		case resolutionAmbiguous:
			return errors.AmbiguousExport(m.Specifier, ee.ExportName)
		case resolutionNone:
			from := ""
			if ee.Request != nil {
				from = ee.Request.Specifier
			}
			unresolved = append(unresolved, errors.ImportKey(m.Specifier, ee.ExportName, from))
		}
	}

	if l.options.StrictStarExports && len(m.StarExportEntries) > 0 {
		names, err := l.exportedNames(m, nil)
		if err != nil {
			return err
		}
		for _, name := range names {
			_, res, err := l.resolveExport(m, name, nil)
			if err != nil {
				return err
			}
			if res == resolutionAmbiguous {
				return errors.AmbiguousExport(m.Specifier, name)
			}
		}
	}

	env := m.Environment()
	for _, ie := range m.ImportEntries {
		imported, err := m.ImportedModule(ie.Request)
		if err != nil {
			return err
		}

		if ie.IsNamespace() {
			if err := l.bindNamespace(env, ie.LocalName, imported); err != nil {
				return err
			}
			continue
		}

		b, res, err := l.resolveExport(imported, ie.ImportName, nil)
		if err != nil {
			return err
		}
		switch res {
		case resolutionAmbiguous:
			return errors.New(errors.PhaseLink, errors.KindAmbiguousExport).
				Module(m.Specifier).
				Name(ie.ImportName).
				Detail("import %q from %q is ambiguous", ie.ImportName, ie.Request.Specifier).
				Build()
		case resolutionNone:
			unresolved = append(unresolved, errors.ImportKey(m.Specifier, ie.ImportName, ie.Request.Specifier))
			continue
		}

		if b.IsNamespace() {
			err = l.bindNamespace(env, ie.LocalName, b.Module)
		} else {
			err = env.CreateImportBinding(ie.LocalName, b.Module, b.Name)
		}
		if err != nil {
			return err
		}
	}

	if len(unresolved) > 0 {
		cause := errors.NewUnresolvedImportsError(unresolved)
		first := cause.Imports[0]
		return errors.New(errors.PhaseLink, errors.KindUnresolvedExport).
			Module(m.Specifier).
			Name(first.Name).
			Detail("module %q does not provide an export named %q", first.From, first.Name).
			Cause(cause).
			Build()
	}
	return nil
}

// bindNamespace creates an immutable slot holding target's namespace.
func (l *Linker) bindNamespace(env *record.Environment, localName string, target *record.Record) error {
	ns, err := l.namespace(target)
	if err != nil {
		return err
	}
	if _, err := env.Declare(localName, record.DeclImport); err != nil {
		return err
	}
	return env.Initialize(localName, ns)
}
