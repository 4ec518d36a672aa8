package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/evaluator"
	"github.com/wippyai/modgraph/linker"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
	"github.com/wippyai/modgraph/resource"
	"github.com/wippyai/modgraph/wasmmod"
)

// ErrClosed is the termination cause of evaluations cut short by Close.
var ErrClosed = stderrors.New("runtime closed")

// Runtime owns a module graph: its registry, linker, evaluator and job
// queue. Methods are safe for concurrent use; the graph itself is only
// touched while holding the runtime lock. The queue is private: jobs only
// run inside Drain, which holds the lock while they run.
type Runtime struct {
	options   Options
	queue     *promise.Queue
	registry  *linker.Resolver
	linker    *linker.Linker
	eval      *evaluator.Evaluator
	privates  *resource.Table
	wasm      *wasmmod.Loader
	compilers map[string]Compiler
	sources   []Source
	mu        sync.Mutex
	closed    bool
}

// New creates a runtime. Sources are added with AddSource; BaseDir, when
// set, is always consulted first.
func New(opts Options) *Runtime {
	q := promise.NewQueue()
	rt := &Runtime{
		options:   opts,
		queue:     q,
		registry:  linker.NewResolver(nil),
		eval:      evaluator.NewWithDefaults(q),
		privates:  resource.NewTable(),
		compilers: make(map[string]Compiler),
	}

	linkOpts := linker.DefaultOptions()
	if opts.MaxDepth > 0 {
		linkOpts.MaxDepth = opts.MaxDepth
	}
	rt.linker = linker.New(rt, linkOpts)

	rt.compilers[TypeScript] = CompilerFunc(rt.compileScript)
	rt.compilers[TypeJSON] = CompilerFunc(compileJSON)
	rt.compilers[TypeYAML] = CompilerFunc(compileYAML)
	rt.compilers[TypeWasm] = CompilerFunc(rt.compileWasm)

	if opts.BaseDir != "" {
		rt.sources = append(rt.sources, NewDirSource(opts.BaseDir))
	}

	rt.privates.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		if e.Type == resource.EventDropped {
			if p, ok := e.Value.(*Private); ok {
				Logger().Debug("script private dropped", zap.String("module", p.Specifier))
			}
		}
	}))
	return rt
}

// AddSource appends a module source. Sources are consulted in order.
func (rt *Runtime) AddSource(s Source) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.sources = append(rt.sources, s)
}

// RegisterCompiler handles modules of type typ with c, replacing any
// built-in compiler for that type.
func (rt *Runtime) RegisterCompiler(typ string, c Compiler) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.compilers[typ] = c
}

// Register makes a host-built record importable under name.
func (rt *Runtime) Register(name string, r *record.Record) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.attach(r, &Private{Specifier: name, URL: "host:" + name, Type: "host"})
	rt.registry.RegisterModule(name, r)
}

// Module returns the record registered under the resolved specifier, or nil.
func (rt *Runtime) Module(specifier string) *record.Record {
	return rt.registry.GetModule(specifier)
}

// Modules returns every record in the order it was first resolved.
func (rt *Runtime) Modules() []*record.Record {
	return rt.registry.Modules()
}

// Resolve implements linker.ResolveHook. Relative specifiers are resolved
// against the referrer; every other specifier is used as is. A specifier is
// loaded and compiled once, later requests share the record.
//
// Resolve is called by the linker with the runtime lock held.
func (rt *Runtime) Resolve(ctx context.Context, referrer *record.Record, req *record.ModuleRequest) (*record.Record, error) {
	name := normalize(referrer, req.Specifier)
	asserted, _ := req.Assertion("type")

	if m := rt.registry.GetModule(name); m != nil {
		if err := rt.checkType(m, name, asserted); err != nil {
			return nil, err
		}
		return m, nil
	}

	unit, err := rt.loadUnit(ctx, name)
	if err != nil {
		return nil, err
	}

	typ := unit.Type
	switch {
	case typ == "" && asserted != "":
		typ = asserted
	case typ == "":
		typ = typeOf(name)
	case asserted != "" && asserted != typ:
		return nil, errors.InvalidData(errors.PhaseResolve, name,
			fmt.Sprintf("module is of type %s, not %s", typ, asserted))
	}
	unit.Type = typ

	c, ok := rt.compilers[typ]
	if !ok {
		e := errors.Unsupported(errors.PhaseResolve, "module type "+typ)
		e.Module = name
		return nil, e
	}
	m, err := c.Compile(ctx, unit)
	if err != nil {
		return nil, err
	}

	rt.attach(m, &Private{Specifier: name, URL: unit.URL, Type: typ})
	rt.registry.RegisterModule(name, m)
	Logger().Debug("module compiled",
		zap.String("module", name),
		zap.String("type", typ),
		zap.Int("requests", len(m.RequestedModules)))
	return m, nil
}

func (rt *Runtime) checkType(m *record.Record, name, asserted string) error {
	if asserted == "" {
		return nil
	}
	p, ok := rt.PrivateOf(m)
	if !ok || p.Type == asserted {
		return nil
	}
	return errors.InvalidData(errors.PhaseResolve, name,
		fmt.Sprintf("module is of type %s, not %s", p.Type, asserted))
}

func (rt *Runtime) loadUnit(ctx context.Context, name string) (*Unit, error) {
	for _, s := range rt.sources {
		u, err := s.Load(ctx, name)
		if err == nil {
			if u.Name == "" {
				u.Name = name
			}
			return u, nil
		}
		if !errors.IsKind(err, errors.KindNotFound) {
			return nil, err
		}
	}
	return nil, errors.NotFound(errors.PhaseLoad, "module", name)
}

// normalize resolves "./" and "../" specifiers against the referrer.
func normalize(referrer *record.Record, specifier string) string {
	if !strings.HasPrefix(specifier, "./") && !strings.HasPrefix(specifier, "../") {
		return specifier
	}
	base := "."
	if referrer != nil {
		base = path.Dir(referrer.Specifier)
	}
	return path.Join(base, specifier)
}

// link resolves req and links the graph below it.
func (rt *Runtime) link(ctx context.Context, referrer *record.Record, req *record.ModuleRequest) (*record.Record, error) {
	m, err := rt.Resolve(ctx, referrer, req)
	if err != nil {
		from := ""
		if referrer != nil {
			from = referrer.Specifier
		}
		return nil, errors.Resolution(from, req.Specifier, err)
	}
	if err := rt.linker.Instantiate(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Load resolves specifier and links its graph without evaluating it.
func (rt *Runtime) Load(ctx context.Context, specifier string) (*record.Record, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, errors.InvalidState(errors.PhaseHost, specifier, "runtime is closed")
	}
	return rt.link(ctx, nil, record.NewModuleRequest(specifier))
}

// Import loads, links and evaluates specifier as a root module. The
// returned promise settles when the graph has finished evaluating, which
// for graphs using top-level await requires draining the job queue. A
// rejected root is logged.
func (rt *Runtime) Import(ctx context.Context, specifier string) (*promise.Promise, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, errors.InvalidState(errors.PhaseHost, specifier, "runtime is closed")
	}

	log := Logger().With(zap.String("session", uuid.NewString()), zap.String("module", specifier))

	m, err := rt.link(ctx, nil, record.NewModuleRequest(specifier))
	if err != nil {
		log.Debug("import failed", zap.Error(err))
		return nil, err
	}

	p, err := rt.eval.Evaluate(ctx, m, evaluator.ReportAsync)
	if err != nil {
		return nil, err
	}
	p.Handle(nil, func(err error) {
		log.Error("root module rejected", zap.Error(err))
	})
	log.Debug("root module evaluating", zap.Stringer("status", m.Status()))
	return p, nil
}

// pendingImport is a dynamic import in flight.
type pendingImport struct {
	capability *promise.Capability
	referrer   *record.Record
	request    *record.ModuleRequest
	log        *zap.Logger
	handle     resource.Handle
	retained   bool
}

// DynamicImport starts import(specifier) on behalf of referrer, which may
// be nil for imports made by the host. Assertion keys the runtime does not
// support are dropped. The referrer's host data stays alive until the
// returned promise settles.
//
// The import runs as a job: the promise settles while the queue is
// drained. DynamicImport never takes the runtime lock, so module bodies
// may call it.
func (rt *Runtime) DynamicImport(ctx context.Context, referrer *record.Record, specifier string, assertions []record.Assertion) *promise.Promise {
	var kept []record.Assertion
	for _, a := range assertions {
		if rt.options.supports(a.Key) {
			kept = append(kept, a)
		}
	}

	pi := &pendingImport{
		capability: promise.NewCapability(rt.queue),
		referrer:   referrer,
		request:    record.NewModuleRequest(specifier, kept...),
		log:        Logger().With(zap.String("session", uuid.NewString()), zap.String("specifier", specifier)),
	}
	pi.handle, pi.retained = rt.retainPrivate(referrer)

	rt.queue.Enqueue(func() { rt.startDynamicImport(ctx, pi) })
	return pi.capability.Promise
}

func (rt *Runtime) startDynamicImport(ctx context.Context, pi *pendingImport) {
	if rt.closed {
		rt.settleImport(pi, nil, errors.Terminated(pi.request.Specifier, ErrClosed))
		return
	}
	m, err := rt.link(ctx, pi.referrer, pi.request)
	if err != nil {
		rt.settleImport(pi, nil, err)
		return
	}
	p, err := rt.eval.Evaluate(ctx, m, evaluator.ReportAsync)
	if err != nil {
		rt.settleImport(pi, nil, err)
		return
	}
	p.Handle(
		func(any) { rt.finishDynamicImport(ctx, pi) },
		func(err error) { rt.settleImport(pi, nil, err) },
	)
}

// finishDynamicImport resolves the request again and hands out the
// namespace, which requires the resolve hook to return an evaluated
// module.
func (rt *Runtime) finishDynamicImport(ctx context.Context, pi *pendingImport) {
	m, err := rt.Resolve(ctx, pi.referrer, pi.request)
	if err != nil {
		rt.settleImport(pi, nil, err)
		return
	}
	if s := m.Status(); s != record.StatusEvaluatingAsync && s != record.StatusEvaluated {
		rt.settleImport(pi, nil, errors.InvalidState(errors.PhaseEvaluate, m.Specifier,
			"unevaluated or errored module returned by resolve hook"))
		return
	}
	ns, err := rt.linker.GetNamespace(m)
	rt.settleImport(pi, ns, err)
}

func (rt *Runtime) settleImport(pi *pendingImport, ns *record.Namespace, err error) {
	if pi.retained {
		rt.privates.Release(pi.handle)
		pi.retained = false
	}
	if err != nil {
		pi.log.Debug("dynamic import rejected", zap.Error(err))
		pi.capability.Reject(err)
		return
	}
	pi.log.Debug("dynamic import fulfilled", zap.String("module", ns.Module().Specifier))
	pi.capability.Resolve(ns)
}

// GetNamespace returns the namespace of a linked module.
func (rt *Runtime) GetNamespace(specifier string) (*record.Namespace, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	m := rt.registry.GetModule(specifier)
	if m == nil {
		return nil, errors.NotFound(errors.PhaseNamespace, "module", specifier)
	}
	return rt.linker.GetNamespace(m)
}

// Components returns the strongly connected components of the graph below
// specifier, dependencies first.
func (rt *Runtime) Components(specifier string) ([][]*record.Record, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	m := rt.registry.GetModule(specifier)
	if m == nil {
		return nil, errors.NotFound(errors.PhaseHost, "module", specifier)
	}
	return rt.linker.Components(m), nil
}

// Drain runs queued jobs until none are left or ctx is done.
func (rt *Runtime) Drain(ctx context.Context) (int, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.queue.Drain(ctx)
}

// Pending returns the number of modules still evaluating asynchronously.
func (rt *Runtime) Pending() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.eval.Pending()
}

// Interrupt fails every module still waiting on top-level await with a
// terminated error wrapping cause. Rejections are delivered on the next
// Drain.
func (rt *Runtime) Interrupt(cause error) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := rt.eval.Terminate(cause)
	if n > 0 {
		Logger().Warn("evaluation interrupted", zap.Int("modules", n), zap.Error(cause))
	}
	return n
}

// Close terminates outstanding evaluations, delivers their rejections and
// releases host data, wasm instances and the event loop.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil
	}
	rt.closed = true
	rt.eval.Terminate(ErrClosed)
	// Deliver the rejections before the loop stops.
	if _, err := rt.queue.Drain(ctx); err != nil {
		Logger().Debug("close: drain interrupted", zap.Error(err))
	}
	err := rt.privates.Close()
	if rt.wasm != nil {
		if werr := rt.wasm.Close(ctx); err == nil {
			err = werr
		}
	}
	if qerr := rt.queue.Close(ctx); qerr != nil {
		Logger().Debug("close: event loop shutdown", zap.Error(qerr))
	}
	return err
}

func (rt *Runtime) trace(specifier, msg string) {
	if rt.options.Trace != nil {
		rt.options.Trace(specifier, msg)
		return
	}
	Logger().Info(msg, zap.String("module", specifier))
}
