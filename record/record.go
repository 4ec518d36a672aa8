package record

import (
	"fmt"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/promise"
)

// Record is a compiled module participating in linking and evaluation.
//
// The exported fields describe the module and are fixed once built. The
// linking/evaluation state is reached through methods and is mutated only
// by the linker and evaluator.
type Record struct {
	// Private is host data attached to the record (script private).
	Private any
	Body    Body

	env                *Environment
	namespace          *Namespace
	cycleRoot          *Record
	topLevelCapability *promise.Capability
	evaluationError    error
	loaded             map[string]*Record
	meta               map[string]any

	// Specifier is the resolved name of the module, used in diagnostics.
	Specifier string

	RequestedModules      []RequestedModule
	ImportEntries         []ImportEntry
	LocalExportEntries    []ExportEntry
	IndirectExportEntries []ExportEntry
	StarExportEntries     []ExportEntry
	Declarations          []Declaration

	functions          []FunctionDecl
	asyncParentModules []*Record

	dfsIndex             uint32
	dfsAncestorIndex     uint32
	asyncEvaluatingOrder uint32
	pendingAsyncDeps     uint32

	status           Status
	hasDFS           bool
	asyncEvaluation  bool
	HasTopLevelAwait bool
}

func (r *Record) String() string {
	return fmt.Sprintf("%s (%s)", r.Specifier, r.status)
}

// Status returns the current status.
func (r *Record) Status() Status {
	return r.status
}

// SetStatus moves the record to s. Moving backwards is a programming error
// and panics, except for the Linking to Unlinked reset after a failed
// instantiation. The error sub-state is entered through SetEvaluationError.
func (r *Record) SetStatus(s Status) {
	if s == StatusEvaluatedError {
		panic("record: use SetEvaluationError to enter the error state")
	}
	if s < r.status && !(r.status == StatusLinking && s == StatusUnlinked) {
		panic(fmt.Sprintf("record: %s: illegal status transition %s -> %s", r.Specifier, r.status, s))
	}
	r.status = s
}

// Environment returns the record's environment, nil before linking.
func (r *Record) Environment() *Environment {
	return r.env
}

// SetEnvironment installs the environment. It is created once; later
// calls with a different environment panic.
func (r *Record) SetEnvironment(env *Environment) {
	if r.env != nil && r.env != env {
		panic(fmt.Sprintf("record: %s: environment recreated", r.Specifier))
	}
	r.env = env
	if r.namespace != nil {
		env.initNamespace(r.namespace)
	}
}

// Namespace returns the namespace, nil until created.
func (r *Record) Namespace() *Namespace {
	return r.namespace
}

// SetNamespace installs the namespace exactly once.
func (r *Record) SetNamespace(ns *Namespace) {
	if r.namespace != nil {
		panic(fmt.Sprintf("record: %s: namespace created twice", r.Specifier))
	}
	r.namespace = ns
	if r.env != nil {
		r.env.initNamespace(ns)
	}
}

// DFSIndex returns the DFS index while a traversal is in progress.
func (r *Record) DFSIndex() (uint32, bool) {
	return r.dfsIndex, r.hasDFS
}

// DFSAncestorIndex returns the lowest reachable DFS index while a
// traversal is in progress.
func (r *Record) DFSAncestorIndex() (uint32, bool) {
	return r.dfsAncestorIndex, r.hasDFS
}

// SetDFSIndex assigns both DFS indexes to index.
func (r *Record) SetDFSIndex(index uint32) {
	r.dfsIndex = index
	r.dfsAncestorIndex = index
	r.hasDFS = true
}

// LowerDFSAncestorIndex sets the ancestor index to the minimum of its
// current value and index.
func (r *Record) LowerDFSAncestorIndex(index uint32) {
	if index < r.dfsAncestorIndex {
		r.dfsAncestorIndex = index
	}
}

// ClearDFS drops the DFS indexes.
func (r *Record) ClearDFS() {
	r.dfsIndex = 0
	r.dfsAncestorIndex = 0
	r.hasDFS = false
}

// IsSCCRoot reports whether the record closes a strongly connected
// component: its ancestor index equals its own index.
func (r *Record) IsSCCRoot() bool {
	return r.hasDFS && r.dfsIndex == r.dfsAncestorIndex
}

// AsyncEvaluation reports whether the record is waiting on asynchronous
// work (its own top-level await or an async dependency).
func (r *Record) AsyncEvaluation() bool {
	return r.asyncEvaluation
}

// AsyncEvaluatingOrder returns the post-order number assigned when the
// record became async, or 0 once cleared.
func (r *Record) AsyncEvaluatingOrder() uint32 {
	return r.asyncEvaluatingOrder
}

// StartAsyncEvaluation marks the record async with the given order.
// A record becomes async at most once.
func (r *Record) StartAsyncEvaluation(order uint32) {
	if r.asyncEvaluation || order == 0 {
		panic(fmt.Sprintf("record: %s: invalid async evaluation start (order %d)", r.Specifier, order))
	}
	r.asyncEvaluation = true
	r.asyncEvaluatingOrder = order
}

// FinishAsyncEvaluation clears the async flag and order.
func (r *Record) FinishAsyncEvaluation() {
	r.asyncEvaluation = false
	r.asyncEvaluatingOrder = 0
}

// PendingAsyncDependencies returns the number of unsettled async
// dependencies.
func (r *Record) PendingAsyncDependencies() uint32 {
	return r.pendingAsyncDeps
}

// ResetPendingAsyncDependencies sets the pending count to zero.
func (r *Record) ResetPendingAsyncDependencies() {
	r.pendingAsyncDeps = 0
}

// AddPendingAsyncDependency increments the pending count.
func (r *Record) AddPendingAsyncDependency() {
	r.pendingAsyncDeps++
}

// ResolvePendingAsyncDependency decrements the pending count and returns
// the new value.
func (r *Record) ResolvePendingAsyncDependency() uint32 {
	if r.pendingAsyncDeps == 0 {
		panic(fmt.Sprintf("record: %s: pending async dependency underflow", r.Specifier))
	}
	r.pendingAsyncDeps--
	return r.pendingAsyncDeps
}

// CycleRoot returns the record owning the completion of this record's
// strongly connected component.
func (r *Record) CycleRoot() *Record {
	return r.cycleRoot
}

// SetCycleRoot sets the cycle root.
func (r *Record) SetCycleRoot(root *Record) {
	r.cycleRoot = root
}

// TopLevelCapability returns the capability owned by a cycle root that
// started an evaluation, or nil.
func (r *Record) TopLevelCapability() *promise.Capability {
	return r.topLevelCapability
}

// SetTopLevelCapability installs the top-level capability once.
func (r *Record) SetTopLevelCapability(c *promise.Capability) {
	if r.topLevelCapability != nil {
		panic(fmt.Sprintf("record: %s: top-level capability set twice", r.Specifier))
	}
	r.topLevelCapability = c
}

// AsyncParentModules returns the records waiting on this one, in
// registration order.
func (r *Record) AsyncParentModules() []*Record {
	return r.asyncParentModules
}

// AddAsyncParentModule registers parent to be notified when this record's
// async evaluation settles.
func (r *Record) AddAsyncParentModule(parent *Record) {
	r.asyncParentModules = append(r.asyncParentModules, parent)
}

// EvaluationError returns the stored evaluation error, or nil.
func (r *Record) EvaluationError() error {
	return r.evaluationError
}

// SetEvaluationError stores err and moves the record to the sticky error
// sub-state. The first error wins; it returns false if one was already
// stored.
func (r *Record) SetEvaluationError(err error) bool {
	if err == nil {
		panic(fmt.Sprintf("record: %s: nil evaluation error", r.Specifier))
	}
	if r.evaluationError != nil {
		return false
	}
	if r.status < StatusEvaluating {
		panic(fmt.Sprintf("record: %s: evaluation error in status %s", r.Specifier, r.status))
	}
	r.evaluationError = err
	r.status = StatusEvaluatedError
	return true
}

// LoadedModule returns the record a request resolved to during linking.
func (r *Record) LoadedModule(specifier string) (*Record, bool) {
	m, ok := r.loaded[specifier]
	return m, ok
}

// SetLoadedModule caches the record a request resolved to.
func (r *Record) SetLoadedModule(specifier string, m *Record) {
	if r.loaded == nil {
		r.loaded = make(map[string]*Record, len(r.RequestedModules))
	}
	r.loaded[specifier] = m
}

// ImportedModule returns the record for req, failing if the request was
// never resolved.
func (r *Record) ImportedModule(req *ModuleRequest) (*Record, error) {
	if m, ok := r.loaded[req.Specifier]; ok {
		return m, nil
	}
	return nil, errors.InvalidState(errors.PhaseLink, r.Specifier,
		fmt.Sprintf("request %s was not resolved", req))
}

// FunctionDeclarations returns the hoisted functions not yet instantiated.
func (r *Record) FunctionDeclarations() []FunctionDecl {
	return r.functions
}

// InstantiateFunctionDeclarations binds every hoisted function into the
// environment and consumes the declaration list, so a second call does
// nothing.
func (r *Record) InstantiateFunctionDeclarations() error {
	if r.env == nil {
		return errors.InvalidState(errors.PhaseLink, r.Specifier, "no environment for function declarations")
	}
	for _, fn := range r.functions {
		if _, err := r.env.Declare(fn.Name, DeclFunction); err != nil {
			return err
		}
		var v any
		if fn.New != nil {
			v = fn.New(r.env)
		}
		if err := r.env.Initialize(fn.Name, v); err != nil {
			return err
		}
	}
	r.functions = nil
	return nil
}

// ImportMeta returns the record's import.meta properties, creating them on
// first use with init.
func (r *Record) ImportMeta(init func(r *Record, meta map[string]any)) map[string]any {
	if r.meta == nil {
		r.meta = make(map[string]any)
		if init != nil {
			init(r, r.meta)
		}
	}
	return r.meta
}
