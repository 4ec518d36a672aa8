package script

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mgerrors "github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/evaluator"
	"github.com/wippyai/modgraph/linker"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
)

type importerFunc func(ctx context.Context, referrer *record.Record, specifier string, assertions []record.Assertion) *promise.Promise

func (f importerFunc) DynamicImport(ctx context.Context, referrer *record.Record, specifier string, assertions []record.Assertion) *promise.Promise {
	return f(ctx, referrer, specifier, assertions)
}

type world struct {
	t        *testing.T
	queue    *promise.Queue
	resolver *linker.Resolver
	linker   *linker.Linker
	eval     *evaluator.Evaluator
	importer Importer
	trace    []string
}

func newWorld(t *testing.T) *world {
	q := promise.NewQueue()
	t.Cleanup(func() { _ = q.Close(context.Background()) })
	r := linker.NewResolver(nil)
	return &world{
		t:        t,
		queue:    q,
		resolver: r,
		linker:   linker.NewWithDefaults(r),
		eval:     evaluator.NewWithDefaults(q),
	}
}

func (w *world) add(name, src string) *record.Record {
	w.t.Helper()
	r, err := Compile(name, []byte(src), Options{
		Queue:    w.queue,
		Importer: w.importer,
		Trace: func(specifier, msg string) {
			w.trace = append(w.trace, specifier+": "+msg)
		},
	})
	require.NoError(w.t, err)
	w.resolver.RegisterModule(name, r)
	return r
}

func (w *world) run(root *record.Record) (*promise.Promise, error) {
	w.t.Helper()
	require.NoError(w.t, w.linker.Instantiate(context.Background(), root))
	return w.eval.Evaluate(context.Background(), root, evaluator.ThrowSync)
}

func (w *world) drain() {
	w.t.Helper()
	_, err := w.queue.Drain(context.Background())
	require.NoError(w.t, err)
}

func TestParse(t *testing.T) {
	src := `
imports:
  - from: dep
    names: [x, "default as d"]
    with: {type: json}
  - from: side
exports:
  - a
  - b as c
  - from: other
    star: true
  - from: more
    names: ["y as z"]
  - from: ns
    namespace: all
declare:
  let: [a, b]
  function:
    f: 42
    g: {returns: a}
body:
  - set: {b: 2, a: 1}
  - log: hello
`
	s, err := Parse([]byte(src))
	require.NoError(t, err)

	require.Len(t, s.Imports, 2)
	assert.Equal(t, []string{"x", "default as d"}, s.Imports[0].Names)
	assert.Equal(t, map[string]string{"type": "json"}, s.Imports[0].With)

	require.Len(t, s.Exports, 5)
	assert.Equal(t, "a", s.Exports[0].Local)
	assert.Equal(t, "a", s.Exports[0].As)
	assert.Equal(t, "b", s.Exports[1].Local)
	assert.Equal(t, "c", s.Exports[1].As)
	assert.True(t, s.Exports[2].Star)
	assert.Equal(t, "all", s.Exports[4].Namespace)

	assert.Equal(t, 42, s.Declare.Function["f"].Value)
	assert.Equal(t, "a", s.Declare.Function["g"].Returns)

	require.Len(t, s.Body, 2)
	assert.Equal(t, Assignments{{Name: "b", Value: 2}, {Name: "a", Value: 1}}, s.Body[0].Set)
	assert.Equal(t, "log", s.Body[1].op())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"mixed step", "body:\n  - {log: a, throw: b}\n"},
		{"empty step", "body:\n  - {}\n"},
		{"await in sync module", "body:\n  - await: tick\n"},
		{"unknown await", "async: true\nbody:\n  - await: soon\n"},
		{"import without from", "body:\n  - import: {into: x}\n"},
		{"copy without target", "body:\n  - copy: {from: x}\n"},
		{"unknown field", "unknown: 1\n"},
		{"bad alias", "exports:\n  - a as\n"},
		{"import clause without from", "imports:\n  - names: [x]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			require.Error(t, err)
			assert.True(t, mgerrors.IsKind(err, mgerrors.KindInvalidData), "got %v", err)
		})
	}
}

func TestCompile_Entries(t *testing.T) {
	src := `
imports:
  - from: dep
    names: [x]
  - from: lib
    namespace: lib
exports:
  - x as y
  - lib
  - from: other
    star: true
declare:
  var: [v]
`
	r, err := Compile("m", []byte(src), Options{})
	require.NoError(t, err)

	require.Len(t, r.RequestedModules, 3)
	assert.Equal(t, "dep", r.RequestedModules[0].Request.Specifier)
	assert.Equal(t, uint32(3), r.RequestedModules[0].Location.Line)

	// Re-exporting an imported name becomes an indirect export; a
	// namespace import stays local.
	require.Len(t, r.IndirectExportEntries, 1)
	assert.Equal(t, "y", r.IndirectExportEntries[0].ExportName)
	assert.Equal(t, "x", r.IndirectExportEntries[0].ImportName)
	require.Len(t, r.LocalExportEntries, 1)
	assert.Equal(t, "lib", r.LocalExportEntries[0].LocalName)
	require.Len(t, r.StarExportEntries, 1)
}

func TestCompile_AsyncNeedsQueue(t *testing.T) {
	_, err := Compile("m", []byte("async: true\n"), Options{})
	require.Error(t, err)
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindInvalidData))
}

func TestEvaluate_CycleWithHoistedFunction(t *testing.T) {
	w := newWorld(t)
	a := w.add("a", `
imports:
  - from: b
    names: [getX]
exports: [x]
declare:
  let: [x]
  var: [seen]
body:
  - init: {x: 1}
  - call: {fn: getX, into: seen}
  - log: "seen {seen}"
`)
	w.add("b", `
imports:
  - from: a
    names: [x]
exports: [getX]
declare:
  function:
    getX: {returns: x}
body:
  - log: b runs
`)

	p, err := w.run(a)
	require.NoError(t, err)
	assert.Equal(t, promise.Fulfilled, p.State())
	assert.Equal(t, []string{"b: b runs", "a: seen 1"}, w.trace)
	assert.Equal(t, record.StatusEvaluated, a.Status())
}

func TestEvaluate_DeadZoneErrorSharedByCycle(t *testing.T) {
	w := newWorld(t)
	a := w.add("a", `
imports:
  - from: b
    names: [y]
exports: [x]
declare:
  let: [x]
body:
  - init: {x: 1}
`)
	b := w.add("b", `
imports:
  - from: a
    names: [x]
exports: [y]
declare:
  let: [y]
body:
  - read: x
  - init: {y: 2}
`)

	_, err := w.run(a)
	require.Error(t, err)
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindUninitialized))
	assert.Equal(t, record.StatusEvaluatedError, a.Status())
	assert.Equal(t, record.StatusEvaluatedError, b.Status())
	assert.Same(t, a.EvaluationError(), b.EvaluationError())
	assert.Empty(t, w.trace)
}

func TestEvaluate_Throw(t *testing.T) {
	w := newWorld(t)
	m := w.add("m", "body:\n  - log: start\n  - throw: boom\n  - log: unreachable\n")

	p, err := w.run(m)
	require.Error(t, err)
	assert.Equal(t, promise.Rejected, p.State())

	var e *mgerrors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "boom", e.Value)
	assert.Equal(t, "m", e.Module)
	assert.Equal(t, []string{"m: start"}, w.trace)
}

func TestEvaluate_ConstIsReadOnly(t *testing.T) {
	w := newWorld(t)
	m := w.add("m", "declare:\n  const: [c]\nbody:\n  - init: {c: 1}\n  - set: {c: 2}\n")

	_, err := w.run(m)
	require.Error(t, err)
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindReadOnly))
}

func TestEvaluate_CallNonFunction(t *testing.T) {
	w := newWorld(t)
	m := w.add("m", "declare:\n  var: [v]\nbody:\n  - call: {fn: v}\n")

	_, err := w.run(m)
	require.Error(t, err)
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindInvalidData))
}

func TestEvaluate_AwaitTick(t *testing.T) {
	w := newWorld(t)
	m := w.add("m", `
async: true
exports: [v]
declare:
  let: [v]
body:
  - log: before
  - await: tick
  - init: {v: done}
  - log: "after {v}"
`)

	p, err := w.run(m)
	require.NoError(t, err)
	assert.Equal(t, promise.Pending, p.State())
	assert.Equal(t, []string{"m: before"}, w.trace)
	assert.Equal(t, record.StatusEvaluatingAsync, m.Status())

	w.drain()
	assert.Equal(t, promise.Fulfilled, p.State())
	assert.Equal(t, []string{"m: before", "m: after done"}, w.trace)
	assert.Equal(t, record.StatusEvaluated, m.Status())
}

func TestEvaluate_AwaitNever(t *testing.T) {
	w := newWorld(t)
	m := w.add("m", "async: true\nbody:\n  - await: never\n  - log: unreachable\n")

	p, err := w.run(m)
	require.NoError(t, err)
	w.drain()

	assert.Equal(t, promise.Pending, p.State())
	assert.Equal(t, record.StatusEvaluatingAsync, m.Status())
	assert.Equal(t, 1, w.eval.Pending())
	assert.Empty(t, w.trace)
}

func TestEvaluate_DynamicImportAsync(t *testing.T) {
	w := newWorld(t)
	var got []record.Assertion
	w.importer = importerFunc(func(_ context.Context, referrer *record.Record, specifier string, assertions []record.Assertion) *promise.Promise {
		assert.Equal(t, "m", referrer.Specifier)
		assert.Equal(t, "dep", specifier)
		got = assertions
		return promise.Resolved(w.queue, "namespace")
	})
	m := w.add("m", `
async: true
declare:
  let: [ns]
body:
  - import: {from: dep, into: ns, with: {type: json}}
  - log: "got {ns}"
`)

	p, err := w.run(m)
	require.NoError(t, err)
	assert.Empty(t, w.trace)

	w.drain()
	assert.Equal(t, promise.Fulfilled, p.State())
	assert.Equal(t, []string{"m: got namespace"}, w.trace)
	assert.Equal(t, []record.Assertion{{Key: "type", Value: "json"}}, got)
}

func TestEvaluate_DynamicImportSync(t *testing.T) {
	w := newWorld(t)
	w.importer = importerFunc(func(context.Context, *record.Record, string, []record.Assertion) *promise.Promise {
		return promise.Resolved(w.queue, "namespace")
	})
	m := w.add("m", "declare:\n  var: [ns]\nbody:\n  - import: {from: dep, into: ns}\n  - log: sync done\n")

	p, err := w.run(m)
	require.NoError(t, err)
	assert.Equal(t, promise.Fulfilled, p.State())
	assert.Equal(t, []string{"m: sync done"}, w.trace)

	w.drain()
	v, err := m.Environment().Get("ns")
	require.NoError(t, err)
	assert.Equal(t, "namespace", v)
}

func TestEvaluate_DynamicImportRejected(t *testing.T) {
	w := newWorld(t)
	w.importer = importerFunc(func(context.Context, *record.Record, string, []record.Assertion) *promise.Promise {
		return promise.RejectedWith(w.queue, errors.New("missing"))
	})
	m := w.add("m", "async: true\nbody:\n  - import: {from: dep}\n  - log: unreachable\n")

	p, err := w.run(m)
	require.NoError(t, err)
	w.drain()

	assert.Equal(t, promise.Rejected, p.State())
	assert.EqualError(t, p.Reason(), "missing")
	assert.Equal(t, record.StatusEvaluatedError, m.Status())
	assert.Empty(t, w.trace)
}

func TestEvaluate_ImportWithoutImporter(t *testing.T) {
	w := newWorld(t)
	m := w.add("m", "body:\n  - import: {from: dep}\n")

	_, err := w.run(m)
	require.Error(t, err)
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindUnsupported))
}

func TestEvaluate_Interrupted(t *testing.T) {
	w := newWorld(t)
	m := w.add("m", "body:\n  - log: never\n")
	require.NoError(t, w.linker.Instantiate(context.Background(), m))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.eval.Evaluate(ctx, m, evaluator.ThrowSync)
	require.Error(t, err)
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindTerminated))
	assert.Empty(t, w.trace)
}

func TestFunction_Call(t *testing.T) {
	f := &Function{Name: "f", source: FunctionSource{Value: 7}}
	v, err := f.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, "function f", f.String())
}
