package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mgerrors "github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
)

// mathWasm exports answer() -> i32 (42), add(i32, i32) -> i32 and a
// one-page memory "mem".
var mathWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x0b, 0x02, 0x60, 0x00, 0x01, 0x7f, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x03, 0x02, 0x00, 0x01,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x16, 0x03,
	0x06, 'a', 'n', 's', 'w', 'e', 'r', 0x00, 0x00,
	0x03, 'a', 'd', 'd', 0x00, 0x01,
	0x03, 'm', 'e', 'm', 0x02, 0x00,
	0x0a, 0x0e, 0x02,
	0x04, 0x00, 0x41, 0x2a, 0x0b,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

type fixture struct {
	rt    *Runtime
	src   *MemorySource
	trace []string
}

func newFixture(t *testing.T, modules map[string]string, configure ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{}
	opts := DefaultOptions()
	opts.Trace = func(specifier, msg string) {
		f.trace = append(f.trace, specifier+": "+msg)
	}
	for _, c := range configure {
		c(&opts)
	}
	f.rt = New(opts)

	data := make(map[string][]byte, len(modules))
	for name, src := range modules {
		data[name] = []byte(src)
	}
	f.src = NewMemorySource(data)
	f.rt.AddSource(f.src)
	t.Cleanup(func() { _ = f.rt.Close(context.Background()) })
	return f
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	_, err := f.rt.Drain(context.Background())
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, module, name string) any {
	t.Helper()
	ns, err := f.rt.GetNamespace(module)
	require.NoError(t, err)
	v, err := ns.Get(name)
	require.NoError(t, err)
	return v
}

func TestImport_SyncCycle(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a": `
imports:
  - from: ./b
    names: [y]
exports: [x]
declare:
  let: [x]
body:
  - init: {x: 1}
  - log: "a sees {y}"
`,
		"b": `
imports:
  - from: ./a
    names: [x]
exports: [y]
declare:
  let: [y]
body:
  - init: {y: 2}
  - log: b done
`,
	})
	ctx := context.Background()

	p, err := f.rt.Import(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, promise.Fulfilled, p.State())
	assert.Equal(t, []string{"b: b done", "a: a sees 2"}, f.trace)

	assert.Equal(t, 1, f.get(t, "a", "x"))
	assert.Equal(t, 2, f.get(t, "b", "y"))

	comps, err := f.rt.Components("a")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Len(t, comps[0], 2)

	b := f.rt.Module("b")
	require.NotNil(t, b)
	assert.Same(t, f.rt.Module("a"), b.CycleRoot())
	assert.Len(t, f.rt.Modules(), 2)
}

func TestImport_ErrorIsSticky(t *testing.T) {
	f := newFixture(t, map[string]string{
		"bad":  "body:\n  - throw: boom\n",
		"user": "imports:\n  - from: bad\nbody:\n  - log: unreachable\n",
	})
	ctx := context.Background()

	p1, err := f.rt.Import(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, promise.Rejected, p1.State())

	p2, err := f.rt.Import(ctx, "bad")
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	p3, err := f.rt.Import(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, promise.Rejected, p3.State())
	assert.Same(t, p1.Reason(), p3.Reason())
	assert.Equal(t, record.StatusEvaluatedError, f.rt.Module("user").Status())

	f.drain(t)
	assert.Empty(t, f.trace)
}

func TestImport_JSONAndYAML(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main": `
imports:
  - from: ./config.json
    names: ["default as cfg"]
    with: {type: json}
  - from: ./data.yaml
    names: ["default as data"]
    with: {type: yaml}
exports: [out, items]
declare:
  var: [out, items]
body:
  - copy: {from: cfg, to: out}
  - copy: {from: data, to: items}
`,
		"config.json": `{"name": "demo", "port": 8080}`,
		"data.yaml":   "items: [1, 2]\n",
	})

	_, err := f.rt.Import(context.Background(), "main")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "demo", "port": float64(8080)}, f.get(t, "main", "out"))
	assert.Equal(t, map[string]any{"items": []any{1, 2}}, f.get(t, "main", "items"))

	p, ok := f.rt.PrivateOf(f.rt.Module("config.json"))
	require.True(t, ok)
	assert.Equal(t, TypeJSON, p.Type)
	p, ok = f.rt.PrivateOf(f.rt.Module("data.yaml"))
	require.True(t, ok)
	assert.Equal(t, TypeYAML, p.Type)
}

func TestImport_InvalidJSON(t *testing.T) {
	f := newFixture(t, map[string]string{"bad.json": "{"})

	_, err := f.rt.Import(context.Background(), "bad.json")
	require.Error(t, err)
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindResolution))
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindInvalidData))
}

func TestImport_Wasm(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main": `
imports:
  - from: ./math.wasm
    names: [answer, add]
exports: [v, w]
declare:
  var: [v, w]
body:
  - call: {fn: answer, into: v}
  - call: {fn: add, args: [2, 3], into: w}
`,
	})
	f.src.Add(&Unit{Name: "math.wasm", Data: mathWasm, WIT: "add: func(a: u32, b: u32) -> u32;"})

	p, err := f.rt.Import(context.Background(), "main")
	require.NoError(t, err)
	require.Equal(t, promise.Fulfilled, p.State(), "reason: %v", p.Reason())

	assert.Equal(t, int32(42), f.get(t, "main", "v"))
	assert.Equal(t, uint32(5), f.get(t, "main", "w"))
}

func TestDynamicImport(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main": `
async: true
declare:
  let: [ns]
body:
  - import: {from: ./dep, into: ns, with: {type: script, extra: ignored}}
  - log: loaded
`,
		"dep": "exports: [v]\ndeclare:\n  const: [v]\nbody:\n  - init: {v: 7}\n",
	})
	ctx := context.Background()

	p, err := f.rt.Import(ctx, "main")
	require.NoError(t, err)
	main := f.rt.Module("main")
	assert.Equal(t, promise.Pending, p.State())
	assert.Equal(t, uint32(2), f.rt.PrivateRefs(main), "dynamic import retains its referrer")

	f.drain(t)
	require.Equal(t, promise.Fulfilled, p.State(), "reason: %v", p.Reason())
	assert.Equal(t, uint32(1), f.rt.PrivateRefs(main))
	assert.Equal(t, []string{"main: loaded"}, f.trace)

	v, err := main.Environment().Get("ns")
	require.NoError(t, err)
	ns, ok := v.(*record.Namespace)
	require.True(t, ok, "got %T", v)
	got, err := ns.Get("v")
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, record.StatusEvaluated, f.rt.Module("dep").Status())
}

func TestDynamicImport_Failures(t *testing.T) {
	f := newFixture(t, map[string]string{
		"bad":         "body:\n  - throw: boom\n",
		"config.json": `{"a": 1}`,
	})
	ctx := context.Background()

	missing := f.rt.DynamicImport(ctx, nil, "missing", nil)
	thrown := f.rt.DynamicImport(ctx, nil, "bad", nil)
	cfg := f.rt.DynamicImport(ctx, nil, "config.json", []record.Assertion{{Key: "type", Value: "json"}})
	f.drain(t)

	assert.Equal(t, promise.Rejected, missing.State())
	assert.True(t, mgerrors.IsKind(missing.Reason(), mgerrors.KindResolution))
	assert.True(t, mgerrors.IsKind(missing.Reason(), mgerrors.KindNotFound))

	assert.Equal(t, promise.Rejected, thrown.State())
	assert.True(t, mgerrors.IsKind(thrown.Reason(), mgerrors.KindEvaluation))

	require.Equal(t, promise.Fulfilled, cfg.State())

	// The same module asserted with another type is refused.
	wrong := f.rt.DynamicImport(ctx, nil, "config.json", []record.Assertion{{Key: "type", Value: "yaml"}})
	f.drain(t)
	assert.Equal(t, promise.Rejected, wrong.State())
	assert.True(t, mgerrors.IsKind(wrong.Reason(), mgerrors.KindInvalidData))
}

func TestDynamicImport_ReleasesReferrerOnFailure(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main": "body:\n  - import: {from: ./missing}\n",
	})
	ctx := context.Background()

	_, err := f.rt.Import(ctx, "main")
	require.NoError(t, err)
	main := f.rt.Module("main")
	assert.Equal(t, uint32(2), f.rt.PrivateRefs(main))

	f.drain(t)
	assert.Equal(t, uint32(1), f.rt.PrivateRefs(main))
	require.Len(t, f.trace, 1)
	assert.Contains(t, f.trace[0], "import ./missing failed")
}

func TestImportMeta(t *testing.T) {
	f := newFixture(t, map[string]string{"main": ""}, func(o *Options) {
		o.ImportMeta = func(r *record.Record, meta map[string]any) {
			meta["custom"] = r.Specifier
		}
	})

	m, err := f.rt.Load(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, record.StatusLinked, m.Status())

	meta := f.rt.ImportMeta(m)
	assert.Equal(t, "memory:main", meta["url"])
	assert.Equal(t, TypeScript, meta["type"])
	assert.Equal(t, "main", meta["custom"])

	meta["later"] = true
	assert.Equal(t, true, f.rt.ImportMeta(m)["later"], "import.meta is created once")
}

func TestInterrupt(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main": "async: true\nbody:\n  - await: never\n",
	})
	ctx := context.Background()

	p, err := f.rt.Import(ctx, "main")
	require.NoError(t, err)
	f.drain(t)
	assert.Equal(t, promise.Pending, p.State())
	assert.Equal(t, 1, f.rt.Pending())

	cause := errors.New("deadline")
	assert.Equal(t, 1, f.rt.Interrupt(cause))
	f.drain(t)

	assert.Equal(t, promise.Rejected, p.State())
	assert.True(t, mgerrors.IsKind(p.Reason(), mgerrors.KindTerminated))
	assert.ErrorIs(t, p.Reason(), cause)
	assert.Equal(t, 0, f.rt.Pending())
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("main.yaml", "imports:\n  - from: ./lib/dep.yaml\n    names: [x]\nexports: [x]\n")
	write("lib/dep.yaml", `
imports:
  - from: ./data.json
    names: ["default as d"]
    with: {type: json}
exports: [x]
declare:
  var: [x]
body:
  - copy: {from: d, to: x}
`)
	write("lib/data.json", `[1, 2, 3]`)

	rt := New(Options{BaseDir: dir, SupportedAssertions: []string{"type"}})
	defer rt.Close(context.Background())

	p, err := rt.Import(context.Background(), "main.yaml")
	require.NoError(t, err)
	require.Equal(t, promise.Fulfilled, p.State(), "reason: %v", p.Reason())

	ns, err := rt.GetNamespace("main.yaml")
	require.NoError(t, err)
	v, err := ns.Get("x")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, v)

	require.NotNil(t, rt.Module("lib/data.json"))
	meta := rt.ImportMeta(rt.Module("lib/dep.yaml"))
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "lib/dep.yaml")), meta["url"])
}

func TestImport_Errors(t *testing.T) {
	f := newFixture(t, map[string]string{
		"toml":     "imports:\n  - from: ./x.toml\n    with: {type: toml}\n",
		"x.toml":   "a = 1",
		"unbound":  "imports:\n  - from: ./dep\n    names: [nope]\n",
		"dep":      "exports: [x]\ndeclare:\n  var: [x]\n",
		"badparse": "body: [",
	})
	ctx := context.Background()

	tests := []struct {
		module string
		kind   mgerrors.Kind
	}{
		{"missing", mgerrors.KindNotFound},
		{"toml", mgerrors.KindUnsupported},
		{"unbound", mgerrors.KindUnresolvedExport},
		{"badparse", mgerrors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			_, err := f.rt.Import(ctx, tt.module)
			require.Error(t, err)
			assert.True(t, mgerrors.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestRegisterAndCustomCompiler(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main": `
imports:
  - from: host
    names: [answer]
  - from: ./note.txt
    names: ["default as note"]
    with: {type: text}
exports: [a, n]
declare:
  var: [a, n]
body:
  - copy: {from: answer, to: a}
  - copy: {from: note, to: n}
`,
		"note.txt": "hello",
	})

	host, err := record.NewBuilder("host").
		Declare("answer", record.DeclConst).
		ExportLocal("answer", "answer").
		Body(record.BodyFunc(func(_ context.Context, env *record.Environment) (*promise.Promise, error) {
			return nil, env.Initialize("answer", 42)
		})).
		Build()
	require.NoError(t, err)
	f.rt.Register("host", host)

	f.rt.RegisterCompiler("text", CompilerFunc(func(_ context.Context, u *Unit) (*record.Record, error) {
		return syntheticDefault(u.Name, string(u.Data))
	}))

	_, err = f.rt.Import(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 42, f.get(t, "main", "a"))
	assert.Equal(t, "hello", f.get(t, "main", "n"))

	p, ok := f.rt.PrivateOf(host)
	require.True(t, ok)
	assert.Equal(t, "host", p.Type)
}

func TestClose(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main": "async: true\nbody:\n  - await: never\n",
	})
	ctx := context.Background()

	p, err := f.rt.Import(ctx, "main")
	require.NoError(t, err)
	main := f.rt.Module("main")

	require.NoError(t, f.rt.Close(ctx))
	require.NoError(t, f.rt.Close(ctx))

	_, ok := f.rt.PrivateOf(main)
	assert.False(t, ok)

	_, err = f.rt.Import(ctx, "main")
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindInvalidState))

	// Close delivers the termination before returning.
	assert.Equal(t, promise.Rejected, p.State())
	assert.ErrorIs(t, p.Reason(), ErrClosed)
}

func TestNormalize(t *testing.T) {
	lib := &record.Record{Specifier: "lib/x"}
	tests := []struct {
		referrer  *record.Record
		specifier string
		want      string
	}{
		{nil, "./a", "a"},
		{nil, "pkg", "pkg"},
		{lib, "./y", "lib/y"},
		{lib, "../y", "y"},
		{lib, "pkg", "pkg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.referrer, tt.specifier), tt.specifier)
	}
}

func TestMemorySource(t *testing.T) {
	s := NewMemorySource(map[string][]byte{"a": []byte("x")})

	u, err := s.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "memory:a", u.URL)
	u.Data = nil

	again, err := s.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), again.Data, "Load returns a copy")

	_, err = s.Load(context.Background(), "b")
	assert.True(t, mgerrors.IsKind(err, mgerrors.KindNotFound))
}
