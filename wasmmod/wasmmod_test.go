package wasmmod

import (
	"context"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/modgraph"
	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/evaluator"
	"github.com/wippyai/modgraph/linker"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
)

// mathWasm exports answer() -> i32 (42), add(i32, i32) -> i32 and a
// one-page memory "mem".
var mathWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: () -> i32, (i32, i32) -> i32
	0x01, 0x0b, 0x02, 0x60, 0x00, 0x01, 0x7f, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	// function
	0x03, 0x03, 0x02, 0x00, 0x01,
	// memory: min 1
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export
	0x07, 0x16, 0x03,
	0x06, 'a', 'n', 's', 'w', 'e', 'r', 0x00, 0x00,
	0x03, 'a', 'd', 'd', 0x00, 0x01,
	0x03, 'm', 'e', 'm', 0x02, 0x00,
	// code
	0x0a, 0x0e, 0x02,
	0x04, 0x00, 0x41, 0x2a, 0x0b,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

// importWasm imports env.f.
var importWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x02, 0x09, 0x01, 0x03, 'e', 'n', 'v', 0x01, 'f', 0x00, 0x00,
}

func evaluate(t *testing.T, rec *record.Record) *record.Namespace {
	t.Helper()
	ctx := context.Background()
	l := linker.NewWithDefaults(linker.NewResolver(nil))
	if err := l.Instantiate(ctx, rec); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	p, err := evaluator.NewWithDefaults(promise.NewQueue()).Evaluate(ctx, rec, evaluator.ThrowSync)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if p.State() != promise.Fulfilled {
		t.Fatalf("Evaluate state = %s", p.State())
	}
	ns, err := l.GetNamespace(rec)
	if err != nil {
		t.Fatalf("GetNamespace: %v", err)
	}
	return ns
}

func call(t *testing.T, ns *record.Namespace, name string, args ...modgraph.Value) modgraph.Value {
	t.Helper()
	v, err := ns.Get(name)
	if err != nil {
		t.Fatalf("Get(%s): %v", name, err)
	}
	fn, ok := v.(modgraph.Callable)
	if !ok {
		t.Fatalf("%s is %T, not callable", name, v)
	}
	out, err := fn.Call(context.Background(), args...)
	if err != nil {
		t.Fatalf("Call(%s): %v", name, err)
	}
	return out
}

func TestLoader_Exports(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(ctx, Config{})
	defer loader.Close(ctx)

	rec, err := loader.Compile(ctx, "math.wasm", mathWasm, "")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if rec.Status() != record.StatusUnlinked {
		t.Fatalf("status = %s", rec.Status())
	}

	ns := evaluate(t, rec)

	keys := ns.OwnKeys()
	want := []string{"add", "answer", "mem"}
	if len(keys) != len(want) {
		t.Fatalf("exports = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("exports = %v, want %v", keys, want)
		}
	}

	if got := call(t, ns, "answer"); got != int32(42) {
		t.Errorf("answer() = %v (%T), want int32 42", got, got)
	}
	if got := call(t, ns, "add", 2, -5); got != int32(-3) {
		t.Errorf("add(2, -5) = %v (%T), want int32 -3", got, got)
	}

	v, err := ns.Get("mem")
	if err != nil {
		t.Fatalf("Get(mem): %v", err)
	}
	mem := v.(*Memory)
	if mem.Size() != 65536 {
		t.Errorf("mem size = %d", mem.Size())
	}
	if err := mem.Write(8, []byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := mem.Read(8, 2)
	if err != nil || string(data) != "hi" {
		t.Errorf("Read = %q, %v", data, err)
	}
	if _, err := mem.Read(65535, 2); !errors.IsKind(err, errors.KindInvalidData) {
		t.Errorf("out of range read: %v", err)
	}

	// Bindings are immutable.
	if err := rec.Environment().Set("answer", 1); !errors.IsKind(err, errors.KindReadOnly) {
		t.Errorf("Set(answer) = %v", err)
	}
}

func TestLoader_WITSignature(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(ctx, Config{})
	defer loader.Close(ctx)

	rec, err := loader.Compile(ctx, "math.wasm", mathWasm, `
		export add: func(a: u32, b: u32) -> u32;
		answer: func() -> bool;
	`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ns := evaluate(t, rec)

	if got := call(t, ns, "add", uint32(0xffffffff), 2); got != uint32(1) {
		t.Errorf("add = %v (%T), want uint32 1", got, got)
	}
	if got := call(t, ns, "answer"); got != true {
		t.Errorf("answer = %v (%T), want true", got, got)
	}
}

func TestLoader_CompileErrors(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(ctx, Config{})
	defer loader.Close(ctx)

	tests := []struct {
		name string
		wasm []byte
		wit  string
		kind errors.Kind
	}{
		{"invalid binary", []byte("not wasm"), "", errors.KindInvalidData},
		{"imports", importWasm, "", errors.KindUnsupported},
		{"unknown WIT export", mathWasm, "missing: func();", errors.KindNotFound},
		{"WIT arity mismatch", mathWasm, "add: func(a: u32) -> u32;", errors.KindInvalidData},
		{"WIT type mismatch", mathWasm, "answer: func() -> f64;", errors.KindInvalidData},
		{"WIT non-scalar", mathWasm, "answer: func() -> string;", errors.KindUnsupported},
		{"WIT without functions", mathWasm, "interface x {}", errors.KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Compile(ctx, "m.wasm", tt.wasm, tt.wit)
			if !errors.IsKind(err, tt.kind) {
				t.Fatalf("Compile error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestFunc_ArgumentErrors(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(ctx, Config{})
	defer loader.Close(ctx)

	rec, err := loader.Compile(ctx, "math.wasm", mathWasm, "")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ns := evaluate(t, rec)
	v, _ := ns.Get("add")
	add := v.(*Func)

	if _, err := add.Call(ctx, 1); !errors.IsKind(err, errors.KindInvalidData) {
		t.Errorf("arity: %v", err)
	}
	if _, err := add.Call(ctx, "x", 1); !errors.IsKind(err, errors.KindInvalidData) {
		t.Errorf("string arg: %v", err)
	}
	if _, err := add.Call(ctx, int64(1)<<40, 1); !errors.IsKind(err, errors.KindInvalidData) {
		t.Errorf("overflow: %v", err)
	}
}

func TestParseSignatures(t *testing.T) {
	sigs, err := parseSignatures(`
		export scale: func(x: f64, factor: s64) -> (f64, s64);
		noop: func();
	`)
	if err != nil {
		t.Fatalf("parseSignatures: %v", err)
	}
	scale := sigs["scale"]
	if scale == nil || len(scale.params) != 2 || len(scale.results) != 2 {
		t.Fatalf("scale = %+v", scale)
	}
	if coreType(scale.params[0]) != coreType(wit.F64{}) || coreType(scale.params[1]) != coreType(wit.S64{}) {
		t.Errorf("scale params = %v", scale.params)
	}
	noop := sigs["noop"]
	if noop == nil || len(noop.params) != 0 || len(noop.results) != 0 {
		t.Fatalf("noop = %+v", noop)
	}

	empty, err := parseSignatures("  ")
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty WIT = %v, %v", empty, err)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a: u32", []string{"a: u32"}},
		{"a: u32, b: list<tuple<u8, u8>>", []string{"a: u32", "b: list<tuple<u8, u8>>"}},
		{" x , y ", []string{"x", "y"}},
	}
	for _, tt := range tests {
		got := splitList(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitList(%q) = %q, want %q", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitList(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	}
}
