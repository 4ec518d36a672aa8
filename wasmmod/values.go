package wasmmod

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/modgraph"
	"github.com/wippyai/modgraph/errors"
)

// Func is an exported wasm function bound into a module environment.
type Func struct {
	fn     api.Function
	sig    *signature
	Name   string
	params []api.ValueType
}

// Call invokes the function. A single result is returned as is, several
// results as a slice and no result as modgraph.Undefined.
func (f *Func) Call(ctx context.Context, args ...modgraph.Value) (modgraph.Value, error) {
	if len(args) != len(f.params) {
		return nil, errors.New(errors.PhaseEvaluate, errors.KindInvalidData).
			Name(f.Name).
			Detail("%s takes %d arguments, got %d", f.Name, len(f.params), len(args)).
			Build()
	}

	stack := make([]uint64, len(args))
	for i, a := range args {
		v, err := encode(a, f.params[i])
		if err != nil {
			return nil, errors.New(errors.PhaseEvaluate, errors.KindInvalidData).
				Name(f.Name).
				Detail("argument %d", i).
				Cause(err).
				Build()
		}
		stack[i] = v
	}

	results, err := f.fn.Call(ctx, stack...)
	if err != nil {
		return nil, errors.New(errors.PhaseEvaluate, errors.KindEvaluation).
			Name(f.Name).
			Detail("call %s", f.Name).
			Cause(err).
			Build()
	}

	resultTypes := f.fn.Definition().ResultTypes()
	out := make([]modgraph.Value, len(results))
	for i, r := range results {
		if f.sig != nil {
			out[i] = decodeWIT(r, f.sig.results[i])
		} else {
			out[i] = decode(r, resultTypes[i])
		}
	}

	switch len(out) {
	case 0:
		return modgraph.Undefined, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

func (f *Func) String() string {
	return "wasm function " + f.Name
}

// Memory is an exported wasm linear memory.
type Memory struct {
	mem  api.Memory
	Name string
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Read copies n bytes starting at offset.
func (m *Memory) Read(offset, n uint32) ([]byte, error) {
	buf, ok := m.mem.Read(offset, n)
	if !ok {
		return nil, errors.New(errors.PhaseEvaluate, errors.KindInvalidData).
			Name(m.Name).
			Detail("read [%d, %d) out of range of %d bytes", offset, uint64(offset)+uint64(n), m.mem.Size()).
			Build()
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// Write copies data into memory at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.New(errors.PhaseEvaluate, errors.KindInvalidData).
			Name(m.Name).
			Detail("write of %d bytes at %d out of range", len(data), offset).
			Build()
	}
	return nil
}

func (m *Memory) String() string {
	return fmt.Sprintf("wasm memory %s (%d bytes)", m.Name, m.mem.Size())
}

// coreType is the core wasm type a scalar WIT type lowers to.
func coreType(t wit.Type) api.ValueType {
	switch t.(type) {
	case wit.S64, wit.U64:
		return api.ValueTypeI64
	case wit.F32:
		return api.ValueTypeF32
	case wit.F64:
		return api.ValueTypeF64
	default:
		return api.ValueTypeI32
	}
}

func encode(v modgraph.Value, vt api.ValueType) (uint64, error) {
	switch vt {
	case api.ValueTypeF32:
		f, ok := toFloat(v)
		if !ok {
			return 0, fmt.Errorf("cannot convert %T to f32", v)
		}
		return api.EncodeF32(float32(f)), nil
	case api.ValueTypeF64:
		f, ok := toFloat(v)
		if !ok {
			return 0, fmt.Errorf("cannot convert %T to f64", v)
		}
		return api.EncodeF64(f), nil
	case api.ValueTypeI64:
		n, ok := toInt(v)
		if !ok {
			return 0, fmt.Errorf("cannot convert %T to i64", v)
		}
		return api.EncodeI64(n), nil
	default:
		n, ok := toInt(v)
		if !ok {
			return 0, fmt.Errorf("cannot convert %T to i32", v)
		}
		if n < math.MinInt32 || n > math.MaxUint32 {
			return 0, fmt.Errorf("%d overflows i32", n)
		}
		return api.EncodeU32(uint32(n)), nil
	}
}

func decode(r uint64, vt api.ValueType) modgraph.Value {
	switch vt {
	case api.ValueTypeI64:
		return int64(r)
	case api.ValueTypeF32:
		return api.DecodeF32(r)
	case api.ValueTypeF64:
		return api.DecodeF64(r)
	default:
		return api.DecodeI32(r)
	}
}

func decodeWIT(r uint64, t wit.Type) modgraph.Value {
	switch t.(type) {
	case wit.Bool:
		return uint32(r) != 0
	case wit.S8:
		return int8(r)
	case wit.U8:
		return uint8(r)
	case wit.S16:
		return int16(r)
	case wit.U16:
		return uint16(r)
	case wit.U32:
		return api.DecodeU32(r)
	case wit.Char:
		return rune(uint32(r))
	case wit.S64:
		return int64(r)
	case wit.U64:
		return r
	case wit.F32:
		return api.DecodeF32(r)
	case wit.F64:
		return api.DecodeF64(r)
	default:
		return api.DecodeI32(r)
	}
}

func toInt(v modgraph.Value) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat(v modgraph.Value) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		i, ok := toInt(v)
		return float64(i), ok
	}
}
