package engine

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"fortio.org/safecast"
	"github.com/tetratelabs/wazero/api"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/ir"
)

// GenericKind is the shape of a GenericValue.
type GenericKind uint8

const (
	GenericVoid GenericKind = iota
	GenericInt
	GenericFloat
	GenericDouble
	GenericPointer
)

func (k GenericKind) String() string {
	switch k {
	case GenericVoid:
		return "void"
	case GenericInt:
		return "int"
	case GenericFloat:
		return "float"
	case GenericDouble:
		return "double"
	case GenericPointer:
		return "pointer"
	}
	return "GenericKind(" + strconv.Itoa(int(k)) + ")"
}

// GenericValue is a scalar passed to or returned from RunFunction. Integers
// carry their bit width and are stored zero-extended.
type GenericValue struct {
	kind GenericKind
	bits int
	raw  uint64
}

// Void is the result of functions returning void.
func Void() GenericValue { return GenericValue{} }

// NewInt returns an integer of the given width holding the low bits of v.
func NewInt(bits int, v uint64) GenericValue {
	if bits < 1 || bits > 64 {
		panic(fmt.Sprintf("engine: integer width %d out of range", bits))
	}
	return GenericValue{kind: GenericInt, bits: bits, raw: truncate(v, bits)}
}

// NewSInt is NewInt for a signed value.
func NewSInt(bits int, v int64) GenericValue {
	return NewInt(bits, uint64(v))
}

func NewFloat(v float32) GenericValue {
	return GenericValue{kind: GenericFloat, bits: 32, raw: uint64(math.Float32bits(v))}
}

func NewDouble(v float64) GenericValue {
	return GenericValue{kind: GenericDouble, bits: 64, raw: math.Float64bits(v)}
}

// NewPointer returns a pointer into the linear memory of the callee's module.
func NewPointer(addr uint32) GenericValue {
	return GenericValue{kind: GenericPointer, bits: 32, raw: uint64(addr)}
}

func (g GenericValue) Kind() GenericKind { return g.kind }

// Bits is the integer width, 32 for floats and pointers, 64 for doubles.
func (g GenericValue) Bits() int { return g.bits }

func (g GenericValue) IsVoid() bool { return g.kind == GenericVoid }

// Int returns the value zero-extended.
func (g GenericValue) Int() uint64 { return g.raw }

// SInt returns the value sign-extended from its width.
func (g GenericValue) SInt() int64 {
	if g.bits == 0 || g.bits >= 64 {
		return int64(g.raw)
	}
	shift := 64 - g.bits
	return int64(g.raw<<shift) >> shift
}

// Float returns float and double values as float64.
func (g GenericValue) Float() float64 {
	switch g.kind {
	case GenericFloat:
		return float64(math.Float32frombits(uint32(g.raw)))
	case GenericDouble:
		return math.Float64frombits(g.raw)
	}
	return 0
}

func (g GenericValue) Pointer() uint32 { return uint32(g.raw) }

func (g GenericValue) String() string {
	switch g.kind {
	case GenericVoid:
		return "void"
	case GenericInt:
		return fmt.Sprintf("i%d %d", g.bits, g.SInt())
	case GenericFloat:
		return "float " + strconv.FormatFloat(g.Float(), 'g', -1, 32)
	case GenericDouble:
		return "double " + strconv.FormatFloat(g.Float(), 'g', -1, 64)
	case GenericPointer:
		return fmt.Sprintf("ptr %#x", g.raw)
	}
	return g.kind.String()
}

// Matches reports whether g can be passed as a value of type t.
func (g GenericValue) Matches(t *ir.Type) bool {
	switch t.Kind() {
	case ir.VoidKind:
		return g.kind == GenericVoid
	case ir.IntegerKind:
		return g.kind == GenericInt && g.bits == t.Bits()
	case ir.FloatKind:
		return g.kind == GenericFloat
	case ir.DoubleKind:
		return g.kind == GenericDouble
	case ir.PointerKind:
		return g.kind == GenericPointer
	}
	return false
}

// wasm encodes g as a wazero stack value.
func (g GenericValue) wasm() uint64 {
	switch g.kind {
	case GenericInt:
		if g.bits <= 32 {
			return api.EncodeU32(uint32(g.raw))
		}
		return g.raw
	case GenericFloat:
		return api.EncodeF32(math.Float32frombits(uint32(g.raw)))
	case GenericPointer:
		return api.EncodeU32(uint32(g.raw))
	}
	return g.raw
}

// fromWasm decodes a wazero result of type t.
func fromWasm(t *ir.Type, v uint64) GenericValue {
	switch t.Kind() {
	case ir.IntegerKind:
		return NewInt(t.Bits(), v)
	case ir.FloatKind:
		return NewFloat(api.DecodeF32(v))
	case ir.DoubleKind:
		return NewDouble(api.DecodeF64(v))
	case ir.PointerKind:
		return NewPointer(api.DecodeU32(v))
	}
	return Void()
}

func truncate(v uint64, bits int) uint64 {
	if bits >= 64 {
		return v
	}
	return v & (1<<bits - 1)
}

// ToGeneric converts a Go scalar to a GenericValue of type t. Integers must
// fit t's width as either a signed or an unsigned number.
func ToGeneric(v any, t *ir.Type) (GenericValue, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return GenericValue{}, shapeError(v, t, "nil has no IR representation")
	}
	switch t.Kind() {
	case ir.IntegerKind:
		bits := t.Bits()
		switch rv.Kind() {
		case reflect.Bool:
			if bits != 1 {
				return GenericValue{}, shapeError(v, t, "bool needs i1")
			}
			if rv.Bool() {
				return NewInt(1, 1), nil
			}
			return NewInt(1, 0), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n := rv.Int()
			if !fitsSigned(n, bits) {
				return GenericValue{}, overflowError(v, t)
			}
			return NewSInt(bits, n), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			n := rv.Uint()
			if bits < 64 && n>>bits != 0 {
				return GenericValue{}, overflowError(v, t)
			}
			return NewInt(bits, n), nil
		}
	case ir.FloatKind:
		switch rv.Kind() {
		case reflect.Float32:
			return NewFloat(float32(rv.Float())), nil
		case reflect.Float64:
			f := rv.Float()
			if !math.IsNaN(f) && float64(float32(f)) != f {
				return GenericValue{}, shapeError(v, t, "value is not exactly representable as float")
			}
			return NewFloat(float32(f)), nil
		}
	case ir.DoubleKind:
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			return NewDouble(rv.Float()), nil
		}
	case ir.PointerKind:
		switch rv.Kind() {
		case reflect.Uint, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			addr, err := safecast.Conv[uint32](rv.Uint())
			if err != nil {
				return GenericValue{}, overflowError(v, t)
			}
			return NewPointer(addr), nil
		}
	}
	return GenericValue{}, shapeError(v, t, fmt.Sprintf("%T cannot be passed as %s", v, t))
}

// fitsSigned accepts n when it is a valid signed or unsigned bits-wide number.
func fitsSigned(n int64, bits int) bool {
	if bits >= 64 {
		return true
	}
	lo := -(int64(1) << (bits - 1))
	hi := int64(1)<<bits - 1
	return n >= lo && n <= hi
}

// FromGeneric converts g to the Go scalar T. Integers are sign-extended for
// signed T and zero-extended otherwise; T must be at least as wide as g.
func FromGeneric[T ir.Native](g GenericValue) (T, error) {
	var zero T
	rt := reflect.TypeOf(zero)
	var v any
	switch rt.Kind() {
	case reflect.Bool:
		if g.kind != GenericInt || g.bits != 1 {
			return zero, fromShapeError(g, rt)
		}
		v = g.raw == 1
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if g.kind != GenericInt || g.bits > rt.Bits() {
			return zero, fromShapeError(g, rt)
		}
		v = g.SInt()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if (g.kind != GenericInt && g.kind != GenericPointer) || g.bits > rt.Bits() {
			return zero, fromShapeError(g, rt)
		}
		v = g.raw
	case reflect.Float32:
		if g.kind != GenericFloat {
			return zero, fromShapeError(g, rt)
		}
		v = g.Float()
	case reflect.Float64:
		if g.kind != GenericDouble && g.kind != GenericFloat {
			return zero, fromShapeError(g, rt)
		}
		v = g.Float()
	default:
		return zero, fromShapeError(g, rt)
	}
	return reflect.ValueOf(v).Convert(rt).Interface().(T), nil
}

// ParseGeneric parses a command-line literal as a value of type t.
func ParseGeneric(s string, t *ir.Type) (GenericValue, error) {
	switch t.Kind() {
	case ir.IntegerKind:
		if n, err := strconv.ParseInt(s, 0, 64); err == nil {
			return ToGeneric(n, t)
		}
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return GenericValue{}, shapeError(s, t, "not an integer")
		}
		return ToGeneric(n, t)
	case ir.FloatKind:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return GenericValue{}, shapeError(s, t, "not a number")
		}
		return NewFloat(float32(f)), nil
	case ir.DoubleKind:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return GenericValue{}, shapeError(s, t, "not a number")
		}
		return NewDouble(f), nil
	case ir.PointerKind:
		n, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return GenericValue{}, shapeError(s, t, "not an address")
		}
		return NewPointer(uint32(n)), nil
	}
	return GenericValue{}, shapeError(s, t, "type cannot be passed to a function")
}

func shapeError(v any, t *ir.Type, detail string) *irerrors.Error {
	err := irerrors.ShapeMismatch(fmt.Sprintf("%T", v), t.String(), detail)
	err.Value = v
	return err
}

func overflowError(v any, t *ir.Type) *irerrors.Error {
	return shapeError(v, t, fmt.Sprintf("value %v does not fit %s", v, t))
}

func fromShapeError(g GenericValue, rt reflect.Type) *irerrors.Error {
	err := irerrors.ShapeMismatch(rt.String(), "", fmt.Sprintf("%s value cannot be read as %s", g.kind, rt))
	err.Value = g.String()
	return err
}
