package ir

import (
	"errors"
	"testing"
	"unsafe"

	irerrors "github.com/wippyai/irkit/errors"
)

func TestTypes_Interned(t *testing.T) {
	ctx := NewContext()
	defer ctx.Dispose()

	i32 := ctx.Int32Type()
	if ctx.IntType(32) != i32 {
		t.Error("integer types should be interned")
	}
	if ctx.PointerType(i32) != ctx.PointerType(i32) {
		t.Error("pointer types should be interned")
	}
	if ctx.FunctionType(i32, i32, i32) != ctx.FunctionType(i32, i32, i32) {
		t.Error("function types should be interned")
	}
	if ctx.FunctionType(i32, i32) == ctx.FunctionType(i32, i32, i32) {
		t.Error("different arity must give different types")
	}
	if ctx.StructType([]*Type{i32}, false) == ctx.StructType([]*Type{i32}, true) {
		t.Error("packed and unpacked structs must differ")
	}

	other := NewContext()
	defer other.Dispose()
	if other.Int32Type() == i32 {
		t.Error("types are per context")
	}
}

func TestTypes_String(t *testing.T) {
	ctx := NewContext()
	defer ctx.Dispose()

	m, _ := ctx.CreateModule("m")
	node, err := m.AddStructType("Node")
	if err != nil {
		t.Fatalf("AddStructType: %v", err)
	}

	i32, i64 := ctx.Int32Type(), ctx.Int64Type()
	tests := []struct {
		typ  *Type
		want string
	}{
		{ctx.VoidType(), "void"},
		{ctx.Int1Type(), "i1"},
		{i32, "i32"},
		{ctx.FloatType(), "float"},
		{ctx.DoubleType(), "double"},
		{ctx.PointerType(ctx.Int8Type()), "i8*"},
		{ctx.FunctionType(i64, i64, i32), "i64 (i64, i32)"},
		{ctx.StructType([]*Type{i32, i64}, false), "{ i32, i64 }"},
		{ctx.StructType([]*Type{i32}, true), "<{ i32 }>"},
		{node, "%Node"},
		{ctx.PointerType(node), "%Node*"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypes_NamedStructBody(t *testing.T) {
	ctx := NewContext()
	defer ctx.Dispose()

	m, _ := ctx.CreateModule("m")
	node, _ := m.AddStructType("Node")
	if !node.IsOpaque() {
		t.Fatal("new named struct should be opaque")
	}
	if err := node.SetBody([]*Type{ctx.Int64Type(), ctx.PointerType(node)}, false); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	if node.IsOpaque() || len(node.Fields()) != 2 {
		t.Errorf("body not applied: opaque=%v fields=%d", node.IsOpaque(), len(node.Fields()))
	}
	if _, err := m.AddStructType("Node"); !errors.Is(err, irerrors.ErrDuplicate) {
		t.Errorf("duplicate struct error = %v", err)
	}
	if got, ok := m.StructType("Node"); !ok || got != node {
		t.Error("StructType lookup failed")
	}
}

func TestTypeFor(t *testing.T) {
	ctx := NewContext()
	defer ctx.Dispose()

	i8, i32, i64 := ctx.Int8Type(), ctx.Int32Type(), ctx.Int64Type()
	type pair struct {
		A int32
		B *float64
	}

	tests := []struct {
		name string
		get  func() (*Type, error)
		want *Type
	}{
		{"bool", func() (*Type, error) { return TypeFor[bool](ctx) }, ctx.Int1Type()},
		{"uint8", func() (*Type, error) { return TypeFor[uint8](ctx) }, i8},
		{"int", func() (*Type, error) { return TypeFor[int](ctx) }, i64},
		{"float32", func() (*Type, error) { return TypeFor[float32](ctx) }, ctx.FloatType()},
		{"pointer", func() (*Type, error) { return TypeFor[*int32](ctx) }, ctx.PointerType(i32)},
		{"unsafe pointer", func() (*Type, error) { return TypeFor[unsafe.Pointer](ctx) }, ctx.PointerType(i8)},
		{"func", func() (*Type, error) { return TypeFor[func(uint64) uint64](ctx) }, ctx.FunctionType(i64, i64)},
		{"void func", func() (*Type, error) { return TypeFor[func(int32, int32)](ctx) }, ctx.FunctionType(ctx.VoidType(), i32, i32)},
		{"struct", func() (*Type, error) { return TypeFor[pair](ctx) },
			ctx.StructType([]*Type{i32, ctx.PointerType(ctx.DoubleType())}, false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.get()
			if err != nil {
				t.Fatalf("TypeFor: %v", err)
			}
			if got != tt.want {
				t.Errorf("TypeFor = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTypeFor_Unsupported(t *testing.T) {
	ctx := NewContext()
	defer ctx.Dispose()

	tests := []struct {
		name string
		get  func() (*Type, error)
	}{
		{"string", func() (*Type, error) { return TypeFor[string](ctx) }},
		{"chan", func() (*Type, error) { return TypeFor[chan int](ctx) }},
		{"variadic", func() (*Type, error) { return TypeFor[func(...int32)](ctx) }},
		{"multi result", func() (*Type, error) { return TypeFor[func() (int32, int32)](ctx) }},
		{"slice field", func() (*Type, error) { return TypeFor[struct{ S []int }](ctx) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.get()
			if !errors.Is(err, irerrors.ErrUnsupported) {
				t.Errorf("error = %v, want unsupported", err)
			}
		})
	}
}

func TestCompile(t *testing.T) {
	ctx := NewContext()
	defer ctx.Dispose()

	u := Compile(ctx, uint8(200))
	if u.Type() != ctx.Int8Type() || u.ZExt() != 200 {
		t.Errorf("uint8: %s zext=%d", u.Type(), u.ZExt())
	}
	if u.SExt() != -56 {
		t.Errorf("uint8 200 sext = %d, want -56", u.SExt())
	}

	s := Compile(ctx, int16(-1))
	if s.SExt() != -1 || s.ZExt() != 0xffff {
		t.Errorf("int16 -1: sext=%d zext=%#x", s.SExt(), s.ZExt())
	}

	b := Compile(ctx, true)
	if b.Type() != ctx.Int1Type() || b.ZExt() != 1 {
		t.Errorf("bool: %s %d", b.Type(), b.ZExt())
	}

	f := Compile(ctx, 1.5)
	if f.Type() != ctx.DoubleType() || f.Float() != 1.5 {
		t.Errorf("float64: %s %v", f.Type(), f.Float())
	}
	f32 := Compile(ctx, float32(0.25))
	if f32.Type() != ctx.FloatType() || f32.Float() != 0.25 {
		t.Errorf("float32: %s %v", f32.Type(), f32.Float())
	}

	if Compile(ctx, int32(7)) != ctx.ConstInt(ctx.Int32Type(), 7) {
		t.Error("constants should be interned")
	}
	if ctx.ConstInt(ctx.Int8Type(), 0x1ff).ZExt() != 0xff {
		t.Error("ConstInt should truncate to the type width")
	}
}

func TestConstant_Text(t *testing.T) {
	ctx := NewContext()
	defer ctx.Dispose()

	tests := []struct {
		k    *Constant
		want string
	}{
		{Compile(ctx, int32(-5)), "i32 -5"},
		{Compile(ctx, false), "i1 false"},
		{Compile(ctx, 2.5), "double 2.5e+00"},
		{ctx.ConstNull(ctx.PointerType(ctx.Int8Type())), "i8* null"},
		{ctx.Undef(ctx.Int64Type()), "i64 undef"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.k.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
