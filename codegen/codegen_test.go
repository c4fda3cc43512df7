package codegen

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/target"
	"github.com/wippyai/irkit/wasm"
)

func TestMain(m *testing.M) {
	target.Initialize()
	os.Exit(m.Run())
}

type fixture struct {
	ctx *ir.Context
	m   *ir.Module
	b   *ir.Builder
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()
	ctx := ir.NewContext()
	t.Cleanup(ctx.Dispose)
	m, err := ctx.CreateModule(name)
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	return &fixture{ctx: ctx, m: m, b: ir.NewBuilder(ctx)}
}

func (fx *fixture) function(t *testing.T, name string, ret *ir.Type, params ...*ir.Type) *ir.Function {
	t.Helper()
	fn, err := fx.m.AddFunction(name, fx.ctx.FunctionType(ret, params...))
	if err != nil {
		t.Fatalf("AddFunction(%s): %v", name, err)
	}
	return fn
}

// body positions the builder in a fresh entry block of fn.
func (fx *fixture) body(fn *ir.Function) *ir.Builder {
	fx.b.PositionAtEnd(fn.Append("entry"))
	return fx.b
}

func lower(t *testing.T, m *ir.Module) *wasm.Module {
	t.Helper()
	wm, err := Lower(m, Options{})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	return wm
}

func instantiate(t *testing.T, r wazero.Runtime, wm *wasm.Module, name string) api.Module {
	t.Helper()
	ctx := context.Background()
	mod, err := r.InstantiateWithConfig(ctx, wm.Encode(), wazero.NewModuleConfig().WithName(name))
	if err != nil {
		t.Fatalf("instantiate %s: %v", name, err)
	}
	return mod
}

func newRuntime(t *testing.T) wazero.Runtime {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	t.Cleanup(func() { _ = r.Close(ctx) })
	return r
}

func call(t *testing.T, mod api.Module, name string, args ...uint64) uint64 {
	t.Helper()
	fn := mod.ExportedFunction(name)
	if fn == nil {
		t.Fatalf("export %q missing", name)
	}
	res, err := fn.Call(context.Background(), args...)
	if err != nil {
		t.Fatalf("%s%v: %v", name, args, err)
	}
	if len(res) == 0 {
		return 0
	}
	return res[0]
}

func TestLowerAdd(t *testing.T) {
	fx := newFixture(t, "arith")
	i32 := fx.ctx.Int32Type()
	add := fx.function(t, "add", i32, i32, i32)
	b := fx.body(add)
	b.Ret(b.Add(add.Param(0), add.Param(1)))
	if _, err := fx.m.AddAlias(add, "plus"); err != nil {
		t.Fatalf("AddAlias: %v", err)
	}

	wm := lower(t, fx.m)
	if len(wm.Memories) != 0 {
		t.Errorf("module without pointer accesses got a memory")
	}
	e, ok := wm.Export("plus")
	if !ok || e.Kind != wasm.KindFunc || e.Idx != 0 {
		t.Errorf("alias export = %+v, %v", e, ok)
	}

	mod := instantiate(t, newRuntime(t), wm, "arith")
	if got := call(t, mod, "add", 2, 3); uint32(got) != 5 {
		t.Errorf("add(2, 3) = %d", got)
	}
	if got := call(t, mod, "plus", api.EncodeI32(-7), 3); int32(got) != -4 {
		t.Errorf("plus(-7, 3) = %d", int32(got))
	}
}

func TestLowerFibSwitchAndTailCalls(t *testing.T) {
	fx := newFixture(t, "fib")
	i64 := fx.ctx.Int64Type()
	fib := fx.function(t, "fib", i64, i64)
	n := fib.Param(0)
	entry := fib.Append("entry")
	onZero := fib.Append("on_zero")
	onOne := fib.Append("on_one")
	def := fib.Append("default")
	zero, one, two := ir.Compile(fx.ctx, uint64(0)), ir.Compile(fx.ctx, uint64(1)), ir.Compile(fx.ctx, uint64(2))

	b := fx.b
	b.PositionAtEnd(entry)
	b.Switch(n, def, ir.SwitchCase{Value: zero, Dest: onZero}, ir.SwitchCase{Value: one, Dest: onOne})
	b.PositionAtEnd(onZero)
	b.Ret(zero)
	b.PositionAtEnd(onOne)
	b.Ret(one)
	b.PositionAtEnd(def)
	fa := b.TailCall(fib, b.Sub(n, one))
	fb := b.TailCall(fib, b.Sub(n, two))
	b.Ret(b.Add(fa, fb))

	mod := instantiate(t, newRuntime(t), lower(t, fx.m), "fib")
	for in, want := range map[uint64]uint64{0: 0, 1: 1, 2: 1, 10: 55, 20: 6765} {
		if got := call(t, mod, "fib", in); got != want {
			t.Errorf("fib(%d) = %d, want %d", in, got, want)
		}
	}
}

// TestLowerParallelPhis swaps two values on every loop iteration. A
// sequential phi assignment would clobber one of them.
func TestLowerParallelPhis(t *testing.T) {
	fx := newFixture(t, "swap")
	i32 := fx.ctx.Int32Type()
	fn := fx.function(t, "swap", i32, i32)
	entry := fn.Append("entry")
	loop := fn.Append("loop")
	exit := fn.Append("exit")
	k := func(v int64) *ir.Constant { return fx.ctx.ConstSInt(i32, v) }

	b := fx.b
	b.PositionAtEnd(entry)
	b.Br(loop)

	b.PositionAtEnd(loop)
	a := b.Phi(i32)
	bv := b.Phi(i32)
	i := b.Phi(i32)
	next := b.Add(i, k(1))
	more := b.ICmp(ir.UnsignedLessThan, next, fn.Param(0))
	b.CondBr(more, loop, exit)
	a.AddIncoming(k(1), entry)
	a.AddIncoming(bv, loop)
	bv.AddIncoming(k(2), entry)
	bv.AddIncoming(a, loop)
	i.AddIncoming(k(0), entry)
	i.AddIncoming(next, loop)

	b.PositionAtEnd(exit)
	b.Ret(b.Add(b.Mul(a, k(10)), bv))

	mod := instantiate(t, newRuntime(t), lower(t, fx.m), "swap")
	tests := []struct {
		n, want uint64
	}{
		{1, 12},
		{2, 21},
		{3, 12},
	}
	for _, tt := range tests {
		if got := call(t, mod, "swap", tt.n); got != tt.want {
			t.Errorf("swap(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestLowerNarrowIntegers(t *testing.T) {
	fx := newFixture(t, "narrow")
	i8, i32 := fx.ctx.Int8Type(), fx.ctx.Int32Type()

	add8 := fx.function(t, "add8", i8, i8, i8)
	b := fx.body(add8)
	b.Ret(b.Add(add8.Param(0), add8.Param(1)))

	sdiv8 := fx.function(t, "sdiv8", i8, i8, i8)
	b = fx.body(sdiv8)
	b.Ret(b.SDiv(sdiv8.Param(0), sdiv8.Param(1)))

	ashr8 := fx.function(t, "ashr8", i8, i8, i8)
	b = fx.body(ashr8)
	b.Ret(b.AShr(ashr8.Param(0), ashr8.Param(1)))

	not8 := fx.function(t, "not8", i8, i8)
	b = fx.body(not8)
	b.Ret(b.Not(not8.Param(0)))

	slt8 := fx.function(t, "slt8", i32, i8, i8)
	b = fx.body(slt8)
	b.Ret(b.ZExt(b.ICmp(ir.LessThan, slt8.Param(0), slt8.Param(1)), i32))

	sext8 := fx.function(t, "sext8", i32, i8)
	b = fx.body(sext8)
	b.Ret(b.SExt(sext8.Param(0), i32))

	trunc := fx.function(t, "trunc", i8, fx.ctx.Int64Type())
	b = fx.body(trunc)
	b.Ret(b.Trunc(trunc.Param(0), i8))

	mod := instantiate(t, newRuntime(t), lower(t, fx.m), "narrow")
	tests := []struct {
		fn   string
		args []uint64
		want uint32
	}{
		{"add8", []uint64{200, 100}, 44},
		{"sdiv8", []uint64{250, 2}, 253},
		{"ashr8", []uint64{0x80, 1}, 0xC0},
		{"not8", []uint64{0x0F}, 0xF0},
		{"slt8", []uint64{255, 1}, 1},
		{"slt8", []uint64{1, 255}, 0},
		{"sext8", []uint64{255}, 0xFFFFFFFF},
		{"sext8", []uint64{127}, 127},
		{"trunc", []uint64{0x1234}, 0x34},
	}
	for _, tt := range tests {
		if got := uint32(call(t, mod, tt.fn, tt.args...)); got != tt.want {
			t.Errorf("%s%v = %#x, want %#x", tt.fn, tt.args, got, tt.want)
		}
	}
}

func TestLowerFloats(t *testing.T) {
	fx := newFixture(t, "floats")
	f64, i32 := fx.ctx.DoubleType(), fx.ctx.Int32Type()

	one := fx.function(t, "one", i32, f64, f64)
	b := fx.body(one)
	b.Ret(b.ZExt(b.FCmp(ir.NotEqual, one.Param(0), one.Param(1)), i32))

	toInt := fx.function(t, "to_int", i32, f64)
	b = fx.body(toInt)
	b.Ret(b.FPToSI(toInt.Param(0), i32))

	half := fx.function(t, "half", f64, i32)
	b = fx.body(half)
	b.Ret(b.FDiv(b.SIToFP(half.Param(0), f64), fx.ctx.ConstFloat(f64, 2)))

	mod := instantiate(t, newRuntime(t), lower(t, fx.m), "floats")
	nan := api.EncodeF64(math.NaN())
	if got := call(t, mod, "one", api.EncodeF64(1), api.EncodeF64(2)); got != 1 {
		t.Errorf("one(1, 2) = %d, want 1", got)
	}
	if got := call(t, mod, "one", nan, api.EncodeF64(1)); got != 0 {
		t.Errorf("one(NaN, 1) = %d, want 0", got)
	}
	if got := call(t, mod, "to_int", api.EncodeF64(-3.7)); int32(got) != -3 {
		t.Errorf("to_int(-3.7) = %d, want -3", int32(got))
	}
	if got := api.DecodeF64(call(t, mod, "half", api.EncodeI32(-5))); got != -2.5 {
		t.Errorf("half(-5) = %v, want -2.5", got)
	}
}

func TestLowerGlobals(t *testing.T) {
	fx := newFixture(t, "globals")
	i64 := fx.ctx.Int64Type()
	counter, err := fx.m.AddGlobal(i64, "counter")
	if err != nil {
		t.Fatalf("AddGlobal: %v", err)
	}
	counter.SetInitializer(fx.ctx.ConstInt(i64, 41))
	hidden, err := fx.m.AddGlobal(i64, "hidden")
	if err != nil {
		t.Fatalf("AddGlobal: %v", err)
	}
	hidden.SetInitializer(fx.ctx.ConstInt(i64, 0))
	hidden.SetLinkage(ir.Internal)

	bump := fx.function(t, "bump", i64)
	b := fx.body(bump)
	v := b.Add(b.Load(counter), fx.ctx.ConstInt(i64, 1))
	b.Store(v, counter)
	b.Store(v, hidden)
	b.Ret(v)

	wm := lower(t, fx.m)
	if _, ok := wm.Export("hidden"); ok {
		t.Error("internal global was exported")
	}
	if len(wm.Memories) != 0 {
		t.Error("global accesses must not need a memory")
	}

	r := newRuntime(t)
	mod := instantiate(t, r, wm, "globals")
	if got := call(t, mod, "bump"); got != 42 {
		t.Errorf("first bump = %d, want 42", got)
	}
	if got := call(t, mod, "bump"); got != 43 {
		t.Errorf("second bump = %d, want 43", got)
	}

	// a second module reads the counter through an imported global
	reader := newFixture(t, "reader")
	ri64 := reader.ctx.Int64Type()
	ext, err := reader.m.AddGlobal(ri64, "counter")
	if err != nil {
		t.Fatalf("AddGlobal: %v", err)
	}
	read := reader.function(t, "read", ri64)
	rb := reader.body(read)
	rb.Ret(rb.Load(ext))

	rm := lower(t, reader.m)
	if len(rm.Imports) != 1 || rm.Imports[0].Desc.Kind != wasm.KindGlobal || rm.Imports[0].Module != ImportModule {
		t.Fatalf("imports = %+v", rm.Imports)
	}
	rm.Imports[0].Module = "globals"
	rmod := instantiate(t, r, rm, "reader")
	if got := call(t, rmod, "read"); got != 43 {
		t.Errorf("read = %d, want 43", got)
	}
}

func TestLowerMemory(t *testing.T) {
	fx := newFixture(t, "mem")
	i32, i64 := fx.ctx.Int32Type(), fx.ctx.Int64Type()
	poke := fx.function(t, "poke", i64, i32, i64)
	b := fx.body(poke)
	ptr := b.IntToPtr(poke.Param(0), fx.ctx.PointerType(i64))
	b.Store(poke.Param(1), ptr)
	b.Ret(b.Load(ptr))

	wm, err := Lower(fx.m, Options{MemoryPages: 2, MaxMemoryPages: 4})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if len(wm.Memories) != 1 || wm.Memories[0].Limits.Min != 2 || *wm.Memories[0].Limits.Max != 4 {
		t.Fatalf("memories = %+v", wm.Memories)
	}
	mod := instantiate(t, newRuntime(t), wm, "mem")
	const v = 0x1122334455667788
	if got := call(t, mod, "poke", 16, v); got != v {
		t.Errorf("poke = %#x", got)
	}
	if got, ok := mod.ExportedMemory(MemoryExport).ReadUint64Le(16); !ok || got != v {
		t.Errorf("memory[16] = %#x, %v", got, ok)
	}
}

func TestLowerImportedFunction(t *testing.T) {
	fx := newFixture(t, "caller")
	i32 := fx.ctx.Int32Type()
	twice := fx.function(t, "twice", i32, i32)
	quad := fx.function(t, "quad", i32, i32)
	b := fx.body(quad)
	b.Ret(b.Call(twice, b.Call(twice, quad.Param(0))))

	wm := lower(t, fx.m)
	if len(wm.Imports) != 1 || wm.Imports[0].Name != "twice" || wm.Imports[0].Desc.Kind != wasm.KindFunc {
		t.Fatalf("imports = %+v", wm.Imports)
	}
	if e, ok := wm.Export("quad"); !ok || e.Idx != 1 {
		t.Errorf("quad export = %+v, %v", e, ok)
	}

	ctx := context.Background()
	r := newRuntime(t)
	_, err := r.NewHostModuleBuilder(ImportModule).
		NewFunctionBuilder().
		WithFunc(func(x uint32) uint32 { return 2 * x }).
		Export("twice").
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}
	mod := instantiate(t, r, wm, "caller")
	if got := call(t, mod, "quad", 5); got != 20 {
		t.Errorf("quad(5) = %d, want 20", got)
	}
}

func TestLowerErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, fx *fixture)
		want  error
	}{
		{
			name: "global used as a value",
			build: func(t *testing.T, fx *fixture) {
				i32 := fx.ctx.Int32Type()
				g, _ := fx.m.AddGlobal(i32, "g")
				g.SetInitializer(fx.ctx.ConstInt(i32, 0))
				fn := fx.function(t, "addr", i32)
				b := fx.body(fn)
				b.Ret(b.PtrToInt(g, i32))
			},
			want: irerrors.ErrUnsupported,
		},
		{
			name: "struct parameter",
			build: func(t *testing.T, fx *fixture) {
				i32 := fx.ctx.Int32Type()
				st := fx.ctx.StructType([]*ir.Type{i32, i32}, false)
				fn := fx.function(t, "take", i32, st)
				b := fx.body(fn)
				b.Ret(fx.ctx.ConstInt(i32, 0))
			},
			want: irerrors.ErrVerification,
		},
		{
			name: "wide integer",
			build: func(t *testing.T, fx *fixture) {
				fx.function(t, "wide", fx.ctx.IntType(48))
			},
			want: irerrors.ErrUnsupported,
		},
		{
			name: "missing terminator",
			build: func(t *testing.T, fx *fixture) {
				i32 := fx.ctx.Int32Type()
				fn := fx.function(t, "open", i32, i32)
				b := fx.body(fn)
				b.Add(fn.Param(0), fn.Param(0))
			},
			want: irerrors.ErrVerification,
		},
		{
			name: "memory name taken",
			build: func(t *testing.T, fx *fixture) {
				i32 := fx.ctx.Int32Type()
				fn := fx.function(t, "memory", i32, i32)
				b := fx.body(fn)
				b.Ret(b.Load(b.IntToPtr(fn.Param(0), fx.ctx.PointerType(i32))))
			},
			want: irerrors.ErrUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, "bad")
			tt.build(t, fx)
			_, err := Lower(fx.m, Options{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Lower error = %v, want %v", err, tt.want)
			}
		})
	}
}
