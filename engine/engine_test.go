package engine

import (
	"context"
	"errors"
	"os"
	"testing"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/handle"
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/passes"
	"github.com/wippyai/irkit/target"
)

func TestMain(m *testing.M) {
	target.Initialize()
	os.Exit(m.Run())
}

type fixture struct {
	ctx *ir.Context
	b   *ir.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := ir.NewContext()
	t.Cleanup(c.Dispose)
	return &fixture{ctx: c, b: ir.NewBuilder(c)}
}

func (fx *fixture) module(t *testing.T, name string) *ir.Module {
	t.Helper()
	m, err := fx.ctx.CreateModule(name)
	if err != nil {
		t.Fatalf("CreateModule(%s): %v", name, err)
	}
	return m
}

func (fx *fixture) function(t *testing.T, m *ir.Module, name string, ret *ir.Type, params ...*ir.Type) *ir.Function {
	t.Helper()
	fn, err := m.AddFunction(name, fx.ctx.FunctionType(ret, params...))
	if err != nil {
		t.Fatalf("AddFunction(%s): %v", name, err)
	}
	return fn
}

// add defines name(i32, i32) i32 in m.
func (fx *fixture) add(t *testing.T, m *ir.Module, name string) *ir.Function {
	t.Helper()
	i32 := fx.ctx.Int32Type()
	fn := fx.function(t, m, name, i32, i32, i32)
	fx.b.PositionAtEnd(fn.Append("entry"))
	fx.b.Ret(fx.b.Add(fn.Param(0), fn.Param(1)))
	return fn
}

// fib defines the recursive fib(i64) i64 in m.
func (fx *fixture) fib(t *testing.T, m *ir.Module) *ir.Function {
	t.Helper()
	i64 := fx.ctx.Int64Type()
	fn := fx.function(t, m, "fib", i64, i64)
	n := fn.Param(0)
	entry, base, rec := fn.Append("entry"), fn.Append("base"), fn.Append("rec")
	one, two := fx.ctx.ConstInt(i64, 1), fx.ctx.ConstInt(i64, 2)

	b := fx.b
	b.PositionAtEnd(entry)
	b.CondBr(b.ICmp(ir.UnsignedLessThan, n, two), base, rec)
	b.PositionAtEnd(base)
	b.Ret(n)
	b.PositionAtEnd(rec)
	b.Ret(b.Add(b.Call(fn, b.Sub(n, one)), b.Call(fn, b.Sub(n, two))))
	return fn
}

// quad defines quad(x) = twice(twice(x)) in m with twice declared.
func (fx *fixture) quad(t *testing.T, m *ir.Module) *ir.Function {
	t.Helper()
	i32 := fx.ctx.Int32Type()
	twice := fx.function(t, m, "twice", i32, i32)
	fn := fx.function(t, m, "quad", i32, i32)
	fx.b.PositionAtEnd(fn.Append("entry"))
	fx.b.Ret(fx.b.Call(twice, fx.b.Call(twice, fn.Param(0))))
	return fn
}

// twice defines twice(x) = x + x in m.
func (fx *fixture) twice(t *testing.T, m *ir.Module) *ir.Function {
	t.Helper()
	i32 := fx.ctx.Int32Type()
	fn := fx.function(t, m, "twice", i32, i32)
	fx.b.PositionAtEnd(fn.Append("entry"))
	fx.b.Ret(fx.b.Add(fn.Param(0), fn.Param(0)))
	return fn
}

func interpreter(t *testing.T, modules ...*ir.Module) *Interpreter {
	t.Helper()
	ee, err := NewInterpreter(context.Background(), modules...)
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	t.Cleanup(func() { _ = ee.Close(context.Background()) })
	return ee
}

func requireJIT(t *testing.T) {
	t.Helper()
	tm, err := target.NewTargetMachine("")
	if err != nil || !tm.CanJIT() {
		t.Skip("host target cannot run native code")
	}
}

func run(t *testing.T, ee ExecutionEngine, name string, args ...GenericValue) GenericValue {
	t.Helper()
	fn, ok := ee.FindFunction(name)
	if !ok {
		t.Fatalf("FindFunction(%q) failed", name)
	}
	res, err := ee.RunFunction(context.Background(), fn, args...)
	if err != nil {
		t.Fatalf("RunFunction(%s): %v", name, err)
	}
	return res
}

func expectViolation(t *testing.T, op string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected %s violation, got none", op)
		}
		v, ok := r.(*handle.Violation)
		if !ok {
			t.Fatalf("expected *handle.Violation, got %T: %v", r, r)
		}
		if v.Op != op {
			t.Errorf("violation op = %q, want %q (%v)", v.Op, op, v)
		}
	}()
	fn()
}

func TestInterpreterRunsAdd(t *testing.T) {
	fx := newFixture(t)
	m := fx.module(t, "arith")
	fx.add(t, m, "add")

	ee := interpreter(t, m)
	if ee.Kind() != KindInterpreter {
		t.Errorf("Kind() = %s", ee.Kind())
	}
	if m.Owner() == "" {
		t.Fatal("absorbed module is still owned by its context")
	}
	res := run(t, ee, "add", NewInt(32, 2), NewInt(32, 3))
	if res.Int() != 5 {
		t.Errorf("add(2, 3) = %s, want 5", res)
	}
	res = run(t, ee, "add", NewSInt(32, -7), NewInt(32, 3))
	if res.SInt() != -4 {
		t.Errorf("add(-7, 3) = %s, want -4", res)
	}
}

func TestJitEngineOptLevels(t *testing.T) {
	requireJIT(t)
	levels := []passes.OptLevel{passes.OptNone, passes.OptLess, passes.OptDefault, passes.OptAggressive}
	for _, level := range levels {
		t.Run(level.String(), func(t *testing.T) {
			fx := newFixture(t)
			m := fx.module(t, "fib")
			fx.fib(t, m)
			fx.add(t, m, "add")

			ee, err := NewJitEngine(context.Background(), JitOptions{OptLevel: level}, m)
			if err != nil {
				t.Fatalf("NewJitEngine: %v", err)
			}
			defer func() { _ = ee.Close(context.Background()) }()

			if ee.Options().OptLevel != level || ee.TargetMachine() == nil {
				t.Errorf("options = %+v", ee.Options())
			}
			if res := run(t, ee, "fib", NewInt(64, 20)); res.Int() != 6765 {
				t.Errorf("fib(20) = %s, want 6765", res)
			}
			if res := run(t, ee, "add", NewInt(32, 2), NewInt(32, 3)); res.Int() != 5 {
				t.Errorf("add(2, 3) = %s, want 5", res)
			}
		})
	}
}

func TestJitEngineRejectsUnknownTarget(t *testing.T) {
	fx := newFixture(t)
	m := fx.module(t, "arith")
	fx.add(t, m, "add")

	_, err := NewJitEngine(context.Background(), JitOptions{TargetTriple: "nonexistent-unknown-none"}, m)
	if !errors.Is(err, irerrors.ErrCompilation) {
		t.Fatalf("NewJitEngine error = %v, want compilation error", err)
	}
	if m.Owner() != "" {
		t.Errorf("module owner = %q after failed construction", m.Owner())
	}
}

func TestRunFunctionErrors(t *testing.T) {
	fx := newFixture(t)
	m := fx.module(t, "arith")
	add := fx.add(t, m, "add")
	loose := fx.module(t, "loose")
	stray := fx.add(t, loose, "stray")
	ee := interpreter(t, m)

	tests := []struct {
		name string
		fn   *ir.Function
		args []GenericValue
		want error
	}{
		{"too few arguments", add, []GenericValue{NewInt(32, 1)}, irerrors.ErrArityMismatch},
		{"too many arguments", add, []GenericValue{NewInt(32, 1), NewInt(32, 2), NewInt(32, 3)}, irerrors.ErrArityMismatch},
		{"wrong width", add, []GenericValue{NewInt(64, 1), NewInt(32, 2)}, irerrors.ErrTypeMismatch},
		{"double for int", add, []GenericValue{NewInt(32, 1), NewDouble(2)}, irerrors.ErrTypeMismatch},
		{"function of another module", stray, []GenericValue{NewInt(32, 1), NewInt(32, 2)}, irerrors.ErrUnknownFunction},
		{"nil function", nil, nil, irerrors.ErrUnknownFunction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ee.RunFunction(context.Background(), tt.fn, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("RunFunction error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, ok := ee.FindFunction("stray"); ok {
		t.Error("FindFunction found a function of a module the engine does not own")
	}
}

func TestRunFunctionTrap(t *testing.T) {
	fx := newFixture(t)
	m := fx.module(t, "trap")
	fn := fx.function(t, m, "boom", fx.ctx.VoidType())
	fx.b.PositionAtEnd(fn.Append("entry"))
	fx.b.Unreachable()

	ee := interpreter(t, m)
	_, err := ee.RunFunction(context.Background(), fn)
	if !errors.Is(err, irerrors.ErrTrap) {
		t.Fatalf("RunFunction error = %v, want trap", err)
	}
}

func TestAmbiguousDefinition(t *testing.T) {
	t.Run("construction", func(t *testing.T) {
		fx := newFixture(t)
		a, b := fx.module(t, "a"), fx.module(t, "b")
		fx.add(t, a, "main")
		fx.add(t, b, "main")

		_, err := NewInterpreter(context.Background(), a, b)
		if !errors.Is(err, irerrors.ErrAmbiguousDefinition) {
			t.Fatalf("NewInterpreter error = %v, want ambiguous definition", err)
		}
		if a.Owner() != "" || b.Owner() != "" {
			t.Errorf("owners after failure = %q, %q", a.Owner(), b.Owner())
		}
	})

	t.Run("add module", func(t *testing.T) {
		fx := newFixture(t)
		a, b := fx.module(t, "a"), fx.module(t, "b")
		fx.add(t, a, "main")
		fx.add(t, b, "main")
		ee := interpreter(t, a)

		if err := ee.AddModule(context.Background(), b); !errors.Is(err, irerrors.ErrAmbiguousDefinition) {
			t.Fatalf("AddModule error = %v, want ambiguous definition", err)
		}
		if b.Owner() != "" {
			t.Errorf("rejected module is owned by %q", b.Owner())
		}
		if len(ee.Modules()) != 1 {
			t.Errorf("engine owns %d modules, want 1", len(ee.Modules()))
		}
		if res := run(t, ee, "main", NewInt(32, 1), NewInt(32, 1)); res.Int() != 2 {
			t.Errorf("main(1, 1) = %s after rejected AddModule", res)
		}
	})

	t.Run("disjoint names", func(t *testing.T) {
		fx := newFixture(t)
		a, b := fx.module(t, "a"), fx.module(t, "b")
		fx.add(t, a, "first")
		fx.add(t, b, "second")
		ee := interpreter(t, a, b)
		run(t, ee, "first", NewInt(32, 1), NewInt(32, 1))
		run(t, ee, "second", NewInt(32, 1), NewInt(32, 1))
	})

	t.Run("internal names do not collide", func(t *testing.T) {
		fx := newFixture(t)
		a, b := fx.module(t, "a"), fx.module(t, "b")
		fx.add(t, a, "helper").SetLinkage(ir.Internal)
		fx.add(t, b, "helper")
		ee := interpreter(t, a, b)
		fn, ok := ee.FindFunction("helper")
		if !ok || fn.Parent() != b {
			t.Errorf("FindFunction(helper) = %v, %v; want the external definition", fn, ok)
		}
	})

	t.Run("weak definitions merge", func(t *testing.T) {
		fx := newFixture(t)
		a, b := fx.module(t, "a"), fx.module(t, "b")
		fx.add(t, a, "shared").SetLinkage(ir.WeakAny)
		fx.add(t, b, "shared").SetLinkage(ir.LinkOnceODR)
		ee := interpreter(t, a, b)
		fn, ok := ee.FindFunction("shared")
		if !ok || fn.Parent() != a {
			t.Errorf("FindFunction(shared) = %v, %v; want the first definition", fn, ok)
		}
	})
}

func TestOwnership(t *testing.T) {
	t.Run("absorbed twice", func(t *testing.T) {
		fx := newFixture(t)
		m := fx.module(t, "arith")
		fx.add(t, m, "add")
		ee := interpreter(t, m)

		expectViolation(t, "transfer", func() {
			_, _ = NewInterpreter(context.Background(), m)
		})
		expectViolation(t, "transfer", func() {
			_ = ee.AddModule(context.Background(), m)
		})
	})

	t.Run("same module twice in one call", func(t *testing.T) {
		fx := newFixture(t)
		m := fx.module(t, "arith")
		fx.add(t, m, "add")
		expectViolation(t, "transfer", func() {
			_, _ = NewInterpreter(context.Background(), m, m)
		})
		if m.Owner() != "" {
			t.Errorf("module owner = %q", m.Owner())
		}
	})

	t.Run("context disposed while absorbed", func(t *testing.T) {
		c := ir.NewContext()
		m, err := c.CreateModule("arith")
		if err != nil {
			t.Fatal(err)
		}
		fx := &fixture{ctx: c, b: ir.NewBuilder(c)}
		fx.add(t, m, "add")
		ee, err := NewInterpreter(context.Background(), m)
		if err != nil {
			t.Fatalf("NewInterpreter: %v", err)
		}

		expectViolation(t, "release", c.Dispose)
		expectViolation(t, "release", m.Dispose)

		if err := ee.Close(context.Background()); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if m.Alive() {
			t.Error("Close left the absorbed module alive")
		}
		c.Dispose()
	})

	t.Run("close twice", func(t *testing.T) {
		fx := newFixture(t)
		ee, err := NewInterpreter(context.Background())
		if err != nil {
			t.Fatalf("NewInterpreter: %v", err)
		}
		if err := ee.Close(context.Background()); err != nil {
			t.Fatalf("Close: %v", err)
		}
		expectViolation(t, "close", func() { _ = ee.Close(context.Background()) })
		m := fx.module(t, "late")
		expectViolation(t, "add module", func() { _ = ee.AddModule(context.Background(), m) })
	})
}

func TestAbsorbedModuleIsFrozen(t *testing.T) {
	fx := newFixture(t)
	m := fx.module(t, "arith")
	add := fx.add(t, m, "add")
	i32 := fx.ctx.Int32Type()
	g, err := m.AddGlobal(i32, "total")
	if err != nil {
		t.Fatalf("AddGlobal: %v", err)
	}
	g.SetInitializer(fx.ctx.ConstInt(i32, 0))
	alias, err := m.AddAlias(add, "plus")
	if err != nil {
		t.Fatalf("AddAlias: %v", err)
	}
	entry := add.Entry()
	sum := entry.Instructions()[0]
	ee := interpreter(t, m)
	ctx := context.Background()

	b := ir.NewBuilder(fx.ctx)
	b.PositionAtEnd(entry)
	sig := fx.ctx.FunctionType(i32, i32)
	mutators := []struct {
		name string
		fn   func()
	}{
		{"rename function", func() { add.SetName("sum") }},
		{"delete function", func() { add.Delete() }},
		{"function linkage", func() { add.SetLinkage(ir.Internal) }},
		{"append block", func() { add.Append("more") }},
		{"delete block", func() { entry.Delete() }},
		{"move instruction", func() { entry.Append(sum) }},
		{"set operand", func() { sum.SetOperand(0, add.Param(1)) }},
		{"erase instruction", func() { sum.EraseFromParent() }},
		{"replace uses", func() { ir.ReplaceAllUsesWith(add, add.Param(0), add.Param(1)) }},
		{"build", func() { b.Unreachable() }},
		{"add function", func() { _, _ = m.AddFunction("extra", sig) }},
		{"add global", func() { _, _ = m.AddGlobal(i32, "extra") }},
		{"add alias", func() { _, _ = m.AddAlias(add, "extra") }},
		{"add struct", func() { _, _ = m.AddStructType("pair") }},
		{"target triple", func() { m.SetTargetTriple("wasm32-unknown-unknown") }},
		{"data layout", func() { m.SetDataLayout("e-p:32:32") }},
		{"rename global", func() { g.SetName("sum") }},
		{"global initializer", func() { g.SetInitializer(fx.ctx.ConstInt(i32, 1)) }},
		{"global constant", func() { g.SetConstant(true) }},
		{"global linkage", func() { g.SetLinkage(ir.Internal) }},
		{"delete global", func() { g.Delete() }},
		{"rename alias", func() { alias.SetName("sum") }},
		{"alias target", func() { alias.SetAliasee(g) }},
		{"delete alias", func() { alias.Delete() }},
	}
	for _, tt := range mutators {
		t.Run(tt.name, func(t *testing.T) {
			expectViolation(t, "mutate", tt.fn)
		})
	}

	if _, ok := ee.FindFunction("add"); !ok {
		t.Fatal("add is no longer found")
	}
	if res := run(t, ee, "add", NewInt(32, 2), NewInt(32, 3)); res.Int() != 5 {
		t.Errorf("add(2, 3) = %s after rejected mutations, want 5", res)
	}
	if got, ok := m.Function("add"); !ok || got != add || len(entry.Instructions()) != 2 {
		t.Error("rejected mutations changed the module")
	}

	if err := ee.RemoveModule(ctx, m); err != nil {
		t.Fatalf("RemoveModule: %v", err)
	}
	add.SetName("sum")
	if _, ok := m.Function("sum"); !ok {
		t.Error("returned module cannot be renamed")
	}
}

func TestJitLeavesModuleUnchanged(t *testing.T) {
	requireJIT(t)
	fx := newFixture(t)
	m := fx.module(t, "consts")
	i32 := fx.ctx.Int32Type()
	fn := fx.function(t, m, "five", i32)
	fx.b.PositionAtEnd(fn.Append("entry"))
	fx.b.Ret(fx.b.Add(fx.ctx.ConstInt(i32, 2), fx.ctx.ConstInt(i32, 3)))
	before := m.String()
	ctx := context.Background()

	ee, err := NewJitEngine(ctx, JitOptions{OptLevel: passes.OptAggressive}, m)
	if err != nil {
		t.Fatalf("NewJitEngine: %v", err)
	}
	defer func() { _ = ee.Close(ctx) }()
	if res := run(t, ee, "five"); res.Int() != 5 {
		t.Errorf("five() = %s, want 5", res)
	}
	if err := ee.RemoveModule(ctx, m); err != nil {
		t.Fatalf("RemoveModule: %v", err)
	}
	if after := m.String(); after != before {
		t.Errorf("module changed by optimization:\n%s\nwant:\n%s", after, before)
	}

	broken := fx.module(t, "broken")
	open := fx.function(t, broken, "open", i32, i32)
	fx.b.PositionAtEnd(open.Append("entry"))
	fx.b.Add(open.Param(0), open.Param(0))
	before = broken.String()
	if err := ee.AddModule(ctx, broken); !errors.Is(err, irerrors.ErrVerification) {
		t.Fatalf("AddModule error = %v, want verification error", err)
	}
	if broken.Owner() != "" || broken.String() != before {
		t.Error("failed absorption changed the module")
	}
}

func TestRemoveModule(t *testing.T) {
	fx := newFixture(t)
	a, b := fx.module(t, "a"), fx.module(t, "b")
	add := fx.add(t, a, "add")
	fx.fib(t, b)
	ee := interpreter(t, a, b)
	ctx := context.Background()

	if err := ee.RemoveModule(ctx, a); err != nil {
		t.Fatalf("RemoveModule: %v", err)
	}
	if a.Owner() != "" {
		t.Errorf("removed module owner = %q", a.Owner())
	}
	if _, ok := ee.FindFunction("add"); ok {
		t.Error("removed function is still found")
	}
	if _, err := ee.RunFunction(ctx, add, NewInt(32, 1), NewInt(32, 1)); !errors.Is(err, irerrors.ErrUnknownFunction) {
		t.Errorf("running a removed function: %v", err)
	}
	if res := run(t, ee, "fib", NewInt(64, 10)); res.Int() != 55 {
		t.Errorf("fib(10) = %s after removing another module", res)
	}
	if err := ee.RemoveModule(ctx, a); !errors.Is(err, irerrors.ErrNotFound) {
		t.Errorf("second RemoveModule error = %v, want not found", err)
	}

	// the module can move to another engine
	other := interpreter(t, a)
	if res := run(t, other, "add", NewInt(32, 20), NewInt(32, 22)); res.Int() != 42 {
		t.Errorf("add in second engine = %s", res)
	}

	if err := ee.RemoveModule(ctx, b); err != nil {
		t.Fatalf("RemoveModule(last): %v", err)
	}
	if len(ee.Modules()) != 0 {
		t.Errorf("engine still owns %d modules", len(ee.Modules()))
	}
}

func TestCall(t *testing.T) {
	fx := newFixture(t)
	m := fx.module(t, "calls")
	fx.add(t, m, "add")
	fx.fib(t, m)
	i8 := fx.ctx.Int8Type()
	neg := fx.function(t, m, "neg8", i8, i8)
	fx.b.PositionAtEnd(neg.Append("entry"))
	fx.b.Ret(fx.b.Neg(neg.Param(0)))
	ee := interpreter(t, m)
	ctx := context.Background()

	sum, err := Call[int32](ctx, ee, "add", int32(40), 2)
	if err != nil || sum != 42 {
		t.Errorf("Call add = %d, %v; want 42", sum, err)
	}
	f, err := Call[uint64](ctx, ee, "fib", uint64(25))
	if err != nil || f != 75025 {
		t.Errorf("Call fib = %d, %v; want 75025", f, err)
	}
	n, err := Call[int8](ctx, ee, "neg8", int8(5))
	if err != nil || n != -5 {
		t.Errorf("Call neg8 = %d, %v; want -5", n, err)
	}

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"unknown", func() error { _, err := Call[int32](ctx, ee, "missing"); return err }, irerrors.ErrUnknownFunction},
		{"arity", func() error { _, err := Call[int32](ctx, ee, "add", 1); return err }, irerrors.ErrArityMismatch},
		{"overflow", func() error { _, err := Call[int8](ctx, ee, "neg8", 300); return err }, irerrors.ErrShapeMismatch},
		{"narrow result", func() error { _, err := Call[int16](ctx, ee, "add", 1, 2); return err }, irerrors.ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCrossModuleCalls(t *testing.T) {
	fx := newFixture(t)
	app, lib := fx.module(t, "app"), fx.module(t, "lib")
	fx.quad(t, app)
	fx.twice(t, lib)

	// app imports from lib although it is absorbed first
	ee := interpreter(t, app, lib)
	if res := run(t, ee, "quad", NewInt(32, 5)); res.Int() != 20 {
		t.Errorf("quad(5) = %s, want 20", res)
	}

	decl, ok := app.Function("twice")
	if !ok || !decl.IsDeclaration() {
		t.Fatal("twice is not declared in app")
	}
	res, err := ee.RunFunction(context.Background(), decl, NewInt(32, 4))
	if err != nil || res.Int() != 8 {
		t.Errorf("twice through its declaration = %s, %v", res, err)
	}
}

func TestUnresolvedSymbols(t *testing.T) {
	t.Run("interpreter fails at construction", func(t *testing.T) {
		fx := newFixture(t)
		app := fx.module(t, "app")
		fx.quad(t, app)
		_, err := NewInterpreter(context.Background(), app)
		if !errors.Is(err, irerrors.ErrUnresolvedSymbol) {
			t.Fatalf("NewInterpreter error = %v, want unresolved symbol", err)
		}
		if app.Owner() != "" {
			t.Errorf("module owner = %q after failure", app.Owner())
		}
	})

	t.Run("jit without lazy resolution", func(t *testing.T) {
		requireJIT(t)
		fx := newFixture(t)
		app := fx.module(t, "app")
		fx.quad(t, app)
		_, err := NewJitEngine(context.Background(), JitOptions{}, app)
		if !errors.Is(err, irerrors.ErrUnresolvedSymbol) {
			t.Fatalf("NewJitEngine error = %v, want unresolved symbol", err)
		}
	})

	t.Run("lazy resolution fails at call time", func(t *testing.T) {
		requireJIT(t)
		fx := newFixture(t)
		app, lib := fx.module(t, "app"), fx.module(t, "lib")
		fx.quad(t, app)
		fx.twice(t, lib)
		ctx := context.Background()

		ee, err := NewJitEngine(ctx, JitOptions{LazySymbolResolution: true}, app)
		if err != nil {
			t.Fatalf("NewJitEngine: %v", err)
		}
		defer func() { _ = ee.Close(ctx) }()

		_, err = Call[int32](ctx, ee, "quad", 5)
		if !errors.Is(err, irerrors.ErrUnresolvedSymbol) {
			t.Fatalf("quad error = %v, want unresolved symbol", err)
		}
		decl, _ := app.Function("twice")
		if _, err := ee.RunFunction(ctx, decl, NewInt(32, 1)); !errors.Is(err, irerrors.ErrUnresolvedSymbol) {
			t.Errorf("running the declaration: %v", err)
		}

		if err := ee.AddModule(ctx, lib); err != nil {
			t.Fatalf("AddModule(lib): %v", err)
		}
		got, err := Call[int32](ctx, ee, "quad", 5)
		if err != nil || got != 20 {
			t.Errorf("quad(5) after AddModule = %d, %v", got, err)
		}
	})
}

func TestLinkErrors(t *testing.T) {
	t.Run("signature mismatch", func(t *testing.T) {
		fx := newFixture(t)
		app, lib := fx.module(t, "app"), fx.module(t, "lib")
		fx.quad(t, app)
		i64 := fx.ctx.Int64Type()
		fn := fx.function(t, lib, "twice", i64, i64)
		fx.b.PositionAtEnd(fn.Append("entry"))
		fx.b.Ret(fn.Param(0))

		_, err := NewInterpreter(context.Background(), app, lib)
		if !errors.Is(err, irerrors.ErrTypeMismatch) {
			t.Fatalf("error = %v, want type mismatch", err)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		fx := newFixture(t)
		a, b := fx.module(t, "a"), fx.module(t, "b")
		i32 := fx.ctx.Int32Type()
		define := func(m *ir.Module, name, callee string) {
			ext := fx.function(t, m, callee, i32, i32)
			fn := fx.function(t, m, name, i32, i32)
			fx.b.PositionAtEnd(fn.Append("entry"))
			fx.b.Ret(fx.b.Call(ext, fn.Param(0)))
		}
		define(a, "ping", "pong")
		define(b, "pong", "ping")

		_, err := NewInterpreter(context.Background(), a, b)
		if !errors.Is(err, irerrors.ErrUnsupported) {
			t.Fatalf("error = %v, want unsupported", err)
		}
	})
}

func TestStateSurvivesRelink(t *testing.T) {
	fx := newFixture(t)
	m := fx.module(t, "counter")
	i64 := fx.ctx.Int64Type()
	counter, err := m.AddGlobal(i64, "counter")
	if err != nil {
		t.Fatalf("AddGlobal: %v", err)
	}
	counter.SetInitializer(fx.ctx.ConstInt(i64, 0))
	bump := fx.function(t, m, "bump", i64)
	fx.b.PositionAtEnd(bump.Append("entry"))
	next := fx.b.Add(fx.b.Load(counter), fx.ctx.ConstInt(i64, 1))
	fx.b.Store(next, counter)
	fx.b.Ret(next)

	other := fx.module(t, "other")
	fx.add(t, other, "add")
	ee := interpreter(t, m)
	ctx := context.Background()

	run(t, ee, "bump")
	run(t, ee, "bump")
	if err := ee.AddModule(ctx, other); err != nil {
		t.Fatalf("AddModule: %v", err)
	}
	if res := run(t, ee, "bump"); res.Int() != 3 {
		t.Errorf("bump after AddModule = %s, want 3", res)
	}
	if err := ee.RemoveModule(ctx, other); err != nil {
		t.Fatalf("RemoveModule: %v", err)
	}
	if res := run(t, ee, "bump"); res.Int() != 4 {
		t.Errorf("bump after RemoveModule = %s, want 4", res)
	}
}

func TestNewFromConfig(t *testing.T) {
	fx := newFixture(t)
	m := fx.module(t, "arith")
	fx.add(t, m, "add")
	ctx := context.Background()

	if _, err := New(ctx, Config{Kind: "vm"}, m); !errors.Is(err, irerrors.ErrInvalidInput) {
		t.Fatalf("New with bad kind error = %v", err)
	}
	ee, err := New(ctx, DefaultConfig(), m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = ee.Close(ctx) }()
	if _, ok := ee.(*Interpreter); !ok {
		t.Errorf("default config built %T", ee)
	}
	if got, err := Call[int32](ctx, ee, "add", 1, 2); err != nil || got != 3 {
		t.Errorf("add(1, 2) = %d, %v", got, err)
	}
}
