package codegen

import (
	"fmt"

	"fortio.org/safecast"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/target"
	"github.com/wippyai/irkit/wasm"
)

// ImportModule is the module name lowered declarations are imported from.
// The linker rewrites it to the instance that defines each symbol.
const ImportModule = "env"

// MemoryExport names the linear memory of modules that access memory
// through pointers.
const MemoryExport = "memory"

// Options configure lowering.
type Options struct {
	// Data supplies alignments for memory accesses. Nil selects the module's
	// data layout, or the wasm32 layout when the module has none.
	Data *target.TargetData
	// MemoryPages is the initial size of the linear memory. Zero means one page.
	MemoryPages uint32
	// MaxMemoryPages caps memory growth. Zero leaves it unbounded.
	MaxMemoryPages uint32
}

type lowering struct {
	m       *ir.Module
	out     *wasm.Module
	td      *target.TargetData
	funcs   map[*ir.Function]uint32
	globals map[*ir.GlobalVariable]uint32
	memory  bool
}

// Lower translates a verified module into a WebAssembly module. Every
// defined function is exported under its name; declarations become imports
// from ImportModule.
func Lower(m *ir.Module, opts Options) (*wasm.Module, error) {
	if err := m.Verify(); err != nil {
		return nil, irerrors.Wrap(irerrors.PhaseLower, irerrors.KindVerification, err, "module "+m.Name()+" does not verify")
	}
	td := opts.Data
	if td == nil {
		layout := m.DataLayout()
		if layout == "" {
			layout = target.Wasm32Layout
		}
		var err error
		if td, err = target.NewTargetData(layout); err != nil {
			return nil, err
		}
	}

	l := &lowering{
		m:       m,
		out:     &wasm.Module{},
		td:      td,
		funcs:   make(map[*ir.Function]uint32),
		globals: make(map[*ir.GlobalVariable]uint32),
	}
	if err := l.declare(); err != nil {
		return nil, err
	}
	for _, fn := range m.Functions() {
		if fn.IsDeclaration() {
			continue
		}
		body, err := lowerFunction(l, fn)
		if err != nil {
			return nil, err
		}
		l.out.Code = append(l.out.Code, body)
	}
	if l.memory {
		if _, taken := m.Symbol(MemoryExport); taken {
			return nil, unsupported([]string{m.Name(), MemoryExport}, "symbol name is reserved for the linear memory export")
		}
		limits := wasm.Limits{Min: opts.MemoryPages}
		if limits.Min == 0 {
			limits.Min = 1
		}
		if opts.MaxMemoryPages != 0 {
			max := opts.MaxMemoryPages
			limits.Max = &max
		}
		l.out.Memories = append(l.out.Memories, wasm.MemoryType{Limits: limits})
		l.out.Exports = append(l.out.Exports, wasm.Export{Name: MemoryExport, Kind: wasm.KindMemory})
	}
	if err := l.out.Validate(); err != nil {
		return nil, irerrors.Wrap(irerrors.PhaseLower, irerrors.KindInvalidData, err, "lowered module "+m.Name()+" is malformed")
	}
	return l.out, nil
}

// declare assigns function and global indices: imports first, then
// definitions, in module order.
func (l *lowering) declare() error {
	fns := l.m.Functions()
	globals := l.m.Globals()

	var next uint32
	for _, fn := range fns {
		if !fn.IsDeclaration() {
			continue
		}
		ft, err := l.funcType(fn)
		if err != nil {
			return err
		}
		l.out.Imports = append(l.out.Imports, wasm.Import{
			Module: ImportModule,
			Name:   fn.Name(),
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: l.out.AddType(ft)},
		})
		l.funcs[fn] = next
		next++
	}
	var nextGlobal uint32
	for _, g := range globals {
		if !g.IsDeclaration() {
			continue
		}
		vt, err := l.valType(g.ValueType(), l.m.Name(), g.Name())
		if err != nil {
			return err
		}
		l.out.Imports = append(l.out.Imports, wasm.Import{
			Module: ImportModule,
			Name:   g.Name(),
			Desc:   wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: vt, Mutable: true}},
		})
		l.globals[g] = nextGlobal
		nextGlobal++
	}

	for _, fn := range fns {
		if fn.IsDeclaration() {
			continue
		}
		ft, err := l.funcType(fn)
		if err != nil {
			return err
		}
		l.out.Funcs = append(l.out.Funcs, l.out.AddType(ft))
		l.funcs[fn] = next
		l.out.Exports = append(l.out.Exports, wasm.Export{Name: fn.Name(), Kind: wasm.KindFunc, Idx: next})
		next++
	}
	for _, g := range globals {
		if g.IsDeclaration() {
			continue
		}
		vt, err := l.valType(g.ValueType(), l.m.Name(), g.Name())
		if err != nil {
			return err
		}
		c := wasm.NewCode()
		if err := emitConst(c, g.Initializer()); err != nil {
			return err
		}
		c.End()
		l.out.Globals = append(l.out.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: vt, Mutable: true},
			Init: c.Bytes(),
		})
		l.globals[g] = nextGlobal
		if !g.Linkage().IsLocal() {
			l.out.Exports = append(l.out.Exports, wasm.Export{Name: g.Name(), Kind: wasm.KindGlobal, Idx: nextGlobal})
		}
		nextGlobal++
	}

	for _, a := range l.m.Aliases() {
		if a.Linkage().IsLocal() {
			continue
		}
		switch dst := resolveAlias(a).(type) {
		case *ir.Function:
			l.out.Exports = append(l.out.Exports, wasm.Export{Name: a.Name(), Kind: wasm.KindFunc, Idx: l.funcs[dst]})
		case *ir.GlobalVariable:
			l.out.Exports = append(l.out.Exports, wasm.Export{Name: a.Name(), Kind: wasm.KindGlobal, Idx: l.globals[dst]})
		default:
			return unsupported([]string{l.m.Name(), a.Name()}, "alias does not resolve to a function or global")
		}
	}
	return nil
}

func resolveAlias(a *ir.Alias) ir.GlobalValue {
	gv := a.Aliasee()
	for i := 0; i < 16; i++ {
		next, ok := gv.(*ir.Alias)
		if !ok {
			return gv
		}
		gv = next.Aliasee()
	}
	return nil
}

func (l *lowering) funcType(fn *ir.Function) (wasm.FuncType, error) {
	sig := fn.Signature()
	var ft wasm.FuncType
	for i, p := range sig.Params() {
		vt, err := l.valType(p, l.m.Name(), fn.Name(), fmt.Sprintf("param %d", i))
		if err != nil {
			return ft, err
		}
		ft.Params = append(ft.Params, vt)
	}
	if ret := sig.Return(); !ret.IsVoid() {
		vt, err := l.valType(ret, l.m.Name(), fn.Name(), "result")
		if err != nil {
			return ft, err
		}
		ft.Results = []wasm.ValType{vt}
	}
	return ft, nil
}

func (l *lowering) valType(t *ir.Type, path ...string) (wasm.ValType, error) {
	vt, ok := ValTypeOf(t)
	if !ok {
		return 0, irerrors.New(irerrors.PhaseLower, irerrors.KindUnsupported).
			Path(path...).
			IRType(t.String()).
			Detail("type has no WebAssembly value representation").
			Build()
	}
	return vt, nil
}

// ValTypeOf maps a first class IR type to its WebAssembly value type.
// Integers up to 32 bits and pointers are i32.
func ValTypeOf(t *ir.Type) (wasm.ValType, bool) {
	switch t.Kind() {
	case ir.IntegerKind:
		switch {
		case t.Bits() <= 32:
			return wasm.ValI32, true
		case t.Bits() == 64:
			return wasm.ValI64, true
		}
	case ir.PointerKind:
		return wasm.ValI32, true
	case ir.FloatKind:
		return wasm.ValF32, true
	case ir.DoubleKind:
		return wasm.ValF64, true
	}
	return 0, false
}

// emitConst pushes k. Narrow integers are pushed zero-extended.
func emitConst(c *wasm.Code, k *ir.Constant) error {
	t := k.Type()
	switch t.Kind() {
	case ir.IntegerKind:
		if t.Bits() <= 32 {
			c.I32Const(int32(uint32(k.ZExt())))
			return nil
		}
		if t.Bits() == 64 {
			c.I64Const(int64(k.Bits()))
			return nil
		}
	case ir.PointerKind:
		if !k.IsNull() && !k.IsUndef() {
			addr, err := safecast.Conv[int32](k.Bits())
			if err != nil {
				return unsupported(nil, "pointer constant %#x does not fit a 32-bit address", k.Bits())
			}
			c.I32Const(addr)
			return nil
		}
		c.I32Const(0)
		return nil
	case ir.FloatKind:
		c.F32Const(float32(k.Float()))
		return nil
	case ir.DoubleKind:
		c.F64Const(k.Float())
		return nil
	}
	return irerrors.New(irerrors.PhaseLower, irerrors.KindUnsupported).
		IRType(t.String()).
		Detail("constant has no WebAssembly representation").
		Build()
}

func unsupported(path []string, format string, args ...any) error {
	return irerrors.New(irerrors.PhaseLower, irerrors.KindUnsupported).
		Path(path...).
		Detail(format, args...).
		Build()
}
