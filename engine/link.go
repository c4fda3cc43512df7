package engine

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/irkit/codegen"
	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/handle"
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/wasm"
)

// unresolvedModule hosts the trapping stubs bound to unresolved
// declarations under lazy symbol resolution.
const unresolvedModule = "irkit.unresolved"

type (
	runtimeHandle  = handle.Owned[wazero.Runtime]
	compiledHandle = handle.Scoped[wazero.CompiledModule, *runtimeHandle]
	instanceHandle = handle.Scoped[api.Module, *runtimeHandle]
)

// definition is the module that provides an externally visible symbol.
type definition struct {
	slot *slot
	// value is the function or global the symbol resolves to, with aliases
	// followed.
	value     ir.GlobalValue
	mergeable bool
}

// generation is one linked set of instances. Every change to the module set
// links a new generation on a fresh runtime that shares the engine's
// compilation cache.
type generation struct {
	rt        *runtimeHandle
	symbols   map[string]definition
	compiled  []*compiledHandle
	instances map[*slot]*instanceHandle
}

func (g *generation) release(ctx context.Context) error {
	return g.rt.Release(ctx)
}

// plan is a slot's lowered module with its imports bound for one
// generation.
type plan struct {
	slot  *slot
	bin   []byte
	deps  []*slot
	stubs []stub
}

type stub struct {
	name   string
	symbol string
	typ    *wasm.FuncType
}

type callStateKey struct{}

// callState records an unresolved symbol hit during a call, so RunFunction
// can report it instead of a generic trap.
type callState struct {
	err error
}

// symbolTable collects the externally visible definitions of slots. A
// symbol defined twice is ambiguous unless both definitions are mergeable,
// in which case the first one wins.
func symbolTable(slots []*slot) (map[string]definition, error) {
	table := make(map[string]definition)
	add := func(s *slot, name string, linkage ir.Linkage, value ir.GlobalValue) error {
		if linkage.IsLocal() {
			return nil
		}
		d := definition{slot: s, value: value, mergeable: linkage.IsMergeable()}
		prev, ok := table[name]
		if !ok {
			table[name] = d
			return nil
		}
		if prev.mergeable && d.mergeable {
			return nil
		}
		return irerrors.AmbiguousDefinition(name, prev.slot.module.Name(), s.module.Name())
	}
	for _, s := range slots {
		mod := s.module
		for _, fn := range mod.Functions() {
			if fn.IsDeclaration() {
				continue
			}
			if err := add(s, fn.Name(), fn.Linkage(), fn); err != nil {
				return nil, err
			}
		}
		for _, g := range mod.Globals() {
			if g.IsDeclaration() {
				continue
			}
			if err := add(s, g.Name(), g.Linkage(), g); err != nil {
				return nil, err
			}
		}
		for _, a := range mod.Aliases() {
			target := followAlias(a)
			if target == nil {
				continue
			}
			if err := add(s, a.Name(), a.Linkage(), target); err != nil {
				return nil, err
			}
		}
	}
	return table, nil
}

func followAlias(a *ir.Alias) ir.GlobalValue {
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

// bind resolves s's imports against table and encodes the result.
func (m *machine) bind(s *slot, table map[string]definition) (*plan, error) {
	src := s.lowered
	wm := *src
	wm.Imports = append([]wasm.Import(nil), src.Imports...)
	p := &plan{slot: s}
	seen := make(map[*slot]bool)
	for i := range wm.Imports {
		imp := &wm.Imports[i]
		if imp.Module != codegen.ImportModule {
			continue
		}
		def, ok := table[imp.Name]
		if !ok {
			if imp.Desc.Kind == wasm.KindFunc && m.lazy {
				name := s.instance + "/" + imp.Name
				p.stubs = append(p.stubs, stub{name: name, symbol: imp.Name, typ: src.FuncType(imp.Desc.TypeIdx)})
				imp.Module, imp.Name = unresolvedModule, name
				continue
			}
			return nil, irerrors.UnresolvedSymbol(irerrors.PhaseLink, s.module.Name(), imp.Name)
		}
		if err := checkImport(s, imp, def); err != nil {
			return nil, err
		}
		imp.Module = def.slot.instance
		if !seen[def.slot] {
			seen[def.slot] = true
			p.deps = append(p.deps, def.slot)
		}
	}
	p.bin = wm.Encode()
	return p, nil
}

// checkImport compares the import's type with the definition's lowered type.
func checkImport(s *slot, imp *wasm.Import, def definition) error {
	defMod := def.slot.lowered
	export, ok := defMod.Export(imp.Name)
	path := []string{s.module.Name(), imp.Name}
	if !ok || export.Kind != imp.Desc.Kind {
		return irerrors.TypeMismatch(irerrors.PhaseLink, path, kindName(imp.Desc.Kind), "symbol of another kind in "+def.slot.module.Name())
	}
	switch imp.Desc.Kind {
	case wasm.KindFunc:
		want := s.lowered.FuncType(imp.Desc.TypeIdx)
		got := funcTypeOf(defMod, export.Idx)
		if want == nil || got == nil || !want.Equal(*got) {
			return irerrors.TypeMismatch(irerrors.PhaseLink, path, typeString(want), typeString(got))
		}
	case wasm.KindGlobal:
		want := imp.Desc.Global.ValType
		got := globalTypeOf(defMod, export.Idx)
		if got != want {
			return irerrors.TypeMismatch(irerrors.PhaseLink, path, want.String(), got.String())
		}
	}
	return nil
}

func kindName(k byte) string {
	switch k {
	case wasm.KindFunc:
		return "function"
	case wasm.KindGlobal:
		return "global"
	}
	return "symbol"
}

func typeString(ft *wasm.FuncType) string {
	if ft == nil {
		return "<none>"
	}
	return ft.String()
}

func funcTypeOf(wm *wasm.Module, idx uint32) *wasm.FuncType {
	n := uint32(wm.NumImportedFuncs())
	if idx < n {
		for _, imp := range wm.Imports {
			if imp.Desc.Kind != wasm.KindFunc {
				continue
			}
			if idx == 0 {
				return wm.FuncType(imp.Desc.TypeIdx)
			}
			idx--
		}
		return nil
	}
	i := idx - n
	if int(i) >= len(wm.Funcs) {
		return nil
	}
	return wm.FuncType(wm.Funcs[i])
}

func globalTypeOf(wm *wasm.Module, idx uint32) wasm.ValType {
	n := uint32(wm.NumImportedGlobals())
	if idx < n {
		for _, imp := range wm.Imports {
			if imp.Desc.Kind != wasm.KindGlobal {
				continue
			}
			if idx == 0 {
				return imp.Desc.Global.ValType
			}
			idx--
		}
		return 0
	}
	i := idx - n
	if int(i) >= len(wm.Globals) {
		return 0
	}
	return wm.Globals[i].Type.ValType
}

// order sorts plans so every module comes after the modules it imports
// from. Ties keep absorption order.
func order(plans []*plan) ([]*plan, error) {
	placed := make(map[*slot]bool, len(plans))
	out := make([]*plan, 0, len(plans))
	for len(out) < len(plans) {
		progress := false
		for _, p := range plans {
			if placed[p.slot] {
				continue
			}
			ready := true
			for _, d := range p.deps {
				if !placed[d] {
					ready = false
					break
				}
			}
			if ready {
				placed[p.slot] = true
				out = append(out, p)
				progress = true
			}
		}
		if !progress {
			var cycle []string
			for _, p := range plans {
				if !placed[p.slot] {
					cycle = append(cycle, p.slot.module.Name())
				}
			}
			return nil, irerrors.New(irerrors.PhaseLink, irerrors.KindUnsupported).
				Path(cycle...).
				Detail("modules import from each other in a cycle: %s", strings.Join(cycle, ", ")).
				Build()
		}
	}
	return out, nil
}

// link builds a generation for slots. Nothing is left running on failure.
func (m *machine) link(ctx context.Context, slots []*slot) (*generation, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	table, err := symbolTable(slots)
	if err != nil {
		return nil, err
	}
	plans := make([]*plan, len(slots))
	for i, s := range slots {
		if plans[i], err = m.bind(s, table); err != nil {
			return nil, err
		}
	}
	ordered, err := order(plans)
	if err != nil {
		return nil, err
	}

	rt := wazero.NewRuntimeWithConfig(ctx, m.runtimeConfig())
	gen := &generation{
		rt: handle.Own(rt, func(ctx context.Context, r wazero.Runtime) error {
			return r.Close(ctx)
		}),
		symbols:   table,
		instances: make(map[*slot]*instanceHandle, len(slots)),
	}
	if err := gen.build(ctx, ordered); err != nil {
		if cerr := gen.release(ctx); cerr != nil {
			Logger().Warn("closing failed link generation", zap.Error(cerr))
		}
		return nil, err
	}
	Logger().Debug("linked modules",
		zap.String("engine", m.owner),
		zap.Int("modules", len(slots)),
		zap.Int("symbols", len(table)))
	return gen, nil
}

func (g *generation) build(ctx context.Context, plans []*plan) error {
	rt := g.rt.Borrow()
	if err := g.instantiateStubs(ctx, rt, plans); err != nil {
		return err
	}

	compiled := make([]wazero.CompiledModule, len(plans))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range plans {
		i, p := i, p
		eg.Go(func() error {
			cm, err := rt.CompileModule(ectx, p.bin)
			if err != nil {
				return irerrors.Wrap(irerrors.PhaseCompile, irerrors.KindCompilation, err, "compile module "+p.slot.module.Name())
			}
			compiled[i] = cm
			return nil
		})
	}
	err := eg.Wait()
	for _, cm := range compiled {
		if cm == nil {
			continue
		}
		g.compiled = append(g.compiled, handle.Adopt(g.rt, cm, func(ctx context.Context, cm wazero.CompiledModule) error {
			return cm.Close(ctx)
		}))
	}
	if err != nil {
		return err
	}

	for i, p := range plans {
		mod, err := rt.InstantiateModule(ctx, compiled[i], wazero.NewModuleConfig().WithName(p.slot.instance))
		if err != nil {
			return irerrors.Wrap(irerrors.PhaseLink, irerrors.KindInvalidData, err, "instantiate module "+p.slot.module.Name())
		}
		g.instances[p.slot] = handle.View(g.rt, mod)
	}
	return nil
}

func (g *generation) instantiateStubs(ctx context.Context, rt wazero.Runtime, plans []*plan) error {
	var builder wazero.HostModuleBuilder
	for _, p := range plans {
		for _, st := range p.stubs {
			if builder == nil {
				builder = rt.NewHostModuleBuilder(unresolvedModule)
			}
			module, symbol := p.slot.module.Name(), st.symbol
			fn := api.GoModuleFunc(func(ctx context.Context, _ api.Module, _ []uint64) {
				err := irerrors.UnresolvedSymbol(irerrors.PhaseRuntime, module, symbol)
				if state, ok := ctx.Value(callStateKey{}).(*callState); ok {
					state.err = err
				}
				panic(err)
			})
			builder.NewFunctionBuilder().
				WithGoModuleFunction(fn, valueTypes(st.typ.Params), valueTypes(st.typ.Results)).
				WithName(st.name).
				Export(st.name)
		}
	}
	if builder == nil {
		return nil
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return irerrors.Wrap(irerrors.PhaseLink, irerrors.KindInvalidData, err, "instantiate unresolved symbol stubs")
	}
	return nil
}

func valueTypes(vts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(vts))
	for i, vt := range vts {
		out[i] = api.ValueType(vt)
	}
	return out
}

// carryOver copies exported mutable globals and linear memory of modules
// that survive into g from old.
func (g *generation) carryOver(old *generation) {
	for s, inst := range g.instances {
		prev, ok := old.instances[s]
		if !ok {
			continue
		}
		from, to := prev.Borrow(), inst.Borrow()
		for _, e := range s.lowered.Exports {
			if e.Kind != wasm.KindGlobal {
				continue
			}
			src, dst := from.ExportedGlobal(e.Name), to.ExportedGlobal(e.Name)
			if mg, ok := dst.(api.MutableGlobal); ok && src != nil {
				mg.Set(src.Get())
			}
		}
		copyMemory(s, from.ExportedMemory(codegen.MemoryExport), to.ExportedMemory(codegen.MemoryExport))
	}
}

func copyMemory(s *slot, from, to api.Memory) {
	if from == nil || to == nil {
		return
	}
	size := from.Size()
	if size > to.Size() {
		if _, ok := to.Grow((size - to.Size()) / 65536); !ok {
			Logger().Warn("memory could not grow to carry state over", zap.String("instance", s.instance))
			return
		}
	}
	data, ok := from.Read(0, size)
	if !ok || !to.Write(0, data) {
		Logger().Warn("memory state was not carried over", zap.String("instance", s.instance))
	}
}

func (s *slot) String() string {
	return fmt.Sprintf("%s (%s)", s.instance, s.module.Name())
}
