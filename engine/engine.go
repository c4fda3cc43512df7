package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/irkit/codegen"
	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/handle"
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/passes"
	"github.com/wippyai/irkit/target"
	"github.com/wippyai/irkit/wasm"
)

// ExecutionEngine runs functions of the modules it owns.
type ExecutionEngine interface {
	// AddModule takes ownership of m. It fails with ErrAmbiguousDefinition
	// when m defines a symbol another owned module already defines.
	AddModule(ctx context.Context, m *ir.Module) error
	// RemoveModule gives m back to its Context, unchanged.
	RemoveModule(ctx context.Context, m *ir.Module) error
	// FindFunction looks up an externally visible function definition.
	FindFunction(name string) (*ir.Function, bool)
	// RunFunction calls fn on the calling goroutine and waits for it.
	RunFunction(ctx context.Context, fn *ir.Function, args ...GenericValue) (GenericValue, error)
	// Close disposes every owned module and the foreign runtime.
	Close(ctx context.Context) error
}

// machine is the backend-independent part of both engines: module
// ownership, lowering and linking. Backends differ in the wazero runtime
// configuration and in the lowering pipeline.
type machine struct {
	kind  Kind
	owner string
	cfg   Config
	lazy  bool
	// td is the data layout lowering uses; nil picks each module's own.
	td       *target.TargetData
	optimize func(*ir.Module) error
	cache    *handle.Owned[wazero.CompilationCache]
	life     *handle.Lifetime

	mu     sync.RWMutex
	slots  []*slot
	nextID int
	gen    *generation
}

// slot is one owned module and its lowered form.
type slot struct {
	id       int
	module   *ir.Module
	lowered  *wasm.Module
	instance string
}

func newMachine(kind Kind, cfg Config) (*machine, error) {
	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		var err error
		if cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDir); err != nil {
			return nil, irerrors.Wrap(irerrors.PhaseConfig, irerrors.KindInvalidInput, err, "compilation cache "+cfg.CacheDir)
		}
	} else {
		cache = wazero.NewCompilationCache()
	}
	owner := string(kind) + "-" + uuid.NewString()
	return &machine{
		kind:  kind,
		owner: owner,
		cfg:   cfg,
		cache: handle.Own(cache, func(ctx context.Context, c wazero.CompilationCache) error {
			return c.Close(ctx)
		}),
		life: handle.NewLifetime(owner),
	}, nil
}

func ownerName(owner, self string) string {
	if owner == "" {
		return self
	}
	return owner
}

func (m *machine) runtimeConfig() wazero.RuntimeConfig {
	var rc wazero.RuntimeConfig
	if m.kind == KindJIT {
		rc = wazero.NewRuntimeConfigCompiler()
	} else {
		rc = wazero.NewRuntimeConfigInterpreter()
	}
	rc = rc.WithCompilationCache(m.cache.Borrow())
	if m.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(m.cfg.MemoryLimitPages)
	}
	return rc
}

// Kind reports the backend.
func (m *machine) Kind() Kind { return m.kind }

// Modules lists the owned modules in absorption order.
func (m *machine) Modules() []*ir.Module {
	m.life.Check("modules")
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ir.Module, len(m.slots))
	for i, s := range m.slots {
		out[i] = s.module
	}
	return out
}

// absorb takes ownership of mods and relinks. On failure nothing changes
// and the modules stay with their Context.
func (m *machine) absorb(ctx context.Context, mods ...*ir.Module) error {
	m.life.Check("add module")
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[*ir.Module]bool, len(mods))
	for _, mod := range mods {
		if owner := mod.Owner(); owner != "" || seen[mod] {
			handle.Violate("transfer", "module "+mod.Name(), "already owned by %s", ownerName(owner, m.owner))
		}
		seen[mod] = true
	}

	var added []*slot
	giveBack := func() {
		for _, s := range added {
			s.module.ReturnFrom(m.owner)
		}
	}
	for _, mod := range mods {
		mod.TransferTo(m.owner)
		s := &slot{id: m.nextID, module: mod}
		added = append(added, s)
		m.nextID++
		s.instance = fmt.Sprintf("%s#%d", mod.Name(), s.id)
		lowered, err := m.lower(mod)
		if err != nil {
			giveBack()
			return err
		}
		s.lowered = lowered
	}

	slots := append(append([]*slot(nil), m.slots...), added...)
	gen, err := m.link(ctx, slots)
	if err != nil {
		giveBack()
		return err
	}
	m.swap(ctx, gen)
	m.slots = slots
	for _, s := range added {
		Logger().Debug("absorbed module",
			zap.String("engine", m.owner),
			zap.String("module", s.module.Name()),
			zap.String("instance", s.instance))
	}
	return nil
}

// lower runs the backend pipeline for mod. Optimization works on a copy
// in a scratch Context; mod itself is never changed.
func (m *machine) lower(mod *ir.Module) (*wasm.Module, error) {
	src := mod
	if m.optimize != nil {
		if err := mod.Verify(); err != nil {
			return nil, irerrors.Wrap(irerrors.PhaseLower, irerrors.KindVerification, err, "module "+mod.Name()+" does not verify")
		}
		scratch, copied, err := cloneModule(mod)
		if err != nil {
			return nil, err
		}
		defer scratch.Dispose()
		if err := m.optimize(copied); err != nil {
			return nil, err
		}
		src = copied
	}
	lowered, err := codegen.Lower(src, codegen.Options{Data: m.td, MaxMemoryPages: m.cfg.MemoryLimitPages})
	if err != nil {
		if m.kind == KindJIT && !errors.Is(err, irerrors.ErrVerification) {
			return nil, irerrors.Wrap(irerrors.PhaseCompile, irerrors.KindCompilation, err, "code generation rejected module "+mod.Name())
		}
		return nil, err
	}
	return lowered, nil
}

// cloneModule copies mod into a new Context through its bitcode form.
func cloneModule(mod *ir.Module) (*ir.Context, *ir.Module, error) {
	data, err := mod.MarshalBitcode()
	if err != nil {
		return nil, nil, err
	}
	c := ir.NewContext()
	copied, err := c.ParseBitcode(data)
	if err != nil {
		c.Dispose()
		return nil, nil, err
	}
	return c, copied, nil
}

// swap installs gen, carrying runtime state over from the generation it
// replaces.
func (m *machine) swap(ctx context.Context, gen *generation) {
	old := m.gen
	m.gen = gen
	if old == nil {
		return
	}
	if gen != nil {
		gen.carryOver(old)
	}
	if err := old.release(ctx); err != nil {
		Logger().Warn("closing previous link generation", zap.String("engine", m.owner), zap.Error(err))
	}
}

func (m *machine) AddModule(ctx context.Context, mod *ir.Module) error {
	return m.absorb(ctx, mod)
}

func (m *machine) RemoveModule(ctx context.Context, mod *ir.Module) error {
	m.life.Check("remove module")
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, s := range m.slots {
		if s.module == mod {
			idx = i
			break
		}
	}
	if idx < 0 {
		return irerrors.NotFound(irerrors.PhaseLink, "module owned by "+m.owner, mod.Name())
	}
	rest := append(append([]*slot(nil), m.slots[:idx]...), m.slots[idx+1:]...)
	var gen *generation
	if len(rest) > 0 {
		var err error
		if gen, err = m.link(ctx, rest); err != nil {
			return err
		}
	}
	m.swap(ctx, gen)
	m.slots = rest
	mod.ReturnFrom(m.owner)
	Logger().Debug("removed module", zap.String("engine", m.owner), zap.String("module", mod.Name()))
	return nil
}

func (m *machine) FindFunction(name string) (*ir.Function, bool) {
	m.life.Check("find function")
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.gen == nil {
		return nil, false
	}
	def, ok := m.gen.symbols[name]
	if !ok {
		return nil, false
	}
	fn, ok := def.value.(*ir.Function)
	return fn, ok
}

func (m *machine) RunFunction(ctx context.Context, fn *ir.Function, args ...GenericValue) (GenericValue, error) {
	m.life.Check("run function")
	m.mu.RLock()
	defer m.mu.RUnlock()

	if fn == nil {
		return Void(), irerrors.UnknownFunction(irerrors.PhaseRuntime, "<nil>")
	}
	name := fn.Name()
	s := m.slotOf(fn.Parent())
	if s == nil {
		return Void(), irerrors.UnknownFunction(irerrors.PhaseRuntime, name)
	}
	callee, owner, exportName := fn, s, name
	if fn.IsDeclaration() {
		def, ok := m.gen.symbols[name]
		if !ok {
			return Void(), irerrors.UnresolvedSymbol(irerrors.PhaseRuntime, s.module.Name(), name)
		}
		f, isFn := def.value.(*ir.Function)
		if !isFn {
			return Void(), irerrors.UnknownFunction(irerrors.PhaseRuntime, name)
		}
		callee, owner = f, def.slot
	}

	sig := fn.Signature()
	params := sig.Params()
	if len(args) != len(params) {
		return Void(), irerrors.ArityMismatch(irerrors.PhaseRuntime, name, len(params), len(args))
	}
	raw := make([]uint64, len(args))
	for i, a := range args {
		if !a.Matches(params[i]) {
			return Void(), irerrors.TypeMismatch(irerrors.PhaseRuntime,
				[]string{name, fmt.Sprintf("arg %d", i)}, params[i].String(), a.String())
		}
		raw[i] = a.wasm()
	}

	inst := m.gen.instances[owner].Borrow()
	export := inst.ExportedFunction(exportName)
	if export == nil {
		return Void(), irerrors.UnknownFunction(irerrors.PhaseRuntime, name)
	}
	state := &callState{}
	res, err := export.Call(context.WithValue(ctx, callStateKey{}, state), raw...)
	if err != nil {
		if state.err != nil {
			return Void(), state.err
		}
		return Void(), irerrors.New(irerrors.PhaseRuntime, irerrors.KindTrap).
			Path(owner.module.Name(), callee.Name()).
			Cause(err).
			Detail("function trapped").
			Build()
	}
	ret := sig.Return()
	if ret.IsVoid() || len(res) == 0 {
		return Void(), nil
	}
	return fromWasm(ret, res[0]), nil
}

func (m *machine) slotOf(mod *ir.Module) *slot {
	for _, s := range m.slots {
		if s.module == mod {
			return s
		}
	}
	return nil
}

// Close disposes the owned modules, then the runtime and the compilation
// cache. Closing twice panics.
func (m *machine) Close(ctx context.Context) error {
	m.life.Check("close")
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.gen != nil {
		if err := m.gen.release(ctx); err != nil {
			errs = append(errs, err)
		}
		m.gen = nil
	}
	for _, s := range m.slots {
		s.module.ReturnFrom(m.owner)
		s.module.Dispose()
	}
	m.slots = nil
	if err := m.cache.Release(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.life.End(ctx); err != nil {
		errs = append(errs, err)
	}
	Logger().Debug("closed engine", zap.String("engine", m.owner))
	if len(errs) > 0 {
		return irerrors.Wrap(irerrors.PhaseRuntime, irerrors.KindClosed, errs[0], "close "+m.owner)
	}
	return nil
}

// Interpreter executes modules with wazero's interpreter.
type Interpreter struct {
	*machine
}

// NewInterpreter creates an interpreter owning modules.
func NewInterpreter(ctx context.Context, modules ...*ir.Module) (*Interpreter, error) {
	return newInterpreter(ctx, Config{Kind: KindInterpreter}, modules)
}

func newInterpreter(ctx context.Context, cfg Config, modules []*ir.Module) (*Interpreter, error) {
	m, err := newMachine(KindInterpreter, cfg)
	if err != nil {
		return nil, err
	}
	if err := m.absorb(ctx, modules...); err != nil {
		_ = m.Close(ctx)
		return nil, err
	}
	return &Interpreter{machine: m}, nil
}

// JitEngine compiles modules to native code with wazero's compiler.
type JitEngine struct {
	*machine
	tm   *target.TargetMachine
	opts JitOptions
}

// NewJitEngine creates a JIT engine owning modules. It fails with
// ErrCompilation when the target cannot run code in this process.
func NewJitEngine(ctx context.Context, opts JitOptions, modules ...*ir.Module) (*JitEngine, error) {
	return newJit(ctx, Config{Kind: KindJIT, JitOptions: opts}, modules)
}

func newJit(ctx context.Context, cfg Config, modules []*ir.Module) (*JitEngine, error) {
	tm, err := target.NewTargetMachine(cfg.TargetTriple)
	if err != nil {
		return nil, irerrors.Wrap(irerrors.PhaseCompile, irerrors.KindCompilation, err, "target "+cfg.TargetTriple)
	}
	if !tm.CanJIT() {
		return nil, irerrors.Compilation("target "+tm.Triple()+" cannot run native code in this process", nil)
	}
	m, err := newMachine(KindJIT, cfg)
	if err != nil {
		return nil, err
	}
	m.td = tm.TargetData()
	m.lazy = cfg.LazySymbolResolution
	level := cfg.OptLevel
	m.optimize = func(mod *ir.Module) error {
		pm := passes.NewPassManager()
		passes.PassManagerBuilder{OptLevel: level}.Populate(pm)
		if _, err := pm.Run(mod); err != nil {
			return irerrors.Wrap(irerrors.PhaseOptimize, irerrors.KindCompilation, err, "optimize module "+mod.Name())
		}
		return nil
	}
	if err := m.absorb(ctx, modules...); err != nil {
		_ = m.Close(ctx)
		return nil, err
	}
	Logger().Debug("created jit engine",
		zap.String("engine", m.owner),
		zap.String("triple", tm.Triple()),
		zap.Stringer("opt", level))
	return &JitEngine{machine: m, tm: tm, opts: cfg.JitOptions}, nil
}

// TargetMachine is the machine code is generated for.
func (e *JitEngine) TargetMachine() *target.TargetMachine { return e.tm }

func (e *JitEngine) Options() JitOptions { return e.opts }

// New creates the backend cfg selects.
func New(ctx context.Context, cfg Config, modules ...*ir.Module) (ExecutionEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindJIT:
		return newJit(ctx, cfg, modules)
	default:
		return newInterpreter(ctx, cfg, modules)
	}
}

// Call runs the function named name with Go arguments and converts the
// result to R.
func Call[R ir.Native](ctx context.Context, ee ExecutionEngine, name string, args ...any) (R, error) {
	var zero R
	fn, ok := ee.FindFunction(name)
	if !ok {
		return zero, irerrors.UnknownFunction(irerrors.PhaseRuntime, name)
	}
	params := fn.Signature().Params()
	if len(args) != len(params) {
		return zero, irerrors.ArityMismatch(irerrors.PhaseRuntime, name, len(params), len(args))
	}
	gargs := make([]GenericValue, len(args))
	for i, a := range args {
		g, err := ToGeneric(a, params[i])
		if err != nil {
			return zero, err
		}
		gargs[i] = g
	}
	res, err := ee.RunFunction(ctx, fn, gargs...)
	if err != nil {
		return zero, err
	}
	return FromGeneric[R](res)
}

var (
	_ ExecutionEngine = (*Interpreter)(nil)
	_ ExecutionEngine = (*JitEngine)(nil)
)
