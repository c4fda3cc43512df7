package ir

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/handle"
)

// Module is a unit of linking: functions, globals, aliases and named struct
// types. It lives inside a Context until disposed or handed to an execution
// engine.
type Module struct {
	symbols   map[string]GlobalValue
	structs   map[string]*Type
	life      *handle.Lifetime
	detach    func()
	name      string
	owner     string
	triple    string
	layout    string
	functions []*Function
	globals   []*GlobalVariable
	aliases   []*Alias
	order     []*Type
	ctxID     uuid.UUID
}

func newModule(c *Context, name string) *Module {
	return &Module{
		ctxID:   c.id,
		name:    name,
		life:    handle.NewLifetime("module " + name),
		symbols: make(map[string]GlobalValue),
		structs: make(map[string]*Type),
	}
}

func (m *Module) check(op string) {
	resolve(m.ctxID)
	m.life.Check(op)
}

// checkMutable panics while an execution engine owns the module. The
// engine alone decides what happens to it until it is returned.
func (m *Module) checkMutable(op string) {
	m.check(op)
	if m.owner != "" {
		handle.Violate("mutate", "module "+m.name, "%s while owned by %s", op, m.owner)
	}
}

func (m *Module) Name() string {
	m.check("module name")
	return m.name
}

func (m *Module) Context() *Context {
	return resolve(m.ctxID)
}

// Parent returns the owning Context.
func (m *Module) Parent() *Context {
	return m.Context()
}

func (m *Module) Lifetime() *handle.Lifetime {
	return m.life
}

// Alive reports whether the module can still be used.
func (m *Module) Alive() bool {
	if !m.life.Alive() {
		return false
	}
	liveMu.RLock()
	_, ok := liveCtxs[m.ctxID]
	liveMu.RUnlock()
	return ok
}

func (m *Module) TargetTriple() string       { m.check("module triple"); return m.triple }
func (m *Module) SetTargetTriple(t string)   { m.checkMutable("module triple"); m.triple = t }
func (m *Module) DataLayout() string         { m.check("module layout"); return m.layout }
func (m *Module) SetDataLayout(layout string) { m.checkMutable("module layout"); m.layout = layout }

// Owner names the execution engine that owns the module, or "" while the
// Context does.
func (m *Module) Owner() string {
	m.check("module owner")
	return m.owner
}

// TransferTo hands teardown authority to owner. A module can have only one
// engine owner at a time.
func (m *Module) TransferTo(owner string) {
	m.check("transfer")
	if m.owner != "" {
		handle.Violate("transfer", "module "+m.name, "already owned by %s", m.owner)
	}
	m.owner = owner
}

// ReturnFrom gives teardown authority back to the Context.
func (m *Module) ReturnFrom(owner string) {
	m.check("transfer")
	if m.owner != owner {
		handle.Violate("transfer", "module "+m.name, "owned by %q, not %q", m.owner, owner)
	}
	m.owner = ""
}

// Dispose frees the module and everything in it.
func (m *Module) Dispose() {
	m.check("dispose")
	if m.owner != "" {
		handle.Violate("release", "module "+m.name, "owned by %s", m.owner)
	}
	m.detach()
	m.Context().forget(m)
	m.teardown()
}

func (m *Module) teardown() {
	_ = m.life.End(context.Background())
}

func (m *Module) claim(name string, gv GlobalValue) error {
	if prev, ok := m.symbols[name]; ok {
		return irerrors.New(irerrors.PhaseBuild, irerrors.KindDuplicate).
			Path(m.name, name).
			Detail("symbol already defined as %s", symbolKind(prev)).
			Build()
	}
	m.symbols[name] = gv
	return nil
}

// rename moves gv to a free name derived from want.
func (m *Module) rename(gv GlobalValue, old, want string) string {
	if old == want {
		return old
	}
	name := want
	for i := 1; ; i++ {
		if _, taken := m.symbols[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s.%d", want, i)
	}
	delete(m.symbols, old)
	m.symbols[name] = gv
	return name
}

func symbolKind(gv GlobalValue) string {
	switch gv.(type) {
	case *Function:
		return "function"
	case *GlobalVariable:
		return "global variable"
	case *Alias:
		return "alias"
	}
	return "symbol"
}

// AddFunction declares a function. Asking again for an existing function
// with the same signature returns it.
func (m *Module) AddFunction(name string, sig *Type) (*Function, error) {
	m.check("add function")
	if sig.kind != FunctionKind {
		return nil, irerrors.TypeMismatch(irerrors.PhaseBuild, []string{m.name, name}, "function type", sig.String())
	}
	if prev, ok := m.symbols[name]; ok {
		if fn, isFn := prev.(*Function); isFn && fn.typ == sig {
			return fn, nil
		}
		if fn, isFn := prev.(*Function); isFn {
			return nil, irerrors.TypeMismatch(irerrors.PhaseBuild, []string{m.name, name}, fn.typ.String(), sig.String())
		}
	}
	m.checkMutable("add function")
	fn := newFunction(m, name, sig)
	if err := m.claim(name, fn); err != nil {
		return nil, err
	}
	m.functions = append(m.functions, fn)
	fn.detach = m.life.OnEnd(fn.end)
	return fn, nil
}

// Function looks a function up by name.
func (m *Module) Function(name string) (*Function, bool) {
	m.check("lookup function")
	fn, ok := m.symbols[name].(*Function)
	return fn, ok
}

// Functions returns the module's functions in creation order.
func (m *Module) Functions() []*Function {
	m.check("list functions")
	return append([]*Function(nil), m.functions...)
}

// AddGlobal adds a global variable holding a value of type t.
func (m *Module) AddGlobal(t *Type, name string) (*GlobalVariable, error) {
	m.checkMutable("add global")
	c := m.Context()
	g := &GlobalVariable{
		valueBase: valueBase{typ: c.PointerType(t), name: name, ctxID: m.ctxID},
		module:    m,
		valueType: t,
	}
	if err := m.claim(name, g); err != nil {
		return nil, err
	}
	m.globals = append(m.globals, g)
	return g, nil
}

func (m *Module) Global(name string) (*GlobalVariable, bool) {
	m.check("lookup global")
	g, ok := m.symbols[name].(*GlobalVariable)
	return g, ok
}

func (m *Module) Globals() []*GlobalVariable {
	m.check("list globals")
	return append([]*GlobalVariable(nil), m.globals...)
}

// AddAlias adds name as another symbol for aliasee.
func (m *Module) AddAlias(aliasee GlobalValue, name string) (*Alias, error) {
	m.checkMutable("add alias")
	a := &Alias{
		valueBase: valueBase{typ: aliasee.Type(), name: name, ctxID: m.ctxID},
		module:    m,
		aliasee:   aliasee,
	}
	if err := m.claim(name, a); err != nil {
		return nil, err
	}
	m.aliases = append(m.aliases, a)
	return a, nil
}

func (m *Module) Alias(name string) (*Alias, bool) {
	m.check("lookup alias")
	a, ok := m.symbols[name].(*Alias)
	return a, ok
}

func (m *Module) Aliases() []*Alias {
	m.check("list aliases")
	return append([]*Alias(nil), m.aliases...)
}

// Symbol looks up any global value by name.
func (m *Module) Symbol(name string) (GlobalValue, bool) {
	m.check("lookup symbol")
	gv, ok := m.symbols[name]
	return gv, ok
}

// AddStructType declares an opaque named struct; give it fields with SetBody.
func (m *Module) AddStructType(name string) (*Type, error) {
	m.checkMutable("add struct")
	if _, ok := m.structs[name]; ok {
		return nil, irerrors.New(irerrors.PhaseBuild, irerrors.KindDuplicate).
			Path(m.name, name).
			Detail("struct type already defined").
			Build()
	}
	t := &Type{ctxID: m.ctxID, kind: StructKind, name: name, opaque: true}
	m.structs[name] = t
	m.order = append(m.order, t)
	return t, nil
}

func (m *Module) StructType(name string) (*Type, bool) {
	m.check("lookup struct")
	t, ok := m.structs[name]
	return t, ok
}

func (m *Module) StructTypes() []*Type {
	m.check("list structs")
	return append([]*Type(nil), m.order...)
}

func (m *Module) removeFunction(fn *Function) {
	delete(m.symbols, fn.name)
	for i, f := range m.functions {
		if f == fn {
			m.functions = append(m.functions[:i], m.functions[i+1:]...)
			return
		}
	}
}

func (m *Module) removeGlobal(g *GlobalVariable) {
	delete(m.symbols, g.name)
	for i, o := range m.globals {
		if o == g {
			m.globals = append(m.globals[:i], m.globals[i+1:]...)
			return
		}
	}
}

func (m *Module) removeAlias(a *Alias) {
	delete(m.symbols, a.name)
	for i, o := range m.aliases {
		if o == a {
			m.aliases = append(m.aliases[:i], m.aliases[i+1:]...)
			return
		}
	}
}

// String prints the module in textual IR form.
func (m *Module) String() string {
	m.check("print")
	return printModule(m)
}
