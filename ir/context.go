package ir

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/handle"
	"github.com/wippyai/irkit/target"
)

var (
	liveMu   sync.RWMutex
	liveCtxs = make(map[uuid.UUID]*Context)
)

func resolve(id uuid.UUID) *Context {
	liveMu.RLock()
	c := liveCtxs[id]
	liveMu.RUnlock()
	if c == nil {
		handle.Violate("resolve", "context", "context %s was disposed", id)
	}
	return c
}

// ContextOwned is implemented by every entity allocated in a Context.
type ContextOwned interface {
	Context() *Context
}

// noCopy lets go vet's copylocks check flag copies of a Context.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Context owns types, constants and modules. It must not be copied.
type Context struct {
	noCopy noCopy

	id      uuid.UUID
	life    *handle.Lifetime
	modules map[string]*Module
	order   []*Module

	ints      map[int]*Type
	void      *Type
	float     *Type
	double    *Type
	pointers  map[*Type]*Type
	funcs     map[string]*Type
	literals  map[string]*Type
	constants map[constKey]*Constant
}

// NewContext creates a Context. target.Initialize must have run.
func NewContext() *Context {
	if !target.Initialized() {
		handle.Violate("create", "context", "target.Initialize has not been called")
	}
	c := &Context{
		id:        uuid.New(),
		modules:   make(map[string]*Module),
		ints:      make(map[int]*Type),
		pointers:  make(map[*Type]*Type),
		funcs:     make(map[string]*Type),
		literals:  make(map[string]*Type),
		constants: make(map[constKey]*Constant),
	}
	c.life = handle.NewLifetime("context " + c.id.String())
	c.void = &Type{ctxID: c.id, kind: VoidKind}
	c.float = &Type{ctxID: c.id, kind: FloatKind, bits: 32}
	c.double = &Type{ctxID: c.id, kind: DoubleKind, bits: 64}

	liveMu.Lock()
	liveCtxs[c.id] = c
	liveMu.Unlock()
	return c
}

// ID identifies the Context for back references.
func (c *Context) ID() uuid.UUID {
	return c.id
}

func (c *Context) Lifetime() *handle.Lifetime {
	return c.life
}

// Alive reports whether Dispose has not been called.
func (c *Context) Alive() bool {
	return c.life.Alive()
}

func (c *Context) check(op string) {
	c.life.Check(op)
}

// CreateModule adds an empty module. Module names are unique per Context.
func (c *Context) CreateModule(name string) (*Module, error) {
	c.check("create module")
	if _, ok := c.modules[name]; ok {
		return nil, irerrors.New(irerrors.PhaseBuild, irerrors.KindDuplicate).
			Path(name).
			Detail("module %q already exists in this context", name).
			Build()
	}
	m := newModule(c, name)
	c.modules[name] = m
	c.order = append(c.order, m)
	m.detach = c.life.OnEnd(func(context.Context) error {
		m.teardown()
		return nil
	})
	return m, nil
}

// Module returns the live module called name.
func (c *Context) Module(name string) (*Module, bool) {
	c.check("lookup module")
	m, ok := c.modules[name]
	return m, ok
}

// Modules returns live modules in creation order.
func (c *Context) Modules() []*Module {
	c.check("list modules")
	out := make([]*Module, 0, len(c.order))
	out = append(out, c.order...)
	return out
}

func (c *Context) forget(m *Module) {
	delete(c.modules, m.name)
	for i, o := range c.order {
		if o == m {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Dispose frees the Context and everything allocated in it. Disposing while
// an execution engine still owns one of its modules panics.
func (c *Context) Dispose() {
	c.check("dispose")
	var owned []string
	for _, m := range c.order {
		if m.owner != "" {
			owned = append(owned, m.name+" (owned by "+m.owner+")")
		}
	}
	if len(owned) > 0 {
		sort.Strings(owned)
		handle.Violate("release", "context", "modules still owned by an execution engine: %v", owned)
	}
	_ = c.life.End(context.Background())
	liveMu.Lock()
	delete(liveCtxs, c.id)
	liveMu.Unlock()
}
