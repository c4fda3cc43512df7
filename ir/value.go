package ir

import (
	"math"

	"github.com/google/uuid"
)

// Value is anything that can be an instruction operand.
type Value interface {
	ContextOwned
	Type() *Type
	Name() string
	SetName(name string)
	String() string
	base() *valueBase
}

type valueBase struct {
	typ   *Type
	name  string
	ctxID uuid.UUID
}

func (v *valueBase) base() *valueBase { return v }

func (v *valueBase) Context() *Context {
	return resolve(v.ctxID)
}

func (v *valueBase) Type() *Type {
	resolve(v.ctxID)
	return v.typ
}

func (v *valueBase) Name() string {
	resolve(v.ctxID)
	return v.name
}

func (v *valueBase) SetName(name string) {
	resolve(v.ctxID)
	v.name = name
}

type constKind uint8

const (
	constInt constKind = iota
	constFloat
	constNull
	constUndef
)

type constKey struct {
	typ  *Type
	bits uint64
	kind constKind
}

// Constant is an interned scalar constant.
type Constant struct {
	valueBase
	bits uint64
	kind constKind
}

// ConstInt returns the integer constant v truncated to t's width.
func (c *Context) ConstInt(t *Type, v uint64) *Constant {
	if !t.IsInteger() {
		panic("ir: ConstInt on non-integer type " + t.String())
	}
	return c.intern(t, truncate(v, t.bits), constInt)
}

// ConstSInt is ConstInt for a signed value.
func (c *Context) ConstSInt(t *Type, v int64) *Constant {
	return c.ConstInt(t, uint64(v))
}

// ConstFloat returns a float or double constant.
func (c *Context) ConstFloat(t *Type, v float64) *Constant {
	switch t.kind {
	case FloatKind:
		return c.intern(t, uint64(math.Float32bits(float32(v))), constFloat)
	case DoubleKind:
		return c.intern(t, math.Float64bits(v), constFloat)
	}
	panic("ir: ConstFloat on non-float type " + t.String())
}

// ConstNull returns the zero value of t.
func (c *Context) ConstNull(t *Type) *Constant {
	switch t.kind {
	case IntegerKind:
		return c.ConstInt(t, 0)
	case FloatKind, DoubleKind:
		return c.ConstFloat(t, 0)
	}
	return c.intern(t, 0, constNull)
}

// Undef returns an undefined value of t.
func (c *Context) Undef(t *Type) *Constant {
	return c.intern(t, 0, constUndef)
}

func (c *Context) intern(t *Type, bits uint64, kind constKind) *Constant {
	c.check("constant")
	key := constKey{typ: t, bits: bits, kind: kind}
	if k, ok := c.constants[key]; ok {
		return k
	}
	k := &Constant{valueBase: valueBase{typ: t, ctxID: c.id}, bits: bits, kind: kind}
	c.constants[key] = k
	return k
}

func truncate(v uint64, bits int) uint64 {
	if bits >= 64 {
		return v
	}
	return v & (1<<uint(bits) - 1)
}

func signExtend(v uint64, bits int) int64 {
	if bits >= 64 {
		return int64(v)
	}
	shift := uint(64 - bits)
	return int64(v<<shift) >> shift
}

func (k *Constant) IsNull() bool  { return k.kind == constNull || (k.kind != constUndef && k.bits == 0) }
func (k *Constant) IsUndef() bool { return k.kind == constUndef }

// ZExt returns the zero-extended integer value.
func (k *Constant) ZExt() uint64 {
	resolve(k.ctxID)
	return k.bits
}

// SExt returns the sign-extended integer value.
func (k *Constant) SExt() int64 {
	resolve(k.ctxID)
	return signExtend(k.bits, k.typ.bits)
}

// Float returns the value of a float or double constant.
func (k *Constant) Float() float64 {
	resolve(k.ctxID)
	if k.typ.kind == FloatKind {
		return float64(math.Float32frombits(uint32(k.bits)))
	}
	return math.Float64frombits(k.bits)
}

// Bits returns the raw bit pattern.
func (k *Constant) Bits() uint64 {
	return k.bits
}

func (k *Constant) String() string {
	return k.typ.String() + " " + constText(k)
}

// Arg is a formal parameter of a Function.
type Arg struct {
	valueBase
	fn    *Function
	index int
}

// Parent returns the function the argument belongs to.
func (a *Arg) Parent() *Function {
	a.fn.check("arg")
	return a.fn
}

func (a *Arg) Index() int { return a.index }

func (a *Arg) String() string {
	return a.typ.String() + " " + newSlots(a.fn).ref(a)
}
