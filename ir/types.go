package ir

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/target"
)

// TypeKind classifies a Type.
type TypeKind uint8

const (
	VoidKind TypeKind = iota
	IntegerKind
	FloatKind
	DoubleKind
	PointerKind
	FunctionKind
	StructKind
)

func (k TypeKind) String() string {
	switch k {
	case VoidKind:
		return "void"
	case IntegerKind:
		return "integer"
	case FloatKind:
		return "float"
	case DoubleKind:
		return "double"
	case PointerKind:
		return "pointer"
	case FunctionKind:
		return "function"
	case StructKind:
		return "struct"
	}
	return "unknown"
}

// Type is an interned IR type. Two types of one Context are equal iff their
// pointers are equal; named structs are the only nominal types.
type Type struct {
	elem   *Type   // pointee or return type
	elems  []*Type // params or fields
	name   string  // named structs
	bits   int
	ctxID  uuid.UUID
	kind   TypeKind
	packed bool
	opaque bool
}

func (t *Type) Context() *Context {
	return resolve(t.ctxID)
}

func (t *Type) Kind() TypeKind {
	return t.kind
}

// Bits is the width of integer and floating point types, 0 otherwise.
func (t *Type) Bits() int {
	return t.bits
}

func (t *Type) IsVoid() bool    { return t.kind == VoidKind }
func (t *Type) IsInteger() bool { return t.kind == IntegerKind }
func (t *Type) IsFloat() bool   { return t.kind == FloatKind || t.kind == DoubleKind }
func (t *Type) IsPointer() bool { return t.kind == PointerKind }

// IsFirstClass reports whether values of t can be SSA registers.
func (t *Type) IsFirstClass() bool {
	switch t.kind {
	case IntegerKind, FloatKind, DoubleKind, PointerKind:
		return true
	}
	return false
}

// Elem returns the pointee of a pointer type.
func (t *Type) Elem() *Type {
	if t.kind != PointerKind {
		return nil
	}
	return t.elem
}

// Return returns the result type of a function type.
func (t *Type) Return() *Type {
	if t.kind != FunctionKind {
		return nil
	}
	return t.elem
}

// Params returns the parameter types of a function type.
func (t *Type) Params() []*Type {
	if t.kind != FunctionKind {
		return nil
	}
	return t.elems
}

// Fields returns the element types of a struct type.
func (t *Type) Fields() []*Type {
	if t.kind != StructKind {
		return nil
	}
	return t.elems
}

// StructName is empty for literal structs.
func (t *Type) StructName() string {
	return t.name
}

func (t *Type) IsPacked() bool { return t.packed }

// IsOpaque reports a named struct whose body has not been set.
func (t *Type) IsOpaque() bool { return t.opaque }

// SetBody defines the fields of an opaque named struct.
func (t *Type) SetBody(fields []*Type, packed bool) error {
	if t.kind != StructKind || t.name == "" {
		return irerrors.Unsupported(irerrors.PhaseBuild, "SetBody on a type that is not a named struct")
	}
	if !t.opaque {
		return irerrors.New(irerrors.PhaseBuild, irerrors.KindDuplicate).
			Path(t.name).
			Detail("struct body already defined").
			Build()
	}
	t.elems = append([]*Type(nil), fields...)
	t.packed = packed
	t.opaque = false
	return nil
}

// Layout implements target.Type.
func (t *Type) Layout() target.Layout {
	switch t.kind {
	case IntegerKind:
		return target.Layout{Kind: target.LayoutInteger, Bits: t.bits}
	case FloatKind, DoubleKind:
		return target.Layout{Kind: target.LayoutFloat, Bits: t.bits}
	case PointerKind:
		return target.Layout{Kind: target.LayoutPointer}
	case FunctionKind:
		return target.Layout{Kind: target.LayoutFunction}
	case StructKind:
		fields := make([]target.Type, len(t.elems))
		for i, f := range t.elems {
			fields[i] = f
		}
		return target.Layout{Kind: target.LayoutStruct, Fields: fields, Packed: t.packed}
	}
	return target.Layout{Kind: target.LayoutVoid}
}

func (t *Type) String() string {
	switch t.kind {
	case VoidKind:
		return "void"
	case IntegerKind:
		return fmt.Sprintf("i%d", t.bits)
	case FloatKind:
		return "float"
	case DoubleKind:
		return "double"
	case PointerKind:
		return t.elem.String() + "*"
	case FunctionKind:
		return t.elem.String() + " (" + joinTypes(t.elems) + ")"
	case StructKind:
		if t.name != "" {
			return "%" + t.name
		}
		return t.body()
	}
	return "?"
}

func (t *Type) body() string {
	if t.opaque {
		return "opaque"
	}
	if t.packed {
		return "<{ " + joinTypes(t.elems) + " }>"
	}
	if len(t.elems) == 0 {
		return "{}"
	}
	return "{ " + joinTypes(t.elems) + " }"
}

func joinTypes(ts []*Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// VoidType returns the void type.
func (c *Context) VoidType() *Type {
	c.check("type")
	return c.void
}

// IntType returns the integer type of the given width (1 to 64 bits).
func (c *Context) IntType(bits int) *Type {
	c.check("type")
	if bits < 1 || bits > 64 {
		panic(fmt.Sprintf("ir: unsupported integer width %d", bits))
	}
	if t, ok := c.ints[bits]; ok {
		return t
	}
	t := &Type{ctxID: c.id, kind: IntegerKind, bits: bits}
	c.ints[bits] = t
	return t
}

func (c *Context) Int1Type() *Type  { return c.IntType(1) }
func (c *Context) Int8Type() *Type  { return c.IntType(8) }
func (c *Context) Int16Type() *Type { return c.IntType(16) }
func (c *Context) Int32Type() *Type { return c.IntType(32) }
func (c *Context) Int64Type() *Type { return c.IntType(64) }

func (c *Context) FloatType() *Type {
	c.check("type")
	return c.float
}

func (c *Context) DoubleType() *Type {
	c.check("type")
	return c.double
}

// PointerType returns a pointer to elem.
func (c *Context) PointerType(elem *Type) *Type {
	c.check("type")
	if t, ok := c.pointers[elem]; ok {
		return t
	}
	t := &Type{ctxID: c.id, kind: PointerKind, elem: elem}
	c.pointers[elem] = t
	return t
}

// FunctionType returns the signature ret(params...).
func (c *Context) FunctionType(ret *Type, params ...*Type) *Type {
	c.check("type")
	key := identityKey("fn", append([]*Type{ret}, params...)...)
	if t, ok := c.funcs[key]; ok {
		return t
	}
	t := &Type{ctxID: c.id, kind: FunctionKind, elem: ret, elems: append([]*Type(nil), params...)}
	c.funcs[key] = t
	return t
}

// StructType returns the literal struct with the given fields.
func (c *Context) StructType(fields []*Type, packed bool) *Type {
	c.check("type")
	key := identityKey(fmt.Sprintf("struct:%v", packed), fields...)
	if t, ok := c.literals[key]; ok {
		return t
	}
	t := &Type{ctxID: c.id, kind: StructKind, elems: append([]*Type(nil), fields...), packed: packed}
	c.literals[key] = t
	return t
}

// identityKey builds an interning key from component identities; components
// are themselves interned, so pointer equality is type equality.
func identityKey(prefix string, ts ...*Type) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, t := range ts {
		fmt.Fprintf(&b, "|%p", t)
	}
	return b.String()
}
