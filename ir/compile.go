package ir

import (
	"reflect"

	irerrors "github.com/wippyai/irkit/errors"
)

// Native is the set of Go scalars that have a direct IR counterpart.
type Native interface {
	~bool |
		~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr |
		~float32 | ~float64
}

// Compile turns a Go scalar into an IR constant of the matching type.
func Compile[T Native](c *Context, v T) *Constant {
	rv := reflect.ValueOf(v)
	t := nativeType(c, rv.Type())
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return c.ConstInt(t, 1)
		}
		return c.ConstInt(t, 0)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return c.ConstSInt(t, rv.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint, reflect.Uintptr:
		return c.ConstInt(t, rv.Uint())
	default:
		return c.ConstFloat(t, rv.Float())
	}
}

func nativeType(c *Context, rt reflect.Type) *Type {
	switch rt.Kind() {
	case reflect.Bool:
		return c.IntType(1)
	case reflect.Float32:
		return c.FloatType()
	case reflect.Float64:
		return c.DoubleType()
	}
	return c.IntType(rt.Bits())
}

// TypeFor returns the IR type corresponding to the Go type T. Go functions
// map to function types, pointers to pointer types and structs to literal
// struct types.
//
//	sig, err := ir.TypeFor[func(uint64) uint64](ctx) // i64 (i64)
func TypeFor[T any](c *Context) (*Type, error) {
	return TypeOf(c, reflect.TypeOf((*T)(nil)).Elem())
}

// TypeOf is TypeFor for a reflect.Type.
func TypeOf(c *Context, rt reflect.Type) (*Type, error) {
	switch rt.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return nativeType(c, rt), nil
	case reflect.UnsafePointer:
		return c.PointerType(c.IntType(8)), nil
	case reflect.Pointer:
		elem, err := TypeOf(c, rt.Elem())
		if err != nil {
			return nil, err
		}
		return c.PointerType(elem), nil
	case reflect.Struct:
		fields := make([]*Type, rt.NumField())
		for i := range fields {
			f, err := TypeOf(c, rt.Field(i).Type)
			if err != nil {
				return nil, err
			}
			fields[i] = f
		}
		return c.StructType(fields, false), nil
	case reflect.Func:
		if rt.IsVariadic() {
			return nil, unsupportedGo(rt, "variadic functions")
		}
		params := make([]*Type, rt.NumIn())
		for i := range params {
			p, err := TypeOf(c, rt.In(i))
			if err != nil {
				return nil, err
			}
			params[i] = p
		}
		ret := c.VoidType()
		switch rt.NumOut() {
		case 0:
		case 1:
			r, err := TypeOf(c, rt.Out(0))
			if err != nil {
				return nil, err
			}
			ret = r
		default:
			return nil, unsupportedGo(rt, "multiple results")
		}
		return c.FunctionType(ret, params...), nil
	}
	return nil, unsupportedGo(rt, "no IR equivalent")
}

func unsupportedGo(rt reflect.Type, why string) error {
	return irerrors.New(irerrors.PhaseBridge, irerrors.KindUnsupported).
		GoType(rt.String()).
		Detail("%s", why).
		Build()
}
