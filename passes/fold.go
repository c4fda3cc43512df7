package passes

import (
	"math"

	"github.com/wippyai/irkit/ir"
)

// ConstantFold evaluates instructions whose operands are all constants and
// replaces their uses with the result. Operations that would trap at run
// time (division by zero, out of range float conversion) are left alone.
type ConstantFold struct{}

func (ConstantFold) Name() string { return "constfold" }

func (ConstantFold) RunOnFunction(fn *ir.Function) (bool, error) {
	ctx := fn.Context()
	changed := false
	for _, b := range fn.Blocks() {
		for _, inst := range b.Instructions() {
			v := fold(ctx, inst)
			if v == nil {
				continue
			}
			ir.ReplaceAllUsesWith(fn, inst, v)
			inst.EraseFromParent()
			changed = true
		}
	}
	return changed, nil
}

func constOperand(inst *ir.Instruction, n int) (*ir.Constant, bool) {
	k, ok := inst.Operand(n).(*ir.Constant)
	if !ok || k == nil || k.IsUndef() {
		return nil, false
	}
	return k, true
}

func fold(ctx *ir.Context, inst *ir.Instruction) ir.Value {
	op := inst.Opcode()
	switch {
	case op.IsBinary():
		a, okA := constOperand(inst, 0)
		b, okB := constOperand(inst, 1)
		if !okA || !okB {
			return nil
		}
		t := a.Type()
		if t.IsInteger() {
			return foldInt(ctx, op, t, a, b)
		}
		if t.IsFloat() {
			return foldFloat(ctx, op, t, a.Float(), b.Float())
		}
	case op == ir.OpNeg || op == ir.OpNot:
		a, ok := constOperand(inst, 0)
		if !ok {
			return nil
		}
		t := a.Type()
		switch {
		case op == ir.OpNot && t.IsInteger():
			return ctx.ConstInt(t, ^a.ZExt())
		case t.IsInteger():
			return ctx.ConstInt(t, -a.ZExt())
		case t.IsFloat():
			return ctx.ConstFloat(t, -a.Float())
		}
	case op == ir.OpICmp:
		a, okA := constOperand(inst, 0)
		b, okB := constOperand(inst, 1)
		if !okA || !okB || !a.Type().IsInteger() {
			return nil
		}
		return boolConst(ctx, compareInt(inst.Predicate(), a, b))
	case op == ir.OpFCmp:
		a, okA := constOperand(inst, 0)
		b, okB := constOperand(inst, 1)
		if !okA || !okB {
			return nil
		}
		return boolConst(ctx, compareFloat(inst.Predicate(), a.Float(), b.Float()))
	case op.IsCast():
		a, ok := constOperand(inst, 0)
		if !ok {
			return nil
		}
		return foldCast(ctx, op, a, inst.Type())
	case op == ir.OpSelect:
		cond, ok := constOperand(inst, 0)
		if !ok {
			return nil
		}
		if cond.ZExt() != 0 {
			return inst.Operand(1)
		}
		return inst.Operand(2)
	case op == ir.OpPhi:
		return trivialPhi(inst)
	}
	return nil
}

func boolConst(ctx *ir.Context, v bool) *ir.Constant {
	if v {
		return ctx.ConstInt(ctx.Int1Type(), 1)
	}
	return ctx.ConstInt(ctx.Int1Type(), 0)
}

func foldInt(ctx *ir.Context, op ir.Opcode, t *ir.Type, ka, kb *ir.Constant) ir.Value {
	w := uint64(t.Bits())
	a, b := ka.ZExt(), kb.ZExt()
	sa, sb := ka.SExt(), kb.SExt()
	var r uint64
	switch op {
	case ir.OpAdd:
		r = a + b
	case ir.OpSub:
		r = a - b
	case ir.OpMul:
		r = a * b
	case ir.OpAnd:
		r = a & b
	case ir.OpOr:
		r = a | b
	case ir.OpXor:
		r = a ^ b
	case ir.OpShl, ir.OpLShr, ir.OpAShr:
		if b >= w {
			return nil
		}
		switch op {
		case ir.OpShl:
			r = a << b
		case ir.OpLShr:
			r = a >> b
		default:
			r = uint64(sa >> b)
		}
	case ir.OpUDiv, ir.OpURem:
		if b == 0 {
			return nil
		}
		if op == ir.OpUDiv {
			r = a / b
		} else {
			r = a % b
		}
	case ir.OpSDiv, ir.OpSRem:
		minSigned := int64(-1) << (w - 1)
		if sb == 0 || (sa == minSigned && sb == -1) {
			return nil
		}
		if op == ir.OpSDiv {
			r = uint64(sa / sb)
		} else {
			r = uint64(sa % sb)
		}
	default:
		return nil
	}
	return ctx.ConstInt(t, r)
}

func foldFloat(ctx *ir.Context, op ir.Opcode, t *ir.Type, a, b float64) ir.Value {
	switch op {
	case ir.OpAdd:
		return ctx.ConstFloat(t, a+b)
	case ir.OpSub:
		return ctx.ConstFloat(t, a-b)
	case ir.OpMul:
		return ctx.ConstFloat(t, a*b)
	case ir.OpFDiv:
		return ctx.ConstFloat(t, a/b)
	}
	return nil
}

func compareInt(p ir.Predicate, ka, kb *ir.Constant) bool {
	a, b := ka.ZExt(), kb.ZExt()
	sa, sb := ka.SExt(), kb.SExt()
	switch p {
	case ir.Equal:
		return a == b
	case ir.NotEqual:
		return a != b
	case ir.GreaterThan:
		return sa > sb
	case ir.GreaterThanOrEqual:
		return sa >= sb
	case ir.LessThan:
		return sa < sb
	case ir.LessThanOrEqual:
		return sa <= sb
	case ir.UnsignedGreaterThan:
		return a > b
	case ir.UnsignedGreaterThanOrEqual:
		return a >= b
	case ir.UnsignedLessThan:
		return a < b
	case ir.UnsignedLessThanOrEqual:
		return a <= b
	}
	return false
}

// compareFloat implements ordered comparisons: any NaN operand yields false.
func compareFloat(p ir.Predicate, a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch p {
	case ir.Equal:
		return a == b
	case ir.NotEqual:
		return a != b
	case ir.GreaterThan:
		return a > b
	case ir.GreaterThanOrEqual:
		return a >= b
	case ir.LessThan:
		return a < b
	case ir.LessThanOrEqual:
		return a <= b
	}
	return false
}

func foldCast(ctx *ir.Context, op ir.Opcode, k *ir.Constant, to *ir.Type) ir.Value {
	from := k.Type()
	switch op {
	case ir.OpTrunc, ir.OpZExt:
		return ctx.ConstInt(to, k.ZExt())
	case ir.OpSExt:
		return ctx.ConstInt(to, uint64(k.SExt()))
	case ir.OpSIToFP:
		return ctx.ConstFloat(to, float64(k.SExt()))
	case ir.OpUIToFP:
		return ctx.ConstFloat(to, float64(k.ZExt()))
	case ir.OpFPTrunc, ir.OpFPExt:
		return ctx.ConstFloat(to, k.Float())
	case ir.OpFPToSI:
		f := math.Trunc(k.Float())
		limit := math.Ldexp(1, to.Bits()-1)
		if math.IsNaN(f) || f < -limit || f >= limit {
			return nil
		}
		return ctx.ConstSInt(to, int64(f))
	case ir.OpFPToUI:
		f := math.Trunc(k.Float())
		if math.IsNaN(f) || f < 0 || f >= math.Ldexp(1, to.Bits()) {
			return nil
		}
		return ctx.ConstInt(to, uint64(f))
	case ir.OpBitCast:
		switch {
		case from == to:
			return k
		case from.IsInteger() && to.Kind() == ir.FloatKind:
			f := math.Float32frombits(uint32(k.ZExt()))
			if math.IsNaN(float64(f)) {
				return nil
			}
			return ctx.ConstFloat(to, float64(f))
		case from.IsInteger() && to.Kind() == ir.DoubleKind:
			f := math.Float64frombits(k.ZExt())
			if math.IsNaN(f) {
				return nil
			}
			return ctx.ConstFloat(to, f)
		case from.IsFloat() && to.IsInteger():
			return ctx.ConstInt(to, k.Bits())
		}
	}
	return nil
}

// trivialPhi returns the single value a phi merges, if every incoming edge
// carries the same value defined outside the phi's block.
func trivialPhi(phi *ir.Instruction) ir.Value {
	if phi.NumOperands() == 0 {
		return nil
	}
	first := phi.Operand(0)
	for _, v := range phi.Operands()[1:] {
		if v != first {
			return nil
		}
	}
	if first == ir.Value(phi) {
		return nil
	}
	if def, ok := first.(*ir.Instruction); ok && def.Parent() == phi.Parent() {
		return nil
	}
	if k, ok := first.(*ir.Constant); ok && k.IsUndef() {
		return nil
	}
	return first
}
