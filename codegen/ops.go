package codegen

import (
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/wasm"
)

// integer opcodes as {i32, i64}
var intBinary = map[ir.Opcode][2]byte{
	ir.OpAdd:  {wasm.OpI32Add, wasm.OpI64Add},
	ir.OpSub:  {wasm.OpI32Sub, wasm.OpI64Sub},
	ir.OpMul:  {wasm.OpI32Mul, wasm.OpI64Mul},
	ir.OpSDiv: {wasm.OpI32DivS, wasm.OpI64DivS},
	ir.OpUDiv: {wasm.OpI32DivU, wasm.OpI64DivU},
	ir.OpSRem: {wasm.OpI32RemS, wasm.OpI64RemS},
	ir.OpURem: {wasm.OpI32RemU, wasm.OpI64RemU},
	ir.OpAnd:  {wasm.OpI32And, wasm.OpI64And},
	ir.OpOr:   {wasm.OpI32Or, wasm.OpI64Or},
	ir.OpXor:  {wasm.OpI32Xor, wasm.OpI64Xor},
	ir.OpShl:  {wasm.OpI32Shl, wasm.OpI64Shl},
	ir.OpLShr: {wasm.OpI32ShrU, wasm.OpI64ShrU},
	ir.OpAShr: {wasm.OpI32ShrS, wasm.OpI64ShrS},
}

// float opcodes as {f32, f64}
var floatBinary = map[ir.Opcode][2]byte{
	ir.OpAdd:  {wasm.OpF32Add, wasm.OpF64Add},
	ir.OpSub:  {wasm.OpF32Sub, wasm.OpF64Sub},
	ir.OpMul:  {wasm.OpF32Mul, wasm.OpF64Mul},
	ir.OpFDiv: {wasm.OpF32Div, wasm.OpF64Div},
}

var intCompare = map[ir.Predicate][2]byte{
	ir.Equal:                      {wasm.OpI32Eq, wasm.OpI64Eq},
	ir.NotEqual:                   {wasm.OpI32Ne, wasm.OpI64Ne},
	ir.GreaterThan:                {wasm.OpI32GtS, wasm.OpI64GtS},
	ir.GreaterThanOrEqual:         {wasm.OpI32GeS, wasm.OpI64GeS},
	ir.LessThan:                   {wasm.OpI32LtS, wasm.OpI64LtS},
	ir.LessThanOrEqual:            {wasm.OpI32LeS, wasm.OpI64LeS},
	ir.UnsignedGreaterThan:        {wasm.OpI32GtU, wasm.OpI64GtU},
	ir.UnsignedGreaterThanOrEqual: {wasm.OpI32GeU, wasm.OpI64GeU},
	ir.UnsignedLessThan:           {wasm.OpI32LtU, wasm.OpI64LtU},
	ir.UnsignedLessThanOrEqual:    {wasm.OpI32LeU, wasm.OpI64LeU},
}

var floatCompare = map[ir.Predicate][2]byte{
	ir.Equal:              {wasm.OpF32Eq, wasm.OpF64Eq},
	ir.GreaterThan:        {wasm.OpF32Gt, wasm.OpF64Gt},
	ir.GreaterThanOrEqual: {wasm.OpF32Ge, wasm.OpF64Ge},
	ir.LessThan:           {wasm.OpF32Lt, wasm.OpF64Lt},
	ir.LessThanOrEqual:    {wasm.OpF32Le, wasm.OpF64Le},
}

func sel(pair [2]byte, wide bool) byte {
	if wide {
		return pair[1]
	}
	return pair[0]
}

func (f *funcLowering) binary(inst *ir.Instruction) error {
	op := inst.Opcode()
	ops := inst.Operands()
	t := inst.Type()

	if t.IsFloat() {
		pair, ok := floatBinary[op]
		if !ok {
			return f.fail("%s on %s is not supported", op, t)
		}
		for _, v := range ops {
			if err := f.value(v); err != nil {
				return err
			}
		}
		f.code.Op(sel(pair, t.Kind() == ir.DoubleKind))
		f.define(inst)
		return nil
	}

	pair, ok := intBinary[op]
	if !ok {
		return f.fail("%s on %s is not supported", op, t)
	}
	signedLHS := op == ir.OpSDiv || op == ir.OpSRem || op == ir.OpAShr
	signedRHS := op == ir.OpSDiv || op == ir.OpSRem
	push := func(v ir.Value, signed bool) error {
		if signed {
			return f.signed(v)
		}
		return f.value(v)
	}
	if err := push(ops[0], signedLHS); err != nil {
		return err
	}
	if err := push(ops[1], signedRHS); err != nil {
		return err
	}
	f.code.Op(sel(pair, is64(t)))
	switch op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpShl, ir.OpSDiv, ir.OpSRem, ir.OpAShr:
		if !is64(t) {
			f.mask(width(t))
		}
	}
	f.define(inst)
	return nil
}

func (f *funcLowering) icmp(inst *ir.Instruction, ops []ir.Value) error {
	pred := inst.Predicate()
	pair, ok := intCompare[pred]
	if !ok {
		return f.fail("icmp predicate %s is not supported", pred)
	}
	signed := !pred.IsUnsigned() && pred != ir.Equal && pred != ir.NotEqual
	for _, v := range ops {
		var err error
		if signed {
			err = f.signed(v)
		} else {
			err = f.value(v)
		}
		if err != nil {
			return err
		}
	}
	f.code.Op(sel(pair, is64(ops[0].Type())))
	f.define(inst)
	return nil
}

// fcmp lowers ordered comparisons: any comparison with NaN is false.
func (f *funcLowering) fcmp(inst *ir.Instruction, ops []ir.Value) error {
	pred := inst.Predicate()
	wide := ops[0].Type().Kind() == ir.DoubleKind
	pushBoth := func() error {
		if err := f.value(ops[0]); err != nil {
			return err
		}
		return f.value(ops[1])
	}
	if pred == ir.NotEqual {
		// one: lt or gt
		if err := pushBoth(); err != nil {
			return err
		}
		f.code.Op(sel(floatCompare[ir.LessThan], wide))
		if err := pushBoth(); err != nil {
			return err
		}
		f.code.Op(sel(floatCompare[ir.GreaterThan], wide))
		f.code.Op(wasm.OpI32Or)
		f.define(inst)
		return nil
	}
	pair, ok := floatCompare[pred]
	if !ok {
		return f.fail("fcmp predicate %s is not supported", pred)
	}
	if err := pushBoth(); err != nil {
		return err
	}
	f.code.Op(sel(pair, wide))
	f.define(inst)
	return nil
}

func (f *funcLowering) cast(inst *ir.Instruction) error {
	op := inst.Opcode()
	src := inst.Operand(0)
	from, to := src.Type(), inst.Type()

	if op == ir.OpSIToFP {
		if err := f.signed(src); err != nil {
			return err
		}
	} else if err := f.value(src); err != nil {
		return err
	}

	fromWide := is64(from) || from.Kind() == ir.DoubleKind
	toWide := is64(to) || to.Kind() == ir.DoubleKind
	c := f.code
	switch op {
	case ir.OpTrunc:
		if is64(from) {
			c.Op(wasm.OpI32WrapI64)
		}
		f.mask(to.Bits())
	case ir.OpZExt:
		if is64(to) {
			c.Op(wasm.OpI64ExtendI32U)
		}
	case ir.OpSExt:
		f.signExtend(from.Bits())
		if is64(to) {
			c.Op(wasm.OpI64ExtendI32S)
		} else {
			f.mask(to.Bits())
		}
	case ir.OpFPTrunc:
		c.Op(wasm.OpF32DemoteF64)
	case ir.OpFPExt:
		c.Op(wasm.OpF64PromoteF32)
	case ir.OpFPToSI, ir.OpFPToUI:
		signed := op == ir.OpFPToSI
		switch {
		case toWide && fromWide:
			c.Op(pickSign(signed, wasm.OpI64TruncF64S, wasm.OpI64TruncF64U))
		case toWide:
			c.Op(pickSign(signed, wasm.OpI64TruncF32S, wasm.OpI64TruncF32U))
		case fromWide:
			c.Op(pickSign(signed, wasm.OpI32TruncF64S, wasm.OpI32TruncF64U))
		default:
			c.Op(pickSign(signed, wasm.OpI32TruncF32S, wasm.OpI32TruncF32U))
		}
		if !toWide {
			f.mask(to.Bits())
		}
	case ir.OpSIToFP, ir.OpUIToFP:
		signed := op == ir.OpSIToFP
		switch {
		case toWide && fromWide:
			c.Op(pickSign(signed, wasm.OpF64ConvertI64S, wasm.OpF64ConvertI64U))
		case toWide:
			c.Op(pickSign(signed, wasm.OpF64ConvertI32S, wasm.OpF64ConvertI32U))
		case fromWide:
			c.Op(pickSign(signed, wasm.OpF32ConvertI64S, wasm.OpF32ConvertI64U))
		default:
			c.Op(pickSign(signed, wasm.OpF32ConvertI32S, wasm.OpF32ConvertI32U))
		}
	case ir.OpBitCast:
		switch {
		case from.IsFloat() && to.IsInteger():
			c.Op(sel([2]byte{wasm.OpI32ReinterpretF32, wasm.OpI64ReinterpretF64}, fromWide))
		case from.IsInteger() && to.IsFloat():
			c.Op(sel([2]byte{wasm.OpF32ReinterpretI32, wasm.OpF64ReinterpretI64}, toWide))
		}
	case ir.OpPtrToInt:
		if is64(to) {
			c.Op(wasm.OpI64ExtendI32U)
		} else {
			f.mask(to.Bits())
		}
	case ir.OpIntToPtr:
		if is64(from) {
			c.Op(wasm.OpI32WrapI64)
		}
	default:
		return f.fail("cast %s is not supported", op)
	}
	f.define(inst)
	return nil
}

func pickSign(signed bool, s, u byte) byte {
	if signed {
		return s
	}
	return u
}
