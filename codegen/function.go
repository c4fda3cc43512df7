package codegen

import (
	"math/bits"

	"fortio.org/safecast"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/wasm"
)

// funcLowering emits one function body. Each SSA value lives in its own
// local. Functions with more than one block run as a dispatch loop: a pc
// local selects the block through br_table, and every branch stores the
// target's index into pc and restarts the loop.
type funcLowering struct {
	l      *lowering
	fn     *ir.Function
	code   *wasm.Code
	locals map[*ir.Instruction]uint32
	order  map[*ir.BasicBlock]uint32
	decls  []wasm.LocalEntry
	next   uint32
	pc     uint32
	// depth of the dispatch loop label from the current block's code,
	// and extra nesting opened inside that code.
	loopDepth uint32
	nest      uint32
	dispatch  bool
}

func lowerFunction(l *lowering, fn *ir.Function) (wasm.FuncBody, error) {
	blocks := fn.Blocks()
	f := &funcLowering{
		l:      l,
		fn:     fn,
		code:   wasm.NewCode(),
		locals: make(map[*ir.Instruction]uint32),
		order:  make(map[*ir.BasicBlock]uint32, len(blocks)),
	}
	n, err := safecast.Conv[uint32](len(fn.Params()))
	if err != nil {
		return wasm.FuncBody{}, f.fail("too many parameters")
	}
	f.next = n
	f.dispatch = len(blocks) > 1 || len(blocks[0].Successors()) > 0

	for i, b := range blocks {
		f.order[b] = uint32(i)
	}
	if f.dispatch {
		f.pc = f.newLocal(wasm.ValI32)
	}
	for _, inst := range fn.Instructions() {
		t := inst.Type()
		if t.IsVoid() {
			continue
		}
		vt, ok := ValTypeOf(t)
		if !ok {
			return wasm.FuncBody{}, irerrors.New(irerrors.PhaseLower, irerrors.KindUnsupported).
				Path(l.m.Name(), fn.Name()).
				IRType(t.String()).
				Detail("%s produces a value with no WebAssembly representation", inst.Opcode()).
				Build()
		}
		f.locals[inst] = f.newLocal(vt)
	}

	if !f.dispatch {
		if err := f.block(blocks[0]); err != nil {
			return wasm.FuncBody{}, err
		}
		f.code.End()
		return wasm.FuncBody{Locals: f.decls, Code: f.code.Bytes()}, nil
	}

	count := uint32(len(blocks))
	f.code.Loop()
	for range blocks {
		f.code.Block()
	}
	targets := make([]uint32, count)
	for i := range targets {
		targets[i] = uint32(i)
	}
	f.code.LocalGet(f.pc)
	f.code.BrTable(targets, 0)
	for i, b := range blocks {
		f.code.End()
		f.loopDepth = count - 1 - uint32(i)
		if err := f.block(b); err != nil {
			return wasm.FuncBody{}, err
		}
	}
	f.code.End()
	f.code.Unreachable()
	f.code.End()
	return wasm.FuncBody{Locals: f.decls, Code: f.code.Bytes()}, nil
}

func (f *funcLowering) newLocal(vt wasm.ValType) uint32 {
	idx := f.next
	f.next++
	if n := len(f.decls); n > 0 && f.decls[n-1].ValType == vt {
		f.decls[n-1].Count++
	} else {
		f.decls = append(f.decls, wasm.LocalEntry{Count: 1, ValType: vt})
	}
	return idx
}

func (f *funcLowering) fail(format string, args ...any) error {
	return unsupported([]string{f.l.m.Name(), f.fn.Name()}, format, args...)
}

func (f *funcLowering) block(b *ir.BasicBlock) error {
	for _, inst := range b.Instructions() {
		if err := f.instruction(b, inst); err != nil {
			return err
		}
	}
	return nil
}

// value pushes v.
func (f *funcLowering) value(v ir.Value) error {
	switch x := v.(type) {
	case *ir.Arg:
		f.code.LocalGet(uint32(x.Index()))
		return nil
	case *ir.Instruction:
		idx, ok := f.locals[x]
		if !ok {
			return f.fail("use of a void instruction")
		}
		f.code.LocalGet(idx)
		return nil
	case *ir.Constant:
		return emitConst(f.code, x)
	case *ir.GlobalVariable:
		return f.fail("address of global @%s is only supported as a load or store pointer", x.Name())
	case *ir.Function, *ir.Alias:
		return f.fail("address of @%s is not supported", v.Name())
	}
	return f.fail("unsupported operand %s", v.String())
}

func (f *funcLowering) define(inst *ir.Instruction) {
	f.code.LocalSet(f.locals[inst])
}

func width(t *ir.Type) int {
	if t.IsPointer() {
		return 32
	}
	return t.Bits()
}

func is64(t *ir.Type) bool {
	return t.IsInteger() && t.Bits() == 64
}

// mask truncates the i32 on the stack to its low n bits.
func (f *funcLowering) mask(n int) {
	if n >= 32 {
		return
	}
	f.code.I32Const(int32(uint32(1)<<n - 1))
	f.code.Op(wasm.OpI32And)
}

// signExtend sign-extends the low n bits of the i32 on the stack.
func (f *funcLowering) signExtend(n int) {
	switch {
	case n >= 32:
	case n == 8:
		f.code.Op(wasm.OpI32Extend8S)
	case n == 16:
		f.code.Op(wasm.OpI32Extend16S)
	default:
		shift := int32(32 - n)
		f.code.I32Const(shift)
		f.code.Op(wasm.OpI32Shl)
		f.code.I32Const(shift)
		f.code.Op(wasm.OpI32ShrS)
	}
}

// signed pushes v sign-extended when it is a narrow integer.
func (f *funcLowering) signed(v ir.Value) error {
	if err := f.value(v); err != nil {
		return err
	}
	if t := v.Type(); t.IsInteger() {
		f.signExtend(t.Bits())
	}
	return nil
}

func (f *funcLowering) instruction(b *ir.BasicBlock, inst *ir.Instruction) error {
	op := inst.Opcode()
	switch {
	case op.IsBinary():
		return f.binary(inst)
	case op.IsCast():
		return f.cast(inst)
	}

	ops := inst.Operands()
	switch op {
	case ir.OpPhi:
		// assigned on incoming edges
		return nil

	case ir.OpNeg:
		t := inst.Type()
		if t.IsFloat() {
			if err := f.value(ops[0]); err != nil {
				return err
			}
			f.code.Op(pick(t, wasm.OpF32Neg, wasm.OpF64Neg))
		} else {
			if is64(t) {
				f.code.I64Const(0)
			} else {
				f.code.I32Const(0)
			}
			if err := f.value(ops[0]); err != nil {
				return err
			}
			f.code.Op(pick(t, wasm.OpI32Sub, wasm.OpI64Sub))
			f.mask(width(t))
		}
		f.define(inst)

	case ir.OpNot:
		t := inst.Type()
		if err := f.value(ops[0]); err != nil {
			return err
		}
		if is64(t) {
			f.code.I64Const(-1)
			f.code.Op(wasm.OpI64Xor)
		} else {
			f.code.I32Const(int32(uint32(1)<<width(t) - 1))
			f.code.Op(wasm.OpI32Xor)
		}
		f.define(inst)

	case ir.OpICmp:
		return f.icmp(inst, ops)

	case ir.OpFCmp:
		return f.fcmp(inst, ops)

	case ir.OpSelect:
		for _, v := range []ir.Value{ops[1], ops[2], ops[0]} {
			if err := f.value(v); err != nil {
				return err
			}
		}
		f.code.Select()
		f.define(inst)

	case ir.OpLoad:
		if g, ok := ops[0].(*ir.GlobalVariable); ok {
			f.code.GlobalGet(f.l.globals[g])
			f.define(inst)
			return nil
		}
		if err := f.value(ops[0]); err != nil {
			return err
		}
		t := inst.Type()
		f.code.Mem(loadOp(t), f.align(t), 0)
		f.l.memory = true
		f.define(inst)

	case ir.OpStore:
		if g, ok := ops[1].(*ir.GlobalVariable); ok {
			if err := f.value(ops[0]); err != nil {
				return err
			}
			f.code.GlobalSet(f.l.globals[g])
			return nil
		}
		if err := f.value(ops[1]); err != nil {
			return err
		}
		if err := f.value(ops[0]); err != nil {
			return err
		}
		t := ops[0].Type()
		f.code.Mem(storeOp(t), f.align(t), 0)
		f.l.memory = true

	case ir.OpCall:
		callee := inst.Callee()
		if callee == nil {
			return f.fail("indirect calls are not supported")
		}
		idx, ok := f.l.funcs[callee]
		if !ok {
			return f.fail("call to @%s outside the module", callee.Name())
		}
		for _, a := range inst.CallArgs() {
			if err := f.value(a); err != nil {
				return err
			}
		}
		// tail calls lower as ordinary calls
		f.code.Call(idx)
		if !inst.Type().IsVoid() {
			f.define(inst)
		}

	case ir.OpRet:
		if len(ops) == 1 {
			if err := f.value(ops[0]); err != nil {
				return err
			}
		}
		f.code.Return()

	case ir.OpUnreachable:
		f.code.Unreachable()

	case ir.OpBr:
		return f.jump(b, inst.Targets()[0])

	case ir.OpCondBr:
		targets := inst.Targets()
		if err := f.value(ops[0]); err != nil {
			return err
		}
		f.code.If()
		f.nest++
		if err := f.jump(b, targets[0]); err != nil {
			return err
		}
		f.code.Else()
		if err := f.jump(b, targets[1]); err != nil {
			return err
		}
		f.nest--
		f.code.End()

	case ir.OpSwitch:
		targets := inst.Targets()
		cond := ops[0]
		eq := pick(cond.Type(), wasm.OpI32Eq, wasm.OpI64Eq)
		for n, c := range ops[1:] {
			if err := f.value(cond); err != nil {
				return err
			}
			if err := f.value(c); err != nil {
				return err
			}
			f.code.Op(eq)
			f.code.If()
			f.nest++
			if err := f.jump(b, targets[n+1]); err != nil {
				return err
			}
			f.nest--
			f.code.End()
		}
		return f.jump(b, targets[0])

	default:
		return f.fail("opcode %s is not supported", op)
	}
	return nil
}

// jump assigns to's phis for the edge from -> to and branches there.
func (f *funcLowering) jump(from, to *ir.BasicBlock) error {
	var phis []*ir.Instruction
	for _, inst := range to.Instructions() {
		if inst.Opcode() != ir.OpPhi {
			break
		}
		phis = append(phis, inst)
	}
	for _, phi := range phis {
		v, ok := phi.Incoming(from)
		if !ok {
			return f.fail("phi in %s has no value for edge from %s", to.Name(), from.Name())
		}
		if err := f.value(v); err != nil {
			return err
		}
	}
	for i := len(phis) - 1; i >= 0; i-- {
		f.define(phis[i])
	}
	f.code.I32Const(int32(f.order[to]))
	f.code.LocalSet(f.pc)
	f.code.Br(f.loopDepth + f.nest)
	return nil
}

// pick selects the 32-bit or 64-bit form of an opcode by t.
func pick(t *ir.Type, op32, op64 byte) byte {
	switch {
	case t.Kind() == ir.DoubleKind, is64(t):
		return op64
	}
	return op32
}

// align is the log2 alignment hint for accessing t: the layout's ABI
// alignment, capped by the access width.
func (f *funcLowering) align(t *ir.Type) uint32 {
	a := uint64(f.l.td.AlignmentOf(t))
	if size := accessBytes(t); size < a {
		a = size
	}
	if a == 0 {
		return 0
	}
	return uint32(bits.TrailingZeros64(a))
}

// accessBytes is the width of the memory access lowered for t.
func accessBytes(t *ir.Type) uint64 {
	switch t.Kind() {
	case ir.FloatKind, ir.PointerKind:
		return 4
	case ir.DoubleKind:
		return 8
	}
	switch n := t.Bits(); {
	case n <= 8:
		return 1
	case n <= 16:
		return 2
	case n <= 32:
		return 4
	}
	return 8
}

func loadOp(t *ir.Type) byte {
	switch t.Kind() {
	case ir.FloatKind:
		return wasm.OpF32Load
	case ir.DoubleKind:
		return wasm.OpF64Load
	case ir.PointerKind:
		return wasm.OpI32Load
	}
	switch n := t.Bits(); {
	case n <= 8:
		return wasm.OpI32Load8U
	case n <= 16:
		return wasm.OpI32Load16U
	case n <= 32:
		return wasm.OpI32Load
	}
	return wasm.OpI64Load
}

func storeOp(t *ir.Type) byte {
	switch t.Kind() {
	case ir.FloatKind:
		return wasm.OpF32Store
	case ir.DoubleKind:
		return wasm.OpF64Store
	case ir.PointerKind:
		return wasm.OpI32Store
	}
	switch n := t.Bits(); {
	case n <= 8:
		return wasm.OpI32Store8
	case n <= 16:
		return wasm.OpI32Store16
	case n <= 32:
		return wasm.OpI32Store
	}
	return wasm.OpI64Store
}
