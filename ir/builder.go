package ir

import "github.com/google/uuid"

// Builder appends instructions at the end of a basic block. It performs no
// validation; run Module.Verify on the result.
type Builder struct {
	block *BasicBlock
	ctxID uuid.UUID
}

// SwitchCase is one arm of a switch.
type SwitchCase struct {
	Value *Constant
	Dest  *BasicBlock
}

// NewBuilder creates an unpositioned builder.
func NewBuilder(c *Context) *Builder {
	c.check("builder")
	return &Builder{ctxID: c.id}
}

// PositionAtEnd makes subsequent instructions append to b.
func (b *Builder) PositionAtEnd(block *BasicBlock) {
	block.check("position")
	b.block = block
}

// InsertBlock returns the current block.
func (b *Builder) InsertBlock() *BasicBlock {
	return b.block
}

func (b *Builder) emit(op Opcode, typ *Type, operands []Value, blocks []*BasicBlock) *Instruction {
	c := resolve(b.ctxID)
	if b.block == nil {
		panic("ir: builder is not positioned")
	}
	b.block.checkMutable("build")
	if typ == nil {
		typ = c.void
	}
	inst := &Instruction{
		valueBase: valueBase{typ: typ, ctxID: b.ctxID},
		op:        op,
		operands:  operands,
		blocks:    blocks,
		parent:    b.block,
	}
	b.block.instrs = append(b.block.instrs, inst)
	return inst
}

func (b *Builder) binary(op Opcode, lhs, rhs Value) *Instruction {
	return b.emit(op, lhs.Type(), []Value{lhs, rhs}, nil)
}

// Add, Sub and Mul work on integers and floats alike.
func (b *Builder) Add(lhs, rhs Value) *Instruction { return b.binary(OpAdd, lhs, rhs) }
func (b *Builder) Sub(lhs, rhs Value) *Instruction { return b.binary(OpSub, lhs, rhs) }
func (b *Builder) Mul(lhs, rhs Value) *Instruction { return b.binary(OpMul, lhs, rhs) }

func (b *Builder) SDiv(lhs, rhs Value) *Instruction { return b.binary(OpSDiv, lhs, rhs) }
func (b *Builder) UDiv(lhs, rhs Value) *Instruction { return b.binary(OpUDiv, lhs, rhs) }
func (b *Builder) FDiv(lhs, rhs Value) *Instruction { return b.binary(OpFDiv, lhs, rhs) }
func (b *Builder) SRem(lhs, rhs Value) *Instruction { return b.binary(OpSRem, lhs, rhs) }
func (b *Builder) URem(lhs, rhs Value) *Instruction { return b.binary(OpURem, lhs, rhs) }

// Div is FDiv for floats and SDiv otherwise.
func (b *Builder) Div(lhs, rhs Value) *Instruction {
	if lhs.Type().IsFloat() {
		return b.FDiv(lhs, rhs)
	}
	return b.SDiv(lhs, rhs)
}

func (b *Builder) And(lhs, rhs Value) *Instruction  { return b.binary(OpAnd, lhs, rhs) }
func (b *Builder) Or(lhs, rhs Value) *Instruction   { return b.binary(OpOr, lhs, rhs) }
func (b *Builder) Xor(lhs, rhs Value) *Instruction  { return b.binary(OpXor, lhs, rhs) }
func (b *Builder) Shl(lhs, rhs Value) *Instruction  { return b.binary(OpShl, lhs, rhs) }
func (b *Builder) LShr(lhs, rhs Value) *Instruction { return b.binary(OpLShr, lhs, rhs) }
func (b *Builder) AShr(lhs, rhs Value) *Instruction { return b.binary(OpAShr, lhs, rhs) }

func (b *Builder) Neg(v Value) *Instruction {
	return b.emit(OpNeg, v.Type(), []Value{v}, nil)
}

func (b *Builder) Not(v Value) *Instruction {
	return b.emit(OpNot, v.Type(), []Value{v}, nil)
}

// ICmp compares integers or pointers and yields an i1.
func (b *Builder) ICmp(pred Predicate, lhs, rhs Value) *Instruction {
	inst := b.emit(OpICmp, resolve(b.ctxID).IntType(1), []Value{lhs, rhs}, nil)
	inst.pred = pred
	return inst
}

// FCmp compares floats (ordered) and yields an i1.
func (b *Builder) FCmp(pred Predicate, lhs, rhs Value) *Instruction {
	inst := b.emit(OpFCmp, resolve(b.ctxID).IntType(1), []Value{lhs, rhs}, nil)
	inst.pred = pred
	return inst
}

// Cmp picks FCmp for floats and ICmp otherwise.
func (b *Builder) Cmp(pred Predicate, lhs, rhs Value) *Instruction {
	if lhs.Type().IsFloat() {
		return b.FCmp(pred, lhs, rhs)
	}
	return b.ICmp(pred, lhs, rhs)
}

func (b *Builder) cast(op Opcode, v Value, to *Type) *Instruction {
	return b.emit(op, to, []Value{v}, nil)
}

func (b *Builder) Trunc(v Value, to *Type) *Instruction    { return b.cast(OpTrunc, v, to) }
func (b *Builder) ZExt(v Value, to *Type) *Instruction     { return b.cast(OpZExt, v, to) }
func (b *Builder) SExt(v Value, to *Type) *Instruction     { return b.cast(OpSExt, v, to) }
func (b *Builder) FPTrunc(v Value, to *Type) *Instruction  { return b.cast(OpFPTrunc, v, to) }
func (b *Builder) FPExt(v Value, to *Type) *Instruction    { return b.cast(OpFPExt, v, to) }
func (b *Builder) FPToSI(v Value, to *Type) *Instruction   { return b.cast(OpFPToSI, v, to) }
func (b *Builder) FPToUI(v Value, to *Type) *Instruction   { return b.cast(OpFPToUI, v, to) }
func (b *Builder) SIToFP(v Value, to *Type) *Instruction   { return b.cast(OpSIToFP, v, to) }
func (b *Builder) UIToFP(v Value, to *Type) *Instruction   { return b.cast(OpUIToFP, v, to) }
func (b *Builder) BitCast(v Value, to *Type) *Instruction  { return b.cast(OpBitCast, v, to) }
func (b *Builder) PtrToInt(v Value, to *Type) *Instruction { return b.cast(OpPtrToInt, v, to) }
func (b *Builder) IntToPtr(v Value, to *Type) *Instruction { return b.cast(OpIntToPtr, v, to) }

// Select yields then if cond is true, otherwise els.
func (b *Builder) Select(cond, then, els Value) *Instruction {
	return b.emit(OpSelect, then.Type(), []Value{cond, then, els}, nil)
}

// Phi creates an empty phi of type t; add edges with AddIncoming.
func (b *Builder) Phi(t *Type) *Instruction {
	return b.emit(OpPhi, t, nil, nil)
}

// Load reads the value ptr points to.
func (b *Builder) Load(ptr Value) *Instruction {
	var t *Type
	if pt := ptr.Type(); pt.IsPointer() {
		t = pt.elem
	}
	return b.emit(OpLoad, t, []Value{ptr}, nil)
}

// Store writes v through ptr.
func (b *Builder) Store(v, ptr Value) *Instruction {
	return b.emit(OpStore, nil, []Value{v, ptr}, nil)
}

// Call calls fn, a Function or an Alias of one.
func (b *Builder) Call(fn Value, args ...Value) *Instruction {
	var t *Type
	if callee := calleeOf(fn); callee != nil {
		t = callee.typ.elem
	}
	ops := make([]Value, 0, len(args)+1)
	ops = append(ops, fn)
	ops = append(ops, args...)
	return b.emit(OpCall, t, ops, nil)
}

// TailCall is Call marked as a tail call.
func (b *Builder) TailCall(fn Value, args ...Value) *Instruction {
	inst := b.Call(fn, args...)
	inst.tail = true
	return inst
}

func (b *Builder) Ret(v Value) *Instruction {
	return b.emit(OpRet, nil, []Value{v}, nil)
}

func (b *Builder) RetVoid() *Instruction {
	return b.emit(OpRet, nil, nil, nil)
}

func (b *Builder) Br(dest *BasicBlock) *Instruction {
	return b.emit(OpBr, nil, nil, []*BasicBlock{dest})
}

func (b *Builder) CondBr(cond Value, then, els *BasicBlock) *Instruction {
	return b.emit(OpCondBr, nil, []Value{cond}, []*BasicBlock{then, els})
}

// Switch jumps to the first case equal to v, or to def.
func (b *Builder) Switch(v Value, def *BasicBlock, cases ...SwitchCase) *Instruction {
	ops := make([]Value, 0, len(cases)+1)
	blocks := make([]*BasicBlock, 0, len(cases)+1)
	ops = append(ops, v)
	blocks = append(blocks, def)
	for _, c := range cases {
		ops = append(ops, c.Value)
		blocks = append(blocks, c.Dest)
	}
	return b.emit(OpSwitch, nil, ops, blocks)
}

func (b *Builder) Unreachable() *Instruction {
	return b.emit(OpUnreachable, nil, nil, nil)
}
