package ir

// Instruction is an SSA instruction. Its Type is the type of the value it
// produces (void for stores, branches and void calls).
type Instruction struct {
	valueBase
	parent   *BasicBlock
	operands []Value
	blocks   []*BasicBlock
	op       Opcode
	pred     Predicate
	tail     bool
}

func (i *Instruction) check(op string) {
	resolve(i.ctxID)
	if i.parent != nil {
		i.parent.life.Check(op)
	}
}

func (i *Instruction) checkMutable(op string) {
	i.check(op)
	if i.parent != nil {
		i.parent.fn.module.checkMutable(op)
	}
}

func (i *Instruction) Opcode() Opcode {
	i.check("opcode")
	return i.op
}

// Parent returns the containing block, nil once erased.
func (i *Instruction) Parent() *BasicBlock {
	i.check("instruction parent")
	return i.parent
}

// Function returns the function containing the instruction, nil once erased.
func (i *Instruction) Function() *Function {
	if i.parent == nil {
		return nil
	}
	return i.parent.fn
}

func (i *Instruction) NumOperands() int {
	i.check("operands")
	return len(i.operands)
}

func (i *Instruction) Operand(n int) Value {
	i.check("operand")
	return i.operands[n]
}

// Operands returns a copy of the operand list.
func (i *Instruction) Operands() []Value {
	i.check("operands")
	return append([]Value(nil), i.operands...)
}

func (i *Instruction) SetOperand(n int, v Value) {
	i.checkMutable("operand")
	i.operands[n] = v
}

// Targets returns branch destinations: [dest] for br, [then, else] for a
// conditional br, [default, cases...] for switch, incoming blocks for phi.
func (i *Instruction) Targets() []*BasicBlock {
	i.check("targets")
	return append([]*BasicBlock(nil), i.blocks...)
}

func (i *Instruction) SetTarget(n int, b *BasicBlock) {
	i.checkMutable("targets")
	i.blocks[n] = b
}

// Predicate is meaningful for icmp and fcmp.
func (i *Instruction) Predicate() Predicate {
	i.check("predicate")
	return i.pred
}

// IsTailCall reports a call marked as a tail call.
func (i *Instruction) IsTailCall() bool {
	i.check("tail")
	return i.tail
}

func (i *Instruction) IsTerminator() bool {
	return i.op.IsTerminator()
}

// Callee returns the called function of a call, resolving aliases.
func (i *Instruction) Callee() *Function {
	i.check("callee")
	if i.op != OpCall || len(i.operands) == 0 {
		return nil
	}
	return calleeOf(i.operands[0])
}

// CallArgs returns the arguments of a call.
func (i *Instruction) CallArgs() []Value {
	i.check("call args")
	if i.op != OpCall || len(i.operands) == 0 {
		return nil
	}
	return append([]Value(nil), i.operands[1:]...)
}

func calleeOf(v Value) *Function {
	seen := 0
	for v != nil && seen < 16 {
		switch x := v.(type) {
		case *Function:
			return x
		case *Alias:
			v = x.aliasee
		default:
			return nil
		}
		seen++
	}
	return nil
}

// Incoming returns the phi's incoming value for block b.
func (i *Instruction) Incoming(b *BasicBlock) (Value, bool) {
	i.check("incoming")
	for n, blk := range i.blocks {
		if blk == b {
			return i.operands[n], true
		}
	}
	return nil, false
}

// AddIncoming adds an edge to a phi.
func (i *Instruction) AddIncoming(v Value, from *BasicBlock) {
	i.checkMutable("incoming")
	if i.op != OpPhi {
		panic("ir: AddIncoming on " + i.op.String())
	}
	i.operands = append(i.operands, v)
	i.blocks = append(i.blocks, from)
}

// RemoveIncoming drops the phi edge from block b.
func (i *Instruction) RemoveIncoming(b *BasicBlock) {
	i.checkMutable("incoming")
	for n := 0; n < len(i.blocks); n++ {
		if i.blocks[n] == b {
			i.blocks = append(i.blocks[:n], i.blocks[n+1:]...)
			i.operands = append(i.operands[:n], i.operands[n+1:]...)
			n--
		}
	}
}

// EraseFromParent removes the instruction from its block.
func (i *Instruction) EraseFromParent() {
	i.checkMutable("erase")
	if i.parent != nil {
		i.parent.remove(i)
	}
}

func (i *Instruction) String() string {
	i.check("print")
	if i.parent == nil {
		return newSlots(nil).instruction(i)
	}
	return newSlots(i.parent.fn).instruction(i)
}

// ReplaceAllUsesWith rewrites every operand of fn equal to old into new.
func ReplaceAllUsesWith(fn *Function, old, new Value) {
	fn.checkMutable("replace uses")
	for _, b := range fn.blocks {
		for _, inst := range b.instrs {
			for n, op := range inst.operands {
				if op == old {
					inst.operands[n] = new
				}
			}
		}
	}
}

// HasUses reports whether any instruction of fn uses v.
func HasUses(fn *Function, v Value) bool {
	fn.check("uses")
	for _, b := range fn.blocks {
		for _, inst := range b.instrs {
			for _, op := range inst.operands {
				if op == v {
					return true
				}
			}
		}
	}
	return false
}
