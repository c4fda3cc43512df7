package ir

import (
	"context"

	"github.com/wippyai/irkit/handle"
)

// BasicBlock is a straight-line sequence of instructions ending in a terminator.
type BasicBlock struct {
	fn     *Function
	life   *handle.Lifetime
	detach func()
	name   string
	instrs []*Instruction
}

func (b *BasicBlock) check(op string) {
	resolve(b.fn.ctxID)
	b.life.Check(op)
}

func (b *BasicBlock) checkMutable(op string) {
	b.check(op)
	b.fn.module.checkMutable(op)
}

func (b *BasicBlock) end(ctx context.Context) error {
	return b.life.End(ctx)
}

func (b *BasicBlock) Name() string {
	b.check("block name")
	return b.name
}

func (b *BasicBlock) SetName(name string) {
	b.check("block name")
	b.name = name
}

// Parent returns the function containing the block.
func (b *BasicBlock) Parent() *Function {
	b.check("block parent")
	return b.fn
}

func (b *BasicBlock) Context() *Context {
	return resolve(b.fn.ctxID)
}

func (b *BasicBlock) Lifetime() *handle.Lifetime {
	return b.life
}

// Instructions returns the block's instructions in order.
func (b *BasicBlock) Instructions() []*Instruction {
	b.check("instructions")
	return append([]*Instruction(nil), b.instrs...)
}

// Terminator returns the last instruction if it is a terminator.
func (b *BasicBlock) Terminator() *Instruction {
	b.check("terminator")
	if len(b.instrs) == 0 {
		return nil
	}
	last := b.instrs[len(b.instrs)-1]
	if !last.op.IsTerminator() {
		return nil
	}
	return last
}

// Terminated reports whether the block ends in a terminator.
func (b *BasicBlock) Terminated() bool {
	return b.Terminator() != nil
}

// Successors returns the blocks the terminator can branch to.
func (b *BasicBlock) Successors() []*BasicBlock {
	t := b.Terminator()
	if t == nil {
		return nil
	}
	switch t.op {
	case OpBr, OpCondBr, OpSwitch:
		return append([]*BasicBlock(nil), t.blocks...)
	}
	return nil
}

// Append adds inst at the end of the block. The builder is the usual way to
// create instructions; Append is for moving instructions between blocks.
func (b *BasicBlock) Append(inst *Instruction) {
	b.checkMutable("append")
	if inst.parent != nil {
		inst.parent.remove(inst)
	}
	inst.parent = b
	b.instrs = append(b.instrs, inst)
}

func (b *BasicBlock) remove(inst *Instruction) {
	for i, o := range b.instrs {
		if o == inst {
			b.instrs = append(b.instrs[:i], b.instrs[i+1:]...)
			break
		}
	}
	inst.parent = nil
}

// Delete removes the block from its function.
func (b *BasicBlock) Delete() {
	b.checkMutable("delete")
	b.fn.removeBlock(b)
	b.detach()
	_ = b.end(context.Background())
}

// Ref is the textual label form, e.g. "%entry".
func (b *BasicBlock) Ref() string {
	return newSlots(b.fn).label(b)
}
