package ir

import (
	"context"
	"strconv"

	"github.com/wippyai/irkit/handle"
)

// Function is a global function. Its Type is its signature.
// A function without blocks is a declaration.
type Function struct {
	valueBase
	module  *Module
	life    *handle.Lifetime
	detach  func()
	params  []*Arg
	blocks  []*BasicBlock
	linkage Linkage
}

func newFunction(m *Module, name string, sig *Type) *Function {
	fn := &Function{
		valueBase: valueBase{typ: sig, name: name, ctxID: m.ctxID},
		module:    m,
		life:      handle.NewLifetime("function " + name),
	}
	fn.params = make([]*Arg, len(sig.elems))
	for i, pt := range sig.elems {
		fn.params[i] = &Arg{valueBase: valueBase{typ: pt, ctxID: m.ctxID}, fn: fn, index: i}
	}
	return fn
}

func (f *Function) check(op string) {
	resolve(f.ctxID)
	f.life.Check(op)
}

func (f *Function) checkMutable(op string) {
	f.check(op)
	f.module.checkMutable(op)
}

func (f *Function) end(ctx context.Context) error {
	return f.life.End(ctx)
}

// Parent returns the module that owns the function.
func (f *Function) Parent() *Module {
	f.check("function parent")
	return f.module
}

func (f *Function) Lifetime() *handle.Lifetime {
	return f.life
}

func (f *Function) SetName(name string) {
	f.checkMutable("rename")
	f.name = f.module.rename(f, f.name, name)
}

// Signature returns the function type.
func (f *Function) Signature() *Type {
	f.check("signature")
	return f.typ
}

func (f *Function) Linkage() Linkage {
	f.check("linkage")
	return f.linkage
}

func (f *Function) SetLinkage(l Linkage) {
	f.checkMutable("linkage")
	f.linkage = l
}

// IsDeclaration reports a function with no body.
func (f *Function) IsDeclaration() bool {
	f.check("declaration")
	return len(f.blocks) == 0
}

// Param returns the i-th argument. It panics if i is out of range.
func (f *Function) Param(i int) *Arg {
	f.check("param")
	return f.params[i]
}

// Params returns all arguments in order.
func (f *Function) Params() []*Arg {
	f.check("params")
	return append([]*Arg(nil), f.params...)
}

// Append adds a new basic block at the end of the function.
func (f *Function) Append(name string) *BasicBlock {
	f.checkMutable("append block")
	b := &BasicBlock{
		name: name,
		fn:   f,
		life: handle.NewLifetime("block " + name),
	}
	f.blocks = append(f.blocks, b)
	b.detach = f.life.OnEnd(b.end)
	return b
}

// Blocks returns the basic blocks in layout order.
func (f *Function) Blocks() []*BasicBlock {
	f.check("blocks")
	return append([]*BasicBlock(nil), f.blocks...)
}

// Entry returns the first block, or nil for a declaration.
func (f *Function) Entry() *BasicBlock {
	f.check("entry")
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

// Instructions returns every instruction of the function in layout order.
func (f *Function) Instructions() []*Instruction {
	f.check("instructions")
	var out []*Instruction
	for _, b := range f.blocks {
		out = append(out, b.instrs...)
	}
	return out
}

// Delete removes the function from its module. Calls to it that remain
// elsewhere are reported by Verify.
func (f *Function) Delete() {
	f.checkMutable("delete")
	f.module.removeFunction(f)
	f.detach()
	_ = f.end(context.Background())
}

func (f *Function) removeBlock(b *BasicBlock) {
	for i, o := range f.blocks {
		if o == b {
			f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
			return
		}
	}
}

// String prints the function definition or declaration.
func (f *Function) String() string {
	f.check("print")
	return printFunction(f)
}

// Ref is the textual operand form, e.g. "@add".
func (f *Function) Ref() string {
	return "@" + quoteName(f.name)
}

func quoteName(name string) string {
	for _, r := range name {
		if !(r == '_' || r == '.' || r == '$' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return strconv.Quote(name)
		}
	}
	if name == "" {
		return `""`
	}
	return name
}
