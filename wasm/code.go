package wasm

import (
	"github.com/wippyai/irkit/wasm/internal/binary"
)

// Code assembles a function body or constant expression one instruction at
// a time. Immediates are encoded as the binary format requires.
type Code struct {
	w *binary.Writer
}

func NewCode() *Code {
	return &Code{w: binary.NewWriter()}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return append([]byte(nil), c.w.Bytes()...)
}

func (c *Code) Len() int {
	return c.w.Len()
}

// Op emits an opcode that takes no immediates.
func (c *Code) Op(op byte) {
	c.w.Byte(op)
}

func (c *Code) Unreachable() { c.w.Byte(OpUnreachable) }
func (c *Code) Return()      { c.w.Byte(OpReturn) }
func (c *Code) Select()      { c.w.Byte(OpSelect) }
func (c *Code) Else()        { c.w.Byte(OpElse) }
func (c *Code) End()         { c.w.Byte(OpEnd) }

// Block opens a block with no results.
func (c *Code) Block() {
	c.w.Byte(OpBlock)
	c.w.Byte(BlockVoid)
}

// Loop opens a loop with no results.
func (c *Code) Loop() {
	c.w.Byte(OpLoop)
	c.w.Byte(BlockVoid)
}

// If opens an if with no results.
func (c *Code) If() {
	c.w.Byte(OpIf)
	c.w.Byte(BlockVoid)
}

func (c *Code) Br(depth uint32) {
	c.w.Byte(OpBr)
	c.w.WriteU32(depth)
}

// BrTable branches to targets[i] for operand i, or to def when i is out of range.
func (c *Code) BrTable(targets []uint32, def uint32) {
	c.w.Byte(OpBrTable)
	c.w.WriteU32(uint32(len(targets)))
	for _, t := range targets {
		c.w.WriteU32(t)
	}
	c.w.WriteU32(def)
}

func (c *Code) Call(funcIdx uint32) {
	c.w.Byte(OpCall)
	c.w.WriteU32(funcIdx)
}

func (c *Code) LocalGet(idx uint32) {
	c.w.Byte(OpLocalGet)
	c.w.WriteU32(idx)
}

func (c *Code) LocalSet(idx uint32) {
	c.w.Byte(OpLocalSet)
	c.w.WriteU32(idx)
}

func (c *Code) GlobalGet(idx uint32) {
	c.w.Byte(OpGlobalGet)
	c.w.WriteU32(idx)
}

func (c *Code) GlobalSet(idx uint32) {
	c.w.Byte(OpGlobalSet)
	c.w.WriteU32(idx)
}

func (c *Code) I32Const(v int32) {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
}

func (c *Code) I64Const(v int64) {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
}

func (c *Code) F32Const(v float32) {
	c.w.Byte(OpF32Const)
	c.w.WriteF32(v)
}

func (c *Code) F64Const(v float64) {
	c.w.Byte(OpF64Const)
	c.w.WriteF64(v)
}

// Mem emits a load or store with its memarg. align is log2 of the byte alignment.
func (c *Code) Mem(op byte, align, offset uint32) {
	c.w.Byte(op)
	c.w.WriteU32(align)
	c.w.WriteU32(offset)
}
