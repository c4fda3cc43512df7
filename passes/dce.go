package passes

import "github.com/wippyai/irkit/ir"

// DeadCodeElim removes instructions without side effects whose results are
// never used. Calls, loads, stores and terminators are always kept.
type DeadCodeElim struct{}

func (DeadCodeElim) Name() string { return "dce" }

func (DeadCodeElim) RunOnFunction(fn *ir.Function) (bool, error) {
	changed := false
	for {
		uses := countUses(fn)
		removed := false
		for _, inst := range fn.Instructions() {
			if !removable(inst.Opcode()) || uses[inst] > 0 {
				continue
			}
			inst.EraseFromParent()
			removed = true
		}
		if !removed {
			return changed, nil
		}
		changed = true
	}
}

func removable(op ir.Opcode) bool {
	switch {
	case op.IsBinary(), op.IsCast():
		return true
	case op == ir.OpNeg, op == ir.OpNot, op == ir.OpICmp, op == ir.OpFCmp, op == ir.OpSelect, op == ir.OpPhi:
		return true
	}
	return false
}

// countUses counts operand references to instructions. A phi using itself
// does not keep itself alive.
func countUses(fn *ir.Function) map[*ir.Instruction]int {
	uses := make(map[*ir.Instruction]int)
	for _, inst := range fn.Instructions() {
		for _, op := range inst.Operands() {
			def, ok := op.(*ir.Instruction)
			if !ok || def == inst {
				continue
			}
			uses[def]++
		}
	}
	return uses
}
