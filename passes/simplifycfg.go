package passes

import "github.com/wippyai/irkit/ir"

// SimplifyCFG folds branches on constants, deletes unreachable blocks and
// merges a block into its predecessor when that predecessor jumps only to it.
type SimplifyCFG struct{}

func (SimplifyCFG) Name() string { return "simplifycfg" }

func (SimplifyCFG) RunOnFunction(fn *ir.Function) (bool, error) {
	if fn.IsDeclaration() {
		return false, nil
	}
	changed := false
	for {
		step := foldBranches(fn)
		step = removeUnreachable(fn) || step
		step = mergeBlocks(fn) || step
		if !step {
			return changed, nil
		}
		changed = true
	}
}

func foldBranches(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks() {
		term := b.Terminator()
		if term == nil {
			continue
		}
		targets := term.Targets()
		var dest *ir.BasicBlock
		switch term.Opcode() {
		case ir.OpCondBr:
			if targets[0] == targets[1] {
				dest = targets[0]
				break
			}
			cond, ok := constOperand(term, 0)
			if !ok {
				continue
			}
			dest = targets[1]
			if cond.ZExt() != 0 {
				dest = targets[0]
			}
		case ir.OpSwitch:
			cond, ok := constOperand(term, 0)
			if !ok {
				continue
			}
			dest = targets[0]
			for n := 1; n < term.NumOperands(); n++ {
				if k, isConst := term.Operand(n).(*ir.Constant); isConst && k.ZExt() == cond.ZExt() {
					dest = targets[n]
					break
				}
			}
		default:
			continue
		}
		dropped := map[*ir.BasicBlock]bool{}
		for _, t := range targets {
			if t != dest {
				dropped[t] = true
			}
		}
		for t := range dropped {
			removeIncoming(t, b)
		}
		replaceTerminator(b, dest)
		changed = true
	}
	return changed
}

func replaceTerminator(b *ir.BasicBlock, dest *ir.BasicBlock) {
	b.Terminator().EraseFromParent()
	builder := ir.NewBuilder(b.Context())
	builder.PositionAtEnd(b)
	builder.Br(dest)
}

func phis(b *ir.BasicBlock) []*ir.Instruction {
	var out []*ir.Instruction
	for _, inst := range b.Instructions() {
		if inst.Opcode() != ir.OpPhi {
			break
		}
		out = append(out, inst)
	}
	return out
}

func removeIncoming(b, from *ir.BasicBlock) {
	for _, phi := range phis(b) {
		phi.RemoveIncoming(from)
	}
}

func removeUnreachable(fn *ir.Function) bool {
	reach := ir.Reachable(fn)
	var dead []*ir.BasicBlock
	for _, b := range fn.Blocks() {
		if !reach[b] {
			dead = append(dead, b)
		}
	}
	for _, b := range dead {
		for _, s := range b.Successors() {
			if reach[s] {
				removeIncoming(s, b)
			}
		}
	}
	for _, b := range dead {
		b.Delete()
	}
	return len(dead) > 0
}

func predecessors(fn *ir.Function) map[*ir.BasicBlock][]*ir.BasicBlock {
	preds := make(map[*ir.BasicBlock][]*ir.BasicBlock)
	for _, b := range fn.Blocks() {
		seen := map[*ir.BasicBlock]bool{}
		for _, s := range b.Successors() {
			if !seen[s] {
				seen[s] = true
				preds[s] = append(preds[s], b)
			}
		}
	}
	return preds
}

// mergeBlocks merges at most one block per call; the CFG changes under it.
func mergeBlocks(fn *ir.Function) bool {
	preds := predecessors(fn)
	entry := fn.Entry()
	for _, b := range fn.Blocks() {
		if b == entry || len(preds[b]) != 1 {
			continue
		}
		p := preds[b][0]
		if p == b {
			continue
		}
		term := p.Terminator()
		if term == nil || term.Opcode() != ir.OpBr {
			continue
		}

		bphis := phis(b)
		incoming := make([]ir.Value, len(bphis))
		complete := true
		for n, phi := range bphis {
			v, ok := phi.Incoming(p)
			incoming[n] = v
			complete = complete && ok
		}
		if !complete {
			continue
		}
		for n, phi := range bphis {
			ir.ReplaceAllUsesWith(fn, phi, incoming[n])
			phi.EraseFromParent()
		}
		term.EraseFromParent()
		for _, inst := range b.Instructions() {
			p.Append(inst)
		}
		for _, s := range p.Successors() {
			for _, phi := range phis(s) {
				for n, in := range phi.Targets() {
					if in == b {
						phi.SetTarget(n, p)
					}
				}
			}
		}
		b.Delete()
		return true
	}
	return false
}
