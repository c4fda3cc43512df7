package ir

import (
	"fmt"

	irerrors "github.com/wippyai/irkit/errors"
)

// Verify checks the module for structural and type errors. All problems are
// reported together in an *errors.Verifications.
func (m *Module) Verify() error {
	m.check("verify")
	var errs irerrors.Verifications
	for _, g := range m.globals {
		verifyGlobal(m, g, &errs)
	}
	for _, a := range m.aliases {
		verifyAlias(m, a, &errs)
	}
	for _, f := range m.functions {
		verifyFunction(f, &errs)
	}
	return errs.Err()
}

// Verify checks a single function.
func (f *Function) Verify() error {
	f.check("verify")
	var errs irerrors.Verifications
	verifyFunction(f, &errs)
	return errs.Err()
}

func verifyGlobal(m *Module, g *GlobalVariable, errs *irerrors.Verifications) {
	path := []string{m.name, g.name}
	if g.init == nil {
		if g.linkage != External && g.linkage != ExternalWeak {
			errs.Add(irerrors.Verification(path, "declaration must have external linkage, has %s", g.linkage))
		}
		return
	}
	if g.init.typ != g.valueType {
		errs.Add(irerrors.Verification(path, "initializer has type %s, variable holds %s", g.init.typ, g.valueType))
	}
	if !g.valueType.IsFirstClass() && !g.init.IsNull() {
		errs.Add(irerrors.Verification(path, "aggregate globals only support zero initializers"))
	}
}

func verifyAlias(m *Module, a *Alias, errs *irerrors.Verifications) {
	path := []string{m.name, a.name}
	seen := map[GlobalValue]bool{a: true}
	var cur GlobalValue = a.aliasee
	for {
		if cur == nil {
			errs.Add(irerrors.Verification(path, "alias has no aliasee"))
			return
		}
		if seen[cur] {
			errs.Add(irerrors.Verification(path, "alias cycle"))
			return
		}
		seen[cur] = true
		if got, ok := m.symbols[cur.base().name]; !ok || got != cur {
			errs.Add(irerrors.Verification(path, "aliasee @%s is not in module %s", cur.base().name, m.name))
			return
		}
		next, ok := cur.(*Alias)
		if !ok {
			return
		}
		cur = next.aliasee
	}
}

type funcVerifier struct {
	f     *Function
	errs  *irerrors.Verifications
	preds map[*BasicBlock][]*BasicBlock
	dom   map[*BasicBlock]map[*BasicBlock]bool
	index map[*Instruction]int
}

func verifyFunction(f *Function, errs *irerrors.Verifications) {
	v := &funcVerifier{f: f, errs: errs}
	if len(f.blocks) == 0 {
		if f.linkage != External && f.linkage != ExternalWeak {
			v.fail(nil, "declaration must have external linkage, has %s", f.linkage)
		}
		return
	}
	if f.typ.elem.kind != VoidKind && !f.typ.elem.IsFirstClass() {
		v.fail(nil, "return type %s is not first class", f.typ.elem)
	}
	for n, p := range f.typ.elems {
		if !p.IsFirstClass() {
			v.fail(nil, "parameter %d has non first class type %s", n, p)
		}
	}

	v.index = make(map[*Instruction]int)
	structural := true
	for _, b := range f.blocks {
		if !v.verifyLayout(b) {
			structural = false
		}
	}
	if !structural {
		return
	}
	v.computeCFG()
	for _, b := range f.blocks {
		for _, inst := range b.instrs {
			v.verifyInstruction(b, inst)
		}
	}
}

func (v *funcVerifier) fail(b *BasicBlock, format string, args ...any) {
	path := []string{v.f.module.name, v.f.name}
	if b != nil {
		path = append(path, blockName(v.f, b))
	}
	v.errs.Add(irerrors.Verification(path, format, args...))
}

func blockName(f *Function, b *BasicBlock) string {
	if b.name != "" {
		return b.name
	}
	for n, o := range f.blocks {
		if o == b {
			return fmt.Sprintf("bb%d", n)
		}
	}
	return "<detached>"
}

func (v *funcVerifier) verifyLayout(b *BasicBlock) bool {
	if len(b.instrs) == 0 {
		v.fail(b, "block has no terminator")
		return false
	}
	ok := true
	seenOther := false
	for n, inst := range b.instrs {
		v.index[inst] = n
		if inst.parent != b {
			v.fail(b, "instruction %d has a stale parent", n)
			ok = false
		}
		last := n == len(b.instrs)-1
		if inst.op.IsTerminator() && !last {
			v.fail(b, "terminator %s in the middle of the block", inst.op)
			ok = false
		}
		if last && !inst.op.IsTerminator() {
			v.fail(b, "block has no terminator")
			ok = false
		}
		if inst.op == OpPhi {
			if seenOther {
				v.fail(b, "phi nodes must be grouped at the top of the block")
			}
		} else {
			seenOther = true
		}
		for _, t := range inst.blocks {
			if t == nil || t.fn != v.f || !t.life.Alive() {
				v.fail(b, "%s refers to a block outside the function", inst.op)
				ok = false
			}
		}
	}
	return ok
}

func (v *funcVerifier) computeCFG() {
	v.preds = make(map[*BasicBlock][]*BasicBlock)
	for _, b := range v.f.blocks {
		seen := map[*BasicBlock]bool{}
		for _, s := range b.Successors() {
			if !seen[s] {
				seen[s] = true
				v.preds[s] = append(v.preds[s], b)
			}
		}
	}
	v.dom = Dominators(v.f)
}

// Dominators returns, for every block reachable from the entry, the set of
// blocks that dominate it.
func Dominators(f *Function) map[*BasicBlock]map[*BasicBlock]bool {
	entry := f.blocks[0]
	reach := Reachable(f)
	preds := make(map[*BasicBlock][]*BasicBlock)
	for _, b := range f.blocks {
		if !reach[b] {
			continue
		}
		for _, s := range b.Successors() {
			preds[s] = append(preds[s], b)
		}
	}
	dom := make(map[*BasicBlock]map[*BasicBlock]bool)
	for _, b := range f.blocks {
		if !reach[b] {
			continue
		}
		if b == entry {
			dom[b] = map[*BasicBlock]bool{b: true}
			continue
		}
		all := make(map[*BasicBlock]bool)
		for _, o := range f.blocks {
			if reach[o] {
				all[o] = true
			}
		}
		dom[b] = all
	}
	for changed := true; changed; {
		changed = false
		for _, b := range f.blocks {
			if !reach[b] || b == entry {
				continue
			}
			var next map[*BasicBlock]bool
			for _, p := range preds[b] {
				if next == nil {
					next = make(map[*BasicBlock]bool, len(dom[p]))
					for k := range dom[p] {
						next[k] = true
					}
					continue
				}
				for k := range next {
					if !dom[p][k] {
						delete(next, k)
					}
				}
			}
			if next == nil {
				next = make(map[*BasicBlock]bool)
			}
			next[b] = true
			if len(next) != len(dom[b]) {
				dom[b] = next
				changed = true
			}
		}
	}
	return dom
}

// Reachable returns the blocks reachable from the entry block.
func Reachable(f *Function) map[*BasicBlock]bool {
	reach := make(map[*BasicBlock]bool)
	if len(f.blocks) == 0 {
		return reach
	}
	stack := []*BasicBlock{f.blocks[0]}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reach[b] {
			continue
		}
		reach[b] = true
		stack = append(stack, b.Successors()...)
	}
	return reach
}

// dominates reports whether def is available at the use site.
func (v *funcVerifier) dominates(def *Instruction, useBlock *BasicBlock, useIndex int) bool {
	db := def.parent
	if _, reachable := v.dom[useBlock]; !reachable {
		return true
	}
	if db == useBlock {
		return v.index[def] < useIndex
	}
	return v.dom[useBlock][db]
}

func (v *funcVerifier) verifyOperand(b *BasicBlock, inst *Instruction, op Value, phiFrom *BasicBlock) bool {
	if op == nil {
		v.fail(b, "%s has a missing operand", inst.op)
		return false
	}
	if k, isConst := op.(*Constant); isConst && k == nil {
		v.fail(b, "%s has a missing operand", inst.op)
		return false
	}
	base := op.base()
	if base.ctxID != v.f.ctxID {
		v.fail(b, "%s uses a value from another context", inst.op)
		return false
	}
	switch x := op.(type) {
	case *Arg:
		if x.fn != v.f {
			v.fail(b, "%s uses an argument of @%s", inst.op, x.fn.name)
			return false
		}
	case *Instruction:
		if x.parent == nil || x.parent.fn != v.f {
			v.fail(b, "%s uses an instruction outside the function", inst.op)
			return false
		}
		if x.typ.IsVoid() {
			v.fail(b, "%s uses a %s, which produces no value", inst.op, x.op)
			return false
		}
		if phiFrom != nil {
			if _, reachable := v.dom[phiFrom]; reachable && x.parent != phiFrom && !v.dom[phiFrom][x.parent] {
				v.fail(b, "phi operand does not dominate the end of its incoming block")
				return false
			}
		} else if !v.dominates(x, b, v.index[inst]) {
			v.fail(b, "%s uses a value before it is defined", inst.op)
			return false
		}
	case *Function:
		if !x.life.Alive() {
			v.fail(b, "%s refers to deleted function @%s", inst.op, x.name)
			return false
		}
		if x.module != v.f.module {
			v.fail(b, "%s refers to @%s from module %s", inst.op, x.name, x.module.name)
			return false
		}
	case *GlobalVariable:
		if got, ok := v.f.module.symbols[x.name]; !ok || got != x {
			v.fail(b, "%s refers to global @%s outside the module", inst.op, x.name)
			return false
		}
	case *Alias:
		if got, ok := v.f.module.symbols[x.name]; !ok || got != x {
			v.fail(b, "%s refers to alias @%s outside the module", inst.op, x.name)
			return false
		}
	}
	return true
}

func (v *funcVerifier) verifyInstruction(b *BasicBlock, inst *Instruction) {
	for n, op := range inst.operands {
		var from *BasicBlock
		if inst.op == OpPhi && n < len(inst.blocks) {
			from = inst.blocks[n]
		}
		if !v.verifyOperand(b, inst, op, from) {
			return
		}
	}

	ops := inst.operands
	ret := v.f.typ.elem
	switch op := inst.op; {
	case op == OpRet:
		switch {
		case ret.IsVoid() && len(ops) != 0:
			v.fail(b, "ret with a value in a void function")
		case !ret.IsVoid() && len(ops) != 1:
			v.fail(b, "ret without a value, function returns %s", ret)
		case len(ops) == 1 && ops[0].Type() != ret:
			v.fail(b, "ret %s in a function returning %s", ops[0].Type(), ret)
		}
	case op == OpBr:
		if len(inst.blocks) != 1 {
			v.fail(b, "br needs one destination")
		}
	case op == OpCondBr:
		if len(ops) != 1 || len(inst.blocks) != 2 {
			v.fail(b, "conditional br needs a condition and two destinations")
			return
		}
		v.wantBool(b, op, ops[0])
	case op == OpSwitch:
		v.verifySwitch(b, inst)
	case op == OpUnreachable:
	case op.IsBinary():
		v.verifyBinary(b, inst)
	case op == OpNeg:
		if len(ops) != 1 || !(ops[0].Type().IsInteger() || ops[0].Type().IsFloat()) {
			v.fail(b, "neg needs one numeric operand")
		}
	case op == OpNot:
		if len(ops) != 1 || !ops[0].Type().IsInteger() {
			v.fail(b, "not needs one integer operand")
		}
	case op == OpICmp, op == OpFCmp:
		v.verifyCompare(b, inst)
	case op.IsCast():
		v.verifyCast(b, inst)
	case op == OpSelect:
		if len(ops) != 3 {
			v.fail(b, "select needs three operands")
			return
		}
		v.wantBool(b, op, ops[0])
		if ops[1].Type() != ops[2].Type() {
			v.fail(b, "select arms differ: %s and %s", ops[1].Type(), ops[2].Type())
		}
	case op == OpPhi:
		v.verifyPhi(b, inst)
	case op == OpLoad:
		if len(ops) != 1 || !ops[0].Type().IsPointer() {
			v.fail(b, "load needs a pointer operand")
			return
		}
		if !inst.typ.IsFirstClass() {
			v.fail(b, "load of non first class type %s", inst.typ)
		}
	case op == OpStore:
		if len(ops) != 2 || !ops[1].Type().IsPointer() {
			v.fail(b, "store needs a value and a pointer")
			return
		}
		if ops[1].Type().elem != ops[0].Type() {
			v.fail(b, "store of %s through %s", ops[0].Type(), ops[1].Type())
		}
	case op == OpCall:
		v.verifyCall(b, inst)
	}
}

func (v *funcVerifier) wantBool(b *BasicBlock, op Opcode, cond Value) {
	if t := cond.Type(); !t.IsInteger() || t.bits != 1 {
		v.fail(b, "%s condition must be i1, got %s", op, t)
	}
}

func (v *funcVerifier) verifyBinary(b *BasicBlock, inst *Instruction) {
	ops := inst.operands
	if len(ops) != 2 {
		v.fail(b, "%s needs two operands", inst.op)
		return
	}
	lt, rt := ops[0].Type(), ops[1].Type()
	if lt != rt {
		v.fail(b, "%s operand types differ: %s and %s", inst.op, lt, rt)
		return
	}
	switch inst.op {
	case OpAdd, OpSub, OpMul:
		if !lt.IsInteger() && !lt.IsFloat() {
			v.fail(b, "%s needs numeric operands, got %s", inst.op, lt)
		}
	case OpFDiv:
		if !lt.IsFloat() {
			v.fail(b, "fdiv needs float operands, got %s", lt)
		}
	default:
		if !lt.IsInteger() {
			v.fail(b, "%s needs integer operands, got %s", inst.op, lt)
		}
	}
}

func (v *funcVerifier) verifyCompare(b *BasicBlock, inst *Instruction) {
	ops := inst.operands
	if len(ops) != 2 {
		v.fail(b, "%s needs two operands", inst.op)
		return
	}
	lt, rt := ops[0].Type(), ops[1].Type()
	if lt != rt {
		v.fail(b, "%s operand types differ: %s and %s", inst.op, lt, rt)
		return
	}
	if inst.pred > UnsignedLessThanOrEqual {
		v.fail(b, "%s has an invalid predicate", inst.op)
		return
	}
	if inst.op == OpICmp && !lt.IsInteger() && !lt.IsPointer() {
		v.fail(b, "icmp needs integer or pointer operands, got %s", lt)
	}
	if inst.op == OpFCmp {
		if !lt.IsFloat() {
			v.fail(b, "fcmp needs float operands, got %s", lt)
		}
		if inst.pred.IsUnsigned() {
			v.fail(b, "fcmp does not take unsigned predicates")
		}
	}
}

func (v *funcVerifier) verifyCast(b *BasicBlock, inst *Instruction) {
	if len(inst.operands) != 1 {
		v.fail(b, "%s needs one operand", inst.op)
		return
	}
	from, to := inst.operands[0].Type(), inst.typ
	ok := true
	switch inst.op {
	case OpTrunc:
		ok = from.IsInteger() && to.IsInteger() && from.bits > to.bits
	case OpZExt, OpSExt:
		ok = from.IsInteger() && to.IsInteger() && from.bits < to.bits
	case OpFPTrunc:
		ok = from.kind == DoubleKind && to.kind == FloatKind
	case OpFPExt:
		ok = from.kind == FloatKind && to.kind == DoubleKind
	case OpFPToSI, OpFPToUI:
		ok = from.IsFloat() && to.IsInteger()
	case OpSIToFP, OpUIToFP:
		ok = from.IsInteger() && to.IsFloat()
	case OpBitCast:
		switch {
		case from.IsPointer() || to.IsPointer():
			ok = from.IsPointer() && to.IsPointer()
		default:
			ok = from.IsFirstClass() && to.IsFirstClass() && from.bits == to.bits
		}
	case OpPtrToInt:
		ok = from.IsPointer() && to.IsInteger()
	case OpIntToPtr:
		ok = from.IsInteger() && to.IsPointer()
	}
	if !ok {
		v.fail(b, "invalid cast %s from %s to %s", inst.op, from, to)
	}
}

func (v *funcVerifier) verifySwitch(b *BasicBlock, inst *Instruction) {
	ops := inst.operands
	if len(ops) == 0 || len(inst.blocks) != len(ops) {
		v.fail(b, "switch needs a condition, a default and one destination per case")
		return
	}
	ct := ops[0].Type()
	if !ct.IsInteger() {
		v.fail(b, "switch condition must be an integer, got %s", ct)
		return
	}
	seen := make(map[uint64]bool)
	for _, c := range ops[1:] {
		k, ok := c.(*Constant)
		if !ok || k.kind != constInt {
			v.fail(b, "switch case is not an integer constant")
			continue
		}
		if k.typ != ct {
			v.fail(b, "switch case has type %s, condition is %s", k.typ, ct)
		}
		if seen[k.bits] {
			v.fail(b, "duplicate switch case %s", constText(k))
		}
		seen[k.bits] = true
	}
}

func (v *funcVerifier) verifyPhi(b *BasicBlock, inst *Instruction) {
	if !inst.typ.IsFirstClass() {
		v.fail(b, "phi of non first class type %s", inst.typ)
		return
	}
	if len(inst.operands) != len(inst.blocks) {
		v.fail(b, "phi has mismatched incoming lists")
		return
	}
	for _, op := range inst.operands {
		if op.Type() != inst.typ {
			v.fail(b, "phi incoming value has type %s, phi is %s", op.Type(), inst.typ)
		}
	}
	if _, reachable := v.dom[b]; !reachable {
		return
	}
	preds := v.preds[b]
	count := make(map[*BasicBlock]int)
	for _, in := range inst.blocks {
		count[in]++
	}
	for _, p := range preds {
		switch count[p] {
		case 0:
			v.fail(b, "phi has no entry for predecessor %s", blockName(v.f, p))
		case 1:
		default:
			v.fail(b, "phi has duplicate entries for predecessor %s", blockName(v.f, p))
		}
		delete(count, p)
	}
	for in := range count {
		v.fail(b, "phi has an entry for %s, which is not a predecessor", blockName(v.f, in))
	}
}

func (v *funcVerifier) verifyCall(b *BasicBlock, inst *Instruction) {
	if len(inst.operands) == 0 {
		v.fail(b, "call without callee")
		return
	}
	callee := calleeOf(inst.operands[0])
	if callee == nil {
		v.fail(b, "call target is not a function")
		return
	}
	sig := callee.typ
	args := inst.operands[1:]
	if len(args) != len(sig.elems) {
		v.fail(b, "call to @%s with %d arguments, expects %d", callee.name, len(args), len(sig.elems))
		return
	}
	for n, a := range args {
		if a.Type() != sig.elems[n] {
			v.fail(b, "call to @%s argument %d has type %s, expects %s", callee.name, n, a.Type(), sig.elems[n])
		}
	}
	if inst.typ != sig.elem {
		v.fail(b, "call result %s does not match @%s returning %s", inst.typ, callee.name, sig.elem)
	}
}
