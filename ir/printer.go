package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// slots numbers the unnamed values and blocks of one function.
type slots struct {
	nums map[any]int
	fn   *Function
}

func newSlots(fn *Function) *slots {
	s := &slots{fn: fn, nums: make(map[any]int)}
	if fn == nil {
		return s
	}
	n := 0
	for _, a := range fn.params {
		if a.name == "" {
			s.nums[a] = n
			n++
		}
	}
	for _, b := range fn.blocks {
		if b.name == "" {
			s.nums[b] = n
			n++
		}
		for _, inst := range b.instrs {
			if inst.name == "" && !inst.typ.IsVoid() {
				s.nums[inst] = n
				n++
			}
		}
	}
	return s
}

func (s *slots) local(key any, name string) string {
	if name != "" {
		return "%" + quoteName(name)
	}
	if n, ok := s.nums[key]; ok {
		return "%" + strconv.Itoa(n)
	}
	return "%<badref>"
}

func (s *slots) label(b *BasicBlock) string {
	if b == nil {
		return "%<null>"
	}
	return s.local(b, b.name)
}

// ref is the operand text without its type.
func (s *slots) ref(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<null>"
	case *Constant:
		if x == nil {
			return "<null>"
		}
		return constText(x)
	case *Arg:
		return s.local(x, x.name)
	case *Instruction:
		return s.local(x, x.name)
	case *Function:
		return "@" + quoteName(x.name)
	case *GlobalVariable:
		return "@" + quoteName(x.name)
	case *Alias:
		return "@" + quoteName(x.name)
	}
	return "<unknown>"
}

func (s *slots) typed(v Value) string {
	if v == nil {
		return "<null>"
	}
	if k, ok := v.(*Constant); ok && k == nil {
		return "<null>"
	}
	return v.base().typ.String() + " " + s.ref(v)
}

func constText(k *Constant) string {
	switch k.kind {
	case constUndef:
		return "undef"
	case constNull:
		if k.typ.kind == StructKind {
			return "zeroinitializer"
		}
		return "null"
	case constFloat:
		f := k.Float()
		if k.typ.kind == FloatKind {
			return strconv.FormatFloat(f, 'e', -1, 32)
		}
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	if k.typ.bits == 1 {
		if k.bits != 0 {
			return "true"
		}
		return "false"
	}
	return strconv.FormatInt(signExtend(k.bits, k.typ.bits), 10)
}

func (s *slots) instruction(i *Instruction) string {
	var b strings.Builder
	if !i.typ.IsVoid() {
		b.WriteString(s.local(i, i.name))
		b.WriteString(" = ")
	}
	ops := i.operands
	switch {
	case i.op == OpRet:
		if len(ops) == 0 {
			b.WriteString("ret void")
		} else {
			b.WriteString("ret " + s.typed(ops[0]))
		}
	case i.op == OpBr:
		b.WriteString("br label " + s.label(blockAt(i.blocks, 0)))
	case i.op == OpCondBr:
		fmt.Fprintf(&b, "br %s, label %s, label %s",
			s.typed(valueAt(ops, 0)), s.label(blockAt(i.blocks, 0)), s.label(blockAt(i.blocks, 1)))
	case i.op == OpSwitch:
		fmt.Fprintf(&b, "switch %s, label %s [", s.typed(valueAt(ops, 0)), s.label(blockAt(i.blocks, 0)))
		for n := 1; n < len(ops); n++ {
			fmt.Fprintf(&b, " %s, label %s", s.typed(ops[n]), s.label(blockAt(i.blocks, n)))
		}
		b.WriteString(" ]")
	case i.op == OpUnreachable:
		b.WriteString("unreachable")
	case i.op.IsBinary():
		fmt.Fprintf(&b, "%s %s, %s", i.op, s.typed(valueAt(ops, 0)), s.ref(valueAt(ops, 1)))
	case i.op == OpNeg || i.op == OpNot:
		fmt.Fprintf(&b, "%s %s", i.op, s.typed(valueAt(ops, 0)))
	case i.op == OpICmp:
		fmt.Fprintf(&b, "icmp %s %s, %s", i.pred, s.typed(valueAt(ops, 0)), s.ref(valueAt(ops, 1)))
	case i.op == OpFCmp:
		name := "unknown"
		if int(i.pred) < len(floatPredicateNames) {
			name = floatPredicateNames[i.pred]
		}
		fmt.Fprintf(&b, "fcmp %s %s, %s", name, s.typed(valueAt(ops, 0)), s.ref(valueAt(ops, 1)))
	case i.op.IsCast():
		fmt.Fprintf(&b, "%s %s to %s", i.op, s.typed(valueAt(ops, 0)), i.typ)
	case i.op == OpSelect:
		fmt.Fprintf(&b, "select %s, %s, %s", s.typed(valueAt(ops, 0)), s.typed(valueAt(ops, 1)), s.typed(valueAt(ops, 2)))
	case i.op == OpPhi:
		fmt.Fprintf(&b, "phi %s", i.typ)
		for n := range ops {
			if n > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, " [ %s, %s ]", s.ref(ops[n]), s.label(blockAt(i.blocks, n)))
		}
	case i.op == OpLoad:
		fmt.Fprintf(&b, "load %s, %s", i.typ, s.typed(valueAt(ops, 0)))
	case i.op == OpStore:
		fmt.Fprintf(&b, "store %s, %s", s.typed(valueAt(ops, 0)), s.typed(valueAt(ops, 1)))
	case i.op == OpCall:
		if i.tail {
			b.WriteString("tail ")
		}
		fmt.Fprintf(&b, "call %s %s(", i.typ, s.ref(valueAt(ops, 0)))
		for n := 1; n < len(ops); n++ {
			if n > 1 {
				b.WriteString(", ")
			}
			b.WriteString(s.typed(ops[n]))
		}
		b.WriteByte(')')
	default:
		b.WriteString(i.op.String())
	}
	return b.String()
}

func valueAt(vs []Value, n int) Value {
	if n < len(vs) {
		return vs[n]
	}
	return nil
}

func blockAt(bs []*BasicBlock, n int) *BasicBlock {
	if n < len(bs) {
		return bs[n]
	}
	return nil
}

func linkagePrefix(l Linkage) string {
	if l == External {
		return ""
	}
	return l.String() + " "
}

func printFunction(f *Function) string {
	s := newSlots(f)
	var b strings.Builder
	sig := f.typ
	params := make([]string, len(f.params))
	if len(f.blocks) == 0 {
		for n, p := range sig.elems {
			params[n] = p.String()
		}
		fmt.Fprintf(&b, "declare %s%s @%s(%s)\n", linkagePrefix(f.linkage), sig.elem, quoteName(f.name), strings.Join(params, ", "))
		return b.String()
	}
	for n, a := range f.params {
		params[n] = s.typed(a)
	}
	fmt.Fprintf(&b, "define %s%s @%s(%s) {\n", linkagePrefix(f.linkage), sig.elem, quoteName(f.name), strings.Join(params, ", "))
	for n, blk := range f.blocks {
		if n > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.TrimPrefix(s.label(blk), "%"))
		b.WriteString(":\n")
		for _, inst := range blk.instrs {
			b.WriteString("  ")
			b.WriteString(s.instruction(inst))
			b.WriteByte('\n')
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func printGlobal(g *GlobalVariable) string {
	kind := "global"
	if g.constant {
		kind = "constant"
	}
	if g.init == nil {
		return fmt.Sprintf("@%s = external %s %s", quoteName(g.name), kind, g.valueType)
	}
	return fmt.Sprintf("@%s = %s%s %s %s", quoteName(g.name), linkagePrefix(g.linkage), kind, g.valueType, constText(g.init))
}

func printAlias(a *Alias) string {
	return fmt.Sprintf("@%s = %salias %s @%s", quoteName(a.name), linkagePrefix(a.linkage), a.typ, quoteName(a.aliasee.base().name))
}

func printModule(m *Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; ModuleID = '%s'\n", m.name)
	if m.layout != "" {
		fmt.Fprintf(&b, "target datalayout = %q\n", m.layout)
	}
	if m.triple != "" {
		fmt.Fprintf(&b, "target triple = %q\n", m.triple)
	}
	if len(m.order) > 0 {
		b.WriteByte('\n')
		for _, t := range m.order {
			fmt.Fprintf(&b, "%%%s = type %s\n", t.name, t.body())
		}
	}
	if len(m.globals) > 0 {
		b.WriteByte('\n')
		for _, g := range m.globals {
			b.WriteString(printGlobal(g))
			b.WriteByte('\n')
		}
	}
	if len(m.aliases) > 0 {
		b.WriteByte('\n')
		for _, a := range m.aliases {
			b.WriteString(printAlias(a))
			b.WriteByte('\n')
		}
	}
	for _, f := range m.functions {
		b.WriteByte('\n')
		b.WriteString(printFunction(f))
	}
	return b.String()
}
