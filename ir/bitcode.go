package ir

import (
	"bytes"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	irerrors "github.com/wippyai/irkit/errors"
)

// bitcodeMagic prefixes every serialized module.
var bitcodeMagic = []byte("IRBC")

const bitcodeVersion = 1

type bcModule struct {
	Name      string       `msgpack:"name"`
	Triple    string       `msgpack:"triple,omitempty"`
	Layout    string       `msgpack:"layout,omitempty"`
	Types     []bcType     `msgpack:"types"`
	Structs   []int        `msgpack:"structs,omitempty"`
	Globals   []bcGlobal   `msgpack:"globals,omitempty"`
	Functions []bcFunction `msgpack:"functions,omitempty"`
	Aliases   []bcAlias    `msgpack:"aliases,omitempty"`
	Version   int          `msgpack:"version"`
}

type bcType struct {
	Name   string `msgpack:"name,omitempty"`
	Elems  []int  `msgpack:"elems,omitempty"`
	Elem   int    `msgpack:"elem"`
	Bits   int    `msgpack:"bits,omitempty"`
	Kind   uint8  `msgpack:"kind"`
	Packed bool   `msgpack:"packed,omitempty"`
	Opaque bool   `msgpack:"opaque,omitempty"`
}

type bcConst struct {
	Type int    `msgpack:"type"`
	Bits uint64 `msgpack:"bits"`
	Kind uint8  `msgpack:"kind"`
}

type bcGlobal struct {
	Init     *bcConst `msgpack:"init,omitempty"`
	Name     string   `msgpack:"name"`
	Type     int      `msgpack:"type"`
	Linkage  uint8    `msgpack:"linkage,omitempty"`
	Constant bool     `msgpack:"constant,omitempty"`
}

type bcAlias struct {
	Name    string `msgpack:"name"`
	Aliasee string `msgpack:"aliasee"`
	Linkage uint8  `msgpack:"linkage,omitempty"`
}

type bcFunction struct {
	Name     string    `msgpack:"name"`
	ArgNames []string  `msgpack:"args,omitempty"`
	Blocks   []bcBlock `msgpack:"blocks,omitempty"`
	Sig      int       `msgpack:"sig"`
	Linkage  uint8     `msgpack:"linkage,omitempty"`
}

type bcBlock struct {
	Name   string    `msgpack:"name,omitempty"`
	Instrs []bcInstr `msgpack:"instrs"`
}

type bcInstr struct {
	Name     string      `msgpack:"name,omitempty"`
	Operands []bcOperand `msgpack:"ops,omitempty"`
	Blocks   []int       `msgpack:"blocks,omitempty"`
	Type     int         `msgpack:"type"`
	Op       uint8       `msgpack:"op"`
	Pred     uint8       `msgpack:"pred,omitempty"`
	Tail     bool        `msgpack:"tail,omitempty"`
}

const (
	operandConst uint8 = iota
	operandArg
	operandInst
	operandGlobal
)

type bcOperand struct {
	Const  *bcConst `msgpack:"const,omitempty"`
	Symbol string   `msgpack:"sym,omitempty"`
	Index  int      `msgpack:"idx,omitempty"`
	Kind   uint8    `msgpack:"kind"`
}

type typeTable struct {
	index map[*Type]int
	types []bcType
}

func (tt *typeTable) add(t *Type) int {
	if n, ok := tt.index[t]; ok {
		return n
	}
	if t.kind == StructKind && t.name != "" {
		n := len(tt.types)
		tt.index[t] = n
		tt.types = append(tt.types, bcType{Kind: uint8(t.kind), Name: t.name, Elem: -1, Opaque: t.opaque, Packed: t.packed})
		elems := make([]int, len(t.elems))
		for i, e := range t.elems {
			elems[i] = tt.add(e)
		}
		tt.types[n].Elems = elems
		return n
	}
	bt := bcType{Kind: uint8(t.kind), Bits: t.bits, Elem: -1, Packed: t.packed}
	if t.elem != nil {
		bt.Elem = tt.add(t.elem)
	}
	for _, e := range t.elems {
		bt.Elems = append(bt.Elems, tt.add(e))
	}
	n := len(tt.types)
	tt.index[t] = n
	tt.types = append(tt.types, bt)
	return n
}

func (tt *typeTable) constant(k *Constant) *bcConst {
	return &bcConst{Type: tt.add(k.typ), Bits: k.bits, Kind: uint8(k.kind)}
}

// MarshalBitcode serializes the module.
func (m *Module) MarshalBitcode() ([]byte, error) {
	m.check("write bitcode")
	tt := &typeTable{index: make(map[*Type]int)}
	out := bcModule{Name: m.name, Triple: m.triple, Layout: m.layout, Version: bitcodeVersion}

	for _, t := range m.order {
		out.Structs = append(out.Structs, tt.add(t))
	}
	for _, g := range m.globals {
		bg := bcGlobal{Name: g.name, Type: tt.add(g.valueType), Linkage: uint8(g.linkage), Constant: g.constant}
		if g.init != nil {
			bg.Init = tt.constant(g.init)
		}
		out.Globals = append(out.Globals, bg)
	}
	for _, a := range m.aliases {
		out.Aliases = append(out.Aliases, bcAlias{Name: a.name, Aliasee: a.aliasee.base().name, Linkage: uint8(a.linkage)})
	}
	for _, f := range m.functions {
		bf, err := encodeFunction(tt, f)
		if err != nil {
			return nil, err
		}
		out.Functions = append(out.Functions, bf)
	}
	out.Types = tt.types

	var buf bytes.Buffer
	buf.Write(bitcodeMagic)
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(&out); err != nil {
		return nil, irerrors.Wrap(irerrors.PhaseBuild, irerrors.KindInvalidData, err, "encode bitcode")
	}
	return buf.Bytes(), nil
}

func encodeFunction(tt *typeTable, f *Function) (bcFunction, error) {
	bf := bcFunction{Name: f.name, Sig: tt.add(f.typ), Linkage: uint8(f.linkage)}
	for _, a := range f.params {
		bf.ArgNames = append(bf.ArgNames, a.name)
	}
	blockIdx := make(map[*BasicBlock]int, len(f.blocks))
	instIdx := make(map[*Instruction]int)
	n := 0
	for i, b := range f.blocks {
		blockIdx[b] = i
		for _, inst := range b.instrs {
			instIdx[inst] = n
			n++
		}
	}
	for _, b := range f.blocks {
		bb := bcBlock{Name: b.name}
		for _, inst := range b.instrs {
			bi := bcInstr{Name: inst.name, Type: tt.add(inst.typ), Op: uint8(inst.op), Pred: uint8(inst.pred), Tail: inst.tail}
			for _, op := range inst.operands {
				bo, err := encodeOperand(tt, f, instIdx, op)
				if err != nil {
					return bf, err
				}
				bi.Operands = append(bi.Operands, bo)
			}
			for _, t := range inst.blocks {
				idx, ok := blockIdx[t]
				if !ok {
					return bf, irerrors.InvalidData(irerrors.PhaseBuild, []string{f.name}, "branch to a block outside the function")
				}
				bi.Blocks = append(bi.Blocks, idx)
			}
			bb.Instrs = append(bb.Instrs, bi)
		}
		bf.Blocks = append(bf.Blocks, bb)
	}
	return bf, nil
}

func encodeOperand(tt *typeTable, f *Function, instIdx map[*Instruction]int, v Value) (bcOperand, error) {
	switch x := v.(type) {
	case *Constant:
		if x != nil {
			return bcOperand{Kind: operandConst, Const: tt.constant(x)}, nil
		}
	case *Arg:
		if x.fn == f {
			return bcOperand{Kind: operandArg, Index: x.index}, nil
		}
	case *Instruction:
		if n, ok := instIdx[x]; ok {
			return bcOperand{Kind: operandInst, Index: n}, nil
		}
	case *Function:
		return bcOperand{Kind: operandGlobal, Symbol: x.name}, nil
	case *GlobalVariable:
		return bcOperand{Kind: operandGlobal, Symbol: x.name}, nil
	case *Alias:
		return bcOperand{Kind: operandGlobal, Symbol: x.name}, nil
	}
	return bcOperand{}, irerrors.InvalidData(irerrors.PhaseBuild, []string{f.name}, "operand cannot be serialized")
}

// WriteBitcode writes the serialized module to w.
func (m *Module) WriteBitcode(w io.Writer) error {
	data, err := m.MarshalBitcode()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteBitcodeFile writes the serialized module to path.
func (m *Module) WriteBitcodeFile(path string) error {
	data, err := m.MarshalBitcode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// IsBitcode reports whether data starts with the bitcode magic.
func IsBitcode(data []byte) bool {
	return bytes.HasPrefix(data, bitcodeMagic)
}

// ReadBitcode parses a serialized module into c.
func (c *Context) ReadBitcode(r io.Reader) (*Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, irerrors.Wrap(irerrors.PhaseLoad, irerrors.KindInvalidData, err, "read bitcode")
	}
	return c.ParseBitcode(data)
}

// ReadBitcodeFile parses the module stored at path into c.
func (c *Context) ReadBitcodeFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, irerrors.Wrap(irerrors.PhaseLoad, irerrors.KindNotFound, err, "open bitcode file")
	}
	return c.ParseBitcode(data)
}

// ParseBitcode decodes a module serialized with MarshalBitcode.
func (c *Context) ParseBitcode(data []byte) (*Module, error) {
	c.check("read bitcode")
	if !IsBitcode(data) {
		return nil, irerrors.InvalidData(irerrors.PhaseLoad, nil, "missing bitcode magic")
	}
	var in bcModule
	if err := msgpack.Unmarshal(data[len(bitcodeMagic):], &in); err != nil {
		return nil, irerrors.Wrap(irerrors.PhaseLoad, irerrors.KindInvalidData, err, "decode bitcode")
	}
	if in.Version != bitcodeVersion {
		return nil, irerrors.New(irerrors.PhaseLoad, irerrors.KindUnsupported).
			Value(in.Version).
			Detail("bitcode version %d", in.Version).
			Build()
	}
	m, err := c.CreateModule(in.Name)
	if err != nil {
		return nil, err
	}
	r := &bcReader{c: c, m: m, in: &in}
	if err := r.read(); err != nil {
		m.Dispose()
		return nil, err
	}
	return m, nil
}

type bcReader struct {
	c     *Context
	m     *Module
	in    *bcModule
	types []*Type
}

func (r *bcReader) bad(format string, args ...any) error {
	return irerrors.New(irerrors.PhaseLoad, irerrors.KindInvalidData).
		Path(r.in.Name).
		Detail(format, args...).
		Build()
}

func (r *bcReader) typ(n int) (*Type, error) {
	if n < 0 || n >= len(r.types) || r.types[n] == nil {
		return nil, r.bad("type index %d out of range", n)
	}
	return r.types[n], nil
}

func (r *bcReader) readTypes() error {
	r.types = make([]*Type, len(r.in.Types))
	for n, bt := range r.in.Types {
		if TypeKind(bt.Kind) == StructKind && bt.Name != "" {
			t, err := r.m.AddStructType(bt.Name)
			if err != nil {
				return err
			}
			r.types[n] = t
		}
	}
	for n, bt := range r.in.Types {
		if r.types[n] != nil {
			continue
		}
		elems := make([]*Type, len(bt.Elems))
		for i, e := range bt.Elems {
			if e >= n && !(e < len(r.types) && r.types[e] != nil) {
				return r.bad("type %d refers forward to %d", n, e)
			}
			t, err := r.typ(e)
			if err != nil {
				return err
			}
			elems[i] = t
		}
		var elem *Type
		if bt.Elem >= 0 {
			t, err := r.typ(bt.Elem)
			if err != nil {
				return err
			}
			elem = t
		}
		switch TypeKind(bt.Kind) {
		case VoidKind:
			r.types[n] = r.c.VoidType()
		case IntegerKind:
			if bt.Bits < 1 || bt.Bits > 64 {
				return r.bad("integer width %d", bt.Bits)
			}
			r.types[n] = r.c.IntType(bt.Bits)
		case FloatKind:
			r.types[n] = r.c.FloatType()
		case DoubleKind:
			r.types[n] = r.c.DoubleType()
		case PointerKind:
			if elem == nil {
				return r.bad("pointer type %d has no element", n)
			}
			r.types[n] = r.c.PointerType(elem)
		case FunctionKind:
			if elem == nil {
				return r.bad("function type %d has no result", n)
			}
			r.types[n] = r.c.FunctionType(elem, elems...)
		case StructKind:
			r.types[n] = r.c.StructType(elems, bt.Packed)
		default:
			return r.bad("unknown type kind %d", bt.Kind)
		}
	}
	for n, bt := range r.in.Types {
		if TypeKind(bt.Kind) != StructKind || bt.Name == "" || bt.Opaque {
			continue
		}
		fields := make([]*Type, len(bt.Elems))
		for i, e := range bt.Elems {
			t, err := r.typ(e)
			if err != nil {
				return err
			}
			fields[i] = t
		}
		if err := r.types[n].SetBody(fields, bt.Packed); err != nil {
			return err
		}
	}
	return nil
}

func (r *bcReader) constant(bc *bcConst) (*Constant, error) {
	t, err := r.typ(bc.Type)
	if err != nil {
		return nil, err
	}
	switch constKind(bc.Kind) {
	case constInt:
		if !t.IsInteger() {
			return nil, r.bad("integer constant of type %s", t)
		}
	case constFloat:
		if !t.IsFloat() {
			return nil, r.bad("float constant of type %s", t)
		}
	case constNull, constUndef:
	default:
		return nil, r.bad("unknown constant kind %d", bc.Kind)
	}
	return r.c.intern(t, bc.Bits, constKind(bc.Kind)), nil
}

func (r *bcReader) read() error {
	r.m.triple = r.in.Triple
	r.m.layout = r.in.Layout
	if err := r.readTypes(); err != nil {
		return err
	}
	for _, bg := range r.in.Globals {
		t, err := r.typ(bg.Type)
		if err != nil {
			return err
		}
		g, err := r.m.AddGlobal(t, bg.Name)
		if err != nil {
			return err
		}
		g.linkage = Linkage(bg.Linkage)
		g.constant = bg.Constant
		if bg.Init != nil {
			if g.init, err = r.constant(bg.Init); err != nil {
				return err
			}
		}
	}
	for _, bf := range r.in.Functions {
		sig, err := r.typ(bf.Sig)
		if err != nil {
			return err
		}
		if _, err := r.m.AddFunction(bf.Name, sig); err != nil {
			return err
		}
	}
	for _, ba := range r.in.Aliases {
		// aliases may point at later aliases; bind after all are created
		a := &Alias{valueBase: valueBase{name: ba.Name, ctxID: r.c.id}, module: r.m, linkage: Linkage(ba.Linkage)}
		if err := r.m.claim(ba.Name, a); err != nil {
			return err
		}
		r.m.aliases = append(r.m.aliases, a)
	}
	for n, ba := range r.in.Aliases {
		target, ok := r.m.symbols[ba.Aliasee]
		if !ok {
			return r.bad("alias @%s refers to unknown @%s", ba.Name, ba.Aliasee)
		}
		r.m.aliases[n].aliasee = target
	}
	for _, a := range r.m.aliases {
		a.typ = finalType(a)
	}
	for n, bf := range r.in.Functions {
		if err := r.readBody(r.m.functions[n], bf); err != nil {
			return err
		}
	}
	return nil
}

func finalType(a *Alias) *Type {
	var cur GlobalValue = a
	for i := 0; i < 64; i++ {
		next, ok := cur.(*Alias)
		if !ok {
			return cur.base().typ
		}
		cur = next.aliasee
	}
	return a.Context().VoidType()
}

func (r *bcReader) readBody(f *Function, bf bcFunction) error {
	if len(bf.ArgNames) > len(f.params) {
		return r.bad("@%s has %d argument names for %d parameters", f.name, len(bf.ArgNames), len(f.params))
	}
	f.linkage = Linkage(bf.Linkage)
	for i, name := range bf.ArgNames {
		f.params[i].name = name
	}
	blocks := make([]*BasicBlock, len(bf.Blocks))
	for i, bb := range bf.Blocks {
		blocks[i] = f.Append(bb.Name)
	}
	var insts []*Instruction
	for i, bb := range bf.Blocks {
		for _, bi := range bb.Instrs {
			t, err := r.typ(bi.Type)
			if err != nil {
				return err
			}
			inst := &Instruction{
				valueBase: valueBase{typ: t, name: bi.Name, ctxID: r.c.id},
				op:        Opcode(bi.Op),
				pred:      Predicate(bi.Pred),
				tail:      bi.Tail,
				parent:    blocks[i],
			}
			blocks[i].instrs = append(blocks[i].instrs, inst)
			insts = append(insts, inst)
		}
	}
	k := 0
	for _, bb := range bf.Blocks {
		for _, bi := range bb.Instrs {
			inst := insts[k]
			k++
			for _, bo := range bi.Operands {
				v, err := r.operand(f, insts, bo)
				if err != nil {
					return err
				}
				inst.operands = append(inst.operands, v)
			}
			for _, idx := range bi.Blocks {
				if idx < 0 || idx >= len(blocks) {
					return r.bad("@%s branches to block %d of %d", f.name, idx, len(blocks))
				}
				inst.blocks = append(inst.blocks, blocks[idx])
			}
		}
	}
	return nil
}

func (r *bcReader) operand(f *Function, insts []*Instruction, bo bcOperand) (Value, error) {
	switch bo.Kind {
	case operandConst:
		if bo.Const == nil {
			return nil, r.bad("constant operand without value")
		}
		return r.constant(bo.Const)
	case operandArg:
		if bo.Index < 0 || bo.Index >= len(f.params) {
			return nil, r.bad("@%s argument %d out of range", f.name, bo.Index)
		}
		return f.params[bo.Index], nil
	case operandInst:
		if bo.Index < 0 || bo.Index >= len(insts) {
			return nil, r.bad("@%s instruction %d out of range", f.name, bo.Index)
		}
		return insts[bo.Index], nil
	case operandGlobal:
		gv, ok := r.m.symbols[bo.Symbol]
		if !ok {
			return nil, r.bad("@%s refers to unknown @%s", f.name, bo.Symbol)
		}
		return gv, nil
	}
	return nil, r.bad("unknown operand kind %d", bo.Kind)
}
