package wasm

import (
	"fmt"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/wasm/internal/binary"
)

// ParseModule decodes a WebAssembly binary. Sections this package does not
// model (tables, elements, start, data count) are skipped.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil || magic != Magic {
		return nil, parseError("header", "bad magic number", err)
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, parseError("header", "missing version", err)
	}
	if version != Version {
		return nil, parseError("header", fmt.Sprintf("unsupported version %d", version), nil)
	}

	m := &Module{}
	var funcCount int
	last := -1
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, parseError("section", "reading section id", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, parseError("section", "reading section size", err)
		}
		sec, err := r.Sub(int(size))
		if err != nil {
			return nil, parseError(sectionName(id), "section extends past end of input", err)
		}
		if id != SectionCustom {
			order := sectionOrder(id)
			if order < 0 {
				return nil, parseError("section", fmt.Sprintf("unknown section id %d", id), nil)
			}
			if order <= last {
				return nil, parseError(sectionName(id), "section out of order", nil)
			}
			last = order
		}

		switch id {
		case SectionCustom:
			err = parseCustomSection(sec, m)
		case SectionType:
			err = parseTypeSection(sec, m)
		case SectionImport:
			err = parseImportSection(sec, m)
		case SectionFunction:
			err = parseFunctionSection(sec, m)
			funcCount = len(m.Funcs)
		case SectionMemory:
			err = parseMemorySection(sec, m)
		case SectionGlobal:
			err = parseGlobalSection(sec, m)
		case SectionExport:
			err = parseExportSection(sec, m)
		case SectionCode:
			err = parseCodeSection(sec, m)
			if err == nil && len(m.Code) != funcCount {
				err = fmt.Errorf("%d bodies for %d functions", len(m.Code), funcCount)
			}
		case SectionData:
			err = parseDataSection(sec, m)
		default:
			continue
		}
		if err != nil {
			return nil, parseError(sectionName(id), "malformed section", err)
		}
		if id != SectionCustom && sec.Len() != 0 {
			return nil, parseError(sectionName(id), fmt.Sprintf("%d trailing bytes", sec.Len()), nil)
		}
	}
	if len(m.Code) != funcCount {
		return nil, parseError("code", fmt.Sprintf("%d bodies for %d functions", len(m.Code), funcCount), nil)
	}
	return m, nil
}

func parseError(section, detail string, cause error) error {
	return irerrors.New(irerrors.PhaseParse, irerrors.KindInvalidData).
		Path("wasm", section).
		Detail("%s", detail).
		Cause(cause).
		Build()
}

func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionGlobal:
		return 6
	case SectionExport:
		return 7
	case SectionStart:
		return 8
	case SectionElement:
		return 9
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	}
	return -1
}

func sectionName(id byte) string {
	names := [...]string{"custom", "type", "import", "function", "table", "memory",
		"global", "export", "start", "element", "code", "data", "datacount"}
	if int(id) < len(names) {
		return names[id]
	}
	return fmt.Sprintf("section(%d)", id)
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	data := r.Remaining()
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: append([]byte(nil), data...),
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("type %d: unsupported form 0x%02x", i, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, fmt.Errorf("value type count %d exceeds section", n)
	}
	out := make([]ValType, n)
	for i := range out {
		v, err := readValType(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch ValType(b) {
	case ValI32, ValI64, ValF32, ValF64:
		return ValType(b), nil
	}
	return 0, fmt.Errorf("unsupported value type 0x%02x", b)
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mod, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
		case KindMemory:
			var l Limits
			l, err = readLimits(r)
			imp.Desc.Memory = &MemoryType{Limits: l}
		case KindGlobal:
			var gt GlobalType
			gt, err = readGlobalType(r)
			imp.Desc.Global = &gt
		default:
			return fmt.Errorf("import %s.%s: unsupported kind %d", mod, name, kind)
		}
		if err != nil {
			return err
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, idx)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		l, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, MemoryType{Limits: l})
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	min, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	switch flag {
	case 0x00:
		return Limits{Min: min}, nil
	case 0x01:
		max, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		return Limits{Min: min, Max: &max}, nil
	}
	return Limits{}, fmt.Errorf("unsupported limits flag 0x%02x", flag)
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid mutability 0x%02x", mut)
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

// readConstExpr copies a single-instruction constant expression and its end.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	c := NewCode()
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch op {
	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return nil, err
		}
		c.I32Const(v)
	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return nil, err
		}
		c.I64Const(v)
	case OpF32Const:
		v, err := r.ReadF32()
		if err != nil {
			return nil, err
		}
		c.F32Const(v)
	case OpF64Const:
		v, err := r.ReadF64()
		if err != nil {
			return nil, err
		}
		c.F64Const(v)
	case OpGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		c.GlobalGet(idx)
	default:
		return nil, fmt.Errorf("at %d: opcode 0x%02x is not constant", start, op)
	}
	end, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if end != OpEnd {
		return nil, fmt.Errorf("at %d: constant expression not terminated", start)
	}
	c.End()
	return c.Bytes(), nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		body, err := r.Sub(int(size))
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		groups, err := body.ReadU32()
		if err != nil {
			return err
		}
		fb := FuncBody{}
		for g := uint32(0); g < groups; g++ {
			n, err := body.ReadU32()
			if err != nil {
				return err
			}
			vt, err := readValType(body)
			if err != nil {
				return err
			}
			fb.Locals = append(fb.Locals, LocalEntry{Count: n, ValType: vt})
		}
		fb.Code = append([]byte(nil), body.Remaining()...)
		if len(fb.Code) == 0 || fb.Code[len(fb.Code)-1] != OpEnd {
			return fmt.Errorf("body %d: missing end opcode", i)
		}
		m.Code = append(m.Code, fb)
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flag, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flag != 0 {
			return fmt.Errorf("data %d: only active segments for memory 0 are supported", i)
		}
		offset, err := readConstExpr(r)
		if err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		init, err := r.ReadBytes(int(n))
		if err != nil {
			return err
		}
		m.Data = append(m.Data, DataSegment{Offset: offset, Init: append([]byte(nil), init...)})
	}
	return nil
}
