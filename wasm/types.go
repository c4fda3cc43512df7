package wasm

import "fmt"

// ValType is a numeric value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	}
	return fmt.Sprintf("valtype(0x%02x)", byte(v))
}

// Module is the subset of a WebAssembly module that lowered IR produces:
// no tables, element segments or start function.
type Module struct {
	Types          []FuncType
	Imports        []Import
	Funcs          []uint32 // type index of each defined function
	Memories       []MemoryType
	Globals        []Global
	Exports        []Export
	Code           []FuncBody
	Data           []DataSegment
	CustomSections []CustomSection
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) Equal(o FuncType) bool {
	return valTypesEqual(ft.Params, o.Params) && valTypesEqual(ft.Results, o.Results)
}

func (ft FuncType) String() string {
	return fmt.Sprintf("%v -> %v", ft.Params, ft.Results)
}

func valTypesEqual(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Import is an imported function, memory or global.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes the imported item. Which field is meaningful
// depends on Kind.
type ImportDesc struct {
	Memory  *MemoryType
	Global  *GlobalType
	Kind    byte
	TypeIdx uint32
}

// Limits bounds a memory, in 64KiB pages.
type Limits struct {
	Max *uint32
	Min uint32
}

type MemoryType struct {
	Limits Limits
}

type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a defined global. Init is a constant expression including its
// trailing end opcode.
type Global struct {
	Init []byte
	Type GlobalType
}

type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody is a function body. Code includes the trailing end opcode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// DataSegment is an active segment for memory 0.
type DataSegment struct {
	Offset []byte // constant expression including end
	Init   []byte
}

type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs counts function imports; defined function indices start after them.
func (m *Module) NumImportedFuncs() int {
	return m.countImports(KindFunc)
}

// NumImportedGlobals counts global imports; defined global indices start after them.
func (m *Module) NumImportedGlobals() int {
	return m.countImports(KindGlobal)
}

func (m *Module) NumImportedMemories() int {
	return m.countImports(KindMemory)
}

func (m *Module) countImports(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			n++
		}
	}
	return n
}

// AddType returns the index of ft, appending it if no equal type exists.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// FuncType returns the signature of function index idx, counting imports
// first, or nil if idx is out of range.
func (m *Module) FuncType(idx uint32) *FuncType {
	var typeIdx uint32
	n := uint32(0)
	found := false
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if n == idx {
			typeIdx, found = imp.Desc.TypeIdx, true
			break
		}
		n++
	}
	if !found {
		local := idx - n
		if idx < n || int(local) >= len(m.Funcs) {
			return nil
		}
		typeIdx = m.Funcs[local]
	}
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// Custom returns the first custom section called name.
func (m *Module) Custom(name string) ([]byte, bool) {
	for _, cs := range m.CustomSections {
		if cs.Name == name {
			return cs.Data, true
		}
	}
	return nil, false
}

// Export looks up an export by name.
func (m *Module) Export(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}
