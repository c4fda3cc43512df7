package object

import "github.com/wippyai/irkit/wasm"

// SymbolKind classifies an object symbol.
type SymbolKind uint8

const (
	SymbolFunction SymbolKind = iota
	SymbolGlobal
	SymbolMemory
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolFunction:
		return "function"
	case SymbolGlobal:
		return "global"
	case SymbolMemory:
		return "memory"
	}
	return "unknown"
}

// Symbol is a name an object defines or needs. Undefined symbols are
// resolved against other objects when they are linked.
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Defined bool
	// Size is the body size in bytes for functions, the value width for
	// globals and the initial size for memories. Undefined symbols have
	// size zero.
	Size uint64
}

// Symbols lists undefined symbols in import order, then defined symbols in
// export order.
func (f *File) Symbols() []Symbol {
	wm := f.h.Borrow()
	out := make([]Symbol, 0, len(wm.Imports)+len(wm.Exports))
	for _, imp := range wm.Imports {
		s := Symbol{Name: imp.Name}
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			s.Kind = SymbolFunction
		case wasm.KindGlobal:
			s.Kind = SymbolGlobal
		case wasm.KindMemory:
			s.Kind = SymbolMemory
		default:
			continue
		}
		out = append(out, s)
	}
	for _, e := range wm.Exports {
		if s, ok := definedSymbol(wm, e); ok {
			out = append(out, s)
		}
	}
	return out
}

// Symbol looks up a symbol by name. Defined symbols win over undefined ones.
func (f *File) Symbol(name string) (Symbol, bool) {
	var found Symbol
	var ok bool
	for _, s := range f.Symbols() {
		if s.Name != name {
			continue
		}
		if s.Defined {
			return s, true
		}
		found, ok = s, true
	}
	return found, ok
}

func definedSymbol(wm *wasm.Module, e wasm.Export) (Symbol, bool) {
	s := Symbol{Name: e.Name, Defined: true}
	switch e.Kind {
	case wasm.KindFunc:
		s.Kind = SymbolFunction
		imported := uint32(wm.NumImportedFuncs())
		if e.Idx >= imported {
			if i := int(e.Idx - imported); i < len(wm.Code) {
				s.Size = uint64(len(wm.Code[i].Code))
			}
		}
	case wasm.KindGlobal:
		s.Kind = SymbolGlobal
		imported := uint32(wm.NumImportedGlobals())
		if e.Idx >= imported {
			if i := int(e.Idx - imported); i < len(wm.Globals) {
				s.Size = valueSize(wm.Globals[i].Type.ValType)
			}
		}
	case wasm.KindMemory:
		s.Kind = SymbolMemory
		if int(e.Idx) < len(wm.Memories) {
			s.Size = uint64(wm.Memories[e.Idx].Limits.Min) * 65536
		}
	default:
		return s, false
	}
	return s, true
}

func valueSize(vt wasm.ValType) uint64 {
	switch vt {
	case wasm.ValI64, wasm.ValF64:
		return 8
	}
	return 4
}
