package wasm

import (
	"fmt"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/wasm/internal/binary"
)

// MaxPages is the page limit of a 32-bit memory.
const MaxPages = 65536

// Validate checks index references and limits. It does not type-check
// function bodies; the runtime does that on compile.
func (m *Module) Validate() error {
	for _, check := range []func() error{
		m.validateTypeIndices,
		m.validateMemories,
		m.validateGlobals,
		m.validateExports,
		m.validateCodeCount,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ParseModuleValidate parses data and validates the result.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func invalid(path string, format string, args ...any) error {
	return irerrors.InvalidData(irerrors.PhaseParse, []string{"wasm", path}, fmt.Sprintf(format, args...))
}

func (m *Module) validateTypeIndices() error {
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && int(imp.Desc.TypeIdx) >= len(m.Types) {
			return invalid("import", "import %d (%s.%s) references type %d of %d", i, imp.Module, imp.Name, imp.Desc.TypeIdx, len(m.Types))
		}
	}
	for i, idx := range m.Funcs {
		if int(idx) >= len(m.Types) {
			return invalid("function", "function %d references type %d of %d", i, idx, len(m.Types))
		}
	}
	return nil
}

func (m *Module) validateMemories() error {
	if total := m.NumImportedMemories() + len(m.Memories); total > 1 {
		return invalid("memory", "%d memories, at most one is supported", total)
	}
	check := func(l Limits) error {
		if l.Min > MaxPages {
			return invalid("memory", "minimum %d exceeds %d pages", l.Min, MaxPages)
		}
		if l.Max != nil && (*l.Max > MaxPages || *l.Max < l.Min) {
			return invalid("memory", "maximum %d invalid for minimum %d", *l.Max, l.Min)
		}
		return nil
	}
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory {
			if err := check(imp.Desc.Memory.Limits); err != nil {
				return err
			}
		}
	}
	for _, mem := range m.Memories {
		if err := check(mem.Limits); err != nil {
			return err
		}
	}
	if len(m.Data) > 0 && m.NumImportedMemories()+len(m.Memories) == 0 {
		return invalid("data", "data segments without a memory")
	}
	return nil
}

func (m *Module) validateGlobals() error {
	imported := m.NumImportedGlobals()
	for i, g := range m.Globals {
		if len(g.Init) == 0 || g.Init[len(g.Init)-1] != OpEnd {
			return invalid("global", "global %d has no initializer", i)
		}
		if g.Init[0] == OpGlobalGet {
			idx, err := binary.NewReader(g.Init[1:]).ReadU32()
			if err != nil || int(idx) >= imported {
				return invalid("global", "global %d initializer reads non-imported global %d", i, idx)
			}
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]bool, len(m.Exports))
	for _, e := range m.Exports {
		if seen[e.Name] {
			return invalid("export", "duplicate export %q", e.Name)
		}
		seen[e.Name] = true
		var limit int
		switch e.Kind {
		case KindFunc:
			limit = m.NumImportedFuncs() + len(m.Funcs)
		case KindMemory:
			limit = m.NumImportedMemories() + len(m.Memories)
		case KindGlobal:
			limit = m.NumImportedGlobals() + len(m.Globals)
		default:
			return invalid("export", "export %q has unsupported kind %d", e.Name, e.Kind)
		}
		if int(e.Idx) >= limit {
			return invalid("export", "export %q index %d out of range (%d)", e.Name, e.Idx, limit)
		}
	}
	return nil
}

func (m *Module) validateCodeCount() error {
	if len(m.Code) != len(m.Funcs) {
		return invalid("code", "%d bodies for %d functions", len(m.Code), len(m.Funcs))
	}
	return nil
}
