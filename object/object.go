package object

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/irkit/codegen"
	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/handle"
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/wasm"
)

// BitcodeSection is the custom section holding the serialized source module.
const BitcodeSection = "irkit.bitcode"

// Emit lowers m and appends its bitcode so the object can be loaded back
// into a Context.
func Emit(m *ir.Module, opts codegen.Options) ([]byte, error) {
	wm, err := codegen.Lower(m, opts)
	if err != nil {
		return nil, err
	}
	bc, err := m.MarshalBitcode()
	if err != nil {
		return nil, err
	}
	wm.CustomSections = append(wm.CustomSections, wasm.CustomSection{Name: BitcodeSection, Data: bc})
	bin := wm.Encode()
	Logger().Debug("emitted object",
		zap.String("module", m.Name()),
		zap.Int("bytes", len(bin)),
		zap.Int("imports", len(wm.Imports)),
		zap.Int("exports", len(wm.Exports)))
	return bin, nil
}

// WriteFile emits m to path.
func WriteFile(m *ir.Module, path string, opts codegen.Options) error {
	bin, err := Emit(m, opts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, bin, 0o644)
}

// File is a parsed object. It owns the decoded module until Close.
type File struct {
	name string
	size int
	h    *handle.Owned[*wasm.Module]
}

// Parse decodes an object. name is used in errors and logs.
func Parse(name string, data []byte) (*File, error) {
	wm, err := wasm.ParseModuleValidate(data)
	if err != nil {
		return nil, irerrors.Wrap(irerrors.PhaseLoad, irerrors.KindInvalidData, err, "object "+name)
	}
	f := &File{
		name: name,
		size: len(data),
		h: handle.Own(wm, func(context.Context, *wasm.Module) error {
			Logger().Debug("closed object", zap.String("object", name))
			return nil
		}),
	}
	Logger().Debug("parsed object", zap.String("object", name), zap.Int("bytes", len(data)))
	return f, nil
}

// Open reads and parses the object at path.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, irerrors.Wrap(irerrors.PhaseLoad, irerrors.KindNotFound, err, "open object "+path)
	}
	return Parse(path, data)
}

func (f *File) Name() string { return f.name }

// Size is the encoded size in bytes.
func (f *File) Size() int { return f.size }

func (f *File) Lifetime() *handle.Lifetime { return f.h.Lifetime() }

// Close releases the decoded module. Using f afterwards panics.
func (f *File) Close(ctx context.Context) error {
	return f.h.Release(ctx)
}

// Module returns the decoded WebAssembly module. It stays owned by f.
func (f *File) Module() *wasm.Module {
	return f.h.Borrow()
}

// Binary re-encodes the object.
func (f *File) Binary() []byte {
	return f.h.Borrow().Encode()
}

// Section describes a custom section.
type Section struct {
	Name string
	Size int
}

// Sections lists the custom sections in file order.
func (f *File) Sections() []Section {
	wm := f.h.Borrow()
	out := make([]Section, 0, len(wm.CustomSections))
	for _, cs := range wm.CustomSections {
		out = append(out, Section{Name: cs.Name, Size: len(cs.Data)})
	}
	return out
}

// HasBitcode reports whether the object carries a loadable module.
func (f *File) HasBitcode() bool {
	_, ok := f.h.Borrow().Custom(BitcodeSection)
	return ok
}

// Load rebuilds the embedded module inside c. The module belongs to c, not
// to f, and survives Close.
func (f *File) Load(c *ir.Context) (*ir.Module, error) {
	bc, ok := f.h.Borrow().Custom(BitcodeSection)
	if !ok {
		return nil, irerrors.NotFound(irerrors.PhaseLoad, "bitcode section in object", f.name)
	}
	m, err := c.ParseBitcode(bc)
	if err != nil {
		return nil, err
	}
	Logger().Debug("loaded module from object", zap.String("object", f.name), zap.String("module", m.Name()))
	return m, nil
}
