// Package object emits and reads object files: WebAssembly modules lowered
// from IR that also carry the serialized source module in a custom section.
//
//	bin, err := object.Emit(m, codegen.Options{})
//	...
//	f, err := object.Parse("add.wasm", bin)
//	defer f.Close(ctx)
//	for _, s := range f.Symbols() {
//		fmt.Println(s.Kind, s.Name, s.Defined)
//	}
//	m2, err := f.Load(ctx2)
//
// A File owns its decoded module; every accessor panics with a
// *handle.Violation once the file has been closed.
package object
