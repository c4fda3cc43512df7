// Package codegen lowers IR modules to WebAssembly.
//
// Integers up to 32 bits and pointers become i32, i64 stays i64, float and
// double become f32 and f64. Narrow integers are kept zero-extended in
// their i32 and re-masked after every operation that can carry into the
// high bits.
//
// Every defined function is exported under its IR name. Declared functions
// and globals are imported from ImportModule, which the engine rewrites to
// the defining instance when it links modules together. Globals lower to
// mutable WebAssembly globals and are accessed through load and store;
// pointer loads and stores go through a linear memory exported as
// MemoryExport.
//
//	wm, err := codegen.Lower(m, codegen.Options{})
//	if err != nil {
//		return err
//	}
//	bin := wm.Encode()
package codegen
