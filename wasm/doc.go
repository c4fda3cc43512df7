// Package wasm encodes and decodes the WebAssembly binary subset that
// lowered IR modules use: function types, function/memory/global imports,
// one linear memory, globals, exports, code, active data segments and
// custom sections.
//
// # Encoding
//
//	m := &wasm.Module{}
//	ti := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}})
//	m.Funcs = append(m.Funcs, ti)
//	code := wasm.NewCode()
//	code.LocalGet(0)
//	code.End()
//	m.Code = append(m.Code, wasm.FuncBody{Code: code.Bytes()})
//	m.Exports = append(m.Exports, wasm.Export{Name: "id", Kind: wasm.KindFunc})
//	bin := m.Encode()
//
// # Parsing
//
//	m, err := wasm.ParseModuleValidate(bin)
//
// Parse errors are *errors.Error values in the parse phase with kind
// invalid_data. Tables, element segments and start functions are skipped
// when parsing and never produced when encoding.
package wasm
