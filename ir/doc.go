// Package ir is an SSA intermediate representation in the style of LLVM IR.
//
// A Context owns everything built in it: types, constants, modules and their
// functions, blocks and instructions. Every entity keeps only the Context's
// identifier and resolves it on demand, so a disposed Context makes all its
// entities unusable: any access panics with a *handle.Violation.
//
//	target.Initialize()
//	ctx := ir.NewContext()
//	defer ctx.Dispose()
//
//	m, _ := ctx.CreateModule("add")
//	i32 := ctx.IntType(32)
//	fn, _ := m.AddFunction("add", ctx.FunctionType(i32, i32, i32))
//	b := ir.NewBuilder(ctx)
//	b.PositionAtEnd(fn.Append("entry"))
//	b.Ret(b.Add(fn.Param(0), fn.Param(1)))
//	if err := m.Verify(); err != nil { ... }
//
// Builders never validate what they append; Verify reports every problem it
// finds in one pass.
//
// A Context is confined to one goroutine at a time.
package ir
