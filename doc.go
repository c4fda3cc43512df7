// Package irkit builds programs in a small SSA intermediate representation
// and runs them on wazero behind ownership rules that are checked at run
// time.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	irkit/
//	├── handle/    Owned and Scoped wrappers for foreign resources
//	├── ir/        Context, Module, Function, BasicBlock, Builder, verifier,
//	│              printer and bitcode
//	├── target/    Target registry, TargetData layouts, TargetMachine
//	├── passes/    PassManager and the optimization pipeline
//	├── codegen/   Lowering of IR modules to WebAssembly
//	├── wasm/      WebAssembly module model, encoder, decoder, validator
//	├── object/    Object files: lowered code plus the embedded module
//	├── engine/    Interpreter and JitEngine, GenericValue
//	├── errors/    Structured error types
//	└── cmd/irrun  Command-line runner
//
// # Quick Start
//
//	target.Initialize()
//	c := ir.NewContext()
//	defer c.Dispose()
//
//	m, _ := c.CreateModule("demo")
//	i32 := c.Int32Type()
//	add, _ := m.AddFunction("add", c.FunctionType(i32, i32, i32))
//	b := ir.NewBuilder(c)
//	b.PositionAtEnd(add.Append("entry"))
//	b.Ret(b.Add(add.Param(0), add.Param(1)))
//
//	ee, err := engine.NewInterpreter(ctx, m)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ee.Close(ctx)
//
//	sum, err := engine.Call[int32](ctx, ee, "add", 2, 3) // 5
//
// # Ownership
//
// A Context owns its modules until an execution engine absorbs them. From
// then on the engine disposes them, and disposing the Context first panics
// with a *handle.Violation. Use after release, double release and wrapping
// the same foreign pointer twice panic the same way. Errors that depend on
// input, such as a wrong argument count or an unresolved symbol, are
// returned as *errors.Error values instead.
//
// # Thread Safety
//
// A Context and everything in it belong to one goroutine. Engines guard
// their module set with a lock; RunFunction blocks the calling goroutine
// until the function returns.
package irkit
