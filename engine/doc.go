// Package engine executes IR modules on wazero.
//
// Two backends implement ExecutionEngine:
//
//	Interpreter - wazero's interpreter; lowers modules as built
//	JitEngine   - wazero's compiler; runs the optimization pipeline for
//	              JitOptions.OptLevel before lowering
//
// A backend owns the modules handed to it. Absorbing a module transfers it
// from its Context to the engine; RemoveModule hands it back and Close
// disposes it. Absorbing a module twice, or disposing its Context while an
// engine holds it, panics with a *handle.Violation.
//
// # Linking
//
// Each module lowers to its own WebAssembly instance. Function and global
// declarations are bound to the definitions of other owned modules by name.
// Every AddModule or RemoveModule links a new set of instances on a fresh
// wazero runtime; exported globals and linear memory of modules present in
// both sets are copied across. Internal globals start over from their
// initializers.
//
// With JitOptions.LazySymbolResolution an unresolved function declaration
// is bound to a stub, and calling it fails with ErrUnresolvedSymbol. The
// interpreter always resolves eagerly.
//
// # Values
//
// RunFunction takes and returns GenericValue. ToGeneric, FromGeneric and the
// Call helper convert between Go scalars and GenericValue, rejecting values
// that do not fit the IR type.
package engine
