// Package errors provides structured error types for irkit.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: entity path, Go/IR type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBridge, errors.KindShapeMismatch).
//		Path("add", "arg0").
//		GoType("string").
//		IRType("i32").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ArityMismatch(errors.PhaseRuntime, "add", 2, 3)
//	err := errors.AmbiguousDefinition("main", "m1", "m2")
//
// The exported Err* sentinels carry only a Kind and match errors of that Kind
// in any phase:
//
//	if errors.Is(err, irerrors.ErrUnknownFunction) { ... }
//
// Ownership violations (use after dispose, double release) are not errors:
// they panic with *handle.Violation.
package errors
