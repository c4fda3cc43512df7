package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBuild    Phase = "build"    // IR construction
	PhaseVerify   Phase = "verify"   // IR verification
	PhaseOptimize Phase = "optimize" // pass pipeline
	PhaseLower    Phase = "lower"    // IR to WASM lowering
	PhaseCompile  Phase = "compile"  // backend code generation
	PhaseLink     Phase = "link"     // symbol resolution across modules
	PhaseRuntime  Phase = "runtime"  // function execution
	PhaseBridge   Phase = "bridge"   // Go value <-> GenericValue
	PhaseLoad     Phase = "load"     // object / bitcode loading
	PhaseParse    Phase = "parse"    // binary parsing
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch        Kind = "type_mismatch"
	KindArityMismatch       Kind = "arity_mismatch"
	KindShapeMismatch       Kind = "shape_mismatch"
	KindUnknownFunction     Kind = "unknown_function"
	KindAmbiguousDefinition Kind = "ambiguous_definition"
	KindUnresolvedSymbol    Kind = "unresolved_symbol"
	KindCompilation         Kind = "compilation"
	KindVerification        Kind = "verification"
	KindTrap                Kind = "trap"
	KindDuplicate           Kind = "duplicate"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindInvalidData         Kind = "invalid_data"
	KindUnsupported         Kind = "unsupported"
	KindOverflow            Kind = "overflow"
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
	KindClosed              Kind = "closed"
)

// Error is the structured error type used throughout irkit
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	IRType string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.IRType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.IRType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", IR type ")
			b.WriteString(e.IRType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("IR type ")
			b.WriteString(e.IRType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.IRType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches errors of its Kind in any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Sentinels for errors.Is matching regardless of phase.
var (
	ErrTypeMismatch        = &Error{Kind: KindTypeMismatch}
	ErrArityMismatch       = &Error{Kind: KindArityMismatch}
	ErrShapeMismatch       = &Error{Kind: KindShapeMismatch}
	ErrUnknownFunction     = &Error{Kind: KindUnknownFunction}
	ErrAmbiguousDefinition = &Error{Kind: KindAmbiguousDefinition}
	ErrUnresolvedSymbol    = &Error{Kind: KindUnresolvedSymbol}
	ErrCompilation         = &Error{Kind: KindCompilation}
	ErrVerification        = &Error{Kind: KindVerification}
	ErrTrap                = &Error{Kind: KindTrap}
	ErrDuplicate           = &Error{Kind: KindDuplicate}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidData         = &Error{Kind: KindInvalidData}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrUnsupported         = &Error{Kind: KindUnsupported}
	ErrClosed              = &Error{Kind: KindClosed}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// IRType sets the IR type name
func (b *Builder) IRType(t string) *Builder {
	b.err.IRType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		IRType: want,
		Detail: fmt.Sprintf("got %s", got),
	}
}

// ArityMismatch creates an argument count mismatch error
func ArityMismatch(phase Phase, fn string, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindArityMismatch,
		Path:   []string{fn},
		Detail: fmt.Sprintf("expected %d arguments, got %d", want, got),
		Value:  got,
	}
}

// ShapeMismatch creates a bridge shape mismatch error
func ShapeMismatch(goType, irType, detail string) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindShapeMismatch,
		GoType: goType,
		IRType: irType,
		Detail: detail,
	}
}

// UnknownFunction creates an unknown function error
func UnknownFunction(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownFunction,
		Path:   []string{name},
		Detail: fmt.Sprintf("function %q is not defined in any absorbed module", name),
	}
}

// AmbiguousDefinition creates a symbol collision error
func AmbiguousDefinition(symbol, first, second string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindAmbiguousDefinition,
		Path:   []string{symbol},
		Detail: fmt.Sprintf("symbol %q defined in both %q and %q", symbol, first, second),
	}
}

// UnresolvedSymbol creates an unresolved symbol error
func UnresolvedSymbol(phase Phase, module, symbol string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnresolvedSymbol,
		Path:   []string{module, symbol},
		Detail: fmt.Sprintf("no absorbed module defines %q", symbol),
	}
}

// Compilation creates a backend compilation failure
func Compilation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompilation,
		Detail: detail,
		Cause:  cause,
	}
}

// Verification creates an IR verification error
func Verification(path []string, format string, args ...any) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindVerification,
		Path:   path,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		IRType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// NotFound creates a not found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   []string{name},
		Detail: what + " not found",
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed creates an error for operations on a closed resource
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Verifications collects every verification problem found in one pass.
type Verifications struct {
	Errors []*Error
}

func (v *Verifications) Add(err *Error) {
	v.Errors = append(v.Errors, err)
}

// Err returns nil when nothing was collected
func (v *Verifications) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

func (v *Verifications) Error() string {
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d verification errors:", len(v.Errors))
	for _, e := range v.Errors {
		b.WriteString("\n  - ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Is lets errors.Is(err, ErrVerification) match a collection.
func (v *Verifications) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	for _, e := range v.Errors {
		if e.Is(t) {
			return true
		}
	}
	return false
}

func (v *Verifications) Unwrap() []error {
	out := make([]error, len(v.Errors))
	for i, e := range v.Errors {
		out[i] = e
	}
	return out
}
