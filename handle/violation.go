package handle

import (
	"fmt"
	"strings"
)

// Violation is the panic value raised when an ownership rule is broken.
type Violation struct {
	Op     string // borrow, release, wrap, parent, resolve
	What   string // name of the lifetime or type involved
	Detail string
}

func (v *Violation) Error() string {
	var b strings.Builder
	b.WriteString("ownership violation: ")
	b.WriteString(v.Op)
	if v.What != "" {
		b.WriteString(" ")
		b.WriteString(v.What)
	}
	if v.Detail != "" {
		b.WriteString(": ")
		b.WriteString(v.Detail)
	}
	return b.String()
}

// Violate panics with a *Violation.
func Violate(op, what, format string, args ...any) {
	panic(&Violation{Op: op, What: what, Detail: fmt.Sprintf(format, args...)})
}

// Recover converts a recovered *Violation into an error; other panics are re-raised.
// It is meant to be called from a deferred function at API boundaries that
// prefer errors over panics (CLI, tests).
func Recover(r any) error {
	if r == nil {
		return nil
	}
	if v, ok := r.(*Violation); ok {
		return v
	}
	panic(r)
}
