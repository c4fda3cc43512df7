package handle

import (
	"context"
	"errors"
	"sync"
)

// Owner is anything that can have scoped children.
type Owner interface {
	Lifetime() *Lifetime
}

// Sub is implemented by entities that only exist inside a live parent of kind P.
type Sub[P Owner] interface {
	Owner
	Parent() P
}

type hook struct {
	fn   func(context.Context) error
	done bool
}

// Lifetime tracks whether an owner is still alive and which children must be
// torn down before it ends.
type Lifetime struct {
	name   string
	hooks  []*hook
	mu     sync.Mutex
	ending bool
	ended  bool
}

// NewLifetime returns a live Lifetime. name appears in violation messages.
func NewLifetime(name string) *Lifetime {
	return &Lifetime{name: name}
}

func (l *Lifetime) Name() string {
	return l.name
}

// Alive reports whether End has not been called yet.
func (l *Lifetime) Alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.ended
}

// Check panics if the lifetime has ended.
func (l *Lifetime) Check(op string) {
	l.mu.Lock()
	ended := l.ended
	l.mu.Unlock()
	if ended {
		Violate(op, l.name, "used after it was released")
	}
}

// OnEnd registers fn to run when the lifetime ends. Hooks run in reverse
// registration order. The returned cancel removes the hook; it is safe to call
// more than once.
func (l *Lifetime) OnEnd(fn func(context.Context) error) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended || l.ending {
		Violate("attach", l.name, "parent is no longer alive")
	}
	h := &hook{fn: fn}
	l.hooks = append(l.hooks, h)
	return func() {
		l.mu.Lock()
		h.done = true
		l.mu.Unlock()
	}
}

// End runs the pending hooks newest first and marks the lifetime ended.
// Ending twice panics.
func (l *Lifetime) End(ctx context.Context) error {
	l.mu.Lock()
	if l.ended || l.ending {
		l.mu.Unlock()
		Violate("release", l.name, "released twice")
	}
	l.ending = true
	hooks := l.hooks
	l.hooks = nil
	l.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		l.mu.Lock()
		skip := h.done
		h.done = true
		l.mu.Unlock()
		if skip {
			continue
		}
		if err := h.fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	l.mu.Lock()
	l.ended = true
	l.ending = false
	l.mu.Unlock()
	return errors.Join(errs...)
}
