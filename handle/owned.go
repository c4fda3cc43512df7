package handle

import (
	"context"
	"errors"
)

// Owned is the exclusive owner of a foreign pointer.
type Owned[T comparable] struct {
	raw     T
	release func(context.Context, T) error
	life    *Lifetime
}

// Own wraps raw. release is called exactly once, by Release. A nil release
// means the pointee needs no teardown.
func Own[T comparable](raw T, release func(context.Context, T) error) *Owned[T] {
	register(raw, "owned")
	return &Owned[T]{
		raw:     raw,
		release: release,
		life:    NewLifetime(typeName(raw)),
	}
}

// Borrow returns the raw pointer without transferring ownership.
func (o *Owned[T]) Borrow() T {
	o.life.Check("borrow")
	return o.raw
}

func (o *Owned[T]) Lifetime() *Lifetime {
	return o.life
}

// Alive reports whether Release has not been called.
func (o *Owned[T]) Alive() bool {
	return o.life.Alive()
}

// Release tears down scoped children, then frees the pointee.
func (o *Owned[T]) Release(ctx context.Context) error {
	childErr := o.life.End(ctx)
	unregister(o.raw)
	if o.release == nil {
		return childErr
	}
	return errors.Join(o.release(ctx, o.raw), childErr)
}
