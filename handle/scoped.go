package handle

import (
	"context"
	"errors"
)

// Scoped wraps a foreign pointer that lives inside parent P.
type Scoped[T comparable, P Owner] struct {
	raw     T
	parent  P
	release func(context.Context, T) error
	life    *Lifetime
	detach  func()
}

// Adopt makes the wrapper the outer owner of raw: release runs on Release, or
// when parent ends first.
func Adopt[T comparable, P Owner](parent P, raw T, release func(context.Context, T) error) *Scoped[T, P] {
	return scope(parent, raw, release, "adopted")
}

// View wraps raw whose memory is freed by parent. Release only invalidates the
// wrapper.
func View[T comparable, P Owner](parent P, raw T) *Scoped[T, P] {
	return scope(parent, raw, nil, "view")
}

func scope[T comparable, P Owner](parent P, raw T, release func(context.Context, T) error, kind string) *Scoped[T, P] {
	parent.Lifetime().Check("attach")
	register(raw, kind)
	s := &Scoped[T, P]{
		raw:     raw,
		parent:  parent,
		release: release,
		life:    NewLifetime(typeName(raw)),
	}
	s.detach = parent.Lifetime().OnEnd(s.end)
	return s
}

// Borrow returns the raw pointer. It panics if the wrapper or its parent has ended.
func (s *Scoped[T, P]) Borrow() T {
	s.check("borrow")
	return s.raw
}

// Parent returns the non-owning parent.
func (s *Scoped[T, P]) Parent() P {
	s.check("parent")
	return s.parent
}

func (s *Scoped[T, P]) Lifetime() *Lifetime {
	return s.life
}

func (s *Scoped[T, P]) Alive() bool {
	return s.life.Alive() && s.parent.Lifetime().Alive()
}

// Release ends the wrapper before its parent. For adopted pointers the
// pointee is freed; for views nothing happens on the foreign side.
func (s *Scoped[T, P]) Release(ctx context.Context) error {
	s.detach()
	return s.end(ctx)
}

func (s *Scoped[T, P]) check(op string) {
	s.parent.Lifetime().Check(op)
	s.life.Check(op)
}

func (s *Scoped[T, P]) end(ctx context.Context) error {
	childErr := s.life.End(ctx)
	unregister(s.raw)
	if s.release == nil {
		return childErr
	}
	return errors.Join(s.release(ctx, s.raw), childErr)
}
