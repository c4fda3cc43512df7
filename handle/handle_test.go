package handle

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type resource struct {
	name  string
	freed int
}

func freeResource(log *[]string) func(context.Context, *resource) error {
	return func(_ context.Context, r *resource) error {
		r.freed++
		*log = append(*log, r.name)
		return nil
	}
}

func expectViolation(t *testing.T, op string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected %s violation, got none", op)
		}
		v, ok := r.(*Violation)
		if !ok {
			t.Fatalf("expected *Violation, got %T: %v", r, r)
		}
		if v.Op != op {
			t.Errorf("violation op = %q, want %q (%v)", v.Op, op, v)
		}
	}()
	fn()
}

func TestOwned_ReleaseOnce(t *testing.T) {
	ctx := context.Background()
	var log []string
	r := &resource{name: "rt"}
	h := Own(r, freeResource(&log))

	if h.Borrow() != r {
		t.Fatal("Borrow returned a different pointer")
	}
	if !Wrapped(r) {
		t.Error("resource should be registered while owned")
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if r.freed != 1 {
		t.Errorf("freed %d times, want 1", r.freed)
	}
	if Wrapped(r) {
		t.Error("resource should be unregistered after release")
	}

	expectViolation(t, "release", func() { _ = h.Release(ctx) })
	expectViolation(t, "borrow", func() { h.Borrow() })
	if r.freed != 1 {
		t.Errorf("second release must not free again, freed %d", r.freed)
	}
}

func TestOwned_RejectsNilAndDoubleWrap(t *testing.T) {
	ctx := context.Background()
	expectViolation(t, "wrap", func() { Own[*resource](nil, nil) })

	r := &resource{name: "twice"}
	h := Own(r, nil)
	defer func() { _ = h.Release(ctx) }()

	expectViolation(t, "wrap", func() { Own(r, nil) })
	expectViolation(t, "wrap", func() { View(h, r) })
}

func TestOwned_RewrapAfterRelease(t *testing.T) {
	ctx := context.Background()
	r := &resource{name: "again"}
	if err := Own(r, nil).Release(ctx); err != nil {
		t.Fatal(err)
	}
	h := Own(r, nil)
	if err := h.Release(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestOwned_ReleaseError(t *testing.T) {
	want := errors.New("close failed")
	h := Own(&resource{}, func(context.Context, *resource) error { return want })
	if err := h.Release(context.Background()); !errors.Is(err, want) {
		t.Errorf("Release error = %v, want %v", err, want)
	}
}

func TestReleaseKeepsBothErrors(t *testing.T) {
	ctx := context.Background()
	childErr := errors.New("child close failed")
	parentErr := errors.New("parent close failed")

	parent := Own(&resource{name: "runtime"}, func(context.Context, *resource) error { return parentErr })
	Adopt(parent, &resource{name: "compiled"}, func(context.Context, *resource) error { return childErr })
	err := parent.Release(ctx)
	if !errors.Is(err, parentErr) || !errors.Is(err, childErr) {
		t.Errorf("Owned.Release error = %v, want both errors", err)
	}

	root := Own(&resource{name: "root"}, nil)
	mid := Adopt(root, &resource{name: "mid"}, func(context.Context, *resource) error { return parentErr })
	Adopt(mid, &resource{name: "leaf"}, func(context.Context, *resource) error { return childErr })
	err = mid.Release(ctx)
	if !errors.Is(err, parentErr) || !errors.Is(err, childErr) {
		t.Errorf("Scoped.Release error = %v, want both errors", err)
	}
	if err := root.Release(ctx); err != nil {
		t.Errorf("root Release: %v", err)
	}
}

func TestScoped_ParentEndsChildrenFirst(t *testing.T) {
	ctx := context.Background()
	var log []string
	parent := Own(&resource{name: "runtime"}, freeResource(&log))
	a := Adopt(parent, &resource{name: "a"}, freeResource(&log))
	b := Adopt(parent, &resource{name: "b"}, freeResource(&log))
	view := View(parent, &resource{name: "instance"})

	if err := parent.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got := strings.Join(log, ",")
	if got != "b,a,runtime" {
		t.Errorf("teardown order = %s, want b,a,runtime", got)
	}

	expectViolation(t, "borrow", func() { a.Borrow() })
	expectViolation(t, "borrow", func() { b.Borrow() })
	expectViolation(t, "borrow", func() { view.Borrow() })
	expectViolation(t, "parent", func() { view.Parent() })
}

func TestScoped_AdoptReleasesBeforeParent(t *testing.T) {
	ctx := context.Background()
	var log []string
	parent := Own(&resource{name: "runtime"}, freeResource(&log))
	child := Adopt(parent, &resource{name: "compiled"}, freeResource(&log))

	if child.Parent() != parent {
		t.Error("Parent returned a different owner")
	}
	if err := child.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if err := parent.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(log, ","); got != "compiled,runtime" {
		t.Errorf("teardown = %s, want compiled,runtime", got)
	}
}

func TestScoped_ViewDoesNotFree(t *testing.T) {
	ctx := context.Background()
	var log []string
	parent := Own(&resource{name: "runtime"}, freeResource(&log))
	inst := &resource{name: "instance"}
	v := View(parent, inst)

	if v.Borrow() != inst {
		t.Fatal("Borrow returned a different pointer")
	}
	if err := v.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if inst.freed != 0 {
		t.Error("view release must not free the pointee")
	}
	expectViolation(t, "release", func() { _ = v.Release(ctx) })

	if err := parent.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(log, ","); got != "runtime" {
		t.Errorf("teardown = %s, want runtime", got)
	}
}

func TestScoped_AttachToEndedParent(t *testing.T) {
	ctx := context.Background()
	parent := Own(&resource{}, nil)
	if err := parent.Release(ctx); err != nil {
		t.Fatal(err)
	}
	expectViolation(t, "attach", func() { Adopt(parent, &resource{}, nil) })
}

func TestScoped_Nested(t *testing.T) {
	ctx := context.Background()
	var log []string
	root := Own(&resource{name: "root"}, freeResource(&log))
	mid := Adopt(root, &resource{name: "mid"}, freeResource(&log))
	Adopt(mid, &resource{name: "leaf"}, freeResource(&log))

	if err := root.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(log, ","); got != "leaf,mid,root" {
		t.Errorf("teardown = %s, want leaf,mid,root", got)
	}
}

func TestLifetime(t *testing.T) {
	ctx := context.Background()
	l := NewLifetime("ctx")
	if !l.Alive() {
		t.Fatal("new lifetime should be alive")
	}

	var order []int
	l.OnEnd(func(context.Context) error { order = append(order, 1); return nil })
	cancel := l.OnEnd(func(context.Context) error { order = append(order, 2); return nil })
	l.OnEnd(func(context.Context) error { order = append(order, 3); return errors.New("hook failed") })
	cancel()

	err := l.End(ctx)
	if err == nil || !strings.Contains(err.Error(), "hook failed") {
		t.Errorf("End error = %v, want hook failure", err)
	}
	if len(order) != 2 || order[0] != 3 || order[1] != 1 {
		t.Errorf("hook order = %v, want [3 1]", order)
	}
	if l.Alive() {
		t.Error("lifetime should be ended")
	}
	expectViolation(t, "borrow", func() { l.Check("borrow") })
	expectViolation(t, "release", func() { _ = l.End(ctx) })
}

func TestRecover(t *testing.T) {
	err := func() (err error) {
		defer func() { err = Recover(recover()) }()
		Violate("borrow", "module", "disposed")
		return nil
	}()
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected *Violation, got %v", err)
	}
	if !strings.Contains(v.Error(), "borrow module: disposed") {
		t.Errorf("message = %q", v.Error())
	}
}
