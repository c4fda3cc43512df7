// Package handle makes ownership of foreign resources checkable at run time.
//
// Three wrappers cover the ways a foreign pointer can be held:
//
//	Owned[T]      - exclusive owner; Release frees the pointee exactly once
//	Scoped[T, P]  - lives inside a parent P; either frees the pointee (Adopt)
//	                or only invalidates itself because P frees it (View)
//	Lifetime      - the liveness token every owner exposes
//
// A Scoped child registers a teardown hook on its parent's Lifetime, so ending
// a parent first ends its children in reverse creation order. Any use of a
// handle whose Lifetime (or whose parent's Lifetime) has ended panics with a
// *Violation. Violations are programming errors and are never returned.
//
// The same raw pointer may be wrapped only once at a time, across all three
// wrapper kinds:
//
//	rt := handle.Own(wazero.NewRuntime(ctx), func(ctx context.Context, r wazero.Runtime) error {
//		return r.Close(ctx)
//	})
//	defer rt.Release(ctx)
//
//	cm := handle.Adopt(rt, compiled, func(ctx context.Context, c wazero.CompiledModule) error {
//		return c.Close(ctx)
//	})
package handle
