package handle

import (
	"fmt"
	"sync"
)

var (
	wrappedMu sync.Mutex
	wrapped   = make(map[any]string)
)

func register[T comparable](raw T, kind string) {
	var zero T
	if raw == zero {
		Violate("wrap", typeName(raw), "raw pointer is nil")
	}
	key := any(raw)
	wrappedMu.Lock()
	defer wrappedMu.Unlock()
	if prev, ok := wrapped[key]; ok {
		Violate("wrap", typeName(raw), "already wrapped by %s handle", prev)
	}
	wrapped[key] = kind
}

func unregister[T comparable](raw T) {
	wrappedMu.Lock()
	delete(wrapped, any(raw))
	wrappedMu.Unlock()
}

// Wrapped reports whether raw is currently held by any handle.
func Wrapped[T comparable](raw T) bool {
	wrappedMu.Lock()
	defer wrappedMu.Unlock()
	_, ok := wrapped[any(raw)]
	return ok
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
