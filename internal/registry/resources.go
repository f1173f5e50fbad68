package registry

import (
	"fmt"
	"sync"
)

// Resources is the handle shared by every span of one group on one host.
// Factories store their clients here and span methods look them up by name.
//
// The map itself is guarded; values stored in it must be safe for concurrent
// use on their own.
type Resources struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewResources returns an empty handle.
func NewResources() *Resources {
	return &Resources{values: make(map[string]any)}
}

// Set stores a value under name, replacing any previous value.
func (r *Resources) Set(name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = v
}

// Get returns the value stored under name.
func (r *Resources) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok
}

// Lookup returns the value stored under name as a T.
func Lookup[T any](r *Resources, name string) (T, error) {
	var zero T
	v, ok := r.Get(name)
	if !ok {
		return zero, fmt.Errorf("resource '%s' is not available", name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("resource '%s' has type %T, want %T", name, v, zero)
	}
	return t, nil
}
