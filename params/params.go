// Package params provides the named-parameter execution surface for the
// furthest-neighbor search binding: a typed key-value store with
// passed-tracking, and Run, which maps the wire-contract parameter names
// onto kfn.Search.
//
// A Store holds the inputs and outputs of one logical run. Test fixtures
// and callers reuse a store across invocations by clearing the passed flag
// of individual parameters, and must Reset it between independent runs to
// release any owned model handles.
package params

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrUnknownParameter is returned by Get for a name that was never set.
var ErrUnknownParameter = errors.New("unknown parameter")

// ErrTypeMismatch is returned by Get when the stored value does not have
// the requested type.
var ErrTypeMismatch = errors.New("parameter type mismatch")

type entry struct {
	value  any
	passed bool
}

// Store is a registry of named, typed parameters. Each entry tracks
// whether it was explicitly supplied, so a repeated invocation can reuse
// some parameters and withhold others. The zero value is not usable; call
// NewStore.
type Store struct {
	mu      sync.Mutex
	runMu   sync.Mutex // serializes Run invocations on this store
	entries map[string]*entry
}

// NewStore returns an empty parameter store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Set stores a value under name and marks it as passed. The store keeps
// the value itself; large buffers and model handles are shared, not
// copied.
func (s *Store) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = &entry{value: value, passed: true}
}

// Has reports whether name was explicitly supplied and not since cleared.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return ok && e.passed
}

// ClearPassed marks name as not-passed without discarding its value, so a
// later Get still observes it while Run treats it as absent.
func (s *Store) ClearPassed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.passed = false
	}
}

// Reset clears every entry and releases owned resources: any stored value
// with a Close method is closed once, even when registered under several
// names.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	closed := make(map[io.Closer]bool)
	for _, e := range s.entries {
		if c, ok := e.value.(io.Closer); ok && !closed[c] {
			closed[c] = true
			c.Close()
		}
	}
	s.entries = make(map[string]*entry)
}

// Get returns the value stored under name, typed as T. It fails with
// ErrUnknownParameter when the name was never set and with
// ErrTypeMismatch when the stored value has a different type.
func Get[T any](s *Store, name string) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return zero, fmt.Errorf("params: %q: %w", name, ErrUnknownParameter)
	}
	v, ok := e.value.(T)
	if !ok {
		return zero, fmt.Errorf("params: %q holds %T, not %T: %w", name, e.value, zero, ErrTypeMismatch)
	}
	return v, nil
}

// Take is Get with transfer of ownership: the entry is removed from the
// store, so Reset will not release the returned value.
func Take[T any](s *Store, name string) (T, error) {
	v, err := Get[T](s, name)
	if err == nil {
		s.mu.Lock()
		delete(s.entries, name)
		s.mu.Unlock()
	}
	return v, err
}
