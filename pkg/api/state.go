package api

import (
	"maps"
	"slices"
	"sync"
)

// Reserved state keys.
const (
	// KeyCancel holds the cooperative cancellation flag.
	KeyCancel = "cancel"
	// KeyError is set to true once a normal-scope step fails.
	KeyError = "error"
)

// ContextParam is the reserved parameter name that asks the binder for the
// whole *State instead of a single value. ContextParamLong is accepted too.
const (
	ContextParam     = "ctx"
	ContextParamLong = "context"
)

// State is the shared key/value context of a workflow. Every step result is
// recorded under the step's name, and steps read their inputs from it.
//
// A single State is shared by reference for the lifetime of a Workflow.
// Steps within a scope never run concurrently, but the mutex keeps reads
// from external monitors and pool branches safe.
type State struct {
	mu     sync.RWMutex
	values map[string]any
	onSet  func(key string, value any)
}

// NewState returns a State seeded with a copy of initial and the reserved
// flags set to false (unless initial overrides them).
func NewState(initial map[string]any) *State {
	s := &State{values: make(map[string]any, len(initial)+2)}
	s.values[KeyCancel] = false
	s.values[KeyError] = false
	maps.Copy(s.values, initial)
	return s
}

// Get returns the value stored under key, or nil.
func (s *State) Get(key string) any {
	v, _ := s.Lookup(key)
	return v
}

// Lookup returns the value stored under key and whether it was present.
func (s *State) Lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	hook := s.onSet
	s.mu.Unlock()

	if hook != nil {
		hook(key, value)
	}
}

// OnSet installs fn to be called after every write made through Set, Merge
// or Cancel. fn runs outside the state lock, on the writing goroutine. A
// nil fn removes the hook. Copies made from a Snapshot do not inherit it.
func (s *State) OnSet(fn func(key string, value any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSet = fn
}

// Delete removes key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Merge copies every entry of values into the state. The write hook sees
// the keys in sorted order.
func (s *State) Merge(values map[string]any) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	maps.Copy(s.values, values)
	hook := s.onSet
	s.mu.Unlock()

	if hook == nil {
		return
	}
	for _, k := range slices.Sorted(maps.Keys(values)) {
		hook(k, values[k])
	}
}

// Keys returns the stored keys in sorted order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Len returns the number of stored keys, reserved flags included.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a shallow copy of the current entries.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Cancel sets the cooperative cancellation flag. Steps already running are
// not interrupted; the scope runner stops before the next step.
func (s *State) Cancel() {
	s.Set(KeyCancel, true)
}

// Cancelled reports whether the cancellation flag is set.
func (s *State) Cancelled() bool {
	return Truthy(s.Get(KeyCancel))
}

// Failed reports whether a normal-scope step has failed.
func (s *State) Failed() bool {
	return Truthy(s.Get(KeyError))
}

// ScopeErrorKey returns the key under which a scope's failure is recorded.
func ScopeErrorKey(scope Scope) string {
	return string(scope) + "_error"
}

// ScopeFailure is the record written to <scope>_error when a step fails and
// its failure escapes the executor.
type ScopeFailure struct {
	Step string
	Err  error
}
