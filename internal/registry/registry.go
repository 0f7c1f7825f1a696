// Package registry holds the process-wide table of mounted bots.
package registry

import (
	"sort"
	"sync"
)

type entry[T any] struct {
	value   T
	mounted bool
}

// Registry maps bot ids to their runtime handle. An entry is either staged
// (mount in progress) or mounted; only mounted entries are visible through
// GetBot, Has and IDs.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[T]

	locksMu sync.Mutex
	locks   map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{
		entries: make(map[string]*entry[T]),
		locks:   make(map[string]*idLock),
	}
}

// Stage registers v under id without making it externally visible.
func (r *Registry[T]) Stage(id string, v T) {
	r.mu.Lock()
	r.entries[id] = &entry[T]{value: v}
	r.mu.Unlock()
}

// SetBot registers v under id as mounted, replacing any previous entry.
func (r *Registry[T]) SetBot(id string, v T) {
	r.mu.Lock()
	r.entries[id] = &entry[T]{value: v, mounted: true}
	r.mu.Unlock()
}

// GetBot returns the mounted handle for id. Absence is not an error.
func (r *Registry[T]) GetBot(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || !e.mounted {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Resolve returns the handle for id whether it is staged or mounted.
func (r *Registry[T]) Resolve(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Has reports whether id is mounted.
func (r *Registry[T]) Has(id string) bool {
	_, ok := r.GetBot(id)
	return ok
}

// RemoveBot drops id. Removing an unknown id is a no-op.
func (r *Registry[T]) RemoveBot(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// IDs returns the mounted bot ids in sorted order.
func (r *Registry[T]) IDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.mounted {
			out = append(out, id)
		}
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of mounted bots.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.mounted {
			n++
		}
	}
	return n
}

// Lock serializes lifecycle transitions for a single id. Different ids never
// contend. The returned func releases the lock.
func (r *Registry[T]) Lock(id string) func() {
	r.locksMu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &idLock{}
		r.locks[id] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.locksMu.Unlock()
	}
}
