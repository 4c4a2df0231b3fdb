// Package lock provides per-workflow exclusive locks.
//
// Unrelated workflows mutate in parallel while writers of the same workflow are
// serialized. A coarse table lock only guards lookup and insertion of the per-id locks,
// so two racing callers never create two locks for the same id. Per-id locks are never
// removed once created, which is what makes it safe to wait for one after the table lock
// has been released.
package lock

import (
	"sync"
)

// Registry is a table of per-id mutexes.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		locks: make(map[string]*sync.Mutex),
	}
}

// entry returns the lock for id, inserting one under the table lock if absent.
func (r *Registry) entry(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.locks[id]
	if !ok {
		entry = &sync.Mutex{}
		r.locks[id] = entry
	}

	return entry
}

// Lock blocks until the caller holds the exclusive lock for id and returns the function
// that releases it. Waiting for a busy id does not hold the table lock, so other ids keep
// making progress.
func (r *Registry) Lock(id string) (unlock func()) {
	entry := r.entry(id)
	entry.Lock()

	return entry.Unlock
}

// TryLock acquires the lock for id only if it is free.
func (r *Registry) TryLock(id string) (unlock func(), ok bool) {
	entry := r.entry(id)
	if !entry.TryLock() {
		return nil, false
	}

	return entry.Unlock, true
}

// WithLock runs fn while holding the lock for id. The lock is released even if fn panics.
func (r *Registry) WithLock(id string, fn func() error) error {
	unlock := r.Lock(id)
	defer unlock()

	return fn()
}

// Size returns the number of per-id locks created so far.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.locks)
}
