package snapper

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStorageInUse is returned when constructing a Snapper over a storage
// identifier already bound to another live Snapper.
var ErrStorageInUse = errors.New("storage is already in use by another snapper")

// Registry tracks the storage identifiers currently bound to live Snapper
// instances. It protects the single-writer assumption of the durable-write
// worker: no two live Snappers may share one underlying storage resource.
//
// Registries are injectable so tests can run isolated; production code
// normally shares DefaultRegistry.
type Registry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// DefaultRegistry is the process-wide registry used when none is configured.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]struct{})}
}

// Acquire atomically checks and inserts an identifier. Returns
// ErrStorageInUse when it is already held.
func (r *Registry) Acquire(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[id]; ok {
		return fmt.Errorf("%w: %s", ErrStorageInUse, id)
	}
	r.active[id] = struct{}{}
	return nil
}

// Release removes an identifier. Releasing an identifier that is not held is
// a no-op.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}
