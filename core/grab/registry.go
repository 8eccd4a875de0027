package grab

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Registry is the set of grabs in flight, keyed by grab ID.
type Registry struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]time.Time)}
}

// TryAcquire registers id and reports whether it was not registered yet.
func (r *Registry) TryAcquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = time.Now()
	return true
}

// Release removes id.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// List returns the registered IDs, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	ids := lo.Keys(r.ids)
	r.mu.Unlock()
	slices.Sort(ids)
	return ids
}
