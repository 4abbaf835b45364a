// Package registry implements the process-wide Status Registry (spec
// §4.2): a mutex-guarded mapping from task id to its current StatusEntry
// snapshot. Entries are immutable; updates replace rather than mutate, so
// concurrent readers always observe a consistent per-entry snapshot (spec
// §5 Ordering guarantees).
package registry

import (
	"sync"

	"github.com/rescale-labs/taskorc/internal/models"
)

// Registry is a process-lifetime singleton; callers typically construct
// exactly one and share it across the lifecycle, queue, pipeline, and
// progress aggregator.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]models.StatusEntry
	order   []string // insertion order, for snapshot tie-breaking
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]models.StatusEntry),
	}
}

// Put inserts or replaces the status for id. A first Put for id appends it
// to the insertion-order list used by Snapshot's tie-break.
func (r *Registry) Put(id string, status models.StatusEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; !exists {
		r.order = append(r.order, id)
	}
	r.entries[id] = status
}

// Get returns the current status for id. ok is false if id is not present
// (spec §4.2: "the status-message updater ... MUST tolerate a missing id",
// so callers must check ok rather than assume presence).
func (r *Registry) Get(id string) (models.StatusEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entries[id]
	return s, ok
}

// Remove deletes id from the registry. A no-op if id is not present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; !exists {
		return
	}
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns every current entry, ordered by insertion order (spec
// §4.2 tie-break rule).
func (r *Registry) Snapshot() []models.StatusEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.StatusEntry, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.entries[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of tracked task ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Contains reports whether id is currently tracked (spec §3 invariant 1:
// a task id appears in the registry iff admitted and not finalized).
func (r *Registry) Contains(id string) bool {
	_, ok := r.Get(id)
	return ok
}
