package strategy

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Record is the bookkeeping kept for an active strategy.
type Record struct {
	ID           string
	StartTime    time.Time
	CompleteData map[string]any
}

// Registry holds the active strategies for the lifetime of the process.
// Nothing is persisted: a restarted server starts empty and clients
// reconcile by sending apply/stop again.
//
// Concurrent applies for the same id are last-writer-wins in whatever
// order they reach the lock; no request ordering across connections is
// implied.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// Apply inserts or replaces the record for id. replaced reports whether a
// record already existed.
func (r *Registry) Apply(id string, data map[string]any, at time.Time) (rec Record, replaced bool) {
	rec = Record{
		ID:           id,
		StartTime:    at,
		CompleteData: maps.Clone(data), // the caller keeps ownership of data
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced = r.records[id]
	r.records[id] = rec
	return rec, replaced
}

// Stop removes the record for id. Removing an unknown id is not an error;
// ok is false in that case.
func (r *Registry) Stop(id string) (rec Record, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok = r.records[id]
	delete(r.records, id)
	return rec, ok
}

func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// IDs returns the active strategy ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := slices.Collect(maps.Keys(r.records))
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}
