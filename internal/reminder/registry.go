package reminder

import (
	"sync"
	"time"
)

// Registry holds the task set of the most recent scan. The engine replaces
// it once per pass; other goroutines (the completion handler) read it
// through Lookup and Snapshot.
type Registry struct {
	mu      sync.RWMutex
	tasks   []Task
	byID    map[string]int
	scanned time.Time
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]int{}}
}

// Replace swaps in a new scan result.
func (r *Registry) Replace(tasks []Task, at time.Time) {
	cp := append([]Task(nil), tasks...)
	idx := make(map[string]int, len(cp))
	for i, t := range cp {
		// first occurrence wins for duplicated lines
		if _, ok := idx[t.ID()]; !ok {
			idx[t.ID()] = i
		}
	}
	r.mu.Lock()
	r.tasks = cp
	r.byID = idx
	r.scanned = at
	r.mu.Unlock()
}

// Lookup finds a task of the last scan by id.
func (r *Registry) Lookup(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return Task{}, false
	}
	return r.tasks[i], true
}

// Snapshot returns a copy of the last scan and its time.
func (r *Registry) Snapshot() ([]Task, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Task(nil), r.tasks...), r.scanned
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
