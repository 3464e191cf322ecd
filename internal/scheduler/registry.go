package scheduler

import (
	"encoding/json"
	"sync"
)

// Registry remembers which jobs were registered during this process run.
// It is not persisted, so a restart starts empty.
type Registry struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]struct{})}
}

// Has reports whether key was added.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[key]
	return ok
}

// Add records key. It returns false if key was already present.
func (r *Registry) Add(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key]; ok {
		return false
	}
	r.keys[key] = struct{}{}
	return true
}

// Len returns the number of keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// jobKey identifies a job by schedule, target and description. Ranged jobs
// carry the range in the description part.
func jobKey(j *Job) string {
	desc := j.Description
	if j.Range != nil {
		desc += "_range_" + j.Range.String()
	}
	b, _ := json.Marshal(struct {
		S string `json:"s"`
		G string `json:"g"`
		L string `json:"l"`
	}{j.Schedule, j.Target.String(), desc})
	return string(b)
}
