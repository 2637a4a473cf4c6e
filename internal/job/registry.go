package job

import (
	"sort"
	"sync"

	"github.com/mitdave95/luma-interview/pkg/models"
)

// Filter selects jobs from the registry. Zero fields match everything.
type Filter struct {
	UserID   string
	Statuses []models.JobStatus
}

func (f Filter) match(j models.Job) bool {
	if f.UserID != "" && j.UserID != f.UserID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if j.Status == s {
			return true
		}
	}
	return false
}

// Registry holds live jobs by id.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

func (r *Registry) Add(j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID()]; ok {
		return ErrDuplicate
	}
	r.jobs[j.ID()] = j
	return nil
}

func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j, nil
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// List returns snapshots of matching jobs, newest first.
func (r *Registry) List(f Filter) []models.Job {
	r.mu.RLock()
	live := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		live = append(live, j)
	}
	r.mu.RUnlock()

	out := make([]models.Job, 0, len(live))
	for _, j := range live {
		snap := j.Snapshot()
		if f.match(snap) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

// Count returns the number of jobs matching f.
func (r *Registry) Count(f Filter) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, j := range r.jobs {
		if f.match(j.Snapshot()) {
			n++
		}
	}
	return n
}
