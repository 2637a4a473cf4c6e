package queue

import (
	"container/list"
	"context"
	"sync"

	"github.com/mitdave95/luma-interview/pkg/models"
)

// MemorySet is an in-process Set guarded by a single mutex.
type MemorySet struct {
	mu      sync.Mutex
	classes map[models.Priority]*list.List
	index   map[string]*list.Element
}

func NewMemorySet() *MemorySet {
	s := &MemorySet{
		classes: make(map[models.Priority]*list.List, len(models.Priorities)),
		index:   make(map[string]*list.Element),
	}
	for _, p := range models.Priorities {
		s.classes[p] = list.New()
	}
	return s
}

func (s *MemorySet) Push(_ context.Context, e Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.classes[e.Priority]
	if !ok {
		return 0, ErrUnknownPriority
	}
	if _, dup := s.index[e.JobID]; dup {
		return 0, ErrDuplicate
	}

	// Entries almost always arrive in timestamp order, so search from the back.
	mark := l.Back()
	for mark != nil && mark.Value.(Entry).EnqueuedAt.After(e.EnqueuedAt) {
		mark = mark.Prev()
	}
	var el *list.Element
	if mark == nil {
		el = l.PushFront(e)
	} else {
		el = l.InsertAfter(e, mark)
	}
	s.index[e.JobID] = el

	pos := 1
	for cur := el.Prev(); cur != nil; cur = cur.Prev() {
		pos++
	}
	return pos, nil
}

func (s *MemorySet) PeekEligible(_ context.Context, p models.Priority, eligible func(Entry) bool) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.classes[p]
	if !ok {
		return Entry{}, false, ErrUnknownPriority
	}
	for el := l.Front(); el != nil; el = el.Next() {
		e := el.Value.(Entry)
		if eligible == nil || eligible(e) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *MemorySet) Take(_ context.Context, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[e.JobID]
	if !ok || el.Value.(Entry).Priority != e.Priority {
		return false, nil
	}
	s.classes[e.Priority].Remove(el)
	delete(s.index, e.JobID)
	return true, nil
}

func (s *MemorySet) Position(_ context.Context, jobID string, p models.Priority) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[jobID]
	if !ok || el.Value.(Entry).Priority != p {
		return 0, false, nil
	}
	pos := 1
	for cur := el.Prev(); cur != nil; cur = cur.Prev() {
		pos++
	}
	return pos, true, nil
}

func (s *MemorySet) Lengths(_ context.Context) (map[models.Priority]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.Priority]int, len(s.classes))
	for p, l := range s.classes {
		out[p] = l.Len()
	}
	return out, nil
}

func (s *MemorySet) Snapshot(_ context.Context, limit int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(Snapshot, len(s.classes))
	for p, l := range s.classes {
		cs := ClassSnapshot{Length: l.Len()}
		for el := l.Front(); el != nil && len(cs.Entries) < limit; el = el.Next() {
			cs.Entries = append(cs.Entries, el.Value.(Entry))
		}
		snap[p] = cs
	}
	return snap, nil
}

var _ Set = (*MemorySet)(nil)
