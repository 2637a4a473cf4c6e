package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/mitdave95/luma-interview/internal/tier"
	"github.com/mitdave95/luma-interview/pkg/models"
)

const defaultCleanupInterval = time.Minute

// Memory is an in-process Limiter. Each identity has its own lock; the map
// lock is only held for lookups and eviction.
type Memory struct {
	table           *tier.Table
	now             Clock
	cleanupInterval time.Duration

	mu      sync.RWMutex
	entries map[string]*windowLog
}

type windowLog struct {
	mu       sync.Mutex
	stamps   []time.Time
	lastSeen time.Time
	window   time.Duration
	evicted  bool
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

func WithClock(c Clock) MemoryOption {
	return func(m *Memory) { m.now = c }
}

func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.cleanupInterval = d
		}
	}
}

func NewMemory(table *tier.Table, opts ...MemoryOption) *Memory {
	m := &Memory{
		table:           table,
		now:             time.Now,
		cleanupInterval: defaultCleanupInterval,
		entries:         make(map[string]*windowLog),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Allow(_ context.Context, identityID string, t models.Tier) (Decision, error) {
	return m.check(identityID, t, true), nil
}

func (m *Memory) Peek(_ context.Context, identityID string, t models.Tier) (Decision, error) {
	return m.check(identityID, t, false), nil
}

func (m *Memory) check(identityID string, t models.Tier, record bool) Decision {
	pol := m.table.Lookup(t)
	for {
		w := m.lookup(identityID, record)
		if w == nil {
			now := m.now()
			return Decision{
				Allowed:   true,
				Limit:     pol.RateLimit,
				Remaining: pol.RateLimit,
				ResetAt:   now.Add(pol.Window),
				Window:    pol.Window,
			}
		}

		w.mu.Lock()
		if w.evicted {
			w.mu.Unlock()
			continue
		}
		d := w.decide(m.now(), pol.RateLimit, pol.Window, record)
		w.mu.Unlock()
		return d
	}
}

// lookup returns the log of identityID, creating it when create is set.
func (m *Memory) lookup(identityID string, create bool) *windowLog {
	m.mu.RLock()
	w, ok := m.entries[identityID]
	m.mu.RUnlock()
	if ok || !create {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok = m.entries[identityID]; ok {
		return w
	}
	w = &windowLog{}
	m.entries[identityID] = w
	return w
}

func (w *windowLog) decide(now time.Time, limit int, window time.Duration, record bool) Decision {
	cutoff := now.Add(-window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
	w.window = window

	count := len(w.stamps)
	d := Decision{Limit: limit, Window: window}

	if count < limit {
		d.Allowed = true
		d.Remaining = limit - count
		if record {
			w.stamps = append(w.stamps, now)
			w.lastSeen = now
			d.Remaining--
		}
	}

	if len(w.stamps) > 0 {
		d.ResetAt = w.stamps[0].Add(window)
	} else {
		d.ResetAt = now.Add(window)
	}
	return d
}

// Cleanup evicts identities idle for more than two windows.
func (m *Memory) Cleanup() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, w := range m.entries {
		w.mu.Lock()
		if now.Sub(w.lastSeen) > 2*w.window {
			w.evicted = true
			delete(m.entries, id)
			evicted++
		}
		w.mu.Unlock()
	}
	return evicted
}

// Len returns the number of tracked identities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Run evicts idle identities until ctx is done.
func (m *Memory) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

var _ Limiter = (*Memory)(nil)
