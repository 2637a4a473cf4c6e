package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mitdave95/luma-interview/pkg/models"
)

// Stats are the accounting counters of one class. For every class
// Enqueued == Dequeued + Removed + current length.
type Stats struct {
	Enqueued int64 `json:"enqueued"`
	Dequeued int64 `json:"dequeued"`
	Removed  int64 `json:"removed"`
}

// perJobEstimate is the assumed generation time of a single job when
// estimating queue wait.
const perJobEstimate = 30 * time.Second

// takeAttempts bounds how often DequeueNext retries after losing an entry to
// a concurrent remover.
const takeAttempts = 8

// Scheduler serves the classes of a Set by smooth weighted round robin.
//
// Every call to DequeueNext is one cycle: each class with an eligible entry
// gains its weight in credit, the class with the most credit wins (ties go to
// the heavier class) and is charged the sum of the participating weights.
// Classes without an eligible entry keep their credit untouched.
//
// Enqueue, DequeueNext and Remove are serialized so the counters always
// balance against the set's lengths.
type Scheduler struct {
	set     Set
	weights map[models.Priority]int
	logger  *slog.Logger

	mu      sync.Mutex
	credits map[models.Priority]int
	stats   map[models.Priority]*Stats
}

// NewScheduler creates a scheduler over set. A nil logger uses slog.Default.
func NewScheduler(set Set, weights map[models.Priority]int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		set:     set,
		weights: make(map[models.Priority]int, len(weights)),
		logger:  logger,
		credits: make(map[models.Priority]int, len(models.Priorities)),
		stats:   make(map[models.Priority]*Stats, len(models.Priorities)),
	}
	for _, p := range models.Priorities {
		s.weights[p] = weights[p]
		s.credits[p] = 0
		s.stats[p] = &Stats{}
	}
	return s
}

// Enqueue adds e and returns its 1-based position within its class.
func (s *Scheduler) Enqueue(ctx context.Context, e Entry) (int, error) {
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}
	c, ok := s.stats[e.Priority]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPriority, e.Priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c.Enqueued++
	pos, err := s.set.Push(ctx, e)
	if err != nil {
		c.Enqueued--
		return 0, err
	}
	s.logger.Debug("job enqueued", "job_id", e.JobID, "priority", e.Priority, "position", pos)
	return pos, nil
}

// DequeueNext removes and returns the next entry to run. Entries rejected by
// eligible stay queued. It never blocks; ErrEmpty means nothing is eligible.
func (s *Scheduler) DequeueNext(ctx context.Context, eligible func(Entry) bool) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < takeAttempts; attempt++ {
		heads := make(map[models.Priority]Entry, len(models.Priorities))
		for _, p := range models.Priorities {
			e, ok, err := s.set.PeekEligible(ctx, p, eligible)
			if err != nil {
				return Entry{}, err
			}
			if ok {
				heads[p] = e
			}
		}
		if len(heads) == 0 {
			return Entry{}, ErrEmpty
		}

		next := make(map[models.Priority]int, len(s.credits))
		total := 0
		for p, c := range s.credits {
			next[p] = c
		}
		for p := range heads {
			next[p] += s.weights[p]
			total += s.weights[p]
		}

		var winner models.Priority
		for _, p := range models.Priorities {
			if _, ok := heads[p]; !ok {
				continue
			}
			if winner == "" || next[p] > next[winner] {
				winner = p
			}
		}
		next[winner] -= total

		e := heads[winner]
		taken, err := s.set.Take(ctx, e)
		if err != nil {
			return Entry{}, err
		}
		if !taken {
			continue
		}
		s.credits = next
		s.stats[winner].Dequeued++
		return e, nil
	}
	return Entry{}, ErrEmpty
}

// Remove drops a waiting job, for example on cancel or expiry. It reports
// whether an entry was removed.
func (s *Scheduler) Remove(ctx context.Context, jobID string, p models.Priority) (bool, error) {
	c, ok := s.stats[p]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPriority, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.set.Take(ctx, Entry{JobID: jobID, Priority: p})
	if err != nil {
		return false, err
	}
	if removed {
		c.Removed++
	}
	return removed, nil
}

// Position returns the 1-based position of a waiting job within its class.
func (s *Scheduler) Position(ctx context.Context, jobID string, p models.Priority) (int, bool, error) {
	return s.set.Position(ctx, jobID, p)
}

// EstimateWait approximates how long a job at pos in class p will wait.
// Lighter classes also wait for a share of the heavier ones.
func (s *Scheduler) EstimateWait(ctx context.Context, pos int, p models.Priority) (time.Duration, error) {
	lengths, err := s.set.Lengths(ctx)
	if err != nil {
		return 0, fmt.Errorf("estimate wait: %w", err)
	}
	ahead := pos - 1
	if ahead < 0 {
		ahead = 0
	}
	switch p {
	case models.PriorityNormal:
		ahead += lengths[models.PriorityCritical] * 3 / 10
		ahead += lengths[models.PriorityHigh] * 3 / 20
	case models.PriorityHigh:
		ahead += lengths[models.PriorityCritical] / 2
	}
	return time.Duration(ahead) * perJobEstimate, nil
}

func (s *Scheduler) Lengths(ctx context.Context) (map[models.Priority]int, error) {
	return s.set.Lengths(ctx)
}

// Snapshot returns an atomic view of every class with up to limit entries each.
func (s *Scheduler) Snapshot(ctx context.Context, limit int) (Snapshot, error) {
	return s.set.Snapshot(ctx, limit)
}

// Stats returns the accounting counters of every class.
func (s *Scheduler) Stats() map[models.Priority]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyStats()
}

// Accounting returns the counters and lengths of every class read at one
// instant, so Enqueued == Dequeued + Removed + length holds for the result.
func (s *Scheduler) Accounting(ctx context.Context) (map[models.Priority]Stats, map[models.Priority]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lengths, err := s.set.Lengths(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s.copyStats(), lengths, nil
}

func (s *Scheduler) copyStats() map[models.Priority]Stats {
	out := make(map[models.Priority]Stats, len(s.stats))
	for p, c := range s.stats {
		out[p] = *c
	}
	return out
}

// Weights returns a copy of the class weights.
func (s *Scheduler) Weights() map[models.Priority]int {
	out := make(map[models.Priority]int, len(s.weights))
	for p, w := range s.weights {
		out[p] = w
	}
	return out
}

// IsEmpty reports whether err means nothing was eligible.
func IsEmpty(err error) bool { return errors.Is(err, ErrEmpty) }
