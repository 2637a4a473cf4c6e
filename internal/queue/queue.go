// Package queue holds waiting generation jobs in one FIFO per priority class
// and decides which class is served next.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/mitdave95/luma-interview/pkg/models"
)

var (
	// ErrEmpty is returned by DequeueNext when no class has an eligible entry.
	ErrEmpty = errors.New("queue: no eligible entry")
	// ErrDuplicate is returned when a job already has a live entry.
	ErrDuplicate = errors.New("queue: job already enqueued")
	// ErrUnknownPriority is returned for entries outside the known classes.
	ErrUnknownPriority = errors.New("queue: unknown priority")
)

// Entry is a waiting job.
type Entry struct {
	JobID      string
	Priority   models.Priority
	EnqueuedAt time.Time
}

// ClassSnapshot is the state of one class at a single instant.
type ClassSnapshot struct {
	Length  int
	Entries []Entry
}

// Snapshot maps every class to its state. All classes are read atomically.
type Snapshot map[models.Priority]ClassSnapshot

// Total returns the number of waiting entries across classes.
func (s Snapshot) Total() int {
	n := 0
	for _, c := range s {
		n += c.Length
	}
	return n
}

// Set stores waiting entries. Within a class entries are ordered by
// EnqueuedAt, oldest first. Implementations must be safe for concurrent use.
type Set interface {
	// Push adds e and returns its 1-based position in its class.
	Push(ctx context.Context, e Entry) (int, error)
	// PeekEligible returns the oldest entry of class p accepted by eligible
	// without removing it. A nil eligible accepts everything.
	PeekEligible(ctx context.Context, p models.Priority, eligible func(Entry) bool) (Entry, bool, error)
	// Take removes e if it is still waiting. It reports false when another
	// consumer removed it first.
	Take(ctx context.Context, e Entry) (bool, error)
	// Position returns the 1-based position of a waiting job.
	Position(ctx context.Context, jobID string, p models.Priority) (int, bool, error)
	Lengths(ctx context.Context) (map[models.Priority]int, error)
	// Snapshot returns lengths and up to limit entries of every class.
	Snapshot(ctx context.Context, limit int) (Snapshot, error)
}
