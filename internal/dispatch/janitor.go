package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/mitdave95/luma-interview/internal/job"
	"github.com/mitdave95/luma-interview/internal/queue"
	"github.com/mitdave95/luma-interview/internal/tier"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// Archiver stores finished jobs before they leave memory.
type Archiver interface {
	ArchiveJobs(ctx context.Context, jobs []models.Job) error
}

// JanitorConfig controls the janitor. A zero Retention keeps finished jobs
// forever.
type JanitorConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// Janitor expires jobs that waited longer than their tier allows and evicts
// finished jobs past the retention period.
type Janitor struct {
	scheduler  *queue.Scheduler
	jobs       *job.Registry
	tiers      *tier.Table
	archiver   Archiver
	notifier   Notifier
	onTerminal TerminalFunc
	cfg        JanitorConfig
	now        func() time.Time
	logger     *slog.Logger
}

type JanitorOption func(*Janitor)

// WithArchiver archives evicted jobs. Without one they are dropped.
func WithArchiver(a Archiver) JanitorOption {
	return func(j *Janitor) { j.archiver = a }
}

func WithJanitorClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) { j.now = now }
}

// NewJanitor builds a janitor from the worker dependencies it shares.
func NewJanitor(deps Dependencies, cfg JanitorConfig, opts ...JanitorOption) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		scheduler:  deps.Scheduler,
		jobs:       deps.Jobs,
		tiers:      deps.Tiers,
		notifier:   deps.Notifier,
		onTerminal: deps.OnTerminal,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Expired  int
	Evicted  int
	Archived int
}

// Sweep runs one expiry and one retention pass.
func (j *Janitor) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	res.Expired = j.expire(ctx)
	res.Evicted, res.Archived = j.evict(ctx)
	if res.Expired > 0 || res.Evicted > 0 {
		j.logger.Info("janitor sweep",
			"expired", res.Expired,
			"evicted", res.Evicted,
			"archived", res.Archived)
	}
	return res
}

func (j *Janitor) expire(ctx context.Context) int {
	now := j.now()
	queued := j.jobs.List(job.Filter{Statuses: []models.JobStatus{models.JobStatusQueued}})

	expired := 0
	for _, snap := range queued {
		maxWait := j.tiers.Lookup(snap.Tier).MaxQueueWait
		if maxWait <= 0 || snap.QueuedAt == nil || now.Sub(*snap.QueuedAt) <= maxWait {
			continue
		}

		removed, err := j.scheduler.Remove(ctx, snap.ID, snap.Priority)
		if err != nil {
			j.logger.Error("expire: remove from queue", "job_id", snap.ID, "error", err)
			continue
		}
		if !removed {
			// Dispatched or cancelled concurrently.
			continue
		}

		live, err := j.jobs.Get(snap.ID)
		if err != nil {
			continue
		}
		final, err := live.Transition(models.JobStatusExpired, job.At(now))
		if err != nil {
			continue
		}
		expired++
		j.logger.Info("job expired",
			"job_id", final.ID,
			"user_id", final.UserID,
			"priority", final.Priority,
			"waited", now.Sub(*snap.QueuedAt).String())
		if j.onTerminal != nil {
			j.onTerminal(ctx, final)
		}
	}
	if expired > 0 && j.notifier != nil {
		j.notifier.Notify()
	}
	return expired
}

var terminalStatuses = []models.JobStatus{
	models.JobStatusCompleted,
	models.JobStatusFailed,
	models.JobStatusCancelled,
	models.JobStatusExpired,
}

func (j *Janitor) evict(ctx context.Context) (evicted, archived int) {
	if j.cfg.Retention <= 0 {
		return 0, 0
	}
	cutoff := j.now().Add(-j.cfg.Retention)

	var stale []models.Job
	for _, snap := range j.jobs.List(job.Filter{Statuses: terminalStatuses}) {
		if snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			stale = append(stale, snap)
		}
	}
	if len(stale) == 0 {
		return 0, 0
	}

	if j.archiver != nil {
		if err := j.archiver.ArchiveJobs(ctx, stale); err != nil {
			j.logger.Error("archive finished jobs", "count", len(stale), "error", err)
			return 0, 0
		}
		archived = len(stale)
	}
	for _, snap := range stale {
		j.jobs.Remove(snap.ID)
	}
	return len(stale), archived
}
