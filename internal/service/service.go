// Package service implements admission and job management on top of the
// tier table, quota tracker, scheduler and job registry.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mitdave95/luma-interview/internal/cache"
	"github.com/mitdave95/luma-interview/internal/job"
	"github.com/mitdave95/luma-interview/internal/queue"
	"github.com/mitdave95/luma-interview/internal/quota"
	"github.com/mitdave95/luma-interview/internal/ratelimit"
	"github.com/mitdave95/luma-interview/internal/store"
	"github.com/mitdave95/luma-interview/internal/tier"
	"github.com/mitdave95/luma-interview/internal/video"
	"github.com/mitdave95/luma-interview/pkg/models"
)

const archiveCacheTTL = 5 * time.Minute

// Dispatcher is the part of the dispatch worker the service drives.
type Dispatcher interface {
	Wake()
	Abort(jobID string) bool
}

// Notifier is told that observable state changed.
type Notifier interface {
	Notify()
}

// Watcher is told about every job that reaches a terminal state.
type Watcher interface {
	JobFinished(ctx context.Context, j models.Job)
}

// IdentityLister enumerates the registered identities.
type IdentityLister interface {
	List() []models.Identity
}

// Dependencies holds everything the service needs. Archive, Cache,
// Dispatcher, Notifier, Watcher, Videos and Identities are optional.
type Dependencies struct {
	Tiers      *tier.Table
	Quota      *quota.Tracker
	Limiter    ratelimit.Limiter
	Scheduler  *queue.Scheduler
	Jobs       *job.Registry
	Archive    store.Store
	Cache      cache.Cache
	Dispatcher Dispatcher
	Notifier   Notifier
	Watcher    Watcher
	Videos     *video.Library
	Identities IdentityLister
	Logger     *slog.Logger
	Now        func() time.Time
}

// JobService admits generation requests and manages the resulting jobs.
type JobService struct {
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Dependencies) *JobService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &JobService{deps: deps, logger: logger, now: now}
}

// SetDispatcher attaches the worker after construction; the worker itself
// needs the service's OnTerminal hook.
func (s *JobService) SetDispatcher(d Dispatcher) { s.deps.Dispatcher = d }

// SetNotifier attaches the dashboard publisher after construction.
func (s *JobService) SetNotifier(n Notifier) { s.deps.Notifier = n }

// Submit admits one generation request. The caller has already passed the
// rate limiter. On success the job is queued and its position and estimated
// wait are set on the returned snapshot.
func (s *JobService) Submit(ctx context.Context, id models.Identity, params models.GenerationParams) (models.Job, error) {
	params, err := s.check(id, params)
	if err != nil {
		return models.Job{}, err
	}
	return s.admit(ctx, id, params)
}

// SubmitBatch admits up to MaxBatchSize requests. Every request is validated
// before any is admitted; admission stops at the first failure and the jobs
// admitted so far are returned with the error.
func (s *JobService) SubmitBatch(ctx context.Context, id models.Identity, batch []models.GenerationParams) ([]models.Job, error) {
	policy := s.deps.Tiers.Lookup(id.Tier)
	if !policy.CanBatch {
		return nil, &TierError{
			Feature:  "batch generation",
			Current:  id.Tier,
			Required: s.deps.Tiers.MinimumTier(func(p tier.Policy) bool { return p.CanBatch }),
		}
	}
	if len(batch) == 0 || len(batch) > MaxBatchSize {
		return nil, &ValidationError{Field: "requests", Message: fmt.Sprintf("must contain between 1 and %d items", MaxBatchSize)}
	}

	normalized := make([]models.GenerationParams, len(batch))
	for i, p := range batch {
		n, err := s.check(id, p)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("requests[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		normalized[i] = n
	}

	jobs := make([]models.Job, 0, len(normalized))
	for _, p := range normalized {
		j, err := s.admit(ctx, id, p)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// check applies tier gates and request validation.
func (s *JobService) check(id models.Identity, params models.GenerationParams) (models.GenerationParams, error) {
	policy := s.deps.Tiers.Lookup(id.Tier)
	if !policy.CanGenerate {
		return params, &TierError{
			Feature:  "video generation",
			Current:  id.Tier,
			Required: s.deps.Tiers.MinimumTier(func(p tier.Policy) bool { return p.CanGenerate }),
		}
	}

	params, err := Normalize(params)
	if err != nil {
		return params, err
	}

	if params.Duration > policy.MaxVideoDuration {
		d := params.Duration
		return params, &TierError{
			Feature:  fmt.Sprintf("%d second videos", d),
			Current:  id.Tier,
			Required: s.deps.Tiers.MinimumTier(func(p tier.Policy) bool { return p.CanGenerate && p.MaxVideoDuration >= d }),
			Details: map[string]any{
				"requested_duration": d,
				"max_duration":       policy.MaxVideoDuration,
			},
		}
	}
	return params, nil
}

func (s *JobService) admit(ctx context.Context, id models.Identity, params models.GenerationParams) (models.Job, error) {
	if _, err := s.deps.Quota.Consume(ctx, id.ID, id.Tier); err != nil {
		return models.Job{}, err
	}

	prio := s.deps.Tiers.PriorityFor(id.Tier)
	j := job.New(job.NewID(), id.ID, id.Tier, prio, params)
	if err := s.deps.Jobs.Add(j); err != nil {
		s.refund(ctx, j.Snapshot())
		return models.Job{}, fmt.Errorf("register job: %w", err)
	}

	now := s.now().UTC()
	// Queued before the entry is visible so the worker never sees a pending job.
	if _, err := j.Transition(models.JobStatusQueued, job.At(now)); err != nil {
		// Only Cancel moves a pending job elsewhere, and it already refunded.
		snap := j.Snapshot()
		if snap.Status.Terminal() {
			s.logger.Info("job cancelled before queueing", "job_id", snap.ID, "user_id", id.ID)
			return snap, nil
		}
		s.refund(ctx, snap)
		return models.Job{}, err
	}

	pos, err := s.deps.Scheduler.Enqueue(ctx, queue.Entry{JobID: j.ID(), Priority: prio, EnqueuedAt: now})
	if err != nil {
		if snap, terr := j.Transition(models.JobStatusCancelled, job.WithError("queue unavailable")); terr == nil {
			s.refund(ctx, snap)
		}
		s.logger.Error("enqueue failed", "job_id", j.ID(), "user_id", id.ID, "error", err)
		return models.Job{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	wait, err := s.deps.Scheduler.EstimateWait(ctx, pos, prio)
	if err != nil {
		s.logger.Warn("estimate wait", "job_id", j.ID(), "error", err)
	}
	j.SetQueuePosition(pos, wait)

	snap := j.Snapshot()
	snap.QueuePosition = pos
	snap.EstimatedWait = wait

	s.logger.Info("job created",
		"job_id", snap.ID,
		"user_id", id.ID,
		"priority", prio,
		"position", pos)

	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.Wake()
	}
	s.notify()
	return snap, nil
}

// Get returns a job owned by the caller, falling back to the archive for
// jobs that already left memory.
func (s *JobService) Get(ctx context.Context, id models.Identity, jobID string) (models.Job, error) {
	snap, err := s.lookup(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if snap.UserID != id.ID {
		return models.Job{}, ErrForbidden
	}
	return snap, nil
}

func (s *JobService) lookup(ctx context.Context, jobID string) (models.Job, error) {
	if j, err := s.deps.Jobs.Get(jobID); err == nil {
		snap := j.Snapshot()
		if snap.Status == models.JobStatusQueued {
			s.refreshPosition(ctx, j, &snap)
		}
		return snap, nil
	}
	if s.deps.Archive == nil {
		return models.Job{}, ErrJobNotFound
	}

	key := cache.ArchivedJobKey(jobID)
	if s.deps.Cache != nil {
		if raw, found, err := s.deps.Cache.Get(ctx, key); err == nil && found {
			var cached models.Job
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	archived, err := s.deps.Archive.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Job{}, ErrJobNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("archive lookup: %w", err)
	}

	if s.deps.Cache != nil {
		if raw, err := json.Marshal(archived); err == nil {
			if err := s.deps.Cache.Set(ctx, key, raw, archiveCacheTTL); err != nil {
				s.logger.Warn("cache archived job", "job_id", jobID, "error", err)
			}
		}
	}
	return *archived, nil
}

// refreshPosition updates the position and wait of a queued job.
func (s *JobService) refreshPosition(ctx context.Context, j *job.Job, snap *models.Job) {
	pos, found, err := s.deps.Scheduler.Position(ctx, snap.ID, snap.Priority)
	if err != nil || !found {
		return
	}
	wait, err := s.deps.Scheduler.EstimateWait(ctx, pos, snap.Priority)
	if err != nil {
		return
	}
	j.SetQueuePosition(pos, wait)
	snap.QueuePosition = pos
	snap.EstimatedWait = wait
}

// ListOptions selects a page of the caller's jobs.
type ListOptions struct {
	Page    int
	PerPage int
	Status  models.JobStatus
}

// ListResult is one page of jobs and the total across pages.
type ListResult struct {
	Jobs    []models.Job
	Total   int
	Page    int
	PerPage int
}

// List returns the caller's jobs newest first, live and archived.
func (s *JobService) List(ctx context.Context, id models.Identity, opts ListOptions) (ListResult, error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 20
	}
	if opts.PerPage > 100 {
		opts.PerPage = 100
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return ListResult{}, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", opts.Status)}
	}

	filter := job.Filter{UserID: id.ID}
	if opts.Status != "" {
		filter.Statuses = []models.JobStatus{opts.Status}
	}
	all := s.deps.Jobs.List(filter)
	total := len(all)

	end := opts.Page * opts.PerPage
	if s.deps.Archive != nil {
		archived, archivedTotal, err := s.deps.Archive.ListJobs(ctx, store.JobFilter{
			UserID:   id.ID,
			Statuses: filter.Statuses,
			Limit:    end,
		})
		if err != nil {
			return ListResult{}, fmt.Errorf("list archived jobs: %w", err)
		}
		seen := make(map[string]bool, len(all))
		for _, j := range all {
			seen[j.ID] = true
		}
		total += archivedTotal
		for _, j := range archived {
			if seen[j.ID] {
				total--
				continue
			}
			all = append(all, j)
		}
		sort.Slice(all, func(a, b int) bool {
			if all[a].CreatedAt.Equal(all[b].CreatedAt) {
				return all[a].ID > all[b].ID
			}
			return all[a].CreatedAt.After(all[b].CreatedAt)
		})
	}

	start := (opts.Page - 1) * opts.PerPage
	page := []models.Job{}
	if start < len(all) {
		if end > len(all) {
			end = len(all)
		}
		page = all[start:end]
	}
	return ListResult{Jobs: page, Total: total, Page: opts.Page, PerPage: opts.PerPage}, nil
}

// Cancel cancels a queued or processing job owned by the caller. A queued
// job leaves its queue; a processing job has its execution aborted and its
// eventual outcome discarded.
func (s *JobService) Cancel(ctx context.Context, id models.Identity, jobID string) (models.Job, error) {
	j, err := s.deps.Jobs.Get(jobID)
	if err != nil {
		// Archived jobs are terminal.
		if archived, aerr := s.lookup(ctx, jobID); aerr == nil {
			if archived.UserID != id.ID {
				return models.Job{}, ErrForbidden
			}
			return models.Job{}, &NotCancellableError{JobID: jobID, Status: archived.Status}
		}
		return models.Job{}, ErrJobNotFound
	}
	if j.UserID() != id.ID {
		return models.Job{}, ErrForbidden
	}

	snap := j.Snapshot()
	if !job.CanTransition(snap.Status, models.JobStatusCancelled) {
		return models.Job{}, &NotCancellableError{JobID: jobID, Status: snap.Status}
	}

	if snap.Status == models.JobStatusQueued {
		if _, err := s.deps.Scheduler.Remove(ctx, jobID, snap.Priority); err != nil {
			s.logger.Warn("remove cancelled job from queue", "job_id", jobID, "error", err)
		}
	}

	final, err := j.Transition(models.JobStatusCancelled, job.At(s.now()))
	if err != nil {
		return models.Job{}, &NotCancellableError{JobID: jobID, Status: j.Status()}
	}
	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.Abort(jobID)
	}

	s.logger.Info("job cancelled", "job_id", jobID, "user_id", id.ID, "from", snap.Status)
	s.OnTerminal(ctx, final)
	s.notify()
	return final, nil
}

// OnTerminal is called once per job reaching a terminal state. Jobs that did
// not produce a video give their quota back.
func (s *JobService) OnTerminal(ctx context.Context, j models.Job) {
	switch j.Status {
	case models.JobStatusFailed, models.JobStatusCancelled, models.JobStatusExpired:
		s.refund(ctx, j)
	}
	if s.deps.Watcher != nil {
		s.deps.Watcher.JobFinished(ctx, j)
	}
}

func (s *JobService) refund(ctx context.Context, j models.Job) {
	if err := s.deps.Quota.Refund(ctx, j.UserID, j.CreatedAt); err != nil {
		s.logger.Warn("quota refund failed", "job_id", j.ID, "user_id", j.UserID, "error", err)
	}
}

func (s *JobService) notify() {
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify()
	}
}
