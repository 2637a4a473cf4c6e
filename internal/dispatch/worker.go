// Package dispatch drains the priority queues into the generation executor
// and runs the background janitor for expired and finished jobs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mitdave95/luma-interview/internal/generation"
	"github.com/mitdave95/luma-interview/internal/job"
	"github.com/mitdave95/luma-interview/internal/queue"
	"github.com/mitdave95/luma-interview/internal/tier"
	"github.com/mitdave95/luma-interview/internal/video"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// Notifier is told that observable state changed.
type Notifier interface {
	Notify()
}

// VideoRecorder keeps the video a completed job produced.
type VideoRecorder interface {
	Record(v models.Video) error
}

// TerminalFunc is called once for every job that reaches a terminal state.
type TerminalFunc func(ctx context.Context, j models.Job)

// Dependencies holds everything the worker needs.
type Dependencies struct {
	Scheduler  *queue.Scheduler
	Jobs       *job.Registry
	Tiers      *tier.Table
	Executor   generation.Executor
	Notifier   Notifier
	Videos     VideoRecorder
	OnTerminal TerminalFunc
	Logger     *slog.Logger
}

// WorkerConfig bounds the worker.
type WorkerConfig struct {
	MaxInFlight  int
	PollInterval time.Duration
}

// Worker is the single dispatch loop. It pops jobs in scheduler order, runs
// each in its own goroutine and records the outcome on the job.
type Worker struct {
	deps   Dependencies
	cfg    WorkerConfig
	logger *slog.Logger

	sem  chan struct{}
	wake chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	running map[string]int
}

func NewWorker(deps Dependencies, cfg WorkerConfig) *Worker {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		deps:    deps,
		cfg:     cfg,
		logger:  logger,
		sem:     make(chan struct{}, cfg.MaxInFlight),
		wake:    make(chan struct{}, 1),
		cancels: make(map[string]context.CancelFunc),
		running: make(map[string]int),
	}
}

// Wake asks the loop to look at the queues now instead of at the next poll.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Abort cancels the execution context of a running job. It reports whether
// the job was running on this worker.
func (w *Worker) Abort(jobID string) bool {
	w.mu.Lock()
	cancel, ok := w.cancels[jobID]
	w.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// InFlight returns the number of executions in progress.
func (w *Worker) InFlight() int {
	return len(w.sem)
}

// Running returns the number of executions in progress for one owner.
func (w *Worker) Running(userID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running[userID]
}

// Run blocks until ctx is done. In-flight executions are cancelled with ctx
// and awaited before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("dispatch worker started",
		"max_in_flight", w.cfg.MaxInFlight,
		"poll_interval", w.cfg.PollInterval.String(),
		"executor", w.deps.Executor.Name())

	var wg sync.WaitGroup
	defer wg.Wait()

	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()

	for {
		w.drain(ctx, &wg)

		select {
		case <-ctx.Done():
			w.logger.Info("dispatch worker stopping", "in_flight", w.InFlight())
			return nil
		case <-w.wake:
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.cfg.PollInterval)
	}
}

// drain starts as many jobs as there are free slots and eligible entries.
func (w *Worker) drain(ctx context.Context, wg *sync.WaitGroup) {
	for ctx.Err() == nil {
		select {
		case w.sem <- struct{}{}:
		default:
			return
		}

		e, err := w.deps.Scheduler.DequeueNext(ctx, w.eligible)
		if err != nil {
			<-w.sem
			if !queue.IsEmpty(err) && ctx.Err() == nil {
				w.logger.Error("dequeue failed", "error", err)
			}
			return
		}

		j, err := w.deps.Jobs.Get(e.JobID)
		if err != nil {
			<-w.sem
			w.logger.Warn("dequeued unknown job", "job_id", e.JobID)
			continue
		}
		if _, err := j.Transition(models.JobStatusProcessing); err != nil {
			// Cancelled or expired between pop and start.
			<-w.sem
			w.logger.Debug("skipping job", "job_id", e.JobID, "error", err)
			continue
		}
		w.start(ctx, j, wg)
	}
}

// eligible holds back jobs whose owner already runs its tier's maximum.
func (w *Worker) eligible(e queue.Entry) bool {
	j, err := w.deps.Jobs.Get(e.JobID)
	if err != nil {
		return true
	}
	snap := j.Snapshot()
	limit := w.deps.Tiers.Lookup(snap.Tier).MaxConcurrentJobs
	if limit <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running[snap.UserID] < limit
}

func (w *Worker) start(ctx context.Context, j *job.Job, wg *sync.WaitGroup) {
	jctx, cancel := context.WithCancel(ctx)
	id, user := j.ID(), j.UserID()

	w.mu.Lock()
	w.cancels[id] = cancel
	w.running[user]++
	w.mu.Unlock()

	w.logger.Info("job started", "job_id", id, "user_id", user, "priority", j.Snapshot().Priority)
	w.notify()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			cancel()
			w.mu.Lock()
			delete(w.cancels, id)
			if w.running[user]--; w.running[user] <= 0 {
				delete(w.running, user)
			}
			w.mu.Unlock()
			<-w.sem
			w.Wake()
		}()
		w.execute(jctx, j)
	}()
}

func (w *Worker) execute(ctx context.Context, j *job.Job) {
	snap := j.Snapshot()
	started := time.Now()

	res, err := w.generate(ctx, snap, func(p float64) {
		if _, ok := j.SetProgress(p); ok {
			w.notify()
		}
	})

	if err == nil && res.VideoID == "" {
		err = fmt.Errorf("%w: executor returned no video", generation.ErrGenerationFailed)
	}

	var (
		final models.Job
		terr  error
	)
	switch {
	case err == nil:
		final, terr = j.Transition(models.JobStatusCompleted, job.WithResult(res.VideoID))
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		final, terr = j.Transition(models.JobStatusFailed, job.WithError("generation interrupted"))
	default:
		final, terr = j.Transition(models.JobStatusFailed, job.WithError(err.Error()))
	}
	if terr != nil {
		w.logger.Info("discarding outcome of cancelled job", "job_id", snap.ID, "status", j.Status())
		return
	}

	attrs := []any{
		"job_id", final.ID,
		"user_id", final.UserID,
		"status", final.Status,
		"duration_ms", time.Since(started).Milliseconds(),
	}
	if final.Status == models.JobStatusFailed {
		w.logger.Warn("job failed", append(attrs, "error", final.Error)...)
	} else {
		w.logger.Info("job completed", append(attrs, "video_id", final.ResultRef)...)
		w.record(final, res)
	}

	if w.deps.OnTerminal != nil {
		w.deps.OnTerminal(context.WithoutCancel(ctx), final)
	}
	w.notify()
}

func (w *Worker) record(final models.Job, res generation.Result) {
	if w.deps.Videos == nil {
		return
	}
	if err := w.deps.Videos.Record(video.FromResult(final, res, time.Now())); err != nil {
		w.logger.Error("record video failed", "job_id", final.ID, "video_id", res.VideoID, "error", err)
	}
}

// generate calls the executor and turns a panic into a failure.
func (w *Worker) generate(ctx context.Context, snap models.Job, onProgress generation.ProgressFunc) (res generation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("generator panic",
				"job_id", snap.ID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("%w: generator panic: %v", generation.ErrGenerationFailed, r)
		}
	}()
	return w.deps.Executor.Generate(ctx, snap.Params, onProgress)
}

func (w *Worker) notify() {
	if w.deps.Notifier != nil {
		w.deps.Notifier.Notify()
	}
}
