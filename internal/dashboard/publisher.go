package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mitdave95/luma-interview/internal/job"
	"github.com/mitdave95/luma-interview/internal/queue"
	"github.com/mitdave95/luma-interview/internal/ratelimit"
	"github.com/mitdave95/luma-interview/pkg/models"
	"golang.org/x/time/rate"
)

const (
	// MaxListed caps the queue entries per class and the active jobs in a snapshot.
	MaxListed = 50
)

var activeStatuses = []models.JobStatus{
	models.JobStatusPending,
	models.JobStatusQueued,
	models.JobStatusProcessing,
}

// IdentityLister enumerates the identities whose rate-limit state is shown.
type IdentityLister interface {
	List() []models.Identity
}

// Config controls broadcast pacing.
type Config struct {
	Tick             time.Duration
	MaxUpdatesPerSec float64
}

// Publisher assembles DashboardData and broadcasts it through a Hub on every
// tick and, rate capped, whenever Notify is called.
type Publisher struct {
	scheduler  *queue.Scheduler
	jobs       *job.Registry
	limiter    ratelimit.Limiter
	identities IdentityLister
	hub        *Hub
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time

	pending chan struct{}
	pace    *rate.Limiter
}

func NewPublisher(
	scheduler *queue.Scheduler,
	jobs *job.Registry,
	limiter ratelimit.Limiter,
	identities IdentityLister,
	hub *Hub,
	cfg Config,
	logger *slog.Logger,
) *Publisher {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.MaxUpdatesPerSec <= 0 {
		cfg.MaxUpdatesPerSec = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		scheduler:  scheduler,
		jobs:       jobs,
		limiter:    limiter,
		identities: identities,
		hub:        hub,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		pending:    make(chan struct{}, 1),
		pace:       rate.NewLimiter(rate.Limit(cfg.MaxUpdatesPerSec), 1),
	}
}

// Notify requests a broadcast. Calls made while one is pending are coalesced.
func (p *Publisher) Notify() {
	select {
	case p.pending <- struct{}{}:
	default:
	}
}

// Hub returns the hub frames are broadcast on.
func (p *Publisher) Hub() *Hub { return p.hub }

// Run broadcasts until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.pending:
			if err := p.pace.Wait(ctx); err != nil {
				return nil
			}
		}
		p.Broadcast(ctx)
	}
}

// Broadcast sends one update frame to every subscriber. Nothing is built
// when nobody is listening.
func (p *Publisher) Broadcast(ctx context.Context) {
	if p.hub.Len() == 0 {
		return
	}
	frame, err := p.UpdateFrame(ctx)
	if err != nil {
		p.logger.Error("build dashboard snapshot", "error", err)
		frame = ErrorFrame("snapshot unavailable")
	}
	if dropped := p.hub.Broadcast(frame); dropped > 0 {
		p.logger.Warn("dropped slow dashboard subscribers", "count", dropped)
	}
}

// UpdateFrame returns an encoded update message with a fresh snapshot.
func (p *Publisher) UpdateFrame(ctx context.Context) ([]byte, error) {
	data, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.FeedMessage{
		Type:      models.FeedUpdate,
		Data:      &data,
		Timestamp: p.now().UTC().Format(time.RFC3339Nano),
	})
}

// ConnectedFrame is the first message sent to a new subscriber.
func ConnectedFrame(now time.Time) []byte {
	b, _ := json.Marshal(models.FeedMessage{Type: models.FeedConnected, Timestamp: now.UTC().Format(time.RFC3339Nano)})
	return b
}

func ErrorFrame(msg string) []byte {
	b, _ := json.Marshal(models.FeedMessage{Type: models.FeedError, Error: msg})
	return b
}

// Snapshot assembles the current dashboard state. Queue contents are read
// atomically; job and rate-limit sections are read right after.
func (p *Publisher) Snapshot(ctx context.Context) (models.DashboardData, error) {
	qs, err := p.scheduler.Snapshot(ctx, MaxListed)
	if err != nil {
		return models.DashboardData{}, fmt.Errorf("queue snapshot: %w", err)
	}

	weights := p.scheduler.Weights()
	data := models.DashboardData{
		Queues:      make(map[models.Priority]models.QueueData, len(models.Priorities)),
		TotalQueued: qs.Total(),
		RateLimits:  make(map[string]models.RateLimitStatus),
		ActiveJobs:  []models.ActiveJob{},
	}

	for _, prio := range models.Priorities {
		cs := qs[prio]
		qd := models.QueueData{Length: cs.Length, Weight: weights[prio], Jobs: make([]models.QueueJob, 0, len(cs.Entries))}
		for _, e := range cs.Entries {
			qj := models.QueueJob{
				JobID:      e.JobID,
				EnqueuedAt: float64(e.EnqueuedAt.UnixMicro()) / 1e6,
				Priority:   prio,
			}
			if j, err := p.jobs.Get(e.JobID); err == nil {
				snap := j.Snapshot()
				qj.UserID = snap.UserID
				qj.Prompt = models.TruncatePrompt(snap.Params.Prompt)
			}
			qd.Jobs = append(qd.Jobs, qj)
		}
		data.Queues[prio] = qd
	}

	active := p.jobs.List(job.Filter{Statuses: activeStatuses})
	if len(active) > MaxListed {
		active = active[:MaxListed]
	}
	for _, j := range active {
		data.ActiveJobs = append(data.ActiveJobs, models.NewActiveJob(j))
	}

	if p.identities != nil && p.limiter != nil {
		for _, id := range p.identities.List() {
			d, err := p.limiter.Peek(ctx, id.ID, id.Tier)
			if err != nil {
				return models.DashboardData{}, fmt.Errorf("rate limit status for %s: %w", id.ID, err)
			}
			data.RateLimits[id.ID] = models.RateLimitStatus{
				UserID:        id.ID,
				Tier:          id.Tier,
				Limit:         d.Limit,
				Remaining:     d.Remaining,
				ResetAt:       d.ResetAt.Unix(),
				IsRateLimited: !d.Allowed,
			}
		}
	}
	return data, nil
}
