package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mitdave95/luma-interview/internal/job"
	"github.com/mitdave95/luma-interview/internal/queue"
	"github.com/mitdave95/luma-interview/internal/quota"
	"github.com/mitdave95/luma-interview/internal/video"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// RateLimitUsage is the caller's current window.
type RateLimitUsage struct {
	Limit         int   `json:"limit"`
	Remaining     int   `json:"remaining"`
	ResetAt       int64 `json:"reset_at"`
	WindowSeconds int   `json:"window_seconds"`
}

// Limits are the caller's tier limits.
type Limits struct {
	MaxConcurrentJobs int  `json:"max_concurrent_jobs"`
	MaxVideoDuration  int  `json:"max_video_duration"`
	CanGenerate       bool `json:"can_generate"`
	CanBatch          bool `json:"can_batch"`
}

// AccountUsage is the caller's quota, rate-limit and job summary.
type AccountUsage struct {
	UserID     string         `json:"user_id"`
	Tier       models.Tier    `json:"tier"`
	RateLimit  RateLimitUsage `json:"rate_limit"`
	Quota      quota.Usage    `json:"quota"`
	ActiveJobs int            `json:"active_jobs"`
	Limits     Limits         `json:"limits"`
	video.Totals
}

var activeStatuses = []models.JobStatus{
	models.JobStatusPending,
	models.JobStatusQueued,
	models.JobStatusProcessing,
}

// Usage reports the caller's consumption without recording a request.
func (s *JobService) Usage(ctx context.Context, id models.Identity) (AccountUsage, error) {
	u, err := s.deps.Quota.Usage(ctx, id.ID, id.Tier)
	if err != nil {
		return AccountUsage{}, fmt.Errorf("quota usage: %w", err)
	}
	policy := s.deps.Tiers.Lookup(id.Tier)

	out := AccountUsage{
		UserID:     id.ID,
		Tier:       id.Tier,
		Quota:      u,
		ActiveJobs: s.deps.Jobs.Count(job.Filter{UserID: id.ID, Statuses: activeStatuses}),
		Limits: Limits{
			MaxConcurrentJobs: policy.MaxConcurrentJobs,
			MaxVideoDuration:  policy.MaxVideoDuration,
			CanGenerate:       policy.CanGenerate,
			CanBatch:          policy.CanBatch,
		},
	}

	if s.deps.Videos != nil {
		out.Totals = s.deps.Videos.Totals(id.ID)
	}
	if out.RateLimit, err = s.rateLimit(ctx, id); err != nil {
		return AccountUsage{}, err
	}
	return out, nil
}

func (s *JobService) rateLimit(ctx context.Context, id models.Identity) (RateLimitUsage, error) {
	if s.deps.Limiter == nil {
		return RateLimitUsage{}, nil
	}
	d, err := s.deps.Limiter.Peek(ctx, id.ID, id.Tier)
	if err != nil {
		return RateLimitUsage{}, fmt.Errorf("rate limit status: %w", err)
	}
	return RateLimitUsage{
		Limit:         d.Limit,
		Remaining:     d.Remaining,
		ResetAt:       d.ResetAt.Unix(),
		WindowSeconds: int(d.Window.Seconds()),
	}, nil
}

// Account is the caller's profile.
type Account struct {
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Tier      models.Tier `json:"tier"`
	CreatedAt time.Time   `json:"created_at"`
	IsActive  bool        `json:"is_active"`
}

func (s *JobService) Account(id models.Identity) Account {
	return Account{
		UserID:    id.ID,
		Email:     id.Email,
		Tier:      id.Tier,
		CreatedAt: id.CreatedAt,
		IsActive:  !id.Disabled,
	}
}

// DailyQuota is the day's allowance. Limit and Remaining are -1 when the
// tier is unlimited.
type DailyQuota struct {
	Limit     int   `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// ConcurrentJobs is how many more jobs the caller may have in flight.
type ConcurrentJobs struct {
	Limit     int `json:"limit"`
	Active    int `json:"active"`
	Available int `json:"available"`
}

// QuotaStatus is the caller's remaining allowance across every limit.
type QuotaStatus struct {
	RateLimit        RateLimitUsage `json:"rate_limit"`
	DailyQuota       DailyQuota     `json:"daily_quota"`
	ConcurrentJobs   ConcurrentJobs `json:"concurrent_jobs"`
	MaxVideoDuration int            `json:"max_video_duration"`
	CanGenerate      bool           `json:"can_generate"`
	CanBatch         bool           `json:"can_batch_generate"`
}

// Quota reports what the caller can still do right now.
func (s *JobService) Quota(ctx context.Context, id models.Identity) (QuotaStatus, error) {
	u, err := s.deps.Quota.Usage(ctx, id.ID, id.Tier)
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("quota usage: %w", err)
	}
	rl, err := s.rateLimit(ctx, id)
	if err != nil {
		return QuotaStatus{}, err
	}
	policy := s.deps.Tiers.Lookup(id.Tier)
	active := s.deps.Jobs.Count(job.Filter{UserID: id.ID, Statuses: activeStatuses})

	out := QuotaStatus{
		RateLimit:        rl,
		DailyQuota:       DailyQuota{Limit: policy.DailyQuota, Used: u.Daily, Remaining: u.DailyRemaining},
		ConcurrentJobs:   ConcurrentJobs{Limit: policy.MaxConcurrentJobs, Active: active},
		MaxVideoDuration: policy.MaxVideoDuration,
		CanGenerate:      policy.CanGenerate,
		CanBatch:         policy.CanBatch,
	}
	if avail := policy.MaxConcurrentJobs - active; avail > 0 {
		out.ConcurrentJobs.Available = avail
	}
	return out, nil
}

// ClassStats describes one priority class.
type ClassStats struct {
	Length int `json:"length"`
	Weight int `json:"weight"`
	queue.Stats
}

// QueueStats is the admin view of the scheduler.
type QueueStats struct {
	Queues      map[models.Priority]ClassStats `json:"queues"`
	TotalQueued int                            `json:"total_queued"`
	Jobs        map[models.JobStatus]int       `json:"jobs"`
}

// QueueStats returns lengths, weights and accounting counters of every class
// plus live job counts by status.
func (s *JobService) QueueStats(ctx context.Context) (QueueStats, error) {
	counters, lengths, err := s.deps.Scheduler.Accounting(ctx)
	if err != nil {
		return QueueStats{}, fmt.Errorf("queue lengths: %w", err)
	}
	weights := s.deps.Scheduler.Weights()

	out := QueueStats{
		Queues: make(map[models.Priority]ClassStats, len(models.Priorities)),
		Jobs:   make(map[models.JobStatus]int),
	}
	for _, p := range models.Priorities {
		out.Queues[p] = ClassStats{Length: lengths[p], Weight: weights[p], Stats: counters[p]}
		out.TotalQueued += lengths[p]
	}
	for _, j := range s.deps.Jobs.List(job.Filter{}) {
		out.Jobs[j.Status]++
	}
	return out, nil
}
