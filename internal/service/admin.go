package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/mitdave95/luma-interview/internal/job"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// MaxActiveListed caps the jobs returned by ActiveJobs.
const MaxActiveListed = 50

// RateLimits reports the current window of every registered identity.
func (s *JobService) RateLimits(ctx context.Context) ([]models.RateLimitStatus, error) {
	out := []models.RateLimitStatus{}
	if s.deps.Identities == nil || s.deps.Limiter == nil {
		return out, nil
	}
	for _, id := range s.deps.Identities.List() {
		d, err := s.deps.Limiter.Peek(ctx, id.ID, id.Tier)
		if err != nil {
			return nil, fmt.Errorf("rate limit status for %s: %w", id.ID, err)
		}
		out = append(out, models.RateLimitStatus{
			UserID:        id.ID,
			Tier:          id.Tier,
			Limit:         d.Limit,
			Remaining:     d.Remaining,
			ResetAt:       d.ResetAt.Unix(),
			IsRateLimited: !d.Allowed,
		})
	}
	return out, nil
}

// ActiveJobsView lists processing jobs, most recently started first.
type ActiveJobsView struct {
	Jobs        []models.ActiveJob `json:"active_jobs"`
	TotalActive int                `json:"total_active"`
}

func (s *JobService) ActiveJobs() ActiveJobsView {
	running := s.deps.Jobs.List(job.Filter{Statuses: []models.JobStatus{models.JobStatusProcessing}})
	sort.SliceStable(running, func(a, b int) bool {
		sa, sb := running[a].StartedAt, running[b].StartedAt
		if sa == nil || sb == nil {
			return sb == nil && sa != nil
		}
		return sa.After(*sb)
	})

	out := ActiveJobsView{Jobs: []models.ActiveJob{}, TotalActive: len(running)}
	if len(running) > MaxActiveListed {
		running = running[:MaxActiveListed]
	}
	for _, j := range running {
		out.Jobs = append(out.Jobs, models.NewActiveJob(j))
	}
	return out
}

// UserSummary is an identity with the limits of its tier.
type UserSummary struct {
	UserID           string      `json:"user_id"`
	Email            string      `json:"email"`
	Tier             models.Tier `json:"tier"`
	Disabled         bool        `json:"disabled"`
	RateLimit        int         `json:"rate_limit_per_minute"`
	DailyQuota       int         `json:"daily_quota"`
	CanGenerate      bool        `json:"can_generate"`
	CanBatch         bool        `json:"can_batch_generate"`
	MaxVideoDuration int         `json:"max_video_duration"`
}

// Users lists every registered identity.
func (s *JobService) Users() []UserSummary {
	out := []UserSummary{}
	if s.deps.Identities == nil {
		return out
	}
	for _, id := range s.deps.Identities.List() {
		p := s.deps.Tiers.Lookup(id.Tier)
		out = append(out, UserSummary{
			UserID:           id.ID,
			Email:            id.Email,
			Tier:             id.Tier,
			Disabled:         id.Disabled,
			RateLimit:        p.RateLimit,
			DailyQuota:       p.DailyQuota,
			CanGenerate:      p.CanGenerate,
			CanBatch:         p.CanBatch,
			MaxVideoDuration: p.MaxVideoDuration,
		})
	}
	return out
}
