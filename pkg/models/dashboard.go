package models

import "time"

// PromptPreview is the number of prompt characters shown before truncation.
const PromptPreview = 50

// Feed message types pushed to dashboard subscribers.
const (
	FeedConnected = "connected"
	FeedUpdate    = "update"
	FeedError     = "error"
)

// FeedMessage is one frame of the dashboard push feed.
type FeedMessage struct {
	Type      string         `json:"type"`
	Data      *DashboardData `json:"data,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// DashboardData is a consistent snapshot of queues, active jobs and rate
// limit state.
type DashboardData struct {
	Queues      map[Priority]QueueData     `json:"queues"`
	TotalQueued int                        `json:"total_queued"`
	RateLimits  map[string]RateLimitStatus `json:"rate_limits"`
	ActiveJobs  []ActiveJob                `json:"active_jobs"`
}

type QueueData struct {
	Length int        `json:"length"`
	Weight int        `json:"weight"`
	Jobs   []QueueJob `json:"jobs"`
}

// QueueJob describes a waiting entry. EnqueuedAt is unix seconds with a
// fractional part.
type QueueJob struct {
	JobID      string   `json:"job_id"`
	EnqueuedAt float64  `json:"enqueued_at"`
	UserID     string   `json:"user_id,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Priority   Priority `json:"priority,omitempty"`
}

type RateLimitStatus struct {
	UserID        string `json:"user_id"`
	Tier          Tier   `json:"tier"`
	Limit         int    `json:"limit"`
	Remaining     int    `json:"remaining"`
	ResetAt       int64  `json:"reset_at"`
	IsRateLimited bool   `json:"is_rate_limited"`
}

type ActiveJob struct {
	JobID     string   `json:"job_id"`
	UserID    string   `json:"user_id"`
	Status    string   `json:"status"`
	Priority  Priority `json:"priority"`
	CreatedAt string   `json:"created_at"`
	StartedAt *string  `json:"started_at"`
	Progress  *float64 `json:"progress"`
	Prompt    string   `json:"prompt"`
}

// NewActiveJob summarizes a live job. Progress is only set while processing.
func NewActiveJob(j Job) ActiveJob {
	aj := ActiveJob{
		JobID:     j.ID,
		UserID:    j.UserID,
		Status:    string(j.Status),
		Priority:  j.Priority,
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339),
		Prompt:    TruncatePrompt(j.Params.Prompt),
	}
	if j.StartedAt != nil {
		s := j.StartedAt.UTC().Format(time.RFC3339)
		aj.StartedAt = &s
	}
	if j.Status == JobStatusProcessing {
		progress := j.Progress
		aj.Progress = &progress
	}
	return aj
}

func TruncatePrompt(prompt string) string {
	r := []rune(prompt)
	if len(r) <= PromptPreview {
		return prompt
	}
	return string(r[:PromptPreview]) + "..."
}
