package models

import (
	"fmt"
	"time"
)

// JobStatus is a lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusExpired    JobStatus = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusExpired:
		return true
	}
	return false
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusQueued, JobStatusProcessing,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusExpired:
		return true
	}
	return false
}

// GenerationParams are the caller-supplied generation settings. They are
// opaque to admission and scheduling.
type GenerationParams struct {
	Prompt      string         `json:"prompt"`
	Duration    int            `json:"duration"`
	Resolution  string         `json:"resolution"`
	Style       string         `json:"style,omitempty"`
	AspectRatio string         `json:"aspect_ratio"`
	Model       string         `json:"model"`
	WebhookURL  string         `json:"webhook_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Job is a point-in-time copy of a generation job. Live jobs are owned by the
// job registry; everything else works on copies.
type Job struct {
	ID            string           `db:"id"             json:"job_id"`
	UserID        string           `db:"user_id"        json:"user_id"`
	Tier          Tier             `db:"tier"           json:"tier"`
	Priority      Priority         `db:"priority"       json:"priority"`
	Params        GenerationParams `db:"params"         json:"params"`
	Status        JobStatus        `db:"status"         json:"status"`
	QueuePosition int              `db:"-"              json:"queue_position,omitempty"`
	EstimatedWait time.Duration    `db:"-"              json:"-"`
	Progress      float64          `db:"progress"       json:"progress"`
	ResultRef     string           `db:"result_ref"     json:"video_id,omitempty"`
	Error         string           `db:"error_message"  json:"error,omitempty"`
	CreatedAt     time.Time        `db:"created_at"     json:"created_at"`
	QueuedAt      *time.Time       `db:"queued_at"      json:"queued_at,omitempty"`
	StartedAt     *time.Time       `db:"started_at"     json:"started_at,omitempty"`
	CompletedAt   *time.Time       `db:"completed_at"   json:"completed_at,omitempty"`
}

// FormatWait renders d as an ISO 8601 duration such as PT2M30S.
func FormatWait(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("PT%dM%dS", secs/60, secs%60)
}
