package job

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// NewID returns a job identifier of the form job_<12 hex chars>.
func NewID() string {
	u := uuid.New()
	return "job_" + hex.EncodeToString(u[:6])
}

// Job is a live job. All reads and writes go through its lock so readers
// only ever observe whole snapshots.
type Job struct {
	mu  sync.Mutex
	rec models.Job
}

// New creates a pending job.
func New(id, userID string, t models.Tier, p models.Priority, params models.GenerationParams) *Job {
	return &Job{rec: models.Job{
		ID:        id,
		UserID:    userID,
		Tier:      t,
		Priority:  p,
		Params:    params,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}}
}

// FromRecord wraps an existing record, for example one loaded from the archive.
func FromRecord(rec models.Job) *Job {
	return &Job{rec: rec}
}

func (j *Job) ID() string { return j.rec.ID }

func (j *Job) UserID() string { return j.rec.UserID }

// Snapshot returns a copy of the current record.
func (j *Job) Snapshot() models.Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rec
}

func (j *Job) Status() models.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rec.Status
}

type transitionParams struct {
	at        time.Time
	resultRef string
	errMsg    string
	position  int
	wait      time.Duration
}

// Option customises a transition.
type Option func(*transitionParams)

// At sets the timestamp recorded by the transition.
func At(t time.Time) Option {
	return func(p *transitionParams) { p.at = t.UTC() }
}

// WithResult sets the result reference of a completed job.
func WithResult(ref string) Option {
	return func(p *transitionParams) { p.resultRef = ref }
}

// WithError sets the error message of a failed, cancelled or expired job.
func WithError(msg string) Option {
	return func(p *transitionParams) { p.errMsg = msg }
}

// WithQueuePosition records the 1-based position and estimated wait of a job
// entering the queue.
func WithQueuePosition(pos int, wait time.Duration) Option {
	return func(p *transitionParams) {
		p.position = pos
		p.wait = wait
	}
}

// Transition moves the job to status to. On success the new snapshot is
// returned; on failure the job is left unchanged and a *TransitionError is
// returned.
func (j *Job) Transition(to models.JobStatus, opts ...Option) (models.Job, error) {
	p := transitionParams{at: time.Now().UTC()}
	for _, opt := range opts {
		opt(&p)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	from := j.rec.Status
	if !CanTransition(from, to) {
		return j.rec, &TransitionError{From: from, To: to}
	}

	at := p.at
	j.rec.Status = to
	if to != models.JobStatusQueued {
		j.rec.QueuePosition = 0
		j.rec.EstimatedWait = 0
	}

	switch to {
	case models.JobStatusQueued:
		j.rec.QueuedAt = &at
		j.rec.QueuePosition = p.position
		j.rec.EstimatedWait = p.wait
	case models.JobStatusProcessing:
		j.rec.StartedAt = &at
		j.rec.Progress = 0
	case models.JobStatusCompleted:
		j.rec.CompletedAt = &at
		j.rec.Progress = 1
		j.rec.ResultRef = p.resultRef
		j.rec.Error = ""
	case models.JobStatusFailed, models.JobStatusCancelled, models.JobStatusExpired:
		j.rec.CompletedAt = &at
		j.rec.ResultRef = ""
		j.rec.Error = p.errMsg
		if j.rec.Error == "" {
			j.rec.Error = defaultMessage(to)
		}
	}

	return j.rec, nil
}

// SetProgress records generation progress. Values are clamped to [0, 1] and
// never move backwards. It reports false when the job is not processing.
func (j *Job) SetProgress(v float64) (models.Job, bool) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.rec.Status != models.JobStatusProcessing {
		return j.rec, false
	}
	if v > j.rec.Progress {
		j.rec.Progress = v
	}
	return j.rec, true
}

// SetQueuePosition refreshes the position of a queued job.
func (j *Job) SetQueuePosition(pos int, wait time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.rec.Status == models.JobStatusQueued {
		j.rec.QueuePosition = pos
		j.rec.EstimatedWait = wait
	}
}

func defaultMessage(s models.JobStatus) string {
	switch s {
	case models.JobStatusCancelled:
		return "cancelled"
	case models.JobStatusExpired:
		return "expired while waiting in queue"
	default:
		return fmt.Sprintf("job %s", s)
	}
}
