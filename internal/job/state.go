// Package job implements the generation job lifecycle: the transition table,
// the lock-guarded live job and the in-process registry of live jobs.
package job

import (
	"errors"
	"fmt"

	"github.com/mitdave95/luma-interview/pkg/models"
)

var (
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrNotFound          = errors.New("job not found")
	ErrDuplicate         = errors.New("job already registered")
)

// TransitionError reports a rejected status change.
type TransitionError struct {
	From models.JobStatus
	To   models.JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move job from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

var validTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending:    {models.JobStatusQueued, models.JobStatusCancelled},
	models.JobStatusQueued:     {models.JobStatusProcessing, models.JobStatusCancelled, models.JobStatusExpired},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to models.JobStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
