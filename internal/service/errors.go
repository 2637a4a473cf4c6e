package service

import (
	"errors"
	"fmt"

	"github.com/mitdave95/luma-interview/pkg/models"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInsufficientTier = errors.New("insufficient tier")
	ErrJobNotFound      = errors.New("job not found")
	ErrForbidden        = errors.New("permission denied")
	ErrNotCancellable   = errors.New("job cannot be cancelled")
	ErrQueueUnavailable = errors.New("queue unavailable")
	ErrVideoNotFound    = errors.New("video not found")
)

// ValidationError reports one rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// TierError is returned when the caller's tier does not include a feature.
type TierError struct {
	Feature  string
	Current  models.Tier
	Required models.Tier
	Details  map[string]any
}

func (e *TierError) Error() string {
	return fmt.Sprintf("%s requires %s tier or higher (current: %s)", e.Feature, e.Required, e.Current)
}

func (e *TierError) Unwrap() error { return ErrInsufficientTier }

// NotCancellableError is returned when cancelling a job that already moved on.
type NotCancellableError struct {
	JobID  string
	Status models.JobStatus
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("job %s cannot be cancelled (current status: %s)", e.JobID, e.Status)
}

func (e *NotCancellableError) Unwrap() error { return ErrNotCancellable }
