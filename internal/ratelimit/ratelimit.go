// Package ratelimit admits or rejects requests per identity using a sliding
// window log whose size is set by the identity's tier.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/mitdave95/luma-interview/pkg/models"
)

// ErrLimitExceeded is returned by callers that turn a denied Decision into an error.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Window    time.Duration
}

// RetryAfter is how long a denied caller should wait, rounded up to whole
// seconds and never below one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	secs := int64((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// Limiter is implemented by the in-process and Redis-backed limiters.
type Limiter interface {
	// Allow checks and, when admitted, records one request atomically.
	Allow(ctx context.Context, identityID string, t models.Tier) (Decision, error)
	// Peek reports the current state without recording a request.
	Peek(ctx context.Context, identityID string, t models.Tier) (Decision, error)
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time
