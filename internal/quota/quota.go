// Package quota tracks daily and monthly generation usage per identity.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mitdave95/luma-interview/internal/cache"
	"github.com/mitdave95/luma-interview/internal/tier"
	"github.com/mitdave95/luma-interview/pkg/models"
)

const (
	dailyExpiry   = 25 * time.Hour
	monthlyExpiry = 32 * 24 * time.Hour
)

var ErrQuotaExceeded = errors.New("quota exceeded")

// ExceededError carries the numbers behind a quota rejection.
type ExceededError struct {
	QuotaType string
	Limit     int
	Used      int64
	ResetAt   time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded (%d/%d)", e.QuotaType, e.Used, e.Limit)
}

func (e *ExceededError) Unwrap() error { return ErrQuotaExceeded }

// Usage is the current consumption of one identity.
type Usage struct {
	Daily          int64     `json:"daily_used"`
	Monthly        int64     `json:"monthly_used"`
	DailyLimit     int       `json:"daily_limit"`
	DailyRemaining int64     `json:"daily_remaining"`
	ResetAt        time.Time `json:"reset_at"`
}

// Tracker counts usage in a cache.Cache, so the same code serves the Redis
// and in-process backends.
type Tracker struct {
	cache cache.Cache
	table *tier.Table
	now   func() time.Time
}

// NewTracker creates a Tracker. A nil now uses time.Now.
func NewTracker(c cache.Cache, table *tier.Table, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{cache: c, table: table, now: now}
}

// Consume records one generation for identityID. When the daily quota is
// already spent the counter is rolled back and an *ExceededError is returned.
// A failed monthly increment also rolls the daily counter back.
func (t *Tracker) Consume(ctx context.Context, identityID string, tr models.Tier) (Usage, error) {
	now := t.now()
	limit := t.table.Lookup(tr).DailyQuota
	dailyKey := cache.DailyUsageKey(identityID, now)

	daily, err := t.cache.IncrWithExpiry(ctx, dailyKey, dailyExpiry)
	if err != nil {
		return Usage{}, fmt.Errorf("consume daily quota: %w", err)
	}
	if limit != tier.Unlimited && daily > int64(limit) {
		if _, err := t.cache.DecrBy(ctx, dailyKey, 1); err != nil {
			return Usage{}, fmt.Errorf("roll back daily quota: %w", err)
		}
		return Usage{}, &ExceededError{
			QuotaType: "daily",
			Limit:     limit,
			Used:      daily - 1,
			ResetAt:   nextDay(now),
		}
	}

	monthly, err := t.cache.IncrWithExpiry(ctx, cache.MonthlyUsageKey(identityID, now), monthlyExpiry)
	if err != nil {
		if _, rerr := t.cache.DecrBy(ctx, dailyKey, 1); rerr != nil {
			return Usage{}, fmt.Errorf("consume monthly quota: %w (daily rollback: %v)", err, rerr)
		}
		return Usage{}, fmt.Errorf("consume monthly quota: %w", err)
	}
	return t.usage(daily, monthly, limit, now), nil
}

// Refund gives back one generation consumed at the given time.
func (t *Tracker) Refund(ctx context.Context, identityID string, consumedAt time.Time) error {
	dailyKey := cache.DailyUsageKey(identityID, consumedAt)
	if v, err := t.cache.DecrBy(ctx, dailyKey, 1); err != nil {
		return fmt.Errorf("refund daily quota: %w", err)
	} else if v < 0 {
		// The counter expired between consume and refund.
		_, _ = t.cache.IncrWithExpiry(ctx, dailyKey, dailyExpiry)
	}
	monthlyKey := cache.MonthlyUsageKey(identityID, consumedAt)
	if v, err := t.cache.DecrBy(ctx, monthlyKey, 1); err != nil {
		return fmt.Errorf("refund monthly quota: %w", err)
	} else if v < 0 {
		_, _ = t.cache.IncrWithExpiry(ctx, monthlyKey, monthlyExpiry)
	}
	return nil
}

// Usage reports consumption without changing it.
func (t *Tracker) Usage(ctx context.Context, identityID string, tr models.Tier) (Usage, error) {
	now := t.now()
	daily, err := t.read(ctx, cache.DailyUsageKey(identityID, now))
	if err != nil {
		return Usage{}, err
	}
	monthly, err := t.read(ctx, cache.MonthlyUsageKey(identityID, now))
	if err != nil {
		return Usage{}, err
	}
	return t.usage(daily, monthly, t.table.Lookup(tr).DailyQuota, now), nil
}

func (t *Tracker) read(ctx context.Context, key string) (int64, error) {
	raw, found, err := t.cache.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !found {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func (t *Tracker) usage(daily, monthly int64, limit int, now time.Time) Usage {
	u := Usage{
		Daily:          daily,
		Monthly:        monthly,
		DailyLimit:     limit,
		DailyRemaining: -1,
		ResetAt:        nextDay(now),
	}
	if limit != tier.Unlimited {
		u.DailyRemaining = int64(limit) - daily
		if u.DailyRemaining < 0 {
			u.DailyRemaining = 0
		}
	}
	return u
}

func nextDay(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
