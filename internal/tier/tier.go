// Package tier holds the immutable policy table that maps a caller's tier to
// its rate limit, quota, queue class and feature gates.
package tier

import (
	"fmt"
	"time"

	"github.com/mitdave95/luma-interview/pkg/models"
)

// DefaultWindow is the sliding rate-limit window.
const DefaultWindow = 60 * time.Second

// Unlimited marks a quota with no ceiling.
const Unlimited = -1

// Policy is the per-tier configuration.
type Policy struct {
	RateLimit         int
	Window            time.Duration
	DailyQuota        int
	MaxConcurrentJobs int
	MaxVideoDuration  int
	Priority          models.Priority
	MaxQueueWait      time.Duration
	CanGenerate       bool
	CanBatch          bool
}

// Weights are the per-class dispatch weights.
var Weights = map[models.Priority]int{
	models.PriorityCritical: 10,
	models.PriorityHigh:     5,
	models.PriorityNormal:   1,
}

// DefaultPolicies returns a fresh copy of the built-in tier table.
func DefaultPolicies() map[models.Tier]Policy {
	return map[models.Tier]Policy{
		models.TierFree: {
			RateLimit:    10,
			Window:       DefaultWindow,
			DailyQuota:   100,
			Priority:     models.PriorityNormal,
			MaxQueueWait: 10 * time.Minute,
		},
		models.TierDeveloper: {
			RateLimit:         30,
			Window:            DefaultWindow,
			DailyQuota:        500,
			MaxConcurrentJobs: 3,
			MaxVideoDuration:  30,
			Priority:          models.PriorityNormal,
			MaxQueueWait:      10 * time.Minute,
			CanGenerate:       true,
		},
		models.TierPro: {
			RateLimit:         100,
			Window:            DefaultWindow,
			DailyQuota:        5000,
			MaxConcurrentJobs: 10,
			MaxVideoDuration:  120,
			Priority:          models.PriorityHigh,
			MaxQueueWait:      20 * time.Minute,
			CanGenerate:       true,
			CanBatch:          true,
		},
		models.TierEnterprise: {
			RateLimit:         1000,
			Window:            DefaultWindow,
			DailyQuota:        Unlimited,
			MaxConcurrentJobs: 100,
			MaxVideoDuration:  300,
			Priority:          models.PriorityCritical,
			MaxQueueWait:      30 * time.Minute,
			CanGenerate:       true,
			CanBatch:          true,
		},
	}
}

// Option adjusts the table while it is being built.
type Option func(map[models.Tier]Policy)

// WithWindow sets the rate-limit window of every tier.
func WithWindow(d time.Duration) Option {
	return func(p map[models.Tier]Policy) {
		if d <= 0 {
			return
		}
		for t, pol := range p {
			pol.Window = d
			p[t] = pol
		}
	}
}

// WithMaxQueueWait sets how long a job of tier t may wait before it expires.
// Zero disables expiry for that tier.
func WithMaxQueueWait(t models.Tier, d time.Duration) Option {
	return func(p map[models.Tier]Policy) {
		if pol, ok := p[t]; ok {
			pol.MaxQueueWait = d
			p[t] = pol
		}
	}
}

// Table is a read-only view over the tier policies. It is safe for concurrent
// use because nothing mutates it after New returns.
type Table struct {
	policies map[models.Tier]Policy
}

// New builds a table from the default policies and the given options.
func New(opts ...Option) *Table {
	p := DefaultPolicies()
	for _, opt := range opts {
		opt(p)
	}
	return &Table{policies: p}
}

// FromPolicies builds a table from an explicit policy set. Every tier must be
// present.
func FromPolicies(p map[models.Tier]Policy) (*Table, error) {
	cp := make(map[models.Tier]Policy, len(p))
	for _, t := range models.Tiers {
		pol, ok := p[t]
		if !ok {
			return nil, fmt.Errorf("tier %q has no policy", t)
		}
		if pol.RateLimit <= 0 {
			return nil, fmt.Errorf("tier %q: rate limit must be positive", t)
		}
		if pol.Window <= 0 {
			pol.Window = DefaultWindow
		}
		if !pol.Priority.Valid() {
			return nil, fmt.Errorf("tier %q: invalid priority %q", t, pol.Priority)
		}
		cp[t] = pol
	}
	return &Table{policies: cp}, nil
}

// Lookup returns the policy for t. Unknown tiers fall back to free.
func (tb *Table) Lookup(t models.Tier) Policy {
	if pol, ok := tb.policies[t]; ok {
		return pol
	}
	return tb.policies[models.TierFree]
}

// PriorityFor returns the queue class jobs of tier t wait in.
func (tb *Table) PriorityFor(t models.Tier) models.Priority {
	return tb.Lookup(t).Priority
}

// Weight returns the dispatch weight of class p.
func (tb *Table) Weight(p models.Priority) int {
	return Weights[p]
}

// MinimumTier returns the lowest tier whose policy satisfies ok, or "" when
// none does.
func (tb *Table) MinimumTier(ok func(Policy) bool) models.Tier {
	for _, t := range models.Tiers {
		if ok(tb.policies[t]) {
			return t
		}
	}
	return ""
}
