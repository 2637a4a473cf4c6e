package tier_test

import (
	"testing"
	"time"

	"github.com/mitdave95/luma-interview/internal/tier"
	"github.com/mitdave95/luma-interview/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	tb := tier.New()

	cases := []struct {
		tier       models.Tier
		limit      int
		quota      int
		maxDur     int
		priority   models.Priority
		generate   bool
		batch      bool
		concurrent int
	}{
		{models.TierFree, 10, 100, 0, models.PriorityNormal, false, false, 0},
		{models.TierDeveloper, 30, 500, 30, models.PriorityNormal, true, false, 3},
		{models.TierPro, 100, 5000, 120, models.PriorityHigh, true, true, 10},
		{models.TierEnterprise, 1000, tier.Unlimited, 300, models.PriorityCritical, true, true, 100},
	}
	for _, tc := range cases {
		t.Run(string(tc.tier), func(t *testing.T) {
			p := tb.Lookup(tc.tier)
			assert.Equal(t, tc.limit, p.RateLimit)
			assert.Equal(t, tc.quota, p.DailyQuota)
			assert.Equal(t, tc.maxDur, p.MaxVideoDuration)
			assert.Equal(t, tc.priority, p.Priority)
			assert.Equal(t, tc.generate, p.CanGenerate)
			assert.Equal(t, tc.batch, p.CanBatch)
			assert.Equal(t, tc.concurrent, p.MaxConcurrentJobs)
			assert.Equal(t, 60*time.Second, p.Window)
		})
	}
}

func TestWeights(t *testing.T) {
	tb := tier.New()
	assert.Equal(t, 10, tb.Weight(models.PriorityCritical))
	assert.Equal(t, 5, tb.Weight(models.PriorityHigh))
	assert.Equal(t, 1, tb.Weight(models.PriorityNormal))
}

func TestOptions(t *testing.T) {
	tb := tier.New(
		tier.WithWindow(10*time.Second),
		tier.WithMaxQueueWait(models.TierPro, 0),
	)
	assert.Equal(t, 10*time.Second, tb.Lookup(models.TierDeveloper).Window)
	assert.Zero(t, tb.Lookup(models.TierPro).MaxQueueWait)
	assert.Equal(t, 30*time.Minute, tb.Lookup(models.TierEnterprise).MaxQueueWait)
}

func TestNew_DoesNotShareDefaults(t *testing.T) {
	tier.New(tier.WithWindow(time.Second))
	assert.Equal(t, tier.DefaultWindow, tier.New().Lookup(models.TierFree).Window)
}

func TestLookup_UnknownFallsBackToFree(t *testing.T) {
	tb := tier.New()
	assert.Equal(t, tb.Lookup(models.TierFree), tb.Lookup("mystery"))
}

func TestMinimumTier(t *testing.T) {
	tb := tier.New()
	assert.Equal(t, models.TierPro, tb.MinimumTier(func(p tier.Policy) bool { return p.CanBatch }))
	assert.Equal(t, models.TierEnterprise, tb.MinimumTier(func(p tier.Policy) bool { return p.MaxVideoDuration >= 200 }))
	assert.Equal(t, models.Tier(""), tb.MinimumTier(func(p tier.Policy) bool { return p.MaxVideoDuration > 1000 }))
}

func TestFromPolicies(t *testing.T) {
	p := tier.DefaultPolicies()
	_, err := tier.FromPolicies(p)
	require.NoError(t, err)

	delete(p, models.TierPro)
	_, err = tier.FromPolicies(p)
	assert.Error(t, err)

	p = tier.DefaultPolicies()
	pol := p[models.TierFree]
	pol.RateLimit = 0
	p[models.TierFree] = pol
	_, err = tier.FromPolicies(p)
	assert.Error(t, err)
}
