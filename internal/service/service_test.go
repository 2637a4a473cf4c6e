package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mitdave95/luma-interview/internal/cache"
	"github.com/mitdave95/luma-interview/internal/job"
	"github.com/mitdave95/luma-interview/internal/queue"
	"github.com/mitdave95/luma-interview/internal/quota"
	"github.com/mitdave95/luma-interview/internal/ratelimit"
	"github.com/mitdave95/luma-interview/internal/service"
	"github.com/mitdave95/luma-interview/internal/store"
	"github.com/mitdave95/luma-interview/internal/tier"
	"github.com/mitdave95/luma-interview/internal/video"
	"github.com/mitdave95/luma-interview/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type fakeDispatcher struct {
	mu      sync.Mutex
	wakes   int
	aborted []string
}

func (d *fakeDispatcher) Wake() {
	d.mu.Lock()
	d.wakes++
	d.mu.Unlock()
}

func (d *fakeDispatcher) Abort(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aborted = append(d.aborted, id)
	return true
}

type fakeArchive struct {
	mu    sync.Mutex
	jobs  map[string]models.Job
	gets  int
	calls int
}

func newFakeArchive(jobs ...models.Job) *fakeArchive {
	a := &fakeArchive{jobs: make(map[string]models.Job)}
	for _, j := range jobs {
		a.jobs[j.ID] = j
	}
	return a
}

func (a *fakeArchive) Ping(context.Context) error { return nil }

func (a *fakeArchive) ArchiveJobs(_ context.Context, jobs []models.Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, j := range jobs {
		a.jobs[j.ID] = j
	}
	return nil
}

func (a *fakeArchive) GetJob(_ context.Context, id string) (*models.Job, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gets++
	j, ok := a.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &j, nil
}

func (a *fakeArchive) ListJobs(_ context.Context, f store.JobFilter) ([]models.Job, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	var out []models.Job
	for _, j := range a.jobs {
		if j.UserID != f.UserID {
			continue
		}
		if len(f.Statuses) > 0 && j.Status != f.Statuses[0] {
			continue
		}
		out = append(out, j)
	}
	total := len(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

// fakeWatcher records finished jobs.
type fakeWatcher struct {
	mu       sync.Mutex
	finished []models.Job
}

func (w *fakeWatcher) JobFinished(_ context.Context, j models.Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finished = append(w.finished, j)
}

// failingSet rejects every push.
type failingSet struct{ queue.Set }

func (failingSet) Push(context.Context, queue.Entry) (int, error) {
	return 0, errors.New("redis: connection refused")
}

// --- Helpers ---

var (
	freeUser = models.Identity{ID: "user_free_001", Tier: models.TierFree}
	devUser  = models.Identity{ID: "user_dev_001", Tier: models.TierDeveloper}
	proUser  = models.Identity{ID: "user_pro_001", Tier: models.TierPro}
	entUser  = models.Identity{ID: "user_ent_001", Tier: models.TierEnterprise}
)

type env struct {
	svc        *service.JobService
	tiers      *tier.Table
	quota      *quota.Tracker
	limiter    *ratelimit.Memory
	scheduler  *queue.Scheduler
	jobs       *job.Registry
	dispatcher *fakeDispatcher
	archive    *fakeArchive
}

type envOption func(*service.Dependencies, *env)

func withTiers(tb *tier.Table) envOption {
	return func(d *service.Dependencies, e *env) {
		d.Tiers = tb
		e.tiers = tb
	}
}

func withSet(set queue.Set) envOption {
	return func(d *service.Dependencies, e *env) {
		e.scheduler = queue.NewScheduler(set, tier.Weights, nil)
		d.Scheduler = e.scheduler
	}
}

func withArchive(a *fakeArchive) envOption {
	return func(d *service.Dependencies, e *env) {
		d.Archive = a
		e.archive = a
	}
}

func withVideos(l *video.Library) envOption {
	return func(d *service.Dependencies, _ *env) { d.Videos = l }
}

type identityList []models.Identity

func (l identityList) List() []models.Identity { return l }

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	tiers := tier.New()
	mem := cache.NewMemoryCache()
	e := &env{
		tiers:      tiers,
		limiter:    ratelimit.NewMemory(tiers),
		scheduler:  queue.NewScheduler(queue.NewMemorySet(), tier.Weights, nil),
		jobs:       job.NewRegistry(),
		dispatcher: &fakeDispatcher{},
	}
	deps := service.Dependencies{
		Tiers:      tiers,
		Limiter:    e.limiter,
		Scheduler:  e.scheduler,
		Jobs:       e.jobs,
		Cache:      mem,
		Dispatcher: e.dispatcher,
	}
	for _, opt := range opts {
		opt(&deps, e)
	}
	e.quota = quota.NewTracker(mem, deps.Tiers, nil)
	deps.Quota = e.quota
	e.svc = service.New(deps)
	return e
}

func params(prompt string) models.GenerationParams {
	return models.GenerationParams{Prompt: prompt}
}

func dailyUsed(t *testing.T, e *env, id models.Identity) int64 {
	t.Helper()
	u, err := e.quota.Usage(context.Background(), id.ID, id.Tier)
	require.NoError(t, err)
	return u.Daily
}

// --- Submit ---

func TestSubmit_QueuesWithDefaults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	j, err := e.svc.Submit(ctx, devUser, params("  a red fox in snow  "))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(j.ID, "job_"))
	assert.Equal(t, models.JobStatusQueued, j.Status)
	assert.Equal(t, models.PriorityNormal, j.Priority)
	assert.Equal(t, 1, j.QueuePosition)
	assert.Equal(t, time.Duration(0), j.EstimatedWait)
	assert.NotNil(t, j.QueuedAt)

	assert.Equal(t, "a red fox in snow", j.Params.Prompt)
	assert.Equal(t, 10, j.Params.Duration)
	assert.Equal(t, "1080p", j.Params.Resolution)
	assert.Equal(t, "16:9", j.Params.AspectRatio)
	assert.Equal(t, "dream-machine-1.5", j.Params.Model)

	assert.Equal(t, int64(1), dailyUsed(t, e, devUser))
	assert.Equal(t, 1, e.dispatcher.wakes)

	second, err := e.svc.Submit(ctx, devUser, params("another"))
	require.NoError(t, err)
	assert.Equal(t, 2, second.QueuePosition)
	assert.Equal(t, 30*time.Second, second.EstimatedWait)
}

func TestSubmit_PriorityFollowsTier(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pro, err := e.svc.Submit(ctx, proUser, params("p"))
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, pro.Priority)

	ent, err := e.svc.Submit(ctx, entUser, params("e"))
	require.NoError(t, err)
	assert.Equal(t, models.PriorityCritical, ent.Priority)
}

func TestSubmit_FreeTierCannotGenerate(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Submit(context.Background(), freeUser, params("nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrInsufficientTier)

	var te *service.TierError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.TierFree, te.Current)
	assert.Equal(t, models.TierDeveloper, te.Required)
	assert.Zero(t, e.jobs.Len())
	assert.Zero(t, dailyUsed(t, e, freeUser))
}

func TestSubmit_DurationAboveTierLimit(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Submit(context.Background(), devUser, models.GenerationParams{Prompt: "long", Duration: 60})
	var te *service.TierError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.TierPro, te.Required)
	assert.Equal(t, 60, te.Details["requested_duration"])
	assert.Equal(t, 30, te.Details["max_duration"])

	_, err = e.svc.Submit(context.Background(), devUser, models.GenerationParams{Prompt: "longer", Duration: 200})
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.TierEnterprise, te.Required)
}

func TestSubmit_Validation(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		name  string
		p     models.GenerationParams
		field string
	}{
		{"empty prompt", models.GenerationParams{Prompt: "   "}, "prompt"},
		{"long prompt", models.GenerationParams{Prompt: strings.Repeat("a", 2001)}, "prompt"},
		{"prohibited", models.GenerationParams{Prompt: "Some VIOLENCE here"}, "prompt"},
		{"negative duration", models.GenerationParams{Prompt: "x", Duration: -1}, "duration"},
		{"resolution", models.GenerationParams{Prompt: "x", Resolution: "8k"}, "resolution"},
		{"aspect", models.GenerationParams{Prompt: "x", AspectRatio: "21:9"}, "aspect_ratio"},
		{"style", models.GenerationParams{Prompt: "x", Style: "noir"}, "style"},
		{"webhook", models.GenerationParams{Prompt: "x", WebhookURL: "ftp://example.com/hook"}, "webhook_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Submit(context.Background(), entUser, tc.p)
			var ve *service.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
			assert.ErrorIs(t, err, service.ErrInvalidRequest)
		})
	}
	assert.Zero(t, e.jobs.Len())
}

func TestSubmit_QuotaExceeded(t *testing.T) {
	policies := tier.DefaultPolicies()
	dev := policies[models.TierDeveloper]
	dev.DailyQuota = 2
	policies[models.TierDeveloper] = dev
	tb, err := tier.FromPolicies(policies)
	require.NoError(t, err)

	e := newEnv(t, withTiers(tb))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := e.svc.Submit(ctx, devUser, params(fmt.Sprintf("clip %d", i)))
		require.NoError(t, err)
	}

	_, err = e.svc.Submit(ctx, devUser, params("one too many"))
	require.Error(t, err)
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	var qe *quota.ExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 2, qe.Limit)
	assert.Equal(t, 2, e.jobs.Len())
}

func TestSubmit_EnqueueFailureCancelsAndRefunds(t *testing.T) {
	e := newEnv(t, withSet(failingSet{Set: queue.NewMemorySet()}))

	_, err := e.svc.Submit(context.Background(), proUser, params("doomed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrQueueUnavailable)

	jobs := e.jobs.List(job.Filter{UserID: proUser.ID})
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusCancelled, jobs[0].Status)
	assert.Equal(t, "queue unavailable", jobs[0].Error)
	assert.Zero(t, dailyUsed(t, e, proUser))
}

func withClock(now func() time.Time) envOption {
	return func(d *service.Dependencies, _ *env) { d.Now = now }
}

func TestSubmit_CancelledBeforeQueueingRefundsOnce(t *testing.T) {
	var (
		e     *env
		fired bool
	)
	// The first clock read of the second submission happens after the job
	// is registered and before it is queued.
	armed := false
	e = newEnv(t, withClock(func() time.Time {
		if armed && !fired {
			fired = true
			pending := e.jobs.List(job.Filter{UserID: devUser.ID, Statuses: []models.JobStatus{models.JobStatusPending}})
			require.Len(t, pending, 1)
			_, err := e.svc.Cancel(context.Background(), devUser, pending[0].ID)
			require.NoError(t, err)
		}
		return time.Now()
	}))
	ctx := context.Background()

	_, err := e.svc.Submit(ctx, devUser, params("kept"))
	require.NoError(t, err)
	require.Equal(t, int64(1), dailyUsed(t, e, devUser))

	armed = true
	j, err := e.svc.Submit(ctx, devUser, params("raced"))
	require.NoError(t, err)
	require.True(t, fired)
	assert.Equal(t, models.JobStatusCancelled, j.Status)

	assert.Equal(t, int64(1), dailyUsed(t, e, devUser), "quota refunded exactly once")
	lengths, err := e.scheduler.Lengths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, lengths[models.PriorityNormal])
}

// --- Batch ---

func TestSubmitBatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.SubmitBatch(ctx, devUser, []models.GenerationParams{params("a")})
	var te *service.TierError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.TierPro, te.Required)

	jobs, err := e.svc.SubmitBatch(ctx, proUser, []models.GenerationParams{params("a"), params("b"), params("c")})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for i, j := range jobs {
		assert.Equal(t, i+1, j.QueuePosition)
	}

	_, err = e.svc.SubmitBatch(ctx, proUser, nil)
	assert.ErrorIs(t, err, service.ErrInvalidRequest)

	tooMany := make([]models.GenerationParams, 11)
	for i := range tooMany {
		tooMany[i] = params("x")
	}
	_, err = e.svc.SubmitBatch(ctx, proUser, tooMany)
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
}

func TestSubmitBatch_ValidatesEverythingFirst(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.SubmitBatch(context.Background(), proUser, []models.GenerationParams{
		params("fine"),
		{Prompt: "bad", Resolution: "8k"},
	})
	var ve *service.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "requests[1].resolution", ve.Field)
	assert.Zero(t, e.jobs.Len())
	assert.Zero(t, dailyUsed(t, e, proUser))
}

// --- Get / List ---

func TestGet_OwnershipAndNotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	j, err := e.svc.Submit(ctx, proUser, params("mine"))
	require.NoError(t, err)

	got, err := e.svc.Get(ctx, proUser, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, 1, got.QueuePosition)

	_, err = e.svc.Get(ctx, entUser, j.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = e.svc.Get(ctx, proUser, "job_missing")
	assert.ErrorIs(t, err, service.ErrJobNotFound)
}

func TestGet_RefreshesQueuePosition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first, err := e.svc.Submit(ctx, proUser, params("first"))
	require.NoError(t, err)
	second, err := e.svc.Submit(ctx, proUser, params("second"))
	require.NoError(t, err)
	require.Equal(t, 2, second.QueuePosition)

	_, err = e.svc.Cancel(ctx, proUser, first.ID)
	require.NoError(t, err)

	got, err := e.svc.Get(ctx, proUser, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.QueuePosition)
}

func TestGet_FallsBackToArchiveAndCaches(t *testing.T) {
	done := time.Now().UTC().Add(-2 * time.Hour)
	archived := models.Job{
		ID: "job_archived0001", UserID: proUser.ID, Tier: models.TierPro, Priority: models.PriorityHigh,
		Status: models.JobStatusCompleted, ResultRef: "vid_old", CreatedAt: done.Add(-time.Minute), CompletedAt: &done,
	}
	a := newFakeArchive(archived)
	e := newEnv(t, withArchive(a))
	ctx := context.Background()

	got, err := e.svc.Get(ctx, proUser, archived.ID)
	require.NoError(t, err)
	assert.Equal(t, "vid_old", got.ResultRef)

	got, err = e.svc.Get(ctx, proUser, archived.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, a.gets, "second lookup must be served from cache")

	_, err = e.svc.Get(ctx, entUser, archived.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = e.svc.Get(ctx, proUser, "job_nowhere")
	assert.ErrorIs(t, err, service.ErrJobNotFound)
}

func TestList_PaginationAndFilter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		j, err := e.svc.Submit(ctx, entUser, params(fmt.Sprintf("clip %d", i)))
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}
	_, err := e.svc.Submit(ctx, proUser, params("someone else"))
	require.NoError(t, err)
	_, err = e.svc.Cancel(ctx, entUser, ids[0])
	require.NoError(t, err)

	res, err := e.svc.List(ctx, entUser, service.ListOptions{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Len(t, res.Jobs, 2)

	res, err = e.svc.List(ctx, entUser, service.ListOptions{Page: 3, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, res.Jobs, 1)

	res, err = e.svc.List(ctx, entUser, service.ListOptions{Page: 9, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Jobs)

	res, err = e.svc.List(ctx, entUser, service.ListOptions{Status: models.JobStatusCancelled})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, ids[0], res.Jobs[0].ID)
	assert.Equal(t, 20, res.PerPage)

	_, err = e.svc.List(ctx, entUser, service.ListOptions{Status: "weird"})
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
}

func TestList_MergesArchive(t *testing.T) {
	old := time.Now().UTC().Add(-24 * time.Hour)
	a := newFakeArchive(models.Job{ID: "job_archived0001", UserID: proUser.ID, Status: models.JobStatusCompleted, CreatedAt: old})
	e := newEnv(t, withArchive(a))
	ctx := context.Background()

	live, err := e.svc.Submit(ctx, proUser, params("live"))
	require.NoError(t, err)

	res, err := e.svc.List(ctx, proUser, service.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, live.ID, res.Jobs[0].ID)
	assert.Equal(t, "job_archived0001", res.Jobs[1].ID)
}

// --- Cancel ---

func TestCancel_QueuedJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	j, err := e.svc.Submit(ctx, devUser, params("cancel me"))
	require.NoError(t, err)
	require.Equal(t, int64(1), dailyUsed(t, e, devUser))

	got, err := e.svc.Cancel(ctx, devUser, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Equal(t, "cancelled", got.Error)
	assert.NotNil(t, got.CompletedAt)

	lengths, err := e.scheduler.Lengths(ctx)
	require.NoError(t, err)
	assert.Zero(t, lengths[models.PriorityNormal])
	stats := e.scheduler.Stats()[models.PriorityNormal]
	assert.Equal(t, int64(1), stats.Removed)
	assert.Equal(t, stats.Enqueued, stats.Dequeued+stats.Removed)
	assert.Zero(t, dailyUsed(t, e, devUser))

	_, err = e.svc.Cancel(ctx, devUser, j.ID)
	var nc *service.NotCancellableError
	require.True(t, errors.As(err, &nc))
	assert.Equal(t, models.JobStatusCancelled, nc.Status)
}

func TestCancel_ProcessingJobAbortsExecution(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	j, err := e.svc.Submit(ctx, proUser, params("rendering"))
	require.NoError(t, err)

	_, err = e.scheduler.DequeueNext(ctx, nil)
	require.NoError(t, err)
	live, err := e.jobs.Get(j.ID)
	require.NoError(t, err)
	_, err = live.Transition(models.JobStatusProcessing)
	require.NoError(t, err)

	got, err := e.svc.Cancel(ctx, proUser, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Equal(t, []string{j.ID}, e.dispatcher.aborted)
}

func TestCancel_OwnershipAndMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	j, err := e.svc.Submit(ctx, proUser, params("mine"))
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, entUser, j.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)
	_, err = e.svc.Cancel(ctx, proUser, "job_missing")
	assert.ErrorIs(t, err, service.ErrJobNotFound)
}

func TestCancel_ArchivedJobIsNotCancellable(t *testing.T) {
	done := time.Now().UTC()
	a := newFakeArchive(models.Job{ID: "job_archived0001", UserID: proUser.ID, Status: models.JobStatusCompleted, CompletedAt: &done})
	e := newEnv(t, withArchive(a))

	_, err := e.svc.Cancel(context.Background(), proUser, "job_archived0001")
	assert.ErrorIs(t, err, service.ErrNotCancellable)
}

// --- Terminal hook ---

func TestOnTerminal_RefundsOnlyUnproducedJobs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.svc.Submit(ctx, proUser, params("a"))
	require.NoError(t, err)
	b, err := e.svc.Submit(ctx, proUser, params("b"))
	require.NoError(t, err)
	require.Equal(t, int64(2), dailyUsed(t, e, proUser))

	a.Status = models.JobStatusCompleted
	e.svc.OnTerminal(ctx, a)
	assert.Equal(t, int64(2), dailyUsed(t, e, proUser))

	b.Status = models.JobStatusFailed
	e.svc.OnTerminal(ctx, b)
	assert.Equal(t, int64(1), dailyUsed(t, e, proUser))

	b.Status = models.JobStatusExpired
	e.svc.OnTerminal(ctx, b)
	assert.Equal(t, int64(0), dailyUsed(t, e, proUser))
}

func TestOnTerminal_NotifiesWatcher(t *testing.T) {
	w := &fakeWatcher{}
	e := newEnv(t, func(d *service.Dependencies, _ *env) { d.Watcher = w })
	ctx := context.Background()

	j, err := e.svc.Submit(ctx, proUser, models.GenerationParams{
		Prompt:     "notify me",
		WebhookURL: "https://hooks.example.com/luma",
	})
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, proUser, j.ID)
	require.NoError(t, err)

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.finished, 1)
	assert.Equal(t, j.ID, w.finished[0].ID)
	assert.Equal(t, models.JobStatusCancelled, w.finished[0].Status)
	assert.Equal(t, "https://hooks.example.com/luma", w.finished[0].Params.WebhookURL)
}

// --- Account / admin ---

func TestUsage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.limiter.Allow(ctx, devUser.ID, devUser.Tier)
	require.NoError(t, err)
	_, err = e.svc.Submit(ctx, devUser, params("one"))
	require.NoError(t, err)

	u, err := e.svc.Usage(ctx, devUser)
	require.NoError(t, err)
	assert.Equal(t, devUser.ID, u.UserID)
	assert.Equal(t, 30, u.RateLimit.Limit)
	assert.Equal(t, 29, u.RateLimit.Remaining)
	assert.Equal(t, 60, u.RateLimit.WindowSeconds)
	assert.Equal(t, int64(1), u.Quota.Daily)
	assert.Equal(t, 500, u.Quota.DailyLimit)
	assert.Equal(t, int64(499), u.Quota.DailyRemaining)
	assert.Equal(t, 1, u.ActiveJobs)
	assert.Equal(t, 3, u.Limits.MaxConcurrentJobs)
	assert.Equal(t, 30, u.Limits.MaxVideoDuration)
	assert.True(t, u.Limits.CanGenerate)
	assert.False(t, u.Limits.CanBatch)
	assert.Zero(t, u.VideosGenerated)
}

func TestUsage_CountsGeneratedVideos(t *testing.T) {
	lib := video.NewLibrary()
	e := newEnv(t, withVideos(lib))
	require.NoError(t, lib.Record(models.Video{ID: "vid_1", OwnerID: devUser.ID, Duration: 5}))
	require.NoError(t, lib.Record(models.Video{ID: "vid_2", OwnerID: devUser.ID, Duration: 10}))
	require.NoError(t, e.svc.DeleteVideo(context.Background(), devUser, "vid_1"))

	u, err := e.svc.Usage(context.Background(), devUser)
	require.NoError(t, err)
	assert.Equal(t, 2, u.VideosGenerated)
	assert.Equal(t, 15, u.TotalDurationSeconds)
}

func TestAccount(t *testing.T) {
	e := newEnv(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id := models.Identity{ID: "user_dev_001", Email: "dev@example.com", Tier: models.TierDeveloper, CreatedAt: created}

	a := e.svc.Account(id)
	assert.Equal(t, "dev@example.com", a.Email)
	assert.Equal(t, models.TierDeveloper, a.Tier)
	assert.Equal(t, created, a.CreatedAt)
	assert.True(t, a.IsActive)

	id.Disabled = true
	assert.False(t, e.svc.Account(id).IsActive)
}

func TestQuota(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := e.svc.Submit(ctx, devUser, params("q"))
		require.NoError(t, err)
	}

	q, err := e.svc.Quota(ctx, devUser)
	require.NoError(t, err)
	assert.Equal(t, 30, q.RateLimit.Limit)
	assert.Equal(t, service.DailyQuota{Limit: 500, Used: 2, Remaining: 498}, q.DailyQuota)
	assert.Equal(t, service.ConcurrentJobs{Limit: 3, Active: 2, Available: 1}, q.ConcurrentJobs)
	assert.Equal(t, 30, q.MaxVideoDuration)
	assert.True(t, q.CanGenerate)
	assert.False(t, q.CanBatch)

	ent, err := e.svc.Quota(ctx, entUser)
	require.NoError(t, err)
	assert.Equal(t, -1, ent.DailyQuota.Limit)
	assert.Equal(t, int64(-1), ent.DailyQuota.Remaining)
	assert.True(t, ent.CanBatch)
}

func TestRateLimits(t *testing.T) {
	e := newEnv(t, func(d *service.Dependencies, _ *env) {
		d.Identities = identityList{devUser, proUser}
	})
	ctx := context.Background()
	_, err := e.limiter.Allow(ctx, proUser.ID, proUser.Tier)
	require.NoError(t, err)

	rl, err := e.svc.RateLimits(ctx)
	require.NoError(t, err)
	require.Len(t, rl, 2)
	assert.Equal(t, devUser.ID, rl[0].UserID)
	assert.Equal(t, rl[0].Limit, rl[0].Remaining)
	assert.Equal(t, proUser.ID, rl[1].UserID)
	assert.Equal(t, rl[1].Limit-1, rl[1].Remaining)
	assert.False(t, rl[1].IsRateLimited)
}

func TestActiveJobs_ProcessingNewestStartFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		j, err := e.svc.Submit(ctx, entUser, params(fmt.Sprintf("job %d", i)))
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}
	for i, id := range ids[:2] {
		live, err := e.jobs.Get(id)
		require.NoError(t, err)
		_, err = live.Transition(models.JobStatusProcessing, job.At(base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	view := e.svc.ActiveJobs()
	assert.Equal(t, 2, view.TotalActive)
	require.Len(t, view.Jobs, 2)
	assert.Equal(t, ids[1], view.Jobs[0].JobID)
	assert.Equal(t, ids[0], view.Jobs[1].JobID)
	require.NotNil(t, view.Jobs[0].Progress)
}

func TestUsers(t *testing.T) {
	e := newEnv(t)
	assert.Empty(t, e.svc.Users())

	e = newEnv(t, func(d *service.Dependencies, _ *env) {
		d.Identities = identityList{freeUser, entUser}
	})
	users := e.svc.Users()
	require.Len(t, users, 2)
	assert.Equal(t, freeUser.ID, users[0].UserID)
	assert.False(t, users[0].CanGenerate)
	assert.Equal(t, 10, users[0].RateLimit)
	assert.True(t, users[1].CanBatch)
	assert.Equal(t, -1, users[1].DailyQuota)
}

// --- Videos / models ---

func TestVideos_OwnerScoped(t *testing.T) {
	lib := video.NewLibrary()
	e := newEnv(t, withVideos(lib))
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, lib.Record(models.Video{
			ID:        fmt.Sprintf("vid_%d", i),
			OwnerID:   proUser.ID,
			Status:    models.VideoStatusReady,
			URL:       fmt.Sprintf("https://cdn.example/vid_%d.mp4", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, lib.Record(models.Video{ID: "vid_pending", OwnerID: proUser.ID, Status: models.VideoStatusProcessing, CreatedAt: base}))

	res, err := e.svc.ListVideos(ctx, proUser, 1, 2, models.VideoStatusReady)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Videos, 2)
	assert.Equal(t, "vid_2", res.Videos[0].ID)

	_, err = e.svc.ListVideos(ctx, proUser, 1, 2, models.VideoStatus("bogus"))
	assert.ErrorIs(t, err, service.ErrInvalidRequest)

	other, err := e.svc.ListVideos(ctx, devUser, 1, 20, "")
	require.NoError(t, err)
	assert.Zero(t, other.Total)

	v, err := e.svc.GetVideo(ctx, proUser, "vid_1")
	require.NoError(t, err)
	assert.Equal(t, "vid_1", v.ID)
	_, err = e.svc.GetVideo(ctx, devUser, "vid_1")
	assert.ErrorIs(t, err, service.ErrForbidden)
	_, err = e.svc.GetVideo(ctx, proUser, "vid_missing")
	assert.ErrorIs(t, err, service.ErrVideoNotFound)

	stream, err := e.svc.VideoStream(ctx, proUser, "vid_1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/vid_1.mp4", stream.StreamURL)
	assert.Equal(t, 3600, stream.ExpiresIn)
	_, err = e.svc.VideoStream(ctx, proUser, "vid_pending")
	assert.ErrorIs(t, err, service.ErrVideoNotFound)

	assert.ErrorIs(t, e.svc.DeleteVideo(ctx, devUser, "vid_1"), service.ErrForbidden)
	require.NoError(t, e.svc.DeleteVideo(ctx, proUser, "vid_1"))
	assert.ErrorIs(t, e.svc.DeleteVideo(ctx, proUser, "vid_1"), service.ErrVideoNotFound)
}

func TestVideos_NoLibrary(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.ListVideos(context.Background(), proUser, 0, 0, "")
	require.NoError(t, err)
	assert.Empty(t, res.Videos)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 20, res.PerPage)
	_, err = e.svc.GetVideo(context.Background(), proUser, "vid_1")
	assert.ErrorIs(t, err, service.ErrVideoNotFound)
}

func TestModels(t *testing.T) {
	e := newEnv(t)
	ms := e.svc.Models()
	require.NotEmpty(t, ms)
	assert.Equal(t, "dream-machine-1.5", ms[0].ID)
}

func TestQueueStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, id := range []models.Identity{entUser, entUser, proUser, devUser} {
		_, err := e.svc.Submit(ctx, id, params("x"))
		require.NoError(t, err)
	}
	_, err := e.scheduler.DequeueNext(ctx, nil)
	require.NoError(t, err)

	stats, err := e.svc.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalQueued)
	crit := stats.Queues[models.PriorityCritical]
	assert.Equal(t, 1, crit.Length)
	assert.Equal(t, 10, crit.Weight)
	assert.Equal(t, int64(2), crit.Enqueued)
	assert.Equal(t, int64(1), crit.Dequeued)
	assert.Equal(t, 4, stats.Jobs[models.JobStatusQueued])
}
