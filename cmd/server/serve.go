package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitdave95/luma-interview/internal/api"
	"github.com/mitdave95/luma-interview/internal/api/handler"
	mw "github.com/mitdave95/luma-interview/internal/api/middleware"
	"github.com/mitdave95/luma-interview/internal/cache"
	"github.com/mitdave95/luma-interview/internal/config"
	"github.com/mitdave95/luma-interview/internal/dashboard"
	"github.com/mitdave95/luma-interview/internal/dispatch"
	"github.com/mitdave95/luma-interview/internal/generation"
	"github.com/mitdave95/luma-interview/internal/identity"
	"github.com/mitdave95/luma-interview/internal/job"
	"github.com/mitdave95/luma-interview/internal/queue"
	"github.com/mitdave95/luma-interview/internal/quota"
	"github.com/mitdave95/luma-interview/internal/ratelimit"
	"github.com/mitdave95/luma-interview/internal/service"
	"github.com/mitdave95/luma-interview/internal/store"
	"github.com/mitdave95/luma-interview/internal/tier"
	"github.com/mitdave95/luma-interview/internal/video"
	"github.com/mitdave95/luma-interview/internal/webhook"
	"github.com/mitdave95/luma-interview/pkg/models"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// app is the fully wired process.
type app struct {
	cfg       *config.Config
	handler   http.Handler
	service   *service.JobService
	publisher *dashboard.Publisher
	worker    *dispatch.Worker
	janitor   *dispatch.Janitor
	webhooks  *webhook.Notifier

	// runners are long-lived loops started next to the HTTP server.
	runners []func(ctx context.Context) error
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func serve(ctx context.Context) error {
	// Fail fast on invalid config.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"state_backend", cfg.State.Backend,
		"generator", cfg.Generator.Kind,
		"archive", cfg.Database.URL != "")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.run(ctx)
}

// build wires every component from cfg.
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := slog.Default()
	a := &app{cfg: cfg}

	tiers := tier.New(
		tier.WithWindow(cfg.RateLimit.Window),
		tier.WithMaxQueueWait(models.TierFree, cfg.Tiers.MaxQueueWaitFree),
		tier.WithMaxQueueWait(models.TierDeveloper, cfg.Tiers.MaxQueueWaitDeveloper),
		tier.WithMaxQueueWait(models.TierPro, cfg.Tiers.MaxQueueWaitPro),
		tier.WithMaxQueueWait(models.TierEnterprise, cfg.Tiers.MaxQueueWaitEnterprise),
	)

	// State backend: counters, rate-limit logs and queues.
	var (
		c       cache.Cache
		limiter ratelimit.Limiter
		set     queue.Set
	)
	switch cfg.State.Backend {
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		a.closers = append(a.closers, func() { rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		c = rc
		limiter = ratelimit.NewRedis(rc.Client(), tiers, nil)
		set = queue.NewRedisSet(rc.Client())
	default:
		mem := ratelimit.NewMemory(tiers)
		a.runners = append(a.runners, mem.Run)
		c = cache.NewMemoryCache()
		limiter = mem
		set = queue.NewMemorySet()
	}

	// Optional archive of finished jobs.
	var archive *store.PostgresStore
	if cfg.Database.URL != "" {
		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			a.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		archive = store.NewPostgresStore(pool)
		slog.Info("job archive connected")
	}

	dir, err := loadIdentities(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	executor, err := generation.NewExecutor(cfg.Generator)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create generator: %w", err)
	}
	slog.Info("generator initialized", "generator", executor.Name())

	scheduler := queue.NewScheduler(set, tier.Weights, logger)
	jobs := job.NewRegistry()
	videos := video.NewLibrary()

	svcDeps := service.Dependencies{
		Tiers:      tiers,
		Quota:      quota.NewTracker(c, tiers, nil),
		Limiter:    limiter,
		Scheduler:  scheduler,
		Jobs:       jobs,
		Cache:      c,
		Videos:     videos,
		Identities: dir,
		Logger:     logger,
	}
	if archive != nil {
		svcDeps.Archive = archive
	}
	if cfg.Webhook.Enabled {
		a.webhooks = webhook.NewNotifier(webhook.NewHTTPClient("luma-api/"+version, cfg.Webhook.Timeout), webhook.Config{
			Attempts: cfg.Webhook.Attempts,
			Backoff:  cfg.Webhook.Backoff,
			Timeout:  cfg.Webhook.Timeout,
		}, logger)
		svcDeps.Watcher = a.webhooks
		a.closers = append(a.closers, a.webhooks.Wait)
	}
	a.service = service.New(svcDeps)

	a.publisher = dashboard.NewPublisher(scheduler, jobs, limiter, dir, dashboard.NewHub(0), dashboard.Config{
		Tick:             cfg.Dashboard.Tick,
		MaxUpdatesPerSec: cfg.Dashboard.MaxUpdatesPerSec,
	}, logger)
	a.service.SetNotifier(a.publisher)
	a.runners = append(a.runners, a.publisher.Run)

	dispatchDeps := dispatch.Dependencies{
		Scheduler:  scheduler,
		Jobs:       jobs,
		Tiers:      tiers,
		Executor:   executor,
		Notifier:   a.publisher,
		Videos:     videos,
		OnTerminal: a.service.OnTerminal,
		Logger:     logger,
	}
	if cfg.Worker.Enabled {
		a.worker = dispatch.NewWorker(dispatchDeps, dispatch.WorkerConfig{
			MaxInFlight:  cfg.Worker.MaxInFlight,
			PollInterval: cfg.Worker.PollInterval,
		})
		a.service.SetDispatcher(a.worker)
		a.runners = append(a.runners, a.worker.Run)
	} else {
		slog.Warn("dispatch worker disabled; jobs will stay queued")
	}

	var janitorOpts []dispatch.JanitorOption
	if archive != nil {
		janitorOpts = append(janitorOpts, dispatch.WithArchiver(archive))
	}
	a.janitor = dispatch.NewJanitor(dispatchDeps, dispatch.JanitorConfig{
		Interval:  cfg.Retention.JanitorInterval,
		Retention: cfg.Retention.JobRetention,
	}, janitorOpts...)
	a.runners = append(a.runners, a.janitor.Run)

	checks := []handler.Check{{Name: "state", Ping: c.Ping}}
	if archive != nil {
		checks = append(checks, handler.Check{Name: "database", Ping: archive.Ping})
	}

	routerDeps := api.Dependencies{
		Auth:      mw.NewAuth(dir),
		Health:    handler.NewHealthHandler(version, checks...),
		Dashboard: dashboard.NewHandler(a.publisher, logger),
		Jobs:      handler.NewJobs(a.service),
		Videos:    handler.NewVideos(a.service),
		Admin:     handler.NewAdmin(a.service),
	}
	if cfg.RateLimit.Enabled {
		routerDeps.RateLimit = mw.NewRateLimit(limiter, nil)
	} else {
		slog.Warn("rate limiting disabled")
	}
	a.handler = api.NewRouter(routerDeps)

	return a, nil
}

func loadIdentities(cfg *config.Config) (*identity.Directory, error) {
	dir := identity.NewDirectory()
	switch {
	case cfg.Identities.File != "":
		if err := dir.LoadFile(cfg.Identities.File); err != nil {
			return nil, err
		}
	case cfg.Server.Env == "production":
		return nil, errors.New("IDENTITIES_FILE is required in production")
	default:
		if err := dir.SeedDev(); err != nil {
			return nil, err
		}
		slog.Warn("using development API keys", "count", dir.Len())
	}
	slog.Info("identities loaded", "count", dir.Len())
	return dir, nil
}

// run serves HTTP and the background loops until ctx is done or one of them
// fails, then shuts everything down.
func (a *app) run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     a.handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	for _, run := range a.runners {
		g.Go(func() error { return run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}
