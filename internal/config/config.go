package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Luma API server.
type Config struct {
	Server     ServerConfig
	State      StateConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Worker     WorkerConfig
	Generator  GeneratorConfig
	Dashboard  DashboardConfig
	Retention  RetentionConfig
	Tiers      TiersConfig
	Identities IdentitiesConfig
	Webhook    WebhookConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// StateConfig selects where rate limits, quota counters and queues live.
type StateConfig struct {
	Backend string
}

// DatabaseConfig is optional. When URL is empty finished jobs are evicted
// without being archived.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type RateLimitConfig struct {
	Enabled bool
	Window  time.Duration
}

type WorkerConfig struct {
	Enabled      bool
	PollInterval time.Duration
	MaxInFlight  int
}

type GeneratorConfig struct {
	Kind                  string
	FailureRate           float64
	SecondsPerVideoSecond float64
}

type DashboardConfig struct {
	Tick             time.Duration
	MaxUpdatesPerSec float64
}

type RetentionConfig struct {
	JobRetention    time.Duration
	JanitorInterval time.Duration
}

// TiersConfig carries the per-tier queue wait limits. Zero disables expiry.
type TiersConfig struct {
	MaxQueueWaitFree       time.Duration
	MaxQueueWaitDeveloper  time.Duration
	MaxQueueWaitPro        time.Duration
	MaxQueueWaitEnterprise time.Duration
}

type IdentitiesConfig struct {
	File string
}

// WebhookConfig controls delivery of terminal job events to the webhook_url
// a request carried.
type WebhookConfig struct {
	Enabled  bool
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	GeneratorSimulated = "simulated"
	GeneratorInstant   = "instant"
)

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any value is invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LUMA_PORT", 8000),
			Env:  envString("LUMA_ENV", "development"),
		},
		State: StateConfig{
			Backend: envString("STATE_BACKEND", BackendMemory),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		RateLimit: RateLimitConfig{
			Enabled: envBool("RATE_LIMIT_ENABLED", true),
			Window:  envDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		},
		Worker: WorkerConfig{
			Enabled:      envBool("WORKER_ENABLED", true),
			PollInterval: envDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
			MaxInFlight:  envInt("WORKER_MAX_IN_FLIGHT", 8),
		},
		Generator: GeneratorConfig{
			Kind:                  envString("GENERATOR", GeneratorSimulated),
			FailureRate:           envFloat("GENERATOR_FAILURE_RATE", 0.05),
			SecondsPerVideoSecond: envFloat("GENERATOR_SECONDS_PER_VIDEO_SECOND", 0.5),
		},
		Dashboard: DashboardConfig{
			Tick:             envDuration("DASHBOARD_TICK", time.Second),
			MaxUpdatesPerSec: envFloat("DASHBOARD_MAX_UPDATES_PER_SEC", 10),
		},
		Retention: RetentionConfig{
			JobRetention:    envDuration("JOB_RETENTION", time.Hour),
			JanitorInterval: envDuration("JANITOR_INTERVAL", 30*time.Second),
		},
		Tiers: TiersConfig{
			MaxQueueWaitFree:       envDuration("MAX_QUEUE_WAIT_FREE", 10*time.Minute),
			MaxQueueWaitDeveloper:  envDuration("MAX_QUEUE_WAIT_DEVELOPER", 10*time.Minute),
			MaxQueueWaitPro:        envDuration("MAX_QUEUE_WAIT_PRO", 20*time.Minute),
			MaxQueueWaitEnterprise: envDuration("MAX_QUEUE_WAIT_ENTERPRISE", 30*time.Minute),
		},
		Identities: IdentitiesConfig{
			File: os.Getenv("IDENTITIES_FILE"),
		},
		Webhook: WebhookConfig{
			Enabled:  envBool("WEBHOOK_ENABLED", true),
			Timeout:  envDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			Attempts: envInt("WEBHOOK_ATTEMPTS", 3),
			Backoff:  envDuration("WEBHOOK_BACKOFF", time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("LUMA_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.State.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when STATE_BACKEND is redis")
		}
		if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
			return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be one of memory, redis; got %q", c.State.Backend)
	}

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive")
	}
	if c.Worker.MaxInFlight <= 0 {
		return fmt.Errorf("WORKER_MAX_IN_FLIGHT must be positive, got %d", c.Worker.MaxInFlight)
	}

	switch c.Generator.Kind {
	case GeneratorSimulated, GeneratorInstant:
	default:
		return fmt.Errorf("GENERATOR must be one of simulated, instant; got %q", c.Generator.Kind)
	}
	if c.Generator.FailureRate < 0 || c.Generator.FailureRate > 1 {
		return fmt.Errorf("GENERATOR_FAILURE_RATE must be between 0 and 1, got %v", c.Generator.FailureRate)
	}
	if c.Generator.SecondsPerVideoSecond < 0 {
		return fmt.Errorf("GENERATOR_SECONDS_PER_VIDEO_SECOND must not be negative")
	}

	if c.Dashboard.Tick <= 0 {
		return fmt.Errorf("DASHBOARD_TICK must be positive")
	}
	if c.Dashboard.MaxUpdatesPerSec <= 0 {
		return fmt.Errorf("DASHBOARD_MAX_UPDATES_PER_SEC must be positive")
	}

	if c.Retention.JobRetention <= 0 || c.Retention.JanitorInterval <= 0 {
		return fmt.Errorf("JOB_RETENTION and JANITOR_INTERVAL must be positive")
	}

	for name, d := range map[string]time.Duration{
		"MAX_QUEUE_WAIT_FREE":       c.Tiers.MaxQueueWaitFree,
		"MAX_QUEUE_WAIT_DEVELOPER":  c.Tiers.MaxQueueWaitDeveloper,
		"MAX_QUEUE_WAIT_PRO":        c.Tiers.MaxQueueWaitPro,
		"MAX_QUEUE_WAIT_ENTERPRISE": c.Tiers.MaxQueueWaitEnterprise,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if c.Webhook.Enabled {
		if c.Webhook.Timeout <= 0 || c.Webhook.Backoff <= 0 {
			return fmt.Errorf("WEBHOOK_TIMEOUT and WEBHOOK_BACKOFF must be positive")
		}
		if c.Webhook.Attempts < 1 {
			return fmt.Errorf("WEBHOOK_ATTEMPTS must be at least 1, got %d", c.Webhook.Attempts)
		}
	}

	if c.Database.URL != "" &&
		!strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// envDuration accepts Go duration strings ("500ms") or whole seconds ("30").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
