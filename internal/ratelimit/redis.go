package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitdave95/luma-interview/internal/cache"
	"github.com/mitdave95/luma-interview/internal/tier"
	"github.com/mitdave95/luma-interview/pkg/models"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the log, counts it and records the request when
// there is room and ARGV[5] is "1". All times are unix milliseconds.
// Returns {allowed, count_before, reset_at}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local member = ARGV[4]
local record = ARGV[5] == '1'

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	allowed = 1
	if record then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window * 2)
	end
end

local reset_at = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest >= 2 then
	reset_at = tonumber(oldest[2]) + window
end
return {allowed, count, reset_at}
`)

// Redis is a Limiter shared by every process using the same Redis.
type Redis struct {
	client redis.UniversalClient
	table  *tier.Table
	now    Clock
}

func NewRedis(client redis.UniversalClient, table *tier.Table, now Clock) *Redis {
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, table: table, now: now}
}

func (r *Redis) Allow(ctx context.Context, identityID string, t models.Tier) (Decision, error) {
	return r.run(ctx, identityID, t, true)
}

func (r *Redis) Peek(ctx context.Context, identityID string, t models.Tier) (Decision, error) {
	return r.run(ctx, identityID, t, false)
}

func (r *Redis) run(ctx context.Context, identityID string, t models.Tier, record bool) (Decision, error) {
	pol := r.table.Lookup(t)
	now := r.now()
	flag := "0"
	if record {
		flag = "1"
	}

	res, err := slidingWindowScript.Run(ctx, r.client, []string{cache.RateLimitKey(identityID)},
		pol.Window.Milliseconds(), pol.RateLimit, now.UnixMilli(), uuid.NewString(), flag).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", identityID, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected reply %v", identityID, res)
	}

	d := Decision{
		Allowed: res[0] == 1,
		Limit:   pol.RateLimit,
		ResetAt: time.UnixMilli(res[2]),
		Window:  pol.Window,
	}
	if d.Allowed {
		d.Remaining = pol.RateLimit - int(res[1])
		if record {
			d.Remaining--
		}
	}
	return d, nil
}

var _ Limiter = (*Redis)(nil)
