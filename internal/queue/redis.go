package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mitdave95/luma-interview/internal/cache"
	"github.com/mitdave95/luma-interview/pkg/models"
	"github.com/redis/go-redis/v9"
)

const peekBatch = 64

// pushScript adds a member unless it is already waiting and returns its
// 1-based rank, or -1 for a duplicate.
var pushScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return -1
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return redis.call('ZRANK', KEYS[1], ARGV[1]) + 1
`)

// RedisSet stores each class in a sorted set scored by enqueue time in
// microseconds. Removal is claimed with ZREM so only one consumer wins.
type RedisSet struct {
	client redis.UniversalClient
}

func NewRedisSet(client redis.UniversalClient) *RedisSet {
	return &RedisSet{client: client}
}

func key(p models.Priority) string { return cache.QueueKey(string(p)) }

func score(t time.Time) float64 { return float64(t.UnixMicro()) }

func fromScore(s float64) time.Time { return time.UnixMicro(int64(s)).UTC() }

func (s *RedisSet) Push(ctx context.Context, e Entry) (int, error) {
	if !e.Priority.Valid() {
		return 0, ErrUnknownPriority
	}
	pos, err := pushScript.Run(ctx, s.client, []string{key(e.Priority)},
		e.JobID, strconv.FormatFloat(score(e.EnqueuedAt), 'f', 0, 64)).Int()
	if err != nil {
		return 0, fmt.Errorf("push %s: %w", e.JobID, err)
	}
	if pos < 0 {
		return 0, ErrDuplicate
	}
	return pos, nil
}

func (s *RedisSet) PeekEligible(ctx context.Context, p models.Priority, eligible func(Entry) bool) (Entry, bool, error) {
	if !p.Valid() {
		return Entry{}, false, ErrUnknownPriority
	}
	for start := int64(0); ; start += peekBatch {
		members, err := s.client.ZRangeWithScores(ctx, key(p), start, start+peekBatch-1).Result()
		if err != nil {
			return Entry{}, false, fmt.Errorf("peek %s: %w", p, err)
		}
		for _, m := range members {
			e := Entry{JobID: m.Member.(string), Priority: p, EnqueuedAt: fromScore(m.Score)}
			if eligible == nil || eligible(e) {
				return e, true, nil
			}
		}
		if len(members) < peekBatch {
			return Entry{}, false, nil
		}
	}
}

func (s *RedisSet) Take(ctx context.Context, e Entry) (bool, error) {
	n, err := s.client.ZRem(ctx, key(e.Priority), e.JobID).Result()
	if err != nil {
		return false, fmt.Errorf("take %s: %w", e.JobID, err)
	}
	return n == 1, nil
}

func (s *RedisSet) Position(ctx context.Context, jobID string, p models.Priority) (int, bool, error) {
	rank, err := s.client.ZRank(ctx, key(p), jobID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("position %s: %w", jobID, err)
	}
	return int(rank) + 1, true, nil
}

func (s *RedisSet) Lengths(ctx context.Context) (map[models.Priority]int, error) {
	cmds := make(map[models.Priority]*redis.IntCmd, len(models.Priorities))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range models.Priorities {
			cmds[p] = pipe.ZCard(ctx, key(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue lengths: %w", err)
	}
	out := make(map[models.Priority]int, len(cmds))
	for p, c := range cmds {
		out[p] = int(c.Val())
	}
	return out, nil
}

func (s *RedisSet) Snapshot(ctx context.Context, limit int) (Snapshot, error) {
	type pair struct {
		card  *redis.IntCmd
		items *redis.ZSliceCmd
	}
	cmds := make(map[models.Priority]pair, len(models.Priorities))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range models.Priorities {
			var items *redis.ZSliceCmd
			if limit > 0 {
				items = pipe.ZRangeWithScores(ctx, key(p), 0, int64(limit-1))
			}
			cmds[p] = pair{card: pipe.ZCard(ctx, key(p)), items: items}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue snapshot: %w", err)
	}

	snap := make(Snapshot, len(cmds))
	for p, c := range cmds {
		cs := ClassSnapshot{Length: int(c.card.Val())}
		if c.items != nil {
			for _, m := range c.items.Val() {
				cs.Entries = append(cs.Entries, Entry{
					JobID:      m.Member.(string),
					Priority:   p,
					EnqueuedAt: fromScore(m.Score),
				})
			}
		}
		snap[p] = cs
	}
	return snap, nil
}

var _ Set = (*RedisSet)(nil)
