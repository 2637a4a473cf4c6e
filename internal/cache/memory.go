package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryCache is an in-process Cache used when no Redis is configured.
// Expired keys are dropped lazily on access.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

func (c *MemoryCache) get(key string) (memoryItem, bool) {
	it, ok := c.items[key]
	if ok && it.expired(c.now()) {
		delete(c.items, key)
		return memoryItem{}, false
	}
	return it, ok
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = c.now().Add(ttl)
	}
	c.items[key] = it
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() error { return nil }

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	return c.add(key, 1, expiry)
}

func (c *MemoryCache) DecrBy(_ context.Context, key string, n int64) (int64, error) {
	return c.add(key, -n, 0)
}

// add applies delta to an integer key. A positive expiry refreshes the TTL.
func (c *MemoryCache) add(key string, delta int64, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, _ := c.get(key)
	var cur int64
	if len(it.value) > 0 {
		v, err := strconv.ParseInt(string(it.value), 10, 64)
		if err != nil {
			return 0, err
		}
		cur = v
	}
	cur += delta
	it.value = []byte(strconv.FormatInt(cur, 10))
	if expiry > 0 {
		it.expiresAt = c.now().Add(expiry)
	}
	c.items[key] = it
	return cur, nil
}

var _ Cache = (*MemoryCache)(nil)
