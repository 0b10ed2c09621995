// Package cache holds fetched reference data (trade calendar, listed
// universe) between pipeline runs so repeat invocations do not re-pull
// slow upstream endpoints. Values are JSON-encoded; Redis backs the cache
// when configured, with an in-process TTL map as the fallback.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the cache contract. Get reports a miss with (false, nil).
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Stats counts cache effectiveness.
type Stats struct {
	Hits   int64
	Misses int64
}

// Redis is the Redis-backed store.
type Redis struct {
	rdb *redis.Client

	mu    sync.Mutex
	stats Stats
}

// NewRedis connects a Redis store.
func NewRedis(addr string, db int) *Redis {
	return &Redis{rdb: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// NewRedisFromClient wraps an existing client, mainly for tests.
func NewRedisFromClient(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (c *Redis) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.count(false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	c.count(true)
	return true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Redis) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Redis) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
}

// Memory is the in-process fallback store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stats   Stats
	now     func() time.Time
}

type memoryEntry struct {
	payload []byte
	expires time.Time
}

// NewMemory builds an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *Memory) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		if ok {
			delete(c.entries, key)
		}
		c.stats.Misses++
		return false, nil
	}
	if err := json.Unmarshal(e.payload, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	c.stats.Hits++
	return true, nil
}

func (c *Memory) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{payload: b, expires: c.now().Add(ttl)}
	return nil
}

func (c *Memory) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
