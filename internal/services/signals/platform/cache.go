package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
)

// Cache stores opaque values with a time to live. Entries expire passively.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type memItem struct {
	value   []byte
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	clock clock.Clock
	mu    sync.RWMutex
	items map[string]memItem
}

// NewMemoryCache returns an empty MemoryCache reading time from clk.
func NewMemoryCache(clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryCache{clock: clk, items: map[string]memItem{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.clock.Now().Before(item.expires) {
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current.expires.Equal(item.expires) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return clone(item.value), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.items[key] = memItem{value: clone(value), expires: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// RedisCache is a Cache backed by redis, shared across replicas.
type RedisCache struct {
	Client *redis.Client
	Prefix string
}

// NewRedisCache connects to the redis server at addr.
func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Prefix: "signals-agent:",
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.Client.Get(ctx, c.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.Client.Set(ctx, c.Prefix+key, value, ttl).Err()
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
