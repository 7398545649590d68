package judgment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricesearch/search-relevance/internal/model"
)

// Cache stores computed judgment sets by click-model parameter key.
// Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*model.Judgment, error)
	Put(ctx context.Context, key string, j *model.Judgment) error
}

type cacheEntry struct {
	judgment  *model.Judgment
	expiresAt time.Time
}

// MemoryCache is an in-process cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewMemoryCache creates a memory cache. A zero ttl never expires.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*model.Judgment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		return nil, nil
	}
	return e.judgment, nil
}

func (c *MemoryCache) Put(ctx context.Context, key string, j *model.Judgment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := cacheEntry{judgment: j}
	if c.ttl > 0 {
		e.expiresAt = time.Now().Add(c.ttl)
	}
	c.entries[key] = e
	return nil
}

// RedisCache keeps judgment sets as JSON strings with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed judgment cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "relevance:judgment-cache:",
		ttl:    ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*model.Judgment, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading judgment cache: %w", err)
	}

	var j model.Judgment
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decoding cached judgment: %w", err)
	}
	return &j, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, j *model.Judgment) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encoding judgment: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing judgment cache: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
