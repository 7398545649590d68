package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisService is a distributed lock service backed by Redis.
type RedisService struct {
	client *redis.Client
	prefix string
}

// NewRedisService creates a Redis lock service. Keys are stored under prefix.
func NewRedisService(client *redis.Client, prefix string) *RedisService {
	return &RedisService{client: client, prefix: prefix}
}

// Acquire implements Service with SET NX PX.
func (s *RedisService) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, errors.ValidationError("lock ttl must be positive")
	}

	lease := newLease(key, ttl)
	ok, err := s.client.SetNX(ctx, s.prefix+key, lease.Token, ttl).Result()
	if err != nil {
		return nil, errors.LockError(fmt.Sprintf("acquiring lock %s", key), err)
	}
	if !ok {
		return nil, heldError(key)
	}
	return lease, nil
}

// Release implements Service.
func (s *RedisService) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return errors.LockError("release of nil lease", nil)
	}

	n, err := releaseScript.Run(ctx, s.client, []string{s.prefix + lease.Key}, lease.Token).Int()
	if err != nil {
		return errors.LockError(fmt.Sprintf("releasing lock %s", lease.Key), err)
	}
	if n == 0 {
		return errors.LockError(fmt.Sprintf("lock %s is no longer held by this run", lease.Key), nil).
			WithDetail("key", lease.Key)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisService) Close() error {
	return s.client.Close()
}
