package storage

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps one Redis hash per namespace, field = document id.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a Redis-backed document store.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(namespace string) string {
	return r.prefix + namespace
}

func (r *RedisBackend) Get(ctx context.Context, namespace, id string) ([]byte, error) {
	data, err := r.client.HGet(ctx, r.key(namespace), id).Bytes()
	if err == redis.Nil {
		return nil, errNotFound
	}
	return data, err
}

func (r *RedisBackend) Put(ctx context.Context, namespace, id string, data []byte) error {
	return r.client.HSet(ctx, r.key(namespace), id, data).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, namespace, id string) error {
	return r.client.HDel(ctx, r.key(namespace), id).Err()
}

// List returns documents ordered by id.
func (r *RedisBackend) List(ctx context.Context, namespace string) ([][]byte, error) {
	all, err := r.client.HGetAll(ctx, r.key(namespace)).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([][]byte, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, []byte(all[id]))
	}
	return docs, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
