package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ domain.Cache = (*RedisCache)(nil)

// NewRedis создаёт кэш. Все ключи получают общий префикс.
func NewRedis(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Get возвращает значение или domain.ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, domain.ErrCacheMiss) {
			metrics.ObserveNetworkRequest("redis", "cache_get", "miss", start, nil)
			return
		}
		metrics.ObserveNetworkRequest("redis", "cache_get", "hit", start, err)
	}()
	data, err = c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	return data, err
}

// Set задаёт значение.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("redis", "cache_set", c.prefix, start, err)
	}()
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Delete удаляет значение. Отсутствие ключа ошибкой не считается.
func (c *RedisCache) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("redis", "cache_del", c.prefix, start, err)
	}()
	return c.client.Del(ctx, c.prefix+key).Err()
}
