package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by Get when the key is absent. Callers always fall
// through to regenerating the value; the cache is never authoritative.
var ErrCacheMiss = errors.New("cache miss")

// PlaylistCache stores small generated text artifacts (HLS playlists) under
// deterministic keys.
type PlaylistCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// redisCache implements PlaylistCache on Redis.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache connects a playlist cache to Redis. The connection is
// verified eagerly so a bad address fails at startup, not on first request.
func NewRedisCache(ctx context.Context, addr, password string, db int) (PlaylistCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &redisCache{client: client}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// noopCache is used when no Redis address is configured; every Get misses.
type noopCache struct{}

// NewNoopCache returns a cache that stores nothing.
func NewNoopCache() PlaylistCache {
	return noopCache{}
}

func (noopCache) Get(ctx context.Context, key string) (string, error) {
	return "", ErrCacheMiss
}

func (noopCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}
