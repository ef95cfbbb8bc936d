package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ListingTTL bounds how stale an anonymous catalog listing may be.
const ListingTTL = 60 * time.Second

// Cache is the catalog's response cache. Implementations must tolerate
// concurrent access; a miss is reported as an empty string, not an error.
type Cache interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// ListingKey builds the cache key for a catalog listing page.
func ListingKey(category, tier string, page, limit int) string {
	return fmt.Sprintf("catalog:%s:%s:%d:%d", category, tier, page, limit)
}

type redisCache struct {
	client *redis.Client
}

// NewRedisCache connects to a Redis instance at addr.
func NewRedisCache(addr string) Cache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *redisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}

	if err != nil {
		return "", err
	}

	return val, nil
}

// DeletePrefix removes every key under prefix. Used to invalidate cached
// listings whenever a product or variant is mutated.
func (r *redisCache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
