package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/go-redis/redis/v8"
)

// kv is the part of the redis client the cache needs
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// ScoreCache stores article sentiment scores; implements sentiment.ScoreCache
type ScoreCache struct {
	client kv
	prefix string
	ttl    time.Duration
}

// NewScoreCache creates cache over a redis client
func NewScoreCache(client kv, prefix string, ttl time.Duration) *ScoreCache {
	return &ScoreCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached score of key, ok is false on a miss
func (c *ScoreCache) Get(ctx context.Context, key string) (float64, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cached score: %w", err)
	}

	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached score %q: %w", val, err)
	}
	return score, true, nil
}

// Set stores score under key with the cache TTL
func (c *ScoreCache) Set(ctx context.Context, key string, score float64) error {
	val := strconv.FormatFloat(score, 'g', -1, 64)
	if err := c.client.Set(ctx, c.prefix+key, val, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache score: %w", err)
	}
	return nil
}
