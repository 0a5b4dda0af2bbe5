package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/pkg/logger"
)

// Client wraps RedLock manager for the training lock + standard Redis for caching
type Client struct {
	lockManager *redlock.RedLock
	cache       *redis.Client
	lockTTL     time.Duration
}

// New creates new Redis client with RedLock support + caching
func New(cfg *config.RedisConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisAddrs := []string{fmt.Sprintf("tcp://%s", cfg.Addr())}

	lockManager, err := redlock.NewRedLock(ctx, redisAddrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	cacheClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	if err := cacheClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
	}

	logger.Info("redis client initialized",
		zap.String("address", cfg.Addr()),
		zap.Int("db", cfg.DB),
	)

	return &Client{
		lockManager: lockManager,
		cache:       cacheClient,
		lockTTL:     cfg.LockTTL,
	}, nil
}

// ScoreCache returns a sentiment score cache stored under prefix
func (c *Client) ScoreCache(prefix string, ttl time.Duration) *ScoreCache {
	return NewScoreCache(c.cache, prefix, ttl)
}

// TrainingLock returns a lock guarding one artifact directory
func (c *Client) TrainingLock(artifactDir string) *DistributedLock {
	return NewDistributedLock(c.lockManager, artifactDir, c.lockTTL)
}

// Close closes redis connections
func (c *Client) Close() error {
	if c.cache != nil {
		logger.Info("closing redis cache client")
		if err := c.cache.Close(); err != nil {
			return fmt.Errorf("failed to close redis cache: %w", err)
		}
	}
	return nil
}

// Health pings the cache connection
func (c *Client) Health(ctx context.Context) error {
	return c.cache.Ping(ctx).Err()
}
