package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bloomhouse/cartsync/config"
	"github.com/bloomhouse/cartsync/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// Init initializes the shared Redis connection
func Init(cfg *config.RedisConfig) error {
	c, err := Connect(fmt.Sprintf("%s:%s", cfg.Host, cfg.Port), cfg.Password, cfg.DB)
	if err != nil {
		return err
	}
	client = c
	return nil
}

// Connect opens a client and pings it.
func Connect(addr, password string, db int) (*redis.Client, error) {
	logger.Info("Initializing Redis connection", map[string]interface{}{
		"addr": addr,
		"db":   db,
	})

	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", err, map[string]interface{}{
			"addr": addr,
		})
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established successfully", nil)
	return c, nil
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	return client
}

// Close closes the Redis connection
func Close() error {
	if client != nil {
		logger.Info("Closing Redis connection", nil)
		return client.Close()
	}
	return nil
}

// CountCache stores each user's cart unit count under cart:count:<user>.
type CountCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCountCache(c *redis.Client, ttl time.Duration) *CountCache {
	return &CountCache{client: c, ttl: ttl}
}

func countKey(userID string) string {
	return fmt.Sprintf("cart:count:%s", userID)
}

func (c *CountCache) Get(ctx context.Context, userID string) (int, bool, error) {
	val, err := c.client.Get(ctx, countKey(userID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		// corrupt entry, treat as a miss
		logger.Warn("Discarding malformed cart count", map[string]interface{}{
			"user_id": userID,
		})
		return 0, false, nil
	}
	return n, true, nil
}

func (c *CountCache) Set(ctx context.Context, userID string, count int) error {
	return c.client.Set(ctx, countKey(userID), count, c.ttl).Err()
}

func (c *CountCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, countKey(userID)).Err()
}
