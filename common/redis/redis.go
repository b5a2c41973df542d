package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
)

// RedisClient wraps the go-redis client with the operations the session
// tracker and the API need.
type RedisClient struct {
	client *redis.Client
}

// NewClient creates a new Redis client instance
func NewClient(cfg config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
	}, nil
}

// Wrap uses an existing go-redis client.
func Wrap(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Close closes the Redis client connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Delete removes a key
func (c *RedisClient) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// HSet writes fields of the hash at key.
func (c *RedisClient) HSet(ctx context.Context, key string, fields map[string]any) error {
	return c.client.HSet(ctx, key, fields).Err()
}

// HGetAll returns every field of the hash at key, empty when it does not exist.
func (c *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

func (c *RedisClient) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return c.client.HIncrBy(ctx, key, field, incr).Result()
}

// HSetNX sets field only when it is missing and reports whether it did.
func (c *RedisClient) HSetNX(ctx context.Context, key, field string, value any) (bool, error) {
	return c.client.HSetNX(ctx, key, field, value).Result()
}
