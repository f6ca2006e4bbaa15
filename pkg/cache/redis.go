package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis configuration
type Config struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Close gracefully closes the Redis client
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// ReserveIdempotencyKey claims an idempotency key for a new ride request.
// Returns (reserved=true) when the key was free and is now bound to value,
// or (existing, false) with the previously bound value when a request with
// the same key already went through.
func ReserveIdempotencyKey(ctx context.Context, client *redis.Client, key, value string, ttl time.Duration) (string, bool, error) {
	ok, err := client.SetNX(ctx, idempotencyKey(key), value, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return value, true, nil
	}

	existing, err := client.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// The key expired between SetNX and Get; treat as a fresh request.
		return value, true, client.Set(ctx, idempotencyKey(key), value, ttl).Err()
	}
	if err != nil {
		return "", false, fmt.Errorf("read idempotency key: %w", err)
	}
	return existing, false, nil
}

// ReleaseIdempotencyKey drops a reservation after a failed request so the
// client may retry with the same key.
func ReleaseIdempotencyKey(ctx context.Context, client *redis.Client, key string) error {
	return client.Del(ctx, idempotencyKey(key)).Err()
}

func idempotencyKey(key string) string {
	return "rides:idempotency:" + key
}
