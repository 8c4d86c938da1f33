package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/repteam/rep/internal/shared"
)

// RedisLocker implements [Locker] with SET NX and a TTL.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker connects to the Redis instance at url, e.g. redis://localhost:6379/0.
func NewRedisLocker(url string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url: %w", shared.ErrInvalidConfig, err)
	}
	return &RedisLocker{rdb: redis.NewClient(opts)}, nil
}

// NewRedisLockerFromClient wraps an existing client.
func NewRedisLockerFromClient(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := shared.GenerateID()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrLockHeld, key)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Only the holder may delete; a lock that expired and was re-acquired is left alone.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if val, err := l.rdb.Get(ctx, key).Result(); err == nil && val == token {
				l.rdb.Del(ctx, key)
			}
		})
	}
	return release, nil
}

// Close closes the underlying client.
func (l *RedisLocker) Close() error { return l.rdb.Close() }

// NoopLocker always grants the lock. Used when Redis is not configured.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}
