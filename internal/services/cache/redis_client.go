package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(addr string) *RedisClient {
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     "",
			DB:           0,
			PoolSize:     100,
			MinIdleConns: 10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolTimeout:  4 * time.Second,
		}),
	}
}

func (r *RedisClient) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("cache: failed to ping redis: %w", err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("cache: failed to close redis connection: %w", err)
	}
	return nil
}

// Raw exposes the underlying client for pipeline consumers (requeuer).
func (r *RedisClient) Raw() *redis.Client {
	return r.client
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache: failed to get %q: %w", key, err)
	}
	return value, nil
}

func (r *RedisClient) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set %q: %w", key, err)
	}
	return nil
}

func (r *RedisClient) GetOrCompute(ctx context.Context, key string, ttl time.Duration, producer func() (string, error)) (string, error) {
	value, err := r.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrMiss) {
		return "", err
	}
	value, err = producer()
	if err != nil {
		return "", err
	}
	if err := r.Put(ctx, key, value, ttl); err != nil {
		return "", err
	}
	return value, nil
}

func (r *RedisClient) Push(ctx context.Context, queue string, payload []byte) error {
	if _, err := r.client.LPush(ctx, queue, payload).Result(); err != nil {
		return fmt.Errorf("cache: failed to push to queue %q: %w", queue, err)
	}
	return nil
}

func (r *RedisClient) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	result, err := r.client.BRPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: failed to pop from queue %q: %w", queue, err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("cache: unexpected BRPop result: %v", result)
	}
	return []byte(result[1]), nil
}

func (r *RedisClient) PushDelayed(ctx context.Context, queue string, payload []byte, readyAt time.Time) error {
	_, err := r.client.ZAdd(ctx, queue, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: string(payload),
	}).Result()
	if err != nil {
		return fmt.Errorf("cache: failed to push to delayed queue %q: %w", queue, err)
	}
	return nil
}

// Acquire takes a lock via SET NX so the check and the claim are one
// atomic step. The TTL bounds how long a crashed holder can block others.
func (r *RedisClient) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := r.client.SetNX(ctx, key, "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to acquire lock %q: %w", key, err)
	}
	return set, nil
}

func (r *RedisClient) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to release lock %q: %w", key, err)
	}
	return nil
}
