package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when a key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// KV is the short-TTL key/value surface consumed by the orchestrator and
// the drivers (verification-context mappings, auth-token memos).
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, producer func() (string, error)) (string, error)
}

// Queue is the webhook job transport: a main FIFO queue plus a delayed
// set whose due members the requeuer moves back onto the main queue.
type Queue interface {
	Push(ctx context.Context, queue string, payload []byte) error
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	PushDelayed(ctx context.Context, queue string, payload []byte, readyAt time.Time) error
}

// Locker provides the per-reference mutual exclusion used by webhook
// processing. Acquire returns false without error when the lock is held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
