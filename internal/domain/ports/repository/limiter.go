package repository

import (
	"context"
	"time"
)

// RateLimiter enforces a hard ceiling of limit executions per rolling window.
type RateLimiter interface {
	// Wait blocks until a slot for key is free or ctx ends.
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// Locker guards singleton background jobs across worker processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}
