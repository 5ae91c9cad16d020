package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"coachhire-ai/internal/infra/metrics"
)

// ReadThrough is a JSON read-through cache for one kind of value. A broken
// or unreachable cache degrades to calling the loader; it never fails a read.
type ReadThrough[T any] struct {
	cache Cache
	name  string
	ttl   time.Duration
}

// NewReadThrough labels its lookups with name in cache_lookups_total.
func NewReadThrough[T any](c Cache, name string, ttl time.Duration) *ReadThrough[T] {
	return &ReadThrough[T]{cache: c, name: name, ttl: ttl}
}

// Load returns the value cached under key, or calls load and caches what it
// returns. Loader errors are returned as they are and nothing is cached.
func (r *ReadThrough[T]) Load(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	b, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		if json.Unmarshal(b, &v) == nil {
			metrics.IncCacheRequest(r.name, "hit")
			return v, nil
		}
		metrics.IncCacheRequest(r.name, "corrupt")
	case errors.Is(err, ErrCacheMiss):
		metrics.IncCacheRequest(r.name, "miss")
	default:
		metrics.IncCacheRequest(r.name, "error")
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if b, err := json.Marshal(v); err == nil {
		_ = r.cache.Set(ctx, key, b, r.ttl)
	}
	return v, nil
}

// Drop invalidates keys. A failed delete is left to TTL expiry.
func (r *ReadThrough[T]) Drop(ctx context.Context, keys ...string) {
	_ = r.cache.Del(ctx, keys...)
}
