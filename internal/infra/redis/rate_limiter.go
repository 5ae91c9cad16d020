package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"coachhire-ai/internal/domain/ports/repository"
)

var _ repository.RateLimiter = (*RateLimiter)(nil)

// slidingWindow admits a call when fewer than ARGV[1] admissions fall inside the
// last ARGV[2] ms. It returns 0 on admission, otherwise the ms until a slot frees.
// The server clock is used so that every worker agrees on the window.
var slidingWindow = redis.NewScript(`
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) < limit then
	redis.call("ZADD", KEYS[1], now, ARGV[3])
	redis.call("PEXPIRE", KEYS[1], window)
	return 0
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
	wait = 1
end
return wait`)

// RateLimiter is a cluster-wide sliding-log limiter.
type RateLimiter struct {
	rdb *redis.Client
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb}
}

// Wait blocks until key has a free slot in the window or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return nil
	}
	k := RateLimitKey(key)
	for {
		wait, err := slidingWindow.Run(ctx, r.rdb, []string{k}, limit, window.Milliseconds(), uuid.NewString()).Int64()
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		t := time.NewTimer(time.Duration(wait) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func RateLimitKey(name string) string {
	return fmt.Sprintf("rate_limit:%s", name)
}
