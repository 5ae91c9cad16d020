package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"coachhire-ai/internal/domain/ports/repository"
)

var _ repository.Locker = (*Locker)(nil)

// Locker hands out scheduler leases. A lease is a key set with NX and a TTL
// holding a random token; only the holder of the token can release it, so a
// holder whose lease already expired cannot release its successor's.
type Locker struct {
	rdb *redis.Client
}

func NewLocker(c *Client) *Locker { return &Locker{rdb: c.rdb} }

func LockKey(name string) string { return "lock:" + name }

func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, LockKey(name), token, ttl).Result()
	switch {
	case err != nil:
		return "", false, fmt.Errorf("lock %s: %w", name, err)
	case !ok:
		return "", false, nil
	}
	return token, true, nil
}

var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])`)

// Unlock ignores a token that no longer owns the lease.
func (l *Locker) Unlock(ctx context.Context, name, token string) error {
	if err := releaseLease.Run(ctx, l.rdb, []string{LockKey(name)}, token).Err(); err != nil {
		return fmt.Errorf("unlock %s: %w", name, err)
	}
	return nil
}
