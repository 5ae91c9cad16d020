package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"coachhire-ai/internal/domain/ports/repository"
)

// RateLimiter is a sliding-log limiter: at most limit admissions per rolling
// window per key. Waiters sleep until the oldest admission leaves the window.
type RateLimiter struct {
	mu  sync.Mutex
	log map[string][]time.Time
	now func() time.Time
}

var _ repository.RateLimiter = (*RateLimiter)(nil)

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{log: map[string][]time.Time{}, now: time.Now}
}

func (l *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return nil
	}
	for {
		wait := l.admit(key, limit, window)
		if wait <= 0 {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (l *RateLimiter) admit(key string, limit int, window time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cut := now.Add(-window)
	entries := l.log[key]
	i := 0
	for i < len(entries) && !entries[i].After(cut) {
		i++
	}
	entries = entries[i:]
	if len(entries) < limit {
		l.log[key] = append(entries, now)
		return 0
	}
	l.log[key] = entries
	return entries[0].Add(window).Sub(now) + time.Millisecond
}

type Locker struct {
	mu   sync.Mutex
	held map[string]lease
}

type lease struct {
	token string
	until time.Time
}

var _ repository.Locker = (*Locker)(nil)

func NewLocker() *Locker { return &Locker{held: map[string]lease{}} }

func (l *Locker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if cur, ok := l.held[key]; ok && cur.until.After(now) {
		return "", false, nil
	}
	tok := uuid.NewString()
	l.held[key] = lease{token: tok, until: now.Add(ttl)}
	return tok, true, nil
}

func (l *Locker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}
