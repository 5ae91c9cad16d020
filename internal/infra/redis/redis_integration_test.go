//go:build integration

package redis

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"coachhire-ai/internal/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	c, err := NewClient(context.Background(), &config.RedisConfig{URL: url})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRateLimiter_HardCeiling(t *testing.T) {
	c := newTestClient(t)
	rl := NewRateLimiter(c)
	key := "test-" + uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Wait(ctx, key, 3, time.Minute) == nil {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	if admitted != 3 {
		t.Fatalf("expected 3 admissions within the window, got %d", admitted)
	}
}

func TestRateLimiter_SlotFreesAfterWindow(t *testing.T) {
	c := newTestClient(t)
	rl := NewRateLimiter(c)
	key := "test-" + uuid.NewString()
	ctx := context.Background()

	if err := rl.Wait(ctx, key, 1, 200*time.Millisecond); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := rl.Wait(ctx, key, 1, 200*time.Millisecond); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatalf("second admission did not wait for the window")
	}
}

func TestLocker(t *testing.T) {
	c := newTestClient(t)
	l := NewLocker(c)
	ctx := context.Background()
	key := "test-" + uuid.NewString()

	tok, ok, err := l.TryLock(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); ok {
		t.Fatal("second holder must not get the lock")
	}
	if err := l.Unlock(ctx, key, "someone-else"); err != nil {
		t.Fatalf("foreign unlock: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); ok {
		t.Fatal("foreign token must not release the lock")
	}
	if err := l.Unlock(ctx, key, tok); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); !ok {
		t.Fatal("lock should be free after unlock")
	}
}
