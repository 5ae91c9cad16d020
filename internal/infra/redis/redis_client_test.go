//go:build !integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachhire-ai/internal/config"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "rate_limit:flow2:enquiry-intake", RateLimitKey("flow2:enquiry-intake"))
	assert.Equal(t, "lock:sched:lease-reaper", LockKey("sched:lease-reaper"))
}

func TestClientOptions(t *testing.T) {
	opts, err := clientOptions(&config.RedisConfig{URL: "redis://:urlpass@cache:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "urlpass", opts.Password)
	assert.Equal(t, 2, opts.DB)

	opts, err = clientOptions(&config.RedisConfig{URL: "redis://cache:6380/2", Password: "cfgpass", DB: 5})
	require.NoError(t, err)
	assert.Equal(t, "cfgpass", opts.Password)
	assert.Equal(t, 5, opts.DB)

	opts, err = clientOptions(&config.RedisConfig{URL: "localhost:6379"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), &config.RedisConfig{URL: "http://localhost:6379"})
	assert.Error(t, err)
}
