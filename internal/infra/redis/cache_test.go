//go:build !integration

package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (m *mapCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	return nil
}

func (m *mapCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type fare struct {
	Route string
	Pence int64
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()
	mc := &mapCache{data: map[string][]byte{}}
	rt := NewReadThrough[*fare](mc, "fares", time.Minute)
	loads := 0
	load := func(context.Context) (*fare, error) {
		loads++
		return &fare{Route: "LDS-YRK", Pence: 45000}, nil
	}

	for range 3 {
		f, err := rt.Load(ctx, "fare:lds-yrk", load)
		require.NoError(t, err)
		assert.Equal(t, int64(45000), f.Pence)
	}
	assert.Equal(t, 1, loads)

	rt.Drop(ctx, "fare:lds-yrk")
	_, err := rt.Load(ctx, "fare:lds-yrk", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestReadThrough_Degrades(t *testing.T) {
	ctx := context.Background()
	mc := &mapCache{data: map[string][]byte{"k": []byte("{not json")}}
	rt := NewReadThrough[fare](mc, "fares", time.Minute)

	f, err := rt.Load(ctx, "k", func(context.Context) (fare, error) { return fare{Pence: 1}, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.Pence)
	assert.JSONEq(t, `{"Route":"","Pence":1}`, string(mc.data["k"]), "corrupt entry is replaced")

	mc.getErr = errors.New("connection refused")
	f, err = rt.Load(ctx, "k", func(context.Context) (fare, error) { return fare{Pence: 2}, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.Pence)

	boom := errors.New("db down")
	mc.getErr = nil
	delete(mc.data, "k")
	_, err = rt.Load(ctx, "k", func(context.Context) (fare, error) { return fare{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, mc.data, "k")
}
