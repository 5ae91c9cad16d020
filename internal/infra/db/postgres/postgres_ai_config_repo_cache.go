package postgres

import (
	"context"
	"time"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	red "coachhire-ai/internal/infra/redis"
)

var _ repository.AiConfigRepository = (*cachedAiConfigRepo)(nil)

// maxConfigCacheTTL bounds how long a worker can act on a stale toggle or
// threshold written through another worker's cache.
const maxConfigCacheTTL = 30 * time.Second

func configKey(key string) string { return "ai_config:" + key }

// cachedAiConfigRepo caches single entries for the gate and toggle checks.
// List goes straight to Postgres; only the admin API calls it.
type cachedAiConfigRepo struct {
	repository.AiConfigRepository
	entries *red.ReadThrough[*model.AiConfigEntry]
}

func NewAiConfigRepoCacheDecorator(inner repository.AiConfigRepository, cache red.Cache, ttl time.Duration) repository.AiConfigRepository {
	if ttl <= 0 || ttl > maxConfigCacheTTL {
		ttl = maxConfigCacheTTL
	}
	return &cachedAiConfigRepo{
		AiConfigRepository: inner,
		entries:            red.NewReadThrough[*model.AiConfigEntry](cache, "ai_config", ttl),
	}
}

// Get bypasses the cache inside a transaction, where the caller wants what
// the transaction sees.
func (r *cachedAiConfigRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.AiConfigEntry, error) {
	if tx != nil {
		return r.AiConfigRepository.Get(ctx, tx, key)
	}
	return r.entries.Load(ctx, configKey(key), func(ctx context.Context) (*model.AiConfigEntry, error) {
		return r.AiConfigRepository.Get(ctx, tx, key)
	})
}

func (r *cachedAiConfigRepo) Put(ctx context.Context, tx repository.Tx, e *model.AiConfigEntry) error {
	if err := r.AiConfigRepository.Put(ctx, tx, e); err != nil {
		return err
	}
	r.entries.Drop(ctx, configKey(e.Key))
	return nil
}
