package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/config"
	"coachhire-ai/internal/domain/ports/adapter"
	aiAdapters "coachhire-ai/internal/infra/adapters/ai"
	pg "coachhire-ai/internal/infra/db/postgres"
	"coachhire-ai/internal/infra/memstore"
	red "coachhire-ai/internal/infra/redis"
)

func memoryStores() *stores {
	m := memstore.New()
	return &stores{
		tx:             m.Tx,
		jobs:           m.Jobs,
		decisions:      m.Decisions,
		costs:          m.Costs,
		reviews:        m.Reviews,
		config:         m.Config,
		pricing:        m.Pricing,
		enquiries:      m.Enquiries,
		emails:         m.Emails,
		suppliers:      m.Suppliers,
		supplierQuotes: m.SupplierQuotes,
		customerQuotes: m.CustomerQuotes,
		bookings:       m.Bookings,
		limiter:        m.Limiter,
		locker:         m.Locker,
		close:          func() {},
	}
}

// durableStores connects Postgres and Redis. Pricing and config reads go
// through the Redis cache decorators.
func durableStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*stores, error) {
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	rc, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	logger.Info().Int32("max_conns", cfg.Database.MaxConns).Msg("postgres and redis connected")

	tm := pg.NewTxManager(pool)
	return &stores{
		tx:             tm,
		jobs:           pg.NewJobRepo(pool, tm),
		decisions:      pg.NewDecisionLogRepo(pool),
		costs:          pg.NewCostRepo(pool, tm),
		reviews:        pg.NewReviewRepo(pool),
		config:         pg.NewAiConfigRepoCacheDecorator(pg.NewAiConfigRepo(pool), rc, cfg.Redis.TTL),
		pricing:        pg.NewModelPricingRepoCacheDecorator(pg.NewModelPricingRepo(pool), rc, cfg.Redis.TTL),
		enquiries:      pg.NewEnquiryRepo(pool),
		emails:         pg.NewInboundEmailRepo(pool),
		suppliers:      pg.NewSupplierRepo(pool),
		supplierQuotes: pg.NewSupplierQuoteRepo(pool),
		customerQuotes: pg.NewCustomerQuoteRepo(pool),
		bookings:       pg.NewBookingRepo(pool),
		limiter:        red.NewRateLimiter(rc),
		locker:         red.NewLocker(rc),
		dbStats:        func() { pg.ReportPoolStats(pool) },
		close: func() {
			_ = rc.Close()
			pool.Close()
		},
	}, nil
}

// buildAI picks the provider adapter and wraps it with the process-wide
// concurrency and rate caps.
func buildAI(ctx context.Context, cfg config.AIConfig) (adapter.Completer, error) {
	var (
		ai  adapter.Completer
		err error
	)
	switch cfg.Provider {
	case "fake":
		ai = aiAdapters.NewFakeAdapter()
	case "openai":
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.DefaultModel, cfg.MaxOutputTokens)
	case "gemini":
		ai, err = aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.DefaultModel, cfg.MaxOutputTokens)
	case "multi":
		byProvider := map[string]adapter.Completer{"fake": aiAdapters.NewFakeAdapter()}
		if cfg.OpenAIKey != "" {
			oa, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, "gpt-4o-mini", cfg.MaxOutputTokens)
			if err != nil {
				return nil, err
			}
			byProvider["openai"] = oa
		}
		if cfg.GeminiKey != "" {
			gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, "gemini-2.0-flash", cfg.MaxOutputTokens)
			if err != nil {
				return nil, err
			}
			byProvider["gemini"] = gm
		}
		defaultProvider := "openai"
		if cfg.OpenAIKey == "" {
			defaultProvider = "gemini"
		}
		ai = aiAdapters.NewRouter(defaultProvider, byProvider, cfg.ModelProviders)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return aiAdapters.NewLimited(ai, cfg.ConcurrentLimit, cfg.RequestsPerSecond, cfg.Burst), nil
}
