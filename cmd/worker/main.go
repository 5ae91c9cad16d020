package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/config"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/infra/adapters/notify"
	"coachhire-ai/internal/infra/logging"
	"coachhire-ai/internal/infra/metrics"
	"coachhire-ai/internal/infra/sched"
	"coachhire-ai/internal/infra/telemetry"
	"coachhire-ai/internal/infra/web"
	"coachhire-ai/internal/infra/worker"
	"coachhire-ai/internal/pipeline"
	"coachhire-ai/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

// stores is every repository port the process needs, backed by either
// Postgres and Redis or memory.
type stores struct {
	tx             repository.TransactionManager
	jobs           repository.JobRepository
	decisions      repository.DecisionLogRepository
	costs          repository.CostRepository
	reviews        repository.ReviewTaskRepository
	config         repository.AiConfigRepository
	pricing        repository.ModelPricingRepository
	enquiries      repository.EnquiryRepository
	emails         repository.InboundEmailRepository
	suppliers      repository.SupplierRepository
	supplierQuotes repository.SupplierQuoteRepository
	customerQuotes repository.CustomerQuoteRepository
	bookings       repository.BookingRepository
	limiter        repository.RateLimiter
	locker         repository.Locker

	// dbStats is nil in memory mode.
	dbStats func()
	close   func()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "in-memory storage and the fake AI provider")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("DEV MODE: memory storage, nothing survives a restart")
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// ---- Storage ----
	var st *stores
	if cfg.Runtime.Dev {
		st = memoryStores()
	} else {
		st, err = durableStores(ctx, cfg, logger)
		if err != nil {
			return err
		}
	}
	defer st.close()

	// ---- Use cases ----
	cfgSvc := usecase.NewAIConfigService(st.config, logger)
	if n, err := cfgSvc.EnsureDefaults(ctx, "system"); err != nil {
		return fmt.Errorf("seed ai config: %w", err)
	} else if n > 0 {
		logger.Info().Int("keys", n).Msg("seeded default ai config")
	}
	pricingUC := usecase.NewPricingUseCase(st.pricing, logger)
	if _, err := pricingUC.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed model pricing: %w", err)
	}
	costGuard := usecase.NewCostGuard(st.costs, cfgSvc, logger)
	reviews := usecase.NewReviewTracker(st.tx, st.reviews, logger)

	// ---- AI adapter ----
	ai, err := buildAI(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("ai adapter: %w", err)
	}
	logger.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.DefaultModel).Msg("ai adapter ready")

	// ---- Notifications ----
	pool := worker.NewPool(cfg.Notify.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()
	router := notify.NewRouter(notify.NewLogNotifier(logger), pool, logger)
	if tg := cfg.Notify.Telegram; tg.Token != "" {
		bot, err := notify.NewTelegramOpsBot(tg.Token, tg.ChatID, notify.OpsQueries{Budget: costGuard, Reviews: reviews}, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		router.Route(adapter.ChannelOps, bot)
		go func() {
			if err := bot.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
		defer bot.StopPolling()
	}

	// ---- Queue and pipelines ----
	queue := worker.NewQueue(st.jobs, st.limiter, cfg.Queue, logger)
	queue.SetGate(cfgSvc)
	events := usecase.NewEventService(usecase.EventDeps{
		Tx:             st.tx,
		Enquiries:      st.enquiries,
		Emails:         st.emails,
		SupplierQuotes: st.supplierQuotes,
		CustomerQuotes: st.customerQuotes,
		Bookings:       st.bookings,
		Queue:          queue,
		Notifier:       router,
	}, logger)
	runner := pipeline.NewRunner(pipeline.Deps{
		Tx:             st.tx,
		Enquiries:      st.enquiries,
		Emails:         st.emails,
		Suppliers:      st.suppliers,
		SupplierQuotes: st.supplierQuotes,
		CustomerQuotes: st.customerQuotes,
		Bookings:       st.bookings,
		Decisions:      st.decisions,
		Config:         cfgSvc,
		Costs:          costGuard,
		Gate:           usecase.NewConfidenceGate(cfgSvc),
		Reviews:        reviews,
		Queue:          queue,
		Notifier:       router,
		Inference:      pipeline.NewInference(ai, st.pricing, cfg.AI.DefaultModel, cfg.AI.TaskModels, cfg.AI.Timeout, logger),
	}, logger)
	reviews.OnResolved(runner.Resume)
	dispatcher := worker.NewDispatcher(queue, runner, logger)

	// ---- Housekeeping ----
	scheduler := sched.NewScheduler(st.locker, logger)
	sched.Housekeeping(scheduler, cfg.Scheduler, queue, queue, events, st.dbStats)
	scheduler.Start(ctx)

	// ---- Admin API ----
	api := web.NewServer(web.Deps{
		Reviews: reviews,
		Config:  cfgSvc,
		Budget:  costGuard,
		Pricing: pricingUC,
		Events:  events,
		Queue:   queue,
		Jobs:    queue.Jobs(),
	}, cfg.Admin, cfg.Security, logger)
	go func() {
		if err := api.Start(); err != nil {
			logger.Error().Err(err).Msg("admin API stopped")
		}
	}()

	done := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(done)
	}()
	logger.Info().Str("version", version).Str("worker_id", queue.WorkerID()).Msg("worker started")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		logger.Info().Str("signal", s.String()).Msg("shutdown requested")
	case <-ctx.Done():
	}

	sctx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := api.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("admin API shutdown")
	}
	stop()
	select {
	case <-done:
	case <-sctx.Done():
		logger.Warn().Msg("consumers did not drain before the shutdown deadline")
	}
	scheduler.Wait()
	return nil
}
