package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"coachhire-ai/internal/config"
	"coachhire-ai/internal/domain/ports/repository"
	ucport "coachhire-ai/internal/domain/ports/usecase"
	"coachhire-ai/internal/infra/logging"
	"coachhire-ai/internal/infra/metrics"
	"coachhire-ai/internal/usecase"
)

// Deps are the use cases the admin API exposes.
type Deps struct {
	Reviews usecase.ReviewTracker
	Config  usecase.AIConfigService
	Budget  usecase.CostGuard
	Pricing usecase.PricingUseCase
	Events  usecase.EventService
	Queue   ucport.Enqueuer
	Jobs    repository.JobRepository
}

type Server struct {
	deps    Deps
	tokens  *tokens
	apiKey  string
	origins []string
	timeout time.Duration
	log     *zerolog.Logger
	srv     *http.Server
}

func NewServer(deps Deps, cfg config.AdminConfig, sec config.SecurityConfig, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		deps:    deps,
		tokens:  newTokens(sec.JWTSecret, sec.TokenTTL),
		apiKey:  sec.AdminAPIKey,
		origins: cfg.AllowedOrigins,
		timeout: cfg.RequestTimeout,
		log:     &l,
		srv:     &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), ReadHeaderTimeout: 10 * time.Second},
	}
}

// Router builds the chi route tree. /health and /metrics are public.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.traceID)
	r.Use(s.requestLog)
	r.Use(chimw.Recoverer)
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.timeout > 0 {
		r.Use(chimw.Timeout(s.timeout))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", s.handleMintToken)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Route("/reviews", func(r chi.Router) {
				r.Get("/", s.handleListReviews)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetReview)
					r.Post("/claim", s.handleClaimReview)
					r.Post("/resolve", s.handleResolveReview)
					r.Post("/dismiss", s.handleDismissReview)
				})
			})

			r.Route("/config", func(r chi.Router) {
				r.Get("/", s.handleListConfig)
				r.Get("/{key}", s.handleGetConfig)
				r.Put("/{key}", s.handlePutConfig)
			})
			r.Get("/budget", s.handleBudget)

			r.Route("/pricing", func(r chi.Router) {
				r.Get("/", s.handleListPricing)
				r.Post("/", s.handleCreatePricing)
				r.Put("/{model}", s.handleUpdatePricing)
				r.Delete("/{model}", s.handleDeletePricing)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", s.handleListJobs)
				r.Post("/", s.handleEnqueue)
				r.Get("/{id}", s.handleGetJob)
			})

			r.Route("/events", func(r chi.Router) {
				r.Post("/inbound-email", s.handleInboundEmail)
				r.Post("/enquiries", s.handleEnquirySubmitted)
				r.Post("/enquiries/{id}/cancel", s.handleCancelEnquiry)
				r.Post("/bids/{id}/submit", s.handleBidSubmitted)
				r.Post("/bids/{id}/decline", s.handleBidDeclined)
				r.Post("/quotes/{id}/send", s.handleSendQuote)
				r.Post("/quotes/{id}/payment", s.handlePayment)
			})
		})
	})
	return r
}

func (s *Server) Start() error {
	s.srv.Handler = s.Router()
	s.log.Info().Str("addr", s.srv.Addr).Msg("admin API listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), chimw.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.IncAdminRequest(r.Method, route, strconv.Itoa(status))
		logging.With(r.Context(), s.log).Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}
