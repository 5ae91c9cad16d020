package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/infra/metrics"
	"coachhire-ai/internal/infra/worker"
)

var _ adapter.Notifier = (*Router)(nil)

// Router picks the notifier of a channel and, when a pool is set, delivers in
// the background so callers never wait on a slow transport.
type Router struct {
	routes   map[adapter.Channel]adapter.Notifier
	fallback adapter.Notifier
	pool     *worker.Pool
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewRouter(fallback adapter.Notifier, pool *worker.Pool, logger *zerolog.Logger) *Router {
	l := logger.With().Str("component", "NotifyRouter").Logger()
	return &Router{
		routes:   map[adapter.Channel]adapter.Notifier{},
		fallback: fallback,
		pool:     pool,
		timeout:  15 * time.Second,
		log:      &l,
	}
}

// Route sends every notification of ch to n.
func (r *Router) Route(ch adapter.Channel, n adapter.Notifier) *Router {
	r.routes[ch] = n
	return r
}

// Notify only fails when the background pool is saturated; delivery errors
// are logged and counted.
func (r *Router) Notify(ctx context.Context, n adapter.Notification) error {
	target := r.routes[n.Channel]
	if target == nil {
		target = r.fallback
	}
	if target == nil {
		metrics.IncNotification(string(n.Channel), "unrouted")
		return nil
	}
	if r.pool == nil {
		r.deliver(ctx, target, n)
		return nil
	}
	// the caller's context may end with its job; delivery gets its own deadline
	err := r.pool.Submit(func(poolCtx context.Context) error {
		dctx, cancel := context.WithTimeout(poolCtx, r.timeout)
		defer cancel()
		r.deliver(dctx, target, n)
		return nil
	})
	if errors.Is(err, worker.ErrPoolFull) {
		metrics.IncNotification(string(n.Channel), "dropped")
		r.log.Warn().Str("channel", string(n.Channel)).Str("subject", n.Subject).Msg("notification dropped, pool full")
	}
	return err
}

func (r *Router) deliver(ctx context.Context, target adapter.Notifier, n adapter.Notification) {
	if err := target.Notify(ctx, n); err != nil {
		metrics.IncNotification(string(n.Channel), "error")
		r.log.Warn().Err(err).Str("channel", string(n.Channel)).Str("subject", n.Subject).Msg("notification failed")
		return
	}
	metrics.IncNotification(string(n.Channel), "sent")
}
