//go:build !integration

package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"coachhire-ai/internal/config"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/infra/adapters/ai"
	"coachhire-ai/internal/infra/memstore"
	"coachhire-ai/internal/infra/worker"
	"coachhire-ai/internal/usecase"
)

type recorder struct {
	mu   sync.Mutex
	sent []adapter.Notification
}

func (r *recorder) Notify(_ context.Context, n adapter.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) count(ch adapter.Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.sent {
		if x.Channel == ch {
			n++
		}
	}
	return n
}

type harness struct {
	ctx     context.Context
	store   *memstore.Store
	fake    *ai.FakeAdapter
	queue   *worker.Queue
	cfg     usecase.AIConfigService
	reviews usecase.ReviewTracker
	events  usecase.EventService
	runner  *Runner
	notes   *recorder
}

var (
	acme  = &model.Supplier{ID: "sup-acme", Name: "Acme Coaches", Email: "ops@acme.test", Rating: 4.8, Reliability: 0.95, AvgResponseHours: 4, FleetTypes: []string{"coach"}, MaxPassengers: 57, Active: true}
	bolt  = &model.Supplier{ID: "sup-bolt", Name: "Bolt Travel", Email: "bids@bolt.test", Rating: 4.2, Reliability: 0.85, AvgResponseHours: 12, FleetTypes: []string{"coach", "minibus"}, MaxPassengers: 57, Active: true}
	cedar = &model.Supplier{ID: "sup-cedar", Name: "Cedar Minibuses", Email: "hello@cedar.test", Rating: 4.0, Reliability: 0.8, AvgResponseHours: 24, FleetTypes: []string{"minibus"}, MaxPassengers: 16, Active: true}
)

const tripEmail = "Hello,\nName: Jo Bloggs\nPickup: Leeds\nDestination: York\nDate: 2027-03-05\nPassengers: 40\nVehicle: coach\n"

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	st := memstore.New()

	cfg := usecase.NewAIConfigService(st.Config, &log)
	_, err := cfg.EnsureDefaults(ctx, "test")
	require.NoError(t, err)

	q := worker.NewQueue(st.Jobs, st.Limiter, config.QueueConfig{
		PollInterval: 2 * time.Millisecond,
		Lease:        time.Minute,
		DeferDelay:   5 * time.Millisecond,
		Retention:    time.Hour,
		Defaults:     config.FlowQueueConfig{Concurrency: 1, MaxAttempts: 3, BackoffBase: time.Millisecond},
	}, &log)

	fake := ai.NewFakeAdapter()
	notes := &recorder{}
	reviews := usecase.NewReviewTracker(st.Tx, st.Reviews, &log)
	r := NewRunner(Deps{
		Tx:             st.Tx,
		Enquiries:      st.Enquiries,
		Emails:         st.Emails,
		Suppliers:      st.Suppliers,
		SupplierQuotes: st.SupplierQuotes,
		CustomerQuotes: st.CustomerQuotes,
		Bookings:       st.Bookings,
		Decisions:      st.Decisions,
		Config:         cfg,
		Costs:          usecase.NewCostGuard(st.Costs, cfg, &log),
		Gate:           usecase.NewConfidenceGate(cfg),
		Reviews:        reviews,
		Queue:          q,
		Notifier:       notes,
		Inference:      NewInference(fake, st.Pricing, ai.FakeModel, nil, 40*time.Millisecond, &log),
	}, &log)
	reviews.OnResolved(r.Resume)

	ev := usecase.NewEventService(usecase.EventDeps{
		Tx:             st.Tx,
		Enquiries:      st.Enquiries,
		Emails:         st.Emails,
		SupplierQuotes: st.SupplierQuotes,
		CustomerQuotes: st.CustomerQuotes,
		Bookings:       st.Bookings,
		Queue:          q,
		Notifier:       notes,
	}, &log)

	require.NoError(t, st.Pricing.Create(ctx, repository.NoTX, model.NewModelPricing(ai.FakeModel, 1000, 2000, 200, true)))
	for _, s := range []*model.Supplier{acme, bolt, cedar} {
		cp := *s
		require.NoError(t, st.Suppliers.Save(ctx, repository.NoTX, &cp))
	}
	return &harness{ctx: ctx, store: st, fake: fake, queue: q, cfg: cfg, reviews: reviews, events: ev, runner: r, notes: notes}
}

func (h *harness) putConfig(t *testing.T, key string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	_, err = h.cfg.Put(h.ctx, key, b, "test")
	require.NoError(t, err)
}

// claim takes the next due job of name off the queue.
func (h *harness) claim(t *testing.T, name model.FlowName) *model.Job {
	t.Helper()
	j, err := h.store.Jobs.Claim(h.ctx, name, "test-worker", time.Minute, time.Now().Add(time.Hour).UTC())
	require.NoError(t, err, "expected a waiting %s job", name)
	return j
}

func (h *harness) runNext(t *testing.T, name model.FlowName) (*model.Job, error) {
	t.Helper()
	j := h.claim(t, name)
	return j, h.runner.Run(h.ctx, j)
}

func (h *harness) waiting(t *testing.T, name model.FlowName) []*model.Job {
	t.Helper()
	jobs, err := h.store.Jobs.List(h.ctx, repository.NoTX, repository.JobFilter{Name: name, Status: model.JobStatusWaiting})
	require.NoError(t, err)
	return jobs
}

func (h *harness) enquiry(t *testing.T, id string) *model.Enquiry {
	t.Helper()
	e, err := h.store.Enquiries.FindByID(h.ctx, repository.NoTX, id)
	require.NoError(t, err)
	return e
}

func (h *harness) decisions(t *testing.T, pipelineID string) []*model.AiDecisionLog {
	t.Helper()
	l, err := h.store.Decisions.ListByPipeline(h.ctx, repository.NoTX, pipelineID)
	require.NoError(t, err)
	return l
}

func (h *harness) openReviews(t *testing.T) []*model.HumanReviewTask {
	t.Helper()
	l, err := h.reviews.List(h.ctx, repository.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	return l
}

// intake receives the standard email and runs enquiry-intake to completion.
func (h *harness) intake(t *testing.T) *model.Enquiry {
	t.Helper()
	_, _, err := h.events.InboundEmailReceived(h.ctx, usecase.InboundEmailInput{From: "jo@example.com", Subject: "Coach to York", Body: tripEmail})
	require.NoError(t, err)
	job, err := h.runNext(t, model.FlowEnquiryIntake)
	require.NoError(t, err)
	require.NotEmpty(t, job.Payload.EnquiryID, "intake did not record the enquiry id")
	return h.enquiry(t, job.Payload.EnquiryID)
}

func (h *harness) quoteID(e *model.Enquiry, s *model.Supplier) string {
	return supplierQuoteIDFor(e.ID, s.ID)
}

func (h *harness) bid(t *testing.T, e *model.Enquiry, s *model.Supplier, pence int64) {
	t.Helper()
	_, err := h.events.BidSubmitted(h.ctx, h.quoteID(e, s), usecase.BidInput{PricePence: pence, VehicleType: "coach", Capacity: 49})
	require.NoError(t, err)
}

func (h *harness) decline(t *testing.T, e *model.Enquiry, s *model.Supplier) {
	t.Helper()
	_, err := h.events.BidDeclined(h.ctx, h.quoteID(e, s), "fully booked")
	require.NoError(t, err)
}

// toBidEvaluation runs intake and collects two bids, Acme's at £1,000.
func (h *harness) toBidEvaluation(t *testing.T) *model.Enquiry {
	t.Helper()
	e := h.intake(t)
	h.bid(t, e, acme, 100000)
	h.bid(t, e, bolt, 110000)
	h.decline(t, e, cedar)
	return e
}

func (h *harness) toQuoteGeneration(t *testing.T) *model.Enquiry {
	t.Helper()
	e := h.toBidEvaluation(t)
	_, err := h.runNext(t, model.FlowBidEvaluation)
	require.NoError(t, err)
	return h.enquiry(t, e.ID)
}
