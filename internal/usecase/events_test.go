//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/infra/memstore"
	"coachhire-ai/internal/usecase"
)

type eventsFixture struct {
	ctx    context.Context
	store  *memstore.Store
	queue  *MockEnqueuer
	notes  *MockNotifier
	events usecase.EventService
}

func newEventsFixture(t *testing.T) *eventsFixture {
	t.Helper()
	st := memstore.New()
	f := &eventsFixture{ctx: context.Background(), store: st, queue: &MockEnqueuer{}, notes: &MockNotifier{}}
	f.events = usecase.NewEventService(usecase.EventDeps{
		Tx:             st.Tx,
		Enquiries:      st.Enquiries,
		Emails:         st.Emails,
		SupplierQuotes: st.SupplierQuotes,
		CustomerQuotes: st.CustomerQuotes,
		Bookings:       st.Bookings,
		Queue:          f.queue,
		Notifier:       f.notes,
	}, testLogger())
	return f
}

// seedBidding stores an enquiry waiting on one requested bid per supplier id.
func (f *eventsFixture) seedBidding(t *testing.T, enquiryID string, deadline time.Time, suppliers ...string) {
	t.Helper()
	require.NoError(t, f.store.Enquiries.Save(f.ctx, repository.NoTX, &model.Enquiry{
		ID: enquiryID, CustomerEmail: "jo@example.com", Status: model.EnquirySentToSuppliers, Version: 1,
	}))
	for _, s := range suppliers {
		require.NoError(t, f.store.SupplierQuotes.Create(f.ctx, repository.NoTX, &model.SupplierQuote{
			ID: enquiryID + "-" + s, EnquiryID: enquiryID, SupplierID: s,
			Status: model.SupplierQuoteRequested, Deadline: deadline,
		}))
	}
}

func (f *eventsFixture) status(t *testing.T, enquiryID string) model.EnquiryStatus {
	t.Helper()
	e, err := f.store.Enquiries.FindByID(f.ctx, repository.NoTX, enquiryID)
	require.NoError(t, err)
	return e.Status
}

func TestEvents_InboundEmailQueuesIntake(t *testing.T) {
	f := newEventsFixture(t)

	m, job, err := f.events.InboundEmailReceived(f.ctx, usecase.InboundEmailInput{
		From: "jo@example.com", Subject: "Coach to York", Body: "40 of us on 5 March",
	})
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", m.From)
	assert.Equal(t, model.FlowEnquiryIntake, job.Name)
	assert.Equal(t, m.ID, job.Payload.InboundEmailID)
	assert.NotEmpty(t, job.Payload.PipelineID)

	stored, err := f.store.Emails.FindByID(f.ctx, repository.NoTX, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "40 of us on 5 March", stored.Body)

	_, _, err = f.events.InboundEmailReceived(f.ctx, usecase.InboundEmailInput{From: "not-an-address", Body: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, _, err = f.events.InboundEmailReceived(f.ctx, usecase.InboundEmailInput{From: "jo@example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, 1, f.queue.Count(model.FlowEnquiryIntake))
}

func TestEvents_EnquirySubmittedStartsAtNew(t *testing.T) {
	f := newEventsFixture(t)

	e := &model.Enquiry{CustomerEmail: "jo@example.com", Status: model.EnquiryBooked}
	job, err := f.events.EnquirySubmitted(f.ctx, e)
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, e.ID, job.Payload.EnquiryID)
	assert.Equal(t, model.EnquiryNew, f.status(t, e.ID))

	_, err = f.events.EnquirySubmitted(f.ctx, &model.Enquiry{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEvents_LastBidQueuesEvaluationOnce(t *testing.T) {
	f := newEventsFixture(t)
	f.seedBidding(t, "enq-1", time.Now().Add(time.Hour), "acme", "bolt", "cedar")

	q, err := f.events.BidSubmitted(f.ctx, "enq-1-acme", usecase.BidInput{PricePence: 100000, VehicleType: "coach", Capacity: 49})
	require.NoError(t, err)
	assert.Equal(t, model.SupplierQuoteSubmitted, q.Status)
	require.NotNil(t, q.SubmittedAt)
	assert.Zero(t, f.queue.Count(model.FlowBidEvaluation))

	_, err = f.events.BidDeclined(f.ctx, "enq-1-cedar", "no drivers")
	require.NoError(t, err)
	assert.Zero(t, f.queue.Count(model.FlowBidEvaluation))

	_, err = f.events.BidSubmitted(f.ctx, "enq-1-bolt", usecase.BidInput{PricePence: 110000})
	require.NoError(t, err)
	assert.Equal(t, 1, f.queue.Count(model.FlowBidEvaluation))
	assert.Equal(t, model.EnquiryBidsComplete, f.status(t, "enq-1"))

	// a bid can only be answered once
	_, err = f.events.BidSubmitted(f.ctx, "enq-1-bolt", usecase.BidInput{PricePence: 90000})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, f.queue.Count(model.FlowBidEvaluation))

	_, err = f.events.BidSubmitted(f.ctx, "enq-1-acme", usecase.BidInput{PricePence: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = f.events.BidDeclined(f.ctx, "nope", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvents_ConcurrentLastBidsQueueOneEvaluation(t *testing.T) {
	f := newEventsFixture(t)
	suppliers := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
	f.seedBidding(t, "enq-1", time.Now().Add(time.Hour), suppliers...)

	var wg sync.WaitGroup
	for _, s := range suppliers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = f.events.BidSubmitted(f.ctx, id, usecase.BidInput{PricePence: 50000})
		}("enq-1-" + s)
	}
	wg.Wait()

	assert.Equal(t, 1, f.queue.Count(model.FlowBidEvaluation))
}

func TestEvents_ExpireOverdueBids(t *testing.T) {
	f := newEventsFixture(t)
	f.seedBidding(t, "enq-late", time.Now().Add(-time.Minute), "acme", "bolt")
	f.seedBidding(t, "enq-open", time.Now().Add(time.Hour), "cedar")

	_, err := f.events.BidSubmitted(f.ctx, "enq-late-acme", usecase.BidInput{PricePence: 70000})
	require.NoError(t, err)

	n, err := f.events.ExpireOverdueBids(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.queue.Count(model.FlowBidEvaluation))
	assert.Equal(t, model.EnquiryBidsComplete, f.status(t, "enq-late"))
	assert.Equal(t, model.EnquirySentToSuppliers, f.status(t, "enq-open"))

	n, err = f.events.ExpireOverdueBids(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEvents_QueueOutageSurfaces(t *testing.T) {
	f := newEventsFixture(t)
	f.queue.EnqueueFunc = func(context.Context, model.FlowName, model.JobPayload) (*model.Job, error) {
		return nil, domain.ErrQueueUnavailable
	}
	_, _, err := f.events.InboundEmailReceived(f.ctx, usecase.InboundEmailInput{From: "jo@example.com", Body: "hi"})
	assert.True(t, errors.Is(err, domain.ErrQueueUnavailable))
}

// seedQuote stores a priced customer quote for an enquiry in the given states.
func (f *eventsFixture) seedQuote(t *testing.T, es model.EnquiryStatus, qs model.CustomerQuoteStatus) *model.CustomerQuote {
	t.Helper()
	require.NoError(t, f.store.Enquiries.Save(f.ctx, repository.NoTX, &model.Enquiry{
		ID: "enq-1", CustomerEmail: "jo@example.com", Status: es, Version: 1,
	}))
	require.NoError(t, f.store.SupplierQuotes.Create(f.ctx, repository.NoTX, &model.SupplierQuote{
		ID: "sq-1", EnquiryID: "enq-1", SupplierID: "sup-acme", Status: model.SupplierQuoteSelected, PricePence: 100000,
	}))
	cq := &model.CustomerQuote{
		ID: "cq-1", EnquiryID: "enq-1", SupplierQuoteID: "sq-1", TotalPence: 146400,
		EmailBody: "Your quote is £1464.00", Status: qs,
	}
	require.NoError(t, f.store.CustomerQuotes.Save(f.ctx, repository.NoTX, cq))
	return cq
}

func TestEvents_SendQuoteNotifiesCustomer(t *testing.T) {
	f := newEventsFixture(t)
	f.seedQuote(t, model.EnquiryQuoteReady, model.CustomerQuoteReadyToSend)

	cq, err := f.events.SendQuote(f.ctx, "cq-1", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.CustomerQuoteSent, cq.Status)
	assert.Equal(t, model.EnquiryQuoteSent, f.status(t, "enq-1"))
	require.Len(t, f.notes.Sent, 1)
	assert.Equal(t, adapter.ChannelCustomer, f.notes.Sent[0].Channel)
	assert.Equal(t, "jo@example.com", f.notes.Sent[0].To)
	assert.Contains(t, f.notes.Sent[0].Body, "£1464.00")

	_, err = f.events.SendQuote(f.ctx, "cq-1", "ops@example.com")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, f.notes.Sent, 1)
}

func TestEvents_SendQuoteSurvivesNotifierFailure(t *testing.T) {
	f := newEventsFixture(t)
	f.seedQuote(t, model.EnquiryQuoteReady, model.CustomerQuoteReadyToSend)
	f.notes.NotifyFunc = func(context.Context, adapter.Notification) error { return errors.New("smtp down") }

	_, err := f.events.SendQuote(f.ctx, "cq-1", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.EnquiryQuoteSent, f.status(t, "enq-1"))
}

func TestEvents_PaymentBooksOnceAndQueuesConfirmation(t *testing.T) {
	f := newEventsFixture(t)
	f.seedQuote(t, model.EnquiryQuoteSent, model.CustomerQuoteSent)
	paid := time.Date(2027, 2, 1, 10, 0, 0, 0, time.UTC)

	b, err := f.events.PaymentSucceeded(f.ctx, "cq-1", paid)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	assert.Equal(t, "sup-acme", b.SupplierID)
	assert.Equal(t, paid, b.PaidAt)
	assert.Equal(t, model.EnquiryBooked, f.status(t, "enq-1"))

	again, err := f.events.PaymentSucceeded(f.ctx, "cq-1", paid)
	require.NoError(t, err)
	assert.Equal(t, b.ID, again.ID)
	require.Equal(t, 1, f.queue.Count(model.FlowJobConfirmation))
	assert.Equal(t, b.ID, f.queue.Jobs[0].Payload.BookingID)

	cq, err := f.store.CustomerQuotes.FindByID(f.ctx, repository.NoTX, "cq-1")
	require.NoError(t, err)
	assert.Equal(t, model.CustomerQuoteAccepted, cq.Status)
}

func TestEvents_PaymentForUnsentQuoteIsRefused(t *testing.T) {
	f := newEventsFixture(t)
	f.seedQuote(t, model.EnquiryQuoteReady, model.CustomerQuoteReadyToSend)

	_, err := f.events.PaymentSucceeded(f.ctx, "cq-1", time.Time{})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Zero(t, f.queue.Count(model.FlowJobConfirmation))
}

func TestEvents_CancelEnquiry(t *testing.T) {
	f := newEventsFixture(t)
	f.seedBidding(t, "enq-1", time.Now().Add(time.Hour), "acme")

	require.NoError(t, f.events.CancelEnquiry(f.ctx, "enq-1", "ops"))
	assert.Equal(t, model.EnquiryCancelled, f.status(t, "enq-1"))
	require.NoError(t, f.events.CancelEnquiry(f.ctx, "enq-1", "ops"), "cancel is idempotent")

	// a late bid for a cancelled enquiry is stored but does not wake bid evaluation
	_, err := f.events.BidSubmitted(f.ctx, "enq-1-acme", usecase.BidInput{PricePence: 1000})
	require.NoError(t, err)
	assert.Zero(t, f.queue.Count(model.FlowBidEvaluation))

	require.NoError(t, f.store.Enquiries.Save(f.ctx, repository.NoTX, &model.Enquiry{ID: "enq-2", Status: model.EnquiryBooked}))
	assert.ErrorIs(t, f.events.CancelEnquiry(f.ctx, "enq-2", "ops"), domain.ErrConflict)
	assert.ErrorIs(t, f.events.CancelEnquiry(f.ctx, "enq-3", "ops"), domain.ErrNotFound)
}

func TestEvents_TransactionFailureQueuesNothing(t *testing.T) {
	st := memstore.New()
	tx := NewMockTxManager()
	tx.WithTxFunc = func(context.Context, func(context.Context, repository.Tx) error) error {
		return domain.ErrOperationFailed
	}
	q := &MockEnqueuer{}
	events := usecase.NewEventService(usecase.EventDeps{
		Tx: tx, Enquiries: st.Enquiries, Emails: st.Emails, SupplierQuotes: st.SupplierQuotes,
		CustomerQuotes: st.CustomerQuotes, Bookings: st.Bookings, Queue: q,
	}, testLogger())

	_, _, err := events.InboundEmailReceived(context.Background(), usecase.InboundEmailInput{From: "jo@example.com", Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrOperationFailed)
	assert.Empty(t, q.Jobs)
}
