package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/domain/ports/usecase"
)

// EventService turns external business events into status changes and job enqueues.
// Every state change and the enqueue it triggers commit in one transaction.
type EventService interface {
	InboundEmailReceived(ctx context.Context, in InboundEmailInput) (*model.InboundEmail, *model.Job, error)
	EnquirySubmitted(ctx context.Context, e *model.Enquiry) (*model.Job, error)
	BidSubmitted(ctx context.Context, supplierQuoteID string, bid BidInput) (*model.SupplierQuote, error)
	BidDeclined(ctx context.Context, supplierQuoteID, reason string) (*model.SupplierQuote, error)
	// ExpireOverdueBids marks requested bids past their deadline as expired.
	ExpireOverdueBids(ctx context.Context) (int, error)
	PaymentSucceeded(ctx context.Context, customerQuoteID string, paidAt time.Time) (*model.Booking, error)
	SendQuote(ctx context.Context, customerQuoteID, actorID string) (*model.CustomerQuote, error)
	CancelEnquiry(ctx context.Context, enquiryID, actorID string) error
}

type InboundEmailInput struct {
	From    string `json:"from" validate:"required,email"`
	Subject string `json:"subject"`
	Body    string `json:"body" validate:"required"`
}

type BidInput struct {
	PricePence  int64  `json:"pricePence" validate:"gt=0"`
	VehicleType string `json:"vehicleType"`
	Capacity    int    `json:"capacity" validate:"gte=0"`
	Notes       string `json:"notes"`
}

type EventDeps struct {
	Tx             repository.TransactionManager
	Enquiries      repository.EnquiryRepository
	Emails         repository.InboundEmailRepository
	SupplierQuotes repository.SupplierQuoteRepository
	CustomerQuotes repository.CustomerQuoteRepository
	Bookings       repository.BookingRepository
	Queue          usecase.Enqueuer
	Notifier       adapter.Notifier
}

var _ EventService = (*eventService)(nil)

type eventService struct {
	EventDeps
	now func() time.Time
	log *zerolog.Logger
}

func NewEventService(deps EventDeps, logger *zerolog.Logger) EventService {
	l := logger.With().Str("component", "EventService").Logger()
	return &eventService{EventDeps: deps, now: time.Now, log: &l}
}

func (s *eventService) InboundEmailReceived(ctx context.Context, in InboundEmailInput) (*model.InboundEmail, *model.Job, error) {
	if err := model.ValidateValue(in, domain.ErrInvalidArgument); err != nil {
		return nil, nil, err
	}
	m := &model.InboundEmail{
		ID:         uuid.NewString(),
		From:       strings.TrimSpace(in.From),
		Subject:    in.Subject,
		Body:       in.Body,
		ReceivedAt: s.now().UTC(),
	}
	var job *model.Job
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := s.Emails.Save(ctx, tx, m); err != nil {
			return err
		}
		var err error
		job, err = s.Queue.Enqueue(ctx, tx, model.FlowEnquiryIntake, model.JobPayload{InboundEmailID: m.ID}, nil)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().Str("inbound_email_id", m.ID).Str("job_id", job.ID).Msg("inbound email queued for intake")
	return m, job, nil
}

func (s *eventService) EnquirySubmitted(ctx context.Context, e *model.Enquiry) (*model.Job, error) {
	if e == nil || strings.TrimSpace(e.CustomerEmail) == "" {
		return nil, fmt.Errorf("%w: enquiry needs a customer email", domain.ErrInvalidArgument)
	}
	now := s.now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Status = model.EnquiryNew
	e.Version = 1
	e.CreatedAt, e.UpdatedAt = now, now

	var job *model.Job
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := s.Enquiries.Save(ctx, tx, e); err != nil {
			return err
		}
		var err error
		job, err = s.Queue.Enqueue(ctx, tx, model.FlowEnquiryIntake, model.JobPayload{EnquiryID: e.ID}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("enquiry_id", e.ID).Str("job_id", job.ID).Msg("enquiry queued for intake")
	return job, nil
}

func (s *eventService) BidSubmitted(ctx context.Context, id string, bid BidInput) (*model.SupplierQuote, error) {
	if err := model.ValidateValue(bid, domain.ErrInvalidArgument); err != nil {
		return nil, err
	}
	return s.resolveBid(ctx, id, func(q *model.SupplierQuote, now time.Time) {
		q.Status = model.SupplierQuoteSubmitted
		q.PricePence = bid.PricePence
		q.VehicleType = bid.VehicleType
		q.Capacity = bid.Capacity
		q.Notes = bid.Notes
		q.SubmittedAt = &now
	})
}

func (s *eventService) BidDeclined(ctx context.Context, id, reason string) (*model.SupplierQuote, error) {
	return s.resolveBid(ctx, id, func(q *model.SupplierQuote, now time.Time) {
		q.Status = model.SupplierQuoteDeclined
		q.Notes = reason
	})
}

// resolveBid moves a requested bid to its final state and fires bid evaluation
// when it was the last one outstanding.
func (s *eventService) resolveBid(ctx context.Context, id string, apply func(*model.SupplierQuote, time.Time)) (*model.SupplierQuote, error) {
	var out *model.SupplierQuote
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		q, err := s.SupplierQuotes.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if q.Status != model.SupplierQuoteRequested {
			return fmt.Errorf("%w: bid %s is %s", domain.ErrConflict, q.ID, q.Status)
		}
		now := s.now().UTC()
		apply(q, now)
		q.UpdatedAt = now
		if err := s.SupplierQuotes.Update(ctx, tx, q, model.SupplierQuoteRequested); err != nil {
			return err
		}
		out = q
		return s.settleBids(ctx, tx, q.EnquiryID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("supplier_quote_id", out.ID).Str("enquiry_id", out.EnquiryID).
		Str("status", string(out.Status)).Msg("bid resolved")
	return out, nil
}

func (s *eventService) ExpireOverdueBids(ctx context.Context) (int, error) {
	overdue, err := s.SupplierQuotes.ListOverdue(ctx, repository.NoTX, s.now().UTC())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, q := range overdue {
		err := s.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			now := s.now().UTC()
			q.Status = model.SupplierQuoteExpired
			q.UpdatedAt = now
			if err := s.SupplierQuotes.Update(ctx, tx, q, model.SupplierQuoteRequested); err != nil {
				return err
			}
			return s.settleBids(ctx, tx, q.EnquiryID)
		})
		if errors.Is(err, domain.ErrConflict) {
			// answered between listing and update
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		s.log.Info().Int("expired", n).Msg("overdue bids expired")
	}
	return n, nil
}

// settleBids enqueues bid evaluation exactly once: the enquiry status CAS and
// the enqueue share the caller's transaction. The enquiry row is locked before
// the quotes are listed so two transactions resolving the last two bids cannot
// each miss the other's write.
func (s *eventService) settleBids(ctx context.Context, tx repository.Tx, enquiryID string) error {
	if err := s.Enquiries.LockForUpdate(ctx, tx, enquiryID); err != nil {
		return err
	}
	quotes, err := s.SupplierQuotes.ListByEnquiry(ctx, tx, enquiryID)
	if err != nil {
		return err
	}
	for _, q := range quotes {
		if !q.Status.Resolved() {
			return nil
		}
	}
	err = s.Enquiries.CompareAndSetStatus(ctx, tx, enquiryID, model.EnquirySentToSuppliers, model.EnquiryBidsComplete)
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	job, err := s.Queue.Enqueue(ctx, tx, model.FlowBidEvaluation, model.JobPayload{EnquiryID: enquiryID}, nil)
	if err != nil {
		return err
	}
	s.log.Info().Str("enquiry_id", enquiryID).Str("job_id", job.ID).Int("bids", len(quotes)).
		Msg("all bids resolved, bid evaluation queued")
	return nil
}

func (s *eventService) PaymentSucceeded(ctx context.Context, cqID string, paidAt time.Time) (*model.Booking, error) {
	var out *model.Booking
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if b, err := s.Bookings.FindByCustomerQuote(ctx, tx, cqID); err == nil {
			out = b
			return nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		cq, err := s.CustomerQuotes.FindByID(ctx, tx, cqID)
		if err != nil {
			return err
		}
		if cq.Status != model.CustomerQuoteSent {
			return fmt.Errorf("%w: customer quote %s is %s", domain.ErrConflict, cq.ID, cq.Status)
		}
		sq, err := s.SupplierQuotes.FindByID(ctx, tx, cq.SupplierQuoteID)
		if err != nil {
			return err
		}
		if err := s.Enquiries.CompareAndSetStatus(ctx, tx, cq.EnquiryID, model.EnquiryQuoteSent, model.EnquiryBooked); err != nil {
			return err
		}
		now := s.now().UTC()
		cq.Status = model.CustomerQuoteAccepted
		cq.UpdatedAt = now
		if err := s.CustomerQuotes.Save(ctx, tx, cq); err != nil {
			return err
		}
		if paidAt.IsZero() {
			paidAt = now
		}
		b := &model.Booking{
			ID:              uuid.NewString(),
			EnquiryID:       cq.EnquiryID,
			CustomerQuoteID: cq.ID,
			SupplierID:      sq.SupplierID,
			Status:          model.BookingConfirmed,
			PaidAt:          paidAt.UTC(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.Bookings.Save(ctx, tx, b); err != nil {
			return err
		}
		if _, err := s.Queue.Enqueue(ctx, tx, model.FlowJobConfirmation, model.JobPayload{
			EnquiryID:       cq.EnquiryID,
			CustomerQuoteID: cq.ID,
			BookingID:       b.ID,
		}, nil); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("booking_id", out.ID).Str("enquiry_id", out.EnquiryID).Msg("payment recorded, booking confirmed")
	return out, nil
}

func (s *eventService) SendQuote(ctx context.Context, cqID, actorID string) (*model.CustomerQuote, error) {
	var (
		cq *model.CustomerQuote
		e  *model.Enquiry
	)
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if cq, err = s.CustomerQuotes.FindByID(ctx, tx, cqID); err != nil {
			return err
		}
		if cq.Status != model.CustomerQuoteReadyToSend {
			return fmt.Errorf("%w: customer quote %s is %s", domain.ErrConflict, cq.ID, cq.Status)
		}
		if err := s.Enquiries.CompareAndSetStatus(ctx, tx, cq.EnquiryID, model.EnquiryQuoteReady, model.EnquiryQuoteSent); err != nil {
			return err
		}
		if e, err = s.Enquiries.FindByID(ctx, tx, cq.EnquiryID); err != nil {
			return err
		}
		cq.Status = model.CustomerQuoteSent
		cq.UpdatedAt = s.now().UTC()
		return s.CustomerQuotes.Save(ctx, tx, cq)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, adapter.Notification{
		Channel: adapter.ChannelCustomer,
		To:      e.CustomerEmail,
		Subject: "Your coach hire quote",
		Body:    cq.EmailBody,
		Meta:    map[string]string{"customer_quote_id": cq.ID, "enquiry_id": cq.EnquiryID},
	})
	s.log.Info().Str("customer_quote_id", cq.ID).Str("actor", actorID).Msg("quote sent to customer")
	return cq, nil
}

func (s *eventService) CancelEnquiry(ctx context.Context, id, actorID string) error {
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		e, err := s.Enquiries.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		switch e.Status {
		case model.EnquiryCancelled:
			return nil
		case model.EnquiryBooked:
			return fmt.Errorf("%w: enquiry %s is already booked", domain.ErrConflict, id)
		}
		return s.Enquiries.CompareAndSetStatus(ctx, tx, id, e.Status, model.EnquiryCancelled)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("enquiry_id", id).Str("actor", actorID).Msg("enquiry cancelled")
	return nil
}

func (s *eventService) notify(ctx context.Context, n adapter.Notification) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("channel", string(n.Channel)).Msg("notification failed")
	}
}
