package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
)

// job-confirmation: job_documents -> personalize_emails -> attach_documents.
func (r *Runner) jobConfirmationFlow() *Flow {
	return &Flow{
		Name: model.FlowJobConfirmation,
		Load: r.loadConfirmation,
		Steps: []Step{
			{
				Name:    "job_documents",
				Task:    model.TaskJobDocuments,
				Done:    func(s *State) bool { return len(s.Booking.Documents) > 0 },
				Propose: r.proposeDocuments,
				Apply:   r.applyDocuments,
			},
			{
				Name:    "personalize_emails",
				Task:    model.TaskEmailPersonalizer,
				Done:    func(s *State) bool { return s.Booking.CustomerEmail != nil },
				Propose: r.proposeEmails,
				Apply:   r.applyEmails,
			},
			{
				Name:    "attach_documents",
				Task:    model.TaskJobDocuments,
				Done:    func(s *State) bool { return s.Booking.Status == model.BookingDocumentsReady },
				Propose: r.proposeAttach,
				Apply:   r.applyAttach,
			},
		},
	}
}

func (r *Runner) loadConfirmation(ctx context.Context, s *State) error {
	p := s.Job.Payload
	var (
		b   *model.Booking
		err error
	)
	if p.BookingID != "" {
		b, err = r.Bookings.FindByID(ctx, repository.NoTX, p.BookingID)
	} else {
		b, err = r.Bookings.FindByCustomerQuote(ctx, repository.NoTX, p.CustomerQuoteID)
	}
	if err != nil {
		return err
	}
	s.Booking = b
	cq, err := r.CustomerQuotes.FindByID(ctx, repository.NoTX, b.CustomerQuoteID)
	if err != nil {
		return err
	}
	s.CustomerQuote = cq
	if err := r.loadEnquiry(ctx, s, b.EnquiryID); err != nil {
		return err
	}
	r.supplier(ctx, s, b.SupplierID)
	return nil
}

func (r *Runner) confirmationInput(s *State) map[string]any {
	in := map[string]any{
		"bookingId":     s.Booking.ID,
		"enquiry":       enquiryInput(s.Enquiry),
		"customerName":  s.Enquiry.CustomerName,
		"customerEmail": s.Enquiry.CustomerEmail,
		"total":         pounds(s.CustomerQuote.TotalPence),
		"description":   s.CustomerQuote.Description,
	}
	if sp := s.Suppliers[s.Booking.SupplierID]; sp != nil {
		in["supplier"] = map[string]any{"name": sp.Name, "email": sp.Email}
	}
	return in
}

func (r *Runner) proposeDocuments(ctx context.Context, s *State) (*Outcome, error) {
	o, err := r.infer(ctx, s, model.TaskJobDocuments, r.confirmationInput(s), func() (any, error) {
		return jobDocumentsFallback(s.Enquiry, s.Booking, s.Suppliers[s.Booking.SupplierID]), nil
	})
	if err != nil || o.Escalate != "" {
		return o, err
	}
	d, err := decode[jobDocuments](o.Output)
	if err != nil || len(d.Documents) == 0 {
		return nil, fmt.Errorf("%w: no documents produced", domain.ErrMalformedOutput)
	}
	return o, nil
}

func (r *Runner) applyDocuments(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	d, err := decode[jobDocuments](out)
	if err != nil {
		return err
	}
	return r.saveBooking(ctx, tx, s, func(b *model.Booking) { b.Documents = d.Documents })
}

func (r *Runner) proposeEmails(ctx context.Context, s *State) (*Outcome, error) {
	o, err := r.infer(ctx, s, model.TaskEmailPersonalizer, r.confirmationInput(s), func() (any, error) {
		return personalizeFallback(s.Enquiry, s.Booking, s.Suppliers[s.Booking.SupplierID]), nil
	})
	if err != nil || o.Escalate != "" {
		return o, err
	}
	e, err := decode[personalizedEmails](o.Output)
	if err != nil || strings.TrimSpace(e.CustomerEmail.Body) == "" || strings.TrimSpace(e.SupplierEmail.Body) == "" {
		return nil, fmt.Errorf("%w: both emails need a body", domain.ErrMalformedOutput)
	}
	return o, nil
}

func (r *Runner) applyEmails(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	e, err := decode[personalizedEmails](out)
	if err != nil {
		return err
	}
	return r.saveBooking(ctx, tx, s, func(b *model.Booking) {
		b.CustomerEmail = &e.CustomerEmail
		b.SupplierEmail = &e.SupplierEmail
	})
}

func (r *Runner) proposeAttach(_ context.Context, s *State) (*Outcome, error) {
	return deterministic(map[string]any{"bookingId": s.Booking.ID, "documents": len(s.Booking.Documents)}), nil
}

func (r *Runner) applyAttach(ctx context.Context, tx repository.Tx, s *State, _ json.RawMessage) error {
	if len(s.Booking.Documents) == 0 || s.Booking.CustomerEmail == nil {
		return fmt.Errorf("%w: booking %s is missing documents or emails", domain.ErrInvalidArgument, s.Booking.ID)
	}
	already := s.Booking.Status == model.BookingDocumentsReady
	err := r.saveBooking(ctx, tx, s, func(b *model.Booking) { b.Status = model.BookingDocumentsReady })
	if err != nil || already {
		return err
	}
	b := s.Booking
	meta := map[string]string{"booking_id": b.ID, "enquiry_id": b.EnquiryID}
	s.Notify(adapter.Notification{
		Channel: adapter.ChannelCustomer,
		To:      s.Enquiry.CustomerEmail,
		Subject: b.CustomerEmail.Subject,
		Body:    b.CustomerEmail.Body,
		Meta:    meta,
	})
	if sp := s.Suppliers[b.SupplierID]; sp != nil && b.SupplierEmail != nil {
		s.Notify(adapter.Notification{
			Channel: adapter.ChannelSupplier,
			To:      sp.Email,
			Subject: b.SupplierEmail.Subject,
			Body:    b.SupplierEmail.Body,
			Meta:    meta,
		})
	}
	s.Notify(adapter.Notification{
		Channel: adapter.ChannelOps,
		Subject: "Booking confirmed",
		Body:    fmt.Sprintf("Booking %s is confirmed with documents attached (%s).", b.ID, tripLine(s.Enquiry)),
		Meta:    meta,
	})
	return nil
}

func (r *Runner) saveBooking(ctx context.Context, tx repository.Tx, s *State, fn func(b *model.Booking)) error {
	b, err := r.Bookings.FindByID(ctx, tx, s.Booking.ID)
	if err != nil {
		return err
	}
	fn(b)
	b.UpdatedAt = r.now().UTC()
	if err := r.Bookings.Save(ctx, tx, b); err != nil {
		return err
	}
	s.Booking = b
	return nil
}
