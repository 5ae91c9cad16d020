package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
)

// quote-generation: markup -> totals -> quote_content -> finalize. Sending
// the quote is an operator action, not a step.
func (r *Runner) quoteGenerationFlow() *Flow {
	return &Flow{
		Name: model.FlowQuoteGeneration,
		Load: r.loadQuote,
		Steps: []Step{
			{
				Name:    "markup",
				Task:    model.TaskMarkupCalculator,
				Done:    func(s *State) bool { return s.CustomerQuote != nil },
				Propose: r.proposeMarkup,
				Apply:   r.applyMarkup,
			},
			{
				Name:    "totals",
				Task:    model.TaskMarkupCalculator,
				Done:    func(s *State) bool { return s.CustomerQuote.Priced() },
				Propose: r.proposeTotals,
				Apply:   r.applyTotals,
			},
			{
				Name:    "quote_content",
				Task:    model.TaskQuoteContent,
				Done:    func(s *State) bool { return s.CustomerQuote.Description != "" },
				Propose: r.proposeQuoteContent,
				Apply:   r.applyQuoteContent,
			},
			{
				Name:    "finalize",
				Task:    model.TaskQuoteContent,
				Done:    func(s *State) bool { return s.CustomerQuote.Status != model.CustomerQuoteDraft },
				Propose: r.proposeFinalize,
				Apply:   r.applyFinalize,
			},
		},
	}
}

func (r *Runner) loadQuote(ctx context.Context, s *State) error {
	if err := r.loadEnquiry(ctx, s, s.Job.Payload.EnquiryID); err != nil {
		return err
	}
	if id := s.Job.Payload.SupplierQuoteID; id != "" {
		q, err := r.SupplierQuotes.FindByID(ctx, repository.NoTX, id)
		if err != nil {
			return err
		}
		s.Winner = q
	} else if err := r.loadQuotes(ctx, s); err != nil {
		return err
	}
	if s.Winner == nil || s.Winner.Status != model.SupplierQuoteSelected {
		return domain.Permanent(fmt.Errorf("%w: enquiry %s has no selected supplier quote", domain.ErrInvalidPayload, s.Enquiry.ID))
	}
	r.supplier(ctx, s, s.Winner.SupplierID)

	cq, err := r.CustomerQuotes.FindByID(ctx, repository.NoTX, customerQuoteIDFor(s.Winner.ID))
	switch {
	case err == nil:
		s.CustomerQuote = cq
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}
	return nil
}

type markupProposal struct {
	MarkupPercent float64 `json:"markupPercent"`
	Rationale     string  `json:"rationale"`
}

func (r *Runner) proposeMarkup(ctx context.Context, s *State) (*Outcome, error) {
	b, err := r.Config.MarkupBounds(ctx)
	if err != nil {
		return nil, err
	}
	o, err := r.infer(ctx, s, model.TaskMarkupCalculator, map[string]any{
		"enquiry":            enquiryInput(s.Enquiry),
		"supplierPricePence": s.Winner.PricePence,
		"bounds":             b,
	}, nil)
	if err != nil || o.Escalate != "" {
		return o, err
	}
	m, err := decode[markupProposal](o.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	if clamped := b.Clamp(m.MarkupPercent); clamped != m.MarkupPercent {
		o.Flags = append(o.Flags, model.FlagAnomalousPricing)
		o.Detail = map[string]any{"proposedPercent": m.MarkupPercent, "bounds": b}
		m.MarkupPercent = clamped
		o.Output = mustJSON(m)
	}
	return o, nil
}

func (r *Runner) applyMarkup(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	m, err := decode[markupProposal](out)
	if err != nil {
		return err
	}
	if m.MarkupPercent < 0 {
		return fmt.Errorf("%w: negative markup %v", domain.ErrInvalidArgument, m.MarkupPercent)
	}
	id := customerQuoteIDFor(s.Winner.ID)
	cq, err := r.CustomerQuotes.FindByID(ctx, tx, id)
	if err == nil {
		s.CustomerQuote = cq
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	now := r.now().UTC()
	cq = &model.CustomerQuote{
		ID:                 id,
		EnquiryID:          s.Enquiry.ID,
		SupplierQuoteID:    s.Winner.ID,
		PipelineID:         s.PipelineID,
		SupplierPricePence: s.Winner.PricePence,
		MarkupPercent:      m.MarkupPercent,
		VATRatePercent:     VATRatePercent,
		Status:             model.CustomerQuoteDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := r.CustomerQuotes.Save(ctx, tx, cq); err != nil {
		return err
	}
	s.CustomerQuote = cq
	return nil
}

func (r *Runner) proposeTotals(_ context.Context, s *State) (*Outcome, error) {
	cq := s.CustomerQuote
	return deterministic(PriceQuote(cq.SupplierPricePence, cq.MarkupPercent)), nil
}

func (r *Runner) applyTotals(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	t, err := decode[QuoteTotals](out)
	if err != nil {
		return err
	}
	return r.saveQuote(ctx, tx, s, func(cq *model.CustomerQuote) {
		cq.SupplierPricePence = t.SupplierPricePence
		cq.MarkupPercent = t.MarkupPercent
		cq.MarkupPence = t.MarkupPence
		cq.SubtotalPence = t.SubtotalPence
		cq.VATRatePercent = t.VATRatePercent
		cq.VATPence = t.VATPence
		cq.TotalPence = t.TotalPence
	})
}

func (r *Runner) proposeQuoteContent(ctx context.Context, s *State) (*Outcome, error) {
	cq := s.CustomerQuote
	o, err := r.infer(ctx, s, model.TaskQuoteContent, map[string]any{
		"enquiry":      enquiryInput(s.Enquiry),
		"customerName": s.Enquiry.CustomerName,
		"subtotal":     pounds(cq.SubtotalPence),
		"vat":          pounds(cq.VATPence),
		"total":        pounds(cq.TotalPence),
	}, func() (any, error) {
		return quoteContentFallback(s.Enquiry, cq), nil
	})
	if err != nil || o.Escalate != "" {
		return o, err
	}
	c, err := decode[quoteContent](o.Output)
	if err != nil || strings.TrimSpace(c.Description) == "" || strings.TrimSpace(c.EmailBody) == "" {
		return nil, fmt.Errorf("%w: quote content needs a description and an email body", domain.ErrMalformedOutput)
	}
	return o, nil
}

func (r *Runner) applyQuoteContent(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	c, err := decode[quoteContent](out)
	if err != nil {
		return err
	}
	return r.saveQuote(ctx, tx, s, func(cq *model.CustomerQuote) {
		cq.Description = c.Description
		cq.EmailBody = c.EmailBody
	})
}

func (r *Runner) proposeFinalize(_ context.Context, s *State) (*Outcome, error) {
	return deterministic(map[string]any{
		"customerQuoteId": s.CustomerQuote.ID,
		"totalPence":      s.CustomerQuote.TotalPence,
	}), nil
}

func (r *Runner) applyFinalize(ctx context.Context, tx repository.Tx, s *State, _ json.RawMessage) error {
	if !s.CustomerQuote.Priced() {
		return fmt.Errorf("%w: quote %s has no totals", domain.ErrInvalidArgument, s.CustomerQuote.ID)
	}
	err := r.saveQuote(ctx, tx, s, func(cq *model.CustomerQuote) {
		if cq.Status == model.CustomerQuoteDraft {
			cq.Status = model.CustomerQuoteReadyToSend
		}
	})
	if err != nil {
		return err
	}
	moved, err := r.advance(ctx, tx, s, model.EnquirySupplierSelected, model.EnquiryQuoteReady)
	if err != nil || !moved {
		return err
	}
	cq := s.CustomerQuote
	s.Notify(adapter.Notification{
		Channel: adapter.ChannelOps,
		Subject: "Quote ready to send",
		Body: fmt.Sprintf("Quote %s for %s is ready: total %s (markup %.2f%%).",
			cq.ID, tripLine(s.Enquiry), pounds(cq.TotalPence), cq.MarkupPercent),
		Meta: map[string]string{"customer_quote_id": cq.ID, "enquiry_id": s.Enquiry.ID},
	})
	return nil
}

func (r *Runner) saveQuote(ctx context.Context, tx repository.Tx, s *State, fn func(cq *model.CustomerQuote)) error {
	cq, err := r.CustomerQuotes.FindByID(ctx, tx, s.CustomerQuote.ID)
	if err != nil {
		return err
	}
	fn(cq)
	cq.UpdatedAt = r.now().UTC()
	if err := r.CustomerQuotes.Save(ctx, tx, cq); err != nil {
		return err
	}
	s.CustomerQuote = cq
	return nil
}
