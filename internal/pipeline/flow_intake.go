package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
)

// enquiry-intake: parse -> analyze -> select_suppliers -> dispatch_bids.
func (r *Runner) intakeFlow() *Flow {
	return &Flow{
		Name: model.FlowEnquiryIntake,
		Load: r.loadIntake,
		Steps: []Step{
			{
				Name:    "parse",
				Task:    model.TaskEmailParser,
				Done:    func(s *State) bool { return s.Enquiry != nil },
				Propose: r.proposeParse,
				Apply:   r.applyParse,
			},
			{
				Name:    "analyze",
				Task:    model.TaskEnquiryAnalyzer,
				Done:    func(s *State) bool { return s.Enquiry.Analysis != nil },
				Propose: r.proposeAnalyze,
				Apply:   r.applyAnalyze,
			},
			{
				Name:    "select_suppliers",
				Task:    model.TaskSupplierSelector,
				Done:    func(s *State) bool { return len(s.Enquiry.Shortlist) > 0 },
				Propose: r.proposeSelect,
				Apply:   r.applySelect,
			},
			{
				Name:    "dispatch_bids",
				Task:    model.TaskSupplierSelector,
				Done:    func(s *State) bool { return s.Enquiry.Status != model.EnquiryNew },
				Propose: r.proposeDispatch,
				Apply:   r.applyDispatch,
			},
		},
	}
}

func (r *Runner) loadIntake(ctx context.Context, s *State) error {
	p := s.Job.Payload
	if p.InboundEmailID != "" {
		m, err := r.Emails.FindByID(ctx, repository.NoTX, p.InboundEmailID)
		if err != nil {
			return err
		}
		s.Email = m
		if p.EnquiryID == "" && m.EnquiryID != "" {
			p.EnquiryID = m.EnquiryID
		}
	}
	if p.EnquiryID != "" {
		if err := r.loadEnquiry(ctx, s, p.EnquiryID); err != nil {
			return err
		}
	}
	return r.loadSuppliers(ctx, s)
}

type parsedEnquiry struct {
	CustomerName  string  `json:"customerName"`
	CustomerEmail string  `json:"customerEmail" validate:"omitempty,email"`
	Pickup        string  `json:"pickup" validate:"required"`
	Destination   string  `json:"destination" validate:"required"`
	TripDate      string  `json:"tripDate" validate:"required,datetime=2006-01-02"`
	ReturnDate    *string `json:"returnDate" validate:"omitempty,datetime=2006-01-02"`
	Passengers    int     `json:"passengers" validate:"gt=0"`
	VehicleType   string  `json:"vehicleType"`
	Notes         string  `json:"notes"`
}

func (r *Runner) proposeParse(ctx context.Context, s *State) (*Outcome, error) {
	if s.Email == nil {
		return nil, domain.Permanent(fmt.Errorf("%w: intake job has neither an enquiry nor an email", domain.ErrInvalidPayload))
	}
	o, err := r.infer(ctx, s, model.TaskEmailParser, map[string]any{
		"from":    s.Email.From,
		"subject": s.Email.Subject,
		"body":    s.Email.Body,
	}, nil)
	if err != nil || o.Escalate != "" {
		return o, err
	}
	p, err := decode[parsedEnquiry](o.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	// An incomplete extraction goes to a human who can fill the gaps.
	if verr := model.ValidateValue(p, domain.ErrInvalidArgument); verr != nil {
		o.Escalate = model.ReasonLowConfidence
		o.Detail = map[string]any{"missing": verr.Error()}
	}
	return o, nil
}

func (r *Runner) applyParse(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	p, err := decode[parsedEnquiry](out)
	if err != nil {
		return err
	}
	if err := model.ValidateValue(p, domain.ErrInvalidArgument); err != nil {
		return err
	}
	trip, _ := time.Parse(time.DateOnly, p.TripDate)
	id := enquiryIDFor(s.Email.ID)
	e, err := r.Enquiries.FindByID(ctx, tx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		now := r.now().UTC()
		e = &model.Enquiry{
			ID:             id,
			InboundEmailID: s.Email.ID,
			CustomerName:   strings.TrimSpace(p.CustomerName),
			CustomerEmail:  strings.TrimSpace(p.CustomerEmail),
			Pickup:         strings.TrimSpace(p.Pickup),
			Destination:    strings.TrimSpace(p.Destination),
			TripDate:       trip,
			Passengers:     p.Passengers,
			VehicleType:    strings.ToLower(strings.TrimSpace(p.VehicleType)),
			Notes:          p.Notes,
			Status:         model.EnquiryNew,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if e.CustomerEmail == "" {
			e.CustomerEmail = s.Email.From
		}
		if p.ReturnDate != nil {
			if rd, err := time.Parse(time.DateOnly, *p.ReturnDate); err == nil {
				e.ReturnDate = &rd
			}
		}
		if err := r.Enquiries.Save(ctx, tx, e); err != nil {
			return err
		}
	case err != nil:
		return err
	}
	if err := r.Emails.LinkEnquiry(ctx, tx, s.Email.ID, e.ID); err != nil {
		return err
	}
	s.Enquiry = e
	s.Job.Payload.EnquiryID = e.ID
	return nil
}

func (r *Runner) proposeAnalyze(ctx context.Context, s *State) (*Outcome, error) {
	e := s.Enquiry
	o, err := r.infer(ctx, s, model.TaskEnquiryAnalyzer, enquiryInput(e), func() (any, error) {
		return analyzeFallback(e, r.now()), nil
	})
	if err != nil || o.Escalate != "" {
		return o, err
	}
	a, err := decode[model.EnquiryAnalysis](o.Output)
	if err != nil || a.TripType == "" {
		return nil, fmt.Errorf("%w: analysis without trip type", domain.ErrMalformedOutput)
	}
	return o, nil
}

func (r *Runner) applyAnalyze(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	a, err := decode[model.EnquiryAnalysis](out)
	if err != nil {
		return err
	}
	return r.updateEnquiry(ctx, tx, s, func(e *model.Enquiry) { e.Analysis = &a })
}

func (r *Runner) proposeSelect(ctx context.Context, s *State) (*Outcome, error) {
	w, err := r.Config.SupplierWeights(ctx)
	if err != nil {
		return nil, err
	}
	bs, err := r.Config.BidSettings(ctx)
	if err != nil {
		return nil, err
	}
	ranked := RankSuppliers(s.Enquiry, activeSuppliers(s), w)
	if len(ranked) == 0 {
		return &Outcome{Escalate: model.ReasonPolicyEscalation, Detail: map[string]any{"problem": "no active suppliers"}}, nil
	}
	candidates := ranked
	if n := 2 * bs.MaxSuppliers; len(candidates) > n {
		candidates = candidates[:n]
	}
	o, err := r.infer(ctx, s, model.TaskSupplierSelector, map[string]any{
		"enquiry":      enquiryInput(s.Enquiry),
		"candidates":   candidates,
		"maxSuppliers": bs.MaxSuppliers,
	}, func() (any, error) {
		return selectFallback(ranked, bs.MaxSuppliers, bs.MinSupplierRating), nil
	})
	if err != nil || o.Escalate != "" {
		return o, err
	}
	sel, err := decode[selection](o.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}

	byID := make(map[string]RankedSupplier, len(ranked))
	for _, c := range ranked {
		byID[c.SupplierID] = c
	}
	clean := selection{Rationale: sel.Rationale}
	seen := map[string]bool{}
	for _, id := range sel.SupplierIDs {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown supplier %q", domain.ErrMalformedOutput, id)
		}
		if seen[id] || len(clean.SupplierIDs) >= bs.MaxSuppliers {
			continue
		}
		seen[id] = true
		clean.SupplierIDs = append(clean.SupplierIDs, id)
		if c.Rating < bs.MinSupplierRating && !hasFlag(o.Flags, model.FlagLowSupplierRating) {
			o.Flags = append(o.Flags, model.FlagLowSupplierRating)
		}
	}
	o.Output = mustJSON(clean)
	if len(clean.SupplierIDs) == 0 {
		o.Escalate = model.ReasonPolicyEscalation
		o.Detail = map[string]any{"problem": "no supplier selected", "candidates": candidates}
	}
	return o, nil
}

func (r *Runner) applySelect(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	sel, err := decode[selection](out)
	if err != nil {
		return err
	}
	if len(sel.SupplierIDs) == 0 {
		return fmt.Errorf("%w: empty supplier shortlist", domain.ErrInvalidArgument)
	}
	return r.updateEnquiry(ctx, tx, s, func(e *model.Enquiry) { e.Shortlist = sel.SupplierIDs })
}

type bidRequest struct {
	SupplierQuoteID string `json:"supplierQuoteId"`
	SupplierID      string `json:"supplierId"`
}

type dispatch struct {
	Deadline time.Time    `json:"deadline"`
	Requests []bidRequest `json:"requests"`
}

func (r *Runner) proposeDispatch(ctx context.Context, s *State) (*Outcome, error) {
	bs, err := r.Config.BidSettings(ctx)
	if err != nil {
		return nil, err
	}
	d := dispatch{Deadline: r.now().UTC().Add(time.Duration(bs.DeadlineHours) * time.Hour).Truncate(time.Second)}
	for _, id := range s.Enquiry.Shortlist {
		d.Requests = append(d.Requests, bidRequest{SupplierQuoteID: supplierQuoteIDFor(s.Enquiry.ID, id), SupplierID: id})
	}
	return deterministic(d), nil
}

func (r *Runner) applyDispatch(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	d, err := decode[dispatch](out)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	for _, req := range d.Requests {
		q := &model.SupplierQuote{
			ID:          req.SupplierQuoteID,
			EnquiryID:   s.Enquiry.ID,
			SupplierID:  req.SupplierID,
			Status:      model.SupplierQuoteRequested,
			Deadline:    d.Deadline,
			RequestedAt: now,
			UpdatedAt:   now,
		}
		err := r.SupplierQuotes.Create(ctx, tx, q)
		if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
	}
	moved, err := r.advance(ctx, tx, s, model.EnquiryNew, model.EnquirySentToSuppliers)
	if err != nil || !moved {
		return err
	}
	for _, req := range d.Requests {
		sp := r.supplier(ctx, s, req.SupplierID)
		if sp == nil {
			continue
		}
		s.Notify(adapter.Notification{
			Channel: adapter.ChannelSupplier,
			To:      sp.Email,
			Subject: "Quote request: " + s.Enquiry.Pickup + " to " + s.Enquiry.Destination,
			Body: fmt.Sprintf("Hello %s,\n\nPlease quote for %s. Bids close %s.\n\nReference: %s",
				sp.Name, tripLine(s.Enquiry), d.Deadline.Format(time.RFC1123), req.SupplierQuoteID),
			Meta: map[string]string{"supplier_quote_id": req.SupplierQuoteID, "enquiry_id": s.Enquiry.ID},
		})
	}
	return nil
}

func hasFlag(flags []model.PolicyFlag, f model.PolicyFlag) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}
