package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

// bid-evaluation: check_bids -> score_bids -> select_winner.
func (r *Runner) bidEvaluationFlow() *Flow {
	return &Flow{
		Name: model.FlowBidEvaluation,
		Load: r.loadBids,
		Steps: []Step{
			{
				Name:    "check_bids",
				Task:    model.TaskBidEvaluator,
				Done:    func(s *State) bool { return reached(s.Enquiry, model.EnquirySupplierSelected) },
				Propose: r.proposeCheckBids,
				Apply:   r.applyCheckBids,
			},
			{
				Name:    "score_bids",
				Task:    model.TaskBidEvaluator,
				Done:    func(s *State) bool { return reached(s.Enquiry, model.EnquirySupplierSelected) },
				Propose: r.proposeScoreBids,
				Apply:   r.applyScoreBids,
			},
			{
				Name:    "select_winner",
				Task:    model.TaskBidEvaluator,
				Done:    func(s *State) bool { return s.Winner != nil && reached(s.Enquiry, model.EnquirySupplierSelected) },
				Propose: r.proposeWinner,
				Apply:   r.applyWinner,
			},
		},
	}
}

func (r *Runner) loadBids(ctx context.Context, s *State) error {
	if err := r.loadEnquiry(ctx, s, s.Job.Payload.EnquiryID); err != nil {
		return err
	}
	if err := r.loadQuotes(ctx, s); err != nil {
		return err
	}
	if err := r.loadSuppliers(ctx, s); err != nil {
		return err
	}
	for _, q := range s.Quotes {
		r.supplier(ctx, s, q.SupplierID)
	}
	return nil
}

type bidCount struct {
	Submitted int `json:"submitted"`
	Resolved  int `json:"resolved"`
}

func (r *Runner) proposeCheckBids(ctx context.Context, s *State) (*Outcome, error) {
	bs, err := r.Config.BidSettings(ctx)
	if err != nil {
		return nil, err
	}
	var c bidCount
	for _, q := range s.Quotes {
		if !q.Status.Resolved() {
			return nil, fmt.Errorf("%w: supplier quote %s still open", domain.ErrDeferred, q.ID)
		}
		c.Resolved++
		if q.Status == model.SupplierQuoteSubmitted {
			c.Submitted++
		}
	}
	o := deterministic(c)
	if c.Submitted < bs.MinBidsRequired {
		o.Escalate = model.ReasonPolicyEscalation
		o.Detail = map[string]any{
			"problem":         "too few bids",
			"submitted":       c.Submitted,
			"minBidsRequired": bs.MinBidsRequired,
		}
	}
	return o, nil
}

func (r *Runner) applyCheckBids(ctx context.Context, tx repository.Tx, s *State, _ json.RawMessage) error {
	if s.Enquiry.Status != model.EnquirySentToSuppliers {
		return nil
	}
	_, err := r.advance(ctx, tx, s, model.EnquirySentToSuppliers, model.EnquiryBidsComplete)
	return err
}

func (r *Runner) proposeScoreBids(ctx context.Context, s *State) (*Outcome, error) {
	w, err := r.Config.SupplierWeights(ctx)
	if err != nil {
		return nil, err
	}
	return deterministic(ScoreBids(s.Enquiry, s.Quotes, s.Suppliers, w)), nil
}

func (r *Runner) applyScoreBids(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	var ranking []RankedBid
	if err := json.Unmarshal(out, &ranking); err != nil {
		return err
	}
	for _, rb := range ranking {
		q, err := r.SupplierQuotes.FindByID(ctx, tx, rb.SupplierQuoteID)
		if err != nil {
			return err
		}
		if q.Score == rb.Score {
			continue
		}
		q.Score = rb.Score
		q.UpdatedAt = r.now().UTC()
		if err := r.SupplierQuotes.Update(ctx, tx, q, q.Status); err != nil {
			return err
		}
	}
	s.Ranking = ranking
	return nil
}

type winnerChoice struct {
	SupplierQuoteID string `json:"supplierQuoteId"`
	Rationale       string `json:"rationale"`
}

func (r *Runner) proposeWinner(ctx context.Context, s *State) (*Outcome, error) {
	bs, err := r.Config.BidSettings(ctx)
	if err != nil {
		return nil, err
	}
	if len(s.Ranking) == 0 {
		return &Outcome{Escalate: model.ReasonPolicyEscalation, Detail: map[string]any{"problem": "no submitted bids"}}, nil
	}
	top := s.Ranking[0]
	if top.Score < bs.MinQualityScore {
		return &Outcome{
			Output:   mustJSON(winnerChoice{SupplierQuoteID: top.SupplierQuoteID, Rationale: "highest weighted score"}),
			Escalate: model.ReasonPolicyEscalation,
			Detail: map[string]any{
				"problem":         "no bid clears the quality bar",
				"minQualityScore": bs.MinQualityScore,
				"ranking":         s.Ranking,
			},
		}, nil
	}

	o, err := r.infer(ctx, s, model.TaskBidEvaluator, map[string]any{
		"enquiry": enquiryInput(s.Enquiry),
		"ranking": s.Ranking,
	}, nil)
	if err != nil || o.Escalate != "" {
		return o, err
	}
	choice, err := decode[winnerChoice](o.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	ranked := false
	for _, rb := range s.Ranking {
		if rb.SupplierQuoteID == choice.SupplierQuoteID {
			ranked = true
			break
		}
	}
	if !ranked {
		return nil, fmt.Errorf("%w: chosen quote %q is not a ranked bid", domain.ErrMalformedOutput, choice.SupplierQuoteID)
	}

	// The winner is always the top weighted score. The model only vouches
	// for it; a different pick goes to a human who can override.
	median := medianPrice(s.Ranking)
	dev := deviationPercent(top.PricePence, median)
	o.Output = mustJSON(winnerChoice{SupplierQuoteID: top.SupplierQuoteID, Rationale: choice.Rationale})
	o.Detail = map[string]any{"ranking": s.Ranking, "medianPricePence": median, "deviationPercent": dev}
	if choice.SupplierQuoteID != top.SupplierQuoteID {
		o.Escalate = model.ReasonPolicyEscalation
		o.Detail["problem"] = "model disagrees with the top weighted score"
		o.Detail["modelChoice"] = choice.SupplierQuoteID
		o.Detail["modelRationale"] = choice.Rationale
	}
	if len(s.Ranking) > 1 && dev > bs.AnomalyDeviationPercent {
		o.Flags = append(o.Flags, model.FlagAnomalousPricing)
	}
	if sp := s.Suppliers[top.SupplierID]; sp != nil && sp.Rating < bs.MinSupplierRating {
		o.Flags = append(o.Flags, model.FlagLowSupplierRating)
	}
	return o, nil
}

func (r *Runner) applyWinner(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error {
	choice, err := decode[winnerChoice](out)
	if err != nil {
		return err
	}
	quotes, err := r.SupplierQuotes.ListByEnquiry(ctx, tx, s.Enquiry.ID)
	if err != nil {
		return err
	}
	var winner *model.SupplierQuote
	for _, q := range quotes {
		if q.ID == choice.SupplierQuoteID {
			winner = q
		}
	}
	if winner == nil || (winner.Status != model.SupplierQuoteSubmitted && winner.Status != model.SupplierQuoteSelected) {
		return fmt.Errorf("%w: %q is not a submitted bid for enquiry %s", domain.ErrInvalidArgument, choice.SupplierQuoteID, s.Enquiry.ID)
	}

	now := r.now().UTC()
	for _, q := range quotes {
		from := q.Status
		switch {
		case q.ID == winner.ID && from == model.SupplierQuoteSubmitted:
			q.Status = model.SupplierQuoteSelected
		case q.ID != winner.ID && from == model.SupplierQuoteSubmitted:
			q.Status = model.SupplierQuoteRejected
		default:
			continue
		}
		q.UpdatedAt = now
		if err := r.SupplierQuotes.Update(ctx, tx, q, from); err != nil {
			return err
		}
	}
	s.Quotes = quotes
	s.Winner = winner

	moved, err := r.advance(ctx, tx, s, model.EnquiryBidsComplete, model.EnquirySupplierSelected)
	if err != nil || !moved {
		return err
	}
	_, err = r.Queue.Enqueue(ctx, tx, model.FlowQuoteGeneration, model.JobPayload{
		EnquiryID:       s.Enquiry.ID,
		SupplierQuoteID: winner.ID,
		SupplierID:      winner.SupplierID,
	}, nil)
	return err
}
