package usecase

import (
	"context"
	"math"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/infra/metrics"
)

type GateOutcome string

const (
	GateAutoExecute GateOutcome = "AUTO_EXECUTE"
	GateEscalate    GateOutcome = "ESCALATE"
)

type GateDecision struct {
	Outcome   GateOutcome
	Reason    model.ReviewReason
	Score     float64
	Threshold float64
}

// EvaluateConfidence decides between auto-execution and escalation. It is pure:
// the same inputs always give the same decision. A forcing flag escalates even
// a perfect score. A missing or out-of-range threshold is a configuration error.
func EvaluateConfidence(th model.ConfidenceThresholds, task model.TaskType, score float64, flags []model.PolicyFlag) (GateDecision, error) {
	threshold, ok := th[task]
	if !ok {
		return GateDecision{}, domain.NewConfigError(model.ConfigConfidenceThresholds, "no threshold for %s", task)
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return GateDecision{}, domain.NewConfigError(model.ConfigConfidenceThresholds, "threshold for %s must be within [0,1], got %v", task, threshold)
	}
	d := GateDecision{Score: score, Threshold: threshold}
	for _, f := range flags {
		if f == model.FlagAnomalousPricing || f == model.FlagLowSupplierRating {
			d.Outcome = GateEscalate
			d.Reason = f.Reason()
			return d, nil
		}
	}
	if math.IsNaN(score) || score < threshold {
		d.Outcome = GateEscalate
		d.Reason = model.ReasonLowConfidence
		return d, nil
	}
	d.Outcome = GateAutoExecute
	return d, nil
}

// ConfidenceGate evaluates against the thresholds stored in AiConfig at call time.
type ConfidenceGate struct {
	cfg AIConfigService
}

func NewConfidenceGate(cfg AIConfigService) *ConfidenceGate {
	return &ConfidenceGate{cfg: cfg}
}

func (g *ConfidenceGate) Evaluate(ctx context.Context, task model.TaskType, score float64, flags []model.PolicyFlag) (GateDecision, error) {
	th, err := g.cfg.Thresholds(ctx)
	if err != nil {
		return GateDecision{}, err
	}
	d, err := EvaluateConfidence(th, task, score, flags)
	if err != nil {
		return d, err
	}
	metrics.IncGateDecision(string(task), string(d.Outcome))
	return d, nil
}
