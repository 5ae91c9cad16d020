package pipeline

import (
	"context"

	"coachhire-ai/internal/domain/model"
)

// infer runs one billed call for task behind the cost guard. When the daily
// budget pauses the task, fallback supplies a deterministic output instead; a
// paused task without a fallback is escalated.
func (r *Runner) infer(ctx context.Context, s *State, task model.TaskType, input any, fallback func() (any, error)) (*Outcome, error) {
	req, err := buildPrompt(task, input)
	if err != nil {
		return nil, err
	}
	estimate := r.Inference.Route(ctx, &req)
	res, err := r.Costs.Authorize(ctx, task, s.PipelineID, req.Model, estimate)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		if fallback == nil {
			return &Outcome{
				Escalate: model.ReasonPolicyEscalation,
				Detail:   map[string]any{"budget": string(res.Status), "input": input},
			}, nil
		}
		v, err := fallback()
		if err != nil {
			return nil, err
		}
		return &Outcome{Output: mustJSON(v), Confidence: 1, Fallback: true}, nil
	}

	out, err := r.Inference.Call(ctx, req)
	var actual int64
	if out != nil {
		actual = out.CostMicros
	}
	if serr := r.Costs.Settle(ctx, res, actual); serr != nil {
		r.log.Warn().Err(serr).Str("task", string(task)).Msg("cost settlement failed, reservation kept")
	}
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Output:     out.Output,
		Confidence: out.Confidence,
		AI:         true,
		ModelID:    out.ModelID,
		CostMicros: out.CostMicros,
		LatencyMs:  out.LatencyMs,
		OverBudget: res.OverBudget,
	}, nil
}

// deterministic wraps a computed value as an outcome that skips the gate.
func deterministic(v any) *Outcome {
	return &Outcome{Output: mustJSON(v), Confidence: 1}
}
