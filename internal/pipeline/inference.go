package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/infra/metrics"
)

// Inference wraps the provider port: model routing per task, token-based cost
// estimates and parsing of the {"confidence":..,"result":..} envelope.
type Inference struct {
	ai           adapter.Completer
	prices       repository.ModelPricingRepository
	defaultModel string
	taskModels   map[model.TaskType]string
	timeout      time.Duration
	log          *zerolog.Logger
}

type InferenceResult struct {
	Output     json.RawMessage
	Confidence float64
	ModelID    string
	Usage      adapter.Usage
	CostMicros int64
	LatencyMs  int64
}

func NewInference(ai adapter.Completer, prices repository.ModelPricingRepository, defaultModel string, taskModels map[string]string, timeout time.Duration, logger *zerolog.Logger) *Inference {
	tm := make(map[model.TaskType]string, len(taskModels))
	for k, v := range taskModels {
		tm[model.TaskType(k)] = v
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "Inference").Logger()
	return &Inference{ai: ai, prices: prices, defaultModel: defaultModel, taskModels: tm, timeout: timeout, log: &l}
}

func (i *Inference) ModelFor(task model.TaskType) string {
	if m, ok := i.taskModels[task]; ok && m != "" {
		return m
	}
	return i.defaultModel
}

func (i *Inference) pricing(ctx context.Context, modelID string) *model.ModelPricing {
	p, err := i.prices.GetByModelName(ctx, repository.NoTX, modelID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			i.log.Warn().Err(err).Str("model", modelID).Msg("pricing lookup failed")
		}
		return nil
	}
	return p
}

// Route picks the model for req's task and prices the call before it is made
// from the prompt token count. Unpriced models estimate at zero.
func (i *Inference) Route(ctx context.Context, req *adapter.CompletionRequest) int64 {
	req.Model = i.ModelFor(model.TaskType(req.Task))
	p := i.pricing(ctx, req.Model)
	if p == nil {
		return 0
	}
	n, err := i.ai.CountTokens(ctx, req.Model, req.Messages)
	if err != nil {
		i.log.Debug().Err(err).Str("model", req.Model).Msg("token count unavailable, estimating from length")
		n = approxTokens(req.Messages)
	}
	return p.Estimate(n)
}

// Call runs one routed completion under the inference timeout. A timeout maps
// to ErrProviderTimeout and an unusable answer to ErrMalformedOutput; both
// retry.
func (i *Inference) Call(ctx context.Context, req adapter.CompletionRequest) (*InferenceResult, error) {
	task, modelID := model.TaskType(req.Task), req.Model
	cctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	c, err := i.ai.Complete(cctx, req)
	elapsed := time.Since(start)
	obs := metrics.AICall{Task: string(task), Model: modelID, Latency: elapsed}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			obs.Result = "timeout"
			metrics.ObserveAICall(obs)
			return nil, fmt.Errorf("%w: %s after %s", domain.ErrProviderTimeout, modelID, elapsed.Round(time.Millisecond))
		}
		obs.Result = "error"
		metrics.ObserveAICall(obs)
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}

	usage := c.Usage
	if c.Model != "" && c.Model != modelID {
		i.log.Debug().Str("model", modelID).Str("served_by", c.Model).Msg("provider answered with a snapshot model")
	}
	// pricing follows the requested id; snapshots share their alias's price
	var cost int64
	if p := i.pricing(ctx, modelID); p != nil {
		cost = p.Cost(usage.PromptTokens, usage.CompletionTokens)
	}
	obs.PromptTokens, obs.CompletionTokens, obs.CostMicros = usage.PromptTokens, usage.CompletionTokens, cost

	res := &InferenceResult{ModelID: modelID, Usage: usage, CostMicros: cost, LatencyMs: elapsed.Milliseconds()}
	conf, out, err := parseEnvelope(c.Text)
	if err != nil {
		obs.Result = "malformed"
		metrics.ObserveAICall(obs)
		if c.FinishReason == adapter.FinishLength {
			return res, fmt.Errorf("%w: answer truncated at %d tokens: %v", domain.ErrMalformedOutput, usage.CompletionTokens, err)
		}
		return res, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	obs.Result = "ok"
	metrics.ObserveAICall(obs)
	res.Confidence, res.Output = conf, out
	return res, nil
}

type envelope struct {
	Confidence *float64        `json:"confidence"`
	Result     json.RawMessage `json:"result"`
}

func parseEnvelope(text string) (float64, json.RawMessage, error) {
	body := bytes.TrimSpace([]byte(text))
	// models sometimes wrap JSON in a markdown fence
	if bytes.HasPrefix(body, []byte("```")) {
		body = bytes.TrimPrefix(body, []byte("```json"))
		body = bytes.TrimPrefix(body, []byte("```"))
		body = bytes.TrimSuffix(bytes.TrimSpace(body), []byte("```"))
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, nil, fmt.Errorf("not a JSON object: %v", err)
	}
	if env.Confidence == nil {
		return 0, nil, errors.New("missing confidence")
	}
	c := *env.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return 0, nil, fmt.Errorf("confidence %v outside [0,1]", c)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return 0, nil, errors.New("missing result")
	}
	return c, env.Result, nil
}

func approxTokens(msgs []adapter.Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)/4 + 4
	}
	return n
}
