package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(aiCallsTotal, aiTokensTotal, aiCostMicroUSD, aiCallDuration)
}

var (
	aiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_calls_total",
			Help: "Provider calls by task, model and result (ok, timeout, error, malformed).",
		},
		[]string{"task", "model", "result"},
	)

	aiTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Tokens billed by the provider, split into prompt and completion.",
		},
		[]string{"task", "model", "kind"},
	)

	aiCostMicroUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cost_micro_usd_total",
			Help: "Priced cost of provider calls in micro-USD.",
		},
		[]string{"task", "model"},
	)

	aiCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_call_duration_seconds",
			Help:    "Wall time of provider calls, queueing behind the rate limiter included.",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"task", "model"},
	)
)

// AICall is one provider call as Inference saw it. Failed calls carry no
// tokens or cost.
type AICall struct {
	Task             string
	Model            string
	Result           string
	PromptTokens     int
	CompletionTokens int
	CostMicros       int64
	Latency          time.Duration
}

func ObserveAICall(c AICall) {
	task, model := norm(c.Task), norm(c.Model)
	aiCallsTotal.WithLabelValues(task, model, norm(c.Result)).Inc()
	aiCallDuration.WithLabelValues(task, model).Observe(c.Latency.Seconds())
	if c.PromptTokens > 0 {
		aiTokensTotal.WithLabelValues(task, model, "prompt").Add(float64(c.PromptTokens))
	}
	if c.CompletionTokens > 0 {
		aiTokensTotal.WithLabelValues(task, model, "completion").Add(float64(c.CompletionTokens))
	}
	if c.CostMicros > 0 {
		aiCostMicroUSD.WithLabelValues(task, model).Add(float64(c.CostMicros))
	}
}
