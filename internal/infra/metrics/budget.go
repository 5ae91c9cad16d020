package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(budgetSpentMicros, budgetStatus, budgetPausedTotal, overBudgetTotal)
}

var (
	budgetSpentMicros = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ai_budget_spent_micro_usd",
			Help: "AI spend recorded for the current UTC day.",
		},
	)

	budgetStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_budget_status",
			Help: "1 for the current budget status, 0 otherwise.",
		},
		[]string{"status"}, // ok, warn, pause_non_critical
	)

	budgetPausedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_budget_paused_total",
			Help: "Non-critical AI calls skipped because the budget pause threshold was reached.",
		},
		[]string{"task"},
	)

	overBudgetTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_over_budget_total",
			Help: "Critical AI calls that ran past the daily budget.",
		},
		[]string{"task"},
	)
)

func SetBudget(spentMicros int64, status string) {
	budgetSpentMicros.Set(float64(spentMicros))
	for _, s := range []string{"ok", "warn", "pause_non_critical"} {
		v := 0.0
		if s == norm(status) {
			v = 1
		}
		budgetStatus.WithLabelValues(s).Set(v)
	}
}

func IncBudgetPaused(task string) { budgetPausedTotal.WithLabelValues(norm(task)).Inc() }

func IncOverBudget(task string) { overBudgetTotal.WithLabelValues(norm(task)).Inc() }
