package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(gateDecisionsTotal, pipelineStepsTotal, reviewTasksTotal, reviewTransitionsTotal)
}

var (
	gateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confidence_gate_decisions_total",
			Help: "Confidence gate outcomes per task type.",
		},
		[]string{"task", "outcome"}, // auto_execute, escalate
	)

	pipelineStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_steps_total",
			Help: "Pipeline step outcomes, labeled by flow, step and decision action.",
		},
		[]string{"flow", "step", "action"},
	)

	reviewTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_tasks_created_total",
			Help: "Human review tasks created, labeled by reason.",
		},
		[]string{"reason"},
	)

	reviewTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_task_transitions_total",
			Help: "Review task transitions, labeled by target status.",
		},
		[]string{"to"},
	)
)

func IncGateDecision(task, outcome string) {
	gateDecisionsTotal.WithLabelValues(norm(task), norm(outcome)).Inc()
}

func IncPipelineStep(flow, step, action string) {
	pipelineStepsTotal.WithLabelValues(norm(flow), norm(step), norm(action)).Inc()
}

func IncReviewTask(reason string) { reviewTasksTotal.WithLabelValues(norm(reason)).Inc() }

func IncReviewTransition(to string) { reviewTransitionsTotal.WithLabelValues(norm(to)).Inc() }
