package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsEnqueuedTotal, jobsProcessedTotal, jobRetriesTotal, jobDurationMs, jobsReapedTotal, jobsPurgedTotal, queueRateLimitedTotal)
}

var (
	jobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Jobs accepted by the queue, labeled by job name.",
		},
		[]string{"flow"},
	)

	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Job attempts finished, labeled by job name and outcome.",
		},
		[]string{"flow", "outcome"}, // completed, retried, deferred, failed
	)

	jobRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_retries_total",
			Help: "Jobs requeued with backoff after a transient error.",
		},
		[]string{"flow"},
	)

	jobDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_ms",
			Help:    "Handler duration per attempt in milliseconds.",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"flow"},
	)

	jobsReapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_reaped_total",
			Help: "Active jobs recovered after their lease expired.",
		},
		[]string{"outcome"}, // requeued, failed
	)

	jobsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_purged_total",
			Help: "Finished jobs removed by the retention janitor.",
		},
	)

	queueRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_rate_limited_total",
			Help: "Job executions that had to wait for the per-queue rate ceiling.",
		},
		[]string{"flow"},
	)
)

func IncJobEnqueued(flow string) { jobsEnqueuedTotal.WithLabelValues(norm(flow)).Inc() }

func ObserveJob(flow, outcome string, durationMs int64) {
	jobsProcessedTotal.WithLabelValues(norm(flow), norm(outcome)).Inc()
	jobDurationMs.WithLabelValues(norm(flow)).Observe(float64(durationMs))
}

func IncJobRetry(flow string) { jobRetriesTotal.WithLabelValues(norm(flow)).Inc() }

func AddJobsReaped(requeued, failed int) {
	jobsReapedTotal.WithLabelValues("requeued").Add(float64(requeued))
	jobsReapedTotal.WithLabelValues("failed").Add(float64(failed))
}

func AddJobsPurged(n int) { jobsPurgedTotal.Add(float64(n)) }

func IncRateLimited(flow string) { queueRateLimitedTotal.WithLabelValues(norm(flow)).Inc() }
