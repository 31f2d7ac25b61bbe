// Package queue – Prometheus collectors for job throughput and failures.
// Label cardinality is bounded: the only label is the processing outcome.
package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	// jobsEnqueued counts jobs accepted into the durable queue.
	jobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_jobs_enqueued_total",
		Help: "Total number of generation jobs enqueued.",
	})

	// jobsProcessed counts terminal and retry outcomes of job processing.
	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_processed_total",
			Help: "Total number of job processing outcomes.",
		},
		[]string{"result"}, // completed | retried | dead
	)

	// jobsInflight gauges jobs currently leased by workers.
	jobsInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "queue_jobs_inflight",
		Help: "Number of jobs currently being processed.",
	})

	// jobDuration records end-to-end processing time per job attempt.
	jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "queue_job_duration_seconds",
		Help:    "Duration of individual job processing attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// queuePurges counts full-queue purges (the reference fail-safe).
	queuePurges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_purges_total",
		Help: "Total number of full-queue purges triggered by job failures.",
	})

	// breakerOpens counts circuit-breaker trips that paused job leasing.
	breakerOpens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_breaker_opens_total",
		Help: "Total number of times the worker circuit breaker opened.",
	})
)

func init() {
	prometheus.MustRegister(
		jobsEnqueued, jobsProcessed, jobsInflight, jobDuration,
		queuePurges, breakerOpens,
	)
}
