package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// WorkerMetrics observes the job orchestrator, the rule cache and the
// resilience executor of the worker process.
type WorkerMetrics struct {
	sharedCollectors

	registry *prometheus.Registry

	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobsInFlight prometheus.Gauge
	jobRetries   *prometheus.CounterVec
	queueDepth   prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total finished jobs by type and final status.",
		},
		[]string{"service", "job_type", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Duration of a single job attempt in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "job_type", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs being executed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	jobRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_retries_total",
			Help:      "Total failed attempts that were scheduled for retry.",
		},
		[]string{"service", "job_type"},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Number of jobs waiting in the orchestrator queue.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(jobsTotal, jobDuration, jobsInFlight, jobRetries, queueDepth)

	return &WorkerMetrics{
		sharedCollectors: newSharedCollectors(service, registry),
		registry:         registry,
		jobsTotal:        jobsTotal,
		jobDuration:      jobDuration,
		jobsInFlight:     jobsInFlight,
		jobRetries:       jobRetries,
		queueDepth:       queueDepth,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) JobStarted(domain.JobType) {
	m.jobsInFlight.Inc()
}

// JobFinished is called once per attempt; status is pending when the attempt
// failed and a retry is scheduled.
func (m *WorkerMetrics) JobFinished(jobType domain.JobType, status domain.JobStatus, duration time.Duration) {
	m.jobsInFlight.Dec()
	m.jobDuration.WithLabelValues(m.service, string(jobType), string(status)).Observe(duration.Seconds())
	if status.Terminal() {
		m.jobsTotal.WithLabelValues(m.service, string(jobType), string(status)).Inc()
	}
}

func (m *WorkerMetrics) JobRetried(jobType domain.JobType) {
	m.jobRetries.WithLabelValues(m.service, string(jobType)).Inc()
}

func (m *WorkerMetrics) QueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}
