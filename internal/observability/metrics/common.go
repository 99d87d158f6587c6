package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "intake"

// sharedCollectors are registered by both the API and the worker: each
// process holds its own rule cache and resilience executor.
type sharedCollectors struct {
	service string

	ruleCacheLookups *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

func newSharedCollectors(service string, registry *prometheus.Registry) sharedCollectors {
	ruleCacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "cache_lookups_total",
			Help:      "Rule cache lookups by rule kind and outcome.",
		},
		[]string{"service", "kind", "outcome"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried calls to external dependencies by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state by operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(ruleCacheLookups, retriesTotal, breakerState)
	return sharedCollectors{
		service:          service,
		ruleCacheLookups: ruleCacheLookups,
		retriesTotal:     retriesTotal,
		breakerState:     breakerState,
	}
}

func (c sharedCollectors) RuleCacheLookup(kind, outcome string) {
	c.ruleCacheLookups.WithLabelValues(c.service, kind, outcome).Inc()
}

func (c sharedCollectors) ResilienceRetry(operation string) {
	c.retriesTotal.WithLabelValues(c.service, operation).Inc()
}

func (c sharedCollectors) BreakerStateChanged(operation, state string) {
	var value float64
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	c.breakerState.WithLabelValues(c.service, operation).Set(value)
}
