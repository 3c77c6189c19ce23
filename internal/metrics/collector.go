package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides Prometheus metrics for the relay's remote-call lifecycle
// and cache effectiveness. It mirrors the Monitor's counters for scrape-based
// monitoring; the Monitor remains the source of truth for snapshots.
//
// All methods are nil-safe so the collector can be omitted entirely when
// Prometheus export is not wanted (library-only embedding, tests).
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	tasksInFlight   prometheus.Gauge
	cacheOutcomes   *prometheus.CounterVec
}

// NewCollector creates a collector registered on the default registerer.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector using the supplied registerer.
// Passing a private registry keeps tests and multiple relay instances from
// colliding on metric registration.
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	return &Collector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "workrelay_requests_total",
				Help: "Total number of remote calls issued by the pool",
			},
			[]string{"outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "workrelay_request_duration_seconds",
				Help:    "Duration of remote calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		tasksInFlight: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "workrelay_tasks_in_flight",
				Help: "Number of pool tasks currently executing",
			},
		),
		cacheOutcomes: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "workrelay_cache_lookups_total",
				Help: "Total number of cache lookups by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordCompletion records one finished remote call with its outcome and duration.
func (c *Collector) RecordCompletion(duration time.Duration, success bool) {
	if c == nil {
		return
	}

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.requestsTotal.WithLabelValues(outcome).Inc()
	c.requestDuration.Observe(duration.Seconds())
}

// RecordCacheOutcome records one cache lookup as hit or miss.
func (c *Collector) RecordCacheOutcome(hit bool) {
	if c == nil {
		return
	}

	outcome := "hit"
	if !hit {
		outcome = "miss"
	}
	c.cacheOutcomes.WithLabelValues(outcome).Inc()
}

// TaskStarted increments the in-flight gauge.
func (c *Collector) TaskStarted() {
	if c == nil {
		return
	}
	c.tasksInFlight.Inc()
}

// TaskFinished decrements the in-flight gauge.
func (c *Collector) TaskFinished() {
	if c == nil {
		return
	}
	c.tasksInFlight.Dec()
}
