// Package metrics provides thread-safe performance accounting for the workrelay
// batching layer.
//
// This package implements the relay's operational snapshot: request and failure
// counters, cache hit/miss counters, and a fixed-size rolling window of recent
// remote-call latencies used to compute a moving average. Every completed
// remote call and every cache lookup reports here, so the snapshot is always
// available without touching the remote API.
//
// ACCOUNTING MODEL:
//   - Single mutex protects all counters and the latency ring; updates are one
//     counter increment plus one ring slot write, so writers are never blocked
//     for longer than a single update
//   - Counters are never reset except at process restart
//   - Snapshot returns an immutable copy, safe to hand to HTTP handlers and CLI
//     display code
//
// An optional Prometheus collector mirrors the counters and observes latencies
// into a histogram for scrape-based monitoring alongside the in-process snapshot.
package metrics

import (
	"sync"
	"time"
)

// DefaultWindowSize is the number of latency samples retained for the rolling
// average. Old samples are discarded FIFO once the window is full.
const DefaultWindowSize = 100

// Snapshot is an immutable copy of the monitor's counters and rolling average
// at a single point in time. Returned by value so readers never alias the
// monitor's internal state.
type Snapshot struct {
	TotalRequests         int64         `json:"total_requests"`
	FailedRequests        int64         `json:"failed_requests"`
	CacheHits             int64         `json:"cache_hits"`
	CacheMisses           int64         `json:"cache_misses"`
	RollingAverageLatency time.Duration `json:"rolling_average_latency"`
	WindowSamples         int           `json:"window_samples"`
}

// SucceededRequests returns the number of completed requests that did not fail.
// Derived rather than stored so TotalRequests == Succeeded + Failed holds by
// construction.
func (s Snapshot) SucceededRequests() int64 {
	return s.TotalRequests - s.FailedRequests
}

// Monitor tracks request outcomes and cache effectiveness under a single mutex.
// Safe for concurrent use from all pool workers and caller threads.
type Monitor struct {
	mu sync.Mutex

	totalRequests  int64
	failedRequests int64
	cacheHits      int64
	cacheMisses    int64

	// Rolling latency window implemented as a ring buffer. sum tracks the
	// running total of live samples so the average is O(1) per update.
	window []time.Duration
	next   int
	filled int
	sum    time.Duration

	collector *Collector
}

// NewMonitor creates a monitor with the default 100-sample rolling window and
// no Prometheus mirroring.
func NewMonitor() *Monitor {
	return NewMonitorWithCollector(nil)
}

// NewMonitorWithCollector creates a monitor that additionally mirrors its
// counters into the given Prometheus collector. A nil collector disables
// mirroring.
func NewMonitorWithCollector(collector *Collector) *Monitor {
	return &Monitor{
		window:    make([]time.Duration, DefaultWindowSize),
		collector: collector,
	}
}

// RecordCompletion accounts one finished remote call. Increments the total
// counter and, on failure, the failure counter; appends the call's duration to
// the rolling window, discarding the oldest sample when the window is full.
func (m *Monitor) RecordCompletion(duration time.Duration, success bool) {
	m.mu.Lock()

	m.totalRequests++
	if !success {
		m.failedRequests++
	}

	// Overwrite the oldest slot; subtract its contribution once the ring has
	// wrapped so sum always reflects exactly the live samples.
	if m.filled == len(m.window) {
		m.sum -= m.window[m.next]
	} else {
		m.filled++
	}
	m.window[m.next] = duration
	m.sum += duration
	m.next = (m.next + 1) % len(m.window)

	m.mu.Unlock()

	m.collector.RecordCompletion(duration, success)
}

// RecordCacheOutcome accounts one cache lookup as a hit or a miss.
func (m *Monitor) RecordCacheOutcome(hit bool) {
	m.mu.Lock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
	m.mu.Unlock()

	m.collector.RecordCacheOutcome(hit)
}

// TaskStarted reports that a pool worker picked up a task. Only feeds the
// Prometheus in-flight gauge; the snapshot counters are completion-based.
func (m *Monitor) TaskStarted() {
	m.collector.TaskStarted()
}

// TaskFinished reports that a pool worker finished a task.
func (m *Monitor) TaskFinished() {
	m.collector.TaskFinished()
}

// Snapshot returns an immutable copy of all counters and the current rolling
// average latency. The average is zero until the first completion is recorded.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg time.Duration
	if m.filled > 0 {
		avg = m.sum / time.Duration(m.filled)
	}

	return Snapshot{
		TotalRequests:         m.totalRequests,
		FailedRequests:        m.failedRequests,
		CacheHits:             m.cacheHits,
		CacheMisses:           m.cacheMisses,
		RollingAverageLatency: avg,
		WindowSamples:         m.filled,
	}
}
