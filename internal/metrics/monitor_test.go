package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestRecordCompletionCounters validates total and failure accounting
func TestRecordCompletionCounters(t *testing.T) {
	tests := []struct {
		name       string
		successes  int
		failures   int
		wantTotal  int64
		wantFailed int64
	}{
		{name: "only successes", successes: 3, wantTotal: 3, wantFailed: 0},
		{name: "only failures", failures: 2, wantTotal: 2, wantFailed: 2},
		{name: "mixed outcomes", successes: 5, failures: 3, wantTotal: 8, wantFailed: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor()
			for i := 0; i < tt.successes; i++ {
				m.RecordCompletion(time.Millisecond, true)
			}
			for i := 0; i < tt.failures; i++ {
				m.RecordCompletion(time.Millisecond, false)
			}

			snap := m.Snapshot()
			if snap.TotalRequests != tt.wantTotal {
				t.Errorf("TotalRequests = %d, want %d", snap.TotalRequests, tt.wantTotal)
			}
			if snap.FailedRequests != tt.wantFailed {
				t.Errorf("FailedRequests = %d, want %d", snap.FailedRequests, tt.wantFailed)
			}
			if snap.SucceededRequests()+snap.FailedRequests != snap.TotalRequests {
				t.Error("succeeded + failed should equal total")
			}
		})
	}
}

// TestRollingAverage validates the moving average over the latency window
func TestRollingAverage(t *testing.T) {
	m := NewMonitor()

	m.RecordCompletion(10*time.Millisecond, true)
	m.RecordCompletion(20*time.Millisecond, true)
	m.RecordCompletion(30*time.Millisecond, true)

	snap := m.Snapshot()
	if snap.RollingAverageLatency != 20*time.Millisecond {
		t.Errorf("RollingAverageLatency = %v, want %v", snap.RollingAverageLatency, 20*time.Millisecond)
	}
	if snap.WindowSamples != 3 {
		t.Errorf("WindowSamples = %d, want 3", snap.WindowSamples)
	}
}

// TestRollingWindowDiscardsOldest validates FIFO eviction once the window is full
func TestRollingWindowDiscardsOldest(t *testing.T) {
	m := NewMonitor()

	// Fill the entire window with 10ms samples, then push one more window's
	// worth of 30ms samples. The average must reflect only the newest samples.
	for i := 0; i < DefaultWindowSize; i++ {
		m.RecordCompletion(10*time.Millisecond, true)
	}
	for i := 0; i < DefaultWindowSize; i++ {
		m.RecordCompletion(30*time.Millisecond, true)
	}

	snap := m.Snapshot()
	if snap.RollingAverageLatency != 30*time.Millisecond {
		t.Errorf("RollingAverageLatency = %v, want %v after window rollover",
			snap.RollingAverageLatency, 30*time.Millisecond)
	}
	if snap.WindowSamples != DefaultWindowSize {
		t.Errorf("WindowSamples = %d, want %d", snap.WindowSamples, DefaultWindowSize)
	}
	if snap.TotalRequests != int64(2*DefaultWindowSize) {
		t.Errorf("TotalRequests = %d, want %d", snap.TotalRequests, 2*DefaultWindowSize)
	}
}

// TestRecordCacheOutcome validates hit and miss counters
func TestRecordCacheOutcome(t *testing.T) {
	m := NewMonitor()

	m.RecordCacheOutcome(true)
	m.RecordCacheOutcome(true)
	m.RecordCacheOutcome(false)

	snap := m.Snapshot()
	if snap.CacheHits != 2 {
		t.Errorf("CacheHits = %d, want 2", snap.CacheHits)
	}
	if snap.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", snap.CacheMisses)
	}
}

// TestConcurrentRecordCompletion validates that no updates are lost under
// heavy concurrent recording (50 goroutines x 1000 completions each)
func TestConcurrentRecordCompletion(t *testing.T) {
	const goroutines = 50
	const perGoroutine = 1000

	m := NewMonitor()
	var wg sync.WaitGroup

	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				m.RecordCompletion(time.Millisecond, i%10 != 0)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	want := int64(goroutines * perGoroutine)
	if snap.TotalRequests != want {
		t.Errorf("TotalRequests = %d, want %d (lost updates)", snap.TotalRequests, want)
	}
	wantFailed := int64(goroutines * perGoroutine / 10)
	if snap.FailedRequests != wantFailed {
		t.Errorf("FailedRequests = %d, want %d", snap.FailedRequests, wantFailed)
	}
}

// TestSnapshotIsCopy validates that snapshots do not observe later updates
func TestSnapshotIsCopy(t *testing.T) {
	m := NewMonitor()
	m.RecordCompletion(time.Millisecond, true)

	before := m.Snapshot()
	m.RecordCompletion(time.Millisecond, false)

	if before.TotalRequests != 1 {
		t.Errorf("earlier snapshot mutated: TotalRequests = %d, want 1", before.TotalRequests)
	}
	after := m.Snapshot()
	if after.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", after.TotalRequests)
	}
}

// TestMonitorWithCollector validates that Prometheus mirroring does not
// interfere with snapshot accounting
func TestMonitorWithCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMonitorWithCollector(NewCollectorWithRegistry(registry))

	m.TaskStarted()
	m.RecordCompletion(5*time.Millisecond, true)
	m.TaskFinished()
	m.RecordCacheOutcome(false)

	snap := m.Snapshot()
	if snap.TotalRequests != 1 || snap.CacheMisses != 1 {
		t.Errorf("snapshot = %+v, want 1 total request and 1 cache miss", snap)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gathering registry: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected collector to register metric families")
	}
}

// TestNilCollectorIsSafe validates nil-safety of collector methods
func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordCompletion(time.Millisecond, true)
	c.RecordCacheOutcome(true)
	c.TaskStarted()
	c.TaskFinished()
}
