package batch

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Unisami/workrelay/internal/cache"
	"github.com/Unisami/workrelay/internal/metrics"
	"github.com/Unisami/workrelay/internal/pool"
	"github.com/Unisami/workrelay/internal/remote"
)

// fakeSubmitter implements RecordSubmitter in memory. Operations whose
// properties contain "fail" return an error instead.
type fakeSubmitter struct {
	mu      sync.Mutex
	creates int
	updates int
	queries int
}

func (f *fakeSubmitter) CreateRecord(properties map[string]any) (*remote.Record, error) {
	f.mu.Lock()
	f.creates++
	n := f.creates
	f.mu.Unlock()

	if _, ok := properties["fail"]; ok {
		return nil, errors.New("simulated create failure")
	}
	return &remote.Record{ID: fmt.Sprintf("rec-%d", n), Properties: properties}, nil
}

func (f *fakeSubmitter) UpdateRecord(id string, properties map[string]any) (*remote.Record, error) {
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()

	if _, ok := properties["fail"]; ok {
		return nil, errors.New("simulated update failure")
	}
	return &remote.Record{ID: id, Properties: properties}, nil
}

func (f *fakeSubmitter) QueryRecords(filter map[string]any) ([]remote.Record, error) {
	f.mu.Lock()
	f.queries++
	f.mu.Unlock()

	if _, ok := filter["fail"]; ok {
		return nil, errors.New("simulated query failure")
	}
	return []remote.Record{{ID: "rec-q1"}, {ID: "rec-q2"}}, nil
}

func (f *fakeSubmitter) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates, f.queries
}

// testHarness wires a coordinator to a real pool and cache with a fake remote.
type testHarness struct {
	coordinator *Coordinator
	submitter   *fakeSubmitter
	cache       *cache.Cache
	pool        *pool.Pool
}

func newHarness(t *testing.T, config *Config) *testHarness {
	t.Helper()
	if config == nil {
		config = DefaultConfig()
	}

	submitter := &fakeSubmitter{}
	store := cache.NewWithSweepInterval(0)
	workers := pool.New(pool.DefaultConfig(), metrics.NewMonitor())
	coordinator := NewCoordinator(config, submitter, workers, store)

	t.Cleanup(func() {
		coordinator.Stop()
		workers.Shutdown(2 * time.Second)
		store.Close()
	})

	return &testHarness{
		coordinator: coordinator,
		submitter:   submitter,
		cache:       store,
		pool:        workers,
	}
}

// collectResults returns a callback and a channel receiving every result.
func collectResults(capacity int) (Callback, chan Result) {
	results := make(chan Result, capacity)
	return func(r Result) { results <- r }, results
}

// waitForResults fails the test unless n results arrive within the deadline.
func waitForResults(t *testing.T, results chan Result, n int) []Result {
	t.Helper()
	collected := make([]Result, 0, n)
	deadline := time.After(5 * time.Second)
	for len(collected) < n {
		select {
		case r := <-results:
			collected = append(collected, r)
		case <-deadline:
			t.Fatalf("received %d of %d expected results before deadline", len(collected), n)
		}
	}
	return collected
}

// TestConfigValidate validates coordinator configuration boundaries
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "zero batch size rejected", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: true},
		{name: "excessive batch size rejected", mutate: func(c *Config) { c.BatchSize = 10000 }, wantErr: true},
		{name: "zero idle timeout rejected", mutate: func(c *Config) { c.IdleTimeout = 0 }, wantErr: true},
		{name: "excessive idle timeout rejected", mutate: func(c *Config) { c.IdleTimeout = time.Hour }, wantErr: true},
		{name: "zero queue size rejected", mutate: func(c *Config) { c.QueueSize = 0 }, wantErr: true},
		{name: "zero stop timeout rejected", mutate: func(c *Config) { c.StopTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestOperationKindString validates kind names used in logs
func TestOperationKindString(t *testing.T) {
	tests := []struct {
		kind OperationKind
		want string
	}{
		{KindCreate, "create"},
		{KindUpdate, "update"},
		{KindQuery, "query"},
		{OperationKind(42), "unknown(42)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// TestBatchSizeTriggersFlushes validates the ceil(N/B) flush count for fast
// arrivals: 12 creates with batch size 5 produce exactly 3 flushes (5, 5, 2)
// and 12 callbacks
func TestBatchSizeTriggersFlushes(t *testing.T) {
	h := newHarness(t, &Config{
		BatchSize:   5,
		IdleTimeout: 150 * time.Millisecond,
		QueueSize:   64,
		StopTimeout: 2 * time.Second,
	})

	callback, results := collectResults(12)

	// Enqueue everything before the loop starts so arrivals are immediate.
	for i := 0; i < 12; i++ {
		op := Operation{
			Kind:     KindCreate,
			Payload:  map[string]any{"index": i},
			Callback: callback,
		}
		if err := h.coordinator.Enqueue(op); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	h.coordinator.Start()

	collected := waitForResults(t, results, 12)
	for _, r := range collected {
		if r.Err != nil {
			t.Errorf("unexpected operation error: %v", r.Err)
		}
		if r.Err == nil && r.Record == nil {
			t.Error("successful create should carry a record, never both nil")
		}
	}

	// Two size-triggered flushes plus one idle-timeout flush for the tail.
	deadline := time.Now().Add(2 * time.Second)
	for h.coordinator.Flushes() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.coordinator.Flushes(); got != 3 {
		t.Errorf("Flushes() = %d, want 3", got)
	}

	if creates, _, _ := h.submitter.counts(); creates != 12 {
		t.Errorf("remote creates = %d, want 12", creates)
	}
}

// TestIdleTimeoutFlushesPartialBatch validates the time-triggered flush path
func TestIdleTimeoutFlushesPartialBatch(t *testing.T) {
	h := newHarness(t, &Config{
		BatchSize:   10,
		IdleTimeout: 100 * time.Millisecond,
		QueueSize:   64,
		StopTimeout: 2 * time.Second,
	})
	h.coordinator.Start()

	callback, results := collectResults(2)
	for i := 0; i < 2; i++ {
		if err := h.coordinator.Enqueue(Operation{Kind: KindCreate, Callback: callback}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	waitForResults(t, results, 2)
	if got := h.coordinator.Flushes(); got < 1 {
		t.Errorf("Flushes() = %d, want at least 1 time-triggered flush", got)
	}
}

// TestFailureIsolationWithinFlush validates that one failing operation does
// not prevent siblings in the same flush from completing
func TestFailureIsolationWithinFlush(t *testing.T) {
	h := newHarness(t, &Config{
		BatchSize:   10,
		IdleTimeout: 50 * time.Millisecond,
		QueueSize:   64,
		StopTimeout: 2 * time.Second,
	})
	h.coordinator.Start()

	callback, results := collectResults(10)
	for i := 0; i < 10; i++ {
		payload := map[string]any{"index": i}
		if i == 3 {
			payload["fail"] = true
		}
		if err := h.coordinator.Enqueue(Operation{Kind: KindCreate, Payload: payload, Callback: callback}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	collected := waitForResults(t, results, 10)

	var failures, successes int
	for _, r := range collected {
		if r.Err != nil {
			failures++
			if r.Record != nil {
				t.Error("failed result should not carry a record")
			}
		} else {
			successes++
		}
	}
	if failures != 1 || successes != 9 {
		t.Errorf("got %d failures and %d successes, want 1 and 9", failures, successes)
	}
}

// TestUpdateInvalidatesCache validates write-invalidate: after an update
// targeting a record completes, the record's cache entry is gone
func TestUpdateInvalidatesCache(t *testing.T) {
	h := newHarness(t, &Config{
		BatchSize:   1,
		IdleTimeout: 50 * time.Millisecond,
		QueueSize:   64,
		StopTimeout: 2 * time.Second,
	})
	h.coordinator.Start()

	h.cache.Set(RecordCacheKey("rec-7"), "cached-value", time.Minute)
	h.cache.Set(RecordCacheKey("rec-other"), "untouched", time.Minute)

	callback, results := collectResults(1)
	err := h.coordinator.Enqueue(Operation{
		Kind:     KindUpdate,
		Key:      "rec-7",
		Payload:  map[string]any{"Status": "Done"},
		Callback: callback,
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitForResults(t, results, 1)

	if _, ok := h.cache.Get(RecordCacheKey("rec-7")); ok {
		t.Error("cache entry for updated record should be invalidated")
	}
	if _, ok := h.cache.Get(RecordCacheKey("rec-other")); !ok {
		t.Error("cache entry for unrelated record should survive")
	}
}

// TestFailedUpdateStillInvalidates validates that invalidation happens even
// when the remote update fails, keeping reads conservative
func TestFailedUpdateStillInvalidates(t *testing.T) {
	h := newHarness(t, &Config{
		BatchSize:   1,
		IdleTimeout: 50 * time.Millisecond,
		QueueSize:   64,
		StopTimeout: 2 * time.Second,
	})
	h.coordinator.Start()

	h.cache.Set(RecordCacheKey("rec-x"), "stale-maybe", time.Minute)

	callback, results := collectResults(1)
	err := h.coordinator.Enqueue(Operation{
		Kind:     KindUpdate,
		Key:      "rec-x",
		Payload:  map[string]any{"fail": true},
		Callback: callback,
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	collected := waitForResults(t, results, 1)
	if collected[0].Err == nil {
		t.Fatal("expected the update to fail")
	}
	if _, ok := h.cache.Get(RecordCacheKey("rec-x")); ok {
		t.Error("cache entry should be invalidated even on failed update")
	}
}

// TestQueryOperationsDeliverRecords validates the query dispatch path
func TestQueryOperationsDeliverRecords(t *testing.T) {
	h := newHarness(t, &Config{
		BatchSize:   1,
		IdleTimeout: 50 * time.Millisecond,
		QueueSize:   64,
		StopTimeout: 2 * time.Second,
	})
	h.coordinator.Start()

	callback, results := collectResults(1)
	err := h.coordinator.Enqueue(Operation{
		Kind:     KindQuery,
		Payload:  map[string]any{"Status": "New"},
		Callback: callback,
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	collected := waitForResults(t, results, 1)
	if collected[0].Err != nil {
		t.Fatalf("query error = %v", collected[0].Err)
	}
	if len(collected[0].Records) != 2 {
		t.Errorf("len(Records) = %d, want 2", len(collected[0].Records))
	}
}

// TestStopFlushesPending validates the final flush during shutdown
func TestStopFlushesPending(t *testing.T) {
	h := newHarness(t, &Config{
		BatchSize:   100,
		IdleTimeout: 10 * time.Second, // never fires during the test
		QueueSize:   64,
		StopTimeout: 3 * time.Second,
	})

	callback, results := collectResults(4)
	for i := 0; i < 4; i++ {
		if err := h.coordinator.Enqueue(Operation{Kind: KindCreate, Callback: callback}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	h.coordinator.Start()

	if ok := h.coordinator.Stop(); !ok {
		t.Error("Stop() should succeed within its timeout")
	}
	waitForResults(t, results, 4)
}

// TestEnqueueAfterStop validates rejection of new work during shutdown
func TestEnqueueAfterStop(t *testing.T) {
	h := newHarness(t, nil)
	h.coordinator.Start()
	h.coordinator.Stop()

	err := h.coordinator.Enqueue(Operation{Kind: KindCreate})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("Enqueue() after Stop error = %v, want ErrStopped", err)
	}
}

// TestPanickingCallbackDoesNotStopProcessing validates that a panic inside a
// caller-supplied callback is contained and later operations still run
func TestPanickingCallbackDoesNotStopProcessing(t *testing.T) {
	h := newHarness(t, &Config{
		BatchSize:   1,
		IdleTimeout: 50 * time.Millisecond,
		QueueSize:   64,
		StopTimeout: 2 * time.Second,
	})
	h.coordinator.Start()

	err := h.coordinator.Enqueue(Operation{
		Kind:     KindCreate,
		Callback: func(Result) { panic("callback exploded") },
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	callback, results := collectResults(1)
	if err := h.coordinator.Enqueue(Operation{Kind: KindCreate, Callback: callback}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	collected := waitForResults(t, results, 1)
	if collected[0].Err != nil {
		t.Errorf("operation after panicking callback failed: %v", collected[0].Err)
	}
}
