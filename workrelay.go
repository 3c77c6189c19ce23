package workrelay

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Unisami/workrelay/internal/batch"
	"github.com/Unisami/workrelay/internal/cache"
	"github.com/Unisami/workrelay/internal/logging"
	"github.com/Unisami/workrelay/internal/metrics"
	"github.com/Unisami/workrelay/internal/pool"
	"github.com/Unisami/workrelay/internal/remote"
)

// ErrShuttingDown is returned by every submission path once Shutdown has
// begun. It is terminal: a Layer cannot be restarted.
var ErrShuttingDown = errors.New("relay layer is shutting down")

// OperationKind identifies what a queued operation does against the remote
// API. The set is closed; Enqueue rejects anything else.
type OperationKind int

const (
	// OpCreate inserts a new record built from the operation payload.
	OpCreate OperationKind = iota
	// OpUpdate patches the record named by the operation key and
	// invalidates its cache entry once the call completes.
	OpUpdate
	// OpQuery runs a filtered query and returns all matching records.
	OpQuery
)

// Record is one row of the remote workspace database as seen by callers.
type Record struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
}

// Result delivers the outcome of one queued operation to its callback.
// Record is set for creates and updates, Records for queries, and exactly
// one of those or Err is meaningful.
type Result struct {
	Record  *Record
	Records []Record
	Err     error
}

// Callback receives an operation's result on a pool worker goroutine. It
// must not block for long: a slow callback occupies one of the layer's
// bounded connections.
type Callback func(Result)

// Stats is a point-in-time snapshot of the layer's counters.
type Stats struct {
	TotalRequests     int64         `json:"total_requests"`
	SucceededRequests int64         `json:"succeeded_requests"`
	FailedRequests    int64         `json:"failed_requests"`
	CacheHits         int64         `json:"cache_hits"`
	CacheMisses       int64         `json:"cache_misses"`
	AverageLatency    time.Duration `json:"average_latency_ns"`
	LatencySamples    int           `json:"latency_samples"`
	Flushes           int64         `json:"flushes"`
}

// Layer is the relay facade. All methods are safe for concurrent use.
type Layer struct {
	config      *Config
	monitor     *metrics.Monitor
	cache       *cache.Cache
	pool        *pool.Pool
	coordinator *batch.Coordinator

	shuttingDown atomic.Bool
}

// New builds and starts a Layer talking to the remote API named in config.
// The returned layer is live: its pool workers and coordinator loop are
// running, and the caller owns the Shutdown call.
func New(config *Config) (*Layer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	client := remote.NewClient(config.BaseURL, config.AuthToken, config.RequestTimeout)
	return newWithSubmitter(config, client), nil
}

// newWithSubmitter wires the components around an arbitrary submitter so
// tests can run against an in-memory remote.
func newWithSubmitter(config *Config, submitter batch.RecordSubmitter) *Layer {
	monitor := metrics.NewMonitorWithCollector(config.Collector)
	store := cache.NewWithSweepInterval(config.SweepInterval)
	workers := pool.New(config.Pool, monitor)
	coordinator := batch.NewCoordinator(config.Batch, submitter, workers, store)
	coordinator.Start()

	return &Layer{
		config:      config,
		monitor:     monitor,
		cache:       store,
		pool:        workers,
		coordinator: coordinator,
	}
}

// Enqueue submits one operation for batched execution and returns without
// waiting for the remote call. key names the target record for updates and
// is ignored for creates and queries. callback may be nil, in which case
// failures are logged and counted but otherwise dropped.
func (l *Layer) Enqueue(kind OperationKind, key string, payload map[string]any, callback Callback) error {
	if l.shuttingDown.Load() {
		return ErrShuttingDown
	}

	var batchKind batch.OperationKind
	switch kind {
	case OpCreate:
		batchKind = batch.KindCreate
	case OpUpdate:
		batchKind = batch.KindUpdate
	case OpQuery:
		batchKind = batch.KindQuery
	default:
		return fmt.Errorf("unknown operation kind %d", kind)
	}

	err := l.coordinator.Enqueue(batch.Operation{
		Kind:     batchKind,
		Key:      key,
		Payload:  payload,
		Callback: wrapCallback(batchKind, key, callback),
	})
	if errors.Is(err, batch.ErrStopped) {
		return ErrShuttingDown
	}
	return err
}

// StoreOne creates a single record and blocks until the remote call
// resolves, returning the new record's ID. It rides the same batching path
// as Enqueue, so a burst of concurrent StoreOne calls still coalesces into
// full batches.
func (l *Layer) StoreOne(payload map[string]any) (string, error) {
	results := make(chan Result, 1)
	err := l.Enqueue(OpCreate, "", payload, func(r Result) { results <- r })
	if err != nil {
		return "", err
	}

	r := <-results
	if r.Err != nil {
		return "", r.Err
	}
	if r.Record == nil {
		return "", fmt.Errorf("create resolved without a record")
	}
	return r.Record.ID, nil
}

// Get returns the cached value for key. Every lookup is counted as a hit or
// a miss; expired entries count as misses.
func (l *Layer) Get(key string) (any, bool) {
	value, ok := l.cache.Get(key)
	l.monitor.RecordCacheOutcome(ok)
	return value, ok
}

// QueryCached is a read-through query: a cache hit under key returns
// immediately with no remote call, a miss runs the query through the
// batching path and caches the result under key for ttl.
func (l *Layer) QueryCached(key string, query map[string]any, ttl time.Duration) ([]Record, error) {
	if value, ok := l.Get(key); ok {
		if records, ok := value.([]Record); ok {
			return records, nil
		}
		// Key collision with a caller-stored value of another type.
		// Treat as unusable and fall through to the remote query.
		logging.Warn("Cached value under %q is not a record list, querying remote", key)
	}

	results := make(chan Result, 1)
	err := l.Enqueue(OpQuery, "", query, func(r Result) { results <- r })
	if err != nil {
		return nil, err
	}

	r := <-results
	if r.Err != nil {
		return nil, r.Err
	}
	l.cache.Set(key, r.Records, ttl)
	return r.Records, nil
}

// Set stores value under key for ttl, replacing any existing entry.
func (l *Layer) Set(key string, value any, ttl time.Duration) {
	l.cache.Set(key, value, ttl)
}

// Invalidate removes key from the cache. Removing an absent key is a no-op.
func (l *Layer) Invalidate(key string) {
	l.cache.Delete(key)
}

// RecordKey returns the cache key the layer uses for a record's own entry.
// Updates through the layer invalidate this key; callers that cache
// individual records under it get write-invalidation for free.
func RecordKey(id string) string {
	return batch.RecordCacheKey(id)
}

// Stats returns a consistent snapshot of the monitor's counters plus the
// coordinator's flush count.
func (l *Layer) Stats() Stats {
	snapshot := l.monitor.Snapshot()
	return Stats{
		TotalRequests:     snapshot.TotalRequests,
		SucceededRequests: snapshot.SucceededRequests(),
		FailedRequests:    snapshot.FailedRequests,
		CacheHits:         snapshot.CacheHits,
		CacheMisses:       snapshot.CacheMisses,
		AverageLatency:    snapshot.RollingAverageLatency,
		LatencySamples:    snapshot.WindowSamples,
		Flushes:           l.coordinator.Flushes(),
	}
}

// Shutdown drains the layer: new submissions are rejected immediately, the
// coordinator performs a final flush, and the pool finishes queued work
// within the remaining timeout. Returns true when everything drained in
// time. Abandoned tasks keep running in the background and are logged, not
// raised.
func (l *Layer) Shutdown(timeout time.Duration) bool {
	if !l.shuttingDown.CompareAndSwap(false, true) {
		logging.Warn("Shutdown called more than once on relay layer")
	}

	start := time.Now()
	stopped := l.coordinator.Stop()
	if !stopped {
		logging.Warn("Batch coordinator did not stop within its timeout")
	}

	remaining := timeout - time.Since(start)
	if remaining < 0 {
		remaining = 0
	}
	drained := l.pool.Shutdown(remaining)
	if !drained {
		logging.Warn("Connection pool abandoned in-flight tasks after %v", timeout)
	}

	l.cache.Close()
	return stopped && drained
}

// wrapCallback converts internal results to the public type and supplies the
// fire-and-forget default when the caller passed no callback.
func wrapCallback(kind batch.OperationKind, key string, callback Callback) batch.Callback {
	if callback == nil {
		return func(r batch.Result) {
			if r.Err != nil {
				logging.Warn("Dropped %s operation failed (key=%q): %v", kind, key, r.Err)
			}
		}
	}
	return func(r batch.Result) {
		callback(publicResult(r))
	}
}

// publicResult copies an internal result into the exported shape.
func publicResult(r batch.Result) Result {
	out := Result{Err: r.Err}
	if r.Record != nil {
		converted := Record(*r.Record)
		out.Record = &converted
	}
	if len(r.Records) > 0 {
		out.Records = make([]Record, len(r.Records))
		for i, rec := range r.Records {
			out.Records[i] = Record(rec)
		}
	}
	return out
}
