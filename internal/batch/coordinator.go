// Package batch provides the background coordinator that turns a stream of
// individually-submitted workspace operations into parallel batches.
//
// BATCHING STRATEGY:
// A single background goroutine accumulates submitted operations and flushes
// them on a dual trigger: immediately when the accumulation reaches BatchSize,
// or after IdleTimeout elapses with at least one operation pending. This
// bounds both per-flush overhead (large bursts are chunked) and latency
// (a lone operation never waits longer than the idle timeout).
//
// FLUSH SEMANTICS:
// A flush partitions its operations by kind (create / update / query) and
// submits one connection-pool task per operation, since the remote workspace
// API has no multi-record batch primitive. Callbacks fire with individual
// results as tasks resolve; no ordering is guaranteed across operations.
// Updates invalidate the target record's cache entry once the remote call
// completes, which is the only consistency mechanism between writes and the
// read cache.
//
// FAILURE POLICY:
// One operation's remote failure is logged and reported to its own callback;
// it never stops the remaining operations in the same flush or later flushes.
// A per-iteration recover boundary keeps a panicking callback or submitter
// from killing the loop.
package batch

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Unisami/workrelay/internal/logging"
)

// ErrStopped is returned by Enqueue after Stop has been initiated.
var ErrStopped = errors.New("batch coordinator is stopped")

// Coordinator accumulates operations and dispatches them to the connection
// pool in batches. One producer set (arbitrary callers) feeds the queue; a
// single background goroutine consumes it.
type Coordinator struct {
	ops chan Operation

	submitter   RecordSubmitter
	tasks       TaskPool
	invalidator Invalidator

	batchSize   int
	idleTimeout time.Duration
	stopTimeout time.Duration

	// flushes counts completed flush cycles, exposed for observability.
	flushes int64

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewCoordinator creates a coordinator wired to the given submitter, task
// pool, and cache invalidator. Call Start to begin processing.
func NewCoordinator(config *Config, submitter RecordSubmitter, tasks TaskPool, invalidator Invalidator) *Coordinator {
	return &Coordinator{
		ops:         make(chan Operation, config.QueueSize),
		submitter:   submitter,
		tasks:       tasks,
		invalidator: invalidator,
		batchSize:   config.BatchSize,
		idleTimeout: config.IdleTimeout,
		stopTimeout: config.StopTimeout,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the background coordinator goroutine.
func (c *Coordinator) Start() {
	go c.run()
	logging.Debug("Coordinator: Started (batch size %d, idle timeout %v)", c.batchSize, c.idleTimeout)
}

// Enqueue appends an operation to the coordinator's queue and returns
// immediately. The operation is owned by the queue until dispatched and is
// consumed exactly once. Returns ErrStopped once shutdown has begun.
func (c *Coordinator) Enqueue(op Operation) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	select {
	case c.ops <- op:
		return nil
	case <-c.stopCh:
		return ErrStopped
	}
}

// Stop signals the loop to flush anything pending and exit, then waits up to
// StopTimeout for it to finish. Returns true when the loop exited in time.
// Safe to call more than once; later calls only wait.
func (c *Coordinator) Stop() bool {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})

	select {
	case <-c.doneCh:
		logging.Debug("Coordinator: Stopped after final flush")
		return true
	case <-time.After(c.stopTimeout):
		logging.Warn("Coordinator: Stop timeout elapsed before loop exit")
		return false
	}
}

// Flushes returns the number of completed flush cycles.
func (c *Coordinator) Flushes() int64 {
	return atomic.LoadInt64(&c.flushes)
}

// run is the coordinator loop. Waits for the next operation with the idle
// timeout; on arrival it greedily pulls immediately-available operations up
// to the batch size, flushing when full. On an idle wake with work pending it
// flushes regardless of size. On stop it drains the queue and flushes once
// more before exiting.
func (c *Coordinator) run() {
	defer close(c.doneCh)

	var pending []Operation

	for {
		timer := time.NewTimer(c.idleTimeout)

		select {
		case <-c.stopCh:
			timer.Stop()
			pending = c.drainQueue(pending)
			if len(pending) > 0 {
				c.safeFlush(pending)
			}
			return

		case op := <-c.ops:
			timer.Stop()
			pending = append(pending, op)

			// Pull whatever is already queued, up to the batch size.
		fill:
			for len(pending) < c.batchSize {
				select {
				case next := <-c.ops:
					pending = append(pending, next)
				default:
					break fill
				}
			}

			if len(pending) >= c.batchSize {
				c.safeFlush(pending)
				pending = nil
			}

		case <-timer.C:
			if len(pending) > 0 {
				c.safeFlush(pending)
				pending = nil
			}
		}
	}
}

// drainQueue empties the submission queue into pending without blocking.
// Used during shutdown so already-accepted operations still get flushed.
func (c *Coordinator) drainQueue(pending []Operation) []Operation {
	for {
		select {
		case op := <-c.ops:
			pending = append(pending, op)
		default:
			return pending
		}
	}
}

// safeFlush runs one flush inside a recover boundary so a panic in a
// submitter or callback cannot crash the coordinator loop.
func (c *Coordinator) safeFlush(ops []Operation) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Coordinator: Recovered from panic during flush: %v", r)
		}
	}()
	c.flush(ops)
}

// flush partitions the accumulated operations by kind and fans each one out
// as its own pool task. The kind set is closed and validated at the public
// surface, so partitioning over the three known kinds is exhaustive.
func (c *Coordinator) flush(ops []Operation) {
	partitions := make(map[OperationKind][]Operation, 3)
	for _, op := range ops {
		partitions[op.Kind] = append(partitions[op.Kind], op)
	}

	for _, kind := range []OperationKind{KindCreate, KindUpdate, KindQuery} {
		for _, op := range partitions[kind] {
			c.dispatch(op)
		}
	}

	atomic.AddInt64(&c.flushes, 1)
	logging.Debug("Coordinator: Flushed %d operations (%d create, %d update, %d query)",
		len(ops), len(partitions[KindCreate]), len(partitions[KindUpdate]), len(partitions[KindQuery]))
}

// dispatch submits one operation to the pool. Pool rejection (shutdown or a
// full queue) is delivered to the operation's callback like any other failure
// so it never crosses into sibling operations.
func (c *Coordinator) dispatch(op Operation) {
	task := c.taskFor(op)

	if _, err := c.tasks.Submit(task); err != nil {
		logging.Warn("Coordinator: Dropping %s operation, pool rejected submission: %v", op.Kind, err)
		deliver(op, Result{Err: err})
	}
}

// taskFor builds the pool task for one operation. The task performs the
// remote call, applies write-invalidation for updates, and delivers the
// result to the operation's callback before resolving.
func (c *Coordinator) taskFor(op Operation) func() (any, error) {
	switch op.Kind {
	case KindCreate:
		return func() (any, error) {
			record, err := c.submitter.CreateRecord(op.Payload)
			if err != nil {
				logging.Warn("Coordinator: Create failed: %v", err)
				deliver(op, Result{Err: err})
				return nil, err
			}
			deliver(op, Result{Record: record})
			return record, nil
		}

	case KindUpdate:
		return func() (any, error) {
			record, err := c.submitter.UpdateRecord(op.Key, op.Payload)

			// Write-invalidate: the cached read for this record is stale the
			// moment the remote call completes. Deleting an absent key is a
			// no-op, so this runs unconditionally.
			c.invalidator.Delete(RecordCacheKey(op.Key))

			if err != nil {
				logging.Warn("Coordinator: Update of %s failed: %v", op.Key, err)
				deliver(op, Result{Err: err})
				return nil, err
			}
			deliver(op, Result{Record: record})
			return record, nil
		}

	default: // KindQuery
		return func() (any, error) {
			records, err := c.submitter.QueryRecords(op.Payload)
			if err != nil {
				logging.Warn("Coordinator: Query failed: %v", err)
				deliver(op, Result{Err: err})
				return nil, err
			}
			deliver(op, Result{Records: records})
			return records, nil
		}
	}
}

// deliver invokes the operation's callback if one was provided. Without a
// callback, failures have already been logged and are otherwise dropped;
// that trade-off is part of the fire-and-forget contract.
func deliver(op Operation, result Result) {
	if op.Callback != nil {
		op.Callback(result)
	}
}
