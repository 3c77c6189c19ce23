// Package pool provides a bounded worker pool for executing remote-call tasks
// against the workspace API with controlled parallelism.
//
// EXECUTION MODEL:
// A fixed set of worker goroutines consumes tasks from a buffered queue. Each
// submission returns a Handle that resolves with the task's result or error
// once a worker completes it. No ordering is guaranteed between submissions;
// two tasks submitted in sequence may finish in either order.
//
// FAILURE POLICY:
// A task's error (or panic) is delivered through its own Handle and never
// affects sibling tasks; the pool itself keeps running regardless of
// individual failures. Every completion is timed and recorded in the
// performance monitor.
//
// SHUTDOWN:
// Shutdown stops new submissions immediately and waits up to a caller-supplied
// timeout for queued and running tasks to finish. Tasks still running after
// the timeout are abandoned: workers drain them in the background but their
// results are discarded since no caller is waiting. This is a best-effort
// drain, not a hard guarantee.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Unisami/workrelay/internal/logging"
	"github.com/Unisami/workrelay/internal/metrics"
)

// ErrPoolClosed is returned by Submit after Shutdown has been initiated.
var ErrPoolClosed = errors.New("connection pool is shut down")

// Task is one unit of remote work: a closure performing a single remote call
// and returning its result or error.
type Task func() (any, error)

// QueueFullError reports a submission rejected because the pending-task queue
// is at capacity. The submitter can surface this as backpressure.
type QueueFullError struct {
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("pool queue full: %d tasks pending", e.Capacity)
}

// Handle yields a submitted task's result once it completes. Wait blocks until
// resolution; Done exposes the completion signal for select-based callers.
type Handle struct {
	done  chan struct{}
	value any
	err   error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Wait blocks until the task completes and returns its result or error.
func (h *Handle) Wait() (any, error) {
	<-h.done
	return h.value, h.err
}

// Done returns a channel closed when the task has completed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// resolve publishes the task outcome and releases all waiters. Called exactly
// once per handle, by the worker that ran the task.
func (h *Handle) resolve(value any, err error) {
	h.value = value
	h.err = err
	close(h.done)
}

// job pairs a task with the handle its result resolves through.
type job struct {
	task   Task
	handle *Handle
}

// Pool executes remote-call tasks with bounded parallelism. Safe for
// concurrent submission from multiple goroutines.
type Pool struct {
	tasks   chan *job
	monitor *metrics.Monitor

	mu     sync.Mutex // guards closed and the submit/close race on tasks
	closed bool

	wg sync.WaitGroup
}

// New creates a pool and starts its workers. The monitor receives a timing
// record for every completed task; it must not be nil.
func New(config *Config, monitor *metrics.Monitor) *Pool {
	p := &Pool{
		tasks:   make(chan *job, config.QueueSize),
		monitor: monitor,
	}

	p.wg.Add(config.MaxConnections)
	for i := 0; i < config.MaxConnections; i++ {
		go p.worker(i)
	}

	logging.Debug("Pool: Started %d workers (queue capacity %d)",
		config.MaxConnections, config.QueueSize)

	return p
}

// Submit accepts a task for asynchronous execution and returns a handle that
// yields its result. Returns ErrPoolClosed after shutdown has begun and a
// QueueFullError when the pending queue is at capacity.
//
// Callers must not assume any ordering relative to other submissions.
func (p *Pool) Submit(task Task) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	h := newHandle()
	select {
	case p.tasks <- &job{task: task, handle: h}:
		return h, nil
	default:
		return nil, &QueueFullError{Capacity: cap(p.tasks)}
	}
}

// Shutdown stops accepting submissions and waits up to timeout for queued and
// in-flight tasks to finish. Returns true when everything drained in time;
// false when tasks were abandoned past the deadline. Safe to call more than
// once; later calls only wait.
func (p *Pool) Shutdown(timeout time.Duration) bool {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Debug("Pool: Drained all tasks before shutdown deadline")
		return true
	case <-time.After(timeout):
		logging.Warn("Pool: Shutdown deadline elapsed with tasks still running; abandoning results")
		return false
	}
}

// worker consumes tasks until the queue is closed and drained. Each task is
// timed, recorded in the monitor, and resolved through its handle.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for j := range p.tasks {
		p.runTask(id, j)
	}
}

// runTask executes one task with a recover boundary so a panicking task is
// reported as that task's error instead of crashing the worker.
func (p *Pool) runTask(id int, j *job) {
	p.monitor.TaskStarted()
	start := time.Now()

	var value any
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		value, err = j.task()
	}()

	duration := time.Since(start)
	p.monitor.RecordCompletion(duration, err == nil)
	p.monitor.TaskFinished()

	if err != nil {
		logging.Debug("Pool: Worker %d task failed after %v: %v", id, duration, err)
	}

	j.handle.resolve(value, err)
}
