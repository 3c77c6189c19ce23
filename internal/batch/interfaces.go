// Package batch provides the background coordinator that turns a stream of
// individually-submitted workspace operations into parallel batches.
//
// This file defines the narrow interfaces the coordinator depends on, keeping
// it decoupled from the concrete remote client, worker pool, and cache
// implementations and easy to exercise with fakes in tests.
package batch

import (
	"github.com/Unisami/workrelay/internal/pool"
	"github.com/Unisami/workrelay/internal/remote"
)

// RecordSubmitter issues single-record operations against the workspace
// database. Implemented by the remote client. The upstream API has no
// multi-record batch primitive, so a flush fans out as one call per operation.
type RecordSubmitter interface {
	CreateRecord(properties map[string]any) (*remote.Record, error)
	UpdateRecord(id string, properties map[string]any) (*remote.Record, error)
	QueryRecords(filter map[string]any) ([]remote.Record, error)
}

// TaskPool executes remote-call tasks with bounded parallelism. Implemented by
// the connection pool.
type TaskPool interface {
	Submit(task pool.Task) (*pool.Handle, error)
}

// Invalidator removes a cache entry by key. The cache provides this mechanism;
// the coordinator decides when to apply it (write-invalidate policy).
type Invalidator interface {
	Delete(key string)
}
