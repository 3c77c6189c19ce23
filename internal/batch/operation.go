package batch

import (
	"fmt"

	"github.com/Unisami/workrelay/internal/remote"
)

// OperationKind is the closed set of operation types the coordinator
// partitions by. Using a tagged variant instead of string dispatch keeps
// partitioning exhaustive and compiler-checked.
type OperationKind int

const (
	// KindCreate inserts a new record; the payload carries its properties.
	KindCreate OperationKind = iota
	// KindUpdate rewrites properties of the record identified by Key and
	// invalidates that record's cache entry.
	KindUpdate
	// KindQuery runs a filtered read; the payload carries the filter.
	KindQuery
)

// String returns the kind's lowercase name for logging.
func (k OperationKind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindQuery:
		return "query"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Result carries one operation's outcome to its callback. Exactly one of the
// value fields or Err is meaningful, never both.
type Result struct {
	// Record is the created or updated record (Create/Update).
	Record *remote.Record
	// Records holds query results (Query).
	Records []remote.Record
	// Err is the operation's failure, if any.
	Err error
}

// Callback receives an operation's individual result as it resolves. Invoked
// from a pool worker goroutine; implementations must be safe for that.
type Callback func(Result)

// Operation is one unit of submitted work. Created by a caller on enqueue,
// consumed exactly once by the coordinator, never mutated after creation.
type Operation struct {
	// Kind selects which remote call the operation maps to.
	Kind OperationKind
	// Key identifies the target record for updates and doubles as the cache
	// key to invalidate. Unused for creates; optional context for queries.
	Key string
	// Payload is opaque data: record properties for Create/Update, a filter
	// for Query. Its schema belongs to the caller's mapping layer.
	Payload map[string]any
	// Callback optionally receives the operation's result. Without one,
	// failures are logged and dropped.
	Callback Callback
}

// RecordCacheKey returns the cache key under which a single record's cached
// read lives. Updates targeting the record invalidate exactly this key,
// which is what makes a write imply a subsequent cache miss.
func RecordCacheKey(id string) string {
	return "record:" + id
}
