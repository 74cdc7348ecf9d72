package kvstore

import (
	"context"
	"os"

	"github.com/hupe1980/mediacache/mediatype"
)

// ErrNotFound is returned when a record does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Record is a durable media payload keyed by its source URL.
type Record struct {
	Key          string
	Kind         mediatype.Kind
	Data         []byte
	CreatedAt    int64 // unix milliseconds
	LastAccessed int64 // unix milliseconds, as of the last write
}

// IndexEntry is a lightweight view of a stored record used by cleanup sweeps.
type IndexEntry struct {
	Key          string
	Kind         mediatype.Kind
	Size         int64 // stored (possibly compressed) size in bytes
	LastAccessed int64
}

// Store is the persistent tier abstraction: a key-value object store with two
// supporting index scans (by timestamp, by media kind). The scans exist only
// for cleanup sweeps and may be O(n); they must never sit on a hot path.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores a record. Implementations may complete the write
	// asynchronously; failures are best-effort and must not corrupt
	// previously stored records.
	Put(ctx context.Context, key string, rec Record) error

	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// Delete removes the record for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all records.
	Clear(ctx context.Context) error

	// Len returns the number of stored records.
	Len(ctx context.Context) (int, error)

	// ListByTimestamp returns up to limit entries ordered oldest-first by
	// last access. limit <= 0 means no limit.
	ListByTimestamp(ctx context.Context, limit int) ([]IndexEntry, error)

	// ListByKind returns up to limit entries of the given media kind.
	// limit <= 0 means no limit.
	ListByKind(ctx context.Context, kind mediatype.Kind, limit int) ([]IndexEntry, error)

	// Close releases resources and waits for pending background writes.
	Close() error
}
