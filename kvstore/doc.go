// Package kvstore provides the persistent tier for the media cache: a generic
// key-value object store keyed by URL, with two supporting index scans
// (by timestamp and by media kind) used only for cleanup sweeps.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests and ephemeral use
//   - LocalStore: local filesystem with background best-effort writes and
//     selectable payload compression (LZ4 or ZSTD)
//   - minio.Store: MinIO and S3-compatible object storage
//   - s3.Store: Amazon S3
//
// # Custom Implementations
//
// Implement the Store interface to support custom backends:
//
//	type Store interface {
//	    Put(ctx, key, rec) error
//	    Get(ctx, key) (Record, error)   // ErrNotFound on miss
//	    Delete(ctx, key) error
//	    Clear(ctx) error
//	    Len(ctx) (int, error)
//	    ListByTimestamp(ctx, limit) ([]IndexEntry, error)
//	    ListByKind(ctx, kind, limit) ([]IndexEntry, error)
//	    Close() error
//	}
//
// All stores persist records in a shared framed encoding (see EncodeRecord)
// so payloads written by one backend can be read by another.
package kvstore
