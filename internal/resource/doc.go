// Package resource bounds the preload machinery's resource usage.
//
// The Controller owns two limits:
//
//   - Concurrency: a weighted semaphore capping in-flight loads. The
//     scheduler's worker pool acquires one slot per dispatched task.
//   - IO: a token-bucket rate limiter pacing loader throughput so background
//     prefetching does not starve the foreground slide.
//
// All methods handle a nil Controller gracefully and become no-ops, so
// limiting stays optional without nil checks at call sites.
package resource
