// Package scheduler coordinates prioritized media preloading.
//
// Preload requests are optimized into cache keys, deduplicated against queued
// and in-flight work, and dispatched by a bounded worker pool in priority
// order (FIFO within equal priority). Every requested URL settles with exactly
// one Result; load failures are reported as typed error kinds, never
// propagated as Go errors from Preload itself.
//
// The worker cap adapts to the observed connection speed unless pinned
// explicitly, and loader throughput can be paced with an IO byte budget.
package scheduler
