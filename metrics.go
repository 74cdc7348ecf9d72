package mediacache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    preloadCounter  prometheus.Counter
//	    loadHistogram   prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordPreload(count, failed int, duration time.Duration) {
//	    p.preloadCounter.Add(float64(count))
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordPreload is called after each preload batch settles.
	// count is the number of URLs requested, failed is the number that did
	// not load, duration is the total wall time of the batch.
	RecordPreload(count, failed int, duration time.Duration)

	// RecordLoad is called for each individual settled load.
	// sizeBytes is zero on failure.
	RecordLoad(duration time.Duration, sizeBytes int64, kind ErrorKind)

	// RecordEvict is called after each explicit eviction request.
	RecordEvict(count int)

	// RecordClear is called after each full reset.
	RecordClear()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPreload(int, int, time.Duration)      {}
func (NoopMetricsCollector) RecordLoad(time.Duration, int64, ErrorKind) {}
func (NoopMetricsCollector) RecordEvict(int)                            {}
func (NoopMetricsCollector) RecordClear()                               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PreloadCount      atomic.Int64
	PreloadURLs       atomic.Int64
	PreloadFailed     atomic.Int64
	PreloadTotalNanos atomic.Int64
	LoadCount         atomic.Int64
	LoadErrors        atomic.Int64
	LoadBytes         atomic.Int64
	LoadTotalNanos    atomic.Int64
	EvictCount        atomic.Int64
	ClearCount        atomic.Int64
}

// RecordPreload implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPreload(count, failed int, duration time.Duration) {
	b.PreloadCount.Add(1)
	b.PreloadURLs.Add(int64(count))
	b.PreloadFailed.Add(int64(failed))
	b.PreloadTotalNanos.Add(duration.Nanoseconds())
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(duration time.Duration, sizeBytes int64, kind ErrorKind) {
	b.LoadCount.Add(1)
	b.LoadBytes.Add(sizeBytes)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if kind != ErrorNone {
		b.LoadErrors.Add(1)
	}
}

// RecordEvict implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEvict(count int) {
	b.EvictCount.Add(int64(count))
}

// RecordClear implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClear() {
	b.ClearCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PreloadCount:    b.PreloadCount.Load(),
		PreloadURLs:     b.PreloadURLs.Load(),
		PreloadFailed:   b.PreloadFailed.Load(),
		PreloadAvgNanos: b.getAvgPreloadNanos(),
		LoadCount:       b.LoadCount.Load(),
		LoadErrors:      b.LoadErrors.Load(),
		LoadBytes:       b.LoadBytes.Load(),
		LoadAvgNanos:    b.getAvgLoadNanos(),
		EvictCount:      b.EvictCount.Load(),
		ClearCount:      b.ClearCount.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgPreloadNanos() int64 {
	count := b.PreloadCount.Load()
	if count == 0 {
		return 0
	}
	return b.PreloadTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgLoadNanos() int64 {
	count := b.LoadCount.Load()
	if count == 0 {
		return 0
	}
	return b.LoadTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PreloadCount    int64
	PreloadURLs     int64
	PreloadFailed   int64
	PreloadAvgNanos int64
	LoadCount       int64
	LoadErrors      int64
	LoadBytes       int64
	LoadAvgNanos    int64
	EvictCount      int64
	ClearCount      int64
}
