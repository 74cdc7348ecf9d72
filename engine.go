package mediacache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/mediacache/cache"
	"github.com/hupe1980/mediacache/internal/resource"
	"github.com/hupe1980/mediacache/mediatype"
	"github.com/hupe1980/mediacache/optimize"
	"github.com/hupe1980/mediacache/scheduler"
)

// Result is the settled outcome of one preloaded URL.
type Result = scheduler.Result

// Item is one entry of a slideshow playlist.
type Item = scheduler.Item

// Engine is the top-level media cache and preload facade. It owns the
// two-tier cache store, the URL optimizer and the preload scheduler, and is
// safe for concurrent use.
type Engine struct {
	opts      options
	store     *cache.Store
	sched     *scheduler.Scheduler
	optimizer *optimize.Optimizer
	logger    *Logger
	metrics   MetricsCollector
	closed    atomic.Bool
}

// New creates a new Engine.
func New(optFns ...Option) *Engine {
	o := applyOptions(optFns)

	optimizer := optimize.New(o.probe)
	store := cache.New(o.cacheConfig, o.persistent, o.logger.Logger)

	loader := o.loader
	if loader == nil {
		var rc *resource.Controller
		if o.ioLimit > 0 {
			rc = resource.NewController(resource.Config{IOLimitBytesPerSec: o.ioLimit})
		}
		loader = scheduler.NewHTTPLoader(o.httpClient, rc)
	}

	sched := scheduler.New(loader, store, optimizer, scheduler.Config{
		MaxConcurrent: o.maxConcurrent,
		LoadTimeout:   o.loadTimeout,
		Speed:         o.speed,
		Optimize:      o.optimizeOptions,
	}, o.logger.Logger)

	return &Engine{
		opts:      o,
		store:     store,
		sched:     sched,
		optimizer: optimizer,
		logger:    o.logger,
		metrics:   o.metricsCollector,
	}
}

// Preload fetches the given URLs into the cache at the given priority and
// waits for every one of them to settle. The returned slice is index-aligned
// with urls; per-URL failures are reported in the results, not as an error.
func (e *Engine) Preload(ctx context.Context, urls []string, priority int) ([]Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()

	results, err := e.sched.Preload(ctx, urls, priority)
	if err != nil {
		return nil, err
	}

	e.recordBatch(ctx, results, time.Since(start))

	return results, nil
}

// PreloadNext preloads up to aheadCount items following currentIndex,
// wrapping around the end of the playlist.
func (e *Engine) PreloadNext(ctx context.Context, items []Item, currentIndex, aheadCount int) ([]Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()

	results, err := e.sched.PreloadNext(ctx, items, currentIndex, aheadCount)
	if err != nil {
		return nil, err
	}

	e.recordBatch(ctx, results, time.Since(start))

	return results, nil
}

// IsCached reports whether the optimized form of url is resident in the
// memory tier. It performs no IO.
func (e *Engine) IsCached(url string) bool {
	return e.sched.IsCached(url)
}

// GetCached returns the cached entry for url, consulting the persistent tier
// on a memory miss.
func (e *Engine) GetCached(ctx context.Context, url string) (cache.Entry, bool) {
	return e.store.Get(ctx, e.sched.CacheKey(url))
}

// Evict removes the given URLs from both cache tiers.
func (e *Engine) Evict(ctx context.Context, urls []string) {
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = e.sched.CacheKey(u)
	}

	e.store.Evict(ctx, keys)
	e.metrics.RecordEvict(len(keys))
	e.logger.LogEvict(ctx, len(keys))
}

// Clear drops all queued preloads, requests cancellation of in-flight loads
// and empties both cache tiers.
func (e *Engine) Clear(ctx context.Context) {
	e.sched.Clear()
	e.store.Clear(ctx)
	e.metrics.RecordClear()
	e.logger.LogClear(ctx)
}

// CacheStats returns a snapshot of cache occupancy and hit statistics.
func (e *Engine) CacheStats() cache.Stats {
	return e.store.Stats()
}

// CleanupSweep trims the persistent tier back under its byte budget,
// deleting oldest entries first. No-op without a persistent store.
func (e *Engine) CleanupSweep(ctx context.Context) error {
	err := e.store.CleanupSweep(ctx)
	e.logger.LogSweep(ctx, err)
	return err
}

// Detect classifies a media URL. The optional mimeHint takes precedence over
// the file extension.
func (e *Engine) Detect(url, mimeHint string) mediatype.Detection {
	return mediatype.Detect(url, mimeHint)
}

// Optimize rewrites url for the engine's configured client profile and
// current connection speed.
func (e *Engine) Optimize(url string) optimize.Result {
	return e.optimizer.Optimize(url, e.sched.OptimizeOptions())
}

// SetConnectionSpeed adapts the engine to a changed connection quality:
// the worker pool is resized (unless pinned) and optimizer quality defaults
// shift for subsequently enqueued URLs.
func (e *Engine) SetConnectionSpeed(speed optimize.Speed) {
	e.sched.SetSpeed(speed)
	e.logger.LogSpeedChange(context.Background(), speed.String())
}

// Close shuts down the scheduler, waits for in-flight work to settle and
// closes both cache tiers. Close is idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := e.sched.Close(); err != nil {
		return err
	}

	return e.store.Close()
}

func (e *Engine) recordBatch(ctx context.Context, results []Result, elapsed time.Duration) {
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
		e.metrics.RecordLoad(time.Duration(r.LoadTimeMs)*time.Millisecond, r.SizeBytes, r.Err)
	}

	e.metrics.RecordPreload(len(results), failed, elapsed)
	e.logger.LogPreload(ctx, len(results), failed, elapsed)
}
