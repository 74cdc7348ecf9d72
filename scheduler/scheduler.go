package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/mediacache/cache"
	"github.com/hupe1980/mediacache/internal/resource"
	"github.com/hupe1980/mediacache/mediatype"
	"github.com/hupe1980/mediacache/optimize"
)

const (
	// DefaultLoadTimeout bounds a single load attempt.
	DefaultLoadTimeout = 8 * time.Second

	// DefaultMaxConcurrent is the worker cap when neither an explicit cap nor
	// a connection speed is configured.
	DefaultMaxConcurrent = 3

	// NextPriority is the priority assigned by PreloadNext. It outranks the
	// default priority so lookahead loads jump the queue.
	NextPriority = 100
)

// ConcurrencyForSpeed maps an observed connection speed onto a worker cap.
func ConcurrencyForSpeed(speed optimize.Speed) int {
	switch speed {
	case optimize.SpeedSlow:
		return 1
	case optimize.SpeedMedium:
		return 2
	case optimize.SpeedFast:
		return 4
	default:
		return DefaultMaxConcurrent
	}
}

// Result is the settled outcome of one preload request. Every requested URL
// produces exactly one Result, failures included.
type Result struct {
	URL        string
	Success    bool
	LoadTimeMs int64
	SizeBytes  int64
	Err        ErrorKind
}

// Item is one entry of a slideshow playlist, addressed by PreloadNext.
type Item struct {
	URL string
}

// Config holds the scheduler configuration.
type Config struct {
	// MaxConcurrent pins the worker cap. When zero the cap follows the
	// connection speed, see ConcurrencyForSpeed.
	MaxConcurrent int

	// LoadTimeout bounds a single load attempt. Zero means DefaultLoadTimeout.
	LoadTimeout time.Duration

	// Speed is the observed connection quality at construction time.
	Speed optimize.Speed

	// IOLimitBytesPerSec paces loader throughput. Zero means unlimited.
	IOLimitBytesPerSec int64

	// Optimize is applied to every URL before it becomes a cache key.
	Optimize optimize.Options
}

func (c *Config) applyDefaults() {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = DefaultLoadTimeout
	}
	if c.Optimize.Speed == optimize.SpeedUnknown {
		c.Optimize.Speed = c.Speed
	}
}

// Scheduler coordinates prioritized media preloading against a bounded worker
// pool. URLs are optimized into cache keys on enqueue, deduplicated against
// queued and in-flight work, and dispatched highest priority first.
type Scheduler struct {
	cfg       Config
	loader    Loader
	store     *cache.Store
	optimizer *optimize.Optimizer
	logger    *slog.Logger

	mu      sync.Mutex
	rc      *resource.Controller
	queue   taskQueue
	pending map[string]*task // cache key -> queued or in-flight task
	seq     uint64
	closed  bool

	sf     singleflight.Group
	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scheduler and starts its dispatch loop.
func New(loader Loader, store *cache.Store, optimizer *optimize.Optimizer, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if optimizer == nil {
		optimizer = optimize.New(nil)
	}

	s := &Scheduler{
		cfg:       cfg,
		loader:    loader,
		store:     store,
		optimizer: optimizer,
		logger:    logger,
		rc:        newController(cfg, cfg.Speed),
		pending:   make(map[string]*task),
		notify:    make(chan struct{}, 1),
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.loop()

	return s
}

func newController(cfg Config, speed optimize.Speed) *resource.Controller {
	workers := cfg.MaxConcurrent
	if workers <= 0 {
		workers = ConcurrencyForSpeed(speed)
	}

	return resource.NewController(resource.Config{
		MaxWorkers:         int64(workers),
		IOLimitBytesPerSec: cfg.IOLimitBytesPerSec,
	})
}

// Preload enqueues the given URLs at the given priority and waits for all of
// them to settle. The returned slice is index-aligned with urls. The context
// only governs the wait: canceling it abandons the results but leaves the
// enqueued work running.
func (s *Scheduler) Preload(ctx context.Context, urls []string, priority int) ([]Result, error) {
	tasks := make([]*task, len(urls))
	for i, u := range urls {
		tasks[i] = s.enqueue(u, priority)
	}

	s.kick()

	results := make([]Result, len(urls))
	for i, t := range tasks {
		select {
		case <-t.done:
			r := t.result
			r.URL = urls[i]
			results[i] = r
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return results, nil
}

// PreloadNext preloads up to aheadCount items following currentIndex,
// wrapping around the end of the playlist. Indices that repeat within the
// window because of the wrap are requested once.
func (s *Scheduler) PreloadNext(ctx context.Context, items []Item, currentIndex, aheadCount int) ([]Result, error) {
	if len(items) == 0 || aheadCount <= 0 {
		return nil, nil
	}

	seen := roaring.New()

	urls := make([]string, 0, aheadCount)
	for i := 1; i <= aheadCount; i++ {
		idx := (currentIndex + i) % len(items)
		if idx < 0 {
			idx += len(items)
		}
		if seen.Contains(uint32(idx)) {
			continue
		}
		seen.Add(uint32(idx))

		urls = append(urls, items[idx].URL)
	}

	return s.Preload(ctx, urls, NextPriority)
}

// IsCached reports whether the optimized form of url currently resides in the
// memory tier. It performs no IO and does not touch recency bookkeeping.
func (s *Scheduler) IsCached(url string) bool {
	return s.store.Has(s.cacheKey(url))
}

// CacheKey returns the key the scheduler stores url under.
func (s *Scheduler) CacheKey(url string) string {
	return s.cacheKey(url)
}

// OptimizeOptions returns the current optimization options, reflecting any
// speed adaptation applied through SetSpeed.
func (s *Scheduler) OptimizeOptions() optimize.Options {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg.Optimize
}

// SetSpeed adapts the scheduler to a changed connection quality. When no
// explicit worker cap is pinned the pool is resized; the new cap applies to
// subsequently dispatched tasks while in-flight loads finish on the old one.
func (s *Scheduler) SetSpeed(speed optimize.Speed) {
	s.mu.Lock()
	s.cfg.Speed = speed
	s.cfg.Optimize.Speed = speed
	if s.cfg.MaxConcurrent <= 0 {
		s.rc = newController(s.cfg, speed)
	}
	s.mu.Unlock()

	s.kick()
}

// Clear drops all queued tasks and requests cancellation of in-flight loads.
// Dropped tasks settle unsuccessfully so no waiter hangs.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	dropped := s.queue.drain()
	for _, t := range dropped {
		delete(s.pending, t.key)
	}
	for _, t := range s.pending {
		if t.cancel != nil {
			t.cancel()
		}
	}
	s.mu.Unlock()

	for _, t := range dropped {
		t.settle(Result{URL: t.url, Err: ErrorLoadFailed})
	}
}

// Close stops the dispatch loop, cancels outstanding work and waits for all
// workers to settle their tasks.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.Clear()
	s.wg.Wait()

	return nil
}

func (s *Scheduler) cacheKey(url string) string {
	s.mu.Lock()
	opts := s.cfg.Optimize
	s.mu.Unlock()

	return s.optimizer.Optimize(url, opts).OptimizedURL
}

// enqueue classifies and queues one URL. Invalid or unsupported URLs settle
// immediately without ever consuming a worker slot. A URL whose cache key is
// already queued or in flight joins the existing task.
func (s *Scheduler) enqueue(url string, priority int) *task {
	d := mediatype.Detect(url, "")
	if d.Err != nil {
		kind := ErrorLoadFailed
		switch {
		case errors.Is(d.Err, mediatype.ErrInvalidURL):
			kind = ErrorInvalidURL
		case errors.Is(d.Err, mediatype.ErrUnsupportedFormat):
			kind = ErrorUnsupportedFormat
		}

		return settledTask(url, Result{URL: url, Err: kind})
	}

	key := s.cacheKey(url)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return settledTask(url, Result{URL: url, Err: ErrorLoadFailed})
	}

	if existing, ok := s.pending[key]; ok {
		return existing
	}

	s.seq++
	t := newTask(url, key, d.Kind, priority, s.seq)
	s.pending[key] = t
	heap.Push(&s.queue, t)

	return t
}

// kick wakes the dispatch loop. Non-blocking, coalesces with a pending wake.
func (s *Scheduler) kick() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.notify:
		}

		s.dispatchReady()
	}
}

// dispatchReady pops tasks while both a task and a worker slot are available.
func (s *Scheduler) dispatchReady() {
	for {
		s.mu.Lock()
		if s.closed || s.queue.Len() == 0 {
			s.mu.Unlock()
			return
		}

		rc := s.rc
		if !rc.TryAcquireWorker() {
			s.mu.Unlock()
			return
		}

		t, _ := heap.Pop(&s.queue).(*task)

		lctx, cancel := context.WithCancel(s.ctx)
		t.cancel = cancel
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			// The task settles before its slot is handed back, so the cap
			// counts unsettled tasks, not just running loads.
			s.run(lctx, t)

			cancel()
			rc.ReleaseWorker()
			s.kick()
		}()
	}
}

func (s *Scheduler) run(ctx context.Context, t *task) {
	start := time.Now()

	if ent, ok := s.store.Get(ctx, t.key); ok {
		s.settle(t, Result{URL: t.url, Success: true, SizeBytes: ent.Size})
		return
	}

	// Concurrent tasks for the same key cannot exist (the pending map joins
	// them), but a Clear between dispatch and completion may allow a fresh
	// task for the same key. Singleflight collapses that into one fetch.
	v, err, _ := s.sf.Do(t.key, func() (any, error) {
		lctx, cancel := context.WithTimeout(ctx, s.cfg.LoadTimeout)
		defer cancel()

		payload, err := s.loader.Load(lctx, t.key)
		if err != nil {
			return nil, err
		}

		s.store.Set(ctx, t.key, payload, t.kind)

		return payload, nil
	})

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		kind := classifyLoadError(err)
		s.logger.Debug("preload failed", slog.String("url", t.url), slog.String("kind", string(kind)), slog.String("error", err.Error()))
		s.settle(t, Result{URL: t.url, LoadTimeMs: elapsed, Err: kind})

		return
	}

	payload, _ := v.(cache.Payload)

	s.settle(t, Result{
		URL:        t.url,
		Success:    true,
		LoadTimeMs: elapsed,
		SizeBytes:  payload.SizeEstimate(),
	})
}

// settle resolves a task and retires its pending entry so later preloads for
// the same key start fresh.
func (s *Scheduler) settle(t *task, r Result) {
	s.mu.Lock()
	if cur, ok := s.pending[t.key]; ok && cur == t {
		delete(s.pending, t.key)
	}
	s.mu.Unlock()

	t.settle(r)
}
