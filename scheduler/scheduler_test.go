package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mediacache/cache"
	"github.com/hupe1980/mediacache/optimize"
)

// trackingLoader counts invocations and tracks the concurrency high-water
// mark. An optional gate blocks every load until released.
type trackingLoader struct {
	mu      sync.Mutex
	calls   []string
	active  int64
	peak    int64
	gate    chan struct{}
	started chan string
	delay   time.Duration
	fail    error
}

func (l *trackingLoader) Load(ctx context.Context, url string) (cache.Payload, error) {
	cur := atomic.AddInt64(&l.active, 1)
	defer atomic.AddInt64(&l.active, -1)

	for {
		peak := atomic.LoadInt64(&l.peak)
		if cur <= peak || atomic.CompareAndSwapInt64(&l.peak, peak, cur) {
			break
		}
	}

	l.mu.Lock()
	l.calls = append(l.calls, url)
	l.mu.Unlock()

	if l.started != nil {
		l.started <- url
	}

	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return cache.Payload{}, ctx.Err()
		}
	}

	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return cache.Payload{}, ctx.Err()
		}
	}

	if l.fail != nil {
		return cache.Payload{}, l.fail
	}

	return cache.Payload{Data: []byte(url)}, nil
}

func (l *trackingLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func (l *trackingLoader) callOrder() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func newTestScheduler(t *testing.T, loader Loader, cfg Config) *Scheduler {
	t.Helper()

	store := cache.New(cache.Config{}, nil, nil)
	s := New(loader, store, optimize.New(nil), cfg, nil)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
		require.NoError(t, store.Close())
	})

	return s
}

func TestPreloadSuccess(t *testing.T) {
	loader := &trackingLoader{}
	s := newTestScheduler(t, loader, Config{})

	results, err := s.Preload(context.Background(), []string{"https://example.com/a.jpg"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.True(t, results[0].Success)
	assert.Equal(t, "https://example.com/a.jpg", results[0].URL)
	assert.Equal(t, ErrorNone, results[0].Err)
	assert.Positive(t, results[0].SizeBytes)
	assert.True(t, s.IsCached("https://example.com/a.jpg"))
}

func TestPreloadInvalidURLSettlesWithoutLoading(t *testing.T) {
	loader := &trackingLoader{}
	s := newTestScheduler(t, loader, Config{})

	results, err := s.Preload(context.Background(), []string{"not a url"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.False(t, results[0].Success)
	assert.Equal(t, ErrorInvalidURL, results[0].Err)
	assert.Zero(t, loader.callCount())
}

func TestPreloadUnsupportedFormat(t *testing.T) {
	loader := &trackingLoader{}
	s := newTestScheduler(t, loader, Config{})

	results, err := s.Preload(context.Background(), []string{"https://example.com/report.pdf"}, 1)
	require.NoError(t, err)

	assert.Equal(t, ErrorUnsupportedFormat, results[0].Err)
	assert.Zero(t, loader.callCount())
}

func TestPreloadMixedBatchSettlesEveryURL(t *testing.T) {
	loader := &trackingLoader{}
	s := newTestScheduler(t, loader, Config{})

	urls := []string{
		"https://example.com/a.jpg",
		"not a url",
		"https://example.com/b.png",
	}

	results, err := s.Preload(context.Background(), urls, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.Equal(t, ErrorInvalidURL, results[1].Err)
	assert.True(t, results[2].Success)
}

func TestConcurrencyCap(t *testing.T) {
	loader := &trackingLoader{delay: 30 * time.Millisecond}
	s := newTestScheduler(t, loader, Config{MaxConcurrent: 2})

	urls := []string{
		"https://example.com/1.jpg",
		"https://example.com/2.jpg",
		"https://example.com/3.jpg",
		"https://example.com/4.jpg",
		"https://example.com/5.jpg",
	}

	results, err := s.Preload(context.Background(), urls, 1)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for _, r := range results {
		assert.True(t, r.Success)
	}

	assert.LessOrEqual(t, atomic.LoadInt64(&loader.peak), int64(2), "never more than two loads in flight")
	assert.Equal(t, 5, loader.callCount())
}

func TestSerialDispatchAtCapOne(t *testing.T) {
	loader := &trackingLoader{delay: 20 * time.Millisecond}
	s := newTestScheduler(t, loader, Config{MaxConcurrent: 1})

	results, err := s.Preload(context.Background(), []string{
		"https://example.com/a.jpg",
		"https://example.com/b.jpg",
	}, 1)
	require.NoError(t, err)

	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.Equal(t, int64(1), atomic.LoadInt64(&loader.peak), "second load must start only after the first settled")
}

func TestPriorityOrdering(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan string, 8)
	loader := &trackingLoader{gate: gate, started: started}
	s := newTestScheduler(t, loader, Config{MaxConcurrent: 1})

	var wg sync.WaitGroup
	preload := func(url string, priority int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Preload(context.Background(), []string{url}, priority)
		}()
	}

	// Occupy the single slot, then queue the rest behind it.
	preload("https://example.com/first.jpg", 1)
	require.Equal(t, "https://example.com/first.jpg", <-started)

	preload("https://example.com/second.jpg", 1)
	preload("https://example.com/boosted.jpg", 2)
	preload("https://example.com/third.jpg", 1)

	// Give the queued preloads time to enqueue before opening the gate.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.queue.Len() == 3
	}, time.Second, 5*time.Millisecond)

	close(gate)
	wg.Wait()

	order := loader.callOrder()
	require.Len(t, order, 4)
	assert.Equal(t, "https://example.com/boosted.jpg", order[1], "higher priority must dispatch before earlier same-priority tasks")
	assert.Equal(t, "https://example.com/second.jpg", order[2])
	assert.Equal(t, "https://example.com/third.jpg", order[3])
}

func TestConcurrentDuplicatesLoadOnce(t *testing.T) {
	gate := make(chan struct{})
	loader := &trackingLoader{gate: gate}
	s := newTestScheduler(t, loader, Config{MaxConcurrent: 4})

	const url = "https://example.com/dup.jpg"

	var wg sync.WaitGroup
	results := make([][]Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.Preload(context.Background(), []string{url}, 1)
			require.NoError(t, err)
			results[i] = r
		}(i)
	}

	// Let the duplicates pile up on the pending task before the load finishes.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, loader.callCount(), "concurrent duplicates must trigger a single load")
	for _, r := range results {
		require.Len(t, r, 1)
		assert.True(t, r[0].Success)
	}
}

func TestCachedURLSkipsLoader(t *testing.T) {
	loader := &trackingLoader{}
	store := cache.New(cache.Config{}, nil, nil)
	s := New(loader, store, optimize.New(nil), Config{}, nil)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
		require.NoError(t, store.Close())
	})

	const url = "https://example.com/warm.jpg"
	store.Set(context.Background(), url, cache.Payload{Data: []byte("warm")}, 0)

	results, err := s.Preload(context.Background(), []string{url}, 1)
	require.NoError(t, err)

	assert.True(t, results[0].Success)
	assert.Equal(t, int64(4), results[0].SizeBytes)
	assert.Zero(t, loader.callCount())
}

func TestPreloadNextWrapsAndDeduplicates(t *testing.T) {
	loader := &trackingLoader{}
	s := newTestScheduler(t, loader, Config{MaxConcurrent: 4})

	items := []Item{
		{URL: "https://example.com/0.jpg"},
		{URL: "https://example.com/1.jpg"},
		{URL: "https://example.com/2.jpg"},
	}

	// Window of five from index 1 wraps and revisits: only three unique items.
	results, err := s.PreloadNext(context.Background(), items, 1, 5)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.True(t, r.Success)
	}

	assert.ElementsMatch(t, []string{
		"https://example.com/2.jpg",
		"https://example.com/0.jpg",
		"https://example.com/1.jpg",
	}, loader.callOrder())
}

func TestPreloadNextEmptyWindow(t *testing.T) {
	loader := &trackingLoader{}
	s := newTestScheduler(t, loader, Config{})

	results, err := s.PreloadNext(context.Background(), nil, 0, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.PreloadNext(context.Background(), []Item{{URL: "https://example.com/a.jpg"}}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLoadTimeoutClassification(t *testing.T) {
	loader := &trackingLoader{delay: time.Second}
	s := newTestScheduler(t, loader, Config{LoadTimeout: 20 * time.Millisecond})

	results, err := s.Preload(context.Background(), []string{"https://example.com/slow.jpg"}, 1)
	require.NoError(t, err)

	assert.False(t, results[0].Success)
	assert.Equal(t, ErrorTimeout, results[0].Err)
}

func TestLoadFailureClassification(t *testing.T) {
	loader := &trackingLoader{fail: &StatusError{Code: 503}}
	s := newTestScheduler(t, loader, Config{})

	results, err := s.Preload(context.Background(), []string{"https://example.com/broken.jpg"}, 1)
	require.NoError(t, err)

	assert.False(t, results[0].Success)
	assert.Equal(t, ErrorLoadFailed, results[0].Err)
}

func TestFailedLoadCanBeRetried(t *testing.T) {
	loader := &trackingLoader{fail: &StatusError{Code: 500}}
	s := newTestScheduler(t, loader, Config{})

	const url = "https://example.com/flaky.jpg"

	results, err := s.Preload(context.Background(), []string{url}, 1)
	require.NoError(t, err)
	require.Equal(t, ErrorLoadFailed, results[0].Err)

	loader.fail = nil

	results, err = s.Preload(context.Background(), []string{url}, 1)
	require.NoError(t, err)
	assert.True(t, results[0].Success, "a settled failure must not block a fresh attempt")
}

func TestClearSettlesQueuedTasks(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan string, 1)
	loader := &trackingLoader{gate: gate, started: started}
	s := newTestScheduler(t, loader, Config{MaxConcurrent: 1})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.Preload(context.Background(), []string{"https://example.com/running.jpg"}, 1)
	}()
	require.Equal(t, "https://example.com/running.jpg", <-started)

	queued := make(chan []Result, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := s.Preload(context.Background(), []string{"https://example.com/queued.jpg"}, 1)
		require.NoError(t, err)
		queued <- r
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.queue.Len() == 1
	}, time.Second, 5*time.Millisecond)

	s.Clear()
	close(gate)
	wg.Wait()

	r := <-queued
	require.Len(t, r, 1)
	assert.False(t, r[0].Success)
	assert.Equal(t, ErrorLoadFailed, r[0].Err)
	assert.Equal(t, 1, loader.callCount(), "the queued task must never reach the loader")
}

func TestSetSpeedResizesPool(t *testing.T) {
	loader := &trackingLoader{delay: 30 * time.Millisecond}
	s := newTestScheduler(t, loader, Config{Speed: optimize.SpeedSlow})

	require.Equal(t, int64(1), s.rc.MaxWorkers())

	s.SetSpeed(optimize.SpeedFast)
	assert.Equal(t, int64(4), s.rc.MaxWorkers())
}

func TestSetSpeedKeepsPinnedCap(t *testing.T) {
	loader := &trackingLoader{}
	s := newTestScheduler(t, loader, Config{MaxConcurrent: 2})

	s.SetSpeed(optimize.SpeedFast)
	assert.Equal(t, int64(2), s.rc.MaxWorkers())
}

func TestConcurrencyForSpeed(t *testing.T) {
	assert.Equal(t, 1, ConcurrencyForSpeed(optimize.SpeedSlow))
	assert.Equal(t, 2, ConcurrencyForSpeed(optimize.SpeedMedium))
	assert.Equal(t, 4, ConcurrencyForSpeed(optimize.SpeedFast))
	assert.Equal(t, DefaultMaxConcurrent, ConcurrencyForSpeed(optimize.SpeedUnknown))
}

func TestPreloadAfterClose(t *testing.T) {
	loader := &trackingLoader{}
	store := cache.New(cache.Config{}, nil, nil)
	s := New(loader, store, optimize.New(nil), Config{}, nil)
	require.NoError(t, s.Close())
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	results, err := s.Preload(context.Background(), []string{"https://example.com/late.jpg"}, 1)
	require.NoError(t, err)

	assert.False(t, results[0].Success)
	assert.Equal(t, ErrorLoadFailed, results[0].Err)
	assert.Zero(t, loader.callCount())
}
