package mediacache

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mediacache/cache"
	"github.com/hupe1980/mediacache/optimize"
	"github.com/hupe1980/mediacache/scheduler"
)

// stubLoader serves fixed payloads and counts loads per URL.
type stubLoader struct {
	mu    sync.Mutex
	loads map[string]int
}

func newStubLoader() *stubLoader {
	return &stubLoader{loads: make(map[string]int)}
}

func (l *stubLoader) Load(ctx context.Context, url string) (cache.Payload, error) {
	l.mu.Lock()
	l.loads[url]++
	l.mu.Unlock()

	return cache.Payload{Data: []byte("payload:" + url)}, nil
}

func (l *stubLoader) loadCount(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[url]
}

func newTestEngine(t *testing.T, optFns ...Option) (*Engine, *stubLoader) {
	t.Helper()

	loader := newStubLoader()
	engine := New(append([]Option{WithLoader(loader)}, optFns...)...)
	t.Cleanup(func() { require.NoError(t, engine.Close()) })

	return engine, loader
}

func TestEnginePreloadAndGetCached(t *testing.T) {
	ctx := context.Background()
	engine, loader := newTestEngine(t)

	const url = "https://example.com/photo.jpg"

	results, err := engine.Preload(ctx, []string{url}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success)

	assert.True(t, engine.IsCached(url))
	assert.Equal(t, 1, loader.loadCount(url))

	entry, ok := engine.GetCached(ctx, url)
	require.True(t, ok)
	assert.Equal(t, []byte("payload:"+url), entry.Data)
}

func TestEnginePreloadReportsFailuresAsResults(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	results, err := engine.Preload(ctx, []string{"not a url", "https://example.com/a.png"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, ErrorInvalidURL, results[0].Err)
	assert.True(t, results[1].Success)
}

func TestEnginePreloadDeduplicatesCached(t *testing.T) {
	ctx := context.Background()
	engine, loader := newTestEngine(t)

	const url = "https://example.com/photo.jpg"

	_, err := engine.Preload(ctx, []string{url}, 1)
	require.NoError(t, err)
	_, err = engine.Preload(ctx, []string{url}, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, loader.loadCount(url), "second preload must be served from cache")
}

func TestEnginePreloadNext(t *testing.T) {
	ctx := context.Background()
	engine, loader := newTestEngine(t)

	items := []Item{
		{URL: "https://example.com/0.jpg"},
		{URL: "https://example.com/1.jpg"},
		{URL: "https://example.com/2.jpg"},
	}

	results, err := engine.PreloadNext(ctx, items, 0, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 1, loader.loadCount("https://example.com/1.jpg"))
	assert.Equal(t, 1, loader.loadCount("https://example.com/2.jpg"))
	assert.Zero(t, loader.loadCount("https://example.com/0.jpg"))
}

func TestEngineEvict(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	const url = "https://example.com/photo.jpg"

	_, err := engine.Preload(ctx, []string{url}, 1)
	require.NoError(t, err)
	require.True(t, engine.IsCached(url))

	engine.Evict(ctx, []string{url})
	assert.False(t, engine.IsCached(url))
}

func TestEngineClear(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	_, err := engine.Preload(ctx, []string{"https://example.com/a.jpg", "https://example.com/b.jpg"}, 1)
	require.NoError(t, err)

	engine.Clear(ctx)

	stats := engine.CacheStats()
	assert.Zero(t, stats.Items)
	assert.Zero(t, stats.Bytes)
}

func TestEngineCacheStatsHitRate(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	const url = "https://example.com/photo.jpg"

	_, err := engine.Preload(ctx, []string{url}, 1)
	require.NoError(t, err)

	// Three hits after the initial miss.
	for i := 0; i < 3; i++ {
		_, ok := engine.GetCached(ctx, url)
		require.True(t, ok)
	}

	stats := engine.CacheStats()
	assert.InDelta(t, 0.75, stats.HitRate, 0.001)
}

func TestEngineMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	engine, _ := newTestEngine(t, WithMetricsCollector(metrics))

	_, err := engine.Preload(ctx, []string{"https://example.com/a.jpg", "not a url"}, 1)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.PreloadCount)
	assert.Equal(t, int64(2), stats.PreloadURLs)
	assert.Equal(t, int64(1), stats.PreloadFailed)
	assert.Equal(t, int64(2), stats.LoadCount)
	assert.Equal(t, int64(1), stats.LoadErrors)
	assert.Positive(t, stats.LoadBytes)
}

func TestEngineOptimizeSpecialService(t *testing.T) {
	engine, _ := newTestEngine(t, WithOptimizeOptions(optimize.Options{Width: 400}))

	res := engine.Optimize("https://lemmy.world/pictrs/image/abcd.jpg")
	assert.True(t, res.Rewritten())
	assert.Contains(t, res.OptimizedURL, "width=400")
}

func TestEngineOptimizePassthrough(t *testing.T) {
	engine, _ := newTestEngine(t)

	const url = "https://example.com/plain.jpg"
	res := engine.Optimize(url)
	assert.Equal(t, url, res.OptimizedURL)
	assert.False(t, res.Rewritten())
}

func TestEngineDetect(t *testing.T) {
	engine, _ := newTestEngine(t)

	d := engine.Detect("https://example.com/clip.mp4", "")
	require.NoError(t, d.Err)
	assert.Equal(t, "video", d.Kind.String())

	d = engine.Detect("https://example.com/anything", "image/webp")
	require.NoError(t, d.Err)
	assert.Equal(t, "image", d.Kind.String())
}

func TestEngineSetConnectionSpeed(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, WithConnectionSpeed(optimize.SpeedSlow))

	engine.SetConnectionSpeed(optimize.SpeedFast)

	// Still fully operational after the resize.
	results, err := engine.Preload(ctx, []string{"https://example.com/a.jpg"}, 1)
	require.NoError(t, err)
	assert.True(t, results[0].Success)
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	engine := New(WithLoader(newStubLoader()))

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	_, err := engine.Preload(context.Background(), []string{"https://example.com/a.jpg"}, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngineDefaultConcurrencyFollowsSpeed(t *testing.T) {
	assert.Equal(t, 1, scheduler.ConcurrencyForSpeed(optimize.SpeedSlow))
	assert.Equal(t, 4, scheduler.ConcurrencyForSpeed(optimize.SpeedFast))
}
