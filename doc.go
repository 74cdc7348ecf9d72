// Package mediacache provides a media cache and preload engine for slideshow
// style media consumption, with production-ready features including:
//
//   - Media type classification for images, videos and animated formats
//   - URL optimization for pict-rs style media proxies (format, scale, quality)
//   - Two-tier caching: in-memory LRU over an optional persistent store
//   - Prioritized preloading with a bounded, speed-adaptive worker pool
//   - Request deduplication across queued, in-flight and cached work
//   - Pluggable persistent backends: local disk, MinIO, Amazon S3
//
// # Quick Start
//
// Create an engine and preload ahead of the current slide:
//
//	engine := mediacache.New(
//	    mediacache.WithConnectionSpeed(optimize.SpeedFast),
//	    mediacache.WithCacheConfig(cache.Config{MaxBytes: 128 << 20}),
//	)
//	defer engine.Close()
//
//	results, err := engine.PreloadNext(ctx, items, currentIndex, 3)
//	if err != nil {
//	    return err
//	}
//	for _, r := range results {
//	    if !r.Success {
//	        log.Printf("preload %s failed: %s", r.URL, r.Err)
//	    }
//	}
//
// Fetch a cached payload for display:
//
//	if entry, ok := engine.GetCached(ctx, url); ok {
//	    render(entry.Data)
//	}
//
// # Persistence
//
// By default the engine is memory-only. Wire a kvstore backend to survive
// restarts and to absorb memory-tier overflow:
//
//	store, err := kvstore.NewLocalStore(kvstore.LocalConfig{
//	    RootDir:     "./media",
//	    Compression: kvstore.CompressionZSTD,
//	})
//	if err != nil {
//	    return err
//	}
//	engine := mediacache.New(mediacache.WithPersistentStore(store))
package mediacache
