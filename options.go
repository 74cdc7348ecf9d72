package mediacache

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hupe1980/mediacache/cache"
	"github.com/hupe1980/mediacache/kvstore"
	"github.com/hupe1980/mediacache/mediatype"
	"github.com/hupe1980/mediacache/optimize"
	"github.com/hupe1980/mediacache/scheduler"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	probe            mediatype.CapabilityProbe
	cacheConfig      cache.Config
	persistent       kvstore.Store
	loader           scheduler.Loader
	httpClient       *http.Client
	maxConcurrent    int
	loadTimeout      time.Duration
	speed            optimize.Speed
	ioLimit          int64
	optimizeOptions  optimize.Options
}

// Option configures engine constructor behavior.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := mediacache.NewJSONLogger(slog.LevelInfo)
//	engine := mediacache.New(mediacache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &mediacache.BasicMetricsCollector{}
//	engine := mediacache.New(mediacache.WithMetricsCollector(metrics))
//	// ... use engine ...
//	stats := metrics.GetStats()
//	fmt.Printf("Loads: %d, Avg latency: %dns\n", stats.LoadCount, stats.LoadAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithCapabilityProbe configures the client capability probe that decides
// which target formats the optimizer may rewrite to. Defaults to a static
// jpeg/png/webp profile.
func WithCapabilityProbe(probe mediatype.CapabilityProbe) Option {
	return func(o *options) {
		o.probe = probe
	}
}

// WithCacheConfig configures the memory-tier budgets and persistence
// thresholds. Zero fields keep their defaults.
func WithCacheConfig(cfg cache.Config) Option {
	return func(o *options) {
		o.cacheConfig = cfg
	}
}

// WithPersistentStore wires a persistent tier below the memory cache.
// The engine takes ownership and closes the store on Close.
func WithPersistentStore(store kvstore.Store) Option {
	return func(o *options) {
		o.persistent = store
	}
}

// WithLoader replaces the default HTTP loader. Useful for tests and for
// callers that already own a download pipeline.
func WithLoader(loader scheduler.Loader) Option {
	return func(o *options) {
		o.loader = loader
	}
}

// WithHTTPClient configures the client used by the default HTTP loader.
// Ignored when a custom loader is set.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithMaxConcurrent pins the preload worker cap. When unset the cap follows
// the connection speed, see scheduler.ConcurrencyForSpeed.
func WithMaxConcurrent(n int) Option {
	return func(o *options) {
		o.maxConcurrent = n
	}
}

// WithLoadTimeout bounds a single load attempt.
// Defaults to scheduler.DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.loadTimeout = d
	}
}

// WithConnectionSpeed sets the initial observed connection quality. It sizes
// the worker pool and shifts optimizer quality defaults.
func WithConnectionSpeed(speed optimize.Speed) Option {
	return func(o *options) {
		o.speed = speed
	}
}

// WithIOLimit paces loader throughput to the given bytes per second.
// Zero means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithOptimizeOptions sets the base optimization options applied to every
// preloaded URL. Speed-dependent fields are still adjusted at runtime.
func WithOptimizeOptions(opts optimize.Options) Option {
	return func(o *options) {
		o.optimizeOptions = opts
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}
