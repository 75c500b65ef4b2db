package rangecache

import (
	"log/slog"

	"github.com/hupe1980/rangecache/cache"
	"github.com/hupe1980/rangecache/resource"
)

const (
	// DefaultCacheSize is the capacity of the default block cache.
	DefaultCacheSize int64 = 10 << 20 // 10 MiB

	// DefaultBlockSize is the block size used when none is configured.
	DefaultBlockSize int64 = 512

	// DefaultCloseConcurrency bounds the concurrent closes of a Disconnect sweep.
	DefaultCloseConcurrency = 16
)

type options struct {
	cacheSize        int64
	cache            cache.BlockStore
	prefix           string
	blockSize        int64
	metricsCollector MetricsCollector
	logger           *Logger
	rc               *resource.Controller
	closeConcurrency int
}

// Option configures a Manager.
type Option func(*options)

// WithCacheSize sets the capacity in bytes of the default LRU block cache.
// It is ignored when WithCache supplies a store.
func WithCacheSize(bytes int64) Option {
	return func(o *options) {
		o.cacheSize = bytes
	}
}

// WithCache supplies the block store shared by every File of the Manager.
// A store may be shared across Managers; use WithPrefix to keep their keys apart.
func WithCache(c cache.BlockStore) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithPrefix namespaces every cache key of the Manager.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithBlockSize sets the default block size in bytes for files opened by the
// Manager. It can be overridden per file with WithFileBlockSize.
func WithBlockSize(n int64) Option {
	return func(o *options) {
		o.blockSize = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &rangecache.BasicMetricsCollector{}
//	m, _ := rangecache.New(driver, rangecache.WithMetricsCollector(metrics))
//	// ... use m ...
//	stats := metrics.GetStats()
//	fmt.Printf("hit ratio: %.2f\n", stats.HitRatio())
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := rangecache.NewJSONLogger(slog.LevelInfo)
//	m, _ := rangecache.New(driver, rangecache.WithLogger(logger))
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

// WithResourceController shares memory and read-bandwidth budgets.
// The default cache accounts its blocks against the memory budget, and every
// backend block read waits for the read budget.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithCloseConcurrency bounds how many files Disconnect closes at once.
// Values < 1 select DefaultCloseConcurrency.
func WithCloseConcurrency(n int) Option {
	return func(o *options) {
		o.closeConcurrency = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		cacheSize:        DefaultCacheSize,
		blockSize:        DefaultBlockSize,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		closeConcurrency: DefaultCloseConcurrency,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.closeConcurrency < 1 {
		o.closeConcurrency = DefaultCloseConcurrency
	}
	return o
}

type openOptions struct {
	blockSize int64
}

// OpenOption configures a single File.
type OpenOption func(*openOptions)

// WithFileBlockSize overrides the Manager's block size for one file.
func WithFileBlockSize(n int64) OpenOption {
	return func(o *openOptions) {
		o.blockSize = n
	}
}
