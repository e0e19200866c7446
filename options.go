package mkmax

import (
	"log/slog"

	"github.com/hupe1980/mkmax/internal/resource"
	"github.com/hupe1980/mkmax/pagefile"
)

const (
	// DefaultPageSize is the page size of new page files.
	DefaultPageSize = 4096
	// DefaultCacheSize is the number of decoded nodes kept in memory.
	DefaultCacheSize = 1024
)

type options struct {
	pageSize         int
	pageFile         pagefile.PageFile
	path             string
	cacheSize        int
	metricsCollector MetricsCollector
	logger           *Logger
	integrityChecks  bool
	limits           ResourceLimits
	rc               *resource.Controller
}

// Option configures New, Open and Restore.
type Option func(*options)

// ResourceLimits bounds the resources an Index may use. Zero values mean
// "no limit", except MaxWorkers, where 0 means one worker.
type ResourceLimits struct {
	// MaxWorkers is the number of goroutines refining reverse kNN
	// candidates and batch insert bounds.
	MaxWorkers int
	// CacheMemoryBytes caps the memory of the node cache.
	CacheMemoryBytes int64
	// IOBytesPerSec throttles page writes of disk page files.
	IOBytesPerSec int64
}

// WithPageSize sets the page size in bytes. Default: 4096.
//
// The page size determines the node capacities; it must leave room for at
// least two entries per node.
func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

// WithPageFile stores the tree in pf instead of memory. The page size of pf
// overrides WithPageSize.
func WithPageFile(pf pagefile.PageFile) Option {
	return func(o *options) {
		o.pageFile = pf
	}
}

// WithPath stores the tree in a page file on disk.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithCacheSize sets the number of decoded nodes kept in memory.
// 0 disables the node cache. Default: 1024.
func WithCacheSize(nodes int) Option {
	return func(o *options) {
		o.cacheSize = nodes
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &mkmax.BasicMetricsCollector{}
//	idx, _ := mkmax.New(rel, distance.Euclidean, 10, mkmax.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("RkNN queries: %d, candidates per result: %.2f\n", stats.RkNNCount, stats.CandidateRatio())
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := mkmax.NewJSONLogger(slog.LevelInfo)
//	idx, _ := mkmax.New(rel, distance.Euclidean, 10, mkmax.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
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

// WithIntegrityChecks validates the tree structure after every insertion
// and logs each violated invariant at warn level.
func WithIntegrityChecks(enabled bool) Option {
	return func(o *options) {
		o.integrityChecks = enabled
	}
}

// WithResourceLimits bounds workers, cache memory and disk write throughput.
func WithResourceLimits(limits ResourceLimits) Option {
	return func(o *options) {
		o.limits = limits
	}
}

// WithMaxWorkers sets ResourceLimits.MaxWorkers.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		o.limits.MaxWorkers = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		pageSize:         DefaultPageSize,
		cacheSize:        DefaultCacheSize,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.pageFile != nil {
		o.pageSize = o.pageFile.PageSize()
	}
	o.rc = resource.NewController(resource.Config{
		Workers:          o.limits.MaxWorkers,
		CacheBytes:       o.limits.CacheMemoryBytes,
		WriteBytesPerSec: o.limits.IOBytesPerSec,
	})
	return o
}
