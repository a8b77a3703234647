package aggcache

import (
	"log/slog"

	"github.com/hupe1980/aggcache/cache"
)

type options struct {
	config           Config
	tiers            []cache.Tier
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Cache.
type Option func(*options)

// WithConfig replaces the default configuration.
//
// Example:
//
//	cfg, err := aggcache.LoadConfig("aggcache.jsonc")
//	if err != nil {
//	    return err
//	}
//	c, err := aggcache.New(ctx, planner, source, aggcache.WithConfig(cfg))
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithTiers adds cache tiers after the in-process tier (and the disk tier,
// if configured). Reads try tiers in order. Blob tiers are polled for
// changes made by other processes.
//
// Example with a shared S3 tier:
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("aggcache/"))
//	c, _ := aggcache.New(ctx, planner, source, aggcache.WithTiers(cache.NewBlobTier(store)))
func WithTiers(tiers ...cache.Tier) Option {
	return func(o *options) {
		o.tiers = append(o.tiers, tiers...)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
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

func applyOptions(optFns []Option) options {
	o := options{
		config:           DefaultConfig(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
