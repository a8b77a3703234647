package aggcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/aggcache/cache"
	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/executor"
	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/loader"
	"github.com/hupe1980/aggcache/manager"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

// Cache is the aggregation cache of one server: the segment index, its
// cache tiers and the executor pools for cache IO and SQL. Create it with
// New and share it between all queries; Close it on shutdown.
type Cache struct {
	cfg     Config
	logger  *Logger
	metrics MetricsCollector

	rc      *resource.Controller
	memory  *cache.MemoryTier
	tiers   *cache.Composite
	mgr     *manager.Manager
	ioPool  *executor.Pool
	sqlPool *executor.Pool
	loader  *loader.Loader
	aggs    *segment.Aggregations

	planner Planner
	source  RowSource

	stopWatchers context.CancelFunc
	watchers     sync.WaitGroup
	closed       atomic.Bool
	closeOnce    sync.Once
	closeErr     error
}

// New creates a cache that loads missing segments by running the
// planner's queries on source. Headers already present in persistent tiers
// are indexed before New returns.
func New(ctx context.Context, planner Planner, source RowSource, optFns ...Option) (*Cache, error) {
	if planner == nil || source == nil {
		return nil, fmt.Errorf("%w: planner and row source are required", ErrInvalidConfig)
	}
	o := applyOptions(optFns)
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	maxLoads := cfg.MaxLoads
	if maxLoads == 0 {
		maxLoads = int64(cfg.SQLWorkers)
	}
	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   cfg.MemoryLimitBytes,
		MaxLoads:           maxLoads,
		IOLimitBytesPerSec: cfg.IOLimitBytesPerSec,
	})

	c := &Cache{
		cfg:     cfg,
		logger:  o.logger,
		metrics: o.metricsCollector,
		rc:      rc,
		loader:  loader.New(loader.WithDensity(cfg.Density()), loader.WithLogger(o.logger.Logger)),
		aggs:    segment.NewAggregations(),
		planner: planner,
		source:  source,
	}

	var tiers []cache.Tier
	if !cfg.DisableCaching {
		c.memory = cache.NewMemoryTier(0, rc)
		tiers = append(tiers, c.memory)
		if cfg.DiskDir != "" {
			comp, _ := codec.ParseCompression(cfg.DiskCompression)
			disk, err := cache.NewDiskTier(cache.DiskConfig{
				Dir:                cfg.DiskDir,
				MaxSizeBytes:       cfg.DiskMaxBytes,
				MinFreeBytes:       cfg.DiskMinFreeBytes,
				Compression:        comp,
				ResourceController: rc,
				Logger:             o.logger.Logger,
			})
			if err != nil {
				return nil, fmt.Errorf("open disk tier: %w", err)
			}
			tiers = append(tiers, disk)
		}
		tiers = append(tiers, o.tiers...)
	}
	c.tiers = cache.NewComposite(o.logger.Logger, tiers...)

	c.ioPool = executor.New("cache-io", cfg.CacheIOWorkers)
	c.sqlPool = executor.New("sql", cfg.SQLWorkers)
	c.mgr = manager.New(c.tiers,
		manager.WithQueueSize(cfg.QueueSize),
		manager.WithIOPool(c.ioPool),
		manager.WithLogger(o.logger.Logger),
	)

	if len(tiers) > 1 {
		n, err := c.mgr.Sync(ctx)
		if err != nil {
			c.logger.LogTierError(ctx, "sync", "composite", err)
		} else if n > 0 {
			c.logger.InfoContext(ctx, "indexed cached segments", "segments", n)
		}
	}

	wctx, cancel := context.WithCancel(context.Background())
	c.stopWatchers = cancel
	if cfg.PollInterval > 0 {
		for _, t := range o.tiers {
			bt, ok := t.(*cache.BlobTier)
			if !ok || cfg.DisableCaching {
				continue
			}
			w := cache.NewWatcher(bt, time.Duration(cfg.PollInterval))
			c.watchers.Add(1)
			go func() {
				defer c.watchers.Done()
				_ = w.Run(wctx)
			}()
		}
	}

	return c, nil
}

// Config returns the configuration in effect.
func (c *Cache) Config() Config { return c.cfg }

// NewReader returns a batching reader. Readers are not safe for concurrent
// use; give each query its own.
func (c *Cache) NewReader() *Reader {
	return &Reader{
		c:        c,
		recorded: make(map[string]bool),
		loading:  make(map[*segment.Segment]struct{}),
	}
}

// Flush invalidates region of every segment of st. Segments that cannot be
// narrowed by excluding the region are removed.
func (c *Cache) Flush(ctx context.Context, st *star.Star, region segment.Region) (manager.FlushResult, error) {
	if c.closed.Load() {
		return manager.FlushResult{}, ErrClosed
	}
	start := time.Now()
	res, err := c.mgr.Flush(ctx, st, region)
	err = translateError(err)
	c.logger.WithStar(st.SchemaName, st.FactTable).LogFlush(ctx, region.String(), res.Removed, res.Constrained, err)
	if err == nil {
		c.metrics.RecordFlush(res.Removed, res.Constrained, time.Since(start))
	}
	return res, err
}

// State returns the indexed segments and their states.
func (c *Cache) State(ctx context.Context) ([]manager.EntryState, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	st, err := c.mgr.State(ctx)
	return st, translateError(err)
}

// MemoryUsage returns the bytes held by the in-process tier.
func (c *Cache) MemoryUsage() int64 { return c.rc.MemoryUsage() }
