package aggcache

import (
	"errors"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tailscale/hujson"

	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/segment"
)

// ErrInvalidConfig is returned for configurations that fail validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the tunables of a Cache. The zero value is not useful; start
// from DefaultConfig.
type Config struct {
	// SparseCountThreshold and SparseDensityThreshold drive the dense or
	// sparse choice for loaded and rolled up segments.
	SparseCountThreshold   int     `json:"sparse_count_threshold"`
	SparseDensityThreshold float64 `json:"sparse_density_threshold"`

	// MaxConstraints is the largest value list sent to the database for one
	// column. Longer lists are dropped and the column is loaded in full.
	MaxConstraints int `json:"max_constraints"`
	// OptimizeFillRatio widens a column's value list to the whole column
	// once the list holds this fraction of the column's known cardinality.
	OptimizeFillRatio float64 `json:"optimize_fill_ratio"`

	// CellBatchQuota bounds the requests a Reader records before Get
	// returns ErrQuotaExceeded.
	CellBatchQuota int `json:"cell_batch_quota"`

	// CacheIOWorkers and SQLWorkers size the executor pools.
	CacheIOWorkers int `json:"cache_io_workers"`
	SQLWorkers     int `json:"sql_workers"`
	// QueueSize is the capacity of the cache manager's message queue.
	QueueSize int `json:"queue_size"`

	// MemoryLimitBytes bounds the in-process tier. Zero means unlimited.
	MemoryLimitBytes int64 `json:"memory_limit_bytes"`
	// MaxLoads bounds concurrent SQL loads. Zero means SQLWorkers.
	MaxLoads int64 `json:"max_loads"`
	// IOLimitBytesPerSec rate limits disk and blob tier IO. Zero means
	// unlimited.
	IOLimitBytesPerSec int64 `json:"io_limit_bytes_per_sec"`

	// DiskDir enables a disk tier in this directory.
	DiskDir          string `json:"disk_dir"`
	DiskMaxBytes     int64  `json:"disk_max_bytes"`
	DiskMinFreeBytes int64  `json:"disk_min_free_bytes"`
	// DiskCompression is "none", "lz4" or "zstd".
	DiskCompression string `json:"disk_compression"`

	// PollInterval is how often blob tiers are polled for changes made by
	// other processes. Zero disables polling.
	PollInterval Duration `json:"poll_interval"`

	// EnableGroupingSets lets one query load several grouping sets when
	// the planner supports it.
	EnableGroupingSets bool `json:"enable_grouping_sets"`
	// DisableCaching keeps loaded segments out of every cache tier. They
	// still serve the readers that share their load.
	DisableCaching bool `json:"disable_caching"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SparseCountThreshold:   1000,
		SparseDensityThreshold: 0.5,
		MaxConstraints:         1000,
		OptimizeFillRatio:      0.5,
		CellBatchQuota:         10000,
		CacheIOWorkers:         4,
		SQLWorkers:             4,
		QueueSize:              1000,
		DiskCompression:        "lz4",
		PollInterval:           Duration(30 * time.Second),
		EnableGroupingSets:     true,
	}
}

// LoadConfig reads a JSON config file, which may contain comments and
// trailing commas. Fields missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a JSON config document on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSONC: %w", ErrInvalidConfig, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.MaxConstraints <= 0:
		return fmt.Errorf("%w: max_constraints must be positive", ErrInvalidConfig)
	case c.CellBatchQuota <= 0:
		return fmt.Errorf("%w: cell_batch_quota must be positive", ErrInvalidConfig)
	case c.OptimizeFillRatio < 0:
		return fmt.Errorf("%w: optimize_fill_ratio must not be negative", ErrInvalidConfig)
	case c.MemoryLimitBytes < 0 || c.MaxLoads < 0 || c.IOLimitBytesPerSec < 0:
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}
	if _, err := codec.ParseCompression(c.DiskCompression); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Density returns the dense or sparse thresholds.
func (c Config) Density() segment.Density {
	return segment.Density{
		CountThreshold:   c.SparseCountThreshold,
		DensityThreshold: c.SparseDensityThreshold,
	}
}

// Duration is a time.Duration that reads and writes as a string such as
// "30s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
