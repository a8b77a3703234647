package aggcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordLookup is called after each cell lookup. hit is true when the
	// cell was answered from the cache.
	RecordLookup(hit bool, duration time.Duration)

	// RecordLoad is called after each batch load. segments is the number
	// of segments loaded, rows the number of result rows read.
	RecordLoad(segments, rows int, duration time.Duration, err error)

	// RecordFlush is called after each flush.
	RecordFlush(removed, constrained int, duration time.Duration)

	// RecordRollup is called when a cell is answered by rolling up cached
	// segments.
	RecordRollup(inputs int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLookup(bool, time.Duration)          {}
func (NoopMetricsCollector) RecordLoad(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordFlush(int, int, time.Duration)       {}
func (NoopMetricsCollector) RecordRollup(int, time.Duration)           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	LookupCount      atomic.Int64
	LookupHits       atomic.Int64
	LookupTotalNanos atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	LoadSegments     atomic.Int64
	LoadRows         atomic.Int64
	LoadTotalNanos   atomic.Int64
	FlushCount       atomic.Int64
	FlushRemoved     atomic.Int64
	FlushConstrained atomic.Int64
	RollupCount      atomic.Int64
	RollupInputs     atomic.Int64
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(hit bool, duration time.Duration) {
	b.LookupCount.Add(1)
	b.LookupTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.LookupHits.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(segments, rows int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadSegments.Add(int64(segments))
	b.LoadRows.Add(int64(rows))
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(removed, constrained int, _ time.Duration) {
	b.FlushCount.Add(1)
	b.FlushRemoved.Add(int64(removed))
	b.FlushConstrained.Add(int64(constrained))
}

// RecordRollup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRollup(inputs int, _ time.Duration) {
	b.RollupCount.Add(1)
	b.RollupInputs.Add(int64(inputs))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LookupCount:      b.LookupCount.Load(),
		LookupHits:       b.LookupHits.Load(),
		LookupAvgNanos:   avg(b.LookupTotalNanos.Load(), b.LookupCount.Load()),
		LoadCount:        b.LoadCount.Load(),
		LoadErrors:       b.LoadErrors.Load(),
		LoadSegments:     b.LoadSegments.Load(),
		LoadRows:         b.LoadRows.Load(),
		LoadAvgNanos:     avg(b.LoadTotalNanos.Load(), b.LoadCount.Load()),
		FlushCount:       b.FlushCount.Load(),
		FlushRemoved:     b.FlushRemoved.Load(),
		FlushConstrained: b.FlushConstrained.Load(),
		RollupCount:      b.RollupCount.Load(),
		RollupInputs:     b.RollupInputs.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LookupCount      int64
	LookupHits       int64
	LookupAvgNanos   int64
	LoadCount        int64
	LoadErrors       int64
	LoadSegments     int64
	LoadRows         int64
	LoadAvgNanos     int64
	FlushCount       int64
	FlushRemoved     int64
	FlushConstrained int64
	RollupCount      int64
	RollupInputs     int64
}
