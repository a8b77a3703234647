package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

const (
	btreeDegree = 32
	// rows between context checks
	checkEvery = 1024
)

// Loader fills segments from result sets.
type Loader struct {
	density segment.Density
	logger  *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithDensity sets the thresholds of the dense/sparse decision.
func WithDensity(d segment.Density) Option {
	return func(l *Loader) { l.density = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns a loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		density: segment.DefaultDensity(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result describes a finished load.
type Result struct {
	BatchID string
	// Rows is the number of rows read, Skipped the rows whose rollup key
	// matched no grouping set.
	Rows    int
	Skipped int
	// SetRows and Sparse are indexed like the grouping sets.
	SetRows  []int
	Sparse   []bool
	Duration time.Duration
}

type row struct {
	keys   []any
	values []any
	nulls  *bitset.BitSet
}

// DefaultTypes returns the accessors for rows of gsl: objects for the
// columns, the measure datatype for measures and ints for indicators.
func DefaultTypes(gsl *GroupingSetsList) []ColumnType {
	types := make([]ColumnType, 0, gsl.Width())
	for range gsl.Columns() {
		types = append(types, ObjectColumn)
	}
	for _, s := range gsl.Detailed().Segments {
		switch s.Measure().Datatype {
		case star.Integer:
			types = append(types, IntColumn)
		case star.Numeric:
			types = append(types, DoubleColumn)
		default:
			types = append(types, ObjectColumn)
		}
	}
	for range gsl.RollupColumns() {
		types = append(types, IntColumn)
	}
	return types
}

// Load reads rows into the segments of gsl and closes rows. Each row holds
// the detailed columns, then one value per measure, then one indicator per
// rollup column when several grouping sets are loaded. A nil types selects
// DefaultTypes.
//
// On return every segment of gsl is Ready or Failed.
func (l *Loader) Load(ctx context.Context, gsl *GroupingSetsList, rows Rows, types []ColumnType) (res *Result, err error) {
	start := time.Now()
	res = &Result{
		BatchID: uuid.NewString(),
		SetRows: make([]int, len(gsl.Sets())),
		Sparse:  make([]bool, len(gsl.Sets())),
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("loader: close rows: %w", cerr)
		}
		failed := 0
		for _, s := range gsl.Segments() {
			if s.Fail(err) {
				failed++
			}
		}
		res.Duration = time.Since(start)
		if err != nil {
			l.logger.Warn("segment load failed", "batch", res.BatchID, "rows", res.Rows, "failed", failed, "error", err)
			return
		}
		l.logger.Debug("segments loaded", "batch", res.BatchID, "sets", len(gsl.Sets()),
			"rows", res.Rows, "skipped", res.Skipped, "duration", res.Duration)
	}()

	if types == nil {
		types = DefaultTypes(gsl)
	}
	if len(types) != gsl.Width() {
		return res, fmt.Errorf("loader: %d column types for rows of width %d", len(types), gsl.Width())
	}

	ncols := len(gsl.Columns())
	nmeas := len(gsl.Detailed().Segments)
	rollupOf := make([]int, ncols)
	for i, c := range gsl.Columns() {
		rollupOf[i] = -1
		for j, rc := range gsl.RollupColumns() {
			if rc == c {
				rollupOf[i] = j
			}
		}
	}
	width := uint(len(gsl.RollupColumns()))

	trees := make([]*btree.BTreeG[any], ncols)
	for i := range trees {
		trees[i] = btree.NewG(btreeDegree, func(a, b any) bool { return star.Compare(a, b) < 0 })
	}
	hasNull := make([]bool, ncols)
	buffers := make([][]row, len(gsl.Sets()))

	for rows.Next() {
		if res.Rows%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		res.Rows++

		rk := bitkey.New(width)
		for j := range gsl.RollupColumns() {
			if v, ok := rows.Int(ncols + nmeas + j); ok && v != 0 {
				rk = rk.Set(uint(j))
			}
		}
		set := gsl.route(rk)
		if set < 0 {
			res.Skipped++
			continue
		}

		r := row{keys: make([]any, ncols), values: make([]any, nmeas), nulls: bitset.New(uint(nmeas))}
		for i := 0; i < ncols; i++ {
			if j := rollupOf[i]; j >= 0 && rk.Get(uint(j)) {
				// rolled up: the NULL is not a value of the column
				continue
			}
			v, ok := rows.Object(i)
			if !ok {
				r.keys[i] = star.Null
				hasNull[i] = true
				continue
			}
			r.keys[i] = v
			trees[i].ReplaceOrInsert(v)
		}
		for j := 0; j < nmeas; j++ {
			var (
				v  any
				ok bool
			)
			switch types[ncols+j] {
			case IntColumn:
				v, ok = rows.Int(ncols + j)
			case DoubleColumn:
				v, ok = rows.Double(ncols + j)
			default:
				v, ok = rows.Object(ncols + j)
			}
			if !ok {
				r.nulls.Set(uint(j))
				continue
			}
			r.values[j] = v
		}
		buffers[set] = append(buffers[set], r)
		res.SetRows[set]++
	}
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("loader: read rows: %w", err)
	}

	frozen := make([][]any, ncols)
	for i, t := range trees {
		vals := make([]any, 0, t.Len())
		t.Ascend(func(v any) bool {
			vals = append(vals, v)
			return true
		})
		frozen[i] = vals
	}

	for si, gs := range gsl.Sets() {
		sparse, err := l.fill(gs, gsl.Columns(), buffers[si], frozen, hasNull, types[ncols:ncols+nmeas])
		if err != nil {
			return res, err
		}
		res.Sparse[si] = sparse
	}
	return res, nil
}

// fill builds the datasets of one grouping set and attaches them.
func (l *Loader) fill(gs GroupingSet, columns []*star.Column, buf []row, frozen [][]any, hasNull []bool, measureTypes []ColumnType) (bool, error) {
	colIdx := make([]int, len(gs.Columns))
	for k, c := range gs.Columns {
		colIdx[k] = -1
		for i, dc := range columns {
			if dc == c {
				colIdx[k] = i
			}
		}
		if colIdx[k] < 0 {
			return false, fmt.Errorf("%w: column %s not in the detailed set", ErrInvalidGroupingSets, c)
		}
	}

	axes := make([][]*segment.Axis, len(gs.Segments))
	for j, s := range gs.Segments {
		axes[j] = make([]*segment.Axis, len(colIdx))
		for k, p := range s.Predicates() {
			axes[j][k] = segment.NewAxis(p, frozen[colIdx[k]], hasNull[colIdx[k]])
		}
	}
	dims := make([]int, len(colIdx))
	for k := range dims {
		if len(axes) > 0 {
			dims[k] = axes[0][k].Len()
		}
	}
	sparse := l.density.UseSparse(dims, len(buf))

	data := make([]segment.Dataset, len(gs.Segments))
	for j := range gs.Segments {
		data[j] = segment.NewDataset(valueType(measureTypes[j]), dims, sparse)
	}
	key := make(segment.CellKey, len(colIdx))
	for _, r := range buf {
		for k, i := range colIdx {
			key[k] = axes[0][k].Offset(r.keys[i])
		}
		for j, ds := range data {
			if r.nulls.Test(uint(j)) {
				continue
			}
			if err := ds.Set(key, r.values[j]); err != nil {
				return sparse, fmt.Errorf("loader: %s: %w", gs.Segments[j], err)
			}
		}
	}
	for j, s := range gs.Segments {
		if err := s.SetData(axes[j], data[j]); err != nil {
			return sparse, fmt.Errorf("loader: %s: %w", s, err)
		}
	}
	return sparse, nil
}

func valueType(t ColumnType) segment.ValueType {
	switch t {
	case IntColumn:
		return segment.IntType
	case DoubleColumn:
		return segment.DoubleType
	default:
		return segment.ObjectType
	}
}
