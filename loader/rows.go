package loader

import (
	"math"
	"strconv"

	"github.com/hupe1980/aggcache/star"
)

// ColumnType is the accessor used to read a result column.
type ColumnType uint8

const (
	ObjectColumn ColumnType = iota
	IntColumn
	DoubleColumn
)

func (t ColumnType) String() string {
	switch t {
	case IntColumn:
		return "int"
	case DoubleColumn:
		return "double"
	default:
		return "object"
	}
}

// Rows is an executed statement. The typed accessors report false in the
// second result when the value is SQL NULL.
type Rows interface {
	Next() bool
	Int(i int) (int64, bool)
	Double(i int) (float64, bool)
	Object(i int) (any, bool)
	Err() error
	Close() error
}

// SliceRows serves rows from memory. A nil cell is NULL.
type SliceRows struct {
	rows [][]any
	cur  int
	err  error
}

// NewSliceRows returns rows over data.
func NewSliceRows(data [][]any) *SliceRows {
	return &SliceRows{rows: data, cur: -1}
}

// Fail makes Err report err once the rows are exhausted.
func (r *SliceRows) Fail(err error) *SliceRows {
	r.err = err
	return r
}

func (r *SliceRows) Next() bool {
	r.cur++
	return r.cur < len(r.rows)
}

func (r *SliceRows) Int(i int) (int64, bool)      { return asInt(r.rows[r.cur][i]) }
func (r *SliceRows) Double(i int) (float64, bool) { return asDouble(r.rows[r.cur][i]) }
func (r *SliceRows) Object(i int) (any, bool)     { return asObject(r.rows[r.cur][i]) }

func (r *SliceRows) Err() error {
	if r.cur >= len(r.rows) {
		return r.err
	}
	return nil
}

func (r *SliceRows) Close() error { return nil }

func asObject(v any) (any, bool) {
	v = star.Normalize(v)
	if star.IsNull(v) {
		return star.Null, false
	}
	return v, true
}

func asInt(v any) (int64, bool) {
	switch x := star.Normalize(v).(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func asDouble(v any) (float64, bool) {
	switch x := star.Normalize(v).(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f, true
		}
	}
	return math.NaN(), false
}
