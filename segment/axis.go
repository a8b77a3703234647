package segment

import (
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

// Axis is one column's realized value domain within a segment: the sorted,
// distinct non-null values found by the load, plus a flag for Null, which
// occupies the last offset when present.
type Axis struct {
	pred    predicate.ColumnPredicate
	values  []any
	hasNull bool
}

// NewAxis returns an axis over values. Values are normalized, sorted and
// deduplicated; a Null among them sets the null flag.
func NewAxis(pred predicate.ColumnPredicate, values []any, hasNull bool) *Axis {
	set := star.SortedSet(values)
	if n := len(set); n > 0 && star.IsNull(set[n-1]) {
		set = set[:n-1]
		hasNull = true
	}
	return &Axis{pred: pred, values: set, hasNull: hasNull}
}

// Predicate returns the predicate the axis was loaded for.
func (a *Axis) Predicate() predicate.ColumnPredicate { return a.pred }

// Column returns the axis column.
func (a *Axis) Column() *star.Column { return a.pred.Column() }

// Values returns the sorted non-null values. The slice must not be modified.
func (a *Axis) Values() []any { return a.values }

// HasNull reports whether Null occurred in the column.
func (a *Axis) HasNull() bool { return a.hasNull }

// Len returns the number of offsets on the axis.
func (a *Axis) Len() int {
	if a.hasNull {
		return len(a.values) + 1
	}
	return len(a.values)
}

// Key returns the value at offset.
func (a *Axis) Key(offset int) any {
	if offset == len(a.values) && a.hasNull {
		return star.Null
	}
	return a.values[offset]
}

// Keys returns all values including a trailing Null.
func (a *Axis) Keys() []any {
	keys := make([]any, 0, a.Len())
	keys = append(keys, a.values...)
	if a.hasNull {
		keys = append(keys, star.Null)
	}
	return keys
}

// Offset returns the offset of v, or -1 if v is not on the axis.
func (a *Axis) Offset(v any) int {
	v = star.Normalize(v)
	if star.IsNull(v) {
		if a.hasNull {
			return len(a.values)
		}
		return -1
	}
	return star.Search(a.values, v)
}

// WouldContain reports whether the axis predicate accepts v, whether or
// not v was realized by the load.
func (a *Axis) WouldContain(v any) bool {
	return predicate.EvaluateValue(a.pred, v)
}
