package segment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

type fixture struct {
	star   *star.Star
	gender *star.Column
	state  *star.Column
	year   *star.Column
	sales  *star.Measure
	count  *star.Measure
}

func newFixture() fixture {
	s := star.New("FoodMart", "v1", "sales_fact")
	return fixture{
		star:   s,
		gender: s.AddColumn("gender", `"customer"."gender"`, "customer", star.String, 2),
		state:  s.AddColumn("state", `"store"."state"`, "store", star.String, 3),
		year:   s.AddColumn("year", `"time"."year"`, "time", star.Integer, -1),
		sales:  s.AddMeasure("Sales", "Unit Sales", "unit_sales", star.Sum, star.Numeric),
		count:  s.AddMeasure("Sales", "Sales Count", "product_id", star.Count, star.Integer),
	}
}

type cell struct {
	keys  []any
	value any
}

// loaded builds a Ready segment whose axes are exactly the values used by
// cells, the way the loader would.
func loaded(t *testing.T, f fixture, m *star.Measure, preds []predicate.ColumnPredicate, sparse bool, cells ...cell) *Segment {
	t.Helper()
	seg, err := New(f.star, m, preds, nil, nil)
	require.NoError(t, err)
	n := len(seg.Predicates())
	vals := make([][]any, n)
	for _, c := range cells {
		for i, k := range c.keys {
			vals[i] = append(vals[i], k)
		}
	}
	axes := make([]*Axis, n)
	dims := make([]int, n)
	for i, p := range seg.Predicates() {
		axes[i] = NewAxis(p, vals[i], false)
		dims[i] = axes[i].Len()
	}
	ds := NewDataset(TypeOf(m.Datatype), dims, sparse)
	for _, c := range cells {
		key := make(CellKey, n)
		for i, k := range c.keys {
			key[i] = axes[i].Offset(k)
		}
		require.NoError(t, ds.Set(key, c.value))
	}
	require.NoError(t, seg.SetData(axes, ds))
	return seg
}

// liveCells counts cells of seg with data over the cross product of keys.
func liveCells(seg *Segment, keys ...[]any) int {
	n := 0
	var walk func(i int, acc []any)
	walk = func(i int, acc []any) {
		if i == len(keys) {
			if _, st := seg.CellValue(acc); st == CellPresent {
				n++
			}
			return
		}
		for _, k := range keys[i] {
			walk(i+1, append(append([]any(nil), acc...), k))
		}
	}
	walk(0, nil)
	return n
}
