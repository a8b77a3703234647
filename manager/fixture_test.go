package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/cache"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

type fixture struct {
	star     *star.Star
	gender   *star.Column
	state    *star.Column
	sales    *star.Measure
	distinct *star.Measure
}

func newFixture() fixture {
	s := star.New("FoodMart", "v1", "sales_fact")
	return fixture{
		star:     s,
		gender:   s.AddColumn("gender", `"customer"."gender"`, "customer", star.String, 2),
		state:    s.AddColumn("state", `"store"."state"`, "store", star.String, 3),
		sales:    s.AddMeasure("Sales", "Unit Sales", "unit_sales", star.Sum, star.Numeric),
		distinct: s.AddMeasure("Sales", "Customer Count", "customer_id", star.DistinctCount, star.Integer),
	}
}

// loading returns a new Loading segment of measure m.
func loading(t *testing.T, f fixture, m *star.Measure, preds ...predicate.ColumnPredicate) *segment.Segment {
	t.Helper()
	seg, err := segment.New(f.star, m, preds, nil, nil)
	require.NoError(t, err)
	return seg
}

// fill makes seg Ready with value 1 in every cell of its axes.
func fill(t *testing.T, seg *segment.Segment) {
	t.Helper()
	preds := seg.Predicates()
	axes := make([]*segment.Axis, len(preds))
	dims := make([]int, len(preds))
	for i, p := range preds {
		vals, ok := predicate.Values(p)
		require.True(t, ok, "test predicates must be enumerable")
		axes[i] = segment.NewAxis(p, vals, false)
		dims[i] = axes[i].Len()
	}
	ds := segment.NewDataset(segment.TypeOf(seg.Measure().Datatype), dims, false)
	var walk func(i int, key segment.CellKey)
	walk = func(i int, key segment.CellKey) {
		if i == len(dims) {
			require.NoError(t, ds.Set(append(segment.CellKey(nil), key...), 1.0))
			return
		}
		for o := 0; o < dims[i]; o++ {
			walk(i+1, append(key, o))
		}
	}
	walk(0, nil)
	require.NoError(t, seg.SetData(axes, ds))
}

func ready(t *testing.T, f fixture, m *star.Measure, preds ...predicate.ColumnPredicate) *segment.Segment {
	t.Helper()
	seg := loading(t, f, m, preds...)
	fill(t, seg)
	return seg
}

func newManager(t *testing.T, tiers ...cache.Tier) (*Manager, *cache.MemoryTier) {
	t.Helper()
	mem := cache.NewMemoryTier(0, nil)
	m := New(cache.NewComposite(nil, append([]cache.Tier{mem}, tiers...)...))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, mem
}

// settle waits until the actor has handled everything posted so far and
// the tier IO it dispatched has finished.
func settle(t *testing.T, m *Manager) []EntryState {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := m.State(ctx)
		require.NoError(t, err)
		m.io.Wait()
	}
	st, err := m.State(ctx)
	require.NoError(t, err)
	return st
}

func states(es []EntryState) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.State
	}
	return out
}
