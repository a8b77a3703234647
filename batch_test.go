package aggcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/predicate"
)

func TestOptimizePredicates(t *testing.T) {
	f := newFixture()
	cfg := DefaultConfig()
	cfg.MaxConstraints = 2

	out := OptimizePredicates([]predicate.ColumnPredicate{
		predicate.Eq(f.state, "CA"),            // 1 of 3
		predicate.In(f.gender, "F"),            // 1 of 2
		predicate.In(f.year, 1997, 1998, 1999), // over MaxConstraints
		predicate.ColumnTrue(f.state),          // already true
	}, cfg)

	assert.False(t, predicate.IsTrue(out[0]))
	assert.True(t, predicate.IsTrue(out[1]))
	assert.True(t, predicate.IsTrue(out[2]))
	assert.True(t, predicate.IsTrue(out[3]))
	assert.Equal(t, f.year, out[2].Column())

	cfg.OptimizeFillRatio = 0
	out = OptimizePredicates([]predicate.ColumnPredicate{predicate.Eq(f.gender, "F")}, cfg)
	assert.False(t, predicate.IsTrue(out[0]))
}

func TestGroupBatches(t *testing.T) {
	f := newFixture()
	reqs := []*CellRequest{
		NewCellRequest(f.star, f.sales).Constrain(f.year, 1997),
		NewCellRequest(f.star, f.sales).Constrain(f.year, 1997).Constrain(f.state, "CA"),
		NewCellRequest(f.star, f.count).Constrain(f.year, 1998).Constrain(f.state, "CA"),
		NewCellRequest(f.star, f.sales).Constrain(f.year, 1998),
		NewCellRequest(f.star, f.sales, predicate.Eq(f.gender, "F")).Constrain(f.year, 1997),
	}
	batches := groupBatches(reqs, DefaultConfig())
	require.Len(t, batches, 3)

	// the widest batch comes first
	b := batches[0]
	assert.Len(t, b.columns, 2)
	assert.Len(t, b.measures, 2)
	// ordered by name: "Sales Count" before "Unit Sales"
	assert.Equal(t, f.count, b.measures[0])
	assert.Equal(t, f.sales, b.measures[1])
	vals, ok := predicate.Values(b.preds[1])
	require.True(t, ok)
	assert.Len(t, vals, 2)

	assert.Len(t, batches[1].columns, 1)
	assert.Len(t, batches[2].columns, 1)
	assert.NotEqual(t, len(batches[1].compound), len(batches[2].compound))
}

func TestMergeGroupingSets(t *testing.T) {
	f := newFixture()
	cfg := DefaultConfig()

	t.Run("unrestricted omitted column", func(t *testing.T) {
		batches := groupBatches([]*CellRequest{
			NewCellRequest(f.star, f.sales).Constrain(f.gender, "F").Constrain(f.year, 1997),
			NewCellRequest(f.star, f.sales).Constrain(f.year, 1997),
		}, cfg)
		groups := mergeGroupingSets(batches)
		require.Len(t, groups, 1)
		assert.Len(t, groups[0], 2)
	})

	t.Run("restricted omitted column", func(t *testing.T) {
		batches := groupBatches([]*CellRequest{
			NewCellRequest(f.star, f.sales).Constrain(f.state, "CA").Constrain(f.year, 1997),
			NewCellRequest(f.star, f.sales).Constrain(f.year, 1997),
		}, cfg)
		assert.Len(t, mergeGroupingSets(batches), 2)
	})

	t.Run("different predicates", func(t *testing.T) {
		batches := groupBatches([]*CellRequest{
			NewCellRequest(f.star, f.sales).Constrain(f.gender, "F").Constrain(f.year, 1997),
			NewCellRequest(f.star, f.sales).Constrain(f.year, 1998),
		}, cfg)
		assert.Len(t, mergeGroupingSets(batches), 2)
	})

	t.Run("different measures", func(t *testing.T) {
		batches := groupBatches([]*CellRequest{
			NewCellRequest(f.star, f.sales).Constrain(f.gender, "F").Constrain(f.year, 1997),
			NewCellRequest(f.star, f.count).Constrain(f.year, 1997),
		}, cfg)
		assert.Len(t, mergeGroupingSets(batches), 2)
	})
}
