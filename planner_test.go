package aggcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/loader"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

func newSegments(t *testing.T, f fixture, compound []predicate.Predicate, preds ...predicate.ColumnPredicate) []*segment.Segment {
	t.Helper()
	var out []*segment.Segment
	for _, m := range []*star.Measure{f.sales, f.count} {
		s, err := segment.New(f.star, m, preds, compound, nil)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func singleSet(t *testing.T, segs []*segment.Segment) *loader.GroupingSetsList {
	t.Helper()
	gs, err := loader.NewGroupingSet(segs...)
	require.NoError(t, err)
	gsl, err := loader.NewGroupingSetsList(gs)
	require.NoError(t, err)
	return gsl
}

func TestFactTablePlanner(t *testing.T) {
	f := newFixture()

	t.Run("group by", func(t *testing.T) {
		gsl := singleSet(t, newSegments(t, f, nil,
			predicate.ColumnTrue(f.gender),
			predicate.In(f.year, int64(1997), int64(1998)),
		))
		stmt, err := FactTablePlanner{}.Plan(gsl)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT gender, year, sum(unit_sales), count(unit_sales) FROM sales_fact"+
				" WHERE (year IN (1997, 1998)) GROUP BY gender, year",
			stmt.SQL)
		assert.Len(t, stmt.Types, 4)
	})

	t.Run("compound predicates", func(t *testing.T) {
		gsl := singleSet(t, newSegments(t, f, []predicate.Predicate{predicate.Eq(f.state, "CA")},
			predicate.Eq(f.year, int64(1997)),
		))
		stmt, err := FactTablePlanner{}.Plan(gsl)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT year, sum(unit_sales), count(unit_sales) FROM sales_fact"+
				" WHERE (year = 1997) AND (state = 'CA') GROUP BY year",
			stmt.SQL)
	})

	t.Run("grouping sets", func(t *testing.T) {
		detailed, err := loader.NewGroupingSet(newSegments(t, f, nil,
			predicate.ColumnTrue(f.gender), predicate.Eq(f.year, int64(1997)))...)
		require.NoError(t, err)
		rollup, err := loader.NewGroupingSet(newSegments(t, f, nil,
			predicate.Eq(f.year, int64(1997)))...)
		require.NoError(t, err)
		gsl, err := loader.NewGroupingSetsList(detailed, rollup)
		require.NoError(t, err)

		_, err = FactTablePlanner{}.Plan(gsl)
		require.ErrorIs(t, err, ErrPlan)

		stmt, err := FactTablePlanner{GroupingSets: true}.Plan(gsl)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT gender, year, sum(unit_sales), count(unit_sales), GROUPING(gender) FROM sales_fact"+
				" WHERE (year = 1997) GROUP BY GROUPING SETS ((gender, year), (year))",
			stmt.SQL)
	})

	t.Run("joins", func(t *testing.T) {
		s := star.New("FoodMart", "v1", "sales_fact")
		city := s.AddColumn("city", "store.city", "store", star.String, -1)
		sales := s.AddMeasure("Sales", "Unit Sales", "sales_fact.unit_sales", star.Sum, star.Numeric)
		seg, err := segment.New(s, sales, []predicate.ColumnPredicate{predicate.ColumnTrue(city)}, nil, nil)
		require.NoError(t, err)
		gsl := singleSet(t, []*segment.Segment{seg})

		_, err = FactTablePlanner{}.Plan(gsl)
		require.ErrorIs(t, err, ErrPlan)

		stmt, err := FactTablePlanner{Joins: map[string]string{
			"store": "JOIN store ON store.store_id = sales_fact.store_id",
		}}.Plan(gsl)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT store.city, sum(sales_fact.unit_sales) FROM sales_fact"+
				" JOIN store ON store.store_id = sales_fact.store_id GROUP BY store.city",
			stmt.SQL)
	})
}
