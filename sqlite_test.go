package aggcache

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFoodMart(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE sales_fact (gender TEXT, state TEXT, year INTEGER, unit_sales REAL)`)
	require.NoError(t, err)
	for _, f := range facts {
		_, err = db.Exec(`INSERT INTO sales_fact VALUES (?, ?, ?, ?)`, f.gender, f.state, f.year, f.sales)
		require.NoError(t, err)
	}
	return db
}

func TestCacheWithSQLite(t *testing.T) {
	f := newFixture()
	db := openFoodMart(t)
	metrics := &BasicMetricsCollector{}
	c := newCache(t, FactTablePlanner{}, SQLRowSource{DB: db}, WithMetricsCollector(metrics))
	r := c.NewReader()
	defer r.Close()

	out := getAll(t, r,
		NewCellRequest(f.star, f.sales).Constrain(f.state, "CA"),
		NewCellRequest(f.star, f.sales).Constrain(f.state, "OR"),
		NewCellRequest(f.star, f.count).Constrain(f.year, 1997).Constrain(f.gender, "M"),
		NewCellRequest(f.star, f.sales).Constrain(f.year, 1998).Constrain(f.gender, "M"),
	)
	assert.Equal(t, 30.0, out[0])
	assert.Equal(t, 70.0, out[1])
	assert.Equal(t, int64(2), out[2])
	assert.Equal(t, 60.0, out[3])

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.LoadCount)
	assert.Equal(t, int64(0), stats.LoadErrors)

	// rolled up from the gender and year segments
	v, err := r.Get(context.Background(), NewCellRequest(f.star, f.sales).Constrain(f.year, 1998))
	require.NoError(t, err)
	assert.Equal(t, 60.0, v)
	assert.Equal(t, int64(2), metrics.GetStats().LoadCount)
}

func TestCacheWithSQLiteBadQuery(t *testing.T) {
	f := newFixture()
	db := openFoodMart(t)
	_, err := db.Exec(`DROP TABLE sales_fact`)
	require.NoError(t, err)

	c := newCache(t, FactTablePlanner{}, SQLRowSource{DB: db})
	r := c.NewReader()
	defer r.Close()
	ctx := context.Background()

	_, err = r.Get(ctx, NewCellRequest(f.star, f.sales).Constrain(f.year, 1997))
	require.ErrorIs(t, err, ErrNotCached)
	require.ErrorIs(t, r.Load(ctx), ErrLoadFailed)
}
