package star

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStarColumns(t *testing.T) {
	s := New("FoodMart", "abc", "sales_fact")
	g := s.AddColumn("gender", `"customer"."gender"`, "customer", String, 2)
	y := s.AddColumn("year", `"time"."year"`, "time", Integer, -1)

	assert.Equal(t, 0, g.Ordinal)
	assert.Equal(t, 1, y.Ordinal)
	assert.Same(t, g, s.AddColumn("gender", `"customer"."gender"`, "customer", String, 2))
	assert.Equal(t, 2, s.ColumnCount())

	k := s.BitKey(y)
	assert.Equal(t, []uint{1}, k.Positions())
	assert.Equal(t, []*Column{y}, s.ColumnsOf(k))

	c, ok := s.ColumnByExpression(`"time"."year"`)
	require.True(t, ok)
	assert.Same(t, y, c)

	m := s.AddMeasure("Sales", "Unit Sales", "unit_sales", Sum, Numeric)
	got, ok := s.Measure("Sales", "Unit Sales")
	require.True(t, ok)
	assert.Same(t, m, got)
}

func TestCompareOrdersNullLast(t *testing.T) {
	vals := SortedSet([]any{"b", nil, int64(3), 1.5, "a", true, 2, Null})
	assert.Equal(t, []any{true, 1.5, int64(2), int64(3), "a", "b", Null}, vals)
}

func TestSearch(t *testing.T) {
	vals := SortedSet([]any{"WA", "CA", "OR"})
	assert.Equal(t, 0, Search(vals, "CA"))
	assert.Equal(t, 2, Search(vals, "WA"))
	assert.Equal(t, -1, Search(vals, "NV"))
}

func TestFormatSQL(t *testing.T) {
	assert.Equal(t, "'O''Brien'", FormatSQL("O'Brien"))
	assert.Equal(t, "1997", FormatSQL(int64(1997)))
	assert.Equal(t, "2.5", FormatSQL(2.5))
	assert.Equal(t, "NULL", FormatSQL(Null))
	assert.Equal(t, "TRUE", FormatSQL(true))
}

func TestValuesJSONPreservesTypes(t *testing.T) {
	in := Values{"1", int64(1), 1.25, false, Null}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Values
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	var none Values
	data, err = json.Marshal(struct {
		V Values `json:"v"`
	}{V: none})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":null}`, string(data))
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		agg  Aggregator
		in   []any
		want any
	}{
		{Sum, []any{int64(1), int64(2), Null}, int64(3)},
		{Sum, []any{int64(1), 2.5}, 3.5},
		{Count, []any{int64(4), int64(6)}, int64(10)},
		{Min, []any{int64(4), int64(-1), int64(6)}, int64(-1)},
		{Max, []any{"a", "c", "b"}, "c"},
		{Avg, []any{int64(1), int64(2)}, 1.5},
		{Sum, []any{Null, nil}, Null},
	}
	for _, tt := range tests {
		t.Run(tt.agg.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.agg.Aggregate(tt.in))
		})
	}
}

func TestRollupAggregator(t *testing.T) {
	r, ok := Count.Rollup()
	assert.True(t, ok)
	assert.Equal(t, Sum, r)
	_, ok = DistinctCount.Rollup()
	assert.False(t, ok)
	_, ok = Avg.Rollup()
	assert.False(t, ok, "an average of averages is not exact")
	r, ok = Max.Rollup()
	assert.True(t, ok)
	assert.Equal(t, Max, r)

	a, err := ParseAggregator("max")
	require.NoError(t, err)
	assert.Equal(t, Max, a)
	_, err = ParseAggregator("median")
	assert.Error(t, err)
}
