package segment

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

func stateGenderSegment(t *testing.T, f fixture, sparse bool) *Segment {
	t.Helper()
	return loaded(t, f, f.sales, []predicate.ColumnPredicate{
		predicate.In(f.state, "CA", "OR", "WA"),
		predicate.In(f.gender, "M", "F"),
	}, sparse,
		cell{[]any{"F", "CA"}, 1},
		cell{[]any{"M", "CA"}, 2},
		cell{[]any{"F", "OR"}, 3},
		cell{[]any{"M", "OR"}, 4},
		cell{[]any{"F", "WA"}, 5},
		cell{[]any{"M", "WA"}, 6},
	)
}

func TestHeaderIdentityIsContentAddressed(t *testing.T) {
	f := newFixture()
	a := ToHeader(stateGenderSegment(t, f, false))
	b := ToHeader(stateGenderSegment(t, f, true))
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, a.ID, 64)
	assert.True(t, a.Verify())

	other := NewHeader(Header{
		SchemaName: a.SchemaName, SchemaChecksum: a.SchemaChecksum, CubeName: a.CubeName,
		MeasureName: a.MeasureName, FactTable: a.FactTable, Width: a.Width,
		Columns: []ColumnConstraint{Constraint(f.state, "WA", "OR", "CA"), Constraint(f.gender, "F", "M")},
	})
	assert.Equal(t, a.ID, other.ID, "value order must not matter")

	wider := *other
	wider.Width++
	assert.NotEqual(t, a.ID, NewHeader(wider).ID, "star width is part of the identity")

	// values of different types are different content
	intYear := NewHeader(Header{SchemaName: "s", Columns: []ColumnConstraint{Constraint(f.year, 1997)}})
	strYear := NewHeader(Header{SchemaName: "s", Columns: []ColumnConstraint{Constraint(f.year, "1997")}})
	assert.NotEqual(t, intYear.ID, strYear.ID)
}

func TestHeaderBodyRoundTrip(t *testing.T) {
	f := newFixture()
	compound := []predicate.Predicate{
		predicate.Or(predicate.And(predicate.Eq(f.state, "CA"), predicate.Eq(f.year, 1997)), predicate.Eq(f.year, 1998)),
	}
	cases := map[string]*Segment{
		"dense double": stateGenderSegment(t, f, false),
		"sparse double": stateGenderSegment(t, f, true),
		"dense int": loaded(t, f, f.count, []predicate.ColumnPredicate{
			predicate.ColumnTrue(f.year),
		}, false, cell{[]any{1997}, 10}, cell{[]any{1998}, 0}),
	}
	withNull, err := New(f.star, f.sales, []predicate.ColumnPredicate{predicate.ColumnTrue(f.state)}, compound, nil)
	require.NoError(t, err)
	axis := NewAxis(withNull.Predicates()[0], []any{"CA", "WA", star.Null}, true)
	ds := NewDataset(ObjectType, []int{axis.Len()}, false)
	require.NoError(t, ds.Set(CellKey{0}, "x"))
	require.NoError(t, ds.Set(CellKey{2}, 1.5))
	require.NoError(t, withNull.SetData([]*Axis{axis}, ds))
	cases["dense object with null axis and compound"] = withNull

	for name, seg := range cases {
		t.Run(name, func(t *testing.T) {
			h := ToHeader(seg)
			b, err := ToBody(seg)
			require.NoError(t, err)

			rebuilt, err := FromHeaderBody(f.star, h, b)
			require.NoError(t, err)
			h2 := ToHeader(rebuilt)
			b2, err := ToBody(rebuilt)
			require.NoError(t, err)
			assert.Equal(t, h, h2)
			assert.Equal(t, b, b2)

			// and through JSON, where empty slices may come back nil
			hj, err := json.Marshal(h)
			require.NoError(t, err)
			bj, err := json.Marshal(b)
			require.NoError(t, err)
			var h3 Header
			var b3 Body
			require.NoError(t, json.Unmarshal(hj, &h3))
			require.NoError(t, json.Unmarshal(bj, &b3))
			if diff := cmp.Diff(h, &h3, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("header mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(b, &b3, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
			assert.True(t, h3.Verify())
		})
	}
}

func TestToBodyRequiresReady(t *testing.T) {
	f := newFixture()
	seg, err := New(f.star, f.sales, nil, nil, nil)
	require.NoError(t, err)
	_, err = ToBody(seg)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestFromHeaderBodyRejectsForeignStar(t *testing.T) {
	f := newFixture()
	seg := stateGenderSegment(t, f, false)
	h := ToHeader(seg)
	b, err := ToBody(seg)
	require.NoError(t, err)

	other := star.New("FoodMart", "v2", "sales_fact")
	_, err = FromHeaderBody(other, h, b)
	assert.Error(t, err)
}

func TestUnknownBodyKindPanics(t *testing.T) {
	f := newFixture()
	seg := stateGenderSegment(t, f, false)
	h := ToHeader(seg)
	b, err := ToBody(seg)
	require.NoError(t, err)
	b.Kind = 99
	assert.Panics(t, func() { _, _ = FromHeaderBody(f.star, h, b) })
}

func TestFlushRegionNarrowsSegment(t *testing.T) {
	f := newFixture()
	seg := stateGenderSegment(t, f, false)
	h := ToHeader(seg)
	b, err := ToBody(seg)
	require.NoError(t, err)

	region := NewRegion(Constraint(f.state, "CA", "OR"), Constraint(f.gender, "F"))
	require.True(t, h.Intersects(region))
	require.False(t, h.IsCoveredBy(region))
	require.True(t, h.CanConstrain(region))

	narrowed := h.Constrain(region)
	assert.NotEqual(t, h.ID, narrowed.ID)
	live, err := FromHeaderBody(f.star, narrowed, b)
	require.NoError(t, err)

	genders := []any{"F", "M"}
	states := []any{"CA", "OR", "WA"}
	assert.Equal(t, 6, liveCells(seg, genders, states))
	assert.Equal(t, 4, liveCells(live, genders, states))
	_, st := live.CellValue([]any{"F", "CA"})
	assert.Equal(t, CellNotApplicable, st)
	v, st := live.CellValue([]any{"M", "CA"})
	assert.Equal(t, CellPresent, st)
	assert.Equal(t, 2.0, v)

	assert.False(t, narrowed.Contains([]any{"F", "OR"}))
	assert.True(t, narrowed.Contains([]any{"F", "WA"}))

	t.Run("idempotent", func(t *testing.T) {
		again := narrowed.Constrain(region)
		assert.Equal(t, narrowed.ID, again.ID)
		assert.Len(t, again.Excluded, 1)
	})
}

func TestFlushRegionCoverage(t *testing.T) {
	f := newFixture()
	h := ToHeader(stateGenderSegment(t, f, false))

	assert.False(t, h.Intersects(NewRegion(Constraint(f.state, "NV"))))
	assert.True(t, h.IsCoveredBy(NewRegion(Constraint(f.state, "CA", "OR", "WA"))))
	assert.True(t, h.IsCoveredBy(NewRegion(Wildcard(f.year))))
	assert.False(t, h.CanConstrain(NewRegion(Constraint(f.year, 1997))))

	// a region over a column the segment aggregates away projects onto
	// the remaining columns
	r := NewRegion(Constraint(f.state, "WA"), Constraint(f.year, 1997))
	require.True(t, h.Intersects(r))
	require.True(t, h.CanConstrain(r))
	n := h.Constrain(r)
	require.Len(t, n.Excluded, 1)
	assert.Len(t, n.Excluded[0], 1)
	assert.Equal(t, f.state.Expression, n.Excluded[0][0].Expression)
}

func TestRangeConstraintSurvivesHeader(t *testing.T) {
	f := newFixture()
	seg := loaded(t, f, f.count, []predicate.ColumnPredicate{
		predicate.NewRange(f.year, 1990, true, 2000, false),
	}, false, cell{[]any{1997}, 3})
	h := ToHeader(seg)
	require.NotNil(t, h.Columns[0].Predicate)
	assert.True(t, h.Contains([]any{1995}))
	assert.False(t, h.Contains([]any{2000}))

	b, err := ToBody(seg)
	require.NoError(t, err)
	back, err := FromHeaderBody(f.star, h, b)
	require.NoError(t, err)
	_, st := back.CellValue([]any{1999})
	assert.Equal(t, CellEmpty, st)
	_, st = back.CellValue([]any{2001})
	assert.Equal(t, CellNotApplicable, st)
}
