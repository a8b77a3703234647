package loader

import (
	"errors"
	"fmt"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

// ErrInvalidGroupingSets is returned for grouping sets that cannot be loaded
// from one result set.
var ErrInvalidGroupingSets = errors.New("loader: invalid grouping sets")

// GroupingSet is one rollup level of a load: segments of different measures
// over the same columns.
type GroupingSet struct {
	Segments []*segment.Segment
	Columns  []*star.Column
}

// NewGroupingSet groups segs, which must share their columns.
func NewGroupingSet(segs ...*segment.Segment) (GroupingSet, error) {
	if len(segs) == 0 {
		return GroupingSet{}, fmt.Errorf("%w: empty grouping set", ErrInvalidGroupingSets)
	}
	first := segs[0]
	for _, s := range segs[1:] {
		if !s.BitKey().Equal(first.BitKey()) || s.Star() != first.Star() {
			return GroupingSet{}, fmt.Errorf("%w: %s and %s differ in columns", ErrInvalidGroupingSets, first, s)
		}
	}
	return GroupingSet{Segments: segs, Columns: first.Columns()}, nil
}

// GroupingSetsList is the grouping sets of one query. The first set is the
// detailed one; every other set omits some of its columns.
type GroupingSetsList struct {
	sets    []GroupingSet
	rollup  []*star.Column
	masks   []bitkey.BitKey
	columns []*star.Column
}

// NewGroupingSetsList validates sets. Every set must have as many segments
// as the detailed set, measure i of each set being the same measure.
func NewGroupingSetsList(sets ...GroupingSet) (*GroupingSetsList, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: no grouping sets", ErrInvalidGroupingSets)
	}
	detailed := sets[0]
	pos := make(map[*star.Column]int, len(detailed.Columns))
	for i, c := range detailed.Columns {
		pos[c] = i
	}
	for _, gs := range sets[1:] {
		if len(gs.Segments) != len(detailed.Segments) {
			return nil, fmt.Errorf("%w: %d measures, detailed set has %d", ErrInvalidGroupingSets, len(gs.Segments), len(detailed.Segments))
		}
		for i, s := range gs.Segments {
			if s.Measure() != detailed.Segments[i].Measure() {
				return nil, fmt.Errorf("%w: measure %d is %s, want %s", ErrInvalidGroupingSets, i, s.Measure(), detailed.Segments[i].Measure())
			}
		}
		for _, c := range gs.Columns {
			if _, ok := pos[c]; !ok {
				return nil, fmt.Errorf("%w: column %s not in the detailed set", ErrInvalidGroupingSets, c)
			}
		}
	}

	l := &GroupingSetsList{sets: sets, columns: detailed.Columns}
	if len(sets) == 1 {
		l.masks = []bitkey.BitKey{bitkey.New(0)}
		return l, nil
	}
	// rollup columns: detailed columns some set omits, in detailed order
	omitted := make([]bool, len(detailed.Columns))
	for _, gs := range sets[1:] {
		in := make(map[*star.Column]bool, len(gs.Columns))
		for _, c := range gs.Columns {
			in[c] = true
		}
		for i, c := range detailed.Columns {
			if !in[c] {
				omitted[i] = true
			}
		}
	}
	for i, c := range detailed.Columns {
		if omitted[i] {
			l.rollup = append(l.rollup, c)
		}
	}
	width := uint(len(l.rollup))
	seen := make(map[string]bool, len(sets))
	for _, gs := range sets {
		in := make(map[*star.Column]bool, len(gs.Columns))
		for _, c := range gs.Columns {
			in[c] = true
		}
		m := bitkey.New(width)
		for i, c := range l.rollup {
			if !in[c] {
				m = m.Set(uint(i))
			}
		}
		if seen[m.Key()] {
			return nil, fmt.Errorf("%w: two sets over the same columns", ErrInvalidGroupingSets)
		}
		seen[m.Key()] = true
		l.masks = append(l.masks, m)
	}
	return l, nil
}

// Sets returns the grouping sets, detailed first.
func (l *GroupingSetsList) Sets() []GroupingSet { return l.sets }

// Detailed returns the first grouping set.
func (l *GroupingSetsList) Detailed() GroupingSet { return l.sets[0] }

// UseGroupingSets reports whether rows carry rollup indicators.
func (l *GroupingSetsList) UseGroupingSets() bool { return len(l.sets) > 1 }

// Columns returns the columns of the detailed set, which are the leading
// columns of every row.
func (l *GroupingSetsList) Columns() []*star.Column { return l.columns }

// RollupColumns returns the columns with a rollup indicator, in the order
// the indicators follow the measures in each row.
func (l *GroupingSetsList) RollupColumns() []*star.Column { return l.rollup }

// RollupMask returns the rollup key of set i: the rollup columns it omits.
func (l *GroupingSetsList) RollupMask(i int) bitkey.BitKey { return l.masks[i] }

// Segments returns every segment of every set.
func (l *GroupingSetsList) Segments() []*segment.Segment {
	var out []*segment.Segment
	for _, gs := range l.sets {
		out = append(out, gs.Segments...)
	}
	return out
}

// Width returns the number of result columns a row must have.
func (l *GroupingSetsList) Width() int {
	return len(l.columns) + len(l.sets[0].Segments) + len(l.rollup)
}

// index of set with the given rollup key, or -1
func (l *GroupingSetsList) route(k bitkey.BitKey) int {
	for i, m := range l.masks {
		if m.Equal(k) {
			return i
		}
	}
	return -1
}
