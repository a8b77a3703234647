package segment

import (
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

// AggregationKey identifies an aggregation: a star, a set of constrained
// columns and the compound predicates shared by its segments.
type AggregationKey struct {
	Star     string
	Columns  string
	Compound string
}

// Aggregation groups the segments of one star that share a constrained
// column set. It creates one segment per requested measure.
type Aggregation struct {
	key      AggregationKey
	star     *star.Star
	columns  []*star.Column
	bitKey   bitkey.BitKey
	compound []predicate.Predicate
}

// Key returns the aggregation key.
func (a *Aggregation) Key() AggregationKey { return a.key }

// Star returns the aggregation's star.
func (a *Aggregation) Star() *star.Star { return a.star }

// Columns returns the constrained columns in ordinal order.
func (a *Aggregation) Columns() []*star.Column { return a.columns }

// BitKey returns the key of the constrained columns.
func (a *Aggregation) BitKey() bitkey.BitKey { return a.bitKey }

// Compound returns the shared compound predicates.
func (a *Aggregation) Compound() []predicate.Predicate { return a.compound }

// NewSegments returns one Loading segment per measure, all over preds.
func (a *Aggregation) NewSegments(measures []*star.Measure, preds []predicate.ColumnPredicate, excluded []Region) ([]*Segment, error) {
	out := make([]*Segment, 0, len(measures))
	for _, m := range measures {
		s, err := New(a.star, m, preds, a.compound, excluded)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Aggregations creates aggregations on first use and keeps them for the
// lifetime of their star.
type Aggregations struct {
	mu sync.Mutex
	m  map[AggregationKey]*Aggregation
}

// NewAggregations returns an empty registry.
func NewAggregations() *Aggregations {
	return &Aggregations{m: make(map[AggregationKey]*Aggregation)}
}

// Lookup returns the aggregation for the given star, columns and compound
// predicates, creating it on first use.
func (r *Aggregations) Lookup(st *star.Star, columns []*star.Column, compound []predicate.Predicate) *Aggregation {
	bk := st.BitKey(columns...)
	sqls := make([]string, len(compound))
	for i, c := range compound {
		sqls[i] = predicate.ToSQL(c)
	}
	key := AggregationKey{Star: st.Key(), Columns: bk.Key(), Compound: strings.Join(sortedCopy(sqls), "\x00")}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[key]; ok {
		return a
	}
	a := &Aggregation{
		key:      key,
		star:     st,
		columns:  st.ColumnsOf(bk),
		bitKey:   bk,
		compound: append([]predicate.Predicate(nil), compound...),
	}
	r.m[key] = a
	return a
}

// Len returns the number of aggregations.
func (r *Aggregations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// DropStar forgets every aggregation of st.
func (r *Aggregations) DropStar(st *star.Star) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.m {
		if k.Star == st.Key() {
			delete(r.m, k)
		}
	}
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
