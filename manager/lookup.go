package manager

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

// ErrInvalidLookup is returned for malformed lookups.
var ErrInvalidLookup = errors.New("manager: invalid lookup")

// Lookup names one cell of a measure: a value for each constrained column,
// under optional compound predicates.
type Lookup struct {
	Star     *star.Star
	Measure  *star.Measure
	Columns  []*star.Column
	Keys     []any
	Compound []predicate.Predicate
}

// query is a Lookup reduced to header terms, columns in ordinal order.
type query struct {
	measureKey  string
	compoundKey string
	bitKey      bitkey.BitKey
	exprs       []string
	keys        []any
}

func newQuery(l Lookup) (*query, error) {
	if l.Star == nil || l.Measure == nil {
		return nil, fmt.Errorf("%w: star and measure are required", ErrInvalidLookup)
	}
	if len(l.Columns) != len(l.Keys) {
		return nil, fmt.Errorf("%w: %d columns but %d keys", ErrInvalidLookup, len(l.Columns), len(l.Keys))
	}
	idx := make([]int, len(l.Columns))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return l.Columns[idx[a]].Ordinal < l.Columns[idx[b]].Ordinal })

	q := &query{
		measureKey:  segment.MeasureKeyOf(l.Star, l.Measure),
		compoundKey: segment.CompoundKeyOf(l.Compound),
		bitKey:      l.Star.BitKey(l.Columns...),
		exprs:       make([]string, len(idx)),
		keys:        make([]any, len(idx)),
	}
	for n, i := range idx {
		if n > 0 && l.Columns[i] == l.Columns[idx[n-1]] {
			return nil, fmt.Errorf("%w: column %s given twice", ErrInvalidLookup, l.Columns[i])
		}
		q.exprs[n] = l.Columns[i].Expression
		q.keys[n] = star.Normalize(l.Keys[i])
	}
	return q, nil
}

func (q *query) hasExpr(expr string) bool {
	for _, e := range q.exprs {
		if e == expr {
			return true
		}
	}
	return false
}
