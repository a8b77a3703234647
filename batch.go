package aggcache

import (
	"sort"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

// batch collects the recorded requests of one star, column set and set of
// compound predicates. It loads as one segment per measure, each over the
// union of the requested values per column.
type batch struct {
	star     *star.Star
	columns  []*star.Column
	bitKey   bitkey.BitKey
	compound []predicate.Predicate
	measures []*star.Measure
	values   [][]any
	seen     []map[string]bool

	// set by plan
	preds []predicate.ColumnPredicate
}

func batchKey(r *CellRequest) string {
	return r.star.Key() + "\x00" + r.star.BitKey(r.columns...).Key() + "\x00" + r.compoundKey()
}

func newBatch(r *CellRequest) *batch {
	b := &batch{
		star:     r.star,
		columns:  r.columns,
		bitKey:   r.star.BitKey(r.columns...),
		compound: r.compound,
		values:   make([][]any, len(r.columns)),
		seen:     make([]map[string]bool, len(r.columns)),
	}
	for i := range b.seen {
		b.seen[i] = make(map[string]bool)
	}
	return b
}

func (b *batch) add(r *CellRequest) {
	found := false
	for _, m := range b.measures {
		if m == r.measure {
			found = true
			break
		}
	}
	if !found {
		b.measures = append(b.measures, r.measure)
	}
	for i, v := range r.values {
		k := star.EncodeValue(v)
		if !b.seen[i][k] {
			b.seen[i][k] = true
			b.values[i] = append(b.values[i], v)
		}
	}
}

// plan derives the column predicates and orders the measures.
func (b *batch) plan(cfg Config) {
	preds := make([]predicate.ColumnPredicate, len(b.columns))
	for i, c := range b.columns {
		preds[i] = predicate.In(c, b.values[i]...)
	}
	b.preds = OptimizePredicates(preds, cfg)
	sort.SliceStable(b.measures, func(i, j int) bool { return b.measures[i].String() < b.measures[j].String() })
}

// groupBatches groups requests into batches, ordered by star, then by
// descending column count.
func groupBatches(reqs []*CellRequest, cfg Config) []*batch {
	byKey := make(map[string]*batch)
	var out []*batch
	for _, r := range reqs {
		k := batchKey(r)
		b, ok := byKey[k]
		if !ok {
			b = newBatch(r)
			byKey[k] = b
			out = append(out, b)
		}
		b.add(r)
	}
	for _, b := range out {
		b.plan(cfg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ki, kj := out[i].star.Key(), out[j].star.Key(); ki != kj {
			return ki < kj
		}
		return len(out[i].columns) > len(out[j].columns)
	})
	return out
}

// canRollUpTo reports whether b can load as a rollup grouping set of
// detailed in one GROUPING SETS query: same star, compound predicates and
// measures, a strict subset of the columns with the same predicates on
// them, and no restriction on the columns b omits.
func (b *batch) canRollUpTo(detailed *batch) bool {
	if b.star != detailed.star || len(b.columns) >= len(detailed.columns) {
		return false
	}
	if segment.CompoundKeyOf(b.compound) != segment.CompoundKeyOf(detailed.compound) {
		return false
	}
	if len(b.measures) != len(detailed.measures) {
		return false
	}
	for i := range b.measures {
		if b.measures[i] != detailed.measures[i] {
			return false
		}
	}
	if b.bitKey.Width() != detailed.bitKey.Width() || !detailed.bitKey.IsSupersetOf(b.bitKey) {
		return false
	}
	for i, c := range detailed.columns {
		j := -1
		for k, bc := range b.columns {
			if bc == c {
				j = k
				break
			}
		}
		if j < 0 {
			if !predicate.IsTrue(detailed.preds[i]) {
				return false
			}
			continue
		}
		if !predicate.Equal(b.preds[j], detailed.preds[i]) {
			return false
		}
	}
	return true
}

// mergeGroupingSets groups batches that can load in one query. The first
// batch of each group is the detailed one.
func mergeGroupingSets(batches []*batch) [][]*batch {
	var groups [][]*batch
	for _, b := range batches {
		placed := false
		for gi, g := range groups {
			if !b.canRollUpTo(g[0]) {
				continue
			}
			dup := false
			for _, o := range g[1:] {
				if o.bitKey.Equal(b.bitKey) {
					dup = true
					break
				}
			}
			if dup {
				continue
			}
			groups[gi] = append(g, b)
			placed = true
			break
		}
		if !placed {
			groups = append(groups, []*batch{b})
		}
	}
	return groups
}
