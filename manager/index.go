package manager

import (
	"sort"

	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

// entry is one indexed segment. seg is nil when the data lives only in
// the cache tiers.
type entry struct {
	header *segment.Header
	seg    *segment.Segment
}

func (e *entry) state() string {
	if e.seg == nil {
		return "cached"
	}
	return e.seg.State().String()
}

// index maps header identity to entries. It is owned by the actor
// goroutine and never locked.
type index struct {
	entries   map[string]*entry
	byMeasure map[string]map[string]*entry
}

func newIndex() *index {
	return &index{
		entries:   make(map[string]*entry),
		byMeasure: make(map[string]map[string]*entry),
	}
}

func (ix *index) len() int { return len(ix.entries) }

func (ix *index) get(id string) (*entry, bool) {
	e, ok := ix.entries[id]
	return e, ok
}

func (ix *index) put(e *entry) {
	ix.remove(e.header.ID)
	ix.entries[e.header.ID] = e
	mk := e.header.MeasureKey()
	m, ok := ix.byMeasure[mk]
	if !ok {
		m = make(map[string]*entry)
		ix.byMeasure[mk] = m
	}
	m[e.header.ID] = e
}

func (ix *index) remove(id string) (*entry, bool) {
	e, ok := ix.entries[id]
	if !ok {
		return nil, false
	}
	delete(ix.entries, id)
	mk := e.header.MeasureKey()
	if m := ix.byMeasure[mk]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(ix.byMeasure, mk)
		}
	}
	return e, true
}

// sorted returns the entries ordered by header id.
func (ix *index) sorted() []*entry {
	out := make([]*entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].header.ID < out[j].header.ID })
	return out
}

// stale returns the entries of the queried measure whose header was built
// for a different number of star columns. Such headers never match a
// lookup again.
func (ix *index) stale(q *query) []*entry {
	var out []*entry
	for _, e := range ix.byMeasure[q.measureKey] {
		if e.header.Width != q.bitKey.Width() {
			out = append(out, e)
		}
	}
	return byID(out)
}

// locate returns the entries whose header covers the cell, Ready segments
// first, then loading segments, then tier-only entries. Failed segments
// are dropped from the index on the way.
func (ix *index) locate(q *query) []*entry {
	var ready, loading, cached []*entry
	for id, e := range ix.byMeasure[q.measureKey] {
		if e.seg != nil && e.seg.State() == segment.Failed {
			ix.remove(id)
			continue
		}
		h := e.header
		bk := h.BitKey()
		if h.CompoundKey() != q.compoundKey || bk.Width() != q.bitKey.Width() || !bk.Equal(q.bitKey) {
			continue
		}
		if !h.Contains(q.keys) {
			continue
		}
		switch {
		case e.seg == nil:
			cached = append(cached, e)
		case e.seg.State() == segment.Ready:
			ready = append(ready, e)
		default:
			loading = append(loading, e)
		}
	}
	out := append(append(byID(ready), byID(loading)...), byID(cached)...)
	return out
}

// rollupCandidates returns entries whose segments, aggregated over their
// extra columns, answer the cell. Either one entry whose extra columns
// each cover the whole column, or several entries with one extra column
// whose value sets partition it.
func (ix *index) rollupCandidates(q *query) []*entry {
	groups := make(map[string][]*entry)
	var order []string
	for _, e := range ix.byMeasure[q.measureKey] {
		h := e.header
		if e.seg != nil && e.seg.State() != segment.Ready {
			continue
		}
		if len(h.Excluded) > 0 || h.CompoundKey() != q.compoundKey {
			continue
		}
		bk := h.BitKey()
		if bk.Width() != q.bitKey.Width() || bk.Equal(q.bitKey) || !bk.IsSupersetOf(q.bitKey) {
			continue
		}
		if !coversKeys(h, q) {
			continue
		}
		k := bk.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}
	sort.Strings(order)

	for _, k := range order {
		es := byID(groups[k])
		// prefer a single input
		for _, e := range es {
			if extraFullyCovered(e.header, q) {
				return []*entry{e}
			}
		}
		if set := partition(es, q); set != nil {
			return set
		}
	}
	return nil
}

func coversKeys(h *segment.Header, q *query) bool {
	for i, expr := range q.exprs {
		c, _, ok := h.Column(expr)
		if !ok || !c.Contains(q.keys[i]) {
			return false
		}
	}
	return true
}

func extraColumns(h *segment.Header, q *query) []segment.ColumnConstraint {
	var out []segment.ColumnConstraint
	for _, c := range h.Columns {
		if !q.hasExpr(c.Expression) {
			out = append(out, c)
		}
	}
	return out
}

func fullyCovers(c segment.ColumnConstraint) bool {
	if c.Wildcard {
		return true
	}
	return c.Predicate == nil && c.Cardinality > 0 && len(c.Values) >= c.Cardinality
}

func extraFullyCovered(h *segment.Header, q *query) bool {
	for _, c := range extraColumns(h, q) {
		if !fullyCovers(c) {
			return false
		}
	}
	return true
}

// partition greedily picks entries with one extra, enumerated column whose
// value sets are disjoint and together hold every value of the column.
func partition(es []*entry, q *query) []*entry {
	var (
		picked []*entry
		seen   []any
		card   = -1
	)
	for _, e := range es {
		extra := extraColumns(e.header, q)
		if len(extra) != 1 {
			return nil
		}
		c := extra[0]
		if c.Wildcard || c.Predicate != nil || c.Cardinality <= 0 {
			continue
		}
		card = c.Cardinality
		disjoint := true
		for _, v := range c.Values {
			if star.Search(seen, v) >= 0 {
				disjoint = false
				break
			}
		}
		if !disjoint {
			continue
		}
		picked = append(picked, e)
		seen = star.SortedSet(append(seen, c.Values...))
		if len(seen) >= card {
			return picked
		}
	}
	return nil
}

func byID(es []*entry) []*entry {
	sort.Slice(es, func(i, j int) bool { return es[i].header.ID < es[j].header.ID })
	return es
}
