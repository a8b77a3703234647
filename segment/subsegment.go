package segment

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/aggcache/predicate"
)

// SubSegment derives a smaller Ready segment from a Ready one without
// querying the database. keep holds, per axis, the offsets to retain (nil
// keeps the whole axis). If column is not negative, the predicate of that
// axis is replaced with replacement, which must constrain the same column.
func (s *Segment) SubSegment(keep []*bitset.BitSet, column int, replacement predicate.ColumnPredicate, excluded []Region) (*Segment, error) {
	if s.State() != Ready {
		return nil, ErrNotReady
	}
	if len(keep) != len(s.columns) {
		return nil, fmt.Errorf("segment: %d keep sets for %d axes", len(keep), len(s.columns))
	}
	preds := append([]predicate.ColumnPredicate(nil), s.predicates...)
	if column >= 0 {
		if column >= len(preds) || replacement == nil || replacement.Column() != s.columns[column] {
			return nil, fmt.Errorf("segment: replacement predicate does not match axis %d", column)
		}
		preds[column] = replacement
	}

	axes := s.Axes()
	remap := make([][]int, len(axes))
	newAxes := make([]*Axis, len(axes))
	dims := make([]int, len(axes))
	for i, a := range axes {
		remap[i] = make([]int, a.Len())
		var vals []any
		hasNull := false
		n := 0
		for off := 0; off < a.Len(); off++ {
			if keep[i] != nil && !keep[i].Test(uint(off)) {
				remap[i][off] = -1
				continue
			}
			remap[i][off] = n
			n++
			if a.hasNull && off == len(a.values) {
				hasNull = true
				continue
			}
			vals = append(vals, a.values[off])
		}
		newAxes[i] = &Axis{pred: preds[i], values: append([]any{}, vals...), hasNull: hasNull}
		dims[i] = n
	}

	sub, err := New(s.star, s.measure, preds, s.compound, excluded)
	if err != nil {
		return nil, err
	}
	src := s.Data()
	data := NewDataset(src.Type(), dims, !src.Dense())
	var setErr error
	src.Each(func(key CellKey, v any) bool {
		target := make(CellKey, len(key))
		for i, k := range key {
			target[i] = remap[i][k]
			if target[i] < 0 {
				return true
			}
		}
		if err := data.Set(target, v); err != nil {
			setErr = err
			return false
		}
		return true
	})
	if setErr != nil {
		return nil, setErr
	}
	if err := sub.SetData(newAxes, data); err != nil {
		return nil, err
	}
	return sub, nil
}
