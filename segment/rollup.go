package segment

import (
	"errors"
	"fmt"

	"github.com/hupe1980/aggcache/star"
)

// RollupInput is one contributing segment of a rollup.
type RollupInput struct {
	Header *Header
	Body   *Body
}

// ErrIncompatibleRollup is returned when inputs cannot be rolled up together.
var ErrIncompatibleRollup = errors.New("segment: incompatible rollup inputs")

// Rollup merges segments over the same columns into one segment over the
// keep columns (expressions). Each kept axis is constrained to the
// intersection of the inputs' constraints and holds every realized value
// inside it; cells mapping to the same target cell are combined with agg. The output layout follows the density rule.
func Rollup(inputs []RollupInput, keep []string, agg star.Aggregator, density Density) (*Header, *Body, error) {
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("%w: no inputs", ErrIncompatibleRollup)
	}
	first := inputs[0].Header
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		if _, _, ok := first.Column(k); !ok {
			return nil, nil, fmt.Errorf("%w: column %q not in %s", ErrIncompatibleRollup, k, first)
		}
		keepSet[k] = true
	}
	var idx []int
	for i, c := range first.Columns {
		if keepSet[c.Expression] {
			idx = append(idx, i)
		}
	}

	for _, in := range inputs {
		h := in.Header
		if h.MeasureKey() != first.MeasureKey() || !h.BitKey().Equal(first.BitKey()) || h.CompoundKey() != first.CompoundKey() {
			return nil, nil, fmt.Errorf("%w: %s vs %s", ErrIncompatibleRollup, h, first)
		}
		if len(h.Excluded) > 0 {
			return nil, nil, fmt.Errorf("%w: %s has excluded regions", ErrIncompatibleRollup, h)
		}
		if len(in.Body.AxisValues) != len(h.Columns) {
			return nil, nil, fmt.Errorf("%w: body of %s has %d axes", ErrIncompatibleRollup, h, len(in.Body.AxisValues))
		}
	}

	constraints := make([]ColumnConstraint, len(idx))
	axes := make([]*Axis, len(idx))
	for j, ci := range idx {
		c := first.Columns[ci]
		for _, in := range inputs[1:] {
			var err error
			c, err = intersectConstraint(c, in.Header.Columns[ci])
			if err != nil {
				return nil, nil, err
			}
		}
		// partitions realize different values; the axis is their union
		// restricted to what every input was constrained to
		var vals []any
		hasNull := false
		for _, in := range inputs {
			for _, v := range in.Body.AxisValues[ci] {
				if c.Contains(v) {
					vals = append(vals, v)
				}
			}
			if in.Body.NullAxis[ci] && c.Contains(star.Null) {
				hasNull = true
			}
		}
		constraints[j] = c
		axes[j] = &Axis{values: star.SortedSet(vals), hasNull: hasNull}
	}

	dims := make([]int, len(axes))
	for j, a := range axes {
		dims[j] = a.Len()
	}
	cells := make(map[string][]any)
	scratch := newSparse(ObjectType, dims)
	for _, in := range inputs {
		ds, err := in.Body.dataset()
		if err != nil {
			return nil, nil, err
		}
		keys := make([][]any, len(idx))
		for j, ci := range idx {
			keys[j] = in.Body.AxisKeys(ci)
		}
		ds.Each(func(key CellKey, v any) bool {
			target := make(CellKey, len(idx))
			for j, ci := range idx {
				off := axes[j].Offset(keys[j][key[ci]])
				if off < 0 {
					return true
				}
				target[j] = off
			}
			enc, _ := scratch.encode(target)
			cells[enc] = append(cells[enc], v)
			return true
		})
	}

	typ := IntType
	results := make(map[string]any, len(cells))
	for enc, vs := range cells {
		v := agg.Aggregate(vs)
		results[enc] = v
		switch v.(type) {
		case int64, star.NullValue:
		case float64:
			if typ == IntType {
				typ = DoubleType
			}
		default:
			typ = ObjectType
		}
	}
	if len(results) == 0 {
		typ = inputs[0].Body.Type
	}

	ds := NewDataset(typ, dims, density.UseSparse(dims, len(results)))
	for enc, v := range results {
		if err := ds.Set(scratch.decode(enc), v); err != nil {
			return nil, nil, err
		}
	}

	values := make([][]any, len(axes))
	nulls := make([]bool, len(axes))
	for j, a := range axes {
		values[j] = a.values
		nulls[j] = a.hasNull
	}
	h := NewHeader(Header{
		SchemaName:     first.SchemaName,
		SchemaChecksum: first.SchemaChecksum,
		CubeName:       first.CubeName,
		MeasureName:    first.MeasureName,
		FactTable:      first.FactTable,
		Width:          first.Width,
		Columns:        constraints,
		Compound:       first.Compound,
		CompoundWire:   first.CompoundWire,
	})
	return h, buildBody(values, nulls, ds), nil
}

func intersectConstraint(a, b ColumnConstraint) (ColumnConstraint, error) {
	switch {
	case b.Wildcard:
		return a, nil
	case a.Wildcard:
		return b, nil
	case a.Predicate == nil:
		out := a
		out.Values = nil
		for _, v := range a.Values {
			if b.Contains(v) {
				out.Values = append(out.Values, v)
			}
		}
		if out.Values == nil {
			out.Values = star.Values{}
		}
		return out, nil
	case b.Predicate == nil:
		return intersectConstraint(b, a)
	case a.SQL == b.SQL:
		return a, nil
	}
	return ColumnConstraint{}, fmt.Errorf("%w: cannot intersect %s and %s", ErrIncompatibleRollup, a.SQL, b.SQL)
}
