package segment

import (
	"fmt"

	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

// ToHeader derives the header of s.
func ToHeader(s *Segment) *Header {
	cols := make([]ColumnConstraint, len(s.predicates))
	for i, p := range s.predicates {
		cols[i] = ConstraintOf(p)
	}
	var (
		sqls  []string
		wires []predicate.Wire
	)
	for _, c := range s.compound {
		sqls = append(sqls, predicate.ToSQL(c))
		wires = append(wires, predicate.Encode(c))
	}
	return NewHeader(Header{
		SchemaName:     s.star.SchemaName,
		SchemaChecksum: s.star.SchemaChecksum,
		CubeName:       s.measure.Cube,
		MeasureName:    s.measure.Name,
		FactTable:      s.star.FactTable,
		Width:          uint(s.star.ColumnCount()),
		Columns:        cols,
		Compound:       sqls,
		CompoundWire:   wires,
		Excluded:       s.excluded,
	})
}

// ToBody derives the body of a Ready segment.
func ToBody(s *Segment) (*Body, error) {
	if s.State() != Ready {
		return nil, ErrNotReady
	}
	axes := s.Axes()
	values := make([][]any, len(axes))
	nulls := make([]bool, len(axes))
	for i, a := range axes {
		values[i] = a.Values()
		nulls[i] = a.HasNull()
	}
	return buildBody(values, nulls, s.Data()), nil
}

// FromHeaderBody rebuilds a Ready segment over st from its wire form.
func FromHeaderBody(st *star.Star, h *Header, b *Body) (*Segment, error) {
	if st.SchemaName != h.SchemaName || st.SchemaChecksum != h.SchemaChecksum || st.FactTable != h.FactTable {
		return nil, fmt.Errorf("segment: header %s does not belong to star %s", h.ID, st)
	}
	m, ok := st.Measure(h.CubeName, h.MeasureName)
	if !ok {
		return nil, fmt.Errorf("segment: unknown measure %s.%s", h.CubeName, h.MeasureName)
	}
	if len(b.AxisValues) != len(h.Columns) {
		return nil, fmt.Errorf("segment: body has %d axes for %d columns", len(b.AxisValues), len(h.Columns))
	}

	preds := make([]predicate.ColumnPredicate, len(h.Columns))
	for i, c := range h.Columns {
		p, err := columnPredicate(st, c)
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}
	if len(h.CompoundWire) != len(h.Compound) {
		return nil, fmt.Errorf("segment: header %s carries compound predicates without structure", h.ID)
	}
	compound := make([]predicate.Predicate, len(h.CompoundWire))
	for i, w := range h.CompoundWire {
		p, err := predicate.Decode(w, st)
		if err != nil {
			return nil, err
		}
		compound[i] = p
	}

	seg, err := New(st, m, preds, compound, h.Excluded)
	if err != nil {
		return nil, err
	}
	ds, err := b.dataset()
	if err != nil {
		return nil, err
	}
	axes := make([]*Axis, len(preds))
	for i, p := range seg.Predicates() {
		axes[i] = NewAxis(p, b.AxisValues[i], b.NullAxis[i])
	}
	if err := seg.SetData(axes, ds); err != nil {
		return nil, err
	}
	return seg, nil
}

func columnPredicate(st *star.Star, c ColumnConstraint) (predicate.ColumnPredicate, error) {
	col, ok := st.ColumnByExpression(c.Expression)
	if !ok {
		return nil, fmt.Errorf("segment: unknown column %q", c.Expression)
	}
	switch {
	case c.Wildcard:
		return predicate.ColumnTrue(col), nil
	case c.Predicate != nil:
		p, err := predicate.Decode(*c.Predicate, st)
		if err != nil {
			return nil, err
		}
		cp, ok := p.(predicate.ColumnPredicate)
		if !ok || cp.Column() != col {
			return nil, fmt.Errorf("segment: predicate of %q is not a column predicate", c.Expression)
		}
		return cp, nil
	default:
		return predicate.In(col, c.Values...), nil
	}
}
