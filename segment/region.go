package segment

import (
	"sort"
	"strings"

	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

// ColumnConstraint describes the values of one column that a header, a
// flush region or an excluded region covers. Exactly one form is used:
// Wildcard (every value), Values (an explicit sorted set), or Predicate (a
// non-enumerable column predicate such as a range, with SQL as its
// rendered identity).
type ColumnConstraint struct {
	Expression  string          `json:"expr"`
	Ordinal     int             `json:"ordinal"`
	Cardinality int             `json:"cardinality,omitempty"`
	Wildcard    bool            `json:"wildcard,omitempty"`
	Values      star.Values     `json:"values,omitempty"`
	Predicate   *predicate.Wire `json:"predicate,omitempty"`
	SQL         string          `json:"sql,omitempty"`
}

// Constraint returns a constraint of col to values.
func Constraint(col *star.Column, values ...any) ColumnConstraint {
	return ColumnConstraint{
		Expression:  col.Expression,
		Ordinal:     col.Ordinal,
		Cardinality: col.Cardinality,
		Values:      star.Values(star.SortedSet(values)),
	}
}

// Wildcard returns a constraint covering every value of col.
func Wildcard(col *star.Column) ColumnConstraint {
	return ColumnConstraint{
		Expression:  col.Expression,
		Ordinal:     col.Ordinal,
		Cardinality: col.Cardinality,
		Wildcard:    true,
	}
}

// ConstraintOf derives the constraint of a column predicate.
func ConstraintOf(p predicate.ColumnPredicate) ColumnConstraint {
	col := p.Column()
	if predicate.IsTrue(p) {
		return Wildcard(col)
	}
	if vals, ok := predicate.Values(p); ok {
		return Constraint(col, vals...)
	}
	w := predicate.Encode(p)
	return ColumnConstraint{
		Expression:  col.Expression,
		Ordinal:     col.Ordinal,
		Cardinality: col.Cardinality,
		Predicate:   &w,
		SQL:         predicate.ToSQL(p),
	}
}

// Contains reports whether v satisfies the constraint.
func (c ColumnConstraint) Contains(v any) bool {
	switch {
	case c.Wildcard:
		return true
	case c.Predicate != nil:
		p, err := predicate.DecodeDetached(*c.Predicate)
		if err != nil {
			return true
		}
		cp, ok := p.(predicate.ColumnPredicate)
		if !ok {
			return true
		}
		return predicate.EvaluateValue(cp, v)
	default:
		return star.Search(c.Values, star.Normalize(v)) >= 0
	}
}

// Intersects reports whether some value satisfies both constraints. It is
// conservative when neither side is enumerable.
func (c ColumnConstraint) Intersects(o ColumnConstraint) bool {
	switch {
	case c.Wildcard || o.Wildcard:
		return true
	case c.Predicate == nil:
		for _, v := range c.Values {
			if o.Contains(v) {
				return true
			}
		}
		return false
	case o.Predicate == nil:
		return o.Intersects(c)
	default:
		return true
	}
}

// Covers reports whether every value satisfying o also satisfies c. It is
// conservative (false) when that cannot be decided.
func (c ColumnConstraint) Covers(o ColumnConstraint) bool {
	switch {
	case c.Wildcard:
		return true
	case o.Wildcard || o.Predicate != nil:
		return c.Predicate != nil && o.Predicate != nil && c.SQL == o.SQL
	}
	for _, v := range o.Values {
		if !c.Contains(v) {
			return false
		}
	}
	return true
}

// key renders the constraint canonically for checksums and deduplication.
func (c ColumnConstraint) key() string {
	var sb strings.Builder
	sb.WriteString(c.Expression)
	sb.WriteByte('=')
	switch {
	case c.Wildcard:
		sb.WriteByte('*')
	case c.Predicate != nil:
		sb.WriteString("p:")
		sb.WriteString(c.SQL)
	default:
		sb.WriteByte('{')
		for i, v := range star.SortedSet(c.Values) {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(star.EncodeValue(v))
		}
		sb.WriteByte('}')
	}
	return sb.String()
}

// normalize returns a deep copy with a sorted value set.
func (c ColumnConstraint) normalize() ColumnConstraint {
	out := c.clone()
	if out.Values != nil {
		out.Values = star.Values(star.SortedSet(out.Values))
	}
	return out
}

func (c ColumnConstraint) clone() ColumnConstraint {
	out := c
	if c.Values != nil {
		out.Values = append(star.Values(nil), c.Values...)
	}
	if c.Predicate != nil {
		w := *c.Predicate
		out.Predicate = &w
	}
	return out
}

// Region is a rectangle of cells: the cross product of its column
// constraints. Columns a region does not name are unconstrained.
type Region []ColumnConstraint

// NewRegion returns a region with constraints in expression order.
func NewRegion(cs ...ColumnConstraint) Region {
	r := make(Region, len(cs))
	for i, c := range cs {
		r[i] = c.normalize()
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Expression < r[j].Expression })
	return r
}

// Constraint returns the constraint on expr.
func (r Region) Constraint(expr string) (ColumnConstraint, bool) {
	for _, c := range r {
		if c.Expression == expr {
			return c, true
		}
	}
	return ColumnConstraint{}, false
}

// ContainsCell reports whether the cell with the given coordinates lies in
// the region. exprs names the column of each coordinate.
func (r Region) ContainsCell(exprs []string, keys []any) bool {
	for _, c := range r {
		i := indexOf(exprs, c.Expression)
		if i < 0 {
			continue
		}
		if !c.Contains(keys[i]) {
			return false
		}
	}
	return true
}

// Key renders the region canonically.
func (r Region) Key() string {
	parts := make([]string, len(r))
	for i, c := range r {
		parts[i] = c.key()
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func (r Region) String() string { return "[" + r.Key() + "]" }

func indexOf(exprs []string, expr string) int {
	for i, e := range exprs {
		if e == expr {
			return i
		}
	}
	return -1
}
