package predicate

import (
	"sort"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/star"
)

// Predicate is a node of a predicate tree.
type Predicate interface {
	// Columns returns the constrained columns in ordinal order.
	Columns() []*star.Column
	// String returns the canonical SQL rendering of the predicate.
	String() string

	sealed()
}

// ColumnPredicate is a predicate over at most one column. Axes are keyed by
// column predicates.
type ColumnPredicate interface {
	Predicate
	// Column returns the constrained column, or nil for a bare literal.
	Column() *star.Column
}

var (
	// True accepts every tuple.
	True ColumnPredicate = LiteralPredicate{Value: true}
	// False rejects every tuple.
	False ColumnPredicate = LiteralPredicate{Value: false}
)

// LiteralPredicate is a constant. When Col is set it is the constant
// predicate of that column, e.g. "column is unconstrained".
type LiteralPredicate struct {
	Value bool
	Col   *star.Column
}

// ValuePredicate holds when the column equals Val. A Val of star.Null
// matches SQL NULL.
type ValuePredicate struct {
	Col *star.Column
	Val any
}

// ListPredicate is a disjunction of predicates over a single column. Value
// children come first, sorted by value; other children follow in canonical
// order.
type ListPredicate struct {
	Col      *star.Column
	Children []ColumnPredicate
}

// RangePredicate bounds a column. A nil bound is unbounded. Null never
// satisfies a range.
type RangePredicate struct {
	Col            *star.Column
	Lower, Upper   any
	LowerInclusive bool
	UpperInclusive bool
}

// AndPredicate is a conjunction.
type AndPredicate struct {
	Children []Predicate
}

// OrPredicate is a disjunction that spans more than one column.
type OrPredicate struct {
	Children []Predicate
}

// MinusPredicate holds when Plus holds and Minus does not.
type MinusPredicate struct {
	Plus, Minus Predicate
}

// MemberTuplePredicate bounds a compound key such as (year, quarter, month)
// lexicographically. Bounds may be shorter than Cols, in which case only
// the prefix is compared. A nil bound is unbounded.
type MemberTuplePredicate struct {
	Cols           []*star.Column
	Lower, Upper   []any
	LowerInclusive bool
	UpperInclusive bool
}

func (LiteralPredicate) sealed()     {}
func (ValuePredicate) sealed()       {}
func (ListPredicate) sealed()        {}
func (RangePredicate) sealed()       {}
func (AndPredicate) sealed()         {}
func (OrPredicate) sealed()          {}
func (MinusPredicate) sealed()       {}
func (MemberTuplePredicate) sealed() {}

// Eq returns the predicate "col = v".
func Eq(col *star.Column, v any) ColumnPredicate {
	return ValuePredicate{Col: col, Val: star.Normalize(v)}
}

// In returns the predicate "col IN (values)". It collapses to a value
// predicate for a single value and to a false literal for none.
func In(col *star.Column, values ...any) ColumnPredicate {
	set := star.SortedSet(values)
	switch len(set) {
	case 0:
		return LiteralPredicate{Value: false, Col: col}
	case 1:
		return ValuePredicate{Col: col, Val: set[0]}
	}
	children := make([]ColumnPredicate, len(set))
	for i, v := range set {
		children[i] = ValuePredicate{Col: col, Val: v}
	}
	return ListPredicate{Col: col, Children: children}
}

// ColumnTrue returns the literal that leaves col unconstrained.
func ColumnTrue(col *star.Column) ColumnPredicate {
	return LiteralPredicate{Value: true, Col: col}
}

// NewRange returns a range predicate. Pass nil for an unbounded side.
func NewRange(col *star.Column, lower any, lowerInclusive bool, upper any, upperInclusive bool) ColumnPredicate {
	r := RangePredicate{Col: col, LowerInclusive: lowerInclusive, UpperInclusive: upperInclusive}
	if lower != nil {
		r.Lower = star.Normalize(lower)
	}
	if upper != nil {
		r.Upper = star.Normalize(upper)
	}
	return r
}

// NewMemberTuple returns a member tuple predicate over cols.
func NewMemberTuple(cols []*star.Column, lower []any, lowerInclusive bool, upper []any, upperInclusive bool) Predicate {
	norm := func(vs []any) []any {
		if vs == nil {
			return nil
		}
		out := make([]any, len(vs))
		for i, v := range vs {
			out[i] = star.Normalize(v)
		}
		return out
	}
	return MemberTuplePredicate{
		Cols:           append([]*star.Column(nil), cols...),
		Lower:          norm(lower),
		Upper:          norm(upper),
		LowerInclusive: lowerInclusive,
		UpperInclusive: upperInclusive,
	}
}

func (p LiteralPredicate) Columns() []*star.Column { return single(p.Col) }
func (p ValuePredicate) Columns() []*star.Column   { return single(p.Col) }
func (p ListPredicate) Columns() []*star.Column    { return single(p.Col) }
func (p RangePredicate) Columns() []*star.Column   { return single(p.Col) }

func (p AndPredicate) Columns() []*star.Column { return unionColumns(p.Children...) }
func (p OrPredicate) Columns() []*star.Column  { return unionColumns(p.Children...) }
func (p MinusPredicate) Columns() []*star.Column {
	return unionColumns(p.Plus, p.Minus)
}

func (p MemberTuplePredicate) Columns() []*star.Column {
	return sortColumns(append([]*star.Column(nil), p.Cols...))
}

func (p LiteralPredicate) Column() *star.Column { return p.Col }
func (p ValuePredicate) Column() *star.Column   { return p.Col }
func (p ListPredicate) Column() *star.Column    { return p.Col }
func (p RangePredicate) Column() *star.Column   { return p.Col }

// Column returns the single column of a minus over one column, else nil.
func (p MinusPredicate) Column() *star.Column {
	cols := p.Columns()
	if len(cols) == 1 {
		return cols[0]
	}
	return nil
}

func (p LiteralPredicate) String() string     { return ToSQL(p) }
func (p ValuePredicate) String() string       { return ToSQL(p) }
func (p ListPredicate) String() string        { return ToSQL(p) }
func (p RangePredicate) String() string       { return ToSQL(p) }
func (p AndPredicate) String() string         { return ToSQL(p) }
func (p OrPredicate) String() string          { return ToSQL(p) }
func (p MinusPredicate) String() string       { return ToSQL(p) }
func (p MemberTuplePredicate) String() string { return ToSQL(p) }

// BitKey returns the key of p's constrained columns for a star of the
// given column count.
func BitKey(p Predicate, width uint) bitkey.BitKey {
	k := bitkey.New(width)
	for _, c := range p.Columns() {
		k = k.Set(uint(c.Ordinal))
	}
	return k
}

// Values returns the enumerated values of an enumerable column predicate:
// a value predicate, a list made only of value predicates, or a false
// literal. It reports false for anything else.
func Values(p Predicate) ([]any, bool) {
	switch x := p.(type) {
	case ValuePredicate:
		return []any{x.Val}, true
	case ListPredicate:
		out := make([]any, 0, len(x.Children))
		for _, c := range x.Children {
			v, ok := c.(ValuePredicate)
			if !ok {
				return nil, false
			}
			out = append(out, v.Val)
		}
		return out, true
	case LiteralPredicate:
		if !x.Value {
			return []any{}, true
		}
	}
	return nil, false
}

// IsTrue reports whether p is a true literal.
func IsTrue(p Predicate) bool {
	l, ok := p.(LiteralPredicate)
	return ok && l.Value
}

// IsFalse reports whether p is a false literal.
func IsFalse(p Predicate) bool {
	l, ok := p.(LiteralPredicate)
	return ok && !l.Value
}

// Equal reports whether p and q have the same canonical form.
func Equal(p, q Predicate) bool {
	if p == nil || q == nil {
		return p == nil && q == nil
	}
	return ToSQL(p) == ToSQL(q)
}

func single(c *star.Column) []*star.Column {
	if c == nil {
		return nil
	}
	return []*star.Column{c}
}

func unionColumns(ps ...Predicate) []*star.Column {
	seen := make(map[int]bool)
	var out []*star.Column
	for _, p := range ps {
		for _, c := range p.Columns() {
			if !seen[c.Ordinal] {
				seen[c.Ordinal] = true
				out = append(out, c)
			}
		}
	}
	return sortColumns(out)
}

func sortColumns(cols []*star.Column) []*star.Column {
	sort.Slice(cols, func(i, j int) bool { return cols[i].Ordinal < cols[j].Ordinal })
	return cols
}
