package predicate

import (
	"fmt"

	"github.com/hupe1980/aggcache/star"
)

// Tuple binds column ordinals to values. Missing columns read as Null.
type Tuple map[int]any

// Evaluate evaluates p against values aligned with p.Columns().
func Evaluate(p Predicate, values []any) bool {
	cols := p.Columns()
	if len(values) != len(cols) {
		panic(fmt.Sprintf("predicate: %d values for %d columns", len(values), len(cols)))
	}
	t := make(Tuple, len(cols))
	for i, c := range cols {
		t[c.Ordinal] = values[i]
	}
	return EvaluateTuple(p, t)
}

// EvaluateTuple evaluates p against a tuple that may bind more columns than
// p constrains.
func EvaluateTuple(p Predicate, t Tuple) bool {
	return eval(p, func(c *star.Column) any {
		v, ok := t[c.Ordinal]
		if !ok {
			return star.Null
		}
		return star.Normalize(v)
	})
}

// EvaluateValue evaluates a column predicate against a single value.
func EvaluateValue(p ColumnPredicate, v any) bool {
	v = star.Normalize(v)
	return eval(p, func(*star.Column) any { return v })
}

func eval(p Predicate, lookup func(*star.Column) any) bool {
	switch x := p.(type) {
	case LiteralPredicate:
		return x.Value
	case ValuePredicate:
		return star.Equal(lookup(x.Col), x.Val)
	case ListPredicate:
		for _, c := range x.Children {
			if eval(c, lookup) {
				return true
			}
		}
		return false
	case RangePredicate:
		return inRange(lookup(x.Col), x)
	case AndPredicate:
		for _, c := range x.Children {
			if !eval(c, lookup) {
				return false
			}
		}
		return true
	case OrPredicate:
		for _, c := range x.Children {
			if eval(c, lookup) {
				return true
			}
		}
		return false
	case MinusPredicate:
		return eval(x.Plus, lookup) && !eval(x.Minus, lookup)
	case MemberTuplePredicate:
		vals := make([]any, len(x.Cols))
		for i, c := range x.Cols {
			vals[i] = lookup(c)
		}
		return inTupleRange(vals, x)
	default:
		panic(fmt.Sprintf("predicate: unknown variant %T", p))
	}
}

func inRange(v any, r RangePredicate) bool {
	if star.IsNull(v) {
		return false
	}
	if r.Lower != nil {
		c := star.Compare(v, r.Lower)
		if c < 0 || (c == 0 && !r.LowerInclusive) {
			return false
		}
	}
	if r.Upper != nil {
		c := star.Compare(v, r.Upper)
		if c > 0 || (c == 0 && !r.UpperInclusive) {
			return false
		}
	}
	return true
}

func inTupleRange(vals []any, m MemberTuplePredicate) bool {
	for _, v := range vals {
		if star.IsNull(v) {
			return false
		}
	}
	if m.Lower != nil {
		c := comparePrefix(vals, m.Lower)
		if c < 0 || (c == 0 && !m.LowerInclusive) {
			return false
		}
	}
	if m.Upper != nil {
		c := comparePrefix(vals, m.Upper)
		if c > 0 || (c == 0 && !m.UpperInclusive) {
			return false
		}
	}
	return true
}

// comparePrefix compares vals with bound over the bound's length.
func comparePrefix(vals, bound []any) int {
	for i := 0; i < len(bound) && i < len(vals); i++ {
		if c := star.Compare(vals[i], bound[i]); c != 0 {
			return c
		}
	}
	return 0
}
