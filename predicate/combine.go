package predicate

import (
	"sort"

	"github.com/hupe1980/aggcache/star"
)

// And returns the conjunction of ps.
func And(ps ...Predicate) Predicate {
	var flat []Predicate
	for _, p := range ps {
		if a, ok := p.(AndPredicate); ok {
			flat = append(flat, a.Children...)
			continue
		}
		flat = append(flat, p)
	}

	var (
		rest   []Predicate
		sets   = make(map[int][]any)
		colsOf = make(map[int]*star.Column)
	)
	for _, p := range flat {
		if l, ok := p.(LiteralPredicate); ok {
			if !l.Value {
				return False
			}
			continue
		}
		if cp, ok := p.(ColumnPredicate); ok && cp.Column() != nil {
			if vals, ok := Values(cp); ok {
				ord := cp.Column().Ordinal
				if prev, seen := sets[ord]; seen {
					vals = intersectValues(prev, vals)
				}
				sets[ord] = vals
				colsOf[ord] = cp.Column()
				continue
			}
		}
		rest = append(rest, p)
	}

	out := make([]Predicate, 0, len(sets)+len(rest))
	for ord, vals := range sets {
		if len(vals) == 0 {
			return False
		}
		col := colsOf[ord]
		// a value set already rejected by a non-enumerable sibling on the
		// same column can be narrowed here
		var kept []any
		for _, v := range vals {
			if acceptsAll(rest, col, v) {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			return False
		}
		out = append(out, In(col, kept...))
	}
	out = append(out, rest...)
	out = dedupe(out)

	switch len(out) {
	case 0:
		return True
	case 1:
		return out[0]
	}
	return AndPredicate{Children: out}
}

// Or returns the disjunction of ps. Disjunctions over a single column yield
// a ListPredicate.
func Or(ps ...Predicate) Predicate {
	var flat []Predicate
	for _, p := range ps {
		switch x := p.(type) {
		case OrPredicate:
			flat = append(flat, x.Children...)
		case ListPredicate:
			for _, c := range x.Children {
				flat = append(flat, c)
			}
		default:
			flat = append(flat, p)
		}
	}

	var (
		rest   []Predicate
		sets   = make(map[int][]any)
		colsOf = make(map[int]*star.Column)
		order  []int
	)
	for _, p := range flat {
		if l, ok := p.(LiteralPredicate); ok {
			if l.Value {
				if col := commonColumn(flat); col != nil {
					return ColumnTrue(col)
				}
				return True
			}
			continue
		}
		if cp, ok := p.(ColumnPredicate); ok && cp.Column() != nil {
			if vals, ok := Values(cp); ok {
				ord := cp.Column().Ordinal
				if _, seen := sets[ord]; !seen {
					order = append(order, ord)
				}
				sets[ord] = append(sets[ord], vals...)
				colsOf[ord] = cp.Column()
				continue
			}
		}
		rest = append(rest, p)
	}

	out := make([]Predicate, 0, len(order)+len(rest))
	for _, ord := range order {
		out = append(out, In(colsOf[ord], sets[ord]...))
	}
	out = append(out, rest...)
	out = dedupe(out)

	switch len(out) {
	case 0:
		if col := commonColumn(flat); col != nil {
			return LiteralPredicate{Value: false, Col: col}
		}
		return False
	case 1:
		return out[0]
	}

	if col := commonColumn(out); col != nil {
		return newList(col, out)
	}
	return OrPredicate{Children: out}
}

// Minus returns the predicate that holds when plus holds and minus does not.
func Minus(plus, minus Predicate) Predicate {
	switch {
	case IsFalse(minus):
		return plus
	case IsTrue(minus), IsFalse(plus):
		if cp, ok := plus.(ColumnPredicate); ok && cp.Column() != nil {
			return LiteralPredicate{Value: false, Col: cp.Column()}
		}
		return False
	}

	pcp, ok := plus.(ColumnPredicate)
	if ok && pcp.Column() != nil {
		if vals, enumerable := Values(pcp); enumerable {
			if mcp, ok := minus.(ColumnPredicate); ok && mcp.Column() == pcp.Column() {
				var kept []any
				for _, v := range vals {
					if !EvaluateValue(mcp, v) {
						kept = append(kept, v)
					}
				}
				return In(pcp.Column(), kept...)
			}
		}
	}
	return MinusPredicate{Plus: plus, Minus: minus}
}

// newList builds a list over col from column predicates, merging values
// first and keeping the remaining children in canonical order.
func newList(col *star.Column, ps []Predicate) ColumnPredicate {
	var (
		vals   []any
		others []ColumnPredicate
	)
	for _, p := range ps {
		cp := p.(ColumnPredicate)
		if vs, ok := Values(cp); ok {
			vals = append(vals, vs...)
			continue
		}
		others = append(others, cp)
	}
	var children []ColumnPredicate
	if len(vals) > 0 {
		switch in := In(col, vals...).(type) {
		case ListPredicate:
			children = append(children, in.Children...)
		default:
			children = append(children, in)
		}
	}
	sort.SliceStable(others, func(i, j int) bool { return ToSQL(others[i]) < ToSQL(others[j]) })
	children = append(children, others...)
	if len(children) == 1 {
		return children[0]
	}
	return ListPredicate{Col: col, Children: children}
}

// commonColumn returns the column shared by every predicate when all of
// them are column predicates over the same column.
func commonColumn(ps []Predicate) *star.Column {
	var col *star.Column
	for _, p := range ps {
		cp, ok := p.(ColumnPredicate)
		if !ok || cp.Column() == nil {
			if l, isLit := p.(LiteralPredicate); isLit && l.Col == nil {
				continue
			}
			return nil
		}
		if col == nil {
			col = cp.Column()
		} else if col != cp.Column() {
			return nil
		}
	}
	return col
}

// acceptsAll reports whether every predicate in ps that constrains only col
// accepts v.
func acceptsAll(ps []Predicate, col *star.Column, v any) bool {
	for _, p := range ps {
		cp, ok := p.(ColumnPredicate)
		if !ok || cp.Column() != col {
			continue
		}
		if !EvaluateValue(cp, v) {
			return false
		}
	}
	return true
}

func intersectValues(a, b []any) []any {
	b = star.SortedSet(b)
	var out []any
	for _, v := range a {
		if star.Search(b, v) >= 0 {
			out = append(out, v)
		}
	}
	return out
}

// dedupe removes structurally equal predicates and sorts the rest into
// canonical order.
func dedupe(ps []Predicate) []Predicate {
	keys := make([]string, len(ps))
	for i, p := range ps {
		keys[i] = ToSQL(p)
	}
	idx := make([]int, len(ps))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]] < keys[idx[j]] })
	out := make([]Predicate, 0, len(ps))
	last := ""
	for n, i := range idx {
		if n > 0 && keys[i] == last {
			continue
		}
		last = keys[i]
		out = append(out, ps[i])
	}
	return out
}
