package predicate

import "github.com/hupe1980/aggcache/star"

// MightIntersect reports whether some tuple could satisfy both p and q. It
// is exact for enumerable predicates over the same column and conservative
// (true) where the answer would need a solver.
func MightIntersect(p, q Predicate) bool {
	if IsFalse(p) || IsFalse(q) {
		return false
	}
	if IsTrue(p) || IsTrue(q) {
		return true
	}
	pc, pok := p.(ColumnPredicate)
	qc, qok := q.(ColumnPredicate)
	if !pok || !qok || pc.Column() == nil || pc.Column() != qc.Column() {
		return true
	}
	if vals, ok := Values(pc); ok {
		return anyAccepted(vals, qc)
	}
	if vals, ok := Values(qc); ok {
		return anyAccepted(vals, pc)
	}
	if pr, ok := pc.(RangePredicate); ok {
		if qr, ok := qc.(RangePredicate); ok {
			return rangesOverlap(pr, qr)
		}
	}
	return true
}

func anyAccepted(vals []any, p ColumnPredicate) bool {
	for _, v := range vals {
		if EvaluateValue(p, v) {
			return true
		}
	}
	return false
}

func rangesOverlap(a, b RangePredicate) bool {
	// a lies entirely below b
	if a.Upper != nil && b.Lower != nil {
		c := star.Compare(a.Upper, b.Lower)
		if c < 0 || (c == 0 && !(a.UpperInclusive && b.LowerInclusive)) {
			return false
		}
	}
	// b lies entirely below a
	if b.Upper != nil && a.Lower != nil {
		c := star.Compare(b.Upper, a.Lower)
		if c < 0 || (c == 0 && !(b.UpperInclusive && a.LowerInclusive)) {
			return false
		}
	}
	return true
}
