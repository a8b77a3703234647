package aggcache

import (
	"github.com/hupe1980/aggcache/predicate"
)

// OptimizePredicates widens the column predicates of a batch before they
// are sent to the database. A value list becomes the whole column when it
// holds more than cfg.MaxConstraints values, or at least
// cfg.OptimizeFillRatio of the column's known cardinality.
func OptimizePredicates(preds []predicate.ColumnPredicate, cfg Config) []predicate.ColumnPredicate {
	out := make([]predicate.ColumnPredicate, len(preds))
	for i, p := range preds {
		out[i] = p
		vals, ok := predicate.Values(p)
		if !ok || predicate.IsTrue(p) {
			continue
		}
		col := p.Column()
		switch {
		case cfg.MaxConstraints > 0 && len(vals) > cfg.MaxConstraints:
			out[i] = predicate.ColumnTrue(col)
		case col.Cardinality > 0 && cfg.OptimizeFillRatio > 0 &&
			float64(len(vals)) >= cfg.OptimizeFillRatio*float64(col.Cardinality):
			out[i] = predicate.ColumnTrue(col)
		}
	}
	return out
}
