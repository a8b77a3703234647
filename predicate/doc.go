// Package predicate implements the boolean algebra used to describe which
// column values a cached segment covers.
//
// Predicates form a closed sum type: the Predicate interface is sealed and
// its variants are LiteralPredicate, ValuePredicate, ListPredicate,
// RangePredicate, AndPredicate, OrPredicate, MinusPredicate and
// MemberTuplePredicate. Algebra, evaluation, SQL rendering, overlap tests
// and wire encoding are free functions that switch over the variants.
//
// Predicates are immutable. And, Or and Minus return new trees and perform
// light simplification: literals are absorbed, nested conjunctions and
// disjunctions are flattened, and enumerable constraints on the same
// column are merged into a single value list.
//
//	gender := st.AddColumn("gender", `"customer"."gender"`, "customer", star.String, 2)
//	p := predicate.Or(predicate.Eq(gender, "M"), predicate.Eq(gender, "F"))
//	predicate.ToSQL(p) // "customer"."gender" IN ('F', 'M')
package predicate
