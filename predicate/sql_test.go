package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/aggcache/star"
)

func TestToSQL(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		p    Predicate
		want string
	}{
		{"single value list", In(f.state, "CA"), `"store"."state" = 'CA'`},
		{"in list sorted", In(f.state, "WA", "CA", "OR"), `"store"."state" IN ('CA', 'OR', 'WA')`},
		{"null value", Eq(f.state, nil), `"store"."state" IS NULL`},
		{"null falls back", In(f.state, "WA", star.Null, "CA"),
			`("store"."state" = 'CA' OR "store"."state" = 'WA' OR "store"."state" IS NULL)`},
		{"range", NewRange(f.year, 1997, true, 1999, false), `("time"."year" >= 1997 AND "time"."year" < 1999)`},
		{"open range", NewRange(f.year, nil, false, 1999, true), `"time"."year" <= 1999`},
		{"mixed columns", Or(Eq(f.gender, "F"), In(f.state, "CA", "OR")),
			`("customer"."gender" = 'F' OR "store"."state" IN ('CA', 'OR'))`},
		{"nested", And(Eq(f.year, 1997), Or(Eq(f.gender, "F"), Eq(f.state, "CA"))),
			`("time"."year" = 1997 AND ("customer"."gender" = 'F' OR "store"."state" = 'CA'))`},
		{"minus", Minus(Eq(f.year, 1997), Eq(f.gender, "M")),
			`("time"."year" = 1997 AND NOT ("customer"."gender" = 'M'))`},
		{"member tuple", NewMemberTuple([]*star.Column{f.year, f.state}, []any{1997, "OR"}, true, nil, false),
			`("time"."year" > 1997 OR ("time"."year" = 1997 AND "store"."state" >= 'OR'))`},
		{"literals", True, "1 = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSQL(tt.p))
		})
	}
}

func TestToSQLIsStable(t *testing.T) {
	f := newFixture()
	a := Or(Eq(f.state, "WA"), Eq(f.state, "CA"), Eq(f.state, "OR"))
	b := Or(Eq(f.state, "OR"), Or(Eq(f.state, "CA"), Eq(f.state, "WA")))
	assert.Equal(t, ToSQL(a), ToSQL(b))
	assert.True(t, Equal(a, b))
}
