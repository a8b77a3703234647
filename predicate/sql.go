package predicate

import (
	"fmt"
	"strings"

	"github.com/hupe1980/aggcache/star"
)

// ToSQL renders p as an SQL boolean expression over column expressions.
// The output is deterministic: equal predicates always render identically.
func ToSQL(p Predicate) string {
	var sb strings.Builder
	writeSQL(&sb, p)
	return sb.String()
}

func writeSQL(sb *strings.Builder, p Predicate) {
	switch x := p.(type) {
	case LiteralPredicate:
		if x.Value {
			sb.WriteString("1 = 1")
		} else {
			sb.WriteString("1 = 0")
		}
	case ValuePredicate:
		writeEquals(sb, x.Col, x.Val)
	case ListPredicate:
		writeList(sb, x)
	case RangePredicate:
		writeRange(sb, x)
	case AndPredicate:
		writeJoined(sb, x.Children, " AND ")
	case OrPredicate:
		writeJoined(sb, x.Children, " OR ")
	case MinusPredicate:
		sb.WriteByte('(')
		writeSQL(sb, x.Plus)
		sb.WriteString(" AND NOT (")
		writeSQL(sb, x.Minus)
		sb.WriteString("))")
	case MemberTuplePredicate:
		writeMemberTuple(sb, x)
	default:
		panic(fmt.Sprintf("predicate: unknown variant %T", p))
	}
}

func writeEquals(sb *strings.Builder, col *star.Column, v any) {
	sb.WriteString(col.Expression)
	if star.IsNull(v) {
		sb.WriteString(" IS NULL")
		return
	}
	sb.WriteString(" = ")
	sb.WriteString(star.FormatSQL(v))
}

func writeList(sb *strings.Builder, l ListPredicate) {
	var (
		vals   []any
		others []ColumnPredicate
	)
	for _, c := range l.Children {
		if v, ok := c.(ValuePredicate); ok {
			vals = append(vals, v.Val)
			continue
		}
		others = append(others, c)
	}
	vals = star.SortedSet(vals)

	hasNull := len(vals) > 0 && star.IsNull(vals[len(vals)-1])
	useIn := len(vals) > 1 && !hasNull
	terms := len(others)
	if useIn {
		terms++
	} else {
		terms += len(vals)
	}
	if terms == 1 && len(others) == 0 && len(vals) == 1 {
		writeEquals(sb, l.Col, vals[0])
		return
	}
	if terms == 1 && useIn {
		writeIn(sb, l.Col, vals)
		return
	}

	sb.WriteByte('(')
	n := 0
	sep := func() {
		if n > 0 {
			sb.WriteString(" OR ")
		}
		n++
	}
	if useIn {
		sep()
		writeIn(sb, l.Col, vals)
	} else {
		for _, v := range vals {
			sep()
			writeEquals(sb, l.Col, v)
		}
	}
	for _, o := range others {
		sep()
		writeSQL(sb, o)
	}
	sb.WriteByte(')')
}

func writeIn(sb *strings.Builder, col *star.Column, vals []any) {
	sb.WriteString(col.Expression)
	sb.WriteString(" IN (")
	for i, v := range vals {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(star.FormatSQL(v))
	}
	sb.WriteByte(')')
}

func writeRange(sb *strings.Builder, r RangePredicate) {
	var parts []string
	if r.Lower != nil {
		op := " > "
		if r.LowerInclusive {
			op = " >= "
		}
		parts = append(parts, r.Col.Expression+op+star.FormatSQL(r.Lower))
	}
	if r.Upper != nil {
		op := " < "
		if r.UpperInclusive {
			op = " <= "
		}
		parts = append(parts, r.Col.Expression+op+star.FormatSQL(r.Upper))
	}
	switch len(parts) {
	case 0:
		sb.WriteString(r.Col.Expression)
		sb.WriteString(" IS NOT NULL")
	case 1:
		sb.WriteString(parts[0])
	default:
		sb.WriteString("(" + parts[0] + " AND " + parts[1] + ")")
	}
}

func writeJoined(sb *strings.Builder, ps []Predicate, sep string) {
	sb.WriteByte('(')
	for i, c := range ps {
		if i > 0 {
			sb.WriteString(sep)
		}
		writeSQL(sb, c)
	}
	sb.WriteByte(')')
}

func writeMemberTuple(sb *strings.Builder, m MemberTuplePredicate) {
	var parts []string
	if m.Lower != nil {
		parts = append(parts, tupleBound(m.Cols, m.Lower, ">", m.LowerInclusive))
	}
	if m.Upper != nil {
		parts = append(parts, tupleBound(m.Cols, m.Upper, "<", m.UpperInclusive))
	}
	switch len(parts) {
	case 0:
		sb.WriteString("1 = 1")
	case 1:
		sb.WriteString(parts[0])
	default:
		sb.WriteString("(" + parts[0] + " AND " + parts[1] + ")")
	}
}

// tupleBound expands a lexicographic bound, e.g. for (y, q) >= (1997, 'Q2'):
// (y > 1997 OR (y = 1997 AND q >= 'Q2')).
func tupleBound(cols []*star.Column, bound []any, op string, inclusive bool) string {
	n := len(bound)
	if n > len(cols) {
		n = len(cols)
	}
	var build func(i int) string
	build = func(i int) string {
		expr := cols[i].Expression
		lit := star.FormatSQL(bound[i])
		if i == n-1 {
			last := op
			if inclusive {
				last += "="
			}
			return expr + " " + last + " " + lit
		}
		return "(" + expr + " " + op + " " + lit + " OR (" + expr + " = " + lit + " AND " + build(i+1) + "))"
	}
	if n == 0 {
		return "1 = 1"
	}
	return build(0)
}
