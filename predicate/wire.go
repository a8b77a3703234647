package predicate

import (
	"fmt"

	"github.com/hupe1980/aggcache/star"
)

// Wire kinds.
const (
	KindLiteral     = "literal"
	KindValue       = "value"
	KindList        = "list"
	KindRange       = "range"
	KindAnd         = "and"
	KindOr          = "or"
	KindMinus       = "minus"
	KindMemberTuple = "member-tuple"
)

// Wire is the serializable form of a predicate tree. Columns are referenced
// by expression so a wire tree can be rebuilt against any process's star.
type Wire struct {
	Kind           string      `json:"kind"`
	Column         string      `json:"column,omitempty"`
	Columns        []string    `json:"columns,omitempty"`
	Bool           bool        `json:"bool,omitempty"`
	Value          star.Values `json:"value,omitempty"`
	Lower          star.Values `json:"lower,omitempty"`
	Upper          star.Values `json:"upper,omitempty"`
	HasLower       bool        `json:"hasLower,omitempty"`
	HasUpper       bool        `json:"hasUpper,omitempty"`
	LowerInclusive bool        `json:"lowerInclusive,omitempty"`
	UpperInclusive bool        `json:"upperInclusive,omitempty"`
	Children       []Wire      `json:"children,omitempty"`
}

// Encode converts p to its wire form.
func Encode(p Predicate) Wire {
	switch x := p.(type) {
	case LiteralPredicate:
		return Wire{Kind: KindLiteral, Bool: x.Value, Column: exprOf(x.Col)}
	case ValuePredicate:
		return Wire{Kind: KindValue, Column: exprOf(x.Col), Value: star.Values{x.Val}}
	case ListPredicate:
		w := Wire{Kind: KindList, Column: exprOf(x.Col)}
		for _, c := range x.Children {
			w.Children = append(w.Children, Encode(c))
		}
		return w
	case RangePredicate:
		w := Wire{
			Kind:           KindRange,
			Column:         exprOf(x.Col),
			LowerInclusive: x.LowerInclusive,
			UpperInclusive: x.UpperInclusive,
		}
		if x.Lower != nil {
			w.HasLower, w.Lower = true, star.Values{x.Lower}
		}
		if x.Upper != nil {
			w.HasUpper, w.Upper = true, star.Values{x.Upper}
		}
		return w
	case AndPredicate:
		return Wire{Kind: KindAnd, Children: encodeAll(x.Children)}
	case OrPredicate:
		return Wire{Kind: KindOr, Children: encodeAll(x.Children)}
	case MinusPredicate:
		return Wire{Kind: KindMinus, Children: []Wire{Encode(x.Plus), Encode(x.Minus)}}
	case MemberTuplePredicate:
		w := Wire{
			Kind:           KindMemberTuple,
			LowerInclusive: x.LowerInclusive,
			UpperInclusive: x.UpperInclusive,
		}
		for _, c := range x.Cols {
			w.Columns = append(w.Columns, c.Expression)
		}
		if x.Lower != nil {
			w.HasLower, w.Lower = true, star.Values(x.Lower)
		}
		if x.Upper != nil {
			w.HasUpper, w.Upper = true, star.Values(x.Upper)
		}
		return w
	default:
		panic(fmt.Sprintf("predicate: unknown variant %T", p))
	}
}

// Decode rebuilds a predicate from its wire form, resolving columns
// against s.
func Decode(w Wire, s *star.Star) (Predicate, error) {
	col := func(expr string) (*star.Column, error) {
		if expr == "" {
			return nil, nil
		}
		c, ok := s.ColumnByExpression(expr)
		if !ok {
			return nil, fmt.Errorf("predicate: unknown column %q", expr)
		}
		return c, nil
	}
	switch w.Kind {
	case KindLiteral:
		c, err := col(w.Column)
		if err != nil {
			return nil, err
		}
		return LiteralPredicate{Value: w.Bool, Col: c}, nil
	case KindValue:
		c, err := col(w.Column)
		if err != nil {
			return nil, err
		}
		if c == nil || len(w.Value) != 1 {
			return nil, fmt.Errorf("predicate: malformed value predicate")
		}
		return ValuePredicate{Col: c, Val: w.Value[0]}, nil
	case KindList:
		c, err := col(w.Column)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("predicate: list without column")
		}
		l := ListPredicate{Col: c}
		for _, cw := range w.Children {
			cp, err := Decode(cw, s)
			if err != nil {
				return nil, err
			}
			child, ok := cp.(ColumnPredicate)
			if !ok {
				return nil, fmt.Errorf("predicate: list child %q is not a column predicate", cw.Kind)
			}
			l.Children = append(l.Children, child)
		}
		return l, nil
	case KindRange:
		c, err := col(w.Column)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("predicate: range without column")
		}
		r := RangePredicate{Col: c, LowerInclusive: w.LowerInclusive, UpperInclusive: w.UpperInclusive}
		if w.HasLower && len(w.Lower) == 1 {
			r.Lower = w.Lower[0]
		}
		if w.HasUpper && len(w.Upper) == 1 {
			r.Upper = w.Upper[0]
		}
		return r, nil
	case KindAnd, KindOr:
		children := make([]Predicate, 0, len(w.Children))
		for _, cw := range w.Children {
			cp, err := Decode(cw, s)
			if err != nil {
				return nil, err
			}
			children = append(children, cp)
		}
		if w.Kind == KindAnd {
			return AndPredicate{Children: children}, nil
		}
		return OrPredicate{Children: children}, nil
	case KindMinus:
		if len(w.Children) != 2 {
			return nil, fmt.Errorf("predicate: minus needs 2 operands, got %d", len(w.Children))
		}
		plus, err := Decode(w.Children[0], s)
		if err != nil {
			return nil, err
		}
		minus, err := Decode(w.Children[1], s)
		if err != nil {
			return nil, err
		}
		return MinusPredicate{Plus: plus, Minus: minus}, nil
	case KindMemberTuple:
		m := MemberTuplePredicate{LowerInclusive: w.LowerInclusive, UpperInclusive: w.UpperInclusive}
		for _, expr := range w.Columns {
			c, err := col(expr)
			if err != nil {
				return nil, err
			}
			m.Cols = append(m.Cols, c)
		}
		if w.HasLower {
			m.Lower = append([]any{}, w.Lower...)
		}
		if w.HasUpper {
			m.Upper = append([]any{}, w.Upper...)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("predicate: unknown wire kind %q", w.Kind)
	}
}

func encodeAll(ps []Predicate) []Wire {
	out := make([]Wire, len(ps))
	for i, p := range ps {
		out[i] = Encode(p)
	}
	return out
}

func exprOf(c *star.Column) string {
	if c == nil {
		return ""
	}
	return c.Expression
}

// DecodeDetached rebuilds a wire tree against a private star that holds
// only the columns the tree names. The result can be evaluated but its
// columns belong to no real schema.
func DecodeDetached(w Wire) (Predicate, error) {
	s := star.New("", "", "")
	var register func(w Wire)
	register = func(w Wire) {
		if w.Column != "" {
			s.AddColumn(w.Column, w.Column, "", star.String, -1)
		}
		for _, c := range w.Columns {
			s.AddColumn(c, c, "", star.String, -1)
		}
		for _, c := range w.Children {
			register(c)
		}
	}
	register(w)
	return Decode(w, s)
}
