package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

// Header is the serializable identity of a segment. It references schema
// objects only by name and is content-addressed: ID is a SHA-256 checksum
// over the logical content, stable across processes.
type Header struct {
	SchemaName     string             `json:"schema"`
	SchemaChecksum string             `json:"schemaChecksum"`
	CubeName       string             `json:"cube"`
	MeasureName    string             `json:"measure"`
	FactTable      string             `json:"fact"`
	Width          uint               `json:"width"`
	Columns        []ColumnConstraint `json:"columns"`
	Compound       []string           `json:"compound,omitempty"`
	CompoundWire   []predicate.Wire   `json:"compoundWire,omitempty"`
	Excluded       []Region           `json:"excluded,omitempty"`
	ID             string             `json:"id"`
}

// NewHeader normalizes h and computes its ID: columns are ordered by
// ordinal, value sets are sorted, compound predicates are ordered by their
// SQL, and excluded regions are deduplicated and ordered.
func NewHeader(h Header) *Header {
	out := h
	out.Columns = make([]ColumnConstraint, len(h.Columns))
	for i, c := range h.Columns {
		out.Columns[i] = c.normalize()
	}
	sort.SliceStable(out.Columns, func(i, j int) bool { return out.Columns[i].Ordinal < out.Columns[j].Ordinal })

	if len(h.Compound) > 0 {
		idx := make([]int, len(h.Compound))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(i, j int) bool { return h.Compound[idx[i]] < h.Compound[idx[j]] })
		out.Compound = make([]string, len(idx))
		if len(h.CompoundWire) == len(h.Compound) {
			out.CompoundWire = make([]predicate.Wire, len(idx))
		} else {
			out.CompoundWire = nil
		}
		for n, i := range idx {
			out.Compound[n] = h.Compound[i]
			if out.CompoundWire != nil {
				out.CompoundWire[n] = h.CompoundWire[i]
			}
		}
	}

	out.Excluded = nil
	seen := make(map[string]bool)
	for _, r := range h.Excluded {
		nr := NewRegion(r...)
		k := nr.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Excluded = append(out.Excluded, nr)
	}
	sort.SliceStable(out.Excluded, func(i, j int) bool { return out.Excluded[i].Key() < out.Excluded[j].Key() })

	out.ID = out.checksum()
	return &out
}

func (h *Header) checksum() string {
	sum := sha256.New()
	field := func(hw hash.Hash, s string) {
		hw.Write([]byte(s))
		hw.Write([]byte{0})
	}
	field(sum, h.SchemaName)
	field(sum, h.SchemaChecksum)
	field(sum, h.CubeName)
	field(sum, h.MeasureName)
	field(sum, h.FactTable)
	field(sum, strconv.FormatUint(uint64(h.Width), 10))
	for _, c := range h.Columns {
		field(sum, "c:"+c.key())
	}
	for _, s := range h.Compound {
		field(sum, "p:"+s)
	}
	for _, r := range h.Excluded {
		field(sum, "x:"+r.Key())
	}
	return hex.EncodeToString(sum.Sum(nil))
}

// Verify reports whether ID matches the content, e.g. for headers read
// back from an external tier.
func (h *Header) Verify() bool { return h.ID == h.checksum() }

// BitKey returns the key of the constrained columns.
func (h *Header) BitKey() bitkey.BitKey {
	k := bitkey.New(h.Width)
	for _, c := range h.Columns {
		k = k.Set(uint(c.Ordinal))
	}
	return k
}

// Expressions returns the constrained column expressions in header order.
func (h *Header) Expressions() []string {
	out := make([]string, len(h.Columns))
	for i, c := range h.Columns {
		out[i] = c.Expression
	}
	return out
}

// Column returns the constraint on expr and its position.
func (h *Header) Column(expr string) (ColumnConstraint, int, bool) {
	for i, c := range h.Columns {
		if c.Expression == expr {
			return c, i, true
		}
	}
	return ColumnConstraint{}, -1, false
}

// FactKey identifies the star of the header.
func (h *Header) FactKey() string {
	return h.SchemaName + "\x00" + h.SchemaChecksum + "\x00" + h.FactTable
}

// MeasureKey identifies the measure of the header within its star.
func (h *Header) MeasureKey() string {
	return h.FactKey() + "\x00" + h.CubeName + "\x00" + h.MeasureName
}

// CompoundKey identifies the compound predicates of the header.
func (h *Header) CompoundKey() string { return strings.Join(h.Compound, "\x00") }

// MeasureKeyOf returns the MeasureKey of the headers of m's segments.
func MeasureKeyOf(st *star.Star, m *star.Measure) string {
	return st.Key() + "\x00" + m.Cube + "\x00" + m.Name
}

// CompoundKeyOf returns the CompoundKey of headers carrying compound.
func CompoundKeyOf(compound []predicate.Predicate) string {
	sqls := make([]string, len(compound))
	for i, p := range compound {
		sqls[i] = predicate.ToSQL(p)
	}
	sort.Strings(sqls)
	return strings.Join(sqls, "\x00")
}

// Contains reports whether the cell at keys, one per header column, is
// covered by the header and not excluded.
func (h *Header) Contains(keys []any) bool {
	if len(keys) != len(h.Columns) {
		return false
	}
	for i, c := range h.Columns {
		if !c.Contains(keys[i]) {
			return false
		}
	}
	exprs := h.Expressions()
	for _, r := range h.Excluded {
		if r.ContainsCell(exprs, keys) {
			return false
		}
	}
	return true
}

// Intersects reports whether region r might share a cell with the header.
// Region columns the header does not constrain do not restrict the
// intersection: the header's cells aggregate over them.
func (h *Header) Intersects(r Region) bool {
	for _, rc := range r {
		hc, _, ok := h.Column(rc.Expression)
		if !ok {
			continue
		}
		if !hc.Intersects(rc) {
			return false
		}
	}
	return true
}

// IsCoveredBy reports whether region r contains every cell of the header.
func (h *Header) IsCoveredBy(r Region) bool {
	for _, hc := range h.Columns {
		rc, ok := r.Constraint(hc.Expression)
		if !ok {
			continue
		}
		if !rc.Covers(hc) {
			return false
		}
	}
	return true
}

// CanConstrain reports whether the header can be narrowed by excluding r
// instead of being dropped: r must restrict at least one header column.
func (h *Header) CanConstrain(r Region) bool {
	for _, rc := range r {
		if rc.Wildcard {
			continue
		}
		if _, _, ok := h.Column(rc.Expression); ok {
			return true
		}
	}
	return false
}

// Constrain returns a header with r, projected onto the header's columns,
// added to the excluded regions. Constraining by a region already excluded
// returns an identical header.
func (h *Header) Constrain(r Region) *Header {
	var projected []ColumnConstraint
	for _, rc := range r {
		if _, _, ok := h.Column(rc.Expression); ok {
			projected = append(projected, rc)
		}
	}
	next := *h
	next.Excluded = append(append([]Region(nil), h.Excluded...), NewRegion(projected...))
	return NewHeader(next)
}

func (h *Header) String() string {
	var sb strings.Builder
	sb.WriteString(h.CubeName)
	sb.WriteByte('.')
	sb.WriteString(h.MeasureName)
	sb.WriteString(" {")
	for i, c := range h.Columns {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(c.key())
	}
	sb.WriteByte('}')
	for _, r := range h.Excluded {
		sb.WriteString(" minus ")
		sb.WriteString(r.String())
	}
	return sb.String()
}
