package aggcache

import (
	"sort"
	"strings"

	"github.com/hupe1980/aggcache/manager"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

// CellRequest identifies one cell: a measure and one value per constrained
// column, under optional compound predicates (e.g. a slicer over several
// columns).
type CellRequest struct {
	star          *star.Star
	measure       *star.Measure
	columns       []*star.Column
	values        []any
	compound      []predicate.Predicate
	unsatisfiable bool
}

// NewCellRequest returns a request for measure m of st with no column
// constrained yet.
func NewCellRequest(st *star.Star, m *star.Measure, compound ...predicate.Predicate) *CellRequest {
	return &CellRequest{
		star:     st,
		measure:  m,
		compound: compound,
	}
}

// Constrain sets the value of col. Constraining a column twice to
// different values makes the request unsatisfiable.
func (r *CellRequest) Constrain(col *star.Column, v any) *CellRequest {
	v = star.Normalize(v)
	i := sort.Search(len(r.columns), func(i int) bool { return r.columns[i].Ordinal >= col.Ordinal })
	if i < len(r.columns) && r.columns[i] == col {
		if star.Compare(r.values[i], v) != 0 {
			r.unsatisfiable = true
		}
		return r
	}
	r.columns = append(r.columns, nil)
	copy(r.columns[i+1:], r.columns[i:])
	r.columns[i] = col
	r.values = append(r.values, nil)
	copy(r.values[i+1:], r.values[i:])
	r.values[i] = v
	return r
}

// Star returns the request's star.
func (r *CellRequest) Star() *star.Star { return r.star }

// Measure returns the requested measure.
func (r *CellRequest) Measure() *star.Measure { return r.measure }

// Columns returns the constrained columns in ordinal order.
func (r *CellRequest) Columns() []*star.Column { return r.columns }

// Values returns the column values, indexed like Columns.
func (r *CellRequest) Values() []any { return r.values }

// Compound returns the compound predicates.
func (r *CellRequest) Compound() []predicate.Predicate { return r.compound }

// Unsatisfiable reports whether the constraints contradict each other.
func (r *CellRequest) Unsatisfiable() bool {
	if r.unsatisfiable {
		return true
	}
	// a compound predicate over constrained columns only can be decided now
	for _, p := range r.compound {
		if decided, ok := r.evaluate(p); ok && !decided {
			return true
		}
	}
	return false
}

func (r *CellRequest) evaluate(p predicate.Predicate) (bool, bool) {
	cols := p.Columns()
	vals := make([]any, len(cols))
	for i, c := range cols {
		j := r.indexOf(c)
		if j < 0 {
			return false, false
		}
		vals[i] = r.values[j]
	}
	return predicate.Evaluate(p, vals), true
}

func (r *CellRequest) indexOf(col *star.Column) int {
	for i, c := range r.columns {
		if c == col {
			return i
		}
	}
	return -1
}

// key identifies the request for deduplication.
func (r *CellRequest) key() string {
	var sb strings.Builder
	sb.WriteString(r.star.Key())
	sb.WriteByte(0)
	sb.WriteString(r.measure.String())
	for i, c := range r.columns {
		sb.WriteByte(0)
		sb.WriteString(c.Expression)
		sb.WriteByte('=')
		sb.WriteString(star.EncodeValue(r.values[i]))
	}
	sb.WriteByte(0)
	sb.WriteString(r.compoundKey())
	return sb.String()
}

func (r *CellRequest) compoundKey() string { return segment.CompoundKeyOf(r.compound) }

func (r *CellRequest) lookup() manager.Lookup {
	return manager.Lookup{
		Star:     r.star,
		Measure:  r.measure,
		Columns:  r.columns,
		Keys:     r.values,
		Compound: r.compound,
	}
}
