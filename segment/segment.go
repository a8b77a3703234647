package segment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

// State is the lifecycle state of a segment.
type State uint8

const (
	Loading State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

// CellStatus qualifies the result of a cell lookup.
type CellStatus uint8

const (
	// CellPresent means the segment holds a value for the cell.
	CellPresent CellStatus = iota
	// CellEmpty means the segment covers the cell but no row produced it.
	CellEmpty
	// CellNotApplicable means the cell is outside the segment or inside an
	// excluded region; another segment or a load must answer it.
	CellNotApplicable
)

func (s CellStatus) String() string {
	switch s {
	case CellPresent:
		return "present"
	case CellEmpty:
		return "empty"
	default:
		return "not-applicable"
	}
}

var (
	// ErrNotLoading is returned when a terminal segment is loaded or failed again.
	ErrNotLoading = errors.New("segment: not loading")
	// ErrNotReady is returned when data is requested from a segment that is
	// not Ready.
	ErrNotReady = errors.New("segment: not ready")
	// ErrLoadFailed is matched by every LoadError.
	ErrLoadFailed = errors.New("segment: load failed")
	// ErrAbandoned is the cause recorded for loads that ended without
	// attaching data.
	ErrAbandoned = errors.New("segment: load abandoned")
)

// LoadError is returned to readers of a Failed segment.
type LoadError struct {
	Segment string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("segment: load of %s failed: %v", e.Segment, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches ErrLoadFailed.
func (e *LoadError) Is(target error) bool { return target == ErrLoadFailed }

// Segment holds one measure's values over a fixed set of column
// constraints.
type Segment struct {
	star       *star.Star
	measure    *star.Measure
	columns    []*star.Column
	predicates []predicate.ColumnPredicate
	compound   []predicate.Predicate
	excluded   []Region
	bitKey     bitkey.BitKey

	mu    sync.RWMutex
	state State
	err   error
	axes  []*Axis
	data  Dataset
	done  chan struct{}
}

// New returns a Loading segment. Predicates are ordered by column ordinal;
// each must constrain a distinct column.
func New(st *star.Star, m *star.Measure, preds []predicate.ColumnPredicate, compound []predicate.Predicate, excluded []Region) (*Segment, error) {
	ps := append([]predicate.ColumnPredicate(nil), preds...)
	sort.SliceStable(ps, func(i, j int) bool { return ordinalOf(ps[i]) < ordinalOf(ps[j]) })
	cols := make([]*star.Column, len(ps))
	for i, p := range ps {
		if p.Column() == nil {
			return nil, fmt.Errorf("segment: predicate %s has no column", p)
		}
		if i > 0 && p.Column() == ps[i-1].Column() {
			return nil, fmt.Errorf("segment: column %s constrained twice", p.Column())
		}
		cols[i] = p.Column()
	}
	comp := append([]predicate.Predicate(nil), compound...)
	sort.SliceStable(comp, func(i, j int) bool { return predicate.ToSQL(comp[i]) < predicate.ToSQL(comp[j]) })
	return &Segment{
		star:       st,
		measure:    m,
		columns:    cols,
		predicates: ps,
		compound:   comp,
		excluded:   append([]Region(nil), excluded...),
		bitKey:     st.BitKey(cols...),
		done:       make(chan struct{}),
	}, nil
}

// Star returns the segment's star.
func (s *Segment) Star() *star.Star { return s.star }

// Measure returns the cached measure.
func (s *Segment) Measure() *star.Measure { return s.measure }

// Columns returns the constrained columns in ordinal order.
func (s *Segment) Columns() []*star.Column { return s.columns }

// Predicates returns one predicate per column.
func (s *Segment) Predicates() []predicate.ColumnPredicate { return s.predicates }

// Compound returns the multi-column predicates the segment was loaded with.
func (s *Segment) Compound() []predicate.Predicate { return s.compound }

// ExcludedRegions returns the regions invalidated by partial flushes.
func (s *Segment) ExcludedRegions() []Region { return s.excluded }

// BitKey returns the key of the constrained columns.
func (s *Segment) BitKey() bitkey.BitKey { return s.bitKey }

// State returns the current lifecycle state.
func (s *Segment) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed when the segment leaves Loading.
func (s *Segment) Done() <-chan struct{} { return s.done }

// SetData attaches axes and data and moves the segment to Ready.
func (s *Segment) SetData(axes []*Axis, data Dataset) error {
	if len(axes) != len(s.columns) {
		return fmt.Errorf("segment: %d axes for %d columns", len(axes), len(s.columns))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loading {
		return ErrNotLoading
	}
	s.axes = axes
	s.data = data
	s.state = Ready
	close(s.done)
	return nil
}

// Fail moves a Loading segment to Failed. It reports whether the segment
// was still Loading.
func (s *Segment) Fail(err error) bool {
	if err == nil {
		err = ErrAbandoned
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loading {
		return false
	}
	s.state = Failed
	s.err = err
	close(s.done)
	return true
}

// Err returns the failure cause of a Failed segment.
func (s *Segment) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Wait blocks until the segment leaves Loading. It returns a LoadError if
// the load failed.
func (s *Segment) Wait(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == Failed {
		return &LoadError{Segment: s.describe(), Err: s.err}
	}
	return nil
}

// Axes returns the axes of a Ready segment.
func (s *Segment) Axes() []*Axis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.axes
}

// Data returns the dataset of a Ready segment.
func (s *Segment) Data() Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Lookup waits for the segment and returns the value of the cell at keys.
func (s *Segment) Lookup(ctx context.Context, keys []any) (any, CellStatus, error) {
	if err := s.Wait(ctx); err != nil {
		return nil, CellNotApplicable, err
	}
	v, st := s.CellValue(keys)
	return v, st, nil
}

// CellValue returns the value of the cell at keys, one key per column. The
// segment must be Ready; other states yield CellNotApplicable.
func (s *Segment) CellValue(keys []any) (any, CellStatus) {
	if len(keys) != len(s.columns) {
		return nil, CellNotApplicable
	}
	s.mu.RLock()
	ready, axes, data := s.state == Ready, s.axes, s.data
	s.mu.RUnlock()
	if !ready {
		return nil, CellNotApplicable
	}

	key := make(CellKey, len(keys))
	missed := false
	for i, k := range keys {
		off := axes[i].Offset(k)
		if off >= 0 {
			key[i] = off
			continue
		}
		if !axes[i].WouldContain(k) {
			return nil, CellNotApplicable
		}
		missed = true
	}
	if s.IsExcluded(keys) {
		return nil, CellNotApplicable
	}
	if missed {
		return nil, CellEmpty
	}
	v, ok := data.Get(key)
	if !ok {
		return nil, CellEmpty
	}
	return v, CellPresent
}

// Covers reports whether the cell at keys falls within the segment's
// predicates and outside its excluded regions.
func (s *Segment) Covers(keys []any) bool {
	if len(keys) != len(s.columns) {
		return false
	}
	for i, p := range s.predicates {
		if !predicate.EvaluateValue(p, keys[i]) {
			return false
		}
	}
	return !s.IsExcluded(keys)
}

// IsExcluded reports whether the cell at keys lies in an excluded region.
func (s *Segment) IsExcluded(keys []any) bool {
	if len(s.excluded) == 0 {
		return false
	}
	exprs := s.expressions()
	for _, r := range s.excluded {
		if r.ContainsCell(exprs, keys) {
			return true
		}
	}
	return false
}

func (s *Segment) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.describe() + " " + s.state.String()
}

func (s *Segment) describe() string {
	var sb strings.Builder
	sb.WriteString(s.measure.String())
	sb.WriteString(" {")
	for i, p := range s.predicates {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Column().Name)
		sb.WriteByte('=')
		if vals, ok := predicate.Values(p); ok {
			parts := make([]string, len(vals))
			for j, v := range vals {
				parts[j] = star.Format(v)
			}
			sb.WriteString("{" + strings.Join(parts, ",") + "}")
		} else if predicate.IsTrue(p) {
			sb.WriteByte('*')
		} else {
			sb.WriteString(predicate.ToSQL(p))
		}
	}
	sb.WriteByte('}')
	for _, c := range s.compound {
		sb.WriteString(" AND ")
		sb.WriteString(predicate.ToSQL(c))
	}
	return sb.String()
}

func (s *Segment) expressions() []string {
	exprs := make([]string, len(s.columns))
	for i, c := range s.columns {
		exprs[i] = c.Expression
	}
	return exprs
}

func ordinalOf(p predicate.ColumnPredicate) int {
	if c := p.Column(); c != nil {
		return c.Ordinal
	}
	return -1
}
