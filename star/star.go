package star

import (
	"fmt"
	"sync"

	"github.com/hupe1980/aggcache/bitkey"
)

// Datatype is the SQL type family of a column or measure.
type Datatype uint8

const (
	String Datatype = iota
	Integer
	Numeric
	Boolean
)

func (d Datatype) String() string {
	switch d {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Numeric:
		return "numeric"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("datatype(%d)", d)
	}
}

// Column is a constrainable column of a star.
type Column struct {
	// Ordinal is the column's bit position in the star's bit-keys.
	Ordinal int
	// Name is a short display name such as "gender".
	Name string
	// Expression is the SQL expression, e.g. `"customer"."gender"`. It is
	// the column's identity in headers.
	Expression string
	// Table is the table alias the column belongs to.
	Table    string
	Datatype Datatype
	// Cardinality is the number of distinct values, or -1 if unknown.
	Cardinality int
}

func (c *Column) String() string { return c.Name }

// Measure is an aggregated fact column.
type Measure struct {
	Cube       string
	Name       string
	Expression string
	Aggregator Aggregator
	Datatype   Datatype
}

func (m *Measure) String() string { return m.Cube + "." + m.Name }

// Star is a fact table plus the columns that can constrain it.
type Star struct {
	SchemaName     string
	SchemaChecksum string
	FactTable      string

	mu       sync.RWMutex
	columns  []*Column
	byExpr   map[string]*Column
	measures map[string]*Measure
}

// New returns an empty star for the given schema and fact table.
func New(schemaName, schemaChecksum, factTable string) *Star {
	return &Star{
		SchemaName:     schemaName,
		SchemaChecksum: schemaChecksum,
		FactTable:      factTable,
		byExpr:         make(map[string]*Column),
		measures:       make(map[string]*Measure),
	}
}

// AddColumn registers a column and returns it. Adding a column with an
// expression that is already registered returns the existing column.
func (s *Star) AddColumn(name, expression, table string, dt Datatype, cardinality int) *Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byExpr[expression]; ok {
		return c
	}
	c := &Column{
		Ordinal:     len(s.columns),
		Name:        name,
		Expression:  expression,
		Table:       table,
		Datatype:    dt,
		Cardinality: cardinality,
	}
	s.columns = append(s.columns, c)
	s.byExpr[expression] = c
	return c
}

// AddMeasure registers a measure of the given cube.
func (s *Star) AddMeasure(cube, name, expression string, agg Aggregator, dt Datatype) *Measure {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &Measure{Cube: cube, Name: name, Expression: expression, Aggregator: agg, Datatype: dt}
	s.measures[measureKey(cube, name)] = m
	return m
}

// Measure looks a measure up by cube and name.
func (s *Star) Measure(cube, name string) (*Measure, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.measures[measureKey(cube, name)]
	return m, ok
}

// Column returns the column at ordinal.
func (s *Star) Column(ordinal int) *Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columns[ordinal]
}

// ColumnByExpression looks a column up by its expression.
func (s *Star) ColumnByExpression(expr string) (*Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byExpr[expr]
	return c, ok
}

// ColumnCount is the width of every bit-key derived from this star.
func (s *Star) ColumnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.columns)
}

// BitKey returns a key with the ordinals of cols set.
func (s *Star) BitKey(cols ...*Column) bitkey.BitKey {
	k := bitkey.New(uint(s.ColumnCount()))
	for _, c := range cols {
		k = k.Set(uint(c.Ordinal))
	}
	return k
}

// ColumnsOf returns the columns whose ordinals are set in k, in ordinal order.
func (s *Star) ColumnsOf(k bitkey.BitKey) []*Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos := k.Positions()
	out := make([]*Column, 0, len(pos))
	for _, p := range pos {
		out = append(out, s.columns[p])
	}
	return out
}

// Key identifies the star across processes.
func (s *Star) Key() string {
	return s.SchemaName + "\x00" + s.SchemaChecksum + "\x00" + s.FactTable
}

func (s *Star) String() string {
	return fmt.Sprintf("%s[%s]", s.SchemaName, s.FactTable)
}

func measureKey(cube, name string) string { return cube + "\x00" + name }
