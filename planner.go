package aggcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/aggcache/loader"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

// ErrPlan is returned when a load cannot be rendered as a query.
var ErrPlan = errors.New("cannot plan load")

// Statement is an aggregate query ready to run.
type Statement struct {
	SQL  string
	Args []any
	// Types selects the accessor of each result column. Nil selects
	// loader.DefaultTypes.
	Types []loader.ColumnType
}

// Planner renders the query that loads a list of grouping sets. Result
// rows must hold the detailed columns, then one value per measure, then one
// GROUPING indicator per rollup column.
type Planner interface {
	Plan(gsl *loader.GroupingSetsList) (Statement, error)
	// SupportsGroupingSets reports whether Plan accepts more than one
	// grouping set.
	SupportsGroupingSets() bool
}

// RowSource executes statements.
type RowSource interface {
	Query(ctx context.Context, stmt Statement) (loader.Rows, error)
}

// SQLRowSource runs statements on a database/sql handle.
type SQLRowSource struct {
	DB *sql.DB
}

// Query implements RowSource.
func (s SQLRowSource) Query(ctx context.Context, stmt Statement) (loader.Rows, error) {
	rows, err := s.DB.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	r, err := loader.NewSQLRows(rows)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return r, nil
}

// FactTablePlanner queries the fact table of the star directly.
type FactTablePlanner struct {
	// Joins maps a dimension table to the clause joining it to the fact
	// table, e.g. "JOIN store ON store.store_id = sales_fact.store_id".
	// Columns of the fact table itself need no entry.
	Joins map[string]string
	// GroupingSets enables GROUP BY GROUPING SETS. Leave it off for
	// databases without it, such as SQLite.
	GroupingSets bool
}

// SupportsGroupingSets implements Planner.
func (p FactTablePlanner) SupportsGroupingSets() bool { return p.GroupingSets }

// Plan implements Planner.
func (p FactTablePlanner) Plan(gsl *loader.GroupingSetsList) (Statement, error) {
	if gsl.UseGroupingSets() && !p.GroupingSets {
		return Statement{}, fmt.Errorf("%w: grouping sets are disabled", ErrPlan)
	}
	detailed := gsl.Detailed()
	first := detailed.Segments[0]
	st := first.Star()

	var sb strings.Builder
	sb.WriteString("SELECT ")
	var sel []string
	for _, c := range gsl.Columns() {
		sel = append(sel, c.Expression)
	}
	for _, s := range detailed.Segments {
		agg, err := aggregateSQL(s.Measure())
		if err != nil {
			return Statement{}, err
		}
		sel = append(sel, agg)
	}
	for _, c := range gsl.RollupColumns() {
		sel = append(sel, "GROUPING("+c.Expression+")")
	}
	sb.WriteString(strings.Join(sel, ", "))

	sb.WriteString(" FROM ")
	sb.WriteString(st.FactTable)
	joins, err := p.joins(st, gsl.Columns(), first.Compound())
	if err != nil {
		return Statement{}, err
	}
	for _, j := range joins {
		sb.WriteByte(' ')
		sb.WriteString(j)
	}

	var where []string
	for _, cp := range first.Predicates() {
		if predicate.IsTrue(cp) {
			continue
		}
		where = append(where, "("+predicate.ToSQL(cp)+")")
	}
	for _, c := range first.Compound() {
		where = append(where, "("+predicate.ToSQL(c)+")")
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	if cols := gsl.Columns(); len(cols) > 0 {
		sb.WriteString(" GROUP BY ")
		if gsl.UseGroupingSets() {
			sets := make([]string, len(gsl.Sets()))
			for i, gs := range gsl.Sets() {
				sets[i] = "(" + expressions(gs.Columns) + ")"
			}
			sb.WriteString("GROUPING SETS (")
			sb.WriteString(strings.Join(sets, ", "))
			sb.WriteByte(')')
		} else {
			sb.WriteString(expressions(cols))
		}
	}

	return Statement{SQL: sb.String(), Types: loader.DefaultTypes(gsl)}, nil
}

// joins returns the join clauses of the tables referenced by cols and the
// compound predicates, sorted by table name.
func (p FactTablePlanner) joins(st *star.Star, cols []*star.Column, compound []predicate.Predicate) ([]string, error) {
	tables := make(map[string]bool)
	for _, c := range cols {
		tables[c.Table] = true
	}
	for _, cp := range compound {
		for _, c := range cp.Columns() {
			if c != nil {
				tables[c.Table] = true
			}
		}
	}
	names := make([]string, 0, len(tables))
	for t := range tables {
		if t != "" && t != st.FactTable {
			names = append(names, t)
		}
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, t := range names {
		j, ok := p.Joins[t]
		if !ok {
			return nil, fmt.Errorf("%w: no join for table %q", ErrPlan, t)
		}
		out[i] = j
	}
	return out, nil
}

func expressions(cols []*star.Column) string {
	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = c.Expression
	}
	return strings.Join(exprs, ", ")
}

func aggregateSQL(m *star.Measure) (string, error) {
	switch m.Aggregator {
	case star.Sum:
		return "sum(" + m.Expression + ")", nil
	case star.Count:
		return "count(" + m.Expression + ")", nil
	case star.Min:
		return "min(" + m.Expression + ")", nil
	case star.Max:
		return "max(" + m.Expression + ")", nil
	case star.Avg:
		return "avg(" + m.Expression + ")", nil
	case star.DistinctCount:
		return "count(distinct " + m.Expression + ")", nil
	default:
		return "", fmt.Errorf("%w: aggregator %s of %s", ErrPlan, m.Aggregator, m)
	}
}
