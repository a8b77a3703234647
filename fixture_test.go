package aggcache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/loader"
	"github.com/hupe1980/aggcache/predicate"
	"github.com/hupe1980/aggcache/star"
)

type fixture struct {
	star   *star.Star
	gender *star.Column
	state  *star.Column
	year   *star.Column
	sales  *star.Measure
	count  *star.Measure
}

func newFixture() fixture {
	s := star.New("FoodMart", "v1", "sales_fact")
	return fixture{
		star:   s,
		gender: s.AddColumn("gender", "gender", "sales_fact", star.String, 2),
		state:  s.AddColumn("state", "state", "sales_fact", star.String, 3),
		year:   s.AddColumn("year", "year", "sales_fact", star.Integer, -1),
		sales:  s.AddMeasure("Sales", "Unit Sales", "unit_sales", star.Sum, star.Numeric),
		count:  s.AddMeasure("Sales", "Sales Count", "unit_sales", star.Count, star.Integer),
	}
}

type fact struct {
	gender string
	state  string
	year   int64
	sales  float64
}

var facts = []fact{
	{"F", "CA", 1997, 10},
	{"M", "CA", 1997, 20},
	{"F", "OR", 1997, 30},
	{"M", "OR", 1997, 40},
	{"F", "WA", 1997, 50},
	{"M", "WA", 1998, 60},
}

func (f fact) value(c *star.Column) any {
	switch c.Name {
	case "gender":
		return f.gender
	case "state":
		return f.state
	default:
		return f.year
	}
}

func (f fact) tuple() predicate.Tuple {
	return predicate.Tuple{0: f.gender, 1: f.state, 2: f.year}
}

// memPlanner passes the grouping sets through to memSource.
type memPlanner struct {
	groupingSets bool
	plans        atomic.Int32
}

func (p *memPlanner) Plan(gsl *loader.GroupingSetsList) (Statement, error) {
	p.plans.Add(1)
	return Statement{SQL: "-- in memory", Args: []any{gsl}}, nil
}

func (p *memPlanner) SupportsGroupingSets() bool { return p.groupingSets }

// memSource evaluates the grouping sets over facts.
type memSource struct {
	mu      sync.Mutex
	queries int
	fail    error
}

func (s *memSource) Query(_ context.Context, stmt Statement) (loader.Rows, error) {
	s.mu.Lock()
	s.queries++
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	gsl := stmt.Args[0].(*loader.GroupingSetsList)
	preds := gsl.Detailed().Segments[0].Predicates()
	compound := gsl.Detailed().Segments[0].Compound()
	var data [][]any
	for _, gs := range gsl.Sets() {
		in := make(map[*star.Column]bool)
		for _, c := range gs.Columns {
			in[c] = true
		}
		type group struct {
			keys  []any
			sum   float64
			count int64
		}
		groups := make(map[string]*group)
		var order []string
		for _, f := range facts {
			ok := true
			for _, p := range preds {
				if !predicate.EvaluateValue(p, f.value(p.Column())) {
					ok = false
					break
				}
			}
			for _, p := range compound {
				if ok && !predicate.EvaluateTuple(p, f.tuple()) {
					ok = false
				}
			}
			if !ok {
				continue
			}
			keys := make([]any, len(gsl.Columns()))
			var k string
			for i, c := range gsl.Columns() {
				if in[c] {
					keys[i] = f.value(c)
					k += star.EncodeValue(keys[i]) + "|"
				}
			}
			g, ok := groups[k]
			if !ok {
				g = &group{keys: keys}
				groups[k] = g
				order = append(order, k)
			}
			g.sum += f.sales
			g.count++
		}
		sort.Strings(order)
		for _, k := range order {
			g := groups[k]
			row := append([]any(nil), g.keys...)
			for _, seg := range gs.Segments {
				switch seg.Measure().Aggregator {
				case star.Count:
					row = append(row, g.count)
				case star.Avg:
					row = append(row, g.sum/float64(g.count))
				default:
					row = append(row, g.sum)
				}
			}
			for _, rc := range gsl.RollupColumns() {
				if in[rc] {
					row = append(row, int64(0))
				} else {
					row = append(row, int64(1))
				}
			}
			data = append(data, row)
		}
	}
	return loader.NewSliceRows(data), nil
}

func (s *memSource) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func newCache(t *testing.T, planner Planner, source RowSource, opts ...Option) *Cache {
	t.Helper()
	c, err := New(context.Background(), planner, source, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// getAll runs reader passes until every request is answered.
func getAll(t *testing.T, r *Reader, reqs ...*CellRequest) []any {
	t.Helper()
	ctx := context.Background()
	out := make([]any, len(reqs))
	for pass := 0; pass < 3; pass++ {
		for i, req := range reqs {
			v, err := r.Get(ctx, req)
			if IsControl(err) {
				continue
			}
			require.NoError(t, err)
			out[i] = v
		}
		if r.Pending() == 0 {
			return out
		}
		require.NoError(t, r.Load(ctx))
	}
	t.Fatalf("requests still pending after 3 passes")
	return nil
}
