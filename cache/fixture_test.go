package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

var (
	testStar  = star.New("FoodMart", "v1", "sales_fact")
	testState = testStar.AddColumn("state", `"store"."state"`, "store", star.String, 3)
)

// testSegment returns a header over the given states and a dense body with
// one value per state.
func testSegment(t *testing.T, states ...string) (*segment.Header, *segment.Body) {
	t.Helper()
	vals := make([]any, len(states))
	doubles := make([]float64, len(states))
	for i, s := range states {
		vals[i] = s
		doubles[i] = float64(i + 1)
	}
	h := segment.NewHeader(segment.Header{
		SchemaName:     "FoodMart",
		SchemaChecksum: "v1",
		CubeName:       "Sales",
		MeasureName:    "Unit Sales",
		FactTable:      "sales_fact",
		Width:          uint(testStar.ColumnCount()),
		Columns:        []segment.ColumnConstraint{segment.Constraint(testState, vals...)},
	})
	b := &segment.Body{
		Kind:       segment.DenseDoubleBody,
		Type:       segment.DoubleType,
		AxisValues: []star.Values{star.Values(star.SortedSet(vals))},
		NullAxis:   []bool{false},
		Doubles:    doubles,
	}
	return h, b
}

// recorder collects tier events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) take() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// mockTier is a testify mock of Tier.
type mockTier struct {
	mock.Mock
	listeners
}

func (m *mockTier) Get(ctx context.Context, h *segment.Header) (*segment.Body, error) {
	args := m.Called(ctx, h)
	b, _ := args.Get(0).(*segment.Body)
	return b, args.Error(1)
}

func (m *mockTier) Contains(ctx context.Context, h *segment.Header) (bool, error) {
	args := m.Called(ctx, h)
	return args.Bool(0), args.Error(1)
}

func (m *mockTier) Put(ctx context.Context, h *segment.Header, b *segment.Body) error {
	return m.Called(ctx, h, b).Error(0)
}

func (m *mockTier) Remove(ctx context.Context, h *segment.Header) (bool, error) {
	args := m.Called(ctx, h)
	return args.Bool(0), args.Error(1)
}

func (m *mockTier) Headers(ctx context.Context) ([]*segment.Header, error) {
	args := m.Called(ctx)
	hs, _ := args.Get(0).([]*segment.Header)
	return hs, args.Error(1)
}

func (m *mockTier) Close() error { return m.Called().Error(0) }
