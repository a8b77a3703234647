package star

import "fmt"

// Aggregator combines fact values into a cell value.
type Aggregator uint8

const (
	Sum Aggregator = iota
	Count
	Min
	Max
	Avg
	DistinctCount
)

func (a Aggregator) String() string {
	switch a {
	case Sum:
		return "sum"
	case Count:
		return "count"
	case Min:
		return "min"
	case Max:
		return "max"
	case Avg:
		return "avg"
	case DistinctCount:
		return "distinct-count"
	default:
		return fmt.Sprintf("aggregator(%d)", a)
	}
}

// ParseAggregator maps a name produced by String back to an Aggregator.
func ParseAggregator(name string) (Aggregator, error) {
	for a := Sum; a <= DistinctCount; a++ {
		if a.String() == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("star: unknown aggregator %q", name)
}

// Rollup returns the aggregator that combines already aggregated cells of
// this aggregator. Averages and distinct counts cannot be rolled up: the
// cells carry no weights or member sets, so they are loaded instead.
func (a Aggregator) Rollup() (Aggregator, bool) {
	switch a {
	case Sum, Count:
		return Sum, true
	case Min, Max:
		return a, true
	default:
		return a, false
	}
}

// Aggregate folds values into a single value. Null values are ignored; if
// every value is null the result is Null. Sum and Count keep int64 when all
// inputs are integers.
func (a Aggregator) Aggregate(values []any) any {
	var (
		n       int
		allInts = true
		isum    int64
		fsum    float64
		best    any
	)
	for _, raw := range values {
		v := Normalize(raw)
		if IsNull(v) {
			continue
		}
		n++
		switch a {
		case Min:
			if best == nil || Compare(v, best) < 0 {
				best = v
			}
			continue
		case Max:
			if best == nil || Compare(v, best) > 0 {
				best = v
			}
			continue
		case DistinctCount:
			// distinct counts are not additive; callers never roll them up
			continue
		}
		switch x := v.(type) {
		case int64:
			isum += x
			fsum += float64(x)
		case float64:
			allInts = false
			fsum += x
		default:
			allInts = false
		}
	}
	if n == 0 {
		return Null
	}
	switch a {
	case Min, Max:
		return best
	case Avg:
		return fsum / float64(n)
	case DistinctCount:
		return Null
	}
	if allInts {
		return isum
	}
	return fsum
}
