package star

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// NullValue is the type of the Null marker.
type NullValue struct{}

func (NullValue) String() string { return "#null" }

// Null stands for an SQL NULL in axes, predicates and cell coordinates.
var Null = NullValue{}

// IsNull reports whether v is nil or the Null marker.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(NullValue)
	return ok
}

// Normalize maps a driver value onto the value domain: integers become
// int64, floats become float64, byte slices become strings and nil becomes
// Null. Other types are returned unchanged.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return Null
	case NullValue, string, int64, float64, bool:
		return v
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return float64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func rank(v any) int {
	switch v.(type) {
	case bool:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case NullValue, nil:
		return 4
	default:
		return 3
	}
}

// Compare orders two normalized values. Booleans sort first, then numbers
// (int64 and float64 compare numerically), then strings, then any other
// type by its formatted text, and Null last.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
		return cmpFloat(float64(x), b.(float64))
	case float64:
		if y, ok := b.(int64); ok {
			return cmpFloat(x, float64(y))
		}
		return cmpFloat(x, b.(float64))
	case string:
		return strings.Compare(x, b.(string))
	case NullValue, nil:
		return 0
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

// Equal reports whether two normalized values compare equal.
func Equal(a, b any) bool { return Compare(a, b) == 0 }

// SortedSet returns a sorted, deduplicated copy of values. Values are
// normalized first.
func SortedSet(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, Normalize(v))
	}
	sort.SliceStable(out, func(i, j int) bool { return Compare(out[i], out[j]) < 0 })
	n := 0
	for i, v := range out {
		if i > 0 && Compare(out[n-1], v) == 0 {
			continue
		}
		out[n] = v
		n++
	}
	return out[:n]
}

// Search returns the index of v in the sorted slice values, or -1.
func Search(values []any, v any) int {
	i := sort.Search(len(values), func(i int) bool { return Compare(values[i], v) >= 0 })
	if i < len(values) && Compare(values[i], v) == 0 {
		return i
	}
	return -1
}

// FormatSQL renders v as an SQL literal.
func FormatSQL(v any) string {
	switch x := v.(type) {
	case NullValue, nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(x), "'", "''") + "'"
	}
}

// Format renders v for descriptions and logs.
func Format(v any) string {
	switch x := v.(type) {
	case NullValue, nil:
		return "#null"
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func cmpOrdered[T int64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	// NaN sorts after every number.
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return 1
	default:
		return -1
	}
}
