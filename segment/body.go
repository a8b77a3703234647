package segment

import (
	"fmt"

	"github.com/hupe1980/aggcache/star"
)

// BodyKind is the layout of a Body's payload.
type BodyKind uint8

const (
	DenseObjectBody BodyKind = iota + 1
	DenseIntBody
	DenseDoubleBody
	SparseBody
)

func (k BodyKind) String() string {
	switch k {
	case DenseObjectBody:
		return "dense-object"
	case DenseIntBody:
		return "dense-int"
	case DenseDoubleBody:
		return "dense-double"
	case SparseBody:
		return "sparse"
	default:
		return fmt.Sprintf("body(%d)", k)
	}
}

// Body is the serializable payload of a segment: the realized axis values
// and null flags, plus the cells in dense or sparse form.
type Body struct {
	Kind BodyKind  `json:"kind"`
	Type ValueType `json:"type"`

	AxisValues []star.Values `json:"axisValues"`
	NullAxis   []bool        `json:"nullAxis"`

	// Dense layouts. Nulls lists the offsets without data.
	Nulls   []uint32    `json:"nulls,omitempty"`
	Ints    []int64     `json:"ints,omitempty"`
	Doubles []float64   `json:"doubles,omitempty"`
	Objects star.Values `json:"objects,omitempty"`

	// Sparse layout.
	Keys   [][]int     `json:"keys,omitempty"`
	Values star.Values `json:"values,omitempty"`
}

// Dims returns the axis lengths described by the body.
func (b *Body) Dims() []int {
	dims := make([]int, len(b.AxisValues))
	for i, vs := range b.AxisValues {
		dims[i] = len(vs)
		if i < len(b.NullAxis) && b.NullAxis[i] {
			dims[i]++
		}
	}
	return dims
}

// AxisKeys returns the keys of axis i including a trailing Null.
func (b *Body) AxisKeys(i int) []any {
	keys := append([]any(nil), b.AxisValues[i]...)
	if b.NullAxis[i] {
		keys = append(keys, star.Null)
	}
	return keys
}

// CellCount returns the number of cells holding data.
func (b *Body) CellCount() int {
	switch b.Kind {
	case SparseBody:
		return len(b.Keys)
	default:
		n := len(b.Ints) + len(b.Doubles) + len(b.Objects)
		return n - len(b.Nulls)
	}
}

// SizeBytes estimates the in-memory size of the body.
func (b *Body) SizeBytes() int64 {
	n := int64(64)
	for _, vs := range b.AxisValues {
		n += int64(len(vs)) * 16
	}
	n += int64(len(b.Nulls))*4 + int64(len(b.Ints))*8 + int64(len(b.Doubles))*8
	n += int64(len(b.Objects))*16 + int64(len(b.Values))*16
	for _, k := range b.Keys {
		n += int64(len(k)) * 8
	}
	return n
}

func buildBody(values [][]any, nullAxis []bool, ds Dataset) *Body {
	b := &Body{
		Type:       ds.Type(),
		AxisValues: make([]star.Values, len(values)),
		NullAxis:   append([]bool(nil), nullAxis...),
	}
	for i, vs := range values {
		b.AxisValues[i] = append(star.Values{}, vs...)
	}
	switch d := ds.(type) {
	case *denseDataset[int64]:
		b.Kind = DenseIntBody
		b.Ints = append([]int64{}, d.values...)
		b.Nulls = d.nulls.ToArray()
	case *denseDataset[float64]:
		b.Kind = DenseDoubleBody
		b.Doubles = append([]float64{}, d.values...)
		b.Nulls = d.nulls.ToArray()
	case *denseDataset[any]:
		b.Kind = DenseObjectBody
		b.Objects = make(star.Values, len(d.values))
		for i, v := range d.values {
			if d.nulls.Contains(uint32(i)) {
				b.Objects[i] = star.Null
				continue
			}
			b.Objects[i] = v
		}
		b.Nulls = d.nulls.ToArray()
	case *sparseDataset:
		b.Kind = SparseBody
		d.Each(func(key CellKey, v any) bool {
			b.Keys = append(b.Keys, []int(key))
			b.Values = append(b.Values, v)
			return true
		})
	default:
		panic(fmt.Sprintf("segment: unknown dataset %T", ds))
	}
	return b
}

// dataset rebuilds the dataset a body describes. An unknown kind is a
// contract violation between writer and reader and panics.
func (b *Body) dataset() (Dataset, error) {
	if len(b.NullAxis) != len(b.AxisValues) {
		return nil, fmt.Errorf("segment: body has %d axes but %d null flags", len(b.AxisValues), len(b.NullAxis))
	}
	dims := b.Dims()
	size := 1
	for _, d := range dims {
		size *= d
	}
	switch b.Kind {
	case DenseIntBody:
		d := newDense(IntType, dims, toInt64)
		if len(b.Ints) != size {
			return nil, fmt.Errorf("segment: dense body has %d cells, want %d", len(b.Ints), size)
		}
		copy(d.values, b.Ints)
		return d, setNulls(d.nulls, b.Nulls, size)
	case DenseDoubleBody:
		d := newDense(DoubleType, dims, toFloat64)
		if len(b.Doubles) != size {
			return nil, fmt.Errorf("segment: dense body has %d cells, want %d", len(b.Doubles), size)
		}
		copy(d.values, b.Doubles)
		return d, setNulls(d.nulls, b.Nulls, size)
	case DenseObjectBody:
		d := newDense(ObjectType, dims, toObject)
		if len(b.Objects) != size {
			return nil, fmt.Errorf("segment: dense body has %d cells, want %d", len(b.Objects), size)
		}
		copy(d.values, b.Objects)
		return d, setNulls(d.nulls, b.Nulls, size)
	case SparseBody:
		if len(b.Keys) != len(b.Values) {
			return nil, fmt.Errorf("segment: sparse body has %d keys but %d values", len(b.Keys), len(b.Values))
		}
		s := newSparse(b.Type, dims)
		for i, k := range b.Keys {
			if err := s.Set(CellKey(k), b.Values[i]); err != nil {
				return nil, err
			}
		}
		return s, nil
	default:
		panic(fmt.Sprintf("segment: unknown body kind %d", b.Kind))
	}
}
