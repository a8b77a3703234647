package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/aggcache/star"
)

// ValueType is the storage type of a dataset's cells.
type ValueType uint8

const (
	ObjectType ValueType = iota
	IntType
	DoubleType
)

func (t ValueType) String() string {
	switch t {
	case ObjectType:
		return "object"
	case IntType:
		return "int"
	case DoubleType:
		return "double"
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}

// TypeOf maps a measure datatype to a storage type.
func TypeOf(dt star.Datatype) ValueType {
	switch dt {
	case star.Integer:
		return IntType
	case star.Numeric:
		return DoubleType
	default:
		return ObjectType
	}
}

// CellKey addresses a cell by one offset per axis.
type CellKey []int

var (
	// ErrOutOfRange is returned when a cell key does not address a cell.
	ErrOutOfRange = errors.New("segment: cell key out of range")
	// ErrTypeMismatch is returned when a value cannot be stored in a dataset.
	ErrTypeMismatch = errors.New("segment: value does not match dataset type")
)

// Dataset stores the cell values of a segment. A dataset is written only
// while its segment is Loading and is read-only afterwards.
type Dataset interface {
	// Type returns the storage type of the cells.
	Type() ValueType
	// Dense reports whether the dataset uses the dense layout.
	Dense() bool
	// Get returns the value at key, or false if the cell holds no data.
	Get(key CellKey) (any, bool)
	// Set stores v at key. Storing Null clears the cell.
	Set(key CellKey, v any) error
	// Each calls fn for every cell holding data in row-major key order
	// until fn returns false.
	Each(fn func(key CellKey, v any) bool)
	// Size returns the number of cells holding data.
	Size() int
	// Dims returns the axis lengths the dataset was allocated for.
	Dims() []int
}

// NewDataset allocates a dataset for axes of the given lengths.
func NewDataset(typ ValueType, dims []int, sparse bool) Dataset {
	if sparse {
		return newSparse(typ, dims)
	}
	switch typ {
	case IntType:
		return newDense(typ, dims, toInt64)
	case DoubleType:
		return newDense(typ, dims, toFloat64)
	default:
		return newDense(typ, dims, toObject)
	}
}

type denseDataset[T any] struct {
	typ    ValueType
	dims   []int
	mults  []int
	values []T
	// nulls has a bit set for every cell without data.
	nulls *roaring.Bitmap
	conv  func(any) (T, bool)
}

func newDense[T any](typ ValueType, dims []int, conv func(any) (T, bool)) *denseDataset[T] {
	size := 1
	for _, d := range dims {
		size *= d
	}
	mults := make([]int, len(dims))
	m := 1
	for i := len(dims) - 1; i >= 0; i-- {
		mults[i] = m
		m *= dims[i]
	}
	nulls := roaring.New()
	if size > 0 {
		nulls.AddRange(0, uint64(size))
	}
	return &denseDataset[T]{
		typ:    typ,
		dims:   append([]int(nil), dims...),
		mults:  mults,
		values: make([]T, size),
		nulls:  nulls,
		conv:   conv,
	}
}

func (d *denseDataset[T]) Type() ValueType { return d.typ }
func (d *denseDataset[T]) Dense() bool     { return true }
func (d *denseDataset[T]) Dims() []int     { return d.dims }

func (d *denseDataset[T]) offset(key CellKey) int {
	if len(key) != len(d.dims) {
		return -1
	}
	off := 0
	for i, k := range key {
		if k < 0 || k >= d.dims[i] {
			return -1
		}
		off += k * d.mults[i]
	}
	return off
}

func (d *denseDataset[T]) key(off int) CellKey {
	key := make(CellKey, len(d.dims))
	for i, m := range d.mults {
		key[i] = off / m
		off %= m
	}
	return key
}

func (d *denseDataset[T]) Get(key CellKey) (any, bool) {
	off := d.offset(key)
	if off < 0 || d.nulls.Contains(uint32(off)) {
		return nil, false
	}
	return d.values[off], true
}

func (d *denseDataset[T]) Set(key CellKey, v any) error {
	off := d.offset(key)
	if off < 0 {
		return fmt.Errorf("%w: %v", ErrOutOfRange, []int(key))
	}
	if star.IsNull(v) {
		var zero T
		d.values[off] = zero
		d.nulls.Add(uint32(off))
		return nil
	}
	t, ok := d.conv(v)
	if !ok {
		return fmt.Errorf("%w: %T into %s", ErrTypeMismatch, v, d.typ)
	}
	d.values[off] = t
	d.nulls.Remove(uint32(off))
	return nil
}

func (d *denseDataset[T]) Each(fn func(CellKey, any) bool) {
	for off := range d.values {
		if d.nulls.Contains(uint32(off)) {
			continue
		}
		if !fn(d.key(off), d.values[off]) {
			return
		}
	}
}

func (d *denseDataset[T]) Size() int {
	return len(d.values) - int(d.nulls.GetCardinality())
}

type sparseDataset struct {
	typ   ValueType
	dims  []int
	cells map[string]any
}

func newSparse(typ ValueType, dims []int) *sparseDataset {
	return &sparseDataset{typ: typ, dims: append([]int(nil), dims...), cells: make(map[string]any)}
}

func (s *sparseDataset) Type() ValueType { return s.typ }
func (s *sparseDataset) Dense() bool     { return false }
func (s *sparseDataset) Dims() []int     { return s.dims }

func (s *sparseDataset) encode(key CellKey) (string, bool) {
	if len(key) != len(s.dims) {
		return "", false
	}
	buf := make([]byte, 4*len(key))
	for i, k := range key {
		if k < 0 || k >= s.dims[i] {
			return "", false
		}
		binary.BigEndian.PutUint32(buf[4*i:], uint32(k))
	}
	return string(buf), true
}

func (s *sparseDataset) decode(enc string) CellKey {
	key := make(CellKey, len(enc)/4)
	for i := range key {
		key[i] = int(binary.BigEndian.Uint32([]byte(enc[4*i : 4*i+4])))
	}
	return key
}

func (s *sparseDataset) Get(key CellKey) (any, bool) {
	enc, ok := s.encode(key)
	if !ok {
		return nil, false
	}
	v, ok := s.cells[enc]
	return v, ok
}

func (s *sparseDataset) Set(key CellKey, v any) error {
	enc, ok := s.encode(key)
	if !ok {
		return fmt.Errorf("%w: %v", ErrOutOfRange, []int(key))
	}
	if star.IsNull(v) {
		delete(s.cells, enc)
		return nil
	}
	var (
		stored any
		conv   bool
	)
	switch s.typ {
	case IntType:
		stored, conv = toInt64(v)
	case DoubleType:
		stored, conv = toFloat64(v)
	default:
		stored, conv = toObject(v)
	}
	if !conv {
		return fmt.Errorf("%w: %T into %s", ErrTypeMismatch, v, s.typ)
	}
	s.cells[enc] = stored
	return nil
}

// Each visits cells in row-major order; big-endian keys sort that way.
func (s *sparseDataset) Each(fn func(CellKey, any) bool) {
	keys := make([]string, 0, len(s.cells))
	for k := range s.cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(s.decode(k), s.cells[k]) {
			return
		}
	}
}

func (s *sparseDataset) Size() int { return len(s.cells) }

func toInt64(v any) (int64, bool) {
	switch x := star.Normalize(v).(type) {
	case int64:
		return x, true
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x <= math.MaxInt64 {
			return int64(x), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := star.Normalize(v).(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func toObject(v any) (any, bool) {
	return star.Normalize(v), true
}

func setNulls(bm *roaring.Bitmap, offsets []uint32, size int) error {
	for _, off := range offsets {
		if int(off) >= size {
			return fmt.Errorf("%w: null offset %d", ErrOutOfRange, off)
		}
	}
	bm.Clear()
	bm.AddMany(offsets)
	return nil
}
