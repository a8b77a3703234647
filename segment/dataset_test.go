package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/star"
)

func TestDenseOffsetAddressing(t *testing.T) {
	for _, typ := range []ValueType{IntType, DoubleType, ObjectType} {
		t.Run(typ.String(), func(t *testing.T) {
			ds := NewDataset(typ, []int{3, 2}, false)
			require.True(t, ds.Dense())
			require.NoError(t, ds.Set(CellKey{2, 1}, int64(42)))

			v, ok := ds.Get(CellKey{2, 1})
			require.True(t, ok)
			assert.EqualValues(t, 42, v)

			for i := 0; i < 3; i++ {
				for j := 0; j < 2; j++ {
					if i == 2 && j == 1 {
						continue
					}
					_, ok := ds.Get(CellKey{i, j})
					assert.False(t, ok, "cell (%d,%d)", i, j)
				}
			}
			assert.Equal(t, 1, ds.Size())
		})
	}
}

func TestDenseRowMajorOrder(t *testing.T) {
	ds := NewDataset(IntType, []int{3, 2}, false)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			require.NoError(t, ds.Set(CellKey{i, j}, int64(i*10+j)))
		}
	}
	d := ds.(*denseDataset[int64])
	assert.Equal(t, []int64{0, 1, 10, 11, 20, 21}, d.values)

	var keys []CellKey
	ds.Each(func(k CellKey, _ any) bool {
		keys = append(keys, k)
		return len(keys) < 3
	})
	assert.Equal(t, []CellKey{{0, 0}, {0, 1}, {1, 0}}, keys)
}

func TestZeroIsNotEmpty(t *testing.T) {
	ds := NewDataset(DoubleType, []int{2}, false)
	require.NoError(t, ds.Set(CellKey{0}, 0.0))
	v, ok := ds.Get(CellKey{0})
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
	_, ok = ds.Get(CellKey{1})
	assert.False(t, ok)

	require.NoError(t, ds.Set(CellKey{0}, star.Null))
	_, ok = ds.Get(CellKey{0})
	assert.False(t, ok)
}

func TestSparseDataset(t *testing.T) {
	ds := NewDataset(IntType, []int{1000, 1000}, true)
	require.False(t, ds.Dense())
	require.NoError(t, ds.Set(CellKey{999, 3}, 7))
	require.NoError(t, ds.Set(CellKey{1, 500}, int64(8)))

	v, ok := ds.Get(CellKey{999, 3})
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
	_, ok = ds.Get(CellKey{3, 999})
	assert.False(t, ok)
	assert.Equal(t, 2, ds.Size())

	var order []CellKey
	ds.Each(func(k CellKey, _ any) bool {
		order = append(order, k)
		return true
	})
	assert.Equal(t, []CellKey{{1, 500}, {999, 3}}, order)
}

func TestDatasetRejectsBadInput(t *testing.T) {
	ds := NewDataset(IntType, []int{2}, false)
	assert.ErrorIs(t, ds.Set(CellKey{2}, int64(1)), ErrOutOfRange)
	assert.ErrorIs(t, ds.Set(CellKey{0}, "x"), ErrTypeMismatch)
	assert.ErrorIs(t, ds.Set(CellKey{0}, 1.5), ErrTypeMismatch)

	sp := NewDataset(DoubleType, []int{2}, true)
	assert.ErrorIs(t, sp.Set(CellKey{0, 0}, 1.0), ErrOutOfRange)
}

func TestZeroAxisDataset(t *testing.T) {
	ds := NewDataset(DoubleType, nil, false)
	require.NoError(t, ds.Set(CellKey{}, 12.5))
	v, ok := ds.Get(CellKey{})
	require.True(t, ok)
	assert.Equal(t, 12.5, v)
}

func TestDensityNeverSparseWhenFullyDense(t *testing.T) {
	thresholds := []Density{
		DefaultDensity(),
		{CountThreshold: 0, DensityThreshold: 1},
		{CountThreshold: -5, DensityThreshold: 3},
		{CountThreshold: 10, DensityThreshold: -1},
	}
	for _, d := range thresholds {
		for _, n := range []int{0, 1, 7, 999, 1000, 1001, 5000, 1 << 20} {
			assert.False(t, d.UseSparse([]int{n}, n), "%+v n=%d", d, n)
		}
	}
}

func TestDensityNeverSparseBelowCountThreshold(t *testing.T) {
	d := Density{CountThreshold: 1000, DensityThreshold: 1}
	for _, possible := range []int{1, 10, 500, 999, 1000} {
		assert.False(t, d.UseSparse([]int{possible}, 0))
	}
}

func TestDensityDecision(t *testing.T) {
	d := DefaultDensity()
	assert.True(t, d.UseSparse([]int{100, 100}, 10))
	assert.False(t, d.UseSparse([]int{100, 100}, 5000))
	// (10000-1000)*0.5 = 4500
	assert.False(t, d.UseSparse([]int{100, 100}, 4500))
	assert.True(t, d.UseSparse([]int{100, 100}, 4499))
}

func TestDensityOverflowForcesSparse(t *testing.T) {
	d := Density{CountThreshold: 0, DensityThreshold: 0}
	assert.True(t, d.UseSparse([]int{1 << 20, 1 << 20}, 1<<40))
	_, ok := PossibleCells([]int{1 << 16, 1 << 16})
	assert.False(t, ok)
	n, ok := PossibleCells([]int{3, 0, 5})
	assert.True(t, ok)
	assert.Zero(t, n)
}
