package segment

import "math"

// MaxDenseCells is the largest number of cells a dense dataset can address.
const MaxDenseCells = math.MaxInt32

// Density holds the thresholds of the dense/sparse decision.
type Density struct {
	// CountThreshold is subtracted from the possible cell count before the
	// ratio is applied. Negative values are treated as zero.
	CountThreshold int
	// DensityThreshold is clamped into [0, 1].
	DensityThreshold float64
}

// DefaultDensity returns the default thresholds (1000 cells, 0.5).
func DefaultDensity() Density {
	return Density{CountThreshold: 1000, DensityThreshold: 0.5}
}

// PossibleCells returns the product of dims, or false if it overflows the
// dense address range.
func PossibleCells(dims []int) (int64, bool) {
	n := int64(1)
	for _, d := range dims {
		if d == 0 {
			return 0, true
		}
		if n > MaxDenseCells/int64(d) {
			return 0, false
		}
		n *= int64(d)
	}
	return n, n <= MaxDenseCells
}

// UseSparse reports whether a dataset with the given axis lengths and
// number of populated cells should be sparse:
//
//	(possible - countThreshold) * densityThreshold > actual
//
// An address space that overflows always yields sparse.
func (d Density) UseSparse(dims []int, actual int) bool {
	possible, ok := PossibleCells(dims)
	if !ok {
		return true
	}
	return d.useSparse(possible, int64(actual))
}

func (d Density) useSparse(possible, actual int64) bool {
	count := int64(d.CountThreshold)
	if count < 0 {
		count = 0
	}
	ratio := d.DensityThreshold
	switch {
	case math.IsNaN(ratio) || ratio < 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}
	return float64(possible-count)*ratio > float64(actual)
}
