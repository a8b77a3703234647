// Package bitkey provides the immutable, fixed-width column key used to
// identify which columns of a star participate in a constraint set.
//
// A BitKey is a value type: every operation returns a new key and never
// mutates its receiver. Keys of different non-zero width must never be
// combined; doing so is a programming error and panics. The zero BitKey is
// the empty key and is compatible with every width.
package bitkey

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// BitKey is an immutable fixed-width set of column positions.
type BitKey struct {
	bits  *bitset.BitSet
	width uint
}

// New returns an empty key of the given width.
func New(width uint) BitKey {
	return BitKey{bits: bitset.New(width), width: width}
}

// Of returns a key of the given width with the given positions set.
func Of(width uint, positions ...uint) BitKey {
	b := bitset.New(width)
	for _, p := range positions {
		checkRange(p, width)
		b.Set(p)
	}
	return BitKey{bits: b, width: width}
}

// Width returns the number of addressable positions.
func (k BitKey) Width() uint { return k.width }

// Get reports whether position pos is set.
func (k BitKey) Get(pos uint) bool {
	if k.bits == nil || pos >= k.width {
		return false
	}
	return k.bits.Test(pos)
}

// Set returns a copy of k with pos set.
func (k BitKey) Set(pos uint) BitKey {
	checkRange(pos, k.width)
	c := k.clone()
	c.bits.Set(pos)
	return c
}

// Clear returns a copy of k with pos cleared.
func (k BitKey) Clear(pos uint) BitKey {
	checkRange(pos, k.width)
	c := k.clone()
	c.bits.Clear(pos)
	return c
}

// And returns the intersection of k and o.
func (k BitKey) And(o BitKey) BitKey {
	w := mustCompatible(k, o)
	if k.IsEmpty() || o.IsEmpty() {
		return New(w)
	}
	return BitKey{bits: k.bits.Intersection(o.bits), width: w}
}

// Or returns the union of k and o.
func (k BitKey) Or(o BitKey) BitKey {
	w := mustCompatible(k, o)
	switch {
	case k.bits == nil && o.bits == nil:
		return New(w)
	case k.bits == nil:
		return o.withWidth(w)
	case o.bits == nil:
		return k.withWidth(w)
	}
	return BitKey{bits: k.bits.Union(o.bits), width: w}
}

// AndNot returns the positions set in k but not in o.
func (k BitKey) AndNot(o BitKey) BitKey {
	w := mustCompatible(k, o)
	if k.bits == nil {
		return New(w)
	}
	if o.bits == nil {
		return k.withWidth(w)
	}
	return BitKey{bits: k.bits.Difference(o.bits), width: w}
}

// IsSupersetOf reports whether every position set in o is also set in k.
func (k BitKey) IsSupersetOf(o BitKey) bool {
	mustCompatible(k, o)
	if o.IsEmpty() {
		return true
	}
	if k.bits == nil {
		return false
	}
	return k.bits.IsSuperSet(o.bits)
}

// Intersects reports whether k and o share at least one position.
func (k BitKey) Intersects(o BitKey) bool {
	mustCompatible(k, o)
	if k.bits == nil || o.bits == nil {
		return false
	}
	return k.bits.IntersectionCardinality(o.bits) > 0
}

// Equal reports whether k and o have the same set positions.
// Empty keys are equal regardless of width.
func (k BitKey) Equal(o BitKey) bool {
	if k.IsEmpty() && o.IsEmpty() {
		return true
	}
	mustCompatible(k, o)
	if k.bits == nil || o.bits == nil {
		return false
	}
	return k.bits.Equal(o.bits)
}

// IsEmpty reports whether no position is set.
func (k BitKey) IsEmpty() bool {
	return k.bits == nil || k.bits.None()
}

// Cardinality returns the number of set positions.
func (k BitKey) Cardinality() int {
	if k.bits == nil {
		return 0
	}
	return int(k.bits.Count())
}

// Positions returns the set positions in ascending order.
func (k BitKey) Positions() []uint {
	if k.bits == nil {
		return nil
	}
	out := make([]uint, 0, k.bits.Count())
	for i, ok := k.bits.NextSet(0); ok; i, ok = k.bits.NextSet(i + 1) {
		out = append(out, i)
	}
	return out
}

// NextSet returns the first set position at or after from.
func (k BitKey) NextSet(from uint) (uint, bool) {
	if k.bits == nil {
		return 0, false
	}
	return k.bits.NextSet(from)
}

// Key returns a compact string usable as a map key. Keys that are Equal
// produce the same string.
func (k BitKey) Key() string {
	if k.IsEmpty() {
		return "-"
	}
	words := k.bits.Words()
	n := len(words)
	for n > 0 && words[n-1] == 0 {
		n--
	}
	buf := make([]byte, 8*n)
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint64(buf[8*i:], words[i])
	}
	return hex.EncodeToString(buf)
}

// String renders the key as "{0, 3, 5}".
func (k BitKey) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, p := range k.Positions() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatUint(uint64(p), 10))
	}
	sb.WriteByte('}')
	return sb.String()
}

func (k BitKey) clone() BitKey {
	if k.bits == nil {
		return New(k.width)
	}
	return BitKey{bits: k.bits.Clone(), width: k.width}
}

func (k BitKey) withWidth(w uint) BitKey {
	if k.width == w {
		return k
	}
	c := New(w)
	for _, p := range k.Positions() {
		c.bits.Set(p)
	}
	return c
}

func checkRange(pos, width uint) {
	if pos >= width {
		panic(fmt.Sprintf("bitkey: position %d out of range for width %d", pos, width))
	}
}

// mustCompatible returns the width shared by a and b. A zero-width key
// adopts the width of the other operand.
func mustCompatible(a, b BitKey) uint {
	switch {
	case a.width == b.width:
		return a.width
	case a.width == 0:
		return b.width
	case b.width == 0:
		return a.width
	}
	panic(fmt.Sprintf("bitkey: width mismatch %d != %d", a.width, b.width))
}
