// Package bitmap provides a compressed set of 64-bit document identifiers
// with the boolean-algebra operations the index manager needs to combine
// per-predicate results: Or, And, Not, and ascending iteration.
//
// Document identifiers are logically uint64, but every identifier space this
// engine can address in memory (dense, append-only, one process) fits in
// uint32 well before it fits in RAM as blob handles, so the set itself is
// backed by a github.com/RoaringBitmap/roaring.Bitmap (32-bit) the same way
// internal/refsvtab in the upstream overlay keyed its reference bitmaps.
// Add panics if asked to hold an identifier above math.MaxUint32; at that
// scale the id→handle slice itself would already exceed a practical process
// heap, so this is not a realistic operating condition.
package bitmap

import (
	"math"

	"github.com/RoaringBitmap/roaring"
)

// Bitmap is a compressed, ordered set of document identifiers.
type Bitmap struct {
	rb *roaring.Bitmap
}

// New returns an empty bitmap.
func New() *Bitmap {
	return &Bitmap{rb: roaring.New()}
}

// FromSlice builds a bitmap containing exactly the given identifiers.
func FromSlice(ids []uint64) *Bitmap {
	bm := New()
	for _, id := range ids {
		bm.Add(id)
	}
	return bm
}

// Add inserts id into the set. Safe to call with an id already present.
func (b *Bitmap) Add(id uint64) {
	if id > math.MaxUint32 {
		panic("bitmap: identifier exceeds addressable range")
	}
	b.rb.Add(uint32(id))
}

// Contains reports whether id is a member of the set.
func (b *Bitmap) Contains(id uint64) bool {
	if id > math.MaxUint32 {
		return false
	}
	return b.rb.Contains(uint32(id))
}

// Cardinality returns the number of identifiers in the set.
func (b *Bitmap) Cardinality() uint64 {
	return b.rb.GetCardinality()
}

// Or returns the union of every bitmap in bitmaps as a new bitmap. An empty
// (or nil) slice yields an empty bitmap, the "OR over an empty input list
// returns an empty bitmap" rule the ordered indexer relies on when no keys
// matched.
func Or(bitmaps []*Bitmap) *Bitmap {
	if len(bitmaps) == 0 {
		return New()
	}
	rbs := make([]*roaring.Bitmap, len(bitmaps))
	for i, bm := range bitmaps {
		rbs[i] = bm.rb
	}
	return &Bitmap{rb: roaring.FastOr(rbs...)}
}

// And returns the intersection of b with others.
func (b *Bitmap) And(others ...*Bitmap) *Bitmap {
	if len(others) == 0 {
		return b.Clone()
	}
	rbs := make([]*roaring.Bitmap, 0, len(others)+1)
	rbs = append(rbs, b.rb)
	for _, o := range others {
		rbs = append(rbs, o.rb)
	}
	return &Bitmap{rb: roaring.FastAnd(rbs...)}
}

// Not returns the complement of b with respect to universe (all ids in
// universe that are not in b).
func (b *Bitmap) Not(universe *Bitmap) *Bitmap {
	out := universe.Clone()
	out.rb.AndNot(b.rb)
	return out
}

// Clone returns a deep copy safe to mutate independently of b.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{rb: b.rb.Clone()}
}

// IsEmpty reports whether the set has no members.
func (b *Bitmap) IsEmpty() bool {
	return b.rb.IsEmpty()
}

// ToSlice returns every identifier in ascending order. Ordering of every
// iterator in this package is always ascending; callers rely on it.
func (b *Bitmap) ToSlice() []uint64 {
	vals := b.rb.ToArray()
	out := make([]uint64, len(vals))
	for i, v := range vals {
		out[i] = uint64(v)
	}
	return out
}

// Iterator yields identifiers in strictly increasing order.
type Iterator struct {
	it roaring.IntIterable
}

// Iterator returns an ascending iterator over b's members.
func (b *Bitmap) Iterator() *Iterator {
	return &Iterator{it: b.rb.Iterator()}
}

// HasNext reports whether another identifier remains.
func (it *Iterator) HasNext() bool {
	return it.it.HasNext()
}

// Next returns the next identifier in ascending order.
func (it *Iterator) Next() uint64 {
	return uint64(it.it.Next())
}

// Range materializes a bitmap containing every identifier in [lo, hi).
func Range(lo, hi uint64) *Bitmap {
	bm := New()
	for i := lo; i < hi; i++ {
		bm.Add(i)
	}
	return bm
}
