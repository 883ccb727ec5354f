/*
Copyright 2025 Memris Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
// Package selection implements selection vectors: sets of physical row
// offsets produced by predicate evaluation and combined by the query
// engine. A vector is sparse (a sorted offset slice) when it selects
// few rows and dense (a bitmap) when it selects many; combinators
// normalize their result to whichever representation the result's
// density calls for.
package selection

import (
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// DefaultDenseThreshold is the selected fraction above which a vector
// is kept in bitmap form.
const DefaultDenseThreshold = 0.05

// Vector is an immutable set of row offsets in ascending order
type Vector interface {
	// Contains reports whether off is selected
	Contains(off uint32) bool

	// Cardinality returns the number of selected offsets
	Cardinality() int

	// Bound returns the exclusive upper bound the vector was built
	// against, the table's row count at build time.
	Bound() uint32

	// ForEach visits offsets in ascending order until f returns false
	ForEach(f func(off uint32) bool)

	// Offsets materializes the selected offsets in ascending order
	Offsets() []uint32

	// Dense reports the representation, for planner costing
	Dense() bool
}

// Sparse is a sorted slice of selected offsets
type Sparse struct {
	offs  []uint32
	bound uint32
}

// NewSparse wraps offs, which must be sorted ascending and duplicate
// free.
func NewSparse(offs []uint32, bound uint32) *Sparse {
	return &Sparse{offs: offs, bound: bound}
}

func (s *Sparse) Contains(off uint32) bool {
	i := sort.Search(len(s.offs), func(i int) bool { return s.offs[i] >= off })
	return i < len(s.offs) && s.offs[i] == off
}

func (s *Sparse) Cardinality() int { return len(s.offs) }
func (s *Sparse) Bound() uint32    { return s.bound }
func (s *Sparse) Dense() bool      { return false }

func (s *Sparse) ForEach(f func(off uint32) bool) {
	for _, off := range s.offs {
		if !f(off) {
			return
		}
	}
}

func (s *Sparse) Offsets() []uint32 {
	out := make([]uint32, len(s.offs))
	copy(out, s.offs)
	return out
}

// DenseVector is a bitmap of selected offsets
type DenseVector struct {
	bits  *bitset.BitSet
	card  int
	bound uint32
}

// NewDense wraps bits; card must equal bits.Count()
func NewDense(bits *bitset.BitSet, bound uint32) *DenseVector {
	return &DenseVector{bits: bits, card: int(bits.Count()), bound: bound}
}

func (d *DenseVector) Contains(off uint32) bool { return d.bits.Test(uint(off)) }
func (d *DenseVector) Cardinality() int         { return d.card }
func (d *DenseVector) Bound() uint32            { return d.bound }
func (d *DenseVector) Dense() bool              { return true }

func (d *DenseVector) ForEach(f func(off uint32) bool) {
	for i, ok := d.bits.NextSet(0); ok; i, ok = d.bits.NextSet(i + 1) {
		if !f(uint32(i)) {
			return
		}
	}
}

func (d *DenseVector) Offsets() []uint32 {
	out := make([]uint32, 0, d.card)
	d.ForEach(func(off uint32) bool {
		out = append(out, off)
		return true
	})
	return out
}

// Builder accumulates offsets during a scan or index probe. Offsets
// may arrive in any order; Seal produces the normalized vector.
type Builder struct {
	bits      *bitset.BitSet
	bound     uint32
	threshold float64
}

// NewBuilder creates a builder for offsets in [0, bound)
func NewBuilder(bound uint32, threshold float64) *Builder {
	if threshold <= 0 {
		threshold = DefaultDenseThreshold
	}
	return &Builder{
		bits:      bitset.New(uint(bound)),
		bound:     bound,
		threshold: threshold,
	}
}

// Add selects off
func (b *Builder) Add(off uint32) {
	b.bits.Set(uint(off))
}

// Seal freezes the builder into a vector, choosing sparse or dense by
// the density threshold. The builder must not be reused after Seal.
func (b *Builder) Seal() Vector {
	card := int(b.bits.Count())
	if b.bound > 0 && float64(card)/float64(b.bound) > b.threshold {
		return &DenseVector{bits: b.bits, card: card, bound: b.bound}
	}
	offs := make([]uint32, 0, card)
	for i, ok := b.bits.NextSet(0); ok; i, ok = b.bits.NextSet(i + 1) {
		offs = append(offs, uint32(i))
	}
	return &Sparse{offs: offs, bound: b.bound}
}

// Empty returns an empty vector over [0, bound)
func Empty(bound uint32) Vector {
	return &Sparse{bound: bound}
}

// All returns a vector selecting every offset in [0, bound)
func All(bound uint32) Vector {
	bits := bitset.New(uint(bound))
	for i := uint32(0); i < bound; i++ {
		bits.Set(uint(i))
	}
	return &DenseVector{bits: bits, card: int(bound), bound: bound}
}

func maxBound(a, b Vector) uint32 {
	if a.Bound() > b.Bound() {
		return a.Bound()
	}
	return b.Bound()
}

// normalize re-represents a dense result as sparse when it falls under
// the threshold, and vice versa.
func normalize(v Vector, threshold float64) Vector {
	if threshold <= 0 {
		threshold = DefaultDenseThreshold
	}
	bound := v.Bound()
	dense := bound > 0 && float64(v.Cardinality())/float64(bound) > threshold
	if dense == v.Dense() {
		return v
	}
	if dense {
		bits := bitset.New(uint(bound))
		v.ForEach(func(off uint32) bool {
			bits.Set(uint(off))
			return true
		})
		return &DenseVector{bits: bits, card: v.Cardinality(), bound: bound}
	}
	return &Sparse{offs: v.Offsets(), bound: bound}
}

// Intersect returns a AND b
func Intersect(a, b Vector, threshold float64) Vector {
	bound := maxBound(a, b)
	if da, ok := a.(*DenseVector); ok {
		if db, ok := b.(*DenseVector); ok {
			bits := da.bits.Intersection(db.bits)
			return normalize(NewDense(bits, bound), threshold)
		}
	}
	if sa, ok := a.(*Sparse); ok {
		if sb, ok := b.(*Sparse); ok {
			return NewSparse(mergeIntersect(sa.offs, sb.offs), bound)
		}
	}
	// Mixed: probe the dense side with the sparse side's offsets
	sparse, dense := a, b
	if a.Dense() {
		sparse, dense = b, a
	}
	out := make([]uint32, 0, sparse.Cardinality())
	sparse.ForEach(func(off uint32) bool {
		if dense.Contains(off) {
			out = append(out, off)
		}
		return true
	})
	return NewSparse(out, bound)
}

// Union returns a OR b
func Union(a, b Vector, threshold float64) Vector {
	bound := maxBound(a, b)
	if da, ok := a.(*DenseVector); ok {
		if db, ok := b.(*DenseVector); ok {
			return normalize(NewDense(da.bits.Union(db.bits), bound), threshold)
		}
	}
	if sa, ok := a.(*Sparse); ok {
		if sb, ok := b.(*Sparse); ok {
			return normalize(NewSparse(mergeUnion(sa.offs, sb.offs), bound), threshold)
		}
	}
	bits := bitset.New(uint(bound))
	a.ForEach(func(off uint32) bool { bits.Set(uint(off)); return true })
	b.ForEach(func(off uint32) bool { bits.Set(uint(off)); return true })
	return normalize(NewDense(bits, bound), threshold)
}

// Subtract returns a AND NOT b
func Subtract(a, b Vector, threshold float64) Vector {
	bound := maxBound(a, b)
	if da, ok := a.(*DenseVector); ok {
		if db, ok := b.(*DenseVector); ok {
			return normalize(NewDense(da.bits.Difference(db.bits), bound), threshold)
		}
	}
	out := make([]uint32, 0, a.Cardinality())
	a.ForEach(func(off uint32) bool {
		if !b.Contains(off) {
			out = append(out, off)
		}
		return true
	})
	return normalize(NewSparse(out, bound), threshold)
}

func mergeIntersect(a, b []uint32) []uint32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]uint32, 0, n)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func mergeUnion(a, b []uint32) []uint32 {
	out := make([]uint32, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
