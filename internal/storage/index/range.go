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
package index

import (
	"fmt"

	"github.com/Thejuampi/memris-sub010/internal/storage"
)

// Range is an ordered index over one column. Numeric and boolean cells
// are keyed by an order-preserving int64 encoding so a single B-tree
// shape serves every kind; string cells get their own tree keyed by
// the string itself.
type Range struct {
	kind storage.Kind
	nums *BTree[int64]
	strs *BTree[string]
}

// NewRange creates a range index over cells of the given kind
func NewRange(kind storage.Kind) *Range {
	r := &Range{kind: kind}
	if kind == storage.KindString {
		r.strs = NewBTree[string](DefaultOrder, DefaultLeafCapacity)
	} else {
		r.nums = NewBTree[int64](DefaultOrder, DefaultLeafCapacity)
	}
	return r
}

// Kind returns the indexed cell kind
func (r *Range) Kind() storage.Kind { return r.kind }

// numKey encodes v as the index's order-preserving int64 key, widening
// across numeric kinds. ok is false when v cannot be a key.
func (r *Range) numKey(v storage.Value) (int64, bool) {
	if v.Null {
		return 0, false
	}
	switch r.kind {
	case storage.KindInt32, storage.KindInt64:
		switch v.K {
		case storage.KindInt32, storage.KindInt64:
			n, _ := v.AsInt64()
			return n, true
		}
	case storage.KindFloat64:
		switch v.K {
		case storage.KindFloat64, storage.KindInt32, storage.KindInt64:
			f, _ := v.AsFloat64()
			return storage.FloatToSortableInt64(f), true
		}
	case storage.KindBool:
		if v.K == storage.KindBool {
			if b, _ := v.AsBool(); b {
				return 1, true
			}
			return 0, true
		}
	}
	return 0, false
}

// Add indexes off under v. Null values are ignored.
func (r *Range) Add(v storage.Value, off uint32) error {
	if v.Null {
		return nil
	}
	if r.strs != nil {
		if v.K != storage.KindString {
			return fmt.Errorf("index: %w: cannot index %s value in %s index", storage.ErrKindMismatch, v.K, r.kind)
		}
		s, _ := v.AsString()
		r.strs.Insert(s, off)
		return nil
	}
	key, ok := r.numKey(v)
	if !ok {
		return fmt.Errorf("index: %w: cannot index %s value in %s index", storage.ErrKindMismatch, v.K, r.kind)
	}
	r.nums.Insert(key, off)
	return nil
}

// Remove drops off from under v
func (r *Range) Remove(v storage.Value, off uint32) {
	if v.Null {
		return
	}
	if r.strs != nil {
		if v.K == storage.KindString {
			s, _ := v.AsString()
			r.strs.Remove(s, off)
		}
		return
	}
	if key, ok := r.numKey(v); ok {
		r.nums.Remove(key, off)
	}
}

// Lookup visits every offset indexed under exactly v
func (r *Range) Lookup(v storage.Value, f func(off uint32) bool) {
	if r.strs != nil {
		if v.K != storage.KindString || v.Null {
			return
		}
		s, _ := v.AsString()
		for _, off := range r.strs.Search(s) {
			if !f(off) {
				return
			}
		}
		return
	}
	key, ok := r.numKey(v)
	if !ok {
		return
	}
	for _, off := range r.nums.Search(key) {
		if !f(off) {
			return
		}
	}
}

// Visit visits offsets whose cell falls between lo and hi in ascending
// cell order. Either bound may be the zero Value with Null set to mark
// an open end. Probe kinds that cannot be encoded make that bound
// unsatisfiable and the visit is empty; callers fall back to a scan
// before that by checking CanProbe.
func (r *Range) Visit(lo, hi storage.Value, loInc, hiInc bool, f func(off uint32) bool) {
	if r.strs != nil {
		var loK, hiK *string
		if !lo.Null {
			if lo.K != storage.KindString {
				return
			}
			s, _ := lo.AsString()
			loK = &s
		}
		if !hi.Null {
			if hi.K != storage.KindString {
				return
			}
			s, _ := hi.AsString()
			hiK = &s
		}
		r.strs.Range(loK, hiK, loInc, hiInc, func(_ string, off uint32) bool {
			return f(off)
		})
		return
	}
	var loK, hiK *int64
	if !lo.Null {
		k, ok := r.numKey(lo)
		if !ok {
			return
		}
		loK = &k
	}
	if !hi.Null {
		k, ok := r.numKey(hi)
		if !ok {
			return
		}
		hiK = &k
	}
	r.nums.Range(loK, hiK, loInc, hiInc, func(_ int64, off uint32) bool {
		return f(off)
	})
}

// CanProbe reports whether v can be encoded as a bound for this index
func (r *Range) CanProbe(v storage.Value) bool {
	if v.Null {
		return true
	}
	if r.strs != nil {
		return v.K == storage.KindString
	}
	_, ok := r.numKey(v)
	return ok
}

// Ascend visits every indexed offset in ascending cell order
func (r *Range) Ascend(f func(off uint32) bool) {
	r.Visit(storage.Value{Null: true}, storage.Value{Null: true}, true, true, f)
}

// Descend visits every indexed offset in descending cell order. The
// tree only iterates forward, so this materializes the ascending walk
// and replays it backward; acceptable for ORDER BY DESC result sizes.
func (r *Range) Descend(f func(off uint32) bool) {
	var offs []uint32
	r.Ascend(func(off uint32) bool {
		offs = append(offs, off)
		return true
	})
	for i := len(offs) - 1; i >= 0; i-- {
		if !f(offs[i]) {
			return
		}
	}
}

// DistinctKeys returns the number of distinct indexed values
func (r *Range) DistinctKeys() int {
	if r.strs != nil {
		return int(r.strs.Size())
	}
	return int(r.nums.Size())
}
