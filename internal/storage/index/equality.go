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
// Package index implements the secondary index structures maintained
// alongside table columns: hash-based equality indexes, B-tree range
// indexes, and bitmap adjacency indexes for relationship traversal.
// Indexes store physical row offsets; version visibility is applied by
// the table scan layer on top of index results.
package index

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Thejuampi/memris-sub010/internal/storage"
)

// Equality maps column values to the set of row offsets carrying that
// value. Null cells are never indexed; null lookups go through a scan.
type Equality struct {
	kind storage.Kind
	mu   sync.RWMutex
	m    map[storage.Value]*roaring.Bitmap
}

// NewEquality creates an equality index over cells of the given kind
func NewEquality(kind storage.Kind) *Equality {
	return &Equality{
		kind: kind,
		m:    make(map[storage.Value]*roaring.Bitmap),
	}
}

// Kind returns the indexed cell kind
func (e *Equality) Kind() storage.Kind { return e.kind }

// canon coerces a probe value to the index kind so that an int64 probe
// finds rows in an int32 column and vice versa. Reports false when the
// value cannot represent an indexed cell.
func (e *Equality) canon(v storage.Value) (storage.Value, bool) {
	if v.Null {
		return storage.Value{}, false
	}
	if v.K == e.kind {
		return v, true
	}
	switch e.kind {
	case storage.KindInt32:
		switch v.K {
		case storage.KindInt64:
			n, _ := v.AsInt64()
			if int64(int32(n)) != n {
				return storage.Value{}, false
			}
			return storage.NewInt32(int32(n)), true
		case storage.KindFloat64:
			n, ok := integralFloat(v)
			if !ok || int64(int32(n)) != n {
				return storage.Value{}, false
			}
			return storage.NewInt32(int32(n)), true
		}
	case storage.KindInt64:
		switch v.K {
		case storage.KindInt32:
			n, _ := v.AsInt64()
			return storage.NewInt64(n), true
		case storage.KindFloat64:
			n, ok := integralFloat(v)
			if !ok {
				return storage.Value{}, false
			}
			return storage.NewInt64(n), true
		}
	case storage.KindFloat64:
		if v.K == storage.KindInt32 || v.K == storage.KindInt64 {
			n, _ := v.AsInt64()
			return storage.NewFloat64(float64(n)), true
		}
	}
	return storage.Value{}, false
}

// integralFloat folds an exactly-integral float probe onto its int64
// value, matching the widening Value.Compare applies on the scan path.
func integralFloat(v storage.Value) (int64, bool) {
	f, _ := v.AsFloat64()
	n := int64(f)
	if float64(n) != f {
		return 0, false
	}
	return n, true
}

// CanProbe reports whether v can be canonicalized to an index key.
// A false return means the caller must answer the predicate by scan.
func (e *Equality) CanProbe(v storage.Value) bool {
	_, ok := e.canon(v)
	return ok
}

// Add indexes off under v. Null values are ignored.
func (e *Equality) Add(v storage.Value, off uint32) error {
	if v.Null {
		return nil
	}
	key, ok := e.canon(v)
	if !ok {
		return fmt.Errorf("index: %w: cannot index %s value in %s index", storage.ErrKindMismatch, v.K, e.kind)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	bm := e.m[key]
	if bm == nil {
		bm = roaring.New()
		e.m[key] = bm
	}
	bm.Add(off)
	return nil
}

// Remove drops off from under v
func (e *Equality) Remove(v storage.Value, off uint32) {
	if v.Null {
		return
	}
	key, ok := e.canon(v)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if bm := e.m[key]; bm != nil {
		bm.Remove(off)
		if bm.IsEmpty() {
			delete(e.m, key)
		}
	}
}

// Lookup visits every offset indexed under v
func (e *Equality) Lookup(v storage.Value, f func(off uint32) bool) {
	key, ok := e.canon(v)
	if !ok {
		return
	}
	e.mu.RLock()
	bm := e.m[key]
	var snapshot *roaring.Bitmap
	if bm != nil {
		snapshot = bm.Clone()
	}
	e.mu.RUnlock()
	if snapshot == nil {
		return
	}
	it := snapshot.Iterator()
	for it.HasNext() {
		if !f(it.Next()) {
			return
		}
	}
}

// EstimateMatches returns the number of offsets indexed under v, for
// planner costing.
func (e *Equality) EstimateMatches(v storage.Value) int {
	key, ok := e.canon(v)
	if !ok {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if bm := e.m[key]; bm != nil {
		return int(bm.GetCardinality())
	}
	return 0
}

// DistinctKeys returns the number of distinct indexed values
func (e *Equality) DistinctKeys() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.m)
}
