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
// Package fastmap provides the lock-free row identity map: logical row
// id to physical offset. Mappings are never removed; whether a row is
// deleted is decided by the table's version stamps, not here. Lookups
// never block; concurrent writes to distinct ids never contend beyond
// their hash bucket.
package fastmap

import (
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// RowMap maps int64 row ids to physical row offsets. Ids are never
// recycled: once mapped, an id keeps its entry for the table's
// lifetime.
type RowMap struct {
	buckets []bucket
	mask    uint64
	count   atomic.Int64
}

type bucket struct {
	head unsafe.Pointer // *node
}

type node struct {
	id     int64
	offset atomic.Uint32
	next   unsafe.Pointer // *node
}

// NewRowMap creates a RowMap with 1<<sizePower buckets
func NewRowMap(sizePower uint) *RowMap {
	if sizePower < 2 {
		sizePower = 2
	}
	size := uint64(1 << sizePower)
	return &RowMap{
		buckets: make([]bucket, size),
		mask:    size - 1,
	}
}

// hashID spreads int64 ids across buckets with a fast avalanche mix
func hashID(x int64) uint64 {
	key := uint64(x)
	key = key * 0xd6e8feb86659fd93
	return bits.RotateLeft64(key, 32) ^ key
}

// Insert adds or updates the offset mapping for an id
func (m *RowMap) Insert(id int64, offset uint32) {
	b := &m.buckets[hashID(id)&m.mask]

retry:
	head := (*node)(atomic.LoadPointer(&b.head))
	for n := head; n != nil; n = (*node)(atomic.LoadPointer(&n.next)) {
		if n.id == id {
			n.offset.Store(offset)
			return
		}
	}

	nn := &node{id: id}
	nn.offset.Store(offset)
	atomic.StorePointer(&nn.next, unsafe.Pointer(head))
	if !atomic.CompareAndSwapPointer(&b.head, unsafe.Pointer(head), unsafe.Pointer(nn)) {
		// Another writer changed the bucket; restart so a concurrent
		// insert of the same id is not duplicated.
		goto retry
	}
	m.count.Add(1)
}

// Lookup returns the offset for an id. An absent id reports false.
func (m *RowMap) Lookup(id int64) (uint32, bool) {
	b := &m.buckets[hashID(id)&m.mask]
	for n := (*node)(atomic.LoadPointer(&b.head)); n != nil; n = (*node)(atomic.LoadPointer(&n.next)) {
		if n.id == id {
			return n.offset.Load(), true
		}
	}
	return 0, false
}

// Len returns the number of mapped ids
func (m *RowMap) Len() int64 {
	return m.count.Load()
}

// ForEach iterates id/offset pairs. Iteration order is unspecified;
// entries inserted during iteration may or may not be visited.
func (m *RowMap) ForEach(f func(id int64, offset uint32) bool) {
	for i := range m.buckets {
		for n := (*node)(atomic.LoadPointer(&m.buckets[i].head)); n != nil; n = (*node)(atomic.LoadPointer(&n.next)) {
			if !f(n.id, n.offset.Load()) {
				return
			}
		}
	}
}
