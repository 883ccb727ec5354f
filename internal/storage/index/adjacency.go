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
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Adjacency maps a parent row id to the compressed set of child row
// offsets in a related table. It backs foreign-key style lookups and
// index nested loop joins: probing a parent id yields the child side
// without scanning.
type Adjacency struct {
	mu       sync.RWMutex
	children map[int64]*roaring.Bitmap
}

// NewAdjacency creates an empty adjacency index
func NewAdjacency() *Adjacency {
	return &Adjacency{children: make(map[int64]*roaring.Bitmap)}
}

// Link records childOff as a child of parentID
func (a *Adjacency) Link(parentID int64, childOff uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bm := a.children[parentID]
	if bm == nil {
		bm = roaring.New()
		a.children[parentID] = bm
	}
	bm.Add(childOff)
}

// Unlink removes childOff from under parentID
func (a *Adjacency) Unlink(parentID int64, childOff uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if bm := a.children[parentID]; bm != nil {
		bm.Remove(childOff)
		if bm.IsEmpty() {
			delete(a.children, parentID)
		}
	}
}

// Children visits the child offsets linked under parentID
func (a *Adjacency) Children(parentID int64, f func(off uint32) bool) {
	a.mu.RLock()
	bm := a.children[parentID]
	var snapshot *roaring.Bitmap
	if bm != nil {
		snapshot = bm.Clone()
	}
	a.mu.RUnlock()
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

// Fanout returns the number of children under parentID
func (a *Adjacency) Fanout(parentID int64) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if bm := a.children[parentID]; bm != nil {
		return int(bm.GetCardinality())
	}
	return 0
}

// AvgFanout returns the mean children per linked parent, for join
// costing. Zero when the index is empty.
func (a *Adjacency) AvgFanout() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.children) == 0 {
		return 0
	}
	var total uint64
	for _, bm := range a.children {
		total += bm.GetCardinality()
	}
	return float64(total) / float64(len(a.children))
}

// IDSet is a many-to-many link table: each left id owns a 64-bit
// bitmap of right ids. Row ids are unbounded int64s, hence the 64-bit
// roaring variant.
type IDSet struct {
	mu    sync.RWMutex
	links map[int64]*roaring64.Bitmap
}

// NewIDSet creates an empty many-to-many link index
func NewIDSet() *IDSet {
	return &IDSet{links: make(map[int64]*roaring64.Bitmap)}
}

// Link records a relation from leftID to rightID
func (s *IDSet) Link(leftID, rightID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bm := s.links[leftID]
	if bm == nil {
		bm = roaring64.New()
		s.links[leftID] = bm
	}
	bm.Add(uint64(rightID))
}

// Unlink removes the relation from leftID to rightID
func (s *IDSet) Unlink(leftID, rightID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bm := s.links[leftID]; bm != nil {
		bm.Remove(uint64(rightID))
		if bm.IsEmpty() {
			delete(s.links, leftID)
		}
	}
}

// Linked reports whether leftID relates to rightID
func (s *IDSet) Linked(leftID, rightID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bm := s.links[leftID]
	return bm != nil && bm.Contains(uint64(rightID))
}

// Each visits the right ids linked under leftID
func (s *IDSet) Each(leftID int64, f func(rightID int64) bool) {
	s.mu.RLock()
	bm := s.links[leftID]
	var snapshot *roaring64.Bitmap
	if bm != nil {
		snapshot = bm.Clone()
	}
	s.mu.RUnlock()
	if snapshot == nil {
		return
	}
	it := snapshot.Iterator()
	for it.HasNext() {
		if !f(int64(it.Next())) {
			return
		}
	}
}

// Degree returns the number of right ids linked under leftID
func (s *IDSet) Degree(leftID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bm := s.links[leftID]; bm != nil {
		return int(bm.GetCardinality())
	}
	return 0
}
