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
	"cmp"
	"sort"
	"sync"
)

const (
	// DefaultOrder is the default order (max children) for a B-tree node.
	// A higher order means fewer tree levels but more scanning within nodes.
	DefaultOrder = 128

	// DefaultLeafCapacity is the default capacity for leaf nodes
	DefaultLeafCapacity = 128
)

// BTree is an ordered multimap from keys to row offsets, used by range
// indexes. A key holds every offset whose row carries that value.
type BTree[K cmp.Ordered] struct {
	root         *node[K]
	order        int
	leafCapacity int
	// size counts distinct keys
	size  int64
	mutex sync.RWMutex
}

type node[K cmp.Ordered] struct {
	isLeaf bool
	keys   []K
	// values holds row offsets per key (leaf nodes only)
	values   [][]uint32
	children []*node[K]
}

// NewBTree creates a B-tree with the specified order and leaf capacity
func NewBTree[K cmp.Ordered](order, leafCapacity int) *BTree[K] {
	if order <= 0 {
		order = DefaultOrder
	}
	if leafCapacity <= 0 {
		leafCapacity = DefaultLeafCapacity
	}
	return &BTree[K]{
		root: &node[K]{
			isLeaf: true,
			keys:   make([]K, 0, leafCapacity),
			values: make([][]uint32, 0, leafCapacity),
		},
		order:        order,
		leafCapacity: leafCapacity,
	}
}

// Insert adds an offset under key. Duplicate offsets under the same
// key are ignored.
func (bt *BTree[K]) Insert(key K, off uint32) {
	bt.mutex.Lock()
	defer bt.mutex.Unlock()

	nd := bt.root
	for !nd.isLeaf {
		i := sort.Search(len(nd.keys), func(i int) bool {
			return nd.keys[i] >= key
		})
		if i < len(nd.keys) && nd.keys[i] == key {
			i++
		}
		nd = nd.children[i]
	}

	i := sort.Search(len(nd.keys), func(i int) bool {
		return nd.keys[i] >= key
	})

	if i < len(nd.keys) && nd.keys[i] == key {
		for _, existing := range nd.values[i] {
			if existing == off {
				return
			}
		}
		nd.values[i] = append(nd.values[i], off)
		return
	}

	var zero K
	nd.keys = append(nd.keys, zero)
	copy(nd.keys[i+1:], nd.keys[i:])
	nd.keys[i] = key

	nd.values = append(nd.values, nil)
	copy(nd.values[i+1:], nd.values[i:])
	nd.values[i] = []uint32{off}

	bt.size++
	bt.splitLeafIfNeeded(nd)
}

func (bt *BTree[K]) splitLeafIfNeeded(nd *node[K]) {
	if len(nd.keys) <= bt.leafCapacity {
		return
	}

	if nd == bt.root {
		newRoot := &node[K]{
			isLeaf:   false,
			keys:     make([]K, 0),
			children: make([]*node[K], 0),
		}
		bt.root = newRoot
		newRoot.children = append(newRoot.children, nd)
	}

	parent := bt.findParent(bt.root, nd)
	if parent == nil {
		panic("splitLeafIfNeeded: parent not found")
	}

	mid := len(nd.keys) / 2
	sibling := &node[K]{
		isLeaf: true,
		keys:   make([]K, len(nd.keys)-mid),
		values: make([][]uint32, len(nd.keys)-mid),
	}
	copy(sibling.keys, nd.keys[mid:])
	copy(sibling.values, nd.values[mid:])

	nd.keys = nd.keys[:mid]
	nd.values = nd.values[:mid]

	parentIdx := sort.Search(len(parent.keys), func(i int) bool {
		return parent.keys[i] >= sibling.keys[0]
	})

	var zero K
	parent.keys = append(parent.keys, zero)
	copy(parent.keys[parentIdx+1:], parent.keys[parentIdx:])
	parent.keys[parentIdx] = sibling.keys[0]

	parent.children = append(parent.children, nil)
	copy(parent.children[parentIdx+2:], parent.children[parentIdx+1:])
	parent.children[parentIdx+1] = sibling

	bt.splitInternalIfNeeded(parent)
}

func (bt *BTree[K]) splitInternalIfNeeded(nd *node[K]) {
	if len(nd.children) <= bt.order {
		return
	}

	if nd == bt.root {
		newRoot := &node[K]{
			isLeaf:   false,
			keys:     make([]K, 0),
			children: make([]*node[K], 0),
		}
		bt.root = newRoot
		newRoot.children = append(newRoot.children, nd)
	}

	parent := bt.findParent(bt.root, nd)
	if parent == nil {
		panic("splitInternalIfNeeded: parent not found")
	}

	mid := len(nd.keys) / 2
	sibling := &node[K]{
		isLeaf:   false,
		keys:     make([]K, len(nd.keys)-mid-1),
		children: make([]*node[K], len(nd.children)-mid-1),
	}
	// The middle key moves up to the parent
	copy(sibling.keys, nd.keys[mid+1:])
	copy(sibling.children, nd.children[mid+1:])

	midKey := nd.keys[mid]
	nd.keys = nd.keys[:mid]
	nd.children = nd.children[:mid+1]

	parentIdx := sort.Search(len(parent.keys), func(i int) bool {
		return parent.keys[i] >= midKey
	})

	var zero K
	parent.keys = append(parent.keys, zero)
	copy(parent.keys[parentIdx+1:], parent.keys[parentIdx:])
	parent.keys[parentIdx] = midKey

	parent.children = append(parent.children, nil)
	copy(parent.children[parentIdx+2:], parent.children[parentIdx+1:])
	parent.children[parentIdx+1] = sibling

	bt.splitInternalIfNeeded(parent)
}

func (bt *BTree[K]) findParent(current, target *node[K]) *node[K] {
	if current.isLeaf {
		return nil
	}
	for _, child := range current.children {
		if child == target {
			return current
		}
	}
	for _, child := range current.children {
		if parent := bt.findParent(child, target); parent != nil {
			return parent
		}
	}
	return nil
}

// Remove drops one offset from under key. The key entry stays in place
// when its offset set drains; rebalancing on delete is not worth the
// complexity for an append-mostly workload.
func (bt *BTree[K]) Remove(key K, off uint32) bool {
	bt.mutex.Lock()
	defer bt.mutex.Unlock()

	nd := bt.root
	for !nd.isLeaf {
		i := sort.Search(len(nd.keys), func(i int) bool {
			return nd.keys[i] >= key
		})
		if i < len(nd.keys) && nd.keys[i] == key {
			i++
		}
		nd = nd.children[i]
	}

	i := sort.Search(len(nd.keys), func(i int) bool {
		return nd.keys[i] >= key
	})
	if i >= len(nd.keys) || nd.keys[i] != key {
		return false
	}
	vals := nd.values[i]
	for j, existing := range vals {
		if existing == off {
			vals[j] = vals[len(vals)-1]
			nd.values[i] = vals[:len(vals)-1]
			return true
		}
	}
	return false
}

// Search returns the offsets stored under key
func (bt *BTree[K]) Search(key K) []uint32 {
	bt.mutex.RLock()
	defer bt.mutex.RUnlock()

	nd := bt.root
	for !nd.isLeaf {
		i := sort.Search(len(nd.keys), func(i int) bool {
			return nd.keys[i] >= key
		})
		if i < len(nd.keys) && nd.keys[i] == key {
			i++
		}
		nd = nd.children[i]
	}

	i := sort.Search(len(nd.keys), func(i int) bool {
		return nd.keys[i] >= key
	})
	if i < len(nd.keys) && nd.keys[i] == key {
		result := make([]uint32, len(nd.values[i]))
		copy(result, nd.values[i])
		return result
	}
	return nil
}

// Range visits offsets for keys in the given bounds in ascending key
// order. Either bound may be absent; inclusivity is per bound. Returns
// early when f returns false.
func (bt *BTree[K]) Range(lo, hi *K, loInc, hiInc bool, f func(key K, off uint32) bool) {
	bt.mutex.RLock()
	defer bt.mutex.RUnlock()
	bt.rangeNode(bt.root, lo, hi, loInc, hiInc, f)
}

func (bt *BTree[K]) rangeNode(nd *node[K], lo, hi *K, loInc, hiInc bool, f func(K, uint32) bool) bool {
	if nd.isLeaf {
		for i, key := range nd.keys {
			if !keyInRange(key, lo, hi, loInc, hiInc) {
				if hi != nil && (key > *hi || (key == *hi && !hiInc)) {
					return false
				}
				continue
			}
			for _, off := range nd.values[i] {
				if !f(key, off) {
					return false
				}
			}
		}
		return true
	}
	for i, child := range nd.children {
		// Skip subtrees entirely above the range
		if i > 0 && hi != nil {
			sep := nd.keys[i-1]
			if sep > *hi || (sep == *hi && !hiInc) {
				return true
			}
		}
		// Skip subtrees entirely below the range
		if i < len(nd.keys) && lo != nil && nd.keys[i] < *lo {
			continue
		}
		if !bt.rangeNode(child, lo, hi, loInc, hiInc, f) {
			return false
		}
	}
	return true
}

func keyInRange[K cmp.Ordered](key K, lo, hi *K, loInc, hiInc bool) bool {
	if lo != nil {
		if key < *lo || (key == *lo && !loInc) {
			return false
		}
	}
	if hi != nil {
		if key > *hi || (key == *hi && !hiInc) {
			return false
		}
	}
	return true
}

// Ascend visits every key's offsets in ascending key order
func (bt *BTree[K]) Ascend(f func(key K, off uint32) bool) {
	bt.Range(nil, nil, true, true, f)
}

// Size returns the number of distinct keys
func (bt *BTree[K]) Size() int64 {
	bt.mutex.RLock()
	defer bt.mutex.RUnlock()
	return bt.size
}
