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
package fastmap

import (
	"sync"
	"testing"
)

func TestRowMapBasic(t *testing.T) {
	m := NewRowMap(4)

	if _, ok := m.Lookup(1); ok {
		t.Fatalf("expected miss on empty map")
	}

	m.Insert(1, 100)
	m.Insert(2, 200)
	m.Insert(3, 300)

	if off, ok := m.Lookup(2); !ok || off != 200 {
		t.Fatalf("Lookup(2) = %d, %v; want 200, true", off, ok)
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d; want 3", m.Len())
	}

	// Update in place
	m.Insert(2, 250)
	if off, _ := m.Lookup(2); off != 250 {
		t.Fatalf("Lookup(2) after update = %d; want 250", off)
	}
	if m.Len() != 3 {
		t.Fatalf("Len() after update = %d; want 3", m.Len())
	}
}

func TestRowMapForEach(t *testing.T) {
	m := NewRowMap(4)
	for i := int64(0); i < 100; i++ {
		m.Insert(i, uint32(i*10))
	}

	seen := make(map[int64]uint32)
	m.ForEach(func(id int64, off uint32) bool {
		seen[id] = off
		return true
	})
	if len(seen) != 100 {
		t.Fatalf("visited %d entries; want 100", len(seen))
	}
	if seen[42] != 420 {
		t.Fatalf("seen[42] = %d; want 420", seen[42])
	}
}

func TestRowMapConcurrent(t *testing.T) {
	m := NewRowMap(8)
	const goroutines = 8
	const perG = 1000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			base := int64(g * perG)
			for i := int64(0); i < perG; i++ {
				m.Insert(base+i, uint32(base+i))
			}
		}(g)
	}
	wg.Wait()

	if m.Len() != goroutines*perG {
		t.Fatalf("Len() = %d; want %d", m.Len(), goroutines*perG)
	}
	for i := int64(0); i < goroutines*perG; i++ {
		if off, ok := m.Lookup(i); !ok || off != uint32(i) {
			t.Fatalf("Lookup(%d) = %d, %v", i, off, ok)
		}
	}
}
