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
package mvcc

import (
	"sync/atomic"
)

// stamps is a paged array of per-row uint64 words read and written
// atomically. It backs the created/deleted version stamps and the
// per-row seqlock words. Pages never move once allocated, so a word's
// address is stable and atomics on it are safe while the pages slice
// is swapped on growth.
type stamps struct {
	pages    atomic.Pointer[[]*stampPage]
	length   int
	pageSize int
}

type stampPage struct {
	words []uint64
}

func newStamps(pageSize int) *stamps {
	s := &stamps{pageSize: pageSize}
	empty := make([]*stampPage, 0, 4)
	s.pages.Store(&empty)
	return s
}

// append adds a word for the next row. Caller holds the table writer
// lock.
func (s *stamps) append(v uint64) uint32 {
	pages := *s.pages.Load()
	pageIdx := s.length / s.pageSize
	slot := s.length % s.pageSize

	if pageIdx == len(pages) {
		np := &stampPage{words: make([]uint64, s.pageSize)}
		next := make([]*stampPage, len(pages)+1)
		copy(next, pages)
		next[len(pages)] = np
		s.pages.Store(&next)
		pages = next
	}
	atomic.StoreUint64(&pages[pageIdx].words[slot], v)
	off := uint32(s.length)
	s.length++
	return off
}

func (s *stamps) word(off uint32) *uint64 {
	pages := *s.pages.Load()
	return &pages[int(off)/s.pageSize].words[int(off)%s.pageSize]
}

func (s *stamps) load(off uint32) uint64 {
	return atomic.LoadUint64(s.word(off))
}

func (s *stamps) store(off uint32, v uint64) {
	atomic.StoreUint64(s.word(off), v)
}

func (s *stamps) add(off uint32, delta uint64) uint64 {
	return atomic.AddUint64(s.word(off), delta)
}

// discardLast pairs with a failed insert's column rollback
func (s *stamps) discardLast() {
	if s.length > 0 {
		s.length--
	}
}
