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
// Package column implements paged fixed-width typed columns. Storage
// grows page by page; a page, once allocated, is never reallocated or
// moved, so a physical offset handed to a reader stays valid for the
// column's lifetime. Appends and sets are serialized by the owning
// table's writer lock; reads are lock-free for offsets the table has
// published. Every cell is one uint64 word accessed atomically, so a
// reader racing a same-row write under the table's seqlock sees either
// the old word or the new one, never a torn value.
package column

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/Thejuampi/memris-sub010/internal/storage"
)

// Column is a single typed column of a table
type Column interface {
	// Kind returns the cell kind the column stores
	Kind() storage.Kind

	// Len returns the number of appended cells
	Len() int

	// Append writes v at the next offset and returns that offset.
	// The value's kind must match the column's kind unless v is null.
	Append(v storage.Value) (uint32, error)

	// Get returns the cell at off, or ErrOutOfBounds
	Get(off uint32) (storage.Value, error)

	// Set overwrites the cell at off
	Set(off uint32, v storage.Value) error

	// Capacity returns the number of allocated cell slots
	Capacity() int

	// Grow allocates the next page ahead of need. Appends allocate on
	// demand; Grow lets a bulk loader pay the allocation up front.
	Grow() error

	// DiscardLast drops the most recent cell. Used to roll back a
	// failed multi-column insert; the cell's page is retained.
	DiscardLast()
}

// New creates a column of the given kind. String columns intern
// through pool, which may be shared across columns.
func New(kind storage.Kind, cfg storage.Config, pool *Pool) (Column, error) {
	switch kind {
	case storage.KindInt32:
		return &Int32Column{paged: newPaged(cfg)}, nil
	case storage.KindInt64:
		return &Int64Column{paged: newPaged(cfg)}, nil
	case storage.KindFloat64:
		return &Float64Column{paged: newPaged(cfg)}, nil
	case storage.KindBool:
		return &BoolColumn{paged: newPaged(cfg)}, nil
	case storage.KindString:
		if pool == nil {
			pool = NewPool()
		}
		return &StringColumn{paged: newPaged(cfg), pool: pool}, nil
	default:
		return nil, fmt.Errorf("column: unsupported kind %s", kind)
	}
}

type page struct {
	vals  []uint64
	nulls []uint64
}

// paged holds the shared page mechanics for every cell type. Cells are
// stored as uint64 words; the typed column wrappers encode and decode
// their representation. The pages slice is swapped atomically on
// growth so readers traversing it never see a partially appended slice
// header, and every word load and store is atomic.
type paged struct {
	pages    atomic.Pointer[[]*page]
	length   atomic.Int64
	pageSize int
	maxPages int
}

func newPaged(cfg storage.Config) *paged {
	p := &paged{}
	p.pageSize = cfg.PageSize
	if p.pageSize <= 0 {
		p.pageSize = storage.DefaultConfig().PageSize
	}
	p.maxPages = cfg.MaxPages
	if p.maxPages <= 0 {
		p.maxPages = storage.DefaultConfig().MaxPages
	}
	empty := make([]*page, 0, 4)
	p.pages.Store(&empty)
	return p
}

func (p *paged) lenCells() int { return int(p.length.Load()) }

func (p *paged) capacityCells() int {
	return len(*p.pages.Load()) * p.pageSize
}

func (p *paged) newPage() *page {
	return &page{
		vals:  make([]uint64, p.pageSize),
		nulls: make([]uint64, (p.pageSize+63)/64),
	}
}

func (p *paged) grow() error {
	pages := *p.pages.Load()
	if len(pages) >= p.maxPages {
		return storage.ErrCapacityExceeded
	}
	next := make([]*page, len(pages)+1)
	copy(next, pages)
	next[len(pages)] = p.newPage()
	p.pages.Store(&next)
	return nil
}

func (p *paged) appendCell(w uint64, null bool) (uint32, error) {
	pages := *p.pages.Load()
	length := int(p.length.Load())
	pageIdx := length / p.pageSize
	slot := length % p.pageSize

	if pageIdx == len(pages) {
		if pageIdx >= p.maxPages {
			return 0, storage.ErrCapacityExceeded
		}
		next := make([]*page, len(pages)+1)
		copy(next, pages)
		next[len(pages)] = p.newPage()
		p.pages.Store(&next)
		pages = next
	}

	pg := pages[pageIdx]
	atomic.StoreUint64(&pg.vals[slot], w)
	p.storeNull(pg, slot, null)
	p.length.Store(int64(length + 1))
	return uint32(length), nil
}

// storeNull updates one bit of the null word. The single writer holds
// the table lock, so load-modify-store needs no CAS; the atomic store
// keeps the word whole for concurrent readers.
func (p *paged) storeNull(pg *page, slot int, null bool) {
	wp := &pg.nulls[slot/64]
	w := atomic.LoadUint64(wp)
	if null {
		w |= 1 << (slot % 64)
	} else {
		w &^= 1 << (slot % 64)
	}
	atomic.StoreUint64(wp, w)
}

func (p *paged) getCell(off uint32) (uint64, bool, error) {
	if int64(off) >= p.length.Load() {
		return 0, false, storage.ErrOutOfBounds
	}
	pages := *p.pages.Load()
	pg := pages[int(off)/p.pageSize]
	slot := int(off) % p.pageSize
	null := atomic.LoadUint64(&pg.nulls[slot/64])&(1<<(slot%64)) != 0
	return atomic.LoadUint64(&pg.vals[slot]), null, nil
}

func (p *paged) setCell(off uint32, w uint64, null bool) error {
	if int64(off) >= p.length.Load() {
		return storage.ErrOutOfBounds
	}
	pages := *p.pages.Load()
	pg := pages[int(off)/p.pageSize]
	slot := int(off) % p.pageSize
	atomic.StoreUint64(&pg.vals[slot], w)
	p.storeNull(pg, slot, null)
	return nil
}

func (p *paged) discardLast() {
	if n := p.length.Load(); n > 0 {
		p.length.Store(n - 1)
	}
}

func checkKind(v storage.Value, want storage.Kind) error {
	if v.Null {
		return nil
	}
	if v.K != want {
		return fmt.Errorf("column: %w: have %s, want %s", storage.ErrKindMismatch, v.K, want)
	}
	return nil
}

// Int32Column stores 32-bit integers
type Int32Column struct{ *paged }

func (c *Int32Column) Kind() storage.Kind { return storage.KindInt32 }
func (c *Int32Column) Len() int           { return c.lenCells() }
func (c *Int32Column) DiscardLast()       { c.discardLast() }
func (c *Int32Column) Capacity() int      { return c.capacityCells() }
func (c *Int32Column) Grow() error        { return c.grow() }

func (c *Int32Column) Append(v storage.Value) (uint32, error) {
	if err := checkKind(v, storage.KindInt32); err != nil {
		return 0, err
	}
	if v.Null {
		return c.appendCell(0, true)
	}
	n, _ := v.AsInt64()
	return c.appendCell(uint64(uint32(int32(n))), false)
}

func (c *Int32Column) Get(off uint32) (storage.Value, error) {
	w, null, err := c.getCell(off)
	if err != nil {
		return storage.Value{}, err
	}
	if null {
		return storage.NewNull(storage.KindInt32), nil
	}
	return storage.NewInt32(int32(uint32(w))), nil
}

func (c *Int32Column) Set(off uint32, v storage.Value) error {
	if err := checkKind(v, storage.KindInt32); err != nil {
		return err
	}
	if v.Null {
		return c.setCell(off, 0, true)
	}
	n, _ := v.AsInt64()
	return c.setCell(off, uint64(uint32(int32(n))), false)
}

// Int64At reads the raw cell for scan loops; ok is false for nulls or
// out-of-range offsets.
func (c *Int32Column) Int64At(off uint32) (int64, bool) {
	w, null, err := c.getCell(off)
	if err != nil || null {
		return 0, false
	}
	return int64(int32(uint32(w))), true
}

// Int64Column stores 64-bit integers
type Int64Column struct{ *paged }

func (c *Int64Column) Kind() storage.Kind { return storage.KindInt64 }
func (c *Int64Column) Len() int           { return c.lenCells() }
func (c *Int64Column) DiscardLast()       { c.discardLast() }
func (c *Int64Column) Capacity() int      { return c.capacityCells() }
func (c *Int64Column) Grow() error        { return c.grow() }

func (c *Int64Column) Append(v storage.Value) (uint32, error) {
	if err := checkKind(v, storage.KindInt64); err != nil {
		return 0, err
	}
	if v.Null {
		return c.appendCell(0, true)
	}
	n, _ := v.AsInt64()
	return c.appendCell(uint64(n), false)
}

func (c *Int64Column) Get(off uint32) (storage.Value, error) {
	w, null, err := c.getCell(off)
	if err != nil {
		return storage.Value{}, err
	}
	if null {
		return storage.NewNull(storage.KindInt64), nil
	}
	return storage.NewInt64(int64(w)), nil
}

func (c *Int64Column) Set(off uint32, v storage.Value) error {
	if err := checkKind(v, storage.KindInt64); err != nil {
		return err
	}
	if v.Null {
		return c.setCell(off, 0, true)
	}
	n, _ := v.AsInt64()
	return c.setCell(off, uint64(n), false)
}

func (c *Int64Column) Int64At(off uint32) (int64, bool) {
	w, null, err := c.getCell(off)
	if err != nil || null {
		return 0, false
	}
	return int64(w), true
}

// Float64Column stores IEEE-754 doubles
type Float64Column struct{ *paged }

func (c *Float64Column) Kind() storage.Kind { return storage.KindFloat64 }
func (c *Float64Column) Len() int           { return c.lenCells() }
func (c *Float64Column) DiscardLast()       { c.discardLast() }
func (c *Float64Column) Capacity() int      { return c.capacityCells() }
func (c *Float64Column) Grow() error        { return c.grow() }

func (c *Float64Column) Append(v storage.Value) (uint32, error) {
	if err := checkKind(v, storage.KindFloat64); err != nil {
		return 0, err
	}
	if v.Null {
		return c.appendCell(math.Float64bits(math.NaN()), true)
	}
	f, _ := v.AsFloat64()
	return c.appendCell(math.Float64bits(f), false)
}

func (c *Float64Column) Get(off uint32) (storage.Value, error) {
	w, null, err := c.getCell(off)
	if err != nil {
		return storage.Value{}, err
	}
	if null {
		return storage.NewNull(storage.KindFloat64), nil
	}
	return storage.NewFloat64(math.Float64frombits(w)), nil
}

func (c *Float64Column) Set(off uint32, v storage.Value) error {
	if err := checkKind(v, storage.KindFloat64); err != nil {
		return err
	}
	if v.Null {
		return c.setCell(off, math.Float64bits(math.NaN()), true)
	}
	f, _ := v.AsFloat64()
	return c.setCell(off, math.Float64bits(f), false)
}

func (c *Float64Column) Float64At(off uint32) (float64, bool) {
	w, null, err := c.getCell(off)
	if err != nil || null {
		return 0, false
	}
	return math.Float64frombits(w), true
}

// BoolColumn stores booleans
type BoolColumn struct{ *paged }

func (c *BoolColumn) Kind() storage.Kind { return storage.KindBool }
func (c *BoolColumn) Len() int           { return c.lenCells() }
func (c *BoolColumn) DiscardLast()       { c.discardLast() }
func (c *BoolColumn) Capacity() int      { return c.capacityCells() }
func (c *BoolColumn) Grow() error        { return c.grow() }

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (c *BoolColumn) Append(v storage.Value) (uint32, error) {
	if err := checkKind(v, storage.KindBool); err != nil {
		return 0, err
	}
	if v.Null {
		return c.appendCell(0, true)
	}
	b, _ := v.AsBool()
	return c.appendCell(boolWord(b), false)
}

func (c *BoolColumn) Get(off uint32) (storage.Value, error) {
	w, null, err := c.getCell(off)
	if err != nil {
		return storage.Value{}, err
	}
	if null {
		return storage.NewNull(storage.KindBool), nil
	}
	return storage.NewBool(w != 0), nil
}

func (c *BoolColumn) Set(off uint32, v storage.Value) error {
	if err := checkKind(v, storage.KindBool); err != nil {
		return err
	}
	if v.Null {
		return c.setCell(off, 0, true)
	}
	b, _ := v.AsBool()
	return c.setCell(off, boolWord(b), false)
}

func (c *BoolColumn) BoolAt(off uint32) (bool, bool) {
	w, null, err := c.getCell(off)
	if err != nil || null {
		return false, false
	}
	return w != 0, true
}

// StringColumn stores pool handles; cells stay fixed width regardless
// of string length
type StringColumn struct {
	*paged
	pool *Pool
}

func (c *StringColumn) Kind() storage.Kind { return storage.KindString }
func (c *StringColumn) Len() int           { return c.lenCells() }
func (c *StringColumn) DiscardLast()       { c.discardLast() }
func (c *StringColumn) Capacity() int      { return c.capacityCells() }
func (c *StringColumn) Grow() error        { return c.grow() }

// Pool exposes the column's intern pool for index key resolution
func (c *StringColumn) Pool() *Pool { return c.pool }

func (c *StringColumn) Append(v storage.Value) (uint32, error) {
	if err := checkKind(v, storage.KindString); err != nil {
		return 0, err
	}
	if v.Null {
		return c.appendCell(0, true)
	}
	s, _ := v.AsString()
	return c.appendCell(uint64(c.pool.Intern(s)), false)
}

func (c *StringColumn) Get(off uint32) (storage.Value, error) {
	w, null, err := c.getCell(off)
	if err != nil {
		return storage.Value{}, err
	}
	if null {
		return storage.NewNull(storage.KindString), nil
	}
	h := uint32(w)
	s, ok := c.pool.Resolve(h)
	if !ok {
		return storage.Value{}, fmt.Errorf("column: dangling string handle %d at offset %d", h, off)
	}
	return storage.NewString(s), nil
}

func (c *StringColumn) Set(off uint32, v storage.Value) error {
	if err := checkKind(v, storage.KindString); err != nil {
		return err
	}
	if v.Null {
		return c.setCell(off, 0, true)
	}
	s, _ := v.AsString()
	return c.setCell(off, uint64(c.pool.Intern(s)), false)
}

// StringAt reads the resolved string for scan loops
func (c *StringColumn) StringAt(off uint32) (string, bool) {
	w, null, err := c.getCell(off)
	if err != nil || null {
		return "", false
	}
	return c.pool.Resolve(uint32(w))
}

// HandleAt reads the raw pool handle, for equality probes that compare
// handles instead of strings.
func (c *StringColumn) HandleAt(off uint32) (uint32, bool) {
	w, null, err := c.getCell(off)
	if err != nil || null {
		return 0, false
	}
	return uint32(w), true
}
