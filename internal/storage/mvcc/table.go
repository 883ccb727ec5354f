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
// Package mvcc implements versioned in-memory tables. Each row carries
// a created and a deleted version stamp; a snapshot at version v sees
// exactly the rows with created <= v < deleted. Inserts and deletes
// are versioned, in-place updates are guarded by a per-row seqlock so
// lock-free readers never observe a torn row.
//
// One writer mutates the table at a time. Readers never take the
// writer lock: inserts become visible through an atomic row count and
// version publish, updates through the seqlock protocol.
package mvcc

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/Thejuampi/memris-sub010/internal/fastmap"
	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/column"
	"github.com/Thejuampi/memris-sub010/internal/storage/index"
)

// Table is a versioned columnar table
type Table struct {
	schema storage.Schema
	cfg    storage.Config
	log    *zap.Logger

	// mu serializes writers
	mu sync.Mutex
	// stableMu is the torn-read escalation path. Writers hold it
	// shared while inside a seqlock critical section; a reader that
	// exhausts its retries takes it exclusively and reads with no
	// writer mid-row.
	stableMu sync.RWMutex

	cols []column.Column
	pool *column.Pool

	rows      *fastmap.RowMap
	nextID    atomic.Int64
	liveCount atomic.Int64

	// rowCount publishes inserted rows to readers, version publishes
	// mutations to snapshots. rowCount is stored before version.
	rowCount atomic.Uint32
	version  atomic.Uint64

	created *stamps
	deleted *stamps
	seq     *stamps

	idxMu  sync.RWMutex
	eqIdx  map[int]*index.Equality
	rngIdx map[int]*index.Range
	adjIdx map[int]*index.Adjacency

	// links holds named many-to-many id link sets attached to this
	// table, maintained by the caller through Link/Unlink.
	linkMu sync.RWMutex
	links  map[string]*index.IDSet

	// workers runs parallel scan chunks; nil scans sequentially
	workers *ants.Pool

	closed atomic.Bool
}

// NewTable creates an empty table for the schema. logger may be nil,
// workers may be nil to disable parallel scans.
func NewTable(schema storage.Schema, cfg storage.Config, logger *zap.Logger, workers *ants.Pool) (*Table, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Table{
		schema:  schema,
		cfg:     cfg,
		log:     logger.With(zap.String("table", schema.TableName)),
		pool:    column.NewPool(),
		rows:    fastmap.NewRowMap(10),
		created: newStamps(cfg.PageSize),
		deleted: newStamps(cfg.PageSize),
		seq:     newStamps(cfg.PageSize),
		eqIdx:   make(map[int]*index.Equality),
		rngIdx:  make(map[int]*index.Range),
		adjIdx:  make(map[int]*index.Adjacency),
		links:   make(map[string]*index.IDSet),
		workers: workers,
	}
	for _, sc := range schema.Columns {
		c, err := column.New(sc.Kind, cfg, t.pool)
		if err != nil {
			return nil, err
		}
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// Schema returns the table schema
func (t *Table) Schema() storage.Schema { return t.schema }

// Name returns the table name
func (t *Table) Name() string { return t.schema.TableName }

// Version returns the current published version
func (t *Table) Version() uint64 { return t.version.Load() }

// Close marks the table closed; later mutations and snapshots fail
// with ErrClosed.
func (t *Table) Close() {
	t.closed.Store(true)
}

func (t *Table) checkOpen() error {
	if t.closed.Load() {
		return fmt.Errorf("table %s: %w", t.schema.TableName, storage.ErrClosed)
	}
	return nil
}

// validateRow checks arity, kinds and nullability against the schema
func (t *Table) validateRow(row storage.Row) error {
	if len(row) != len(t.schema.Columns) {
		return fmt.Errorf("table %s: %w: row has %d cells, schema has %d columns",
			t.schema.TableName, storage.ErrInvalidQuery, len(row), len(t.schema.Columns))
	}
	for i, v := range row {
		sc := t.schema.Columns[i]
		if v.Null {
			if !sc.Nullable {
				return fmt.Errorf("table %s: %w: null in non-nullable column %s",
					t.schema.TableName, storage.ErrInvalidQuery, sc.Name)
			}
			continue
		}
		if !kindAssignable(v.K, sc.Kind) {
			return fmt.Errorf("table %s: %w: column %s holds %s, got %s",
				t.schema.TableName, storage.ErrKindMismatch, sc.Name, sc.Kind, v.K)
		}
	}
	return nil
}

func kindAssignable(have, want storage.Kind) bool {
	if have == want {
		return true
	}
	// Integer literals widen; anything else must match exactly
	return (have == storage.KindInt32 && want == storage.KindInt64) ||
		(have == storage.KindInt64 && want == storage.KindInt32)
}

// Insert appends a row and returns its id. A zero or null id cell is
// replaced with the next auto-increment id; an explicit id that is
// already present, live or deleted, fails with ErrDuplicateID since
// ids are never recycled.
func (t *Table) Insert(row storage.Row) (int64, error) {
	if err := t.checkOpen(); err != nil {
		return 0, err
	}
	if err := t.validateRow(row); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := t.assignID(row[0])
	if err != nil {
		return 0, err
	}
	stamped := make(storage.Row, len(row))
	copy(stamped, row)
	stamped[0] = storage.NewInt64(id)

	stamp := t.version.Load() + 1

	var off uint32
	for i, v := range stamped {
		o, err := t.cols[i].Append(coerce(v, t.schema.Columns[i].Kind))
		if err != nil {
			for j := 0; j < i; j++ {
				t.cols[j].DiscardLast()
			}
			return 0, err
		}
		off = o
	}

	t.created.append(stamp)
	t.deleted.append(0)
	t.seq.append(0)

	if err := t.indexRow(stamped, off); err != nil {
		t.deleted.discardLast()
		t.created.discardLast()
		t.seq.discardLast()
		for _, c := range t.cols {
			c.DiscardLast()
		}
		return 0, err
	}

	t.rows.Insert(id, off)
	t.liveCount.Add(1)

	t.rowCount.Store(off + 1)
	t.version.Store(stamp)
	return id, nil
}

func (t *Table) assignID(idCell storage.Value) (int64, error) {
	var id int64
	if !idCell.Null {
		id, _ = idCell.AsInt64()
	}
	if id == 0 {
		return t.nextID.Add(1), nil
	}
	if id < 0 {
		return 0, fmt.Errorf("table %s: %w: negative id %d", t.schema.TableName, storage.ErrInvalidQuery, id)
	}
	if _, exists := t.rows.Lookup(id); exists {
		return 0, fmt.Errorf("table %s: %w: id %d", t.schema.TableName, storage.ErrDuplicateID, id)
	}
	// Keep the auto-increment counter ahead of explicit ids
	for {
		cur := t.nextID.Load()
		if cur >= id || t.nextID.CompareAndSwap(cur, id) {
			break
		}
	}
	return id, nil
}

// coerce widens an integer literal to the column kind
func coerce(v storage.Value, want storage.Kind) storage.Value {
	if v.Null || v.K == want {
		return v
	}
	n, _ := v.AsInt64()
	switch want {
	case storage.KindInt64:
		return storage.NewInt64(n)
	case storage.KindInt32:
		return storage.NewInt32(int32(n))
	}
	return v
}

// indexRow feeds a freshly appended row into every secondary index,
// unwinding on failure.
func (t *Table) indexRow(row storage.Row, off uint32) error {
	t.idxMu.RLock()
	defer t.idxMu.RUnlock()

	var doneEq, doneRng []int
	for i, idx := range t.eqIdx {
		if err := idx.Add(row[i], off); err != nil {
			t.unindexRow(row, off, doneEq, doneRng, nil)
			return err
		}
		doneEq = append(doneEq, i)
	}
	for i, idx := range t.rngIdx {
		if err := idx.Add(row[i], off); err != nil {
			t.unindexRow(row, off, doneEq, doneRng, nil)
			return err
		}
		doneRng = append(doneRng, i)
	}
	for i, adj := range t.adjIdx {
		if row[i].Null {
			continue
		}
		fk, _ := row[i].AsInt64()
		adj.Link(fk, off)
	}
	return nil
}

func (t *Table) unindexRow(row storage.Row, off uint32, eqCols, rngCols, adjCols []int) {
	for _, i := range eqCols {
		t.eqIdx[i].Remove(row[i], off)
	}
	for _, i := range rngCols {
		t.rngIdx[i].Remove(row[i], off)
	}
	for _, i := range adjCols {
		if row[i].Null {
			continue
		}
		fk, _ := row[i].AsInt64()
		t.adjIdx[i].Unlink(fk, off)
	}
}

// Update overwrites the given columns of the row in place. Readers
// racing the write retry under the row's seqlock; the row's membership
// stamps are untouched, so snapshot visibility is unchanged while the
// cell contents are last-write-wins.
func (t *Table) Update(id int64, set map[int]storage.Value) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if len(set) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	off, ok := t.rows.Lookup(id)
	if !ok || t.deleted.load(off) != 0 {
		return fmt.Errorf("table %s: %w: id %d", t.schema.TableName, storage.ErrNotFound, id)
	}

	// Validate everything before entering the seqlock critical
	// section; nothing may fail mid-write.
	for i, v := range set {
		if i == 0 {
			return fmt.Errorf("table %s: %w: id column is immutable", t.schema.TableName, storage.ErrInvalidQuery)
		}
		if i < 0 || i >= len(t.cols) {
			return fmt.Errorf("table %s: %w: column %d of %d", t.schema.TableName, storage.ErrOutOfBounds, i, len(t.cols))
		}
		sc := t.schema.Columns[i]
		if v.Null {
			if !sc.Nullable {
				return fmt.Errorf("table %s: %w: null in non-nullable column %s",
					t.schema.TableName, storage.ErrInvalidQuery, sc.Name)
			}
			continue
		}
		if !kindAssignable(v.K, sc.Kind) {
			return fmt.Errorf("table %s: %w: column %s holds %s, got %s",
				t.schema.TableName, storage.ErrKindMismatch, sc.Name, sc.Kind, v.K)
		}
	}

	old := make(map[int]storage.Value, len(set))
	for i := range set {
		v, err := t.cols[i].Get(off)
		if err != nil {
			return err
		}
		old[i] = v
	}

	stamp := t.version.Load() + 1

	t.stableMu.RLock()
	t.seq.add(off, 1)
	for i, v := range set {
		// Validated above; Set cannot fail inside the critical section
		_ = t.cols[i].Set(off, coerce(v, t.schema.Columns[i].Kind))
	}
	t.seq.add(off, 1)
	t.stableMu.RUnlock()

	t.reindexRow(off, id, old, set)
	t.version.Store(stamp)
	return nil
}

func (t *Table) reindexRow(off uint32, id int64, old, set map[int]storage.Value) {
	t.idxMu.RLock()
	defer t.idxMu.RUnlock()

	for i, nv := range set {
		ov := old[i]
		if idx := t.eqIdx[i]; idx != nil {
			idx.Remove(ov, off)
			// Kind was validated; Add cannot fail
			_ = idx.Add(coerce(nv, t.schema.Columns[i].Kind), off)
		}
		if idx := t.rngIdx[i]; idx != nil {
			idx.Remove(ov, off)
			_ = idx.Add(coerce(nv, t.schema.Columns[i].Kind), off)
		}
		if adj := t.adjIdx[i]; adj != nil {
			if !ov.Null {
				fk, _ := ov.AsInt64()
				adj.Unlink(fk, off)
			}
			if !nv.Null {
				fk, _ := nv.AsInt64()
				adj.Link(fk, off)
			}
		}
	}
}

// Delete stamps the row deleted at the next version. The row stays
// visible to snapshots taken before the delete; index entries remain
// and are filtered by visibility at probe time.
func (t *Table) Delete(id int64) error {
	if err := t.checkOpen(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	off, ok := t.rows.Lookup(id)
	if !ok || t.deleted.load(off) != 0 {
		return fmt.Errorf("table %s: %w: id %d", t.schema.TableName, storage.ErrNotFound, id)
	}

	stamp := t.version.Load() + 1
	t.deleted.store(off, stamp)
	t.liveCount.Add(-1)
	t.version.Store(stamp)
	return nil
}

// visibleAt applies the snapshot rule created <= v < deleted
func (t *Table) visibleAt(off uint32, v uint64) bool {
	if t.created.load(off) > v {
		return false
	}
	del := t.deleted.load(off)
	return del == 0 || del > v
}

// materialize reads every cell of a row without seqlock protection
func (t *Table) materialize(off uint32) (storage.Row, error) {
	row := make(storage.Row, len(t.cols))
	for i, c := range t.cols {
		v, err := c.Get(off)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// readRowStable reads a full row under the seqlock protocol: load the
// sequence word, read, load again, retry on movement or a writer mid
// section. After the retry budget it escalates to the table's stable
// lock, which excludes writers from their critical sections.
func (t *Table) readRowStable(off uint32) (storage.Row, error) {
	retries := t.cfg.SeqlockRetries
	if retries <= 0 {
		retries = storage.DefaultConfig().SeqlockRetries
	}
	for attempt := 0; attempt < retries; attempt++ {
		s1 := t.seq.load(off)
		if s1&1 == 1 {
			runtime.Gosched()
			continue
		}
		row, err := t.materialize(off)
		if err != nil {
			return nil, err
		}
		if t.seq.load(off) == s1 {
			return row, nil
		}
	}

	t.log.Debug("seqlock retries exhausted, escalating to stable lock",
		zap.Uint32("offset", off))
	t.stableMu.Lock()
	defer t.stableMu.Unlock()
	return t.materialize(off)
}

// CreateEqualityIndex builds a hash index over the named column and
// backfills existing rows.
func (t *Table) CreateEqualityIndex(col string) error {
	i, err := t.resolveColumn(col)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.idxMu.Lock()
	defer t.idxMu.Unlock()

	if _, dup := t.eqIdx[i]; dup {
		return nil
	}
	idx := index.NewEquality(t.schema.Columns[i].Kind)
	n := t.rowCount.Load()
	for off := uint32(0); off < n; off++ {
		v, err := t.cols[i].Get(off)
		if err != nil {
			return err
		}
		if err := idx.Add(v, off); err != nil {
			return err
		}
	}
	t.eqIdx[i] = idx
	t.log.Debug("equality index created", zap.String("column", col), zap.Uint32("rows", n))
	return nil
}

// CreateRangeIndex builds an ordered index over the named column and
// backfills existing rows.
func (t *Table) CreateRangeIndex(col string) error {
	i, err := t.resolveColumn(col)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.idxMu.Lock()
	defer t.idxMu.Unlock()

	if _, dup := t.rngIdx[i]; dup {
		return nil
	}
	idx := index.NewRange(t.schema.Columns[i].Kind)
	n := t.rowCount.Load()
	for off := uint32(0); off < n; off++ {
		v, err := t.cols[i].Get(off)
		if err != nil {
			return err
		}
		if err := idx.Add(v, off); err != nil {
			return err
		}
	}
	t.rngIdx[i] = idx
	t.log.Debug("range index created", zap.String("column", col), zap.Uint32("rows", n))
	return nil
}

// CreateAdjacencyIndex builds a parent-to-children bitmap index keyed
// by the named integer column, typically a foreign key.
func (t *Table) CreateAdjacencyIndex(col string) error {
	i, err := t.resolveColumn(col)
	if err != nil {
		return err
	}
	k := t.schema.Columns[i].Kind
	if k != storage.KindInt64 && k != storage.KindInt32 {
		return fmt.Errorf("table %s: %w: adjacency index needs an integer column, %s is %s",
			t.schema.TableName, storage.ErrInvalidQuery, col, k)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.idxMu.Lock()
	defer t.idxMu.Unlock()

	if _, dup := t.adjIdx[i]; dup {
		return nil
	}
	adj := index.NewAdjacency()
	n := t.rowCount.Load()
	for off := uint32(0); off < n; off++ {
		v, err := t.cols[i].Get(off)
		if err != nil {
			return err
		}
		if v.Null {
			continue
		}
		fk, _ := v.AsInt64()
		adj.Link(fk, off)
	}
	t.adjIdx[i] = adj
	t.log.Debug("adjacency index created", zap.String("column", col), zap.Uint32("rows", n))
	return nil
}

func (t *Table) resolveColumn(name string) (int, error) {
	i := t.schema.ColumnIndex(name)
	if i < 0 {
		return 0, fmt.Errorf("table %s: %w: column %s", t.schema.TableName, storage.ErrNotFound, name)
	}
	return i, nil
}

// equality returns the equality index on column i, if any
func (t *Table) equality(i int) *index.Equality {
	t.idxMu.RLock()
	defer t.idxMu.RUnlock()
	return t.eqIdx[i]
}

// ranged returns the range index on column i, if any
func (t *Table) ranged(i int) *index.Range {
	t.idxMu.RLock()
	defer t.idxMu.RUnlock()
	return t.rngIdx[i]
}

// Adjacency returns the adjacency index on the named column, if any
func (t *Table) Adjacency(col string) *index.Adjacency {
	i, err := t.resolveColumn(col)
	if err != nil {
		return nil
	}
	t.idxMu.RLock()
	defer t.idxMu.RUnlock()
	return t.adjIdx[i]
}

// CreateLinkSet registers a named many-to-many link set on this table
func (t *Table) CreateLinkSet(name string) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.linkMu.Lock()
	defer t.linkMu.Unlock()
	if _, exists := t.links[name]; exists {
		return fmt.Errorf("table %s: %w: link set %s already exists", t.schema.TableName, storage.ErrInvalidQuery, name)
	}
	t.links[name] = index.NewIDSet()
	return nil
}

func (t *Table) linkSet(name string) (*index.IDSet, error) {
	t.linkMu.RLock()
	defer t.linkMu.RUnlock()
	s, ok := t.links[name]
	if !ok {
		return nil, fmt.Errorf("table %s: %w: link set %s", t.schema.TableName, storage.ErrNotFound, name)
	}
	return s, nil
}

// Link records a left-to-right id pair in the named link set
func (t *Table) Link(set string, leftID, rightID int64) error {
	s, err := t.linkSet(set)
	if err != nil {
		return err
	}
	s.Link(leftID, rightID)
	return nil
}

// Unlink removes a left-to-right id pair from the named link set
func (t *Table) Unlink(set string, leftID, rightID int64) error {
	s, err := t.linkSet(set)
	if err != nil {
		return err
	}
	s.Unlink(leftID, rightID)
	return nil
}

// Linked reports whether the pair is present in the named link set
func (t *Table) Linked(set string, leftID, rightID int64) (bool, error) {
	s, err := t.linkSet(set)
	if err != nil {
		return false, err
	}
	return s.Linked(leftID, rightID), nil
}

// RightIDsOf returns the right-side ids linked to leftID, ascending
func (t *Table) RightIDsOf(set string, leftID int64) ([]int64, error) {
	s, err := t.linkSet(set)
	if err != nil {
		return nil, err
	}
	var out []int64
	s.Each(leftID, func(rightID int64) bool {
		out = append(out, rightID)
		return true
	})
	return out, nil
}

// HasEqualityIndex reports whether column i carries an equality index
func (t *Table) HasEqualityIndex(i int) bool { return t.equality(i) != nil }

// HasRangeIndex reports whether column i carries a range index
func (t *Table) HasRangeIndex(i int) bool { return t.ranged(i) != nil }

// Stats describes the table for planner costing
type Stats struct {
	// Rows is the live row count
	Rows int
	// Appended is the physical row count including deleted rows
	Appended int
	// EqualityKeys maps indexed columns to their distinct value count
	EqualityKeys map[int]int
	// RangeKeys maps range-indexed columns to their distinct value count
	RangeKeys map[int]int
}

// Stats snapshots table statistics
func (t *Table) Stats() Stats {
	t.idxMu.RLock()
	defer t.idxMu.RUnlock()

	st := Stats{
		Rows:         int(t.liveCount.Load()),
		Appended:     int(t.rowCount.Load()),
		EqualityKeys: make(map[int]int, len(t.eqIdx)),
		RangeKeys:    make(map[int]int, len(t.rngIdx)),
	}
	for i, idx := range t.eqIdx {
		st.EqualityKeys[i] = idx.DistinctKeys()
	}
	for i, idx := range t.rngIdx {
		st.RangeKeys[i] = idx.DistinctKeys()
	}
	return st
}
