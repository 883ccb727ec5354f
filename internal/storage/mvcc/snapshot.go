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
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/expression"
	"github.com/Thejuampi/memris-sub010/internal/storage/selection"
)

// Snapshot is a stable read view of a table. It pins a version and a
// row bound at creation and sees exactly the rows live at that
// version, regardless of later inserts and deletes. Cell contents of
// rows updated in place after the snapshot read as last written.
type Snapshot struct {
	t       *Table
	version uint64
	bound   uint32
}

// Snapshot takes a read view at the current version
func (t *Table) Snapshot() (*Snapshot, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	// Version first: any row published between the two loads carries a
	// later stamp and is filtered by visibility.
	v := t.version.Load()
	bound := t.rowCount.Load()
	return &Snapshot{t: t, version: v, bound: bound}, nil
}

// Version returns the pinned version
func (s *Snapshot) Version() uint64 { return s.version }

// Table returns the underlying table
func (s *Snapshot) Table() *Table { return s.t }

// Get returns the row with the given id, or ErrNotFound when the id
// is absent or not visible at the snapshot version.
func (s *Snapshot) Get(id int64) (storage.Row, error) {
	off, ok := s.t.rows.Lookup(id)
	if !ok || off >= s.bound || !s.t.visibleAt(off, s.version) {
		return nil, fmt.Errorf("table %s: %w: id %d", s.t.schema.TableName, storage.ErrNotFound, id)
	}
	return s.t.readRowStable(off)
}

// Row materializes the row at a physical offset, with visibility and
// torn-read protection.
func (s *Snapshot) Row(off uint32) (storage.Row, error) {
	if off >= s.bound {
		return nil, fmt.Errorf("table %s: %w: offset %d of %d", s.t.schema.TableName, storage.ErrOutOfBounds, off, s.bound)
	}
	if !s.t.visibleAt(off, s.version) {
		return nil, fmt.Errorf("table %s: %w: offset %d", s.t.schema.TableName, storage.ErrNotFound, off)
	}
	return s.t.readRowStable(off)
}

// Scan evaluates pred against every visible row and returns the
// selection. A nil pred selects every visible row. Large tables scan
// in parallel chunks on the table's worker pool.
func (s *Snapshot) Scan(ctx context.Context, pred expression.Expression) (selection.Vector, error) {
	if s.bound == 0 {
		return selection.Empty(0), nil
	}
	if s.t.workers == nil || int(s.bound) < s.t.cfg.ParallelScanMinRows {
		b := selection.NewBuilder(s.bound, s.t.cfg.DenseThreshold)
		if err := s.scanRange(ctx, 0, s.bound, pred, b); err != nil {
			return nil, err
		}
		return b.Seal(), nil
	}
	return s.scanParallel(ctx, pred)
}

func (s *Snapshot) scanRange(ctx context.Context, lo, hi uint32, pred expression.Expression, b *selection.Builder) error {
	for off := lo; off < hi; off++ {
		if off%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if !s.t.visibleAt(off, s.version) {
			continue
		}
		if pred == nil {
			b.Add(off)
			continue
		}
		row, err := s.t.readRowStable(off)
		if err != nil {
			return err
		}
		ok, err := pred.Evaluate(row)
		if err != nil {
			return err
		}
		if ok {
			b.Add(off)
		}
	}
	return nil
}

func (s *Snapshot) scanParallel(ctx context.Context, pred expression.Expression) (selection.Vector, error) {
	workers := s.t.cfg.ScanWorkers
	if workers <= 1 {
		workers = storage.DefaultConfig().ScanWorkers
	}
	chunk := (s.bound + uint32(workers) - 1) / uint32(workers)

	var wg sync.WaitGroup
	builders := make([]*selection.Builder, workers)
	errs := make([]error, workers)

	for w := 0; w < workers; w++ {
		lo := uint32(w) * chunk
		if lo >= s.bound {
			break
		}
		hi := lo + chunk
		if hi > s.bound {
			hi = s.bound
		}
		w, lo, hi := w, lo, hi
		builders[w] = selection.NewBuilder(s.bound, s.t.cfg.DenseThreshold)

		wg.Add(1)
		task := func() {
			defer wg.Done()
			errs[w] = s.scanRange(ctx, lo, hi, pred, builders[w])
		}
		if err := s.t.workers.Submit(task); err != nil {
			// Pool saturated or released; run inline rather than fail
			s.t.log.Debug("scan worker submit failed, running inline", zap.Error(err))
			task()
		}
	}
	wg.Wait()

	var result selection.Vector
	for w, b := range builders {
		if b == nil {
			continue
		}
		if errs[w] != nil {
			return nil, errs[w]
		}
		v := b.Seal()
		if result == nil {
			result = v
		} else {
			result = selection.Union(result, v, s.t.cfg.DenseThreshold)
		}
	}
	if result == nil {
		result = selection.Empty(s.bound)
	}
	return result, nil
}

// ProbeEqual answers an equality predicate from the column's hash
// index. ok is false when the column has no equality index or the
// probe value cannot be a key, in which case the caller scans.
func (s *Snapshot) ProbeEqual(col int, val storage.Value) (selection.Vector, bool) {
	idx := s.t.equality(col)
	if idx == nil || val.Null || !idx.CanProbe(val) {
		return nil, false
	}
	b := selection.NewBuilder(s.bound, s.t.cfg.DenseThreshold)
	idx.Lookup(val, func(off uint32) bool {
		if off < s.bound && s.t.visibleAt(off, s.version) {
			b.Add(off)
		}
		return true
	})
	return b.Seal(), true
}

// ProbeIn answers a set membership predicate by unioning equality
// probes. ok is false when any value cannot be a key, so the whole
// predicate falls back to scanning.
func (s *Snapshot) ProbeIn(col int, vals []storage.Value) (selection.Vector, bool) {
	idx := s.t.equality(col)
	if idx == nil {
		return nil, false
	}
	for _, val := range vals {
		if !val.Null && !idx.CanProbe(val) {
			return nil, false
		}
	}
	b := selection.NewBuilder(s.bound, s.t.cfg.DenseThreshold)
	for _, val := range vals {
		if val.Null {
			continue
		}
		idx.Lookup(val, func(off uint32) bool {
			if off < s.bound && s.t.visibleAt(off, s.version) {
				b.Add(off)
			}
			return true
		})
	}
	return b.Seal(), true
}

// ProbeRange answers a range predicate from the column's ordered
// index. Null bounds are open ends. ok is false when the column has no
// range index or a bound cannot be encoded.
func (s *Snapshot) ProbeRange(col int, lo, hi storage.Value, loInc, hiInc bool) (selection.Vector, bool) {
	idx := s.t.ranged(col)
	if idx == nil || !idx.CanProbe(lo) || !idx.CanProbe(hi) {
		return nil, false
	}
	b := selection.NewBuilder(s.bound, s.t.cfg.DenseThreshold)
	idx.Visit(lo, hi, loInc, hiInc, func(off uint32) bool {
		if off < s.bound && s.t.visibleAt(off, s.version) {
			b.Add(off)
		}
		return true
	})
	return b.Seal(), true
}

// AscendIndex visits visible offsets in ascending order of the range
// indexed column. ok is false without a range index on col.
func (s *Snapshot) AscendIndex(col int, f func(off uint32) bool) bool {
	idx := s.t.ranged(col)
	if idx == nil {
		return false
	}
	idx.Ascend(func(off uint32) bool {
		if off >= s.bound || !s.t.visibleAt(off, s.version) {
			return true
		}
		return f(off)
	})
	return true
}

// DescendIndex visits visible offsets in descending order of the range
// indexed column.
func (s *Snapshot) DescendIndex(col int, f func(off uint32) bool) bool {
	idx := s.t.ranged(col)
	if idx == nil {
		return false
	}
	idx.Descend(func(off uint32) bool {
		if off >= s.bound || !s.t.visibleAt(off, s.version) {
			return true
		}
		return f(off)
	})
	return true
}

// ProbeChildren answers a foreign key traversal from an adjacency
// index.
func (s *Snapshot) ProbeChildren(col string, parentID int64) (selection.Vector, bool) {
	adj := s.t.Adjacency(col)
	if adj == nil {
		return nil, false
	}
	b := selection.NewBuilder(s.bound, s.t.cfg.DenseThreshold)
	adj.Children(parentID, func(off uint32) bool {
		if off < s.bound && s.t.visibleAt(off, s.version) {
			b.Add(off)
		}
		return true
	})
	return b.Seal(), true
}

// Count returns the number of visible rows matching pred
func (s *Snapshot) Count(ctx context.Context, pred expression.Expression) (int, error) {
	if pred == nil {
		// Walk stamps only, no row materialization
		n := 0
		for off := uint32(0); off < s.bound; off++ {
			if s.t.visibleAt(off, s.version) {
				n++
			}
		}
		return n, nil
	}
	vec, err := s.Scan(ctx, pred)
	if err != nil {
		return 0, err
	}
	return vec.Cardinality(), nil
}

// Materialize reads the rows selected by vec in offset order
func (s *Snapshot) Materialize(vec selection.Vector) ([]storage.Row, error) {
	out := make([]storage.Row, 0, vec.Cardinality())
	var firstErr error
	vec.ForEach(func(off uint32) bool {
		row, err := s.t.readRowStable(off)
		if err != nil {
			firstErr = err
			return false
		}
		out = append(out, row)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
