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
package memris

import (
	"context"
	"fmt"

	"github.com/Thejuampi/memris-sub010/internal/query"
	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/expression"
	"github.com/Thejuampi/memris-sub010/internal/storage/mvcc"
)

// Table is a repository-style handle over one engine table. Values
// cross the boundary through the engine's codec registry.
type Table struct {
	eng *Engine
	t   *mvcc.Table
}

// Materializer turns a raw result row into an application value
type Materializer interface {
	Materialize(columns []string, row storage.Row) (any, error)
}

// Name returns the table name
func (tb *Table) Name() string { return tb.t.Name() }

// Schema returns the table schema
func (tb *Table) Schema() storage.Schema { return tb.t.Schema() }

// Insert encodes one value per schema column and inserts the row,
// returning the row id. Pass int64(0) or nil for the id column to
// auto-assign.
func (tb *Table) Insert(vals ...any) (int64, error) {
	schema := tb.t.Schema()
	if len(vals) != len(schema.Columns) {
		return 0, fmt.Errorf("table %s: %w: %d values for %d columns",
			tb.Name(), storage.ErrInvalidQuery, len(vals), len(schema.Columns))
	}
	row := make(storage.Row, len(vals))
	for i, v := range vals {
		sv, err := tb.eng.codecs.Encode(v)
		if err != nil {
			return 0, fmt.Errorf("table %s column %s: %w", tb.Name(), schema.Columns[i].Name, err)
		}
		row[i] = sv
	}
	return tb.t.Insert(row)
}

// Get returns the row with the given id as visible right now
func (tb *Table) Get(id int64) (storage.Row, error) {
	snap, err := tb.t.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Get(id)
}

// Update encodes the changed values and applies them to the row.
// Keys are column names; the id column cannot change.
func (tb *Table) Update(id int64, changes map[string]any) error {
	schema := tb.t.Schema()
	set := make(map[int]storage.Value, len(changes))
	for name, v := range changes {
		ci := schema.ColumnIndex(name)
		if ci < 0 {
			return fmt.Errorf("table %s: %w: column %s", tb.Name(), storage.ErrNotFound, name)
		}
		sv, err := tb.eng.codecs.Encode(v)
		if err != nil {
			return fmt.Errorf("table %s column %s: %w", tb.Name(), name, err)
		}
		set[ci] = sv
	}
	return tb.t.Update(id, set)
}

// Delete removes the row with the given id
func (tb *Table) Delete(id int64) error { return tb.t.Delete(id) }

// Find executes a logical query against this table. The query's table
// name is set from the handle.
func (tb *Table) Find(ctx context.Context, q *query.LogicalQuery) (*query.Result, error) {
	q.Table = tb.Name()
	return tb.eng.Query(ctx, q)
}

// FindOne returns the first matching row, or ErrNotFound when nothing
// matches.
func (tb *Table) FindOne(ctx context.Context, q *query.LogicalQuery) (storage.Row, error) {
	q.Table = tb.Name()
	q.Limit = 1
	res, err := tb.eng.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("table %s: %w: no matching row", tb.Name(), storage.ErrNotFound)
	}
	return res.Rows[0], nil
}

// FindAs executes a query and materializes each row through m
func (tb *Table) FindAs(ctx context.Context, q *query.LogicalQuery, m Materializer) ([]any, error) {
	res, err := tb.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		v, err := m.Materialize(res.Columns, row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Count returns the number of visible rows matching the filter; a nil
// filter counts all rows.
func (tb *Table) Count(ctx context.Context, filter expression.Expression) (int64, error) {
	snap, err := tb.t.Snapshot()
	if err != nil {
		return 0, err
	}
	n, err := snap.Count(ctx, filter)
	return int64(n), err
}

// Exists reports whether any visible row matches the filter
func (tb *Table) Exists(ctx context.Context, filter expression.Expression) (bool, error) {
	q := query.NewQuery(tb.Name())
	q.Filter = filter
	q.Limit = 1
	res, err := tb.eng.Query(ctx, q)
	if err != nil {
		return false, err
	}
	return len(res.Rows) > 0, nil
}

// ChildrenOf returns the rows whose adjacency-indexed column holds the
// given owner id. The column must carry an adjacency index.
func (tb *Table) ChildrenOf(col string, ownerID int64) ([]storage.Row, error) {
	snap, err := tb.t.Snapshot()
	if err != nil {
		return nil, err
	}
	vec, ok := snap.ProbeChildren(col, ownerID)
	if !ok {
		return nil, fmt.Errorf("table %s: %w: no adjacency index on %s", tb.Name(), storage.ErrNotFound, col)
	}
	return snap.Materialize(vec)
}

// CreateLinkSet registers a named many-to-many link set on the table
func (tb *Table) CreateLinkSet(name string) error { return tb.t.CreateLinkSet(name) }

// Link records a many-to-many pair in the named link set
func (tb *Table) Link(set string, leftID, rightID int64) error {
	return tb.t.Link(set, leftID, rightID)
}

// Unlink removes a many-to-many pair from the named link set
func (tb *Table) Unlink(set string, leftID, rightID int64) error {
	return tb.t.Unlink(set, leftID, rightID)
}

// RightIDsOf returns the ids linked to leftID in the named link set
func (tb *Table) RightIDsOf(set string, leftID int64) ([]int64, error) {
	return tb.t.RightIDsOf(set, leftID)
}

// CreateEqualityIndex builds a hash index on the named column
func (tb *Table) CreateEqualityIndex(col string) error { return tb.t.CreateEqualityIndex(col) }

// CreateRangeIndex builds an ordered index on the named column
func (tb *Table) CreateRangeIndex(col string) error { return tb.t.CreateRangeIndex(col) }

// CreateAdjacencyIndex builds a parent-to-children index on the named
// foreign key column.
func (tb *Table) CreateAdjacencyIndex(col string) error { return tb.t.CreateAdjacencyIndex(col) }

// Stats returns a point-in-time view of table and index cardinalities
func (tb *Table) Stats() mvcc.Stats { return tb.t.Stats() }
