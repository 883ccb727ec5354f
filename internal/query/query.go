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
// Package query implements the cost-based planner and executor on top
// of the versioned tables. A LogicalQuery says what to fetch; the
// planner picks access paths from table statistics and available
// indexes, and the executor runs the physical plan against one
// snapshot per table.
package query

import (
	"fmt"
	"strings"

	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/expression"
	"github.com/Thejuampi/memris-sub010/internal/storage/mvcc"
)

// Catalog resolves table names. The engine implements it.
type Catalog interface {
	Table(name string) (*mvcc.Table, error)
}

// JoinKind selects join semantics
type JoinKind int

const (
	// InnerJoin keeps rows with a match on both sides
	InnerJoin JoinKind = iota
	// LeftJoin keeps every left row, padding the right side with nulls
	LeftJoin
)

func (k JoinKind) String() string {
	if k == LeftJoin {
		return "LEFT"
	}
	return "INNER"
}

// JoinSpec joins the query's table to a second table on column
// equality. Column indexes are positional in each side's own schema.
type JoinSpec struct {
	Kind     JoinKind
	Table    string
	LeftCol  int
	RightCol int
	// Filter restricts the right side before the join; its column
	// indexes are positional in the right schema.
	Filter expression.Expression
}

// OrderSpec orders results by one column
type OrderSpec struct {
	Col  int
	Desc bool
}

// LogicalQuery describes a query against one table, optionally joined
// to a second. Filter column indexes are positional in the base
// schema; after a join, OrderBy and Projection indexes address the
// concatenated row, left columns first.
type LogicalQuery struct {
	Table  string
	Filter expression.Expression
	Join   *JoinSpec
	Order  []OrderSpec
	// Limit < 0 means no limit
	Limit  int
	Offset int
	// Projection selects output columns by position; nil keeps all
	Projection []int
}

// NewQuery starts a query with no limit
func NewQuery(table string) *LogicalQuery {
	return &LogicalQuery{Table: table, Limit: -1}
}

// Validate checks the query against resolved schemas
func (q *LogicalQuery) Validate(cat Catalog) error {
	if q.Table == "" {
		return fmt.Errorf("query: %w: empty table name", storage.ErrInvalidQuery)
	}
	base, err := cat.Table(q.Table)
	if err != nil {
		return err
	}
	width := len(base.Schema().Columns)

	if q.Join != nil {
		right, err := cat.Table(q.Join.Table)
		if err != nil {
			return err
		}
		rw := len(right.Schema().Columns)
		if q.Join.LeftCol < 0 || q.Join.LeftCol >= width {
			return fmt.Errorf("query: %w: join left column %d of %d", storage.ErrInvalidQuery, q.Join.LeftCol, width)
		}
		if q.Join.RightCol < 0 || q.Join.RightCol >= rw {
			return fmt.Errorf("query: %w: join right column %d of %d", storage.ErrInvalidQuery, q.Join.RightCol, rw)
		}
		width += rw
	}

	for _, o := range q.Order {
		if o.Col < 0 || o.Col >= width {
			return fmt.Errorf("query: %w: order column %d of %d", storage.ErrInvalidQuery, o.Col, width)
		}
	}
	for _, p := range q.Projection {
		if p < 0 || p >= width {
			return fmt.Errorf("query: %w: projection column %d of %d", storage.ErrInvalidQuery, p, width)
		}
	}
	if q.Offset < 0 {
		return fmt.Errorf("query: %w: negative offset", storage.ErrInvalidQuery)
	}
	return nil
}

// Fingerprint returns a cache key describing the query's shape:
// tables, predicate structure, join, ordering, projection. Constants
// inside predicates are deliberately excluded so queries differing
// only in bound values share a cached strategy.
func (q *LogicalQuery) Fingerprint() string {
	var b strings.Builder
	b.WriteString(q.Table)
	b.WriteByte('|')
	writeExprShape(&b, q.Filter)
	if q.Join != nil {
		fmt.Fprintf(&b, "|join:%s:%s:%d=%d:", q.Join.Kind, q.Join.Table, q.Join.LeftCol, q.Join.RightCol)
		writeExprShape(&b, q.Join.Filter)
	}
	b.WriteByte('|')
	for _, o := range q.Order {
		fmt.Fprintf(&b, "o%d,%v;", o.Col, o.Desc)
	}
	b.WriteByte('|')
	fmt.Fprintf(&b, "lim:%v,off:%v|", q.Limit >= 0, q.Offset > 0)
	for _, p := range q.Projection {
		fmt.Fprintf(&b, "p%d;", p)
	}
	return b.String()
}

// writeExprShape encodes the structure of a predicate without its
// constants.
func writeExprShape(b *strings.Builder, e expression.Expression) {
	switch x := e.(type) {
	case nil:
		b.WriteString("_")
	case *expression.Comparison:
		fmt.Fprintf(b, "c%d%s", x.Col, x.Op)
	case *expression.Between:
		fmt.Fprintf(b, "b%d[%v,%v]", x.Col, x.LoInc, x.HiInc)
	case *expression.In:
		fmt.Fprintf(b, "i%d#%d", x.Col, len(x.Vals))
	case *expression.And:
		b.WriteString("and(")
		for _, c := range x.Children {
			writeExprShape(b, c)
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case *expression.Or:
		b.WriteString("or(")
		for _, c := range x.Children {
			writeExprShape(b, c)
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case *expression.Not:
		b.WriteString("not(")
		writeExprShape(b, x.Child)
		b.WriteByte(')')
	default:
		b.WriteString("?")
	}
}
