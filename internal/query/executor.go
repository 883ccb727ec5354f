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
package query

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/expression"
	"github.com/Thejuampi/memris-sub010/internal/storage/mvcc"
	"github.com/Thejuampi/memris-sub010/internal/storage/selection"
)

// Result is a fully materialized query result
type Result struct {
	Columns []string
	Rows    []storage.Row
}

// Executor runs physical plans. Each execution pins one snapshot per
// involved table, so a query sees a consistent version even while
// writers proceed.
type Executor struct {
	cat Catalog
	log *zap.Logger
}

// NewExecutor creates an executor
func NewExecutor(cat Catalog, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{cat: cat, log: logger}
}

// Execute runs plan to completion
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	base, err := e.cat.Table(plan.Table)
	if err != nil {
		return nil, err
	}
	snap, err := base.Snapshot()
	if err != nil {
		return nil, err
	}

	var joiner *joinState
	if plan.Join != nil {
		joiner, err = e.prepareJoin(ctx, plan.Join)
		if err != nil {
			return nil, err
		}
	}

	var rows []storage.Row
	if plan.Sort != nil && plan.Sort.ViaIndex {
		rows, err = e.orderedBaseRows(ctx, snap, plan, joiner != nil)
	} else {
		rows, err = e.baseRows(ctx, snap, plan)
	}
	if err != nil {
		return nil, err
	}

	if joiner != nil {
		rows, err = joiner.apply(ctx, rows)
		if err != nil {
			return nil, err
		}
	}

	if plan.Sort != nil && !plan.Sort.ViaIndex {
		sortRows(rows, plan.Sort.Specs)
	}

	rows = applyLimit(rows, plan.Limit, plan.Offset)
	rows = applyProjection(rows, plan.Projection)

	return &Result{
		Columns: e.columnNames(base, plan),
		Rows:    rows,
	}, nil
}

// accessExpr rebuilds the predicate an index access answers, for scan
// fallback when the probe is unavailable.
func accessExpr(ap AccessPath) expression.Expression {
	switch ap.Kind {
	case IndexEq:
		return expression.NewComparison(ap.Col, storage.EQ, ap.Eq)
	case IndexIn:
		return expression.NewIn(ap.Col, ap.In...)
	case IndexRange:
		switch {
		case ap.Lo.Null && ap.Hi.Null:
			return nil
		case ap.Lo.Null:
			op := storage.LT
			if ap.HiInc {
				op = storage.LTE
			}
			return expression.NewComparison(ap.Col, op, ap.Hi)
		case ap.Hi.Null:
			op := storage.GT
			if ap.LoInc {
				op = storage.GTE
			}
			return expression.NewComparison(ap.Col, op, ap.Lo)
		default:
			b := expression.NewBetween(ap.Col, ap.Lo, ap.Hi)
			b.LoInc, b.HiInc = ap.LoInc, ap.HiInc
			return b
		}
	}
	return nil
}

func combine(a, b expression.Expression) expression.Expression {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return expression.NewAnd(a, b)
	}
}

// baseRows produces the base table's matching rows in offset order
func (e *Executor) baseRows(ctx context.Context, snap *mvcc.Snapshot, plan *Plan) ([]storage.Row, error) {
	var vec selection.Vector
	var residual expression.Expression

	switch plan.Access.Kind {
	case IndexEq:
		v, ok := snap.ProbeEqual(plan.Access.Col, plan.Access.Eq)
		if !ok {
			return e.scanRows(ctx, snap, combine(accessExpr(plan.Access), plan.Residual))
		}
		vec, residual = v, plan.Residual
	case IndexIn:
		v, ok := snap.ProbeIn(plan.Access.Col, plan.Access.In)
		if !ok {
			return e.scanRows(ctx, snap, combine(accessExpr(plan.Access), plan.Residual))
		}
		vec, residual = v, plan.Residual
	case IndexRange:
		v, ok := snap.ProbeRange(plan.Access.Col, plan.Access.Lo, plan.Access.Hi, plan.Access.LoInc, plan.Access.HiInc)
		if !ok {
			return e.scanRows(ctx, snap, combine(accessExpr(plan.Access), plan.Residual))
		}
		vec, residual = v, plan.Residual
	default:
		return e.scanRows(ctx, snap, plan.Residual)
	}

	rows := make([]storage.Row, 0, vec.Cardinality())
	var iterErr error
	vec.ForEach(func(off uint32) bool {
		if err := ctx.Err(); err != nil {
			iterErr = err
			return false
		}
		row, err := snap.Row(off)
		if err != nil {
			iterErr = err
			return false
		}
		if residual != nil {
			ok, err := residual.Evaluate(row)
			if err != nil {
				iterErr = err
				return false
			}
			if !ok {
				return true
			}
		}
		rows = append(rows, row)
		return true
	})
	if iterErr != nil {
		return nil, iterErr
	}
	return rows, nil
}

func (e *Executor) scanRows(ctx context.Context, snap *mvcc.Snapshot, pred expression.Expression) ([]storage.Row, error) {
	vec, err := snap.Scan(ctx, pred)
	if err != nil {
		return nil, err
	}
	return snap.Materialize(vec)
}

// orderedBaseRows walks the sort column's range index so rows arrive
// already ordered. Without a join the walk stops once limit plus
// offset rows have matched.
func (e *Executor) orderedBaseRows(ctx context.Context, snap *mvcc.Snapshot, plan *Plan, joined bool) ([]storage.Row, error) {
	spec := plan.Sort.Specs[0]
	need := -1
	if !joined && plan.Limit >= 0 {
		need = plan.Limit + plan.Offset
	}

	var rows []storage.Row
	var iterErr error
	visit := func(off uint32) bool {
		if err := ctx.Err(); err != nil {
			iterErr = err
			return false
		}
		row, err := snap.Row(off)
		if err != nil {
			iterErr = err
			return false
		}
		if plan.Residual != nil {
			ok, err := plan.Residual.Evaluate(row)
			if err != nil {
				iterErr = err
				return false
			}
			if !ok {
				return true
			}
		}
		rows = append(rows, row)
		return need < 0 || len(rows) < need
	}

	var ok bool
	if spec.Desc {
		ok = snap.DescendIndex(spec.Col, visit)
	} else {
		ok = snap.AscendIndex(spec.Col, visit)
	}
	if iterErr != nil {
		return nil, iterErr
	}
	if !ok {
		// Index dropped between planning and execution; scan and sort
		rows, err := e.scanRows(ctx, snap, plan.Residual)
		if err != nil {
			return nil, err
		}
		sortRows(rows, plan.Sort.Specs)
		return rows, nil
	}
	return rows, nil
}

// joinKey is a comparable canonical form of a join cell
type joinKey struct {
	num   int64
	str   string
	isStr bool
	// frac marks a non-integral float, whose bit encoding must not
	// collide with genuine integer keys.
	frac bool
}

func makeJoinKey(v storage.Value) (joinKey, bool) {
	if v.Null {
		return joinKey{}, false
	}
	if v.K == storage.KindString {
		s, _ := v.AsString()
		return joinKey{str: s, isStr: true}, true
	}
	// Numeric kinds widen into one key space: int32, int64 and
	// integral floats meet on the integer value, fractional floats
	// only match other floats.
	if v.K == storage.KindFloat64 {
		f, _ := v.AsFloat64()
		if f == float64(int64(f)) {
			return joinKey{num: int64(f)}, true
		}
		return joinKey{num: storage.FloatToSortableInt64(f), frac: true}, true
	}
	n, _ := v.AsInt64()
	return joinKey{num: n}, true
}

type joinState struct {
	plan       *JoinPlan
	snap       *mvcc.Snapshot
	rightWidth int
	// hash table for HashJoin, built lazily on first use
	table map[joinKey][]storage.Row
}

func (e *Executor) prepareJoin(ctx context.Context, jp *JoinPlan) (*joinState, error) {
	right, err := e.cat.Table(jp.Spec.Table)
	if err != nil {
		return nil, err
	}
	snap, err := right.Snapshot()
	if err != nil {
		return nil, err
	}
	js := &joinState{
		plan:       jp,
		snap:       snap,
		rightWidth: len(right.Schema().Columns),
	}
	if jp.Strategy == HashJoin {
		if err := js.build(ctx); err != nil {
			return nil, err
		}
	}
	return js, nil
}

func (js *joinState) build(ctx context.Context) error {
	vec, err := js.snap.Scan(ctx, js.plan.Spec.Filter)
	if err != nil {
		return err
	}
	rows, err := js.snap.Materialize(vec)
	if err != nil {
		return err
	}
	js.table = make(map[joinKey][]storage.Row, len(rows))
	for _, row := range rows {
		key, ok := makeJoinKey(row[js.plan.Spec.RightCol])
		if !ok {
			continue
		}
		js.table[key] = append(js.table[key], row)
	}
	return nil
}

// apply joins each left row to its right matches, concatenating cells
func (js *joinState) apply(ctx context.Context, left []storage.Row) ([]storage.Row, error) {
	out := make([]storage.Row, 0, len(left))
	for _, lrow := range left {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := js.matches(ctx, lrow)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			if js.plan.Spec.Kind == LeftJoin {
				out = append(out, concatRows(lrow, js.nullRight()))
			}
			continue
		}
		for _, rrow := range matches {
			out = append(out, concatRows(lrow, rrow))
		}
	}
	return out, nil
}

func (js *joinState) matches(ctx context.Context, lrow storage.Row) ([]storage.Row, error) {
	lv := lrow[js.plan.Spec.LeftCol]

	switch js.plan.Strategy {
	case AdjacencyNestedLoop:
		if lv.Null {
			return nil, nil
		}
		id, _ := lv.AsInt64()
		vec, ok := js.snap.ProbeChildren(js.plan.AdjCol, id)
		if !ok {
			return js.probeFallback(ctx, lv)
		}
		return js.filterRight(vec)

	case IndexNestedLoop:
		vec, ok := js.snap.ProbeEqual(js.plan.Spec.RightCol, lv)
		if !ok {
			return js.probeFallback(ctx, lv)
		}
		return js.filterRight(vec)

	default:
		key, ok := makeJoinKey(lv)
		if !ok {
			return nil, nil
		}
		return js.table[key], nil
	}
}

// probeFallback scans the right side for one left value when the
// planned index has gone away.
func (js *joinState) probeFallback(ctx context.Context, lv storage.Value) ([]storage.Row, error) {
	pred := combine(
		expression.NewComparison(js.plan.Spec.RightCol, storage.EQ, lv),
		js.plan.Spec.Filter)
	vec, err := js.snap.Scan(ctx, pred)
	if err != nil {
		return nil, err
	}
	return js.snap.Materialize(vec)
}

func (js *joinState) filterRight(vec selection.Vector) ([]storage.Row, error) {
	var rows []storage.Row
	var iterErr error
	vec.ForEach(func(off uint32) bool {
		row, err := js.snap.Row(off)
		if err != nil {
			iterErr = err
			return false
		}
		if js.plan.Spec.Filter != nil {
			ok, err := js.plan.Spec.Filter.Evaluate(row)
			if err != nil {
				iterErr = err
				return false
			}
			if !ok {
				return true
			}
		}
		rows = append(rows, row)
		return true
	})
	if iterErr != nil {
		return nil, iterErr
	}
	return rows, nil
}

func (js *joinState) nullRight() storage.Row {
	sch := js.snap.Table().Schema()
	row := make(storage.Row, js.rightWidth)
	for i := range row {
		row[i] = storage.NewNull(sch.Columns[i].Kind)
	}
	return row
}

func concatRows(l, r storage.Row) storage.Row {
	out := make(storage.Row, 0, len(l)+len(r))
	out = append(out, l...)
	out = append(out, r...)
	return out
}

// sortRows orders rows by the specs; nulls sort first ascending and
// last descending.
func sortRows(rows []storage.Row, specs []OrderSpec) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range specs {
			a, b := rows[i][s.Col], rows[j][s.Col]
			c := compareCells(a, b)
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareCells(a, b storage.Value) int {
	switch {
	case a.Null && b.Null:
		return 0
	case a.Null:
		return -1
	case b.Null:
		return 1
	}
	c, err := a.Compare(b)
	if err != nil {
		return 0
	}
	return c
}

func applyLimit(rows []storage.Row, limit, offset int) []storage.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return rows[:0]
		}
		rows = rows[offset:]
	}
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func applyProjection(rows []storage.Row, proj []int) []storage.Row {
	if len(proj) == 0 {
		return rows
	}
	out := make([]storage.Row, len(rows))
	for i, row := range rows {
		pr := make(storage.Row, len(proj))
		for j, c := range proj {
			pr[j] = row[c]
		}
		out[i] = pr
	}
	return out
}

func (e *Executor) columnNames(base *mvcc.Table, plan *Plan) []string {
	var names []string
	for _, c := range base.Schema().Columns {
		names = append(names, c.Name)
	}
	if plan.Join != nil {
		right, err := e.cat.Table(plan.Join.Spec.Table)
		if err == nil {
			for _, c := range right.Schema().Columns {
				names = append(names, fmt.Sprintf("%s.%s", plan.Join.Spec.Table, c.Name))
			}
		}
	}
	if len(plan.Projection) > 0 {
		proj := make([]string, len(plan.Projection))
		for i, c := range plan.Projection {
			if c < len(names) {
				proj[i] = names[c]
			}
		}
		return proj
	}
	return names
}
