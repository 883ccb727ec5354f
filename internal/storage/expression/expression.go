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
// Package expression implements predicate trees evaluated against
// table rows. Column references are resolved to positional indices
// when the predicate is bound to a schema, so evaluation is a direct
// slice access with no name lookups.
//
// Logic is two valued: a comparison against a null cell is false, and
// Not is plain negation. IsNull and IsNotNull are the only operators
// that see nulls.
package expression

import (
	"fmt"

	"github.com/Thejuampi/memris-sub010/internal/storage"
)

// Expression is a predicate over one row
type Expression interface {
	// Evaluate reports whether row satisfies the predicate
	Evaluate(row storage.Row) (bool, error)
}

// Comparison compares one column against a constant
type Comparison struct {
	// Col is the positional column index
	Col int
	Op  storage.Operator
	Val storage.Value
}

// NewComparison builds a column-versus-constant predicate
func NewComparison(col int, op storage.Operator, val storage.Value) *Comparison {
	return &Comparison{Col: col, Op: op, Val: val}
}

func (c *Comparison) Evaluate(row storage.Row) (bool, error) {
	if c.Col < 0 || c.Col >= len(row) {
		return false, fmt.Errorf("expression: %w: column %d of %d", storage.ErrOutOfBounds, c.Col, len(row))
	}
	cell := row[c.Col]

	switch c.Op {
	case storage.ISNULL:
		return cell.Null, nil
	case storage.ISNOTNULL:
		return !cell.Null, nil
	}

	if cell.Null || c.Val.Null {
		return false, nil
	}

	cmp, err := cell.Compare(c.Val)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case storage.EQ:
		return cmp == 0, nil
	case storage.NE:
		return cmp != 0, nil
	case storage.GT:
		return cmp > 0, nil
	case storage.GTE:
		return cmp >= 0, nil
	case storage.LT:
		return cmp < 0, nil
	case storage.LTE:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("expression: %w: operator %s", storage.ErrInvalidQuery, c.Op)
	}
}

func (c *Comparison) String() string {
	return fmt.Sprintf("col[%d] %s %s", c.Col, c.Op, c.Val)
}

// Between tests lo <= col <= hi, with per-bound inclusivity
type Between struct {
	Col          int
	Lo, Hi       storage.Value
	LoInc, HiInc bool
}

// NewBetween builds an inclusive range predicate
func NewBetween(col int, lo, hi storage.Value) *Between {
	return &Between{Col: col, Lo: lo, Hi: hi, LoInc: true, HiInc: true}
}

func (b *Between) Evaluate(row storage.Row) (bool, error) {
	if b.Col < 0 || b.Col >= len(row) {
		return false, fmt.Errorf("expression: %w: column %d of %d", storage.ErrOutOfBounds, b.Col, len(row))
	}
	cell := row[b.Col]
	if cell.Null || b.Lo.Null || b.Hi.Null {
		return false, nil
	}

	lc, err := cell.Compare(b.Lo)
	if err != nil {
		return false, err
	}
	if lc < 0 || (lc == 0 && !b.LoInc) {
		return false, nil
	}
	hc, err := cell.Compare(b.Hi)
	if err != nil {
		return false, err
	}
	if hc > 0 || (hc == 0 && !b.HiInc) {
		return false, nil
	}
	return true, nil
}

func (b *Between) String() string {
	return fmt.Sprintf("col[%d] between %s and %s", b.Col, b.Lo, b.Hi)
}

// In tests membership of a column in a constant set
type In struct {
	Col  int
	Vals []storage.Value
}

// NewIn builds a set membership predicate. An empty set matches
// nothing.
func NewIn(col int, vals ...storage.Value) *In {
	return &In{Col: col, Vals: vals}
}

func (in *In) Evaluate(row storage.Row) (bool, error) {
	if in.Col < 0 || in.Col >= len(row) {
		return false, fmt.Errorf("expression: %w: column %d of %d", storage.ErrOutOfBounds, in.Col, len(row))
	}
	cell := row[in.Col]
	if cell.Null {
		return false, nil
	}
	for _, v := range in.Vals {
		if v.Null {
			continue
		}
		cmp, err := cell.Compare(v)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (in *In) String() string {
	return fmt.Sprintf("col[%d] in (%d values)", in.Col, len(in.Vals))
}

// And is a conjunction with short-circuit evaluation
type And struct {
	Children []Expression
}

// NewAnd builds a conjunction
func NewAnd(children ...Expression) *And {
	return &And{Children: children}
}

func (a *And) Evaluate(row storage.Row) (bool, error) {
	for _, child := range a.Children {
		ok, err := child.Evaluate(row)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Or is a disjunction with short-circuit evaluation
type Or struct {
	Children []Expression
}

// NewOr builds a disjunction
func NewOr(children ...Expression) *Or {
	return &Or{Children: children}
}

func (o *Or) Evaluate(row storage.Row) (bool, error) {
	for _, child := range o.Children {
		ok, err := child.Evaluate(row)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Not negates its child
type Not struct {
	Child Expression
}

// NewNot builds a negation
func NewNot(child Expression) *Not {
	return &Not{Child: child}
}

func (n *Not) Evaluate(row storage.Row) (bool, error) {
	ok, err := n.Child.Evaluate(row)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Conjuncts flattens nested conjunctions into a flat list of leaves.
// Non-And expressions return themselves.
func Conjuncts(e Expression) []Expression {
	a, ok := e.(*And)
	if !ok {
		return []Expression{e}
	}
	var out []Expression
	for _, child := range a.Children {
		out = append(out, Conjuncts(child)...)
	}
	return out
}
