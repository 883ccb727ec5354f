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
	"fmt"
	"strings"

	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/expression"
)

// AccessKind is how the base table is read
type AccessKind int

const (
	// FullScan reads every visible row and evaluates the whole filter
	FullScan AccessKind = iota
	// IndexEq probes an equality index with one value
	IndexEq
	// IndexIn probes an equality index with a value set
	IndexIn
	// IndexRange walks a range index between bounds
	IndexRange
)

func (k AccessKind) String() string {
	switch k {
	case IndexEq:
		return "index-eq"
	case IndexIn:
		return "index-in"
	case IndexRange:
		return "index-range"
	default:
		return "scan"
	}
}

// AccessPath is the chosen way to produce base-table candidates. For
// index kinds the probe values are bound from the query's predicate
// leaves at planning time.
type AccessPath struct {
	Kind AccessKind
	// Col is the probed column for index kinds
	Col int

	Eq           storage.Value
	In           []storage.Value
	Lo, Hi       storage.Value
	LoInc, HiInc bool
}

// JoinStrategy is how a join is executed
type JoinStrategy int

const (
	// HashJoin builds a hash table on the right side and probes it
	// once per left row.
	HashJoin JoinStrategy = iota
	// IndexNestedLoop probes the right side's equality index per left
	// row.
	IndexNestedLoop
	// AdjacencyNestedLoop probes the right side's adjacency index per
	// left row; the join column must be the right side's indexed
	// foreign key and the left side's id.
	AdjacencyNestedLoop
)

func (s JoinStrategy) String() string {
	switch s {
	case IndexNestedLoop:
		return "index-nested-loop"
	case AdjacencyNestedLoop:
		return "adjacency-nested-loop"
	default:
		return "hash"
	}
}

// JoinPlan pairs the join spec with its execution strategy
type JoinPlan struct {
	Spec     JoinSpec
	Strategy JoinStrategy
	// AdjCol names the right side's adjacency indexed column for
	// AdjacencyNestedLoop.
	AdjCol string
}

// SortPlan orders the result. ViaIndex means the base access already
// yields rows in the requested order and no sort pass runs.
type SortPlan struct {
	Specs    []OrderSpec
	ViaIndex bool
}

// Plan is an executable physical plan
type Plan struct {
	Table  string
	Access AccessPath
	// Residual is evaluated on candidates the access path produced;
	// nil when the access path covers the whole filter.
	Residual   expression.Expression
	Join       *JoinPlan
	Sort       *SortPlan
	Limit      int
	Offset     int
	Projection []int

	// EstRows and EstCost are the planner's estimates, kept for
	// Explain output.
	EstRows float64
	EstCost float64
}

// Explain renders the plan tree for diagnostics
func (p *Plan) Explain() string {
	var b strings.Builder
	indent := 0
	line := func(format string, args ...interface{}) {
		b.WriteString(strings.Repeat("  ", indent))
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	if len(p.Projection) > 0 {
		line("project %v", p.Projection)
		indent++
	}
	if p.Limit >= 0 || p.Offset > 0 {
		line("limit %d offset %d", p.Limit, p.Offset)
		indent++
	}
	if p.Sort != nil {
		if p.Sort.ViaIndex {
			line("order by %v (satisfied by index)", p.Sort.Specs)
		} else {
			line("sort %v", p.Sort.Specs)
			indent++
		}
	}
	if p.Join != nil {
		line("%s join %s on left[%d]=right[%d] using %s",
			p.Join.Spec.Kind, p.Join.Spec.Table, p.Join.Spec.LeftCol, p.Join.Spec.RightCol, p.Join.Strategy)
		indent++
	}
	if p.Residual != nil {
		line("filter (residual)")
		indent++
	}
	switch p.Access.Kind {
	case IndexEq:
		line("index-eq %s col[%d] = %s (est %.0f rows, cost %.1f)", p.Table, p.Access.Col, p.Access.Eq, p.EstRows, p.EstCost)
	case IndexIn:
		line("index-in %s col[%d] (%d values, est %.0f rows, cost %.1f)", p.Table, p.Access.Col, len(p.Access.In), p.EstRows, p.EstCost)
	case IndexRange:
		line("index-range %s col[%d] %s..%s (est %.0f rows, cost %.1f)", p.Table, p.Access.Col, p.Access.Lo, p.Access.Hi, p.EstRows, p.EstCost)
	default:
		line("scan %s (est %.0f rows, cost %.1f)", p.Table, p.EstRows, p.EstCost)
	}
	return b.String()
}
