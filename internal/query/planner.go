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
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/expression"
	"github.com/Thejuampi/memris-sub010/internal/storage/mvcc"
)

// Cost model weights, in abstract row-visit units
const (
	costScanRow    = 1.0
	costRowFetch   = 1.2
	costHashProbe  = 1.0
	costHashBuild  = 1.5
	costIndexProbe = 8.0

	// rangeSelectivity is assumed when bounds give no better estimate
	rangeSelectivity = 0.3
)

// strategy is the cached outcome of planning: which access path and
// join/sort strategies to use for a query shape. Probe values are
// re-bound from the incoming query on every hit.
type strategy struct {
	access       AccessKind
	col          int
	join         JoinStrategy
	adjCol       string
	sortViaIndex bool
}

// Planner turns logical queries into physical plans, caching chosen
// strategies per query shape.
type Planner struct {
	cat   Catalog
	log   *zap.Logger
	cache *lru.Cache[string, strategy]
}

// NewPlanner creates a planner with an LRU strategy cache
func NewPlanner(cat Catalog, cfg storage.Config, logger *zap.Logger) (*Planner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.PlanCacheSize
	if size <= 0 {
		size = storage.DefaultConfig().PlanCacheSize
	}
	cache, err := lru.New[string, strategy](size)
	if err != nil {
		return nil, err
	}
	return &Planner{cat: cat, log: logger, cache: cache}, nil
}

// Plan produces a physical plan for q
func (p *Planner) Plan(q *LogicalQuery) (*Plan, error) {
	if err := q.Validate(p.cat); err != nil {
		return nil, err
	}

	key := q.Fingerprint()
	if st, ok := p.cache.Get(key); ok {
		if plan, ok := p.bind(q, st); ok {
			p.log.Debug("plan cache hit", zap.String("table", q.Table))
			return plan, nil
		}
		// Shape matched but binding failed, e.g. an index was dropped;
		// replan from scratch.
		p.cache.Remove(key)
	}

	plan, st, err := p.planFresh(q)
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, st)
	return plan, nil
}

// CacheLen returns the number of cached strategies
func (p *Planner) CacheLen() int { return p.cache.Len() }

// candidate is one way to access the base table
type candidate struct {
	access   AccessPath
	residual expression.Expression
	estRows  float64
	cost     float64
}

func (p *Planner) planFresh(q *LogicalQuery) (*Plan, strategy, error) {
	base, err := p.cat.Table(q.Table)
	if err != nil {
		return nil, strategy{}, err
	}
	stats := base.Stats()
	n := float64(stats.Rows)
	if n < 1 {
		n = 1
	}

	best := p.chooseAccess(q.Filter, base, stats, n)

	plan := &Plan{
		Table:      q.Table,
		Access:     best.access,
		Residual:   best.residual,
		Limit:      q.Limit,
		Offset:     q.Offset,
		Projection: q.Projection,
		EstRows:    best.estRows,
		EstCost:    best.cost,
	}
	st := strategy{access: best.access.Kind, col: best.access.Col}

	if q.Join != nil {
		jp, err := p.chooseJoin(q, best.estRows)
		if err != nil {
			return nil, strategy{}, err
		}
		plan.Join = jp
		st.join = jp.Strategy
		st.adjCol = jp.AdjCol
	}

	if len(q.Order) > 0 {
		sp := &SortPlan{Specs: q.Order}
		// A single-column ordering over the base table can ride a range
		// index when the access is a scan anyway; index candidates
		// produce offset order and would need the sort pass regardless.
		if len(q.Order) == 1 && plan.Access.Kind == FullScan &&
			q.Order[0].Col < len(base.Schema().Columns) &&
			base.HasRangeIndex(q.Order[0].Col) &&
			!base.Schema().Columns[q.Order[0].Col].Nullable {
			sp.ViaIndex = true
		}
		plan.Sort = sp
		st.sortViaIndex = sp.ViaIndex
	}

	p.log.Debug("planned query",
		zap.String("table", q.Table),
		zap.String("access", plan.Access.Kind.String()),
		zap.Float64("estRows", plan.EstRows),
		zap.Float64("estCost", plan.EstCost))
	return plan, st, nil
}

// chooseAccess picks the cheapest index-eligible conjunct as the
// access path. Any usable index beats a full scan outright; cost only
// arbitrates between competing indexes.
func (p *Planner) chooseAccess(filter expression.Expression, base *mvcc.Table, stats mvcc.Stats, n float64) candidate {
	full := candidate{
		access:   AccessPath{Kind: FullScan},
		residual: filter,
		estRows:  n,
		cost:     n * costScanRow,
	}
	if filter != nil {
		// A filtered scan returns fewer rows but still visits all
		full.estRows = n * rangeSelectivity
	}

	leaves := expression.Conjuncts(filter)
	if filter == nil {
		leaves = nil
	}

	var best candidate
	indexed := false
	for li, leaf := range leaves {
		c, ok := p.leafCandidate(leaf, base, stats, n)
		if !ok {
			continue
		}
		c.residual = residualOf(leaves, li)
		if !indexed || c.cost < best.cost {
			best = c
			indexed = true
		}
	}
	if !indexed {
		return full
	}
	return best
}

// leafCandidate costs one predicate leaf as an index access
func (p *Planner) leafCandidate(leaf expression.Expression, base *mvcc.Table, stats mvcc.Stats, n float64) (candidate, bool) {
	switch x := leaf.(type) {
	case *expression.Comparison:
		switch x.Op {
		case storage.EQ:
			if base.HasEqualityIndex(x.Col) {
				k := matchEstimate(stats.EqualityKeys[x.Col], n)
				return candidate{
					access:  AccessPath{Kind: IndexEq, Col: x.Col, Eq: x.Val},
					estRows: k,
					cost:    costIndexProbe + k*costRowFetch,
				}, true
			}
			if base.HasRangeIndex(x.Col) {
				k := matchEstimate(stats.RangeKeys[x.Col], n)
				return candidate{
					access:  AccessPath{Kind: IndexRange, Col: x.Col, Lo: x.Val, Hi: x.Val, LoInc: true, HiInc: true},
					estRows: k,
					cost:    math.Log2(n+2)*costScanRow + k*costRowFetch,
				}, true
			}
		case storage.GT, storage.GTE:
			if base.HasRangeIndex(x.Col) {
				k := n * rangeSelectivity
				return candidate{
					access:  AccessPath{Kind: IndexRange, Col: x.Col, Lo: x.Val, Hi: storage.Value{Null: true}, LoInc: x.Op == storage.GTE},
					estRows: k,
					cost:    math.Log2(n+2)*costScanRow + k*costRowFetch,
				}, true
			}
		case storage.LT, storage.LTE:
			if base.HasRangeIndex(x.Col) {
				k := n * rangeSelectivity
				return candidate{
					access:  AccessPath{Kind: IndexRange, Col: x.Col, Lo: storage.Value{Null: true}, Hi: x.Val, HiInc: x.Op == storage.LTE},
					estRows: k,
					cost:    math.Log2(n+2)*costScanRow + k*costRowFetch,
				}, true
			}
		}
		// NE, ISNULL and ISNOTNULL never use an index: their match set
		// is the complement of what indexes answer cheaply.
		return candidate{}, false

	case *expression.Between:
		if base.HasRangeIndex(x.Col) {
			k := n * rangeSelectivity
			return candidate{
				access:  AccessPath{Kind: IndexRange, Col: x.Col, Lo: x.Lo, Hi: x.Hi, LoInc: x.LoInc, HiInc: x.HiInc},
				estRows: k,
				cost:    math.Log2(n+2)*costScanRow + k*costRowFetch,
			}, true
		}

	case *expression.In:
		if base.HasEqualityIndex(x.Col) {
			per := matchEstimate(stats.EqualityKeys[x.Col], n)
			k := per * float64(len(x.Vals))
			return candidate{
				access:  AccessPath{Kind: IndexIn, Col: x.Col, In: x.Vals},
				estRows: k,
				cost:    float64(len(x.Vals))*costIndexProbe + k*costRowFetch,
			}, true
		}
	}
	return candidate{}, false
}

// matchEstimate is rows per distinct key
func matchEstimate(distinct int, n float64) float64 {
	if distinct <= 0 {
		return n
	}
	k := n / float64(distinct)
	if k < 1 {
		k = 1
	}
	return k
}

// residualOf rebuilds the filter without the leaf chosen as access
func residualOf(leaves []expression.Expression, chosen int) expression.Expression {
	rest := make([]expression.Expression, 0, len(leaves)-1)
	for i, l := range leaves {
		if i != chosen {
			rest = append(rest, l)
		}
	}
	switch len(rest) {
	case 0:
		return nil
	case 1:
		return rest[0]
	default:
		return expression.NewAnd(rest...)
	}
}

func (p *Planner) chooseJoin(q *LogicalQuery, leftRows float64) (*JoinPlan, error) {
	right, err := p.cat.Table(q.Join.Table)
	if err != nil {
		return nil, err
	}
	rightStats := right.Stats()
	rn := float64(rightStats.Rows)
	if rn < 1 {
		rn = 1
	}

	jp := &JoinPlan{Spec: *q.Join, Strategy: HashJoin}
	hashCost := rn*costHashBuild + leftRows*costHashProbe

	// Adjacency beats everything when the right side indexes the join
	// column as a foreign key and the left key is the row id.
	rightColName := right.Schema().Columns[q.Join.RightCol].Name
	if q.Join.LeftCol == 0 {
		if adj := right.Adjacency(rightColName); adj != nil {
			fanout := adj.AvgFanout()
			if fanout <= 0 {
				fanout = 1
			}
			inlCost := leftRows * (costIndexProbe + fanout*costRowFetch)
			// Ties go to the nested loop: it streams and needs no build.
			if inlCost <= hashCost {
				jp.Strategy = AdjacencyNestedLoop
				jp.AdjCol = rightColName
				return jp, nil
			}
		}
	}

	if right.HasEqualityIndex(q.Join.RightCol) {
		per := matchEstimate(rightStats.EqualityKeys[q.Join.RightCol], rn)
		inlCost := leftRows * (costIndexProbe + per*costRowFetch)
		if inlCost <= hashCost {
			jp.Strategy = IndexNestedLoop
			return jp, nil
		}
	}
	return jp, nil
}

// bind rebuilds a concrete plan from a cached strategy and the current
// query's predicate constants.
func (p *Planner) bind(q *LogicalQuery, st strategy) (*Plan, bool) {
	plan := &Plan{
		Table:      q.Table,
		Access:     AccessPath{Kind: FullScan},
		Residual:   q.Filter,
		Limit:      q.Limit,
		Offset:     q.Offset,
		Projection: q.Projection,
	}

	if st.access != FullScan {
		leaves := expression.Conjuncts(q.Filter)
		if q.Filter == nil {
			return nil, false
		}
		bound := false
		for li, leaf := range leaves {
			ap, ok := leafAccess(leaf, st)
			if !ok {
				continue
			}
			// The index must still exist
			base, err := p.cat.Table(q.Table)
			if err != nil {
				return nil, false
			}
			switch st.access {
			case IndexEq, IndexIn:
				if !base.HasEqualityIndex(st.col) {
					return nil, false
				}
			case IndexRange:
				if !base.HasRangeIndex(st.col) {
					return nil, false
				}
			}
			plan.Access = ap
			plan.Residual = residualOf(leaves, li)
			bound = true
			break
		}
		if !bound {
			return nil, false
		}
	}

	if q.Join != nil {
		plan.Join = &JoinPlan{Spec: *q.Join, Strategy: st.join, AdjCol: st.adjCol}
	}
	if len(q.Order) > 0 {
		plan.Sort = &SortPlan{Specs: q.Order, ViaIndex: st.sortViaIndex}
	}
	return plan, true
}

// leafAccess matches a predicate leaf against a cached access choice
// and binds its constants.
func leafAccess(leaf expression.Expression, st strategy) (AccessPath, bool) {
	switch x := leaf.(type) {
	case *expression.Comparison:
		if x.Col != st.col {
			return AccessPath{}, false
		}
		switch {
		case st.access == IndexEq && x.Op == storage.EQ:
			return AccessPath{Kind: IndexEq, Col: x.Col, Eq: x.Val}, true
		case st.access == IndexRange && x.Op == storage.EQ:
			return AccessPath{Kind: IndexRange, Col: x.Col, Lo: x.Val, Hi: x.Val, LoInc: true, HiInc: true}, true
		case st.access == IndexRange && (x.Op == storage.GT || x.Op == storage.GTE):
			return AccessPath{Kind: IndexRange, Col: x.Col, Lo: x.Val, Hi: storage.Value{Null: true}, LoInc: x.Op == storage.GTE}, true
		case st.access == IndexRange && (x.Op == storage.LT || x.Op == storage.LTE):
			return AccessPath{Kind: IndexRange, Col: x.Col, Lo: storage.Value{Null: true}, Hi: x.Val, HiInc: x.Op == storage.LTE}, true
		}
	case *expression.Between:
		if st.access == IndexRange && x.Col == st.col {
			return AccessPath{Kind: IndexRange, Col: x.Col, Lo: x.Lo, Hi: x.Hi, LoInc: x.LoInc, HiInc: x.HiInc}, true
		}
	case *expression.In:
		if st.access == IndexIn && x.Col == st.col {
			return AccessPath{Kind: IndexIn, Col: x.Col, In: x.Vals}, true
		}
	}
	return AccessPath{}, false
}
