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

// Package memris is the public embedded API of the engine. An Engine
// owns named tables, a plan cache, a worker pool and a codec registry;
// multiple isolated engines can coexist in one process.
package memris

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/Thejuampi/memris-sub010/internal/query"
	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/mvcc"
)

// Engine is an embedded in-memory columnar query engine
type Engine struct {
	cfg    storage.Config
	log    *zap.Logger
	codecs *CodecRegistry

	workers *ants.Pool
	planner *query.Planner
	exec    *query.Executor

	mu     sync.RWMutex
	tables map[string]*mvcc.Table
	closed bool
}

// Option configures an Engine at construction time
type Option func(*Engine)

// WithConfig overrides the default configuration
func WithConfig(cfg storage.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger installs a logger; the default is a no-op logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithCodecs installs a codec registry; the default registry handles
// the primitive kinds plus time.Time.
func WithCodecs(r *CodecRegistry) Option {
	return func(e *Engine) { e.codecs = r }
}

// New creates an engine
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    storage.DefaultConfig(),
		tables: make(map[string]*mvcc.Table),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.codecs == nil {
		e.codecs = NewCodecRegistry()
	}

	workers, err := ants.NewPool(e.cfg.ScanWorkers)
	if err != nil {
		return nil, fmt.Errorf("engine: worker pool: %w", err)
	}
	e.workers = workers

	cat := catalog{e}
	planner, err := query.NewPlanner(cat, e.cfg, e.log)
	if err != nil {
		workers.Release()
		return nil, err
	}
	e.planner = planner
	e.exec = query.NewExecutor(cat, e.log)
	return e, nil
}

// catalog adapts the engine's table registry to the planner and
// executor, which resolve tables by name on every execution.
type catalog struct{ e *Engine }

func (c catalog) Table(name string) (*mvcc.Table, error) {
	c.e.mu.RLock()
	defer c.e.mu.RUnlock()
	if c.e.closed {
		return nil, storage.ErrClosed
	}
	t, ok := c.e.tables[name]
	if !ok {
		return nil, fmt.Errorf("engine: %w: table %s", storage.ErrNotFound, name)
	}
	return t, nil
}

// CreateTable registers a new table under the schema's name
func (e *Engine) CreateTable(schema storage.Schema) (*Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, storage.ErrClosed
	}
	if _, exists := e.tables[schema.TableName]; exists {
		return nil, fmt.Errorf("engine: %w: table %s already exists", storage.ErrInvalidQuery, schema.TableName)
	}
	t, err := mvcc.NewTable(schema, e.cfg, e.log, e.workers)
	if err != nil {
		return nil, err
	}
	e.tables[schema.TableName] = t
	e.log.Info("table created", zap.String("table", schema.TableName))
	return &Table{eng: e, t: t}, nil
}

// Table returns a handle to an existing table
func (e *Engine) Table(name string) (*Table, error) {
	t, err := catalog{e}.Table(name)
	if err != nil {
		return nil, err
	}
	return &Table{eng: e, t: t}, nil
}

// DropTable closes a table and removes it from the catalog. Cached
// plans touching the table fail to rebind and are replanned against
// the catalog, which then reports the table as missing.
func (e *Engine) DropTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return storage.ErrClosed
	}
	t, ok := e.tables[name]
	if !ok {
		return fmt.Errorf("engine: %w: table %s", storage.ErrNotFound, name)
	}
	delete(e.tables, name)
	t.Close()
	e.log.Info("table dropped", zap.String("table", name))
	return nil
}

// Tables returns the registered table names in sorted order
func (e *Engine) Tables() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.tables))
	for n := range e.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Query plans and executes a logical query
func (e *Engine) Query(ctx context.Context, q *query.LogicalQuery) (*query.Result, error) {
	plan, err := e.planner.Plan(q)
	if err != nil {
		return nil, err
	}
	return e.exec.Execute(ctx, plan)
}

// Explain plans a query and renders the chosen strategy
func (e *Engine) Explain(q *query.LogicalQuery) (string, error) {
	plan, err := e.planner.Plan(q)
	if err != nil {
		return "", err
	}
	return plan.Explain(), nil
}

// Codecs returns the engine's codec registry
func (e *Engine) Codecs() *CodecRegistry { return e.codecs }

// Close releases every table and the worker pool. Further operations
// return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for _, t := range e.tables {
		t.Close()
	}
	e.tables = nil
	e.workers.Release()
	return nil
}
