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
package column

import (
	"errors"
	"testing"

	"github.com/Thejuampi/memris-sub010/internal/storage"
)

func smallConfig() storage.Config {
	cfg := storage.DefaultConfig()
	cfg.PageSize = 8
	cfg.MaxPages = 4
	return cfg
}

func TestInt64ColumnAppendGet(t *testing.T) {
	c, err := New(storage.KindInt64, smallConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Spill over multiple pages
	for i := int64(0); i < 20; i++ {
		off, err := c.Append(storage.NewInt64(i * 100))
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		if off != uint32(i) {
			t.Fatalf("Append(%d) returned offset %d", i, off)
		}
	}
	if c.Len() != 20 {
		t.Fatalf("Len() = %d; want 20", c.Len())
	}
	for i := int64(0); i < 20; i++ {
		v, err := c.Get(uint32(i))
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if n, _ := v.AsInt64(); n != i*100 {
			t.Fatalf("Get(%d) = %d; want %d", i, n, i*100)
		}
	}
}

func TestColumnBounds(t *testing.T) {
	c, _ := New(storage.KindInt64, smallConfig(), nil)
	c.Append(storage.NewInt64(1))

	if _, err := c.Get(1); !errors.Is(err, storage.ErrOutOfBounds) {
		t.Fatalf("Get past end: err = %v; want ErrOutOfBounds", err)
	}
	if err := c.Set(5, storage.NewInt64(9)); !errors.Is(err, storage.ErrOutOfBounds) {
		t.Fatalf("Set past end: err = %v; want ErrOutOfBounds", err)
	}
}

func TestColumnCapacity(t *testing.T) {
	cfg := smallConfig()
	cfg.PageSize = 2
	cfg.MaxPages = 2
	c, _ := New(storage.KindInt32, cfg, nil)

	for i := 0; i < 4; i++ {
		if _, err := c.Append(storage.NewInt32(int32(i))); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if _, err := c.Append(storage.NewInt32(99)); !errors.Is(err, storage.ErrCapacityExceeded) {
		t.Fatalf("Append past capacity: err = %v; want ErrCapacityExceeded", err)
	}
}

func TestColumnCapacityAndGrow(t *testing.T) {
	cfg := smallConfig()
	cfg.PageSize = 4
	cfg.MaxPages = 2
	c, _ := New(storage.KindInt64, cfg, nil)

	if got := c.Capacity(); got != 0 {
		t.Fatalf("empty capacity = %d", got)
	}
	if err := c.Grow(); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	if got := c.Capacity(); got != 4 {
		t.Fatalf("capacity after Grow = %d; want 4", got)
	}

	// Appends fill the pre-grown page before allocating another
	for i := 0; i < 6; i++ {
		if _, err := c.Append(storage.NewInt64(int64(i))); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if got := c.Capacity(); got != 8 {
		t.Fatalf("capacity after spill = %d; want 8", got)
	}

	if err := c.Grow(); !errors.Is(err, storage.ErrCapacityExceeded) {
		t.Fatalf("Grow past MaxPages: err = %v; want ErrCapacityExceeded", err)
	}
}

func TestColumnKindMismatch(t *testing.T) {
	c, _ := New(storage.KindInt64, smallConfig(), nil)
	if _, err := c.Append(storage.NewString("nope")); !errors.Is(err, storage.ErrKindMismatch) {
		t.Fatalf("Append wrong kind: err = %v; want ErrKindMismatch", err)
	}
}

func TestColumnNulls(t *testing.T) {
	c, _ := New(storage.KindFloat64, smallConfig(), nil)
	c.Append(storage.NewFloat64(1.5))
	c.Append(storage.NewNull(storage.KindFloat64))
	c.Append(storage.NewFloat64(2.5))

	v, err := c.Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if !v.Null {
		t.Fatalf("Get(1) not null: %v", v)
	}
	v2, _ := c.Get(2)
	if f, _ := v2.AsFloat64(); v2.Null || f != 2.5 {
		t.Fatalf("Get(2) = %v; want 2.5", v2)
	}

	// Null flag clears on overwrite
	if err := c.Set(1, storage.NewFloat64(7.0)); err != nil {
		t.Fatalf("Set(1): %v", err)
	}
	v1, _ := c.Get(1)
	if f, _ := v1.AsFloat64(); v1.Null || f != 7.0 {
		t.Fatalf("Get(1) after set = %v; want 7", v1)
	}
}

func TestColumnDiscardLast(t *testing.T) {
	c, _ := New(storage.KindInt64, smallConfig(), nil)
	c.Append(storage.NewInt64(1))
	c.Append(storage.NewInt64(2))
	c.DiscardLast()

	if c.Len() != 1 {
		t.Fatalf("Len() = %d; want 1", c.Len())
	}
	if _, err := c.Get(1); !errors.Is(err, storage.ErrOutOfBounds) {
		t.Fatalf("Get(1) after discard: err = %v; want ErrOutOfBounds", err)
	}
	// The slot is reusable
	off, err := c.Append(storage.NewInt64(3))
	if err != nil || off != 1 {
		t.Fatalf("Append after discard = %d, %v; want 1, nil", off, err)
	}
}

func TestStringColumnPool(t *testing.T) {
	pool := NewPool()
	c, _ := New(storage.KindString, smallConfig(), pool)
	sc := c.(*StringColumn)

	c.Append(storage.NewString("alpha"))
	c.Append(storage.NewString("beta"))
	c.Append(storage.NewString("alpha"))

	h0, _ := sc.HandleAt(0)
	h2, _ := sc.HandleAt(2)
	if h0 != h2 {
		t.Fatalf("identical strings got distinct handles %d, %d", h0, h2)
	}
	if pool.Size() != 2 {
		t.Fatalf("pool size = %d; want 2", pool.Size())
	}
	if s, ok := sc.StringAt(1); !ok || s != "beta" {
		t.Fatalf("StringAt(1) = %q, %v", s, ok)
	}
	v0, err := c.Get(0)
	if s, _ := v0.AsString(); err != nil || s != "alpha" {
		t.Fatalf("Get(0) = %v, %v", v0, err)
	}
}

func TestPoolResolveUnknown(t *testing.T) {
	p := NewPool()
	p.Intern("x")
	if _, ok := p.Resolve(5); ok {
		t.Fatalf("Resolve of unknown handle succeeded")
	}
}
