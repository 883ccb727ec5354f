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
package storage

import (
	"errors"
	"math"
	"sort"
	"testing"
)

func TestValueAccessors(t *testing.T) {
	if n, ok := NewInt32(7).AsInt64(); !ok || n != 7 {
		t.Fatalf("int32 as int64 = %d, %v", n, ok)
	}
	if f, ok := NewInt64(3).AsFloat64(); !ok || f != 3.0 {
		t.Fatalf("int64 widened to float = %g, %v", f, ok)
	}
	if _, ok := NewString("x").AsInt64(); ok {
		t.Fatalf("string readable as int64")
	}
	if _, ok := NewNull(KindInt64).AsInt64(); ok {
		t.Fatalf("NULL readable as int64")
	}
	if b, ok := NewBool(true).AsBool(); !ok || !b {
		t.Fatalf("bool accessor = %v, %v", b, ok)
	}
}

func TestValueEquals(t *testing.T) {
	cases := []struct {
		a, b Value
		want bool
	}{
		{NewInt64(5), NewInt64(5), true},
		{NewInt32(5), NewInt64(5), true},
		{NewInt64(5), NewFloat64(5.0), true},
		{NewFloat64(5.5), NewFloat64(5.5), true},
		{NewString("a"), NewString("a"), true},
		{NewInt64(5), NewInt64(6), false},
		{NewString("a"), NewInt64(5), false},
		{NewNull(KindInt64), NewNull(KindInt64), false},
		{NewNull(KindInt64), NewInt64(0), false},
	}
	for _, tc := range cases {
		if got := tc.a.Equals(tc.b); got != tc.want {
			t.Errorf("%v == %v: got %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestValueCompare(t *testing.T) {
	if c, err := NewInt32(2).Compare(NewInt64(3)); err != nil || c != -1 {
		t.Fatalf("int32/int64 compare = %d, %v", c, err)
	}
	if c, err := NewInt64(2).Compare(NewFloat64(1.5)); err != nil || c != 1 {
		t.Fatalf("int/float compare = %d, %v", c, err)
	}
	if c, err := NewString("b").Compare(NewString("a")); err != nil || c != 1 {
		t.Fatalf("string compare = %d, %v", c, err)
	}
	if _, err := NewString("a").Compare(NewInt64(1)); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("cross-kind compare err = %v", err)
	}
	if _, err := NewNull(KindInt64).Compare(NewInt64(1)); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("NULL compare err = %v", err)
	}
}

func TestFloatSortableEncoding(t *testing.T) {
	floats := []float64{
		math.Inf(-1), -1e300, -2.5, -1.0, -math.SmallestNonzeroFloat64,
		0, math.SmallestNonzeroFloat64, 0.5, 1.0, 2.5, 1e300, math.Inf(1),
	}
	if !sort.Float64sAreSorted(floats) {
		t.Fatalf("test inputs not sorted")
	}
	for i := 1; i < len(floats); i++ {
		a := FloatToSortableInt64(floats[i-1])
		b := FloatToSortableInt64(floats[i])
		if a >= b {
			t.Fatalf("encoding not monotonic at %g < %g: %d >= %d",
				floats[i-1], floats[i], a, b)
		}
	}
	for _, f := range floats {
		if back := SortableInt64ToFloat(FloatToSortableInt64(f)); back != f {
			t.Fatalf("round trip %g = %g", f, back)
		}
	}
}

func TestSortKey(t *testing.T) {
	if k, ok := NewInt64(42).SortKey(); !ok || k != 42 {
		t.Fatalf("int sort key = %d, %v", k, ok)
	}
	lo, _ := NewFloat64(-1.5).SortKey()
	hi, _ := NewFloat64(1.5).SortKey()
	if lo >= hi {
		t.Fatalf("float sort keys out of order: %d >= %d", lo, hi)
	}
	if _, ok := NewString("x").SortKey(); ok {
		t.Fatalf("string has an int64 sort key")
	}
	if _, ok := NewNull(KindInt64).SortKey(); ok {
		t.Fatalf("NULL has a sort key")
	}
}

func TestSchemaValidate(t *testing.T) {
	good := Schema{
		TableName: "t",
		Columns: []SchemaColumn{
			{Name: "id", Kind: KindInt64},
			{Name: "v", Kind: KindString, Nullable: true},
		},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid schema: %v", err)
	}
	if got := good.ColumnIndex("v"); got != 1 {
		t.Fatalf("ColumnIndex(v) = %d", got)
	}
	if got := good.ColumnIndex("nope"); got != -1 {
		t.Fatalf("ColumnIndex(nope) = %d", got)
	}

	bad := []Schema{
		{TableName: "", Columns: good.Columns},
		{TableName: "t"},
		{TableName: "t", Columns: []SchemaColumn{{Name: "id", Kind: KindString}}},
		{TableName: "t", Columns: []SchemaColumn{{Name: "id", Kind: KindInt64, Nullable: true}}},
		{TableName: "t", Columns: []SchemaColumn{{Name: "id", Kind: KindInt64}, {Name: "id", Kind: KindInt64}}},
	}
	for i, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("bad schema %d: err = %v", i, err)
		}
	}
}
