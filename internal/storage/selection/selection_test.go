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
package selection

import (
	"reflect"
	"testing"
)

func build(bound uint32, offs ...uint32) Vector {
	b := NewBuilder(bound, DefaultDenseThreshold)
	for _, off := range offs {
		b.Add(off)
	}
	return b.Seal()
}

func TestBuilderSealRepresentation(t *testing.T) {
	// 3 of 1000 rows is well under 5 percent
	v := build(1000, 10, 20, 30)
	if v.Dense() {
		t.Fatalf("low-density vector sealed dense")
	}
	if v.Cardinality() != 3 {
		t.Fatalf("Cardinality() = %d; want 3", v.Cardinality())
	}

	// 200 of 1000 is over the threshold
	b := NewBuilder(1000, DefaultDenseThreshold)
	for i := uint32(0); i < 200; i++ {
		b.Add(i * 5)
	}
	d := b.Seal()
	if !d.Dense() {
		t.Fatalf("high-density vector sealed sparse")
	}
	if d.Cardinality() != 200 {
		t.Fatalf("Cardinality() = %d; want 200", d.Cardinality())
	}
}

func TestVectorRoundTrip(t *testing.T) {
	// Out-of-order adds come back sorted
	b := NewBuilder(100, DefaultDenseThreshold)
	for _, off := range []uint32{42, 7, 99, 7, 0} {
		b.Add(off)
	}
	v := b.Seal()
	want := []uint32{0, 7, 42, 99}
	if got := v.Offsets(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Offsets() = %v; want %v", got, want)
	}
	for _, off := range want {
		if !v.Contains(off) {
			t.Fatalf("Contains(%d) = false", off)
		}
	}
	if v.Contains(8) {
		t.Fatalf("Contains(8) = true")
	}
}

func TestForEachEarlyStop(t *testing.T) {
	v := build(100, 1, 2, 3, 4, 5)
	var seen []uint32
	v.ForEach(func(off uint32) bool {
		seen = append(seen, off)
		return len(seen) < 2
	})
	if !reflect.DeepEqual(seen, []uint32{1, 2}) {
		t.Fatalf("early stop visited %v", seen)
	}
}

func TestIntersect(t *testing.T) {
	a := build(1000, 1, 3, 5, 7, 9)
	b := build(1000, 3, 4, 5, 6)
	got := Intersect(a, b, DefaultDenseThreshold).Offsets()
	if !reflect.DeepEqual(got, []uint32{3, 5}) {
		t.Fatalf("Intersect = %v; want [3 5]", got)
	}
}

func TestUnion(t *testing.T) {
	a := build(1000, 1, 3)
	b := build(1000, 2, 3, 8)
	got := Union(a, b, DefaultDenseThreshold).Offsets()
	if !reflect.DeepEqual(got, []uint32{1, 2, 3, 8}) {
		t.Fatalf("Union = %v; want [1 2 3 8]", got)
	}
}

func TestSubtract(t *testing.T) {
	a := build(1000, 1, 2, 3, 4)
	b := build(1000, 2, 4, 6)
	got := Subtract(a, b, DefaultDenseThreshold).Offsets()
	if !reflect.DeepEqual(got, []uint32{1, 3}) {
		t.Fatalf("Subtract = %v; want [1 3]", got)
	}
}

func TestMixedRepresentationOps(t *testing.T) {
	// Dense A, sparse B
	ab := NewBuilder(100, DefaultDenseThreshold)
	for i := uint32(0); i < 50; i++ {
		ab.Add(i)
	}
	a := ab.Seal()
	if !a.Dense() {
		t.Fatalf("setup: a should be dense")
	}
	b := build(100, 10, 60, 70)

	if got := Intersect(a, b, DefaultDenseThreshold).Offsets(); !reflect.DeepEqual(got, []uint32{10}) {
		t.Fatalf("dense∧sparse = %v; want [10]", got)
	}
	u := Union(a, b, DefaultDenseThreshold)
	if u.Cardinality() != 52 {
		t.Fatalf("dense∨sparse cardinality = %d; want 52", u.Cardinality())
	}
	if !u.Contains(70) || !u.Contains(25) {
		t.Fatalf("union missing members")
	}
}

func TestNormalizationAfterOps(t *testing.T) {
	// Two dense vectors with a tiny overlap collapse to sparse
	ab := NewBuilder(1000, DefaultDenseThreshold)
	bb := NewBuilder(1000, DefaultDenseThreshold)
	for i := uint32(0); i < 100; i++ {
		ab.Add(i)
		bb.Add(i + 99)
	}
	a, b := ab.Seal(), bb.Seal()
	if !a.Dense() || !b.Dense() {
		t.Fatalf("setup: inputs should be dense")
	}
	r := Intersect(a, b, DefaultDenseThreshold)
	if r.Dense() {
		t.Fatalf("single-element intersection stayed dense")
	}
	if !reflect.DeepEqual(r.Offsets(), []uint32{99}) {
		t.Fatalf("intersection = %v; want [99]", r.Offsets())
	}
}

func TestEmptyAndAll(t *testing.T) {
	e := Empty(50)
	if e.Cardinality() != 0 || e.Contains(0) {
		t.Fatalf("Empty not empty")
	}
	a := All(50)
	if a.Cardinality() != 50 || !a.Contains(49) || a.Contains(50) {
		t.Fatalf("All(50) wrong: card=%d", a.Cardinality())
	}
}
