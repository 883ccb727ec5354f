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
package expression

import (
	"errors"
	"testing"

	"github.com/Thejuampi/memris-sub010/internal/storage"
)

func row(vals ...storage.Value) storage.Row { return storage.Row(vals) }

func mustEval(t *testing.T, e Expression, r storage.Row) bool {
	t.Helper()
	ok, err := e.Evaluate(r)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return ok
}

func TestComparisonOperators(t *testing.T) {
	r := row(storage.NewInt64(10), storage.NewString("abc"))

	cases := []struct {
		op   storage.Operator
		val  storage.Value
		want bool
	}{
		{storage.EQ, storage.NewInt64(10), true},
		{storage.EQ, storage.NewInt64(11), false},
		{storage.NE, storage.NewInt64(11), true},
		{storage.GT, storage.NewInt64(9), true},
		{storage.GT, storage.NewInt64(10), false},
		{storage.GTE, storage.NewInt64(10), true},
		{storage.LT, storage.NewInt64(11), true},
		{storage.LTE, storage.NewInt64(10), true},
		{storage.LTE, storage.NewInt64(9), false},
	}
	for _, tc := range cases {
		e := NewComparison(0, tc.op, tc.val)
		if got := mustEval(t, e, r); got != tc.want {
			t.Errorf("%s: got %v, want %v", e, got, tc.want)
		}
	}

	if !mustEval(t, NewComparison(1, storage.EQ, storage.NewString("abc")), r) {
		t.Errorf("string EQ failed")
	}
}

func TestComparisonNumericWidening(t *testing.T) {
	r := row(storage.NewInt32(5), storage.NewFloat64(5.0))
	if !mustEval(t, NewComparison(0, storage.EQ, storage.NewInt64(5)), r) {
		t.Errorf("int32 cell vs int64 constant")
	}
	if !mustEval(t, NewComparison(1, storage.EQ, storage.NewInt64(5)), r) {
		t.Errorf("float64 cell vs int64 constant")
	}
	if !mustEval(t, NewComparison(0, storage.LT, storage.NewFloat64(5.5)), r) {
		t.Errorf("int32 cell vs float constant")
	}
}

func TestComparisonNulls(t *testing.T) {
	r := row(storage.NewNull(storage.KindInt64))

	// Null cells fail every comparison, including NE
	for _, op := range []storage.Operator{storage.EQ, storage.NE, storage.GT, storage.LT} {
		if mustEval(t, NewComparison(0, op, storage.NewInt64(1)), r) {
			t.Errorf("null cell matched %s", op)
		}
	}
	if !mustEval(t, NewComparison(0, storage.ISNULL, storage.Value{}), r) {
		t.Errorf("ISNULL on null cell")
	}
	if mustEval(t, NewComparison(0, storage.ISNOTNULL, storage.Value{}), r) {
		t.Errorf("ISNOTNULL on null cell")
	}
}

func TestComparisonKindMismatch(t *testing.T) {
	r := row(storage.NewInt64(1))
	_, err := NewComparison(0, storage.EQ, storage.NewString("x")).Evaluate(r)
	if !errors.Is(err, storage.ErrKindMismatch) {
		t.Fatalf("err = %v; want ErrKindMismatch", err)
	}
}

func TestComparisonColumnBounds(t *testing.T) {
	r := row(storage.NewInt64(1))
	_, err := NewComparison(3, storage.EQ, storage.NewInt64(1)).Evaluate(r)
	if !errors.Is(err, storage.ErrOutOfBounds) {
		t.Fatalf("err = %v; want ErrOutOfBounds", err)
	}
}

func TestBetween(t *testing.T) {
	r := row(storage.NewInt64(10))

	if !mustEval(t, NewBetween(0, storage.NewInt64(10), storage.NewInt64(20)), r) {
		t.Errorf("inclusive lower bound")
	}
	if !mustEval(t, NewBetween(0, storage.NewInt64(0), storage.NewInt64(10)), r) {
		t.Errorf("inclusive upper bound")
	}
	if mustEval(t, NewBetween(0, storage.NewInt64(11), storage.NewInt64(20)), r) {
		t.Errorf("below range matched")
	}

	// Inverted bounds select nothing
	if mustEval(t, NewBetween(0, storage.NewInt64(20), storage.NewInt64(10)), r) {
		t.Errorf("inverted range matched")
	}

	ex := NewBetween(0, storage.NewInt64(10), storage.NewInt64(20))
	ex.LoInc = false
	if mustEval(t, ex, r) {
		t.Errorf("exclusive lower bound matched boundary")
	}
}

func TestIn(t *testing.T) {
	r := row(storage.NewString("b"))

	yes := NewIn(0, storage.NewString("a"), storage.NewString("b"))
	if !mustEval(t, yes, r) {
		t.Errorf("membership not found")
	}
	no := NewIn(0, storage.NewString("x"))
	if mustEval(t, no, r) {
		t.Errorf("phantom membership")
	}

	// Empty set matches nothing
	if mustEval(t, NewIn(0), r) {
		t.Errorf("empty IN matched")
	}

	// Null cell never matches, null members are skipped
	nr := row(storage.NewNull(storage.KindString))
	if mustEval(t, yes, nr) {
		t.Errorf("null cell matched IN")
	}
}

func TestLogicalConnectives(t *testing.T) {
	r := row(storage.NewInt64(10), storage.NewString("go"))

	isTen := NewComparison(0, storage.EQ, storage.NewInt64(10))
	isGo := NewComparison(1, storage.EQ, storage.NewString("go"))
	isJava := NewComparison(1, storage.EQ, storage.NewString("java"))

	if !mustEval(t, NewAnd(isTen, isGo), r) {
		t.Errorf("And true case")
	}
	if mustEval(t, NewAnd(isTen, isJava), r) {
		t.Errorf("And false case")
	}
	if !mustEval(t, NewOr(isJava, isGo), r) {
		t.Errorf("Or true case")
	}
	if mustEval(t, NewOr(isJava, isJava), r) {
		t.Errorf("Or false case")
	}
	if !mustEval(t, NewNot(isJava), r) {
		t.Errorf("Not")
	}
	// Empty And is vacuously true
	if !mustEval(t, NewAnd(), r) {
		t.Errorf("empty And")
	}
}

func TestConjuncts(t *testing.T) {
	a := NewComparison(0, storage.EQ, storage.NewInt64(1))
	b := NewComparison(1, storage.GT, storage.NewInt64(2))
	c := NewComparison(2, storage.LT, storage.NewInt64(3))

	flat := Conjuncts(NewAnd(a, NewAnd(b, c)))
	if len(flat) != 3 {
		t.Fatalf("Conjuncts = %d leaves; want 3", len(flat))
	}
	if got := Conjuncts(a); len(got) != 1 || got[0] != Expression(a) {
		t.Fatalf("Conjuncts of leaf = %v", got)
	}
}
