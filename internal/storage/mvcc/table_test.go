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
package mvcc

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/panjf2000/ants/v2"

	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/internal/storage/expression"
)

func usersSchema() storage.Schema {
	return storage.Schema{
		TableName: "users",
		Columns: []storage.SchemaColumn{
			{Name: "id", Kind: storage.KindInt64},
			{Name: "name", Kind: storage.KindString},
			{Name: "age", Kind: storage.KindInt64},
			{Name: "score", Kind: storage.KindFloat64, Nullable: true},
		},
	}
}

func newUsers(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable(usersSchema(), storage.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func user(id int64, name string, age int64, score float64) storage.Row {
	return storage.Row{
		storage.NewInt64(id),
		storage.NewString(name),
		storage.NewInt64(age),
		storage.NewFloat64(score),
	}
}

func insert(t *testing.T, tbl *Table, row storage.Row) int64 {
	t.Helper()
	id, err := tbl.Insert(row)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return id
}

func TestInsertAndGet(t *testing.T) {
	tbl := newUsers(t)
	id := insert(t, tbl, user(1, "ada", 36, 9.5))

	snap, err := tbl.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	row, err := snap.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if name, _ := row[1].AsString(); name != "ada" {
		t.Fatalf("row[1] = %v; want ada", row[1])
	}
	if age, _ := row[2].AsInt64(); age != 36 {
		t.Fatalf("row[2] = %v; want 36", row[2])
	}

	if _, err := snap.Get(999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get(999) err = %v; want ErrNotFound", err)
	}
}

func TestAutoIncrementID(t *testing.T) {
	tbl := newUsers(t)
	a := insert(t, tbl, user(0, "a", 1, 0))
	b := insert(t, tbl, user(0, "b", 2, 0))
	if a != 1 || b != 2 {
		t.Fatalf("auto ids = %d, %d; want 1, 2", a, b)
	}

	// Explicit id bumps the counter past it
	insert(t, tbl, user(10, "c", 3, 0))
	d := insert(t, tbl, user(0, "d", 4, 0))
	if d != 11 {
		t.Fatalf("id after explicit 10 = %d; want 11", d)
	}
}

func TestDuplicateID(t *testing.T) {
	tbl := newUsers(t)
	insert(t, tbl, user(5, "a", 1, 0))

	if _, err := tbl.Insert(user(5, "b", 2, 0)); !errors.Is(err, storage.ErrDuplicateID) {
		t.Fatalf("err = %v; want ErrDuplicateID", err)
	}

	// Deleted ids are never recycled
	if err := tbl.Delete(5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tbl.Insert(user(5, "c", 3, 0)); !errors.Is(err, storage.ErrDuplicateID) {
		t.Fatalf("insert over deleted id err = %v; want ErrDuplicateID", err)
	}
}

func TestInsertValidation(t *testing.T) {
	tbl := newUsers(t)

	short := storage.Row{storage.NewInt64(1)}
	if _, err := tbl.Insert(short); !errors.Is(err, storage.ErrInvalidQuery) {
		t.Fatalf("short row err = %v; want ErrInvalidQuery", err)
	}

	bad := user(1, "x", 1, 0)
	bad[2] = storage.NewString("wrong")
	if _, err := tbl.Insert(bad); !errors.Is(err, storage.ErrKindMismatch) {
		t.Fatalf("wrong kind err = %v; want ErrKindMismatch", err)
	}

	nn := user(1, "x", 1, 0)
	nn[1] = storage.NewNull(storage.KindString)
	if _, err := tbl.Insert(nn); !errors.Is(err, storage.ErrInvalidQuery) {
		t.Fatalf("null in non-nullable err = %v; want ErrInvalidQuery", err)
	}

	// Validation failures must not corrupt the table
	id := insert(t, tbl, user(0, "ok", 1, 0))
	snap, _ := tbl.Snapshot()
	if _, err := snap.Get(id); err != nil {
		t.Fatalf("Get after failed inserts: %v", err)
	}
}

func TestDeleteVisibility(t *testing.T) {
	tbl := newUsers(t)
	id := insert(t, tbl, user(0, "gone", 1, 0))

	before, _ := tbl.Snapshot()

	if err := tbl.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	after, _ := tbl.Snapshot()

	// Older snapshot still sees the row
	if _, err := before.Get(id); err != nil {
		t.Fatalf("pre-delete snapshot lost the row: %v", err)
	}
	if _, err := after.Get(id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("post-delete Get err = %v; want ErrNotFound", err)
	}

	// Double delete fails
	if err := tbl.Delete(id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("double delete err = %v; want ErrNotFound", err)
	}
}

func TestSnapshotDoesNotSeeLaterInserts(t *testing.T) {
	tbl := newUsers(t)
	insert(t, tbl, user(0, "early", 1, 0))

	snap, _ := tbl.Snapshot()
	late := insert(t, tbl, user(0, "late", 2, 0))

	vec, err := snap.Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if vec.Cardinality() != 1 {
		t.Fatalf("snapshot sees %d rows; want 1", vec.Cardinality())
	}
	if _, err := snap.Get(late); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("snapshot Get of later insert err = %v; want ErrNotFound", err)
	}
}

func TestUpdate(t *testing.T) {
	tbl := newUsers(t)
	id := insert(t, tbl, user(0, "old", 30, 1.0))

	err := tbl.Update(id, map[int]storage.Value{
		1: storage.NewString("new"),
		2: storage.NewInt64(31),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap, _ := tbl.Snapshot()
	row, _ := snap.Get(id)
	if name, _ := row[1].AsString(); name != "new" {
		t.Fatalf("name = %v; want new", row[1])
	}
	if age, _ := row[2].AsInt64(); age != 31 {
		t.Fatalf("age = %v; want 31", row[2])
	}

	// Id column is immutable
	err = tbl.Update(id, map[int]storage.Value{0: storage.NewInt64(99)})
	if !errors.Is(err, storage.ErrInvalidQuery) {
		t.Fatalf("id update err = %v; want ErrInvalidQuery", err)
	}

	// Absent and deleted ids fail
	if err := tbl.Update(999, map[int]storage.Value{1: storage.NewString("x")}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update absent err = %v; want ErrNotFound", err)
	}
}

func TestScanWithPredicate(t *testing.T) {
	tbl := newUsers(t)
	insert(t, tbl, user(0, "a", 20, 0))
	insert(t, tbl, user(0, "b", 30, 0))
	insert(t, tbl, user(0, "c", 40, 0))

	snap, _ := tbl.Snapshot()
	pred := expression.NewComparison(2, storage.GTE, storage.NewInt64(30))
	vec, err := snap.Scan(context.Background(), pred)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := vec.Offsets(); !reflect.DeepEqual(got, []uint32{1, 2}) {
		t.Fatalf("Scan offsets = %v; want [1 2]", got)
	}

	rows, err := snap.Materialize(vec)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Materialize rows = %d; want 2", len(rows))
	}
}

func TestIndexProbesMatchScan(t *testing.T) {
	tbl := newUsers(t)
	if err := tbl.CreateEqualityIndex("name"); err != nil {
		t.Fatalf("CreateEqualityIndex: %v", err)
	}
	if err := tbl.CreateRangeIndex("age"); err != nil {
		t.Fatalf("CreateRangeIndex: %v", err)
	}

	names := []string{"a", "b", "a", "c", "b", "a"}
	for i, n := range names {
		insert(t, tbl, user(0, n, int64(20+i*5), 0))
	}

	snap, _ := tbl.Snapshot()
	ctx := context.Background()

	// Equality: index probe equals full scan
	scanVec, err := snap.Scan(ctx, expression.NewComparison(1, storage.EQ, storage.NewString("a")))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	probeVec, ok := snap.ProbeEqual(1, storage.NewString("a"))
	if !ok {
		t.Fatalf("ProbeEqual unavailable")
	}
	if !reflect.DeepEqual(probeVec.Offsets(), scanVec.Offsets()) {
		t.Fatalf("probe %v != scan %v", probeVec.Offsets(), scanVec.Offsets())
	}

	// Range: index probe equals full scan
	scanVec, _ = snap.Scan(ctx, expression.NewBetween(2, storage.NewInt64(25), storage.NewInt64(40)))
	probeVec, ok = snap.ProbeRange(2, storage.NewInt64(25), storage.NewInt64(40), true, true)
	if !ok {
		t.Fatalf("ProbeRange unavailable")
	}
	if !reflect.DeepEqual(probeVec.Offsets(), scanVec.Offsets()) {
		t.Fatalf("range probe %v != scan %v", probeVec.Offsets(), scanVec.Offsets())
	}

	// IN probe
	inVec, ok := snap.ProbeIn(1, []storage.Value{storage.NewString("b"), storage.NewString("c")})
	if !ok {
		t.Fatalf("ProbeIn unavailable")
	}
	scanVec, _ = snap.Scan(ctx, expression.NewIn(1, storage.NewString("b"), storage.NewString("c")))
	if !reflect.DeepEqual(inVec.Offsets(), scanVec.Offsets()) {
		t.Fatalf("in probe %v != scan %v", inVec.Offsets(), scanVec.Offsets())
	}
}

func TestIndexProbeCrossKind(t *testing.T) {
	tbl := newUsers(t)
	if err := tbl.CreateEqualityIndex("age"); err != nil {
		t.Fatalf("CreateEqualityIndex: %v", err)
	}
	for i := 0; i < 4; i++ {
		insert(t, tbl, user(0, "u", int64(20+i*5), 0))
	}

	snap, _ := tbl.Snapshot()
	ctx := context.Background()

	// A float constant holding an exact integer folds onto the int64
	// key, so probe and scan answer alike.
	scanVec, err := snap.Scan(ctx, expression.NewComparison(2, storage.EQ, storage.NewFloat64(25)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	probeVec, ok := snap.ProbeEqual(2, storage.NewFloat64(25))
	if !ok {
		t.Fatalf("ProbeEqual unavailable for integral float")
	}
	if !reflect.DeepEqual(probeVec.Offsets(), scanVec.Offsets()) {
		t.Fatalf("probe %v != scan %v", probeVec.Offsets(), scanVec.Offsets())
	}
	if probeVec.Cardinality() != 1 {
		t.Fatalf("cardinality = %d, want 1", probeVec.Cardinality())
	}

	// A fractional constant can never be an int64 key. The probe must
	// decline rather than report an empty match.
	if _, ok := snap.ProbeEqual(2, storage.NewFloat64(25.5)); ok {
		t.Fatalf("ProbeEqual accepted fractional value over int64 index")
	}

	inVec, ok := snap.ProbeIn(2, []storage.Value{storage.NewFloat64(25), storage.NewInt64(30)})
	if !ok {
		t.Fatalf("ProbeIn unavailable for integral floats")
	}
	scanVec, _ = snap.Scan(ctx, expression.NewIn(2, storage.NewFloat64(25), storage.NewInt64(30)))
	if !reflect.DeepEqual(inVec.Offsets(), scanVec.Offsets()) {
		t.Fatalf("in probe %v != scan %v", inVec.Offsets(), scanVec.Offsets())
	}
	if _, ok := snap.ProbeIn(2, []storage.Value{storage.NewInt64(25), storage.NewFloat64(25.5)}); ok {
		t.Fatalf("ProbeIn accepted fractional value over int64 index")
	}
}

func TestIndexMaintainedByMutations(t *testing.T) {
	tbl := newUsers(t)
	if err := tbl.CreateEqualityIndex("name"); err != nil {
		t.Fatalf("CreateEqualityIndex: %v", err)
	}

	id := insert(t, tbl, user(0, "before", 1, 0))
	if err := tbl.Update(id, map[int]storage.Value{1: storage.NewString("after")}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap, _ := tbl.Snapshot()
	if vec, _ := snap.ProbeEqual(1, storage.NewString("before")); vec.Cardinality() != 0 {
		t.Fatalf("stale index entry for old value")
	}
	vec, _ := snap.ProbeEqual(1, storage.NewString("after"))
	if vec.Cardinality() != 1 {
		t.Fatalf("index missing new value")
	}

	// Deleted rows drop out of probes via visibility
	if err := tbl.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap, _ = tbl.Snapshot()
	if vec, _ := snap.ProbeEqual(1, storage.NewString("after")); vec.Cardinality() != 0 {
		t.Fatalf("deleted row visible through index")
	}
}

func TestAdjacencyIndex(t *testing.T) {
	orders := storage.Schema{
		TableName: "orders",
		Columns: []storage.SchemaColumn{
			{Name: "id", Kind: storage.KindInt64},
			{Name: "user_id", Kind: storage.KindInt64},
		},
	}
	tbl, err := NewTable(orders, storage.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if err := tbl.CreateAdjacencyIndex("user_id"); err != nil {
		t.Fatalf("CreateAdjacencyIndex: %v", err)
	}

	for i := 0; i < 5; i++ {
		owner := int64(1 + i%2)
		if _, err := tbl.Insert(storage.Row{storage.NewInt64(0), storage.NewInt64(owner)}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	snap, _ := tbl.Snapshot()
	vec, ok := snap.ProbeChildren("user_id", 1)
	if !ok {
		t.Fatalf("ProbeChildren unavailable")
	}
	if got := vec.Offsets(); !reflect.DeepEqual(got, []uint32{0, 2, 4}) {
		t.Fatalf("children of 1 = %v; want [0 2 4]", got)
	}

	// Adjacency needs an integer column
	if err := tbl.CreateAdjacencyIndex("id"); err != nil {
		t.Fatalf("adjacency on id column: %v", err)
	}
}

func TestParallelScan(t *testing.T) {
	pool, err := ants.NewPool(4)
	if err != nil {
		t.Fatalf("ants.NewPool: %v", err)
	}
	defer pool.Release()

	cfg := storage.DefaultConfig()
	cfg.ParallelScanMinRows = 100

	tbl, err := NewTable(usersSchema(), cfg, nil, pool)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	const n = 2000
	for i := 0; i < n; i++ {
		insert(t, tbl, user(0, "u", int64(i), 0))
	}

	snap, _ := tbl.Snapshot()
	pred := expression.NewComparison(2, storage.LT, storage.NewInt64(500))
	vec, err := snap.Scan(context.Background(), pred)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if vec.Cardinality() != 500 {
		t.Fatalf("parallel scan matched %d; want 500", vec.Cardinality())
	}
	offs := vec.Offsets()
	if offs[0] != 0 || offs[len(offs)-1] != 499 {
		t.Fatalf("parallel scan range = [%d, %d]", offs[0], offs[len(offs)-1])
	}
}

func TestClosedTable(t *testing.T) {
	tbl := newUsers(t)
	insert(t, tbl, user(0, "x", 1, 0))
	tbl.Close()

	if _, err := tbl.Insert(user(0, "y", 2, 0)); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("Insert err = %v; want ErrClosed", err)
	}
	if _, err := tbl.Snapshot(); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("Snapshot err = %v; want ErrClosed", err)
	}
	if err := tbl.Delete(1); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("Delete err = %v; want ErrClosed", err)
	}
}

func TestStats(t *testing.T) {
	tbl := newUsers(t)
	tbl.CreateEqualityIndex("name")
	tbl.CreateRangeIndex("age")

	insert(t, tbl, user(0, "a", 1, 0))
	insert(t, tbl, user(0, "b", 2, 0))
	id := insert(t, tbl, user(0, "b", 3, 0))
	tbl.Delete(id)

	st := tbl.Stats()
	if st.Rows != 2 {
		t.Fatalf("Rows = %d; want 2", st.Rows)
	}
	if st.Appended != 3 {
		t.Fatalf("Appended = %d; want 3", st.Appended)
	}
	if st.EqualityKeys[1] != 2 {
		t.Fatalf("EqualityKeys[name] = %d; want 2", st.EqualityKeys[1])
	}
}

// TestTornReadFreedom hammers one row with in-place updates that keep
// an invariant between two columns while readers check it. A torn read
// would surface as a row where the invariant is broken.
func TestTornReadFreedom(t *testing.T) {
	tbl := newUsers(t)
	id := insert(t, tbl, user(0, "w", 0, 0))

	const iters = 5000
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(stop)
		for i := 1; i <= iters; i++ {
			// age and score move together: score == age * 2
			err := tbl.Update(id, map[int]storage.Value{
				2: storage.NewInt64(int64(i)),
				3: storage.NewFloat64(float64(i) * 2),
			})
			if err != nil {
				t.Errorf("Update: %v", err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, err := tbl.Snapshot()
				if err != nil {
					t.Errorf("Snapshot: %v", err)
					return
				}
				row, err := snap.Get(id)
				if err != nil {
					t.Errorf("Get: %v", err)
					return
				}
				age, _ := row[2].AsInt64()
				score, _ := row[3].AsFloat64()
				if score != float64(age)*2 {
					t.Errorf("torn read: age=%d score=%v", age, score)
					return
				}
			}
		}()
	}
	wg.Wait()
}

// TestConcurrentInsertsAndScans checks that readers never see a
// partially published row while a writer appends.
func TestConcurrentInsertsAndScans(t *testing.T) {
	tbl := newUsers(t)

	const n = 2000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if _, err := tbl.Insert(user(0, "u", int64(i), float64(i))); err != nil {
				t.Errorf("Insert: %v", err)
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			snap, err := tbl.Snapshot()
			if err != nil {
				t.Errorf("Snapshot: %v", err)
				return
			}
			cnt, err := snap.Count(context.Background(), nil)
			if err != nil {
				t.Errorf("Count: %v", err)
				return
			}
			vec, err := snap.Scan(context.Background(), nil)
			if err != nil {
				t.Errorf("Scan: %v", err)
				return
			}
			if vec.Cardinality() != cnt {
				t.Errorf("count %d != scan %d at same snapshot", cnt, vec.Cardinality())
				return
			}
			if cnt == n {
				return
			}
		}
	}()
	wg.Wait()
}
