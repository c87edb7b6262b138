package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fluxtable/fluxtable/internal/backend"
	"github.com/fluxtable/fluxtable/internal/dispatch"
	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/internal/query"
	"github.com/fluxtable/fluxtable/internal/schema"
	"github.com/fluxtable/fluxtable/pkg/types"
)

func newTestStore(t *testing.T, workers int) *Store {
	t.Helper()
	ctx := context.Background()

	b, err := backend.NewSQLite(filepath.Join(t.TempDir(), "items.db"), "items", workers)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := b.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	reg := dispatch.NewRegistry(func(ctx context.Context) (dispatch.Conn, error) {
		return b.Connect(ctx)
	})
	pool := dispatch.NewPool(dispatch.PoolConfig{Workers: workers, QueueDepth: 32}, reg)

	builder, err := query.NewBuilder("items", b.QuoteIdent)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	st := New(pool, b, schema.NewManager(b, builder, nil), builder)

	t.Cleanup(func() {
		if err := pool.Shutdown(); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
		if err := b.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return st
}

func wantNotFound(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected not-found error, got nil")
	}
	if got := apperrors.GetCategory(err); got != apperrors.CategoryNotFound {
		t.Fatalf("category = %s, want %s (%v)", got, apperrors.CategoryNotFound, err)
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	st := newTestStore(t, 2)
	ctx := context.Background()

	created, err := st.Create(ctx, map[string]types.Value{
		"name":   types.Text("widget"),
		"count":  types.Int(42),
		"ratio":  types.Float(0.5),
		"active": types.Bool(true),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := st.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fields["name"].Text != "widget" {
		t.Errorf("name = %q", got.Fields["name"].Text)
	}
	if got.Fields["count"].Int != 42 {
		t.Errorf("count = %d", got.Fields["count"].Int)
	}
	if got.Fields["ratio"].Float != 0.5 {
		t.Errorf("ratio = %v", got.Fields["ratio"].Float)
	}
	// SQLite stores booleans as integers; read-back kind follows storage.
	if v := got.Fields["active"]; v.Kind == types.KindInt && v.Int != 1 {
		t.Errorf("active = %+v", v)
	}
}

func TestCreateArrayStoredAsJSONText(t *testing.T) {
	st := newTestStore(t, 1)
	ctx := context.Background()

	rec, err := st.Create(ctx, map[string]types.Value{
		"tags": types.Array([]types.Value{types.Text("a"), types.Text("b")}),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got := rec.Fields["tags"]
	if got.Kind != types.KindText {
		t.Fatalf("tags kind = %v, want text", got.Kind)
	}
	if got.Text != `["a","b"]` {
		t.Errorf("tags = %q", got.Text)
	}
}

func TestGetOmitsColumnsOtherRecordsIntroduced(t *testing.T) {
	st := newTestStore(t, 1)
	ctx := context.Background()

	first, err := st.Create(ctx, map[string]types.Value{"name": types.Text("a")})
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	if _, err := st.Create(ctx, map[string]types.Value{"count": types.Int(7)}); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	got, err := st.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, present := got.Fields["count"]; present {
		t.Errorf("record %d should not carry the count column: %v", first.ID, got.Fields)
	}
}

func TestUpdateIsPartial(t *testing.T) {
	st := newTestStore(t, 1)
	ctx := context.Background()

	rec, err := st.Create(ctx, map[string]types.Value{
		"name":  types.Text("before"),
		"count": types.Int(1),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := st.Update(ctx, rec.ID, map[string]types.Value{"count": types.Int(2)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Fields["count"].Int != 2 {
		t.Errorf("count = %d, want 2", updated.Fields["count"].Int)
	}
	if updated.Fields["name"].Text != "before" {
		t.Errorf("name = %q, untouched field must survive", updated.Fields["name"].Text)
	}
}

func TestUpdateCanIntroduceNewColumn(t *testing.T) {
	st := newTestStore(t, 1)
	ctx := context.Background()

	rec, err := st.Create(ctx, map[string]types.Value{"name": types.Text("a")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	updated, err := st.Update(ctx, rec.ID, map[string]types.Value{"color": types.Text("red")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Fields["color"].Text != "red" {
		t.Errorf("color = %q", updated.Fields["color"].Text)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	st := newTestStore(t, 1)
	_, err := st.Update(context.Background(), 9999, map[string]types.Value{"name": types.Text("x")})
	wantNotFound(t, err)
}

func TestUpdateEmptyPayloadRejected(t *testing.T) {
	st := newTestStore(t, 1)
	ctx := context.Background()
	rec, err := st.Create(ctx, map[string]types.Value{"name": types.Text("a")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = st.Update(ctx, rec.ID, map[string]types.Value{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := apperrors.GetCategory(err); got != apperrors.CategoryValidation {
		t.Fatalf("category = %s, want %s", got, apperrors.CategoryValidation)
	}
}

func TestDeleteThenGet(t *testing.T) {
	st := newTestStore(t, 1)
	ctx := context.Background()

	rec, err := st.Create(ctx, map[string]types.Value{"name": types.Text("gone")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = st.Get(ctx, rec.ID)
	wantNotFound(t, err)
	wantNotFound(t, st.Delete(ctx, rec.ID))
}

func TestGetMissingRecord(t *testing.T) {
	st := newTestStore(t, 1)
	_, err := st.Get(context.Background(), 12345)
	wantNotFound(t, err)
}

func TestListOrderedByID(t *testing.T) {
	st := newTestStore(t, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := st.Create(ctx, map[string]types.Value{"seq": types.Int(int64(i))}); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	recs, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("len = %d, want 5", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].ID <= recs[i-1].ID {
			t.Fatalf("ids not ascending: %d then %d", recs[i-1].ID, recs[i].ID)
		}
	}
}

func TestConcurrentCreatesAssignDistinctIDs(t *testing.T) {
	st := newTestStore(t, 4)
	ctx := context.Background()
	const n = 40

	var (
		mu  sync.Mutex
		ids = make(map[int64]struct{}, n)
		wg  sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := st.Create(ctx, map[string]types.Value{
				"name": types.Text(fmt.Sprintf("item-%d", i)),
			})
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			mu.Lock()
			ids[rec.ID] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(ids) != n {
		t.Fatalf("distinct ids = %d, want %d", len(ids), n)
	}
	recs, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != n {
		t.Fatalf("stored records = %d, want %d", len(recs), n)
	}
}

func TestCreateRejectsReservedAndInvalidFields(t *testing.T) {
	st := newTestStore(t, 1)
	ctx := context.Background()

	for _, fields := range []map[string]types.Value{
		{"id": types.Int(7)},
		{"bad-name": types.Text("x")},
		{"select": types.Text("x")},
	} {
		_, err := st.Create(ctx, fields)
		if err == nil {
			t.Fatalf("expected rejection for %v", fields)
		}
		var se *apperrors.StoreError
		if !errors.As(err, &se) || se.Category != apperrors.CategoryValidation {
			t.Fatalf("expected validation error for %v, got %v", fields, err)
		}
	}
}

func TestPingAndCheckpoint(t *testing.T) {
	st := newTestStore(t, 1)
	ctx := context.Background()

	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := st.Create(ctx, map[string]types.Value{"name": types.Text("a")}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	st := newTestStore(t, 1)
	if err := st.pool.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_, err := st.Get(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "shut down") {
		t.Fatalf("expected shutdown error, got %v", err)
	}
}
