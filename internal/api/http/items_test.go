package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/pkg/types"
)

// memStore is an in-memory ItemStore for handler tests.
type memStore struct {
	nextID  int64
	records map[int64]types.Record
	failAll error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]types.Record)}
}

func (m *memStore) Create(_ context.Context, fields map[string]types.Value) (types.Record, error) {
	if m.failAll != nil {
		return types.Record{}, m.failAll
	}
	m.nextID++
	rec := types.Record{ID: m.nextID, Fields: fields}
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *memStore) Get(_ context.Context, id int64) (types.Record, error) {
	if m.failAll != nil {
		return types.Record{}, m.failAll
	}
	rec, ok := m.records[id]
	if !ok {
		return types.Record{}, apperrors.NewNotFoundError("record not found")
	}
	return rec, nil
}

func (m *memStore) List(_ context.Context) ([]types.Record, error) {
	if m.failAll != nil {
		return nil, m.failAll
	}
	out := make([]types.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id int64, fields map[string]types.Value) (types.Record, error) {
	if m.failAll != nil {
		return types.Record{}, m.failAll
	}
	rec, ok := m.records[id]
	if !ok {
		return types.Record{}, apperrors.NewNotFoundError("record not found")
	}
	for name, v := range fields {
		rec.Fields[name] = v
	}
	m.records[id] = rec
	return rec, nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	if m.failAll != nil {
		return m.failAll
	}
	if _, ok := m.records[id]; !ok {
		return apperrors.NewNotFoundError("record not found")
	}
	delete(m.records, id)
	return nil
}

func newTestServer(store ItemStore) *httptest.Server {
	mux := http.NewServeMux()
	NewItemsHandler(store).Register(mux)
	return httptest.NewServer(DefaultMiddleware()(mux))
}

func TestCreateItem(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/items", "application/json",
		strings.NewReader(`{"name":"widget","count":3}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Error("missing X-Request-ID header")
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["id"] != float64(1) || body["name"] != "widget" {
		t.Fatalf("body = %v", body)
	}
}

func TestCreateRejectsExplicitID(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/items", "application/json",
		strings.NewReader(`{"id":7,"name":"widget"}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateRejectsNonObjectBody(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/items", "application/json",
		strings.NewReader(`[1,2,3]`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetItem(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.Close()

	rec, _ := store.Create(context.Background(), map[string]types.Value{"name": types.Text("a")})

	resp, err := http.Get(srv.URL + "/items/1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["id"] != float64(rec.ID) {
		t.Fatalf("body = %v", body)
	}
}

func TestGetMissingItem(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/items/42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetNonNumericID(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/items/abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListItemsEmpty(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/items")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body []any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v (empty list must encode as [], not null)", err)
	}
	if len(body) != 0 {
		t.Fatalf("body = %v", body)
	}
}

func TestUpdateItem(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.Close()

	store.Create(context.Background(), map[string]types.Value{"name": types.Text("old")})

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/items/1",
		strings.NewReader(`{"name":"new"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["name"] != "new" {
		t.Fatalf("body = %v", body)
	}
}

func TestDeleteItem(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.Close()

	store.Create(context.Background(), map[string]types.Value{"name": types.Text("a")})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/items/1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/items/1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestErrorCategoryMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", apperrors.NewValidationError(apperrors.CodeInvalidIdentifier, "bad"), http.StatusBadRequest},
		{"constraint", apperrors.NewConstraintError("dup", nil), http.StatusConflict},
		{"connection", apperrors.NewConnectionError(apperrors.CodeConnectFailed, "down", nil), http.StatusServiceUnavailable},
		{"internal", apperrors.NewInternalError("boom", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			store.failAll = tc.err
			srv := newTestServer(store)
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/items")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			var body ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == "" || body.RequestID == "" {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/items", nil)
	req.Header.Set("X-Request-ID", "caller-chosen")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "caller-chosen" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /panic", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})
	srv := httptest.NewServer(DefaultMiddleware()(mux))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/panic")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}
