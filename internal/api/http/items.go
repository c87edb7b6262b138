package http

import (
	"context"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/pkg/types"
)

// ItemStore is the record surface the handlers drive.
type ItemStore interface {
	Create(ctx context.Context, fields map[string]types.Value) (types.Record, error)
	Get(ctx context.Context, id int64) (types.Record, error)
	List(ctx context.Context) ([]types.Record, error)
	Update(ctx context.Context, id int64, fields map[string]types.Value) (types.Record, error)
	Delete(ctx context.Context, id int64) error
}

// ItemsHandler serves the /items CRUD routes.
type ItemsHandler struct {
	store ItemStore
}

// NewItemsHandler creates the items handler.
func NewItemsHandler(store ItemStore) *ItemsHandler {
	return &ItemsHandler{store: store}
}

// Register installs the item routes on the mux.
func (h *ItemsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /items", h.handleList)
	mux.HandleFunc("POST /items", h.handleCreate)
	mux.HandleFunc("GET /items/{id}", h.handleGet)
	mux.HandleFunc("PUT /items/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /items/{id}", h.handleDelete)
}

func (h *ItemsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	fields, err := decodeBody(r)
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}

	rec, err := h.store.Create(r.Context(), fields)
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *ItemsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	id, err := pathID(r)
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ItemsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	recs, err := h.store.List(r.Context())
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	if recs == nil {
		recs = []types.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *ItemsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	id, err := pathID(r)
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	fields, err := decodeBody(r)
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}

	rec, err := h.store.Update(r.Context(), id, fields)
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ItemsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	id, err := pathID(r)
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads the request body into a field map. A payload carrying
// an "id" member is refused: ids are store-assigned.
func decodeBody(r *http.Request) (map[string]types.Value, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidPayload,
			"reading request body: "+err.Error())
	}
	fields, id, err := types.DecodeFields(body)
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidPayload, err.Error())
	}
	if id != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidPayload,
			"id is assigned by the store and cannot appear in the payload")
	}
	return fields, nil
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError(apperrors.CodeInvalidPayload,
			"item id must be an integer")
	}
	return id, nil
}
