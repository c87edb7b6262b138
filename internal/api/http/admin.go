package http

import (
	"context"
	"net/http"

	"github.com/fluxtable/fluxtable/internal/backup"
)

// SnapshotRunner is the backup surface the admin routes drive.
type SnapshotRunner interface {
	Snapshot(ctx context.Context) (backup.Manifest, error)
	List(ctx context.Context) ([]backup.Manifest, error)
}

// AdminHandler serves the /admin snapshot routes. It is nil-safe: when
// no snapshotter is configured the routes report the operation as
// unavailable.
type AdminHandler struct {
	snapshots SnapshotRunner
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(snapshots SnapshotRunner) *AdminHandler {
	return &AdminHandler{snapshots: snapshots}
}

// Register installs the admin routes on the mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/snapshot", h.handleSnapshot)
	mux.HandleFunc("GET /admin/snapshots", h.handleList)
}

func (h *AdminHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are not configured", "", requestID)
		return
	}
	m, err := h.snapshots.Snapshot(r.Context())
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *AdminHandler) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are not configured", "", requestID)
		return
	}
	manifests, err := h.snapshots.List(r.Context())
	if err != nil {
		writeStoreError(w, err, requestID)
		return
	}
	if manifests == nil {
		manifests = []backup.Manifest{}
	}
	writeJSON(w, http.StatusOK, manifests)
}
