package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/promptelt/promptelt/internal/broker"
)

// SchemaHandler exposes schema snapshots, drift reports and archiving.
type SchemaHandler struct {
	broker *broker.Broker
}

// NewSchemaHandler creates a new SchemaHandler.
func NewSchemaHandler(b *broker.Broker) *SchemaHandler {
	return &SchemaHandler{broker: b}
}

// Get returns the latest schema of a database.
// GET /api/databases/{id}/schema?includeData=true
func (h *SchemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid database id")
		return
	}
	writeEnvelope(w, h.broker.GetSchema(r.Context(), id, queryBool(r, "includeData")))
}

// Refresh re-introspects a database and reports drift since the last
// snapshot.
// POST /api/databases/{id}/schema/refresh
func (h *SchemaHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid database id")
		return
	}
	writeEnvelope(w, h.broker.RefreshSchema(r.Context(), id))
}

// History lists snapshots of a database, newest first.
// GET /api/databases/{id}/schema/history?limit=10
func (h *SchemaHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid database id")
		return
	}
	writeEnvelope(w, h.broker.SchemaHistory(id, clampInt(queryInt(r, "limit", 10), 1, 50)))
}

// Changes lists changes between consecutive snapshots.
// GET /api/databases/{id}/schema/changes?since=2024-01-01T00:00:00Z
func (h *SchemaHandler) Changes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid database id")
		return
	}
	since, err := queryTime(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
		return
	}
	writeEnvelope(w, h.broker.SchemaChanges(id, since))
}

// Diff compares two snapshots by id.
// GET /api/schema/diff?from=&to=
func (h *SchemaHandler) Diff(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to snapshot ids are required")
		return
	}
	writeEnvelope(w, h.broker.DiffSnapshots(from, to))
}

// Export downloads a snapshot document.
// GET /api/schema/snapshots/{snapshotId}/export
func (h *SchemaHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "snapshotId")
	resp := h.broker.ExportSnapshot(id)
	if !resp.Success {
		writeEnvelope(w, resp)
		return
	}
	data, _ := resp.Data.(json.RawMessage)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="snapshot-`+id+`.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Archive copies a snapshot document to object storage.
// POST /api/schema/snapshots/{snapshotId}/archive
func (h *SchemaHandler) Archive(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, h.broker.ArchiveSnapshot(r.Context(), chi.URLParam(r, "snapshotId")))
}

// Restore imports an archived snapshot document.
// POST /api/schema/snapshots/restore {"key": "snapshots/1/1-...json"}
func (h *SchemaHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Key string `json:"key"`
	}
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(in.Key) == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	writeEnvelope(w, h.broker.RestoreSnapshot(r.Context(), in.Key))
}
