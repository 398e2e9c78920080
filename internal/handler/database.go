package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/model"
)

// DatabaseHandler manages registered databases and their connections.
type DatabaseHandler struct {
	store  *config.Store
	broker *broker.Broker
	logger *slog.Logger
}

// NewDatabaseHandler creates a new DatabaseHandler.
func NewDatabaseHandler(store *config.Store, b *broker.Broker, logger *slog.Logger) *DatabaseHandler {
	return &DatabaseHandler{store: store, broker: b, logger: logger.With("component", "handler.database")}
}

// databaseView is a registered database as returned to clients: the
// connection string is masked and the live connection attached.
type databaseView struct {
	model.DatabaseConfig
	Connection *model.Connection `json:"connection,omitempty"`
}

func (h *DatabaseHandler) view(d model.DatabaseConfig) databaseView {
	d.ConnectionString = model.MaskConnectionString(d.ConnectionString)
	v := databaseView{DatabaseConfig: d}
	if c, ok := h.broker.Connection(d.ID); ok {
		v.Connection = &c
	}
	return v
}

// List handles GET /api/databases.
func (h *DatabaseHandler) List(w http.ResponseWriter, r *http.Request) {
	dbs, err := h.store.ListDatabases(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list databases: "+err.Error())
		return
	}
	out := make([]databaseView, len(dbs))
	for i, d := range dbs {
		out[i] = h.view(d)
	}
	writeJSON(w, http.StatusOK, model.ListResponse{Resource: out, Count: len(out)})
}

// Create handles POST /api/databases.
func (h *DatabaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var d model.DatabaseConfig
	if err := readJSON(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	if d.Name == "" || d.Type == "" {
		writeError(w, http.StatusBadRequest, "name and type are required")
		return
	}
	d.ID = 0
	d.Status = ""
	if err := h.store.CreateDatabase(r.Context(), &d); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			writeError(w, http.StatusConflict, "A database named "+d.Name+" already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create database: "+err.Error())
		return
	}
	h.logger.Info("database registered", "database_id", d.ID, "type", d.Type)
	writeJSON(w, http.StatusCreated, h.view(d))
}

// Get handles GET /api/databases/{id}.
func (h *DatabaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.view(*d))
}

// Update handles PUT /api/databases/{id}. Omitted fields keep their value.
func (h *DatabaseHandler) Update(w http.ResponseWriter, r *http.Request) {
	d, ok := h.load(w, r)
	if !ok {
		return
	}
	var in struct {
		Name             *string                `json:"name"`
		Type             *string                `json:"type"`
		ConnectionString *string                `json:"connectionString"`
		Description      *string                `json:"description"`
		Metadata         map[string]interface{} `json:"metadata"`
	}
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if in.Name != nil {
		d.Name = strings.TrimSpace(*in.Name)
	}
	if in.Type != nil {
		d.Type = strings.ToLower(strings.TrimSpace(*in.Type))
	}
	if in.ConnectionString != nil {
		d.ConnectionString = *in.ConnectionString
	}
	if in.Description != nil {
		d.Description = *in.Description
	}
	if in.Metadata != nil {
		d.Metadata = in.Metadata
	}
	if d.Name == "" || d.Type == "" {
		writeError(w, http.StatusBadRequest, "name and type cannot be empty")
		return
	}
	if err := h.store.UpdateDatabase(r.Context(), d); err != nil {
		writeStoreError(w, err, "Database")
		return
	}
	writeJSON(w, http.StatusOK, h.view(*d))
}

// Delete handles DELETE /api/databases/{id}. An open connection is closed
// first.
func (h *DatabaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	d, ok := h.load(w, r)
	if !ok {
		return
	}
	h.broker.DisconnectDatabase(r.Context(), d.ID)
	if err := h.store.DeleteDatabase(r.Context(), d.ID); err != nil {
		writeStoreError(w, err, "Database")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Connect handles POST /api/databases/{id}/connect.
func (h *DatabaseHandler) Connect(w http.ResponseWriter, r *http.Request) {
	d, ok := h.load(w, r)
	if !ok {
		return
	}
	resp := h.broker.Connect(r.Context(), *d)
	status := model.DatabaseOnline
	if !resp.Success {
		status = model.DatabaseOffline
	}
	if err := h.store.SetDatabaseStatus(r.Context(), d.ID, status); err != nil {
		h.logger.Warn("recording database status failed", "database_id", d.ID, "error", err)
	}
	writeEnvelope(w, resp)
}

// Disconnect handles DELETE /api/databases/{id}/connection.
func (h *DatabaseHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid database id")
		return
	}
	resp := h.broker.DisconnectDatabase(r.Context(), id)
	if err := h.store.SetDatabaseStatus(r.Context(), id, model.DatabaseOffline); err != nil && !isNotFound(err) {
		h.logger.Warn("recording database status failed", "database_id", id, "error", err)
	}
	writeEnvelope(w, resp)
}

// Query handles POST /api/databases/{id}/query.
func (h *DatabaseHandler) Query(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid database id")
		return
	}
	var in struct {
		Query  string        `json:"query"`
		Params []interface{} `json:"params"`
	}
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(in.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	writeEnvelope(w, h.broker.ExecuteQuery(r.Context(), id, in.Query, in.Params))
}

func (h *DatabaseHandler) load(w http.ResponseWriter, r *http.Request) (*model.DatabaseConfig, bool) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid database id")
		return nil, false
	}
	d, err := h.store.GetDatabase(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Database")
		return nil, false
	}
	return d, true
}
