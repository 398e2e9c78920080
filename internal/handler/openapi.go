package handler

import (
	"net/http"

	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI document of the HTTP API and per
// database documents describing row shapes of the latest snapshot.
type OpenAPIHandler struct {
	store   *config.Store
	broker  *broker.Broker
	version string
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(store *config.Store, b *broker.Broker, version string) *OpenAPIHandler {
	return &OpenAPIHandler{store: store, broker: b, version: version}
}

// ServeAPISpec returns the document of the whole API.
// GET /openapi.json
func (h *OpenAPIHandler) ServeAPISpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openapi.APISpec("/api", h.version))
}

// ServeDatabaseSpec returns the row schemas of one database. The database
// must be connected so a snapshot exists.
// GET /api/databases/{id}/openapi.json
func (h *OpenAPIHandler) ServeDatabaseSpec(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid database id")
		return
	}
	db, err := h.store.GetDatabase(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Database")
		return
	}
	resp := h.broker.GetSchema(r.Context(), id, false)
	if !resp.Success {
		writeEnvelope(w, resp)
		return
	}
	schema, _ := resp.Data.(model.SchemaInfo)
	writeJSON(w, http.StatusOK, openapi.DatabaseSpec(*db, schema, "/api"))
}
