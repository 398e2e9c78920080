package handler

import (
	"net/http"
	"strings"

	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/model"
)

// PipelineHandler manages saved ETL pipelines.
type PipelineHandler struct {
	store *config.Store
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(store *config.Store) *PipelineHandler {
	return &PipelineHandler{store: store}
}

// List handles GET /api/pipelines.
func (h *PipelineHandler) List(w http.ResponseWriter, r *http.Request) {
	ps, err := h.store.ListPipelines(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pipelines: "+err.Error())
		return
	}
	if ps == nil {
		ps = []model.Pipeline{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{Resource: ps, Count: len(ps)})
}

// Create handles POST /api/pipelines.
func (h *PipelineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p model.Pipeline
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if p.Status != "" && !validStatus(p.Status) {
		writeError(w, http.StatusBadRequest, "status must be draft, active or paused")
		return
	}
	p.ID = 0
	if err := h.store.CreatePipeline(r.Context(), &p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create pipeline: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Get handles GET /api/pipelines/{pipelineId}.
func (h *PipelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update handles PUT /api/pipelines/{pipelineId}. Omitted fields keep
// their value.
func (h *PipelineHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	var in struct {
		Name        *string              `json:"name"`
		Description *string              `json:"description"`
		Source      *string              `json:"source"`
		Target      *string              `json:"target"`
		Status      *string              `json:"status"`
		Steps       []model.PipelineStep `json:"steps"`
	}
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Source != nil {
		p.Source = *in.Source
	}
	if in.Target != nil {
		p.Target = *in.Target
	}
	if in.Status != nil {
		if !validStatus(*in.Status) {
			writeError(w, http.StatusBadRequest, "status must be draft, active or paused")
			return
		}
		p.Status = *in.Status
	}
	if in.Steps != nil {
		p.Steps = in.Steps
	}
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}
	if err := h.store.UpdatePipeline(r.Context(), p); err != nil {
		writeStoreError(w, err, "Pipeline")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/pipelines/{pipelineId}.
func (h *PipelineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "pipelineId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid pipeline id")
		return
	}
	if err := h.store.DeletePipeline(r.Context(), id); err != nil {
		writeStoreError(w, err, "Pipeline")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PipelineHandler) load(w http.ResponseWriter, r *http.Request) (*model.Pipeline, bool) {
	id, ok := pathInt64(r, "pipelineId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid pipeline id")
		return nil, false
	}
	p, err := h.store.GetPipeline(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Pipeline")
		return nil, false
	}
	return p, true
}

func validStatus(s string) bool {
	return s == config.PipelineDraft || s == config.PipelineActive || s == config.PipelinePaused
}
