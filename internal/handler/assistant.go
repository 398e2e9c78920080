package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/server/middleware"
)

// AssistantHandler serves the natural-language endpoints. The caller's
// provider key, if any, is taken from the request context.
type AssistantHandler struct {
	broker *broker.Broker
	store  *config.Store
	logger *slog.Logger
}

// NewAssistantHandler creates a new AssistantHandler.
func NewAssistantHandler(b *broker.Broker, store *config.Store, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{broker: b, store: store, logger: logger.With("component", "handler.assistant")}
}

type processQueryBody struct {
	model.ProcessQueryRequest
	ConversationID string `json:"conversationId,omitempty"`
}

// ProcessQuery answers a question. With a conversationId the question and
// the answer are appended to that conversation.
// POST /api/process-query
func (h *AssistantHandler) ProcessQuery(w http.ResponseWriter, r *http.Request) {
	var in processQueryBody
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(in.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	if in.ConversationID != "" {
		err := h.store.AddMessage(r.Context(), &model.Message{
			ConversationID: in.ConversationID,
			Role:           model.RoleUser,
			Content:        in.Query,
			DatabaseIDs:    in.DatabaseIDs,
		})
		if err != nil {
			writeStoreError(w, err, "Conversation")
			return
		}
	}

	resp := h.broker.ProcessNaturalLanguageQuery(r.Context(), in.ProcessQueryRequest, middleware.GetProviderKey(r.Context()))
	if in.ConversationID != "" && resp.Success {
		if answer, ok := resp.Data.(model.ProcessQueryResponse); ok {
			h.recordAnswer(r, in.ConversationID, in.DatabaseIDs, answer)
		}
	}
	writeEnvelope(w, resp)
}

func (h *AssistantHandler) recordAnswer(r *http.Request, conversationID string, ids []int64, answer model.ProcessQueryResponse) {
	meta := map[string]interface{}{"confidence": answer.Confidence}
	if answer.SQL != "" {
		meta["sql"] = answer.SQL
	}
	if len(answer.Suggestions) > 0 {
		meta["suggestions"] = answer.Suggestions
	}
	err := h.store.AddMessage(r.Context(), &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        answer.Explanation,
		DatabaseIDs:    ids,
		Metadata:       meta,
	})
	if err != nil {
		h.logger.Warn("recording assistant message failed", "conversation_id", conversationID, "error", err)
	}
}

type pipelineBody struct {
	model.PipelineRequest
	Save bool   `json:"save,omitempty"`
	Name string `json:"name,omitempty"`
}

// pipelineResult is the generated design plus the saved pipeline, if any.
type pipelineResult struct {
	model.ProcessQueryResponse
	Pipeline *model.Pipeline `json:"pipeline,omitempty"`
}

// GeneratePipeline designs an ETL pipeline and optionally saves it as a
// draft.
// POST /api/pipelines/generate
func (h *AssistantHandler) GeneratePipeline(w http.ResponseWriter, r *http.Request) {
	var in pipelineBody
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(in.Source) == "" || strings.TrimSpace(in.Target) == "" {
		writeError(w, http.StatusBadRequest, "source and target are required")
		return
	}

	resp := h.broker.GenerateETLPipeline(r.Context(), in.PipelineRequest, middleware.GetProviderKey(r.Context()))
	if !resp.Success || !in.Save {
		writeEnvelope(w, resp)
		return
	}
	design, ok := resp.Data.(model.ProcessQueryResponse)
	if !ok {
		writeEnvelope(w, resp)
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.Source + " to " + in.Target
	}
	p := &model.Pipeline{
		Name:        name,
		Description: design.Explanation,
		Source:      in.Source,
		Target:      in.Target,
		Steps:       design.PipelineSteps,
	}
	if err := h.store.CreatePipeline(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save pipeline: "+err.Error())
		return
	}
	h.logger.Info("pipeline saved", "pipeline_id", p.ID, "steps", len(p.Steps))
	resp.Data = pipelineResult{ProcessQueryResponse: design, Pipeline: p}
	writeEnvelope(w, resp)
}

// Validate reviews a SQL statement against the latest schemas.
// POST /api/validate-query
func (h *AssistantHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SQL         string  `json:"sql"`
		DatabaseIDs []int64 `json:"databaseIds"`
	}
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(in.SQL) == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return
	}
	writeEnvelope(w, h.broker.ValidateQuery(r.Context(), in.SQL, in.DatabaseIDs, middleware.GetProviderKey(r.Context())))
}
