package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/model"
)

// ConversationHandler manages chat conversations and their messages.
type ConversationHandler struct {
	store *config.Store
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(store *config.Store) *ConversationHandler {
	return &ConversationHandler{store: store}
}

// List handles GET /api/conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.ListConversations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list conversations: "+err.Error())
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{Resource: convs, Count: len(convs)})
}

// Create handles POST /api/conversations. The body is optional.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var c model.Conversation
	if r.ContentLength != 0 {
		if err := readJSON(r, &c); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	c.ID = ""
	c.Title = strings.TrimSpace(c.Title)
	if err := h.store.CreateConversation(r.Context(), &c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create conversation: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Delete handles DELETE /api/conversations/{conversationId}.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteConversation(r.Context(), chi.URLParam(r, "conversationId")); err != nil {
		writeStoreError(w, err, "Conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Messages handles GET /api/conversations/{conversationId}/messages.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationId")
	if _, err := h.store.GetConversation(r.Context(), id); err != nil {
		writeStoreError(w, err, "Conversation")
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list messages: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{Resource: msgs, Count: len(msgs)})
}

// AddMessage handles POST /api/conversations/{conversationId}/messages.
func (h *ConversationHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	var m model.Message
	if err := readJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
		writeError(w, http.StatusBadRequest, "role must be user or assistant")
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	m.ID = 0
	m.ConversationID = chi.URLParam(r, "conversationId")
	if err := h.store.AddMessage(r.Context(), &m); err != nil {
		writeStoreError(w, err, "Conversation")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
