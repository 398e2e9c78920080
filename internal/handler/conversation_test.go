package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/promptelt/promptelt/internal/model"
)

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/conversations", nil)
	assertStatus(t, rr, http.StatusCreated)
	var conv model.Conversation
	decodeJSON(t, rr, &conv)
	if conv.ID == "" {
		t.Fatal("expected conversation id")
	}
	base := "/api/conversations/" + conv.ID

	rr = env.do(t, "POST", base+"/messages", toJSON(t, map[string]string{"role": "user", "content": "Show top customers"}))
	assertStatus(t, rr, http.StatusCreated)
	assertStatus(t, env.do(t, "POST", base+"/messages", toJSON(t, map[string]string{"role": "system", "content": "x"})), http.StatusBadRequest)
	assertStatus(t, env.do(t, "POST", base+"/messages", toJSON(t, map[string]string{"role": "user"})), http.StatusBadRequest)
	assertStatus(t, env.do(t, "POST", "/api/conversations/nope/messages", toJSON(t, map[string]string{"role": "user", "content": "hi"})), http.StatusNotFound)

	rr = env.do(t, "GET", base+"/messages", nil)
	assertStatus(t, rr, http.StatusOK)
	var msgs struct {
		Resource []model.Message `json:"resource"`
		Count    int             `json:"count"`
	}
	decodeJSON(t, rr, &msgs)
	if msgs.Count != 1 || msgs.Resource[0].Content != "Show top customers" {
		t.Errorf("unexpected messages: %+v", msgs)
	}

	rr = env.do(t, "GET", "/api/conversations", nil)
	assertStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "Show top customers") {
		t.Errorf("expected titled conversation in list: %s", rr.Body.String())
	}

	assertStatus(t, env.do(t, "DELETE", base, nil), http.StatusNoContent)
	assertStatus(t, env.do(t, "DELETE", base, nil), http.StatusNotFound)
	assertStatus(t, env.do(t, "GET", base+"/messages", nil), http.StatusNotFound)
}
