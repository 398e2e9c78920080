package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/promptelt/promptelt/internal/assistant"
	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/snapshot"
)

// ---------------------------------------------------------------------------
// query parameter tests
// ---------------------------------------------------------------------------

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		key        string
		defaultVal int
		want       int
	}{
		{"returns default for missing param", "/test", "limit", 25, 25},
		{"parses integer param", "/test?limit=100", "limit", 25, 100},
		{"returns default for non-integer", "/test?limit=abc", "limit", 25, 25},
		{"parses negative", "/test?limit=-5", "limit", 0, -5},
		{"returns default for empty value", "/test?limit=", "limit", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			got := queryInt(r, tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("queryInt(%q, %d) = %d, want %d", tt.key, tt.defaultVal, got, tt.want)
			}
		})
	}
}

func TestQueryBool(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"/test?includeData=true", true},
		{"/test?includeData=1", true},
		{"/test?includeData=false", false},
		{"/test", false},
		{"/test?includeData=yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			if got := queryBool(r, "includeData"); got != tt.want {
				t.Errorf("queryBool = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryTime(t *testing.T) {
	r := httptest.NewRequest("GET", "/test", nil)
	if ts, err := queryTime(r, "since"); err != nil || !ts.IsZero() {
		t.Errorf("missing since = %v, %v; want zero time", ts, err)
	}

	r = httptest.NewRequest("GET", "/test?since=2024-03-01T12:00:00Z", nil)
	ts, err := queryTime(r, "since")
	if err != nil || ts.Year() != 2024 || ts.Hour() != 12 {
		t.Errorf("since = %v, %v", ts, err)
	}

	r = httptest.NewRequest("GET", "/test?since=last-week", nil)
	if _, err := queryTime(r, "since"); err == nil {
		t.Error("expected parse error")
	}
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		name string
		val  int
		min  int
		max  int
		want int
	}{
		{"within range", 50, 0, 100, 50},
		{"at min", 0, 0, 100, 0},
		{"below min clamps to min", -5, 0, 100, 0},
		{"above max clamps to max", 500, 0, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampInt(tt.val, tt.min, tt.max); got != tt.want {
				t.Errorf("clampInt(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// response writer tests
// ---------------------------------------------------------------------------

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusNotFound, "Database not found", map[string]interface{}{"id": 7})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != 404 || resp.Error.Message != "Database not found" || resp.Error.Context["id"] != float64(7) {
		t.Errorf("unexpected error body: %+v", resp.Error)
	}
}

func TestEnvelopeStatus(t *testing.T) {
	fail := func(err error) model.Response {
		return model.Response{Error: err.Error(), Err: err}
	}
	tests := []struct {
		name string
		resp model.Response
		want int
	}{
		{"success", model.Response{Success: true}, http.StatusOK},
		{"not connected", fail(fmt.Errorf("database 3: %w", broker.ErrNotConnected)), http.StatusConflict},
		{"snapshot missing", fail(fmt.Errorf("diff: %w", snapshot.ErrSnapshotNotFound)), http.StatusNotFound},
		{"store missing", fail(config.ErrNotFound), http.StatusNotFound},
		{"assistant off", fail(broker.ErrAssistantUnavailable), http.StatusServiceUnavailable},
		{"archive off", fail(broker.ErrArchiveDisabled), http.StatusServiceUnavailable},
		{"no api key", fail(fmt.Errorf("process: %w", assistant.ErrNoAPIKey)), http.StatusBadRequest},
		{"upstream", fail(errors.New("connection refused")), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := envelopeStatus(tt.resp); got != tt.want {
				t.Errorf("envelopeStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteEnvelopeKeepsBody(t *testing.T) {
	rr := httptest.NewRecorder()
	writeEnvelope(rr, model.Response{Error: "database 1: database not connected", Err: broker.ErrNotConnected, ExecutionTime: 0.4})

	var env envelope
	decodeJSON(t, rr, &env)
	if rr.Code != http.StatusConflict || env.Success || env.Error == "" || env.ExecutionTime != 0.4 {
		t.Errorf("unexpected envelope %d %+v", rr.Code, env)
	}
}
