package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/demo"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/querycache"
	"github.com/promptelt/promptelt/internal/snapshot"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server   *Server
	store    *config.Store
	broker   *broker.Broker
	registry *connector.Registry
}

// newTestEnv creates a fresh test environment with an in-memory config store,
// a broker over the demo backends, and a fully wired Server.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := connector.NewRegistry()
	registry.RegisterDriver("demo", demo.New)
	b := broker.New(broker.Config{}, broker.Deps{
		Registry:  registry,
		Cache:     querycache.New(querycache.DefaultConfig(), logger),
		Snapshots: snapshot.NewService(snapshot.Config{}, logger),
		Logger:    logger,
	})
	t.Cleanup(func() { b.Close(context.Background()) })

	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return &testEnv{
		server:   New(cfg, registry, b, store, logger),
		store:    store,
		broker:   b,
		registry: registry,
	}
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health check tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	var resp map[string]interface{}
	decodeJSON(t, rr, &resp)
	checks, ok := resp["checks"].(map[string]interface{})
	if !ok {
		t.Fatal("expected checks to be a map")
	}
	if len(checks) != 0 {
		t.Errorf("expected 0 checks with no connections, got %d", len(checks))
	}

	d := &model.DatabaseConfig{Name: "wh", Type: "snowflake"}
	if err := env.store.CreateDatabase(context.Background(), d); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	assertStatus(t, env.do(t, "POST", fmt.Sprintf("/api/databases/%d/connect", d.ID), nil, nil), http.StatusOK)

	rr = env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &resp)
	checks = resp["checks"].(map[string]interface{})
	if checks[fmt.Sprintf("snowflake-%d", d.ID)] != "ok" {
		t.Errorf("unexpected checks: %v", checks)
	}
}

// ---------------------------------------------------------------------------
// Metrics and OpenAPI
// ---------------------------------------------------------------------------

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "GET", "/healthz", nil, nil)

	rr := env.do(t, "GET", "/metrics", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "promptelt_http_requests_total") {
		t.Error("expected HTTP request counter in metrics output")
	}
}

func TestMetricsDisabledBySetting(t *testing.T) {
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SetSetting(context.Background(), "metrics.enabled", "false"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := connector.NewRegistry()
	b := broker.New(broker.Config{}, broker.Deps{
		Registry:  registry,
		Cache:     querycache.New(querycache.DefaultConfig(), logger),
		Snapshots: snapshot.NewService(snapshot.Config{}, logger),
		Logger:    logger,
	})
	t.Cleanup(func() { b.Close(context.Background()) })

	srv := New(DefaultConfig(), registry, b, store, logger)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assertStatus(t, rr, http.StatusNotFound)
}

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var spec struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	decodeJSON(t, rr, &spec)
	if spec.OpenAPI == "" {
		t.Error("expected openapi version")
	}
	for _, p := range []string{"/databases", "/process-query", "/cache/entries"} {
		if _, ok := spec.Paths[p]; !ok {
			t.Errorf("missing path %s", p)
		}
	}
}

// ---------------------------------------------------------------------------
// Middleware wiring
// ---------------------------------------------------------------------------

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/api/databases", nil, map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Content-Type,X-Provider-Key",
	})

	// Chi's CORS handler should return a 2xx for preflight.
	if rr.Code < 200 || rr.Code >= 300 {
		t.Errorf("CORS preflight status = %d, want 2xx", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/healthz", nil, map[string]string{"X-Request-ID": "trace-42"})
	if got := rr.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("X-Request-ID = %q, want trace-42", got)
	}
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxBodySize = 64 })

	big := `{"name":"` + strings.Repeat("x", 200) + `","type":"postgres"}`
	rr := env.do(t, "POST", "/api/databases", strings.NewReader(big), nil)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestRateLimitedAPI(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RateLimit = 1 })

	assertStatus(t, env.do(t, "GET", "/api/databases", nil, nil), http.StatusOK)
	assertStatus(t, env.do(t, "GET", "/api/databases", nil, nil), http.StatusTooManyRequests)
	// Probes are outside the limited group.
	assertStatus(t, env.do(t, "GET", "/healthz", nil, nil), http.StatusOK)
}

// ---------------------------------------------------------------------------
// Full workflow: register -> connect -> query -> drift -> disconnect
// ---------------------------------------------------------------------------

func TestFullWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/databases", jsonBody(t, map[string]string{
		"name": "analytics",
		"type": "databricks",
	}), nil)
	assertStatus(t, rr, http.StatusCreated)
	var db struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rr, &db)
	base := fmt.Sprintf("/api/databases/%d", db.ID)

	assertStatus(t, env.do(t, "POST", base+"/connect", nil, nil), http.StatusOK)

	query := jsonBody(t, map[string]string{"query": "SELECT * FROM orders"})
	assertStatus(t, env.do(t, "POST", base+"/query", query, nil), http.StatusOK)

	rr = env.do(t, "GET", base+"/schema", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	// No assistant is configured in this environment.
	rr = env.do(t, "POST", "/api/process-query", jsonBody(t, map[string]interface{}{
		"query":       "top orders",
		"databaseIds": []int64{db.ID},
	}), nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)

	rr = env.do(t, "GET", "/api/stats", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	var stats broker.Stats
	decodeJSON(t, rr, &stats)
	if stats.Connections != 1 || stats.Cache.TotalEntries != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	assertStatus(t, env.do(t, "DELETE", base, nil, nil), http.StatusNoContent)
	if len(env.broker.Connections()) != 0 {
		t.Error("deleting a database should drop its connection")
	}
}

// ---------------------------------------------------------------------------
// Error response format test
// ---------------------------------------------------------------------------

func TestErrorResponseFormat(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/databases/42", nil, nil)
	assertStatus(t, rr, http.StatusNotFound)

	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeJSON(t, rr, &errResp)

	if errResp.Error.Code != 404 {
		t.Errorf("error.code = %d, want 404", errResp.Error.Code)
	}
	if errResp.Error.Message == "" {
		t.Error("expected non-empty error.message")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	// PATCH /healthz is not defined.
	rr := env.do(t, "PATCH", "/healthz", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed && rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 405 or 404", rr.Code)
	}
}
