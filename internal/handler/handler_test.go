package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/demo"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/querycache"
	"github.com/promptelt/promptelt/internal/server/middleware"
	"github.com/promptelt/promptelt/internal/snapshot"
)

// fakeAssistant answers every request with a fixed response and records the
// provider key it was given.
type fakeAssistant struct {
	lastKey string
}

func (f *fakeAssistant) ProcessQuery(_ context.Context, req model.ProcessQueryRequest, apiKey string) (model.ProcessQueryResponse, error) {
	f.lastKey = apiKey
	return model.ProcessQueryResponse{
		Explanation: "Counting users",
		SQL:         "SELECT COUNT(*) FROM users",
		Confidence:  90,
	}, nil
}

func (f *fakeAssistant) GeneratePipeline(_ context.Context, req model.PipelineRequest, apiKey string) (model.ProcessQueryResponse, error) {
	f.lastKey = apiKey
	return model.ProcessQueryResponse{
		Explanation: "Copy users nightly",
		Confidence:  80,
		PipelineSteps: []model.PipelineStep{
			{ID: "extract", Name: "Extract", Description: "Read users"},
			{ID: "load", Name: "Load", Description: "Write users", Dependencies: []string{"extract"}},
		},
	}, nil
}

func (f *fakeAssistant) ValidateQuery(_ context.Context, sql string, _ []model.SchemaInfo, apiKey string) (model.ValidationResult, error) {
	f.lastKey = apiKey
	return model.ValidationResult{IsValid: true, Errors: []string{}, Suggestions: []string{}}, nil
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store     *config.Store
	broker    *broker.Broker
	assistant *fakeAssistant
	router    chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory config
// store, a broker over the demo backends and a chi router with the API
// mounted.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := connector.NewRegistry()
	reg.RegisterDriver("demo", demo.New)

	fa := &fakeAssistant{}
	b := broker.New(broker.Config{}, broker.Deps{
		Registry:  reg,
		Cache:     querycache.New(querycache.DefaultConfig(), logger),
		Snapshots: snapshot.NewService(snapshot.Config{}, logger),
		Assistant: fa,
		Logger:    logger,
	})
	t.Cleanup(func() { b.Close(context.Background()) })

	dbs := NewDatabaseHandler(store, b, logger)
	schema := NewSchemaHandler(b)
	asst := NewAssistantHandler(b, store, logger)
	cache := NewCacheHandler(b)
	convs := NewConversationHandler(store)
	pipes := NewPipelineHandler(store)
	oas := NewOpenAPIHandler(store, b, "test")

	r := chi.NewRouter()
	r.Use(middleware.ProviderKey)
	r.Get("/openapi.json", oas.ServeAPISpec)
	r.Route("/api", func(r chi.Router) {
		r.Get("/databases", dbs.List)
		r.Post("/databases", dbs.Create)
		r.Get("/databases/{id}", dbs.Get)
		r.Put("/databases/{id}", dbs.Update)
		r.Delete("/databases/{id}", dbs.Delete)
		r.Post("/databases/{id}/connect", dbs.Connect)
		r.Delete("/databases/{id}/connection", dbs.Disconnect)
		r.Post("/databases/{id}/query", dbs.Query)
		r.Get("/databases/{id}/schema", schema.Get)
		r.Post("/databases/{id}/schema/refresh", schema.Refresh)
		r.Get("/databases/{id}/schema/history", schema.History)
		r.Get("/databases/{id}/schema/changes", schema.Changes)
		r.Get("/databases/{id}/openapi.json", oas.ServeDatabaseSpec)
		r.Get("/schema/diff", schema.Diff)
		r.Get("/schema/snapshots/{snapshotId}/export", schema.Export)
		r.Post("/schema/snapshots/{snapshotId}/archive", schema.Archive)

		r.Post("/process-query", asst.ProcessQuery)
		r.Post("/pipelines/generate", asst.GeneratePipeline)
		r.Post("/validate-query", asst.Validate)

		r.Get("/cache/entries", cache.Entries)
		r.Delete("/cache", cache.Invalidate)
		r.Get("/stats", cache.Stats)

		r.Get("/conversations", convs.List)
		r.Post("/conversations", convs.Create)
		r.Delete("/conversations/{conversationId}", convs.Delete)
		r.Get("/conversations/{conversationId}/messages", convs.Messages)
		r.Post("/conversations/{conversationId}/messages", convs.AddMessage)

		r.Get("/pipelines", pipes.List)
		r.Post("/pipelines", pipes.Create)
		r.Get("/pipelines/{pipelineId}", pipes.Get)
		r.Put("/pipelines/{pipelineId}", pipes.Update)
		r.Delete("/pipelines/{pipelineId}", pipes.Delete)
	})

	return &testEnv{store: store, broker: b, assistant: fa, router: r}
}

// seedDatabase registers a demo-backed database and returns it.
func (e *testEnv) seedDatabase(t *testing.T, name, typ string) *model.DatabaseConfig {
	t.Helper()
	d := &model.DatabaseConfig{Name: name, Type: typ}
	if err := e.store.CreateDatabase(context.Background(), d); err != nil {
		t.Fatalf("seedDatabase: %v", err)
	}
	return d
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// envelope mirrors model.Response with raw data for per-test decoding.
type envelope struct {
	Success       bool            `json:"success"`
	Data          json.RawMessage `json:"data"`
	Error         string          `json:"error"`
	ExecutionTime float64         `json:"executionTime"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	decodeJSON(t, rr, &env)
	if data != nil && env.Success {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode envelope data: %v; data = %s", err, env.Data)
		}
	}
	return env
}
