package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/promptelt/promptelt/internal/model"
)

const testConfig = `
logging:
  level: error
cache:
  warm:
    - database: warehouse
      sql: SELECT * FROM users
databases:
  - name: warehouse
    type: Snowflake
    connect: true
  - name: crm
    type: salesforce
`

// useTestConfig points the CLI globals at a temporary data dir and config
// file for the duration of the test.
func useTestConfig(t *testing.T, yamlText string) {
	t.Helper()
	dataDir = t.TempDir()
	path := filepath.Join(t.TempDir(), "promptelt.yaml")
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	t.Cleanup(func() {
		dataDir = ""
		viper.Reset()
	})
}

func TestAppStartupSeedsConnectsAndWarms(t *testing.T) {
	useTestConfig(t, testConfig)
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if err := a.startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}

	dbs, err := a.store.ListDatabases(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dbs) != 2 {
		t.Fatalf("expected 2 seeded databases, got %d", len(dbs))
	}

	wh, err := a.lookupDatabase(ctx, "warehouse")
	if err != nil {
		t.Fatal(err)
	}
	if wh.Type != "snowflake" || wh.Status != model.DatabaseOnline {
		t.Errorf("warehouse = type %q status %q", wh.Type, wh.Status)
	}
	if _, ok := a.broker.Connection(wh.ID); !ok {
		t.Error("warehouse should be connected")
	}
	crm, _ := a.lookupDatabase(ctx, "crm")
	if _, ok := a.broker.Connection(crm.ID); ok {
		t.Error("crm should not be connected")
	}

	if stats := a.broker.ServiceStats(); stats.Cache.TotalEntries != 1 {
		t.Errorf("expected the warm query cached, got %+v", stats.Cache)
	}

	// Seeding again updates in place.
	if err := a.seedDatabases(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	dbs, _ = a.store.ListDatabases(ctx)
	if len(dbs) != 2 {
		t.Errorf("reseed duplicated databases: %d", len(dbs))
	}
}

func TestConnectRefUnknownDatabase(t *testing.T) {
	useTestConfig(t, testConfig)
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if _, _, err := a.connectRef(ctx, "nope"); err == nil {
		t.Error("expected error for unknown database")
	}
}

func TestNewRegistrySupportsAliases(t *testing.T) {
	reg := newRegistry()
	for _, name := range []string{"postgres", "postgresql", "mariadb", "mssql", "sqlserver", "sqlite", "oracle", "duckdb", "demo", "databricks", "salesforce"} {
		if !reg.Supports(name) {
			t.Errorf("registry does not support %q", name)
		}
	}
}

func TestPrintFormatted(t *testing.T) {
	v := struct {
		DatabaseID int64 `json:"databaseId"`
	}{DatabaseID: 7}

	var buf bytes.Buffer
	if err := printFormatted(&buf, "yaml", v); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "databaseId: 7" {
		t.Errorf("yaml output = %q", buf.String())
	}

	if err := printFormatted(&buf, "xml", v); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestAPIClientReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"success":false,"error":"archive is not configured"}`))
	}))
	defer srv.Close()

	err := newAPIClient(srv.URL).print(http.MethodPost, "/api/cache/archive", nil)
	if err == nil || !strings.Contains(err.Error(), "archive is not configured") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{map[string]interface{}{"error": "boom"}, "boom"},
		{map[string]interface{}{"error": map[string]interface{}{"code": 404.0, "message": "not found"}}, "not found"},
		{[]interface{}{}, ""},
	}
	for _, tt := range tests {
		if got := errorMessage(tt.in); got != tt.want {
			t.Errorf("errorMessage(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
