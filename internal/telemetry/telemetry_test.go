package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// mockStore implements SettingsStore for testing.
type mockStore struct {
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("not found")
	}
	return v, nil
}

func (m *mockStore) SetSetting(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func TestResolveInstanceID_GeneratesAndPersists(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()

	id := resolveInstanceID(ctx, store)
	if id == "" {
		t.Fatal("expected non-empty instance ID")
	}

	stored, err := store.GetSetting(ctx, "instance_id")
	if err != nil {
		t.Fatalf("expected instance_id in store: %v", err)
	}
	if stored != id {
		t.Errorf("stored ID %q != returned ID %q", stored, id)
	}

	if again := resolveInstanceID(ctx, store); again != id {
		t.Errorf("second call returned %q, want %q", again, id)
	}
}

func TestResolveInstanceID_NilStore(t *testing.T) {
	if id := resolveInstanceID(context.Background(), nil); id == "" {
		t.Fatal("expected generated ID with nil store")
	}
}

func TestEnabled(t *testing.T) {
	ctx := context.Background()

	t.Setenv("PROMPTELT_METRICS", "")
	store := newMockStore()
	if !Enabled(ctx, store) {
		t.Error("metrics should be enabled by default")
	}

	store.data["metrics.enabled"] = "false"
	if Enabled(ctx, store) {
		t.Error("metrics should be disabled by setting")
	}

	t.Setenv("PROMPTELT_METRICS", "off")
	if Enabled(ctx, nil) {
		t.Error("metrics should be disabled by env var")
	}
}

func TestCacheLookupCounters(t *testing.T) {
	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss"))

	CacheLookup(true)
	CacheLookup(true)
	CacheLookup(false)

	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")) - hits; got != 2 {
		t.Errorf("hit delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss")) - misses; got != 1 {
		t.Errorf("miss delta = %v, want 1", got)
	}
}

func TestAssistantRequestOutcome(t *testing.T) {
	before := testutil.ToFloat64(assistantRequestsTotal.WithLabelValues("test", "error"))
	AssistantRequest("test", errors.New("boom"))
	if got := testutil.ToFloat64(assistantRequestsTotal.WithLabelValues("test", "error")) - before; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	BrokerOperation("execute_query", true, 12*time.Millisecond)
	ResolveInstanceID(context.Background(), newMockStore(), "test")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{"promptelt_broker_operations_total", "promptelt_instance_info"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
