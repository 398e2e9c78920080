// Package telemetry exposes Prometheus metrics for the query cache, the
// schema snapshot service, the broker and the HTTP layer, and resolves the
// persistent instance ID reported alongside them.
package telemetry

import (
	"context"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SettingsStore is the interface the telemetry package needs from the config store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Enabled reports whether the /metrics endpoint should be served. It is on
// unless PROMPTELT_METRICS or the metrics.enabled setting turns it off.
func Enabled(ctx context.Context, store SettingsStore) bool {
	if envVal := os.Getenv("PROMPTELT_METRICS"); envVal == "0" || envVal == "false" || envVal == "off" {
		return false
	}
	if store != nil {
		val, err := store.GetSetting(ctx, "metrics.enabled")
		if err == nil && (val == "false" || val == "0") {
			return false
		}
	}
	return true
}

// ResolveInstanceID loads or generates a persistent instance ID and publishes
// it through the promptelt_instance_info gauge.
func ResolveInstanceID(ctx context.Context, store SettingsStore, version string) string {
	id := resolveInstanceID(ctx, store)
	instanceInfo.Reset()
	instanceInfo.WithLabelValues(id, version).Set(1)
	return id
}

func resolveInstanceID(ctx context.Context, store SettingsStore) string {
	if store != nil {
		id, err := store.GetSetting(ctx, "instance_id")
		if err == nil && id != "" {
			return id
		}
	}

	id := uuid.New().String()

	if store != nil {
		_ = store.SetSetting(ctx, "instance_id", id)
	}
	return id
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}
