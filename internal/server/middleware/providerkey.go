package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ProviderKeyHeader carries a caller-supplied LLM provider key that
// overrides the configured one for a single request.
const ProviderKeyHeader = "X-Provider-Key"

const providerKeyCtx contextKey = "provider_key"

// ProviderKey moves the X-Provider-Key header into the request context and
// strips it from the request so it is never logged or forwarded.
func ProviderKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(ProviderKeyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		r.Header.Del(ProviderKeyHeader)
		ctx := context.WithValue(r.Context(), providerKeyCtx, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetProviderKey returns the provider key stored by ProviderKey, or "".
func GetProviderKey(ctx context.Context) string {
	if k, ok := ctx.Value(providerKeyCtx).(string); ok {
		return k
	}
	return ""
}
