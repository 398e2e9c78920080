package handler

import (
	"net/http"

	"github.com/promptelt/promptelt/internal/broker"
)

// CacheHandler exposes the query cache and service statistics.
type CacheHandler struct {
	broker *broker.Broker
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(b *broker.Broker) *CacheHandler {
	return &CacheHandler{broker: b}
}

// Entries lists cached results, most recently used first.
// GET /api/cache/entries?databaseId=1&limit=50
func (h *CacheHandler) Entries(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", 50), 1, 1000)
	writeEnvelope(w, h.broker.CacheEntries(queryInt64(r, "databaseId"), limit))
}

// Invalidate removes cached results. With neither pattern nor databaseId
// the whole cache is cleared.
// DELETE /api/cache?pattern=users&databaseId=1
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, h.broker.InvalidateCache(r.URL.Query().Get("pattern"), queryInt64(r, "databaseId")))
}

// Archive writes a cache dump to object storage.
// POST /api/cache/archive
func (h *CacheHandler) Archive(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, h.broker.ArchiveCache(r.Context()))
}

// Stats returns connection, cache and snapshot statistics.
// GET /api/stats
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.broker.ServiceStats())
}
