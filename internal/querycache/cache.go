// Package querycache caches query results per database so that repeated
// queries within a freshness window are answered without touching the
// connector. Entries expire after a TTL, the cache is bounded by an entry
// count with least-recently-accessed eviction, and hit/miss statistics are
// kept for the service stats surface.
//
// The cache is an optimization only: none of its methods return errors on
// the read or write path. Anything that goes wrong while copying a result is
// logged and treated as a miss.
package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/query"
	"github.com/promptelt/promptelt/internal/telemetry"
)

// Config controls cache capacity and freshness.
type Config struct {
	MaxEntries    int
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns the standard cache settings: 1000 entries, a five
// minute TTL and a sweep every minute.
func DefaultConfig() Config {
	return Config{
		MaxEntries:    1000,
		DefaultTTL:    5 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Entry is a cached query result together with its bookkeeping.
type Entry struct {
	ID           string            `json:"id"`
	Query        string            `json:"query"`
	Parameters   []interface{}     `json:"parameters,omitempty"`
	Result       model.QueryResult `json:"result"`
	DatabaseID   int64             `json:"databaseId"`
	CreatedAt    time.Time         `json:"timestamp"`
	TTL          time.Duration     `json:"ttl"`
	AccessCount  int64             `json:"accessCount"`
	LastAccessed time.Time         `json:"lastAccessed"`
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Cache is an in-memory query result cache. It is safe for concurrent use.
// The background sweep started by New runs until Close is called.
type Cache struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
	hits    int64
	misses  int64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache and starts its expiry sweep. Zero config values fall
// back to DefaultConfig. Call Close to stop the sweep.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Cache {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		cfg:     cfg,
		logger:  logger.With("component", "querycache"),
		now:     time.Now,
		entries: make(map[string]*Entry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.sweepLoop()
	return c
}

// Key builds the cache key for a query. The query text is normalized so that
// formatting and comments do not matter; parameters are serialized as JSON.
func Key(sql string, params []interface{}, databaseID int64) string {
	if params == nil {
		params = []interface{}{}
	}
	paramJSON, err := json.Marshal(params)
	if err != nil {
		// Unserializable parameters still need a stable key.
		paramJSON = []byte(fmt.Sprintf("%#v", params))
	}
	sum := sha256.Sum256([]byte(query.Normalize(sql) + "\x00" + string(paramJSON)))
	return strconv.FormatInt(databaseID, 10) + ":" + hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached result for the query, or false on a miss.
// Expired entries are removed on lookup even if the sweep has not run yet.
func (c *Cache) Get(sql string, params []interface{}, databaseID int64) (model.QueryResult, bool) {
	key := Key(sql, params, databaseID)
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && entry.expired(now) {
		delete(c.entries, key)
		ok = false
		telemetry.CacheEvicted("expired")
	}
	if !ok {
		c.misses++
		c.mu.Unlock()
		telemetry.CacheLookup(false)
		return model.QueryResult{}, false
	}
	result, copied := c.copyResult(entry.Result)
	if !copied {
		c.misses++
		c.mu.Unlock()
		telemetry.CacheLookup(false)
		return model.QueryResult{}, false
	}
	entry.AccessCount++
	entry.LastAccessed = now
	c.hits++
	c.mu.Unlock()

	telemetry.CacheLookup(true)
	c.logger.Debug("cache hit", "database_id", databaseID, "query", truncate(sql, 50))
	return result, true
}

// Set stores a copy of result. A ttl of zero or less uses the default TTL.
// When the cache is full the least recently accessed entry is evicted first.
func (c *Cache) Set(sql string, result model.QueryResult, databaseID int64, params []interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	stored, ok := c.copyResult(result)
	if !ok {
		return
	}
	var storedParams []interface{}
	if params != nil {
		if p, ok := deepcopy.Copy(params).([]interface{}); ok {
			storedParams = p
		}
	}

	key := Key(sql, params, databaseID)
	now := c.now()
	entry := &Entry{
		ID:           key,
		Query:        query.Normalize(sql),
		Parameters:   storedParams,
		Result:       stored,
		DatabaseID:   databaseID,
		CreatedAt:    now,
		TTL:          ttl,
		LastAccessed: now,
	}

	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxEntries {
		c.evictLRULocked()
	}
	c.entries[key] = entry
	size := len(c.entries)
	c.mu.Unlock()

	telemetry.CacheSize(size)
	c.logger.Debug("cached query result", "database_id", databaseID, "query", truncate(sql, 50), "ttl", ttl)
}

// Invalidate removes entries and returns how many were removed. With an
// empty pattern and a zero databaseID the whole cache is cleared. Otherwise
// an entry is removed if it belongs to databaseID OR its normalized query
// contains pattern (case-insensitive).
func (c *Cache) Invalidate(pattern string, databaseID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" && databaseID == 0 {
		removed := len(c.entries)
		c.entries = make(map[string]*Entry)
		telemetry.CacheSize(0)
		c.logger.Info("cleared query cache", "removed", removed)
		return removed
	}

	pattern = strings.ToLower(pattern)
	removed := 0
	for key, entry := range c.entries {
		match := databaseID != 0 && entry.DatabaseID == databaseID
		if !match && pattern != "" && strings.Contains(strings.ToLower(entry.Query), pattern) {
			match = true
		}
		if match {
			delete(c.entries, key)
			removed++
		}
	}
	telemetry.CacheSize(len(c.entries))
	c.logger.Info("invalidated cache entries", "removed", removed, "pattern", pattern, "database_id", databaseID)
	return removed
}

// InvalidateMatching removes the entries of databaseID whose normalized query
// contains any of the given fragments. Unlike Invalidate the two filters are
// ANDed, which is what a write to a known table needs.
func (c *Cache) InvalidateMatching(databaseID int64, fragments []string) int {
	if len(fragments) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.DatabaseID != databaseID {
			continue
		}
		for _, f := range fragments {
			if f != "" && strings.Contains(entry.Query, strings.ToLower(f)) {
				delete(c.entries, key)
				removed++
				break
			}
		}
	}
	if removed > 0 {
		telemetry.CacheSize(len(c.entries))
		c.logger.Info("invalidated cache entries after write", "removed", removed, "database_id", databaseID)
	}
	return removed
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns copies of the cached entries ordered by most recent access.
// A zero databaseID returns entries of every database; limit <= 0 means 50.
func (c *Cache) Entries(databaseID int64, limit int) []Entry {
	if limit <= 0 {
		limit = 50
	}
	c.mu.Lock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if databaseID != 0 && e.DatabaseID != databaseID {
			continue
		}
		cp := *e
		if r, ok := c.copyResult(e.Result); ok {
			cp.Result = r
		}
		out = append(out, cp)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessed.After(out[j].LastAccessed)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// WarmQuery names a query to pre-populate. Result holds its executed
// result; a nil Result was never executed and is not cached.
type WarmQuery struct {
	Query      string             `json:"query" yaml:"query"`
	Parameters []interface{}      `json:"parameters,omitempty" yaml:"parameters"`
	DatabaseID int64              `json:"databaseId" yaml:"database_id"`
	Result     *model.QueryResult `json:"-" yaml:"-"`
}

// Cached reports whether query is cached and unexpired for databaseID
// without counting a hit or miss.
func (c *Cache) Cached(query string, params []interface{}, databaseID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[Key(query, params, databaseID)]
	return ok && !e.expired(time.Now())
}

// Warm stores the executed results of queries that are not cached yet and
// returns how many were added.
func (c *Cache) Warm(queries []WarmQuery) int {
	warmed := 0
	for _, q := range queries {
		if q.Result == nil || c.Cached(q.Query, q.Parameters, q.DatabaseID) {
			continue
		}
		c.Set(q.Query, *q.Result, q.DatabaseID, q.Parameters, 0)
		warmed++
	}
	c.logger.Info("cache warmed", "requested", len(queries), "added", warmed)
	return warmed
}

// Close stops the background sweep. It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		c.logger.Debug("query cache sweep stopped")
	})
}

func (c *Cache) sweepLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		for i := 0; i < removed; i++ {
			telemetry.CacheEvicted("expired")
		}
		telemetry.CacheSize(size)
		c.logger.Info("swept expired cache entries", "removed", removed)
	}
	return removed
}

// evictLRULocked removes the entry with the oldest LastAccessed. Ties are
// broken by map iteration order. c.mu must be held.
func (c *Cache) evictLRULocked() {
	var oldestKey string
	var oldest *Entry
	for key, e := range c.entries {
		if oldest == nil || e.LastAccessed.Before(oldest.LastAccessed) {
			oldest, oldestKey = e, key
		}
	}
	if oldest == nil {
		return
	}
	delete(c.entries, oldestKey)
	telemetry.CacheEvicted("lru")
	c.logger.Debug("evicted LRU cache entry", "database_id", oldest.DatabaseID, "query", truncate(oldest.Query, 30))
}

// copyResult deep-copies a result so that callers can never mutate cached
// state. A panic inside the copy is reported as a failed copy.
func (c *Cache) copyResult(r model.QueryResult) (out model.QueryResult, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Warn("failed to copy query result", "error", rec)
			out, ok = model.QueryResult{}, false
		}
	}()
	cp, ok := deepcopy.Copy(r).(model.QueryResult)
	if !ok {
		c.logger.Warn("failed to copy query result", "error", "unexpected type")
		return model.QueryResult{}, false
	}
	return cp, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
