package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/query"
	"github.com/promptelt/promptelt/internal/querycache"
)

// ExecuteQuery runs sql against databaseID. Reads are answered from the
// cache when possible and cached after execution. Writes bypass the cache
// and evict cached reads of the tables they touch.
func (b *Broker) ExecuteQuery(ctx context.Context, databaseID int64, sql string, params []interface{}) model.Response {
	return b.run("execute_query", func() (interface{}, error) {
		start := time.Now()
		conn, err := b.connectorFor(databaseID)
		if err != nil {
			return nil, err
		}
		if params == nil {
			params = []interface{}{}
		}

		stmt := query.Classify(sql)
		if !stmt.Mutates() {
			if res, ok := b.cache.Get(sql, params, databaseID); ok {
				res.Cached = true
				res.ExecutionTime = model.Elapsed(start)
				return res, nil
			}
		}

		out, err := conn.Query(ctx, sql, params)
		if err != nil {
			return nil, fmt.Errorf("execute query on database %d: %w", databaseID, err)
		}
		res := newResult(sql, params, out, start)

		switch {
		case stmt.Mutates() && len(stmt.Tables) == 0:
			// Unknown target: drop every cached read of the database.
			b.cache.Invalidate("", databaseID)
		case stmt.Mutates():
			if n := b.cache.InvalidateMatching(databaseID, stmt.Tables); n > 0 {
				b.logger.Debug("write evicted cached reads", "database_id", databaseID, "tables", stmt.Tables, "removed", n)
			}
		default:
			b.cache.Set(sql, res, databaseID, params, b.cfg.QueryTTL)
		}

		res.ExecutionTime = model.Elapsed(start)
		return res, nil
	})
}

func newResult(sql string, params []interface{}, out connector.Result, start time.Time) model.QueryResult {
	rows := out.Rows
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return model.QueryResult{
		Rows:          rows,
		RowCount:      out.RowCount,
		Query:         sql,
		Parameters:    params,
		ExecutionTime: model.Elapsed(start),
	}
}

// WarmResult is the payload of WarmCache.
type WarmResult struct {
	Requested int `json:"requested"`
	Added     int `json:"added"`
	Failed    int `json:"failed"`
}

// WarmCache executes the reads among queries that are not cached yet and
// stores their results. Writes are skipped. Queries against disconnected
// databases or failing upstream are counted as failed.
func (b *Broker) WarmCache(ctx context.Context, queries []querycache.WarmQuery) model.Response {
	return b.run("warm_cache", func() (interface{}, error) {
		res := WarmResult{Requested: len(queries)}
		ready := make([]querycache.WarmQuery, 0, len(queries))
		for _, q := range queries {
			if q.Parameters == nil {
				q.Parameters = []interface{}{}
			}
			if query.Classify(q.Query).Mutates() || b.cache.Cached(q.Query, q.Parameters, q.DatabaseID) {
				continue
			}
			conn, err := b.connectorFor(q.DatabaseID)
			if err != nil {
				res.Failed++
				b.logger.Warn("skipping warm query", "database_id", q.DatabaseID, "error", err)
				continue
			}
			start := time.Now()
			out, err := conn.Query(ctx, q.Query, q.Parameters)
			if err != nil {
				res.Failed++
				b.logger.Warn("warm query failed", "database_id", q.DatabaseID, "error", err)
				continue
			}
			result := newResult(q.Query, q.Parameters, out, start)
			q.Result = &result
			ready = append(ready, q)
		}
		res.Added = b.cache.Warm(ready)
		return res, nil
	})
}

// InvalidateResult is the payload of InvalidateCache.
type InvalidateResult struct {
	Removed int `json:"removed"`
}

// InvalidateCache removes cached results by pattern or database id; see
// querycache.Cache.Invalidate.
func (b *Broker) InvalidateCache(pattern string, databaseID int64) model.Response {
	return b.run("invalidate_cache", func() (interface{}, error) {
		return InvalidateResult{Removed: b.cache.Invalidate(pattern, databaseID)}, nil
	})
}

// CacheEntries lists cached entries, most recently used first.
func (b *Broker) CacheEntries(databaseID int64, limit int) model.Response {
	return b.run("cache_entries", func() (interface{}, error) {
		return b.cache.Entries(databaseID, limit), nil
	})
}

// ArchiveCache writes a cache export to the archive.
func (b *Broker) ArchiveCache(ctx context.Context) model.Response {
	return b.run("archive_cache", func() (interface{}, error) {
		if b.archive == nil {
			return nil, ErrArchiveDisabled
		}
		data, err := b.cache.Export()
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("cache/%s.json", time.Now().UTC().Format("20060102T150405Z"))
		loc, err := b.archive.Put(ctx, key, data, "application/json")
		if err != nil {
			return nil, fmt.Errorf("archive cache export: %w", err)
		}
		return ArchiveResult{Key: key, Location: loc, Bytes: len(data)}, nil
	})
}

// ArchiveResult describes an archived document.
type ArchiveResult struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	Bytes    int    `json:"bytes"`
}
