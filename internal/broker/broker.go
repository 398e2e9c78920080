// Package broker is the single entry point for database work. It keeps the
// table of open connections, answers queries through the query cache,
// captures schema snapshots and forwards natural-language requests to the
// assistant. Every operation returns a model.Response envelope; errors and
// panics from connectors or the assistant never escape as Go errors.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/demo"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/querycache"
	"github.com/promptelt/promptelt/internal/snapshot"
	"github.com/promptelt/promptelt/internal/telemetry"
)

// Sentinel errors surfaced through failed envelopes.
var (
	ErrNotConnected         = errors.New("database not connected")
	ErrAssistantUnavailable = errors.New("assistant is not configured")
	ErrArchiveDisabled      = errors.New("archive is not configured")
)

// Assistant is the natural-language collaborator.
type Assistant interface {
	ProcessQuery(ctx context.Context, req model.ProcessQueryRequest, apiKey string) (model.ProcessQueryResponse, error)
	GeneratePipeline(ctx context.Context, req model.PipelineRequest, apiKey string) (model.ProcessQueryResponse, error)
	ValidateQuery(ctx context.Context, sql string, schema []model.SchemaInfo, apiKey string) (model.ValidationResult, error)
}

// Archiver stores exported documents outside the process.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Config tunes the broker.
type Config struct {
	// QueryTTL is the cache lifetime of query results. Zero uses the
	// cache default.
	QueryTTL time.Duration `yaml:"query_ttl"`
	// IncludeDataOnConnect samples rows into the initial snapshot.
	IncludeDataOnConnect bool `yaml:"include_data_on_connect"`
	SampleRows           int  `yaml:"sample_rows"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Deps are the collaborators of a Broker. Assistant and Archive may be nil.
type Deps struct {
	Registry  *connector.Registry
	Cache     *querycache.Cache
	Snapshots *snapshot.Service
	Assistant Assistant
	Archive   Archiver
	Logger    *slog.Logger
}

// Broker orchestrates connectors, the query cache and schema snapshots.
type Broker struct {
	cfg       Config
	registry  *connector.Registry
	cache     *querycache.Cache
	snapshots *snapshot.Service
	assistant Assistant
	archive   Archiver
	logger    *slog.Logger
	started   time.Time

	mu    sync.RWMutex
	conns map[int64]*model.Connection
}

// New creates a Broker. Registry, Cache and Snapshots are required.
func New(cfg Config, deps Deps) *Broker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		cfg:       cfg,
		registry:  deps.Registry,
		cache:     deps.Cache,
		snapshots: deps.Snapshots,
		assistant: deps.Assistant,
		archive:   deps.Archive,
		logger:    logger.With("component", "broker"),
		started:   time.Now(),
		conns:     make(map[int64]*model.Connection),
	}
}

// run measures fn, converts its outcome into an envelope and turns panics
// into failed envelopes.
func (b *Broker) run(op string, fn func() (interface{}, error)) (resp model.Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("broker operation panicked", "operation", op, "panic", r)
			err := fmt.Errorf("%s: internal error: %v", op, r)
			resp = model.Response{Error: err.Error(), Err: err}
		}
		resp.ExecutionTime = model.Elapsed(start)
		telemetry.BrokerOperation(op, resp.Success, time.Since(start))
	}()

	data, err := fn()
	if err != nil {
		b.logger.Warn("broker operation failed", "operation", op, "error", err)
		return model.Response{Error: err.Error(), Err: err}
	}
	return model.Response{Success: true, Data: data}
}

// ConnectResult is the payload of a successful Connect.
type ConnectResult struct {
	Connection model.Connection `json:"connection"`
	SnapshotID string           `json:"snapshotId"`
	Version    string           `json:"version"`
	Tables     int              `json:"tables"`
}

// connectionKey is the registry key and connection id of a database.
func connectionKey(cfg model.DatabaseConfig) string {
	return fmt.Sprintf("%s-%d", cfg.Type, cfg.ID)
}

// resolveDriver picks the connector for cfg. Databases without a
// connection string, or with a demo: one, are served by the demo backend.
func resolveDriver(cfg model.DatabaseConfig) (driver, dsn string) {
	cs := strings.TrimSpace(cfg.ConnectionString)
	switch {
	case cs == "":
		return "demo", demo.Scheme + strings.ToLower(cfg.Type)
	case strings.HasPrefix(strings.ToLower(cs), demo.Scheme):
		return "demo", cs
	default:
		return strings.ToLower(cfg.Type), cs
	}
}

func metadataString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Connect opens a connector for cfg, records the connection and captures
// the initial schema snapshot. Reconnecting replaces the previous
// connector.
func (b *Broker) Connect(ctx context.Context, cfg model.DatabaseConfig) model.Response {
	return b.run("connect", func() (interface{}, error) {
		driver, dsn := resolveDriver(cfg)
		key := connectionKey(cfg)

		conn, err := b.registry.Open(ctx, key, connector.ConnectionConfig{
			Driver:          driver,
			DSN:             dsn,
			SchemaName:      metadataString(cfg.Metadata, "schema"),
			PrivateKeyPath:  metadataString(cfg.Metadata, "private_key_path"),
			MaxOpenConns:    b.cfg.MaxOpenConns,
			MaxIdleConns:    b.cfg.MaxIdleConns,
			ConnMaxLifetime: b.cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database %d: %w", cfg.ID, err)
		}

		schema, err := conn.IntrospectSchema(ctx, connector.IntrospectOptions{
			IncludeData: b.cfg.IncludeDataOnConnect,
			SampleRows:  b.cfg.SampleRows,
		})
		if err != nil {
			// Open already replaced any connector under key, so a record
			// pointing at it is stale now.
			_ = b.registry.Close(key)
			b.dropConnection(cfg.ID, key)
			return nil, fmt.Errorf("introspect database %d: %w", cfg.ID, err)
		}
		snap := b.snapshots.Capture(cfg.ID, schema)

		rec := &model.Connection{
			ID:           key,
			DatabaseID:   cfg.ID,
			Type:         cfg.Type,
			Status:       model.ConnectionConnected,
			LastActivity: time.Now(),
			Metadata: map[string]interface{}{
				"name":             cfg.Name,
				"driver":           driver,
				"connectionString": model.MaskConnectionString(cfg.ConnectionString),
			},
		}
		b.mu.Lock()
		prev := b.conns[cfg.ID]
		b.conns[cfg.ID] = rec
		b.mu.Unlock()
		if prev != nil && prev.ID != key {
			_ = b.registry.Close(prev.ID)
		}

		b.logger.Info("database connected", "database_id", cfg.ID, "type", cfg.Type, "driver", driver, "tables", len(schema.Tables))
		return ConnectResult{
			Connection: *rec,
			SnapshotID: snap.ID,
			Version:    snap.Version,
			Tables:     len(schema.Tables),
		}, nil
	})
}

// dropConnection forgets the record of databaseID if it is stored under
// key and evicts the database's cached results.
func (b *Broker) dropConnection(databaseID int64, key string) {
	b.mu.Lock()
	rec, ok := b.conns[databaseID]
	if ok && rec.ID == key {
		delete(b.conns, databaseID)
	}
	b.mu.Unlock()
	if ok && rec.ID == key {
		n := b.cache.Invalidate("", databaseID)
		b.logger.Warn("dropped stale connection", "database_id", databaseID, "invalidated", n)
	}
}

// connectorFor returns the open connector of databaseID and refreshes its
// last-activity time.
func (b *Broker) connectorFor(databaseID int64) (connector.Connector, error) {
	b.mu.Lock()
	rec, ok := b.conns[databaseID]
	if ok {
		rec.LastActivity = time.Now()
	}
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("database %d: %w", databaseID, ErrNotConnected)
	}
	conn, err := b.registry.Get(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("database %d: %w: %v", databaseID, ErrNotConnected, err)
	}
	return conn, nil
}

// Connection returns the connection record of databaseID.
func (b *Broker) Connection(databaseID int64) (model.Connection, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.conns[databaseID]
	if !ok {
		return model.Connection{}, false
	}
	return copyConnection(rec), true
}

// Connections returns all connection records ordered by database id.
func (b *Broker) Connections() []model.Connection {
	b.mu.RLock()
	out := make([]model.Connection, 0, len(b.conns))
	for _, rec := range b.conns {
		out = append(out, copyConnection(rec))
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DatabaseID < out[j].DatabaseID })
	return out
}

func copyConnection(rec *model.Connection) model.Connection {
	c := *rec
	c.Metadata = make(map[string]interface{}, len(rec.Metadata))
	for k, v := range rec.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// DisconnectResult is the payload of DisconnectDatabase.
type DisconnectResult struct {
	Disconnected bool `json:"disconnected"`
	Invalidated  int  `json:"invalidated"`
}

// DisconnectDatabase drops the connection of databaseID and its cached
// results. Disconnecting an unknown database succeeds.
func (b *Broker) DisconnectDatabase(ctx context.Context, databaseID int64) model.Response {
	return b.run("disconnect", func() (interface{}, error) {
		b.mu.Lock()
		rec, ok := b.conns[databaseID]
		delete(b.conns, databaseID)
		b.mu.Unlock()

		var res DisconnectResult
		if ok {
			if err := b.registry.Close(rec.ID); err != nil {
				b.logger.Warn("closing connector failed", "database_id", databaseID, "error", err)
			}
			res.Disconnected = true
			res.Invalidated = b.cache.Invalidate("", databaseID)
			b.logger.Info("database disconnected", "database_id", databaseID, "invalidated", res.Invalidated)
		}
		return res, nil
	})
}

// Close disconnects every database and stops the cache sweep.
func (b *Broker) Close(ctx context.Context) error {
	for _, c := range b.Connections() {
		b.DisconnectDatabase(ctx, c.DatabaseID)
	}
	b.registry.CloseAll()
	b.cache.Close()
	b.logger.Info("broker closed")
	return nil
}

// Stats is the service-wide statistics surface.
type Stats struct {
	Connections int              `json:"connections"`
	Cache       querycache.Stats `json:"cache"`
	Schema      snapshot.Stats   `json:"schema"`
	Uptime      float64          `json:"uptime"` // seconds
}

// ServiceStats returns connection, cache and snapshot statistics.
func (b *Broker) ServiceStats() Stats {
	b.mu.RLock()
	n := len(b.conns)
	b.mu.RUnlock()
	return Stats{
		Connections: n,
		Cache:       b.cache.Stats(),
		Schema:      b.snapshots.Stats(),
		Uptime:      time.Since(b.started).Seconds(),
	}
}
