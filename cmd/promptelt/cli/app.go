package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/promptelt/promptelt/internal/archive"
	"github.com/promptelt/promptelt/internal/assistant"
	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/querycache"
	"github.com/promptelt/promptelt/internal/snapshot"
)

// app is the wired process: configuration, store, connector registry and
// the broker on top of them. Every command that touches databases builds
// one.
type app struct {
	cfg      *config.YAMLConfig
	logger   *slog.Logger
	store    *config.Store
	registry *connector.Registry
	broker   *broker.Broker

	closeOnce sync.Once
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Logging)

	store, err := config.NewStore(resolveDataDir())
	if err != nil {
		return nil, fmt.Errorf("init config store: %w", err)
	}
	logger.Debug("config store initialized", "path", resolveDataDir())

	completer, err := assistant.NewCompleter(cfg.Assistant)
	if err != nil {
		store.Close()
		return nil, err
	}

	var arch broker.Archiver
	if cfg.Archive.Enabled() {
		st, err := archive.New(ctx, cfg.Archive, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init archive: %w", err)
		}
		arch = st
	}

	registry := newRegistry()
	b := broker.New(broker.Config{
		QueryTTL:             cfg.Cache.DefaultTTL,
		IncludeDataOnConnect: cfg.Broker.IncludeDataOnConnect,
		SampleRows:           cfg.Broker.SampleRows,
		MaxOpenConns:         cfg.Broker.MaxOpenConns,
		MaxIdleConns:         cfg.Broker.MaxIdleConns,
		ConnMaxLifetime:      cfg.Broker.ConnMaxLifetime,
	}, broker.Deps{
		Registry: registry,
		Cache: querycache.New(querycache.Config{
			MaxEntries:    cfg.Cache.MaxEntries,
			DefaultTTL:    cfg.Cache.DefaultTTL,
			SweepInterval: cfg.Cache.SweepInterval,
		}, logger),
		Snapshots: snapshot.NewService(snapshot.Config{HistoryLimit: cfg.Snapshot.HistoryLimit}, logger),
		Assistant: assistant.New(completer, logger),
		Archive:   arch,
		Logger:    logger,
	})

	return &app{cfg: cfg, logger: logger, store: store, registry: registry, broker: b}, nil
}

// Close disconnects every database and closes the store. It is safe to
// call after the server has already closed the broker.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.broker.Close(ctx)
		a.store.Close()
	})
}

// startup seeds the configured databases, reconnects the ones that should
// be online and warms the cache.
func (a *app) startup(ctx context.Context) error {
	if err := a.seedDatabases(ctx); err != nil {
		return err
	}
	dbs, err := a.store.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("list databases: %w", err)
	}
	autoConnect := make(map[string]bool, len(a.cfg.Databases))
	for _, d := range a.cfg.Databases {
		autoConnect[d.Name] = d.Connect
	}
	for _, db := range dbs {
		if autoConnect[db.Name] || db.Status == model.DatabaseOnline {
			a.connect(ctx, db)
		}
	}
	a.warmCache(ctx)
	return nil
}

// seedDatabases upserts the databases listed in the config file by name.
func (a *app) seedDatabases(ctx context.Context) error {
	for _, d := range a.cfg.Databases {
		existing, err := a.store.GetDatabaseByName(ctx, d.Name)
		switch {
		case errors.Is(err, config.ErrNotFound):
			db := &model.DatabaseConfig{
				Name:             d.Name,
				Type:             strings.ToLower(d.Type),
				ConnectionString: d.ConnectionString,
				Description:      d.Description,
				Metadata:         d.Metadata,
			}
			if err := a.store.CreateDatabase(ctx, db); err != nil {
				return fmt.Errorf("seed database %q: %w", d.Name, err)
			}
			a.logger.Info("database registered from config", "database", d.Name, "id", db.ID)
		case err != nil:
			return fmt.Errorf("seed database %q: %w", d.Name, err)
		default:
			existing.Type = strings.ToLower(d.Type)
			existing.ConnectionString = d.ConnectionString
			existing.Description = d.Description
			existing.Metadata = d.Metadata
			if err := a.store.UpdateDatabase(ctx, existing); err != nil {
				return fmt.Errorf("seed database %q: %w", d.Name, err)
			}
		}
	}
	return nil
}

// connect opens db through the broker and records the outcome as the
// database status.
func (a *app) connect(ctx context.Context, db model.DatabaseConfig) model.Response {
	resp := a.broker.Connect(ctx, db)
	status := model.DatabaseOnline
	if !resp.Success {
		status = model.DatabaseOffline
		a.logger.Error("failed to connect database", "database", db.Name, "type", db.Type, "error", resp.Error)
	} else {
		a.logger.Info("connected database", "database", db.Name, "type", db.Type)
	}
	if err := a.store.SetDatabaseStatus(ctx, db.ID, status); err != nil {
		a.logger.Warn("failed to record database status", "database", db.Name, "error", err)
	}
	return resp
}

// connectRef resolves ref and connects it, failing on an unsuccessful
// envelope. It returns the database and the connect result.
func (a *app) connectRef(ctx context.Context, ref string) (*model.DatabaseConfig, broker.ConnectResult, error) {
	db, err := a.lookupDatabase(ctx, ref)
	if err != nil {
		return nil, broker.ConnectResult{}, err
	}
	resp := a.connect(ctx, *db)
	if !resp.Success {
		return nil, broker.ConnectResult{}, fmt.Errorf("connect %q: %s", db.Name, resp.Error)
	}
	res, _ := resp.Data.(broker.ConnectResult)
	return db, res, nil
}

// warmCache runs the configured warm queries against their databases so
// the first reads are served from the cache.
func (a *app) warmCache(ctx context.Context) {
	if len(a.cfg.Cache.Warm) == 0 {
		return
	}
	queries := make([]querycache.WarmQuery, 0, len(a.cfg.Cache.Warm))
	for _, w := range a.cfg.Cache.Warm {
		db, err := a.store.GetDatabaseByName(ctx, w.Database)
		if err != nil {
			a.logger.Warn("skipping warm query", "database", w.Database, "error", err)
			continue
		}
		if _, ok := a.broker.Connection(db.ID); !ok {
			a.logger.Warn("skipping warm query for disconnected database", "database", w.Database)
			continue
		}
		queries = append(queries, querycache.WarmQuery{Query: w.SQL, Parameters: w.Params, DatabaseID: db.ID})
	}
	resp := a.broker.WarmCache(ctx, queries)
	if !resp.Success {
		a.logger.Warn("cache warm-up failed", "error", resp.Error)
		return
	}
	res, _ := resp.Data.(broker.WarmResult)
	a.logger.Info("cache warmed", "requested", res.Requested, "added", res.Added, "failed", res.Failed)
}

// refreshLoop re-introspects every connected database each interval until
// ctx is cancelled. Detected drift is logged by the broker.
func (a *app) refreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range a.broker.Connections() {
				if resp := a.broker.RefreshSchema(ctx, c.DatabaseID); !resp.Success {
					a.logger.Warn("scheduled schema refresh failed", "database_id", c.DatabaseID, "error", resp.Error)
				}
			}
		}
	}
}

// lookupDatabase resolves a database reference, either a numeric id or a
// registered name.
func (a *app) lookupDatabase(ctx context.Context, ref string) (*model.DatabaseConfig, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if db, err := a.store.GetDatabase(ctx, id); err == nil {
			return db, nil
		}
	}
	db, err := a.store.GetDatabaseByName(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("look up database %q: %w", ref, err)
	}
	return db, nil
}
