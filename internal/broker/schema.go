package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/snapshot"
	"github.com/promptelt/promptelt/internal/telemetry"
)

// GetSchema returns the schema of the latest snapshot. Without one the
// database is introspected and the result captured as a new snapshot.
func (b *Broker) GetSchema(ctx context.Context, databaseID int64, includeData bool) model.Response {
	return b.run("get_schema", func() (interface{}, error) {
		if snap, ok := b.snapshots.Latest(databaseID); ok {
			return snap.Schema, nil
		}
		conn, err := b.connectorFor(databaseID)
		if err != nil {
			return nil, err
		}
		schema, err := b.introspect(ctx, databaseID, conn, includeData)
		if err != nil {
			return nil, err
		}
		b.snapshots.Capture(databaseID, schema)
		return schema, nil
	})
}

func (b *Broker) introspect(ctx context.Context, databaseID int64, conn connector.Connector, includeData bool) (model.SchemaInfo, error) {
	schema, err := conn.IntrospectSchema(ctx, connector.IntrospectOptions{
		IncludeData: includeData,
		SampleRows:  b.cfg.SampleRows,
	})
	if err != nil {
		return model.SchemaInfo{}, fmt.Errorf("introspect database %d: %w", databaseID, err)
	}
	return schema, nil
}

// ChangeReport pairs schema changes with their severity summary.
type ChangeReport struct {
	Changes []snapshot.Change `json:"changes"`
	Summary snapshot.Summary  `json:"summary"`
}

func report(changes []snapshot.Change) ChangeReport {
	if changes == nil {
		changes = []snapshot.Change{}
	}
	return ChangeReport{Changes: changes, Summary: snapshot.Summarize(changes)}
}

// RefreshResult is the payload of RefreshSchema.
type RefreshResult struct {
	ChangeReport
	SnapshotID string `json:"snapshotId"`
	Version    string `json:"version"`
	Checksum   string `json:"checksum"`
}

// RefreshSchema introspects databaseID, diffs the result against the
// latest snapshot and captures it.
func (b *Broker) RefreshSchema(ctx context.Context, databaseID int64) model.Response {
	return b.run("refresh_schema", func() (interface{}, error) {
		conn, err := b.connectorFor(databaseID)
		if err != nil {
			return nil, err
		}
		schema, err := b.introspect(ctx, databaseID, conn, false)
		if err != nil {
			return nil, err
		}

		changes := b.snapshots.CompareWithLatest(databaseID, schema)
		snap := b.snapshots.Capture(databaseID, schema)
		for _, c := range changes {
			telemetry.SchemaChange(string(c.Type))
		}
		if len(changes) > 0 {
			b.logger.Info("schema drift detected", "database_id", databaseID, "changes", len(changes), "version", snap.Version)
		}
		return RefreshResult{
			ChangeReport: report(changes),
			SnapshotID:   snap.ID,
			Version:      snap.Version,
			Checksum:     snap.Checksum,
		}, nil
	})
}

// SchemaChanges lists the changes between consecutive snapshots of
// databaseID newer than since.
func (b *Broker) SchemaChanges(databaseID int64, since time.Time) model.Response {
	return b.run("schema_changes", func() (interface{}, error) {
		return report(b.snapshots.Changes(databaseID, since)), nil
	})
}

// SchemaHistory lists up to limit snapshots of databaseID, newest first.
func (b *Broker) SchemaHistory(databaseID int64, limit int) model.Response {
	return b.run("schema_history", func() (interface{}, error) {
		return b.snapshots.History(databaseID, limit), nil
	})
}

// DiffSnapshots diffs two snapshots by id.
func (b *Broker) DiffSnapshots(fromID, toID string) model.Response {
	return b.run("diff_snapshots", func() (interface{}, error) {
		changes, err := b.snapshots.DiffSnapshots(fromID, toID)
		if err != nil {
			return nil, err
		}
		return report(changes), nil
	})
}

// ArchiveSnapshot exports a snapshot to the archive under
// snapshots/<database>/<id>.json.
func (b *Broker) ArchiveSnapshot(ctx context.Context, id string) model.Response {
	return b.run("archive_snapshot", func() (interface{}, error) {
		if b.archive == nil {
			return nil, ErrArchiveDisabled
		}
		snap, err := b.snapshots.Get(id)
		if err != nil {
			return nil, err
		}
		data, err := b.snapshots.Export(id)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("snapshots/%d/%s.json", snap.DatabaseID, snap.ID)
		loc, err := b.archive.Put(ctx, key, data, "application/json")
		if err != nil {
			return nil, fmt.Errorf("archive snapshot %s: %w", id, err)
		}
		return ArchiveResult{Key: key, Location: loc, Bytes: len(data)}, nil
	})
}

// RestoreSnapshot imports an archived snapshot document into the history
// of its database.
func (b *Broker) RestoreSnapshot(ctx context.Context, key string) model.Response {
	return b.run("restore_snapshot", func() (interface{}, error) {
		if b.archive == nil {
			return nil, ErrArchiveDisabled
		}
		data, err := b.archive.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("restore snapshot %s: %w", key, err)
		}
		snap, err := b.snapshots.Import(data)
		if err != nil {
			return nil, fmt.Errorf("restore snapshot %s: %w", key, err)
		}
		b.logger.Info("snapshot restored", "key", key, "database_id", snap.DatabaseID, "snapshot_id", snap.ID)
		return snap, nil
	})
}

// ExportSnapshot returns the JSON document of a snapshot as a raw message,
// suitable for Import.
func (b *Broker) ExportSnapshot(id string) model.Response {
	return b.run("export_snapshot", func() (interface{}, error) {
		data, err := b.snapshots.Export(id)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(data), nil
	})
}
