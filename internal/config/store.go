package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/promptelt/promptelt/internal/model"
)

// Store persists registered databases, conversations, pipelines and
// settings in SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new config store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "promptelt.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate config database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Database CRUD
// ---------------------------------------------------------------------------

// databaseRow maps 1:1 to the databases table. Metadata is kept as JSON text.
type databaseRow struct {
	ID               int64     `db:"id"`
	Name             string    `db:"name"`
	Type             string    `db:"type"`
	ConnectionString string    `db:"connection_string"`
	Status           string    `db:"status"`
	Description      string    `db:"description"`
	MetadataJSON     string    `db:"metadata_json"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func databaseRowFromModel(d *model.DatabaseConfig) (databaseRow, error) {
	meta, err := marshalJSON(d.Metadata, "{}")
	if err != nil {
		return databaseRow{}, fmt.Errorf("marshal database metadata: %w", err)
	}
	return databaseRow{
		ID:               d.ID,
		Name:             d.Name,
		Type:             d.Type,
		ConnectionString: d.ConnectionString,
		Status:           d.Status,
		Description:      d.Description,
		MetadataJSON:     meta,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

func (r databaseRow) toModel() (model.DatabaseConfig, error) {
	d := model.DatabaseConfig{
		ID:               r.ID,
		Name:             r.Name,
		Type:             r.Type,
		ConnectionString: r.ConnectionString,
		Status:           r.Status,
		Description:      r.Description,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if err := unmarshalJSON(r.MetadataJSON, &d.Metadata); err != nil {
		return model.DatabaseConfig{}, fmt.Errorf("decode metadata of database %d: %w", r.ID, err)
	}
	return d, nil
}

// CreateDatabase registers a database. ID, CreatedAt and UpdatedAt are
// populated after a successful insert; an empty Status becomes offline.
func (s *Store) CreateDatabase(ctx context.Context, d *model.DatabaseConfig) error {
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = model.DatabaseOffline
	}

	row, err := databaseRowFromModel(d)
	if err != nil {
		return err
	}

	const q = `INSERT INTO databases
		(name, type, connection_string, status, description, metadata_json, created_at, updated_at)
		VALUES
		(:name, :type, :connection_string, :status, :description, :metadata_json, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert database: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get database id: %w", err)
	}
	d.ID = id
	return nil
}

// GetDatabase returns a registered database by ID.
func (s *Store) GetDatabase(ctx context.Context, id int64) (*model.DatabaseConfig, error) {
	var row databaseRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM databases WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get database: %w", err)
	}
	d, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDatabaseByName returns a registered database by its unique name.
func (s *Store) GetDatabaseByName(ctx context.Context, name string) (*model.DatabaseConfig, error) {
	var row databaseRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM databases WHERE name = ?", name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get database by name: %w", err)
	}
	d, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDatabases returns all registered databases ordered by ID.
func (s *Store) ListDatabases(ctx context.Context) ([]model.DatabaseConfig, error) {
	var rows []databaseRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM databases ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	out := make([]model.DatabaseConfig, 0, len(rows))
	for _, r := range rows {
		d, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// UpdateDatabase rewrites a registered database. UpdatedAt is refreshed.
func (s *Store) UpdateDatabase(ctx context.Context, d *model.DatabaseConfig) error {
	d.UpdatedAt = time.Now().UTC()
	row, err := databaseRowFromModel(d)
	if err != nil {
		return err
	}

	const q = `UPDATE databases SET
		name = :name, type = :type, connection_string = :connection_string, status = :status,
		description = :description, metadata_json = :metadata_json, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update database: %w", err)
	}
	return expectOne(result, "update database")
}

// SetDatabaseStatus records the connection status of a database.
func (s *Store) SetDatabaseStatus(ctx context.Context, id int64, status string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE databases SET status = ?, updated_at = ? WHERE id = ?", status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set database status: %w", err)
	}
	return expectOne(result, "set database status")
}

// DeleteDatabase removes a registered database.
func (s *Store) DeleteDatabase(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM databases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete database: %w", err)
	}
	return expectOne(result, "delete database")
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

func expectOne(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// marshalJSON encodes v, using empty for nil maps and slices.
func marshalJSON(v interface{}, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func unmarshalJSON(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
