// Package sqldb holds the database/sql plumbing shared by the SQL backends:
// pool setup, statement execution into row maps and data sampling for
// introspection. Backends embed Base and add dialect-specific introspection.
package sqldb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/query"
)

// ErrNotConnected is returned when a Base is used before Connect.
var ErrNotConnected = errors.New("sqldb: not connected")

// Dialect describes the SQL differences sampling needs to care about.
type Dialect struct {
	// Quote wraps an identifier. Defaults to ANSI double quotes.
	Quote func(name string) string
	// Limit renders "SELECT * FROM <table>" limited to n rows. Defaults to
	// a trailing LIMIT clause.
	Limit func(quotedTable string, n int) string
}

// ANSIQuote wraps name in double quotes, doubling embedded quotes.
func ANSIQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func limitClause(table string, n int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, n)
}

// Base implements the connection, query and ping parts of
// connector.Connector on top of sqlx.
type Base struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewBase returns a Base for the given dialect.
func NewBase(d Dialect) Base {
	if d.Quote == nil {
		d.Quote = ANSIQuote
	}
	if d.Limit == nil {
		d.Limit = limitClause
	}
	return Base{dialect: d}
}

// Open opens and pings a pool for driverName, applying the pool settings
// of cfg.
func (b *Base) Open(ctx context.Context, driverName, dsn string, cfg connector.ConnectionConfig) error {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("%s open: %w", driverName, err)
	}
	ApplyPool(db, cfg)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%s ping: %w", driverName, err)
	}
	b.db = db
	return nil
}

// Attach uses an already opened pool. Tests use it with sqlmock.
func (b *Base) Attach(db *sqlx.DB) {
	b.db = db
}

// ApplyPool copies the pool settings of cfg onto db.
func ApplyPool(db *sqlx.DB, cfg connector.ConnectionConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// DB returns the underlying pool, nil before Connect.
func (b *Base) DB() *sqlx.DB {
	return b.db
}

// Disconnect closes the pool.
func (b *Base) Disconnect() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Ping verifies the connection is alive.
func (b *Base) Ping(ctx context.Context) error {
	if b.db == nil {
		return ErrNotConnected
	}
	return b.db.PingContext(ctx)
}

// Query runs a single statement. Mutating statements without a RETURNING
// clause are executed and report affected rows; everything else is read
// into row maps.
func (b *Base) Query(ctx context.Context, sql string, params []interface{}) (connector.Result, error) {
	if b.db == nil {
		return connector.Result{}, ErrNotConnected
	}

	stmt := query.Classify(sql)
	if stmt.Mutates() && !strings.Contains(stmt.Normalized, " returning ") && !strings.Contains(stmt.Normalized, " output ") {
		res, err := b.db.ExecContext(ctx, sql, params...)
		if err != nil {
			return connector.Result{}, fmt.Errorf("exec: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = 0
		}
		return connector.Result{Rows: []map[string]interface{}{}, RowCount: int(n)}, nil
	}

	rows, err := b.db.QueryxContext(ctx, sql, params...)
	if err != nil {
		return connector.Result{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out, err := ScanRows(rows)
	if err != nil {
		return connector.Result{}, err
	}
	return connector.Result{Rows: out, RowCount: len(out)}, nil
}

// ScanRows reads every row into a column-name keyed map. Byte slices are
// converted to strings so results encode as JSON text.
func ScanRows(rows *sqlx.Rows) ([]map[string]interface{}, error) {
	out := []map[string]interface{}{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for k, v := range row {
			row[k] = normalizeValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}

// AddSampleData fills RowCount and SampleData of every table in schema.
// Tables that cannot be sampled are left without data.
func (b *Base) AddSampleData(ctx context.Context, schema *model.SchemaInfo, n int) {
	if b.db == nil {
		return
	}
	if n <= 0 {
		n = connector.DefaultSampleRows
	}
	schema.IncludeData = true
	for i := range schema.Tables {
		t := &schema.Tables[i]
		quoted := b.dialect.Quote(t.Name)

		var count int64
		if err := b.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+quoted); err == nil {
			t.RowCount = &count
		}

		rows, err := b.db.QueryxContext(ctx, b.dialect.Limit(quoted, n))
		if err != nil {
			continue
		}
		sample, err := ScanRows(rows)
		rows.Close()
		if err == nil {
			t.SampleData = sample
		}
	}
}

// EmptySchema returns a schema with non-nil, empty collections.
func EmptySchema() model.SchemaInfo {
	return model.SchemaInfo{
		Tables:     []model.TableInfo{},
		Views:      []model.ViewInfo{},
		Procedures: []model.ProcedureInfo{},
	}
}
