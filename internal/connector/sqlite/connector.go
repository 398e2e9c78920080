package sqlite

import (
	"context"

	_ "modernc.org/sqlite"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
)

// SQLiteConnector implements connector.Connector for SQLite databases.
type SQLiteConnector struct {
	sqldb.Base
}

// New creates a new SQLiteConnector.
func New() connector.Connector {
	return &SQLiteConnector{Base: sqldb.NewBase(sqldb.Dialect{})}
}

// Connect opens the SQLite database named by the DSN: a file path or
// ":memory:". Query parameters such as ?_pragma=journal_mode(WAL) are
// passed through to the driver.
func (c *SQLiteConnector) Connect(ctx context.Context, cfg connector.ConnectionConfig) error {
	return c.Open(ctx, "sqlite", cfg.DSN, cfg)
}

// DriverName returns the driver identifier for SQLite.
func (c *SQLiteConnector) DriverName() string { return "sqlite" }
