package postgres

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
)

// PostgresConnector implements connector.Connector for PostgreSQL databases.
type PostgresConnector struct {
	sqldb.Base
	schemaName string
}

// New creates a new PostgresConnector introspecting the public schema.
func New() connector.Connector {
	return &PostgresConnector{
		Base:       sqldb.NewBase(sqldb.Dialect{}),
		schemaName: "public",
	}
}

// Connect opens a pgx pool for the DSN. cfg.SchemaName selects the schema
// used for introspection.
func (c *PostgresConnector) Connect(ctx context.Context, cfg connector.ConnectionConfig) error {
	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}
	return c.Open(ctx, "pgx", cfg.DSN, cfg)
}

// DriverName returns the driver identifier for PostgreSQL.
func (c *PostgresConnector) DriverName() string { return "postgres" }
