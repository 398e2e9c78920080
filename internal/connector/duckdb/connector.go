// Package duckdb implements connector.Connector for DuckDB database files,
// which is handy for querying local analytical extracts.
package duckdb

import (
	"context"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
	"github.com/promptelt/promptelt/internal/model"
)

// DuckDBConnector implements connector.Connector for DuckDB.
type DuckDBConnector struct {
	sqldb.Base
	schemaName string
}

// New creates a new DuckDBConnector introspecting the main schema.
func New() connector.Connector {
	return &DuckDBConnector{
		Base:       sqldb.NewBase(sqldb.Dialect{}),
		schemaName: "main",
	}
}

// Connect opens the database file named by the DSN. An empty DSN opens a
// transient in-memory database.
func (c *DuckDBConnector) Connect(ctx context.Context, cfg connector.ConnectionConfig) error {
	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}
	return c.Open(ctx, "duckdb", cfg.DSN, cfg)
}

// DriverName returns the driver identifier for DuckDB.
func (c *DuckDBConnector) DriverName() string { return "duckdb" }

// DuckDB's information_schema has no VIEWS or ROUTINES views; view text
// comes from duckdb_views() and routines are not reported.
var catalogQueries = sqldb.CatalogQueries{
	Objects: `SELECT t.table_name, t.table_type, v.sql AS view_definition
		FROM information_schema.tables t
		LEFT JOIN duckdb_views() v
			ON v.schema_name = t.table_schema AND v.view_name = t.table_name
		WHERE t.table_schema = ?
		ORDER BY t.table_name`,

	Columns: `SELECT table_name, column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = ?
		ORDER BY table_name, ordinal_position`,

	PrimaryKeys: `SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = ?`,

	ForeignKeys: `SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = ?`,
}

// IntrospectSchema returns the tables and views of the configured schema.
func (c *DuckDBConnector) IntrospectSchema(ctx context.Context, opts connector.IntrospectOptions) (model.SchemaInfo, error) {
	db := c.DB()
	if db == nil {
		return model.SchemaInfo{}, sqldb.ErrNotConnected
	}

	cat, err := sqldb.LoadCatalog(ctx, db, catalogQueries, c.schemaName)
	if err != nil {
		return model.SchemaInfo{}, err
	}
	schema := cat.Build()

	if opts.IncludeData {
		c.AddSampleData(ctx, &schema, opts.SampleRows)
	}
	return schema, nil
}
