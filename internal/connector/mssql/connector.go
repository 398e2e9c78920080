package mssql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
)

// MSSQLConnector implements connector.Connector for SQL Server databases.
type MSSQLConnector struct {
	sqldb.Base
	schemaName string
}

// New creates a new MSSQLConnector introspecting the dbo schema.
func New() connector.Connector {
	return &MSSQLConnector{
		Base: sqldb.NewBase(sqldb.Dialect{
			Quote: quoteIdentifier,
			Limit: func(table string, n int) string {
				return fmt.Sprintf("SELECT TOP %d * FROM %s", n, table)
			},
		}),
		schemaName: "dbo",
	}
}

// Connect opens a sqlserver pool for the DSN.
func (c *MSSQLConnector) Connect(ctx context.Context, cfg connector.ConnectionConfig) error {
	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}
	return c.Open(ctx, "sqlserver", cfg.DSN, cfg)
}

// DriverName returns the driver identifier for SQL Server.
func (c *MSSQLConnector) DriverName() string { return "sqlserver" }

// quoteIdentifier wraps a SQL Server identifier in square brackets.
func quoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
