package mysql

import (
	"context"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
)

// MySQLConnector implements connector.Connector for MySQL and MariaDB.
type MySQLConnector struct {
	sqldb.Base
	schemaName string
}

// New creates a new MySQLConnector.
func New() connector.Connector {
	return &MySQLConnector{Base: sqldb.NewBase(sqldb.Dialect{Quote: quoteIdentifier})}
}

// Connect opens a pool for the DSN. Without cfg.SchemaName the current
// database of the connection is introspected.
func (c *MySQLConnector) Connect(ctx context.Context, cfg connector.ConnectionConfig) error {
	if err := c.Open(ctx, "mysql", cfg.DSN, cfg); err != nil {
		return err
	}

	c.schemaName = cfg.SchemaName
	if c.schemaName == "" {
		var dbName string
		if err := c.DB().GetContext(ctx, &dbName, "SELECT DATABASE()"); err == nil && dbName != "" {
			c.schemaName = dbName
		}
	}
	return nil
}

// DriverName returns the driver identifier for MySQL.
func (c *MySQLConnector) DriverName() string { return "mysql" }

// quoteIdentifier wraps a MySQL identifier in backticks.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
