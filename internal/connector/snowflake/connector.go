package snowflake

import (
	"context"
	"fmt"

	_ "github.com/snowflakedb/gosnowflake"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
)

// SnowflakeConnector implements connector.Connector for Snowflake.
type SnowflakeConnector struct {
	sqldb.Base
	schemaName string
}

// New creates a new SnowflakeConnector introspecting the PUBLIC schema.
func New() connector.Connector {
	return &SnowflakeConnector{
		Base:       sqldb.NewBase(sqldb.Dialect{}),
		schemaName: "PUBLIC",
	}
}

// Connect opens a Snowflake pool. With cfg.PrivateKeyPath set the
// connector authenticates with a key pair (JWT) instead of a password.
func (c *SnowflakeConnector) Connect(ctx context.Context, cfg connector.ConnectionConfig) error {
	dsn := cfg.DSN
	if cfg.PrivateKeyPath != "" {
		var err error
		dsn, err = buildJWTDSN(cfg.DSN, cfg.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("snowflake jwt auth: %w", err)
		}
	}
	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}
	return c.Open(ctx, "snowflake", dsn, cfg)
}

// DriverName returns the driver identifier for Snowflake.
func (c *SnowflakeConnector) DriverName() string { return "snowflake" }
