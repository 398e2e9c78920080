// Package oracle implements connector.Connector for Oracle Database using the
// pure Go go-ora driver.
package oracle

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/sijms/go-ora/v2"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
	"github.com/promptelt/promptelt/internal/model"
)

// OracleConnector implements connector.Connector for Oracle.
type OracleConnector struct {
	sqldb.Base
	owner string
}

// New creates a new OracleConnector.
func New() connector.Connector {
	return &OracleConnector{
		Base: sqldb.NewBase(sqldb.Dialect{
			Limit: func(table string, n int) string {
				return fmt.Sprintf("SELECT * FROM %s FETCH FIRST %d ROWS ONLY", table, n)
			},
		}),
	}
}

// Connect opens a pool for an oracle:// DSN. Without cfg.SchemaName the
// objects owned by the connecting user are introspected.
func (c *OracleConnector) Connect(ctx context.Context, cfg connector.ConnectionConfig) error {
	if err := c.Open(ctx, "oracle", cfg.DSN, cfg); err != nil {
		return err
	}

	c.owner = strings.ToUpper(cfg.SchemaName)
	if c.owner == "" {
		var user string
		if err := c.DB().GetContext(ctx, &user, "SELECT USER FROM DUAL"); err == nil {
			c.owner = user
		}
	}
	return nil
}

// DriverName returns the driver identifier for Oracle.
func (c *OracleConnector) DriverName() string { return "oracle" }

// Oracle upper-cases unquoted aliases and stores defaults as LONG, which
// the driver cannot compare; defaults are therefore not reported.
var catalogQueries = sqldb.CatalogQueries{
	Objects: `SELECT object_name AS "table_name",
			CASE object_type WHEN 'VIEW' THEN 'VIEW' ELSE 'BASE TABLE' END AS "table_type",
			CAST(NULL AS VARCHAR2(1)) AS "view_definition"
		FROM all_objects
		WHERE owner = :1 AND object_type IN ('TABLE', 'VIEW')
		ORDER BY object_name`,

	Columns: `SELECT
			table_name AS "table_name",
			column_name AS "column_name",
			CASE
				WHEN data_type = 'NUMBER' AND data_precision IS NOT NULL
					THEN 'NUMBER(' || data_precision || ',' || NVL(data_scale, 0) || ')'
				WHEN data_type IN ('VARCHAR2', 'NVARCHAR2', 'CHAR', 'NCHAR')
					THEN data_type || '(' || char_length || ')'
				ELSE data_type
			END AS "data_type",
			nullable AS "is_nullable",
			CAST(NULL AS VARCHAR2(1)) AS "column_default"
		FROM all_tab_columns
		WHERE owner = :1
		ORDER BY table_name, column_id`,

	PrimaryKeys: `SELECT cc.table_name AS "table_name", cc.column_name AS "column_name"
		FROM all_constraints c
		JOIN all_cons_columns cc
			ON cc.owner = c.owner AND cc.constraint_name = c.constraint_name
		WHERE c.constraint_type = 'P' AND c.owner = :1`,

	ForeignKeys: `SELECT cc.table_name AS "table_name", cc.column_name AS "column_name"
		FROM all_constraints c
		JOIN all_cons_columns cc
			ON cc.owner = c.owner AND cc.constraint_name = c.constraint_name
		WHERE c.constraint_type = 'R' AND c.owner = :1`,

	Routines: `SELECT object_name AS "routine_name", CAST(NULL AS VARCHAR2(1)) AS "data_type"
		FROM all_objects
		WHERE owner = :1 AND object_type IN ('PROCEDURE', 'FUNCTION')
		ORDER BY object_name`,

	Params: `SELECT object_name AS "routine_name", argument_name AS "parameter_name",
			data_type AS "data_type", in_out AS "parameter_mode"
		FROM all_arguments
		WHERE owner = :1 AND package_name IS NULL
		ORDER BY object_name, position`,
}

// IntrospectSchema returns the tables, views and standalone routines owned
// by the configured schema.
func (c *OracleConnector) IntrospectSchema(ctx context.Context, opts connector.IntrospectOptions) (model.SchemaInfo, error) {
	db := c.DB()
	if db == nil {
		return model.SchemaInfo{}, sqldb.ErrNotConnected
	}

	cat, err := sqldb.LoadCatalog(ctx, db, catalogQueries, c.owner)
	if err != nil {
		return model.SchemaInfo{}, err
	}
	schema := cat.Build()

	if opts.IncludeData {
		c.AddSampleData(ctx, &schema, opts.SampleRows)
	}
	return schema, nil
}
