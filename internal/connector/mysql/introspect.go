package mysql

import (
	"context"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
	"github.com/promptelt/promptelt/internal/model"
)

// INFORMATION_SCHEMA columns come back upper-case, so every query aliases
// them to the lower-case names sqlx maps.
var catalogQueries = sqldb.CatalogQueries{
	Objects: `SELECT t.TABLE_NAME AS table_name, t.TABLE_TYPE AS table_type, v.VIEW_DEFINITION AS view_definition
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN INFORMATION_SCHEMA.VIEWS v
			ON v.TABLE_SCHEMA = t.TABLE_SCHEMA AND v.TABLE_NAME = t.TABLE_NAME
		WHERE t.TABLE_SCHEMA = ?
		ORDER BY t.TABLE_NAME`,

	// COLUMN_TYPE carries length and precision, e.g. decimal(10,2).
	Columns: `SELECT
			c.TABLE_NAME AS table_name,
			c.COLUMN_NAME AS column_name,
			c.COLUMN_TYPE AS data_type,
			c.IS_NULLABLE AS is_nullable,
			c.COLUMN_DEFAULT AS column_default
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = ?
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,

	PrimaryKeys: `SELECT TABLE_NAME AS table_name, COLUMN_NAME AS column_name
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND CONSTRAINT_NAME = 'PRIMARY'`,

	ForeignKeys: `SELECT TABLE_NAME AS table_name, COLUMN_NAME AS column_name
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL`,

	Routines: `SELECT ROUTINE_NAME AS routine_name, NULLIF(DATA_TYPE, '') AS data_type
		FROM INFORMATION_SCHEMA.ROUTINES
		WHERE ROUTINE_SCHEMA = ?
		ORDER BY ROUTINE_NAME`,

	Params: `SELECT SPECIFIC_NAME AS routine_name, PARAMETER_NAME AS parameter_name,
			DATA_TYPE AS data_type, PARAMETER_MODE AS parameter_mode
		FROM INFORMATION_SCHEMA.PARAMETERS
		WHERE SPECIFIC_SCHEMA = ?
		ORDER BY SPECIFIC_NAME, ORDINAL_POSITION`,
}

// IntrospectSchema returns the tables, views and routines of the current
// database.
func (c *MySQLConnector) IntrospectSchema(ctx context.Context, opts connector.IntrospectOptions) (model.SchemaInfo, error) {
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
