package snowflake

import (
	"context"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
	"github.com/promptelt/promptelt/internal/model"
)

// Snowflake upper-cases unquoted aliases, so aliases are quoted to match the
// lower-case names sqlx maps. Snowflake does not enforce key constraints and
// exposes no KEY_COLUMN_USAGE view; key flags are left unset.
var catalogQueries = sqldb.CatalogQueries{
	Objects: `SELECT t.TABLE_NAME AS "table_name", t.TABLE_TYPE AS "table_type", v.VIEW_DEFINITION AS "view_definition"
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN INFORMATION_SCHEMA.VIEWS v
			ON v.TABLE_SCHEMA = t.TABLE_SCHEMA AND v.TABLE_NAME = t.TABLE_NAME
		WHERE t.TABLE_SCHEMA = ?
		ORDER BY t.TABLE_NAME`,

	Columns: `SELECT
			c.TABLE_NAME AS "table_name",
			c.COLUMN_NAME AS "column_name",
			CASE
				WHEN c.DATA_TYPE = 'NUMBER' AND c.NUMERIC_PRECISION IS NOT NULL
					THEN 'NUMBER(' || c.NUMERIC_PRECISION || ',' || COALESCE(c.NUMERIC_SCALE, 0) || ')'
				WHEN c.CHARACTER_MAXIMUM_LENGTH IS NOT NULL
					THEN c.DATA_TYPE || '(' || c.CHARACTER_MAXIMUM_LENGTH || ')'
				ELSE c.DATA_TYPE
			END AS "data_type",
			c.IS_NULLABLE AS "is_nullable",
			c.COLUMN_DEFAULT AS "column_default"
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = ?
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,

	Routines: `SELECT PROCEDURE_NAME AS "routine_name", DATA_TYPE AS "data_type"
		FROM INFORMATION_SCHEMA.PROCEDURES
		WHERE PROCEDURE_SCHEMA = ?
		ORDER BY PROCEDURE_NAME`,
}

// IntrospectSchema returns the tables, views and procedures of the
// configured schema.
func (c *SnowflakeConnector) IntrospectSchema(ctx context.Context, opts connector.IntrospectOptions) (model.SchemaInfo, error) {
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
