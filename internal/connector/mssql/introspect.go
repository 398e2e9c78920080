package mssql

import (
	"context"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
	"github.com/promptelt/promptelt/internal/model"
)

var catalogQueries = sqldb.CatalogQueries{
	Objects: `SELECT t.TABLE_NAME AS table_name, t.TABLE_TYPE AS table_type, v.VIEW_DEFINITION AS view_definition
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN INFORMATION_SCHEMA.VIEWS v
			ON v.TABLE_SCHEMA = t.TABLE_SCHEMA AND v.TABLE_NAME = t.TABLE_NAME
		WHERE t.TABLE_SCHEMA = @p1
		ORDER BY t.TABLE_NAME`,

	Columns: `SELECT
			c.TABLE_NAME AS table_name,
			c.COLUMN_NAME AS column_name,
			CASE
				WHEN c.CHARACTER_MAXIMUM_LENGTH = -1 THEN c.DATA_TYPE + '(max)'
				WHEN c.CHARACTER_MAXIMUM_LENGTH IS NOT NULL
					THEN c.DATA_TYPE + '(' + CAST(c.CHARACTER_MAXIMUM_LENGTH AS varchar(10)) + ')'
				WHEN c.DATA_TYPE IN ('decimal', 'numeric')
					THEN c.DATA_TYPE + '(' + CAST(c.NUMERIC_PRECISION AS varchar(10)) + ',' + CAST(c.NUMERIC_SCALE AS varchar(10)) + ')'
				ELSE c.DATA_TYPE
			END AS data_type,
			c.IS_NULLABLE AS is_nullable,
			c.COLUMN_DEFAULT AS column_default
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = @p1
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,

	PrimaryKeys: `SELECT kcu.TABLE_NAME AS table_name, kcu.COLUMN_NAME AS column_name
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
			AND tc.TABLE_SCHEMA = @p1`,

	ForeignKeys: `SELECT fk_tab.name AS table_name, fk_col.name AS column_name
		FROM sys.foreign_key_columns fkc
		JOIN sys.tables fk_tab ON fkc.parent_object_id = fk_tab.object_id
		JOIN sys.columns fk_col ON fkc.parent_object_id = fk_col.object_id AND fkc.parent_column_id = fk_col.column_id
		JOIN sys.schemas s ON fk_tab.schema_id = s.schema_id
		WHERE s.name = @p1`,

	Routines: `SELECT ROUTINE_NAME AS routine_name, DATA_TYPE AS data_type
		FROM INFORMATION_SCHEMA.ROUTINES
		WHERE ROUTINE_SCHEMA = @p1
		ORDER BY ROUTINE_NAME`,

	// PARAMETER_NAME keeps its leading "@"; Build strips it.
	Params: `SELECT SPECIFIC_NAME AS routine_name, PARAMETER_NAME AS parameter_name,
			DATA_TYPE AS data_type, PARAMETER_MODE AS parameter_mode
		FROM INFORMATION_SCHEMA.PARAMETERS
		WHERE SPECIFIC_SCHEMA = @p1
		ORDER BY SPECIFIC_NAME, ORDINAL_POSITION`,
}

// IntrospectSchema returns the tables, views and routines of the configured
// schema.
func (c *MSSQLConnector) IntrospectSchema(ctx context.Context, opts connector.IntrospectOptions) (model.SchemaInfo, error) {
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
