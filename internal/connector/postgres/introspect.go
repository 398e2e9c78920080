package postgres

import (
	"context"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
	"github.com/promptelt/promptelt/internal/model"
)

var catalogQueries = sqldb.CatalogQueries{
	Objects: `SELECT t.table_name, t.table_type, v.view_definition
		FROM information_schema.tables t
		LEFT JOIN information_schema.views v
			ON v.table_schema = t.table_schema AND v.table_name = t.table_name
		WHERE t.table_schema = $1
		ORDER BY t.table_name`,

	// Parameterized types keep their length or precision so that a change
	// from numeric(10,2) to numeric(12,2) is visible to schema diffs.
	Columns: `SELECT
			c.table_name,
			c.column_name,
			CASE
				WHEN c.data_type IN ('USER-DEFINED', 'ARRAY') THEN c.udt_name
				WHEN c.character_maximum_length IS NOT NULL
					THEN c.data_type || '(' || c.character_maximum_length || ')'
				WHEN c.data_type = 'numeric' AND c.numeric_precision IS NOT NULL
					THEN 'numeric(' || c.numeric_precision || ',' || COALESCE(c.numeric_scale, 0) || ')'
				ELSE c.data_type
			END AS data_type,
			c.is_nullable,
			c.column_default
		FROM information_schema.columns c
		WHERE c.table_schema = $1
		ORDER BY c.table_name, c.ordinal_position`,

	PrimaryKeys: `SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1`,

	ForeignKeys: `SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1`,

	Routines: `SELECT routine_name, data_type
		FROM information_schema.routines
		WHERE routine_schema = $1
		ORDER BY routine_name`,

	Params: `SELECT r.routine_name, p.parameter_name, p.data_type, p.parameter_mode
		FROM information_schema.parameters p
		JOIN information_schema.routines r
			ON r.specific_schema = p.specific_schema AND r.specific_name = p.specific_name
		WHERE p.specific_schema = $1
		ORDER BY r.routine_name, p.ordinal_position`,
}

// IntrospectSchema returns the tables, views and routines of the configured
// schema.
func (c *PostgresConnector) IntrospectSchema(ctx context.Context, opts connector.IntrospectOptions) (model.SchemaInfo, error) {
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
