package sqlite

import (
	"context"
	"fmt"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/sqldb"
	"github.com/promptelt/promptelt/internal/model"
)

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// foreignKeyRow holds a row from PRAGMA foreign_key_list().
type foreignKeyRow struct {
	ID       int    `db:"id"`
	Seq      int    `db:"seq"`
	Table    string `db:"table"`
	From     string `db:"from"`
	To       string `db:"to"`
	OnUpdate string `db:"on_update"`
	OnDelete string `db:"on_delete"`
	Match    string `db:"match"`
}

type masterRow struct {
	Name string  `db:"name"`
	Type string  `db:"type"`
	SQL  *string `db:"sql"`
}

// IntrospectSchema returns all tables and views. SQLite has no stored
// procedures.
func (c *SQLiteConnector) IntrospectSchema(ctx context.Context, opts connector.IntrospectOptions) (model.SchemaInfo, error) {
	db := c.DB()
	if db == nil {
		return model.SchemaInfo{}, sqldb.ErrNotConnected
	}

	const query = `SELECT name, type, sql FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	var objects []masterRow
	if err := db.SelectContext(ctx, &objects, query); err != nil {
		return model.SchemaInfo{}, fmt.Errorf("introspect schema: %w", err)
	}

	schema := sqldb.EmptySchema()
	for _, obj := range objects {
		cols, err := c.columns(ctx, obj.Name)
		if err != nil {
			return model.SchemaInfo{}, err
		}
		if obj.Type == "view" {
			def := ""
			if obj.SQL != nil {
				def = *obj.SQL
			}
			schema.Views = append(schema.Views, model.ViewInfo{Name: obj.Name, Definition: def, Columns: cols})
			continue
		}
		schema.Tables = append(schema.Tables, model.TableInfo{Name: obj.Name, Columns: cols})
	}

	if opts.IncludeData {
		c.AddSampleData(ctx, &schema, opts.SampleRows)
	}
	return schema, nil
}

func (c *SQLiteConnector) columns(ctx context.Context, table string) ([]model.ColumnInfo, error) {
	db := c.DB()
	quoted := sqldb.ANSIQuote(table)

	var rows []tableInfoRow
	if err := db.SelectContext(ctx, &rows, fmt.Sprintf("PRAGMA table_info(%s)", quoted)); err != nil {
		return nil, fmt.Errorf("table_info for %q: %w", table, err)
	}

	var fks []foreignKeyRow
	if err := db.SelectContext(ctx, &fks, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoted)); err != nil {
		return nil, fmt.Errorf("foreign_key_list for %q: %w", table, err)
	}
	isFK := make(map[string]bool, len(fks))
	for _, fk := range fks {
		isFK[fk.From] = true
	}

	cols := make([]model.ColumnInfo, 0, len(rows))
	for _, r := range rows {
		isPK := r.PK > 0
		cols = append(cols, model.ColumnInfo{
			Name:         r.Name,
			Type:         r.Type,
			Nullable:     r.NotNull == 0 && !isPK,
			PrimaryKey:   isPK,
			ForeignKey:   isFK[r.Name],
			DefaultValue: r.Default,
		})
	}
	return cols, nil
}
