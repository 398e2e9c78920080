package sqldb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/promptelt/promptelt/internal/model"
)

// ObjectRow is a table or view from the catalog.
type ObjectRow struct {
	Name       string  `db:"table_name"`
	Type       string  `db:"table_type"` // BASE TABLE, VIEW, ...
	Definition *string `db:"view_definition"`
}

// ColumnRow is one column from the catalog, in ordinal order.
type ColumnRow struct {
	TableName  string  `db:"table_name"`
	Name       string  `db:"column_name"`
	Type       string  `db:"data_type"`
	IsNullable string  `db:"is_nullable"`
	Default    *string `db:"column_default"`
}

// KeyRow names a column that takes part in a primary or foreign key.
type KeyRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
}

// RoutineRow is a stored procedure or function.
type RoutineRow struct {
	Name       string  `db:"routine_name"`
	ReturnType *string `db:"data_type"`
}

// ParamRow is one routine parameter, in ordinal order.
type ParamRow struct {
	RoutineName string  `db:"routine_name"`
	Name        *string `db:"parameter_name"`
	Type        string  `db:"data_type"`
	Mode        *string `db:"parameter_mode"`
}

// Catalog gathers raw catalog rows; Build turns them into a SchemaInfo.
type Catalog struct {
	Objects     []ObjectRow
	Columns     []ColumnRow
	PrimaryKeys []KeyRow
	ForeignKeys []KeyRow
	Routines    []RoutineRow
	Params      []ParamRow
}

// Build assembles the schema. Tables and views keep catalog order; objects
// whose type contains "VIEW" become views.
func (c Catalog) Build() model.SchemaInfo {
	schema := EmptySchema()

	pk := keySet(c.PrimaryKeys)
	fk := keySet(c.ForeignKeys)

	cols := make(map[string][]model.ColumnInfo)
	for _, r := range c.Columns {
		k := r.TableName + "\x00" + r.Name
		cols[r.TableName] = append(cols[r.TableName], model.ColumnInfo{
			Name:         r.Name,
			Type:         r.Type,
			Nullable:     isYes(r.IsNullable) && !pk[k],
			PrimaryKey:   pk[k],
			ForeignKey:   fk[k],
			DefaultValue: r.Default,
		})
	}

	for _, o := range c.Objects {
		columns := cols[o.Name]
		if columns == nil {
			columns = []model.ColumnInfo{}
		}
		if strings.Contains(strings.ToUpper(o.Type), "VIEW") {
			def := ""
			if o.Definition != nil {
				def = strings.TrimSpace(*o.Definition)
			}
			schema.Views = append(schema.Views, model.ViewInfo{Name: o.Name, Definition: def, Columns: columns})
			continue
		}
		schema.Tables = append(schema.Tables, model.TableInfo{Name: o.Name, Columns: columns})
	}

	params := make(map[string][]model.ParameterInfo)
	for _, p := range c.Params {
		if p.Name == nil || *p.Name == "" {
			// Unnamed rows describe return values on some engines.
			continue
		}
		dir := "IN"
		if p.Mode != nil && *p.Mode != "" {
			dir = strings.ToUpper(strings.ReplaceAll(*p.Mode, "/", ""))
		}
		params[p.RoutineName] = append(params[p.RoutineName], model.ParameterInfo{
			Name:      strings.TrimPrefix(*p.Name, "@"),
			Type:      p.Type,
			Direction: dir,
			Required:  dir != "OUT",
		})
	}

	seen := make(map[string]bool, len(c.Routines))
	for _, r := range c.Routines {
		if seen[r.Name] {
			// Overloads collapse into one entry.
			continue
		}
		seen[r.Name] = true
		p := params[r.Name]
		if p == nil {
			p = []model.ParameterInfo{}
		}
		ret := ""
		if r.ReturnType != nil {
			ret = *r.ReturnType
		}
		schema.Procedures = append(schema.Procedures, model.ProcedureInfo{Name: r.Name, Parameters: p, ReturnType: ret})
	}
	sort.SliceStable(schema.Procedures, func(i, j int) bool {
		return schema.Procedures[i].Name < schema.Procedures[j].Name
	})

	return schema
}

func keySet(rows []KeyRow) map[string]bool {
	m := make(map[string]bool, len(rows))
	for _, r := range rows {
		m[r.TableName+"\x00"+r.ColumnName] = true
	}
	return m
}

func isYes(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "Y", "1", "TRUE":
		return true
	}
	return false
}

// CatalogQueries are the dialect-specific catalog statements. Each must
// select columns named after the db tags of the matching row type. Empty
// queries are skipped.
type CatalogQueries struct {
	Objects     string
	Columns     string
	PrimaryKeys string
	ForeignKeys string
	Routines    string
	Params      string
}

// LoadCatalog runs every query with args and collects the rows.
func LoadCatalog(ctx context.Context, db *sqlx.DB, q CatalogQueries, args ...interface{}) (Catalog, error) {
	var c Catalog
	steps := []struct {
		name  string
		query string
		dest  interface{}
	}{
		{"objects", q.Objects, &c.Objects},
		{"columns", q.Columns, &c.Columns},
		{"primary keys", q.PrimaryKeys, &c.PrimaryKeys},
		{"foreign keys", q.ForeignKeys, &c.ForeignKeys},
		{"routines", q.Routines, &c.Routines},
		{"routine parameters", q.Params, &c.Params},
	}
	for _, s := range steps {
		if s.query == "" {
			continue
		}
		if err := db.SelectContext(ctx, s.dest, s.query, args...); err != nil {
			return Catalog{}, fmt.Errorf("introspect %s: %w", s.name, err)
		}
	}
	return c, nil
}
