package snapshot

import (
	"time"

	"github.com/promptelt/promptelt/internal/model"
)

// Diff compares two schemas table by table and column by column. Changes are
// emitted in a fixed order: added tables (new schema order), removed tables
// (old schema order), then for each table present in both, in new schema
// order, its added, removed and modified columns. Every change is stamped
// with at.
func Diff(old, new model.SchemaInfo, at time.Time) []Change {
	changes := []Change{}

	oldTables := make(map[string]model.TableInfo, len(old.Tables))
	for _, t := range old.Tables {
		oldTables[t.Name] = t
	}
	newTables := make(map[string]model.TableInfo, len(new.Tables))
	for _, t := range new.Tables {
		newTables[t.Name] = t
	}

	for _, t := range new.Tables {
		if _, exists := oldTables[t.Name]; !exists {
			changes = append(changes, Change{
				Type:      TableAdded,
				Severity:  SeverityAdditive,
				TableName: t.Name,
				Timestamp: at,
			})
		}
	}

	for _, t := range old.Tables {
		if _, exists := newTables[t.Name]; !exists {
			changes = append(changes, Change{
				Type:      TableRemoved,
				Severity:  SeverityBreaking,
				TableName: t.Name,
				Timestamp: at,
			})
		}
	}

	for _, newTable := range new.Tables {
		oldTable, exists := oldTables[newTable.Name]
		if !exists {
			continue
		}
		changes = append(changes, diffColumns(newTable.Name, oldTable.Columns, newTable.Columns, at)...)
	}

	return changes
}

func diffColumns(table string, oldCols, newCols []model.ColumnInfo, at time.Time) []Change {
	var changes []Change

	oldByName := make(map[string]model.ColumnInfo, len(oldCols))
	for _, c := range oldCols {
		oldByName[c.Name] = c
	}
	newByName := make(map[string]model.ColumnInfo, len(newCols))
	for _, c := range newCols {
		newByName[c.Name] = c
	}

	for _, c := range newCols {
		if _, exists := oldByName[c.Name]; !exists {
			col := c
			changes = append(changes, Change{
				Type:       ColumnAdded,
				Severity:   SeverityAdditive,
				TableName:  table,
				ColumnName: c.Name,
				NewValue:   &col,
				Timestamp:  at,
			})
		}
	}

	for _, c := range oldCols {
		if _, exists := newByName[c.Name]; !exists {
			col := c
			changes = append(changes, Change{
				Type:       ColumnRemoved,
				Severity:   SeverityBreaking,
				TableName:  table,
				ColumnName: c.Name,
				OldValue:   &col,
				Timestamp:  at,
			})
		}
	}

	for _, newCol := range newCols {
		oldCol, exists := oldByName[newCol.Name]
		if !exists || !columnChanged(oldCol, newCol) {
			continue
		}
		o, n := oldCol, newCol
		changes = append(changes, Change{
			Type:       ColumnModified,
			Severity:   modificationSeverity(oldCol, newCol),
			TableName:  table,
			ColumnName: newCol.Name,
			OldValue:   &o,
			NewValue:   &n,
			Timestamp:  at,
		})
	}

	return changes
}

// columnChanged reports a difference in type, nullability, primary-key flag
// or default value. Foreign-key flags are informational and not compared.
func columnChanged(a, b model.ColumnInfo) bool {
	return a.Type != b.Type ||
		a.Nullable != b.Nullable ||
		a.PrimaryKey != b.PrimaryKey ||
		!sameDefault(a.DefaultValue, b.DefaultValue)
}

func sameDefault(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// A modification is additive only when it relaxes NOT NULL or changes the
// default; anything touching type or key is breaking.
func modificationSeverity(a, b model.ColumnInfo) Severity {
	if a.Type != b.Type || a.PrimaryKey != b.PrimaryKey {
		return SeverityBreaking
	}
	if !a.Nullable && b.Nullable {
		return SeverityAdditive
	}
	if a.Nullable && !b.Nullable {
		return SeverityBreaking
	}
	return SeverityAdditive
}
