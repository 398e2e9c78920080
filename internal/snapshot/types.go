package snapshot

import (
	"errors"
	"time"

	"github.com/promptelt/promptelt/internal/model"
)

// ErrSnapshotNotFound is returned when a snapshot id is not present in any
// database history.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is one captured schema of a database.
type Snapshot struct {
	ID         string           `json:"id"`
	DatabaseID int64            `json:"databaseId"`
	Timestamp  time.Time        `json:"timestamp"`
	Schema     model.SchemaInfo `json:"schema"`
	Version    string           `json:"version"`  // vYYYY.MM.DD-HHMM of capture time
	Checksum   string           `json:"checksum"` // see Checksum
}

// ChangeType names a kind of structural schema change.
type ChangeType string

const (
	TableAdded     ChangeType = "table_added"
	TableRemoved   ChangeType = "table_removed"
	ColumnAdded    ChangeType = "column_added"
	ColumnRemoved  ChangeType = "column_removed"
	ColumnModified ChangeType = "column_modified"
)

// Severity classifies a change by its impact on existing queries.
type Severity string

const (
	// SeverityAdditive changes leave existing queries valid.
	SeverityAdditive Severity = "additive"
	// SeverityBreaking changes can make existing queries fail or return
	// differently typed data.
	SeverityBreaking Severity = "breaking"
)

// Change is a single structural difference between two schemas.
// OldValue is set for removed and modified columns, NewValue for added and
// modified columns.
type Change struct {
	Type       ChangeType        `json:"type"`
	Severity   Severity          `json:"severity"`
	TableName  string            `json:"tableName"`
	ColumnName string            `json:"columnName,omitempty"`
	OldValue   *model.ColumnInfo `json:"oldValue,omitempty"`
	NewValue   *model.ColumnInfo `json:"newValue,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Stats summarizes the retained snapshot histories.
type Stats struct {
	TotalSnapshots int        `json:"totalSnapshots"`
	DatabaseCount  int        `json:"databaseCount"`
	OldestSnapshot *time.Time `json:"oldestSnapshot,omitempty"`
	NewestSnapshot *time.Time `json:"newestSnapshot,omitempty"`
}

// Summary counts changes by severity.
type Summary struct {
	Total         int  `json:"total"`
	AdditiveCount int  `json:"additiveCount"`
	BreakingCount int  `json:"breakingCount"`
	HasBreaking   bool `json:"hasBreaking"`
}

// Summarize counts the additive and breaking changes in changes.
func Summarize(changes []Change) Summary {
	s := Summary{Total: len(changes)}
	for _, c := range changes {
		switch c.Severity {
		case SeverityAdditive:
			s.AdditiveCount++
		case SeverityBreaking:
			s.BreakingCount++
		}
	}
	s.HasBreaking = s.BreakingCount > 0
	return s
}
