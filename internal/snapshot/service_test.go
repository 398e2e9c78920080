package snapshot

import (
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/promptelt/promptelt/internal/model"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	clock := &stepClock{t: time.Date(2024, 5, 7, 9, 30, 0, 0, time.UTC)}
	return NewService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(clock.Now))
}

func ordersSchema(totalType string) model.SchemaInfo {
	return model.SchemaInfo{
		Tables: []model.TableInfo{
			{Name: "users", Columns: []model.ColumnInfo{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "email", Type: "VARCHAR(255)"},
			}},
			{Name: "orders", Columns: []model.ColumnInfo{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "total", Type: totalType, Nullable: false},
			}},
		},
	}
}

func TestCaptureAssignsIdentity(t *testing.T) {
	s := newTestService(t, Config{})

	a := s.Capture(1, ordersSchema("DECIMAL(10,2)"))
	b := s.Capture(1, ordersSchema("DECIMAL(10,2)"))

	if a.ID == b.ID {
		t.Errorf("snapshot ids must be unique, both %q", a.ID)
	}
	if !regexp.MustCompile(`^1-\d+-\d+$`).MatchString(a.ID) {
		t.Errorf("unexpected id format %q", a.ID)
	}
	if a.Version != "v2024.05.07-0930" {
		t.Errorf("Version = %q, want v2024.05.07-0930", a.Version)
	}
	if len(a.Checksum) != 16 {
		t.Errorf("Checksum %q should be 16 hex chars", a.Checksum)
	}
	if a.Checksum != b.Checksum {
		t.Error("identical schemas must have identical checksums")
	}
	if c := s.Capture(1, ordersSchema("DECIMAL(12,2)")); c.Checksum == a.Checksum {
		t.Error("different schemas should have different checksums")
	}
	if got := len(s.History(1, 100)); got != 3 {
		t.Errorf("identical captures must not be deduplicated, history has %d", got)
	}
}

func TestDiffIdenticalIsEmpty(t *testing.T) {
	s := newTestService(t, Config{})
	a := s.Capture(1, ordersSchema("DECIMAL(10,2)"))

	changes, err := s.DiffSnapshots(a.ID, a.ID)
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("expected no changes, got %+v", changes)
	}
}

func TestDiffColumnModified(t *testing.T) {
	s := newTestService(t, Config{})
	a := s.Capture(1, ordersSchema("DECIMAL(10,2)"))
	b := s.Capture(1, ordersSchema("DECIMAL(12,2)"))

	changes, err := s.DiffSnapshots(a.ID, b.ID)
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d: %+v", len(changes), changes)
	}
	c := changes[0]
	if c.Type != ColumnModified || c.TableName != "orders" || c.ColumnName != "total" {
		t.Errorf("unexpected change %+v", c)
	}
	if c.OldValue == nil || c.OldValue.Type != "DECIMAL(10,2)" {
		t.Errorf("OldValue = %+v", c.OldValue)
	}
	if c.NewValue == nil || c.NewValue.Type != "DECIMAL(12,2)" {
		t.Errorf("NewValue = %+v", c.NewValue)
	}
	if c.Severity != SeverityBreaking {
		t.Errorf("type change severity = %s, want breaking", c.Severity)
	}
}

func TestDiffTableAdded(t *testing.T) {
	s := newTestService(t, Config{})
	before := ordersSchema("DECIMAL(10,2)")
	after := ordersSchema("DECIMAL(10,2)")
	after.Tables = append(after.Tables, model.TableInfo{
		Name:    "shipments",
		Columns: []model.ColumnInfo{{Name: "id", Type: "INTEGER", PrimaryKey: true}},
	})

	a := s.Capture(1, before)
	b := s.Capture(1, after)

	changes, err := s.DiffSnapshots(a.ID, b.ID)
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}
	if len(changes) != 1 || changes[0].Type != TableAdded || changes[0].TableName != "shipments" {
		t.Errorf("expected single table_added for shipments, got %+v", changes)
	}
}

func TestDiffSnapshotsNotFound(t *testing.T) {
	s := newTestService(t, Config{})
	a := s.Capture(1, ordersSchema("INT"))

	if _, err := s.DiffSnapshots(a.ID, "1-0-999"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
	if _, err := s.DiffSnapshots("missing", a.ID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestDiffSnapshotsAcrossDatabases(t *testing.T) {
	s := newTestService(t, Config{})
	a := s.Capture(1, ordersSchema("INT"))
	b := s.Capture(2, model.SchemaInfo{Tables: []model.TableInfo{}})

	changes, err := s.DiffSnapshots(a.ID, b.ID)
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}
	if len(changes) != 2 {
		t.Errorf("expected 2 table_removed changes, got %+v", changes)
	}
}

func TestHistoryCap(t *testing.T) {
	s := newTestService(t, Config{})

	var ids []string
	for i := 0; i < 55; i++ {
		ids = append(ids, s.Capture(7, ordersSchema("INT")).ID)
	}

	h := s.History(7, 100)
	if len(h) != 50 {
		t.Fatalf("retained %d snapshots, want 50", len(h))
	}
	if h[0].ID != ids[54] {
		t.Errorf("most recent = %s, want %s", h[0].ID, ids[54])
	}
	if h[49].ID != ids[5] {
		t.Errorf("oldest retained = %s, want %s", h[49].ID, ids[5])
	}
	latest, ok := s.Latest(7)
	if !ok || latest.ID != ids[54] {
		t.Errorf("Latest = %s, want %s", latest.ID, ids[54])
	}
	for _, id := range ids[:5] {
		if _, err := s.Get(id); !errors.Is(err, ErrSnapshotNotFound) {
			t.Errorf("snapshot %s should have been discarded", id)
		}
	}
}

func TestHistoryDefaultLimit(t *testing.T) {
	s := newTestService(t, Config{})
	for i := 0; i < 12; i++ {
		s.Capture(1, ordersSchema("INT"))
	}
	if got := len(s.History(1, 0)); got != 10 {
		t.Errorf("History(1, 0) returned %d, want 10", got)
	}
	if got := len(s.History(99, 5)); got != 0 {
		t.Errorf("History of unknown database returned %d", got)
	}
}

func TestCompareWithLatest(t *testing.T) {
	s := newTestService(t, Config{})

	if changes := s.CompareWithLatest(1, ordersSchema("INT")); len(changes) != 0 {
		t.Errorf("first comparison must be empty, got %+v", changes)
	}

	s.Capture(1, ordersSchema("INT"))
	next := ordersSchema("INT")
	next.Tables[0].Columns = append(next.Tables[0].Columns, model.ColumnInfo{Name: "created_at", Type: "TIMESTAMP", Nullable: true})

	changes := s.CompareWithLatest(1, next)
	if len(changes) != 1 || changes[0].Type != ColumnAdded || changes[0].ColumnName != "created_at" {
		t.Errorf("expected column_added created_at, got %+v", changes)
	}
}

func TestChangesWalksAdjacentPairs(t *testing.T) {
	s := newTestService(t, Config{})

	s1 := ordersSchema("INT")
	s2 := ordersSchema("BIGINT")
	s3 := ordersSchema("BIGINT")
	s3.Tables = s3.Tables[:1]

	s.Capture(1, s1)
	mid := s.Capture(1, s2)
	s.Capture(1, s3)

	all := s.Changes(1, time.Time{})
	if len(all) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(all), all)
	}
	if all[0].Type != TableRemoved || all[0].TableName != "orders" {
		t.Errorf("newest change = %+v, want table_removed orders", all[0])
	}
	if all[1].Type != ColumnModified || all[1].ColumnName != "total" {
		t.Errorf("older change = %+v, want column_modified total", all[1])
	}

	recent := s.Changes(1, mid.Timestamp.Add(time.Millisecond))
	if len(recent) != 1 || recent[0].Type != TableRemoved {
		t.Errorf("Changes since mid = %+v, want only table_removed", recent)
	}
}

func TestStats(t *testing.T) {
	s := newTestService(t, Config{})
	if st := s.Stats(); st.TotalSnapshots != 0 || st.OldestSnapshot != nil {
		t.Errorf("empty stats = %+v", st)
	}

	first := s.Capture(1, ordersSchema("INT"))
	s.Capture(2, ordersSchema("INT"))
	last := s.Capture(1, ordersSchema("INT"))

	st := s.Stats()
	if st.TotalSnapshots != 3 || st.DatabaseCount != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.OldestSnapshot == nil || !st.OldestSnapshot.Equal(first.Timestamp) {
		t.Errorf("OldestSnapshot = %v, want %v", st.OldestSnapshot, first.Timestamp)
	}
	if st.NewestSnapshot == nil || !st.NewestSnapshot.Equal(last.Timestamp) {
		t.Errorf("NewestSnapshot = %v, want %v", st.NewestSnapshot, last.Timestamp)
	}
}

func TestExportImport(t *testing.T) {
	src := newTestService(t, Config{})
	snap := src.Capture(3, ordersSchema("INT"))

	data, err := src.Export(snap.ID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := newTestService(t, Config{})
	imported, err := dst.Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if imported.ID != snap.ID || imported.Checksum != snap.Checksum {
		t.Errorf("imported %+v, want id %s checksum %s", imported, snap.ID, snap.Checksum)
	}
	latest, ok := dst.Latest(3)
	if !ok || latest.ID != snap.ID {
		t.Errorf("imported snapshot should be latest, got %v", latest.ID)
	}

	if _, err := dst.Import(data); err == nil {
		t.Error("expected duplicate import to fail")
	}
	if _, err := dst.Import([]byte(`{"id":"x"}`)); err == nil {
		t.Error("expected validation error for incomplete snapshot")
	}
	if _, err := src.Export("nope"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Export of unknown id: %v", err)
	}
}

func TestCaptureIsolatesSchema(t *testing.T) {
	s := newTestService(t, Config{})
	schema := ordersSchema("INT")
	s.Capture(1, schema)

	schema.Tables[0].Name = "mutated"

	latest, _ := s.Latest(1)
	if latest.Schema.Tables[0].Name != "users" {
		t.Errorf("stored schema changed through caller: %q", latest.Schema.Tables[0].Name)
	}
}
