// Package snapshot keeps a bounded, ordered history of schema captures per
// database and computes structural diffs between captures.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/telemetry"
)

// DefaultHistoryLimit is the number of snapshots retained per database.
const DefaultHistoryLimit = 50

// Config controls snapshot retention.
type Config struct {
	HistoryLimit int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service stores schema snapshots in memory. It is safe for concurrent use.
type Service struct {
	limit  int
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	history map[int64][]Snapshot // oldest first
	seq     uint64
}

// NewService creates an empty snapshot service.
func NewService(cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		limit:   cfg.HistoryLimit,
		logger:  logger.With("component", "snapshot"),
		now:     time.Now,
		history: make(map[int64][]Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture records schema as the newest snapshot of databaseID. Identical
// consecutive schemas are still recorded so the history reflects every
// capture time. The oldest snapshot is dropped once the limit is exceeded.
func (s *Service) Capture(databaseID int64, schema model.SchemaInfo) Snapshot {
	ts := s.now()
	stored := copySchema(schema)

	s.mu.Lock()
	s.seq++
	snap := Snapshot{
		ID:         fmt.Sprintf("%d-%d-%d", databaseID, ts.UnixMilli(), s.seq),
		DatabaseID: databaseID,
		Timestamp:  ts,
		Schema:     stored,
		Version:    versionLabel(ts),
		Checksum:   Checksum(stored),
	}
	h := append(s.history[databaseID], snap)
	if len(h) > s.limit {
		h = append([]Snapshot(nil), h[len(h)-s.limit:]...)
	}
	s.history[databaseID] = h
	s.mu.Unlock()

	telemetry.SnapshotCaptured()
	s.logger.Info("schema snapshot captured",
		"database_id", databaseID,
		"version", snap.Version,
		"checksum", snap.Checksum,
		"tables", len(schema.Tables),
	)
	return cloneSnapshot(snap)
}

// Latest returns the most recent snapshot of databaseID.
func (s *Service) Latest(databaseID int64) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[databaseID]
	if len(h) == 0 {
		return Snapshot{}, false
	}
	return cloneSnapshot(h[len(h)-1]), true
}

// CompareWithLatest diffs the latest snapshot of databaseID against
// newSchema. Without a prior snapshot there is nothing to compare against
// and the result is empty.
func (s *Service) CompareWithLatest(databaseID int64, newSchema model.SchemaInfo) []Change {
	latest, ok := s.Latest(databaseID)
	if !ok {
		return []Change{}
	}
	return Diff(latest.Schema, newSchema, s.now())
}

// DiffSnapshots diffs two snapshots by id, searching every database history.
// fromID is treated as the old side.
func (s *Service) DiffSnapshots(fromID, toID string) ([]Change, error) {
	s.mu.Lock()
	from, okFrom := s.findLocked(fromID)
	to, okTo := s.findLocked(toID)
	s.mu.Unlock()

	if !okFrom {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, fromID)
	}
	if !okTo {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, toID)
	}
	return Diff(from.Schema, to.Schema, s.now()), nil
}

// Get returns the snapshot with the given id.
func (s *Service) Get(id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.findLocked(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return cloneSnapshot(snap), nil
}

// History returns up to limit snapshots of databaseID, most recent first.
// limit <= 0 means 10.
func (s *Service) History(databaseID int64, limit int) []Snapshot {
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	h := s.history[databaseID]
	out := make([]Snapshot, 0, min(limit, len(h)))
	for i := len(h) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneSnapshot(h[i]))
	}
	s.mu.Unlock()
	return out
}

// Changes walks the history of databaseID from newest to oldest, diffing
// each snapshot against its predecessor, and stops at the first snapshot
// captured before since. A zero since walks the whole history. Each change
// carries the capture time of the newer snapshot; the result is ordered
// newest first.
func (s *Service) Changes(databaseID int64, since time.Time) []Change {
	s.mu.Lock()
	h := append([]Snapshot(nil), s.history[databaseID]...)
	s.mu.Unlock()

	changes := []Change{}
	for i := len(h) - 1; i > 0; i-- {
		newer, older := h[i], h[i-1]
		if !since.IsZero() && newer.Timestamp.Before(since) {
			break
		}
		changes = append(changes, Diff(older.Schema, newer.Schema, newer.Timestamp)...)
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Timestamp.After(changes[j].Timestamp)
	})
	return changes
}

// Stats summarizes all retained histories.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	for _, h := range s.history {
		if len(h) == 0 {
			continue
		}
		st.DatabaseCount++
		st.TotalSnapshots += len(h)
		for i := range h {
			ts := h[i].Timestamp
			if st.OldestSnapshot == nil || ts.Before(*st.OldestSnapshot) {
				st.OldestSnapshot = &ts
			}
			if st.NewestSnapshot == nil || ts.After(*st.NewestSnapshot) {
				st.NewestSnapshot = &ts
			}
		}
	}
	return st
}

// Export returns the JSON encoding of one snapshot.
func (s *Service) Export(id string) ([]byte, error) {
	snap, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot %s: %w", id, err)
	}
	return b, nil
}

// Import adds a previously exported snapshot to its database history. The
// history stays ordered by timestamp and is trimmed to the retention limit,
// so importing a snapshot older than every retained one is a no-op.
func (s *Service) Import(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.ID == "" || snap.DatabaseID == 0 || snap.Schema.Tables == nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot: id, databaseId and schema.tables are required")
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.now()
	}
	if snap.Version == "" {
		snap.Version = versionLabel(snap.Timestamp)
	}
	if snap.Checksum == "" {
		snap.Checksum = Checksum(snap.Schema)
	}

	s.mu.Lock()
	if _, exists := s.findLocked(snap.ID); exists {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("snapshot %s already exists", snap.ID)
	}
	h := append(s.history[snap.DatabaseID], snap)
	sort.SliceStable(h, func(i, j int) bool { return h[i].Timestamp.Before(h[j].Timestamp) })
	if len(h) > s.limit {
		h = append([]Snapshot(nil), h[len(h)-s.limit:]...)
	}
	s.history[snap.DatabaseID] = h
	s.mu.Unlock()

	s.logger.Info("schema snapshot imported", "id", snap.ID, "database_id", snap.DatabaseID)
	return cloneSnapshot(snap), nil
}

// Forget drops the whole history of databaseID.
func (s *Service) Forget(databaseID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history[databaseID])
	delete(s.history, databaseID)
	return n
}

func (s *Service) findLocked(id string) (Snapshot, bool) {
	for _, h := range s.history {
		for i := range h {
			if h[i].ID == id {
				return h[i], true
			}
		}
	}
	return Snapshot{}, false
}

func cloneSnapshot(snap Snapshot) Snapshot {
	snap.Schema = copySchema(snap.Schema)
	return snap
}

// copySchema isolates stored schemas from caller mutation. On a copy
// failure the original value is returned.
func copySchema(schema model.SchemaInfo) (out model.SchemaInfo) {
	defer func() {
		if rec := recover(); rec != nil {
			out = schema
		}
	}()
	if cp, ok := deepcopy.Copy(schema).(model.SchemaInfo); ok {
		return cp
	}
	return schema
}
