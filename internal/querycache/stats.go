package querycache

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Stats is a point-in-time summary of cache effectiveness.
type Stats struct {
	TotalEntries int   `json:"totalEntries"`
	TotalHits    int64 `json:"totalHits"`
	TotalMisses  int64 `json:"totalMisses"`
	// HitRate is hits / (hits + misses), 0 when no lookups happened yet.
	HitRate float64 `json:"hitRate"`
	// MemoryUsage approximates the JSON-encoded size of all entries in bytes.
	MemoryUsage int64 `json:"memoryUsage"`
	// AverageQueryTime is the mean recorded execution time (ms) of cached results.
	AverageQueryTime float64 `json:"averageQueryTime"`
}

// Stats computes the current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		TotalEntries: len(c.entries),
		TotalHits:    c.hits,
		TotalMisses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		st.HitRate = round2(float64(c.hits) / float64(total))
	}

	var totalTime float64
	var timed int
	for _, e := range c.entries {
		if b, err := json.Marshal(e); err == nil {
			st.MemoryUsage += int64(len(b))
		} else {
			c.logger.Debug("skipping entry in memory estimate", "id", e.ID, "error", err)
		}
		if e.Result.ExecutionTime > 0 {
			totalTime += e.Result.ExecutionTime
			timed++
		}
	}
	if timed > 0 {
		st.AverageQueryTime = round2(totalTime / float64(timed))
	}
	return st
}

// exportRowLimit caps the rows per entry written by Export.
const exportRowLimit = 10

type exportDocument struct {
	Timestamp time.Time `json:"timestamp"`
	Stats     Stats     `json:"stats"`
	Entries   []Entry   `json:"entries"`
}

// Export serializes the cache contents for diagnostics. Each entry keeps at
// most ten rows of its result.
func (c *Cache) Export() ([]byte, error) {
	entries := c.Entries(0, math.MaxInt32)
	for i := range entries {
		if len(entries[i].Result.Rows) > exportRowLimit {
			entries[i].Result.Rows = entries[i].Result.Rows[:exportRowLimit]
		}
	}
	doc := exportDocument{
		Timestamp: c.now().UTC(),
		Stats:     c.Stats(),
		Entries:   entries,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cache export: %w", err)
	}
	return b, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
