package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/promptelt/promptelt/internal/model"
)

// Checksum returns the first 16 hex characters of the SHA-256 of the
// schema's JSON encoding. encoding/json emits struct fields in declaration
// order and sorts map keys, so equal schemas always hash equally.
func Checksum(schema model.SchemaInfo) string {
	b, err := json.Marshal(schema)
	if err != nil {
		// SampleData can hold values json cannot encode; fall back to the
		// structural part only.
		b, _ = json.Marshal(structureOnly(schema))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

func structureOnly(schema model.SchemaInfo) model.SchemaInfo {
	out := schema
	out.Tables = make([]model.TableInfo, len(schema.Tables))
	for i, t := range schema.Tables {
		t.SampleData = nil
		out.Tables[i] = t
	}
	return out
}

// versionLabel formats a capture time as vYYYY.MM.DD-HHMM.
func versionLabel(t time.Time) string {
	return fmt.Sprintf("v%04d.%02d.%02d-%02d%02d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
}
