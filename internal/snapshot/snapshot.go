// Package snapshot produces and validates full-data-set export documents.
//
// A snapshot is a versioned JSON document holding every collection's rows
// verbatim, in dependency order. Export is an administrative operation;
// rows are NOT redacted (the ledger redacts at write time, so sensitive
// contact fields never reach the ledger in the first place).
package snapshot

import (
	"encoding/json"
	"time"

	"github.com/giftkeep/giftkeep/internal/fault"
)

// CurrentVersion is the single snapshot format version this build can
// produce and restore. Unknown versions are rejected before any decode of
// collection content.
const CurrentVersion = 1

// Row is one entity record as a field/value map.
type Row map[string]any

// Snapshot is the versioned full-data export document.
type Snapshot struct {
	Version     int              `json:"version"`
	ExportedAt  time.Time        `json:"exportedAt"`
	Collections map[string][]Row `json:"collections"`
}

// Decode validates the document shape against the embedded CUE schema and
// unmarshals it. Shape errors are reported before any collection content is
// interpreted; the version gate is the restore engine's first step after
// this.
func Decode(raw []byte) (*Snapshot, error) {
	if err := validateShape(raw); err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fault.NewValidation(fault.CodeBadSnapshot, "decode snapshot: %v", err)
	}
	if snap.Collections == nil {
		return nil, fault.NewValidation(fault.CodeBadSnapshot, "snapshot has no collections map")
	}
	return &snap, nil
}

// Marshal renders the snapshot as indented JSON for download.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// TotalRows returns the number of rows across all collections.
func (s *Snapshot) TotalRows() int {
	total := 0
	for _, rows := range s.Collections {
		total += len(rows)
	}
	return total
}
