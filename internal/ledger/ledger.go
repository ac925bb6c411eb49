// Package ledger is the append-only record of every state-changing action.
//
// Entries are redacted before persistence (see redact.go) and hash-chained:
// each row stores the hash of its predecessor plus its own hash over a
// canonical JSON form, so any retroactive edit breaks the chain and is
// detectable by Verify.
//
// Entries are never updated or deleted by any code path short of a full
// data wipe. The restore engine treats this collection as protected and
// only ever appends to it.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/giftkeep/giftkeep/internal/clock"
)

// SystemActor is recorded when no authenticated principal performed the action.
const SystemActor = "system"

// Entry is one immutable ledger record.
type Entry struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entityType"`
	EntityID    string         `json:"entityId,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	PerformedBy string         `json:"performedBy"`
	PrevHash    string         `json:"prevHash,omitempty"`
	Hash        string         `json:"hash"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Filter narrows a Query. Zero-valued fields are ignored.
type Filter struct {
	EntityType string
	EntityID   string
	Action     string
	Limit      int
}

// querier is satisfied by both *sql.DB and *sql.Tx so entries can be
// written inside a caller's transaction or standalone.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger records and queries action history.
type Ledger struct {
	db    *sql.DB
	clock clock.Clock
}

// New creates a Ledger over db. If clk is nil, wall time is used.
func New(db *sql.DB, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Ledger{db: db, clock: clk}
}

// Record appends one entry in its own implicit transaction.
// Returns the new entry's ID.
func (l *Ledger) Record(ctx context.Context, action, entityType, entityID string, details map[string]any, performedBy string) (string, error) {
	return l.record(ctx, l.db, action, entityType, entityID, details, performedBy)
}

// RecordTx appends one entry inside the caller's transaction, so "action
// happened" and "action logged" commit or roll back together.
func (l *Ledger) RecordTx(ctx context.Context, tx *sql.Tx, action, entityType, entityID string, details map[string]any, performedBy string) (string, error) {
	return l.record(ctx, tx, action, entityType, entityID, details, performedBy)
}

func (l *Ledger) record(ctx context.Context, q querier, action, entityType, entityID string, details map[string]any, performedBy string) (string, error) {
	if action == "" || entityType == "" {
		return "", fmt.Errorf("ledger record: action and entity type are required")
	}
	if performedBy == "" {
		performedBy = SystemActor
	}

	// Redaction happens before the write, never as a read-time filter.
	redacted := redactDetails(details)
	var detailsJSON string
	if redacted != nil {
		b, err := json.Marshal(redacted)
		if err != nil {
			return "", fmt.Errorf("ledger record: marshal details: %w", err)
		}
		detailsJSON = string(b)
	}

	prevHash, err := lastHash(ctx, q)
	if err != nil {
		return "", fmt.Errorf("ledger record: %w", err)
	}

	id := uuid.Must(uuid.NewV7()).String()
	createdAt := l.clock.Now().UTC().Format(clock.Layout)

	hash, err := entryHash(id, action, entityType, entityID, detailsJSON, performedBy, prevHash, createdAt)
	if err != nil {
		return "", fmt.Errorf("ledger record: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO ledger
		(id, action, entity_type, entity_id, details, performed_by, prev_hash, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, action, entityType, nullable(entityID), nullable(detailsJSON), performedBy, nullable(prevHash), hash, createdAt)
	if err != nil {
		return "", fmt.Errorf("ledger record: insert: %w", err)
	}

	return id, nil
}

// Query returns matching entries newest first. No side effects.
func (l *Ledger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT id, action, entity_type, entity_id, details, performed_by, prev_hash, hash, created_at
		FROM ledger WHERE 1=1`
	var args []any
	if f.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger query: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger query: %w", err)
	}
	return entries, nil
}

// Verify walks the chain oldest first, recomputing every hash and checking
// each prev_hash link. Returns the number of entries checked and an error
// describing the first broken link, if any.
func (l *Ledger) Verify(ctx context.Context) (int, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, details, performed_by, prev_hash, hash, created_at
		FROM ledger ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return 0, fmt.Errorf("ledger verify: %w", err)
	}
	defer rows.Close()

	checked := 0
	expectedPrev := ""
	for rows.Next() {
		var (
			id, action, entityType, performedBy, hash, createdAt string
			entityID, details, prevHash                          sql.NullString
		)
		if err := rows.Scan(&id, &action, &entityType, &entityID, &details, &performedBy, &prevHash, &hash, &createdAt); err != nil {
			return checked, fmt.Errorf("ledger verify: %w", err)
		}

		if prevHash.String != expectedPrev {
			return checked, fmt.Errorf("ledger verify: entry %s: prev_hash %q does not match chain head %q", id, prevHash.String, expectedPrev)
		}

		want, err := entryHash(id, action, entityType, entityID.String, details.String, performedBy, prevHash.String, createdAt)
		if err != nil {
			return checked, fmt.Errorf("ledger verify: entry %s: %w", id, err)
		}
		if want != hash {
			return checked, fmt.Errorf("ledger verify: entry %s: stored hash does not match recomputed hash", id)
		}

		expectedPrev = hash
		checked++
	}
	if err := rows.Err(); err != nil {
		return checked, fmt.Errorf("ledger verify: %w", err)
	}
	return checked, nil
}

// lastHash returns the hash of the newest entry, or "" for an empty ledger.
func lastHash(ctx context.Context, q querier) (string, error) {
	var h sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT hash FROM ledger ORDER BY created_at DESC, id DESC LIMIT 1
	`).Scan(&h)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("chain head: %w", err)
	}
	return h.String, nil
}

// entryHash computes the SHA-256 of the canonical JSON of every persisted
// field except hash itself. The details JSON string is hashed as stored so
// verification never has to reparse it.
func entryHash(id, action, entityType, entityID, detailsJSON, performedBy, prevHash, createdAt string) (string, error) {
	canonical, err := marshalCanonical(map[string]any{
		"id":           id,
		"action":       action,
		"entity_type":  entityType,
		"entity_id":    entityID,
		"details":      detailsJSON,
		"performed_by": performedBy,
		"prev_hash":    prevHash,
		"created_at":   createdAt,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                           Entry
		entityID, details, prevHash sql.NullString
		createdAt                   string
	)
	if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &entityID, &details, &e.PerformedBy, &prevHash, &e.Hash, &createdAt); err != nil {
		return Entry{}, err
	}
	e.EntityID = entityID.String
	e.PrevHash = prevHash.String
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return Entry{}, fmt.Errorf("decode details: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}
	e.CreatedAt = t
	return e, nil
}

// nullable maps "" to NULL so optional columns stay NULL instead of empty.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
