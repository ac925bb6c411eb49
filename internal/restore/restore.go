// Package restore atomically replaces the data set from a snapshot document.
//
// Restore is the single most destructive operation in the application. The
// engine therefore demands fresh proof of the caller's identity (an idle
// session token alone is not enough), validates snapshot shape and version
// before touching any state, and executes the swap inside one transaction
// with referential checks suspended only for that transaction's lifetime.
//
// Collection and field names never reach a query from the input document:
// every name is resolved against the compiled registry in internal/schema,
// and anything not on the allowlist is dropped.
package restore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/giftkeep/giftkeep/internal/fault"
	"github.com/giftkeep/giftkeep/internal/ledger"
	"github.com/giftkeep/giftkeep/internal/schema"
	"github.com/giftkeep/giftkeep/internal/snapshot"
	"github.com/giftkeep/giftkeep/internal/store"
)

// ProofVerifier checks a freshly supplied credential. Implemented by
// internal/auth; a stub can stand in for tests.
type ProofVerifier interface {
	VerifyProof(ctx context.Context, proof string) error
}

// TypeError reports one field whose value failed its scalar type check.
// The owning row is skipped entirely, never partially inserted.
type TypeError struct {
	Collection string `json:"collection"`
	Field      string `json:"field"`
	Expected   string `json:"expected"`
	Got        string `json:"got"`
}

// Result summarizes a committed restore.
type Result struct {
	Tables      int         `json:"tables"`
	TotalRows   int         `json:"totalRows"`
	SkippedRows int         `json:"skippedRows"`
	TypeErrors  []TypeError `json:"typeErrors"`
}

// Engine executes restores.
type Engine struct {
	store    *store.Store
	ledger   *ledger.Ledger
	verifier ProofVerifier
}

// NewEngine creates a restore engine.
func NewEngine(s *store.Store, l *ledger.Ledger, v ProofVerifier) *Engine {
	return &Engine{store: s, ledger: l, verifier: v}
}

// Restore validates, authenticates, and then atomically applies raw as the
// new data set. actor is the already-authenticated principal performing the
// restore; proof is their freshly supplied credential.
//
// Non-protected collections are deleted (children first) and re-inserted
// (parents first). Protected collections are only ever appended to with
// insert-if-absent semantics. Rows failing a type check are skipped and
// aggregated into the result; everything else still commits. Any unexpected
// failure rolls the whole transaction back and leaves no trace beyond the
// returned error.
func (e *Engine) Restore(ctx context.Context, raw []byte, proof, actor string) (res *Result, err error) {
	snap, err := snapshot.Decode(raw)
	if err != nil {
		return nil, err
	}
	if snap.Version != snapshot.CurrentVersion {
		return nil, fault.NewValidation(fault.CodeUnsupportedVersion,
			"snapshot version %d is not supported (want %d)", snap.Version, snapshot.CurrentVersion)
	}

	// Fresh re-authentication. Nothing has been touched yet.
	if err := e.verifier.VerifyProof(ctx, proof); err != nil {
		return nil, err
	}

	// Deletion order violates referential checks mid-restore, so suspend
	// them for the duration of the transaction. The re-enable runs on every
	// path, including error paths.
	if err := e.store.SetForeignKeys(ctx, false); err != nil {
		return nil, fault.NewStorageError("suspend referential checks", err)
	}
	defer func() {
		if ferr := e.store.SetForeignKeys(context.WithoutCancel(ctx), true); ferr != nil {
			err = errors.Join(err, fault.NewStorageError("restore referential checks", ferr))
		}
	}()

	res = &Result{TypeErrors: []TypeError{}}
	txErr := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := deletePhase(ctx, tx); err != nil {
			return err
		}
		return e.insertPhase(ctx, tx, snap, res)
	})
	if txErr != nil {
		// Full rollback already happened; no ledger entry is written for a
		// restore that did not commit.
		return nil, fault.NewStorageError("restore", txErr)
	}

	// Written strictly after commit: the restore must never erase knowledge
	// of itself.
	_, lerr := e.ledger.Record(ctx, "restore_backup", "backup", "", map[string]any{
		"tables":      res.Tables,
		"rows":        res.TotalRows,
		"type_errors": len(res.TypeErrors),
	}, actor)
	if lerr != nil {
		return res, lerr
	}

	return res, nil
}

// deletePhase walks the dependency order in reverse, deleting all rows of
// every non-protected collection. Protected collections are never deleted.
func deletePhase(ctx context.Context, tx *sql.Tx) error {
	order := schema.DependencyOrder
	for i := len(order) - 1; i >= 0; i-- {
		spec := order[i]
		if spec.Protected {
			continue
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+spec.Name); err != nil {
			return fmt.Errorf("delete %s: %w", spec.Name, err)
		}
	}
	return nil
}

// insertPhase walks the dependency order forward, inserting the snapshot's
// rows for each collection the registry knows. Collections present in the
// snapshot but absent from the registry are ignored.
func (e *Engine) insertPhase(ctx context.Context, tx *sql.Tx, snap *snapshot.Snapshot, res *Result) error {
	for _, spec := range schema.DependencyOrder {
		rows, ok := snap.Collections[spec.Name]
		if !ok {
			continue
		}
		res.Tables++

		for _, row := range rows {
			fields, values, violations := filterRow(spec, row)
			if len(violations) > 0 {
				res.TypeErrors = append(res.TypeErrors, violations...)
				res.SkippedRows++
				continue
			}
			if len(fields) == 0 {
				res.SkippedRows++
				continue
			}

			inserted, err := insertRow(ctx, tx, spec, fields, values)
			if err != nil {
				return fmt.Errorf("insert into %s: %w", spec.Name, err)
			}
			if inserted {
				res.TotalRows++
			}
		}
	}
	return nil
}

// filterRow intersects a snapshot row with the collection's allowlist and
// type-checks every surviving value. Unknown fields are silently dropped;
// they are never interpolated into a query. A row with any violation is
// reported and skipped whole.
func filterRow(spec *schema.CollectionSpec, row snapshot.Row) (fields []string, values []any, violations []TypeError) {
	for _, f := range spec.Fields {
		v, present := row[f.Name]
		if !present {
			continue
		}
		if ok, got := schema.CheckValue(f.Kind, v); !ok {
			violations = append(violations, TypeError{
				Collection: spec.Name,
				Field:      f.Name,
				Expected:   string(f.Kind),
				Got:        got,
			})
			continue
		}
		fields = append(fields, f.Name)
		values = append(values, v)
	}
	return fields, values, violations
}

// insertRow inserts one row. Protected collections use insert-if-absent so
// existing history is never duplicated or overwritten, only extended.
func insertRow(ctx context.Context, tx *sql.Tx, spec *schema.CollectionSpec, fields []string, values []any) (bool, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.Name, strings.Join(fields, ", "), placeholders)
	if spec.Protected {
		q += fmt.Sprintf(" ON CONFLICT(%s) DO NOTHING", spec.Fields[0].Name)
	}

	result, err := tx.ExecContext(ctx, q, values...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
