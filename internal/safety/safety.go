// Package safety implements the global purchasing kill switch.
//
// The switch is a single settings row, never exposed through a raw setter:
// the only transitions are Activate and Deactivate, so the cascading side
// effects cannot be skipped. Activation cancels every in-flight purchase in
// the same transaction that flips the setting.
package safety

import (
	"context"
	"database/sql"

	"github.com/giftkeep/giftkeep/internal/clock"
	"github.com/giftkeep/giftkeep/internal/fault"
	"github.com/giftkeep/giftkeep/internal/ledger"
	"github.com/giftkeep/giftkeep/internal/notify"
	"github.com/giftkeep/giftkeep/internal/store"
)

// SettingKey is the settings row holding the switch state.
const SettingKey = "emergency_stop"

// ActivateResult reports the cascade of an activation.
type ActivateResult struct {
	CancelledCount int `json:"cancelledCount"`
}

// Switch owns the emergency-stop state machine.
type Switch struct {
	store    *store.Store
	ledger   *ledger.Ledger
	notifier *notify.Notifier
	clock    clock.Clock
}

// New creates a Switch. If clk is nil, wall time is used.
func New(s *store.Store, l *ledger.Ledger, n *notify.Notifier, clk clock.Clock) *Switch {
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Switch{store: s, ledger: l, notifier: n, clock: clk}
}

// Stopped reports whether purchasing is currently blocked.
func (sw *Switch) Stopped(ctx context.Context) (bool, error) {
	return stopped(ctx, sw.store.DB())
}

// StoppedTx reads the switch inside an open transaction so the purchase
// gate sees a state consistent with its own insert.
func StoppedTx(ctx context.Context, tx *sql.Tx) (bool, error) {
	return stopped(ctx, tx)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func stopped(ctx context.Context, q rowQuerier) (bool, error) {
	var value string
	err := q.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", SettingKey).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fault.NewStorageError("read emergency_stop", err)
	}
	return value == "true", nil
}

// Activate flips the switch to stopped and, in the same transaction,
// cancels every purchase still in flight (pending or ordered). One ledger
// entry per cancellation plus one for the flip itself. Re-activating an
// already-stopped switch cancels nothing new and only re-logs the flip.
func (sw *Switch) Activate(ctx context.Context, actor string) (*ActivateResult, error) {
	res := &ActivateResult{}
	now := sw.clock.Now().UTC().Format(clock.Layout)

	err := sw.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := setSwitch(ctx, tx, "true", now); err != nil {
			return err
		}

		// Collect the in-flight purchases first so each cancellation gets
		// its own ledger entry.
		rows, err := tx.QueryContext(ctx,
			"SELECT id FROM purchases WHERE status IN ('pending', 'ordered')")
		if err != nil {
			return fault.NewStorageError("select in-flight purchases", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fault.NewStorageError("scan purchase id", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fault.NewStorageError("iterate purchases", err)
		}

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				"UPDATE purchases SET status = 'cancelled', updated_at = ? WHERE id = ?",
				now, id); err != nil {
				return fault.NewStorageError("cancel purchase", err)
			}
			if _, err := sw.ledger.RecordTx(ctx, tx, "cancel", "purchase", id, map[string]any{
				"reason": "emergency_stop",
			}, actor); err != nil {
				return err
			}
		}
		res.CancelledCount = len(ids)

		if _, err := sw.ledger.RecordTx(ctx, tx, "emergency_stop", "setting", SettingKey, map[string]any{
			"cancelled": len(ids),
		}, actor); err != nil {
			return err
		}

		return sw.notifier.SendTx(ctx, tx, "emergency_stop",
			"Purchasing stopped",
			"Emergency stop activated; all in-flight purchases were cancelled.")
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Deactivate re-enables purchasing. Existing purchase records are not
// touched; cancelled purchases stay cancelled.
func (sw *Switch) Deactivate(ctx context.Context, actor string) error {
	now := sw.clock.Now().UTC().Format(clock.Layout)

	return sw.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := setSwitch(ctx, tx, "false", now); err != nil {
			return err
		}
		if _, err := sw.ledger.RecordTx(ctx, tx, "emergency_stop_cleared", "setting", SettingKey, nil, actor); err != nil {
			return err
		}
		return sw.notifier.SendTx(ctx, tx, "emergency_stop_cleared",
			"Purchasing re-enabled",
			"Emergency stop deactivated; new purchases are allowed again.")
	})
}

func setSwitch(ctx context.Context, tx *sql.Tx, value, now string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, SettingKey, value, now)
	if err != nil {
		return fault.NewStorageError("flip emergency_stop", err)
	}
	return nil
}
