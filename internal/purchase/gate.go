// Package purchase is the invariant boundary for purchase creation.
//
// Gate.Create is the ONLY constructor of a purchase row. No other code path
// inserts into the purchases collection, which is what makes the
// approval-before-purchase rule enforceable: a purchase cannot exist without
// a referenced approval in the approved state, checked inside the same
// transaction that inserts the row.
package purchase

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/giftkeep/giftkeep/internal/clock"
	"github.com/giftkeep/giftkeep/internal/fault"
	"github.com/giftkeep/giftkeep/internal/ledger"
	"github.com/giftkeep/giftkeep/internal/notify"
	"github.com/giftkeep/giftkeep/internal/safety"
	"github.com/giftkeep/giftkeep/internal/store"
)

// Purchase is one order record.
type Purchase struct {
	ID                string    `json:"id"`
	RecommendationID  string    `json:"recommendationId"`
	OccasionID        string    `json:"occasionId"`
	ApprovalID        string    `json:"approvalId"`
	Status            string    `json:"status"`
	OrderReference    string    `json:"orderReference"`
	EstimatedDelivery string    `json:"estimatedDelivery,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// CreateParams carries the references a new purchase must hold.
type CreateParams struct {
	RecommendationID string
	OccasionID       string
	ApprovalID       string
}

// Gate creates purchases under the safety invariants.
type Gate struct {
	store    *store.Store
	ledger   *ledger.Ledger
	notifier *notify.Notifier
	clock    clock.Clock
}

// NewGate creates a Gate. If clk is nil, wall time is used.
func NewGate(s *store.Store, l *ledger.Ledger, n *notify.Notifier, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Gate{store: s, ledger: l, notifier: n, clock: clk}
}

// Create inserts a new purchase when every invariant holds:
//
//   - params.ApprovalID is present (omitting it is a rejection, never a
//     silent bypass)
//   - the referenced approval exists and is in the approved state
//   - the emergency stop is not active
//
// The checks and the insert share one transaction, so a switch flip or a
// rescinded approval can never race a purchase into existence. On success
// the referenced recommendation is marked purchased, one ledger entry is
// appended in the same transaction, and a notification is emitted after
// commit.
func (g *Gate) Create(ctx context.Context, actor string, params CreateParams) (*Purchase, error) {
	if params.ApprovalID == "" {
		return nil, fault.NewIntegrity(fault.CodeApprovalRequired, "approval_before_purchase",
			"a purchase requires an approval reference")
	}
	if params.RecommendationID == "" || params.OccasionID == "" {
		return nil, fault.NewValidation(fault.CodeMissingReference,
			"recommendation and occasion references are required")
	}

	ref, err := newOrderReference()
	if err != nil {
		return nil, fault.NewStorageError("generate order reference", err)
	}

	now := g.clock.Now().UTC()
	p := &Purchase{
		ID:               uuid.Must(uuid.NewV7()).String(),
		RecommendationID: params.RecommendationID,
		OccasionID:       params.OccasionID,
		ApprovalID:       params.ApprovalID,
		Status:           "pending",
		OrderReference:   ref,
		CreatedAt:        now,
	}

	err = g.store.WithTx(ctx, func(tx *sql.Tx) error {
		stopped, err := safety.StoppedTx(ctx, tx)
		if err != nil {
			return err
		}
		if stopped {
			return fault.NewIntegrity(fault.CodePurchasingStopped, "purchasing_enabled",
				"the emergency stop is active; purchasing is disabled")
		}

		var status string
		err = tx.QueryRowContext(ctx,
			"SELECT status FROM approvals WHERE id = ?", params.ApprovalID).Scan(&status)
		if err == sql.ErrNoRows {
			return fault.NewIntegrity(fault.CodeApprovalRequired, "approval_before_purchase",
				"approval %s does not exist", params.ApprovalID)
		}
		if err != nil {
			return fault.NewStorageError("read approval", err)
		}
		if status != "approved" {
			return fault.NewIntegrity(fault.CodeApprovalRequired, "approval_before_purchase",
				"approval %s has status %q, want approved", params.ApprovalID, status)
		}

		ts := now.Format(clock.Layout)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchases
			(id, recommendation_id, occasion_id, approval_id, status, order_reference, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.RecommendationID, p.OccasionID, p.ApprovalID, p.Status, p.OrderReference, ts, ts)
		if err != nil {
			return fault.NewStorageError("insert purchase", err)
		}

		// The purchased guard in the WHERE clause makes the flip single-use:
		// an UPDATE matching an already-purchased row would still count as
		// affected without it.
		res, err := tx.ExecContext(ctx,
			"UPDATE recommendations SET purchased = 1 WHERE id = ? AND purchased = 0",
			params.RecommendationID)
		if err != nil {
			return fault.NewStorageError("mark recommendation purchased", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				"SELECT EXISTS (SELECT 1 FROM recommendations WHERE id = ?)",
				params.RecommendationID).Scan(&exists); err != nil {
				return fault.NewStorageError("read recommendation", err)
			}
			if exists {
				return fault.NewIntegrity(fault.CodeApprovalRequired, "approval_before_purchase",
					"recommendation %s was already purchased", params.RecommendationID)
			}
			return fault.NewValidation(fault.CodeMissingReference,
				"recommendation %s does not exist", params.RecommendationID)
		}

		_, err = g.ledger.RecordTx(ctx, tx, "create", "purchase", p.ID, map[string]any{
			"approval_id":       p.ApprovalID,
			"recommendation_id": p.RecommendationID,
			"occasion_id":       p.OccasionID,
		}, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The transaction is committed; a lost notification must not surface
	// as a failed create.
	if err := g.notifier.Send(ctx, "purchase_created",
		"Purchase placed",
		"Order "+p.OrderReference+" was created."); err != nil {
		slog.Warn("purchase notification failed", "purchase", p.ID, "error", err)
	}
	return p, nil
}

// UpdateStatus moves an existing purchase through its delivery lifecycle
// (ordered, shipped, delivered, issue). It cannot create purchases and it
// refuses transitions out of the cancelled state.
func (g *Gate) UpdateStatus(ctx context.Context, actor, id, status string) error {
	switch status {
	case "ordered", "shipped", "delivered", "issue":
	default:
		return fault.NewValidation(fault.CodeMissingReference, "unknown purchase status %q", status)
	}

	now := g.clock.Now().UTC().Format(clock.Layout)
	return g.store.WithTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, "SELECT status FROM purchases WHERE id = ?", id).Scan(&current)
		if err == sql.ErrNoRows {
			return fault.NewValidation(fault.CodeMissingReference, "purchase %s does not exist", id)
		}
		if err != nil {
			return fault.NewStorageError("read purchase", err)
		}
		if current == "cancelled" {
			return fault.NewIntegrity(fault.CodePurchasingStopped, "cancelled_is_terminal",
				"purchase %s is cancelled", id)
		}

		set := "status = ?, updated_at = ?"
		args := []any{status, now}
		switch status {
		case "ordered":
			set += ", ordered_at = ?"
			args = append(args, now)
		case "delivered":
			set += ", delivered_at = ?"
			args = append(args, now)
		}
		args = append(args, id)
		if _, err := tx.ExecContext(ctx, "UPDATE purchases SET "+set+" WHERE id = ?", args...); err != nil {
			return fault.NewStorageError("update purchase", err)
		}

		_, err = g.ledger.RecordTx(ctx, tx, "update", "purchase", id, map[string]any{
			"changes": map[string]any{"status": status},
		}, actor)
		return err
	})
}
