// Package notify writes user-facing notification records.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/giftkeep/giftkeep/internal/clock"
)

// Notification is one user-facing message row.
type Notification struct {
	ID        string
	Kind      string
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Notifier inserts notification rows.
type Notifier struct {
	db    *sql.DB
	clock clock.Clock
}

// New creates a Notifier. If clk is nil, wall time is used.
func New(db *sql.DB, clk clock.Clock) *Notifier {
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Notifier{db: db, clock: clk}
}

// Send inserts one notification in its own implicit transaction.
func (n *Notifier) Send(ctx context.Context, kind, title, body string) error {
	return n.send(ctx, n.db, kind, title, body)
}

// SendTx inserts one notification inside the caller's transaction.
func (n *Notifier) SendTx(ctx context.Context, tx *sql.Tx, kind, title, body string) error {
	return n.send(ctx, tx, kind, title, body)
}

func (n *Notifier) send(ctx context.Context, q execer, kind, title, body string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO notifications (id, kind, title, body, read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`,
		uuid.Must(uuid.NewV7()).String(),
		kind,
		title,
		body,
		n.clock.Now().UTC().Format(clock.Layout),
	)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// Unread returns unread notifications, newest first.
func (n *Notifier) Unread(ctx context.Context) ([]Notification, error) {
	rows, err := n.db.QueryContext(ctx, `
		SELECT id, kind, title, body, read, created_at
		FROM notifications WHERE read = 0
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			item      Notification
			createdAt string
		)
		if err := rows.Scan(&item.ID, &item.Kind, &item.Title, &item.Body, &item.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			item.CreatedAt = t
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkRead marks one notification as read.
func (n *Notifier) MarkRead(ctx context.Context, id string) error {
	_, err := n.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}
