package notify

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftkeep/giftkeep/internal/clock"
	"github.com/giftkeep/giftkeep/internal/store"
)

func newNotifier(t *testing.T) *Notifier {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clk := clock.NewStepping(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)
	return New(s.DB(), clk)
}

func TestSendAndUnread(t *testing.T) {
	n := newNotifier(t)
	ctx := context.Background()

	require.NoError(t, n.Send(ctx, "emergency_stop", "Purchasing stopped", "Stop activated."))
	require.NoError(t, n.Send(ctx, "purchase_created", "Order placed", "Order GK-X placed."))

	unread, err := n.Unread(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	// Newest first.
	assert.Equal(t, "purchase_created", unread[0].Kind)
	assert.Equal(t, "emergency_stop", unread[1].Kind)
	assert.False(t, unread[0].Read)
	assert.True(t, unread[0].CreatedAt.After(unread[1].CreatedAt))
}

func TestMarkRead(t *testing.T) {
	n := newNotifier(t)
	ctx := context.Background()

	require.NoError(t, n.Send(ctx, "emergency_stop", "Purchasing stopped", "Stop activated."))
	unread, err := n.Unread(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, n.MarkRead(ctx, unread[0].ID))

	unread, err = n.Unread(ctx)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
