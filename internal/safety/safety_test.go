package safety

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftkeep/giftkeep/internal/clock"
	"github.com/giftkeep/giftkeep/internal/ledger"
	"github.com/giftkeep/giftkeep/internal/notify"
	"github.com/giftkeep/giftkeep/internal/store"
)

type fixture struct {
	sw     *Switch
	store  *store.Store
	ledger *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clk := clock.NewStepping(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)
	l := ledger.New(s.DB(), clk)
	n := notify.New(s.DB(), clk)
	return &fixture{sw: New(s, l, n, clk), store: s, ledger: l}
}

func (f *fixture) seedPurchase(t *testing.T, id, status string) {
	t.Helper()
	_, err := f.store.DB().Exec(`
		INSERT INTO purchases (id, status, order_reference, created_at)
		VALUES (?, ?, ?, '2026-01-01T00:00:00Z')
	`, id, status, "ref-"+id)
	require.NoError(t, err)
}

func (f *fixture) purchaseStatus(t *testing.T, id string) string {
	t.Helper()
	var status string
	require.NoError(t, f.store.DB().QueryRow(
		"SELECT status FROM purchases WHERE id = ?", id).Scan(&status))
	return status
}

func TestStopped_DefaultsToEnabled(t *testing.T) {
	f := newFixture(t)
	stopped, err := f.sw.Stopped(context.Background())
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestActivate_CancelsInFlightPurchasesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedPurchase(t, "p1", "pending")
	f.seedPurchase(t, "p2", "ordered")
	f.seedPurchase(t, "p3", "delivered")

	res, err := f.sw.Activate(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, res.CancelledCount)

	assert.Equal(t, "cancelled", f.purchaseStatus(t, "p1"))
	assert.Equal(t, "cancelled", f.purchaseStatus(t, "p2"))
	assert.Equal(t, "delivered", f.purchaseStatus(t, "p3"))

	stopped, err := f.sw.Stopped(ctx)
	require.NoError(t, err)
	assert.True(t, stopped)
}

func TestActivate_LogsFlipPlusOneEntryPerCancellation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedPurchase(t, "p1", "pending")
	f.seedPurchase(t, "p2", "ordered")
	f.seedPurchase(t, "p3", "delivered")

	_, err := f.sw.Activate(ctx, "admin")
	require.NoError(t, err)

	all, err := f.ledger.Query(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3, "2 cancellations + 1 flip")

	cancels, err := f.ledger.Query(ctx, ledger.Filter{Action: "cancel", EntityType: "purchase"})
	require.NoError(t, err)
	assert.Len(t, cancels, 2)

	flips, err := f.ledger.Query(ctx, ledger.Filter{Action: "emergency_stop"})
	require.NoError(t, err)
	require.Len(t, flips, 1)
	assert.EqualValues(t, 2, flips[0].Details["cancelled"])
}

func TestActivate_EmitsNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sw.Activate(ctx, "admin")
	require.NoError(t, err)

	var n int
	require.NoError(t, f.store.DB().QueryRow(
		"SELECT COUNT(*) FROM notifications WHERE kind = 'emergency_stop'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestActivate_IdempotentBeyondRelogging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedPurchase(t, "p1", "pending")

	res, err := f.sw.Activate(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, res.CancelledCount)

	// Second activation finds nothing in flight; it only re-logs the flip.
	res, err = f.sw.Activate(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, 0, res.CancelledCount)

	flips, err := f.ledger.Query(ctx, ledger.Filter{Action: "emergency_stop"})
	require.NoError(t, err)
	assert.Len(t, flips, 2)
}

func TestDeactivate_ReenablesWithoutTouchingPurchases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedPurchase(t, "p1", "pending")
	_, err := f.sw.Activate(ctx, "admin")
	require.NoError(t, err)

	require.NoError(t, f.sw.Deactivate(ctx, "admin"))

	stopped, err := f.sw.Stopped(ctx)
	require.NoError(t, err)
	assert.False(t, stopped)

	// Cancelled purchases stay cancelled.
	assert.Equal(t, "cancelled", f.purchaseStatus(t, "p1"))

	cleared, err := f.ledger.Query(ctx, ledger.Filter{Action: "emergency_stop_cleared"})
	require.NoError(t, err)
	assert.Len(t, cleared, 1)
}
