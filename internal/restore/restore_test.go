package restore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftkeep/giftkeep/internal/clock"
	"github.com/giftkeep/giftkeep/internal/fault"
	"github.com/giftkeep/giftkeep/internal/ledger"
	"github.com/giftkeep/giftkeep/internal/snapshot"
	"github.com/giftkeep/giftkeep/internal/store"
)

const goodProof = "correct-horse-battery-staple"

type stubVerifier struct{}

func (stubVerifier) VerifyProof(_ context.Context, proof string) error {
	if proof != goodProof {
		return fault.NewAuthorization(fault.CodeReauthFailed, "credential rejected")
	}
	return nil
}

type fixture struct {
	engine *Engine
	store  *store.Store
	ledger *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l := ledger.New(s.DB(), clock.NewStepping(
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second))
	return &fixture{
		engine: NewEngine(s, l, stubVerifier{}),
		store:  s,
		ledger: l,
	}
}

func doc(collections string) []byte {
	return []byte(fmt.Sprintf(
		`{"version": 1, "exportedAt": "2026-03-01T12:00:00Z", "collections": {%s}}`,
		collections))
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.store.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRestore_RejectsUnsupportedVersion(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Restore(context.Background(),
		[]byte(`{"version": 99, "exportedAt": "x", "collections": {}}`),
		goodProof, "admin")
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
	assert.Contains(t, err.Error(), "UNSUPPORTED_VERSION")
}

func TestRestore_RejectsMalformedShapeBeforeAnyState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.DB().ExecContext(ctx, "INSERT INTO recipients (id, name) VALUES ('r1', 'Ada')")
	require.NoError(t, err)

	_, err = f.engine.Restore(ctx, []byte(`{"collections": {}}`), goodProof, "admin")
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
	assert.Equal(t, 1, f.count(t, "recipients"), "state must be untouched")
}

func TestRestore_RejectsStaleCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.DB().ExecContext(ctx, "INSERT INTO recipients (id, name) VALUES ('r1', 'Ada')")
	require.NoError(t, err)

	_, err = f.engine.Restore(ctx, doc(`"recipients": []`), "expired-session", "admin")
	require.Error(t, err)
	assert.True(t, fault.IsAuthorization(err))
	assert.Equal(t, 1, f.count(t, "recipients"), "state must be untouched")
}

func TestRestore_ReplacesNonProtectedCollections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.DB().ExecContext(ctx, "INSERT INTO recipients (id, name) VALUES ('old', 'Old')")
	require.NoError(t, err)

	res, err := f.engine.Restore(ctx, doc(`
		"recipients": [{"id": "r1", "name": "Ada"}, {"id": "r2", "name": "Grace"}]
	`), goodProof, "admin")
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalRows)
	assert.Empty(t, res.TypeErrors)
	assert.Equal(t, 2, f.count(t, "recipients"))

	var n int
	require.NoError(t, f.store.DB().QueryRow(
		"SELECT COUNT(*) FROM recipients WHERE id='old'").Scan(&n))
	assert.Zero(t, n, "pre-restore rows must be gone")
}

func TestRestore_DropsFieldsAbsentFromAllowlist(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Restore(context.Background(), doc(`
		"recipients": [{"id": "r1", "name": "Ada", "is_admin": "1; DROP TABLE ledger"}]
	`), goodProof, "admin")
	require.NoError(t, err)

	// Accepted, field dropped, no error.
	assert.Equal(t, 1, res.TotalRows)
	assert.Empty(t, res.TypeErrors)
	assert.Equal(t, 1, f.count(t, "recipients"))

	// The hostile string never executed: the ledger table still answers.
	assert.Equal(t, 1, f.count(t, "ledger"))
}

func TestRestore_SkipsTypeViolatingRowsAndCommitsTheRest(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Restore(context.Background(), doc(`
		"budgets": [
			{"id": "b1", "amount": 25.5, "currency": "USD"},
			{"id": "b2", "amount": "twenty", "currency": "USD"},
			{"id": "b3", "amount": 10, "currency": "USD"}
		]
	`), goodProof, "admin")
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalRows)
	assert.Equal(t, 1, res.SkippedRows)
	require.Len(t, res.TypeErrors, 1)
	te := res.TypeErrors[0]
	assert.Equal(t, "budgets", te.Collection)
	assert.Equal(t, "amount", te.Field)
	assert.Equal(t, "real", te.Expected)
	assert.Equal(t, "string", te.Got)

	assert.Equal(t, 2, f.count(t, "budgets"))
}

func TestRestore_IgnoresUnknownCollections(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Restore(context.Background(), doc(`
		"sqlite_master": [{"sql": "DROP TABLE ledger"}],
		"recipients": [{"id": "r1", "name": "Ada"}]
	`), goodProof, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tables)
	assert.Equal(t, 1, res.TotalRows)
}

func TestRestore_ProtectedLedgerOnlyAppends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Existing history.
	id1, err := f.ledger.Record(ctx, "create", "recipient", "r1", nil, "admin")
	require.NoError(t, err)
	before := f.count(t, "ledger")

	// Snapshot carries one overlapping and one previously-unseen entry.
	rows := fmt.Sprintf(`
		"ledger": [
			{"id": %q, "action": "create", "entity_type": "recipient", "performed_by": "admin", "created_at": "2020-01-01T00:00:00Z"},
			{"id": "imported-1", "action": "delete", "entity_type": "recipient", "performed_by": "admin", "created_at": "2020-01-02T00:00:00Z"}
		]`, id1)

	res, err := f.engine.Restore(ctx, doc(rows), goodProof, "admin")
	require.NoError(t, err)

	// Overlap not duplicated; unseen row appended; plus the restore's own
	// summary entry. Never fewer rows than before.
	after := f.count(t, "ledger")
	assert.Equal(t, before+2, after)
	assert.Equal(t, 1, res.TotalRows, "only the unseen ledger row counts as inserted")
}

func TestRestore_EmptyLedgerInSnapshotNeverShrinksHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Record(ctx, "create", "recipient", "r1", nil, "admin")
	require.NoError(t, err)
	before := f.count(t, "ledger")

	_, err = f.engine.Restore(ctx, doc(`"ledger": []`), goodProof, "admin")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, f.count(t, "ledger"), before)
}

func TestRestore_AtomicRollbackOnMidInsertFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.DB().ExecContext(ctx, "INSERT INTO recipients (id, name) VALUES ('keep', 'Keep')")
	require.NoError(t, err)

	// Second row passes every type check but collides on the primary key,
	// forcing a failure after rows have already been inserted.
	_, err = f.engine.Restore(ctx, doc(`
		"recipients": [
			{"id": "r1", "name": "Ada"},
			{"id": "r1", "name": "Duplicate"}
		]
	`), goodProof, "admin")
	require.Error(t, err)
	assert.True(t, fault.IsStorage(err))

	// Pre-restore state fully intact.
	assert.Equal(t, 1, f.count(t, "recipients"))
	var name string
	require.NoError(t, f.store.DB().QueryRow(
		"SELECT name FROM recipients WHERE id='keep'").Scan(&name))
	assert.Equal(t, "Keep", name)

	// No ledger entry for a restore that did not commit.
	entries, err := f.ledger.Query(ctx, ledger.Filter{Action: "restore_backup"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestore_ForeignKeysRestoredAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Restore(ctx, doc(`
		"recipients": [{"id": "r1"}, {"id": "r1"}]
	`), goodProof, "admin")
	require.Error(t, err)

	// Enforcement must be back on even though the restore failed.
	_, err = f.store.DB().ExecContext(ctx,
		"INSERT INTO occasions (id, recipient_id) VALUES ('o1', 'missing')")
	assert.Error(t, err, "foreign keys should be enforced again")
}

func TestRestore_SummaryEntryWrittenAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Restore(ctx, doc(`
		"recipients": [{"id": "r1", "name": "Ada"}]
	`), goodProof, "admin")
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalRows)

	entries, err := f.ledger.Query(ctx, ledger.Filter{Action: "restore_backup"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 1, entries[0].Details["tables"])
	assert.EqualValues(t, 1, entries[0].Details["rows"])
	assert.EqualValues(t, 0, entries[0].Details["type_errors"])
}

// Round-trip: restore(export()) leaves every non-protected collection with
// the same rows and the protected collection a superset of its prior state.
func TestRestore_RoundTripFromExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed := []string{
		"INSERT INTO recipients (id, name, email, created_at) VALUES ('r1', 'Ada', 'ada@example.com', '2026-01-01T00:00:00Z')",
		"INSERT INTO occasions (id, recipient_id, kind, title, occur_on, recurring) VALUES ('o1', 'r1', 'birthday', 'Ada 40', '2026-12-10', 1)",
		"INSERT INTO budgets (id, occasion_id, amount, currency, spent) VALUES ('b1', 'o1', 150.0, 'USD', 0.0)",
		"INSERT INTO recommendations (id, occasion_id, title, price, purchased) VALUES ('g1', 'o1', 'Telescope', 120.0, 0)",
		"INSERT INTO approvals (id, occasion_id, recommendation_id, status, approved_by) VALUES ('a1', 'o1', 'g1', 'approved', 'admin')",
	}
	for _, stmt := range seed {
		_, err := f.store.DB().ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	_, err := f.ledger.Record(ctx, "create", "recipient", "r1", nil, "admin")
	require.NoError(t, err)
	ledgerBefore := f.count(t, "ledger")

	exporter := snapshot.NewExporter(f.store, f.ledger, nil)
	snap, err := exporter.Export(ctx, "admin")
	require.NoError(t, err)
	raw, err := snap.Marshal()
	require.NoError(t, err)

	res, err := f.engine.Restore(ctx, raw, goodProof, "admin")
	require.NoError(t, err)
	assert.Empty(t, res.TypeErrors)

	for table, want := range map[string]int{
		"recipients": 1, "occasions": 1, "budgets": 1,
		"recommendations": 1, "approvals": 1,
	} {
		assert.Equal(t, want, f.count(t, table), "collection %s", table)
	}

	var email string
	require.NoError(t, f.store.DB().QueryRow(
		"SELECT email FROM recipients WHERE id='r1'").Scan(&email))
	assert.Equal(t, "ada@example.com", email)

	var amount float64
	require.NoError(t, f.store.DB().QueryRow(
		"SELECT amount FROM budgets WHERE id='b1'").Scan(&amount))
	assert.Equal(t, 150.0, amount)

	assert.GreaterOrEqual(t, f.count(t, "ledger"), ledgerBefore)

	// The chain survives a round trip.
	_, err = f.ledger.Verify(ctx)
	require.NoError(t, err)
}

func TestRestore_ResultMarshalsForAPI(t *testing.T) {
	res := &Result{
		Tables:     2,
		TotalRows:  5,
		TypeErrors: []TypeError{{Collection: "budgets", Field: "amount", Expected: "real", Got: "string"}},
	}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"typeErrors"`)
	assert.Contains(t, string(b), `"budgets"`)
}
