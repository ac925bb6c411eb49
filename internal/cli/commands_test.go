package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftkeep/giftkeep/internal/auth"
	"github.com/giftkeep/giftkeep/internal/snapshot"
)

// withTempDB points every command in the test at a fresh database file.
func withTempDB(t *testing.T) {
	t.Helper()
	t.Setenv("GIFTKEEP_DB", filepath.Join(t.TempDir(), "test.db"))
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestStopStatusResume(t *testing.T) {
	withTempDB(t)
	rootOpts := &RootOptions{Format: "text"}

	out, err := runCommand(t, NewStopCommand(rootOpts))
	require.NoError(t, err)
	assert.Contains(t, out, "purchasing stopped, 0 active purchases cancelled")

	statusOut, err := runCommand(t, NewStatusCommand(&RootOptions{Format: "json"}))
	require.NoError(t, err)

	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(statusOut), &report))
	assert.True(t, report.EmergencyStop)
	assert.Contains(t, report.Collections, "recipients")
	assert.Contains(t, report.Collections, "ledger")

	out, err = runCommand(t, NewResumeCommand(rootOpts))
	require.NoError(t, err)
	assert.Contains(t, out, "purchasing resumed")
}

func TestVerifyLedgerAfterActivity(t *testing.T) {
	withTempDB(t)
	rootOpts := &RootOptions{Format: "text"}

	_, err := runCommand(t, NewStopCommand(rootOpts))
	require.NoError(t, err)
	_, err = runCommand(t, NewResumeCommand(rootOpts))
	require.NoError(t, err)

	out, err := runCommand(t, NewVerifyLedgerCommand(rootOpts))
	require.NoError(t, err)
	assert.Contains(t, out, "ledger ok, 2 entries verified")
}

func TestExportWritesSnapshotFile(t *testing.T) {
	withTempDB(t)
	rootOpts := &RootOptions{Format: "text"}

	path := filepath.Join(t.TempDir(), "backup.json")
	out, err := runCommand(t, NewExportCommand(rootOpts), "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	snap, err := snapshot.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, snapshot.CurrentVersion, snap.Version)
}

func TestRestoreRequiresProof(t *testing.T) {
	withTempDB(t)
	rootOpts := &RootOptions{Format: "text"}

	path := filepath.Join(t.TempDir(), "backup.json")
	_, err := runCommand(t, NewExportCommand(rootOpts), "--output", path)
	require.NoError(t, err)

	_, err = runCommand(t, NewRestoreCommand(rootOpts), "--input", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "missing credential")
}

func TestRestoreRoundTrip(t *testing.T) {
	withTempDB(t)
	hash, err := auth.HashCredential("open-sesame")
	require.NoError(t, err)
	t.Setenv("GIFTKEEP_ADMIN_HASH", hash)
	rootOpts := &RootOptions{Format: "text"}

	path := filepath.Join(t.TempDir(), "backup.json")
	_, err = runCommand(t, NewExportCommand(rootOpts), "--output", path)
	require.NoError(t, err)

	out, err := runCommand(t, NewRestoreCommand(rootOpts), "--input", path, "--proof", "open-sesame")
	require.NoError(t, err)
	assert.Contains(t, out, "restored 0 rows")

	_, err = runCommand(t, NewRestoreCommand(rootOpts), "--input", path, "--proof", "wrong")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestHashCredential(t *testing.T) {
	rootOpts := &RootOptions{Format: "text"}
	out, err := runCommand(t, NewHashCredentialCommand(rootOpts), "hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "$2"), "expected a bcrypt hash, got %q", out)
}

func TestMintToken(t *testing.T) {
	withTempDB(t)
	t.Setenv("GIFTKEEP_JWT_SECRET", "test-secret")
	rootOpts := &RootOptions{Format: "text"}

	out, err := runCommand(t, NewMintTokenCommand(rootOpts), "--subject", "alice", "--role", "admin")
	require.NoError(t, err)

	token := strings.TrimSpace(out)
	parser := auth.NewTokenParser("test-secret")
	principal, err := parser.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Subject)
	assert.True(t, principal.IsAdmin())
}

func TestMintTokenRejectsUnknownRole(t *testing.T) {
	rootOpts := &RootOptions{Format: "text"}
	_, err := runCommand(t, NewMintTokenCommand(rootOpts), "--subject", "alice", "--role", "superuser")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
