package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// RestoreOptions holds restore command configuration.
type RestoreOptions struct {
	Input string
	Proof string
	Actor string
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{}

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the database contents from a snapshot",
		Long: `Replace every replaceable collection from a snapshot file.

The snapshot is shape-checked and version-checked, the admin credential is
re-verified, and the replace runs in a single transaction. Ledger history
is never replaced; restored ledger entries append alongside existing ones.

Requires the admin credential via --proof or the GIFTKEEP_PROOF
environment variable.

Example:
  giftkeep restore --input backup.json --proof "$CREDENTIAL"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd.OutOrStdout(), rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "snapshot file to restore from (required)")
	cmd.Flags().StringVar(&opts.Proof, "proof", "", "admin credential for re-authentication")
	cmd.Flags().StringVar(&opts.Actor, "actor", "admin", "actor recorded in the ledger entry")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runRestore(stdout io.Writer, rootOpts *RootOptions, opts *RestoreOptions) error {
	proof := opts.Proof
	if proof == "" {
		proof = os.Getenv("GIFTKEEP_PROOF")
	}
	if proof == "" {
		return NewExitError(ExitCommandError, "missing credential: pass --proof or set GIFTKEEP_PROOF")
	}

	raw, err := os.ReadFile(opts.Input)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Restore(context.Background(), raw, proof, opts.Actor)
	if err != nil {
		return WrapExitError(ExitFailure, "restore rejected", err)
	}

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: stdout}
	return formatter.Emit(res, func(w io.Writer) {
		fmt.Fprintf(w, "restored %d rows across %d collections\n", res.TotalRows, res.Tables)
		if res.SkippedRows > 0 {
			fmt.Fprintf(w, "skipped %d rows with unknown or mistyped fields\n", res.SkippedRows)
			for _, te := range res.TypeErrors {
				fmt.Fprintf(w, "  %s.%s: expected %s, got %s\n", te.Collection, te.Field, te.Expected, te.Got)
			}
		}
	})
}
