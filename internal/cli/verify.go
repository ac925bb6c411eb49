package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewVerifyLedgerCommand creates the verify-ledger command.
func NewVerifyLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-ledger",
		Short: "Verify the ledger hash chain",
		Long: `Recompute every ledger entry hash and check the chain links.

Exits 1 on the first broken link.

Example:
  giftkeep verify-ledger`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyLedger(cmd.OutOrStdout(), rootOpts)
		},
	}
	return cmd
}

func runVerifyLedger(stdout io.Writer, rootOpts *RootOptions) error {
	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	checked, err := a.ledger.Verify(context.Background())
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("chain broken after %d valid entries", checked), err)
	}

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: stdout}
	return formatter.Emit(map[string]any{"verified": checked, "ok": true}, func(w io.Writer) {
		fmt.Fprintf(w, "ledger ok, %d entries verified\n", checked)
	})
}
