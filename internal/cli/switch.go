package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewStopCommand creates the stop command.
func NewStopCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Activate the emergency purchasing stop",
		Long: `Activate the emergency stop.

Every pending or ordered purchase is cancelled in the same transaction
that flips the switch, and each cancellation is recorded in the ledger.
Activating an already-active switch is a no-op.

Example:
  giftkeep stop`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.OutOrStdout(), rootOpts, actor)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "admin", "actor recorded in the ledger entry")
	return cmd
}

func runStop(stdout io.Writer, rootOpts *RootOptions, actor string) error {
	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.sw.Activate(context.Background(), actor)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to activate emergency stop", err)
	}

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: stdout}
	return formatter.Emit(res, func(w io.Writer) {
		fmt.Fprintf(w, "purchasing stopped, %d active purchases cancelled\n", res.CancelledCount)
	})
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Deactivate the emergency purchasing stop",
		Long: `Deactivate the emergency stop.

Purchases cancelled by the stop stay cancelled; they are not revived.

Example:
  giftkeep resume`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd.OutOrStdout(), rootOpts, actor)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "admin", "actor recorded in the ledger entry")
	return cmd
}

func runResume(stdout io.Writer, rootOpts *RootOptions, actor string) error {
	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sw.Deactivate(context.Background(), actor); err != nil {
		return WrapExitError(ExitFailure, "failed to deactivate emergency stop", err)
	}

	fmt.Fprintln(stdout, "purchasing resumed")
	return nil
}
