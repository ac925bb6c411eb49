package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ExportOptions holds export command configuration.
type ExportOptions struct {
	Output string
	Actor  string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a full snapshot of the database",
		Long: `Export every collection as a versioned JSON snapshot.

The export itself is recorded in the ledger. Writes to stdout unless
--output is given.

Example:
  giftkeep export --output backup.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.OutOrStdout(), rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the snapshot to a file instead of stdout")
	cmd.Flags().StringVar(&opts.Actor, "actor", "admin", "actor recorded in the ledger entry")

	return cmd
}

func runExport(stdout io.Writer, rootOpts *RootOptions, opts *ExportOptions) error {
	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.exporter.Export(context.Background(), opts.Actor)
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}

	data, err := snap.Marshal()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode snapshot", err)
	}

	if opts.Output == "" {
		_, err := stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(opts.Output, data, 0o600); err != nil {
		return WrapExitError(ExitCommandError, "failed to write snapshot", err)
	}
	fmt.Fprintf(stdout, "wrote %d rows across %d collections to %s\n", snap.TotalRows(), len(snap.Collections), opts.Output)
	return nil
}
