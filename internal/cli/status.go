package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

// statusReport is the status command's output document.
type statusReport struct {
	DBPath        string           `json:"dbPath"`
	EmergencyStop bool             `json:"emergencyStop"`
	TotalRows     int64            `json:"totalRows"`
	Collections   map[string]int64 `json:"collections"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database and switch status",
		Long: `Show per-collection row counts and the emergency stop state.

Example:
  giftkeep status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), rootOpts)
		},
	}
	return cmd
}

func runStatus(stdout io.Writer, rootOpts *RootOptions) error {
	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	counts, total, err := a.store.Counts(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count rows", err)
	}
	stopped, err := a.sw.Stopped(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read switch state", err)
	}

	report := statusReport{
		DBPath:        a.store.Path(),
		EmergencyStop: stopped,
		TotalRows:     total,
		Collections:   counts,
	}

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: stdout}
	return formatter.Emit(report, func(w io.Writer) {
		fmt.Fprintf(w, "database: %s\n", report.DBPath)
		if report.EmergencyStop {
			fmt.Fprintln(w, "purchasing: STOPPED")
		} else {
			fmt.Fprintln(w, "purchasing: active")
		}
		names := make([]string, 0, len(report.Collections))
		for name := range report.Collections {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-16s %d\n", name, report.Collections[name])
		}
		fmt.Fprintf(w, "total rows: %d\n", report.TotalRows)
	})
}
