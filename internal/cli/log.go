package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fxledger/internal/ledger"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	FailedOnly bool
	Limit      int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the exchange log",
		Long: `Show every recorded exchange attempt in the order it was settled.

Example:
  fxledger log --failed
  fxledger log --limit 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(rt *Runtime, f *OutputFormatter) error {
				entries := filterLog(rt.Service.Log(), opts.FailedOnly, opts.Limit)
				return f.Render(entries, func(w io.Writer) {
					if len(entries) == 0 {
						fmt.Fprintln(w, "No log entries.")
						return
					}
					for _, e := range entries {
						writeEntry(w, e)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.FailedOnly, "failed", false, "only show failed exchanges")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "only show the last N entries (0 = all)")

	return cmd
}

// filterLog keeps failed entries if failedOnly is set, then the last limit
// entries if limit is positive.
func filterLog(entries []ledger.LogEntry, failedOnly bool, limit int) []ledger.LogEntry {
	out := make([]ledger.LogEntry, 0, len(entries))
	for _, e := range entries {
		if failedOnly && e.OK {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
