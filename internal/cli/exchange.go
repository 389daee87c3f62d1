package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fxledger/internal/ledger"
)

// ExchangeOptions holds flags for the exchange command.
type ExchangeOptions struct {
	*RootOptions
	BaseAccount    int64
	CounterAccount int64
}

// NewExchangeCommand creates the exchange command.
func NewExchangeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExchangeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exchange <base> <counter> <amount>",
		Short: "Exchange an amount between two client accounts",
		Long: `Exchange amount of base currency from the client's base account into
counter currency on the client's counter account.

The ledger withdraws the base amount into its own base account, deposits
the converted amount from its own counter account, and records the attempt
in the log. A failed exchange is still logged and exits with code 1.

Example:
  fxledger exchange USD EUR 50 --from 10 --to 20`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExchange(opts, args, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.BaseAccount, "from", 0, "client account debited in the base currency (required)")
	cmd.Flags().Int64Var(&opts.CounterAccount, "to", 0, "client account credited in the counter currency (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runExchange(opts *ExchangeOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	amount, err := ledger.ParseAmount(args[2])
	if err != nil {
		return f.Fail("exchange", err)
	}

	return withRuntime(opts.RootOptions, cmd, func(rt *Runtime, f *OutputFormatter) error {
		entry, err := rt.Service.Exchange(cmd.Context(), ledger.ExchangeRequest{
			BaseCurrency:     args[0],
			CounterCurrency:  args[1],
			BaseAccountID:    opts.BaseAccount,
			CounterAccountID: opts.CounterAccount,
			BaseAmount:       amount,
		})
		if err != nil {
			return f.Fail("exchange", err)
		}

		if err := f.Render(entry, func(w io.Writer) {
			writeEntry(w, entry)
		}); err != nil {
			return err
		}
		if !entry.OK {
			return NewExitError(ExitFailure, fmt.Sprintf("exchange %s failed: %s", entry.ID, observation(entry)))
		}
		return nil
	})
}

func observation(entry ledger.LogEntry) string {
	if entry.Observation == nil {
		return ""
	}
	return *entry.Observation
}

func writeEntry(w io.Writer, entry ledger.LogEntry) {
	req := entry.Request
	status := "OK"
	if !entry.OK {
		status = "FAILED"
	}
	fmt.Fprintf(w, "%s %s %s %s %s -> %s %s (rate %s, accounts %d -> %d)",
		entry.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		entry.ID,
		status,
		req.BaseAmount, req.BaseCurrency,
		entry.CounterAmount, req.CounterCurrency,
		entry.ExchangeRate,
		req.BaseAccountID, req.CounterAccountID,
	)
	if obs := observation(entry); obs != "" {
		fmt.Fprintf(w, ": %s", obs)
	}
	fmt.Fprintln(w)
}
