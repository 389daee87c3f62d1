package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/fxledger/internal/exchange"
	"github.com/roach88/fxledger/internal/ledger"
)

// NewRatesCommand creates the rates command.
func NewRatesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rates",
		Short:         "List exchange rates",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(rt *Runtime, f *OutputFormatter) error {
				rates := rt.Service.Rates()
				return f.Render(rates, func(w io.Writer) {
					writeRates(w, rates)
				})
			})
		},
	}
}

// NewSetRateCommand creates the set-rate command.
func NewSetRateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-rate <base> <counter> <rate>",
		Short: "Set an exchange rate and its reciprocal",
		Long: `Set the rate for base -> counter.

The reverse rate counter -> base is set in the same operation to the
reciprocal rounded to five decimal places.

Example:
  fxledger set-rate USD EUR 0.90`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			rate, err := ledger.ParseAmount(args[2])
			if err != nil {
				return f.Fail("set rate", err)
			}

			return withRuntime(rootOpts, cmd, func(rt *Runtime, f *OutputFormatter) error {
				res, err := rt.Service.SetRate(cmd.Context(), exchange.RateRequest{
					BaseCurrency:    args[0],
					CounterCurrency: args[1],
					Rate:            rate,
				})
				if err != nil {
					return f.Fail("set rate", err)
				}
				return f.Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "Rate set: %s (reciprocal %s)\n", res.Rate, res.ReciprocalRate)
				})
			})
		},
	}
}

func writeRates(w io.Writer, rates map[string]map[string]decimal.Decimal) {
	if len(rates) == 0 {
		fmt.Fprintln(w, "No rates.")
		return
	}

	bases := make([]string, 0, len(rates))
	for base := range rates {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BASE\tCOUNTER\tRATE")
	for _, base := range bases {
		counters := make([]string, 0, len(rates[base]))
		for counter := range rates[base] {
			counters = append(counters, counter)
		}
		sort.Strings(counters)
		for _, counter := range counters {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", base, counter, rates[base][counter])
		}
	}
	tw.Flush()
}
