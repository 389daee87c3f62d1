package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/fxledger/internal/ledger"
)

// NewAccountsCommand creates the accounts command.
func NewAccountsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "accounts",
		Short:         "List the ledger's currency accounts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(rt *Runtime, f *OutputFormatter) error {
				accounts := rt.Service.Accounts()
				return f.Render(accounts, func(w io.Writer) {
					writeAccounts(w, accounts)
				})
			})
		},
	}
}

// NewAddAccountCommand creates the add-account command.
func NewAddAccountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-account <id> <currency> <balance>",
		Short: "Provision the ledger's account for a currency",
		Long: `Provision the ledger's own account for a currency.

The ledger holds exactly one account per currency; ids and currencies
must be unique.

Example:
  fxledger add-account 2 EUR 1000`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			id, err := parseAccountID(args[0])
			if err != nil {
				return f.Fail("add account", err)
			}
			balance, err := ledger.ParseAmount(args[2])
			if err != nil {
				return f.Fail("add account", err)
			}

			return withRuntime(rootOpts, cmd, func(rt *Runtime, f *OutputFormatter) error {
				acc, err := rt.Service.AddAccount(cmd.Context(), ledger.Account{ID: id, Currency: args[1], Balance: balance})
				if err != nil {
					return f.Fail("add account", err)
				}
				return f.Render(acc, func(w io.Writer) {
					fmt.Fprintf(w, "Added account %d (%s) with balance %s\n", acc.ID, acc.Currency, acc.Balance)
				})
			})
		},
	}
}

// NewSetBalanceCommand creates the set-balance command.
func NewSetBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-balance <id> <balance>",
		Short: "Replace an account's balance",
		Long: `Replace the balance of one of the ledger's accounts.

Example:
  fxledger set-balance 2 1000.50`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			id, err := parseAccountID(args[0])
			if err != nil {
				return f.Fail("set balance", err)
			}
			balance, err := ledger.ParseAmount(args[1])
			if err != nil {
				return f.Fail("set balance", err)
			}

			return withRuntime(rootOpts, cmd, func(rt *Runtime, f *OutputFormatter) error {
				res, err := rt.Service.SetAccountBalance(cmd.Context(), id, balance)
				if err != nil {
					return f.Fail("set balance", err)
				}
				return f.Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "Account %d (%s) balance set to %s\n", res.Account.ID, res.Account.Currency, res.Account.Balance)
				})
			})
		},
	}
}

func parseAccountID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ledger.Validationf("parse account id", "%q is not an integer account id", s)
	}
	return id, nil
}

func writeAccounts(w io.Writer, accounts []ledger.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No accounts.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCURRENCY\tBALANCE")
	for _, acc := range accounts {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", acc.ID, acc.Currency, acc.Balance)
	}
	tw.Flush()
}
