package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fxledger/internal/events"
	"github.com/roach88/fxledger/internal/transfer"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	EnvFile    string
	StateDir   string // overrides state.dir
	Backend    string // overrides state.backend

	// LookupEnv reads environment overrides (for testing).
	// If nil, defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Transfers replaces the simulated bank (for testing).
	Transfers transfer.Service

	// Publisher replaces the configured settlement publisher (for testing).
	Publisher events.Publisher
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the fxledger CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fxledger",
		Short: "fxledger - currency exchange ledger",
		Long: `A currency exchange ledger with crash-safe persistence.

Every mutation runs through a single-writer operation queue and is
acknowledged only after it has been written to the state directory.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "path to dotenv file (skipped if missing)")
	cmd.PersistentFlags().StringVar(&opts.StateDir, "state-dir", "", "state directory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "state backend: file|sqlite|pebble (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewAccountsCommand(opts))
	cmd.AddCommand(NewAddAccountCommand(opts))
	cmd.AddCommand(NewSetBalanceCommand(opts))
	cmd.AddCommand(NewRatesCommand(opts))
	cmd.AddCommand(NewSetRateCommand(opts))
	cmd.AddCommand(NewExchangeCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newFormatter builds the output formatter for a command.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// withRuntime opens the ledger, runs fn and closes the ledger again.
func withRuntime(opts *RootOptions, cmd *cobra.Command, fn func(rt *Runtime, f *OutputFormatter) error) (err error) {
	f := newFormatter(opts, cmd)

	rt, err := openRuntime(cmd.Context(), opts, cmd.ErrOrStderr())
	if err != nil {
		return f.Fail("failed to open ledger", err)
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = f.Fail("failed to close ledger", cerr)
		}
	}()

	return fn(rt, f)
}
