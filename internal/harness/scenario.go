package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fxledger/internal/ledger"
)

// Scenario defines a ledger test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Accounts are the ledger's own accounts before the first step.
	Accounts []AccountSeed `yaml:"accounts,omitempty"`

	// Rates are set, with their reciprocals, before the first step.
	Rates []RateSeed `yaml:"rates,omitempty"`

	// Transfers scripts the bank: one "ok" or "declined" per call, in order.
	// Calls beyond the script succeed.
	Transfers []string `yaml:"transfers,omitempty"`

	// CompensationAttempts overrides the compensating transfer retry count.
	CompensationAttempts int `yaml:"compensation_attempts,omitempty"`

	// Steps are executed in order against the running engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// AccountSeed is an internal account in setup or in an add_account step.
type AccountSeed struct {
	ID       int64  `yaml:"id"`
	Currency string `yaml:"currency"`
	Balance  string `yaml:"balance"`
}

// RateSeed is a rate in setup or in a set_rate step.
type RateSeed struct {
	Base    string `yaml:"base"`
	Counter string `yaml:"counter"`
	Rate    string `yaml:"rate"`
}

// BalanceStep replaces an account balance.
type BalanceStep struct {
	Account int64  `yaml:"account"`
	Balance string `yaml:"balance"`
}

// ExchangeStep is an exchange request.
type ExchangeStep struct {
	Base           string `yaml:"base"`
	Counter        string `yaml:"counter"`
	BaseAccount    int64  `yaml:"base_account"`
	CounterAccount int64  `yaml:"counter_account"`
	Amount         string `yaml:"amount"`
}

// Step is one operation. Exactly one of the operation fields is set.
type Step struct {
	SetRate    *RateSeed     `yaml:"set_rate,omitempty"`
	SetBalance *BalanceStep  `yaml:"set_balance,omitempty"`
	AddAccount *AccountSeed  `yaml:"add_account,omitempty"`
	Exchange   *ExchangeStep `yaml:"exchange,omitempty"`
	Restart    bool          `yaml:"restart,omitempty"`

	// Expect checks the step's outcome. Nil expects success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Op names the step's operation.
func (s Step) Op() string {
	switch {
	case s.SetRate != nil:
		return OpSetRate
	case s.SetBalance != nil:
		return OpSetBalance
	case s.AddAccount != nil:
		return OpAddAccount
	case s.Exchange != nil:
		return OpExchange
	case s.Restart:
		return OpRestart
	default:
		return ""
	}
}

func (s Step) opCount() int {
	n := 0
	for _, set := range []bool{s.SetRate != nil, s.SetBalance != nil, s.AddAccount != nil, s.Exchange != nil, s.Restart} {
		if set {
			n++
		}
	}
	return n
}

// Step operations.
const (
	OpSetRate    = "set_rate"
	OpSetBalance = "set_balance"
	OpAddAccount = "add_account"
	OpExchange   = "exchange"
	OpRestart    = "restart"
)

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected ledger error kind (e.g. "VALIDATION_ERROR").
	// Empty expects the step to succeed.
	Error string `yaml:"error,omitempty"`

	// OK is the expected settlement flag (exchange only).
	OK *bool `yaml:"ok,omitempty"`

	// CounterAmount is the expected computed amount (exchange only).
	CounterAmount string `yaml:"counter_amount,omitempty"`

	// Observation is the expected failure reason (exchange only).
	Observation string `yaml:"observation,omitempty"`

	// ReciprocalRate is the expected reciprocal (set_rate only).
	ReciprocalRate string `yaml:"reciprocal_rate,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of balance, rate, log_count, transfer_count.
	Type string `yaml:"type"`

	// Currency selects the account (balance).
	Currency string `yaml:"currency,omitempty"`

	// Base and Counter select the rate (rate).
	Base    string `yaml:"base,omitempty"`
	Counter string `yaml:"counter,omitempty"`

	// Equals is the expected decimal value (balance, rate).
	// An empty Equals on a rate assertion expects the rate to be absent.
	Equals string `yaml:"equals,omitempty"`

	// Count is the expected number (log_count, transfer_count).
	Count int `yaml:"count,omitempty"`

	// OK filters log_count to successful or failed entries.
	OK *bool `yaml:"ok,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance       = "balance"
	AssertRate          = "rate"
	AssertLogCount      = "log_count"
	AssertTransferCount = "transfer_count"
)

// Bank script outcomes.
const (
	TransferOK       = "ok"
	TransferDeclined = "declined"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.CompensationAttempts < 0 {
		return fmt.Errorf("compensation_attempts must be non-negative")
	}

	for i, acc := range s.Accounts {
		if _, err := ledger.ParseAmount(acc.Balance); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}
	for i, r := range s.Rates {
		if _, err := ledger.ParseAmount(r.Rate); err != nil {
			return fmt.Errorf("rates[%d]: %w", i, err)
		}
	}
	for i, t := range s.Transfers {
		if t != TransferOK && t != TransferDeclined {
			return fmt.Errorf("transfers[%d]: must be %q or %q, got %q", i, TransferOK, TransferDeclined, t)
		}
	}

	for i, step := range s.Steps {
		if n := step.opCount(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one operation is required, got %d", i, n)
		}
		if step.Restart && step.Expect != nil {
			return fmt.Errorf("steps[%d]: restart takes no expect clause", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertBalance:
		if a.Currency == "" || a.Equals == "" {
			return fmt.Errorf("assertions[%d]: currency and equals are required for balance", index)
		}
	case AssertRate:
		if a.Base == "" || a.Counter == "" {
			return fmt.Errorf("assertions[%d]: base and counter are required for rate", index)
		}
	case AssertLogCount, AssertTransferCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
