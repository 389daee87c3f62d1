package harness

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/fxledger/internal/ledger"
)

// evaluateAssertion checks a single assertion against the committed view.
func evaluateAssertion(a Assertion, view *ledger.Snapshot, result *Result) error {
	switch a.Type {
	case AssertBalance:
		return assertBalance(a, view)
	case AssertRate:
		return assertRate(a, view)
	case AssertLogCount:
		return assertLogCount(a, view)
	case AssertTransferCount:
		if got := len(result.Transfers); got != a.Count {
			return fmt.Errorf("expected %d transfers, got %d", a.Count, got)
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertBalance verifies the balance of the internal account for a currency.
func assertBalance(a Assertion, view *ledger.Snapshot) error {
	code, err := ledger.NormalizeCurrency(a.Currency)
	if err != nil {
		return err
	}
	want, err := decimal.NewFromString(a.Equals)
	if err != nil {
		return fmt.Errorf("invalid expected balance %q: %w", a.Equals, err)
	}

	for _, acc := range view.Accounts {
		if acc.Currency == code {
			if !acc.Balance.Equal(want) {
				return fmt.Errorf("%s balance: expected %s, got %s", code, want, acc.Balance)
			}
			return nil
		}
	}
	return fmt.Errorf("no account for currency %s", code)
}

// assertRate verifies a committed rate. An empty Equals expects no rate.
func assertRate(a Assertion, view *ledger.Snapshot) error {
	base, err := ledger.NormalizeCurrency(a.Base)
	if err != nil {
		return err
	}
	counter, err := ledger.NormalizeCurrency(a.Counter)
	if err != nil {
		return err
	}
	pair := ledger.Pair{Base: base, Counter: counter}
	got, ok := view.Rates[pair]

	if a.Equals == "" {
		if ok {
			return fmt.Errorf("expected no rate for %s, got %s", pair, got)
		}
		return nil
	}

	want, err := decimal.NewFromString(a.Equals)
	if err != nil {
		return fmt.Errorf("invalid expected rate %q: %w", a.Equals, err)
	}
	if !ok {
		return fmt.Errorf("rate %s not found", pair)
	}
	if !got.Equal(want) {
		return fmt.Errorf("rate %s: expected %s, got %s", pair, want, got)
	}
	return nil
}

// assertLogCount verifies the number of log entries, optionally filtered by
// their ok flag.
func assertLogCount(a Assertion, view *ledger.Snapshot) error {
	count := 0
	for _, entry := range view.Log {
		if a.OK == nil || entry.OK == *a.OK {
			count++
		}
	}
	if count != a.Count {
		label := "log entries"
		if a.OK != nil {
			label = fmt.Sprintf("log entries with ok=%t", *a.OK)
		}
		return fmt.Errorf("expected %d %s, got %d", a.Count, label, count)
	}
	return nil
}

// expectError compares a step's error against its expect clause.
func expectError(e *Expect, err error) error {
	want := ""
	if e != nil {
		want = e.Error
	}

	switch {
	case want == "" && err != nil:
		return fmt.Errorf("unexpected error: %v", err)
	case want != "" && err == nil:
		return fmt.Errorf("expected error %s, got success", want)
	case want != "" && string(ledger.KindOf(err)) != want:
		return fmt.Errorf("expected error %s, got %s (%v)", want, ledger.KindOf(err), err)
	}
	return nil
}

// expectDecimal compares got with want unless want is empty.
func expectDecimal(field, want string, got decimal.Decimal) error {
	if want == "" {
		return nil
	}
	w, err := decimal.NewFromString(want)
	if err != nil {
		return fmt.Errorf("invalid expected %s %q: %w", field, want, err)
	}
	if !got.Equal(w) {
		return fmt.Errorf("%s: expected %s, got %s", field, w, got)
	}
	return nil
}

// checkEntry compares a settled log entry against the expect clause.
func checkEntry(e *Expect, entry ledger.LogEntry) []error {
	if e == nil {
		return nil
	}

	var errs []error
	if e.OK != nil && entry.OK != *e.OK {
		errs = append(errs, fmt.Errorf("ok: expected %t, got %t", *e.OK, entry.OK))
	}
	errs = append(errs, expectDecimal("counter_amount", e.CounterAmount, entry.CounterAmount))
	if e.Observation != "" {
		got := ""
		if entry.Observation != nil {
			got = *entry.Observation
		}
		if got != e.Observation {
			errs = append(errs, fmt.Errorf("observation: expected %q, got %q", e.Observation, got))
		}
	}
	return errs
}
