package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/fxledger/internal/ledger"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry creates a settlement log entry with minimal required fields.
func createTestEntry(id string, ok bool, obs string) ledger.LogEntry {
	e := ledger.LogEntry{
		ID:        id,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Request: ledger.ExchangeRequest{
			BaseCurrency:     "USD",
			CounterCurrency:  "EUR",
			BaseAccountID:    10,
			CounterAccountID: 20,
			BaseAmount:       decimal.RequireFromString("50"),
		},
		ExchangeRate:  decimal.RequireFromString("0.9"),
		CounterAmount: decimal.RequireFromString("45"),
		OK:            ok,
	}
	if obs != "" {
		e.Observation = &obs
	}
	return e
}

func createTestSnapshot() *ledger.Snapshot {
	return &ledger.Snapshot{
		Accounts: []ledger.Account{
			{ID: 7, Currency: "EUR", Balance: decimal.RequireFromString("55")},
			{ID: 3, Currency: "USD", Balance: decimal.RequireFromString("50.25")},
		},
		Rates: ledger.RateTable{
			{Base: "USD", Counter: "EUR"}: decimal.RequireFromString("0.9"),
			{Base: "EUR", Counter: "USD"}: decimal.RequireFromString("1.11111"),
		},
		Log: []ledger.LogEntry{
			createTestEntry("entry-1", true, ""),
			createTestEntry("entry-2", false, "Not enough funds on counter currency account"),
		},
	}
}
