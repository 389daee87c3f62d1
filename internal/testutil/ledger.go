package testutil

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fxledger/internal/engine"
	"github.com/roach88/fxledger/internal/ledger"
)

// Dec parses a decimal literal, failing loudly on typos.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewStore builds a ledger holding accounts, in order.
func NewStore(t testing.TB, accounts ...ledger.Account) *ledger.Store {
	t.Helper()
	s := ledger.NewStore()
	for _, acc := range accounts {
		require.NoError(t, s.AddAccount(acc))
	}
	s.ClearDirty()
	return s
}

// StartEngine runs e on its own goroutine until the test ends.
func StartEngine(t testing.TB, e *engine.Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}
