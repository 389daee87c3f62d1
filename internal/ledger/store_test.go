package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestStore creates a store with a USD (1) and EUR (2) account.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.AddAccount(Account{ID: 1, Currency: "USD", Balance: d("0")}))
	require.NoError(t, s.AddAccount(Account{ID: 2, Currency: "EUR", Balance: d("100")}))
	s.ClearDirty()
	return s
}

func TestStore_LookupsAgree(t *testing.T) {
	s := newTestStore(t)

	byID, err := s.AccountByID(2)
	require.NoError(t, err)
	byCur, err := s.AccountByCurrency("EUR")
	require.NoError(t, err)
	assert.Equal(t, byID, byCur)

	_, err = s.AccountByID(99)
	assert.True(t, IsNotFound(err))
	_, err = s.AccountByCurrency("GBP")
	assert.True(t, IsNotFound(err))
}

func TestStore_SetAccountBalance_UpdatesBothViews(t *testing.T) {
	s := newTestStore(t)

	acc, err := s.SetAccountBalance(1, d("250.5"))
	require.NoError(t, err)
	assert.Equal(t, "250.5", acc.Balance.String())

	byCur, err := s.AccountByCurrency("USD")
	require.NoError(t, err)
	assert.Equal(t, "250.5", byCur.Balance.String())
	assert.Equal(t, ArtifactAccounts, s.Dirty())
	require.NoError(t, s.Verify())
}

func TestStore_SetAccountBalance_Rejects(t *testing.T) {
	s := newTestStore(t)
	before := s.Snapshot()

	_, err := s.SetAccountBalance(1, d("-5"))
	assert.True(t, IsValidation(err))

	_, err = s.SetAccountBalance(42, d("5"))
	assert.True(t, IsNotFound(err))

	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, ArtifactNone, s.Dirty())
}

func TestStore_AddAccount_Uniqueness(t *testing.T) {
	s := newTestStore(t)

	err := s.AddAccount(Account{ID: 1, Currency: "GBP", Balance: d("1")})
	assert.True(t, IsValidation(err), "duplicate id")

	err = s.AddAccount(Account{ID: 3, Currency: "EUR", Balance: d("1")})
	assert.True(t, IsValidation(err), "duplicate currency")

	err = s.AddAccount(Account{ID: 3, Currency: "GBP", Balance: d("-1")})
	assert.True(t, IsValidation(err), "negative balance")

	require.NoError(t, s.AddAccount(Account{ID: 3, Currency: "GBP", Balance: d("7")}))
	assert.Len(t, s.Accounts(), 3)
	require.NoError(t, s.Verify())
}

func TestStore_SetRate_SetsReciprocal(t *testing.T) {
	tests := []struct {
		name       string
		rate       string
		reciprocal string
	}{
		{"usd eur", "0.90", "1.11111"},
		{"exact", "2", "0.5"},
		{"rounds up", "3", "0.33333"},
		{"large", "1000", "0.001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			rec, err := s.SetRate("USD", "EUR", d(tt.rate))
			require.NoError(t, err)
			assert.Equal(t, tt.reciprocal, rec.String())

			fwd, err := s.Rate("USD", "EUR")
			require.NoError(t, err)
			assert.True(t, fwd.Equal(d(tt.rate)))

			back, err := s.Rate("EUR", "USD")
			require.NoError(t, err)
			assert.Equal(t, tt.reciprocal, back.String())
			assert.Equal(t, ArtifactRates, s.Dirty())
		})
	}
}

func TestStore_SetRate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		counter string
		rate    string
	}{
		{"zero", "USD", "EUR", "0"},
		{"negative", "USD", "EUR", "-1"},
		{"same currency", "USD", "USD", "1"},
		{"missing currency", "", "EUR", "1"},
		{"reciprocal rounds to zero", "USD", "XXX", "1000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			_, err := s.SetRate(tt.base, tt.counter, d(tt.rate))
			assert.True(t, IsValidation(err), "got %v", err)
			assert.Empty(t, s.Snapshot().Rates)
		})
	}
}

func TestStore_Rate_NotFound(t *testing.T) {
	s := NewStore()
	_, err := s.Rate("USD", "EUR")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "USD/EUR")
}

func TestStore_AdjustBalance(t *testing.T) {
	s := newTestStore(t)

	acc, err := s.AdjustBalance("EUR", d("-45"))
	require.NoError(t, err)
	assert.Equal(t, "55", acc.Balance.String())

	_, err = s.AdjustBalance("EUR", d("-56"))
	assert.True(t, IsValidation(err))

	_, err = s.AdjustBalance("JPY", d("1"))
	assert.True(t, IsNotFound(err))
}

func TestStore_SnapshotIsIndependent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SetRate("USD", "EUR", d("0.9"))
	require.NoError(t, err)
	s.AppendLogEntry(LogEntry{ID: "a"})

	snap := s.Snapshot()

	// Mutating the live store must not leak into the snapshot.
	_, err = s.SetAccountBalance(2, d("1"))
	require.NoError(t, err)
	_, err = s.SetRate("USD", "EUR", d("0.5"))
	require.NoError(t, err)
	s.AppendLogEntry(LogEntry{ID: "b"})

	assert.Equal(t, "100", snap.Accounts[1].Balance.String())
	assert.Equal(t, "0.9", snap.Rates[Pair{"USD", "EUR"}].String())
	assert.Len(t, snap.Log, 1)

	// And mutating the snapshot's slices must not leak into the store.
	snap.Accounts[0].Balance = d("999")
	acc, err := s.AccountByID(1)
	require.NoError(t, err)
	assert.Equal(t, "0", acc.Balance.String())
}

func TestStore_RestoreUndoesEverything(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SetRate("USD", "EUR", d("0.9"))
	require.NoError(t, err)
	s.ClearDirty()

	snap := s.Snapshot()

	_, err = s.SetAccountBalance(1, d("10"))
	require.NoError(t, err)
	require.NoError(t, s.AddAccount(Account{ID: 3, Currency: "GBP"}))
	_, err = s.SetRate("USD", "GBP", d("0.8"))
	require.NoError(t, err)
	s.AppendLogEntry(LogEntry{ID: "x"})

	s.Restore(snap)

	assert.Equal(t, snap, s.Snapshot())
	assert.Equal(t, ArtifactNone, s.Dirty())
	_, err = s.AccountByCurrency("GBP")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 0, s.LogLen())
	require.NoError(t, s.Verify())

	// Appending after a restore must not disturb the snapshot either.
	s.AppendLogEntry(LogEntry{ID: "y"})
	assert.Empty(t, snap.Log)
}

func TestFromSnapshot_RejectsCorruptState(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
	}{
		{"duplicate id", &Snapshot{Accounts: []Account{{ID: 1, Currency: "USD"}, {ID: 1, Currency: "EUR"}}}},
		{"duplicate currency", &Snapshot{Accounts: []Account{{ID: 1, Currency: "USD"}, {ID: 2, Currency: "USD"}}}},
		{"negative balance", &Snapshot{Accounts: []Account{{ID: 1, Currency: "USD", Balance: d("-1")}}}},
		{"zero rate", &Snapshot{Rates: RateTable{{"USD", "EUR"}: d("0")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSnapshot(tt.snap)
			assert.Error(t, err)
		})
	}
}

func TestVerify_RateWithoutInverse(t *testing.T) {
	s, err := FromSnapshot(&Snapshot{Rates: RateTable{{"USD", "EUR"}: d("0.9")}})
	require.NoError(t, err)

	err = s.Verify()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "no inverse EUR_USD")

	_, err = s.SetRate("USD", "EUR", d("0.9"))
	require.NoError(t, err)
	assert.NoError(t, s.Verify())
}

func TestFromSnapshot_Nil(t *testing.T) {
	s, err := FromSnapshot(nil)
	require.NoError(t, err)
	assert.Empty(t, s.Accounts())
	assert.Equal(t, 0, s.LogLen())
}

func TestArtifact_String(t *testing.T) {
	assert.Equal(t, "none", ArtifactNone.String())
	assert.Equal(t, "accounts|log", (ArtifactAccounts | ArtifactLog).String())
	assert.Equal(t, "accounts|rates|log", ArtifactAll.String())
}
