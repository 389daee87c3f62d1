package ledger

import "github.com/shopspring/decimal"

// Snapshot is a point-in-time copy of the ledger. It shares nothing mutable
// with the Store it came from; log entries are immutable and may be shared.
// Treat a Snapshot as read-only.
type Snapshot struct {
	Accounts []Account
	Rates    RateTable
	Log      []LogEntry
}

// Snapshot returns a deep, independent copy of the store.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{
		Accounts: s.Accounts(),
		Rates:    s.rates.Clone(),
		// Cap the slice so appends to the live log never write into it.
		Log: s.log[:len(s.log):len(s.log)],
	}
}

// Restore replaces the store contents with snap. The snapshot stays usable
// afterwards: nothing the store does later can change it.
func (s *Store) Restore(snap *Snapshot) {
	s.accounts = make([]Account, len(snap.Accounts))
	copy(s.accounts, snap.Accounts)

	s.byID = make(map[int64]int, len(s.accounts))
	s.byCurrency = make(map[string]int, len(s.accounts))
	for i, acc := range s.accounts {
		s.byID[acc.ID] = i
		s.byCurrency[acc.Currency] = i
	}

	s.rates = snap.Rates.Clone()
	s.log = snap.Log[:len(snap.Log):len(snap.Log)]
	s.dirty = ArtifactNone
}

// AccountsCopy returns a copy of the accounts safe to mutate.
func (snap *Snapshot) AccountsCopy() []Account {
	out := make([]Account, len(snap.Accounts))
	copy(out, snap.Accounts)
	return out
}

// LogCopy returns a copy of the log in append order.
func (snap *Snapshot) LogCopy() []LogEntry {
	out := make([]LogEntry, len(snap.Log))
	copy(out, snap.Log)
	return out
}

// NestedRates returns the rates as base -> counter -> rate.
func (snap *Snapshot) NestedRates() map[string]map[string]decimal.Decimal {
	return snap.Rates.Nested()
}

// TotalBalance sums every account balance.
func (snap *Snapshot) TotalBalance() decimal.Decimal {
	total := decimal.Zero
	for _, acc := range snap.Accounts {
		total = total.Add(acc.Balance)
	}
	return total
}
