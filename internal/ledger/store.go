package ledger

import (
	"github.com/shopspring/decimal"
)

// Store is the in-memory ledger: accounts, rates and the settlement log.
//
// Accounts are kept in one owned slice; byID and byCurrency hold positions
// into it. Every mutation records which artifacts it touched so the caller
// can persist exactly those.
type Store struct {
	accounts   []Account
	byID       map[int64]int
	byCurrency map[string]int
	rates      RateTable
	log        []LogEntry
	dirty      Artifact
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:   []Account{},
		byID:       make(map[int64]int),
		byCurrency: make(map[string]int),
		rates:      make(RateTable),
		log:        []LogEntry{},
	}
}

// FromSnapshot rebuilds a store from recovered state.
// Duplicate ids or currencies, negative balances and non-positive rates are
// rejected: such a snapshot is corrupt.
func FromSnapshot(snap *Snapshot) (*Store, error) {
	s := NewStore()
	if snap == nil {
		return s, nil
	}

	for _, acc := range snap.Accounts {
		if err := s.insertAccount(acc); err != nil {
			return nil, err
		}
	}
	for pair, rate := range snap.Rates {
		if !rate.IsPositive() {
			return nil, Validationf("load rates", "rate %s must be positive, got %s", pair, rate)
		}
		s.rates[pair] = rate
	}
	s.log = append(s.log, snap.Log...)
	return s, nil
}

// AccountByID returns the account with the given id.
func (s *Store) AccountByID(id int64) (Account, error) {
	i, ok := s.byID[id]
	if !ok {
		return Account{}, NotFoundf("get account", "account %d not found", id)
	}
	return s.accounts[i], nil
}

// AccountByCurrency returns the engine's account for the given currency.
func (s *Store) AccountByCurrency(code string) (Account, error) {
	i, ok := s.byCurrency[code]
	if !ok {
		return Account{}, NotFoundf("get account", "no account for currency %s", code)
	}
	return s.accounts[i], nil
}

// Accounts returns a copy of all accounts in insertion order.
func (s *Store) Accounts() []Account {
	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// AddAccount provisions a new currency account.
func (s *Store) AddAccount(acc Account) error {
	if err := s.insertAccount(acc); err != nil {
		return err
	}
	s.dirty |= ArtifactAccounts
	return nil
}

func (s *Store) insertAccount(acc Account) error {
	if acc.Currency == "" {
		return Validationf("add account", "account %d: currency is required", acc.ID)
	}
	if acc.Balance.IsNegative() {
		return Validationf("add account", "account %d: balance must be non-negative, got %s", acc.ID, acc.Balance)
	}
	if _, dup := s.byID[acc.ID]; dup {
		return Validationf("add account", "account %d already exists", acc.ID)
	}
	if _, dup := s.byCurrency[acc.Currency]; dup {
		return Validationf("add account", "an account for currency %s already exists", acc.Currency)
	}

	s.accounts = append(s.accounts, acc)
	i := len(s.accounts) - 1
	s.byID[acc.ID] = i
	s.byCurrency[acc.Currency] = i
	return nil
}

// SetAccountBalance replaces the balance of account id.
func (s *Store) SetAccountBalance(id int64, balance decimal.Decimal) (Account, error) {
	if balance.IsNegative() {
		return Account{}, Validationf("set balance", "balance must be non-negative, got %s", balance)
	}
	i, ok := s.byID[id]
	if !ok {
		return Account{}, NotFoundf("set balance", "account %d not found", id)
	}
	s.accounts[i].Balance = balance
	s.dirty |= ArtifactAccounts
	return s.accounts[i], nil
}

// AdjustBalance adds delta (which may be negative) to the account for
// currency. The resulting balance must stay non-negative.
func (s *Store) AdjustBalance(currency string, delta decimal.Decimal) (Account, error) {
	i, ok := s.byCurrency[currency]
	if !ok {
		return Account{}, NotFoundf("adjust balance", "no account for currency %s", currency)
	}
	next := s.accounts[i].Balance.Add(delta)
	if next.IsNegative() {
		return Account{}, Validationf("adjust balance", "account %d would go negative (%s)", s.accounts[i].ID, next)
	}
	s.accounts[i].Balance = next
	s.dirty |= ArtifactAccounts
	return s.accounts[i], nil
}

// SetRate sets base->counter to rate and counter->base to its rounded
// reciprocal in one mutation. It returns the reciprocal.
func (s *Store) SetRate(base, counter string, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, Validationf("set rate", "rate must be positive, got %s", rate)
	}
	if base == "" || counter == "" {
		return decimal.Zero, Validationf("set rate", "both currencies are required")
	}
	if base == counter {
		return decimal.Zero, Validationf("set rate", "base and counter currency must differ (%s)", base)
	}
	reciprocal := Reciprocal(rate)
	if !reciprocal.IsPositive() {
		return decimal.Zero, Validationf("set rate", "reciprocal of %s rounds to zero at %d places", rate, ReciprocalPlaces)
	}

	pair := Pair{Base: base, Counter: counter}
	s.rates[pair] = rate
	s.rates[pair.Inverse()] = reciprocal
	s.dirty |= ArtifactRates
	return reciprocal, nil
}

// Rate returns the base->counter rate.
func (s *Store) Rate(base, counter string) (decimal.Decimal, error) {
	r, ok := s.rates[Pair{Base: base, Counter: counter}]
	if !ok {
		return decimal.Zero, NotFoundf("get rate", "exchange rate not found for %s/%s", base, counter)
	}
	return r, nil
}

// AppendLogEntry appends a settlement record.
func (s *Store) AppendLogEntry(e LogEntry) {
	s.log = append(s.log, e)
	s.dirty |= ArtifactLog
}

// LogLen returns the number of settlement records.
func (s *Store) LogLen() int {
	return len(s.log)
}

// Dirty reports which artifacts were mutated since the last ClearDirty.
func (s *Store) Dirty() Artifact {
	return s.dirty
}

// ClearDirty resets the mutation tracking.
func (s *Store) ClearDirty() {
	s.dirty = ArtifactNone
}

// Verify checks the store invariants: both indices point at the account
// holding that id and currency, every account is indexed exactly once,
// balances are non-negative, rates are positive and every pair has its
// inverse.
func (s *Store) Verify() error {
	if len(s.byID) != len(s.accounts) || len(s.byCurrency) != len(s.accounts) {
		return Validationf("verify", "index size mismatch: %d accounts, %d ids, %d currencies",
			len(s.accounts), len(s.byID), len(s.byCurrency))
	}
	for i, acc := range s.accounts {
		if j, ok := s.byID[acc.ID]; !ok || j != i {
			return Validationf("verify", "id index out of sync for account %d", acc.ID)
		}
		if j, ok := s.byCurrency[acc.Currency]; !ok || j != i {
			return Validationf("verify", "currency index out of sync for %s", acc.Currency)
		}
		if acc.Balance.IsNegative() {
			return Validationf("verify", "account %d has negative balance %s", acc.ID, acc.Balance)
		}
	}
	for pair, rate := range s.rates {
		if !rate.IsPositive() {
			return Validationf("verify", "rate %s is not positive", pair)
		}
		if _, ok := s.rates[pair.Inverse()]; !ok {
			return Validationf("verify", "rate %s has no inverse %s", pair, pair.Inverse())
		}
	}
	return nil
}
