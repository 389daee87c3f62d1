package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account is one of the engine's own currency accounts.
// There is exactly one account per currency.
type Account struct {
	ID       int64           `json:"id"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// Pair is an ordered (base, counter) currency pair.
type Pair struct {
	Base    string
	Counter string
}

// String renders the pair as "BASE_COUNTER".
func (p Pair) String() string {
	return p.Base + "_" + p.Counter
}

// Inverse returns the (counter, base) pair.
func (p Pair) Inverse() Pair {
	return Pair{Base: p.Counter, Counter: p.Base}
}

// RateTable maps a directed currency pair to a positive rate.
//
// It serializes as a nested object keyed by base then counter currency:
//
//	{"USD": {"EUR": "0.9"}, "EUR": {"USD": "1.11111"}}
type RateTable map[Pair]decimal.Decimal

// Clone returns an independent copy of the table.
func (t RateTable) Clone() RateTable {
	out := make(RateTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Nested returns the table as base -> counter -> rate.
func (t RateTable) Nested() map[string]map[string]decimal.Decimal {
	out := make(map[string]map[string]decimal.Decimal)
	for p, r := range t {
		inner, ok := out[p.Base]
		if !ok {
			inner = make(map[string]decimal.Decimal)
			out[p.Base] = inner
		}
		inner[p.Counter] = r
	}
	return out
}

// Pairs returns all pairs sorted by base then counter.
func (t RateTable) Pairs() []Pair {
	pairs := make([]Pair, 0, len(t))
	for p := range t {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Base != pairs[j].Base {
			return pairs[i].Base < pairs[j].Base
		}
		return pairs[i].Counter < pairs[j].Counter
	})
	return pairs
}

// MarshalJSON encodes the nested base -> counter -> rate form.
func (t RateTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Nested())
}

// UnmarshalJSON decodes the nested form. The legacy flat form keyed by
// "BASE_COUNTER" is accepted as well.
func (t *RateTable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(RateTable, len(raw))
	for key, val := range raw {
		var inner map[string]decimal.Decimal
		if err := json.Unmarshal(val, &inner); err == nil {
			for counter, rate := range inner {
				out[Pair{Base: key, Counter: counter}] = rate
			}
			continue
		}

		base, counter, ok := strings.Cut(key, "_")
		if !ok || base == "" || counter == "" {
			return fmt.Errorf("rate key %q: expected nested object or BASE_COUNTER", key)
		}
		var rate decimal.Decimal
		if err := json.Unmarshal(val, &rate); err != nil {
			return fmt.Errorf("rate %q: %w", key, err)
		}
		out[Pair{Base: base, Counter: counter}] = rate
	}

	*t = out
	return nil
}

// ExchangeRequest asks the engine to sell BaseAmount of BaseCurrency taken
// from the client's BaseAccountID and pay the counter amount into the
// client's CounterAccountID. Client accounts live in the external system.
type ExchangeRequest struct {
	BaseCurrency     string          `json:"baseCurrency"`
	CounterCurrency  string          `json:"counterCurrency"`
	BaseAccountID    int64           `json:"baseAccountId"`
	CounterAccountID int64           `json:"counterAccountId"`
	BaseAmount       decimal.Decimal `json:"baseAmount"`
}

// LogEntry is the immutable audit record of one exchange attempt. It is also
// the result returned to the caller of an exchange.
type LogEntry struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"ts"`
	Request       ExchangeRequest `json:"request"`
	ExchangeRate  decimal.Decimal `json:"exchangeRate"`
	CounterAmount decimal.Decimal `json:"counterAmount"`
	OK            bool            `json:"ok"`
	Observation   *string         `json:"obs"`
}

// Artifact identifies one of the durable parts of the ledger.
type Artifact uint8

const (
	// ArtifactAccounts is the accounts collection.
	ArtifactAccounts Artifact = 1 << iota
	// ArtifactRates is the rate table.
	ArtifactRates
	// ArtifactLog is the settlement log.
	ArtifactLog

	// ArtifactNone means nothing changed.
	ArtifactNone Artifact = 0
	// ArtifactAll selects every artifact.
	ArtifactAll = ArtifactAccounts | ArtifactRates | ArtifactLog
)

// Has reports whether every artifact in other is set in a.
func (a Artifact) Has(other Artifact) bool {
	return a&other == other
}

// String lists the selected artifacts, e.g. "accounts|log".
func (a Artifact) String() string {
	if a == ArtifactNone {
		return "none"
	}
	var parts []string
	if a.Has(ArtifactAccounts) {
		parts = append(parts, "accounts")
	}
	if a.Has(ArtifactRates) {
		parts = append(parts, "rates")
	}
	if a.Has(ArtifactLog) {
		parts = append(parts, "log")
	}
	return strings.Join(parts, "|")
}
