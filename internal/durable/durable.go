// Package durable persists the ledger's durable parts (accounts, rates and
// the settlement log) and recovers them on startup.
//
// Backend is the contract the operation queue writes through. The file
// backend in this package is the default; internal/store (SQLite) and
// internal/kv (Pebble) provide transactional alternatives.
//
// Recovery rules are shared by every backend: a missing artifact is an empty
// default, an unparseable one is a fatal startup error.
package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roach88/fxledger/internal/ledger"
)

// Backend stores and recovers ledger artifacts.
type Backend interface {
	// Load reads every artifact. Missing artifacts load as empty.
	Load(ctx context.Context) (*ledger.Snapshot, error)

	// Save durably writes the selected artifacts of snap. It returns only
	// once the data is on stable storage.
	Save(ctx context.Context, snap *ledger.Snapshot, which ledger.Artifact) error

	// Close releases the backend's resources.
	Close() error
}

// CorruptError reports an artifact that exists but cannot be parsed.
type CorruptError struct {
	Artifact string
	Err      error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt %s artifact: %v", e.Artifact, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// EncodeAccounts serializes the accounts collection.
func EncodeAccounts(snap *ledger.Snapshot) ([]byte, error) {
	accounts := snap.Accounts
	if accounts == nil {
		accounts = []ledger.Account{}
	}
	return json.MarshalIndent(accounts, "", "  ")
}

// EncodeRates serializes the rate table.
func EncodeRates(snap *ledger.Snapshot) ([]byte, error) {
	rates := snap.Rates
	if rates == nil {
		rates = ledger.RateTable{}
	}
	return json.MarshalIndent(rates, "", "  ")
}

// EncodeLog serializes the settlement log.
func EncodeLog(snap *ledger.Snapshot) ([]byte, error) {
	log := snap.Log
	if log == nil {
		log = []ledger.LogEntry{}
	}
	return json.MarshalIndent(log, "", "  ")
}

// DecodeAccounts parses an accounts artifact.
func DecodeAccounts(data []byte) ([]ledger.Account, error) {
	var accounts []ledger.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, &CorruptError{Artifact: "accounts", Err: err}
	}
	return accounts, nil
}

// DecodeRates parses a rates artifact.
func DecodeRates(data []byte) (ledger.RateTable, error) {
	var rates ledger.RateTable
	if err := json.Unmarshal(data, &rates); err != nil {
		return nil, &CorruptError{Artifact: "rates", Err: err}
	}
	return rates, nil
}

// DecodeLog parses a log artifact.
func DecodeLog(data []byte) ([]ledger.LogEntry, error) {
	var log []ledger.LogEntry
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, &CorruptError{Artifact: "log", Err: err}
	}
	return log, nil
}

// Memory is a Backend that keeps the last saved artifacts in memory.
// Useful in tests and for the scenario harness.
type Memory struct {
	mu       sync.Mutex
	snap     ledger.Snapshot
	saves    int
	failNext error
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns the last saved state.
func (m *Memory) Load(ctx context.Context) (*ledger.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &ledger.Snapshot{
		Accounts: append([]ledger.Account(nil), m.snap.Accounts...),
		Rates:    m.snap.Rates.Clone(),
		Log:      append([]ledger.LogEntry(nil), m.snap.Log...),
	}, nil
}

// Save records the selected artifacts.
func (m *Memory) Save(ctx context.Context, snap *ledger.Snapshot, which ledger.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	if which.Has(ledger.ArtifactAccounts) {
		m.snap.Accounts = append([]ledger.Account(nil), snap.Accounts...)
	}
	if which.Has(ledger.ArtifactRates) {
		m.snap.Rates = snap.Rates.Clone()
	}
	if which.Has(ledger.ArtifactLog) {
		m.snap.Log = append([]ledger.LogEntry(nil), snap.Log...)
	}
	m.saves++
	return nil
}

// FailNextSave makes the next Save return err without writing anything.
func (m *Memory) FailNextSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Saves returns the number of successful saves.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
