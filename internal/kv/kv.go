// Package kv is a durable.Backend on a Pebble key-value store.
//
// Each artifact lives under its own key as the same JSON document the file
// backend writes. A Save commits all selected artifacts in one synced batch,
// so a crash never leaves accounts and rates from different operations.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/roach88/fxledger/internal/durable"
	"github.com/roach88/fxledger/internal/ledger"
)

var (
	keyAccounts = []byte("ledger/accounts")
	keyRates    = []byte("ledger/rates")
	keyLog      = []byte("ledger/log")
)

// Store wraps a Pebble database directory.
type Store struct {
	db *pebble.DB
}

var _ durable.Backend = (*Store)(nil)

// Open opens or creates the database in dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load reads every artifact. Absent keys load as empty.
func (s *Store) Load(ctx context.Context) (*ledger.Snapshot, error) {
	snap := &ledger.Snapshot{
		Accounts: []ledger.Account{},
		Rates:    ledger.RateTable{},
		Log:      []ledger.LogEntry{},
	}

	if data, err := s.get(keyAccounts); err != nil {
		return nil, err
	} else if data != nil {
		if snap.Accounts, err = durable.DecodeAccounts(data); err != nil {
			return nil, err
		}
	}

	if data, err := s.get(keyRates); err != nil {
		return nil, err
	} else if data != nil {
		if snap.Rates, err = durable.DecodeRates(data); err != nil {
			return nil, err
		}
	}

	if data, err := s.get(keyLog); err != nil {
		return nil, err
	} else if data != nil {
		if snap.Log, err = durable.DecodeLog(data); err != nil {
			return nil, err
		}
	}

	return snap, nil
}

// Save writes the selected artifacts in a single synced batch.
func (s *Store) Save(ctx context.Context, snap *ledger.Snapshot, which ledger.Artifact) error {
	if which == ledger.ArtifactNone {
		return nil
	}

	b := s.db.NewBatch()
	defer b.Close()

	type entry struct {
		artifact ledger.Artifact
		key      []byte
		encode   func(*ledger.Snapshot) ([]byte, error)
	}
	for _, e := range []entry{
		{ledger.ArtifactAccounts, keyAccounts, durable.EncodeAccounts},
		{ledger.ArtifactRates, keyRates, durable.EncodeRates},
		{ledger.ArtifactLog, keyLog, durable.EncodeLog},
	} {
		if !which.Has(e.artifact) {
			continue
		}
		data, err := e.encode(snap)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.key, err)
		}
		if err := b.Set(e.key, data, nil); err != nil {
			return fmt.Errorf("stage %s: %w", e.key, err)
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// get returns a copy of the value at key, or nil when the key is absent.
func (s *Store) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}
