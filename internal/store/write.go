package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/fxledger/internal/ledger"
)

// Save writes the selected artifacts in one transaction.
func (s *Store) Save(ctx context.Context, snap *ledger.Snapshot, which ledger.Artifact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if which.Has(ledger.ArtifactAccounts) {
		if err := writeAccounts(ctx, tx, snap.Accounts); err != nil {
			return err
		}
	}
	if which.Has(ledger.ArtifactRates) {
		if err := writeRates(ctx, tx, snap.Rates); err != nil {
			return err
		}
	}
	if which.Has(ledger.ArtifactLog) {
		if err := appendLog(ctx, tx, snap.Log); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save: commit: %w", err)
	}
	return nil
}

// writeAccounts replaces the accounts table.
func writeAccounts(ctx context.Context, tx *sql.Tx, accounts []ledger.Account) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("write accounts: clear: %w", err)
	}
	for i, acc := range accounts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, currency, balance, position)
			VALUES (?, ?, ?, ?)
		`, acc.ID, acc.Currency, acc.Balance.String(), i)
		if err != nil {
			return fmt.Errorf("write accounts: insert %d: %w", acc.ID, err)
		}
	}
	return nil
}

// writeRates replaces the rates table.
func writeRates(ctx context.Context, tx *sql.Tx, rates ledger.RateTable) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM rates`); err != nil {
		return fmt.Errorf("write rates: clear: %w", err)
	}
	for _, pair := range rates.Pairs() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rates (base, counter, rate)
			VALUES (?, ?, ?)
		`, pair.Base, pair.Counter, rates[pair].String())
		if err != nil {
			return fmt.Errorf("write rates: insert %s: %w", pair, err)
		}
	}
	return nil
}

// appendLog inserts the entries past the rows already stored. The log never
// shrinks, so a snapshot shorter than the table is rejected.
func appendLog(ctx context.Context, tx *sql.Tx, log []ledger.LogEntry) error {
	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_entries`).Scan(&stored); err != nil {
		return fmt.Errorf("append log: count: %w", err)
	}
	if stored > len(log) {
		return fmt.Errorf("append log: snapshot has %d entries but %d are stored", len(log), stored)
	}

	for seq := stored; seq < len(log); seq++ {
		e := log[seq]
		request, err := json.Marshal(e.Request)
		if err != nil {
			return fmt.Errorf("append log: marshal request %s: %w", e.ID, err)
		}
		var obs sql.NullString
		if e.Observation != nil {
			obs = sql.NullString{String: *e.Observation, Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO log_entries
			(seq, id, ts, request, exchange_rate, counter_amount, ok, observation)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			seq,
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(request),
			e.ExchangeRate.String(),
			e.CounterAmount.String(),
			e.OK,
			obs,
		)
		if err != nil {
			return fmt.Errorf("append log: insert %s: %w", e.ID, err)
		}
	}
	return nil
}
