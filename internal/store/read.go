package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/fxledger/internal/durable"
	"github.com/roach88/fxledger/internal/ledger"
)

// Load reads all three artifacts. Empty tables load as empty artifacts;
// unparseable values are reported as *durable.CorruptError.
func (s *Store) Load(ctx context.Context) (*ledger.Snapshot, error) {
	accounts, err := s.readAccounts(ctx)
	if err != nil {
		return nil, err
	}
	rates, err := s.readRates(ctx)
	if err != nil {
		return nil, err
	}
	log, err := s.readLog(ctx)
	if err != nil {
		return nil, err
	}
	return &ledger.Snapshot{Accounts: accounts, Rates: rates, Log: log}, nil
}

func (s *Store) readAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, currency, balance FROM accounts
		ORDER BY position ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	defer rows.Close()

	accounts := []ledger.Account{}
	for rows.Next() {
		var (
			acc     ledger.Account
			balance string
		)
		if err := rows.Scan(&acc.ID, &acc.Currency, &balance); err != nil {
			return nil, fmt.Errorf("read accounts: scan: %w", err)
		}
		if acc.Balance, err = parseDecimal("accounts", balance); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	return accounts, nil
}

func (s *Store) readRates(ctx context.Context) (ledger.RateTable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT base, counter, rate FROM rates`)
	if err != nil {
		return nil, fmt.Errorf("read rates: %w", err)
	}
	defer rows.Close()

	rates := ledger.RateTable{}
	for rows.Next() {
		var (
			pair ledger.Pair
			raw  string
		)
		if err := rows.Scan(&pair.Base, &pair.Counter, &raw); err != nil {
			return nil, fmt.Errorf("read rates: scan: %w", err)
		}
		rate, err := parseDecimal("rates", raw)
		if err != nil {
			return nil, err
		}
		rates[pair] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rates: %w", err)
	}
	return rates, nil
}

func (s *Store) readLog(ctx context.Context) ([]ledger.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, request, exchange_rate, counter_amount, ok, observation
		FROM log_entries
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer rows.Close()

	log := []ledger.LogEntry{}
	for rows.Next() {
		var (
			e                          ledger.LogEntry
			ts, request, rate, counter string
			obs                        sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &request, &rate, &counter, &e.OK, &obs); err != nil {
			return nil, fmt.Errorf("read log: scan: %w", err)
		}

		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, &durable.CorruptError{Artifact: "log", Err: err}
		}
		if err := json.Unmarshal([]byte(request), &e.Request); err != nil {
			return nil, &durable.CorruptError{Artifact: "log", Err: err}
		}
		if e.ExchangeRate, err = parseDecimal("log", rate); err != nil {
			return nil, err
		}
		if e.CounterAmount, err = parseDecimal("log", counter); err != nil {
			return nil, err
		}
		if obs.Valid {
			o := obs.String
			e.Observation = &o
		}
		log = append(log, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return log, nil
}

func parseDecimal(artifact, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &durable.CorruptError{Artifact: artifact, Err: err}
	}
	return d, nil
}
