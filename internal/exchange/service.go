// Package exchange is the ledger's call surface: read queries, balance and
// rate mutators, account provisioning and settlement of exchange requests.
//
// Every mutation is validated here, before it is queued, and then executed
// as one operation on the engine. Reads are served from the engine's last
// committed view.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/fxledger/internal/engine"
	"github.com/roach88/fxledger/internal/events"
	"github.com/roach88/fxledger/internal/ledger"
	"github.com/roach88/fxledger/internal/transfer"
)

// DefaultCompensationAttempts is how often a compensating transfer is tried
// before the settlement is left for manual reconciliation.
const DefaultCompensationAttempts = 3

// Service executes ledger operations through an engine.
type Service struct {
	engine               *engine.Engine
	transfers            transfer.Service
	publisher            events.Publisher
	ids                  engine.IDGenerator
	now                  func() time.Time
	compensationAttempts int
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the sink for committed settlement records.
// Default: events.Nop.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithIDGenerator sets the generator for log entry ids.
// Default: engine.UUIDv7Generator.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(s *Service) {
		s.ids = g
	}
}

// WithNow sets the wall clock for log entry timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithCompensationAttempts sets how many times a compensating transfer is
// tried. Values below 1 are treated as 1.
func WithCompensationAttempts(n int) Option {
	return func(s *Service) {
		s.compensationAttempts = n
	}
}

// New creates a Service on e. The engine's Run loop must be running for
// mutations to complete.
func New(e *engine.Engine, transfers transfer.Service, opts ...Option) *Service {
	s := &Service{
		engine:               e,
		transfers:            transfers,
		publisher:            events.Nop{},
		ids:                  engine.UUIDv7Generator{},
		now:                  time.Now,
		compensationAttempts: DefaultCompensationAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BalanceResult is returned by SetAccountBalance.
type BalanceResult struct {
	Success bool           `json:"success"`
	Account ledger.Account `json:"account"`
}

// RateRequest sets the rate for base -> counter.
type RateRequest struct {
	BaseCurrency    string          `json:"baseCurrency"`
	CounterCurrency string          `json:"counterCurrency"`
	Rate            decimal.Decimal `json:"rate"`
}

// RateResult is returned by SetRate.
type RateResult struct {
	Success        bool            `json:"success"`
	Rate           decimal.Decimal `json:"rate"`
	ReciprocalRate decimal.Decimal `json:"reciprocalRate"`
}

// Accounts returns the committed accounts in insertion order. The slice is
// the caller's to modify.
func (s *Service) Accounts() []ledger.Account {
	return s.engine.View().AccountsCopy()
}

// Rates returns the committed rates as base -> counter -> rate.
func (s *Service) Rates() map[string]map[string]decimal.Decimal {
	return s.engine.View().NestedRates()
}

// Rate returns the committed base -> counter rate.
func (s *Service) Rate(base, counter string) (decimal.Decimal, error) {
	pair, err := normalizePair("get rate", base, counter)
	if err != nil {
		return decimal.Zero, err
	}
	r, ok := s.engine.View().Rates[pair]
	if !ok {
		return decimal.Zero, ledger.NotFoundf("get rate", "exchange rate not found for %s/%s", pair.Base, pair.Counter)
	}
	return r, nil
}

// Log returns the committed settlement log in append order.
func (s *Service) Log() []ledger.LogEntry {
	return s.engine.View().LogCopy()
}

// Status reports the operation queue counters.
func (s *Service) Status() engine.Stats {
	return s.engine.Stats()
}

// SetAccountBalance replaces the balance of account id.
func (s *Service) SetAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) (BalanceResult, error) {
	if balance.IsNegative() {
		return BalanceResult{}, ledger.Validationf("set balance", "balance must be non-negative, got %s", balance)
	}

	res, err := s.engine.Do(ctx, func(ctx context.Context, st *ledger.Store) (any, error) {
		return st.SetAccountBalance(id, balance)
	})
	if err != nil {
		return BalanceResult{}, err
	}
	return BalanceResult{Success: true, Account: res.(ledger.Account)}, nil
}

// SetRate sets req.Rate for base -> counter and its reciprocal, rounded to
// ledger.ReciprocalPlaces, for counter -> base.
func (s *Service) SetRate(ctx context.Context, req RateRequest) (RateResult, error) {
	pair, err := normalizePair("set rate", req.BaseCurrency, req.CounterCurrency)
	if err != nil {
		return RateResult{}, err
	}
	if !req.Rate.IsPositive() {
		return RateResult{}, ledger.Validationf("set rate", "rate must be positive, got %s", req.Rate)
	}
	if pair.Base == pair.Counter {
		return RateResult{}, ledger.Validationf("set rate", "base and counter currency must differ (%s)", pair.Base)
	}

	res, err := s.engine.Do(ctx, func(ctx context.Context, st *ledger.Store) (any, error) {
		return st.SetRate(pair.Base, pair.Counter, req.Rate)
	})
	if err != nil {
		return RateResult{}, err
	}
	return RateResult{Success: true, Rate: req.Rate, ReciprocalRate: res.(decimal.Decimal)}, nil
}

// AddAccount provisions the ledger's own account for a currency.
func (s *Service) AddAccount(ctx context.Context, acc ledger.Account) (ledger.Account, error) {
	code, err := ledger.NormalizeCurrency(acc.Currency)
	if err != nil {
		return ledger.Account{}, err
	}
	acc.Currency = code
	if acc.Balance.IsNegative() {
		return ledger.Account{}, ledger.Validationf("add account", "balance must be non-negative, got %s", acc.Balance)
	}

	_, err = s.engine.Do(ctx, func(ctx context.Context, st *ledger.Store) (any, error) {
		return nil, st.AddAccount(acc)
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return acc, nil
}

// Exchange settles req and returns its log entry.
//
// Business failures (no rate, no internal account, insufficient funds, a
// failed transfer leg) are not errors: they come back as an entry with
// OK false and an observation. Errors are reserved for malformed requests
// and for operations that could not be committed.
func (s *Service) Exchange(ctx context.Context, req ledger.ExchangeRequest) (ledger.LogEntry, error) {
	req, err := NormalizeRequest(req)
	if err != nil {
		return ledger.LogEntry{}, err
	}

	var outcome *Outcome
	f, err := s.engine.Submit(func(ctx context.Context, st *ledger.Store) (any, error) {
		entry, o, err := s.settle(ctx, st, req)
		outcome = o
		return entry, err
	})
	if err != nil {
		return ledger.LogEntry{}, err
	}

	res, err := f.Wait(ctx)
	if err != nil {
		select {
		case <-f.Done():
			if outcome != nil && outcome.State != StateIdle && ledger.IsPersistence(err) {
				slog.Error("settlement legs executed but not committed; reconcile with the bank",
					"operation", f.ID,
					"state", outcome.State.String(),
					"base_account", req.BaseAccountID,
					"counter_account", req.CounterAccountID,
					"base_amount", req.BaseAmount.String(),
					"error", err,
				)
			}
		default:
		}
		return ledger.LogEntry{}, err
	}

	entry := res.(ledger.LogEntry)
	if err := s.publisher.Publish(ctx, events.NewSettlementEvent(entry)); err != nil {
		slog.Warn("publishing settlement failed", "entry", entry.ID, "error", err)
	}
	return entry, nil
}

// settle runs inside the queue with exclusive ownership of st.
func (s *Service) settle(ctx context.Context, st *ledger.Store, req ledger.ExchangeRequest) (ledger.LogEntry, *Outcome, error) {
	entry := ledger.LogEntry{
		ID:        s.ids.Generate(),
		Timestamp: s.now().UTC(),
		Request:   req,
	}
	fail := func(obs string) (ledger.LogEntry, *Outcome, error) {
		entry.OK = false
		entry.Observation = &obs
		st.AppendLogEntry(entry)
		slog.Info("exchange failed", "entry", entry.ID, "observation", obs)
		return entry, nil, nil
	}

	rate, err := st.Rate(req.BaseCurrency, req.CounterCurrency)
	if err != nil {
		return fail(fmt.Sprintf("Exchange rate not found for %s/%s", req.BaseCurrency, req.CounterCurrency))
	}
	entry.ExchangeRate = rate
	// Only a settled entry records its counter amount; failures keep zero.
	counterAmount := req.BaseAmount.Mul(rate)

	base, err := st.AccountByCurrency(req.BaseCurrency)
	if err != nil {
		return fail(fmt.Sprintf("Account not found for currency %s", req.BaseCurrency))
	}
	counter, err := st.AccountByCurrency(req.CounterCurrency)
	if err != nil {
		return fail(fmt.Sprintf("Account not found for currency %s", req.CounterCurrency))
	}

	if counter.Balance.LessThan(counterAmount) {
		return fail(ObsInsufficientFunds)
	}

	out := Settle(ctx, s.transfers, Legs{
		ClientBase:      req.BaseAccountID,
		ClientCounter:   req.CounterAccountID,
		InternalBase:    base.ID,
		InternalCounter: counter.ID,
		BaseAmount:      req.BaseAmount,
		CounterAmount:   counterAmount,
	}, s.compensationAttempts)

	if out.State != StateCommitted {
		if !out.Compensated {
			slog.Error("compensating transfer exhausted; client base amount not returned",
				"entry", entry.ID,
				"client_account", req.BaseAccountID,
				"amount", req.BaseAmount.String(),
			)
		}
		slog.Info("settlement legs failed", "entry", entry.ID, "path", fmt.Sprint(out.Path), "error", out.LegErr)
		e, _, err := fail(out.Observation)
		return e, &out, err
	}

	if _, err := st.AdjustBalance(base.Currency, req.BaseAmount); err != nil {
		return ledger.LogEntry{}, &out, err
	}
	if _, err := st.AdjustBalance(counter.Currency, counterAmount.Neg()); err != nil {
		return ledger.LogEntry{}, &out, err
	}

	entry.OK = true
	entry.CounterAmount = counterAmount
	st.AppendLogEntry(entry)
	slog.Info("exchange settled",
		"entry", entry.ID,
		"pair", ledger.Pair{Base: req.BaseCurrency, Counter: req.CounterCurrency}.String(),
		"base_amount", req.BaseAmount.String(),
		"counter_amount", entry.CounterAmount.String(),
	)
	return entry, &out, nil
}

// NormalizeRequest canonicalizes currency codes and rejects malformed
// requests.
func NormalizeRequest(req ledger.ExchangeRequest) (ledger.ExchangeRequest, error) {
	pair, err := normalizePair("exchange", req.BaseCurrency, req.CounterCurrency)
	if err != nil {
		return req, err
	}
	if pair.Base == pair.Counter {
		return req, ledger.Validationf("exchange", "base and counter currency must differ (%s)", pair.Base)
	}
	if !req.BaseAmount.IsPositive() {
		return req, ledger.Validationf("exchange", "base amount must be positive, got %s", req.BaseAmount)
	}
	req.BaseCurrency = pair.Base
	req.CounterCurrency = pair.Counter
	return req, nil
}

func normalizePair(op, base, counter string) (ledger.Pair, error) {
	b, err := ledger.NormalizeCurrency(base)
	if err != nil {
		return ledger.Pair{}, wrapOp(op, err)
	}
	c, err := ledger.NormalizeCurrency(counter)
	if err != nil {
		return ledger.Pair{}, wrapOp(op, err)
	}
	return ledger.Pair{Base: b, Counter: c}, nil
}

func wrapOp(op string, err error) error {
	var le *ledger.Error
	if errors.As(err, &le) {
		return &ledger.Error{Kind: le.Kind, Op: op, Message: le.Message, Err: le.Err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
