package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/fxledger/internal/durable"
	"github.com/roach88/fxledger/internal/engine"
	"github.com/roach88/fxledger/internal/exchange"
	"github.com/roach88/fxledger/internal/ledger"
	"github.com/roach88/fxledger/internal/testutil"
	"github.com/roach88/fxledger/internal/transfer"
)

// Harness is the test execution engine.
// It drives the real engine and exchange service with a deterministic
// clock, fixed ids and a scripted bank.
type Harness struct {
	dir       string
	backend   *durable.FileBackend
	engine    *engine.Engine
	service   *exchange.Service
	transfers *transfer.Scripted
	clock     *testutil.DeterministicClock
	entryIDs  *engine.FixedGenerator
	opIDs     *engine.FixedGenerator
	attempts  int

	cancel context.CancelFunc
	done   chan error
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh file backend in a temporary directory
// for isolation. The returned error reports setup or infrastructure
// failures; failed expectations and assertions are recorded in the Result.
//
// Execution flow:
// 1. Seed accounts and rates and persist them
// 2. Start the engine and the exchange service
// 3. Execute each step, checking its expect clause
// 4. Evaluate assertions against the committed state
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context for every step.
func RunContext(ctx context.Context, scenario *Scenario) (result *Result, err error) {
	dir, err := os.MkdirTemp("", "fxledger-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	defer os.RemoveAll(dir)

	h := &Harness{
		dir:       dir,
		transfers: transfer.NewScripted(scriptOutcomes(scenario.Transfers)...),
		clock:     testutil.NewDeterministicClock(),
		entryIDs:  engine.NewFixedGenerator("entry"),
		opIDs:     engine.NewFixedGenerator("op"),
		attempts:  scenario.CompensationAttempts,
	}

	st, err := seed(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to seed ledger: %w", err)
	}

	h.backend, err = durable.OpenFile(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open backend: %w", err)
	}
	if err := h.backend.Save(ctx, st.Snapshot(), ledger.ArtifactAll); err != nil {
		h.backend.Close()
		return nil, fmt.Errorf("failed to persist seed: %w", err)
	}

	h.start(st)
	defer func() {
		h.stop()
		if cerr := h.backend.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close backend: %w", cerr)
		}
	}()

	result = NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, result, i, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op(), err)
		}
	}

	view := h.engine.View()
	result.Accounts = view.AccountsCopy()
	result.Transfers = h.transfers.Calls()
	if result.Transfers == nil {
		result.Transfers = []transfer.Call{}
	}

	for i, assertion := range scenario.Assertions {
		if err := evaluateAssertion(assertion, view, result); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s) failed: %v", i, assertion.Type, err))
		}
	}

	return result, nil
}

func scriptOutcomes(script []string) []error {
	outcomes := make([]error, len(script))
	for i, s := range script {
		if s == TransferDeclined {
			outcomes[i] = transfer.ErrDeclined
		}
	}
	return outcomes
}

// seed builds the starting ledger from the scenario's setup.
func seed(scenario *Scenario) (*ledger.Store, error) {
	st := ledger.NewStore()
	for _, acc := range scenario.Accounts {
		balance, err := ledger.ParseAmount(acc.Balance)
		if err != nil {
			return nil, err
		}
		currency, err := ledger.NormalizeCurrency(acc.Currency)
		if err != nil {
			return nil, err
		}
		if err := st.AddAccount(ledger.Account{ID: acc.ID, Currency: currency, Balance: balance}); err != nil {
			return nil, err
		}
	}
	for _, r := range scenario.Rates {
		rate, err := ledger.ParseAmount(r.Rate)
		if err != nil {
			return nil, err
		}
		base, err := ledger.NormalizeCurrency(r.Base)
		if err != nil {
			return nil, err
		}
		counter, err := ledger.NormalizeCurrency(r.Counter)
		if err != nil {
			return nil, err
		}
		if _, err := st.SetRate(base, counter, rate); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// start wires an engine and service around st and runs the engine.
func (h *Harness) start(st *ledger.Store) {
	h.engine = engine.New(st, h.backend,
		engine.WithIDGenerator(h.opIDs),
		engine.WithNow(func() time.Time { return testutil.Epoch }),
	)

	opts := []exchange.Option{
		exchange.WithIDGenerator(h.entryIDs),
		exchange.WithNow(h.clock.Now),
	}
	if h.attempts > 0 {
		opts = append(opts, exchange.WithCompensationAttempts(h.attempts))
	}
	h.service = exchange.New(h.engine, h.transfers, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.engine.Run(ctx) }()
}

// stop drains the engine and waits for Run to return.
func (h *Harness) stop() {
	if h.engine == nil {
		return
	}
	h.engine.Stop()
	h.cancel()
	<-h.done
	h.engine = nil
}

// restart simulates a process restart: everything in memory is dropped and
// the ledger is recovered from the state directory.
func (h *Harness) restart(ctx context.Context) (*ledger.Store, error) {
	h.stop()
	if err := h.backend.Close(); err != nil {
		return nil, err
	}

	backend, err := durable.OpenFile(h.dir)
	if err != nil {
		return nil, err
	}
	h.backend = backend

	st, err := engine.Recover(ctx, backend)
	if err != nil {
		return nil, err
	}
	h.start(st)
	return st, nil
}

// executeStep runs one step, records it and checks its expect clause.
// Only infrastructure failures are returned.
func (h *Harness) executeStep(ctx context.Context, result *Result, index int, step Step) error {
	ev := TraceEvent{Op: step.Op()}
	var checks []error
	var opErr error

	switch {
	case step.SetRate != nil:
		rate, err := decimal.NewFromString(step.SetRate.Rate)
		if err != nil {
			return fmt.Errorf("invalid rate %q: %w", step.SetRate.Rate, err)
		}
		ev.Args = map[string]any{
			"base":    step.SetRate.Base,
			"counter": step.SetRate.Counter,
			"rate":    rate.String(),
		}
		res, err := h.service.SetRate(ctx, exchange.RateRequest{
			BaseCurrency:    step.SetRate.Base,
			CounterCurrency: step.SetRate.Counter,
			Rate:            rate,
		})
		opErr = err
		if err == nil {
			ev.Result = map[string]any{
				"rate":            res.Rate.String(),
				"reciprocal_rate": res.ReciprocalRate.String(),
			}
			checks = append(checks, expectDecimal("reciprocal_rate", step.Expect.reciprocal(), res.ReciprocalRate))
		}

	case step.SetBalance != nil:
		balance, err := decimal.NewFromString(step.SetBalance.Balance)
		if err != nil {
			return fmt.Errorf("invalid balance %q: %w", step.SetBalance.Balance, err)
		}
		ev.Args = map[string]any{
			"account": step.SetBalance.Account,
			"balance": balance.String(),
		}
		res, err := h.service.SetAccountBalance(ctx, step.SetBalance.Account, balance)
		opErr = err
		if err == nil {
			ev.Result = accountResult(res.Account)
		}

	case step.AddAccount != nil:
		balance, err := decimal.NewFromString(step.AddAccount.Balance)
		if err != nil {
			return fmt.Errorf("invalid balance %q: %w", step.AddAccount.Balance, err)
		}
		ev.Args = map[string]any{
			"id":       step.AddAccount.ID,
			"currency": step.AddAccount.Currency,
			"balance":  balance.String(),
		}
		acc, err := h.service.AddAccount(ctx, ledger.Account{
			ID:       step.AddAccount.ID,
			Currency: step.AddAccount.Currency,
			Balance:  balance,
		})
		opErr = err
		if err == nil {
			ev.Result = accountResult(acc)
		}

	case step.Exchange != nil:
		x := step.Exchange
		amount, err := decimal.NewFromString(x.Amount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", x.Amount, err)
		}
		ev.Args = map[string]any{
			"base":            x.Base,
			"counter":         x.Counter,
			"base_account":    x.BaseAccount,
			"counter_account": x.CounterAccount,
			"amount":          amount.String(),
		}
		entry, err := h.service.Exchange(ctx, ledger.ExchangeRequest{
			BaseCurrency:     x.Base,
			CounterCurrency:  x.Counter,
			BaseAccountID:    x.BaseAccount,
			CounterAccountID: x.CounterAccount,
			BaseAmount:       amount,
		})
		opErr = err
		if err == nil {
			ev.Result = entryResult(entry)
			checks = append(checks, checkEntry(step.Expect, entry)...)
		}

	case step.Restart:
		st, err := h.restart(ctx)
		if err != nil {
			return fmt.Errorf("restart failed: %w", err)
		}
		ev.Result = map[string]any{
			"accounts":    len(st.Accounts()),
			"log_entries": st.LogLen(),
		}

	default:
		return errors.New("step has no operation")
	}

	ev.Outcome = OutcomeOK
	if opErr != nil {
		if ledger.KindOf(opErr) == "" {
			return opErr
		}
		ev.Outcome = OutcomeRejected
		ev.Error = string(ledger.KindOf(opErr))
	}
	checks = append(checks, expectError(step.Expect, opErr))

	result.AddTrace(ev)
	for _, c := range checks {
		if c != nil {
			result.AddError(fmt.Sprintf("step %d (%s): %v", index, ev.Op, c))
		}
	}
	return nil
}

func (e *Expect) reciprocal() string {
	if e == nil {
		return ""
	}
	return e.ReciprocalRate
}

func accountResult(acc ledger.Account) map[string]any {
	return map[string]any{
		"id":       acc.ID,
		"currency": acc.Currency,
		"balance":  acc.Balance.String(),
	}
}

func entryResult(entry ledger.LogEntry) map[string]any {
	res := map[string]any{
		"id":             entry.ID,
		"ok":             entry.OK,
		"exchange_rate":  entry.ExchangeRate.String(),
		"counter_amount": entry.CounterAmount.String(),
	}
	if entry.Observation != nil {
		res["observation"] = *entry.Observation
	}
	return res
}
