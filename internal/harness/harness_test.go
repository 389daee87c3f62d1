package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fxledger/internal/testutil"
	"github.com/roach88/fxledger/internal/transfer"
)

func boolPtr(b bool) *bool { return &b }

func baseScenario() *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "inline scenario",
		Accounts: []AccountSeed{
			{ID: 1, Currency: "USD", Balance: "0"},
			{ID: 2, Currency: "EUR", Balance: "100"},
		},
		Rates: []RateSeed{{Base: "USD", Counter: "EUR", Rate: "0.90"}},
	}
}

func TestRun_AllScenariosPass(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(s.Steps))
		})
	}
}

func TestRun_ExchangeSuccess(t *testing.T) {
	s := baseScenario()
	s.Steps = []Step{{
		Exchange: &ExchangeStep{Base: "USD", Counter: "EUR", BaseAccount: 10, CounterAccount: 20, Amount: "50"},
		Expect:   &Expect{OK: boolPtr(true), CounterAmount: "45"},
	}}

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 1)
	ev := result.Trace[0]
	assert.Equal(t, 1, ev.Seq)
	assert.Equal(t, OutcomeOK, ev.Outcome)
	assert.Equal(t, "entry-1", ev.Result["id"])
	assert.Equal(t, true, ev.Result["ok"])

	assert.Equal(t, []transfer.Call{
		{From: 10, To: 1, Amount: testutil.Dec("50")},
		{From: 2, To: 20, Amount: testutil.Dec("45")},
	}, result.Transfers)
	require.Len(t, result.Accounts, 2)
	assert.True(t, result.Accounts[0].Balance.Equal(testutil.Dec("50")))
	assert.True(t, result.Accounts[1].Balance.Equal(testutil.Dec("55")))
}

func TestRun_FailedExpectation(t *testing.T) {
	s := baseScenario()
	s.Steps = []Step{{
		Exchange: &ExchangeStep{Base: "USD", Counter: "EUR", BaseAccount: 10, CounterAccount: 20, Amount: "50"},
		Expect:   &Expect{OK: boolPtr(false), CounterAmount: "40"},
	}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "ok: expected false, got true")
	assert.Contains(t, result.Errors[1], "counter_amount: expected 40, got 45")
}

func TestRun_UnexpectedError(t *testing.T) {
	s := baseScenario()
	s.Steps = []Step{{SetBalance: &BalanceStep{Account: 2, Balance: "-1"}}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, OutcomeRejected, result.Trace[0].Outcome)
	assert.Equal(t, "VALIDATION_ERROR", result.Trace[0].Error)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	s := baseScenario()
	s.Steps = []Step{{
		SetBalance: &BalanceStep{Account: 2, Balance: "5"},
		Expect:     &Expect{Error: "VALIDATION_ERROR"},
	}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error VALIDATION_ERROR, got success")
}

func TestRun_FailedAssertion(t *testing.T) {
	s := baseScenario()
	s.Steps = []Step{{Restart: true}}
	s.Assertions = []Assertion{
		{Type: AssertBalance, Currency: "EUR", Equals: "99"},
		{Type: AssertBalance, Currency: "GBP", Equals: "0"},
		{Type: AssertRate, Base: "USD", Counter: "EUR"},
		{Type: AssertRate, Base: "USD", Counter: "GBP", Equals: "1"},
		{Type: AssertLogCount, Count: 1},
		{Type: AssertTransferCount, Count: 2},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "EUR balance: expected 99, got 100")
	assert.Contains(t, result.Errors[1], "no account for currency GBP")
	assert.Contains(t, result.Errors[2], "expected no rate for USD_EUR")
	assert.Contains(t, result.Errors[3], "rate USD_GBP not found")
	assert.Contains(t, result.Errors[4], "expected 1 log entries, got 0")
	assert.Contains(t, result.Errors[5], "expected 2 transfers, got 0")
}

func TestRun_RestartRecoversState(t *testing.T) {
	s := baseScenario()
	s.Steps = []Step{
		{SetRate: &RateSeed{Base: "USD", Counter: "GBP", Rate: "0.8"}},
		{Exchange: &ExchangeStep{Base: "USD", Counter: "EUR", BaseAccount: 10, CounterAccount: 20, Amount: "10"}},
		{Restart: true},
		{Restart: true},
		{Exchange: &ExchangeStep{Base: "USD", Counter: "EUR", BaseAccount: 10, CounterAccount: 20, Amount: "10"}},
	}
	s.Assertions = []Assertion{
		{Type: AssertRate, Base: "GBP", Counter: "USD", Equals: "1.25"},
		{Type: AssertBalance, Currency: "EUR", Equals: "82"},
		{Type: AssertLogCount, OK: boolPtr(true), Count: 2},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	restart := result.Trace[3]
	assert.Equal(t, OpRestart, restart.Op)
	assert.Equal(t, 1, restart.Result["log_entries"])
	// Entry ids keep counting across restarts.
	assert.Equal(t, "entry-2", result.Trace[4].Result["id"])
}

func TestRun_SeedError(t *testing.T) {
	s := baseScenario()
	s.Accounts = append(s.Accounts, AccountSeed{ID: 3, Currency: "USD", Balance: "1"})
	s.Steps = []Step{{Restart: true}}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to seed ledger")
}

func TestRun_BadStepAmount(t *testing.T) {
	s := baseScenario()
	s.Steps = []Step{{Exchange: &ExchangeStep{Base: "USD", Counter: "EUR", Amount: "fifty"}}}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid amount")
}

func TestResult_AddTraceNumbersEvents(t *testing.T) {
	r := NewResult()
	r.AddTrace(TraceEvent{Op: OpRestart})
	r.AddTrace(TraceEvent{Op: OpRestart, Seq: 99})
	assert.Equal(t, 1, r.Trace[0].Seq)
	assert.Equal(t, 2, r.Trace[1].Seq)
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
}
