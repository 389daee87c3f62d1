package exchange

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/roach88/fxledger/internal/ledger"
	"github.com/roach88/fxledger/internal/transfer"
)

// Observations recorded on failed settlements.
const (
	ObsInsufficientFunds = "Not enough funds on counter currency account"
	ObsWithdrawFailed    = "Could not withdraw from clients' account"
	ObsDepositFailed     = "Could not transfer to clients' account"
)

// State is a settlement's position in the leg state machine:
//
//	Idle -> WithdrawPending -> DepositPending -> Committed
//	                 |               |
//	                 v               v
//	               Failed <- CompensatePending
type State int

const (
	StateIdle State = iota
	StateWithdrawPending
	StateDepositPending
	StateCompensatePending
	StateCommitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWithdrawPending:
		return "WITHDRAW_PENDING"
	case StateDepositPending:
		return "DEPOSIT_PENDING"
	case StateCompensatePending:
		return "COMPENSATE_PENDING"
	case StateCommitted:
		return "COMMITTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed
}

// Legs names the accounts and amounts of one settlement.
type Legs struct {
	ClientBase      int64
	ClientCounter   int64
	InternalBase    int64
	InternalCounter int64
	BaseAmount      decimal.Decimal
	CounterAmount   decimal.Decimal
}

// Outcome is the result of driving a settlement to a terminal state.
type Outcome struct {
	State       State
	Observation string
	// Path lists every state visited, starting with StateIdle.
	Path []State
	// LegErr is the ledger.KindTransfer error that failed the settlement.
	LegErr error
	// Compensated is false only when the base amount could not be returned
	// after a failed deposit; such a settlement needs manual reconciliation.
	Compensated bool
}

// Settle moves money through the external legs: withdraw the base amount from
// the client, deposit the counter amount to the client, and return the base
// amount if the deposit fails. The compensating transfer is tried up to
// compensationAttempts times.
//
// Settle never touches the ledger; the caller applies internal balances for
// a Committed outcome.
func Settle(ctx context.Context, svc transfer.Service, legs Legs, compensationAttempts int) Outcome {
	if compensationAttempts < 1 {
		compensationAttempts = 1
	}

	out := Outcome{State: StateIdle, Path: []State{StateIdle}, Compensated: true}
	next := func(s State) {
		out.State = s
		out.Path = append(out.Path, s)
	}

	for !out.State.Terminal() {
		switch out.State {
		case StateIdle:
			next(StateWithdrawPending)

		case StateWithdrawPending:
			if err := svc.Transfer(ctx, legs.ClientBase, legs.InternalBase, legs.BaseAmount); err != nil {
				out.LegErr = ledger.TransferFailure("withdraw", ObsWithdrawFailed, err)
				out.Observation = ObsWithdrawFailed
				next(StateFailed)
				continue
			}
			next(StateDepositPending)

		case StateDepositPending:
			if err := svc.Transfer(ctx, legs.InternalCounter, legs.ClientCounter, legs.CounterAmount); err != nil {
				out.LegErr = ledger.TransferFailure("deposit", ObsDepositFailed, err)
				out.Observation = ObsDepositFailed
				next(StateCompensatePending)
				continue
			}
			next(StateCommitted)

		case StateCompensatePending:
			out.Compensated = compensate(ctx, svc, legs, compensationAttempts)
			next(StateFailed)
		}
	}

	return out
}

func compensate(ctx context.Context, svc transfer.Service, legs Legs, attempts int) bool {
	for attempt := 1; attempt <= attempts; attempt++ {
		err := svc.Transfer(ctx, legs.InternalBase, legs.ClientBase, legs.BaseAmount)
		if err == nil {
			return true
		}
		slog.Warn("compensating transfer failed",
			"attempt", attempt,
			"of", attempts,
			"from", legs.InternalBase,
			"to", legs.ClientBase,
			"amount", legs.BaseAmount.String(),
			"error", err,
		)
	}
	return false
}
