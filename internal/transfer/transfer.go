// Package transfer is the client for the external bank that moves money
// between client accounts and the ledger's own accounts.
//
// The real bank API is not part of this module. Simulated stands in for it
// with bounded random latency and a configurable failure rate, Scripted
// replays fixed outcomes for tests and scenarios.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrDeclined is returned when the bank refuses a transfer.
var ErrDeclined = errors.New("transfer declined")

// Service moves amount from one account to another.
type Service interface {
	Transfer(ctx context.Context, from, to int64, amount decimal.Decimal) error
}

// Config tunes the simulated bank.
type Config struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64
	// Seed fixes the random source. Zero seeds from the runtime.
	Seed uint64
}

// DefaultConfig matches the bank simulation the ledger has always used:
// 200-400ms per call and no failures.
func DefaultConfig() Config {
	return Config{
		MinLatency: 200 * time.Millisecond,
		MaxLatency: 400 * time.Millisecond,
	}
}

// Simulated is a Service that sleeps for a random interval in
// [MinLatency, MaxLatency] and then declines with probability FailureRate.
type Simulated struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated validates cfg and returns a simulated bank.
func NewSimulated(cfg Config) (*Simulated, error) {
	if cfg.MinLatency < 0 || cfg.MaxLatency < cfg.MinLatency {
		return nil, fmt.Errorf("invalid latency bounds [%s, %s]", cfg.MinLatency, cfg.MaxLatency)
	}
	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return nil, fmt.Errorf("failure rate %v outside [0, 1]", cfg.FailureRate)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulated{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Transfer waits out the simulated latency and reports the outcome.
// It returns ctx.Err() if ctx is done first.
func (s *Simulated) Transfer(ctx context.Context, from, to int64, amount decimal.Decimal) error {
	latency, fail := s.draw()

	timer := time.NewTimer(latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if fail {
		return fmt.Errorf("%d -> %d (%s): %w", from, to, amount, ErrDeclined)
	}
	return nil
}

func (s *Simulated) draw() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := s.cfg.MinLatency
	if spread := s.cfg.MaxLatency - s.cfg.MinLatency; spread > 0 {
		latency += time.Duration(s.rng.Int64N(int64(spread) + 1))
	}
	return latency, s.rng.Float64() < s.cfg.FailureRate
}

// Call is one transfer seen by Scripted.
type Call struct {
	From   int64           `json:"from" yaml:"from"`
	To     int64           `json:"to" yaml:"to"`
	Amount decimal.Decimal `json:"amount" yaml:"amount"`
}

// Scripted replays a fixed list of outcomes, one per call, and records every
// call. Once the outcomes run out every call succeeds.
type Scripted struct {
	mu       sync.Mutex
	outcomes []error
	calls    []Call
}

// NewScripted creates a Scripted service. A nil outcome is a success.
func NewScripted(outcomes ...error) *Scripted {
	return &Scripted{outcomes: outcomes}
}

// Transfer records the call and returns the next scripted outcome.
func (s *Scripted) Transfer(ctx context.Context, from, to int64, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{From: from, To: to, Amount: amount})
	if len(s.outcomes) == 0 {
		return nil
	}
	err := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return err
}

// Calls returns the transfers made so far, in order.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
