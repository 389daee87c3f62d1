// Package harness runs ledger scenarios written in YAML.
//
// A scenario seeds the ledger's own accounts and rates, scripts the bank's
// answers, and then drives the real engine and exchange service step by
// step. Every step is recorded in a trace that can be compared against a
// golden file.
//
// # Scenario Format
//
//	name: exchange_success
//	description: "What this scenario validates"
//	accounts:
//	  - { id: 1, currency: USD, balance: "0" }
//	  - { id: 2, currency: EUR, balance: "100" }
//	rates:
//	  - { base: USD, counter: EUR, rate: "0.90" }
//	transfers: [ok, declined]
//	steps:
//	  - exchange: { base: USD, counter: EUR, base_account: 10, counter_account: 20, amount: "50" }
//	    expect: { ok: true, counter_amount: "45" }
//	  - restart: true
//	assertions:
//	  - { type: balance, currency: EUR, equals: "55" }
//	  - { type: log_count, count: 1 }
//
// # Step Types
//
//   - set_rate: sets a rate and its reciprocal
//   - set_balance: replaces an account balance
//   - add_account: provisions an internal account
//   - exchange: settles an exchange request
//   - restart: stops the engine and recovers the ledger from disk
//
// # Assertion Types
//
//   - balance: an internal account's balance
//   - rate: a committed rate, or its absence
//   - log_count: number of log entries, optionally only ok or failed ones
//   - transfer_count: number of calls made to the bank
//
// # Deterministic Testing
//
// Log entry ids come from engine.FixedGenerator and timestamps from
// testutil.DeterministicClock, so the same scenario always produces the
// same trace. State is kept in a fresh file backend per run, which makes
// restart steps exercise real recovery.
package harness
