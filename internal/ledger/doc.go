// Package ledger holds the authoritative in-memory state of the exchange:
// per-currency accounts, the bidirectional rate table and the append-only
// settlement log.
//
// # Ownership
//
// A Store is not safe for concurrent use. It is owned by exactly one
// goroutine at a time, the engine's operation queue consumer, which is the
// only code path allowed to mutate it. Readers use Snapshot values, which
// are deep copies and never alias the live store.
//
// # Indices
//
// Accounts live in one owned slice. The id and currency maps are secondary
// indices holding slice positions, never Account copies, so a balance is
// stored exactly once and both lookups always agree. Verify re-derives the
// indices from the slice and reports any disagreement.
//
// # Money
//
// Balances, amounts and rates are github.com/shopspring/decimal values.
// Reciprocal rates are rounded to ReciprocalPlaces decimal places.
package ledger
