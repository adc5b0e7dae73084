// Package grant provides a vesting and tier-gated token sale engine for Go
// applications.
//
// Grant is designed as a library, not a service. It keeps the entitlement
// ledgers and settles every payout against an external, asynchronous token
// transfer that may fail after the ledger has already been updated. It
// provides:
//
//   - Linear vesting schedules with a cliff, claims and owner revocation
//   - Stake-based tier registration through an external stake oracle
//   - Pro-rata allocation caps enforced on every sale purchase
//   - Exactly-once settlement with exact compensation on transfer failure
//   - A per-participant pending lock, in memory or shared through Redis
//   - Audit and metrics plugins
//
// # Quick Start
//
// Create an engine with your preferred store and collaborators:
//
//	import (
//	    "github.com/xraph/grant"
//	    "github.com/xraph/grant/store/postgres"
//	)
//
//	store, err := postgres.New(db)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := grant.DefaultConfig()
//	cfg.Owner = "owner.near"
//	// ... tokens, windows, pool, price
//
//	g, err := grant.New(store, cfg,
//	    grant.WithTransferService(transfers),
//	    grant.WithStakeOracle(oracle),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start the engine (migrates, loads tiers, starts the resolution worker)
//	if err := g.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Stop()
//
// # Settlements
//
// Claim, Revoke and Register change local state first and then call an
// external service. Each call returns as soon as the request is accepted;
// the reply is queued and resolved exactly once:
//
//	ctx = grant.WithCaller(ctx, "alice.near")
//	pending, err := g.Claim(ctx)
//
// A successful reply keeps the change. A failed reply restores the claimed
// amount, the running total or the revoked flag to their previous values.
// While a settlement is pending, any other operation for the same participant
// fails with ErrOperationInProgress. The owner can resolve a participant
// whose reply never arrives with Unstick.
//
// # Amounts
//
// All token amounts are unsigned 128-bit integers in the token's smallest
// unit. Every operation is checked: overflow, underflow and division by zero
// are errors, never wrapped values.
//
// # TypeID
//
// Settlement records use TypeID for globally unique, type-safe identifiers:
//
//	stl_01h2xcejqtf2nbrexx3vqjhp41  // Settlement ID
//
// TypeIDs are K-sortable, so listing settlements by ID lists them in the
// order they started.
package grant
