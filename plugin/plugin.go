// Package plugin provides an extensible plugin system for grant.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *grant.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Vesting hooks
// ──────────────────────────────────────────────────

// OnAccountsCreated is called after a batch creation with the accounts that
// were actually created (existing participants are skipped).
type OnAccountsCreated interface {
	Plugin
	OnAccountsCreated(ctx context.Context, accounts []*vesting.Account) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementStarted is called once a settlement is pending and its
// external call is in flight.
type OnSettlementStarted interface {
	Plugin
	OnSettlementStarted(ctx context.Context, s *settlement.Settlement) error
}

// OnSettlementSucceeded is called when a settlement resolves successfully.
type OnSettlementSucceeded interface {
	Plugin
	OnSettlementSucceeded(ctx context.Context, s *settlement.Settlement) error
}

// OnSettlementFailed is called when a settlement ends compensated, rejected
// or abandoned.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, s *settlement.Settlement) error
}

// OnProtocolViolation is called when an external collaborator breaks the
// exactly-once reply contract.
type OnProtocolViolation interface {
	Plugin
	OnProtocolViolation(ctx context.Context, correlation string, err error) error
}

// ──────────────────────────────────────────────────
// Sale hooks
// ──────────────────────────────────────────────────

// OnSaleAccountOpened is called when a new untiered sale account is created.
type OnSaleAccountOpened interface {
	Plugin
	OnSaleAccountOpened(ctx context.Context, participant string) error
}

// OnParticipantRegistered is called when a participant is assigned a tier.
type OnParticipantRegistered interface {
	Plugin
	OnParticipantRegistered(ctx context.Context, account *allocation.Account) error
}

// OnPurchase is called after a purchase is recorded.
type OnPurchase interface {
	Plugin
	OnPurchase(ctx context.Context, account *allocation.Account, payment, tokens types.Amount) error
}
