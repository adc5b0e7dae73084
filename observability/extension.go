// Package observability provides a metrics extension for grant that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/plugin"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnAccountsCreated       = (*MetricsExtension)(nil)
	_ plugin.OnSettlementStarted     = (*MetricsExtension)(nil)
	_ plugin.OnSettlementSucceeded   = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed      = (*MetricsExtension)(nil)
	_ plugin.OnProtocolViolation     = (*MetricsExtension)(nil)
	_ plugin.OnSaleAccountOpened     = (*MetricsExtension)(nil)
	_ plugin.OnParticipantRegistered = (*MetricsExtension)(nil)
	_ plugin.OnPurchase              = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a grant plugin to track vesting and sale activity.
type MetricsExtension struct {
	factory MetricFactory

	// Vesting metrics
	AccountsCreated Counter
	ClaimsStarted   Counter
	ClaimsSettled   Counter
	ClaimsReverted  Counter
	ClaimedTokens   Histogram
	RevokesStarted  Counter
	RevokesSettled  Counter
	RevokesReverted Counter

	// Sale metrics
	SaleAccountsOpened     Counter
	RegistrationsStarted   Counter
	ParticipantsRegistered Counter
	RegistrationsRejected  Counter
	Purchases              Counter
	PurchasedTokens        Histogram

	// Settlement metrics
	SettlementsAbandoned Counter
	ProtocolViolations   Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		AccountsCreated: factory.Counter("grant.vesting.accounts.created"),
		ClaimsStarted:   factory.Counter("grant.vesting.claims.started"),
		ClaimsSettled:   factory.Counter("grant.vesting.claims.settled"),
		ClaimsReverted:  factory.Counter("grant.vesting.claims.reverted"),
		ClaimedTokens:   factory.Histogram("grant.vesting.claimed.tokens"),
		RevokesStarted:  factory.Counter("grant.vesting.revokes.started"),
		RevokesSettled:  factory.Counter("grant.vesting.revokes.settled"),
		RevokesReverted: factory.Counter("grant.vesting.revokes.reverted"),

		SaleAccountsOpened:     factory.Counter("grant.sale.accounts.opened"),
		RegistrationsStarted:   factory.Counter("grant.sale.registrations.started"),
		ParticipantsRegistered: factory.Counter("grant.sale.participants.registered"),
		RegistrationsRejected:  factory.Counter("grant.sale.registrations.rejected"),
		Purchases:              factory.Counter("grant.sale.purchases"),
		PurchasedTokens:        factory.Histogram("grant.sale.purchased.tokens"),

		SettlementsAbandoned: factory.Counter("grant.settlement.abandoned"),
		ProtocolViolations:   factory.Counter("grant.settlement.protocol_violations"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Vesting hooks
// ──────────────────────────────────────────────────

// OnAccountsCreated implements plugin.OnAccountsCreated.
func (m *MetricsExtension) OnAccountsCreated(_ context.Context, accounts []*vesting.Account) error {
	m.AccountsCreated.Add(float64(len(accounts)))
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementStarted implements plugin.OnSettlementStarted.
func (m *MetricsExtension) OnSettlementStarted(_ context.Context, s *settlement.Settlement) error {
	switch s.Kind {
	case settlement.KindClaim:
		m.ClaimsStarted.Inc()
	case settlement.KindRevoke:
		m.RevokesStarted.Inc()
	case settlement.KindRegister:
		m.RegistrationsStarted.Inc()
	}
	return nil
}

// OnSettlementSucceeded implements plugin.OnSettlementSucceeded.
func (m *MetricsExtension) OnSettlementSucceeded(_ context.Context, s *settlement.Settlement) error {
	switch s.Kind {
	case settlement.KindClaim:
		m.ClaimsSettled.Inc()
		m.ClaimedTokens.Observe(s.Amount.Float64())
	case settlement.KindRevoke:
		m.RevokesSettled.Inc()
	}
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(_ context.Context, s *settlement.Settlement) error {
	if s.Status == settlement.StatusAbandoned {
		m.SettlementsAbandoned.Inc()
		return nil
	}
	switch s.Kind {
	case settlement.KindClaim:
		m.ClaimsReverted.Inc()
	case settlement.KindRevoke:
		m.RevokesReverted.Inc()
	case settlement.KindRegister:
		m.RegistrationsRejected.Inc()
	}
	return nil
}

// OnProtocolViolation implements plugin.OnProtocolViolation.
func (m *MetricsExtension) OnProtocolViolation(_ context.Context, _ string, _ error) error {
	m.ProtocolViolations.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Sale hooks
// ──────────────────────────────────────────────────

// OnSaleAccountOpened implements plugin.OnSaleAccountOpened.
func (m *MetricsExtension) OnSaleAccountOpened(_ context.Context, _ string) error {
	m.SaleAccountsOpened.Inc()
	return nil
}

// OnParticipantRegistered implements plugin.OnParticipantRegistered.
func (m *MetricsExtension) OnParticipantRegistered(_ context.Context, _ *allocation.Account) error {
	m.ParticipantsRegistered.Inc()
	return nil
}

// OnPurchase implements plugin.OnPurchase.
func (m *MetricsExtension) OnPurchase(_ context.Context, _ *allocation.Account, _, tokens types.Amount) error {
	m.Purchases.Inc()
	m.PurchasedTokens.Observe(tokens.Float64())
	return nil
}
