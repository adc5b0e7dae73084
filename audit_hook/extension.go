// Package audithook bridges grant lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/plugin"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnAccountsCreated       = (*Extension)(nil)
	_ plugin.OnSettlementStarted     = (*Extension)(nil)
	_ plugin.OnSettlementSucceeded   = (*Extension)(nil)
	_ plugin.OnSettlementFailed      = (*Extension)(nil)
	_ plugin.OnProtocolViolation     = (*Extension)(nil)
	_ plugin.OnSaleAccountOpened     = (*Extension)(nil)
	_ plugin.OnParticipantRegistered = (*Extension)(nil)
	_ plugin.OnPurchase              = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges grant lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Vesting hooks
// ──────────────────────────────────────────────────

// OnAccountsCreated implements plugin.OnAccountsCreated. One event is
// recorded per created account.
func (e *Extension) OnAccountsCreated(ctx context.Context, accounts []*vesting.Account) error {
	for _, a := range accounts {
		_ = e.record(ctx, ActionAccountsCreated, SeverityInfo, OutcomeSuccess,
			ResourceVestingAccount, a.Participant, CategoryVesting, nil,
			"total_amount", a.TotalAmount.String(),
			"start_timestamp", a.StartTimestamp,
			"finish_timestamp", a.FinishTimestamp,
			"releases_count", a.ReleasesCount,
			"revocable", a.IsRevocable,
		)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementStarted implements plugin.OnSettlementStarted.
func (e *Extension) OnSettlementStarted(ctx context.Context, s *settlement.Settlement) error {
	var action string
	switch s.Kind {
	case settlement.KindClaim:
		action = ActionClaimStarted
	case settlement.KindRevoke:
		action = ActionRevokeStarted
	case settlement.KindRegister:
		action = ActionRegisterStarted
	default:
		return nil
	}
	return e.recordSettlement(ctx, action, SeverityInfo, OutcomeSuccess, s, nil)
}

// OnSettlementSucceeded implements plugin.OnSettlementSucceeded. Successful
// registrations are recorded by OnParticipantRegistered instead.
func (e *Extension) OnSettlementSucceeded(ctx context.Context, s *settlement.Settlement) error {
	var action string
	switch s.Kind {
	case settlement.KindClaim:
		action = ActionClaimSettled
	case settlement.KindRevoke:
		action = ActionRevokeSettled
	default:
		return nil
	}
	return e.recordSettlement(ctx, action, SeverityInfo, OutcomeSuccess, s, nil)
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, s *settlement.Settlement) error {
	if s.Status == settlement.StatusAbandoned {
		return e.recordSettlement(ctx, ActionSettlementAbandoned, SeverityCritical, OutcomeFailure, s, nil)
	}

	var action string
	switch s.Kind {
	case settlement.KindClaim:
		action = ActionClaimReverted
	case settlement.KindRevoke:
		action = ActionRevokeReverted
	case settlement.KindRegister:
		action = ActionRegisterRejected
	default:
		return nil
	}

	var reason error
	if s.Failure != "" {
		reason = errors.New(s.Failure)
	}
	return e.recordSettlement(ctx, action, SeverityWarning, OutcomeFailure, s, reason)
}

// OnProtocolViolation implements plugin.OnProtocolViolation.
func (e *Extension) OnProtocolViolation(ctx context.Context, correlation string, err error) error {
	return e.record(ctx, ActionProtocolViolation, SeverityCritical, OutcomeFailure,
		ResourceSettlement, correlation, CategorySettlement, err,
		"correlation", correlation,
	)
}

// ──────────────────────────────────────────────────
// Sale hooks
// ──────────────────────────────────────────────────

// OnSaleAccountOpened implements plugin.OnSaleAccountOpened.
func (e *Extension) OnSaleAccountOpened(ctx context.Context, participant string) error {
	return e.record(ctx, ActionSaleAccountOpened, SeverityInfo, OutcomeSuccess,
		ResourceSaleAccount, participant, CategorySale, nil,
	)
}

// OnParticipantRegistered implements plugin.OnParticipantRegistered.
func (e *Extension) OnParticipantRegistered(ctx context.Context, account *allocation.Account) error {
	return e.record(ctx, ActionParticipantRegistered, SeverityInfo, OutcomeSuccess,
		ResourceSaleAccount, account.Participant, CategorySale, nil,
		"tier", account.Tier.String(),
	)
}

// OnPurchase implements plugin.OnPurchase.
func (e *Extension) OnPurchase(ctx context.Context, account *allocation.Account, payment, tokens types.Amount) error {
	return e.record(ctx, ActionPurchase, SeverityInfo, OutcomeSuccess,
		ResourceSaleAccount, account.Participant, CategorySale, nil,
		"tier", account.Tier.String(),
		"payment", payment.String(),
		"tokens", tokens.String(),
		"purchased_amount", account.PurchasedAmount.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (e *Extension) recordSettlement(
	ctx context.Context,
	action, severity, outcome string,
	s *settlement.Settlement,
	err error,
) error {
	return e.record(ctx, action, severity, outcome,
		ResourceSettlement, s.ID.String(), CategorySettlement, err,
		"participant", s.Participant,
		"kind", string(s.Kind),
		"status", string(s.Status),
		"amount", s.Amount.String(),
		"tier", s.Tier.String(),
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewAuditID().String(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
