package audithook

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

type captureRecorder struct {
	events []*AuditEvent
	err    error
}

func (c *captureRecorder) Record(_ context.Context, evt *AuditEvent) error {
	c.events = append(c.events, evt)
	return c.err
}

func newSettlement(kind settlement.Kind, status settlement.Status) *settlement.Settlement {
	return &settlement.Settlement{
		ID:          id.NewSettlementID(),
		Participant: "alice",
		Kind:        kind,
		Status:      status,
		Amount:      types.NewAmount(300),
	}
}

func TestSettlementActions(t *testing.T) {
	tests := []struct {
		name     string
		emit     func(*Extension, context.Context, *settlement.Settlement) error
		kind     settlement.Kind
		status   settlement.Status
		action   string
		outcome  string
		severity string
	}{
		{
			name:     "claim started",
			emit:     (*Extension).OnSettlementStarted,
			kind:     settlement.KindClaim,
			status:   settlement.StatusPending,
			action:   ActionClaimStarted,
			outcome:  OutcomeSuccess,
			severity: SeverityInfo,
		},
		{
			name:     "revoke settled",
			emit:     (*Extension).OnSettlementSucceeded,
			kind:     settlement.KindRevoke,
			status:   settlement.StatusSucceeded,
			action:   ActionRevokeSettled,
			outcome:  OutcomeSuccess,
			severity: SeverityInfo,
		},
		{
			name:     "claim reverted",
			emit:     (*Extension).OnSettlementFailed,
			kind:     settlement.KindClaim,
			status:   settlement.StatusCompensated,
			action:   ActionClaimReverted,
			outcome:  OutcomeFailure,
			severity: SeverityWarning,
		},
		{
			name:     "register rejected",
			emit:     (*Extension).OnSettlementFailed,
			kind:     settlement.KindRegister,
			status:   settlement.StatusRejected,
			action:   ActionRegisterRejected,
			outcome:  OutcomeFailure,
			severity: SeverityWarning,
		},
		{
			name:     "abandoned",
			emit:     (*Extension).OnSettlementFailed,
			kind:     settlement.KindRevoke,
			status:   settlement.StatusAbandoned,
			action:   ActionSettlementAbandoned,
			outcome:  OutcomeFailure,
			severity: SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &captureRecorder{}
			ext := New(rec)
			s := newSettlement(tt.kind, tt.status)

			if err := tt.emit(ext, context.Background(), s); err != nil {
				t.Fatalf("hook returned %v", err)
			}
			if len(rec.events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(rec.events))
			}
			evt := rec.events[0]
			if evt.Action != tt.action {
				t.Errorf("action = %q, want %q", evt.Action, tt.action)
			}
			if evt.Outcome != tt.outcome || evt.Severity != tt.severity {
				t.Errorf("outcome/severity = %s/%s, want %s/%s", evt.Outcome, evt.Severity, tt.outcome, tt.severity)
			}
			if evt.ResourceID != s.ID.String() {
				t.Errorf("resource id = %q, want %q", evt.ResourceID, s.ID.String())
			}
			if evt.Metadata["amount"] != "300" {
				t.Errorf("amount metadata = %v", evt.Metadata["amount"])
			}
		})
	}
}

func TestRegisterSuccessRecordedByParticipantHook(t *testing.T) {
	rec := &captureRecorder{}
	ext := New(rec)

	s := newSettlement(settlement.KindRegister, settlement.StatusSucceeded)
	if err := ext.OnSettlementSucceeded(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("expected no event for register success, got %d", len(rec.events))
	}

	acct := &allocation.Account{Participant: "alice", Tier: tier.Tier2}
	if err := ext.OnParticipantRegistered(context.Background(), acct); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 || rec.events[0].Metadata["tier"] != "tier2" {
		t.Fatalf("unexpected events %+v", rec.events)
	}
}

func TestFailureReason(t *testing.T) {
	rec := &captureRecorder{}
	ext := New(rec)

	s := newSettlement(settlement.KindRegister, settlement.StatusRejected)
	s.Failure = "grant: insufficient stake"
	_ = ext.OnSettlementFailed(context.Background(), s)

	if rec.events[0].Reason != s.Failure {
		t.Errorf("reason = %q, want %q", rec.events[0].Reason, s.Failure)
	}
}

func TestAccountsCreatedPerAccount(t *testing.T) {
	rec := &captureRecorder{}
	ext := New(rec)

	accounts := []*vesting.Account{
		{Participant: "alice", TotalAmount: types.NewAmount(10)},
		{Participant: "bob", TotalAmount: types.NewAmount(20)},
	}
	if err := ext.OnAccountsCreated(context.Background(), accounts); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	if rec.events[1].ResourceID != "bob" || rec.events[1].Metadata["total_amount"] != "20" {
		t.Errorf("unexpected second event %+v", rec.events[1])
	}
}

func TestEnabledAndDisabledActions(t *testing.T) {
	ctx := context.Background()
	acct := &allocation.Account{Participant: "alice", Tier: tier.Tier1}

	rec := &captureRecorder{}
	ext := New(rec, WithEnabledActions(ActionPurchase))
	_ = ext.OnSaleAccountOpened(ctx, "alice")
	_ = ext.OnPurchase(ctx, acct, types.NewAmount(1), types.NewAmount(1))
	if len(rec.events) != 1 || rec.events[0].Action != ActionPurchase {
		t.Fatalf("enabled filter: got %+v", rec.events)
	}

	rec = &captureRecorder{}
	ext = New(rec, WithDisabledActions(ActionPurchase))
	_ = ext.OnSaleAccountOpened(ctx, "alice")
	_ = ext.OnPurchase(ctx, acct, types.NewAmount(1), types.NewAmount(1))
	if len(rec.events) != 1 || rec.events[0].Action != ActionSaleAccountOpened {
		t.Fatalf("disabled filter: got %+v", rec.events)
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	rec := &captureRecorder{err: errors.New("backend down")}
	ext := New(rec)

	if err := ext.OnProtocolViolation(context.Background(), "claim:stl_x:alice", settlement.ErrDuplicateResolution); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Severity != SeverityCritical {
		t.Fatalf("unexpected events %+v", rec.events)
	}
}
