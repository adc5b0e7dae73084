package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/store"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

func TestVestingAccounts(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := &vesting.Account{Participant: "alice", TotalAmount: types.NewAmount(1000)}
	if err := s.CreateVestingAccount(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateVestingAccount(ctx, a); !errors.Is(err, vesting.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	a.ClaimedAmount = types.NewAmount(5)
	got, err := s.GetVestingAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !got.ClaimedAmount.IsZero() {
		t.Error("store shares state with caller")
	}

	got.IsRevoked = true
	if err := s.UpdateVestingAccount(ctx, got); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateVestingAccount(ctx, &vesting.Account{Participant: "ghost"}); !errors.Is(err, vesting.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetVestingAccount(ctx, "ghost"); !errors.Is(err, vesting.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_ = s.CreateVestingAccount(ctx, &vesting.Account{Participant: "bob"})
	revoked := true
	list, err := s.ListVestingAccounts(ctx, vesting.ListOpts{Revoked: &revoked})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Participant != "alice" {
		t.Errorf("unexpected revoked list: %+v", list)
	}

	all, _ := s.ListVestingAccounts(ctx, vesting.ListOpts{Limit: 1, Offset: 1})
	if len(all) != 1 || all[0].Participant != "bob" {
		t.Errorf("unexpected page: %+v", all)
	}
}

func TestSaleAccounts(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateSaleAccount(ctx, allocation.NewAccount("alice")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSaleAccount(ctx, allocation.NewAccount("alice")); !errors.Is(err, allocation.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	a, _ := s.GetSaleAccount(ctx, "alice")
	a.Tier = tier.Tier2
	if err := s.UpdateSaleAccount(ctx, a); err != nil {
		t.Fatal(err)
	}
	_ = s.CreateSaleAccount(ctx, allocation.NewAccount("bob"))

	t2 := tier.Tier2
	list, err := s.ListSaleAccounts(ctx, allocation.ListOpts{Tier: &t2})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Participant != "alice" {
		t.Errorf("unexpected tier2 list: %+v", list)
	}
}

func TestTiers(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.SaveTiers(ctx, tier.DefaultTable().Configs()); err != nil {
		t.Fatal(err)
	}
	got, err := s.ListTiers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != tier.Count || got[0].Tier != tier.Untiered || got[7].Tier != tier.Tier7 {
		t.Errorf("unexpected tiers: %+v", got)
	}
}

func TestSettlements(t *testing.T) {
	ctx := context.Background()
	s := New()

	st := &settlement.Settlement{
		ID:          id.NewSettlementID(),
		Participant: "alice",
		Kind:        settlement.KindClaim,
		Status:      settlement.StatusPending,
	}
	if err := s.CreateSettlement(ctx, st); err != nil {
		t.Fatal(err)
	}

	st.Status = settlement.StatusSucceeded
	if err := s.UpdateSettlement(ctx, st, settlement.StatusPending); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSettlement(ctx, st, settlement.StatusPending); !errors.Is(err, settlement.ErrStatusConflict) {
		t.Errorf("expected ErrStatusConflict, got %v", err)
	}
	if _, err := s.GetSettlement(ctx, id.NewSettlementID()); !errors.Is(err, settlement.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_ = s.CreateSettlement(ctx, &settlement.Settlement{
		ID:          id.NewSettlementID(),
		Participant: "bob",
		Kind:        settlement.KindRegister,
		Status:      settlement.StatusPending,
	})

	list, err := s.ListSettlements(ctx, settlement.ListOpts{Status: settlement.StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Participant != "bob" {
		t.Errorf("unexpected pending list: %+v", list)
	}
	list, _ = s.ListSettlements(ctx, settlement.ListOpts{Participant: "alice", Kind: settlement.KindClaim})
	if len(list) != 1 || list[0].Status != settlement.StatusSucceeded {
		t.Errorf("unexpected alice list: %+v", list)
	}
}

func TestTotals(t *testing.T) {
	ctx := context.Background()
	s := New()

	got, err := s.GetTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.TotalClaimed.IsZero() || !got.TotalPurchased.IsZero() {
		t.Error("expected zero totals before first save")
	}

	stale := *got
	if err := s.UpdateTotals(ctx, got, &store.Totals{TotalClaimed: types.NewAmount(9)}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetTotals(ctx)
	if !got.TotalClaimed.Equal(types.NewAmount(9)) || got.UpdatedAt.IsZero() {
		t.Errorf("unexpected totals: %+v", got)
	}

	err = s.UpdateTotals(ctx, &stale, &store.Totals{TotalClaimed: types.NewAmount(4)})
	if !errors.Is(err, store.ErrTotalsConflict) {
		t.Fatalf("expected ErrTotalsConflict from stale totals, got %v", err)
	}
	got, _ = s.GetTotals(ctx)
	if !got.TotalClaimed.Equal(types.NewAmount(9)) {
		t.Errorf("stale write applied: %s", got.TotalClaimed)
	}
}

func TestUpdateParticipantCount(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.SaveTiers(ctx, tier.DefaultTable().Configs()); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateParticipantCount(ctx, tier.Tier1, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateParticipantCount(ctx, tier.Tier1, 0, 1); !errors.Is(err, tier.ErrCountConflict) {
		t.Fatalf("expected ErrCountConflict, got %v", err)
	}

	tiers, _ := s.ListTiers(ctx)
	for _, c := range tiers {
		if c.Tier == tier.Tier1 && c.ParticipantCount != 1 {
			t.Errorf("tier1 count = %d, want 1", c.ParticipantCount)
		}
	}
}
