package grant

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/grant/external"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/store"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// CreateAccounts creates one vesting account per grant. Owner only.
//
// The whole batch is validated before anything is written. Participants that
// already have an account are skipped, so replaying a batch is harmless.
func (e *Engine) CreateAccounts(ctx context.Context, grants []vesting.Grant) (bool, error) {
	if err := e.requireOwner(ctx); err != nil {
		return false, err
	}

	accounts := make([]*vesting.Account, 0, len(grants))
	for i, g := range grants {
		if g.Participant == "" {
			return false, ValidationError{Field: fmt.Sprintf("grants[%d].participant", i), Message: "is required"}
		}
		acct, err := vesting.NewAccount(g)
		if err != nil {
			return false, fmt.Errorf("grant: batch entry %d (%s): %w", i, g.Participant, err)
		}
		accounts = append(accounts, acct)
	}

	batchID := id.NewBatchID()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning(); err != nil {
		return false, err
	}

	created := make([]*vesting.Account, 0, len(accounts))
	for _, acct := range accounts {
		err := e.store.CreateVestingAccount(ctx, acct)
		if errors.Is(err, vesting.ErrAlreadyExists) {
			e.logger.Debug("vesting account exists, skipped",
				"batch_id", batchID.String(),
				"participant", acct.Participant,
			)
			continue
		}
		if err != nil {
			return false, fmt.Errorf("grant: create vesting account %s: %w", acct.Participant, err)
		}
		created = append(created, acct)
	}

	e.logger.Info("vesting accounts created",
		"batch_id", batchID.String(),
		"requested", len(grants),
		"created", len(created),
	)
	if len(created) > 0 {
		e.plugins.EmitAccountsCreated(ctx, created)
	}

	return true, nil
}

// VestedAmount returns how much of participant's total has unlocked now.
func (e *Engine) VestedAmount(ctx context.Context, participant string) (types.Amount, error) {
	acct, err := e.store.GetVestingAccount(ctx, participant)
	if err != nil {
		return types.Amount{}, notFound(err, "vesting account", participant)
	}
	return acct.VestedAmount(e.now())
}

// Claim starts a transfer of everything the caller can claim now and returns
// the pending amount. The claim is provisional until the transfer resolves;
// a failed transfer restores the claimed amount exactly.
func (e *Engine) Claim(ctx context.Context) (types.Amount, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return types.Amount{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.begin(ctx, &settlement.Settlement{
		Participant: caller,
		Kind:        settlement.KindClaim,
		Recipient:   caller,
	})
	if err != nil {
		return types.Amount{}, err
	}
	return s.Amount, nil
}

// Revoke ends participant's schedule and sends the unclaimed remainder to the
// owner. Owner only. The returned amount is pending until the transfer
// resolves.
func (e *Engine) Revoke(ctx context.Context, participant string) (types.Amount, error) {
	if err := e.requireOwner(ctx); err != nil {
		return types.Amount{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.begin(ctx, &settlement.Settlement{
		Participant: participant,
		Kind:        settlement.KindRevoke,
		Recipient:   e.cfg.Owner,
	})
	if err != nil {
		return types.Amount{}, err
	}
	return s.Amount, nil
}

// saveVesting writes acct and then, when adjust is set, the running totals.
// If the totals write fails the account is restored to prev.
func (e *Engine) saveVesting(ctx context.Context, acct, prev *vesting.Account, adjust func(*store.Totals) error) error {
	acct.Touch()
	if err := e.store.UpdateVestingAccount(ctx, acct); err != nil {
		return fmt.Errorf("grant: update vesting account %s: %w", acct.Participant, err)
	}
	if adjust == nil {
		return nil
	}
	if err := e.updateTotals(ctx, adjust); err != nil {
		if rerr := e.store.UpdateVestingAccount(ctx, prev); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// dispatchTransfer sends s.Amount of the vesting token to s.Recipient.
func (e *Engine) dispatchTransfer(ctx context.Context, s *settlement.Settlement, reply func(settlement.Outcome)) error {
	corr := s.Correlation()
	req := external.TransferRequest{
		Correlation: corr.Key(),
		Token:       e.cfg.VestingToken,
		Recipient:   s.Recipient,
		Amount:      s.Amount,
	}
	return e.transfers.Transfer(ctx, req, func(r external.TransferResult) {
		reply(settlement.Outcome{Correlation: corr, Err: r.Err, Reference: r.Reference})
	})
}

type claimHandler struct{ e *Engine }

func (h *claimHandler) Kind() settlement.Kind { return settlement.KindClaim }

func (h *claimHandler) Apply(ctx context.Context, s *settlement.Settlement) error {
	e := h.e

	acct, err := e.store.GetVestingAccount(ctx, s.Participant)
	if errors.Is(err, vesting.ErrNotFound) {
		return ErrNotBeneficiary
	}
	if err != nil {
		return err
	}
	if acct.IsRevoked {
		return ErrAlreadyRevoked
	}

	claimable, err := acct.Claimable(e.now())
	if err != nil {
		return err
	}
	if claimable.IsZero() {
		return ErrNothingClaimable
	}

	claimed, err := acct.ClaimedAmount.Add(claimable)
	if err != nil {
		return err
	}

	prev := *acct
	acct.ClaimedAmount = claimed
	err = e.saveVesting(ctx, acct, &prev, func(t *store.Totals) (err error) {
		t.TotalClaimed, err = t.TotalClaimed.Add(claimable)
		return err
	})
	if err != nil {
		return err
	}

	s.Amount = claimable
	return nil
}

func (h *claimHandler) Dispatch(ctx context.Context, s *settlement.Settlement, reply func(settlement.Outcome)) error {
	return h.e.dispatchTransfer(ctx, s, reply)
}

func (h *claimHandler) Finalize(context.Context, *settlement.Settlement, settlement.Outcome) error {
	return nil
}

// Compensate subtracts exactly the claimed amount from the account and the
// running total.
func (h *claimHandler) Compensate(ctx context.Context, s *settlement.Settlement) error {
	e := h.e

	acct, err := e.store.GetVestingAccount(ctx, s.Participant)
	if err != nil {
		return err
	}
	claimed, err := acct.ClaimedAmount.Sub(s.Amount)
	if err != nil {
		return err
	}

	prev := *acct
	acct.ClaimedAmount = claimed
	return e.saveVesting(ctx, acct, &prev, func(t *store.Totals) (err error) {
		t.TotalClaimed, err = t.TotalClaimed.Sub(s.Amount)
		return err
	})
}

type revokeHandler struct{ e *Engine }

func (h *revokeHandler) Kind() settlement.Kind { return settlement.KindRevoke }

func (h *revokeHandler) Apply(ctx context.Context, s *settlement.Settlement) error {
	e := h.e

	acct, err := e.store.GetVestingAccount(ctx, s.Participant)
	if err != nil {
		return notFound(err, "vesting account", s.Participant)
	}
	if !acct.IsRevocable {
		return ErrNotRevocable
	}
	if acct.IsRevoked {
		return ErrAlreadyRevoked
	}

	remaining, err := acct.Remaining()
	if err != nil {
		return err
	}

	prev := *acct
	acct.IsRevoked = true
	if err := e.saveVesting(ctx, acct, &prev, nil); err != nil {
		return err
	}

	s.Amount = remaining
	return nil
}

func (h *revokeHandler) Dispatch(ctx context.Context, s *settlement.Settlement, reply func(settlement.Outcome)) error {
	return h.e.dispatchTransfer(ctx, s, reply)
}

func (h *revokeHandler) Finalize(context.Context, *settlement.Settlement, settlement.Outcome) error {
	return nil
}

func (h *revokeHandler) Compensate(ctx context.Context, s *settlement.Settlement) error {
	e := h.e

	acct, err := e.store.GetVestingAccount(ctx, s.Participant)
	if err != nil {
		return err
	}

	prev := *acct
	acct.IsRevoked = false
	return e.saveVesting(ctx, acct, &prev, nil)
}
