package grant

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/external"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/store"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
)

// OpenSaleAccount creates an empty, untiered sale account for participant.
// It reports whether the account was created; an existing account is left
// untouched.
func (e *Engine) OpenSaleAccount(ctx context.Context, participant string) (bool, error) {
	if participant == "" {
		return false, ValidationError{Field: "participant", Message: "is required"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning(); err != nil {
		return false, err
	}

	err := e.store.CreateSaleAccount(ctx, allocation.NewAccount(participant))
	if errors.Is(err, allocation.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("grant: open sale account %s: %w", participant, err)
	}

	e.logger.Debug("sale account opened", "participant", participant)
	e.plugins.EmitSaleAccountOpened(ctx, participant)

	return true, nil
}

// HasSaleAccount reports whether participant has opened a sale account.
func (e *Engine) HasSaleAccount(ctx context.Context, participant string) (bool, error) {
	_, err := e.store.GetSaleAccount(ctx, participant)
	if errors.Is(err, allocation.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Register asks the stake oracle for the caller's stake. The tier is assigned
// when the oracle replies; until then the caller is pending and a second
// Register fails with ErrOperationInProgress.
func (e *Engine) Register(ctx context.Context) (*settlement.Settlement, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if now := e.now(); now <= e.cfg.RegisterStart || now >= e.cfg.RegisterEnd {
		return nil, ErrRegistrationClosed
	}

	return e.begin(ctx, &settlement.Settlement{
		Participant: caller,
		Kind:        settlement.KindRegister,
	})
}

// Purchase records a sale purchase paid with payment and returns the number
// of tokens bought. Only the payment token may call it. The resulting total
// must lie strictly between the tier's minimum and maximum caps.
func (e *Engine) Purchase(ctx context.Context, participant string, payment types.Amount) (types.Amount, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	if caller != e.cfg.PaymentToken {
		return types.Amount{}, ErrWrongPaymentToken
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning(); err != nil {
		return types.Amount{}, err
	}
	if now := e.now(); now <= e.cfg.SaleStart || now >= e.cfg.SaleEnd {
		return types.Amount{}, ErrSaleClosed
	}

	// The participant lock covers the account read-modify-write below.
	holder := id.NewSettlementID()
	if err := e.locker.Acquire(ctx, participant, holder); err != nil {
		return types.Amount{}, err
	}
	defer func() {
		if err := e.locker.Release(ctx, participant, holder); err != nil {
			e.logger.Error("failed to release participant lock", "participant", participant, "error", err)
		}
	}()

	acct, err := e.store.GetSaleAccount(ctx, participant)
	if errors.Is(err, allocation.ErrNotFound) {
		return types.Amount{}, ErrNotRegistered
	}
	if err != nil {
		return types.Amount{}, err
	}
	if !acct.Registered() {
		return types.Amount{}, ErrNotRegistered
	}

	tokens, err := allocation.TokenAmount(payment, e.scale, e.cfg.Price)
	if err != nil {
		return types.Amount{}, err
	}
	tiers, err := e.refreshTiers(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	maxCap, err := tiers.AllocationCap(acct.Tier, e.cfg.TotalPool)
	if err != nil {
		return types.Amount{}, err
	}
	minCap, err := tiers.MinAllocationCap(acct.Tier, e.cfg.TotalPool, e.cfg.MinCapRate, e.cfg.MinCapDenominator)
	if err != nil {
		return types.Amount{}, err
	}
	purchased, err := allocation.CheckPurchase(acct.PurchasedAmount, tokens, minCap, maxCap)
	if err != nil {
		return types.Amount{}, err
	}

	prev := *acct
	acct.PurchasedAmount = purchased
	acct.Touch()
	if err := e.store.UpdateSaleAccount(ctx, acct); err != nil {
		return types.Amount{}, fmt.Errorf("grant: update sale account %s: %w", participant, err)
	}
	err = e.updateTotals(ctx, func(t *store.Totals) (err error) {
		t.TotalPurchased, err = t.TotalPurchased.Add(tokens)
		return err
	})
	if err != nil {
		if rerr := e.store.UpdateSaleAccount(ctx, &prev); rerr != nil {
			return types.Amount{}, errors.Join(err, rerr)
		}
		return types.Amount{}, err
	}

	e.logger.Info("purchase recorded",
		"participant", participant,
		"tier", acct.Tier,
		"payment", payment.String(),
		"tokens", tokens.String(),
	)
	e.plugins.EmitPurchase(ctx, acct, payment, tokens)

	return tokens, nil
}

type registerHandler struct{ e *Engine }

func (h *registerHandler) Kind() settlement.Kind { return settlement.KindRegister }

// Apply checks the participant can still register. Registration changes
// nothing until the stake arrives.
func (h *registerHandler) Apply(ctx context.Context, s *settlement.Settlement) error {
	acct, err := h.e.store.GetSaleAccount(ctx, s.Participant)
	if err != nil {
		return notFound(err, "sale account", s.Participant)
	}
	if acct.Registered() {
		return ErrAlreadyRegistered
	}
	return nil
}

func (h *registerHandler) Dispatch(ctx context.Context, s *settlement.Settlement, reply func(settlement.Outcome)) error {
	corr := s.Correlation()
	req := external.StakeRequest{
		Correlation: corr.Key(),
		Oracle:      h.e.cfg.StakeOracle,
		Participant: s.Participant,
	}
	return h.e.oracle.GetStake(ctx, req, func(r external.StakeResult) {
		reply(settlement.Outcome{Correlation: corr, Err: r.Err, Stake: r.View})
	})
}

// Finalize assigns the tier matching the reported stake.
func (h *registerHandler) Finalize(ctx context.Context, s *settlement.Settlement, o settlement.Outcome) error {
	e := h.e

	if len(o.Stake.Supplied) == 0 {
		return fmt.Errorf("%w: no supplied assets", ErrWrongToken)
	}
	asset := o.Stake.Supplied[0]
	if asset.TokenID != e.cfg.StakeToken {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongToken, asset.TokenID, e.cfg.StakeToken)
	}

	tr := e.tiers.TierFor(asset.Balance)
	if tr == tier.Untiered {
		return ErrInsufficientStake
	}

	acct, err := e.store.GetSaleAccount(ctx, s.Participant)
	if err != nil {
		return notFound(err, "sale account", s.Participant)
	}
	if acct.Registered() {
		return ErrAlreadyRegistered
	}

	if err := e.adjustTierCount(ctx, tr, 1); err != nil {
		return err
	}

	acct.Tier = tr
	acct.Touch()
	if err := e.store.UpdateSaleAccount(ctx, acct); err != nil {
		err = fmt.Errorf("grant: update sale account %s: %w", s.Participant, err)
		if rerr := e.adjustTierCount(ctx, tr, -1); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	s.Tier = tr
	s.Amount = asset.Balance
	return nil
}

// Compensate is a no-op: nothing was changed before the stake arrived.
func (h *registerHandler) Compensate(context.Context, *settlement.Settlement) error {
	return nil
}
