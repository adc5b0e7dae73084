package grant

import (
	"context"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// Stats is a read-only projection of the global state.
type Stats struct {
	Owner             string       `json:"owner"`
	VestingToken      string       `json:"vesting_token"`
	PaymentToken      string       `json:"payment_token"`
	StakeToken        string       `json:"stake_token"`
	StakeOracle       string       `json:"stake_oracle"`
	RegisterStart     uint64       `json:"register_start"`
	RegisterEnd       uint64       `json:"register_end"`
	SaleStart         uint64       `json:"sale_start"`
	SaleEnd           uint64       `json:"sale_end"`
	TotalPool         types.Amount `json:"total_pool"`
	Price             types.Amount `json:"price"`
	Scale             types.Amount `json:"scale"`
	MinCapRate        uint64       `json:"min_cap_rate"`
	MinCapDenominator uint64       `json:"min_cap_denominator"`
	TotalClaimed      types.Amount `json:"total_claimed"`
	TotalPurchased    types.Amount `json:"total_purchased"`
}

// Stats returns the configuration and running totals.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	totals, err := e.store.GetTotals(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Owner:             e.cfg.Owner,
		VestingToken:      e.cfg.VestingToken,
		PaymentToken:      e.cfg.PaymentToken,
		StakeToken:        e.cfg.StakeToken,
		StakeOracle:       e.cfg.StakeOracle,
		RegisterStart:     e.cfg.RegisterStart,
		RegisterEnd:       e.cfg.RegisterEnd,
		SaleStart:         e.cfg.SaleStart,
		SaleEnd:           e.cfg.SaleEnd,
		TotalPool:         e.cfg.TotalPool,
		Price:             e.cfg.Price,
		Scale:             e.scale,
		MinCapRate:        e.cfg.MinCapRate,
		MinCapDenominator: e.cfg.MinCapDenominator,
		TotalClaimed:      totals.TotalClaimed,
		TotalPurchased:    totals.TotalPurchased,
	}, nil
}

// VestingAccount returns participant's vesting account.
func (e *Engine) VestingAccount(ctx context.Context, participant string) (*vesting.Account, error) {
	acct, err := e.store.GetVestingAccount(ctx, participant)
	if err != nil {
		return nil, notFound(err, "vesting account", participant)
	}
	return acct, nil
}

// VestingAccounts lists vesting accounts ordered by participant.
func (e *Engine) VestingAccounts(ctx context.Context, opts vesting.ListOpts) ([]*vesting.Account, error) {
	return e.store.ListVestingAccounts(ctx, opts)
}

// SaleAccount returns participant's sale account.
func (e *Engine) SaleAccount(ctx context.Context, participant string) (*allocation.Account, error) {
	acct, err := e.store.GetSaleAccount(ctx, participant)
	if err != nil {
		return nil, notFound(err, "sale account", participant)
	}
	return acct, nil
}

// SaleAccounts lists sale accounts ordered by participant.
func (e *Engine) SaleAccounts(ctx context.Context, opts allocation.ListOpts) ([]*allocation.Account, error) {
	return e.store.ListSaleAccounts(ctx, opts)
}

// TierAllocation returns the current maximum allocation for one participant
// of tr.
func (e *Engine) TierAllocation(ctx context.Context, tr tier.Tier) (types.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tiers, err := e.refreshTiers(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	return tiers.AllocationCap(tr, e.cfg.TotalPool)
}

// MinTierCap returns the current minimum holding for one participant of tr.
func (e *Engine) MinTierCap(ctx context.Context, tr tier.Tier) (types.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tiers, err := e.refreshTiers(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	return tiers.MinAllocationCap(tr, e.cfg.TotalPool, e.cfg.MinCapRate, e.cfg.MinCapDenominator)
}

// TierConfigs returns the tier table, Untiered first. If the store cannot be
// read, the last loaded table is returned.
func (e *Engine) TierConfigs(ctx context.Context) []tier.Config {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.refreshTiers(ctx); err != nil {
		e.logger.Warn("serving cached tier table", "error", err)
	}
	return e.tiers.Configs()
}

// Settlement returns a settlement record.
func (e *Engine) Settlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	s, err := e.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, notFound(err, "settlement", settlementID.String())
	}
	return s, nil
}

// Settlements lists settlement records in creation order.
func (e *Engine) Settlements(ctx context.Context, opts settlement.ListOpts) ([]*settlement.Settlement, error) {
	return e.store.ListSettlements(ctx, opts)
}

// IsPending reports whether participant has a settlement awaiting its reply.
func (e *Engine) IsPending(ctx context.Context, participant string) (bool, error) {
	return e.coord.IsPending(ctx, participant)
}
