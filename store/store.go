package store

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// ErrTotalsConflict is returned by UpdateTotals when the stored totals no
// longer match the expected values.
var ErrTotalsConflict = errors.New("store: totals changed concurrently")

// Totals is the singleton row of running sums.
type Totals struct {
	TotalClaimed   types.Amount `json:"total_claimed"`
	TotalPurchased types.Amount `json:"total_purchased"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Store is the unified storage interface for all grant records.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Vesting account methods
	CreateVestingAccount(ctx context.Context, a *vesting.Account) error
	GetVestingAccount(ctx context.Context, participant string) (*vesting.Account, error)
	UpdateVestingAccount(ctx context.Context, a *vesting.Account) error
	ListVestingAccounts(ctx context.Context, opts vesting.ListOpts) ([]*vesting.Account, error)

	// Sale account methods
	CreateSaleAccount(ctx context.Context, a *allocation.Account) error
	GetSaleAccount(ctx context.Context, participant string) (*allocation.Account, error)
	UpdateSaleAccount(ctx context.Context, a *allocation.Account) error
	ListSaleAccounts(ctx context.Context, opts allocation.ListOpts) ([]*allocation.Account, error)

	// Tier methods
	SaveTiers(ctx context.Context, configs []tier.Config) error
	ListTiers(ctx context.Context) ([]tier.Config, error)
	UpdateParticipantCount(ctx context.Context, tr tier.Tier, expected, next uint32) error

	// Settlement methods
	CreateSettlement(ctx context.Context, s *settlement.Settlement) error
	GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error)
	UpdateSettlement(ctx context.Context, s *settlement.Settlement, expected settlement.Status) error
	ListSettlements(ctx context.Context, opts settlement.ListOpts) ([]*settlement.Settlement, error)

	// Totals methods. GetTotals returns zero totals before the first write.
	// UpdateTotals writes next only while the stored sums still equal prev,
	// returning ErrTotalsConflict otherwise.
	GetTotals(ctx context.Context) (*Totals, error)
	UpdateTotals(ctx context.Context, prev, next *Totals) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ vesting.Store    = (Store)(nil)
	_ allocation.Store = (Store)(nil)
	_ tier.Store       = (Store)(nil)
	_ settlement.Store = (Store)(nil)
)
