package sqlite

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/store"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// Amounts are stored as decimal text: they can exceed BIGINT and are never
// summed in SQL.

// ==================== Vesting account models ====================

type vestingAccountModel struct {
	grove.BaseModel `grove:"table:grant_vesting_accounts"`

	Participant     string    `grove:"participant,pk"`
	TotalAmount     string    `grove:"total_amount"`
	ClaimedAmount   string    `grove:"claimed_amount"`
	StartTimestamp  int64     `grove:"start_timestamp"`
	FinishTimestamp int64     `grove:"finish_timestamp"`
	Duration        int64     `grove:"duration"`
	ReleasesCount   int64     `grove:"releases_count"`
	IsRevoked       bool      `grove:"is_revoked"`
	IsRevocable     bool      `grove:"is_revocable"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toVestingAccountModel(a *vesting.Account) *vestingAccountModel {
	return &vestingAccountModel{
		Participant:     a.Participant,
		TotalAmount:     a.TotalAmount.String(),
		ClaimedAmount:   a.ClaimedAmount.String(),
		StartTimestamp:  int64(a.StartTimestamp),
		FinishTimestamp: int64(a.FinishTimestamp),
		Duration:        int64(a.Duration),
		ReleasesCount:   int64(a.ReleasesCount),
		IsRevoked:       a.IsRevoked,
		IsRevocable:     a.IsRevocable,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func fromVestingAccountModel(m *vestingAccountModel) (*vesting.Account, error) {
	total, err := types.ParseAmount(m.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("total_amount: %w", err)
	}
	claimed, err := types.ParseAmount(m.ClaimedAmount)
	if err != nil {
		return nil, fmt.Errorf("claimed_amount: %w", err)
	}

	return &vesting.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Participant:     m.Participant,
		TotalAmount:     total,
		ClaimedAmount:   claimed,
		StartTimestamp:  uint64(m.StartTimestamp),
		FinishTimestamp: uint64(m.FinishTimestamp),
		Duration:        uint64(m.Duration),
		ReleasesCount:   uint64(m.ReleasesCount),
		IsRevoked:       m.IsRevoked,
		IsRevocable:     m.IsRevocable,
	}, nil
}

// ==================== Sale account models ====================

type saleAccountModel struct {
	grove.BaseModel `grove:"table:grant_sale_accounts"`

	Participant     string    `grove:"participant,pk"`
	PurchasedAmount string    `grove:"purchased_amount"`
	Tier            int       `grove:"tier"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toSaleAccountModel(a *allocation.Account) *saleAccountModel {
	return &saleAccountModel{
		Participant:     a.Participant,
		PurchasedAmount: a.PurchasedAmount.String(),
		Tier:            int(a.Tier),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func fromSaleAccountModel(m *saleAccountModel) (*allocation.Account, error) {
	purchased, err := types.ParseAmount(m.PurchasedAmount)
	if err != nil {
		return nil, fmt.Errorf("purchased_amount: %w", err)
	}

	return &allocation.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Participant:     m.Participant,
		PurchasedAmount: purchased,
		Tier:            tier.Tier(m.Tier),
	}, nil
}

// ==================== Tier models ====================

type tierModel struct {
	grove.BaseModel `grove:"table:grant_tiers"`

	Tier             int       `grove:"tier,pk"`
	MinStake         string    `grove:"min_stake"`
	PoolWeight       int64     `grove:"pool_weight"`
	ParticipantCount int64     `grove:"participant_count"`
	UpdatedAt        time.Time `grove:"updated_at"`
}

func toTierModel(c tier.Config) tierModel {
	return tierModel{
		Tier:             int(c.Tier),
		MinStake:         c.MinStake.String(),
		PoolWeight:       int64(c.PoolWeight),
		ParticipantCount: int64(c.ParticipantCount),
		UpdatedAt:        now(),
	}
}

func fromTierModel(m *tierModel) (tier.Config, error) {
	minStake, err := types.ParseAmount(m.MinStake)
	if err != nil {
		return tier.Config{}, fmt.Errorf("min_stake: %w", err)
	}
	return tier.Config{
		Tier:             tier.Tier(m.Tier),
		MinStake:         minStake,
		PoolWeight:       uint32(m.PoolWeight),
		ParticipantCount: uint32(m.ParticipantCount),
	}, nil
}

// ==================== Settlement models ====================

type settlementModel struct {
	grove.BaseModel `grove:"table:grant_settlements"`

	ID          string     `grove:"id,pk"`
	Participant string     `grove:"participant"`
	Kind        string     `grove:"kind"`
	Status      string     `grove:"status"`
	Amount      string     `grove:"amount"`
	Recipient   string     `grove:"recipient"`
	Tier        int        `grove:"tier"`
	Reference   string     `grove:"reference"`
	Failure     string     `grove:"failure"`
	Resolution  string     `grove:"resolution"`
	ResolvedAt  *time.Time `grove:"resolved_at"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
}

func toSettlementModel(s *settlement.Settlement) *settlementModel {
	return &settlementModel{
		ID:          s.ID.String(),
		Participant: s.Participant,
		Kind:        string(s.Kind),
		Status:      string(s.Status),
		Amount:      s.Amount.String(),
		Recipient:   s.Recipient,
		Tier:        int(s.Tier),
		Reference:   s.Reference,
		Failure:     s.Failure,
		Resolution:  string(s.Resolution),
		ResolvedAt:  s.ResolvedAt,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func fromSettlementModel(m *settlementModel) (*settlement.Settlement, error) {
	settlementID, err := id.ParseSettlementID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	return &settlement.Settlement{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          settlementID,
		Participant: m.Participant,
		Kind:        settlement.Kind(m.Kind),
		Status:      settlement.Status(m.Status),
		Amount:      amount,
		Recipient:   m.Recipient,
		Tier:        tier.Tier(m.Tier),
		Reference:   m.Reference,
		Failure:     m.Failure,
		Resolution:  settlement.Status(m.Resolution),
		ResolvedAt:  m.ResolvedAt,
	}, nil
}

// ==================== Totals models ====================

// totalsID is the key of the single totals row.
const totalsID = 1

type totalsModel struct {
	grove.BaseModel `grove:"table:grant_totals"`

	ID             int       `grove:"id,pk"`
	TotalClaimed   string    `grove:"total_claimed"`
	TotalPurchased string    `grove:"total_purchased"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toTotalsModel(t *store.Totals) *totalsModel {
	return &totalsModel{
		ID:             totalsID,
		TotalClaimed:   t.TotalClaimed.String(),
		TotalPurchased: t.TotalPurchased.String(),
		UpdatedAt:      now(),
	}
}

func fromTotalsModel(m *totalsModel) (*store.Totals, error) {
	claimed, err := types.ParseAmount(m.TotalClaimed)
	if err != nil {
		return nil, fmt.Errorf("total_claimed: %w", err)
	}
	purchased, err := types.ParseAmount(m.TotalPurchased)
	if err != nil {
		return nil, fmt.Errorf("total_purchased: %w", err)
	}
	return &store.Totals{
		TotalClaimed:   claimed,
		TotalPurchased: purchased,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}
