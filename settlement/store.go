package settlement

import (
	"context"

	"github.com/xraph/grant/id"
)

// Store persists settlement records.
type Store interface {
	CreateSettlement(ctx context.Context, s *Settlement) error
	GetSettlement(ctx context.Context, settlementID id.SettlementID) (*Settlement, error)
	// UpdateSettlement writes s only if the stored status is still expected,
	// returning ErrStatusConflict otherwise.
	UpdateSettlement(ctx context.Context, s *Settlement, expected Status) error
	ListSettlements(ctx context.Context, opts ListOpts) ([]*Settlement, error)
}
