package allocation

import (
	"context"
	"errors"

	"github.com/xraph/grant/tier"
)

var (
	ErrNotFound      = errors.New("allocation: sale account not found")
	ErrAlreadyExists = errors.New("allocation: sale account already exists")
)

type Store interface {
	CreateSaleAccount(ctx context.Context, a *Account) error
	GetSaleAccount(ctx context.Context, participant string) (*Account, error)
	UpdateSaleAccount(ctx context.Context, a *Account) error
	ListSaleAccounts(ctx context.Context, opts ListOpts) ([]*Account, error)
}

// ListOpts filters ListSaleAccounts. A nil Tier lists every tier.
type ListOpts struct {
	Tier   *tier.Tier
	Limit  int
	Offset int
}
