package vesting

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("vesting: account not found")
	ErrAlreadyExists = errors.New("vesting: account already exists")
)

type Store interface {
	CreateVestingAccount(ctx context.Context, a *Account) error
	GetVestingAccount(ctx context.Context, participant string) (*Account, error)
	UpdateVestingAccount(ctx context.Context, a *Account) error
	ListVestingAccounts(ctx context.Context, opts ListOpts) ([]*Account, error)
}

type ListOpts struct {
	Revoked *bool
	Limit   int
	Offset  int
}
