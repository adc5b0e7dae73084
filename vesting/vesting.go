// Package vesting models time-based token entitlements: a fixed total that
// unlocks in equal releases after an optional cliff.
package vesting

import (
	"errors"
	"math/bits"

	"github.com/xraph/grant/types"
)

// ErrInvalidSchedule is returned for a grant with neither a cliff nor any
// releases.
var ErrInvalidSchedule = errors.New("vesting: schedule needs a cliff or at least one release")

// Account is one participant's vesting record.
type Account struct {
	types.Entity
	Participant     string       `json:"participant"`
	TotalAmount     types.Amount `json:"total_amount"`
	ClaimedAmount   types.Amount `json:"claimed_amount"`
	StartTimestamp  uint64       `json:"start_timestamp"`
	FinishTimestamp uint64       `json:"finish_timestamp"`
	Duration        uint64       `json:"duration"`
	ReleasesCount   uint64       `json:"releases_count"`
	IsRevoked       bool         `json:"is_revoked"`
	IsRevocable     bool         `json:"is_revocable"`
}

// Grant is one entry of a batch account creation. Start and Cliff are unix
// seconds and a delay in seconds; Duration is the length of one release.
type Grant struct {
	Participant   string       `json:"participant"`
	TotalAmount   types.Amount `json:"total_amount"`
	Start         uint64       `json:"start"`
	Cliff         uint64       `json:"cliff"`
	Duration      uint64       `json:"duration"`
	ReleasesCount uint64       `json:"releases_count"`
	IsRevocable   bool         `json:"is_revocable"`
}

// Validate checks the schedule shape.
func (g Grant) Validate() error {
	if g.Cliff == 0 && g.ReleasesCount == 0 {
		return ErrInvalidSchedule
	}
	return nil
}

// Schedule returns the start (cliff included) and finish timestamps.
func (g Grant) Schedule() (start, finish uint64, err error) {
	start, carry := bits.Add64(g.Start, g.Cliff, 0)
	if carry != 0 {
		return 0, 0, types.ErrOverflow
	}
	hi, span := bits.Mul64(g.ReleasesCount, g.Duration)
	if hi != 0 {
		return 0, 0, types.ErrOverflow
	}
	finish, carry = bits.Add64(start, span, 0)
	if carry != 0 {
		return 0, 0, types.ErrOverflow
	}
	return start, finish, nil
}

// NewAccount builds the account for a validated grant.
func NewAccount(g Grant) (*Account, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	start, finish, err := g.Schedule()
	if err != nil {
		return nil, err
	}
	return &Account{
		Entity:          types.NewEntity(),
		Participant:     g.Participant,
		TotalAmount:     g.TotalAmount,
		StartTimestamp:  start,
		FinishTimestamp: finish,
		Duration:        g.Duration,
		ReleasesCount:   g.ReleasesCount,
		IsRevocable:     g.IsRevocable,
	}, nil
}

// VestedAmount returns how much of the total has unlocked at now.
//
// Before the start nothing is vested, revoked or not. At or after the
// finish, or once the account is revoked, the whole total is vested. In between, only completed
// releases count, each worth floor(total / releases); the truncated dust is
// released at the finish.
func (a *Account) VestedAmount(now uint64) (types.Amount, error) {
	if now < a.StartTimestamp {
		return types.Amount{}, nil
	}
	if a.IsRevoked || now >= a.FinishTimestamp {
		return a.TotalAmount, nil
	}

	// StartTimestamp <= now < FinishTimestamp implies Duration and
	// ReleasesCount are both non-zero.
	elapsed := (now - a.StartTimestamp) / a.Duration
	perRelease, err := a.TotalAmount.DivUint64(a.ReleasesCount)
	if err != nil {
		return types.Amount{}, err
	}
	return perRelease.MulUint64(elapsed)
}

// Claimable returns the vested amount not yet claimed.
func (a *Account) Claimable(now uint64) (types.Amount, error) {
	vested, err := a.VestedAmount(now)
	if err != nil {
		return types.Amount{}, err
	}
	if vested.LessThan(a.ClaimedAmount) {
		return types.Amount{}, nil
	}
	return vested.Sub(a.ClaimedAmount)
}

// Remaining returns TotalAmount - ClaimedAmount.
func (a *Account) Remaining() (types.Amount, error) {
	return a.TotalAmount.Sub(a.ClaimedAmount)
}
