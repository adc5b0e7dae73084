// Package allocation models tier-gated sale participation: who registered,
// at which tier, and how much they have bought.
package allocation

import (
	"errors"

	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
)

// Purchase bound errors.
var (
	ErrBelowMinimumCap = errors.New("allocation: purchase below minimum cap")
	ErrAboveMaximumCap = errors.New("allocation: purchase above maximum cap")
)

// Account is one participant's sale record.
type Account struct {
	types.Entity
	Participant     string       `json:"participant"`
	PurchasedAmount types.Amount `json:"purchased_amount"`
	Tier            tier.Tier    `json:"tier"`
}

// NewAccount returns an empty, untiered account.
func NewAccount(participant string) *Account {
	return &Account{
		Entity:      types.NewEntity(),
		Participant: participant,
		Tier:        tier.Untiered,
	}
}

// Registered reports whether the account holds a qualifying tier.
func (a *Account) Registered() bool { return a.Tier.Qualifying() }

// TokenAmount converts a payment into sale tokens: payment * scale / price.
func TokenAmount(payment, scale, price types.Amount) (types.Amount, error) {
	scaled, err := payment.Mul(scale)
	if err != nil {
		return types.Amount{}, err
	}
	return scaled.Div(price)
}

// CheckPurchase returns the purchased total after adding tokens, provided it
// lies strictly between minCap and maxCap. A total equal to either cap is
// rejected.
func CheckPurchase(purchased, tokens, minCap, maxCap types.Amount) (types.Amount, error) {
	next, err := purchased.Add(tokens)
	if err != nil {
		return types.Amount{}, err
	}
	if !next.GreaterThan(minCap) {
		return types.Amount{}, ErrBelowMinimumCap
	}
	if !next.LessThan(maxCap) {
		return types.Amount{}, ErrAboveMaximumCap
	}
	return next, nil
}
