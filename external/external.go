// Package external declares the collaborators the engine settles against:
// a token Transfer Service and a Stake Oracle. Both are asynchronous. A call
// that returns nil has been accepted and must invoke its reply exactly once,
// from any goroutine, at any later time.
package external

import (
	"context"

	"github.com/xraph/grant/types"
)

// TransferRequest asks the Transfer Service to move Amount of Token to
// Recipient. Correlation must be echoed back in the result.
type TransferRequest struct {
	Correlation string       `json:"correlation"`
	Token       string       `json:"token"`
	Recipient   string       `json:"recipient"`
	Amount      types.Amount `json:"amount"`
}

// TransferResult is the single resolution of a TransferRequest. A nil Err
// means the tokens moved.
type TransferResult struct {
	Correlation string `json:"correlation"`
	Reference   string `json:"reference,omitempty"`
	Err         error  `json:"-"`
}

// TransferReply receives a TransferResult.
type TransferReply func(TransferResult)

// TransferService moves tokens out of the engine's treasury.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest, reply TransferReply) error
}

// TransferFunc adapts a function to TransferService.
type TransferFunc func(ctx context.Context, req TransferRequest, reply TransferReply) error

// Transfer calls f.
func (f TransferFunc) Transfer(ctx context.Context, req TransferRequest, reply TransferReply) error {
	return f(ctx, req, reply)
}

// StakeRequest asks the Stake Oracle for Participant's supplied assets.
type StakeRequest struct {
	Correlation string `json:"correlation"`
	Oracle      string `json:"oracle"`
	Participant string `json:"participant"`
}

// Asset is one supplied balance.
type Asset struct {
	TokenID string       `json:"token_id"`
	Balance types.Amount `json:"balance"`
}

// StakeView is the oracle's answer. Only the first supplied asset is
// considered during registration.
type StakeView struct {
	Supplied []Asset `json:"supplied"`
}

// StakeResult is the single resolution of a StakeRequest.
type StakeResult struct {
	Correlation string    `json:"correlation"`
	View        StakeView `json:"view"`
	Err         error     `json:"-"`
}

// StakeReply receives a StakeResult.
type StakeReply func(StakeResult)

// StakeOracle reports a participant's staked position.
type StakeOracle interface {
	GetStake(ctx context.Context, req StakeRequest, reply StakeReply) error
}

// StakeFunc adapts a function to StakeOracle.
type StakeFunc func(ctx context.Context, req StakeRequest, reply StakeReply) error

// GetStake calls f.
func (f StakeFunc) GetStake(ctx context.Context, req StakeRequest, reply StakeReply) error {
	return f(ctx, req, reply)
}
