// Package settlement coordinates sagas that optimistically change local state,
// call an asynchronous external service, and then either keep the change or
// undo it exactly.
package settlement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grant/external"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
)

// Errors returned by the coordinator and its stores.
var (
	ErrOperationInProgress = errors.New("settlement: operation in progress")
	ErrDuplicateResolution = errors.New("settlement: duplicate resolution")
	ErrNotPending          = errors.New("settlement: participant is not pending")
	ErrNotFound            = errors.New("settlement: not found")
	ErrStatusConflict      = errors.New("settlement: status changed concurrently")
	ErrDispatchFailed      = errors.New("settlement: external call not accepted")
	ErrNoHandler           = errors.New("settlement: no handler for kind")
	ErrInvalidCorrelation  = errors.New("settlement: invalid correlation")
)

// Kind names the operation being settled.
type Kind string

const (
	KindClaim    Kind = "claim"
	KindRevoke   Kind = "revoke"
	KindRegister Kind = "register"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusResolving   Status = "resolving"
	StatusSucceeded   Status = "succeeded"
	StatusCompensated Status = "compensated"
	StatusRejected    Status = "rejected"
	StatusAbandoned   Status = "abandoned"
)

// Terminal reports whether no further resolution is accepted.
//
// A resolving record has claimed its outcome; only the write of the status
// held in Resolution remains.
func (s Status) Terminal() bool { return s != StatusPending && s != StatusResolving }

// Settlement is the persisted record of one saga. Amount and Kind carry
// everything needed to invert the optimistic change.
type Settlement struct {
	types.Entity
	ID          id.SettlementID `json:"id"`
	Participant string          `json:"participant"`
	Kind        Kind            `json:"kind"`
	Status      Status          `json:"status"`
	Amount      types.Amount    `json:"amount"`
	Recipient   string          `json:"recipient,omitempty"`
	Tier        tier.Tier       `json:"tier"`
	Reference   string          `json:"reference,omitempty"`
	Failure     string          `json:"failure,omitempty"`
	Resolution  Status          `json:"resolution,omitempty"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// Correlation returns the id that links the external call to this record.
func (s *Settlement) Correlation() Correlation {
	return Correlation{Participant: s.Participant, Kind: s.Kind, Settlement: s.ID}
}

// Correlation identifies the single resolution owed to a settlement.
type Correlation struct {
	Participant string
	Kind        Kind
	Settlement  id.SettlementID
}

// Key encodes the correlation as "kind:settlement:participant".
func (c Correlation) Key() string {
	return string(c.Kind) + ":" + c.Settlement.String() + ":" + c.Participant
}

func (c Correlation) String() string { return c.Key() }

// ParseCorrelation decodes a Key. The participant may itself contain colons.
func ParseCorrelation(key string) (Correlation, error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return Correlation{}, fmt.Errorf("%w: %q", ErrInvalidCorrelation, key)
	}
	sid, err := id.ParseSettlementID(parts[1])
	if err != nil {
		return Correlation{}, fmt.Errorf("%w: %q: %v", ErrInvalidCorrelation, key, err)
	}
	return Correlation{Participant: parts[2], Kind: Kind(parts[0]), Settlement: sid}, nil
}

// Outcome is the reply of an external call. A nil Err is success.
type Outcome struct {
	Correlation Correlation
	Err         error
	Reference   string
	Stake       external.StakeView
}

// ListOpts filters ListSettlements.
type ListOpts struct {
	Participant string
	Kind        Kind
	Status      Status
	Limit       int
	Offset      int
}
