package grant

import (
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// Re-export common types for convenience so users don't have to import the
// leaf packages for everyday calls.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Grant is one entry of a CreateAccounts batch.
type Grant = vesting.Grant

// Outcome is the reply of an external call, as passed to Resolve.
type Outcome = settlement.Outcome

// Re-export Amount constructors
var (
	NewAmount       = types.NewAmount
	ParseAmount     = types.ParseAmount
	MustParseAmount = types.MustParseAmount
	Sum             = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
