package tier

import (
	"context"
	"errors"
)

// ErrCountConflict is returned when a participant count changed between read
// and write.
var ErrCountConflict = errors.New("tier: participant count changed concurrently")

// Store persists the tier table, one row per tier.
type Store interface {
	SaveTiers(ctx context.Context, configs []Config) error
	ListTiers(ctx context.Context) ([]Config, error)
	// UpdateParticipantCount sets tr's participant count to next only while
	// the stored count is still expected, returning ErrCountConflict
	// otherwise.
	UpdateParticipantCount(ctx context.Context, tr Tier, expected, next uint32) error
}
