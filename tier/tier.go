// Package tier defines stake-based participant tiers and the registry that
// turns a stake into a tier and a tier into a pro-rata allocation cap.
package tier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tier is a participant's stake level. Untiered is the default for every
// sale account and never qualifies for an allocation.
type Tier uint8

// Tier constants.
const (
	Untiered Tier = iota
	Tier1
	Tier2
	Tier3
	Tier4
	Tier5
	Tier6
	Tier7
)

// MaxTier is the highest tier.
const MaxTier = Tier7

// Count is the number of tier values including Untiered.
const Count = int(MaxTier) + 1

// Errors returned by the tier registry.
var (
	ErrNoParticipants = errors.New("tier: no registered participants")
	ErrUnknownTier    = errors.New("tier: unknown tier")
	ErrInvalidTable   = errors.New("tier: invalid tier table")
)

// Valid reports whether t is a defined tier value.
func (t Tier) Valid() bool { return t <= MaxTier }

// Qualifying reports whether t is a tier that can hold an allocation.
func (t Tier) Qualifying() bool { return t > Untiered && t <= MaxTier }

func (t Tier) String() string {
	if t == Untiered {
		return "untiered"
	}
	return "tier" + strconv.Itoa(int(t))
}

// ParseTier parses "untiered", "tier0" .. "tier7".
func ParseTier(s string) (Tier, error) {
	if s == "untiered" {
		return Untiered, nil
	}
	n, ok := strings.CutPrefix(s, "tier")
	if !ok {
		return Untiered, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	v, err := strconv.ParseUint(n, 10, 8)
	if err != nil || Tier(v) > MaxTier {
		return Untiered, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return Tier(v), nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(data []byte) error {
	parsed, err := ParseTier(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
