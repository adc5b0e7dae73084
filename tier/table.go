package tier

import (
	"fmt"
	"math"

	"github.com/xraph/grant/types"
)

// Config is the registry entry for one tier.
type Config struct {
	Tier             Tier         `json:"tier"`
	MinStake         types.Amount `json:"min_stake"`
	PoolWeight       uint32       `json:"pool_weight"`
	ParticipantCount uint32       `json:"participant_count"`
}

// Table is the tier registry. It is not safe for concurrent use; the engine
// serializes every read and write behind its own mutex.
type Table struct {
	configs [Count]Config
}

// NewTable builds a table from the qualifying tier configs. Tiers missing
// from configs are left with a zero weight and an unreachable min stake.
// Untiered is always min stake 0 and weight 0.
func NewTable(configs []Config) (*Table, error) {
	t := &Table{}
	for i := range t.configs {
		t.configs[i] = Config{Tier: Tier(i)}
		if i > 0 {
			t.configs[i].MinStake = types.MaxAmount
		}
	}

	seen := make(map[Tier]bool, len(configs))
	for _, c := range configs {
		if !c.Tier.Qualifying() {
			if c.Tier == Untiered && c.MinStake.IsZero() && c.PoolWeight == 0 {
				t.configs[Untiered].ParticipantCount = c.ParticipantCount
				continue
			}
			return nil, fmt.Errorf("%w: %s cannot be configured", ErrInvalidTable, c.Tier)
		}
		if seen[c.Tier] {
			return nil, fmt.Errorf("%w: duplicate %s", ErrInvalidTable, c.Tier)
		}
		seen[c.Tier] = true
		t.configs[c.Tier] = c
	}

	for i := 1; i < Count; i++ {
		if !seen[Tier(i)] {
			continue
		}
		prev := t.configs[i-1].MinStake
		if i > 1 && !seen[Tier(i-1)] {
			return nil, fmt.Errorf("%w: %s configured without %s", ErrInvalidTable, Tier(i), Tier(i-1))
		}
		if !t.configs[i].MinStake.GreaterThan(prev) {
			return nil, fmt.Errorf("%w: %s min stake must exceed %s", ErrInvalidTable, Tier(i), Tier(i-1))
		}
	}

	return t, nil
}

// DefaultConfigs returns the stock seven-tier ladder for an 18-decimal stake
// token.
func DefaultConfigs() []Config {
	whole := func(n uint64) types.Amount {
		unit := types.MustParseAmount("1000000000000000000")
		a, err := unit.MulUint64(n)
		if err != nil {
			panic(err)
		}
		return a
	}

	return []Config{
		{Tier: Tier1, MinStake: whole(2_000), PoolWeight: 1},
		{Tier: Tier2, MinStake: whole(4_000), PoolWeight: 2},
		{Tier: Tier3, MinStake: whole(10_000), PoolWeight: 5},
		{Tier: Tier4, MinStake: whole(17_500), PoolWeight: 9},
		{Tier: Tier5, MinStake: whole(35_000), PoolWeight: 16},
		{Tier: Tier6, MinStake: whole(90_000), PoolWeight: 32},
		{Tier: Tier7, MinStake: whole(175_000), PoolWeight: 52},
	}
}

// DefaultTable returns a table built from DefaultConfigs.
func DefaultTable() *Table {
	t, err := NewTable(DefaultConfigs())
	if err != nil {
		panic(err)
	}
	return t
}

// Config returns the entry for a tier.
func (t *Table) Config(tr Tier) (Config, error) {
	if !tr.Valid() {
		return Config{}, fmt.Errorf("%w: %d", ErrUnknownTier, tr)
	}
	return t.configs[tr], nil
}

// Configs returns a copy of Untiered and every configured tier, in order.
// The result can be passed back to NewTable.
func (t *Table) Configs() []Config {
	out := make([]Config, 0, Count)
	for i, c := range t.configs {
		if i == 0 || t.configured(Tier(i)) {
			out = append(out, c)
		}
	}
	return out
}

func (t *Table) configured(tr Tier) bool {
	c := t.configs[tr]
	return c.PoolWeight != 0 || !c.MinStake.Equal(types.MaxAmount)
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	c := *t
	return &c
}

// TierFor returns the highest tier whose min stake is at most stake, or
// Untiered if none qualifies.
func (t *Table) TierFor(stake types.Amount) Tier {
	for i := Count - 1; i > 0; i-- {
		if !t.configured(Tier(i)) {
			continue
		}
		if !stake.LessThan(t.configs[i].MinStake) {
			return Tier(i)
		}
	}
	return Untiered
}

// TotalWeight returns the sum of participant count times pool weight over
// every tier.
func (t *Table) TotalWeight() (types.Amount, error) {
	var total types.Amount
	for _, c := range t.configs {
		w, err := types.NewAmount(uint64(c.ParticipantCount)).MulUint64(uint64(c.PoolWeight))
		if err != nil {
			return types.Amount{}, err
		}
		if total, err = total.Add(w); err != nil {
			return types.Amount{}, err
		}
	}
	return total, nil
}

// AllocationCap returns the maximum purchasable amount for one participant in
// tr: floor(totalPool / totalWeight) * weight(tr). The pool is divided before
// the multiplication, so the caps never sum past totalPool.
func (t *Table) AllocationCap(tr Tier, totalPool types.Amount) (types.Amount, error) {
	c, err := t.Config(tr)
	if err != nil {
		return types.Amount{}, err
	}

	totalWeight, err := t.TotalWeight()
	if err != nil {
		return types.Amount{}, err
	}
	if totalWeight.IsZero() {
		return types.Amount{}, ErrNoParticipants
	}

	perWeight, err := totalPool.Div(totalWeight)
	if err != nil {
		return types.Amount{}, err
	}
	return perWeight.MulUint64(uint64(c.PoolWeight))
}

// MinAllocationCap returns AllocationCap(tr) * num / den.
func (t *Table) MinAllocationCap(tr Tier, totalPool types.Amount, num, den uint64) (types.Amount, error) {
	maxCap, err := t.AllocationCap(tr, totalPool)
	if err != nil {
		return types.Amount{}, err
	}
	scaled, err := maxCap.MulUint64(num)
	if err != nil {
		return types.Amount{}, err
	}
	return scaled.DivUint64(den)
}

// RecordParticipant counts one more registered participant in tr.
func (t *Table) RecordParticipant(tr Tier) error {
	if !tr.Qualifying() {
		return fmt.Errorf("%w: %s cannot hold participants", ErrUnknownTier, tr)
	}
	if t.configs[tr].ParticipantCount == math.MaxUint32 {
		return types.ErrOverflow
	}
	t.configs[tr].ParticipantCount++
	return nil
}

// RemoveParticipant undoes one RecordParticipant for tr.
func (t *Table) RemoveParticipant(tr Tier) error {
	if !tr.Qualifying() {
		return fmt.Errorf("%w: %s cannot hold participants", ErrUnknownTier, tr)
	}
	if t.configs[tr].ParticipantCount == 0 {
		return types.ErrUnderflow
	}
	t.configs[tr].ParticipantCount--
	return nil
}
