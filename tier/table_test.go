package tier

import (
	"errors"
	"testing"

	"github.com/xraph/grant/types"
)

func tokens(n uint64) types.Amount {
	a, err := types.MustParseAmount("1000000000000000000").MulUint64(n)
	if err != nil {
		panic(err)
	}
	return a
}

func TestTierFor(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name  string
		stake types.Amount
		want  Tier
	}{
		{"zero stake", types.Amount{}, Untiered},
		{"just below tier1", types.MustParseAmount("1999999999999999999999"), Untiered},
		{"exactly tier1", tokens(2_000), Tier1},
		{"between tier2 and tier3", tokens(9_999), Tier2},
		{"exactly tier4", tokens(17_500), Tier4},
		{"exactly tier7", tokens(175_000), Tier7},
		{"above tier7", tokens(1_000_000), Tier7},
		{"max amount", types.MaxAmount, Tier7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.TierFor(tt.stake); got != tt.want {
				t.Errorf("TierFor(%s) = %s, want %s", tt.stake, got, tt.want)
			}
		})
	}
}

func TestTierForInclusiveBoundary(t *testing.T) {
	table, err := NewTable([]Config{
		{Tier: Tier1, MinStake: types.NewAmount(100), PoolWeight: 1},
		{Tier: Tier2, MinStake: types.NewAmount(200), PoolWeight: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := table.TierFor(types.NewAmount(200)); got != Tier2 {
		t.Errorf("stake at tier2 boundary got %s", got)
	}
	if got := table.TierFor(types.NewAmount(199)); got != Tier1 {
		t.Errorf("stake just below tier2 got %s", got)
	}
	if got := table.TierFor(types.NewAmount(99)); got != Untiered {
		t.Errorf("stake below tier1 got %s", got)
	}
	if got := table.TierFor(types.MaxAmount); got != Tier2 {
		t.Errorf("unconfigured tiers must not match, got %s", got)
	}
}

func TestAllocationCap(t *testing.T) {
	table, err := NewTable([]Config{
		{Tier: Tier1, MinStake: types.NewAmount(100), PoolWeight: 1},
		{Tier: Tier2, MinStake: types.NewAmount(200), PoolWeight: 3},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := table.AllocationCap(Tier1, types.NewAmount(1000)); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}

	// Two tier1 participants and one tier2: total weight 2*1 + 1*3 = 5.
	for _, tr := range []Tier{Tier1, Tier1, Tier2} {
		if err := table.RecordParticipant(tr); err != nil {
			t.Fatal(err)
		}
	}

	pool := types.NewAmount(1002)
	tests := []struct {
		tier Tier
		want uint64
	}{
		{Untiered, 0},
		{Tier1, 200},
		{Tier2, 600},
	}
	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			got, err := table.AllocationCap(tt.tier, pool)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(types.NewAmount(tt.want)) {
				t.Errorf("AllocationCap = %s, want %d", got, tt.want)
			}
		})
	}

	minCap, err := table.MinAllocationCap(Tier2, pool, 250, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !minCap.Equal(types.NewAmount(150)) {
		t.Errorf("MinAllocationCap = %s, want 150", minCap)
	}
}

func TestRecordParticipant(t *testing.T) {
	table := DefaultTable()

	if err := table.RecordParticipant(Untiered); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("expected ErrUnknownTier for untiered, got %v", err)
	}
	if err := table.RecordParticipant(Tier3); err != nil {
		t.Fatal(err)
	}
	c, _ := table.Config(Tier3)
	if c.ParticipantCount != 1 {
		t.Errorf("ParticipantCount = %d, want 1", c.ParticipantCount)
	}

	table.configs[Tier3].ParticipantCount = ^uint32(0)
	if err := table.RecordParticipant(Tier3); !errors.Is(err, types.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestRemoveParticipant(t *testing.T) {
	table := DefaultTable()

	if err := table.RemoveParticipant(Tier1); !errors.Is(err, types.ErrUnderflow) {
		t.Errorf("expected ErrUnderflow on empty tier, got %v", err)
	}
	_ = table.RecordParticipant(Tier1)
	if err := table.RemoveParticipant(Tier1); err != nil {
		t.Fatal(err)
	}
	if c, _ := table.Config(Tier1); c.ParticipantCount != 0 {
		t.Errorf("ParticipantCount = %d, want 0", c.ParticipantCount)
	}
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		configs []Config
	}{
		{"non increasing", []Config{
			{Tier: Tier1, MinStake: types.NewAmount(100), PoolWeight: 1},
			{Tier: Tier2, MinStake: types.NewAmount(100), PoolWeight: 2},
		}},
		{"zero tier1 min stake", []Config{
			{Tier: Tier1, MinStake: types.Amount{}, PoolWeight: 1},
		}},
		{"gap", []Config{
			{Tier: Tier1, MinStake: types.NewAmount(100), PoolWeight: 1},
			{Tier: Tier3, MinStake: types.NewAmount(300), PoolWeight: 3},
		}},
		{"duplicate", []Config{
			{Tier: Tier1, MinStake: types.NewAmount(100), PoolWeight: 1},
			{Tier: Tier1, MinStake: types.NewAmount(200), PoolWeight: 1},
		}},
		{"weighted untiered", []Config{
			{Tier: Untiered, PoolWeight: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTable(tt.configs); !errors.Is(err, ErrInvalidTable) {
				t.Errorf("expected ErrInvalidTable, got %v", err)
			}
		})
	}
}

func TestConfigsRoundTrip(t *testing.T) {
	table := DefaultTable()
	_ = table.RecordParticipant(Tier5)

	rebuilt, err := NewTable(table.Configs())
	if err != nil {
		t.Fatal(err)
	}
	c, _ := rebuilt.Config(Tier5)
	if c.ParticipantCount != 1 || c.PoolWeight != 16 {
		t.Errorf("unexpected tier5 config after rebuild: %+v", c)
	}
}

func TestConfigsRoundTripPartialTable(t *testing.T) {
	table, err := NewTable(DefaultConfigs()[:2])
	if err != nil {
		t.Fatal(err)
	}

	configs := table.Configs()
	if len(configs) != 3 {
		t.Fatalf("expected untiered plus two tiers, got %d entries", len(configs))
	}
	rebuilt, err := NewTable(configs)
	if err != nil {
		t.Fatal(err)
	}
	if got := rebuilt.TierFor(types.MaxAmount); got != Tier2 {
		t.Errorf("TierFor(max) = %s, want tier2", got)
	}
}

func TestParseTier(t *testing.T) {
	for i := 0; i < Count; i++ {
		tr := Tier(i)
		parsed, err := ParseTier(tr.String())
		if err != nil || parsed != tr {
			t.Errorf("ParseTier(%q) = %v, %v", tr.String(), parsed, err)
		}
	}
	for _, bad := range []string{"", "tier8", "gold", "tier-1"} {
		if _, err := ParseTier(bad); !errors.Is(err, ErrUnknownTier) {
			t.Errorf("ParseTier(%q): expected ErrUnknownTier, got %v", bad, err)
		}
	}
}
