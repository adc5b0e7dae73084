package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/store"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/vesting"
)

// Store keeps every record in process memory. Records are copied on the way
// in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	vestingAccounts map[string]vesting.Account
	saleAccounts    map[string]allocation.Account
	tiers           map[tier.Tier]tier.Config
	settlements     map[string]settlement.Settlement
	totals          store.Totals
}

func New() *Store {
	return &Store{
		vestingAccounts: make(map[string]vesting.Account),
		saleAccounts:    make(map[string]allocation.Account),
		tiers:           make(map[tier.Tier]tier.Config),
		settlements:     make(map[string]settlement.Settlement),
	}
}

// Vesting account Store implementation
func (s *Store) CreateVestingAccount(_ context.Context, a *vesting.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vestingAccounts[a.Participant]; exists {
		return vesting.ErrAlreadyExists
	}
	s.vestingAccounts[a.Participant] = *a
	return nil
}

func (s *Store) GetVestingAccount(_ context.Context, participant string) (*vesting.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.vestingAccounts[participant]; ok {
		return &a, nil
	}
	return nil, vesting.ErrNotFound
}

func (s *Store) UpdateVestingAccount(_ context.Context, a *vesting.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vestingAccounts[a.Participant]; !exists {
		return vesting.ErrNotFound
	}
	s.vestingAccounts[a.Participant] = *a
	return nil
}

func (s *Store) ListVestingAccounts(_ context.Context, opts vesting.ListOpts) ([]*vesting.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*vesting.Account, 0, len(s.vestingAccounts))
	for _, a := range s.vestingAccounts {
		if opts.Revoked != nil && a.IsRevoked != *opts.Revoked {
			continue
		}
		result = append(result, &a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Participant < result[j].Participant })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Sale account Store implementation
func (s *Store) CreateSaleAccount(_ context.Context, a *allocation.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.saleAccounts[a.Participant]; exists {
		return allocation.ErrAlreadyExists
	}
	s.saleAccounts[a.Participant] = *a
	return nil
}

func (s *Store) GetSaleAccount(_ context.Context, participant string) (*allocation.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.saleAccounts[participant]; ok {
		return &a, nil
	}
	return nil, allocation.ErrNotFound
}

func (s *Store) UpdateSaleAccount(_ context.Context, a *allocation.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.saleAccounts[a.Participant]; !exists {
		return allocation.ErrNotFound
	}
	s.saleAccounts[a.Participant] = *a
	return nil
}

func (s *Store) ListSaleAccounts(_ context.Context, opts allocation.ListOpts) ([]*allocation.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*allocation.Account, 0, len(s.saleAccounts))
	for _, a := range s.saleAccounts {
		if opts.Tier != nil && a.Tier != *opts.Tier {
			continue
		}
		result = append(result, &a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Participant < result[j].Participant })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Tier Store implementation
func (s *Store) SaveTiers(_ context.Context, configs []tier.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range configs {
		s.tiers[c.Tier] = c
	}
	return nil
}

func (s *Store) UpdateParticipantCount(_ context.Context, tr tier.Tier, expected, next uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.tiers[tr]
	if !ok || c.ParticipantCount != expected {
		return tier.ErrCountConflict
	}
	c.ParticipantCount = next
	s.tiers[tr] = c
	return nil
}

func (s *Store) ListTiers(_ context.Context) ([]tier.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]tier.Config, 0, len(s.tiers))
	for _, c := range s.tiers {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Tier < result[j].Tier })
	return result, nil
}

// Settlement Store implementation
func (s *Store) CreateSettlement(_ context.Context, st *settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settlements[st.ID.String()] = *st
	return nil
}

func (s *Store) GetSettlement(_ context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.settlements[settlementID.String()]; ok {
		return &st, nil
	}
	return nil, settlement.ErrNotFound
}

func (s *Store) UpdateSettlement(_ context.Context, st *settlement.Settlement, expected settlement.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.settlements[st.ID.String()]
	if !ok {
		return settlement.ErrNotFound
	}
	if cur.Status != expected {
		return settlement.ErrStatusConflict
	}
	s.settlements[st.ID.String()] = *st
	return nil
}

func (s *Store) ListSettlements(_ context.Context, opts settlement.ListOpts) ([]*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*settlement.Settlement, 0)
	for _, st := range s.settlements {
		if opts.Participant != "" && st.Participant != opts.Participant {
			continue
		}
		if opts.Kind != "" && st.Kind != opts.Kind {
			continue
		}
		if opts.Status != "" && st.Status != opts.Status {
			continue
		}
		result = append(result, &st)
	}
	// Settlement IDs are K-sortable, so this is creation order.
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Totals Store implementation
func (s *Store) GetTotals(_ context.Context) (*store.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.totals
	return &t, nil
}

func (s *Store) UpdateTotals(_ context.Context, prev, next *store.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.totals.TotalClaimed.Equal(prev.TotalClaimed) || !s.totals.TotalPurchased.Equal(prev.TotalPurchased) {
		return store.ErrTotalsConflict
	}
	s.totals = *next
	s.totals.UpdatedAt = time.Now().UTC()
	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

var _ store.Store = (*Store)(nil)
