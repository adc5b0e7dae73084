package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	grantstore "github.com/xraph/grant/store"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/vesting"
)

// Collection name constants.
const (
	colVestingAccounts = "grant_vesting_accounts"
	colSaleAccounts    = "grant_sale_accounts"
	colTiers           = "grant_tiers"
	colSettlements     = "grant_settlements"
	colTotals          = "grant_totals"
)

// compile-time interface check
var _ grantstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all grant collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("grant/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Vesting Account Store ====================

func (s *Store) CreateVestingAccount(ctx context.Context, a *vesting.Account) error {
	m := toVestingAccountModel(a)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return vesting.ErrAlreadyExists
		}
		return fmt.Errorf("grant/mongo: create vesting account: %w", err)
	}
	return nil
}

func (s *Store) GetVestingAccount(ctx context.Context, participant string) (*vesting.Account, error) {
	var m vestingAccountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": participant}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, vesting.ErrNotFound
		}
		return nil, fmt.Errorf("grant/mongo: get vesting account: %w", err)
	}
	return fromVestingAccountModel(&m)
}

func (s *Store) UpdateVestingAccount(ctx context.Context, a *vesting.Account) error {
	m := toVestingAccountModel(a)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Participant}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant/mongo: update vesting account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return vesting.ErrNotFound
	}
	return nil
}

func (s *Store) ListVestingAccounts(ctx context.Context, opts vesting.ListOpts) ([]*vesting.Account, error) {
	var models []vestingAccountModel

	filter := bson.M{}
	if opts.Revoked != nil {
		filter["is_revoked"] = *opts.Revoked
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("grant/mongo: list vesting accounts: %w", err)
	}

	result := make([]*vesting.Account, len(models))
	for i := range models {
		a, err := fromVestingAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

// ==================== Sale Account Store ====================

func (s *Store) CreateSaleAccount(ctx context.Context, a *allocation.Account) error {
	m := toSaleAccountModel(a)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return allocation.ErrAlreadyExists
		}
		return fmt.Errorf("grant/mongo: create sale account: %w", err)
	}
	return nil
}

func (s *Store) GetSaleAccount(ctx context.Context, participant string) (*allocation.Account, error) {
	var m saleAccountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": participant}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, allocation.ErrNotFound
		}
		return nil, fmt.Errorf("grant/mongo: get sale account: %w", err)
	}
	return fromSaleAccountModel(&m)
}

func (s *Store) UpdateSaleAccount(ctx context.Context, a *allocation.Account) error {
	m := toSaleAccountModel(a)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Participant}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant/mongo: update sale account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return allocation.ErrNotFound
	}
	return nil
}

func (s *Store) ListSaleAccounts(ctx context.Context, opts allocation.ListOpts) ([]*allocation.Account, error) {
	var models []saleAccountModel

	filter := bson.M{}
	if opts.Tier != nil {
		filter["tier"] = int(*opts.Tier)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("grant/mongo: list sale accounts: %w", err)
	}

	result := make([]*allocation.Account, len(models))
	for i := range models {
		a, err := fromSaleAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

// ==================== Tier Store ====================

func (s *Store) SaveTiers(ctx context.Context, configs []tier.Config) error {
	t := now()
	for _, c := range configs {
		_, err := s.mdb.NewUpdate((*tierModel)(nil)).
			Filter(bson.M{"_id": int(c.Tier)}).
			SetUpdate(bson.M{"$set": bson.M{
				"min_stake":         c.MinStake.String(),
				"pool_weight":       int64(c.PoolWeight),
				"participant_count": int64(c.ParticipantCount),
				"updated_at":        t,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("grant/mongo: save %s: %w", c.Tier, err)
		}
	}
	return nil
}

// UpdateParticipantCount sets tr's count only while it still equals expected.
func (s *Store) UpdateParticipantCount(ctx context.Context, tr tier.Tier, expected, next uint32) error {
	res, err := s.mdb.NewUpdate((*tierModel)(nil)).
		Filter(bson.M{"_id": int(tr), "participant_count": int64(expected)}).
		SetUpdate(bson.M{"$set": bson.M{
			"participant_count": int64(next),
			"updated_at":        now(),
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant/mongo: update %s count: %w", tr, err)
	}
	if res.MatchedCount() == 0 {
		return tier.ErrCountConflict
	}
	return nil
}

func (s *Store) ListTiers(ctx context.Context) ([]tier.Config, error) {
	var models []tierModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("grant/mongo: list tiers: %w", err)
	}

	result := make([]tier.Config, len(models))
	for i := range models {
		c, err := fromTierModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Settlement Store ====================

func (s *Store) CreateSettlement(ctx context.Context, st *settlement.Settlement) error {
	m := toSettlementModel(st)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant/mongo: create settlement: %w", err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	var m settlementModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": settlementID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, settlement.ErrNotFound
		}
		return nil, fmt.Errorf("grant/mongo: get settlement: %w", err)
	}
	return fromSettlementModel(&m)
}

// UpdateSettlement writes st only while the stored status is still expected.
func (s *Store) UpdateSettlement(ctx context.Context, st *settlement.Settlement, expected settlement.Status) error {
	m := toSettlementModel(st)

	res, err := s.mdb.NewUpdate((*settlementModel)(nil)).
		Filter(bson.M{"_id": m.ID, "status": string(expected)}).
		SetUpdate(bson.M{"$set": bson.M{
			"status":      m.Status,
			"amount":      m.Amount,
			"tier":        m.Tier,
			"reference":   m.Reference,
			"failure":     m.Failure,
			"resolution":  m.Resolution,
			"resolved_at": m.ResolvedAt,
			"updated_at":  now(),
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant/mongo: update settlement: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetSettlement(ctx, st.ID); err != nil {
			return err
		}
		return settlement.ErrStatusConflict
	}
	return nil
}

func (s *Store) ListSettlements(ctx context.Context, opts settlement.ListOpts) ([]*settlement.Settlement, error) {
	var models []settlementModel

	filter := bson.M{}
	if opts.Participant != "" {
		filter["participant"] = opts.Participant
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("grant/mongo: list settlements: %w", err)
	}

	result := make([]*settlement.Settlement, len(models))
	for i := range models {
		st, err := fromSettlementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

// ==================== Totals Store ====================

func (s *Store) GetTotals(ctx context.Context) (*grantstore.Totals, error) {
	var m totalsModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": totalsID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return &grantstore.Totals{}, nil
		}
		return nil, fmt.Errorf("grant/mongo: get totals: %w", err)
	}
	return fromTotalsModel(&m)
}

// UpdateTotals writes next only while the stored sums still equal prev.
// The document is created by the first write.
func (s *Store) UpdateTotals(ctx context.Context, prev, next *grantstore.Totals) error {
	t := now()
	res, err := s.mdb.NewUpdate((*totalsModel)(nil)).
		Filter(bson.M{
			"_id":             totalsID,
			"total_claimed":   prev.TotalClaimed.String(),
			"total_purchased": prev.TotalPurchased.String(),
		}).
		SetUpdate(bson.M{"$set": bson.M{
			"total_claimed":   next.TotalClaimed.String(),
			"total_purchased": next.TotalPurchased.String(),
			"updated_at":      t,
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant/mongo: update totals: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}
	if !prev.TotalClaimed.IsZero() || !prev.TotalPurchased.IsZero() {
		return grantstore.ErrTotalsConflict
	}

	_, err = s.mdb.NewInsert(&totalsModel{
		ID:             totalsID,
		TotalClaimed:   next.TotalClaimed.String(),
		TotalPurchased: next.TotalPurchased.String(),
		UpdatedAt:      t,
	}).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return grantstore.ErrTotalsConflict
		}
		return fmt.Errorf("grant/mongo: create totals: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all grant collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colVestingAccounts: {
			{Keys: bson.D{{Key: "is_revoked", Value: 1}}},
		},
		colSaleAccounts: {
			{Keys: bson.D{{Key: "tier", Value: 1}}},
		},
		colTiers: {},
		colSettlements: {
			{Keys: bson.D{{Key: "participant", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{
				Keys:    bson.D{{Key: "participant", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetPartialFilterExpression(bson.M{"status": string(settlement.StatusPending)}),
			},
		},
		colTotals: {},
	}
}
