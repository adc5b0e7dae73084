package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
	grantstore "github.com/xraph/grant/store"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/vesting"
)

// compile-time interface check
var _ grantstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("grant/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("grant/sqlite: migration failed: %w", err)
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
	res, err := s.sdb.NewInsert(m).
		OnConflict("(participant) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return vesting.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetVestingAccount(ctx context.Context, participant string) (*vesting.Account, error) {
	m := new(vestingAccountModel)
	err := s.sdb.NewSelect(m).
		Where("participant = ?", participant).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, vesting.ErrNotFound
		}
		return nil, err
	}
	return fromVestingAccountModel(m)
}

func (s *Store) UpdateVestingAccount(ctx context.Context, a *vesting.Account) error {
	m := toVestingAccountModel(a)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return vesting.ErrNotFound
	}
	return nil
}

func (s *Store) ListVestingAccounts(ctx context.Context, opts vesting.ListOpts) ([]*vesting.Account, error) {
	var models []vestingAccountModel
	q := s.sdb.NewSelect(&models)

	if opts.Revoked != nil {
		q = q.Where("is_revoked = ?", *opts.Revoked)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("participant ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.sdb.NewInsert(m).
		OnConflict("(participant) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return allocation.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetSaleAccount(ctx context.Context, participant string) (*allocation.Account, error) {
	m := new(saleAccountModel)
	err := s.sdb.NewSelect(m).
		Where("participant = ?", participant).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, allocation.ErrNotFound
		}
		return nil, err
	}
	return fromSaleAccountModel(m)
}

func (s *Store) UpdateSaleAccount(ctx context.Context, a *allocation.Account) error {
	m := toSaleAccountModel(a)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return allocation.ErrNotFound
	}
	return nil
}

func (s *Store) ListSaleAccounts(ctx context.Context, opts allocation.ListOpts) ([]*allocation.Account, error) {
	var models []saleAccountModel
	q := s.sdb.NewSelect(&models)

	if opts.Tier != nil {
		q = q.Where("tier = ?", int(*opts.Tier))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("participant ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	if len(configs) == 0 {
		return nil
	}
	models := make([]tierModel, len(configs))
	for i, c := range configs {
		models[i] = toTierModel(c)
	}
	_, err := s.sdb.NewInsert(&models).
		OnConflict("(tier) DO UPDATE").
		Set("min_stake = EXCLUDED.min_stake").
		Set("pool_weight = EXCLUDED.pool_weight").
		Set("participant_count = EXCLUDED.participant_count").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// UpdateParticipantCount sets tr's count only while it still equals expected.
func (s *Store) UpdateParticipantCount(ctx context.Context, tr tier.Tier, expected, next uint32) error {
	res, err := s.sdb.NewUpdate((*tierModel)(nil)).
		Set("participant_count = ?", int64(next)).
		Set("updated_at = ?", now()).
		Where("tier = ?", int(tr)).
		Where("participant_count = ?", int64(expected)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tier.ErrCountConflict
	}
	return nil
}

func (s *Store) ListTiers(ctx context.Context) ([]tier.Config, error) {
	var models []tierModel
	if err := s.sdb.NewSelect(&models).OrderExpr("tier ASC").Scan(ctx); err != nil {
		return nil, err
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	m := new(settlementModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", settlementID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, settlement.ErrNotFound
		}
		return nil, err
	}
	return fromSettlementModel(m)
}

// UpdateSettlement writes st only while the stored status is still expected.
func (s *Store) UpdateSettlement(ctx context.Context, st *settlement.Settlement, expected settlement.Status) error {
	m := toSettlementModel(st)
	res, err := s.sdb.NewUpdate((*settlementModel)(nil)).
		Set("status = ?", m.Status).
		Set("amount = ?", m.Amount).
		Set("tier = ?", m.Tier).
		Set("reference = ?", m.Reference).
		Set("failure = ?", m.Failure).
		Set("resolution = ?", m.Resolution).
		Set("resolved_at = ?", m.ResolvedAt).
		Set("updated_at = ?", now()).
		Where("id = ?", m.ID).
		Where("status = ?", string(expected)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetSettlement(ctx, st.ID); err != nil {
			return err
		}
		return settlement.ErrStatusConflict
	}
	return nil
}

func (s *Store) ListSettlements(ctx context.Context, opts settlement.ListOpts) ([]*settlement.Settlement, error) {
	var models []settlementModel
	q := s.sdb.NewSelect(&models)

	if opts.Participant != "" {
		q = q.Where("participant = ?", opts.Participant)
	}
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	// Settlement IDs are K-sortable, so this is creation order.
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	m := new(totalsModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", totalsID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &grantstore.Totals{}, nil
		}
		return nil, err
	}
	return fromTotalsModel(m)
}

// UpdateTotals writes next only while the stored sums still equal prev.
// The row is created by the first write.
func (s *Store) UpdateTotals(ctx context.Context, prev, next *grantstore.Totals) error {
	p, m := toTotalsModel(prev), toTotalsModel(next)
	res, err := s.sdb.NewUpdate((*totalsModel)(nil)).
		Set("total_claimed = ?", m.TotalClaimed).
		Set("total_purchased = ?", m.TotalPurchased).
		Set("updated_at = ?", m.UpdatedAt).
		Where("id = ?", totalsID).
		Where("total_claimed = ?", p.TotalClaimed).
		Where("total_purchased = ?", p.TotalPurchased).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	if !prev.TotalClaimed.IsZero() || !prev.TotalPurchased.IsZero() {
		return grantstore.ErrTotalsConflict
	}

	res, err = s.sdb.NewInsert(m).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, err = res.RowsAffected(); err != nil {
		return err
	}
	if rows == 0 {
		return grantstore.ErrTotalsConflict
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
