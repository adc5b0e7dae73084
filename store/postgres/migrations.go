package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the grant store.
var Migrations = migrate.NewGroup("grant")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_grant_vesting_accounts",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS grant_vesting_accounts (
    participant      TEXT PRIMARY KEY,
    total_amount     TEXT NOT NULL DEFAULT '0',
    claimed_amount   TEXT NOT NULL DEFAULT '0',
    start_timestamp  BIGINT NOT NULL DEFAULT 0,
    finish_timestamp BIGINT NOT NULL DEFAULT 0,
    duration         BIGINT NOT NULL DEFAULT 0,
    releases_count   BIGINT NOT NULL DEFAULT 0,
    is_revoked       BOOLEAN NOT NULL DEFAULT FALSE,
    is_revocable     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_grant_vesting_revoked ON grant_vesting_accounts (is_revoked);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS grant_vesting_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_grant_sale_accounts",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS grant_sale_accounts (
    participant      TEXT PRIMARY KEY,
    purchased_amount TEXT NOT NULL DEFAULT '0',
    tier             SMALLINT NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_grant_sale_tier ON grant_sale_accounts (tier);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS grant_sale_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_grant_tiers",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS grant_tiers (
    tier              SMALLINT PRIMARY KEY,
    min_stake         TEXT NOT NULL DEFAULT '0',
    pool_weight       BIGINT NOT NULL DEFAULT 0,
    participant_count BIGINT NOT NULL DEFAULT 0,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS grant_tiers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_grant_settlements",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS grant_settlements (
    id          TEXT PRIMARY KEY,
    participant TEXT NOT NULL DEFAULT '',
    kind        TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'pending',
    amount      TEXT NOT NULL DEFAULT '0',
    recipient   TEXT NOT NULL DEFAULT '',
    tier        SMALLINT NOT NULL DEFAULT 0,
    reference   TEXT NOT NULL DEFAULT '',
    failure     TEXT NOT NULL DEFAULT '',
    resolution  TEXT NOT NULL DEFAULT '',
    resolved_at TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_grant_settlements_participant ON grant_settlements (participant, id);
CREATE INDEX IF NOT EXISTS idx_grant_settlements_status ON grant_settlements (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS grant_settlements`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_grant_totals",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS grant_totals (
    id              INT PRIMARY KEY,
    total_claimed   TEXT NOT NULL DEFAULT '0',
    total_purchased TEXT NOT NULL DEFAULT '0',
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS grant_totals`)
				return err
			},
		},
	)
}
