package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the grant store (SQLite).
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
    start_timestamp  INTEGER NOT NULL DEFAULT 0,
    finish_timestamp INTEGER NOT NULL DEFAULT 0,
    duration         INTEGER NOT NULL DEFAULT 0,
    releases_count   INTEGER NOT NULL DEFAULT 0,
    is_revoked       INTEGER NOT NULL DEFAULT 0,
    is_revocable     INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
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
    tier             INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
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
    tier              INTEGER PRIMARY KEY,
    min_stake         TEXT NOT NULL DEFAULT '0',
    pool_weight       INTEGER NOT NULL DEFAULT 0,
    participant_count INTEGER NOT NULL DEFAULT 0,
    updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
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
    tier        INTEGER NOT NULL DEFAULT 0,
    reference   TEXT NOT NULL DEFAULT '',
    failure     TEXT NOT NULL DEFAULT '',
    resolution  TEXT NOT NULL DEFAULT '',
    resolved_at TEXT,
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
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
    id              INTEGER PRIMARY KEY,
    total_claimed   TEXT NOT NULL DEFAULT '0',
    total_purchased TEXT NOT NULL DEFAULT '0',
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
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
