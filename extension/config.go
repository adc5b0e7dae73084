package extension

import (
	"fmt"

	"github.com/xraph/grant"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
)

// Config holds the grant extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.grant" or "grant" keys).
//
// Amounts are decimal strings so that values above 2^64 survive YAML.
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	Owner        string `json:"owner" mapstructure:"owner" yaml:"owner"`
	VestingToken string `json:"vesting_token" mapstructure:"vesting_token" yaml:"vesting_token"`
	PaymentToken string `json:"payment_token" mapstructure:"payment_token" yaml:"payment_token"`
	StakeToken   string `json:"stake_token" mapstructure:"stake_token" yaml:"stake_token"`
	StakeOracle  string `json:"stake_oracle" mapstructure:"stake_oracle" yaml:"stake_oracle"`

	RegisterStart uint64 `json:"register_start" mapstructure:"register_start" yaml:"register_start"`
	RegisterEnd   uint64 `json:"register_end" mapstructure:"register_end" yaml:"register_end"`
	SaleStart     uint64 `json:"sale_start" mapstructure:"sale_start" yaml:"sale_start"`
	SaleEnd       uint64 `json:"sale_end" mapstructure:"sale_end" yaml:"sale_end"`

	TotalPool     string `json:"total_pool" mapstructure:"total_pool" yaml:"total_pool"`
	Price         string `json:"price" mapstructure:"price" yaml:"price"`
	// ScaleDecimals defaults to 18; zero selects the default.
	ScaleDecimals uint   `json:"scale_decimals" mapstructure:"scale_decimals" yaml:"scale_decimals"`

	MinCapRate        uint64 `json:"min_cap_rate" mapstructure:"min_cap_rate" yaml:"min_cap_rate"`
	MinCapDenominator uint64 `json:"min_cap_denominator" mapstructure:"min_cap_denominator" yaml:"min_cap_denominator"`

	// Tiers replaces the default tier table when non-empty.
	Tiers []TierConfig `json:"tiers" mapstructure:"tiers" yaml:"tiers"`

	// QueueSize is the capacity of the resolution queue (default: 1024).
	QueueSize int `json:"queue_size" mapstructure:"queue_size" yaml:"queue_size"`

	// RedisAddr enables the shared Redis participant lock when set.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// RedisLockPrefix namespaces lock keys (default: redislock.DefaultPrefix).
	RedisLockPrefix string `json:"redis_lock_prefix" mapstructure:"redis_lock_prefix" yaml:"redis_lock_prefix"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// TierConfig is one row of the tier table.
type TierConfig struct {
	Tier       string `json:"tier" mapstructure:"tier" yaml:"tier"`
	MinStake   string `json:"min_stake" mapstructure:"min_stake" yaml:"min_stake"`
	PoolWeight uint32 `json:"pool_weight" mapstructure:"pool_weight" yaml:"pool_weight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	d := grant.DefaultConfig()
	return Config{
		ScaleDecimals:     d.ScaleDecimals,
		MinCapDenominator: d.MinCapDenominator,
		QueueSize:         d.QueueSize,
	}
}

// GrantConfig converts the extension config into engine parameters.
func (c Config) GrantConfig() (grant.Config, error) {
	cfg := grant.DefaultConfig()
	cfg.Owner = c.Owner
	cfg.VestingToken = c.VestingToken
	cfg.PaymentToken = c.PaymentToken
	cfg.StakeToken = c.StakeToken
	cfg.StakeOracle = c.StakeOracle
	cfg.RegisterStart = c.RegisterStart
	cfg.RegisterEnd = c.RegisterEnd
	cfg.SaleStart = c.SaleStart
	cfg.SaleEnd = c.SaleEnd
	cfg.ScaleDecimals = c.ScaleDecimals
	cfg.MinCapRate = c.MinCapRate
	cfg.MinCapDenominator = c.MinCapDenominator
	cfg.QueueSize = c.QueueSize

	var err error
	if c.TotalPool != "" {
		if cfg.TotalPool, err = types.ParseAmount(c.TotalPool); err != nil {
			return grant.Config{}, fmt.Errorf("total_pool: %w", err)
		}
	}
	if c.Price != "" {
		if cfg.Price, err = types.ParseAmount(c.Price); err != nil {
			return grant.Config{}, fmt.Errorf("price: %w", err)
		}
	}

	if len(c.Tiers) > 0 {
		cfg.Tiers = make([]tier.Config, 0, len(c.Tiers))
		for _, tc := range c.Tiers {
			tr, err := tier.ParseTier(tc.Tier)
			if err != nil {
				return grant.Config{}, fmt.Errorf("tiers: %w", err)
			}
			minStake, err := types.ParseAmount(tc.MinStake)
			if err != nil {
				return grant.Config{}, fmt.Errorf("tiers: %s min_stake: %w", tr, err)
			}
			cfg.Tiers = append(cfg.Tiers, tier.Config{
				Tier:       tr,
				MinStake:   minStake,
				PoolWeight: tc.PoolWeight,
			})
		}
	}

	return cfg, nil
}
