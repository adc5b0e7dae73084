package grant

import (
	"fmt"

	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
)

// Config holds the deployment parameters of one vesting pool and sale.
// Timestamps are unix seconds.
type Config struct {
	// Owner is the only caller allowed to create accounts, revoke and unstick.
	Owner string `json:"owner" yaml:"owner" mapstructure:"owner"`

	// VestingToken is the token paid out by claims and revokes.
	VestingToken string `json:"vesting_token" yaml:"vesting_token" mapstructure:"vesting_token"`

	// PaymentToken is the only caller allowed to report purchases.
	PaymentToken string `json:"payment_token" yaml:"payment_token" mapstructure:"payment_token"`

	// StakeToken is the asset the stake oracle must report.
	StakeToken string `json:"stake_token" yaml:"stake_token" mapstructure:"stake_token"`

	// StakeOracle identifies the staking service queried at registration.
	StakeOracle string `json:"stake_oracle" yaml:"stake_oracle" mapstructure:"stake_oracle"`

	RegisterStart uint64 `json:"register_start" yaml:"register_start" mapstructure:"register_start"`
	RegisterEnd   uint64 `json:"register_end" yaml:"register_end" mapstructure:"register_end"`
	SaleStart     uint64 `json:"sale_start" yaml:"sale_start" mapstructure:"sale_start"`
	SaleEnd       uint64 `json:"sale_end" yaml:"sale_end" mapstructure:"sale_end"`

	// TotalPool is the number of sale tokens shared across all tiers.
	TotalPool types.Amount `json:"total_pool" yaml:"total_pool" mapstructure:"total_pool"`

	// Price is the payment needed for one whole sale token, scaled by
	// 10^ScaleDecimals.
	Price types.Amount `json:"price" yaml:"price" mapstructure:"price"`

	ScaleDecimals uint `json:"scale_decimals" yaml:"scale_decimals" mapstructure:"scale_decimals"`

	// MinCapRate / MinCapDenominator of a tier's allocation cap is the
	// smallest total a participant may hold after a purchase.
	MinCapRate        uint64 `json:"min_cap_rate" yaml:"min_cap_rate" mapstructure:"min_cap_rate"`
	MinCapDenominator uint64 `json:"min_cap_denominator" yaml:"min_cap_denominator" mapstructure:"min_cap_denominator"`

	// Tiers seeds the tier table on first start.
	Tiers []tier.Config `json:"tiers" yaml:"tiers" mapstructure:"tiers"`

	// QueueSize is the capacity of the resolution queue.
	QueueSize int `json:"queue_size" yaml:"queue_size" mapstructure:"queue_size"`
}

// DefaultConfig returns the parameters every deployment shares. Identities,
// windows, pool and price must still be set.
func DefaultConfig() Config {
	return Config{
		ScaleDecimals:     18,
		MinCapDenominator: 1000,
		Tiers:             tier.DefaultConfigs(),
		QueueSize:         1024,
	}
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs MultiError

	required := []struct {
		field, value string
	}{
		{"owner", c.Owner},
		{"vesting_token", c.VestingToken},
		{"payment_token", c.PaymentToken},
		{"stake_token", c.StakeToken},
		{"stake_oracle", c.StakeOracle},
	}
	for _, r := range required {
		if r.value == "" {
			errs.Add(ValidationError{Field: r.field, Message: "is required"})
		}
	}

	if c.RegisterStart >= c.RegisterEnd {
		errs.Add(ValidationError{Field: "register_end", Message: "must be after register_start"})
	}
	if c.SaleStart >= c.SaleEnd {
		errs.Add(ValidationError{Field: "sale_end", Message: "must be after sale_start"})
	}
	if c.Price.IsZero() {
		errs.Add(ValidationError{Field: "price", Message: "must be positive"})
	}
	if _, err := types.Pow10(c.ScaleDecimals); err != nil {
		errs.Add(ValidationError{Field: "scale_decimals", Message: "10^scale_decimals exceeds 128 bits"})
	}
	if c.MinCapDenominator == 0 {
		errs.Add(ValidationError{Field: "min_cap_denominator", Message: "must be positive"})
	} else if c.MinCapRate > c.MinCapDenominator {
		errs.Add(ValidationError{Field: "min_cap_rate", Message: "must not exceed min_cap_denominator"})
	}
	if _, err := tier.NewTable(c.Tiers); err != nil {
		errs.Add(ValidationError{Field: "tiers", Message: err.Error()})
	}
	if c.QueueSize < 0 {
		errs.Add(ValidationError{Field: "queue_size", Message: "must not be negative"})
	}

	if errs.HasErrors() {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

// Scale returns 10^ScaleDecimals.
func (c Config) Scale() (types.Amount, error) {
	return types.Pow10(c.ScaleDecimals)
}
