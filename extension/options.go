package extension

import (
	"github.com/xraph/grant"
	"github.com/xraph/grant/external"
	"github.com/xraph/grant/plugin"
	"github.com/xraph/grant/store"
)

// Option configures the grant Forge extension.
type Option func(*Extension)

// WithStore sets the store for the grant engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGrantOption passes a grant.Option through to the underlying engine.
func WithGrantOption(opt grant.Option) Option {
	return func(e *Extension) {
		e.grantOpts = append(e.grantOpts, opt)
	}
}

// WithPlugin registers a grant plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.grantOpts = append(e.grantOpts, grant.WithPlugin(p))
	}
}

// WithTransferService sets the token transfer collaborator.
func WithTransferService(ts external.TransferService) Option {
	return func(e *Extension) {
		e.grantOpts = append(e.grantOpts, grant.WithTransferService(ts))
	}
}

// WithStakeOracle sets the stake oracle collaborator.
func WithStakeOracle(o external.StakeOracle) Option {
	return func(e *Extension) {
		e.grantOpts = append(e.grantOpts, grant.WithStakeOracle(o))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithRedisAddr enables the shared Redis participant lock.
func WithRedisAddr(addr string) Option {
	return func(e *Extension) { e.config.RedisAddr = addr }
}

// WithQueueSize sets the capacity of the resolution queue.
func WithQueueSize(size int) Option {
	return func(e *Extension) { e.config.QueueSize = size }
}
