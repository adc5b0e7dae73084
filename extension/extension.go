// Package extension provides the Forge extension adapter for grant.
//
// It implements the forge.Extension interface to integrate the grant engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.grant" or "grant" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/grant"
	"github.com/xraph/grant/settlement/redislock"
	"github.com/xraph/grant/store"
	"github.com/xraph/grant/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "grant"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Token vesting and tiered sale settlement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the grant engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	engine    *grant.Engine
	store     store.Store
	redis     *redis.Client
	grantOpts []grant.Option
}

// New creates a new grant Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying grant engine.
// This is nil until Register is called.
func (e *Extension) Engine() *grant.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the grant engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	eng, err := e.buildEngine()
	if err != nil {
		return err
	}
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*grant.Engine, error) {
		return e.engine, nil
	})
}

// buildEngine constructs the engine from the resolved config.
func (e *Extension) buildEngine() (*grant.Engine, error) {
	cfg, err := e.config.GrantConfig()
	if err != nil {
		return nil, fmt.Errorf("grant: extension config: %w", err)
	}

	opts := e.buildGrantOpts()
	return grant.New(e.store, cfg, opts...)
}

// buildGrantOpts constructs grant.Option values from the resolved config.
func (e *Extension) buildGrantOpts() []grant.Option {
	opts := make([]grant.Option, 0, len(e.grantOpts)+2)

	if e.config.DisableMigrate {
		opts = append(opts, grant.WithMigrate(false))
	}

	if e.config.RedisAddr != "" {
		e.redis = redis.NewClient(&redis.Options{Addr: e.config.RedisAddr})
		lockOpts := []redislock.Option{redislock.WithOwner(ExtensionName)}
		if e.config.RedisLockPrefix != "" {
			lockOpts = append(lockOpts, redislock.WithPrefix(e.config.RedisLockPrefix))
		}
		opts = append(opts, grant.WithLocker(redislock.New(e.redis, lockOpts...)))
	}

	// Pass-through options come last so they can override config.
	opts = append(opts, e.grantOpts...)

	return opts
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("grant: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("grant: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("grant: configuration is required but not found in config files; " +
				"ensure 'extensions.grant' or 'grant' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("grant: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("owner", e.config.Owner),
		forge.F("register_window", fmt.Sprintf("%d-%d", e.config.RegisterStart, e.config.RegisterEnd)),
		forge.F("sale_window", fmt.Sprintf("%d-%d", e.config.SaleStart, e.config.SaleEnd)),
		forge.F("tiers", len(e.config.Tiers)),
		forge.F("queue_size", e.config.QueueSize),
		forge.F("redis_lock", e.config.RedisAddr != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.grant" first (namespaced pattern).
	if cm.IsSet("extensions.grant") {
		if err := cm.Bind("extensions.grant", &cfg); err == nil {
			e.Logger().Debug("grant: loaded config from file",
				forge.F("key", "extensions.grant"),
			)
			return cfg, true
		}
		e.Logger().Warn("grant: failed to bind extensions.grant config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "grant" key.
	if cm.IsSet("grant") {
		if err := cm.Bind("grant", &cfg); err == nil {
			e.Logger().Debug("grant: loaded config from file",
				forge.F("key", "grant"),
			)
			return cfg, true
		}
		e.Logger().Warn("grant: failed to bind grant config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ScaleDecimals == 0 {
		cfg.ScaleDecimals = defaults.ScaleDecimals
	}
	if cfg.MinCapDenominator == 0 {
		cfg.MinCapDenominator = defaults.MinCapDenominator
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	fillString := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fillString(&yamlConfig.Owner, programmaticConfig.Owner)
	fillString(&yamlConfig.VestingToken, programmaticConfig.VestingToken)
	fillString(&yamlConfig.PaymentToken, programmaticConfig.PaymentToken)
	fillString(&yamlConfig.StakeToken, programmaticConfig.StakeToken)
	fillString(&yamlConfig.StakeOracle, programmaticConfig.StakeOracle)
	fillString(&yamlConfig.TotalPool, programmaticConfig.TotalPool)
	fillString(&yamlConfig.Price, programmaticConfig.Price)
	fillString(&yamlConfig.RedisAddr, programmaticConfig.RedisAddr)
	fillString(&yamlConfig.RedisLockPrefix, programmaticConfig.RedisLockPrefix)

	fillUint := func(dst *uint64, src uint64) {
		if *dst == 0 && src != 0 {
			*dst = src
		}
	}
	fillUint(&yamlConfig.RegisterStart, programmaticConfig.RegisterStart)
	fillUint(&yamlConfig.RegisterEnd, programmaticConfig.RegisterEnd)
	fillUint(&yamlConfig.SaleStart, programmaticConfig.SaleStart)
	fillUint(&yamlConfig.SaleEnd, programmaticConfig.SaleEnd)
	fillUint(&yamlConfig.MinCapRate, programmaticConfig.MinCapRate)
	fillUint(&yamlConfig.MinCapDenominator, programmaticConfig.MinCapDenominator)

	if yamlConfig.ScaleDecimals == 0 && programmaticConfig.ScaleDecimals != 0 {
		yamlConfig.ScaleDecimals = programmaticConfig.ScaleDecimals
	}
	if yamlConfig.QueueSize == 0 && programmaticConfig.QueueSize != 0 {
		yamlConfig.QueueSize = programmaticConfig.QueueSize
	}
	if len(yamlConfig.Tiers) == 0 && len(programmaticConfig.Tiers) > 0 {
		yamlConfig.Tiers = programmaticConfig.Tiers
	}

	return mergeWithDefaults(yamlConfig)
}
