package grant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/grant/external"
	"github.com/xraph/grant/plugin"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/store"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
)

// Engine is the vesting and sale settlement engine.
//
// Every state-changing operation and every resolution runs under one mutex,
// so validation and the optimistic write of an operation are never
// interleaved with another. External calls never hold it: their replies are
// queued and resolved by a background worker.
type Engine struct {
	mu sync.Mutex

	cfg     Config
	scale   types.Amount
	store   store.Store
	tiers   *tier.Table
	coord   *settlement.Coordinator
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   func() time.Time

	transfers external.TransferService
	oracle    external.StakeOracle
	locker    settlement.Locker
	migrate   bool

	// Background worker
	resolutions chan settlement.Outcome
	stopChan    chan struct{}
	wg          sync.WaitGroup
	stateMu     sync.Mutex
	started     bool
	stopped     bool
	state       atomic.Int32
}

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

// New creates an Engine. The tier table is loaded from the store on Start,
// seeded from cfg.Tiers the first time.
func New(s store.Store, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scale, err := cfg.Scale()
	if err != nil {
		return nil, err
	}
	tiers, err := tier.NewTable(cfg.Tiers)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		scale:    scale,
		store:    s,
		tiers:    tiers,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		clock:    time.Now,
		migrate:  true,
		stopChan: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.transfers == nil {
		e.transfers = external.TransferFunc(func(context.Context, external.TransferRequest, external.TransferReply) error {
			return errors.New("no transfer service configured")
		})
	}
	if e.oracle == nil {
		e.oracle = external.StakeFunc(func(context.Context, external.StakeRequest, external.StakeReply) error {
			return errors.New("no stake oracle configured")
		})
	}
	if e.locker == nil {
		e.locker = settlement.NewMemoryLocker()
	}
	e.resolutions = make(chan settlement.Outcome, cfg.QueueSize)

	e.coord = settlement.NewCoordinator(s,
		settlement.WithLocker(e.locker),
		settlement.WithLogger(e.logger),
		settlement.WithClock(e.clock),
		settlement.WithDelivery(e.Deliver),
		settlement.WithHandler(&claimHandler{e: e}),
		settlement.WithHandler(&revokeHandler{e: e}),
		settlement.WithHandler(&registerHandler{e: e}),
	)

	return e, nil
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithTransferService sets the token transfer collaborator.
func WithTransferService(ts external.TransferService) Option {
	return func(e *Engine) { e.transfers = ts }
}

// WithStakeOracle sets the stake oracle collaborator.
func WithStakeOracle(o external.StakeOracle) Option {
	return func(e *Engine) { e.oracle = o }
}

// WithLocker sets the per-participant lock. Use a shared locker when several
// processes serve the same store.
func WithLocker(l settlement.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithClock sets the time source. Operations read unix seconds from it.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.clock = fn }
}

// WithMigrate controls whether Start migrates the store. Defaults to true.
func WithMigrate(enabled bool) Option {
	return func(e *Engine) { e.migrate = enabled }
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start migrates the store unless WithMigrate(false) was given, loads the
// tier table and starts the resolution worker.
func (e *Engine) Start(ctx context.Context) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.stopped {
		return ErrStopped
	}
	if e.started {
		return nil
	}

	if e.migrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}
	if err := e.loadTiers(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.resolutionWorker(ctx)
	e.started = true
	e.state.Store(stateRunning)

	e.logger.Info("grant engine started",
		"owner", e.cfg.Owner,
		"queue_size", cap(e.resolutions),
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop drains the resolution queue, stops the worker and closes the store.
func (e *Engine) Stop() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.stopped {
		return nil
	}
	e.stopped = true
	e.state.Store(stateStopped)

	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

func (e *Engine) loadTiers(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored, err := e.store.ListTiers(ctx)
	if err != nil {
		return fmt.Errorf("grant: load tiers: %w", err)
	}
	if len(stored) == 0 {
		return e.store.SaveTiers(ctx, e.tiers.Configs())
	}

	table, err := tier.NewTable(stored)
	if err != nil {
		return fmt.Errorf("grant: stored tiers: %w", err)
	}
	e.tiers = table
	return nil
}

// maxSharedWriteAttempts bounds retries of conditional writes to rows shared
// by every participant: the tier counts and the running totals.
const maxSharedWriteAttempts = 16

// refreshTiers reloads the tier table so allocation caps reflect
// registrations made by other processes. e.mu must be held.
func (e *Engine) refreshTiers(ctx context.Context) (*tier.Table, error) {
	stored, err := e.store.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("grant: load tiers: %w", err)
	}
	table, err := tier.NewTable(stored)
	if err != nil {
		return nil, fmt.Errorf("grant: stored tiers: %w", err)
	}
	e.tiers = table
	return table, nil
}

// adjustTierCount records (delta > 0) or removes one participant in tr with
// a conditional write, retrying against the latest stored count.
func (e *Engine) adjustTierCount(ctx context.Context, tr tier.Tier, delta int) error {
	for range maxSharedWriteAttempts {
		table, err := e.refreshTiers(ctx)
		if err != nil {
			return err
		}
		cur, err := table.Config(tr)
		if err != nil {
			return err
		}
		next := table.Clone()
		if delta > 0 {
			err = next.RecordParticipant(tr)
		} else {
			err = next.RemoveParticipant(tr)
		}
		if err != nil {
			return err
		}
		want, _ := next.Config(tr)

		err = e.store.UpdateParticipantCount(ctx, tr, cur.ParticipantCount, want.ParticipantCount)
		if errors.Is(err, tier.ErrCountConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("grant: update %s count: %w", tr, err)
		}
		e.tiers = next
		return nil
	}
	return fmt.Errorf("grant: update %s count: %w", tr, tier.ErrCountConflict)
}

// updateTotals applies fn to the latest running totals with a conditional
// write, retrying when another writer got there first.
func (e *Engine) updateTotals(ctx context.Context, fn func(*store.Totals) error) error {
	for range maxSharedWriteAttempts {
		prev, err := e.store.GetTotals(ctx)
		if err != nil {
			return err
		}
		next := *prev
		if err := fn(&next); err != nil {
			return err
		}

		err = e.store.UpdateTotals(ctx, prev, &next)
		if errors.Is(err, store.ErrTotalsConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("grant: update totals: %w", err)
		}
		return nil
	}
	return fmt.Errorf("grant: update totals: %w", store.ErrTotalsConflict)
}

func (e *Engine) now() uint64 {
	return uint64(e.clock().Unix())
}

func (e *Engine) requireOwner(ctx context.Context) error {
	caller, err := requireCaller(ctx)
	if err != nil {
		return err
	}
	if caller != e.cfg.Owner {
		return ErrUnauthorized
	}
	return nil
}

// checkRunning rejects state changes before Start and after Stop. It must
// not take stateMu: callers may hold e.mu, which the draining worker needs.
func (e *Engine) checkRunning() error {
	switch e.state.Load() {
	case stateNew:
		return ErrNotStarted
	case stateStopped:
		return ErrStopped
	}
	return nil
}

// begin starts a settlement and emits its lifecycle hooks. e.mu must be held.
func (e *Engine) begin(ctx context.Context, s *settlement.Settlement) (*settlement.Settlement, error) {
	if err := e.checkRunning(); err != nil {
		return nil, err
	}
	started, err := e.coord.Begin(ctx, s)
	if errors.Is(err, settlement.ErrDispatchFailed) && started != nil {
		e.plugins.EmitSettlementResolved(ctx, started)
		return started, err
	}
	if err != nil {
		return nil, err
	}

	e.plugins.EmitSettlementStarted(ctx, started)
	return started, nil
}
