package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// DefaultTimeout bounds a single plugin hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so each emit only visits interested plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onAccountsCreated       []OnAccountsCreated
	onSettlementStarted     []OnSettlementStarted
	onSettlementSucceeded   []OnSettlementSucceeded
	onSettlementFailed      []OnSettlementFailed
	onProtocolViolation     []OnProtocolViolation
	onSaleAccountOpened     []OnSaleAccountOpened
	onParticipantRegistered []OnParticipantRegistered
	onPurchase              []OnPurchase
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountsCreated); ok {
		r.onAccountsCreated = append(r.onAccountsCreated, v)
	}
	if v, ok := p.(OnSettlementStarted); ok {
		r.onSettlementStarted = append(r.onSettlementStarted, v)
	}
	if v, ok := p.(OnSettlementSucceeded); ok {
		r.onSettlementSucceeded = append(r.onSettlementSucceeded, v)
	}
	if v, ok := p.(OnSettlementFailed); ok {
		r.onSettlementFailed = append(r.onSettlementFailed, v)
	}
	if v, ok := p.(OnProtocolViolation); ok {
		r.onProtocolViolation = append(r.onProtocolViolation, v)
	}
	if v, ok := p.(OnSaleAccountOpened); ok {
		r.onSaleAccountOpened = append(r.onSaleAccountOpened, v)
	}
	if v, ok := p.(OnParticipantRegistered); ok {
		r.onParticipantRegistered = append(r.onParticipantRegistered, v)
	}
	if v, ok := p.(OnPurchase); ok {
		r.onPurchase = append(r.onPurchase, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnAccountsCreated", reflect.TypeOf((*OnAccountsCreated)(nil)).Elem()},
	{"OnSettlementStarted", reflect.TypeOf((*OnSettlementStarted)(nil)).Elem()},
	{"OnSettlementSucceeded", reflect.TypeOf((*OnSettlementSucceeded)(nil)).Elem()},
	{"OnSettlementFailed", reflect.TypeOf((*OnSettlementFailed)(nil)).Elem()},
	{"OnProtocolViolation", reflect.TypeOf((*OnProtocolViolation)(nil)).Elem()},
	{"OnSaleAccountOpened", reflect.TypeOf((*OnSaleAccountOpened)(nil)).Elem()},
	{"OnParticipantRegistered", reflect.TypeOf((*OnParticipantRegistered)(nil)).Elem()},
	{"OnPurchase", reflect.TypeOf((*OnPurchase)(nil)).Elem()},
}

// implementedInterfaces returns the hook interfaces implemented by p.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in hooks, logging failures. A failing or
// slow plugin never blocks the settlement pipeline.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, fn func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitAccountsCreated emits an accounts created event.
func (r *Registry) EmitAccountsCreated(ctx context.Context, accounts []*vesting.Account) {
	r.mu.RLock()
	plugins := r.onAccountsCreated
	r.mu.RUnlock()

	emit(ctx, r, "OnAccountsCreated", plugins, func(p OnAccountsCreated) error {
		return p.OnAccountsCreated(ctx, accounts)
	})
}

// EmitSettlementStarted emits a settlement started event.
func (r *Registry) EmitSettlementStarted(ctx context.Context, s *settlement.Settlement) {
	r.mu.RLock()
	plugins := r.onSettlementStarted
	r.mu.RUnlock()

	emit(ctx, r, "OnSettlementStarted", plugins, func(p OnSettlementStarted) error {
		return p.OnSettlementStarted(ctx, s)
	})
}

// EmitSettlementResolved emits OnSettlementSucceeded or OnSettlementFailed
// depending on the final status.
func (r *Registry) EmitSettlementResolved(ctx context.Context, s *settlement.Settlement) {
	r.mu.RLock()
	succeeded := r.onSettlementSucceeded
	failed := r.onSettlementFailed
	r.mu.RUnlock()

	if s.Status == settlement.StatusSucceeded {
		emit(ctx, r, "OnSettlementSucceeded", succeeded, func(p OnSettlementSucceeded) error {
			return p.OnSettlementSucceeded(ctx, s)
		})
		return
	}
	emit(ctx, r, "OnSettlementFailed", failed, func(p OnSettlementFailed) error {
		return p.OnSettlementFailed(ctx, s)
	})
}

// EmitProtocolViolation emits a protocol violation event.
func (r *Registry) EmitProtocolViolation(ctx context.Context, correlation string, err error) {
	r.mu.RLock()
	plugins := r.onProtocolViolation
	r.mu.RUnlock()

	emit(ctx, r, "OnProtocolViolation", plugins, func(p OnProtocolViolation) error {
		return p.OnProtocolViolation(ctx, correlation, err)
	})
}

// EmitSaleAccountOpened emits a sale account opened event.
func (r *Registry) EmitSaleAccountOpened(ctx context.Context, participant string) {
	r.mu.RLock()
	plugins := r.onSaleAccountOpened
	r.mu.RUnlock()

	emit(ctx, r, "OnSaleAccountOpened", plugins, func(p OnSaleAccountOpened) error {
		return p.OnSaleAccountOpened(ctx, participant)
	})
}

// EmitParticipantRegistered emits a participant registered event.
func (r *Registry) EmitParticipantRegistered(ctx context.Context, account *allocation.Account) {
	r.mu.RLock()
	plugins := r.onParticipantRegistered
	r.mu.RUnlock()

	emit(ctx, r, "OnParticipantRegistered", plugins, func(p OnParticipantRegistered) error {
		return p.OnParticipantRegistered(ctx, account)
	})
}

// EmitPurchase emits a purchase event.
func (r *Registry) EmitPurchase(ctx context.Context, account *allocation.Account, payment, tokens types.Amount) {
	r.mu.RLock()
	plugins := r.onPurchase
	r.mu.RUnlock()

	emit(ctx, r, "OnPurchase", plugins, func(p OnPurchase) error {
		return p.OnPurchase(ctx, account, payment, tokens)
	})
}

// callWithTimeout calls a plugin function with a timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
