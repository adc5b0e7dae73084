package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/grant/id"
	"github.com/xraph/grant/types"
)

// Handler implements one Kind of saga.
type Handler interface {
	Kind() Kind
	// Apply validates and performs the optimistic local change, filling in
	// whatever s needs to be inverted later. Nothing may be written on error.
	Apply(ctx context.Context, s *Settlement) error
	// Dispatch issues exactly one external call for s. reply must be invoked
	// once with the outcome if and only if Dispatch returns nil.
	Dispatch(ctx context.Context, s *Settlement, reply func(Outcome)) error
	// Finalize runs on a successful outcome. An error rejects the outcome and
	// the change is compensated.
	Finalize(ctx context.Context, s *Settlement, o Outcome) error
	// Compensate performs the exact inverse of Apply.
	Compensate(ctx context.Context, s *Settlement) error
}

// Coordinator runs settlements: guard, optimistic apply, external call, and
// a single resolution that either finalizes or compensates.
type Coordinator struct {
	mu       sync.Mutex
	store    Store
	locker   Locker
	handlers map[Kind]Handler
	deliver  func(Outcome)
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLocker replaces the in-process locker.
func WithLocker(l Locker) Option {
	return func(c *Coordinator) { c.locker = l }
}

// WithHandler registers a saga handler for its kind.
func WithHandler(h Handler) Option {
	return func(c *Coordinator) { c.handlers[h.Kind()] = h }
}

// WithDelivery sets how external replies reach Resolve. The default resolves
// each reply on its own goroutine.
func WithDelivery(fn func(Outcome)) Option {
	return func(c *Coordinator) { c.deliver = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock sets the time source for resolution timestamps.
func WithClock(fn func() time.Time) Option {
	return func(c *Coordinator) { c.clock = fn }
}

// NewCoordinator creates a Coordinator backed by store.
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		locker:   NewMemoryLocker(),
		handlers: make(map[Kind]Handler),
		logger:   slog.Default(),
		clock:    time.Now,
	}
	c.deliver = func(o Outcome) {
		go func() {
			if _, err := c.Resolve(context.Background(), o); err != nil {
				c.logger.Error("settlement resolution failed", "correlation", o.Correlation.Key(), "error", err)
			}
		}()
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Locker returns the participant locker.
func (c *Coordinator) Locker() Locker { return c.locker }

// Begin starts a settlement for s.Participant. The participant must be Idle.
//
// On success the record is persisted as pending and the external call is in
// flight. If the external call is not accepted, the settlement is resolved as
// failed before Begin returns, and the returned error wraps ErrDispatchFailed.
func (c *Coordinator) Begin(ctx context.Context, s *Settlement) (*Settlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handlers[s.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, s.Kind)
	}

	if s.ID.IsNil() {
		s.ID = id.NewSettlementID()
	}
	s.Entity = types.NewEntity()
	s.Status = StatusPending

	if err := c.locker.Acquire(ctx, s.Participant, s.ID); err != nil {
		if errors.Is(err, ErrOperationInProgress) {
			c.logger.Error("settlement rejected: participant pending",
				"participant", s.Participant,
				"kind", s.Kind,
			)
		}
		return nil, err
	}

	if err := h.Apply(ctx, s); err != nil {
		c.release(ctx, s)
		return nil, err
	}

	if err := c.store.CreateSettlement(ctx, s); err != nil {
		if cerr := h.Compensate(ctx, s); cerr != nil {
			c.logger.Error("compensation after failed record write", "settlement", s.ID.String(), "error", cerr)
			return nil, errors.Join(err, cerr)
		}
		c.release(ctx, s)
		return nil, err
	}

	c.logger.Debug("settlement started",
		"settlement", s.ID.String(),
		"participant", s.Participant,
		"kind", s.Kind,
		"amount", s.Amount.String(),
	)

	if err := h.Dispatch(ctx, s, c.deliver); err != nil {
		c.logger.Warn("external call not accepted",
			"settlement", s.ID.String(),
			"kind", s.Kind,
			"error", err,
		)
		resolved, rerr := c.resolveLocked(ctx, Outcome{Correlation: s.Correlation(), Err: err})
		if rerr != nil {
			return s, errors.Join(fmt.Errorf("%w: %w", ErrDispatchFailed, err), rerr)
		}
		return resolved, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	return s, nil
}

// Resolve consumes the single outcome owed to a settlement. A second outcome
// for the same correlation, or an outcome for an unknown correlation, fails
// with ErrDuplicateResolution and changes nothing.
func (c *Coordinator) Resolve(ctx context.Context, o Outcome) (*Settlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resolveLocked(ctx, o)
}

func (c *Coordinator) resolveLocked(ctx context.Context, o Outcome) (*Settlement, error) {
	s, err := c.store.GetSettlement(ctx, o.Correlation.Settlement)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown correlation %s", ErrDuplicateResolution, o.Correlation.Key())
	}
	if err != nil {
		return nil, err
	}
	if s.Participant != o.Correlation.Participant || s.Kind != o.Correlation.Kind {
		return nil, fmt.Errorf("%w: correlation %s does not match settlement", ErrDuplicateResolution, o.Correlation.Key())
	}
	if s.Status.Terminal() {
		return s, fmt.Errorf("%w: %s already %s", ErrDuplicateResolution, s.ID.String(), s.Status)
	}
	if s.Status == StatusResolving {
		c.logger.Warn("completing interrupted resolution",
			"settlement", s.ID.String(),
			"participant", s.Participant,
			"resolution", s.Resolution,
		)
		return c.complete(ctx, s)
	}

	h, ok := c.handlers[s.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, s.Kind)
	}

	next := *s
	if o.Err == nil {
		next.Resolution = StatusSucceeded
		next.Reference = o.Reference
	} else {
		next.Resolution = StatusCompensated
		next.Failure = o.Err.Error()
	}
	if err := c.claim(ctx, &next, StatusPending); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, fmt.Errorf("%w: %s resolved concurrently", ErrDuplicateResolution, s.ID.String())
		}
		return nil, err
	}

	if err := c.settle(ctx, h, &next, o); err != nil {
		c.reopen(ctx, s)
		return nil, err
	}

	resolved, err := c.complete(ctx, &next)
	if err != nil {
		return nil, err
	}

	c.logger.Info("settlement resolved",
		"settlement", resolved.ID.String(),
		"participant", resolved.Participant,
		"kind", resolved.Kind,
		"status", resolved.Status,
	)

	return resolved, nil
}

// settle runs the handler side of a claimed resolution. On error nothing the
// handler wrote remains.
func (c *Coordinator) settle(ctx context.Context, h Handler, s *Settlement, o Outcome) error {
	if s.Resolution == StatusSucceeded {
		ferr := h.Finalize(ctx, s, o)
		if ferr == nil {
			return nil
		}
		s.Resolution = StatusRejected
		s.Reference = ""
		s.Failure = ferr.Error()
		if err := c.claim(ctx, s, StatusResolving); err != nil {
			return err
		}
	}
	if cerr := h.Compensate(ctx, s); cerr != nil {
		return fmt.Errorf("settlement: compensate %s: %w", s.ID.String(), cerr)
	}
	return nil
}

// Unstick resolves the participant's pending settlement without an external
// reply. With succeeded the optimistic change is kept as is; otherwise it is
// compensated. Either way the record ends abandoned and any later reply is a
// duplicate.
func (c *Coordinator) Unstick(ctx context.Context, participant string, succeeded bool) (*Settlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	holder, held, err := c.locker.Holder(ctx, participant)
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, ErrNotPending
	}

	s, err := c.store.GetSettlement(ctx, holder)
	if errors.Is(err, ErrNotFound) {
		// The lock outlived its record; clear it.
		if rerr := c.locker.Release(ctx, participant, holder); rerr != nil {
			return nil, rerr
		}
		return nil, fmt.Errorf("%w: stale lock for %q cleared", ErrNotFound, participant)
	}
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return s, c.locker.Release(ctx, participant, holder)
	}
	if s.Status == StatusResolving {
		return c.complete(ctx, s)
	}

	h, ok := c.handlers[s.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, s.Kind)
	}

	next := *s
	next.Resolution = StatusAbandoned
	next.Failure = "abandoned: optimistic change kept"
	if !succeeded {
		next.Failure = "abandoned: compensated"
	}
	if err := c.claim(ctx, &next, StatusPending); err != nil {
		return nil, err
	}
	if !succeeded {
		if cerr := h.Compensate(ctx, &next); cerr != nil {
			c.reopen(ctx, s)
			return nil, fmt.Errorf("settlement: compensate %s: %w", s.ID.String(), cerr)
		}
	}

	resolved, err := c.complete(ctx, &next)
	if err != nil {
		return nil, err
	}

	c.logger.Warn("settlement abandoned",
		"settlement", resolved.ID.String(),
		"participant", participant,
		"kind", resolved.Kind,
		"kept", succeeded,
	)

	return resolved, nil
}

// IsPending reports whether participant has a settlement in flight.
func (c *Coordinator) IsPending(ctx context.Context, participant string) (bool, error) {
	_, held, err := c.locker.Holder(ctx, participant)
	return held, err
}

// claim moves s to resolving with its decision in s.Resolution. Only the
// caller whose write succeeds may run the handler.
func (c *Coordinator) claim(ctx context.Context, s *Settlement, expected Status) error {
	s.Status = StatusResolving
	s.Touch()
	if err := c.store.UpdateSettlement(ctx, s, expected); err != nil {
		return fmt.Errorf("settlement: claim %s: %w", s.ID.String(), err)
	}
	return nil
}

// reopen returns a claimed record to pending after its handler failed, so a
// retry runs the handler again.
func (c *Coordinator) reopen(ctx context.Context, orig *Settlement) {
	if err := c.store.UpdateSettlement(ctx, orig, StatusResolving); err != nil {
		c.logger.Error("settlement left resolving after handler failure",
			"settlement", orig.ID.String(),
			"participant", orig.Participant,
			"error", err,
		)
	}
}

// complete writes the terminal status held in s.Resolution and releases the
// participant. A record already resolving is finished without running its
// handler again.
func (c *Coordinator) complete(ctx context.Context, s *Settlement) (*Settlement, error) {
	if !s.Resolution.Terminal() {
		return nil, fmt.Errorf("settlement: %s resolving without a resolution", s.ID.String())
	}

	next := *s
	next.Status = next.Resolution
	now := c.clock().UTC()
	next.ResolvedAt = &now
	next.Touch()

	if err := c.store.UpdateSettlement(ctx, &next, StatusResolving); err != nil {
		return nil, fmt.Errorf("settlement: record %s: %w", next.ID.String(), err)
	}
	c.release(ctx, &next)
	return &next, nil
}

func (c *Coordinator) release(ctx context.Context, s *Settlement) {
	if err := c.locker.Release(ctx, s.Participant, s.ID); err != nil {
		c.logger.Error("failed to release participant lock",
			"participant", s.Participant,
			"settlement", s.ID.String(),
			"error", err,
		)
	}
}
