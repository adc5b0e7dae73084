package grant

import (
	"context"
	"errors"

	"github.com/xraph/grant/settlement"
)

// Deliver queues the reply of an external call for resolution. It never
// blocks: when the queue is full the reply is resolved on its own goroutine.
// Collaborators receive Deliver (wrapped in their reply callback) and may
// call it from any goroutine, including from inside the request call.
func (e *Engine) Deliver(o settlement.Outcome) {
	select {
	case <-e.stopChan:
		e.logger.Warn("reply arrived after stop, participant stays pending until unstuck",
			"correlation", o.Correlation.Key(),
		)
		return
	default:
	}

	select {
	case e.resolutions <- o:
	default:
		e.logger.Warn("resolution queue full, resolving inline",
			"correlation", o.Correlation.Key(),
		)
		go e.resolveAndLog(context.Background(), o)
	}
}

// Resolve applies the single outcome owed to a settlement, synchronously.
// A success keeps the optimistic change (running the kind's finalization);
// a failure applies its exact inverse. Either way the participant returns to
// Idle. A second call for the same correlation fails with
// ErrDuplicateResolution and changes nothing.
func (e *Engine) Resolve(ctx context.Context, o settlement.Outcome) (*settlement.Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.coord.Resolve(ctx, o)
	if err != nil {
		if errors.Is(err, settlement.ErrDuplicateResolution) {
			e.logger.Error("duplicate resolution rejected",
				"correlation", o.Correlation.Key(),
				"error", err,
			)
			e.plugins.EmitProtocolViolation(ctx, o.Correlation.Key(), err)
		}
		return s, err
	}

	e.afterResolve(ctx, s)
	return s, nil
}

// Unstick resolves the participant's pending settlement without waiting for
// its reply. Owner only. With succeeded the optimistic change is kept;
// otherwise it is compensated. The settlement ends abandoned and a reply that
// arrives later is rejected as a duplicate.
func (e *Engine) Unstick(ctx context.Context, participant string, succeeded bool) (*settlement.Settlement, error) {
	if err := e.requireOwner(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.coord.Unstick(ctx, participant, succeeded)
	if err != nil {
		return nil, err
	}

	e.afterResolve(ctx, s)
	return s, nil
}

func (e *Engine) afterResolve(ctx context.Context, s *settlement.Settlement) {
	e.plugins.EmitSettlementResolved(ctx, s)

	if s.Kind == settlement.KindRegister && s.Status == settlement.StatusSucceeded {
		if acct, err := e.store.GetSaleAccount(ctx, s.Participant); err == nil {
			e.plugins.EmitParticipantRegistered(ctx, acct)
		}
	}
}

func (e *Engine) resolveAndLog(ctx context.Context, o settlement.Outcome) {
	if _, err := e.Resolve(ctx, o); err != nil && !errors.Is(err, settlement.ErrDuplicateResolution) {
		e.logger.Error("failed to resolve settlement",
			"correlation", o.Correlation.Key(),
			"error", err,
		)
	}
}

// resolutionWorker resolves queued replies in arrival order.
func (e *Engine) resolutionWorker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopChan:
			// Final drain
			for {
				select {
				case o := <-e.resolutions:
					e.resolveAndLog(ctx, o)
				default:
					return
				}
			}

		case o := <-e.resolutions:
			e.resolveAndLog(ctx, o)
		}
	}
}
