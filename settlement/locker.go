package settlement

import (
	"context"
	"sync"

	"github.com/xraph/grant/id"
)

// Locker holds the per-participant Idle/Pending state. A participant is
// Pending while exactly one settlement holds its lock.
type Locker interface {
	// Acquire marks participant Pending on behalf of holder, or returns
	// ErrOperationInProgress if it already is.
	Acquire(ctx context.Context, participant string, holder id.SettlementID) error
	// Release returns participant to Idle if holder owns the lock. Releasing
	// a lock held by someone else, or not held at all, is a no-op.
	Release(ctx context.Context, participant string, holder id.SettlementID) error
	// Holder reports the settlement holding participant's lock, if any.
	Holder(ctx context.Context, participant string) (id.SettlementID, bool, error)
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu      sync.Mutex
	holders map[string]id.SettlementID
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{holders: make(map[string]id.SettlementID)}
}

func (l *MemoryLocker) Acquire(_ context.Context, participant string, holder id.SettlementID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.holders[participant]; held {
		return ErrOperationInProgress
	}
	l.holders[participant] = holder
	return nil
}

func (l *MemoryLocker) Release(_ context.Context, participant string, holder id.SettlementID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, held := l.holders[participant]; held && cur.String() == holder.String() {
		delete(l.holders, participant)
	}
	return nil
}

func (l *MemoryLocker) Holder(_ context.Context, participant string) (id.SettlementID, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, held := l.holders[participant]
	return h, held, nil
}

var _ Locker = (*MemoryLocker)(nil)
