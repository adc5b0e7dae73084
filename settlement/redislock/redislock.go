// Package redislock provides a settlement.Locker shared by every engine
// process connected to the same Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/grant/id"
	"github.com/xraph/grant/settlement"
)

// DefaultPrefix namespaces lock keys.
const DefaultPrefix = "grant:pending"

// lease is the value stored under a participant's key.
type lease struct {
	Settlement string `msgpack:"settlement"`
	Owner      string `msgpack:"owner,omitempty"`
	AcquiredAt int64  `msgpack:"acquired_at"`
}

// Locker implements settlement.Locker with SET NX. Leases never expire;
// a stuck participant is cleared through the coordinator's Unstick.
type Locker struct {
	client *redis.Client
	prefix string
	owner  string
}

// Option configures a Locker.
type Option func(*Locker)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// WithOwner tags every lease with the acquiring process, for diagnostics.
func WithOwner(owner string) Option {
	return func(l *Locker) { l.owner = owner }
}

// New returns a Locker on client.
func New(client *redis.Client, opts ...Option) *Locker {
	l := &Locker{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locker) key(participant string) string {
	return l.prefix + ":" + participant
}

// Acquire implements settlement.Locker.
func (l *Locker) Acquire(ctx context.Context, participant string, holder id.SettlementID) error {
	data, err := msgpack.Marshal(lease{
		Settlement: holder.String(),
		Owner:      l.owner,
		AcquiredAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("redislock: encode lease: %w", err)
	}

	ok, err := l.client.SetNX(ctx, l.key(participant), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redislock: acquire %q: %w", participant, err)
	}
	if !ok {
		return settlement.ErrOperationInProgress
	}
	return nil
}

// Release implements settlement.Locker. The key is deleted only if it still
// names holder, checked and deleted inside one WATCH transaction.
func (l *Locker) Release(ctx context.Context, participant string, holder id.SettlementID) error {
	key := l.key(participant)

	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readLease(ctx, tx, key)
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.Settlement != holder.String() {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("redislock: release %q: %w", participant, err)
	}
	return nil
}

// Holder implements settlement.Locker.
func (l *Locker) Holder(ctx context.Context, participant string) (id.SettlementID, bool, error) {
	cur, err := readLease(ctx, l.client, l.key(participant))
	if errors.Is(err, redis.Nil) {
		return id.Nil, false, nil
	}
	if err != nil {
		return id.Nil, false, fmt.Errorf("redislock: holder %q: %w", participant, err)
	}

	sid, err := id.ParseSettlementID(cur.Settlement)
	if err != nil {
		return id.Nil, false, fmt.Errorf("redislock: holder %q: %w", participant, err)
	}
	return sid, true, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readLease(ctx context.Context, c getter, key string) (lease, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return lease{}, err
	}
	var cur lease
	if err := msgpack.Unmarshal(data, &cur); err != nil {
		return lease{}, fmt.Errorf("decode lease: %w", err)
	}
	return cur, nil
}

var _ settlement.Locker = (*Locker)(nil)
