package store

import (
	"context"
	"sync"
	"time"

	"privylocker/internal/locker/ports"
	dErrors "privylocker/pkg/domain-errors"
)

// numShards spreads transactions across per-principal mutexes so that one
// owner's uploads never wait on another owner's.
const numShards = 128

// defaultTxTimeout is the maximum duration of a transaction when the caller
// set no deadline.
const defaultTxTimeout = 5 * time.Second

// ShardedTx serializes transactions per principal (see ports.WithTxScope) and
// commits each one atomically into an InMemory store. Transactions without a
// scope share shard 0.
type ShardedTx struct {
	shards  [numShards]sync.Mutex
	store   *InMemory
	timeout time.Duration
}

func NewShardedTx(store *InMemory) *ShardedTx {
	return &ShardedTx{store: store}
}

// WithTimeout overrides the default transaction timeout.
func (t *ShardedTx) WithTimeout(d time.Duration) *ShardedTx {
	t.timeout = d
	return t
}

func (t *ShardedTx) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := t.store.begin()
	if err := fn(tx); err != nil {
		tx.discard()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.discard()
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	return tx.commit()
}

func (t *ShardedTx) selectShard(ctx context.Context) int {
	if scope := ports.TxScope(ctx); scope != "" {
		return int(hashString(string(scope)) % numShards)
	}
	return 0
}

// hashString is FNV-1a.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
