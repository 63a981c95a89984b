package memstore

import (
	"context"
	"sync"
	"time"

	sop "github.com/sharedcode/shardstore"
)

// Transaction is a single-process sop.TwoPhaseCommitTransaction. It performs
// no cross-process conflict detection: since a shard's writer FIFO already
// admits one writer at a time (see kvstore.TokenSource), phase 1/2 are
// trivial no-ops beyond bookkeeping and the OnCommit callback.
type Transaction struct {
	mu       sync.Mutex
	id       sop.UUID
	mode     sop.TransactionMode
	begun    bool
	maxTime  time.Duration
	onCommit func(ctx context.Context) error
}

// NewTransaction returns a Transaction in the given mode with the given
// commit-window cap.
func NewTransaction(mode sop.TransactionMode, maxTime time.Duration) *Transaction {
	if maxTime <= 0 {
		maxTime = 30 * time.Second
	}
	return &Transaction{
		id:      sop.NewUUID(),
		mode:    mode,
		maxTime: maxTime,
	}
}

func (t *Transaction) Begin(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.begun = true
	return nil
}

func (t *Transaction) Phase1Commit(ctx context.Context) error {
	return nil
}

func (t *Transaction) Phase2Commit(ctx context.Context) error {
	t.mu.Lock()
	cb := t.onCommit
	t.begun = false
	t.mu.Unlock()
	if cb != nil {
		return cb(ctx)
	}
	return nil
}

func (t *Transaction) Rollback(ctx context.Context, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.begun = false
	return nil
}

func (t *Transaction) HasBegun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.begun
}

func (t *Transaction) GetMode() sop.TransactionMode {
	return t.mode
}

func (t *Transaction) GetStores(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (t *Transaction) Close() error {
	return nil
}

func (t *Transaction) GetID() sop.UUID {
	return t.id
}

func (t *Transaction) CommitMaxDuration() time.Duration {
	return t.maxTime
}

func (t *Transaction) OnCommit(callback func(ctx context.Context) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCommit = callback
}
