package memstore

import (
	"context"

	"github.com/sharedcode/shardstore/btree"
)

// ItemActionTracker is a no-op btree.ItemActionTracker: the in-memory backend
// has nothing to reconcile at commit time since every mutation already lands
// directly in NodeRepository's map.
type ItemActionTracker[TK btree.Ordered, TV any] struct{}

// NewItemActionTracker returns a no-op ItemActionTracker.
func NewItemActionTracker[TK btree.Ordered, TV any]() *ItemActionTracker[TK, TV] {
	return &ItemActionTracker[TK, TV]{}
}

func (t *ItemActionTracker[TK, TV]) Add(ctx context.Context, item *btree.Item[TK, TV]) error {
	return nil
}

func (t *ItemActionTracker[TK, TV]) Get(ctx context.Context, item *btree.Item[TK, TV]) error {
	return nil
}

func (t *ItemActionTracker[TK, TV]) Update(ctx context.Context, item *btree.Item[TK, TV]) error {
	return nil
}

func (t *ItemActionTracker[TK, TV]) Remove(ctx context.Context, item *btree.Item[TK, TV]) error {
	return nil
}
