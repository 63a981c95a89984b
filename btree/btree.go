package btree

import (
	"context"
	"fmt"

	"github.com/sharedcode/shardstore"
)

// currentItemRef tracks the (node, slot) position the cursor last landed on.
type currentItemRef struct {
	nodeID        sop.UUID
	nodeItemIndex int
}

func (r currentItemRef) getNodeItemIndex() int {
	return r.nodeItemIndex
}

// distributeAction carries a pending sibling-distribution request produced by
// addOnLeaf/distributeToLeft/distributeToRight for the controller to resolve.
type distributeAction[TK Ordered, TV any] struct {
	sourceNode       *Node[TK, TV]
	item             *Item[TK, TV]
	distributeToLeft bool
}

// promoteAction carries a pending promotion of a split's middle item into its
// parent, produced by addOnLeaf/promote.
type promoteAction[TK Ordered, TV any] struct {
	targetNode *Node[TK, TV]
	slotIndex  int
}

// Btree is the concrete, generic ordered B-tree. It holds no data of its own;
// every node lives in the injected StoreInterface, so many Btree values can
// share one backend while each transaction gets a fresh Btree wrapping the
// same StoreInfo/StoreInterface pair.
type Btree[TK Ordered, TV any] struct {
	StoreInfo      sop.StoreInfo
	storeInterface *StoreInterface[TK, TV]
	comparer       ComparerFunc[TK]

	currentItemRef currentItemRef
	currentItem    *Item[TK, TV]

	// known tracks node IDs already present in the backend (fetched or already
	// staged this transaction), so saveNode can pick Add vs Update the way the
	// NodeRepository contract expects.
	known map[sop.UUID]struct{}

	tempSlots          []*Item[TK, TV]
	tempChildren       []sop.UUID
	tempParent         *Item[TK, TV]
	tempParentChildren [2]sop.UUID

	distributeAction distributeAction[TK, TV]
	promoteAction    promoteAction[TK, TV]
}

// NewBtree wires a Btree around a StoreInfo/StoreInterface pair. When cmp is
// nil, keys are compared with the package-level Compare fallback (handling
// built-in ordered types, UUIDs, time.Time and Comparer implementations).
func NewBtree[TK Ordered, TV any](storeInfo sop.StoreInfo, si *StoreInterface[TK, TV], cmp ComparerFunc[TK]) *Btree[TK, TV] {
	if cmp == nil {
		cmp = func(a, b TK) int { return Compare(any(a), any(b)) }
	}
	slotLength := storeInfo.SlotLength
	if slotLength < 2 {
		slotLength = 2
	}
	return &Btree[TK, TV]{
		StoreInfo:      storeInfo,
		storeInterface: si,
		comparer:       cmp,
		known:          make(map[sop.UUID]struct{}),
		tempSlots:      make([]*Item[TK, TV], slotLength+1),
		tempChildren:   make([]sop.UUID, slotLength+2),
	}
}

func (b *Btree[TK, TV]) compare(x, y TK) int {
	return b.comparer(x, y)
}

func (b *Btree[TK, TV]) getSlotLength() int {
	return b.StoreInfo.SlotLength
}

func (b *Btree[TK, TV]) isUnique() bool {
	return b.StoreInfo.IsUnique
}

// IsUnique reports whether the tree enforces unique keys.
func (b *Btree[TK, TV]) IsUnique() bool {
	return b.StoreInfo.IsUnique
}

// Count returns the number of items persisted in this tree.
func (b *Btree[TK, TV]) Count() int64 {
	return b.StoreInfo.Count
}

// GetStoreInfo returns the tree's StoreInfo.
func (b *Btree[TK, TV]) GetStoreInfo() sop.StoreInfo {
	return b.StoreInfo
}

func (b *Btree[TK, TV]) setCurrentItemID(nodeID sop.UUID, index int) {
	b.currentItemRef = currentItemRef{nodeID: nodeID, nodeItemIndex: index}
	b.currentItem = nil
}

// rootNode returns the tree's root node, lazily creating it (and minting a
// RootNodeID) the first time the tree is used.
func (b *Btree[TK, TV]) rootNode(ctx context.Context) (*Node[TK, TV], error) {
	if b.StoreInfo.RootNodeID.IsNil() {
		root := newNode[TK, TV](b.getSlotLength())
		root.newID(sop.NilUUID)
		b.StoreInfo.RootNodeID = root.ID
		b.saveNode(root)
		return root, nil
	}
	return b.getNode(ctx, b.StoreInfo.RootNodeID)
}

func (b *Btree[TK, TV]) getNode(ctx context.Context, id sop.UUID) (*Node[TK, TV], error) {
	if id.IsNil() {
		return nil, nil
	}
	n, err := b.storeInterface.NodeRepository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n != nil {
		if _, ok := b.known[id]; !ok {
			b.known[id] = struct{}{}
			b.storeInterface.NodeRepository.Fetched(id)
		}
	}
	return n, nil
}

// saveNode stages node for Add on its first save this transaction, Update on
// every subsequent save, per the NodeRepository contract.
func (b *Btree[TK, TV]) saveNode(node *Node[TK, TV]) {
	if _, ok := b.known[node.ID]; ok {
		b.storeInterface.NodeRepository.Update(node)
		return
	}
	b.known[node.ID] = struct{}{}
	b.storeInterface.NodeRepository.Add(node)
}

func (b *Btree[TK, TV]) removeNode(node *Node[TK, TV]) {
	delete(b.known, node.ID)
	b.storeInterface.NodeRepository.Remove(node.ID)
}

func (b *Btree[TK, TV]) currentNode(ctx context.Context) (*Node[TK, TV], error) {
	if b.currentItemRef.nodeID.IsNil() {
		return nil, nil
	}
	return b.getNode(ctx, b.currentItemRef.nodeID)
}

// Add adds an item to the B-tree without checking for duplicates (unless the
// tree is configured IsUnique, in which case a duplicate key is rejected).
func (b *Btree[TK, TV]) Add(ctx context.Context, key TK, value TV) (bool, error) {
	item := newItem(key, value)
	root, err := b.rootNode(ctx)
	if err != nil {
		return false, err
	}
	b.distributeAction = distributeAction[TK, TV]{}
	b.promoteAction = promoteAction[TK, TV]{}
	ok, err := root.add(ctx, b, item)
	if err != nil || !ok {
		return ok, err
	}
	if err := b.resolvePendingActions(ctx); err != nil {
		return false, err
	}
	if err := b.storeInterface.ItemActionTracker.Add(ctx, item); err != nil {
		return false, err
	}
	b.StoreInfo.Count++
	return true, nil
}

// resolvePendingActions drains the distribute/promote requests that addOnLeaf
// and promote stage on the tree instead of acting on directly, since both may
// need to recurse into ancestors the leaf-level code has no reference to.
func (b *Btree[TK, TV]) resolvePendingActions(ctx context.Context) error {
	for {
		if b.distributeAction.sourceNode != nil {
			node := b.distributeAction.sourceNode
			item := b.distributeAction.item
			toLeft := b.distributeAction.distributeToLeft
			b.distributeAction = distributeAction[TK, TV]{}
			var err error
			if toLeft {
				err = node.distributeToLeft(ctx, b, item)
			} else {
				err = node.distributeToRight(ctx, b, item)
			}
			if err != nil {
				return err
			}
			continue
		}
		if b.promoteAction.targetNode != nil {
			target := b.promoteAction.targetNode
			idx := b.promoteAction.slotIndex
			b.promoteAction = promoteAction[TK, TV]{}
			if err := target.promote(ctx, b, idx); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

// AddIfNotExist adds the item only if no item with the same key exists.
func (b *Btree[TK, TV]) AddIfNotExist(ctx context.Context, key TK, value TV) (bool, error) {
	found, err := b.Find(ctx, key, false)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	return b.Add(ctx, key, value)
}

// Update finds the item with key and replaces its value.
func (b *Btree[TK, TV]) Update(ctx context.Context, key TK, value TV) (bool, error) {
	found, err := b.Find(ctx, key, false)
	if err != nil || !found {
		return false, err
	}
	return b.UpdateCurrentValue(ctx, value)
}

// UpdateKey finds the item with key and updates its Key to the same value
// (a no-op rewrite retained for interface symmetry with UpdateCurrentKey).
func (b *Btree[TK, TV]) UpdateKey(ctx context.Context, key TK) (bool, error) {
	found, err := b.Find(ctx, key, false)
	if err != nil || !found {
		return false, err
	}
	return b.UpdateCurrentKey(ctx, key)
}

// UpdateCurrentKey updates the current item's key, refusing changes that
// would break the node's sort order.
func (b *Btree[TK, TV]) UpdateCurrentKey(ctx context.Context, key TK) (bool, error) {
	node, err := b.currentNode(ctx)
	if err != nil || node == nil {
		return false, err
	}
	idx := b.currentItemRef.getNodeItemIndex()
	if idx < 0 || idx >= node.Count {
		return false, nil
	}
	if idx > 0 && b.compare(node.Slots[idx-1].Key, key) >= 0 {
		return false, fmt.Errorf("btree: key change would break sort order")
	}
	if idx < node.Count-1 && b.compare(key, node.Slots[idx+1].Key) >= 0 {
		return false, fmt.Errorf("btree: key change would break sort order")
	}
	node.Slots[idx].Key = key
	b.saveNode(node)
	return true, nil
}

// UpdateCurrentValue updates the current item's value.
func (b *Btree[TK, TV]) UpdateCurrentValue(ctx context.Context, newValue TV) (bool, error) {
	node, err := b.currentNode(ctx)
	if err != nil || node == nil {
		return false, err
	}
	idx := b.currentItemRef.getNodeItemIndex()
	if idx < 0 || idx >= node.Count {
		return false, nil
	}
	item := node.Slots[idx]
	item.Value = &newValue
	item.Version++
	if err := b.storeInterface.ItemActionTracker.Update(ctx, item); err != nil {
		return false, err
	}
	b.saveNode(node)
	return true, nil
}

// UpdateCurrentItem updates both key and value of the current item.
func (b *Btree[TK, TV]) UpdateCurrentItem(ctx context.Context, key TK, value TV) (bool, error) {
	if ok, err := b.UpdateCurrentKey(ctx, key); err != nil || !ok {
		return ok, err
	}
	return b.UpdateCurrentValue(ctx, value)
}

// Upsert adds the item if absent, otherwise updates its value.
func (b *Btree[TK, TV]) Upsert(ctx context.Context, key TK, value TV) (bool, error) {
	found, err := b.Find(ctx, key, false)
	if err != nil {
		return false, err
	}
	if found {
		return b.UpdateCurrentValue(ctx, value)
	}
	return b.Add(ctx, key, value)
}

// Remove finds the item with key and removes it.
func (b *Btree[TK, TV]) Remove(ctx context.Context, key TK) (bool, error) {
	found, err := b.Find(ctx, key, false)
	if err != nil || !found {
		return false, err
	}
	return b.RemoveCurrentItem(ctx)
}

// RemoveCurrentItem removes the current key/value pair.
func (b *Btree[TK, TV]) RemoveCurrentItem(ctx context.Context) (bool, error) {
	node, err := b.currentNode(ctx)
	if err != nil || node == nil {
		return false, nil
	}
	if err := node.fixVacatedSlot(ctx, b); err != nil {
		return false, err
	}
	b.StoreInfo.Count--
	return true, nil
}

// Find searches for key, positioning the cursor on the match. When not found,
// the cursor is left on a nearby item of the leaf the search ended in, which
// is smaller than key when key lies past that leaf's last item.
func (b *Btree[TK, TV]) Find(ctx context.Context, key TK, firstItemWithKey bool) (bool, error) {
	root, err := b.rootNode(ctx)
	if err != nil || root == nil {
		return false, err
	}
	return root.find(ctx, b, key, firstItemWithKey)
}

// FindInDescendingOrder searches for key positioning the cursor for descending
// iteration (Previous walks toward smaller keys from here).
func (b *Btree[TK, TV]) FindInDescendingOrder(ctx context.Context, key TK) (bool, error) {
	root, err := b.rootNode(ctx)
	if err != nil || root == nil {
		return false, err
	}
	return root.findInDescendingOrder(ctx, b, key)
}

// FindWithID searches for key, and among duplicates selects the item whose ID
// matches id.
func (b *Btree[TK, TV]) FindWithID(ctx context.Context, key TK, id sop.UUID) (bool, error) {
	found, err := b.Find(ctx, key, true)
	if err != nil || !found {
		return false, err
	}
	for {
		cur, err := b.GetCurrentItem(ctx)
		if err != nil {
			return false, err
		}
		if cur.ID == id {
			return true, nil
		}
		if b.compare(cur.Key, key) != 0 {
			return false, nil
		}
		ok, err := b.Next(ctx)
		if err != nil || !ok {
			return false, err
		}
	}
}

// GetCurrentKey returns the current item's key and ID. Node lookups here are
// always served from the in-process backend, never a remote round trip, so
// this stays synchronous per the BtreeInterface contract.
func (b *Btree[TK, TV]) GetCurrentKey() Item[TK, TV] {
	var zero Item[TK, TV]
	node, err := b.currentNode(context.Background())
	if err != nil || node == nil {
		return zero
	}
	idx := b.currentItemRef.getNodeItemIndex()
	if idx < 0 || idx >= node.Count {
		return zero
	}
	item := node.Slots[idx]
	return Item[TK, TV]{ID: item.ID, Key: item.Key, Version: item.Version}
}

// GetCurrentValue returns the current item's value.
func (b *Btree[TK, TV]) GetCurrentValue(ctx context.Context) (TV, error) {
	var zero TV
	item, err := b.GetCurrentItem(ctx)
	if err != nil {
		return zero, err
	}
	if item.Value == nil {
		return zero, nil
	}
	return *item.Value, nil
}

// GetCurrentItem returns the current item.
func (b *Btree[TK, TV]) GetCurrentItem(ctx context.Context) (Item[TK, TV], error) {
	var zero Item[TK, TV]
	node, err := b.currentNode(ctx)
	if err != nil || node == nil {
		return zero, err
	}
	idx := b.currentItemRef.getNodeItemIndex()
	if idx < 0 || idx >= node.Count {
		return zero, nil
	}
	item := node.Slots[idx]
	if err := b.storeInterface.ItemActionTracker.Get(ctx, item); err != nil {
		return zero, err
	}
	return *item, nil
}

// First positions the cursor at the smallest key.
func (b *Btree[TK, TV]) First(ctx context.Context) (bool, error) {
	root, err := b.rootNode(ctx)
	if err != nil || root == nil {
		return false, err
	}
	if root.Count == 0 {
		b.setCurrentItemID(sop.NilUUID, 0)
		return false, nil
	}
	return root.moveToFirst(ctx, b)
}

// Last positions the cursor at the largest key.
func (b *Btree[TK, TV]) Last(ctx context.Context) (bool, error) {
	root, err := b.rootNode(ctx)
	if err != nil || root == nil {
		return false, err
	}
	if root.Count == 0 {
		b.setCurrentItemID(sop.NilUUID, 0)
		return false, nil
	}
	return root.moveToLast(ctx, b)
}

// Next advances the cursor to the next item in key order.
func (b *Btree[TK, TV]) Next(ctx context.Context) (bool, error) {
	node, err := b.currentNode(ctx)
	if err != nil || node == nil {
		return false, err
	}
	return node.moveToNext(ctx, b)
}

// Previous moves the cursor to the previous item in key order.
func (b *Btree[TK, TV]) Previous(ctx context.Context) (bool, error) {
	node, err := b.currentNode(ctx)
	if err != nil || node == nil {
		return false, err
	}
	return node.moveToPrevious(ctx, b)
}
