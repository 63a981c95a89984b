package btree

import (
	"context"

	"github.com/sharedcode/shardstore"
)

// nodeHasNilChild reports whether any of this node's in-use child pointers
// (indices 0..Count) is nil, i.e. this node carries at least one item with no
// attached subtree on one side.
func (node *Node[TK, TV]) nodeHasNilChild() bool {
	if node.ChildrenIDs == nil {
		return false
	}
	for i := 0; i <= node.Count && i < len(node.ChildrenIDs); i++ {
		if node.ChildrenIDs[i] == sop.NilUUID {
			return true
		}
	}
	return false
}

// addItemOnNodeWithNilChild inserts item directly into this node's own slots
// when the child pointer at index has no attached subtree, instead of
// descending. When the node has no room, it materializes a fresh one-item
// leaf and links it in as the child at index. Returns false (without error)
// when the slot at index does have a real subtree, so add's traversal loop
// descends into it as usual.
func (node *Node[TK, TV]) addItemOnNodeWithNilChild(btree *Btree[TK, TV], item *Item[TK, TV], index int) (bool, error) {
	if node.getChildID(index) != sop.NilUUID {
		return false, nil
	}
	if !node.isFull() {
		node.insertSlotItem(item, index)
		btree.saveNode(node)
		return true, nil
	}
	leaf := newNode[TK, TV](btree.getSlotLength())
	leaf.newID(node.ID)
	leaf.Slots[0] = item
	leaf.Count = 1
	btree.saveNode(leaf)
	node.ChildrenIDs[index] = leaf.ID
	btree.saveNode(node)
	return true, nil
}

// goRightUpItemOnNodeWithNilChild handles the moveToNext descent when the
// child at slotIndex has no subtree: the successor is either this node's own
// item at slotIndex, or (when there is none) the nearest ancestor where this
// node's subtree was a left child.
func (node *Node[TK, TV]) goRightUpItemOnNodeWithNilChild(ctx context.Context, btree *Btree[TK, TV], slotIndex int) (bool, error) {
	if node.getChildID(slotIndex) != sop.NilUUID {
		return false, nil
	}
	if slotIndex < node.Count {
		btree.setCurrentItemID(node.ID, slotIndex)
		return true, nil
	}
	n := node
	for {
		if n.isRootNode() {
			btree.setCurrentItemID(sop.NilUUID, 0)
			return true, nil
		}
		p, err := n.getParent(ctx, btree)
		if err != nil {
			return false, err
		}
		idx := p.getIndexOfChild(n)
		if idx < p.Count {
			btree.setCurrentItemID(p.ID, idx)
			return true, nil
		}
		n = p
	}
}

// goLeftUpItemOnNodeWithNilChild is the mirror of goRightUpItemOnNodeWithNilChild
// for moveToPrevious.
func (node *Node[TK, TV]) goLeftUpItemOnNodeWithNilChild(ctx context.Context, btree *Btree[TK, TV], slotIndex int) (bool, error) {
	if node.getChildID(slotIndex) != sop.NilUUID {
		return false, nil
	}
	if slotIndex-1 >= 0 {
		btree.setCurrentItemID(node.ID, slotIndex-1)
		return true, nil
	}
	n := node
	for {
		if n.isRootNode() {
			btree.setCurrentItemID(sop.NilUUID, 0)
			return true, nil
		}
		p, err := n.getParent(ctx, btree)
		if err != nil {
			return false, err
		}
		idx := p.getIndexOfChild(n) - 1
		if idx >= 0 {
			btree.setCurrentItemID(p.ID, idx)
			return true, nil
		}
		n = p
	}
}

// distributeItemOnNodeWithNilChild is only reachable when StoreInfo.LeafLoadBalancing
// is enabled; this store defaults it off, so sibling
// distribution never fires and full nodes always split instead.
func (node *Node[TK, TV]) distributeItemOnNodeWithNilChild(btree *Btree[TK, TV], item *Item[TK, TV]) bool {
	return false
}

// unlinkNodeWithNilChild handles removal of a now-empty node that still has a
// surviving subtree attached on one side (it accrued that subtree through
// addItemOnNodeWithNilChild's direct-insert path): the surviving child is
// promoted to take this node's place in the parent. Returns false when this
// node is a plain, childless leaf, so the caller falls through to the normal
// unlink.
func (node *Node[TK, TV]) unlinkNodeWithNilChild(ctx context.Context, btree *Btree[TK, TV]) (bool, error) {
	if !node.hasChildren() {
		return false, nil
	}
	var childID sop.UUID
	for _, id := range node.ChildrenIDs {
		if id != sop.NilUUID {
			childID = id
			break
		}
	}
	if childID.IsNil() {
		return false, nil
	}
	p, err := node.getParent(ctx, btree)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, nil
	}
	child, err := btree.getNode(ctx, childID)
	if err != nil {
		return false, err
	}
	i := p.getIndexOfChild(node)
	p.ChildrenIDs[i] = childID
	if child != nil {
		child.ParentID = p.ID
		btree.saveNode(child)
	}
	btree.saveNode(p)
	btree.removeNode(node)
	return true, nil
}
