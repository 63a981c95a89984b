// Package memstore is an in-memory backend for the generic btree package: a
// map-based NodeRepository, a no-op ItemActionTracker, and a single-process
// TwoPhaseCommitTransaction, together with a snapshot codec used by
// kvstore.Store to persist each of a shard's two trees to its own JSON file.
package memstore

import (
	"context"
	"sync"

	"github.com/sharedcode/shardstore/btree"
	sop "github.com/sharedcode/shardstore"
)

// NodeRepository is a map-backed btree.NodeRepository[TK,TV]. It is safe for
// concurrent use; the caller is still responsible for serializing writes
// through Transaction's FIFO discipline.
type NodeRepository[TK btree.Ordered, TV any] struct {
	mu     sync.RWMutex
	lookup map[sop.UUID]*btree.Node[TK, TV]
}

// NewNodeRepository returns an empty NodeRepository.
func NewNodeRepository[TK btree.Ordered, TV any]() *NodeRepository[TK, TV] {
	return &NodeRepository[TK, TV]{
		lookup: make(map[sop.UUID]*btree.Node[TK, TV]),
	}
}

// Add stores node, upserting it into the map.
func (nr *NodeRepository[TK, TV]) Add(n *btree.Node[TK, TV]) {
	nr.mu.Lock()
	defer nr.mu.Unlock()
	nr.lookup[n.ID] = n
}

// Update stores node, upserting it into the map.
func (nr *NodeRepository[TK, TV]) Update(n *btree.Node[TK, TV]) {
	nr.mu.Lock()
	defer nr.mu.Unlock()
	nr.lookup[n.ID] = n
}

// Get returns the node with the given ID, or nil if absent.
func (nr *NodeRepository[TK, TV]) Get(ctx context.Context, nodeID sop.UUID) (*btree.Node[TK, TV], error) {
	nr.mu.RLock()
	defer nr.mu.RUnlock()
	return nr.lookup[nodeID], nil
}

// Fetched is a no-op: an in-memory backend has no version-conflict window to
// track between fetch and commit within one process.
func (nr *NodeRepository[TK, TV]) Fetched(nodeID sop.UUID) {}

// Remove deletes the node with the given ID.
func (nr *NodeRepository[TK, TV]) Remove(nodeID sop.UUID) {
	nr.mu.Lock()
	defer nr.mu.Unlock()
	delete(nr.lookup, nodeID)
}

// Snapshot returns every node currently held, for serialization.
func (nr *NodeRepository[TK, TV]) Snapshot() map[sop.UUID]*btree.Node[TK, TV] {
	nr.mu.RLock()
	defer nr.mu.RUnlock()
	out := make(map[sop.UUID]*btree.Node[TK, TV], len(nr.lookup))
	for k, v := range nr.lookup {
		out[k] = v
	}
	return out
}

// Restore replaces the repository's contents with nodes, used when loading a
// snapshot back from disk.
func (nr *NodeRepository[TK, TV]) Restore(nodes map[sop.UUID]*btree.Node[TK, TV]) {
	nr.mu.Lock()
	defer nr.mu.Unlock()
	nr.lookup = nodes
}
