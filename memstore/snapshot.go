package memstore

import (
	"fmt"
	"os"

	sop "github.com/sharedcode/shardstore"
	"github.com/sharedcode/shardstore/btree"
)

// Snapshot is the single-file, JSON-encoded on-disk form of one B-tree: its
// StoreInfo plus every node its NodeRepository holds. A Store opens and
// closes two of them per shard: path.data for the data tree and path.meta
// for the metainfo tree.
type Snapshot[TK btree.Ordered, TV any] struct {
	StoreInfo sop.StoreInfo                `json:"store_info"`
	Nodes     map[sop.UUID]*btree.Node[TK, TV] `json:"nodes"`
	Metainfo  []MetainfoPair                `json:"metainfo"`
}

// MetainfoPair mirrors kvstore.KeyValue without importing kvstore, to avoid a
// dependency cycle (kvstore depends on memstore for its default backend).
type MetainfoPair struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// Save atomically writes snap to path (write to a temp file, then rename).
func Save[TK btree.Ordered, TV any](path string, snap Snapshot[TK, TV]) error {
	m := sop.NewMarshaler()
	data, err := m.Marshal(snap)
	if err != nil {
		return fmt.Errorf("memstore: marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memstore: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("memstore: finalize snapshot: %w", err)
	}
	return nil
}

// Load reads a Snapshot previously written by Save. A missing file is not an
// error: it returns a zero-value Snapshot with StoreInfo.IsEmpty() true, the
// signal callers use to distinguish "opening a new shard" from "opening an
// existing one".
func Load[TK btree.Ordered, TV any](path string) (Snapshot[TK, TV], error) {
	var snap Snapshot[TK, TV]
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("memstore: read snapshot: %w", err)
	}
	m := sop.NewMarshaler()
	if err := m.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("memstore: unmarshal snapshot: %w", err)
	}
	return snap, nil
}
