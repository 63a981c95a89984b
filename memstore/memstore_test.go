package memstore

import (
	"context"
	"path/filepath"
	"testing"

	sop "github.com/sharedcode/shardstore"
	"github.com/sharedcode/shardstore/btree"
)

func TestNodeRepositoryAddGetUpdateRemove(t *testing.T) {
	repo := NewNodeRepository[string, string]()
	n := &btree.Node[string, string]{ID: sop.NewUUID()}
	repo.Add(n)
	ctx := context.Background()
	got, err := repo.Get(ctx, n.ID)
	if err != nil || got != n {
		t.Fatalf("expected Get to return the added node, got %v (err=%v)", got, err)
	}
	repo.Remove(n.ID)
	got, err = repo.Get(ctx, n.ID)
	if err != nil || got != nil {
		t.Fatalf("expected Get to return nil after Remove, got %v", got)
	}
}

func TestNodeRepositorySnapshotRestore(t *testing.T) {
	repo := NewNodeRepository[string, string]()
	n1 := &btree.Node[string, string]{ID: sop.NewUUID()}
	n2 := &btree.Node[string, string]{ID: sop.NewUUID()}
	repo.Add(n1)
	repo.Add(n2)
	snap := repo.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 nodes in the snapshot, got %d", len(snap))
	}
	fresh := NewNodeRepository[string, string]()
	fresh.Restore(snap)
	ctx := context.Background()
	if got, _ := fresh.Get(ctx, n1.ID); got == nil {
		t.Fatalf("expected restored repository to contain n1")
	}
}

func TestTransactionLifecycle(t *testing.T) {
	txn := NewTransaction(sop.ForWriting, 0)
	ctx := context.Background()
	if txn.HasBegun() {
		t.Fatalf("expected a fresh transaction to not have begun")
	}
	if err := txn.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !txn.HasBegun() {
		t.Fatalf("expected HasBegun to be true after Begin")
	}
	committed := false
	txn.OnCommit(func(ctx context.Context) error {
		committed = true
		return nil
	})
	if err := txn.Phase1Commit(ctx); err != nil {
		t.Fatalf("Phase1Commit: %v", err)
	}
	if err := txn.Phase2Commit(ctx); err != nil {
		t.Fatalf("Phase2Commit: %v", err)
	}
	if !committed {
		t.Fatalf("expected the OnCommit callback to run")
	}
	if txn.HasBegun() {
		t.Fatalf("expected HasBegun to be false after Phase2Commit")
	}
}

func TestTransactionRollback(t *testing.T) {
	txn := NewTransaction(sop.ForWriting, 0)
	ctx := context.Background()
	if err := txn.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := txn.Rollback(ctx, nil); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if txn.HasBegun() {
		t.Fatalf("expected HasBegun to be false after Rollback")
	}
}

func TestSnapshotSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.data")
	n := &btree.Node[string, string]{ID: sop.NewUUID()}
	snap := Snapshot[string, string]{
		StoreInfo: sop.StoreInfo{Name: "test", SlotLength: 4},
		Nodes:     map[sop.UUID]*btree.Node[string, string]{n.ID: n},
	}
	if err := Save(path, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load[string, string](path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.StoreInfo.Name != "test" {
		t.Fatalf("expected loaded StoreInfo.Name==test, got %q", loaded.StoreInfo.Name)
	}
	if len(loaded.Nodes) != 1 {
		t.Fatalf("expected 1 node after round-trip, got %d", len(loaded.Nodes))
	}
}

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.data")
	snap, err := Load[string, string](path)
	if err != nil {
		t.Fatalf("expected a missing file to not be an error, got %v", err)
	}
	if snap.StoreInfo.Name != "" {
		t.Fatalf("expected a zero-value snapshot for a missing file")
	}
}
