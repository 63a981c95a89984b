package btree

import (
	"context"
	"testing"

	sop "github.com/sharedcode/shardstore"
)

type mapNodeRepository[TK Ordered, TV any] struct {
	nodes map[sop.UUID]*Node[TK, TV]
}

func newMapNodeRepository[TK Ordered, TV any]() *mapNodeRepository[TK, TV] {
	return &mapNodeRepository[TK, TV]{nodes: make(map[sop.UUID]*Node[TK, TV])}
}

func (r *mapNodeRepository[TK, TV]) Add(n *Node[TK, TV])    { r.nodes[n.ID] = n }
func (r *mapNodeRepository[TK, TV]) Update(n *Node[TK, TV]) { r.nodes[n.ID] = n }
func (r *mapNodeRepository[TK, TV]) Get(ctx context.Context, id sop.UUID) (*Node[TK, TV], error) {
	return r.nodes[id], nil
}
func (r *mapNodeRepository[TK, TV]) Fetched(id sop.UUID) {}
func (r *mapNodeRepository[TK, TV]) Remove(id sop.UUID)  { delete(r.nodes, id) }

type noopTracker[TK Ordered, TV any] struct{}

func (noopTracker[TK, TV]) Add(ctx context.Context, item *Item[TK, TV]) error    { return nil }
func (noopTracker[TK, TV]) Get(ctx context.Context, item *Item[TK, TV]) error    { return nil }
func (noopTracker[TK, TV]) Update(ctx context.Context, item *Item[TK, TV]) error { return nil }
func (noopTracker[TK, TV]) Remove(ctx context.Context, item *Item[TK, TV]) error { return nil }

func newTestBtree(t *testing.T, slotLength int) *Btree[string, string] {
	t.Helper()
	si := &StoreInterface[string, string]{
		NodeRepository:    newMapNodeRepository[string, string](),
		ItemActionTracker: noopTracker[string, string]{},
	}
	info := sop.StoreInfo{Name: "test", SlotLength: slotLength, IsUnique: true, IsValueDataInNodeSegment: true}
	return NewBtree[string, string](info, si, nil)
}

func TestBtreeAddFindAcrossManySplits(t *testing.T) {
	ctx := context.Background()
	b := newTestBtree(t, 4)
	keys := []string{"m", "d", "t", "b", "f", "p", "z", "a", "c", "e", "g", "i", "k", "n", "q", "s", "u", "w", "y"}
	for _, k := range keys {
		ok, err := b.Add(ctx, k, "v-"+k)
		if err != nil {
			t.Fatalf("Add(%q): %v", k, err)
		}
		if !ok {
			t.Fatalf("Add(%q) reported false", k)
		}
	}
	if b.Count() != int64(len(keys)) {
		t.Fatalf("expected Count()==%d, got %d", len(keys), b.Count())
	}
	for _, k := range keys {
		found, err := b.Find(ctx, k, false)
		if err != nil {
			t.Fatalf("Find(%q): %v", k, err)
		}
		if !found {
			t.Fatalf("expected to find %q after inserting through several node splits", k)
		}
		v, err := b.GetCurrentValue(ctx)
		if err != nil {
			t.Fatalf("GetCurrentValue(%q): %v", k, err)
		}
		if v != "v-"+k {
			t.Fatalf("Find(%q) value = %q, want %q", k, v, "v-"+k)
		}
	}
}

func TestBtreeFirstLastNextTraverseInOrder(t *testing.T) {
	ctx := context.Background()
	b := newTestBtree(t, 4)
	keys := []string{"e", "c", "a", "d", "b"}
	for _, k := range keys {
		if _, err := b.Add(ctx, k, k); err != nil {
			t.Fatalf("Add(%q): %v", k, err)
		}
	}
	ok, err := b.First(ctx)
	if err != nil || !ok {
		t.Fatalf("First: ok=%v err=%v", ok, err)
	}
	var order []string
	for {
		item := b.GetCurrentKey()
		order = append(order, item.Key)
		ok, err := b.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
	}
	want := []string{"a", "b", "c", "d", "e"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestBtreeRemoveThenFindMiss(t *testing.T) {
	ctx := context.Background()
	b := newTestBtree(t, 4)
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		if _, err := b.Add(ctx, k, k); err != nil {
			t.Fatalf("Add(%q): %v", k, err)
		}
	}
	ok, err := b.Remove(ctx, "d")
	if err != nil || !ok {
		t.Fatalf("Remove: ok=%v err=%v", ok, err)
	}
	found, err := b.Find(ctx, "d", false)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found {
		t.Fatalf("expected \"d\" to be gone after Remove")
	}
	for _, k := range []string{"a", "b", "c", "e", "f", "g"} {
		found, err := b.Find(ctx, k, false)
		if err != nil || !found {
			t.Fatalf("expected %q to survive removal of a sibling key: found=%v err=%v", k, found, err)
		}
	}
}

func TestBtreeUpdateCurrentValue(t *testing.T) {
	ctx := context.Background()
	b := newTestBtree(t, 4)
	if _, err := b.Add(ctx, "k", "v1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	found, err := b.Find(ctx, "k", false)
	if err != nil || !found {
		t.Fatalf("Find: found=%v err=%v", found, err)
	}
	if _, err := b.UpdateCurrentValue(ctx, "v2"); err != nil {
		t.Fatalf("UpdateCurrentValue: %v", err)
	}
	found, err = b.Find(ctx, "k", false)
	if err != nil || !found {
		t.Fatalf("Find after update: found=%v err=%v", found, err)
	}
	v, err := b.GetCurrentValue(ctx)
	if err != nil || v != "v2" {
		t.Fatalf("expected updated value v2, got %q (err=%v)", v, err)
	}
}
