package kvstore

import "testing"

func TestReadShardRoundTrip(t *testing.T) {
	r := NewRGet(Closed, []byte("a"), Open, []byte("z"))
	sub := Region{LeftMode: Closed, Left: []byte("c"), RightMode: Open, Right: []byte("f")}
	sharded, err := r.Shard(sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sharded.GetRegion().Equal(sub) {
		t.Fatalf("shard(s).get_region() must equal s, got %+v", sharded.GetRegion())
	}
}

func TestReadShardRejectsNonSubset(t *testing.T) {
	r := NewRGet(Closed, []byte("c"), Open, []byte("f"))
	notSub := Region{LeftMode: Closed, Left: []byte("a"), RightMode: Open, Right: []byte("z")}
	if _, err := r.Shard(notSub); err == nil {
		t.Fatalf("expected ErrRegionMismatch for a region wider than the original")
	}
}

func TestPointGetShardRequiresExactMatch(t *testing.T) {
	r := NewGet([]byte("k"))
	if _, err := r.Shard(Point([]byte("other"))); err == nil {
		t.Fatalf("expected ErrRegionMismatch for a differing point-get region")
	}
	sharded, err := r.Shard(Point([]byte("k")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sharded.Get.Key == nil {
		t.Fatalf("expected the point-get to survive Shard unchanged")
	}
}

func TestUnshardMergesRGetInAscendingOrder(t *testing.T) {
	r := NewRGet(Closed, []byte("a"), Open, []byte("z"))
	resp1 := ReadResponse{RGetResult: &RGetResult{Entries: []RGetEntry{{Key: []byte("a")}, {Key: []byte("c")}}}}
	resp2 := ReadResponse{RGetResult: &RGetResult{Entries: []RGetEntry{{Key: []byte("b")}}}}
	merged, err := r.Unshard([]ReadResponse{resp1, resp2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := merged.RGetResult.Entries
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, w := range want {
		if string(got[i].Key) != w {
			t.Fatalf("entry %d: got %q, want %q", i, got[i].Key, w)
		}
	}
}

func TestUnshardPointGetRequiresExactlyOneResponse(t *testing.T) {
	r := NewGet([]byte("k"))
	res := GetResult{Found: true, Value: []byte("v")}
	if _, err := r.Unshard([]ReadResponse{{GetResult: &res}, {GetResult: &res}}); err == nil {
		t.Fatalf("expected ErrArityMismatch for two responses to a point-get")
	}
}

func TestWriteShardRequiresExactMatch(t *testing.T) {
	w := Write{Sarc: &SarcWrite{Key: []byte("k"), AddPolicy: true, ReplacePolicy: true}}
	if _, err := w.Shard(Point([]byte("other"))); err == nil {
		t.Fatalf("expected ErrRegionMismatch")
	}
	sharded, err := w.Shard(Point([]byte("k")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(sharded.Key()) != "k" {
		t.Fatalf("expected write to survive Shard unchanged")
	}
}
