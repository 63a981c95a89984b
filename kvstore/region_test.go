package kvstore

import "testing"

func TestRegionContainsKeyBoundModes(t *testing.T) {
	r := Region{LeftMode: Closed, Left: []byte("b"), RightMode: Open, Right: []byte("d")}
	cases := []struct {
		key  string
		want bool
	}{
		{"a", false},
		{"b", true},
		{"c", true},
		{"d", false},
		{"e", false},
	}
	for _, c := range cases {
		if got := r.ContainsKey([]byte(c.key)); got != c.want {
			t.Errorf("ContainsKey(%q) = %v, want %v", c.key, got, c.want)
		}
	}
}

func TestRegionIsSupersetOfReflexiveAndAntisymmetric(t *testing.T) {
	a := Region{LeftMode: Closed, Left: []byte("a"), RightMode: Open, Right: []byte("z")}
	if !a.IsSupersetOf(a) {
		t.Fatalf("A must be a superset of itself")
	}
	b := Region{LeftMode: Closed, Left: []byte("a"), RightMode: Closed, Right: []byte("y")}
	if !a.IsSupersetOf(b) {
		t.Fatalf("expected A to be a superset of B")
	}
	if b.IsSupersetOf(a) {
		t.Fatalf("B must not be a superset of A")
	}
}

func TestRegionUniverseAndPoint(t *testing.T) {
	u := Universe()
	if !u.ContainsKey([]byte("anything")) {
		t.Fatalf("universe must contain every key")
	}
	p := Point([]byte("k"))
	if !p.ContainsKey([]byte("k")) {
		t.Fatalf("point region must contain its own key")
	}
	if p.ContainsKey([]byte("k2")) {
		t.Fatalf("point region must not contain a different key")
	}
}

func TestIntersectDisjointRegions(t *testing.T) {
	a := Region{LeftMode: Closed, Left: []byte("a"), RightMode: Open, Right: []byte("c")}
	b := Region{LeftMode: Closed, Left: []byte("d"), RightMode: Open, Right: []byte("f")}
	if _, ok := Intersect(a, b); ok {
		t.Fatalf("expected disjoint regions to not intersect")
	}
}

func TestIntersectOverlapping(t *testing.T) {
	a := Region{LeftMode: Closed, Left: []byte("a"), RightMode: Open, Right: []byte("m")}
	b := Region{LeftMode: Closed, Left: []byte("g"), RightMode: Open, Right: []byte("z")}
	got, ok := Intersect(a, b)
	if !ok {
		t.Fatalf("expected overlapping regions to intersect")
	}
	want := Region{LeftMode: Closed, Left: []byte("g"), RightMode: Open, Right: []byte("m")}
	if !got.Equal(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
