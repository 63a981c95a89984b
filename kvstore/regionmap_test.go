package kvstore

import "testing"

func TestRegionMapTotalityAfterUpdate(t *testing.T) {
	m := NewRegionMap[[]byte](Universe(), []byte("base"))
	overlay := NewRegionMap[[]byte](Region{LeftMode: Closed, Left: []byte("m"), RightMode: None}, []byte("overlay"))
	updated, err := m.Update(overlay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := updated.GetDomain()
	if d.LeftMode != None || d.RightMode != None {
		t.Fatalf("expected domain to remain universe, got %+v", d)
	}
}

func TestRegionMapUpdateRejectsEscapingDomain(t *testing.T) {
	m := NewRegionMap[[]byte](Region{LeftMode: Closed, Left: []byte("a"), RightMode: Open, Right: []byte("m")}, []byte("base"))
	overlay := NewRegionMap[[]byte](Universe(), []byte("overlay"))
	if _, err := m.Update(overlay); err == nil {
		t.Fatalf("expected ErrInvariantViolated when overlay escapes domain")
	}
}

func TestRegionMapMaskSplitsBoundary(t *testing.T) {
	m := NewRegionMap[[]byte](Universe(), []byte("v"))
	masked := m.Mask(Region{LeftMode: Closed, Left: []byte("g"), RightMode: Open, Right: []byte("m")})
	if masked.Len() != 1 {
		t.Fatalf("expected exactly one masked entry, got %d", masked.Len())
	}
	d := masked.GetDomain()
	if string(d.Left) != "g" || string(d.Right) != "m" {
		t.Fatalf("unexpected masked domain: %+v", d)
	}
}
