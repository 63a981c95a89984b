package kvstore

import "testing"

func TestEncodeDecodeRegionKeyRoundTrip(t *testing.T) {
	cases := []Region{
		Universe(),
		Point([]byte("k")),
		{LeftMode: Closed, Left: []byte("a"), RightMode: Open, Right: []byte("z")},
		{LeftMode: Closed, Left: []byte(""), RightMode: None},
	}
	for _, r := range cases {
		encoded := EncodeRegionKey(r)
		decoded, err := DecodeRegionKey(encoded)
		if err != nil {
			t.Fatalf("decode failed for %+v: %v", r, err)
		}
		if !decoded.Equal(r) {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, r)
		}
	}
}

func TestDecodeRegionKeyRejectsTruncated(t *testing.T) {
	if _, err := DecodeRegionKey(nil); err == nil {
		t.Fatalf("expected an error decoding an empty region key")
	}
}
