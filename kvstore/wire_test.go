package kvstore

import "testing"

func TestEncodeDecodeChunkRoundTrip(t *testing.T) {
	cases := []Chunk{
		{Kind: ChunkDeleteRange, DeleteRange: Region{LeftMode: Closed, Left: []byte("a"), RightMode: Open, Right: []byte("m")}},
		{Kind: ChunkDeleteKey, DeleteKey: []byte("k"), DeleteKeyRecency: 42},
		{Kind: ChunkSetKey, SetKey: BackfillAtom{
			Key: []byte("k"), Value: []byte("v"), Flags: 7, Exptime: 0, CasOrZero: 99, Recency: 100,
		}},
	}
	for _, c := range cases {
		encoded := EncodeChunk(c)
		decoded, err := DecodeChunk(encoded)
		if err != nil {
			t.Fatalf("decode failed for kind %d: %v", c.Kind, err)
		}
		if decoded.Kind != c.Kind {
			t.Fatalf("kind mismatch: got %d, want %d", decoded.Kind, c.Kind)
		}
		switch c.Kind {
		case ChunkDeleteRange:
			if !decoded.DeleteRange.Equal(c.DeleteRange) {
				t.Fatalf("delete_range mismatch: got %+v, want %+v", decoded.DeleteRange, c.DeleteRange)
			}
		case ChunkDeleteKey:
			if string(decoded.DeleteKey) != string(c.DeleteKey) || decoded.DeleteKeyRecency != c.DeleteKeyRecency {
				t.Fatalf("delete_key mismatch: got %+v, want %+v", decoded, c)
			}
		case ChunkSetKey:
			if string(decoded.SetKey.Key) != string(c.SetKey.Key) ||
				string(decoded.SetKey.Value) != string(c.SetKey.Value) ||
				decoded.SetKey.Flags != c.SetKey.Flags ||
				decoded.SetKey.CasOrZero != c.SetKey.CasOrZero ||
				decoded.SetKey.Recency != c.SetKey.Recency {
				t.Fatalf("set_key mismatch: got %+v, want %+v", decoded.SetKey, c.SetKey)
			}
		}
	}
}

func TestDecodeChunkRejectsUnknownTag(t *testing.T) {
	if _, err := DecodeChunk([]byte{9}); err == nil {
		t.Fatalf("expected ErrCorruption for an unknown chunk tag")
	}
}

func TestDecodeChunkRejectsTruncatedBuffer(t *testing.T) {
	frame := EncodeChunk(Chunk{Kind: ChunkDeleteKey, DeleteKey: []byte("longer-key"), DeleteKeyRecency: 1})
	if _, err := DecodeChunk(frame[:len(frame)-2]); err == nil {
		t.Fatalf("expected ErrCorruption for a truncated frame")
	}
}
