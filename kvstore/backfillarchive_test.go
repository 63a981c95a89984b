package kvstore

import "testing"

func sampleChunks() []Chunk {
	return []Chunk{
		{Kind: ChunkSetKey, SetKey: BackfillAtom{Key: []byte("a"), Value: []byte("1"), Recency: 1}},
		{Kind: ChunkDeleteKey, DeleteKey: []byte("b"), DeleteKeyRecency: 2},
	}
}

func TestEncodeDecodeArchiveRoundTrip(t *testing.T) {
	a, err := EncodeArchive(sampleChunks(), 4, 2)
	if err != nil {
		t.Fatalf("EncodeArchive: %v", err)
	}
	chunks, reconstructed, err := DecodeArchive(a)
	if err != nil {
		t.Fatalf("DecodeArchive: %v", err)
	}
	if len(reconstructed) != 0 {
		t.Fatalf("expected no reconstruction on an intact archive, got %v", reconstructed)
	}
	if len(chunks) != 2 || string(chunks[0].SetKey.Key) != "a" || string(chunks[1].DeleteKey) != "b" {
		t.Fatalf("unexpected round-tripped chunks: %+v", chunks)
	}
}

func TestEncodeDecodeArchiveToleratesLostShards(t *testing.T) {
	a, err := EncodeArchive(sampleChunks(), 4, 2)
	if err != nil {
		t.Fatalf("EncodeArchive: %v", err)
	}
	a.Shards[0] = nil
	a.Shards[3] = nil
	chunks, reconstructed, err := DecodeArchive(a)
	if err != nil {
		t.Fatalf("DecodeArchive after losing 2 shards (parity=2): %v", err)
	}
	if len(reconstructed) != 2 {
		t.Fatalf("expected 2 reconstructed shard indices, got %v", reconstructed)
	}
	if len(chunks) != 2 {
		t.Fatalf("unexpected chunk count after reconstruction: %+v", chunks)
	}
}

func TestArchiveStoreStagePublish(t *testing.T) {
	s := NewArchiveStore()
	if _, ok := s.GetArchive("region-1"); ok {
		t.Fatalf("expected no published archive before any Stage/Publish")
	}
	id, err := s.StageArchive("region-1", sampleChunks(), 4, 2)
	if err != nil {
		t.Fatalf("StageArchive: %v", err)
	}
	if _, ok := s.GetArchive("region-1"); ok {
		t.Fatalf("staged archive must not be visible before Publish")
	}
	if err := s.PublishArchive("region-1", id); err != nil {
		t.Fatalf("PublishArchive: %v", err)
	}
	a, ok := s.GetArchive("region-1")
	if !ok || a == nil {
		t.Fatalf("expected published archive to be visible after Publish")
	}

	id2, err := s.StageArchive("region-1", sampleChunks(), 4, 2)
	if err != nil {
		t.Fatalf("StageArchive (second generation): %v", err)
	}
	if err := s.PublishArchive("region-1", id2); err != nil {
		t.Fatalf("PublishArchive (second generation): %v", err)
	}
	if _, ok := s.archives[id]; ok {
		t.Fatalf("previous generation should be retired after publishing the next one")
	}
}

func TestArchiveStoreRejectsDoubleStageAndStalePublish(t *testing.T) {
	s := NewArchiveStore()
	id, err := s.StageArchive("region-1", sampleChunks(), 4, 2)
	if err != nil {
		t.Fatalf("StageArchive: %v", err)
	}
	if _, err := s.StageArchive("region-1", sampleChunks(), 4, 2); err == nil {
		t.Fatalf("expected StageArchive to reject a second pending generation before Publish")
	}
	if err := s.PublishArchive("region-1", id); err != nil {
		t.Fatalf("PublishArchive: %v", err)
	}
	if err := s.PublishArchive("region-1", id); err == nil {
		t.Fatalf("expected re-publishing an already-active id to fail (no longer the inactive slot)")
	}
}
