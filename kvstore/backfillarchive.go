package kvstore

import (
	"encoding/binary"
	"fmt"
	log "log/slog"
	"sync"

	sop "github.com/sharedcode/shardstore"
	"github.com/sharedcode/shardstore/fs/erasure"
)

// Archive is a resilient, at-rest encoding of a backfill chunk stream: the
// framed chunk bytes, erasure-coded into data+parity shards so a replica
// (or object store) that loses a subset of shards can still reconstruct the
// stream. This backs the "resilient backfill archives" a replica may keep
// around to resume a slow catch-up without re-requesting the whole run from
// the source.
type Archive struct {
	DataShards   int
	ParityShards int
	Size         int
	Shards       [][]byte
	ShardMeta    [][]byte
}

// EncodeArchiveWithConfig is EncodeArchive using cfg's DataShardsCount/
// ParityShardsCount instead of literal shard counts, for callers that keep
// per-blob-table erasure coding settings (sop.ErasureCodingConfig) alongside
// a store's other configuration.
func EncodeArchiveWithConfig(chunks []Chunk, cfg sop.ErasureCodingConfig) (*Archive, error) {
	return EncodeArchive(chunks, cfg.DataShardsCount, cfg.ParityShardsCount)
}

// EncodeArchive frames every chunk in order (length-prefixed EncodeChunk
// output) and erasure-codes the result into dataShards+paritySharsds shards.
func EncodeArchive(chunks []Chunk, dataShards, parityShards int) (*Archive, error) {
	var buf []byte
	for _, c := range chunks {
		frame := EncodeChunk(c)
		buf = appendI64(buf, int64(len(frame)))
		buf = append(buf, frame...)
	}
	e, err := erasure.NewErasure(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	shards, err := e.Encode(buf)
	if err != nil {
		return nil, fmt.Errorf("kvstore: encode backfill archive: %w", err)
	}
	meta := make([][]byte, len(shards))
	for i := range shards {
		meta[i] = e.ComputeShardMetadata(len(buf), shards, i)
	}
	return &Archive{
		DataShards:   dataShards,
		ParityShards: parityShards,
		Size:         len(buf),
		Shards:       shards,
		ShardMeta:    meta,
	}, nil
}

// DecodeArchive reverses EncodeArchive, tolerating up to ParityShards
// missing or corrupted shards (nil entries in a.Shards), and reports which
// shard indices (if any) had to be reconstructed.
func DecodeArchive(a *Archive) ([]Chunk, []int, error) {
	e, err := erasure.NewErasure(a.DataShards, a.ParityShards)
	if err != nil {
		return nil, nil, err
	}
	result := e.Decode(a.Shards, a.ShardMeta)
	if result.Error != nil {
		return nil, nil, fmt.Errorf("%w: backfill archive: %v", ErrCorruption, result.Error)
	}
	data := result.DecodedData
	if len(data) > a.Size {
		data = data[:a.Size]
	}
	var chunks []Chunk
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, nil, fmt.Errorf("%w: backfill archive: truncated frame length", ErrCorruption)
		}
		size := int64(binary.BigEndian.Uint64(data[:8]))
		data = data[8:]
		if size < 0 || int64(len(data)) < size {
			return nil, nil, fmt.Errorf("%w: backfill archive: truncated frame body", ErrCorruption)
		}
		c, err := DecodeChunk(data[:size])
		if err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, c)
		data = data[size:]
	}
	if len(result.ReconstructedShardsIndeces) > 0 {
		log.Info("backfill archive: reconstructed shards from parity", "indices", result.ReconstructedShardsIndeces)
	}
	return chunks, result.ReconstructedShardsIndeces, nil
}

// ArchiveStore keeps one published Archive per name (e.g. one per source
// region or per catch-up run) and uses sop.Handle's active/inactive physical
// slot swap so a reader never observes a half-written generation: encoding a
// new archive lands in the currently inactive slot, and only PublishArchive
// flips it live. A crash between StageArchive and PublishArchive leaves the
// previous generation active and the staged one simply unreferenced.
type ArchiveStore struct {
	mu       sync.Mutex
	handles  map[string]*sop.Handle
	archives map[sop.UUID]*Archive
}

// NewArchiveStore returns an empty ArchiveStore.
func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{
		handles:  make(map[string]*sop.Handle),
		archives: make(map[sop.UUID]*Archive),
	}
}

// StageArchive erasure-codes chunks and stores the result under name's
// inactive physical slot, allocating a fresh handle for name on first use.
// The returned ID identifies the staged generation for PublishArchive; it is
// not visible to GetArchive until then. Staging a second generation before
// publishing the first fails: only one pending generation is allowed at a
// time, since both physical slots would otherwise be occupied.
func (s *ArchiveStore) StageArchive(name string, chunks []Chunk, dataShards, parityShards int) (sop.UUID, error) {
	a, err := EncodeArchive(chunks, dataShards, parityShards)
	if err != nil {
		return sop.NilUUID, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[name]
	if !ok {
		nh := sop.NewHandle(sop.NewUUID())
		h = &nh
		s.handles[name] = h
	}
	id := h.AllocateID()
	if id.IsNil() {
		return sop.NilUUID, fmt.Errorf("kvstore: StageArchive: %s: a staged generation is already pending publish", name)
	}
	s.archives[id] = a
	return id, nil
}

// PublishArchive flips name's staged generation (identified by id, as
// returned from StageArchive) live, retiring whatever generation was active
// before. It fails if id does not match the currently staged generation,
// which catches a caller publishing a generation another StageArchive call
// already superseded.
func (s *ArchiveStore) PublishArchive(name string, id sop.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[name]
	if !ok {
		return fmt.Errorf("kvstore: PublishArchive: %s: %w: no such staged generation", name, ErrCorruption)
	}
	staged := h.PhysicalIDB
	if h.IsActiveIDB {
		staged = h.PhysicalIDA
	}
	if staged.IsNil() || staged != id {
		return fmt.Errorf("kvstore: PublishArchive: %s: %w: no such staged generation", name, ErrCorruption)
	}
	prev := h.GetActiveID()
	h.FlipActiveID()
	// Free the retired slot so the next StageArchive can allocate into it.
	if h.IsActiveIDB {
		h.PhysicalIDA = sop.NilUUID
	} else {
		h.PhysicalIDB = sop.NilUUID
	}
	h.Version++
	delete(s.archives, prev)
	return nil
}

// GetArchive returns name's currently published archive, if any.
func (s *ArchiveStore) GetArchive(name string) (*Archive, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[name]
	if !ok {
		return nil, false
	}
	a, ok := s.archives[h.GetActiveID()]
	return a, ok
}
