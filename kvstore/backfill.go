package kvstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	sop "github.com/sharedcode/shardstore"
	shardstorecel "github.com/sharedcode/shardstore/cel"
)

// ChunkKind tags the backfill chunk sum type.
type ChunkKind int

const (
	ChunkDeleteRange ChunkKind = iota
	ChunkDeleteKey
	ChunkSetKey
)

// BackfillAtom is a fully-specified live key, carried by a set_key chunk.
type BackfillAtom struct {
	Key       []byte
	Value     []byte
	Flags     uint32
	Exptime   uint32
	CasOrZero uint64
	Recency   uint64
}

// Chunk is one element of the backfill stream: exactly one of the three
// fields is populated, selected by Kind.
type Chunk struct {
	Kind        ChunkKind
	DeleteRange Region
	DeleteKey   []byte
	DeleteKeyRecency uint64
	SetKey      BackfillAtom
}

// ChunkSink receives chunks as the producer traverses; returning an error
// aborts the traversal (backpressure/failure propagation).
type ChunkSink func(Chunk) error

// StartPoint is the per-region timestamp vector a backfill consumer supplies
// to ask "send me everything newer than this, region by region".
type StartPoint = RegionMap[uint64]

// ShouldBackfillFunc decides, from the metainfo masked to StartPoint's
// domain, whether a backfill run is warranted at all.
type ShouldBackfillFunc func(masked RegionMap[[]byte]) (bool, error)

// NewCELShouldBackfillPredicate compiles a CEL expression comparing the
// source's masked metainfo (mapX: each blob as an int64 when it is ASCII
// decimal and as a string otherwise, keyed by the hex-encoded
// EncodeRegionKey of its region) against an empty baseline (mapY), and treats a
// strictly-positive comparison result as "should backfill". This lets a
// deployment express its version-vector comparison policy declaratively
// instead of hardcoding byte comparison here.
func NewCELShouldBackfillPredicate(expression string) (ShouldBackfillFunc, error) {
	evaluator, err := shardstorecel.NewEvaluator("should_backfill", expression)
	if err != nil {
		return nil, err
	}
	return func(masked RegionMap[[]byte]) (bool, error) {
		mapX := make(map[string]any)
		masked.Iterate(func(r Region, blob []byte) bool {
			mapX[hex.EncodeToString(EncodeRegionKey(r))] = metainfoCELValue(blob)
			return true
		})
		result, err := evaluator.Evaluate(mapX, map[string]any{})
		if err != nil {
			return false, err
		}
		return result > 0, nil
	}, nil
}

// metainfoCELValue converts a region's masked metainfo blob to the value a
// deployment's CEL expression most likely wants to compare: an ASCII-decimal
// blob (the common case for a version-vector counter) becomes an int64 so an
// expression can use numeric comparison instead of lexicographic string
// comparison, using sop.InferType's own "is this really an int" heuristic;
// anything else stays a string.
func metainfoCELValue(blob []byte) any {
	n, err := strconv.ParseInt(string(blob), 10, 64)
	if err != nil {
		return string(blob)
	}
	if kind, isArray := sop.InferType(n); kind == "int" && !isArray {
		return n
	}
	return string(blob)
}

// Progress reports fraction-complete across every region's traversal.
type Progress struct {
	regions   []regionProgress
}

type regionProgress struct {
	region    Region
	completed bool
}

// Fraction returns the completed proportion of regions traversed so far. It
// is a coarse per-region measure, not a per-key one: fine enough for the
// producer's own bookkeeping, which is all spec 4.8 requires of it.
func (p *Progress) Fraction() float64 {
	if len(p.regions) == 0 {
		return 1
	}
	done := 0
	for _, r := range p.regions {
		if r.completed {
			done++
		}
	}
	return float64(done) / float64(len(p.regions))
}

// SendBackfill implements the backfill producer (spec 4.8): under sb (which
// must have been acquired with AcquireBackfill or AcquireRead), it masks
// metainfo to start.GetDomain(), consults shouldBackfill, and if true,
// traverses each region in start in left-to-right order emitting
// delete-range, delete-key, and set-key chunks in ascending key order.
func SendBackfill(ctx context.Context, sb *Superblock, start StartPoint, shouldBackfill ShouldBackfillFunc, sink ChunkSink, progress *Progress) (bool, error) {
	metainfo, err := sb.GetMetainfo(ctx)
	if err != nil {
		return false, err
	}
	masked := metainfo.Mask(start.GetDomain())
	ok, err := shouldBackfill(masked)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	entries := start.Entries()
	progress.regions = make([]regionProgress, len(entries))
	for i, e := range entries {
		progress.regions[i] = regionProgress{region: e.Region}
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("%w", ErrInterrupted)
		}
		if err := traverseRegionForBackfill(ctx, sb, e.Region, e.Value, sink); err != nil {
			return false, err
		}
		progress.regions[i].completed = true
	}
	return true, nil
}

// traverseRegionForBackfill walks r's live keys and tombstones, emitting a
// set_key chunk for every live record whose Recency exceeds sinceWhen and a
// delete_key chunk for every tombstone whose Recency exceeds sinceWhen. When
// nothing in r qualifies at all, it emits a single delete_range covering r:
// the cheap bulk-reset path spec 4.8 calls out, telling the consumer the
// entire region is at or below sinceWhen so it may simply wipe and skip.
func traverseRegionForBackfill(ctx context.Context, sb *Superblock, r Region, sinceWhen uint64, sink ChunkSink) error {
	anyNewer := false
	cur := sb.engine.tree
	ok, err := cur.First(ctx)
	if err != nil {
		return err
	}
	var pending []Chunk
	for ok {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w", ErrInterrupted)
		}
		item := cur.GetCurrentKey()
		key := []byte(item.Key)
		if r.ContainsKey(key) {
			rec, err := cur.GetCurrentValue(ctx)
			if err != nil {
				return err
			}
			if rec.Recency > sinceWhen {
				anyNewer = true
				if rec.Tombstone {
					pending = append(pending, Chunk{Kind: ChunkDeleteKey, DeleteKey: key, DeleteKeyRecency: rec.Recency})
				} else {
					pending = append(pending, Chunk{Kind: ChunkSetKey, SetKey: BackfillAtom{
						Key: key, Value: rec.Value, Flags: rec.Flags, Exptime: rec.Exptime,
						CasOrZero: rec.Cas, Recency: rec.Recency,
					}})
				}
			}
		}
		ok, err = cur.Next(ctx)
		if err != nil {
			return err
		}
	}
	if !anyNewer {
		return sink(Chunk{Kind: ChunkDeleteRange, DeleteRange: r})
	}
	for _, c := range pending {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w", ErrInterrupted)
		}
		if err := sink(c); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveBackfill implements the backfill consumer (spec 4.9): it dispatches
// one chunk onto sb's engine. The caller acquires sb fresh (AcquireWrite) per
// chunk or per batch and is responsible for calling Commit.
func ReceiveBackfill(ctx context.Context, sb *Superblock, c Chunk) error {
	switch c.Kind {
	case ChunkDeleteKey:
		return sb.engine.applyTombstone(ctx, c.DeleteKey, c.DeleteKeyRecency)
	case ChunkDeleteRange:
		return sb.engine.eraseRange(ctx, c.DeleteRange)
	case ChunkSetKey:
		rec := Record{
			Value:   c.SetKey.Value,
			Flags:   c.SetKey.Flags,
			Exptime: c.SetKey.Exptime,
			Cas:     c.SetKey.CasOrZero,
			Recency: c.SetKey.Recency,
		}
		return sb.engine.hardSet(ctx, c.SetKey.Key, rec)
	}
	return fmt.Errorf("kvstore: %w: unknown chunk kind %d", ErrCorruption, c.Kind)
}
