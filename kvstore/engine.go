package kvstore

import (
	"context"
	"time"

	sop "github.com/sharedcode/shardstore"
	"github.com/sharedcode/shardstore/btree"
)

// Record is the value the underlying B-tree stores for each key: either a
// live item (Tombstone false) or a tombstone kept around long enough for
// backfill to emit a delete-key chunk for it (Tombstone true).
type Record struct {
	Value     []byte
	Flags     uint32
	Exptime   uint32
	Cas       uint64
	Recency   uint64
	Tombstone bool
}

// engine wraps a btree.BtreeInterface[string, Record] with the memcached-like
// operations the read/write executor dispatches onto. Keys are plain byte
// strings; Go's native string ordering is byte-lexicographic, matching the
// region algebra's key ordering exactly.
//
// dataCache, when non-nil, is a store-level L2 cache (sop.L2Cache) consulted
// on get and invalidated on every mutation: hot-key reads skip the tree walk
// entirely, matching what StoreCacheConfig.IsValueDataGloballyCached models
// on the underlying btree.StoreInfo.
type engine struct {
	tree      btree.BtreeInterface[string, Record]
	dataCache sop.L2Cache
	cacheTTL  time.Duration
}

func newEngine(tree btree.BtreeInterface[string, Record], dataCache sop.L2Cache, cacheTTL time.Duration) *engine {
	return &engine{tree: tree, dataCache: dataCache, cacheTTL: cacheTTL}
}

func (e *engine) cacheKey(key []byte) string {
	return "kvstore:record:" + string(key)
}

func (e *engine) cacheGet(ctx context.Context, key []byte) (Record, bool) {
	if e.dataCache == nil {
		return Record{}, false
	}
	var rec Record
	found, err := e.dataCache.GetStruct(ctx, e.cacheKey(key), &rec)
	if err != nil || !found {
		return Record{}, false
	}
	return rec, true
}

func (e *engine) cachePut(ctx context.Context, key []byte, rec Record) {
	if e.dataCache == nil {
		return
	}
	_ = e.dataCache.SetStruct(ctx, e.cacheKey(key), rec, e.cacheTTL)
}

func (e *engine) cacheInvalidate(ctx context.Context, key []byte) {
	if e.dataCache == nil {
		return
	}
	_, _ = e.dataCache.Delete(ctx, []string{e.cacheKey(key)})
}

func isLive(r Record, effectiveTime uint32) bool {
	if r.Tombstone {
		return false
	}
	if r.Exptime != 0 && effectiveTime >= r.Exptime {
		return false
	}
	return true
}

func (e *engine) get(ctx context.Context, key []byte, effectiveTime uint32) (GetResult, error) {
	if rec, ok := e.cacheGet(ctx, key); ok {
		if !isLive(rec, effectiveTime) {
			return GetResult{Found: false}, nil
		}
		return GetResult{Found: true, Value: rec.Value, Flags: rec.Flags, Cas: rec.Cas}, nil
	}
	found, err := e.tree.Find(ctx, string(key), false)
	if err != nil {
		return GetResult{}, err
	}
	if !found {
		return GetResult{Found: false}, nil
	}
	rec, err := e.tree.GetCurrentValue(ctx)
	if err != nil {
		return GetResult{}, err
	}
	e.cachePut(ctx, key, rec)
	if !isLive(rec, effectiveTime) {
		return GetResult{Found: false}, nil
	}
	return GetResult{Found: true, Value: rec.Value, Flags: rec.Flags, Cas: rec.Cas}, nil
}

// rget collects entries with keys in [leftMode,left, rightMode,right) into
// ascending order. Real deployments would return a lazy single-pass Cursor
// (see NewRangeCursor); this materializes for callers (tests, single-node
// unshard) that need the whole result at once.
func (e *engine) rget(ctx context.Context, r Region, effectiveTime uint32) ([]RGetEntry, error) {
	var out []RGetEntry
	cur := NewRangeCursor(e.tree, r, effectiveTime)
	for {
		entry, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, entry)
	}
	return out, nil
}

// sarc implements set/add/replace/cas: AddPolicy and ReplacePolicy gate
// whether a missing/existing key is acceptable, and OldCas (when non-zero)
// must match the current record's Cas for the write to proceed.
func (e *engine) sarc(ctx context.Context, w SarcWrite, nextCas func() uint64, recency uint64) (WriteResponse, error) {
	found, err := e.tree.Find(ctx, string(w.Key), false)
	if err != nil {
		return WriteResponse{}, err
	}
	var existing Record
	if found {
		existing, err = e.tree.GetCurrentValue(ctx)
		if err != nil {
			return WriteResponse{}, err
		}
	}
	exists := found && !existing.Tombstone
	if exists && !w.ReplacePolicy {
		return WriteResponse{NotFound: false, Conflict: true}, nil
	}
	if !exists && !w.AddPolicy {
		return WriteResponse{NotFound: true}, nil
	}
	if w.OldCas != InvalidCas {
		if !exists || existing.Cas != w.OldCas {
			return WriteResponse{Conflict: true}, nil
		}
	}
	cas := w.ProposedCas
	if cas == InvalidCas {
		cas = nextCas()
	}
	rec := Record{Value: w.Data, Flags: w.Flags, Exptime: w.Exptime, Cas: cas, Recency: recency}
	if found {
		if _, err := e.tree.UpdateCurrentValue(ctx, rec); err != nil {
			return WriteResponse{}, err
		}
	} else {
		if _, err := e.tree.Add(ctx, string(w.Key), rec); err != nil {
			return WriteResponse{}, err
		}
	}
	e.cacheInvalidate(ctx, w.Key)
	return WriteResponse{Ok: true, Cas: cas}, nil
}

func (e *engine) incrDecr(ctx context.Context, w IncrDecrWrite, nextCas func() uint64, recency uint64, effectiveTime uint32) (WriteResponse, error) {
	found, err := e.tree.Find(ctx, string(w.Key), false)
	if err != nil {
		return WriteResponse{}, err
	}
	if !found {
		return WriteResponse{NotFound: true}, nil
	}
	rec, err := e.tree.GetCurrentValue(ctx)
	if err != nil {
		return WriteResponse{}, err
	}
	if !isLive(rec, effectiveTime) {
		return WriteResponse{NotFound: true}, nil
	}
	n, ok := parseDecimal(rec.Value)
	if !ok {
		return WriteResponse{Conflict: true}, nil
	}
	if w.Kind == Incr {
		n += w.Amount
	} else {
		n -= w.Amount
		if n < 0 {
			n = 0
		}
	}
	rec.Value = formatDecimal(n)
	rec.Cas = nextCas()
	rec.Recency = recency
	if _, err := e.tree.UpdateCurrentValue(ctx, rec); err != nil {
		return WriteResponse{}, err
	}
	e.cacheInvalidate(ctx, w.Key)
	return WriteResponse{Ok: true, Cas: rec.Cas, NumericResult: &n}, nil
}

func (e *engine) appendPrepend(ctx context.Context, w AppendPrependWrite, nextCas func() uint64, recency uint64, effectiveTime uint32) (WriteResponse, error) {
	found, err := e.tree.Find(ctx, string(w.Key), false)
	if err != nil {
		return WriteResponse{}, err
	}
	if !found {
		return WriteResponse{NotFound: true}, nil
	}
	rec, err := e.tree.GetCurrentValue(ctx)
	if err != nil {
		return WriteResponse{}, err
	}
	if !isLive(rec, effectiveTime) {
		return WriteResponse{NotFound: true}, nil
	}
	if w.Kind == Append {
		rec.Value = append(append([]byte{}, rec.Value...), w.Data...)
	} else {
		rec.Value = append(append([]byte{}, w.Data...), rec.Value...)
	}
	rec.Cas = nextCas()
	rec.Recency = recency
	if _, err := e.tree.UpdateCurrentValue(ctx, rec); err != nil {
		return WriteResponse{}, err
	}
	e.cacheInvalidate(ctx, w.Key)
	return WriteResponse{Ok: true, Cas: rec.Cas}, nil
}

// deleteKey applies a DeleteWrite. When dontEnqueue is true (DontPutInDeleteQueue)
// the key is removed outright since it will never need to reach a replica via
// backfill; otherwise it becomes a tombstone the backfill producer will later
// emit as a delete_key chunk.
func (e *engine) deleteKey(ctx context.Context, key []byte, dontEnqueue bool, recency uint64) (WriteResponse, error) {
	found, err := e.tree.Find(ctx, string(key), false)
	if err != nil {
		return WriteResponse{}, err
	}
	if !found {
		return WriteResponse{NotFound: true}, nil
	}
	if dontEnqueue {
		if _, err := e.tree.RemoveCurrentItem(ctx); err != nil {
			return WriteResponse{}, err
		}
		e.cacheInvalidate(ctx, key)
		return WriteResponse{Ok: true}, nil
	}
	rec, err := e.tree.GetCurrentValue(ctx)
	if err != nil {
		return WriteResponse{}, err
	}
	rec.Tombstone = true
	rec.Value = nil
	rec.Recency = recency
	if _, err := e.tree.UpdateCurrentValue(ctx, rec); err != nil {
		return WriteResponse{}, err
	}
	e.cacheInvalidate(ctx, key)
	return WriteResponse{Ok: true}, nil
}

// applyTombstone writes a tombstone carrying recency, adding one if key isn't
// present at all. Used by backfill's delete_key chunk application, where the
// destination may not yet hold the key and recency must survive the apply so
// a later re-backfill from an older since_when still sees the delete as newer.
func (e *engine) applyTombstone(ctx context.Context, key []byte, recency uint64) error {
	found, err := e.tree.Find(ctx, string(key), false)
	if err != nil {
		return err
	}
	rec := Record{Tombstone: true, Recency: recency}
	if found {
		_, err = e.tree.UpdateCurrentValue(ctx, rec)
	} else {
		_, err = e.tree.Add(ctx, string(key), rec)
	}
	if err != nil {
		return err
	}
	e.cacheInvalidate(ctx, key)
	return nil
}

// eraseRange removes every key (tombstone or live) contained in r. Used by
// backfill's delete_range chunk application and by reset_data.
func (e *engine) eraseRange(ctx context.Context, r Region) error {
	var keys []string
	ok, err := e.tree.First(ctx)
	if err != nil {
		return err
	}
	for ok {
		item := e.tree.GetCurrentKey()
		if r.ContainsKey([]byte(item.Key)) {
			keys = append(keys, item.Key)
		}
		ok, err = e.tree.Next(ctx)
		if err != nil {
			return err
		}
	}
	for _, k := range keys {
		if _, err := e.tree.Remove(ctx, k); err != nil {
			return err
		}
		e.cacheInvalidate(ctx, []byte(k))
	}
	return nil
}

// hardSet applies a backfilled set_key chunk unconditionally (add=yes,
// replace=yes, old_cas=INVALID), overwriting whatever is at the key.
func (e *engine) hardSet(ctx context.Context, key []byte, rec Record) error {
	found, err := e.tree.Find(ctx, string(key), false)
	if err != nil {
		return err
	}
	if found {
		_, err = e.tree.UpdateCurrentValue(ctx, rec)
	} else {
		_, err = e.tree.Add(ctx, string(key), rec)
	}
	if err != nil {
		return err
	}
	e.cacheInvalidate(ctx, key)
	return nil
}
