package kvstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sop "github.com/sharedcode/shardstore"
	"github.com/sharedcode/shardstore/btree"
	_ "github.com/sharedcode/shardstore/cache" // registers the InMemory/Redis sop.L2CacheFactory backends
	"github.com/sharedcode/shardstore/memstore"
	"golang.org/x/sync/errgroup"
)

var configureLoggingOnce sync.Once

// AcquireMode selects one of the three superblock acquisition paths a caller
// can take, mirroring the shard's own view of what it is being asked to do.
type AcquireMode int

const (
	// AcquireRead reserves a shared read ticket: any number of readers (and a
	// concurrent backfill producer) may hold the superblock at once.
	AcquireRead AcquireMode = iota
	// AcquireBackfill reserves a shared ticket like AcquireRead, since a
	// backfill producer only observes the tree; it never mutates it.
	AcquireBackfill
	// AcquireWrite reserves the exclusive write ticket: a write, or backfill
	// consumer application, holds the superblock alone.
	AcquireWrite
)

// Store is one shard's persistence adapter: a data tree, a metainfo tree,
// and the FIFO admission discipline that orders concurrent callers.
type Store struct {
	path string

	orderSource *OrderSource
	tokenSource *TokenSource
	casCounter  atomic.Uint64

	nodeRepo     *memstore.NodeRepository[string, Record]
	tracker      *memstore.ItemActionTracker[string, Record]
	dataTree     *btree.Btree[string, Record]
	dataCache    sop.L2Cache
	dataCacheTTL time.Duration

	metaNodeRepo *memstore.NodeRepository[string, []byte]
	metaTracker  *memstore.ItemActionTracker[string, []byte]
	metaTree     *btree.Btree[string, []byte]
	metaArea     *treeMetainfoArea
}

// Open loads path's snapshot if present, or (when create is true) starts an
// empty shard rooted there. Close persists whatever state Open produced or
// subsequent transactions committed. opts is optional (at most the first
// value is used) and selects the L2 cache backend (sop.DatabaseOptions'
// CacheType/RedisConfig) for a shard that wants Redis-coordinated caching
// instead of the in-process default; the required two-argument call form
// spec.md §6 specifies keeps working unchanged.
func Open(path string, create bool, opts ...sop.DatabaseOptions) (*Store, error) {
	configureLoggingOnce.Do(sop.ConfigureLogging)
	var dbOpts sop.DatabaseOptions
	if len(opts) > 0 {
		dbOpts = opts[0]
	}
	dataSnap, err := memstore.Load[string, Record](path + ".data")
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}
	metaSnap, err := memstore.Load[string, []byte](path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}
	if !create && dataSnap.StoreInfo.Name == "" && len(dataSnap.Nodes) == 0 {
		return nil, fmt.Errorf("kvstore: %s does not exist", path)
	}

	nodeRepo := memstore.NewNodeRepository[string, Record]()
	if dataSnap.Nodes != nil {
		nodeRepo.Restore(dataSnap.Nodes)
	}
	tracker := memstore.NewItemActionTracker[string, Record]()
	dataInfo := dataSnap.StoreInfo
	if dataInfo.Name == "" {
		dataInfo = *sop.NewStoreInfo(sop.ConfigureStore("data", true, 8, "shard key/value data", sop.MediumData, ""))
	}
	dataTree := btree.NewBtree[string, Record](dataInfo, &btree.StoreInterface[string, Record]{
		NodeRepository:    nodeRepo,
		ItemActionTracker: tracker,
	}, nil)

	var dataCache sop.L2Cache
	var dataCacheTTL time.Duration
	if dataInfo.IsValueDataGloballyCached {
		var cacheOpts sop.TransactionOptions
		dbOpts.CopyTo(&cacheOpts)
		if cacheOpts.RedisConfig == nil {
			cacheOpts.CacheType = sop.InMemory
		}
		dataCache = sop.GetL2Cache(cacheOpts)
		if dataInfo.CacheConfig != nil {
			dataCacheTTL = dataInfo.CacheConfig.ValueDataCacheDuration
		}
	}

	metaNodeRepo := memstore.NewNodeRepository[string, []byte]()
	if metaSnap.Nodes != nil {
		metaNodeRepo.Restore(metaSnap.Nodes)
	}
	metaTracker := memstore.NewItemActionTracker[string, []byte]()
	metaInfo := metaSnap.StoreInfo
	if metaInfo.Name == "" {
		metaInfo = *sop.NewStoreInfo(sop.ConfigureStore("meta", true, 8, "shard region metainfo", sop.SmallData, ""))
	}
	metaTree := btree.NewBtree[string, []byte](metaInfo, &btree.StoreInterface[string, []byte]{
		NodeRepository:    metaNodeRepo,
		ItemActionTracker: metaTracker,
	}, nil)
	metaArea := newTreeMetainfoArea(metaTree)

	s := &Store{
		path:         path,
		orderSource:  &OrderSource{},
		tokenSource:  NewTokenSource(),
		nodeRepo:     nodeRepo,
		tracker:      tracker,
		dataTree:     dataTree,
		dataCache:    dataCache,
		dataCacheTTL: dataCacheTTL,
		metaNodeRepo: metaNodeRepo,
		metaTracker:  metaTracker,
		metaTree:     metaTree,
		metaArea:     metaArea,
	}

	if dataSnap.StoreInfo.Name == "" {
		domain := NewRegionMap[[]byte](Universe(), nil)
		if _, err := UpdateMetainfo(context.Background(), metaArea, domain, domain); err != nil {
			return nil, fmt.Errorf("kvstore: initialize metainfo: %w", err)
		}
	}
	return s, nil
}

// Close persists the current tree state to path. Callers must not use the
// Store afterward. The .data and .meta files are independent snapshots
// written to distinct paths, so they save concurrently via errgroup.
func (s *Store) Close() error {
	var eg errgroup.Group
	eg.Go(func() error {
		dataSnap := memstore.Snapshot[string, Record]{
			StoreInfo: s.dataTree.GetStoreInfo(),
			Nodes:     s.nodeRepo.Snapshot(),
		}
		return memstore.Save(s.path+".data", dataSnap)
	})
	eg.Go(func() error {
		metaSnap := memstore.Snapshot[string, []byte]{
			StoreInfo: s.metaTree.GetStoreInfo(),
			Nodes:     s.metaNodeRepo.Snapshot(),
		}
		return memstore.Save(s.path+".meta", metaSnap)
	})
	return eg.Wait()
}

// Superblock is a scoped, transaction-and-admission-bound handle: it must be
// released along every exit path (defer sb.Release()), which rolls back an
// unfinished write and always exits the admission ticket.
type Superblock struct {
	store      *Store
	txn        sop.Transaction
	handle     *AdmissionHandle
	token      OrderToken
	mode       AcquireMode
	engine     *engine
	metaEngine *treeMetainfoArea
	done       bool
}

// NewReadToken reserves a shared read ticket immediately, preserving issue
// order in the store's FIFO queue, without blocking on admission. Pair with
// Acquire(ctx, AcquireRead or AcquireBackfill, handle, ...) once the caller is
// ready to wait for it: reserving early and waiting later is what lets a
// pipelining caller queue several operations' tickets up front instead of
// serializing reservation behind each operation's own admission wait (spec
// 4.3/6's store-view contract).
func (s *Store) NewReadToken() *AdmissionHandle {
	return s.tokenSource.NewReadToken()
}

// NewWriteToken reserves the exclusive write ticket immediately, preserving
// issue order. See NewReadToken.
func (s *Store) NewWriteToken() *AdmissionHandle {
	return s.tokenSource.NewWriteToken()
}

// Acquire waits for handle's admission (blocking, cancellably, in FIFO order)
// and then binds a transaction to it: AcquireRead/AcquireBackfill expect a
// handle from NewReadToken (ForReading transaction mode), AcquireWrite expects
// one from NewWriteToken (ForWriting). expectedChangeCount is an optional hint
// a write caller supplies; Acquire accepts it and does not use it. handle
// must not have been used with Acquire before.
func (s *Store) Acquire(ctx context.Context, mode AcquireMode, handle *AdmissionHandle, expectedChangeCount int) (*Superblock, error) {
	wantWrite := mode == AcquireWrite
	if handle.IsWrite() != wantWrite {
		return nil, fmt.Errorf("kvstore: Acquire: mode %v requires a handle from %s", mode, map[bool]string{true: "NewWriteToken", false: "NewReadToken"}[wantWrite])
	}
	label := "read"
	txnMode := sop.ForReading
	switch mode {
	case AcquireWrite:
		label = "write"
		txnMode = sop.ForWriting
	case AcquireBackfill:
		label = "backfill"
	}
	token := s.orderSource.Next(label)
	if err := handle.Wait(ctx); err != nil {
		return nil, err
	}
	txn, err := sop.NewTransaction(txnMode, memstore.NewTransaction(txnMode, 30*time.Second), false)
	if err != nil {
		handle.Release()
		return nil, sop.Error{Code: sop.FileIOError, Err: fmt.Errorf("%w: %v", ErrIo, err), UserData: s.path}
	}
	if err := txn.Begin(ctx); err != nil {
		handle.Release()
		return nil, sop.Error{Code: sop.FileIOError, Err: fmt.Errorf("%w: %v", ErrIo, err), UserData: s.path}
	}
	_ = expectedChangeCount
	return &Superblock{
		store:      s,
		txn:        txn,
		handle:     handle,
		token:      token,
		mode:       mode,
		engine:     newEngine(s.dataTree, s.dataCache, s.dataCacheTTL),
		metaEngine: s.metaArea,
	}, nil
}

// AcquireNow reserves the appropriate ticket and immediately acquires it,
// for callers that have no use for splitting reservation from admission.
func (s *Store) AcquireNow(ctx context.Context, mode AcquireMode, expectedChangeCount int) (*Superblock, error) {
	var handle *AdmissionHandle
	if mode == AcquireWrite {
		handle = s.NewWriteToken()
	} else {
		handle = s.NewReadToken()
	}
	return s.Acquire(ctx, mode, handle, expectedChangeCount)
}

// Release ends the superblock's scope: on a write superblock that was never
// committed it rolls back, then always exits the admission ticket. Safe to
// call more than once.
func (sb *Superblock) Release(ctx context.Context) {
	if sb.done {
		return
	}
	sb.done = true
	if sb.txn.HasBegun() {
		sb.txn.Rollback(ctx)
	}
	sb.handle.Release()
}

// Commit finalizes a write superblock. Read/backfill superblocks may call it
// too (it is a no-op two-phase commit either way) but Release is sufficient
// for them.
func (sb *Superblock) Commit(ctx context.Context) error {
	if err := sb.txn.Commit(ctx); err != nil {
		return sop.Error{Code: sop.FileIOError, Err: fmt.Errorf("%w: %v", ErrIo, err), UserData: sb.token}
	}
	sb.done = true
	sb.handle.Release()
	return nil
}

// Token returns the OrderToken stamped when this superblock was acquired.
func (sb *Superblock) Token() OrderToken {
	return sb.token
}

func (sb *Superblock) nextCas() uint64 {
	return sb.store.casCounter.Add(1)
}

// ExecuteRead dispatches a Read against this superblock's snapshot of the
// tree.
func (sb *Superblock) ExecuteRead(ctx context.Context, r Read, effectiveTime uint32) (ReadResponse, error) {
	if r.Get != nil {
		res, err := sb.engine.get(ctx, r.Get.Key, effectiveTime)
		if err != nil {
			return ReadResponse{}, err
		}
		return ReadResponse{GetResult: &res}, nil
	}
	region := r.GetRegion()
	entries, err := sb.engine.rget(ctx, region, effectiveTime)
	if err != nil {
		return ReadResponse{}, err
	}
	return ReadResponse{RGetResult: &RGetResult{Entries: entries}}, nil
}

// ExecuteWrite dispatches a Write against this superblock's tree. The caller
// is responsible for calling Commit to make the mutation durable.
func (sb *Superblock) ExecuteWrite(ctx context.Context, w Write, effectiveTime uint32) (WriteResponse, error) {
	recency := sb.token.Sequence
	switch {
	case w.GetCas != nil:
		res, err := sb.engine.get(ctx, w.GetCas.Key, effectiveTime)
		if err != nil {
			return WriteResponse{}, err
		}
		if !res.Found {
			return WriteResponse{NotFound: true}, nil
		}
		return WriteResponse{Ok: true, Cas: res.Cas}, nil
	case w.Sarc != nil:
		return sb.engine.sarc(ctx, *w.Sarc, sb.nextCas, recency)
	case w.IncrDecr != nil:
		return sb.engine.incrDecr(ctx, *w.IncrDecr, sb.nextCas, recency, effectiveTime)
	case w.AppendPrepend != nil:
		return sb.engine.appendPrepend(ctx, *w.AppendPrepend, sb.nextCas, recency, effectiveTime)
	case w.Delete != nil:
		return sb.engine.deleteKey(ctx, w.Delete.Key, w.Delete.DontPutInDeleteQueue, recency)
	}
	return WriteResponse{}, fmt.Errorf("kvstore: empty write")
}

// GetMetainfo returns the shard's current region-keyed metainfo map.
func (sb *Superblock) GetMetainfo(ctx context.Context) (RegionMap[[]byte], error) {
	return GetMetainfoInternal(ctx, sb.metaEngine)
}

// SetMetainfo replaces the region-keyed metainfo map, checking it against
// expected first (see kvstore.CheckAndUpdateMetainfo).
func (sb *Superblock) SetMetainfo(ctx context.Context, expected, newMap RegionMap[[]byte]) (RegionMap[[]byte], error) {
	return CheckAndUpdateMetainfo(ctx, sb.metaEngine, expected, newMap)
}

// ResetData discards every record in r and rewrites metainfo over r's domain
// to blank, in one write superblock, per spec ResetData semantics.
func (sb *Superblock) ResetData(ctx context.Context, r Region, blank []byte) error {
	if sb.mode != AcquireWrite {
		return fmt.Errorf("kvstore: ResetData requires a write superblock")
	}
	if err := sb.engine.eraseRange(ctx, r); err != nil {
		return err
	}
	current, err := sb.GetMetainfo(ctx)
	if err != nil {
		return err
	}
	overlay := NewRegionMap[[]byte](r, blank)
	_, err = sb.SetMetainfo(ctx, current.Mask(r), overlay)
	return err
}
