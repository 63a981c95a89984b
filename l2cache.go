package sop

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// L2CacheType identifies the backing technology of an L2Cache implementation.
type L2CacheType int

const (
	// InMemory backs the L2 cache with an in-process, sharded map. Appropriate for
	// Standalone deployments or tests; does not coordinate across processes.
	InMemory L2CacheType = iota
	// Redis backs the L2 cache with a Redis server/cluster, allowing lock and cache
	// coordination across multiple application instances (Clustered deployments).
	Redis
)

// LockKey identifies a named lock and, once acquired, the lock token (LockID) that
// proves ownership. IsLockOwner records whether the last Lock/DualLock call on this
// key was granted to the caller as opposed to being already held (re-entrant).
type LockKey struct {
	Key         string
	LockID      UUID
	IsLockOwner bool
}

// L2Cache is the distributed cache & locking tier used to coordinate superblock
// acquisition, metainfo reads and registry/handle lookups across process boundaries.
// Implementations must be safe for concurrent use.
type L2Cache interface {
	// GetType reports the backing technology of this cache instance.
	GetType() L2CacheType

	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (bool, string, error)
	GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error)
	SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetStructs(ctx context.Context, keys []string, values []interface{}, expiration time.Duration) error
	GetStruct(ctx context.Context, key string, target interface{}) (bool, error)
	GetStructEx(ctx context.Context, key string, target interface{}, expiration time.Duration) (bool, error)
	GetStructs(ctx context.Context, keys []string, targets []interface{}, expiration time.Duration) ([]bool, error)
	Delete(ctx context.Context, keys []string) (bool, error)
	Ping(ctx context.Context) error
	Clear(ctx context.Context) error
	Info(ctx context.Context, section string) (string, error)

	// IsRestarted reports whether the backing cache service appears to have restarted
	// since the caller last checked, e.g. a Redis failover. Callers use this to
	// invalidate assumptions that rely on cache continuity (such as lock TTL freshness).
	IsRestarted(ctx context.Context) bool

	// FormatLockKey returns the cache key used to store the lock record for k.
	FormatLockKey(k string) string
	// CreateLockKeys allocates a fresh LockID for each name and formats its cache key.
	CreateLockKeys(keys []string) []*LockKey
	// CreateLockKeysForIDs is like CreateLockKeys but derives names from (name, id) pairs,
	// used when locking handles/registry entries by their UUID.
	CreateLockKeysForIDs(keys []Tuple[string, UUID]) []*LockKey

	// Lock attempts to acquire all given lock keys atomically (all-or-nothing), granting
	// a TTL of duration. Returns false and the conflicting LockID if any key is already
	// held by someone else. Re-entrant: a caller presenting a LockID it already owns
	// succeeds without refreshing other keys it doesn't hold.
	Lock(ctx context.Context, duration time.Duration, lockKeys []*LockKey) (bool, UUID, error)
	// DualLock behaves like Lock but is used when two independent sets of resources
	// must be locked under one ordering-safe call.
	DualLock(ctx context.Context, duration time.Duration, lockKeys []*LockKey) (bool, UUID, error)
	// IsLockedTTL verifies ownership of lockKeys and, if all are owned and unexpired,
	// refreshes their TTL to duration.
	IsLockedTTL(ctx context.Context, duration time.Duration, lockKeys []*LockKey) (bool, error)
	// IsLocked reports whether all given lock keys are currently owned by the caller.
	IsLocked(ctx context.Context, lockKeys []*LockKey) (bool, error)
	// IsLockedByOthers reports whether any of the named keys is held by a different owner.
	IsLockedByOthers(ctx context.Context, lockKeyNames []string) (bool, error)
	// IsLockedByOthersTTL is like IsLockedByOthers but only considers locks with remaining TTL.
	IsLockedByOthersTTL(ctx context.Context, lockKeyNames []string, duration time.Duration) (bool, error)
	// Unlock releases the given lock keys if still owned by the caller.
	Unlock(ctx context.Context, lockKeys []*LockKey) error
}

// L2CacheFactory constructs an L2Cache given transaction-scoped options (e.g. Redis
// connection settings). Implementations are registered via RegisterL2CacheFactory.
type L2CacheFactory func(opts TransactionOptions) L2Cache

var (
	l2locker      sync.Mutex
	cacheRegistry = make(map[L2CacheType]L2CacheFactory)
	cacheInstances = make(map[string]L2Cache)
)

// RegisterL2CacheFactory registers the constructor used for a given L2CacheType.
// Backend packages (e.g. the in-memory or Redis cache implementations) call this
// from an init function so GetL2Cache can resolve them by TransactionOptions.CacheType.
func RegisterL2CacheFactory(t L2CacheType, f L2CacheFactory) {
	l2locker.Lock()
	defer l2locker.Unlock()
	cacheRegistry[t] = f
}

// getCacheKey derives a stable identity for a set of cache-relevant options so that
// callers configuring the same backend (e.g. same Redis address & DB) share one
// L2Cache instance instead of opening a new connection per transaction.
func getCacheKey(opts TransactionOptions) string {
	if opts.RedisConfig != nil {
		return fmt.Sprintf("%d:%s:%d:%s", opts.CacheType, opts.RedisConfig.Address, opts.RedisConfig.DB, opts.RedisConfig.URL)
	}
	return fmt.Sprintf("%d", opts.CacheType)
}

// NewCacheClient returns a ready-to-use L2Cache for callers that don't need custom
// connection options, defaulting to the InMemory backend. Callers that need Redis
// coordination should call GetL2Cache with an explicit TransactionOptions instead.
// Requires a backend package (e.g. the in-memory cache implementation) to have been
// imported so its factory is registered.
func NewCacheClient() L2Cache {
	return GetL2Cache(TransactionOptions{CacheType: InMemory})
}

// GetL2Cache returns a memoized L2Cache instance for the given options, constructing
// one via the registered factory for opts.CacheType on first use. Returns nil if no
// factory is registered for that type.
func GetL2Cache(opts TransactionOptions) L2Cache {
	key := getCacheKey(opts)

	l2locker.Lock()
	if c, ok := cacheInstances[key]; ok {
		l2locker.Unlock()
		return c
	}
	f, ok := cacheRegistry[opts.CacheType]
	l2locker.Unlock()
	if !ok {
		return nil
	}

	c := f(opts)

	l2locker.Lock()
	defer l2locker.Unlock()
	if existing, ok := cacheInstances[key]; ok {
		return existing
	}
	cacheInstances[key] = c
	return c
}
