package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/shardstore"
)

// RedisOptions configures the singleton Redis connection used by RedisL2Cache.
type RedisOptions struct {
	Address                  string
	Password                 string
	DB                       int
	URL                      string
	DefaultDurationInSeconds int
}

func (opt RedisOptions) getDefaultDuration() time.Duration {
	if opt.DefaultDurationInSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(opt.DefaultDurationInSeconds) * time.Second
}

// DefaultRedisOptions returns sensible defaults for connecting to a local Redis instance.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Address:                  "localhost:6379",
		DB:                       0,
		DefaultDurationInSeconds: 24 * 60 * 60,
	}
}

type redisConnection struct {
	client    *redis.Client
	options   RedisOptions
	restartMu sync.Mutex
	lastRunID string
}

var (
	connection *redisConnection
	connMux    sync.Mutex
)

// getConnection returns the singleton Redis connection, creating it on first use.
func getConnection(options RedisOptions) *redisConnection {
	connMux.Lock()
	defer connMux.Unlock()
	if connection != nil {
		return connection
	}

	var opts *redis.Options
	if options.URL != "" {
		parsed, err := redis.ParseURL(options.URL)
		if err != nil {
			opts = &redis.Options{Addr: options.Address, Password: options.Password, DB: options.DB}
		} else {
			opts = parsed
		}
	} else {
		opts = &redis.Options{Addr: options.Address, Password: options.Password, DB: options.DB}
	}

	connection = &redisConnection{
		client:  redis.NewClient(opts),
		options: options,
	}
	return connection
}

// CloseRedisConnection releases the singleton Redis connection, if open.
func CloseRedisConnection() {
	connMux.Lock()
	defer connMux.Unlock()
	if connection != nil {
		connection.client.Close()
		connection = nil
	}
}

// RedisL2Cache is an L2Cache backed by Redis, suitable for Clustered deployments
// where multiple application instances must coordinate caching and locking.
type RedisL2Cache struct {
	conn *redisConnection
}

// NewRedisL2Cache constructs a RedisL2Cache from TransactionOptions.RedisConfig,
// falling back to DefaultRedisOptions when nil.
func NewRedisL2Cache(opts sop.TransactionOptions) sop.L2Cache {
	ro := DefaultRedisOptions()
	if opts.RedisConfig != nil {
		ro.Address = opts.RedisConfig.Address
		ro.Password = opts.RedisConfig.Password
		ro.DB = opts.RedisConfig.DB
		ro.URL = opts.RedisConfig.URL
	}
	return &RedisL2Cache{conn: getConnection(ro)}
}

// KeyNotFound reports whether err signifies a Redis cache-miss (key not found).
func KeyNotFound(err error) bool {
	return err == redis.Nil
}

func (c *RedisL2Cache) GetType() sop.L2CacheType { return sop.Redis }

func (c *RedisL2Cache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = c.conn.options.getDefaultDuration()
	}
	return c.conn.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisL2Cache) Get(ctx context.Context, key string) (bool, string, error) {
	v, err := c.conn.client.Get(ctx, key).Result()
	if err != nil {
		if KeyNotFound(err) {
			return false, "", nil
		}
		return false, "", err
	}
	return true, v, nil
}

func (c *RedisL2Cache) GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error) {
	if expiration <= 0 {
		expiration = c.conn.options.getDefaultDuration()
	}
	v, err := c.conn.client.GetEx(ctx, key, expiration).Result()
	if err != nil {
		if KeyNotFound(err) {
			return false, "", nil
		}
		return false, "", err
	}
	return true, v, nil
}

func (c *RedisL2Cache) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ba, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = c.conn.options.getDefaultDuration()
	}
	return c.conn.client.Set(ctx, key, ba, expiration).Err()
}

func (c *RedisL2Cache) SetStructs(ctx context.Context, keys []string, values []interface{}, expiration time.Duration) error {
	pipe := c.conn.client.Pipeline()
	if expiration <= 0 {
		expiration = c.conn.options.getDefaultDuration()
	}
	for i := range keys {
		ba, err := json.Marshal(values[i])
		if err != nil {
			return err
		}
		pipe.Set(ctx, keys[i], ba, expiration)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisL2Cache) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	s, err := c.conn.client.Get(ctx, key).Result()
	if err != nil {
		if KeyNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(s), target); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisL2Cache) GetStructEx(ctx context.Context, key string, target interface{}, expiration time.Duration) (bool, error) {
	if expiration <= 0 {
		expiration = c.conn.options.getDefaultDuration()
	}
	s, err := c.conn.client.GetEx(ctx, key, expiration).Result()
	if err != nil {
		if KeyNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(s), target); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisL2Cache) GetStructs(ctx context.Context, keys []string, targets []interface{}, expiration time.Duration) ([]bool, error) {
	found := make([]bool, len(keys))
	for i := range keys {
		ok, err := c.GetStructEx(ctx, keys[i], targets[i], expiration)
		if err != nil {
			return found, err
		}
		found[i] = ok
	}
	return found, nil
}

func (c *RedisL2Cache) Delete(ctx context.Context, keys []string) (bool, error) {
	n, err := c.conn.client.Del(ctx, keys...).Result()
	return n > 0, err
}

func (c *RedisL2Cache) Ping(ctx context.Context) error {
	return c.conn.client.Ping(ctx).Err()
}

func (c *RedisL2Cache) Clear(ctx context.Context) error {
	return c.conn.client.FlushDB(ctx).Err()
}

func (c *RedisL2Cache) Info(ctx context.Context, section string) (string, error) {
	return c.conn.client.Info(ctx, section).Result()
}

// IsRestarted compares Redis' reported run_id against the last observed one,
// reporting true (and remembering the new run_id) whenever it changes.
func (c *RedisL2Cache) IsRestarted(ctx context.Context) bool {
	info, err := c.conn.client.Info(ctx, "server").Result()
	if err != nil {
		return false
	}
	runID := parseRunID(info)
	if runID == "" {
		return false
	}
	c.conn.restartMu.Lock()
	defer c.conn.restartMu.Unlock()
	if c.conn.lastRunID == "" {
		c.conn.lastRunID = runID
		return false
	}
	if c.conn.lastRunID != runID {
		c.conn.lastRunID = runID
		return true
	}
	return false
}

func parseRunID(info string) string {
	const marker = "run_id:"
	idx := indexOf(info, marker)
	if idx < 0 {
		return ""
	}
	rest := info[idx+len(marker):]
	end := indexOf(rest, "\r\n")
	if end < 0 {
		end = len(rest)
	}
	return rest[:end]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func (c *RedisL2Cache) FormatLockKey(k string) string {
	return fmt.Sprintf("lock:%s", k)
}

func (c *RedisL2Cache) CreateLockKeys(keys []string) []*sop.LockKey {
	locks := make([]*sop.LockKey, len(keys))
	for i, k := range keys {
		locks[i] = &sop.LockKey{Key: c.FormatLockKey(k), LockID: sop.NewUUID()}
	}
	return locks
}

func (c *RedisL2Cache) CreateLockKeysForIDs(keys []sop.Tuple[string, sop.UUID]) []*sop.LockKey {
	locks := make([]*sop.LockKey, len(keys))
	for i, k := range keys {
		locks[i] = &sop.LockKey{Key: c.FormatLockKey(fmt.Sprintf("%s:%v", k.First, k.Second)), LockID: sop.NewUUID()}
	}
	return locks
}

// Lock attempts to acquire every lockKey via Redis SETNX-with-TTL, sorting keys first
// to avoid deadlocks between concurrently racing callers locking overlapping sets.
func (c *RedisL2Cache) Lock(ctx context.Context, duration time.Duration, lockKeys []*sop.LockKey) (bool, sop.UUID, error) {
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	sort.Slice(lockKeys, func(i, j int) bool { return lockKeys[i].Key < lockKeys[j].Key })

	acquired := make([]*sop.LockKey, 0, len(lockKeys))
	for _, lk := range lockKeys {
		ok, err := c.conn.client.SetNX(ctx, lk.Key, lk.LockID.String(), duration).Result()
		if err != nil {
			c.rollback(ctx, acquired)
			return false, sop.NilUUID, err
		}
		if ok {
			acquired = append(acquired, lk)
			lk.IsLockOwner = true
			continue
		}
		// Already held. Check re-entrancy.
		existing, err := c.conn.client.Get(ctx, lk.Key).Result()
		if err != nil && !KeyNotFound(err) {
			c.rollback(ctx, acquired)
			return false, sop.NilUUID, err
		}
		if existing == lk.LockID.String() {
			lk.IsLockOwner = true
			continue
		}
		c.rollback(ctx, acquired)
		conflictID, _ := sop.ParseUUID(existing)
		return false, conflictID, nil
	}
	return true, sop.NilUUID, nil
}

func (c *RedisL2Cache) rollback(ctx context.Context, acquired []*sop.LockKey) {
	for _, lk := range acquired {
		c.conn.client.Eval(ctx, unlockScript, []string{lk.Key}, lk.LockID.String())
		lk.IsLockOwner = false
	}
}

func (c *RedisL2Cache) DualLock(ctx context.Context, duration time.Duration, lockKeys []*sop.LockKey) (bool, sop.UUID, error) {
	return c.Lock(ctx, duration, lockKeys)
}

// unlockScript deletes a lock key only if it is still owned by the presented LockID,
// avoiding a race where a TTL expiry let another owner acquire it before we delete.
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

func (c *RedisL2Cache) IsLockedTTL(ctx context.Context, duration time.Duration, lockKeys []*sop.LockKey) (bool, error) {
	for _, lk := range lockKeys {
		v, err := c.conn.client.Get(ctx, lk.Key).Result()
		if err != nil {
			if KeyNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if v != lk.LockID.String() {
			return false, nil
		}
	}
	for _, lk := range lockKeys {
		if err := c.conn.client.Expire(ctx, lk.Key, duration).Err(); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (c *RedisL2Cache) IsLocked(ctx context.Context, lockKeys []*sop.LockKey) (bool, error) {
	for _, lk := range lockKeys {
		v, err := c.conn.client.Get(ctx, lk.Key).Result()
		if err != nil {
			if KeyNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if v != lk.LockID.String() {
			return false, nil
		}
	}
	return true, nil
}

func (c *RedisL2Cache) IsLockedByOthers(ctx context.Context, lockKeyNames []string) (bool, error) {
	for _, key := range lockKeyNames {
		_, err := c.conn.client.Get(ctx, c.FormatLockKey(key)).Result()
		if err == nil {
			return true, nil
		}
		if !KeyNotFound(err) {
			return false, err
		}
	}
	return false, nil
}

func (c *RedisL2Cache) IsLockedByOthersTTL(ctx context.Context, lockKeyNames []string, duration time.Duration) (bool, error) {
	for _, key := range lockKeyNames {
		lockKey := c.FormatLockKey(key)
		_, err := c.conn.client.Get(ctx, lockKey).Result()
		if err == nil {
			c.conn.client.Expire(ctx, lockKey, duration)
			return true, nil
		}
		if !KeyNotFound(err) {
			return false, err
		}
	}
	return false, nil
}

func (c *RedisL2Cache) Unlock(ctx context.Context, lockKeys []*sop.LockKey) error {
	var lastErr error
	for _, lk := range lockKeys {
		if err := c.conn.client.Eval(ctx, unlockScript, []string{lk.Key}, lk.LockID.String()).Err(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func init() {
	sop.RegisterL2CacheFactory(sop.Redis, NewRedisL2Cache)
}
