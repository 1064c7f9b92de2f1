package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/querygen/pkg/product"
)

const backendRedis = "redis"

// putIfAbsentOrNewer applies Supersedes atomically. Entries are hashes with
// the fields v (generator version), exp (expiry in unix millis, 0 = never)
// and data (JSON encoded CacheEntry).
//
// KEYS[1] entry key
// ARGV[1] candidate version, ARGV[2] candidate generated_at millis,
// ARGV[3] candidate expiry millis, ARGV[4] candidate JSON
//
// Returns {stored (0|1), visible JSON}.
var putIfAbsentOrNewer = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'v', 'exp', 'data')
if cur[3] then
	local ev = tonumber(cur[1]) or 0
	local eexp = tonumber(cur[2]) or 0
	local cv = tonumber(ARGV[1])
	local gen = tonumber(ARGV[2])
	local wins = false
	if ev < cv then
		wins = true
	elseif ev == cv and eexp > 0 and gen >= eexp then
		wins = true
	end
	if not wins then
		return {0, cur[3]}
	end
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'exp', ARGV[3], 'data', ARGV[4])
local exp = tonumber(ARGV[3])
if exp > 0 then
	redis.call('PEXPIREAT', KEYS[1], exp)
end
return {1, ARGV[4]}
`)

// RedisStore is the default Store, shared by all service instances.
// Entries with an age limit are expired by Redis at ExpiresAt.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a Redis backed store. An empty prefix selects
// DefaultPrefix.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) key(fp product.Fingerprint) string {
	return CacheKey{Prefix: s.prefix, Fingerprint: fp}.String()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, fp product.Fingerprint) (*CacheEntry, error) {
	data, err := s.redis.HGet(ctx, s.key(fp), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(backendRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, err
	}

	CacheHits.WithLabelValues(backendRedis).Inc()
	return entry, nil
}

// PutIfAbsentOrNewer implements Store.
func (s *RedisStore) PutIfAbsentOrNewer(ctx context.Context, entry *CacheEntry) (bool, *CacheEntry, error) {
	if entry == nil {
		return false, nil, fmt.Errorf("cache entry cannot be nil")
	}
	if err := entry.Validate(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return false, nil, err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return false, nil, fmt.Errorf("marshal cache entry: %w", err)
	}

	var expMillis int64
	if !entry.ExpiresAt.IsZero() {
		expMillis = entry.ExpiresAt.UnixMilli()
	}

	res, err := putIfAbsentOrNewer.Run(ctx, s.redis,
		[]string{s.key(entry.Fingerprint)},
		strconv.FormatInt(entry.GeneratorVersion, 10),
		strconv.FormatInt(entry.GeneratedAt.UnixMilli(), 10),
		strconv.FormatInt(expMillis, 10),
		data,
	).Slice()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return false, nil, fmt.Errorf("redis conditional put: %w", err)
	}
	if len(res) != 2 {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return false, nil, fmt.Errorf("redis conditional put: unexpected reply %v", res)
	}

	stored, _ := res[0].(int64)
	if stored == 1 {
		CacheWrites.WithLabelValues(backendRedis, WriteStored).Inc()
		return true, clone(entry), nil
	}

	raw, _ := res[1].(string)
	visible, err := decodeEntry([]byte(raw))
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return false, nil, err
	}
	CacheWrites.WithLabelValues(backendRedis, WriteLost).Inc()
	return false, visible, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, fp product.Fingerprint) error {
	if err := s.redis.Del(ctx, s.key(fp)).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func decodeEntry(data []byte) (*CacheEntry, error) {
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return &entry, nil
}
