package cachecore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oddscache/oddscache/internal/coalescer"
)

// namespace prefixes every key this process writes, per spec's persisted
// state layout (a single "ex:" namespace; hot keys live under hot:odds:*
// beneath it via the caller-supplied key, not added here).
const namespace = "ex:"

// RedisCacheStore is the external, process-shared CacheStore backend. It has
// no native stale concept, so GetOrSet degrades to TTL-only: a key is either
// present (and returned unconditionally) or absent (full miss). Coalescing
// stays process-local — acceptable per spec, since the system targets
// single-node edge instances.
type RedisCacheStore struct {
	client    *redis.Client
	coalescer *coalescer.Coalescer
}

// NewRedisCacheStore connects to a Redis-compatible backend at addr.
func NewRedisCacheStore(addr string) *RedisCacheStore {
	return &RedisCacheStore{
		client:    redis.NewClient(&redis.Options{Addr: addr}),
		coalescer: coalescer.New(),
	}
}

func (r *RedisCacheStore) EnableSWR() bool { return false }

func (r *RedisCacheStore) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := r.client.Get(ctx, namespace+key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *RedisCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, namespace+key, value, ttl).Err()
}

func (r *RedisCacheStore) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, namespace+key).Err()
}

func (r *RedisCacheStore) Exists(ctx context.Context, key string) bool {
	n, err := r.client.Exists(ctx, namespace+key).Result()
	return err == nil && n > 0
}

func (r *RedisCacheStore) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, namespace+pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(namespace):])
	}
	return out, iter.Err()
}

// GetOrSet has only two branches against Redis: a hit returns unconditionally
// (no freshness probe is exposed by the backend); a miss blocks on the
// process-local coalesced factory call, then stores with a plain TTL.
func (r *RedisCacheStore) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory Factory) ([]byte, error) {
	if v, ok := r.Get(ctx, key); ok {
		return v, nil
	}

	v, err := r.coalescer.Coalesce(key, func() ([]byte, error) {
		return factory(ctx)
	})
	if err != nil {
		return nil, err
	}
	if len(v) > 0 {
		if err := r.Set(ctx, key, v, ttl); err != nil {
			return nil, err
		}
	}
	return v, nil
}
