package cachecore

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddscache/oddscache/internal/coalescer"
)

// MemoryCacheStore is the reference in-memory CacheStore: a map guarded by a
// single mutex (low contention in practice, since the coalescer fans requests
// out — per spec's concurrency model), with full stale-while-revalidate
// semantics. Modeled on the teacher's internal/data/cache TTLCache, extended
// to carry separate fresh/stale watermarks instead of one expiry.
type MemoryCacheStore struct {
	mu              sync.RWMutex
	entries         map[string]Entry
	staleMultiplier float64
	coalescer       *coalescer.Coalescer
	now             func() time.Time
}

// NewMemoryCacheStore builds a MemoryCacheStore with the given stale
// multiplier (spec default 2; must be >= 1).
func NewMemoryCacheStore(staleMultiplier float64) *MemoryCacheStore {
	if staleMultiplier < 1 {
		staleMultiplier = DefaultStaleMultiplier
	}
	return &MemoryCacheStore{
		entries:         make(map[string]Entry),
		staleMultiplier: staleMultiplier,
		coalescer:       coalescer.New(),
		now:             time.Now,
	}
}

func (m *MemoryCacheStore) EnableSWR() bool { return true }

// Get returns the stored value whenever it is fresh or stale-serving,
// regardless of freshness — callers never get to make freshness decisions
// themselves.
func (m *MemoryCacheStore) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	now := m.now()
	if !e.Fresh(now) && !e.StaleServing(now) {
		return nil, false
	}
	return e.Value, true
}

func (m *MemoryCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{
		Value:      value,
		FreshUntil: now.Add(ttl),
		StaleUntil: now.Add(time.Duration(float64(ttl) * m.staleMultiplier)),
	}
	return nil
}

func (m *MemoryCacheStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryCacheStore) Exists(ctx context.Context, key string) bool {
	_, ok := m.Get(ctx, key)
	return ok
}

// KeysMatching supports '*' and '?' glob wildcards. Only used for low-
// cardinality hot-set enumeration; a linear scan is fine.
func (m *MemoryCacheStore) KeysMatching(_ context.Context, pattern string) ([]string, error) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for k, e := range m.entries {
		if !e.Fresh(now) && !e.StaleServing(now) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// GetOrSet implements the three-branch stampede protection from the spec:
// fresh hit returns immediately; stale hit triggers an unawaited background
// refresh through the coalescer and returns the stale value; a full miss
// blocks on the coalesced factory call.
func (m *MemoryCacheStore) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory Factory) ([]byte, error) {
	now := m.now()

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	switch {
	case ok && e.Fresh(now):
		return e.Value, nil

	case ok && e.StaleServing(now):
		go m.refreshInBackground(key, ttl, factory)
		return e.Value, nil

	default:
		v, err := m.coalescer.Coalesce(key, func() ([]byte, error) {
			return factory(ctx)
		})
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			if err := m.Set(ctx, key, v, ttl); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
}

// refreshInBackground runs the coalesced factory without blocking a reader.
// Failure here is swallowed: the stale value already served continues to
// age, and the next GetOrSet call retries.
func (m *MemoryCacheStore) refreshInBackground(key string, ttl time.Duration, factory Factory) {
	ctx := context.Background()
	v, err := m.coalescer.Coalesce(key, func() ([]byte, error) {
		return factory(ctx)
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("background refresh failed, serving stale")
		return
	}
	if len(v) == 0 {
		log.Debug().Str("key", key).Msg("background refresh returned null, previous entry continues to age")
		return
	}
	if err := m.Set(ctx, key, v, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("background refresh store failed")
	}
}
