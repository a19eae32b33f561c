// Package cachecore implements the TTL key/value store with stale-while-revalidate
// semantics described by the edge cache's core data model.
package cachecore

import (
	"context"
	"time"
)

// Entry is a single cached payload plus its temporal metadata.
//
// Invariant: FreshUntil <= StaleUntil.
type Entry struct {
	Value      []byte
	FreshUntil time.Time
	StaleUntil time.Time
}

// Fresh reports whether the entry is still within its fresh window at now.
func (e Entry) Fresh(now time.Time) bool {
	return !now.After(e.FreshUntil)
}

// StaleServing reports whether the entry is expired-but-not-evicted at now.
func (e Entry) StaleServing(now time.Time) bool {
	return now.After(e.FreshUntil) && !now.After(e.StaleUntil)
}

// Factory produces a fresh value for a cache miss or a stale-while-revalidate refresh.
type Factory func(ctx context.Context) ([]byte, error)

// Store is the CacheStore port: a TTL key/value store with pattern-scan and
// getOrSet stampede protection. A caller of Get cannot distinguish fresh from
// stale — that decision lives entirely inside GetOrSet.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
	KeysMatching(ctx context.Context, pattern string) ([]string, error)

	// GetOrSet implements stale-while-revalidate per the store's EnableSWR policy.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, factory Factory) ([]byte, error)

	// EnableSWR reports whether this backend honors the stale-serving window
	// (step 2 of GetOrSet). External backends degrade to TTL-only.
	EnableSWR() bool
}

// DefaultStaleMultiplier is the default ratio of StaleUntil - FreshUntil to the fresh ttl.
const DefaultStaleMultiplier = 2.0
