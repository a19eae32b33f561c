// Package coalescer collapses concurrent fetches for the same key into a
// single in-flight operation shared by every caller.
package coalescer

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Coalescer is the RequestCoalescer: at most one Fn execution per key at any
// instant; callers joining mid-flight receive the same result (value or
// error) as the originator. Built on singleflight.Group, whose internal
// bookkeeping already clears a key's slot before Do returns to any waiter —
// exactly the strict cleanup-before-resolve spec requires.
type Coalescer struct {
	group  singleflight.Group
	active atomic.Int64
}

// Fn is the underlying operation a caller wants deduplicated by key.
type Fn func() ([]byte, error)

// New returns a ready-to-use Coalescer.
func New() *Coalescer {
	return &Coalescer{}
}

// Coalesce runs fn via singleflight keyed by key. Concurrent callers for the
// same key block on the same call and get the same ([]byte, error).
func (c *Coalescer) Coalesce(key string, fn Fn) ([]byte, error) {
	c.active.Add(1)
	defer c.active.Add(-1)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// ActiveCount returns the number of callers currently blocked inside Coalesce,
// across all keys (observability per spec).
func (c *Coalescer) ActiveCount() int64 {
	return c.active.Load()
}
