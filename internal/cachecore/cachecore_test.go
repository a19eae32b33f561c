package cachecore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntry_FreshAndStaleWindows(t *testing.T) {
	now := time.Now()
	e := Entry{
		FreshUntil: now.Add(time.Second),
		StaleUntil: now.Add(2 * time.Second),
	}

	assert.True(t, e.Fresh(now))
	assert.False(t, e.StaleServing(now), "fresh entries are not stale-serving")

	mid := now.Add(1500 * time.Millisecond)
	assert.False(t, e.Fresh(mid))
	assert.True(t, e.StaleServing(mid))

	expired := now.Add(3 * time.Second)
	assert.False(t, e.Fresh(expired))
	assert.False(t, e.StaleServing(expired))
}
