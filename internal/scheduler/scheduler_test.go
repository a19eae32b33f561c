package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddscache/oddscache/internal/cachecore"
	"github.com/oddscache/oddscache/internal/coalescer"
	"github.com/oddscache/oddscache/internal/config"
	"github.com/oddscache/oddscache/internal/hotkeys"
	"github.com/oddscache/oddscache/internal/provider"
	"github.com/oddscache/oddscache/internal/workerpool"
)

type fakeClient struct {
	provider.Client
	oddsCalls int32
}

func (f *fakeClient) GetAllSports(ctx context.Context) ([]byte, error)   { return []byte(`[]`), nil }
func (f *fakeClient) GetSidebarTree(ctx context.Context) ([]byte, error) { return []byte(`[]`), nil }
func (f *fakeClient) GetTopEvents(ctx context.Context) ([]byte, error)   { return []byte(`[]`), nil }
func (f *fakeClient) GetBanners(ctx context.Context) ([]byte, error)     { return []byte(`[]`), nil }
func (f *fakeClient) GetMatchList(ctx context.Context, sportID int) ([]byte, error) {
	return []byte(`[]`), nil
}
func (f *fakeClient) GetMatchOdds(ctx context.Context, gameID string, sportID int) ([]byte, error) {
	atomic.AddInt32(&f.oddsCalls, 1)
	return []byte(`{"gameId":"` + gameID + `"}`), nil
}

func newTestScheduler(client *fakeClient) (*Scheduler, cachecore.Store, *hotkeys.Registry, *workerpool.Pool) {
	var cfg config.Config
	cfg.PollIntervals.Odds = 20 * time.Millisecond
	cfg.CacheTTL.Odds = time.Minute
	cfg.RequestTimeout = time.Second
	cfg.OddsHotTTL = 30 * time.Second

	cache := cachecore.NewMemoryCacheStore(2.0)
	hot := hotkeys.New(cache, cfg.OddsHotTTL)
	pool := workerpool.New(workerpool.Config{MaxConcurrency: 2, OddsTTL: cfg.CacheTTL.Odds, CallTimeout: cfg.RequestTimeout}, cache, coalescer.New(), client)
	s := New(cfg, cache, hot, pool, client)
	return s, cache, hot, pool
}

func TestOddsTick_SkipsWhenPreviousTickStillInFlight(t *testing.T) {
	client := &fakeClient{}
	s, cache, hot, _ := newTestScheduler(client)
	ctx := context.Background()

	require.NoError(t, hot.Mark(ctx, "g1", 1))
	s.tickInProgress.Store(true)

	before := testutil.ToFloat64(ticksSkipped)
	s.oddsTick(ctx)
	after := testutil.ToFloat64(ticksSkipped)
	assert.Equal(t, before+1, after)

	_, ok := cache.Get(ctx, "odds:g1")
	assert.False(t, ok, "a skipped tick must not dispatch any fetch")
}

func TestOddsTick_EmptyHotSetClearsFlagWithoutDispatch(t *testing.T) {
	client := &fakeClient{}
	s, _, _, _ := newTestScheduler(client)
	ctx := context.Background()

	s.oddsTick(ctx)
	assert.False(t, s.tickInProgress.Load())
	assert.Equal(t, int32(0), atomic.LoadInt32(&client.oddsCalls))
}

func TestOddsTick_DispatchesEveryHotKeyThroughThePool(t *testing.T) {
	client := &fakeClient{}
	s, cache, hot, pool := newTestScheduler(client)
	ctx := context.Background()

	require.NoError(t, hot.Mark(ctx, "g1", 1))
	require.NoError(t, hot.Mark(ctx, "g2", 1))

	s.oddsTick(ctx)

	select {
	case <-pool.TickComplete():
	case <-time.After(time.Second):
		t.Fatal("pool never drained")
	}

	_, ok := cache.Get(ctx, "odds:g1")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "odds:g2")
	assert.True(t, ok)
}

func TestScheduler_StartStopIsIdempotent(t *testing.T) {
	client := &fakeClient{}
	s, _, _, _ := newTestScheduler(client)
	ctx := context.Background()

	s.Start(ctx)
	s.Start(ctx)
	assert.True(t, s.started.Load())

	s.Stop()
	s.Stop()
	assert.False(t, s.started.Load())
}
