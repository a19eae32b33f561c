package edge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddscache/oddscache/internal/apierr"
	"github.com/oddscache/oddscache/internal/cachecore"
	"github.com/oddscache/oddscache/internal/coalescer"
	"github.com/oddscache/oddscache/internal/config"
	"github.com/oddscache/oddscache/internal/hotkeys"
	"github.com/oddscache/oddscache/internal/provider"
	"github.com/oddscache/oddscache/internal/scheduler"
	"github.com/oddscache/oddscache/internal/workerpool"
)

type fakeClient struct {
	provider.Client
	sportsErr  error
	oddsErr    error
	detailsNil bool
	oddsCalls  int
}

func (f *fakeClient) GetAllSports(ctx context.Context) ([]byte, error) {
	if f.sportsErr != nil {
		return nil, f.sportsErr
	}
	return []byte(`[{"id":1}]`), nil
}

func (f *fakeClient) GetMatchOdds(ctx context.Context, gameID string, sportID int) ([]byte, error) {
	f.oddsCalls++
	if f.oddsErr != nil {
		return nil, f.oddsErr
	}
	return []byte(`{"gameId":"` + gameID + `"}`), nil
}

func (f *fakeClient) GetMatchDetails(ctx context.Context, sportID int, gameID string) ([]byte, error) {
	if f.detailsNil {
		return nil, nil
	}
	return []byte(`{"id":"` + gameID + `"}`), nil
}

func (f *fakeClient) PostPriorityMarket(ctx context.Context, req provider.PriorityMarketRequest) ([]byte, error) {
	return []byte(`{"accepted":true}`), nil
}

func newTestHandler(client *fakeClient) (*Handler, cachecore.Store) {
	var cfg config.Config
	cfg.RequestTimeout = time.Second
	cfg.PostTimeout = time.Second
	cfg.CacheTTL.Sports = time.Minute
	cfg.CacheTTL.Odds = time.Minute
	cfg.CacheTTL.OnDemand = time.Minute
	cfg.OddsHotTTL = 30 * time.Second

	cache := cachecore.NewMemoryCacheStore(2.0)
	shared := coalescer.New()
	hot := hotkeys.New(cache, cfg.OddsHotTTL)
	pool := workerpool.New(workerpool.Config{MaxConcurrency: 1, OddsTTL: cfg.CacheTTL.Odds, CallTimeout: cfg.RequestTimeout}, cache, shared, client)
	sched := scheduler.New(cfg, cache, hot, pool, client)

	return New(cfg, cache, shared, hot, client, pool, sched), cache
}

func TestGetSports_MissFetchesAndCaches(t *testing.T) {
	client := &fakeClient{}
	h, cache := newTestHandler(client)

	router := mux.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/sports", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)

	_, ok := cache.Get(context.Background(), "sports")
	assert.True(t, ok)
}

func TestGetSports_UpstreamErrorStillReturnsSuccessEnvelopeWithNullData(t *testing.T) {
	client := &fakeClient{sportsErr: errors.New("down")}
	h, _ := newTestHandler(client)

	router := mux.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/sports", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, "null", string(env.Data))
}

func TestGetMatchOdds_MarksHotOnHitAndMiss(t *testing.T) {
	client := &fakeClient{}
	h, _ := newTestHandler(client)

	router := mux.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/odds/g1?sportId=3", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, client.oddsCalls)

	records, err := h.hot.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "g1", records[0].ID)
	assert.Equal(t, 3, records[0].Metadata.SportID)

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	assert.Equal(t, 1, client.oddsCalls, "second request must be served from cache")
}

func TestGetMatchOdds_UpstreamErrorReturns500Envelope(t *testing.T) {
	client := &fakeClient{oddsErr: errors.New("timeout")}
	h, _ := newTestHandler(client)

	router := mux.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/odds/g1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestGetMatchOdds_UpstreamSemanticErrorPreservesErrorKind(t *testing.T) {
	client := &fakeClient{oddsErr: apierr.UpstreamSemanticf("bad sportId")}
	h, _ := newTestHandler(client)

	router := mux.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/odds/g1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "bad sportId", env.Error, "a tagged provider error must reach the envelope unwrapped")
}

func TestGetMatchDetails_NilUpstreamResultIsNotFound(t *testing.T) {
	client := &fakeClient{detailsNil: true}
	h, _ := newTestHandler(client)

	router := mux.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/matches/g1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostPriorityMarket_PassesThroughWithoutCaching(t *testing.T) {
	client := &fakeClient{}
	h, cache := newTestHandler(client)

	router := mux.NewRouter()
	h.Routes(router)

	body := `{"sportId":1,"id":"g1","marketName":"moneyline"}`
	req := httptest.NewRequest(http.MethodPost, "/priority-market", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, cache.Exists(context.Background(), "priority-market:g1"))
}

func TestGetStats_ReportsWorkerAndHotKeyState(t *testing.T) {
	client := &fakeClient{}
	h, _ := newTestHandler(client)

	router := mux.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.HotKeyCount)
}
