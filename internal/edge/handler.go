package edge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/oddscache/oddscache/internal/apierr"
	"github.com/oddscache/oddscache/internal/cachecore"
	"github.com/oddscache/oddscache/internal/coalescer"
	"github.com/oddscache/oddscache/internal/config"
	"github.com/oddscache/oddscache/internal/hotkeys"
	"github.com/oddscache/oddscache/internal/provider"
	"github.com/oddscache/oddscache/internal/scheduler"
	"github.com/oddscache/oddscache/internal/workerpool"
)

// Handler is the EdgeHandler: the thin per-request logic wiring C1-C4 per
// request class, per spec §4.6's T1-T4 templates.
type Handler struct {
	cfg       config.Config
	cache     cachecore.Store
	coalesce  *coalescer.Coalescer
	hot       *hotkeys.Registry
	client    provider.Client
	pool      *workerpool.Pool
	scheduler *scheduler.Scheduler
}

// New builds a Handler from its collaborators.
func New(cfg config.Config, cache cachecore.Store, coalesce *coalescer.Coalescer, hot *hotkeys.Registry, client provider.Client, pool *workerpool.Pool, sched *scheduler.Scheduler) *Handler {
	return &Handler{cfg: cfg, cache: cache, coalesce: coalesce, hot: hot, client: client, pool: pool, scheduler: sched}
}

// Routes registers every endpoint class on router.
func (h *Handler) Routes(router *mux.Router) {
	router.HandleFunc("/sports", h.withTrace(h.getSports)).Methods(http.MethodGet)
	router.HandleFunc("/sidebar", h.withTrace(h.getSidebar)).Methods(http.MethodGet)
	router.HandleFunc("/top-events", h.withTrace(h.getTopEvents)).Methods(http.MethodGet)
	router.HandleFunc("/banners", h.withTrace(h.getBanners)).Methods(http.MethodGet)
	router.HandleFunc("/sports/{sportId}/matches", h.withTrace(h.getMatchList)).Methods(http.MethodGet)
	router.HandleFunc("/odds/{id}", h.withTrace(h.getMatchOdds)).Methods(http.MethodGet)
	router.HandleFunc("/matches/{id}", h.withTrace(h.getMatchDetails)).Methods(http.MethodGet)
	router.HandleFunc("/tv/{id}", h.withTrace(h.getLiveTvScore)).Methods(http.MethodGet)
	router.HandleFunc("/vtv/{id}", h.withTrace(h.getVirtualTv)).Methods(http.MethodGet)
	router.HandleFunc("/results/{sportId}/{id}", h.withTrace(h.getResults)).Methods(http.MethodGet)
	router.HandleFunc("/priority-market", h.withTrace(h.postPriorityMarket)).Methods(http.MethodPost)
	router.HandleFunc("/stats", h.withTrace(h.getStats)).Methods(http.MethodGet)
}

// withTrace stamps every request with a correlation id, for tying coalesced
// fan-in back together in logs.
func (h *Handler) withTrace(next func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := uuid.NewString()
		log.Debug().Str("traceId", traceID).Str("path", r.URL.Path).Msg("request")
		next(w, r)
	}
}

// --- T1: pure read-from-cache --------------------------------------------

func (h *Handler) t1(w http.ResponseWriter, r *http.Request, key string, cacheTTL time.Duration, fetch func(context.Context) ([]byte, error)) {
	ctx := r.Context()
	v, err := h.cache.GetOrSet(ctx, key, cacheTTL, func(fctx context.Context) ([]byte, error) {
		callCtx, cancel := context.WithTimeout(fctx, h.cfg.RequestTimeout)
		defer cancel()
		return fetch(callCtx)
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("t1 upstream fetch failed")
		writeOK(w, nil)
		return
	}
	writeOK(w, v)
}

func (h *Handler) getSports(w http.ResponseWriter, r *http.Request) {
	h.t1(w, r, "sports", h.cfg.CacheTTL.Sports, h.client.GetAllSports)
}

func (h *Handler) getSidebar(w http.ResponseWriter, r *http.Request) {
	h.t1(w, r, "sidebar", h.cfg.CacheTTL.Sidebar, h.client.GetSidebarTree)
}

func (h *Handler) getTopEvents(w http.ResponseWriter, r *http.Request) {
	h.t1(w, r, "top-events", h.cfg.CacheTTL.TopEvents, h.client.GetTopEvents)
}

func (h *Handler) getBanners(w http.ResponseWriter, r *http.Request) {
	h.t1(w, r, "banners", h.cfg.CacheTTL.Banners, h.client.GetBanners)
}

func (h *Handler) getMatchList(w http.ResponseWriter, r *http.Request) {
	sportID, err := parseIntParam(r, "sportId")
	if err != nil {
		writeErr(w, apierr.Validationf("invalid sportId"))
		return
	}
	key := fmt.Sprintf("matches:%d", sportID)
	h.t1(w, r, key, h.cfg.CacheTTL.MatchList, func(ctx context.Context) ([]byte, error) {
		return h.client.GetMatchList(ctx, sportID)
	})
}

// --- T2: cache-then-hot (odds by id) --------------------------------------

func (h *Handler) getMatchOdds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	if id == "" {
		writeErr(w, apierr.Validationf("missing id"))
		return
	}
	sportID := parseIntQuery(r, "sportId")

	key := "odds:" + id
	if v, ok := h.cache.Get(ctx, key); ok {
		if err := h.hot.Mark(ctx, id, sportID); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("hot mark failed")
		}
		writeOK(w, v)
		return
	}

	v, err := h.coalesce.Coalesce(key, func() ([]byte, error) {
		callCtx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()
		return h.client.GetMatchOdds(callCtx, id, sportID)
	})
	if err != nil {
		writeErr(w, upstreamErr(err, "odds fetch failed"))
		return
	}
	if len(v) > 0 {
		if err := h.cache.Set(ctx, key, v, h.cfg.CacheTTL.Odds); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("odds cache write failed")
		}
	}
	if err := h.hot.Mark(ctx, id, sportID); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("hot mark failed")
	}
	writeOK(w, v)
}

// --- T3: on-demand cached once per id --------------------------------------

func (h *Handler) t3(w http.ResponseWriter, r *http.Request, key string, fetch func(context.Context) ([]byte, error)) {
	ctx := r.Context()
	v, err := h.cache.GetOrSet(ctx, key, h.cfg.CacheTTL.OnDemand, func(fctx context.Context) ([]byte, error) {
		callCtx, cancel := context.WithTimeout(fctx, h.cfg.RequestTimeout)
		defer cancel()
		return fetch(callCtx)
	})
	if err != nil {
		writeErr(w, upstreamErr(err, "upstream fetch failed"))
		return
	}
	if len(v) == 0 {
		writeErr(w, apierr.NotFoundf("not found"))
		return
	}
	writeOK(w, v)
}

func (h *Handler) getMatchDetails(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeErr(w, apierr.Validationf("missing id"))
		return
	}
	sportID := parseIntQuery(r, "sportId")
	h.t3(w, r, "details:"+id, func(ctx context.Context) ([]byte, error) {
		return h.client.GetMatchDetails(ctx, sportID, id)
	})
}

func (h *Handler) getLiveTvScore(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeErr(w, apierr.Validationf("missing id"))
		return
	}
	sportID := parseIntQuery(r, "sportId")
	h.t3(w, r, "tv:"+id, func(ctx context.Context) ([]byte, error) {
		return h.client.GetLiveTvScore(ctx, id, sportID)
	})
}

func (h *Handler) getVirtualTv(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeErr(w, apierr.Validationf("missing id"))
		return
	}
	h.t3(w, r, "vtv:"+id, func(ctx context.Context) ([]byte, error) {
		return h.client.GetVirtualTv(ctx, id)
	})
}

func (h *Handler) getResults(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sportID, err := parseIntParam(r, "sportId")
	if id == "" || err != nil {
		writeErr(w, apierr.Validationf("missing or invalid id/sportId"))
		return
	}
	key := fmt.Sprintf("results:%d:%s", sportID, id)
	h.t3(w, r, key, func(ctx context.Context) ([]byte, error) {
		return h.client.GetResults(ctx, sportID, id)
	})
}

// --- T4: pass-through -------------------------------------------------------

func (h *Handler) postPriorityMarket(w http.ResponseWriter, r *http.Request) {
	var req provider.PriorityMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apierr.Validationf("invalid request body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.PostTimeout)
	defer cancel()
	v, err := h.client.PostPriorityMarket(ctx, req)
	if err != nil {
		writeErr(w, apierr.UpstreamTransportf("priority market post failed"))
		return
	}
	writeOK(w, v)
}

// --- /stats ------------------------------------------------------------

type statsResponse struct {
	Started           bool        `json:"started"`
	OddsPollingActive bool        `json:"oddsPollingActive"`
	CoalescerActive   int64       `json:"coalescerActive"`
	Worker            workerStats `json:"worker"`
	HotKeys           []string    `json:"hotKeys"`
	HotKeyCount       int         `json:"hotKeyCount"`
}

type workerStats struct {
	Active     int64 `json:"active"`
	Queued     int64 `json:"queued"`
	Processing bool  `json:"processing"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schedStats := h.scheduler.Stats(ctx)
	hotList, _ := h.hot.List(ctx)

	ids := make([]string, 0, len(hotList))
	for _, rec := range hotList {
		ids = append(ids, rec.ID)
	}

	resp := statsResponse{
		Started:           schedStats.Started,
		OddsPollingActive: schedStats.OddsPollingActive,
		CoalescerActive:   h.coalesce.ActiveCount(),
		Worker: workerStats{
			Active:     h.pool.Active(),
			Queued:     h.pool.Queued(),
			Processing: h.pool.Active() > 0 || h.pool.Queued() > 0,
		},
		HotKeys:     ids,
		HotKeyCount: len(ids),
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}
