package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/oddscache/oddscache/internal/apierr"
)

// DiamondProxyClient is the single concrete Client implementation: an HTTP
// client to the named upstream gateway, guarded by a circuit breaker (trips
// on consecutive failures, per the teacher's infra/breakers shape) and a
// token-bucket rate limiter (per the teacher's kraken REST client), with an
// explicit per-call deadline as required by spec's concurrency model.
type DiamondProxyClient struct {
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	getTimeout  time.Duration
	postTimeout time.Duration
}

// Config controls transport behavior.
type Config struct {
	BaseURL        string
	RequestsPerSec float64
	Burst          int
	GetTimeout     time.Duration
	PostTimeout    time.Duration
}

// New builds a DiamondProxyClient with sane defaults (3s GET / 5s POST
// deadlines per spec).
func New(cfg Config) *DiamondProxyClient {
	if cfg.GetTimeout <= 0 {
		cfg.GetTimeout = 3 * time.Second
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = 5 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}

	st := gobreaker.Settings{Name: "diamond-proxy"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	st.Timeout = 30 * time.Second

	return &DiamondProxyClient{
		baseURL:     cfg.BaseURL,
		http:        &http.Client{},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker:     gobreaker.NewCircuitBreaker(st),
		getTimeout:  cfg.GetTimeout,
		postTimeout: cfg.PostTimeout,
	}
}

func (c *DiamondProxyClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.getTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	v, err := c.breaker.Execute(func() (interface{}, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return readBody(resp)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// readBody maps the proxy's HTTP response to a payload or a tagged apierr,
// distinguishing a non-responsive upstream (5xx, transport) from one that
// responded but rejected the request (4xx, semantic) per the error taxonomy.
func readBody(resp *http.Response) ([]byte, error) {
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= 500 {
		return nil, apierr.UpstreamTransportf(fmt.Sprintf("upstream transport error: status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, apierr.UpstreamSemanticf(fmt.Sprintf("upstream semantic error: status %d body %s", resp.StatusCode, body))
	}
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	return body, nil
}

func (c *DiamondProxyClient) GetAllSports(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/sports", nil)
}

func (c *DiamondProxyClient) GetMatchList(ctx context.Context, sportID int) ([]byte, error) {
	return c.get(ctx, "/matches", url.Values{"sportId": {strconv.Itoa(sportID)}})
}

func (c *DiamondProxyClient) GetMatchOdds(ctx context.Context, gameID string, sportID int) ([]byte, error) {
	return c.get(ctx, "/odds", url.Values{"id": {gameID}, "sportId": {strconv.Itoa(sportID)}})
}

func (c *DiamondProxyClient) GetMatchDetails(ctx context.Context, sportID int, gameID string) ([]byte, error) {
	return c.get(ctx, "/details", url.Values{"id": {gameID}, "sportId": {strconv.Itoa(sportID)}})
}

func (c *DiamondProxyClient) GetLiveTvScore(ctx context.Context, gameID string, sportID int) ([]byte, error) {
	return c.get(ctx, "/tv", url.Values{"id": {gameID}, "sportId": {strconv.Itoa(sportID)}})
}

func (c *DiamondProxyClient) GetVirtualTv(ctx context.Context, gameID string) ([]byte, error) {
	return c.get(ctx, "/vtv", url.Values{"id": {gameID}})
}

func (c *DiamondProxyClient) GetResults(ctx context.Context, sportID int, gameID string) ([]byte, error) {
	return c.get(ctx, "/results", url.Values{"id": {gameID}, "sportId": {strconv.Itoa(sportID)}})
}

func (c *DiamondProxyClient) GetSidebarTree(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/sidebar", nil)
}

func (c *DiamondProxyClient) GetTopEvents(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/top-events", nil)
}

func (c *DiamondProxyClient) GetBanners(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/banners", nil)
}

func (c *DiamondProxyClient) PostPriorityMarket(ctx context.Context, req PriorityMarketRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.postTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	v, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/priority-market", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return readBody(resp)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
