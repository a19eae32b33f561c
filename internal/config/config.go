// Package config assembles the edge layer's immutable configuration from
// the environment at startup, per spec: no dynamic reconfiguration at
// runtime, stop + start to change.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the fully-populated, immutable configuration value.
type Config struct {
	PollIntervals struct {
		Odds       time.Duration
		MatchList  time.Duration
		TopEvents  time.Duration
		Banners    time.Duration
		Sidebar    time.Duration
	}

	CacheTTL struct {
		Sports     time.Duration
		MatchList  time.Duration
		Odds       time.Duration
		Details    time.Duration
		TV         time.Duration
		VTV        time.Duration
		Results    time.Duration
		Sidebar    time.Duration
		TopEvents  time.Duration
		Banners    time.Duration
		OnDemand   time.Duration
	}

	OddsHotTTL      time.Duration
	MaxConcurrency  int
	StaleMultiplier float64

	ProviderBaseURL     string
	ProviderRequestsSec float64
	ProviderBurst       int
	RequestTimeout      time.Duration
	PostTimeout         time.Duration

	CacheEnabled    bool
	CacheBackendURL string

	HTTPAddr string
}

// Load reads every recognized environment variable, applying spec's
// documented defaults where unset.
func Load() Config {
	var c Config

	c.PollIntervals.Odds = envDuration("ODDSCACHE_POLL_ODDS_MS", time.Second)
	c.PollIntervals.MatchList = envDuration("ODDSCACHE_POLL_MATCHLIST_MS", 60*time.Second)
	c.PollIntervals.TopEvents = envDuration("ODDSCACHE_POLL_TOPEVENTS_MS", time.Hour)
	c.PollIntervals.Banners = envDuration("ODDSCACHE_POLL_BANNERS_MS", time.Hour)
	c.PollIntervals.Sidebar = envDuration("ODDSCACHE_POLL_SIDEBAR_MS", 24*time.Hour)

	c.CacheTTL.Sports = 24 * time.Hour
	c.CacheTTL.MatchList = 2 * time.Minute
	c.CacheTTL.Odds = 2 * time.Second
	c.CacheTTL.Details = 24 * time.Hour
	c.CacheTTL.TV = 24 * time.Hour
	c.CacheTTL.VTV = 24 * time.Hour
	c.CacheTTL.Results = time.Hour
	c.CacheTTL.Sidebar = 48 * time.Hour
	c.CacheTTL.TopEvents = 2 * time.Hour
	c.CacheTTL.Banners = 2 * time.Hour
	c.CacheTTL.OnDemand = 24 * time.Hour

	c.OddsHotTTL = envSeconds("ODDSCACHE_HOT_TTL_SEC", 30*time.Second)
	c.MaxConcurrency = envInt("ODDSCACHE_MAX_CONCURRENCY", 5)
	c.StaleMultiplier = envFloat("ODDSCACHE_STALE_MULTIPLIER", 2.0)

	c.ProviderBaseURL = envString("ODDSCACHE_PROVIDER_BASE_URL", "http://localhost:9000")
	c.ProviderRequestsSec = envFloat("ODDSCACHE_PROVIDER_RPS", 20)
	c.ProviderBurst = envInt("ODDSCACHE_PROVIDER_BURST", 20)
	c.RequestTimeout = envDuration("ODDSCACHE_PROVIDER_REQUEST_TIMEOUT_MS", 3*time.Second)
	c.PostTimeout = envDuration("ODDSCACHE_PROVIDER_POST_TIMEOUT_MS", 5*time.Second)

	c.CacheEnabled = envBool("ODDSCACHE_CACHE_ENABLED", false)
	c.CacheBackendURL = envString("ODDSCACHE_CACHE_BACKEND_URL", "localhost:6379")

	c.HTTPAddr = envString("ODDSCACHE_HTTP_ADDR", ":8080")

	if path := envString("ODDSCACHE_TIER_OVERRIDE_FILE", ""); path != "" {
		applyTierOverrides(&c, path)
	}

	return c
}

// tierOverrideFile is the optional on-disk shape for ODDSCACHE_TIER_OVERRIDE_FILE,
// letting an operator retune poll intervals and TTLs without touching the
// environment block in a deploy manifest.
type tierOverrideFile struct {
	PollIntervals map[string]time.Duration `yaml:"pollIntervals"`
	CacheTTL      map[string]time.Duration `yaml:"cacheTTL"`
}

func applyTierOverrides(c *Config, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("tier override file unreadable, using defaults")
		return
	}
	var ov tierOverrideFile
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("tier override file invalid, using defaults")
		return
	}

	poll := map[string]*time.Duration{
		"odds":      &c.PollIntervals.Odds,
		"matchList": &c.PollIntervals.MatchList,
		"topEvents": &c.PollIntervals.TopEvents,
		"banners":   &c.PollIntervals.Banners,
		"sidebar":   &c.PollIntervals.Sidebar,
	}
	for k, v := range ov.PollIntervals {
		if dst, ok := poll[k]; ok {
			*dst = v
		}
	}

	ttl := map[string]*time.Duration{
		"sports":    &c.CacheTTL.Sports,
		"matchList": &c.CacheTTL.MatchList,
		"odds":      &c.CacheTTL.Odds,
		"details":   &c.CacheTTL.Details,
		"tv":        &c.CacheTTL.TV,
		"vtv":       &c.CacheTTL.VTV,
		"results":   &c.CacheTTL.Results,
		"sidebar":   &c.CacheTTL.Sidebar,
		"topEvents": &c.CacheTTL.TopEvents,
		"banners":   &c.CacheTTL.Banners,
		"onDemand":  &c.CacheTTL.OnDemand,
	}
	for k, v := range ov.CacheTTL {
		if dst, ok := ttl[k]; ok {
			*dst = v
		}
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
