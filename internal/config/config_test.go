package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDocumentedDefaults(t *testing.T) {
	clearOddscacheEnv(t)
	c := Load()

	assert.Equal(t, time.Second, c.PollIntervals.Odds)
	assert.Equal(t, 60*time.Second, c.PollIntervals.MatchList)
	assert.Equal(t, 30*time.Second, c.OddsHotTTL)
	assert.Equal(t, 5, c.MaxConcurrency)
	assert.Equal(t, 2.0, c.StaleMultiplier)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.False(t, c.CacheEnabled)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	clearOddscacheEnv(t)
	t.Setenv("ODDSCACHE_MAX_CONCURRENCY", "11")
	t.Setenv("ODDSCACHE_HOT_TTL_SEC", "45")

	c := Load()
	assert.Equal(t, 11, c.MaxConcurrency)
	assert.Equal(t, 45*time.Second, c.OddsHotTTL)
}

func TestLoad_TierOverrideFileWinsOverEnvDefault(t *testing.T) {
	clearOddscacheEnv(t)
	f, err := os.CreateTemp(t.TempDir(), "tier-override-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("pollIntervals:\n  odds: 2s\ncacheTTL:\n  odds: 4s\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	t.Setenv("ODDSCACHE_TIER_OVERRIDE_FILE", f.Name())
	c := Load()

	assert.Equal(t, 2*time.Second, c.PollIntervals.Odds)
	assert.Equal(t, 4*time.Second, c.CacheTTL.Odds)
}

func TestLoad_MissingTierOverrideFileFallsBackToDefaults(t *testing.T) {
	clearOddscacheEnv(t)
	t.Setenv("ODDSCACHE_TIER_OVERRIDE_FILE", "/nonexistent/path.yaml")

	c := Load()
	assert.Equal(t, time.Second, c.PollIntervals.Odds, "an unreadable override file must not be fatal")
}

func clearOddscacheEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				if len(e) >= 10 && e[:10] == "ODDSCACHE_" {
					os.Unsetenv(e[:i])
				}
				break
			}
		}
	}
}
