package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "LOG_LEVEL", "LOG_FORMAT", "TIMEZONE", "STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH",
	"HTTP_TIMEOUT", "HTTP_MAX_RETRIES", "PAGE_SIZE", "BATCH_SIZE", "CACHE_TTL", "BOUNDS_TTL",
	"STALENESS", "POLL_INTERVAL", "DEMAND_LOOKBACK", "DEMAND_STEP",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "Europe/London", cfg.Location.String())
	assert.Equal(t, 120*time.Second, cfg.HTTPTimeout)
	assert.Zero(t, cfg.HTTPMaxRetries)
	assert.Equal(t, 1000, cfg.PageSize)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, time.Hour, cfg.BoundsTTL)
	assert.Equal(t, 24*time.Hour, cfg.Staleness)
	assert.Equal(t, 90*24*time.Hour, cfg.DemandLookback)
	assert.Equal(t, time.Hour, cfg.DemandStep)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/energy.db")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("HTTP_MAX_RETRIES", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/energy.db", cfg.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.HTTPMaxRetries)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"STALENESS":    "a day",
		"PAGE_SIZE":    "-5",
		"TIMEZONE":     "Mars/Olympus",
		"STORE_DRIVER": "mongo",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestPostgresRequiresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}
