package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type AppConfig struct {
	Port      string
	LogLevel  string
	LogFormat string
	Location  *time.Location

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// Outbound API calls.
	HTTPTimeout    time.Duration
	HTTPMaxRetries int
	NESOBaseURL    string
	NESOResourceID string
	CarbonBaseURL  string
	WeatherBaseURL string

	PageSize  int
	BatchSize int

	// Cache lifetimes.
	CacheTTL  time.Duration
	BoundsTTL time.Duration

	// Staleness is how old the last refresh may get before the next one.
	Staleness    time.Duration
	PollInterval time.Duration

	DemandLookback time.Duration
	DemandStep     time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "text")

	tz := getenvDefault("TIMEZONE", "Europe/London")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	cfg.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", DriverMemory))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "energy.db")
	switch cfg.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", DriverPostgres)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	cfg.NESOBaseURL = os.Getenv("NESO_BASE_URL")
	cfg.NESOResourceID = os.Getenv("NESO_RESOURCE_ID")
	cfg.CarbonBaseURL = os.Getenv("CARBON_BASE_URL")
	cfg.WeatherBaseURL = os.Getenv("WEATHER_BASE_URL")

	if cfg.HTTPMaxRetries, err = getenvInt("HTTP_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.PageSize, err = getenvInt("PAGE_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getenvInt("BATCH_SIZE", 500); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", "120s", &cfg.HTTPTimeout},
		{"CACHE_TTL", "5m", &cfg.CacheTTL},
		{"BOUNDS_TTL", "1h", &cfg.BoundsTTL},
		{"STALENESS", "24h", &cfg.Staleness},
		{"POLL_INTERVAL", "1h", &cfg.PollInterval},
		{"DEMAND_LOOKBACK", "2160h", &cfg.DemandLookback},
		{"DEMAND_STEP", "1h", &cfg.DemandStep},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}
