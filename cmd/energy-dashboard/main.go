package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i474232898/energy-dashboard/internal/config"
	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/energy/providers"
	"github.com/i474232898/energy-dashboard/internal/ingest"
	"github.com/i474232898/energy-dashboard/internal/logging"
	"github.com/i474232898/energy-dashboard/internal/store"
	"github.com/i474232898/energy-dashboard/internal/store/postgres"
	"github.com/i474232898/energy-dashboard/internal/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "energy-dashboard",
		Short:        "GB electricity demand, carbon intensity and weather dashboard",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newRefreshCmd())
	return root
}

// loadConfig reads the configuration and sets up logging from it.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// openStore opens the configured store. A store that cannot be opened is
// logged and reported as nil; callers run without data in that case.
func openStore(ctx context.Context, cfg *config.AppConfig) (energy.Store, func()) {
	noop := func() {}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Error("postgres store unavailable; running without data")
			return nil, noop
		}
		return s, func() { _ = s.Close() }
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.WithError(err).WithField("path", cfg.SQLitePath).Error("sqlite store unavailable; running without data")
			return nil, noop
		}
		return s, func() { _ = s.Close() }
	default:
		return store.NewMemoryStore(), noop
	}
}

// newRunners builds the three ingestion pipelines against s.
func newRunners(cfg *config.AppConfig, s energy.Store) []ingest.Runner {
	// Shared HTTP client for outbound calls.
	httpCfg := providers.NewHTTPClientConfig(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.HTTPMaxRetries)

	checker := ingest.NewFreshnessChecker(s, cfg.PageSize, cfg.Location)
	uploader := ingest.NewUploader(s, cfg.BatchSize)

	demand := ingest.NewDemandSource(
		providers.NewNESOClient(httpCfg, cfg.NESOBaseURL, cfg.NESOResourceID),
		s, cfg.Location, cfg.DemandLookback, cfg.DemandStep,
	)
	carbon := ingest.NewCarbonSource(providers.NewCarbonIntensityClient(httpCfg, cfg.CarbonBaseURL), checker)
	weather := ingest.NewWeatherSource(providers.NewOpenMeteoClient(httpCfg, cfg.WeatherBaseURL), checker, energy.Regions)

	return []ingest.Runner{
		ingest.NewPipeline[[]map[string]any](demand, uploader),
		ingest.NewPipeline[providers.CarbonSnapshot](carbon, uploader),
		ingest.NewPipeline[[]ingest.RegionSeries](weather, uploader),
	}
}
