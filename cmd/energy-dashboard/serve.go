package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/energy-dashboard/internal/api/http"
	"github.com/i474232898/energy-dashboard/internal/dashboard"
	"github.com/i474232898/energy-dashboard/internal/loader"
	"github.com/i474232898/energy-dashboard/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and keep the data fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			ctx := cmd.Context()

			s, closeStore := openStore(ctx, cfg)
			defer closeStore()

			fetcher := loader.NewFetcher(s, cfg.PageSize, cfg.CacheTTL)
			bounds := loader.NewBoundsResolver(s, cfg.Location, cfg.BoundsTTL)
			sched := scheduler.New(newRunners(cfg, s), []scheduler.Invalidator{fetcher, bounds}, cfg.Staleness)
			dash := dashboard.New(sched, fetcher, bounds, cfg.Location)

			// Periodic headless poll and cache purge.
			cron := scheduler.NewCron(cfg.Location,
				cfg.PollInterval, func() { dash.Refresh() },
				cfg.CacheTTL, dash.PurgeExpired,
			)
			if err := cron.Start(); err != nil {
				return err
			}
			defer cron.Stop()

			app := httpapi.NewApp(dash)

			go func() {
				log.WithField("port", cfg.Port).Info("listening")
				if err := app.Listen(":" + cfg.Port); err != nil {
					log.WithError(err).Error("fiber server stopped")
				}
			}()

			// Wait for termination signal
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.WithError(err).Error("error during shutdown")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	return cmd
}
