// Package metrics holds the Prometheus collectors shared by the loader,
// the ingestion pipelines and the update scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energy_loader_cache_requests_total",
			Help: "Read-through cache lookups by cache and result (hit/miss).",
		},
		[]string{"cache", "result"},
	)

	PageRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energy_loader_page_requests_total",
			Help: "Paginated store reads by table.",
		},
		[]string{"table"},
	)

	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energy_ingest_runs_total",
			Help: "Pipeline runs by source and outcome (skipped/failed/uploaded).",
		},
		[]string{"source", "outcome"},
	)

	IngestBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energy_ingest_batches_total",
			Help: "Upsert batches by source and outcome (written/up_to_date/failed).",
		},
		[]string{"source", "outcome"},
	)

	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energy_ingest_rows_total",
			Help: "Rows by source and outcome (written/dropped).",
		},
		[]string{"source", "outcome"},
	)

	RefreshCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "energy_refresh_cycles_total",
			Help: "Background refresh cycles launched.",
		},
	)

	RefreshInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "energy_refresh_in_flight",
			Help: "1 while a background refresh cycle is running.",
		},
	)
)
