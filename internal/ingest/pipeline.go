// Package ingest keeps the time-series tables in sync with the upstream
// APIs. Each source runs through the same freshness-gated pipeline:
// check, fetch, normalize, then upload in batches.
package ingest

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/metrics"
)

// State is the lifecycle position of a pipeline run.
type State int32

const (
	Idle State = iota
	CheckingFreshness
	Skip
	Fetching
	Normalizing
	Uploading
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckingFreshness:
		return "checking_freshness"
	case Skip:
		return "skip"
	case Fetching:
		return "fetching"
	case Normalizing:
		return "normalizing"
	case Uploading:
		return "uploading"
	case Done:
		return "done"
	}
	return "unknown"
}

// Window is the span of days a run asks the upstream API for.
type Window struct {
	Start time.Time
	End   time.Time
}

// Source is one upstream dataset. P is the raw payload type of its client.
type Source[P any] interface {
	Name() string
	Table() energy.Table

	// Gate decides whether a fetch is needed and for which window.
	Gate(ctx context.Context) (Window, bool, error)
	Fetch(ctx context.Context, w Window) (P, error)

	// Normalize converts the payload to rows and reports how many records were dropped.
	Normalize(payload P) ([]energy.Row, int, error)
}

// Report summarises a single run.
type Report struct {
	Source   string       `json:"source"`
	Table    energy.Table `json:"table"`
	State    string       `json:"state"`
	Skipped  bool         `json:"skipped"`
	Rows     int          `json:"rows"`
	Dropped  int          `json:"dropped"`
	Upload   UploadReport `json:"upload"`
	Error    string       `json:"error,omitempty"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
}

// Failed reports whether the run ended on an error.
func (r Report) Failed() bool {
	return r.Error != ""
}

// Runner is anything the scheduler can launch as part of a refresh cycle.
type Runner interface {
	Name() string
	Run(ctx context.Context) Report
}

// Pipeline drives a Source through one gated run.
type Pipeline[P any] struct {
	source   Source[P]
	uploader *Uploader
	state    atomic.Int32
}

func NewPipeline[P any](source Source[P], uploader *Uploader) *Pipeline[P] {
	return &Pipeline[P]{source: source, uploader: uploader}
}

func (p *Pipeline[P]) Name() string {
	return p.source.Name()
}

// State returns the current lifecycle state.
func (p *Pipeline[P]) State() State {
	return State(p.state.Load())
}

func (p *Pipeline[P]) set(s State) {
	p.state.Store(int32(s))
}

// Run executes one pass. Failures are logged and recorded in the report;
// Run never returns an error.
func (p *Pipeline[P]) Run(ctx context.Context) Report {
	name := p.source.Name()
	rep := Report{Source: name, Table: p.source.Table(), Started: time.Now()}
	logger := log.WithFields(log.Fields{"source": name, "table": rep.Table})

	finish := func(s State, outcome string, err error) Report {
		p.set(s)
		rep.State = s.String()
		rep.Finished = time.Now()
		if err != nil {
			rep.Error = err.Error()
			logger.WithError(err).Errorf("%s run failed while %s", name, outcome)
			outcome = "failed"
		}
		metrics.IngestRuns.WithLabelValues(name, outcome).Inc()
		return rep
	}

	p.set(CheckingFreshness)
	w, needed, err := p.source.Gate(ctx)
	if err != nil {
		return finish(Done, "checking freshness", err)
	}
	if !needed {
		rep.Skipped = true
		logger.Info("data is up to date; skipping")
		return finish(Skip, "skipped", nil)
	}

	p.set(Fetching)
	logger.WithFields(log.Fields{
		"start": w.Start.Format(energy.DateLayout),
		"end":   w.End.Format(energy.DateLayout),
	}).Info("fetching")
	payload, err := p.source.Fetch(ctx, w)
	if err != nil {
		return finish(Done, "fetching", err)
	}

	p.set(Normalizing)
	rows, dropped, err := p.source.Normalize(payload)
	rep.Dropped = dropped
	if dropped > 0 {
		metrics.IngestRows.WithLabelValues(name, "dropped").Add(float64(dropped))
		logger.Warnf("dropped %d invalid records", dropped)
	}
	if err != nil {
		return finish(Done, "normalizing", err)
	}
	rep.Rows = len(rows)
	if len(rows) == 0 {
		logger.Warn("no valid rows to upload")
		return finish(Done, "empty", nil)
	}

	p.set(Uploading)
	logger.Infof("uploading %d rows", len(rows))
	rep.Upload = p.uploader.Upload(ctx, p.source.Table(), name, rows)
	return finish(Done, "uploaded", nil)
}
