// Package scheduler decides when the ingestion pipelines run. Refreshes are
// triggered from the interactive path, run in the background, and are
// reconciled on a later poll by invalidating the read caches exactly once.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/ingest"
	"github.com/i474232898/energy-dashboard/internal/metrics"
)

// DefaultStaleness is how old the last refresh may get before a new one starts.
const DefaultStaleness = 24 * time.Hour

// Invalidator is a cache that must be cleared after fresh data lands.
type Invalidator interface {
	Invalidate()
}

type cycle struct {
	id      string
	done    chan struct{}
	reports []ingest.Report
}

// Session is the interactive state carried between polls. Only the
// interactive path may touch it.
type Session struct {
	// LastUpdate is when the most recent cycle was launched.
	LastUpdate time.Time

	// Applied is set once the finished cycle's caches have been invalidated.
	Applied bool

	// Confirmed is the selection last displayed; Pending is a selection
	// requested while a cycle was running.
	Confirmed *energy.Selection
	Pending   *energy.Selection

	cycle   *cycle
	lastID  string
	reports []ingest.Report
}

// RunID returns the id of the running or most recently finished cycle.
func (s *Session) RunID() string {
	if s.cycle != nil {
		return s.cycle.id
	}
	return s.lastID
}

// Reports returns the pipeline reports of the last applied cycle.
func (s *Session) Reports() []ingest.Report {
	return s.reports
}

// Status is the outcome of one poll.
type Status struct {
	Updating   bool            `json:"updating"`
	Completed  bool            `json:"completed"`
	Rerender   bool            `json:"rerender"`
	RunID      string          `json:"runId,omitempty"`
	LastUpdate time.Time       `json:"lastUpdate"`
	Reports    []ingest.Report `json:"reports,omitempty"`
}

// Scheduler launches the pipelines when data is stale.
type Scheduler struct {
	runners   []ingest.Runner
	caches    []Invalidator
	staleness time.Duration

	Now func() time.Time
}

func New(runners []ingest.Runner, caches []Invalidator, staleness time.Duration) *Scheduler {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Scheduler{
		runners:   runners,
		caches:    caches,
		staleness: staleness,
		Now:       time.Now,
	}
}

// Poll reconciles a finished cycle and starts a new one when due. It never
// waits for the pipelines.
func (s *Scheduler) Poll(sess *Session) Status {
	if c := sess.cycle; c != nil {
		select {
		case <-c.done:
			if !sess.Applied {
				for _, inv := range s.caches {
					inv.Invalidate()
				}
				sess.Applied = true
				sess.reports = c.reports
				sess.lastID = c.id
				log.WithField("run_id", c.id).Info("refresh applied; caches invalidated")
				return s.finish(sess, Status{Completed: true, Rerender: true})
			}
			sess.cycle = nil
		default:
			return Status{Updating: true, RunID: c.id, LastUpdate: sess.LastUpdate}
		}
	}
	return s.finish(sess, Status{})
}

// finish clears the reconciled cycle and launches the next one if the data is stale.
func (s *Scheduler) finish(sess *Session, st Status) Status {
	if sess.Applied {
		sess.cycle = nil
	}
	if st.Completed {
		st.Reports = sess.reports
	}

	now := s.Now()
	if sess.cycle == nil && (sess.LastUpdate.IsZero() || now.Sub(sess.LastUpdate) >= s.staleness) {
		sess.LastUpdate = now
		sess.Applied = false
		sess.cycle = s.launch()
		st.Updating = true
	}

	st.RunID = sess.RunID()
	st.LastUpdate = sess.LastUpdate
	return st
}

func (s *Scheduler) launch() *cycle {
	c := &cycle{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	metrics.RefreshCycles.Inc()
	metrics.RefreshInFlight.Set(1)
	log.WithField("run_id", c.id).Info("data is stale; starting background refresh")

	go func() {
		defer close(c.done)
		defer metrics.RefreshInFlight.Set(0)
		c.reports = s.RunAll(context.Background(), c.id)
	}()
	return c
}

// RunAll runs every pipeline concurrently and waits for all of them. A
// panicking pipeline is turned into a failed report.
func (s *Scheduler) RunAll(ctx context.Context, runID string) []ingest.Report {
	logger := log.WithField("run_id", runID)
	reports := make([]ingest.Report, len(s.runners))

	var g errgroup.Group
	for i, r := range s.runners {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					logger.WithField("source", r.Name()).Errorf("pipeline panicked: %v", p)
					reports[i] = ingest.Report{
						Source:   r.Name(),
						State:    ingest.Done.String(),
						Error:    fmt.Sprintf("panic: %v", p),
						Finished: time.Now(),
					}
				}
			}()
			reports[i] = r.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, rep := range reports {
		if rep.Failed() {
			failed++
		}
	}
	logger.WithFields(log.Fields{
		"pipelines": len(reports),
		"failed":    failed,
	}).Info("refresh cycle finished")
	return reports
}
