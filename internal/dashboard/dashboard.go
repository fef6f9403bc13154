// Package dashboard is the interactive entry point. Every request is
// serialized: it polls the update scheduler, settles which selection to
// show, and reads the rows and KPIs for it.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/ingest"
	"github.com/i474232898/energy-dashboard/internal/loader"
	"github.com/i474232898/energy-dashboard/internal/scheduler"
)

// View is everything a client needs to draw the dashboard.
type View struct {
	Bounds    energy.DateRange  `json:"bounds"`
	Selection energy.Selection  `json:"selection"`
	Pending   *energy.Selection `json:"pendingSelection,omitempty"`

	Demand  []energy.Row `json:"demand"`
	Carbon  []energy.Row `json:"carbon"`
	Weather []energy.Row `json:"weather"`
	Summary Summary      `json:"summary"`

	Updating   bool      `json:"updating"`
	Refreshed  bool      `json:"refreshed"`
	Rerender   bool      `json:"rerender"`
	LastUpdate time.Time `json:"lastUpdate"`
	RunID      string    `json:"runId,omitempty"`
}

// StatusView reports the refresh state without reading any rows.
type StatusView struct {
	Updating   bool            `json:"updating"`
	LastUpdate time.Time       `json:"lastUpdate"`
	RunID      string          `json:"runId,omitempty"`
	Reports    []ingest.Report `json:"reports"`
}

// Dashboard owns the single interactive session.
type Dashboard struct {
	mu      sync.Mutex
	session scheduler.Session

	sched   *scheduler.Scheduler
	fetcher *loader.Fetcher
	bounds  *loader.BoundsResolver
	loc     *time.Location
}

func New(sched *scheduler.Scheduler, fetcher *loader.Fetcher, bounds *loader.BoundsResolver, loc *time.Location) *Dashboard {
	if loc == nil {
		loc = time.UTC
	}
	return &Dashboard{
		sched:   sched,
		fetcher: fetcher,
		bounds:  bounds,
		loc:     loc,
	}
}

// Render shows req, or re-renders the current state when req is nil. While
// a refresh is running a new selection is queued and the confirmed one is
// shown; the queued selection is applied on the first render after it ends.
func (d *Dashboard) Render(ctx context.Context, req *energy.Selection) View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.render(ctx, req)
}

// RenderInput resolves a raw selection against the current one and renders it.
func (d *Dashboard) RenderInput(ctx context.Context, in SelectionInput) (View, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bounds := d.bounds.Resolve(ctx)
	req, err := in.Resolve(bounds, d.current(bounds), d.loc)
	if err != nil {
		return View{}, err
	}
	return d.render(ctx, req), nil
}

// Refresh is a headless render. It lets a stale cycle start and a finished
// one be applied when nobody is looking at the dashboard.
func (d *Dashboard) Refresh() scheduler.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sched.Poll(&d.session)
}

// Status polls the scheduler and reports the outcome of the last cycle.
func (d *Dashboard) Status() StatusView {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.sched.Poll(&d.session)
	return StatusView{
		Updating:   st.Updating,
		LastUpdate: st.LastUpdate,
		RunID:      st.RunID,
		Reports:    d.session.Reports(),
	}
}

// Bounds returns the available date range.
func (d *Dashboard) Bounds(ctx context.Context) energy.DateRange {
	return d.bounds.Resolve(ctx)
}

// PurgeExpired drops expired entries from the read caches.
func (d *Dashboard) PurgeExpired() {
	d.fetcher.PurgeExpired()
	d.bounds.PurgeExpired()
}

func (d *Dashboard) current(bounds energy.DateRange) energy.Selection {
	if d.session.Confirmed != nil {
		return *d.session.Confirmed
	}
	return DefaultSelection(bounds)
}

func (d *Dashboard) render(ctx context.Context, req *energy.Selection) View {
	st := d.sched.Poll(&d.session)
	bounds := d.bounds.Resolve(ctx)
	sess := &d.session

	var shown energy.Selection
	if st.Updating {
		if sess.Confirmed == nil {
			confirmed := DefaultSelection(bounds)
			sess.Confirmed = &confirmed
		}
		// The latest request wins; returning to the shown selection drops the queue.
		if req != nil {
			if req.Equal(*sess.Confirmed) {
				sess.Pending = nil
			} else {
				pending := *req
				sess.Pending = &pending
			}
		}
		shown = *sess.Confirmed
	} else {
		switch {
		case req != nil:
			shown = *req
		case sess.Pending != nil:
			shown = *sess.Pending
		default:
			shown = d.current(bounds)
		}
		sess.Confirmed = &shown
		sess.Pending = nil
	}

	v := View{
		Bounds:     bounds,
		Selection:  shown,
		Pending:    sess.Pending,
		Updating:   st.Updating,
		Refreshed:  st.Completed,
		Rerender:   st.Rerender,
		LastUpdate: st.LastUpdate,
		RunID:      st.RunID,
	}
	v.Demand = d.fetcher.Demand(ctx, shown.Range)
	v.Carbon = d.fetcher.Carbon(ctx, shown.Range, shown.Regions)
	v.Weather = d.fetcher.Weather(ctx, shown.Range, shown.Regions)
	v.Summary = Summarize(v.Demand, v.Carbon, v.Weather)
	return v
}
