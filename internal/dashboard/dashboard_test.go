package dashboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/ingest"
	"github.com/i474232898/energy-dashboard/internal/loader"
	"github.com/i474232898/energy-dashboard/internal/scheduler"
	"github.com/i474232898/energy-dashboard/internal/store"
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func span(from, to int) energy.DateRange {
	return energy.DateRange{Start: day(from), End: day(to)}
}

// heldRunner blocks until released, standing in for a slow upstream.
type heldRunner struct {
	release chan struct{}
}

func (r *heldRunner) Name() string { return "held" }

func (r *heldRunner) Run(context.Context) ingest.Report {
	<-r.release
	return ingest.Report{Source: "held", State: ingest.Done.String()}
}

func seedStore(t *testing.T, days int) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	for d := 1; d <= days; d++ {
		dt := fmt.Sprintf("2024-03-%02dT12:00:00", d)
		require.NoError(t, s.Upsert(ctx, energy.TableDemand, []energy.Row{
			{energy.ColDatetime: dt, "nd": float64(20000 + d)},
		}))
		for _, reg := range energy.Regions[:3] {
			require.NoError(t, s.Upsert(ctx, energy.TableCarbon, []energy.Row{
				{energy.ColDatetime: dt, energy.ColRegionID: reg.ID, energy.ColRegionName: reg.Name, "forecast": 100.0},
			}))
			require.NoError(t, s.Upsert(ctx, energy.TableWeather, []energy.Row{
				{energy.ColDatetime: dt, energy.ColRegionID: reg.ID, energy.ColRegionName: reg.Name, "temperature": 8.0},
			}))
		}
	}
	return s
}

func newDashboard(s energy.Store, runners ...ingest.Runner) *Dashboard {
	fetcher := loader.NewFetcher(s, 0, time.Minute)
	bounds := loader.NewBoundsResolver(s, time.UTC, time.Hour)
	sched := scheduler.New(runners, []scheduler.Invalidator{fetcher, bounds}, 24*time.Hour)
	return New(sched, fetcher, bounds, time.UTC)
}

func TestRenderQueuesSelectionDuringRefresh(t *testing.T) {
	ctx := context.Background()
	runner := &heldRunner{release: make(chan struct{})}
	d := newDashboard(seedStore(t, 10), runner)

	first := d.Render(ctx, nil)
	require.True(t, first.Updating)
	assert.Equal(t, span(10, 10), first.Selection.Range)
	assert.Equal(t, []string{"North Scotland"}, first.Selection.Regions)
	assert.Len(t, first.Carbon, 1, "cached data is served while the refresh runs")

	wanted := energy.Selection{Range: span(3, 5), Regions: []string{"London"}}
	queued := d.Render(ctx, &wanted)
	assert.True(t, queued.Updating)
	assert.Equal(t, first.Selection, queued.Selection)
	require.NotNil(t, queued.Pending)
	assert.True(t, queued.Pending.Equal(wanted))

	close(runner.release)

	var applied View
	require.Eventually(t, func() bool {
		applied = d.Render(ctx, nil)
		return !applied.Updating
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, applied.Refreshed)
	assert.True(t, applied.Rerender)
	assert.True(t, applied.Selection.Equal(wanted))
	assert.Nil(t, applied.Pending)
	assert.Len(t, applied.Demand, 3)
	assert.Empty(t, applied.Carbon, "London has no stored rows")

	again := d.Render(ctx, nil)
	assert.False(t, again.Refreshed)
	assert.True(t, again.Selection.Equal(wanted))
}

func TestRenderRevertDuringRefreshDropsQueuedSelection(t *testing.T) {
	ctx := context.Background()
	runner := &heldRunner{release: make(chan struct{})}
	d := newDashboard(seedStore(t, 10), runner)

	first := d.Render(ctx, nil)
	require.True(t, first.Updating)
	shownBefore := first.Selection

	other := energy.Selection{Range: span(3, 5), Regions: []string{"London"}}
	queued := d.Render(ctx, &other)
	require.NotNil(t, queued.Pending)

	reverted := d.Render(ctx, &shownBefore)
	assert.True(t, reverted.Updating)
	assert.Nil(t, reverted.Pending)

	close(runner.release)

	var applied View
	require.Eventually(t, func() bool {
		applied = d.Render(ctx, nil)
		return !applied.Updating
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, applied.Refreshed)
	assert.True(t, applied.Selection.Equal(shownBefore))
	assert.Nil(t, applied.Pending)
}

func TestRenderShowsRequestWhenIdle(t *testing.T) {
	ctx := context.Background()
	runner := &heldRunner{release: make(chan struct{})}
	close(runner.release)
	d := newDashboard(seedStore(t, 10), runner)

	require.Eventually(t, func() bool {
		return !d.Render(ctx, nil).Updating
	}, 2*time.Second, 5*time.Millisecond)

	sel := energy.Selection{Range: span(1, 10), Regions: []string{"North Scotland", "South Scotland"}}
	v := d.Render(ctx, &sel)
	assert.False(t, v.Updating)
	assert.Equal(t, span(1, 10), v.Bounds)
	assert.Len(t, v.Demand, 10)
	assert.Len(t, v.Carbon, 20)
	assert.Len(t, v.Weather, 20)
	require.NotNil(t, v.Summary.Carbon)
	assert.Equal(t, 2, v.Summary.Carbon.Regions)
	assert.Equal(t, "Low", v.Summary.Carbon.Rating)
}

func TestRefreshInvalidatesCaches(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t, 5)
	runner := &heldRunner{release: make(chan struct{})}
	close(runner.release)
	d := newDashboard(s, runner)

	sel := energy.Selection{Range: span(3, 3), Regions: []string{"North Scotland"}}
	require.Eventually(t, func() bool {
		return !d.Render(ctx, &sel).Updating
	}, 2*time.Second, 5*time.Millisecond)
	require.Len(t, d.Render(ctx, nil).Demand, 1)

	require.NoError(t, s.Upsert(ctx, energy.TableDemand, []energy.Row{
		{energy.ColDatetime: "2024-03-03T12:30:00", "nd": 1.0},
	}))
	assert.Len(t, d.Render(ctx, nil).Demand, 1, "memoized range is served until a refresh completes")

	d.sched.Now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	stale := d.Render(ctx, nil)
	require.True(t, stale.Updating)
	assert.Len(t, stale.Demand, 1)

	var after View
	require.Eventually(t, func() bool {
		after = d.Render(ctx, nil)
		return after.Refreshed
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, after.Demand, 2)
	assert.True(t, after.Selection.Equal(sel))
}

func TestRenderWithoutStore(t *testing.T) {
	d := newDashboard(nil)
	v := d.Render(context.Background(), nil)

	assert.Empty(t, v.Demand)
	assert.Nil(t, v.Summary.Demand)
	assert.Equal(t, v.Bounds.Start, v.Bounds.End)
}

func TestRenderInputRejectsUnknownRegion(t *testing.T) {
	d := newDashboard(seedStore(t, 3))
	_, err := d.RenderInput(context.Background(), SelectionInput{Regions: []string{"Atlantis"}})
	assert.Error(t, err)
}
