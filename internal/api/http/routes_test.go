package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/energy-dashboard/internal/dashboard"
	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/loader"
	"github.com/i474232898/energy-dashboard/internal/scheduler"
	"github.com/i474232898/energy-dashboard/internal/store"
)

func newTestDashboard(t *testing.T) *dashboard.Dashboard {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	for d := 1; d <= 10; d++ {
		dt := fmt.Sprintf("2024-03-%02dT12:00:00", d)
		require.NoError(t, s.Upsert(ctx, energy.TableDemand, []energy.Row{{energy.ColDatetime: dt, "nd": 21000.0}}))
		require.NoError(t, s.Upsert(ctx, energy.TableCarbon, []energy.Row{
			{energy.ColDatetime: dt, energy.ColRegionID: 13, energy.ColRegionName: "London", "forecast": 190.0},
		}))
		require.NoError(t, s.Upsert(ctx, energy.TableWeather, []energy.Row{
			{energy.ColDatetime: dt, energy.ColRegionID: 13, energy.ColRegionName: "London", "temperature": 9.0},
		}))
	}

	fetcher := loader.NewFetcher(s, 0, time.Minute)
	bounds := loader.NewBoundsResolver(s, time.UTC, time.Hour)
	sched := scheduler.New(nil, []scheduler.Invalidator{fetcher, bounds}, 24*time.Hour)
	return dashboard.New(sched, fetcher, bounds, time.UTC)
}

func get(t *testing.T, target string) (*http.Response, []byte) {
	t.Helper()
	app := NewApp(newTestDashboard(t))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	resp, body := get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","service":"energy-dashboard"}`, string(body))
}

func TestBounds(t *testing.T) {
	resp, body := get(t, "/api/v1/bounds")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var r energy.DateRange
	require.NoError(t, json.Unmarshal(body, &r))
	assert.Equal(t, "2024-03-01..2024-03-10", r.String())
}

func TestDashboardSelection(t *testing.T) {
	resp, body := get(t, "/api/v1/dashboard?start=2024-03-02&end=2024-03-05&regions=London")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var view struct {
		Selection energy.Selection `json:"selection"`
		Demand    []energy.Row     `json:"demand"`
		Carbon    []energy.Row     `json:"carbon"`
		Summary   struct {
			Carbon struct {
				Rating string `json:"rating"`
			} `json:"carbon"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(body, &view))

	assert.Equal(t, []string{"London"}, view.Selection.Regions)
	assert.Len(t, view.Demand, 4)
	assert.Len(t, view.Carbon, 4)
	assert.Equal(t, "Moderate", view.Summary.Carbon.Rating)
}

func TestDashboardValidation(t *testing.T) {
	for _, target := range []string{
		"/api/v1/dashboard?period=1y",
		"/api/v1/dashboard?start=03/02/2024",
		"/api/v1/dashboard?country=Ireland",
		"/api/v1/dashboard?regions=Atlantis",
		"/api/v1/dashboard?regions=London,,",
	} {
		resp, body := get(t, target)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
		assert.Contains(t, string(body), `"error":true`)
	}
}

func TestDashboardCountryIsCaseInsensitive(t *testing.T) {
	resp, body := get(t, "/api/v1/dashboard?start=2024-03-02&end=2024-03-05&country=england")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var view struct {
		Selection energy.Selection `json:"selection"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, energy.RegionSet(energy.RegionsInCountry(energy.CountryEngland)), view.Selection.Regions)
}

func TestRegionsAndStatus(t *testing.T) {
	resp, body := get(t, "/api/v1/regions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload struct {
		Regions   []energy.Region `json:"regions"`
		Countries []string        `json:"countries"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Len(t, payload.Regions, 14)
	assert.Equal(t, energy.Countries, payload.Countries)

	resp, _ = get(t, "/api/v1/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	resp, body := get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "energy_refresh_cycles_total")
}
