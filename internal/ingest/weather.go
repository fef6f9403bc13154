package ingest

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/energy/providers"
)

var errNoWeather = errors.New("no weather data fetched for any region")

// WeatherClient is the upstream the weather source reads from.
type WeatherClient interface {
	FetchHourly(ctx context.Context, region energy.Region, from, to time.Time) (providers.HourlySeries, error)
}

// RegionSeries is the hourly series fetched for one region.
type RegionSeries struct {
	Region energy.Region
	Hourly providers.HourlySeries
}

// WeatherSource refetches the current month of hourly weather for every
// region whenever a day of the month is missing.
type WeatherSource struct {
	client  WeatherClient
	checker *FreshnessChecker
	regions []energy.Region
}

func NewWeatherSource(client WeatherClient, checker *FreshnessChecker, regions []energy.Region) *WeatherSource {
	if regions == nil {
		regions = energy.Regions
	}
	return &WeatherSource{client: client, checker: checker, regions: regions}
}

func (s *WeatherSource) Name() string        { return "weather" }
func (s *WeatherSource) Table() energy.Table { return energy.TableWeather }

func (s *WeatherSource) Gate(ctx context.Context) (Window, bool, error) {
	missing, err := s.checker.MissingDay(ctx, energy.TableWeather)
	if err != nil || !missing {
		return Window{}, false, err
	}
	today := energy.Midnight(s.checker.Now().In(s.checker.loc))
	return Window{Start: energy.FirstOfMonth(today), End: today}, true, nil
}

// Fetch calls the archive once per region. A failing region is logged and
// left out; only a total failure is an error.
func (s *WeatherSource) Fetch(ctx context.Context, w Window) ([]RegionSeries, error) {
	out := make([]RegionSeries, 0, len(s.regions))
	for _, region := range s.regions {
		hourly, err := s.client.FetchHourly(ctx, region, w.Start, w.End)
		if err != nil {
			log.WithField("region", region.Name).WithError(err).Warn("weather fetch failed")
			continue
		}
		log.WithField("region", region.Name).Debugf("%d hourly records", len(hourly.Time))
		out = append(out, RegionSeries{Region: region, Hourly: hourly})
	}
	if len(out) == 0 && len(s.regions) > 0 {
		return nil, errNoWeather
	}
	return out, nil
}

// Normalize emits one row per hour and region with missing values as zero.
func (s *WeatherSource) Normalize(series []RegionSeries) ([]energy.Row, int, error) {
	var rows []energy.Row
	dropped := 0
	for _, rs := range series {
		h := rs.Hourly
		for i, t := range h.Time {
			dt, err := energy.NormalizeDatetime(t)
			if err != nil {
				dropped++
				continue
			}
			rows = append(rows, energy.Row{
				energy.ColDatetime:   dt,
				energy.ColRegionID:   rs.Region.ID,
				energy.ColRegionName: rs.Region.Name,
				"temperature":        valueAt(h.Temperature2m, i),
				"humidity":           valueAt(h.RelativeHumidity2m, i),
				"wind_speed":         valueAt(h.WindSpeed10m, i),
				"cloud_cover":        valueAt(h.CloudCover, i),
				"precipitation":      valueAt(h.Precipitation, i),
			})
		}
	}
	return rows, dropped, nil
}

func valueAt(series []*float64, i int) float64 {
	if i >= len(series) || series[i] == nil {
		return 0
	}
	return *series[i]
}
