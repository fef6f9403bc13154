package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/energy-dashboard/internal/energy"
)

const (
	// DefaultWeatherBaseURL is the Open-Meteo historical archive endpoint.
	DefaultWeatherBaseURL = "https://archive-api.open-meteo.com/v1/archive"

	weatherTimezone = "Europe/London"
)

// HourlyVariables are the Open-Meteo hourly series requested per region.
var HourlyVariables = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"wind_speed_10m",
	"cloud_cover",
	"precipitation",
}

// HourlySeries holds Open-Meteo's parallel hourly arrays. Times are local
// wall-clock times without an offset; gaps in a series are nil.
type HourlySeries struct {
	Time               []string   `json:"time"`
	Temperature2m      []*float64 `json:"temperature_2m"`
	RelativeHumidity2m []*float64 `json:"relative_humidity_2m"`
	WindSpeed10m       []*float64 `json:"wind_speed_10m"`
	CloudCover         []*float64 `json:"cloud_cover"`
	Precipitation      []*float64 `json:"precipitation"`
}

// OpenMeteoClient fetches hourly archive weather for a coordinate.
type OpenMeteoClient struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoClient(cfg HTTPClientConfig, baseURL string) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}
	return &OpenMeteoClient{
		name:    "openmeteo",
		baseURL: baseURL,
		httpCfg: cfg,
		circuit: newCircuit("openmeteo"),
	}
}

func (c *OpenMeteoClient) Name() string {
	return c.name
}

// FetchHourly returns the hourly series for region between the two dates inclusive.
func (c *OpenMeteoClient) FetchHourly(ctx context.Context, region energy.Region, from, to time.Time) (HourlySeries, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", region.Lat))
		values.Set("longitude", fmt.Sprintf("%f", region.Lon))
		values.Set("start_date", from.Format(energy.DateLayout))
		values.Set("end_date", to.Format(energy.DateLayout))
		values.Set("hourly", strings.Join(HourlyVariables, ","))
		values.Set("timezone", weatherTimezone)

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	var payload struct {
		Hourly HourlySeries `json:"hourly"`
		Error  bool         `json:"error"`
		Reason string       `json:"reason"`
	}
	if err := getJSON(ctx, c.httpCfg, c.circuit, buildRequest, &payload); err != nil {
		return HourlySeries{}, err
	}
	if payload.Error {
		return HourlySeries{}, fmt.Errorf("openmeteo: %s", payload.Reason)
	}
	return payload.Hourly, nil
}
