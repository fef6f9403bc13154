package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker"
)

// DefaultCarbonBaseURL is the regional snapshot endpoint of the GB Carbon Intensity API.
const DefaultCarbonBaseURL = "https://api.carbonintensity.org.uk/regional"

var errEmptySnapshot = errors.New("carbon intensity snapshot has no data")

// CarbonSnapshot is one half-hour window of regional readings.
type CarbonSnapshot struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Regions []CarbonRegion `json:"regions"`
}

// CarbonRegion is one region's reading. Missing forecast or index values stay nil.
type CarbonRegion struct {
	RegionID  int    `json:"regionid"`
	DNORegion string `json:"dnoregion"`
	ShortName string `json:"shortname"`
	Intensity struct {
		Forecast *float64 `json:"forecast"`
		Index    *string  `json:"index"`
	} `json:"intensity"`
	GenerationMix []FuelShare `json:"generationmix"`
}

// FuelShare is one fuel's percentage of a region's generation.
type FuelShare struct {
	Fuel string   `json:"fuel"`
	Perc *float64 `json:"perc"`
}

// CarbonIntensityClient fetches the current regional carbon snapshot.
type CarbonIntensityClient struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewCarbonIntensityClient(cfg HTTPClientConfig, baseURL string) *CarbonIntensityClient {
	if baseURL == "" {
		baseURL = DefaultCarbonBaseURL
	}
	return &CarbonIntensityClient{
		name:    "carbonintensity",
		baseURL: baseURL,
		httpCfg: cfg,
		circuit: newCircuit("carbonintensity"),
	}
}

func (c *CarbonIntensityClient) Name() string {
	return c.name
}

// FetchRegional returns the current snapshot for every region.
func (c *CarbonIntensityClient) FetchRegional(ctx context.Context) (CarbonSnapshot, error) {
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.baseURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	var payload struct {
		Data []CarbonSnapshot `json:"data"`
	}
	if err := getJSON(ctx, c.httpCfg, c.circuit, buildRequest, &payload); err != nil {
		return CarbonSnapshot{}, err
	}
	if len(payload.Data) == 0 {
		return CarbonSnapshot{}, errEmptySnapshot
	}
	return payload.Data[0], nil
}
