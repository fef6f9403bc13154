package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/energy-dashboard/internal/energy"
)

const (
	// DefaultNESOBaseURL is the NESO CKAN datastore SQL endpoint.
	DefaultNESOBaseURL = "https://api.neso.energy/api/3/action/datastore_search_sql"

	// DefaultNESOResourceID is the historic demand data resource.
	DefaultNESOResourceID = "b2bde559-3455-4021-b179-dfe60c0337b0"
)

// NESOClient queries national demand from the NESO data portal.
type NESOClient struct {
	name       string
	baseURL    string
	resourceID string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
}

func NewNESOClient(cfg HTTPClientConfig, baseURL, resourceID string) *NESOClient {
	if baseURL == "" {
		baseURL = DefaultNESOBaseURL
	}
	if resourceID == "" {
		resourceID = DefaultNESOResourceID
	}
	return &NESOClient{
		name:       "neso",
		baseURL:    baseURL,
		resourceID: resourceID,
		httpCfg:    cfg,
		circuit:    newCircuit("neso"),
	}
}

func (c *NESOClient) Name() string {
	return c.name
}

// DemandQuery builds the datastore SQL selecting settlement dates from the
// first day through the end of the last day, oldest first.
func (c *NESOClient) DemandQuery(from, to time.Time) string {
	return fmt.Sprintf(
		`SELECT * FROM "%s" WHERE "SETTLEMENT_DATE" >= '%sT00:00:00.000Z' AND "SETTLEMENT_DATE" <= '%sT23:59:59.000Z' ORDER BY "SETTLEMENT_DATE" ASC`,
		c.resourceID, from.Format(energy.DateLayout), to.Format(energy.DateLayout),
	)
}

// FetchDemand returns the raw demand records for settlement dates in [from, to].
// Record keys are the upstream column names, unmodified.
func (c *NESOClient) FetchDemand(ctx context.Context, from, to time.Time) ([]map[string]any, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("sql", c.DemandQuery(from, to))

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	var payload struct {
		Success bool `json:"success"`
		Result  struct {
			Records []map[string]any `json:"records"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := getJSON(ctx, c.httpCfg, c.circuit, buildRequest, &payload); err != nil {
		return nil, err
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("neso query failed: %s", payload.Error.Message)
	}
	return payload.Result.Records, nil
}
