package httpapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/energy-dashboard/internal/dashboard"
	"github.com/i474232898/energy-dashboard/internal/energy"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, dash *dashboard.Dashboard) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	v1.Get("/regions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"regions":   energy.Regions,
			"countries": energy.Countries,
		})
	})

	v1.Get("/bounds", func(c *fiber.Ctx) error {
		return c.JSON(dash.Bounds(c.UserContext()))
	})

	v1.Get("/dashboard", func(c *fiber.Ctx) error {
		var q dashboardQuery
		q.bind(c)
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		view, err := dash.RenderInput(c.UserContext(), q.toInput())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(view)
	})

	v1.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(dash.Status())
	})
}

// dashboardQuery holds the selection query parameters.
type dashboardQuery struct {
	Start      string   `validate:"omitempty,datetime=2006-01-02"`
	End        string   `validate:"omitempty,datetime=2006-01-02"`
	Period     string   `validate:"omitempty,oneof=7d 30d 90d all"`
	Country    string   `validate:"omitempty,oneof=England Wales Scotland"`
	Regions    []string `validate:"dive,required"`
	AllRegions bool
}

func (q *dashboardQuery) bind(c *fiber.Ctx) {
	q.Start = c.Query("start")
	q.End = c.Query("end")
	q.Period = c.Query("period")
	q.Country = canonicalCountry(c.Query("country"))
	q.AllRegions = c.QueryBool("allRegions")

	if raw := c.Query("regions"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			q.Regions = append(q.Regions, strings.TrimSpace(name))
		}
	}
}

// canonicalCountry maps a case-insensitive country name to its listed
// spelling; unknown names are returned unchanged for validation to reject.
func canonicalCountry(name string) string {
	name = strings.TrimSpace(name)
	for _, c := range energy.Countries {
		if strings.EqualFold(c, name) {
			return c
		}
	}
	return name
}

func (q dashboardQuery) toInput() dashboard.SelectionInput {
	return dashboard.SelectionInput{
		Start:      q.Start,
		End:        q.End,
		Period:     q.Period,
		Regions:    q.Regions,
		Country:    q.Country,
		AllRegions: q.AllRegions,
	}
}
