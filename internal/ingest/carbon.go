package ingest

import (
	"context"
	"fmt"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/energy/providers"
)

const (
	genPrefix       = "gen_"
	mixTolerancePct = 2.0
)

// CarbonClient is the upstream the carbon source reads from.
type CarbonClient interface {
	FetchRegional(ctx context.Context) (providers.CarbonSnapshot, error)
}

// CarbonSource stores the current regional carbon snapshot whenever a day
// of the month is missing.
type CarbonSource struct {
	client  CarbonClient
	checker *FreshnessChecker
}

func NewCarbonSource(client CarbonClient, checker *FreshnessChecker) *CarbonSource {
	return &CarbonSource{client: client, checker: checker}
}

func (s *CarbonSource) Name() string        { return "carbon" }
func (s *CarbonSource) Table() energy.Table { return energy.TableCarbon }

func (s *CarbonSource) Gate(ctx context.Context) (Window, bool, error) {
	missing, err := s.checker.MissingDay(ctx, energy.TableCarbon)
	if err != nil || !missing {
		return Window{}, false, err
	}
	today := energy.Today(s.checker.Now().In(s.checker.loc))
	return Window{Start: today.Start, End: today.End}, true, nil
}

// Fetch ignores the window: the API only serves the current snapshot.
func (s *CarbonSource) Fetch(ctx context.Context, _ Window) (providers.CarbonSnapshot, error) {
	return s.client.FetchRegional(ctx)
}

// Normalize emits one row per region. Every fuel seen in the snapshot gets a
// gen_ column on every row, zero when absent. Rows with neither a non-zero
// forecast nor an index are dropped.
func (s *CarbonSource) Normalize(snap providers.CarbonSnapshot) ([]energy.Row, int, error) {
	dt, err := energy.NormalizeDatetime(snap.From)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot time: %w", err)
	}

	var fuels []string
	known := make(map[string]struct{})
	for _, reg := range snap.Regions {
		for _, g := range reg.GenerationMix {
			col := fuelColumn(g.Fuel)
			if _, ok := known[col]; !ok {
				known[col] = struct{}{}
				fuels = append(fuels, col)
			}
		}
	}

	rows := make([]energy.Row, 0, len(snap.Regions))
	dropped := 0
	for _, reg := range snap.Regions {
		row := energy.Row{
			energy.ColDatetime:   dt,
			energy.ColRegionID:   reg.RegionID,
			energy.ColRegionName: reg.ShortName,
			"forecast":           nil,
			"index":              nil,
		}
		if f := reg.Intensity.Forecast; f != nil {
			row["forecast"] = *f
		}
		if idx := reg.Intensity.Index; idx != nil {
			row["index"] = *idx
		}
		for _, col := range fuels {
			row[col] = 0.0
		}
		for _, g := range reg.GenerationMix {
			if g.Perc != nil {
				row[fuelColumn(g.Fuel)] = *g.Perc
			}
		}

		if !usableCarbon(reg) {
			dropped++
			continue
		}
		checkMix(row, fuels)
		rows = append(rows, row)
	}
	return rows, dropped, nil
}

func usableCarbon(reg providers.CarbonRegion) bool {
	if f := reg.Intensity.Forecast; f != nil && *f != 0 {
		return true
	}
	idx := reg.Intensity.Index
	return idx != nil && *idx != ""
}

func fuelColumn(fuel string) string {
	return genPrefix + strings.ReplaceAll(strings.ToLower(strings.TrimSpace(fuel)), " ", "_")
}

// checkMix warns when a row's generation percentages are far from 100.
func checkMix(row energy.Row, fuels []string) {
	if len(fuels) == 0 {
		return
	}
	var sum float64
	for _, col := range fuels {
		v, _ := row.Float(col)
		sum += v
	}
	if math.Abs(sum-100) > mixTolerancePct {
		log.WithFields(log.Fields{
			"region":   row.RegionName(),
			"datetime": row.Datetime(),
			"sum":      sum,
		}).Warn("generation mix does not sum to 100%")
	}
}
