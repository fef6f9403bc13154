package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/energy-dashboard/internal/energy"
)

// Quick-select periods, counted back from the newest available day.
var periods = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// PeriodAll selects every available day.
const PeriodAll = "all"

// SelectionInput is a raw selection request. Zero fields keep the current value.
type SelectionInput struct {
	Start      string
	End        string
	Period     string
	Regions    []string
	Country    string
	AllRegions bool
}

// Empty reports whether the input asks for nothing, i.e. a plain re-render.
func (in SelectionInput) Empty() bool {
	return in.Start == "" && in.End == "" && in.Period == "" &&
		len(in.Regions) == 0 && in.Country == "" && !in.AllRegions
}

// DefaultSelection is the newest available day for the first region.
func DefaultSelection(bounds energy.DateRange) energy.Selection {
	return energy.Selection{
		Range:   energy.DateRange{Start: bounds.End, End: bounds.End},
		Regions: []string{energy.Regions[0].Name},
	}
}

// Resolve turns the input into a selection within bounds, starting from
// current for anything the input leaves out. Reversed dates are swapped and
// dates outside bounds are clamped. An empty input resolves to nil.
func (in SelectionInput) Resolve(bounds energy.DateRange, current energy.Selection, loc *time.Location) (*energy.Selection, error) {
	if in.Empty() {
		return nil, nil
	}
	sel := energy.Selection{Range: current.Range, Regions: current.Regions}

	switch {
	case in.Period != "":
		r, err := periodRange(in.Period, bounds)
		if err != nil {
			return nil, err
		}
		sel.Range = r
	case in.Start != "" || in.End != "":
		r, err := explicitRange(in.Start, in.End, loc)
		if err != nil {
			return nil, err
		}
		sel.Range = r
	}
	sel.Range = clamp(sel.Range, bounds)

	switch {
	case in.AllRegions:
		sel.Regions = energy.RegionNames()
	case in.Country != "":
		names := energy.RegionsInCountry(in.Country)
		if len(names) == 0 {
			return nil, fmt.Errorf("unknown country %q", in.Country)
		}
		sel.Regions = names
	case len(in.Regions) > 0:
		names := make([]string, 0, len(in.Regions))
		for _, name := range in.Regions {
			if strings.TrimSpace(name) == "" {
				continue
			}
			reg, ok := energy.LookupRegion(name)
			if !ok {
				return nil, fmt.Errorf("unknown region %q", name)
			}
			names = append(names, reg.Name)
		}
		sel.Regions = names
	}
	sel.Regions = energy.RegionSet(sel.Regions)
	return &sel, nil
}

func periodRange(period string, bounds energy.DateRange) (energy.DateRange, error) {
	if period == PeriodAll {
		return bounds, nil
	}
	days, ok := periods[period]
	if !ok {
		return energy.DateRange{}, fmt.Errorf("unknown period %q", period)
	}
	start := bounds.End.AddDate(0, 0, -days)
	if start.Before(bounds.Start) {
		start = bounds.Start
	}
	return energy.DateRange{Start: start, End: bounds.End}, nil
}

// explicitRange parses start and end days; a missing side equals the other.
func explicitRange(start, end string, loc *time.Location) (energy.DateRange, error) {
	if start == "" {
		start = end
	}
	if end == "" {
		end = start
	}
	s, err := energy.ParseDay(start, loc)
	if err != nil {
		return energy.DateRange{}, fmt.Errorf("invalid start: %w", err)
	}
	e, err := energy.ParseDay(end, loc)
	if err != nil {
		return energy.DateRange{}, fmt.Errorf("invalid end: %w", err)
	}
	if s.After(e) {
		s, e = e, s
	}
	return energy.DateRange{Start: s, End: e}, nil
}

func clamp(r, bounds energy.DateRange) energy.DateRange {
	day := func(t time.Time) time.Time {
		if t.Before(bounds.Start) {
			return bounds.Start
		}
		if t.After(bounds.End) {
			return bounds.End
		}
		return t
	}
	return energy.DateRange{Start: day(r.Start), End: day(r.End)}
}
