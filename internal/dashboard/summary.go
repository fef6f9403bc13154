package dashboard

import (
	"math"
	"sort"

	"github.com/i474232898/energy-dashboard/internal/energy"
)

// Carbon intensity rating thresholds in gCO2/kWh.
const (
	lowCarbonBelow      = 150
	moderateCarbonBelow = 250
)

// Stats describes one numeric series.
type Stats struct {
	Average float64 `json:"average"`
	Peak    float64 `json:"peak"`
	Minimum float64 `json:"minimum"`

	// Trend is the percentage change of the second half's mean over the
	// first half's. Nil for a single point.
	Trend  *float64 `json:"trend,omitempty"`
	Points int      `json:"points"`
}

// CarbonStats adds the intensity rating and region count to Stats.
type CarbonStats struct {
	Stats
	Rating  string `json:"rating"`
	Regions int    `json:"regions"`
}

// Summary holds the KPIs shown above the charts. Groups without data are nil.
type Summary struct {
	Demand        *Stats       `json:"demand,omitempty"`
	Carbon        *CarbonStats `json:"carbon,omitempty"`
	Temperature   *Stats       `json:"temperature,omitempty"`
	Wind          *Stats       `json:"wind,omitempty"`
	Humidity      *float64     `json:"humidity,omitempty"`
	CloudCover    *float64     `json:"cloudCover,omitempty"`
	Precipitation *float64     `json:"precipitation,omitempty"`
	Records       int          `json:"records"`
}

// Summarize computes the KPIs for the displayed rows. Rows must be ascending
// by datetime. Regional series are averaged per datetime first.
func Summarize(demand, carbon, weather []energy.Row) Summary {
	s := Summary{Records: len(demand) + len(carbon) + len(weather)}

	s.Demand = describe(column(demand, "nd"))

	if cs := describe(perDatetime(carbon, "forecast")); cs != nil {
		s.Carbon = &CarbonStats{
			Stats:   *cs,
			Rating:  rating(cs.Average),
			Regions: distinctRegions(carbon),
		}
	}

	s.Temperature = describe(perDatetime(weather, "temperature"))
	s.Wind = describe(perDatetime(weather, "wind_speed"))
	s.Humidity = mean(column(weather, "humidity"))
	s.CloudCover = mean(column(weather, "cloud_cover"))
	if precip := column(weather, "precipitation"); len(precip) > 0 {
		total := sum(precip)
		s.Precipitation = &total
	}
	return s
}

func rating(avg float64) string {
	switch {
	case avg < lowCarbonBelow:
		return "Low"
	case avg < moderateCarbonBelow:
		return "Moderate"
	default:
		return "High"
	}
}

func describe(values []float64) *Stats {
	if len(values) == 0 {
		return nil
	}
	st := &Stats{
		Average: sum(values) / float64(len(values)),
		Peak:    math.Inf(-1),
		Minimum: math.Inf(1),
		Points:  len(values),
	}
	for _, v := range values {
		st.Peak = math.Max(st.Peak, v)
		st.Minimum = math.Min(st.Minimum, v)
	}

	if mid := len(values) / 2; mid > 0 {
		first := sum(values[:mid]) / float64(mid)
		second := sum(values[mid:]) / float64(len(values)-mid)
		var delta float64
		if first != 0 {
			delta = (second - first) / math.Abs(first) * 100
		}
		st.Trend = &delta
	}
	return st
}

// column returns the numeric values of col in row order, skipping gaps.
func column(rows []energy.Row, col string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Float(col); ok {
			out = append(out, v)
		}
	}
	return out
}

// perDatetime averages col across rows sharing a datetime, ordered by datetime.
func perDatetime(rows []energy.Row, col string) []float64 {
	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[string]*acc)
	for _, r := range rows {
		v, ok := r.Float(col)
		if !ok {
			continue
		}
		a := groups[r.Datetime()]
		if a == nil {
			a = &acc{}
			groups[r.Datetime()] = a
		}
		a.sum += v
		a.n++
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]float64, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k].sum/float64(groups[k].n))
	}
	return out
}

func distinctRegions(rows []energy.Row) int {
	seen := make(map[int]struct{})
	for _, r := range rows {
		seen[r.RegionID()] = struct{}{}
	}
	return len(seen)
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := sum(values) / float64(len(values))
	return &m
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
