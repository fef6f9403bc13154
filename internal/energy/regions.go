package energy

import (
	"sort"
	"strings"
)

// Region is a GB distribution network region tracked by the carbon and weather tables.
type Region struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

const (
	CountryEngland  = "England"
	CountryWales    = "Wales"
	CountryScotland = "Scotland"
)

// Countries lists the country-level selection options.
var Countries = []string{CountryEngland, CountryWales, CountryScotland}

// Regions is the fixed region table, ordered by id.
var Regions = []Region{
	{1, "North Scotland", CountryScotland, 57.5, -4.5},
	{2, "South Scotland", CountryScotland, 55.9, -3.2},
	{3, "North West England", CountryEngland, 53.8, -2.6},
	{4, "North East England", CountryEngland, 54.9, -1.6},
	{5, "South Yorkshire", CountryEngland, 53.5, -1.5},
	{6, "North Wales & Merseyside", CountryWales, 53.2, -3.0},
	{7, "South Wales", CountryWales, 51.6, -3.4},
	{8, "West Midlands", CountryEngland, 52.5, -2.0},
	{9, "East Midlands", CountryEngland, 52.8, -1.0},
	{10, "East England", CountryEngland, 52.2, 0.9},
	{11, "South West England", CountryEngland, 50.7, -3.5},
	{12, "South England", CountryEngland, 51.0, -1.3},
	{13, "London", CountryEngland, 51.5, -0.1},
	{14, "South East England", CountryEngland, 51.3, 0.5},
}

// RegionNames returns every region name in id order.
func RegionNames() []string {
	names := make([]string, 0, len(Regions))
	for _, r := range Regions {
		names = append(names, r.Name)
	}
	return names
}

// RegionsInCountry returns the region names belonging to a country, matched
// case-insensitively. Unknown countries yield nil.
func RegionsInCountry(country string) []string {
	var names []string
	for _, r := range Regions {
		if strings.EqualFold(r.Country, country) {
			names = append(names, r.Name)
		}
	}
	return names
}

// LookupRegion finds a region by name, case-insensitively.
func LookupRegion(name string) (Region, bool) {
	for _, r := range Regions {
		if strings.EqualFold(r.Name, strings.TrimSpace(name)) {
			return r, true
		}
	}
	return Region{}, false
}

// RegionSet returns the sorted, de-duplicated form of a region selection.
// Two selections with the same members produce the same set regardless of order.
func RegionSet(regions []string) []string {
	if len(regions) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(regions))
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Selection is the user's filter: a date range plus a region set.
type Selection struct {
	Range   DateRange `json:"range"`
	Regions []string  `json:"regions"`
}

// Equal compares two selections, treating regions as a set.
func (s Selection) Equal(o Selection) bool {
	if !s.Range.Start.Equal(o.Range.Start) || !s.Range.End.Equal(o.Range.End) {
		return false
	}
	a, b := RegionSet(s.Regions), RegionSet(o.Regions)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
