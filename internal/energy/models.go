package energy

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Table identifies one of the time-series tables.
type Table string

const (
	TableDemand  Table = "historic_demand"
	TableCarbon  Table = "carbon_intensity"
	TableWeather Table = "weather"
)

// Tables lists every table in a stable order.
var Tables = []Table{TableDemand, TableCarbon, TableWeather}

// Regional reports whether the table is partitioned by region.
func (t Table) Regional() bool {
	return t == TableCarbon || t == TableWeather
}

// Column names shared by every table.
const (
	ColDatetime   = "datetime"
	ColRegionID   = "region_id"
	ColRegionName = "region_name"
)

// DatetimeLayout is the canonical stored datetime format. It never carries an offset.
const DatetimeLayout = "2006-01-02T15:04:05"

// DateLayout is the calendar-day format used for ranges and day buckets.
const DateLayout = "2006-01-02"

// Row is a single stored record. Columns are partly dynamic (demand columns and
// fuel-mix columns come straight from the upstream APIs).
type Row map[string]any

// Datetime returns the canonical datetime string of the row.
func (r Row) Datetime() string {
	s, _ := r[ColDatetime].(string)
	return s
}

// Day returns the YYYY-MM-DD prefix of the row's datetime.
func (r Row) Day() string {
	dt := r.Datetime()
	if len(dt) < len(DateLayout) {
		return dt
	}
	return dt[:len(DateLayout)]
}

// RegionID returns the region id, or 0 for national rows.
func (r Row) RegionID() int {
	switch v := r[ColRegionID].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// RegionName returns the region name, if any.
func (r Row) RegionName() string {
	s, _ := r[ColRegionName].(string)
	return s
}

// Float returns a numeric column. Missing, null and non-numeric values report false.
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		if math.IsNaN(v) {
			return 0, false
		}
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Key returns the natural key of the row.
func (r Row) Key() RowKey {
	return RowKey{Datetime: r.Datetime(), RegionID: r.RegionID()}
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RowKey is the unique key of a row within a table.
type RowKey struct {
	Datetime string
	RegionID int
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange truncates both ends to midnight in their location.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Midnight(start), End: Midnight(end)}
}

// Today returns the single-day range containing now.
func Today(now time.Time) DateRange {
	return NewDateRange(now, now)
}

// From returns the canonical datetime string at the start of the first day.
func (d DateRange) From() string {
	return Midnight(d.Start).Format(DatetimeLayout)
}

// To returns the canonical datetime string at the last second of the last day.
func (d DateRange) To() string {
	return Midnight(d.End).Format(DateLayout) + "T23:59:59"
}

// Days returns the number of calendar days covered by the range.
func (d DateRange) Days() int {
	return int(Midnight(d.End).Sub(Midnight(d.Start)).Hours()/24) + 1
}

// Contains reports whether day falls inside the range.
func (d DateRange) Contains(day time.Time) bool {
	day = Midnight(day)
	return !day.Before(Midnight(d.Start)) && !day.After(Midnight(d.End))
}

func (d DateRange) String() string {
	return fmt.Sprintf("%s..%s", d.Start.Format(DateLayout), d.End.Format(DateLayout))
}

// Midnight truncates t to the start of its calendar day.
func Midnight(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, t.Location())
}

// FirstOfMonth returns midnight of the first day of t's month.
func FirstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// ParseDay parses a YYYY-MM-DD value in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.000Z",
	DatetimeLayout,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	DateLayout,
}

// NormalizeDatetime converts an upstream timestamp into the canonical stored
// format. Values with an offset are converted to UTC; values without one keep
// their wall-clock time.
func NormalizeDatetime(s string) (string, error) {
	t, err := ParseDatetime(s)
	if err != nil {
		return "", err
	}
	return t.Format(DatetimeLayout), nil
}

// ParseDatetime parses any of the supported upstream layouts. Values carrying
// an offset are returned in UTC.
func ParseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised datetime %q", s)
}

// SortRows orders rows ascending by datetime, then region id.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Datetime(), rows[j].Datetime()
		if a != b {
			return a < b
		}
		return rows[i].RegionID() < rows[j].RegionID()
	})
}
