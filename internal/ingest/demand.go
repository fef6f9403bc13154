package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/energy-dashboard/internal/energy"
)

const (
	DefaultDemandLookback = 90 * 24 * time.Hour
	DefaultDemandStep     = time.Hour

	settlementPeriod = 30 * time.Minute
)

// DemandClient is the upstream the demand source reads from.
type DemandClient interface {
	FetchDemand(ctx context.Context, from, to time.Time) ([]map[string]any, error)
}

// DemandSource incrementally pulls national demand after the latest stored row.
type DemandSource struct {
	client   DemandClient
	store    energy.Store
	loc      *time.Location
	lookback time.Duration
	step     time.Duration

	Now func() time.Time
}

func NewDemandSource(client DemandClient, store energy.Store, loc *time.Location, lookback, step time.Duration) *DemandSource {
	if loc == nil {
		loc = time.UTC
	}
	if lookback <= 0 {
		lookback = DefaultDemandLookback
	}
	if step <= 0 {
		step = DefaultDemandStep
	}
	return &DemandSource{
		client:   client,
		store:    store,
		loc:      loc,
		lookback: lookback,
		step:     step,
		Now:      time.Now,
	}
}

func (s *DemandSource) Name() string        { return "demand" }
func (s *DemandSource) Table() energy.Table { return energy.TableDemand }

// Gate starts the window one step after the newest stored row, or at the
// lookback horizon when the table is empty, and ends it tomorrow.
func (s *DemandSource) Gate(ctx context.Context) (Window, bool, error) {
	if s.store == nil {
		return Window{}, false, energy.ErrNoStore
	}
	today := energy.Midnight(s.Now().In(s.loc))
	end := today.AddDate(0, 0, 1)

	latest, err := s.store.Select(ctx, energy.Query{
		Table:   energy.TableDemand,
		Columns: []string{energy.ColDatetime},
		Desc:    true,
		Limit:   1,
	})
	if err != nil {
		return Window{}, false, fmt.Errorf("latest demand row: %w", err)
	}

	start := energy.Midnight(today.Add(-s.lookback))
	if len(latest) > 0 && latest[0].Datetime() != "" {
		t, err := time.ParseInLocation(energy.DatetimeLayout, latest[0].Datetime(), s.loc)
		if err != nil {
			return Window{}, false, fmt.Errorf("latest demand datetime: %w", err)
		}
		start = t.Add(s.step)
	}

	// The datastore query works in whole days.
	if energy.Midnight(start).After(end) {
		return Window{}, false, nil
	}
	return Window{Start: start, End: end}, true, nil
}

func (s *DemandSource) Fetch(ctx context.Context, w Window) ([]map[string]any, error) {
	return s.client.FetchDemand(ctx, w.Start, w.End)
}

// Normalize lower-cases and snake-cases column names, drops metadata
// columns, derives datetime from the settlement date and period, and fills
// missing numeric values with zero. Records without a parseable settlement
// date are dropped.
func (s *DemandSource) Normalize(records []map[string]any) ([]energy.Row, int, error) {
	rows := make([]energy.Row, 0, len(records))
	numeric := make(map[string]bool)
	dropped := 0

	for _, rec := range records {
		row := make(energy.Row, len(rec))
		for k, v := range rec {
			col := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), " ", "_")
			if col == "" || strings.HasPrefix(col, "_") {
				continue
			}
			row[col] = v
		}

		raw, _ := row["settlement_date"].(string)
		t, err := energy.ParseDatetime(raw)
		if err != nil {
			dropped++
			continue
		}
		if p, ok := row.Float("settlement_period"); ok && p >= 1 {
			t = t.Add(time.Duration(p-1) * settlementPeriod)
		}
		delete(row, "settlement_date")
		row[energy.ColDatetime] = t.Format(energy.DatetimeLayout)

		for col, v := range row {
			switch v.(type) {
			case float64, int, int64:
				numeric[col] = true
			}
		}
		rows = append(rows, row)
	}

	for _, row := range rows {
		for col := range numeric {
			if v, ok := row[col]; !ok || v == nil {
				row[col] = 0.0
			}
		}
	}
	return rows, dropped, nil
}
