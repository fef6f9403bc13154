package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/loader"
)

// FreshnessChecker reports whether a table is missing any calendar day of
// the current month.
type FreshnessChecker struct {
	store    energy.Store
	pageSize int
	loc      *time.Location

	// Now is the clock used to decide "today".
	Now func() time.Time
}

func NewFreshnessChecker(store energy.Store, pageSize int, loc *time.Location) *FreshnessChecker {
	if loc == nil {
		loc = time.UTC
	}
	return &FreshnessChecker{
		store:    store,
		pageSize: pageSize,
		loc:      loc,
		Now:      time.Now,
	}
}

// MissingDay reads every stored datetime since the first of the month and
// returns true at the first day between then and today without a row.
func (f *FreshnessChecker) MissingDay(ctx context.Context, table energy.Table) (bool, error) {
	today := energy.Midnight(f.Now().In(f.loc))
	first := energy.FirstOfMonth(today)

	rows, err := loader.Paginate(ctx, f.store, energy.Query{
		Table:   table,
		Columns: []string{energy.ColDatetime},
		From:    first.Format(energy.DatetimeLayout),
	}, f.pageSize)
	if err != nil {
		return false, fmt.Errorf("freshness of %s: %w", table, err)
	}

	seen := make(map[string]struct{}, today.Day())
	for _, r := range rows {
		if dt := r.Datetime(); dt != "" {
			seen[r.Day()] = struct{}{}
		}
	}

	for d := first; !d.After(today); d = d.AddDate(0, 0, 1) {
		if _, ok := seen[d.Format(energy.DateLayout)]; !ok {
			return true, nil
		}
	}
	return false, nil
}
