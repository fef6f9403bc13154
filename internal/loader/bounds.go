package loader

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/energy-dashboard/internal/energy"
)

const boundsKey = "bounds"

// BoundsResolver computes the date range covered by all three tables.
type BoundsResolver struct {
	store energy.Store
	loc   *time.Location
	cache *Cache[energy.DateRange]

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewBoundsResolver creates a resolver memoizing its result for ttl.
// Calendar days are evaluated in loc.
func NewBoundsResolver(store energy.Store, loc *time.Location, ttl time.Duration) *BoundsResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &BoundsResolver{
		store: store,
		loc:   loc,
		cache: NewCache[energy.DateRange]("bounds", ttl),
		Now:   time.Now,
	}
}

// Cache exposes the memo so callers can swap its clock.
func (b *BoundsResolver) Cache() *Cache[energy.DateRange] {
	return b.cache
}

// Invalidate clears the memoized bounds.
func (b *BoundsResolver) Invalidate() {
	b.cache.Invalidate()
}

// PurgeExpired drops the memoized bounds once expired.
func (b *BoundsResolver) PurgeExpired() int {
	return b.cache.PurgeExpired()
}

// Resolve returns [max of table minimums, min of table maximums]. When a
// table is empty or unreadable, or the tables do not overlap, it returns a
// single-day range for today.
func (b *BoundsResolver) Resolve(ctx context.Context) energy.DateRange {
	if r, ok := b.cache.Get(boundsKey); ok {
		return r
	}

	today := energy.Today(b.Now().In(b.loc))
	if b.store == nil {
		return today
	}

	var start, end time.Time
	for i, t := range energy.Tables {
		lo, hi, err := b.tableBounds(ctx, t)
		if err != nil {
			log.WithField("table", t).WithError(err).Warn("date bounds unavailable; falling back to today")
			return today
		}
		if i == 0 || lo.After(start) {
			start = lo
		}
		if i == 0 || hi.Before(end) {
			end = hi
		}
	}
	if start.After(end) {
		log.WithFields(log.Fields{
			"start": start.Format(energy.DateLayout),
			"end":   end.Format(energy.DateLayout),
		}).Warn("tables do not overlap; falling back to today")
		return today
	}

	r := energy.NewDateRange(start, end)
	b.cache.Set(boundsKey, r)
	return r
}

func (b *BoundsResolver) tableBounds(ctx context.Context, t energy.Table) (time.Time, time.Time, error) {
	lo, err := b.edge(ctx, t, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	hi, err := b.edge(ctx, t, true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return lo, hi, nil
}

func (b *BoundsResolver) edge(ctx context.Context, t energy.Table, desc bool) (time.Time, error) {
	rows, err := b.store.Select(ctx, energy.Query{
		Table:   t,
		Columns: []string{energy.ColDatetime},
		Desc:    desc,
		Limit:   1,
	})
	if err != nil {
		return time.Time{}, err
	}
	if len(rows) == 0 {
		return time.Time{}, fmt.Errorf("table %s is empty", t)
	}
	return energy.ParseDay(rows[0].Day(), b.loc)
}
