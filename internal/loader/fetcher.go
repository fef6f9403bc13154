// Package loader provides read access to the time-series tables: paginated,
// memoized range reads and the overlapping date bounds of all tables.
package loader

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/metrics"
)

// DefaultPageSize is the number of rows requested per store page.
const DefaultPageSize = 1000

// Paginate reads every row matching q by requesting successive pages of
// pageSize until a page comes back short. q.Offset and q.Limit are ignored.
func Paginate(ctx context.Context, s energy.Store, q energy.Query, pageSize int) ([]energy.Row, error) {
	if s == nil {
		return nil, energy.ErrNoStore
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []energy.Row
	for offset := 0; ; offset += pageSize {
		q.Offset, q.Limit = offset, pageSize
		page, err := s.Select(ctx, q)
		metrics.PageRequests.WithLabelValues(string(q.Table)).Inc()
		if err != nil {
			return nil, fmt.Errorf("page at offset %d of %s: %w", offset, q.Table, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// Fetcher serves range reads of the three tables through a TTL cache.
type Fetcher struct {
	store    energy.Store
	pageSize int
	cache    *Cache[[]energy.Row]
	group    singleflight.Group
}

// NewFetcher creates a Fetcher. A nil store is allowed: every read then
// returns an empty result.
func NewFetcher(store energy.Store, pageSize int, ttl time.Duration) *Fetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Fetcher{
		store:    store,
		pageSize: pageSize,
		cache:    NewCache[[]energy.Row]("range", ttl),
	}
}

// Cache exposes the memo so callers can swap its clock.
func (f *Fetcher) Cache() *Cache[[]energy.Row] {
	return f.cache
}

// Invalidate clears every memoized range.
func (f *Fetcher) Invalidate() {
	f.cache.Invalidate()
}

// PurgeExpired drops expired memo entries.
func (f *Fetcher) PurgeExpired() int {
	return f.cache.PurgeExpired()
}

// Demand returns national demand rows for the days in r.
func (f *Fetcher) Demand(ctx context.Context, r energy.DateRange) []energy.Row {
	return f.Range(ctx, energy.TableDemand, r, nil)
}

// Carbon returns carbon intensity rows for the given regions.
func (f *Fetcher) Carbon(ctx context.Context, r energy.DateRange, regions []string) []energy.Row {
	return f.Range(ctx, energy.TableCarbon, r, regions)
}

// Weather returns weather rows for the given regions.
func (f *Fetcher) Weather(ctx context.Context, r energy.DateRange, regions []string) []energy.Row {
	return f.Range(ctx, energy.TableWeather, r, regions)
}

// Range returns every row of table within r, ascending by datetime. For
// region-scoped tables only rows of the given regions are returned and an
// empty region set yields no rows. Store failures yield an empty result.
// The returned slice is shared with the cache and must not be modified.
func (f *Fetcher) Range(ctx context.Context, table energy.Table, r energy.DateRange, regions []string) []energy.Row {
	var set []string
	if table.Regional() {
		set = energy.RegionSet(regions)
		if len(set) == 0 {
			return nil
		}
	}
	if f.store == nil {
		return nil
	}

	key := cacheKey(table, r, set)
	if rows, ok := f.cache.Get(key); ok {
		return rows
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		if rows, ok := f.cache.Get(key); ok {
			return rows, nil
		}
		q := energy.Query{Table: table, From: r.From(), To: r.To()}
		if table.Regional() {
			q.Regions = set
		}
		rows, err := Paginate(ctx, f.store, q, f.pageSize)
		if err != nil {
			return nil, err
		}
		energy.SortRows(rows)
		f.cache.Set(key, rows)
		return rows, nil
	})
	if err != nil {
		log.WithFields(log.Fields{
			"table": table,
			"range": r.String(),
		}).WithError(err).Warn("range fetch failed; serving no data")
		return nil
	}
	return v.([]energy.Row)
}

func cacheKey(table energy.Table, r energy.DateRange, regions []string) string {
	return strings.Join([]string{string(table), r.From(), r.To(), strings.Join(regions, "\x1f")}, "|")
}
