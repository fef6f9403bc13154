package store

import (
	"context"
	"sort"
	"sync"

	"github.com/i474232898/energy-dashboard/internal/energy"
)

// tableData holds every row of one table keyed by its natural key.
type tableData struct {
	rows map[energy.RowKey]energy.Row
}

// MemoryStore is a concurrency-safe in-memory implementation of energy.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: table, value: rows of that table
	data map[energy.Table]*tableData
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[energy.Table]*tableData),
	}
}

// Upsert inserts rows, replacing any existing row with the same key.
func (s *MemoryStore) Upsert(ctx context.Context, table energy.Table, rows []energy.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range rows {
		if err := ValidateRow(r); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	td, ok := s.data[table]
	if !ok {
		td = &tableData{rows: make(map[energy.RowKey]energy.Row)}
		s.data[table] = td
	}

	for _, r := range rows {
		td.rows[r.Key()] = r.Clone()
	}
	return nil
}

// Select returns the rows matching q, ordered by datetime then region id.
func (s *MemoryStore) Select(ctx context.Context, q energy.Query) ([]energy.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	td, ok := s.data[q.Table]
	var matched []energy.Row
	if ok {
		regions := regionFilter(q.Regions)
		for _, r := range td.rows {
			if !inRange(r.Datetime(), q.From, q.To) {
				continue
			}
			if regions != nil {
				if _, ok := regions[r.RegionName()]; !ok {
					continue
				}
			}
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	energy.SortRows(matched)
	if q.Desc {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := matched[i].Datetime(), matched[j].Datetime()
			if a != b {
				return a > b
			}
			return matched[i].RegionID() > matched[j].RegionID()
		})
	}

	page := Page(matched, q.Offset, q.Limit)
	out := make([]energy.Row, 0, len(page))
	for _, r := range page {
		out = append(out, Project(r, q.Columns))
	}
	return out, nil
}

// Len returns the number of rows stored for a table.
func (s *MemoryStore) Len(table energy.Table) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	td, ok := s.data[table]
	if !ok {
		return 0
	}
	return len(td.rows)
}

func regionFilter(regions []string) map[string]struct{} {
	if regions == nil {
		return nil
	}
	set := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		set[r] = struct{}{}
	}
	return set
}

func inRange(dt, from, to string) bool {
	if from != "" && dt < from {
		return false
	}
	if to != "" && dt > to {
		return false
	}
	return true
}
