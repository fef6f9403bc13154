package energy

import (
	"context"
	"errors"
)

var (
	// ErrConflict is returned by stores when an upsert hits a duplicate-key constraint.
	ErrConflict = errors.New("duplicate key")

	// ErrNoStore is returned when no backing store is configured.
	ErrNoStore = errors.New("store not configured")
)

// Query describes a bounded read against one table.
type Query struct {
	Table Table

	// Columns restricts the returned columns. Empty means all columns.
	Columns []string

	// From and To are inclusive canonical datetime bounds. Empty means unbounded.
	From string
	To   string

	// Regions filters region-scoped tables by region name. Nil means no filter.
	Regions []string

	// Desc orders by datetime descending instead of ascending.
	Desc bool

	Offset int
	Limit  int // 0 = no limit
}

// Store is the contract every backing time-series store must satisfy.
//
// Select returns rows ordered by datetime (then region id) honouring the
// query's offset and limit. Upsert inserts or replaces rows by their
// (datetime, region_id) key.
type Store interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Upsert(ctx context.Context, table Table, rows []Row) error
}
