package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/i474232898/energy-dashboard/internal/energy"
)

var (
	// ErrMissingDatetime is returned when a row without a datetime is written.
	ErrMissingDatetime = errors.New("row has no datetime")
)

// ValidateRow checks that a row carries its key columns.
func ValidateRow(r energy.Row) error {
	if r.Datetime() == "" {
		return ErrMissingDatetime
	}
	return nil
}

// Page applies offset and limit to an already ordered slice.
func Page(rows []energy.Row, offset, limit int) []energy.Row {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// Project copies the requested columns of r. Empty cols copies every column.
func Project(r energy.Row, cols []string) energy.Row {
	if len(cols) == 0 {
		return r.Clone()
	}
	out := make(energy.Row, len(cols))
	for _, c := range cols {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

// Record is the storage shape shared by the SQL stores: the key columns as
// real columns, every other column packed into a JSON document.
type Record struct {
	Datetime   string
	RegionID   int
	RegionName string
	Data       []byte
}

// EncodeRow splits a row into its storage record.
func EncodeRow(r energy.Row) (Record, error) {
	if err := ValidateRow(r); err != nil {
		return Record{}, err
	}
	rest := make(map[string]any, len(r))
	for k, v := range r {
		switch k {
		case energy.ColDatetime, energy.ColRegionID, energy.ColRegionName:
			continue
		}
		rest[k] = v
	}
	data, err := json.Marshal(rest)
	if err != nil {
		return Record{}, fmt.Errorf("encode row %s: %w", r.Datetime(), err)
	}
	return Record{
		Datetime:   r.Datetime(),
		RegionID:   r.RegionID(),
		RegionName: r.RegionName(),
		Data:       data,
	}, nil
}

// DecodeRow rebuilds a row from its storage record. National tables get no
// region columns back.
func DecodeRow(table energy.Table, rec Record) (energy.Row, error) {
	row := energy.Row{}
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, &row); err != nil {
			return nil, fmt.Errorf("decode row %s: %w", rec.Datetime, err)
		}
	}
	row[energy.ColDatetime] = rec.Datetime
	if table.Regional() {
		row[energy.ColRegionID] = rec.RegionID
		row[energy.ColRegionName] = rec.RegionName
	}
	return row, nil
}
