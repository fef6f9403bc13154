/*
Package sqlite provides a SQLite-backed implementation of energy.Store.

Each table keeps its key columns (datetime, region_id) as a composite primary
key and stores the remaining columns as a JSON document, so upstream APIs can
add columns without a schema change. Writes use INSERT ... ON CONFLICT DO
UPDATE inside one transaction per call.

The database is opened in WAL mode so dashboard reads are not blocked by an
ingestion batch.

Use ":memory:" for a throwaway database in tests.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/store"
)

// Store implements energy.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // single writer
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.WithField("path", path).Info("sqlite store ready")
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	for _, t := range energy.Tables {
		schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			datetime    TEXT    NOT NULL,
			region_id   INTEGER NOT NULL DEFAULT 0,
			region_name TEXT,
			data        TEXT    NOT NULL DEFAULT '{}',
			PRIMARY KEY (datetime, region_id)
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_region_name
			ON %[1]s(region_name, datetime);`, t)
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("create table %s: %w", t, err)
		}
	}
	return nil
}

// Upsert inserts or replaces rows by (datetime, region_id).
func (s *Store) Upsert(ctx context.Context, table energy.Table, rows []energy.Row) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert %s: %w", table, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (datetime, region_id, region_name, data)
		VALUES (?, ?, NULLIF(?, ''), ?)
		ON CONFLICT(datetime, region_id) DO UPDATE SET
			region_name = excluded.region_name,
			data        = excluded.data`, table))
	if err != nil {
		return fmt.Errorf("prepare upsert %s: %w", table, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		rec, err := store.EncodeRow(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, rec.Datetime, rec.RegionID, rec.RegionName, string(rec.Data)); err != nil {
			return classify(table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(table, err)
	}
	return nil
}

// Select reads rows matching q.
func (s *Store) Select(ctx context.Context, q energy.Query) ([]energy.Row, error) {
	query, args := buildSelect(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	defer rows.Close()

	var out []energy.Row
	for rows.Next() {
		var (
			rec  store.Record
			name sql.NullString
			data string
		)
		if err := rows.Scan(&rec.Datetime, &rec.RegionID, &name, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Table, err)
		}
		rec.RegionName = name.String
		rec.Data = []byte(data)
		row, err := store.DecodeRow(q.Table, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Project(row, q.Columns))
	}
	return out, rows.Err()
}

func buildSelect(q energy.Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.From != "" {
		where = append(where, "datetime >= ?")
		args = append(args, q.From)
	}
	if q.To != "" {
		where = append(where, "datetime <= ?")
		args = append(args, q.To)
	}
	if q.Regions != nil {
		if len(q.Regions) == 0 {
			where = append(where, "0")
		} else {
			marks := strings.TrimSuffix(strings.Repeat("?,", len(q.Regions)), ",")
			where = append(where, "region_name IN ("+marks+")")
			for _, r := range q.Regions {
				args = append(args, r)
			}
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT datetime, region_id, region_name, data FROM %s", q.Table)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if q.Desc {
		sb.WriteString(" ORDER BY datetime DESC, region_id DESC")
	} else {
		sb.WriteString(" ORDER BY datetime ASC, region_id ASC")
	}
	switch {
	case q.Limit > 0:
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	case q.Offset > 0:
		sb.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, q.Offset)
	}
	return sb.String(), args
}

func classify(table energy.Table, err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint &&
		(sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return fmt.Errorf("upsert %s: %w: %v", table, energy.ErrConflict, sqlErr)
	}
	return fmt.Errorf("upsert %s: %w", table, err)
}
