// Package postgres implements energy.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/store"
)

const uniqueViolation = "23505"

// Store implements energy.Store using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, verifies the connection and creates the
// tables if they do not exist.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.WithField("tables", len(energy.Tables)).Info("postgres store ready")
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, t := range energy.Tables {
		if _, err := s.pool.Exec(ctx, schemaDDL(t)); err != nil {
			return fmt.Errorf("create table %s: %w", t, err)
		}
	}
	return nil
}

// schemaDDL creates table t and its region index. The index name uses the
// bare table name; quoting applies only to the table identifier.
func schemaDDL(t energy.Table) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			datetime    TEXT    NOT NULL,
			region_id   INTEGER NOT NULL DEFAULT 0,
			region_name TEXT,
			data        JSONB   NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (datetime, region_id)
		);
		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (region_name, datetime);`,
		pgx.Identifier{string(t)}.Sanitize(),
		pgx.Identifier{"idx_" + string(t) + "_region_name"}.Sanitize())
}

func upsertStmt(t energy.Table) string {
	return fmt.Sprintf(`
		INSERT INTO %s (datetime, region_id, region_name, data)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (datetime, region_id) DO UPDATE SET
			region_name = EXCLUDED.region_name,
			data        = EXCLUDED.data`,
		pgx.Identifier{string(t)}.Sanitize())
}

// Upsert writes rows in a single transaction with ON CONFLICT DO UPDATE.
func (s *Store) Upsert(ctx context.Context, table energy.Table, rows []energy.Row) error {
	if len(rows) == 0 {
		return nil
	}

	stmt := upsertStmt(table)

	b := &pgx.Batch{}
	for _, r := range rows {
		rec, err := store.EncodeRow(r)
		if err != nil {
			return err
		}
		b.Queue(stmt, rec.Datetime, rec.RegionID, rec.RegionName, rec.Data)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert %s: %w", table, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	br := tx.SendBatch(ctx, b)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return classify(table, err)
		}
	}
	if err := br.Close(); err != nil {
		return classify(table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(table, err)
	}
	return nil
}

// Select reads rows matching q.
func (s *Store) Select(ctx context.Context, q energy.Query) ([]energy.Row, error) {
	sql, args := buildSelect(q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	defer rows.Close()

	var out []energy.Row
	for rows.Next() {
		var (
			rec  store.Record
			name *string
		)
		if err := rows.Scan(&rec.Datetime, &rec.RegionID, &name, &rec.Data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Table, err)
		}
		if name != nil {
			rec.RegionName = *name
		}
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
		args = append(args, q.From)
		where = append(where, fmt.Sprintf("datetime >= $%d", len(args)))
	}
	if q.To != "" {
		args = append(args, q.To)
		where = append(where, fmt.Sprintf("datetime <= $%d", len(args)))
	}
	if q.Regions != nil {
		args = append(args, q.Regions)
		where = append(where, fmt.Sprintf("region_name = ANY($%d)", len(args)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT datetime, region_id, region_name, data FROM %s", pgx.Identifier{string(q.Table)}.Sanitize())
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if q.Desc {
		sb.WriteString(" ORDER BY datetime DESC, region_id DESC")
	} else {
		sb.WriteString(" ORDER BY datetime ASC, region_id ASC")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}

func classify(table energy.Table, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("upsert %s: %w: %s", table, energy.ErrConflict, pgErr.Message)
	}
	return fmt.Errorf("upsert %s: %w", table, err)
}
