// Package sqlite implements storage.Store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/disturbancemonitor/internal/state"
	"github.com/chrissnell/disturbancemonitor/internal/storage"
	"github.com/chrissnell/disturbancemonitor/pkg/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timeLayout = time.RFC3339Nano

// Migrations returns the schema migrations of the state database.
func Migrations() *migrate.FSProvider {
	return migrate.NewFSProvider(migrations, "migrations", "")
}

// Storage is a SQLite-backed pixel state store.
type Storage struct {
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger
}

// New opens (creating if needed) the database at path and applies the schema.
func New(path string, logger *zap.SugaredLogger) (*Storage, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	m := migrate.NewMigrator(db, Migrations(), logger)
	if err := m.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate SQLite database: %w", err)
	}

	logger.Infof("SQLite state store ready at %s", path)
	return &Storage{db: db, path: path, logger: logger}, nil
}

func (s *Storage) LoadPixel(ctx context.Context, monitor, pixelID string) (*state.Pixel, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM pixel_states WHERE monitor_name = ? AND pixel_id = ?`,
		monitor, pixelID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pixel %s/%s: %w", monitor, pixelID, err)
	}
	return state.Decode(blob)
}

const (
	upsertPixelSQL = `
		INSERT INTO pixel_states (monitor_name, pixel_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(monitor_name, pixel_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`

	addResultSQL = `
		INSERT INTO monitoring_results (monitor_name, feature_id, date, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(monitor_name, feature_id, date) DO UPDATE SET value = value + excluded.value`

	insertRunSQL = `
		INSERT INTO monitoring_runs
			(run_id, monitor_name, feature_id, window_from, window_to, started_at, finished_at, pixels, fitted, disturbed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

func (s *Storage) SavePixel(ctx context.Context, monitor string, p *state.Pixel) error {
	blob, err := state.Encode(p)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, upsertPixelSQL, monitor, p.ID, blob, p.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save pixel %s/%s: %w", monitor, p.ID, err)
	}
	return nil
}

func (s *Storage) SaveResults(ctx context.Context, monitor, feature string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := addResults(ctx, tx, monitor, feature, counts); err != nil {
		return err
	}
	return tx.Commit()
}

func addResults(ctx context.Context, tx *sql.Tx, monitor, feature string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, addResultSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare results insert: %w", err)
	}
	defer stmt.Close()

	for date, n := range counts {
		if _, err := stmt.ExecContext(ctx, monitor, feature, date, n); err != nil {
			return fmt.Errorf("failed to insert result %s/%s/%s: %w", monitor, feature, date, err)
		}
	}
	return nil
}

func (s *Storage) CommitRun(ctx context.Context, r *storage.Run, pixels []*state.Pixel, counts map[string]int) error {
	blobs := make([][]byte, len(pixels))
	for i, p := range pixels {
		blob, err := state.Encode(p)
		if err != nil {
			return err
		}
		blobs[i] = blob
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(pixels) > 0 {
		stmt, err := tx.PrepareContext(ctx, upsertPixelSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare pixel upsert: %w", err)
		}
		defer stmt.Close()
		for i, p := range pixels {
			if _, err := stmt.ExecContext(ctx, r.Monitor, p.ID, blobs[i], p.UpdatedAt.UTC().Format(timeLayout)); err != nil {
				return fmt.Errorf("failed to save pixel %s/%s: %w", r.Monitor, p.ID, err)
			}
		}
	}

	if err := addResults(ctx, tx, r.Monitor, r.Feature, counts); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertRunSQL, runArgs(r)...); err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", r.ID, err)
	}
	return nil
}

func (s *Storage) LoadResults(ctx context.Context, monitor, feature string) ([]storage.Result, error) {
	query := `SELECT monitor_name, feature_id, date, value FROM monitoring_results WHERE monitor_name = ?`
	args := []interface{}{monitor}
	if feature != "" {
		query += ` AND feature_id = ?`
		args = append(args, feature)
	}
	query += ` ORDER BY feature_id, date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []storage.Result
	for rows.Next() {
		var r storage.Result
		if err := rows.Scan(&r.Monitor, &r.Feature, &r.Date, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Storage) DeleteResults(ctx context.Context, monitor, feature string) error {
	query := `DELETE FROM monitoring_results WHERE monitor_name = ?`
	args := []interface{}{monitor}
	if feature != "" {
		query += ` AND feature_id = ?`
		args = append(args, feature)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	return nil
}

func runArgs(r *storage.Run) []interface{} {
	return []interface{}{r.ID, r.Monitor, r.Feature,
		r.From.UTC().Format(timeLayout), r.To.UTC().Format(timeLayout),
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
		r.Pixels, r.Fitted, r.Disturbed, r.Failed}
}

func (s *Storage) RecordRun(ctx context.Context, r *storage.Run) error {
	if _, err := s.db.ExecContext(ctx, insertRunSQL, runArgs(r)...); err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return nil
}

func (s *Storage) ListRuns(ctx context.Context, monitor string) ([]storage.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, monitor_name, feature_id, window_from, window_to, started_at, finished_at,
		       pixels, fitted, disturbed, failed
		FROM monitoring_runs
		WHERE monitor_name = ?
		ORDER BY started_at DESC
	`, monitor)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []storage.Run
	for rows.Next() {
		var (
			r                           storage.Run
			from, to, started, finished string
		)
		err := rows.Scan(&r.ID, &r.Monitor, &r.Feature, &from, &to, &started, &finished,
			&r.Pixels, &r.Fitted, &r.Disturbed, &r.Failed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		for _, f := range []struct {
			src string
			dst *time.Time
		}{{from, &r.From}, {to, &r.To}, {started, &r.StartedAt}, {finished, &r.FinishedAt}} {
			if *f.dst, err = time.Parse(timeLayout, f.src); err != nil {
				return nil, fmt.Errorf("bad timestamp %q in run %s: %w", f.src, r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Storage) DeleteMonitor(ctx context.Context, monitor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"pixel_states", "monitoring_results", "monitoring_runs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE monitor_name = ?`, monitor); err != nil {
			return fmt.Errorf("failed to delete %s rows of monitor %s: %w", table, monitor, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Infof("deleted all stored data of monitor %s", monitor)
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}
