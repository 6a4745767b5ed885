// Package timescaledb implements storage.Store on PostgreSQL, turning the
// results table into a TimescaleDB hypertable when the extension is present.
package timescaledb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chrissnell/disturbancemonitor/internal/database"
	"github.com/chrissnell/disturbancemonitor/internal/state"
	"github.com/chrissnell/disturbancemonitor/internal/storage"
)

const (
	createExtensionSQL  = `CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE`
	createHypertableSQL = `SELECT create_hypertable('monitoring_results', 'date', if_not_exists => TRUE, migrate_data => TRUE)`
)

// Storage holds the connection to a TimescaleDB database
type Storage struct {
	DB     *gorm.DB
	logger *zap.SugaredLogger
}

// New connects to TimescaleDB and prepares the schema.
func New(ctx context.Context, connectionString string, zl *zap.Logger) (*Storage, error) {
	db, err := database.CreateConnection(connectionString, zl)
	if err != nil {
		return nil, err
	}
	return NewWithDB(ctx, db, zl.Sugar())
}

// NewWithDB prepares the schema on an existing GORM handle.
func NewWithDB(ctx context.Context, db *gorm.DB, logger *zap.SugaredLogger) (*Storage, error) {
	t := &Storage{DB: db, logger: logger}

	logger.Info("creating database tables...")
	if err := db.WithContext(ctx).AutoMigrate(database.Models()...); err != nil {
		return nil, fmt.Errorf("could not migrate tables: %w", err)
	}

	// Plain PostgreSQL works too; the hypertable only speeds up date scans.
	logger.Info("creating TimescaleDB extension...")
	if err := db.WithContext(ctx).Exec(createExtensionSQL).Error; err != nil {
		logger.Warnf("could not create TimescaleDB extension, continuing without hypertable: %v", err)
		return t, nil
	}
	logger.Info("creating hypertable...")
	if err := db.WithContext(ctx).Exec(createHypertableSQL).Error; err != nil {
		logger.Warnf("could not create hypertable: %v", err)
	}

	return t, nil
}

func (t *Storage) LoadPixel(ctx context.Context, monitor, pixelID string) (*state.Pixel, error) {
	var row database.PixelState
	err := t.DB.WithContext(ctx).
		Where("monitor_name = ? AND pixel_id = ?", monitor, pixelID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading pixel %s/%s: %w", monitor, pixelID, err)
	}
	return state.Decode(row.State)
}

func (t *Storage) SavePixel(ctx context.Context, monitor string, p *state.Pixel) error {
	row, err := pixelRow(monitor, p)
	if err != nil {
		return err
	}
	if err := t.DB.WithContext(ctx).Clauses(pixelUpsert).Create(&row).Error; err != nil {
		return fmt.Errorf("error saving pixel %s/%s: %w", monitor, p.ID, err)
	}
	return nil
}

func (t *Storage) SaveResults(ctx context.Context, monitor, feature string, counts map[string]int) error {
	rows, err := resultRows(monitor, feature, counts)
	if err != nil {
		return err
	}
	if err := addResults(t.DB.WithContext(ctx), rows); err != nil {
		return fmt.Errorf("error saving results of %s/%s: %w", monitor, feature, err)
	}
	return nil
}

// addResults inserts rows, adding to the value of dates already present.
func addResults(db *gorm.DB, rows []database.MonitoringResult) error {
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "monitor_name"}, {Name: "feature_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value": gorm.Expr("monitoring_results.value + excluded.value"),
		}),
	}).Create(&rows).Error
}

func pixelRow(monitor string, p *state.Pixel) (database.PixelState, error) {
	blob, err := state.Encode(p)
	if err != nil {
		return database.PixelState{}, err
	}
	return database.PixelState{MonitorName: monitor, PixelID: p.ID, State: blob, UpdatedAt: p.UpdatedAt}, nil
}

var pixelUpsert = clause.OnConflict{
	Columns:   []clause.Column{{Name: "monitor_name"}, {Name: "pixel_id"}},
	DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
}

func (t *Storage) CommitRun(ctx context.Context, r *storage.Run, pixels []*state.Pixel, counts map[string]int) error {
	pixelRows := make([]database.PixelState, len(pixels))
	for i, p := range pixels {
		row, err := pixelRow(r.Monitor, p)
		if err != nil {
			return err
		}
		pixelRows[i] = row
	}
	results, err := resultRows(r.Monitor, r.Feature, counts)
	if err != nil {
		return err
	}
	run := toRunRow(r)

	err = t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(pixelRows) > 0 {
			if err := tx.Clauses(pixelUpsert).CreateInBatches(&pixelRows, 500).Error; err != nil {
				return fmt.Errorf("error saving pixels: %w", err)
			}
		}
		if err := addResults(tx, results); err != nil {
			return fmt.Errorf("error saving results: %w", err)
		}
		return tx.Create(&run).Error
	})
	if err != nil {
		return fmt.Errorf("error committing run %s: %w", r.ID, err)
	}
	return nil
}

func (t *Storage) LoadResults(ctx context.Context, monitor, feature string) ([]storage.Result, error) {
	q := t.DB.WithContext(ctx).Where("monitor_name = ?", monitor)
	if feature != "" {
		q = q.Where("feature_id = ?", feature)
	}

	var rows []database.MonitoringResult
	if err := q.Order("feature_id, date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error querying results: %w", err)
	}

	out := make([]storage.Result, len(rows))
	for i, r := range rows {
		out[i] = fromResultRow(r)
	}
	return out, nil
}

func (t *Storage) DeleteResults(ctx context.Context, monitor, feature string) error {
	q := t.DB.WithContext(ctx).Where("monitor_name = ?", monitor)
	if feature != "" {
		q = q.Where("feature_id = ?", feature)
	}
	if err := q.Delete(&database.MonitoringResult{}).Error; err != nil {
		return fmt.Errorf("error deleting results: %w", err)
	}
	return nil
}

func (t *Storage) RecordRun(ctx context.Context, r *storage.Run) error {
	row := toRunRow(r)
	if err := t.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("error recording run %s: %w", r.ID, err)
	}
	return nil
}

func (t *Storage) ListRuns(ctx context.Context, monitor string) ([]storage.Run, error) {
	var rows []database.MonitoringRun
	err := t.DB.WithContext(ctx).
		Where("monitor_name = ?", monitor).
		Order("started_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}

	out := make([]storage.Run, len(rows))
	for i, r := range rows {
		out[i] = fromRunRow(r)
	}
	return out, nil
}

func (t *Storage) DeleteMonitor(ctx context.Context, monitor string) error {
	return t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range database.Models() {
			if err := tx.Where("monitor_name = ?", monitor).Delete(model).Error; err != nil {
				return fmt.Errorf("error deleting data of monitor %s: %w", monitor, err)
			}
		}
		return nil
	})
}

func (t *Storage) Ping(ctx context.Context) error {
	sqlDB, err := t.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (t *Storage) Close() error {
	sqlDB, err := t.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func resultRows(monitor, feature string, counts map[string]int) ([]database.MonitoringResult, error) {
	rows := make([]database.MonitoringResult, 0, len(counts))
	for date, n := range counts {
		d, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, fmt.Errorf("invalid result date %q: %w", date, err)
		}
		rows = append(rows, database.MonitoringResult{MonitorName: monitor, FeatureID: feature, Date: d, Value: n})
	}
	return rows, nil
}

func fromResultRow(r database.MonitoringResult) storage.Result {
	return storage.Result{
		Monitor: r.MonitorName,
		Feature: r.FeatureID,
		Date:    r.Date.UTC().Format(time.DateOnly),
		Count:   r.Value,
	}
}

func toRunRow(r *storage.Run) database.MonitoringRun {
	return database.MonitoringRun{
		RunID:       r.ID,
		MonitorName: r.Monitor,
		FeatureID:   r.Feature,
		WindowFrom:  r.From,
		WindowTo:    r.To,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Pixels:      r.Pixels,
		Fitted:      r.Fitted,
		Disturbed:   r.Disturbed,
		Failed:      r.Failed,
	}
}

func fromRunRow(r database.MonitoringRun) storage.Run {
	return storage.Run{
		ID:         r.RunID,
		Monitor:    r.MonitorName,
		Feature:    r.FeatureID,
		From:       r.WindowFrom,
		To:         r.WindowTo,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Pixels:     r.Pixels,
		Fitted:     r.Fitted,
		Disturbed:  r.Disturbed,
		Failed:     r.Failed,
	}
}
