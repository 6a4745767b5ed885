package config

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chrissnell/disturbancemonitor/pkg/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the schema migrations of the configuration database.
func Migrations() *migrate.FSProvider {
	return migrate.NewFSProvider(migrations, "migrations", "config_schema_migrations")
}

// Settings keys holding the JSON encoded non-monitor sections.
const (
	settingStorage   = "storage"
	settingEngine    = "engine"
	settingServer    = "server"
	settingScheduler = "scheduler"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	m := migrate.NewMigrator(db, Migrations(), nil)
	if err := m.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate config database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	monitors, err := s.GetMonitors()
	if err != nil {
		return nil, fmt.Errorf("failed to load monitors: %w", err)
	}
	config.Monitors = monitors

	for key, dst := range map[string]interface{}{
		settingStorage:   &config.Storage,
		settingEngine:    &config.Engine,
		settingServer:    &config.Server,
		settingScheduler: &config.Scheduler,
	} {
		if _, err := s.getSetting(key, dst); err != nil {
			return nil, fmt.Errorf("failed to load %s settings: %w", key, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

const monitorColumns = `name, monitoring_start, last_monitored, datasource, harmonics,
	signal, metric, sensitivity, boundary, rmse_floor, state`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMonitor(r rowScanner) (MonitorData, error) {
	var m MonitorData
	err := r.Scan(&m.Name, &m.MonitoringStart, &m.LastMonitored, &m.Datasource, &m.Harmonics,
		&m.Signal, &m.Metric, &m.Sensitivity, &m.Boundary, &m.RMSEFloor, &m.State)
	return m, err
}

// GetMonitors returns every monitor, including deleted ones, ordered by name
func (s *SQLiteProvider) GetMonitors() ([]MonitorData, error) {
	rows, err := s.db.Query(`SELECT ` + monitorColumns + ` FROM monitors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitors: %w", err)
	}
	defer rows.Close()

	var monitors []MonitorData
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor row: %w", err)
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

// GetMonitor returns a single monitor by name
func (s *SQLiteProvider) GetMonitor(name string) (*MonitorData, error) {
	m, err := scanMonitor(s.db.QueryRow(`SELECT `+monitorColumns+` FROM monitors WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMonitorNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query monitor %s: %w", name, err)
	}
	return &m, nil
}

// MonitorExists reports whether a monitor with the given name is stored
func (s *SQLiteProvider) MonitorExists(name string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM monitors WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query monitor %s: %w", name, err)
	}
	return n > 0, nil
}

// SaveMonitor validates m and inserts or replaces the stored monitor
func (s *SQLiteProvider) SaveMonitor(m *MonitorData) error {
	if err := m.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO monitors (`+monitorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			monitoring_start = excluded.monitoring_start,
			last_monitored = excluded.last_monitored,
			datasource = excluded.datasource,
			harmonics = excluded.harmonics,
			signal = excluded.signal,
			metric = excluded.metric,
			sensitivity = excluded.sensitivity,
			boundary = excluded.boundary,
			rmse_floor = excluded.rmse_floor,
			state = excluded.state,
			updated_at = CURRENT_TIMESTAMP
	`, m.Name, m.MonitoringStart, m.LastMonitored, m.Datasource, m.Harmonics,
		m.Signal, m.Metric, m.Sensitivity, m.Boundary, m.RMSEFloor, m.State)
	if err != nil {
		return fmt.Errorf("failed to save monitor %s: %w", m.Name, err)
	}
	return nil
}

// DeleteMonitor removes a monitor's configuration
func (s *SQLiteProvider) DeleteMonitor(name string) error {
	return s.updateMonitor(name, `DELETE FROM monitors WHERE name = ?`, name)
}

// UpdateMonitorState sets the lifecycle state of a monitor
func (s *SQLiteProvider) UpdateMonitorState(name, state string) error {
	switch state {
	case StateNotInitialized, StateInitialized, StateDeleted:
	default:
		return invalid("unknown state %q", state)
	}
	return s.updateMonitor(name,
		`UPDATE monitors SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ?`, state, name)
}

// UpdateMonitorProgress moves last_monitored forward to the given date. An
// earlier date leaves the stored value unchanged.
func (s *SQLiteProvider) UpdateMonitorProgress(name string, lastMonitored time.Time) error {
	return s.updateMonitor(name, `
		UPDATE monitors SET
			last_monitored = MAX(last_monitored, ?),
			updated_at = CURRENT_TIMESTAMP
		WHERE name = ?`, lastMonitored.UTC().Format(DateLayout), name)
}

func (s *SQLiteProvider) updateMonitor(name, query string, args ...interface{}) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update monitor %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update monitor %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrMonitorNotFound, name)
	}
	return nil
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	storage := &StorageData{}
	if _, err := s.getSetting(settingStorage, storage); err != nil {
		return nil, err
	}
	return storage, nil
}

// SetStorageConfig replaces the stored storage configuration
func (s *SQLiteProvider) SetStorageConfig(storage *StorageData) error {
	c := ConfigData{Storage: *storage}
	if err := c.Validate(); err != nil {
		return err
	}
	return s.setSetting(settingStorage, storage)
}

// SetEngineConfig replaces the stored engine configuration
func (s *SQLiteProvider) SetEngineConfig(engine *EngineData) error {
	return s.setSetting(settingEngine, engine)
}

// SetServerConfig replaces the stored REST server configuration. A nil
// server disables the REST API.
func (s *SQLiteProvider) SetServerConfig(server *ServerData) error {
	return s.setSetting(settingServer, server)
}

// SetSchedulerConfig replaces the stored scheduler configuration
func (s *SQLiteProvider) SetSchedulerConfig(scheduler *SchedulerData) error {
	return s.setSetting(settingScheduler, scheduler)
}

// getSetting decodes the value stored under key into dst. It reports whether
// the key was present.
func (s *SQLiteProvider) getSetting(key string, dst interface{}) (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query setting %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteProvider) setSetting(key string, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(value))
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	if err := configData.Validate(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM monitors`); err != nil {
		return fmt.Errorf("failed to clear monitors: %w", err)
	}
	for _, m := range configData.Monitors {
		_, err := tx.Exec(`INSERT INTO monitors (`+monitorColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Name, m.MonitoringStart, m.LastMonitored, m.Datasource, m.Harmonics,
			m.Signal, m.Metric, m.Sensitivity, m.Boundary, m.RMSEFloor, m.State)
		if err != nil {
			return fmt.Errorf("failed to insert monitor %s: %w", m.Name, err)
		}
	}

	for key, v := range map[string]interface{}{
		settingStorage:   configData.Storage,
		settingEngine:    configData.Engine,
		settingServer:    configData.Server,
		settingScheduler: configData.Scheduler,
	} {
		value, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode setting %s: %w", key, err)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, string(value)); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// IsReadOnly returns false since SQLite supports write operations
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
