package config

import (
	"errors"
	"time"
)

// ErrMonitorNotFound is returned when a named monitor is not configured.
var ErrMonitorNotFound = errors.New("monitor not found")

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration, defaults applied and validated
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetMonitors() ([]MonitorData, error)
	GetStorageConfig() (*StorageData, error)

	// Configuration management
	IsReadOnly() bool
	Close() error
}

// ProgressRecorder is implemented by writable providers that track how far
// each monitor has been processed.
type ProgressRecorder interface {
	UpdateMonitorProgress(name string, lastMonitored time.Time) error
	UpdateMonitorState(name, state string) error
}

// Monitor lifecycle states.
const (
	StateNotInitialized = "NOT_INITIALIZED"
	StateInitialized    = "INITIALIZED"
	StateDeleted        = "DELETED"
)

// DateLayout is the layout of every date field of the configuration.
const DateLayout = time.DateOnly

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Monitors  []MonitorData `json:"monitors" yaml:"monitors"`
	Storage   StorageData   `json:"storage,omitempty" yaml:"storage,omitempty"`
	Engine    EngineData    `json:"engine,omitempty" yaml:"engine,omitempty"`
	Server    *ServerData   `json:"server,omitempty" yaml:"server,omitempty"`
	Scheduler SchedulerData `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`
}

// MonitorData holds the parameters of one monitor
type MonitorData struct {
	Name            string  `json:"name" yaml:"name"`
	MonitoringStart string  `json:"monitoring_start" yaml:"monitoring_start"`
	LastMonitored   string  `json:"last_monitored,omitempty" yaml:"last_monitored,omitempty"`
	Datasource      string  `json:"datasource,omitempty" yaml:"datasource,omitempty"`
	Harmonics       int     `json:"harmonics,omitempty" yaml:"harmonics,omitempty"`
	Signal          string  `json:"signal,omitempty" yaml:"signal,omitempty"`
	Metric          string  `json:"metric,omitempty" yaml:"metric,omitempty"`
	Sensitivity     float64 `json:"sensitivity,omitempty" yaml:"sensitivity,omitempty"`
	Boundary        int     `json:"boundary,omitempty" yaml:"boundary,omitempty"`
	RMSEFloor       float64 `json:"rmse_floor,omitempty" yaml:"rmse_floor,omitempty"`
	State           string  `json:"state,omitempty" yaml:"state,omitempty"`
}

// StorageData holds the configuration for the pixel state backend. At most
// one backend may be set; none selects an in-memory store.
type StorageData struct {
	SQLite      *SQLiteData      `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty" yaml:"timescaledb,omitempty"`
	Redis       *RedisData       `json:"redis,omitempty" yaml:"redis,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path" yaml:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string" yaml:"connection_string"`
}

type RedisData struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
}

// EngineData configures the processing engine
type EngineData struct {
	Workers  int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	SpoolDir string `json:"spool_dir,omitempty" yaml:"spool_dir,omitempty"`
}

// ServerData configures the REST API
type ServerData struct {
	Cert       string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key        string `json:"key,omitempty" yaml:"key,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

// SchedulerData configures the periodic spool scan
type SchedulerData struct {
	Interval       string `json:"interval,omitempty" yaml:"interval,omitempty"`
	HealthInterval string `json:"health_interval,omitempty" yaml:"health_interval,omitempty"`
}
