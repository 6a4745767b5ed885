package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chrissnell/disturbancemonitor/internal/sensor"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults applied by Validate.
const (
	DefaultHarmonics      = 2
	DefaultSensitivity    = 5.0
	DefaultBoundary       = 5
	DefaultRMSEFloor      = 1.0
	DefaultDatasource     = "S2L2A"
	DefaultSignal         = "NDVI"
	DefaultMetric         = "RMSE"
	DefaultSpoolDir       = "spool"
	DefaultInterval       = "1m"
	DefaultHealthInterval = "1m"
	DefaultListenAddr     = "0.0.0.0"
	DefaultPort           = 8080
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate applies defaults in place and rejects invalid option values.
func (c *ConfigData) Validate() error {
	seen := make(map[string]struct{}, len(c.Monitors))
	for i := range c.Monitors {
		m := &c.Monitors[i]
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := seen[m.Name]; dup {
			return invalid("duplicate monitor %q", m.Name)
		}
		seen[m.Name] = struct{}{}
	}

	backends := 0
	if c.Storage.SQLite != nil {
		backends++
		if c.Storage.SQLite.Path == "" {
			return invalid("storage.sqlite.path is required")
		}
	}
	if c.Storage.TimescaleDB != nil {
		backends++
		if c.Storage.TimescaleDB.ConnectionString == "" {
			return invalid("storage.timescaledb.connection_string is required")
		}
	}
	if c.Storage.Redis != nil {
		backends++
		if c.Storage.Redis.Addr == "" {
			return invalid("storage.redis.addr is required")
		}
	}
	if backends > 1 {
		return invalid("only one storage backend may be configured, found %d", backends)
	}

	if c.Engine.Workers < 0 {
		return invalid("engine.workers must not be negative")
	}
	if c.Engine.SpoolDir == "" {
		c.Engine.SpoolDir = DefaultSpoolDir
	}

	if c.Scheduler.Interval == "" {
		c.Scheduler.Interval = DefaultInterval
	}
	if c.Scheduler.HealthInterval == "" {
		c.Scheduler.HealthInterval = DefaultHealthInterval
	}
	for name, v := range map[string]string{"interval": c.Scheduler.Interval, "health_interval": c.Scheduler.HealthInterval} {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return invalid("scheduler.%s %q is not a positive duration", name, v)
		}
	}

	if c.Server != nil {
		if c.Server.ListenAddr == "" {
			c.Server.ListenAddr = DefaultListenAddr
		}
		if c.Server.Port == 0 {
			c.Server.Port = DefaultPort
		}
		if c.Server.Port < 0 || c.Server.Port > 65535 {
			return invalid("server.port %d out of range", c.Server.Port)
		}
		if (c.Server.Cert == "") != (c.Server.Key == "") {
			return invalid("server.cert and server.key must be set together")
		}
	}

	return nil
}

// Validate applies monitor defaults in place and rejects invalid values.
func (m *MonitorData) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return invalid("monitor without a name")
	}

	start, err := time.Parse(DateLayout, m.MonitoringStart)
	if err != nil {
		return invalid("monitor %s: monitoring_start %q is not a YYYY-MM-DD date", m.Name, m.MonitoringStart)
	}
	if m.LastMonitored == "" {
		m.LastMonitored = m.MonitoringStart
	}
	last, err := time.Parse(DateLayout, m.LastMonitored)
	if err != nil {
		return invalid("monitor %s: last_monitored %q is not a YYYY-MM-DD date", m.Name, m.LastMonitored)
	}
	if last.Before(start) {
		return invalid("monitor %s: last_monitored precedes monitoring_start", m.Name)
	}

	if m.Datasource == "" {
		m.Datasource = DefaultDatasource
	}
	id, err := sensor.ParseID(m.Datasource)
	if err != nil {
		return invalid("monitor %s: %v", m.Name, err)
	}
	m.Datasource = string(id)

	if m.Harmonics == 0 {
		m.Harmonics = DefaultHarmonics
	}
	if m.Harmonics < 1 {
		return invalid("monitor %s: harmonics must be at least 1", m.Name)
	}

	if m.Signal == "" {
		m.Signal = DefaultSignal
	}
	if !strings.EqualFold(m.Signal, DefaultSignal) {
		return invalid("monitor %s: unsupported signal %q", m.Name, m.Signal)
	}
	m.Signal = DefaultSignal

	if m.Metric == "" {
		m.Metric = DefaultMetric
	}
	if !strings.EqualFold(m.Metric, DefaultMetric) {
		return invalid("monitor %s: unsupported metric %q", m.Name, m.Metric)
	}
	m.Metric = DefaultMetric

	if m.Sensitivity == 0 {
		m.Sensitivity = DefaultSensitivity
	}
	if !(m.Sensitivity > 0) {
		return invalid("monitor %s: sensitivity must be positive", m.Name)
	}
	if m.Boundary == 0 {
		m.Boundary = DefaultBoundary
	}
	if m.Boundary < 1 {
		return invalid("monitor %s: boundary must be at least 1", m.Name)
	}
	if m.RMSEFloor == 0 {
		m.RMSEFloor = DefaultRMSEFloor
	}
	if !(m.RMSEFloor > 0) {
		return invalid("monitor %s: rmse_floor must be positive", m.Name)
	}

	if m.State == "" {
		m.State = StateNotInitialized
	}
	switch m.State {
	case StateNotInitialized, StateInitialized, StateDeleted:
	default:
		return invalid("monitor %s: unknown state %q", m.Name, m.State)
	}

	return nil
}

// Start returns the parsed monitoring start. The monitor must be validated.
func (m MonitorData) Start() time.Time {
	t, _ := time.Parse(DateLayout, m.MonitoringStart)
	return t
}

// Last returns the parsed last-monitored date. The monitor must be validated.
func (m MonitorData) Last() time.Time {
	t, _ := time.Parse(DateLayout, m.LastMonitored)
	return t
}

// Monitor returns the named monitor.
func (c *ConfigData) Monitor(name string) (*MonitorData, error) {
	for i := range c.Monitors {
		if c.Monitors[i].Name == name {
			return &c.Monitors[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMonitorNotFound, name)
}

// IntervalDuration returns the parsed scan interval. Config must be validated.
func (s SchedulerData) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(s.Interval)
	return d
}

// HealthIntervalDuration returns the parsed health check interval.
func (s SchedulerData) HealthIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(s.HealthInterval)
	return d
}
