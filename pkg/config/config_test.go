package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMonitorDefaults(t *testing.T) {
	m := MonitorData{Name: "forest", MonitoringStart: "2023-01-01"}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}

	want := MonitorData{
		Name:            "forest",
		MonitoringStart: "2023-01-01",
		LastMonitored:   "2023-01-01",
		Datasource:      "S2L2A",
		Harmonics:       2,
		Signal:          "NDVI",
		Metric:          "RMSE",
		Sensitivity:     5,
		Boundary:        5,
		RMSEFloor:       1,
		State:           StateNotInitialized,
	}
	if m != want {
		t.Errorf("got %+v, want %+v", m, want)
	}
	if !m.Start().Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %s", m.Start())
	}
}

func TestMonitorValidation(t *testing.T) {
	tests := []struct {
		name string
		m    MonitorData
	}{
		{"no name", MonitorData{MonitoringStart: "2023-01-01"}},
		{"bad start", MonitorData{Name: "a", MonitoringStart: "01/01/2023"}},
		{"last before start", MonitorData{Name: "a", MonitoringStart: "2023-01-01", LastMonitored: "2022-12-31"}},
		{"unknown datasource", MonitorData{Name: "a", MonitoringStart: "2023-01-01", Datasource: "MODIS"}},
		{"negative harmonics", MonitorData{Name: "a", MonitoringStart: "2023-01-01", Harmonics: -1}},
		{"signal", MonitorData{Name: "a", MonitoringStart: "2023-01-01", Signal: "EVI"}},
		{"metric", MonitorData{Name: "a", MonitoringStart: "2023-01-01", Metric: "MAE"}},
		{"sensitivity", MonitorData{Name: "a", MonitoringStart: "2023-01-01", Sensitivity: -2}},
		{"boundary", MonitorData{Name: "a", MonitoringStart: "2023-01-01", Boundary: -1}},
		{"rmse floor", MonitorData{Name: "a", MonitoringStart: "2023-01-01", RMSEFloor: -1}},
		{"state", MonitorData{Name: "a", MonitoringStart: "2023-01-01", State: "PAUSED"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.m.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfigValidation(t *testing.T) {
	dup := ConfigData{Monitors: []MonitorData{
		{Name: "a", MonitoringStart: "2023-01-01"},
		{Name: "a", MonitoringStart: "2023-01-01"},
	}}
	if err := dup.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("duplicate monitors accepted: %v", err)
	}

	two := ConfigData{Storage: StorageData{
		SQLite: &SQLiteData{Path: "a.db"},
		Redis:  &RedisData{Addr: "localhost:6379"},
	}}
	if err := two.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("two storage backends accepted: %v", err)
	}

	interval := ConfigData{Scheduler: SchedulerData{Interval: "often"}}
	if err := interval.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad interval accepted: %v", err)
	}

	c := ConfigData{Server: &ServerData{}}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.Engine.SpoolDir != DefaultSpoolDir || c.Server.Port != DefaultPort || c.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("defaults not applied: %+v %+v", c.Engine, c.Server)
	}
	if c.Scheduler.IntervalDuration() != time.Minute {
		t.Errorf("unexpected interval %s", c.Scheduler.IntervalDuration())
	}
	if _, err := c.Monitor("missing"); !errors.Is(err, ErrMonitorNotFound) {
		t.Errorf("expected ErrMonitorNotFound, got %v", err)
	}
}

const sampleYAML = `
monitors:
  - name: forest
    monitoring_start: "2023-01-01"
    datasource: s1grd
    sensitivity: 3
storage:
  sqlite:
    path: /var/lib/dm/state.db
engine:
  workers: 4
scheduler:
  interval: 30s
`

func TestYAMLProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewYAMLProvider(path)
	defer p.Close()

	monitors, err := p.GetMonitors()
	if err != nil {
		t.Fatal(err)
	}
	if len(monitors) != 1 || monitors[0].Datasource != "S1GRD" || monitors[0].Sensitivity != 3 || monitors[0].Boundary != DefaultBoundary {
		t.Errorf("unexpected monitors %+v", monitors)
	}

	storage, err := p.GetStorageConfig()
	if err != nil {
		t.Fatal(err)
	}
	if storage.SQLite == nil || storage.SQLite.Path != "/var/lib/dm/state.db" {
		t.Errorf("unexpected storage %+v", storage)
	}
	if !p.IsReadOnly() {
		t.Error("YAML provider must be read-only")
	}
}

func TestYAMLProviderRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("monitors: []\nweather: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewYAMLProvider(path).LoadConfig(); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func newSQLiteProvider(t *testing.T) *SQLiteProvider {
	t.Helper()
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSQLiteProviderMonitors(t *testing.T) {
	p := newSQLiteProvider(t)

	if err := p.SaveMonitor(&MonitorData{Name: "forest", MonitoringStart: "2023-01-01"}); err != nil {
		t.Fatal(err)
	}
	if err := p.SaveMonitor(&MonitorData{Name: "bad"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("invalid monitor saved: %v", err)
	}

	m, err := p.GetMonitor("forest")
	if err != nil {
		t.Fatal(err)
	}
	if m.State != StateNotInitialized || m.LastMonitored != "2023-01-01" || m.Harmonics != 2 {
		t.Errorf("unexpected monitor %+v", m)
	}

	if err := p.UpdateMonitorState("forest", StateInitialized); err != nil {
		t.Fatal(err)
	}
	if err := p.UpdateMonitorProgress("forest", time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	// Progress never moves backwards.
	if err := p.UpdateMonitorProgress("forest", time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	m, _ = p.GetMonitor("forest")
	if m.State != StateInitialized || m.LastMonitored != "2023-03-01" {
		t.Errorf("unexpected monitor after updates %+v", m)
	}

	if err := p.UpdateMonitorState("forest", "PAUSED"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown state accepted: %v", err)
	}
	if err := p.UpdateMonitorState("missing", StateDeleted); !errors.Is(err, ErrMonitorNotFound) {
		t.Errorf("expected ErrMonitorNotFound, got %v", err)
	}

	if ok, _ := p.MonitorExists("forest"); !ok {
		t.Error("monitor should exist")
	}
	if err := p.DeleteMonitor("forest"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.GetMonitor("forest"); !errors.Is(err, ErrMonitorNotFound) {
		t.Errorf("expected ErrMonitorNotFound after delete, got %v", err)
	}
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.db")
	p, err := NewSQLiteProvider(path)
	if err != nil {
		t.Fatal(err)
	}

	in := &ConfigData{
		Monitors: []MonitorData{
			{Name: "b", MonitoringStart: "2022-06-01", Datasource: "ARPS"},
			{Name: "a", MonitoringStart: "2023-01-01"},
		},
		Storage: StorageData{Redis: &RedisData{Addr: "localhost:6379", DB: 2}},
		Engine:  EngineData{Workers: 3},
		Server:  &ServerData{Port: 9090},
	}
	if err := p.SaveConfig(in); err != nil {
		t.Fatal(err)
	}
	p.Close()

	p, err = NewSQLiteProvider(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	out, err := p.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Monitors) != 2 || out.Monitors[0].Name != "a" || out.Monitors[1].Datasource != "ARPS" {
		t.Errorf("unexpected monitors %+v", out.Monitors)
	}
	if out.Storage.Redis == nil || out.Storage.Redis.DB != 2 || out.Engine.Workers != 3 {
		t.Errorf("unexpected settings %+v %+v", out.Storage, out.Engine)
	}
	if out.Server == nil || out.Server.Port != 9090 || out.Scheduler.Interval != DefaultInterval {
		t.Errorf("unexpected server/scheduler %+v %+v", out.Server, out.Scheduler)
	}
	if p.IsReadOnly() {
		t.Error("SQLite provider must be writable")
	}

	var _ ProgressRecorder = p
	var _ ConfigProvider = p
}

func TestSQLiteProviderSettings(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	storage, err := p.GetStorageConfig()
	if err != nil {
		t.Fatal(err)
	}
	if storage.SQLite != nil || storage.TimescaleDB != nil || storage.Redis != nil {
		t.Errorf("expected empty storage config, got %+v", storage)
	}

	if err := p.SetStorageConfig(&StorageData{SQLite: &SQLiteData{}}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for sqlite without path, got %v", err)
	}
	if err := p.SetStorageConfig(&StorageData{SQLite: &SQLiteData{Path: "state.db"}}); err != nil {
		t.Fatal(err)
	}
	if err := p.SetEngineConfig(&EngineData{Workers: 4, SpoolDir: "incoming"}); err != nil {
		t.Fatal(err)
	}
	if err := p.SetServerConfig(&ServerData{Port: 9100}); err != nil {
		t.Fatal(err)
	}
	if err := p.SetSchedulerConfig(&SchedulerData{Interval: "30s"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := p.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.SQLite == nil || cfg.Storage.SQLite.Path != "state.db" {
		t.Errorf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Engine.Workers != 4 || cfg.Engine.SpoolDir != "incoming" {
		t.Errorf("unexpected engine %+v", cfg.Engine)
	}
	if cfg.Server == nil || cfg.Server.Port != 9100 || cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("unexpected server %+v", cfg.Server)
	}
	if cfg.Scheduler.IntervalDuration() != 30*time.Second || cfg.Scheduler.HealthInterval != DefaultHealthInterval {
		t.Errorf("unexpected scheduler %+v", cfg.Scheduler)
	}

	if err := p.SetServerConfig(nil); err != nil {
		t.Fatal(err)
	}
	cfg, err = p.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server != nil {
		t.Errorf("expected REST server disabled, got %+v", cfg.Server)
	}
}
