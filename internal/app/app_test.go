package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/disturbancemonitor/internal/engine"
	"github.com/chrissnell/disturbancemonitor/internal/scenes"
	"github.com/chrissnell/disturbancemonitor/internal/sensor"
	"github.com/chrissnell/disturbancemonitor/internal/storage"
	"github.com/chrissnell/disturbancemonitor/internal/storage/sqlite"
	"github.com/chrissnell/disturbancemonitor/pkg/config"
)

var start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func scene(t time.Time, ndvi float64) sensor.Acquisition {
	return sensor.Acquisition{
		Time:   t,
		Sensor: sensor.IDS2L2A,
		Bands: sensor.Sample{
			sensor.BandS2Red:    0.1 * (1 - ndvi),
			sensor.BandS2NIR:    0.1 * (1 + ndvi),
			sensor.BandS2SCL:    4,
			sensor.BandDataMask: 1,
		},
	}
}

// batch returns one pixel with a year of baseline scenes and one scene ten
// days after start.
func batch(monitor string) *scenes.Batch {
	var s []sensor.Acquisition
	for i := 0; i < 24; i++ {
		ndvi := 0.28
		if i%2 == 1 {
			ndvi = 0.32
		}
		s = append(s, scene(start.AddDate(-1, 0, 4+15*i), ndvi))
	}
	s = append(s, scene(start.AddDate(0, 0, 10), 0.3))

	return &scenes.Batch{Monitor: monitor, Feature: "1", Pixels: []scenes.PixelSeries{{ID: "p", Scenes: s}}}
}

func newProvider(t *testing.T, monitors ...config.MonitorData) *config.SQLiteProvider {
	t.Helper()
	p, err := config.NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	for i := range monitors {
		if err := p.SaveMonitor(&monitors[i]); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func newProcessor(p config.ConfigProvider) *Processor {
	logger := zap.NewNop().Sugar()
	return NewProcessor(p, engine.New(storage.NewMemory(), 2, logger), logger)
}

func TestProcessBatchRecordsProgress(t *testing.T) {
	p := newProvider(t, config.MonitorData{Name: "forest", MonitoringStart: "2023-01-01"})

	report, err := newProcessor(p).ProcessBatch(context.Background(), batch("forest"))
	if err != nil {
		t.Fatal(err)
	}
	if report.Run.Fitted != 1 {
		t.Errorf("expected one fitted pixel, got %+v", report.Run)
	}

	m, err := p.GetMonitor("forest")
	if err != nil {
		t.Fatal(err)
	}
	if m.State != config.StateInitialized || m.LastMonitored != "2023-01-11" {
		t.Errorf("progress not recorded: %+v", m)
	}
}

func TestProcessBatchRejects(t *testing.T) {
	p := newProvider(t, config.MonitorData{Name: "gone", MonitoringStart: "2023-01-01", State: config.StateDeleted})
	proc := newProcessor(p)

	if _, err := proc.ProcessBatch(context.Background(), batch("gone")); !errors.Is(err, ErrMonitorDeleted) {
		t.Errorf("expected ErrMonitorDeleted, got %v", err)
	}
	if _, err := proc.ProcessBatch(context.Background(), batch("unknown")); !errors.Is(err, config.ErrMonitorNotFound) {
		t.Errorf("expected ErrMonitorNotFound, got %v", err)
	}
}

func TestMonitorSpec(t *testing.T) {
	spec, err := MonitorSpec(config.MonitorData{Name: "radar", MonitoringStart: "2023-05-01", Datasource: "s1grd", Boundary: 3})
	if err != nil {
		t.Fatal(err)
	}
	if spec.Profile.ID() != sensor.IDS1GRD || spec.Bound != 3 || spec.Harmonics != config.DefaultHarmonics ||
		!spec.MonitoringStart.Equal(time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected spec %+v", spec)
	}

	if _, err := MonitorSpec(config.MonitorData{Name: "x", MonitoringStart: "2023-05-01", Datasource: "LANDSAT"}); err == nil {
		t.Error("expected an error for an unknown datasource")
	}
}

func TestRunOnce(t *testing.T) {
	dir := t.TempDir()
	spoolDir := filepath.Join(dir, "spool")
	statePath := filepath.Join(dir, "state.db")

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`
monitors:
  - name: forest
    monitoring_start: "2023-01-01"
storage:
  sqlite:
    path: %s
engine:
  spool_dir: %s
`, statePath, spoolDir)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(spoolDir, "001.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := scenes.Encode(f, batch("forest"), scenes.FormatJSON); err != nil {
		t.Fatal(err)
	}
	f.Close()

	a := New(config.NewYAMLProvider(cfgPath), zap.NewNop().Sugar())
	if err := a.Run(context.Background(), ModeOnce); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(spoolDir, "done", "001.json")); err != nil {
		t.Errorf("batch not moved to done: %v", err)
	}

	store, err := sqlite.New(statePath, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := store.LoadPixel(context.Background(), "forest", "p"); err != nil {
		t.Errorf("pixel state not persisted: %v", err)
	}
	if runs, _ := store.ListRuns(context.Background(), "forest"); len(runs) != 1 {
		t.Errorf("expected one recorded run, got %d", len(runs))
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	a := New(config.NewYAMLProvider("unused.yaml"), zap.NewNop().Sugar())
	if err := a.Run(context.Background(), "daemon"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}
