package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chrissnell/disturbancemonitor/internal/engine"
	"github.com/chrissnell/disturbancemonitor/internal/metrics"
	"github.com/chrissnell/disturbancemonitor/internal/scenes"
	"github.com/chrissnell/disturbancemonitor/internal/sensor"
	"github.com/chrissnell/disturbancemonitor/pkg/config"
)

// ErrMonitorDeleted is returned for batches addressed to a deleted monitor.
var ErrMonitorDeleted = errors.New("monitor has been deleted")

// Processor routes scene batches to the engine under their monitor's
// configuration and records progress with writable config backends.
type Processor struct {
	provider config.ConfigProvider
	engine   *engine.Engine
	logger   *zap.SugaredLogger
}

// NewProcessor creates a batch processor
func NewProcessor(provider config.ConfigProvider, eng *engine.Engine, logger *zap.SugaredLogger) *Processor {
	return &Processor{
		provider: provider,
		engine:   eng,
		logger:   logger,
	}
}

// MonitorSpec converts a validated monitor record into engine parameters.
func MonitorSpec(m config.MonitorData) (engine.MonitorSpec, error) {
	if err := m.Validate(); err != nil {
		return engine.MonitorSpec{}, err
	}
	profile, err := sensor.Lookup(sensor.ID(m.Datasource))
	if err != nil {
		return engine.MonitorSpec{}, err
	}
	return engine.MonitorSpec{
		Name:            m.Name,
		MonitoringStart: m.Start(),
		Profile:         profile,
		Harmonics:       m.Harmonics,
		Sensitivity:     m.Sensitivity,
		Bound:           m.Boundary,
		RMSEFloor:       m.RMSEFloor,
	}, nil
}

func (p *Processor) monitor(name string) (*config.MonitorData, error) {
	monitors, err := p.provider.GetMonitors()
	if err != nil {
		return nil, fmt.Errorf("error loading monitors: %w", err)
	}
	for i := range monitors {
		if monitors[i].Name == name {
			return &monitors[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", config.ErrMonitorNotFound, name)
}

// ProcessBatch runs b through the engine. A successful run moves the
// monitor's last_monitored date to the batch end and marks it initialized.
func (p *Processor) ProcessBatch(ctx context.Context, b *scenes.Batch) (*engine.Report, error) {
	m, err := p.monitor(b.Monitor)
	if err != nil {
		return nil, err
	}
	if m.State == config.StateDeleted {
		return nil, fmt.Errorf("%w: %s", ErrMonitorDeleted, m.Name)
	}

	spec, err := MonitorSpec(*m)
	if err != nil {
		return nil, err
	}

	report, err := p.engine.Run(ctx, spec, b)
	if err != nil {
		return report, err
	}

	recorder, ok := p.provider.(config.ProgressRecorder)
	if !ok || p.provider.IsReadOnly() {
		return report, nil
	}
	if !report.Run.To.IsZero() {
		if err := recorder.UpdateMonitorProgress(m.Name, report.Run.To); err != nil {
			p.logger.Warnf("could not record progress of monitor %s: %v", m.Name, err)
		}
	}
	if m.State == config.StateNotInitialized {
		if err := recorder.UpdateMonitorState(m.Name, config.StateInitialized); err != nil {
			p.logger.Warnf("could not mark monitor %s initialized: %v", m.Name, err)
		}
	}

	return report, nil
}

// Drain processes every pending batch of the spool once.
func (p *Processor) Drain(ctx context.Context, spool *scenes.Spool) (int, error) {
	if pending, err := spool.Pending(); err == nil {
		metrics.BatchesPending.Set(float64(len(pending)))
	}

	n, err := spool.Drain(ctx, func(ctx context.Context, b *scenes.Batch) error {
		_, err := p.ProcessBatch(ctx, b)
		return err
	})

	if pending, perr := spool.Pending(); perr == nil {
		metrics.BatchesPending.Set(float64(len(pending)))
	}
	if n > 0 {
		p.logger.Infof("processed %d batches from %s", n, spool.Dir())
	}
	return n, err
}
