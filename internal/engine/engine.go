// Package engine runs scene batches through baseline fitting and change
// monitoring for every pixel, persisting state through a storage.Store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/disturbancemonitor/internal/fit"
	"github.com/chrissnell/disturbancemonitor/internal/metrics"
	"github.com/chrissnell/disturbancemonitor/internal/monitor"
	"github.com/chrissnell/disturbancemonitor/internal/scenes"
	"github.com/chrissnell/disturbancemonitor/internal/sensor"
	"github.com/chrissnell/disturbancemonitor/internal/state"
	"github.com/chrissnell/disturbancemonitor/internal/storage"
)

// MonitorSpec holds the per-monitor parameters a run needs.
type MonitorSpec struct {
	Name            string
	MonitoringStart time.Time
	Profile         sensor.Profile
	Harmonics       int
	Sensitivity     float64
	Bound           int
	RMSEFloor       float64
}

// Validate rejects parameters the fitter or monitor cannot work with.
func (s MonitorSpec) Validate() error {
	switch {
	case s.Name == "":
		return errors.New("monitor has no name")
	case s.Profile == nil:
		return fmt.Errorf("monitor %s has no sensor profile", s.Name)
	case s.MonitoringStart.IsZero():
		return fmt.Errorf("monitor %s has no monitoring start", s.Name)
	case s.Harmonics < 1:
		return fmt.Errorf("monitor %s: harmonics must be at least 1", s.Name)
	case !(s.Sensitivity > 0):
		return fmt.Errorf("monitor %s: sensitivity must be positive", s.Name)
	case s.Bound < 1:
		return fmt.Errorf("monitor %s: boundary must be at least 1", s.Name)
	}
	return nil
}

// Report is the outcome of one run.
type Report struct {
	Run    storage.Run
	Tally  *monitor.Tally
	Events []monitor.Event
	Errors []*PixelError
}

// Engine processes batches with a bounded pool of workers.
type Engine struct {
	store   storage.Store
	workers int
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// New returns an engine persisting to store. A non-positive worker count
// uses one worker per CPU.
func New(store storage.Store, workers int, logger *zap.SugaredLogger) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		store:   store,
		workers: workers,
		logger:  logger,
		now:     time.Now,
	}
}

// pixelOutcome is what a worker learns from one pixel.
type pixelOutcome struct {
	record *state.Pixel
	fitted bool
	event  *monitor.Event
	err    *PixelError
}

// worker accumulates results privately and hands them back once.
type worker struct {
	tally   *monitor.Tally
	records []*state.Pixel
	events  []monitor.Event
	errors  []*PixelError
	fitted  int
	done    int
}

// Run processes every pixel of b for the monitor described by spec. Failures
// of individual pixels are collected in the report and do not stop the run.
//
// Updated pixel states, the disturbance counts and the run record are
// committed together once every pixel is done. Cancelling ctx stops the run
// between pixels; the partial report is returned together with ctx's error
// and nothing is recorded, so the batch can be run again from scratch.
func (e *Engine) Run(ctx context.Context, spec MonitorSpec, b *scenes.Batch) (*Report, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if b.Monitor != spec.Name {
		return nil, fmt.Errorf("batch for monitor %q handed to monitor %q", b.Monitor, spec.Name)
	}

	started := e.now()
	from, to := b.Span()
	report := &Report{
		Run: storage.Run{
			ID:        uuid.NewString(),
			Monitor:   spec.Name,
			Feature:   b.Feature,
			From:      from,
			To:        to,
			StartedAt: started,
		},
		Tally: monitor.NewTally(),
	}

	e.logger.Infow("starting monitoring run",
		"run", report.Run.ID, "monitor", spec.Name, "feature", b.Feature,
		"pixels", len(b.Pixels), "scenes", b.SceneCount(), "workers", e.workers)

	mon := monitor.New(spec.Profile, spec.RMSEFloor)
	jobs := make(chan *scenes.PixelSeries)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []*state.Pixel
	)
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := &worker{tally: monitor.NewTally()}
			for px := range jobs {
				if ctx.Err() != nil {
					continue
				}
				out := e.processPixel(ctx, spec, mon, px)
				w.done++
				if out.fitted {
					w.fitted++
				}
				if out.record != nil {
					w.records = append(w.records, out.record)
				}
				if out.event != nil {
					w.tally.AddEvent(out.event)
					w.events = append(w.events, *out.event)
				}
				if out.err != nil {
					w.errors = append(w.errors, out.err)
				}
			}

			report.Tally.Merge(w.tally)
			mu.Lock()
			records = append(records, w.records...)
			report.Events = append(report.Events, w.events...)
			report.Errors = append(report.Errors, w.errors...)
			report.Run.Pixels += w.done
			report.Run.Fitted += w.fitted
			mu.Unlock()
		}()
	}

dispatch:
	for i := range b.Pixels {
		select {
		case jobs <- &b.Pixels[i]:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	report.Run.Disturbed = report.Tally.Total()
	report.Run.Failed = len(report.Errors)
	report.Run.FinishedAt = e.now()

	if err := ctx.Err(); err != nil {
		e.logger.Warnf("run %s of monitor %s cancelled after %d of %d pixels",
			report.Run.ID, spec.Name, report.Run.Pixels, len(b.Pixels))
		return report, err
	}

	if err := e.store.CommitRun(ctx, &report.Run, records, report.Tally.Snapshot()); err != nil {
		return report, fmt.Errorf("error committing run %s: %w", report.Run.ID, err)
	}

	metrics.DisturbancesDetected.WithLabelValues(spec.Name).Add(float64(report.Run.Disturbed))
	metrics.RunDuration.WithLabelValues(spec.Name).Observe(report.Run.FinishedAt.Sub(started).Seconds())
	e.logger.Infow("monitoring run complete",
		"run", report.Run.ID, "monitor", spec.Name, "feature", b.Feature,
		"pixels", report.Run.Pixels, "fitted", report.Run.Fitted,
		"disturbed", report.Run.Disturbed, "failed", report.Run.Failed)

	return report, nil
}

func pixelSpan(scs []sensor.Acquisition) (from, to time.Time) {
	for _, s := range scs {
		if from.IsZero() || s.Time.Before(from) {
			from = s.Time
		}
		if s.Time.After(to) {
			to = s.Time
		}
	}
	return from, to
}

// processPixel fits a baseline for a pixel seen for the first time, then
// monitors the scenes dated on or after the monitoring start. The updated
// record is returned, not saved.
func (e *Engine) processPixel(ctx context.Context, spec MonitorSpec, mon *monitor.Monitor, px *scenes.PixelSeries) pixelOutcome {
	from, to := pixelSpan(px.Scenes)
	fail := func(op string, err error) pixelOutcome {
		metrics.PixelErrors.WithLabelValues(spec.Name, op).Inc()
		metrics.PixelsProcessed.WithLabelValues(spec.Name, "failed").Inc()
		pe := &PixelError{Monitor: spec.Name, PixelID: px.ID, From: from, To: to, Op: op, Err: err}
		e.logger.Errorw("pixel failed", "monitor", spec.Name, "pixel", px.ID, "op", op, "error", err)
		return pixelOutcome{err: pe}
	}

	var out pixelOutcome

	rec, err := e.store.LoadPixel(ctx, spec.Name, px.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fitStart := time.Now()
		model, err := fit.Baseline(px.Scenes, spec.Profile, spec.Harmonics, fit.BaselineWindow(spec.MonitoringStart))
		metrics.FitLatency.Observe(time.Since(fitStart).Seconds())
		if err != nil {
			return fail(OpFit, err)
		}
		rec = &state.Pixel{ID: px.ID, Model: model}
		out.fitted = true
	case err != nil:
		return fail(OpLoad, err)
	}
	if rec.Monitor == nil {
		rec.Monitor = state.NewMonitor(rec.Model, spec.Sensitivity, spec.Bound)
	}

	var monitored []monitor.Scene
	for _, s := range px.Scenes {
		if !s.Time.Before(spec.MonitoringStart) {
			monitored = append(monitored, s)
		}
	}

	res, err := mon.Process(px.ID, rec.Monitor, monitored)
	if err != nil {
		return fail(OpMonitor, err)
	}

	rec.Monitor = res.State
	rec.UpdatedAt = e.now()
	out.record = rec

	metrics.ScenesEvaluated.WithLabelValues(spec.Name, "valid").Add(float64(res.Valid))
	metrics.ScenesEvaluated.WithLabelValues(spec.Name, "invalid").Add(float64(res.Invalid))
	metrics.ScenesEvaluated.WithLabelValues(spec.Name, "replayed").Add(float64(res.Replayed))
	metrics.ScenesEvaluated.WithLabelValues(spec.Name, "unevaluated").Add(float64(res.Unevaluated))
	if out.fitted {
		metrics.PixelsProcessed.WithLabelValues(spec.Name, "fitted").Inc()
	} else {
		metrics.PixelsProcessed.WithLabelValues(spec.Name, "monitored").Inc()
	}
	out.event = res.Event

	return out
}
