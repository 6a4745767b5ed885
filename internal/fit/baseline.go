package fit

import (
	"fmt"
	"time"

	"github.com/chrissnell/disturbancemonitor/internal/harmonic"
	"github.com/chrissnell/disturbancemonitor/internal/sensor"
	"github.com/chrissnell/disturbancemonitor/internal/state"
)

// BaselineLength is how far back from the monitoring start the model is fit.
const BaselineLength = 365 * 24 * time.Hour

// Window is the half-open time range [Start, End) of a baseline fit.
type Window struct {
	Start time.Time
	End   time.Time
}

// BaselineWindow returns the year preceding monitoringStart.
func BaselineWindow(monitoringStart time.Time) Window {
	return Window{Start: monitoringStart.Add(-BaselineLength), End: monitoringStart}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ID identifies the window in persisted models.
func (w Window) ID() string {
	return w.Start.UTC().Format(time.DateOnly) + "/" + w.End.UTC().Format(time.DateOnly)
}

// Baseline fits a harmonic model of order h to the acquisitions inside w
// that pass the profile's screening, and calibrates its RMSE on the same
// observations.
func Baseline(acqs []sensor.Acquisition, p sensor.Profile, h int, w Window) (*state.Model, error) {
	if h < 1 {
		return nil, fmt.Errorf("%w: got %d", harmonic.ErrInvalidHarmonics, h)
	}

	var (
		times  []time.Time
		values []float64
	)
	for _, a := range acqs {
		if !w.Contains(a.Time) || !sensor.Usable(p, a) {
			continue
		}
		times = append(times, a.Time)
		values = append(values, p.Index(a.Bands))
	}

	if len(times) < harmonic.Columns(h) {
		return nil, fmt.Errorf("%w: %d usable acquisitions in %s for %d coefficients",
			ErrInsufficientObservations, len(times), w.ID(), harmonic.Columns(h))
	}

	rows, err := harmonic.BuildRows(times, h)
	if err != nil {
		return nil, err
	}
	x, err := harmonic.Dense(rows)
	if err != nil {
		return nil, err
	}

	beta, err := Solve(x, values)
	if err != nil {
		return nil, err
	}

	obs := make([]Observation, len(rows))
	for i := range rows {
		obs[i] = Observation{Row: rows[i], Value: values[i]}
	}
	rmse, err := RMSE(beta, obs)
	if err != nil {
		return nil, err
	}

	return &state.Model{
		Coefficients: beta,
		RMSE:         rmse,
		Harmonics:    h,
		FittedAt:     w.ID(),
		Observations: len(rows),
	}, nil
}
