// Package monitor implements the per-pixel online change detector. A pixel
// is Stable with a streak of consecutive anomalous observations until the
// streak reaches its bound, at which point it becomes Disturbed on that
// acquisition's date. Disturbed is terminal.
package monitor

import (
	"math"
	"sort"
	"time"

	"github.com/chrissnell/disturbancemonitor/internal/harmonic"
	"github.com/chrissnell/disturbancemonitor/internal/sensor"
	"github.com/chrissnell/disturbancemonitor/internal/state"
)

// DefaultRMSEFloor replaces a calibration RMSE of zero when computing the
// anomaly threshold.
const DefaultRMSEFloor = 1.0

// Scene is a new acquisition handed to the monitor.
type Scene = sensor.Acquisition

// Event is emitted once, when a pixel transitions to Disturbed.
type Event struct {
	PixelID string    `json:"pixel_id" msgpack:"pixel_id"`
	Date    time.Time `json:"date" msgpack:"date"`
	Streak  int       `json:"streak" msgpack:"streak"`
}

// Result is the outcome of processing one batch for one pixel.
type Result struct {
	State *state.Monitor
	Event *Event

	Valid       int // scenes scored against the model
	Invalid     int // scenes rejected by the sensor profile
	Replayed    int // scenes at or before the last observation, ignored
	Unevaluated int // scenes left after the disturbance was declared
}

// Monitor scores scenes from a single sensor profile.
type Monitor struct {
	profile   sensor.Profile
	rmseFloor float64
}

// New returns a Monitor for profile p. A non-positive floor selects
// DefaultRMSEFloor.
func New(p sensor.Profile, rmseFloor float64) *Monitor {
	if !(rmseFloor > 0) {
		rmseFloor = DefaultRMSEFloor
	}
	return &Monitor{profile: p, rmseFloor: rmseFloor}
}

// Profile returns the sensor profile this monitor scores with.
func (m *Monitor) Profile() sensor.Profile {
	return m.profile
}

// Threshold returns the absolute residual above which an observation is
// anomalous for s.
func (m *Monitor) Threshold(s *state.Monitor) float64 {
	scale := s.RMSE
	if !(scale > 0) {
		scale = m.rmseFloor
	}
	return s.Sensitivity * scale
}

// Process advances s over a batch of scenes. The input state is never
// modified; Result.State is a new value (identical in content when nothing
// happened). Scenes are taken in chronological order, ties in input order.
// Processing stops at the first scene that completes a disturbance; later
// scenes of the batch are not evaluated.
//
// A timestamp is observed at most once. Scenes dated at or before
// LastObserved count as replayed, including a second usable scene sharing
// the timestamp of one evaluated earlier in the same batch. An unusable
// scene does not claim its timestamp.
func (m *Monitor) Process(pixelID string, s *state.Monitor, scenes []Scene) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	res := &Result{State: s.Clone()}
	if s.Disturbed() {
		res.Unevaluated = len(scenes)
		return res, nil
	}

	out := res.State
	h := (len(out.Coefficients) - 1) / 2
	threshold := m.Threshold(out)

	ordered := append([]Scene(nil), scenes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Time.Before(ordered[j].Time)
	})

	for i, sc := range ordered {
		if out.LastObserved != nil && !sc.Time.After(*out.LastObserved) {
			res.Replayed++
			continue
		}
		if !sensor.Usable(m.profile, sc) {
			res.Invalid++
			continue
		}

		row, err := harmonic.NewRow(sc.Time, h)
		if err != nil {
			return nil, err
		}
		res.Valid++
		observed := sc.Time
		out.LastObserved = &observed

		residual := row.Dot(out.Coefficients) - m.profile.Index(sc.Bands)
		if math.Abs(residual) > threshold {
			out.Streak++
		} else {
			out.Streak = 0
		}

		if out.Streak >= out.Bound {
			date := sc.Time
			out.DisturbedDate = &date
			res.Event = &Event{PixelID: pixelID, Date: date, Streak: out.Streak}
			res.Unevaluated = len(ordered) - i - 1
			break
		}
	}

	return res, nil
}
