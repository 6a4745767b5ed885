// Package state holds the per-pixel model and monitoring records that are
// persisted between monitoring runs, together with their structural
// validation and binary encoding.
package state

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrCorruptState marks a persisted record that fails structural validation.
// Such a pixel is not monitored; resetting it silently would hide disturbances.
var ErrCorruptState = errors.New("corrupt pixel state")

// Model is the outcome of a baseline fit.
type Model struct {
	Coefficients []float64 `msgpack:"c" json:"coefficients"`
	RMSE         float64   `msgpack:"rmse" json:"rmse"`
	Harmonics    int       `msgpack:"h" json:"harmonics"`
	FittedAt     string    `msgpack:"fitted_at" json:"fitted_at"`
	Observations int       `msgpack:"n" json:"observations"`
}

// Monitor is the online state of one pixel. Once DisturbedDate is set the
// record is terminal: Streak and DisturbedDate never change again.
type Monitor struct {
	Coefficients  []float64  `msgpack:"c" json:"coefficients"`
	RMSE          float64    `msgpack:"rmse" json:"rmse"`
	Streak        int        `msgpack:"streak" json:"streak"`
	DisturbedDate *time.Time `msgpack:"disturbed,omitempty" json:"disturbed_date,omitempty"`
	Sensitivity   float64    `msgpack:"sensitivity" json:"sensitivity"`
	Bound         int        `msgpack:"bound" json:"bound"`
	LastObserved  *time.Time `msgpack:"last,omitempty" json:"last_observed,omitempty"`
}

// NewMonitor starts monitoring from a fitted model.
func NewMonitor(m *Model, sensitivity float64, bound int) *Monitor {
	return &Monitor{
		Coefficients: append([]float64(nil), m.Coefficients...),
		RMSE:         m.RMSE,
		Sensitivity:  sensitivity,
		Bound:        bound,
	}
}

// Disturbed reports whether the monitor reached its terminal state.
func (s *Monitor) Disturbed() bool {
	return s.DisturbedDate != nil
}

// Clone returns a deep copy.
func (s *Monitor) Clone() *Monitor {
	c := *s
	c.Coefficients = append([]float64(nil), s.Coefficients...)
	if s.DisturbedDate != nil {
		d := *s.DisturbedDate
		c.DisturbedDate = &d
	}
	if s.LastObserved != nil {
		l := *s.LastObserved
		c.LastObserved = &l
	}
	return &c
}

// Pixel is the persisted record for one pixel of one monitor.
type Pixel struct {
	ID        string    `msgpack:"id" json:"id"`
	Model     *Model    `msgpack:"model,omitempty" json:"model,omitempty"`
	Monitor   *Monitor  `msgpack:"monitor,omitempty" json:"monitor,omitempty"`
	UpdatedAt time.Time `msgpack:"updated" json:"updated_at"`
}

func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorruptState, fmt.Sprintf(format, args...))
}

func validCoefficients(c []float64) error {
	if len(c) < 3 || len(c)%2 == 0 {
		return corrupt("coefficient vector of length %d is not 2h+1 with h >= 1", len(c))
	}
	for i, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return corrupt("coefficient %d is not finite", i)
		}
	}
	return nil
}

func validRMSE(r float64) error {
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return corrupt("rmse %v is not a finite non-negative number", r)
	}
	return nil
}

// Validate checks the structural invariants of a fitted model.
func (m *Model) Validate() error {
	if m == nil {
		return corrupt("missing model")
	}
	if err := validCoefficients(m.Coefficients); err != nil {
		return err
	}
	if m.Harmonics < 1 || len(m.Coefficients) != 2*m.Harmonics+1 {
		return corrupt("harmonics %d does not match %d coefficients", m.Harmonics, len(m.Coefficients))
	}
	return validRMSE(m.RMSE)
}

// Validate checks the structural invariants of a monitor record.
func (s *Monitor) Validate() error {
	if s == nil {
		return corrupt("missing monitor state")
	}
	if err := validCoefficients(s.Coefficients); err != nil {
		return err
	}
	if err := validRMSE(s.RMSE); err != nil {
		return err
	}
	if !(s.Sensitivity > 0) || math.IsInf(s.Sensitivity, 0) {
		return corrupt("sensitivity %v must be positive", s.Sensitivity)
	}
	if s.Bound < 1 {
		return corrupt("bound %d must be at least 1", s.Bound)
	}
	if s.Streak < 0 {
		return corrupt("negative streak %d", s.Streak)
	}
	if s.Disturbed() {
		if s.Streak < 1 {
			return corrupt("disturbed on %s with streak %d", s.DisturbedDate.Format(time.DateOnly), s.Streak)
		}
	} else if s.Streak >= s.Bound {
		return corrupt("streak %d reached bound %d without a disturbance date", s.Streak, s.Bound)
	}
	return nil
}

// Validate checks a full pixel record. A record must carry a model; the
// monitor, when present, must use the same number of coefficients.
func (p *Pixel) Validate() error {
	if p == nil {
		return corrupt("missing pixel record")
	}
	if p.ID == "" {
		return corrupt("pixel record without id")
	}
	if err := p.Model.Validate(); err != nil {
		return err
	}
	if p.Monitor != nil {
		if err := p.Monitor.Validate(); err != nil {
			return err
		}
		if len(p.Monitor.Coefficients) != len(p.Model.Coefficients) {
			return corrupt("monitor has %d coefficients, model has %d",
				len(p.Monitor.Coefficients), len(p.Model.Coefficients))
		}
	}
	return nil
}
