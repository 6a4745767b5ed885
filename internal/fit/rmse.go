package fit

import (
	"errors"
	"math"

	"github.com/chrissnell/disturbancemonitor/internal/harmonic"
)

// ErrNoValidObservations is returned when no observation can contribute a
// residual. It is distinct from an RMSE of exactly zero.
var ErrNoValidObservations = errors.New("no valid observations")

// Observation pairs a design row with the index value measured at that date.
type Observation struct {
	Row   harmonic.Row
	Value float64
}

func (o Observation) usable(ncoef int) bool {
	return len(o.Row) == ncoef && !math.IsNaN(o.Value) && !math.IsInf(o.Value, 0)
}

// RMSE returns the root mean squared residual of beta over the usable
// observations. Observations with a non-finite value or a row of the wrong
// length are ignored.
func RMSE(beta []float64, obs []Observation) (float64, error) {
	var sum float64
	n := 0
	for _, o := range obs {
		if !o.usable(len(beta)) {
			continue
		}
		r := o.Row.Dot(beta) - o.Value
		sum += r * r
		n++
	}
	if n == 0 {
		return 0, ErrNoValidObservations
	}
	return math.Sqrt(sum / float64(n)), nil
}
