// Package harmonic turns acquisition timestamps into rows of a seasonal
// harmonic regression design matrix: an intercept followed by sine/cosine
// pairs of the phase-of-year at increasing frequencies.
package harmonic

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// YearLength is the fixed year used to normalize the phase. It is 365.25
// days regardless of the calendar year, so phases drift slightly against
// leap/non-leap years.
const YearLength = time.Duration(365.25 * 24 * float64(time.Hour))

// ErrInvalidHarmonics is returned for a harmonic order below one.
var ErrInvalidHarmonics = errors.New("harmonic order must be at least 1")

// Row is a single design matrix row of length 2h+1.
type Row []float64

// Dot returns the model prediction for coefficients beta.
func (r Row) Dot(beta []float64) float64 {
	return floats.Dot(r, beta)
}

// Harmonics returns the harmonic order h encoded by the row length.
func (r Row) Harmonics() int {
	return (len(r) - 1) / 2
}

// Columns returns the number of design matrix columns for harmonic order h.
func Columns(h int) int {
	return 2*h + 1
}

// Phase returns the fraction of the (fixed-length) year elapsed at t,
// measured from January 1st 00:00 UTC of t's calendar year.
func Phase(t time.Time) float64 {
	t = t.UTC()
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return float64(t.Sub(start)) / float64(YearLength)
}

// NewRow builds the design row for a single timestamp.
func NewRow(t time.Time, h int) (Row, error) {
	if h < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHarmonics, h)
	}
	return rowAt(Phase(t), h), nil
}

func rowAt(phase float64, h int) Row {
	row := make(Row, Columns(h))
	row[0] = 1
	for k := 1; k <= h; k++ {
		angle := 2 * math.Pi * phase * float64(k)
		row[2*k-1] = math.Sin(angle)
		row[2*k] = math.Cos(angle)
	}
	return row
}

// BuildRows returns one row per timestamp in input order. An empty input
// yields an empty result.
func BuildRows(times []time.Time, h int) ([]Row, error) {
	if h < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHarmonics, h)
	}
	rows := make([]Row, len(times))
	for i, t := range times {
		rows[i] = rowAt(Phase(t), h)
	}
	return rows, nil
}

// Dense copies rows into a gonum matrix. All rows must share one length.
func Dense(rows []Row) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, errors.New("cannot build a dense matrix from zero rows")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}
